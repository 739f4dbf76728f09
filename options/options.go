// Package options provides the generic functional-option shape shared by
// credchain and s3handle: a named option applied to a target struct.
package options

// Option is implemented by any functional option that configures a T.
// Name is used only for logging/debugging which options were applied.
type Option[T any] interface {
	Apply(target *T)
	Name() string
}

// Apply runs each option against target in order.
func Apply[T any](target *T, opts ...Option[T]) {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.Apply(target)
	}
}
