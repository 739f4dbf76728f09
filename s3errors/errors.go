// Package s3errors defines the typed error kinds surfaced by credential
// resolution and request signing, and a small multi-error aggregator that
// collects source-tagged failure reasons into one joined error.
package s3errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds. Wrap one of these with fmt.Errorf("...: %w", Err*) so
// callers can classify a failure with errors.Is regardless of the message.
var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrAccessDenied          = errors.New("access denied")
	ErrBucketNotFound        = errors.New("bucket not found")
	ErrObjectNotFound        = errors.New("object not found")
	ErrSignatureDoesNotMatch = errors.New("signature does not match")
	ErrAWS                   = errors.New("aws error")
	ErrAppDefined            = errors.New("invalid input or configuration")
)

// WrapInvalidCredentials returns ErrInvalidCredentials wrapped with context.
func WrapInvalidCredentials(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCredentials, fmt.Sprintf(format, args...))
}

// WrapAppDefined returns ErrAppDefined wrapped with context.
func WrapAppDefined(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAppDefined, fmt.Sprintf(format, args...))
}

// FromAWSCode maps an S3/STS <Error><Code> value to one of the sentinel
// kinds above, wrapping message as context. Codes not recognized fall back
// to the generic ErrAWS.
func FromAWSCode(code, message string) error {
	switch strings.ToUpper(code) {
	case "ACCESSDENIED":
		return fmt.Errorf("%w: %s", ErrAccessDenied, message)
	case "NOSUCHBUCKET":
		return fmt.Errorf("%w: %s", ErrBucketNotFound, message)
	case "NOSUCHKEY":
		return fmt.Errorf("%w: %s", ErrObjectNotFound, message)
	case "SIGNATUREDOESNOTMATCH":
		return fmt.Errorf("%w: %s", ErrSignatureDoesNotMatch, message)
	default:
		return fmt.Errorf("%w: %s", ErrAWS, message)
	}
}

// MultiErr aggregates failure reasons, each tagged with the name of the
// source that produced it, so they can be reported together instead of
// just the last. credchain.Chain does not use it: its terminal failure is a
// single ErrInvalidCredentials error.
type MultiErr struct {
	errs []error
}

// NewMultiErr returns an empty MultiErr.
func NewMultiErr() *MultiErr {
	return &MultiErr{}
}

// Append records err, tagged with the name of the source that produced it,
// and returns the receiver's current aggregate (nil if err is nil and
// nothing was previously appended).
func (m *MultiErr) Append(source string, err error) error {
	if err != nil {
		m.errs = append(m.errs, fmt.Errorf("%s: %w", source, err))
	}
	return m.OrNil()
}

// OrNil returns a joined error of everything appended so far, or nil if
// nothing was appended.
func (m *MultiErr) OrNil() error {
	if len(m.errs) == 0 {
		return nil
	}
	return errors.Join(m.errs...)
}
