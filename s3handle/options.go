package s3handle

import (
	"github.com/fathomdata/s3sign/awsconfig"
	"github.com/fathomdata/s3sign/bucketcache"
	"github.com/fathomdata/s3sign/credchain"
	"github.com/fathomdata/s3sign/options"
)

const (
	optionNameChain         = "chain"
	optionNameBucketCache   = "bucketCache"
	optionNameGetter        = "getter"
	optionNameClock         = "clock"
	optionNameAllowNoObject = "allowNoObject"
)

type chainOpt struct{ chain *credchain.Chain }

func (o *chainOpt) Apply(h *Handle) { h.chain = o.chain }
func (o *chainOpt) Name() string    { return optionNameChain }

// WithChain overrides the credential chain a Handle resolves through,
// defaulting to a process-wide chain shared by every Handle.
func WithChain(chain *credchain.Chain) options.Option[Handle] {
	return &chainOpt{chain: chain}
}

type bucketCacheOpt struct{ cache *bucketcache.Cache }

func (o *bucketCacheOpt) Apply(h *Handle) { h.bucketCache = o.cache }
func (o *bucketCacheOpt) Name() string    { return optionNameBucketCache }

// WithBucketCache overrides the per-bucket parameter cache a Handle consults
// and updates, defaulting to a process-wide cache shared by every Handle.
func WithBucketCache(cache *bucketcache.Cache) options.Option[Handle] {
	return &bucketCacheOpt{cache: cache}
}

type getterOpt struct{ get awsconfig.Getter }

func (o *getterOpt) Apply(h *Handle) { h.get = o.get }
func (o *getterOpt) Name() string    { return optionNameGetter }

// WithGetter overrides how path-specific config options are resolved.
func WithGetter(g awsconfig.Getter) options.Option[Handle] {
	return &getterOpt{get: g}
}

type clockOpt struct{ now func() int64 }

func (o *clockOpt) Apply(h *Handle) { h.now = o.now }
func (o *clockOpt) Name() string    { return optionNameClock }

// WithClock overrides the handle's notion of "now" (unix seconds), used for
// AWS_TIMESTAMP-less signing and presigned-URL expiry checks in tests.
func WithClock(now func() int64) options.Option[Handle] {
	return &clockOpt{now: now}
}

type allowNoObjectOpt struct{ allow bool }

func (o *allowNoObjectOpt) Apply(h *Handle) { h.allowNoObject = o.allow }
func (o *allowNoObjectOpt) Name() string    { return optionNameAllowNoObject }

// WithAllowNoObject permits a bare "bucket" URI with no "/key" suffix,
// matching the original's bAllowNoObject parameter (used for bucket-level
// operations that have no object key).
func WithAllowNoObject(allow bool) options.Option[Handle] {
	return &allowNoObjectOpt{allow: allow}
}
