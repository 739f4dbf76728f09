package credchain

import (
	"log/slog"

	"github.com/fathomdata/s3sign/awsconfig"
	"github.com/fathomdata/s3sign/fetch"
	"github.com/fathomdata/s3sign/options"
)

const (
	optionNameFetcher    = "fetcher"
	optionNameLogger     = "logger"
	optionNameGetter     = "getter"
	optionNameCache      = "cache"
	optionNameClock      = "clock"
	optionNameFileReader = "fileReader"
)

type fetcherOpt struct{ fetcher fetch.Fetcher }

func (o *fetcherOpt) Apply(c *Chain) { c.fetcher = o.fetcher }
func (o *fetcherOpt) Name() string   { return optionNameFetcher }

// WithFetcher overrides the HTTP transport used for STS and IMDS calls.
func WithFetcher(f fetch.Fetcher) options.Option[Chain] {
	return &fetcherOpt{fetcher: f}
}

type loggerOpt struct{ logger *slog.Logger }

func (o *loggerOpt) Apply(c *Chain) { c.logger = o.logger }
func (o *loggerOpt) Name() string   { return optionNameLogger }

// WithLogger overrides the structured logger used for trace/warning points.
func WithLogger(l *slog.Logger) options.Option[Chain] {
	return &loggerOpt{logger: l}
}

type getterOpt struct{ get awsconfig.Getter }

func (o *getterOpt) Apply(c *Chain) { c.get = o.get }
func (o *getterOpt) Name() string   { return optionNameGetter }

// WithGetter overrides how path-specific config options are resolved,
// defaulting to awsconfig.OSGetter (environment only).
func WithGetter(g awsconfig.Getter) options.Option[Chain] {
	return &getterOpt{get: g}
}

type cacheOpt struct{ cache *Cache }

func (o *cacheOpt) Apply(c *Chain) { c.cache = o.cache }
func (o *cacheOpt) Name() string   { return optionNameCache }

// WithCache overrides the process-wide credential cache; useful for tests
// that want a fresh Cache per case instead of sharing package state.
func WithCache(cache *Cache) options.Option[Chain] {
	return &cacheOpt{cache: cache}
}

type clockOpt struct{ now func() int64 }

func (o *clockOpt) Apply(c *Chain) { c.now = o.now }
func (o *clockOpt) Name() string   { return optionNameClock }

// WithClock overrides the chain's notion of "now" (unix seconds), used to
// evaluate cache-expiry margins in tests.
func WithClock(now func() int64) options.Option[Chain] {
	return &clockOpt{now: now}
}

type fileReaderOpt struct{ readFile func(string) ([]byte, error) }

func (o *fileReaderOpt) Apply(c *Chain) { c.readFile = o.readFile }
func (o *fileReaderOpt) Name() string   { return optionNameFileReader }

// WithFileReader overrides how the web-identity token file is read.
func WithFileReader(readFile func(string) ([]byte, error)) options.Option[Chain] {
	return &fileReaderOpt{readFile: readFile}
}
