// Package fetch models the HTTP transport primitive that sts, imds and
// s3handle build requests against. Spec §1 treats transport as out of scope
// ("a fetch primitive returning {status, bytes, error-text}"); this package
// is the thin interface that stands in for it, with a net/http-backed
// default implementation.
package fetch

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Request is everything a caller needs to specify about one HTTP call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    io.Reader
	// Timeout, if non-zero, bounds this single call (used for the 1s IMDS
	// probes). Zero means "use the Fetcher's default".
	Timeout time.Duration
}

// Response is the primitive result spec §1 describes: status, bytes, and an
// error-text field (mirroring CPLHTTPResult.pszErrBuf). ErrText is set,
// alongside the returned error, when the round trip fails or the body
// cannot be read; it is empty on success.
type Response struct {
	Status  int
	Body    []byte
	ErrText string
}

// Fetcher performs one HTTP round trip. Implementations must not retry;
// spec §1 explicitly excludes a retry policy from this layer.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}

// HTTPFetcher is the default Fetcher, backed by net/http.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher returns an HTTPFetcher using http.DefaultClient's transport
// with the given default timeout.
func NewHTTPFetcher(defaultTimeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: defaultTimeout}}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (Response, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	timeout := req.Timeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, req.Body)
	if err != nil {
		return Response{}, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return Response{ErrText: err.Error()}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{Status: resp.StatusCode, ErrText: err.Error()}, err
	}

	return Response{Status: resp.StatusCode, Body: body}, nil
}
