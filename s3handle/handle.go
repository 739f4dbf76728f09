// Package s3handle implements the per-request S3 handle: URL construction in
// virtual-hosted or path style, SigV4 header production, the redirect/region
// error state machine, and presigned-URL generation. Grounded on
// VSIS3HandleHelper (the whole class) in the original GDAL cpl_aws.cpp, with
// backend/s3/fileSystem.go's option-construction idiom for the constructor
// shape.
package s3handle

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/fathomdata/s3sign/awsconfig"
	"github.com/fathomdata/s3sign/awscreds"
	"github.com/fathomdata/s3sign/awsenc"
	"github.com/fathomdata/s3sign/bucketcache"
	"github.com/fathomdata/s3sign/credchain"
	"github.com/fathomdata/s3sign/options"
	"github.com/fathomdata/s3sign/s3errors"
	"github.com/fathomdata/s3sign/sigv4"
)

// defaultChain and defaultBucketCache back every Handle that isn't given its
// own via WithChain/WithBucketCache, matching spec §9's "model as a single
// environment object ... with a default singleton" design note.
var (
	defaultChain       = credchain.NewChain()
	defaultBucketCache = bucketcache.NewCache()
)

// Handle binds one bucket/key target to a resolved credential set, region,
// endpoint and hosting style, and produces signed requests against it. Not
// safe for concurrent use: a refresh mutates its fields without a lock,
// matching the "one handle per in-flight request" discipline.
type Handle struct {
	chain       *credchain.Chain
	bucketCache *bucketcache.Cache
	get         awsconfig.Getter
	now         func() int64

	path          string // the get_option lookup key; the original bucket/key URI
	allowNoObject bool

	bucket   string
	key      string
	endpoint string
	region   string

	useHTTPS          bool
	useVirtualHosting bool
	requestPayer      string

	creds  awscreds.Credentials
	source credchain.Source

	queryParams []QueryParam

	url string
}

// NewHandle parses uri ("bucket/key"), resolves credentials and region
// through the configured Chain, and builds the handle's initial URL.
func NewHandle(ctx context.Context, uri string, opts ...options.Option[Handle]) (*Handle, error) {
	h := &Handle{
		chain:       defaultChain,
		bucketCache: defaultBucketCache,
		get:         awsconfig.OSGetter(),
		now:         func() int64 { return time.Now().Unix() },
		path:        uri,
	}
	options.Apply(h, opts...)

	bucket, key, err := splitURI(uri, h.allowNoObject)
	if err != nil {
		return nil, err
	}
	h.bucket, h.key = bucket, key

	creds, region, source, err := h.chain.Resolve(ctx, h.path)
	if err != nil {
		return nil, err
	}
	h.creds, h.region, h.source = creds, region, source

	h.endpoint = h.get(h.path, "AWS_S3_ENDPOINT", "s3.amazonaws.com")
	h.useHTTPS = awsenc.TestBool(h.get(h.path, "AWS_HTTPS", "YES"))
	h.requestPayer = h.get(h.path, "AWS_REQUEST_PAYER", "")

	vhDefault := "YES"
	if strings.Contains(h.bucket, ".") {
		vhDefault = "NO"
	}
	h.useVirtualHosting = awsenc.TestBool(h.get(h.path, "AWS_VIRTUAL_HOSTING", vhDefault))

	if cached, ok := h.bucketCache.Get(h.bucket); ok {
		h.region = cached.Region
		h.useVirtualHosting = cached.UseVirtualHosting
		h.endpoint = cached.Endpoint
	}

	h.RebuildURL()
	return h, nil
}

func splitURI(uri string, allowNoObject bool) (bucket, key string, err error) {
	bucket, key, found := strings.Cut(uri, "/")
	if bucket == "" {
		return "", "", s3errors.WrapAppDefined("empty bucket name in %q", uri)
	}
	if !found && !allowNoObject {
		return "", "", s3errors.WrapAppDefined("missing object key in %q", uri)
	}
	return bucket, key, nil
}

// Bucket, Key, Region, Endpoint, Source and URL expose the handle's current
// resolved state.
func (h *Handle) Bucket() string            { return h.bucket }
func (h *Handle) Key() string               { return h.key }
func (h *Handle) Region() string            { return h.region }
func (h *Handle) Endpoint() string          { return h.endpoint }
func (h *Handle) Source() credchain.Source  { return h.source }
func (h *Handle) URL() string               { return h.url }
func (h *Handle) UseVirtualHosting() bool   { return h.useVirtualHosting }

// SetQueryParam sets (or overrides, preserving first-seen position) one
// query-string entry participating in both the canonical query string used
// for signing and the handle's built URL.
func (h *Handle) SetQueryParam(name, value string) {
	for i, p := range h.queryParams {
		if p.Name == name {
			h.queryParams[i].Value = value
			return
		}
	}
	h.queryParams = append(h.queryParams, QueryParam{Name: name, Value: value})
}

// canonicalURI is "/" + url_encode(key, false) under virtual hosting, or
// "/" + url_encode(bucket+"/"+key, false) path-style.
func (h *Handle) canonicalURI() string {
	if h.useVirtualHosting {
		return "/" + awsenc.URLEncode(h.key, false)
	}
	return "/" + awsenc.URLEncode(h.bucket+"/"+h.key, false)
}

func (h *Handle) scheme() string {
	if h.useHTTPS {
		return "https"
	}
	return "http"
}

func (h *Handle) host() string {
	if h.useVirtualHosting {
		return h.bucket + "." + h.endpoint
	}
	return h.endpoint
}

// buildURL reconstructs the handle's URL from its current fields and query
// map, without mutating h.
func (h *Handle) buildURL() string {
	if h.bucket == "" {
		return h.scheme() + "://" + h.endpoint
	}
	u := h.scheme() + "://" + h.host() + h.canonicalURI()
	if qs := buildQueryString(h.queryParams); qs != "" {
		u += "?" + qs
	}
	return u
}

// RebuildURL recomputes and stores h.url from the handle's current fields,
// returning the new value. Called after construction and after any
// redirect-driven field change.
func (h *Handle) RebuildURL() string {
	h.url = h.buildURL()
	return h.url
}

// URLWithoutQuery returns the handle's URL with its query string stripped,
// the GetURLNoKVP equivalent.
func (h *Handle) URLWithoutQuery() string {
	if h.bucket == "" {
		return h.scheme() + "://" + h.endpoint
	}
	return h.scheme() + "://" + h.host() + h.canonicalURI()
}

// GetHeaders refreshes credentials (if their source is dynamic), then
// produces the headers the caller should add to verb against payload:
// x-amz-date, x-amz-content-sha256, X-Amz-Security-Token (if any),
// x-amz-request-payer (if any) and Authorization (if credentials are
// present). existingHeaders is consulted only for canonicalization (any
// x-amz-* or Content-MD5 entry folds into the signed set); it is not
// echoed back.
func (h *Handle) GetHeaders(ctx context.Context, verb string, existingHeaders []sigv4.Header, payload []byte) ([]sigv4.Header, error) {
	if h.source != credchain.SourceStatic {
		creds, region, source, err := h.chain.Resolve(ctx, h.path)
		if err != nil {
			return nil, err
		}
		h.creds, h.source = creds, source
		if region != "" {
			h.region = region
		}
	}

	timestamp := h.get(h.path, "AWS_TIMESTAMP", "")
	if timestamp == "" {
		timestamp = awsenc.Timestamp(time.Unix(h.now(), 0).UTC())
	}
	payloadHash := awsenc.SHA256Hex(payload)

	sigReq := sigv4.Request{
		SecretAccessKey:      h.creds.SecretAccessKey,
		AccessKeyID:          h.creds.AccessKeyID,
		SessionToken:         h.creds.SessionToken,
		Region:               h.region,
		RequestPayer:         h.requestPayer,
		Service:              "s3",
		Verb:                 verb,
		ExistingHeaders:      existingHeaders,
		Host:                 h.host(),
		CanonicalURI:         h.canonicalURI(),
		CanonicalQueryString: buildQueryString(h.queryParams),
		PayloadSHA256Hex:     payloadHash,
		IncludeSHA256Header:  true,
		Timestamp:            timestamp,
	}

	headers := []sigv4.Header{
		{Name: "x-amz-date", Value: timestamp},
		{Name: "x-amz-content-sha256", Value: payloadHash},
	}
	if h.creds.SessionToken != "" {
		headers = append(headers, sigv4.Header{Name: "X-Amz-Security-Token", Value: h.creds.SessionToken})
	}
	if h.requestPayer != "" {
		headers = append(headers, sigv4.Header{Name: "x-amz-request-payer", Value: h.requestPayer})
	}
	if !h.creds.Empty() {
		headers = append(headers, sigv4.Header{Name: "Authorization", Value: sigv4.Authorization(sigReq)})
	}
	return headers, nil
}

// GetSignedURLOptions configures GetSignedURL; zero values take spec's
// documented defaults (verb GET, 3600s expiry).
type GetSignedURLOptions struct {
	Verb              string
	ExpirationSeconds int64
}

// refreshMargin is the window (seconds) inside which GetSignedURL
// force-refreshes dynamic credentials before presigning, matching the cache
// reuse/refresh margin used elsewhere.
const refreshMargin = 60

// GetSignedURL builds a presigned URL per spec §4.C's presigned-URL form:
// signed headers is exactly "host", and the query string carries
// X-Amz-Algorithm, X-Amz-Credential, X-Amz-Date, X-Amz-Expires,
// X-Amz-Security-Token (if any), X-Amz-SignedHeaders=host and
// X-Amz-Signature. If the cached dynamic credentials would expire within
// the requested validity window, they are force-refreshed first; a failed
// refresh leaves the prior credentials in place and presigning proceeds
// with them.
func (h *Handle) GetSignedURL(ctx context.Context, opts GetSignedURLOptions) (string, error) {
	verb := opts.Verb
	if verb == "" {
		verb = "GET"
	}
	expiry := opts.ExpirationSeconds
	if expiry == 0 {
		expiry = 3600
	}

	if h.source != credchain.SourceStatic && h.creds.ExpiresSoon(h.now()+expiry, refreshMargin) {
		if creds, region, source, err := h.chain.Resolve(ctx, h.path); err == nil {
			h.creds, h.source = creds, source
			if region != "" {
				h.region = region
			}
		}
	}

	if h.creds.Empty() {
		return "", s3errors.WrapAppDefined("cannot build a presigned URL without credentials")
	}

	timestamp := h.get(h.path, "AWS_TIMESTAMP", "")
	if timestamp == "" {
		timestamp = awsenc.Timestamp(time.Unix(h.now(), 0).UTC())
	}

	host := h.host()
	params := []QueryParam{
		{Name: "X-Amz-Algorithm", Value: "AWS4-HMAC-SHA256"},
		{Name: "X-Amz-Credential", Value: sigv4.Credential(h.creds.AccessKeyID, timestamp, h.region, "s3")},
		{Name: "X-Amz-Date", Value: timestamp},
		{Name: "X-Amz-Expires", Value: strconv.FormatInt(expiry, 10)},
		{Name: "X-Amz-SignedHeaders", Value: "host"},
	}
	if h.creds.SessionToken != "" {
		params = append(params, QueryParam{Name: "X-Amz-Security-Token", Value: h.creds.SessionToken})
	}

	// SessionToken is left empty here: it's already carried in the query
	// string as X-Amz-Security-Token, and X-Amz-SignedHeaders is fixed to
	// "host", so folding it into the signed headers too would make the
	// signature disagree with the URL's own SignedHeaders list.
	sigReq := sigv4.Request{
		SecretAccessKey:      h.creds.SecretAccessKey,
		AccessKeyID:          h.creds.AccessKeyID,
		Region:               h.region,
		Service:              "s3",
		Verb:                 verb,
		Host:                 host,
		CanonicalURI:         h.canonicalURI(),
		CanonicalQueryString: buildQueryString(params),
		PayloadSHA256Hex:     awsenc.UnsignedPayload,
		Timestamp:            timestamp,
	}
	signature, _ := sigv4.Signature(sigReq)

	// X-Amz-Signature is appended after the sorted signed parameters, not
	// sorted in among them.
	return h.scheme() + "://" + host + h.canonicalURI() + "?" + buildQueryString(params) +
		"&X-Amz-Signature=" + signature, nil
}

// Close zeroizes the handle's secret material, matching the original's
// destructor behavior.
func (h *Handle) Close() {
	h.creds.Zeroize()
}
