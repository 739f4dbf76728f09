package s3handle

import (
	"encoding/xml"
	"strings"

	"github.com/fathomdata/s3sign/bucketcache"
	"github.com/fathomdata/s3sign/s3errors"
	"github.com/fathomdata/s3sign/sigv4"
)

// errorXML is the <Error>...</Error> body S3 returns on a 3xx/4xx response.
// Region and Endpoint are only present on AuthorizationHeaderMalformed and
// PermanentRedirect/TemporaryRedirect responses respectively.
type errorXML struct {
	XMLName  xml.Name `xml:"Error"`
	Code     string   `xml:"Code"`
	Message  string   `xml:"Message"`
	Region   string   `xml:"Region"`
	Endpoint string   `xml:"Endpoint"`
}

func headerValue(headers []sigv4.Header, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// CanRestartOnError inspects an AWS error response and, where it describes a
// region or endpoint the handle should retry against, adjusts the handle's
// state in place and reports true. Otherwise it maps the error code to one
// of s3errors' sentinel kinds and reports false: the caller should not
// retry. responseHeaders is the raw header block of the response that
// produced body, consulted only for x-amz-bucket-region.
func (h *Handle) CanRestartOnError(body []byte, responseHeaders []sigv4.Header) (bool, error) {
	var e errorXML
	if err := xml.Unmarshal(body, &e); err != nil || e.Code == "" {
		return false, s3errors.FromAWSCode("", "malformed or absent <Error> response body")
	}

	switch strings.ToUpper(e.Code) {
	case "AUTHORIZATIONHEADERMALFORMED":
		if e.Region == "" {
			return false, s3errors.WrapAppDefined("AuthorizationHeaderMalformed response missing <Region>")
		}
		h.region = e.Region
		h.storeBucketParams()
		h.RebuildURL()
		return true, nil

	case "PERMANENTREDIRECT", "TEMPORARYREDIRECT":
		if e.Endpoint == "" {
			return false, s3errors.FromAWSCode(e.Code, e.Message)
		}
		if err := h.adoptRedirectEndpoint(e.Endpoint, responseHeaders); err != nil {
			return false, err
		}
		if strings.ToUpper(e.Code) == "PERMANENTREDIRECT" {
			h.storeBucketParams()
		}
		h.RebuildURL()
		return true, nil

	default:
		return false, s3errors.FromAWSCode(e.Code, e.Message)
	}
}

// adoptRedirectEndpoint applies the Endpoint AWS suggested, per spec §4.G:
// a virtual-hosted handle whose suggestion doesn't start with "bucket." is
// malformed; a path-style handle whose suggestion does start with "bucket."
// either switches to the region-qualified path-style endpoint (when the
// bucket name contains a dot and the response exposes x-amz-bucket-region)
// or flips to virtual hosting outright.
func (h *Handle) adoptRedirectEndpoint(suggested string, responseHeaders []sigv4.Header) error {
	prefix := h.bucket + "."

	if h.useVirtualHosting {
		if !strings.HasPrefix(suggested, prefix) {
			return s3errors.WrapAppDefined("redirect endpoint %q is not virtual-hosted for bucket %q", suggested, h.bucket)
		}
		h.endpoint = strings.TrimPrefix(suggested, prefix)
		return nil
	}

	if !strings.HasPrefix(suggested, prefix) {
		// Not the bucket.-prefixed virtual-hosted form; adopt it verbatim.
		h.endpoint = suggested
		return nil
	}

	if strings.Contains(h.bucket, ".") {
		if region := headerValue(responseHeaders, "x-amz-bucket-region"); region != "" {
			h.endpoint = "s3." + region + ".amazonaws.com"
			h.region = region
			return nil
		}
	}
	h.useVirtualHosting = true
	h.endpoint = strings.TrimPrefix(suggested, prefix)
	return nil
}

func (h *Handle) storeBucketParams() {
	h.bucketCache.Update(h.bucket, bucketcache.Params{
		Region:            h.region,
		UseVirtualHosting: h.useVirtualHosting,
		Endpoint:          h.endpoint,
	})
}
