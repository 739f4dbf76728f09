// Package sigv4 implements AWS Signature Version 4: canonical request
// construction, the string-to-sign, the derived signing key, the signature
// itself, and the Authorization header built from it. Grounded on
// CPLGetAWS_SIGN4_Signature / CPLGetAWS_SIGN4_Authorization in the original
// GDAL cpl_aws.cpp, with IVSIS3LikeHandleHelper::BuildCanonicalizedHeaders
// for canonical-header folding.
package sigv4

import (
	"sort"
	"strings"

	"github.com/fathomdata/s3sign/awsenc"
)

// Header is an existing request header supplied by the caller, in whatever
// order the caller built it. Names are normalized case-insensitively when
// folded into the canonical headers; order among the caller's headers does
// not otherwise matter since the signer only ever cares about the sorted
// canonical set.
type Header struct {
	Name  string
	Value string
}

// Request carries everything CanonicalRequest/Signature/Authorization need
// to sign one HTTP request (or construct one presigned URL).
type Request struct {
	SecretAccessKey string
	AccessKeyID     string
	SessionToken    string
	Region          string
	RequestPayer    string
	Service         string // "s3" or "sts"
	Verb            string
	ExistingHeaders []Header

	Host                 string
	CanonicalURI         string
	CanonicalQueryString string

	// PayloadSHA256Hex is the lowercase-hex SHA-256 of the request body, or
	// the literal awsenc.UnsignedPayload for presigned URLs.
	PayloadSHA256Hex string
	// IncludeSHA256Header controls whether x-amz-content-sha256 and
	// x-amz-date are folded into the signed headers. It has no effect when
	// PayloadSHA256Hex is awsenc.UnsignedPayload (never folded in that case).
	IncludeSHA256Header bool

	// Timestamp is the SigV4 amz-date (YYYYMMDD'T'HHMMSS'Z', UTC).
	Timestamp string
}

// scope returns YYYYMMDD/region/service/aws4_request.
func scope(timestamp, region, service string) string {
	yyyymmdd := timestamp
	if len(yyyymmdd) > 8 {
		yyyymmdd = yyyymmdd[:8]
	}
	return yyyymmdd + "/" + region + "/" + service + "/aws4_request"
}

// canonicalHeaders builds the sorted, lowercased "key:value\n" block and the
// ";"-joined signed-headers list, starting from base (host plus the
// conditionally-included x-amz-* entries) and folding in any of
// existingHeaders whose name begins with "x-amz-" (case-insensitive) or is
// "Content-MD5".
func canonicalHeaders(base map[string]string, existing []Header) (block string, signedHeaders string) {
	merged := make(map[string]string, len(base)+len(existing))
	for k, v := range base {
		merged[k] = v
	}
	for _, h := range existing {
		lower := strings.ToLower(h.Name)
		if strings.HasPrefix(lower, "x-amz-") || lower == "content-md5" {
			merged[lower] = strings.TrimSpace(h.Value)
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(merged[k])
		b.WriteByte('\n')
	}
	return b.String(), strings.Join(keys, ";")
}

// CanonicalRequest builds the canonical request string and the accompanying
// signed-headers list for r.
func CanonicalRequest(r Request) (canonicalRequest string, signedHeaders string) {
	base := map[string]string{"host": r.Host}
	if r.PayloadSHA256Hex != awsenc.UnsignedPayload && r.IncludeSHA256Header {
		base["x-amz-content-sha256"] = r.PayloadSHA256Hex
		base["x-amz-date"] = r.Timestamp
	}
	if r.RequestPayer != "" {
		base["x-amz-request-payer"] = r.RequestPayer
	}
	if r.SessionToken != "" {
		base["x-amz-security-token"] = r.SessionToken
	}

	headerBlock, signedHeaders := canonicalHeaders(base, r.ExistingHeaders)

	var b strings.Builder
	b.WriteString(r.Verb)
	b.WriteByte('\n')
	b.WriteString(r.CanonicalURI)
	b.WriteByte('\n')
	b.WriteString(r.CanonicalQueryString)
	b.WriteByte('\n')
	b.WriteString(headerBlock)
	b.WriteByte('\n')
	b.WriteString(signedHeaders)
	b.WriteByte('\n')
	b.WriteString(r.PayloadSHA256Hex)

	return b.String(), signedHeaders
}

// StringToSign builds "AWS4-HMAC-SHA256\n" + timestamp + "\n" + scope + "\n"
// + sha256Hex(canonicalRequest).
func StringToSign(timestamp, region, service, canonicalRequest string) string {
	var b strings.Builder
	b.WriteString("AWS4-HMAC-SHA256\n")
	b.WriteString(timestamp)
	b.WriteByte('\n')
	b.WriteString(scope(timestamp, region, service))
	b.WriteByte('\n')
	b.WriteString(awsenc.SHA256Hex([]byte(canonicalRequest)))
	return b.String()
}

// SigningKey derives the SigV4 signing key:
// HMAC(HMAC(HMAC(HMAC("AWS4"+secret, date), region), service), "aws4_request").
func SigningKey(secretAccessKey, timestamp, region, service string) []byte {
	yyyymmdd := timestamp
	if len(yyyymmdd) > 8 {
		yyyymmdd = yyyymmdd[:8]
	}
	kDate := awsenc.HMACSHA256([]byte("AWS4"+secretAccessKey), []byte(yyyymmdd))
	kRegion := awsenc.HMACSHA256(kDate, []byte(region))
	kService := awsenc.HMACSHA256(kRegion, []byte(service))
	return awsenc.HMACSHA256(kService, []byte("aws4_request"))
}

// Signature computes the canonical request, string-to-sign, signing key and
// final lowercase-hex signature for r, returning the signature and the
// signed-headers list used to produce it.
func Signature(r Request) (signature string, signedHeaders string) {
	canonicalRequest, signedHeaders := CanonicalRequest(r)
	sts := StringToSign(r.Timestamp, r.Region, r.Service, canonicalRequest)
	key := SigningKey(r.SecretAccessKey, r.Timestamp, r.Region, r.Service)
	return awsenc.LowerHex(awsenc.HMACSHA256(key, []byte(sts))), signedHeaders
}

// Authorization builds the SigV4 Authorization header value for r.
func Authorization(r Request) string {
	signature, signedHeaders := Signature(r)
	yyyymmdd := r.Timestamp
	if len(yyyymmdd) > 8 {
		yyyymmdd = yyyymmdd[:8]
	}
	return "AWS4-HMAC-SHA256 Credential=" + r.AccessKeyID + "/" + yyyymmdd + "/" + r.Region + "/" + r.Service + "/aws4_request" +
		",SignedHeaders=" + signedHeaders + ",Signature=" + signature
}

// Credential returns the "<akid>/<scope>" value used both in the
// Authorization header and in a presigned URL's X-Amz-Credential parameter.
func Credential(accessKeyID, timestamp, region, service string) string {
	return accessKeyID + "/" + scope(timestamp, region, service)
}
