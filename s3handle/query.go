package s3handle

import (
	"sort"
	"strings"

	"github.com/fathomdata/s3sign/awsenc"
)

// QueryParam is one entry of a Handle's ordered query-parameter map. Order of
// insertion is preserved for iteration, but the canonical query string (and
// the query component of a built URL) is always emitted key-sorted, per
// spec's "query parameters must be sorted by key" rule.
type QueryParam struct {
	Name  string
	Value string
}

// buildQueryString url-encodes and joins params, sorted by (already-encoded)
// key, as "&"-separated "key=value" pairs.
func buildQueryString(params []QueryParam) string {
	if len(params) == 0 {
		return ""
	}
	encoded := make([]QueryParam, len(params))
	for i, p := range params {
		encoded[i] = QueryParam{Name: awsenc.URLEncode(p.Name, true), Value: awsenc.URLEncode(p.Value, true)}
	}
	sort.Slice(encoded, func(i, j int) bool { return encoded[i].Name < encoded[j].Name })

	var b strings.Builder
	for i, p := range encoded {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.Name)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	return b.String()
}
