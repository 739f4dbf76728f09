package awsenc

import (
	"fmt"
	"time"
)

// Timestamp formats t as the SigV4 "amz-date" form: YYYYMMDD'T'HHMMSS'Z' in UTC.
func Timestamp(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// RFC822 formats t the way S3 expects a Date header: "Mon, 02 Jan 2006 15:04:05 GMT".
func RFC822(t time.Time) string {
	return t.UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")
}

// ISO8601ToUnix parses an STS/IMDS expiration timestamp of the form
// YYYY-MM-DDTHH:MM:SS, with an optional trailing 'Z' (fractional seconds and
// zone offsets, if present, are ignored), returning its Unix seconds. It
// fails if fewer than the six date/time fields can be read.
func ISO8601ToUnix(s string) (int64, error) {
	var year, month, day, hour, minute, second int
	n, err := fmt.Sscanf(s, "%d-%d-%dT%d:%d:%d", &year, &month, &day, &hour, &minute, &second)
	if n != 6 || err != nil {
		return 0, fmt.Errorf("awsenc: cannot parse %q as ISO8601", s)
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	return t.Unix(), nil
}
