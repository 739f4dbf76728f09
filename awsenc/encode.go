// Package awsenc implements the small set of encoders and primitives SigV4
// signing is built from: AWS's own URL-encoding rules, the SigV4 and RFC-822
// timestamp formats, and lowercase-hex SHA-256/HMAC-SHA256 wrappers. Grounded
// on CPLAWSURLEncode, CPLGetAWS_SIGN4_Timestamp, CPLGetLowerCaseHexSHA256 and
// Iso8601ToUnixTime in the original GDAL cpl_aws.cpp.
package awsenc

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const hexDigits = "0123456789ABCDEF"

// URLEncode percent-encodes s per AWS's SigV4 rules: the unreserved set
// (A-Z a-z 0-9 _ - ~ .) passes through unchanged, '/' passes through unless
// encodeSlash is true, and every other byte becomes %XX uppercase hex. The
// input is treated as a raw byte string, not transcoded.
func URLEncode(s string, encodeSlash bool) string {
	var b []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '_' || c == '-' || c == '~' || c == '.':
			b = append(b, c)
		case c == '/':
			if encodeSlash {
				b = append(b, '%', '2', 'F')
			} else {
				b = append(b, c)
			}
		default:
			b = append(b, '%', hexDigits[c>>4], hexDigits[c&0x0f])
		}
	}
	return string(b)
}

// LowerHex renders data as lowercase hex, two nibbles per byte.
func LowerHex(data []byte) string {
	return hex.EncodeToString(data)
}

// SHA256Hex returns the lowercase-hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return LowerHex(sum[:])
}

// HMACSHA256 returns HMAC-SHA256(key, message).
func HMACSHA256(key, message []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}

// UnsignedPayload is the sentinel SigV4 uses in place of a payload hash when
// the payload is not covered by the signature (e.g. presigned URLs).
const UnsignedPayload = "UNSIGNED-PAYLOAD"

// TestBool parses a config-option style boolean the way CPLTestBool does:
// "NO", "FALSE", "OFF" and "0" (case-insensitive) are false; everything else,
// including an empty string, is true.
func TestBool(s string) bool {
	switch strings.ToUpper(s) {
	case "NO", "FALSE", "OFF", "0":
		return false
	default:
		return true
	}
}
