package sts

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/fathomdata/s3sign/awscreds"
	"github.com/fathomdata/s3sign/awsenc"
	"github.com/fathomdata/s3sign/s3errors"
)

// credentialsXML mirrors the <Credentials> element found at
// "=AssumeRoleResponse.AssumeRoleResult.Credentials" or
// "=AssumeRoleWithWebIdentityResponse.AssumeRoleWithWebIdentityResult.Credentials".
type credentialsXML struct {
	AccessKeyID     string `xml:"AccessKeyId"`
	SecretAccessKey string `xml:"SecretAccessKey"`
	SessionToken    string `xml:"SessionToken"`
	Expiration      string `xml:"Expiration"`
}

// parseCredentials scans body for the first <Credentials> element,
// independent of its enclosing response/result tags, and converts it to
// awscreds.Credentials.
func parseCredentials(body []byte) (awscreds.Credentials, error) {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			return awscreds.Credentials{}, fmt.Errorf("no Credentials element in response")
		}
		if err != nil {
			return awscreds.Credentials{}, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "Credentials" {
			continue
		}

		var c credentialsXML
		if err := decoder.DecodeElement(&c, &start); err != nil {
			return awscreds.Credentials{}, err
		}

		var expirationUnix int64
		if c.Expiration != "" {
			expirationUnix, err = awsenc.ISO8601ToUnix(c.Expiration)
			if err != nil {
				return awscreds.Credentials{}, fmt.Errorf("parsing Expiration %q: %w", c.Expiration, err)
			}
		}

		return awscreds.Credentials{
			AccessKeyID:     c.AccessKeyID,
			SecretAccessKey: c.SecretAccessKey,
			SessionToken:    c.SessionToken,
			ExpirationUnix:  expirationUnix,
		}, nil
	}
}

// errorXML tolerates both the STS-style <ErrorResponse><Error>...</Error>
// </ErrorResponse> wrapping and the bare S3-style <Error>...</Error>.
type errorXML struct {
	XMLName xml.Name
	Error   struct {
		Code    string `xml:"Code"`
		Message string `xml:"Message"`
	} `xml:"Error"`
	Code    string `xml:"Code"`
	Message string `xml:"Message"`
}

func parseErrorResponse(body []byte, status int) error {
	var e errorXML
	if err := xml.Unmarshal(body, &e); err != nil {
		return fmt.Errorf("%w: http status %d", s3errors.ErrAWS, status)
	}

	code, message := e.Code, e.Message
	if code == "" {
		code, message = e.Error.Code, e.Error.Message
	}
	if code == "" {
		return fmt.Errorf("%w: http status %d", s3errors.ErrAWS, status)
	}
	return s3errors.FromAWSCode(code, message)
}
