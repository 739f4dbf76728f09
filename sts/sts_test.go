package sts_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/fathomdata/s3sign/awscreds"
	"github.com/fathomdata/s3sign/fetch"
	"github.com/fathomdata/s3sign/sts"
)

type STSTestSuite struct {
	suite.Suite
}

func (s *STSTestSuite) TestAssumeRoleParsesCredentials() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Equal("GET", r.Method)
		s.Contains(r.Header.Get("Authorization"), "AWS4-HMAC-SHA256 Credential=AKID/")
		s.Equal("Action=AssumeRole&ExternalId=ext&RoleArn=arn%3Aaws%3Aiam%3A%3A1234%3Arole%2Fx&RoleSessionName=sess&Version=2011-06-15", r.URL.RawQuery)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<AssumeRoleResponse><AssumeRoleResult><Credentials>` +
			`<AccessKeyId>TEMPAKID</AccessKeyId>` +
			`<SecretAccessKey>TEMPSECRET</SecretAccessKey>` +
			`<SessionToken>TEMPTOKEN</SessionToken>` +
			`<Expiration>2017-07-03T22:42:58Z</Expiration>` +
			`</Credentials></AssumeRoleResult></AssumeRoleResponse>`))
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	creds, err := sts.AssumeRole(context.Background(), fetch.NewHTTPFetcher(0), sts.AssumeRoleParams{
		RoleARN:           "arn:aws:iam::1234:role/x",
		ExternalID:        "ext",
		RoleSessionName:   "sess",
		Region:            "us-east-1",
		Host:              host,
		UseHTTPS:          false,
		SourceCredentials: awscreds.Credentials{AccessKeyID: "AKID", SecretAccessKey: "SECRET"},
		Timestamp:         "20150830T123600Z",
	})
	s.Require().NoError(err)
	s.Equal("TEMPAKID", creds.AccessKeyID)
	s.Equal("TEMPSECRET", creds.SecretAccessKey)
	s.Equal("TEMPTOKEN", creds.SessionToken)
	s.NotZero(creds.ExpirationUnix)
}

func (s *STSTestSuite) TestAssumeRoleMapsErrorResponse() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<ErrorResponse><Error><Code>AccessDenied</Code><Message>nope</Message></Error></ErrorResponse>`))
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	_, err := sts.AssumeRole(context.Background(), fetch.NewHTTPFetcher(0), sts.AssumeRoleParams{
		RoleARN:           "arn:aws:iam::1234:role/x",
		Host:              host,
		SourceCredentials: awscreds.Credentials{AccessKeyID: "AKID", SecretAccessKey: "SECRET"},
		Timestamp:         "20150830T123600Z",
	})
	s.Require().Error(err)
	s.Contains(err.Error(), "access denied")
}

func (s *STSTestSuite) TestAssumeRoleWithWebIdentityParsesCredentials() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Equal("GET", r.Method)
		s.Empty(r.Header.Get("Authorization"))
		s.Contains(r.URL.RawQuery, "Action=AssumeRoleWithWebIdentity")
		s.Contains(r.URL.RawQuery, "RoleSessionName=gdal")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<AssumeRoleWithWebIdentityResponse><AssumeRoleWithWebIdentityResult><Credentials>` +
			`<AccessKeyId>WIDAKID</AccessKeyId>` +
			`<SecretAccessKey>WIDSECRET</SecretAccessKey>` +
			`<SessionToken>WIDTOKEN</SessionToken>` +
			`<Expiration>2017-07-03T22:42:58Z</Expiration>` +
			`</Credentials></AssumeRoleWithWebIdentityResult></AssumeRoleWithWebIdentityResponse>`))
	}))
	defer srv.Close()

	creds, err := sts.AssumeRoleWithWebIdentity(context.Background(), fetch.NewHTTPFetcher(0), sts.AssumeRoleWithWebIdentityParams{
		RoleARN: "arn:aws:iam::1234:role/x",
		Token:   "token-contents",
		RootURL: srv.URL,
	})
	s.Require().NoError(err)
	s.Equal("WIDAKID", creds.AccessKeyID)
	s.Equal("WIDSECRET", creds.SecretAccessKey)
	s.Equal("WIDTOKEN", creds.SessionToken)
}

func TestSTSTestSuite(t *testing.T) {
	suite.Run(t, new(STSTestSuite))
}
