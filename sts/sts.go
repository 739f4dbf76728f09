// Package sts issues the two STS calls the credential chain needs:
// AssumeRole (a signed GET, used for role-chaining from a source profile's
// static or cached credentials) and AssumeRoleWithWebIdentity (an
// unauthenticated GET, used for OIDC/IRSA-style federation). Grounded on
// GetTemporaryCredentialsForRole and
// VSIS3HandleHelper::GetConfigurationFromAssumeRoleWithWebIdentity in the
// original GDAL cpl_aws.cpp.
package sts

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fathomdata/s3sign/awscreds"
	"github.com/fathomdata/s3sign/awsenc"
	"github.com/fathomdata/s3sign/fetch"
	"github.com/fathomdata/s3sign/sigv4"
)

// DefaultRoleSessionName is used when AssumeRoleParams.RoleSessionName is
// empty.
const DefaultRoleSessionName = "GDAL-session"

// webIdentitySessionName is fixed for AssumeRoleWithWebIdentity calls,
// matching the literal "gdal" the original source always sends.
const webIdentitySessionName = "gdal"

// AssumeRoleParams carries the inputs to a signed AssumeRole call.
type AssumeRoleParams struct {
	RoleARN         string
	ExternalID      string
	MFASerial       string
	RoleSessionName string

	Region string // AWS_STS_REGION, default "us-east-1"
	Host   string // AWS_STS_ENDPOINT, default "sts.amazonaws.com"
	UseHTTPS bool

	SourceCredentials awscreds.Credentials
	Timestamp         string // SigV4 amz-date; caller supplies so it's testable
}

func sortedQueryString(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(awsenc.URLEncode(params[k], true))
	}
	return b.String()
}

// AssumeRole requests temporary credentials for an IAM role, signing the
// request with p.SourceCredentials. bAddHeaderAMZContentSHA256 is false for
// this call, matching the original: the payload hash is still computed and
// placed at the end of the canonical request, but x-amz-content-sha256 and
// x-amz-date are not folded into the signed-headers set.
func AssumeRole(ctx context.Context, fetcher fetch.Fetcher, p AssumeRoleParams) (awscreds.Credentials, error) {
	region := p.Region
	if region == "" {
		region = "us-east-1"
	}
	host := p.Host
	if host == "" {
		host = "sts.amazonaws.com"
	}
	sessionName := p.RoleSessionName
	if sessionName == "" {
		sessionName = DefaultRoleSessionName
	}

	params := map[string]string{
		"Version":         "2011-06-15",
		"Action":          "AssumeRole",
		"RoleArn":         p.RoleARN,
		"RoleSessionName": sessionName,
	}
	if p.ExternalID != "" {
		params["ExternalId"] = p.ExternalID
	}
	if p.MFASerial != "" {
		params["SerialNumber"] = p.MFASerial
	}
	canonicalQueryString := sortedQueryString(params)

	sigReq := sigv4.Request{
		SecretAccessKey:      p.SourceCredentials.SecretAccessKey,
		AccessKeyID:          p.SourceCredentials.AccessKeyID,
		SessionToken:         p.SourceCredentials.SessionToken,
		Region:               region,
		Service:              "sts",
		Verb:                 "GET",
		Host:                 host,
		CanonicalURI:         "/",
		CanonicalQueryString: canonicalQueryString,
		PayloadSHA256Hex:     awsenc.SHA256Hex([]byte{}),
		IncludeSHA256Header:  false,
		Timestamp:            p.Timestamp,
	}
	authorization := sigv4.Authorization(sigReq)

	headers := map[string]string{
		"X-Amz-Date":    p.Timestamp,
		"Authorization": authorization,
	}
	if p.SourceCredentials.SessionToken != "" {
		headers["X-Amz-Security-Token"] = p.SourceCredentials.SessionToken
	}

	scheme := "https"
	if !p.UseHTTPS {
		scheme = "http"
	}
	requestURL := scheme + "://" + host + "/?" + canonicalQueryString

	resp, err := fetcher.Fetch(ctx, fetch.Request{Method: "GET", URL: requestURL, Headers: headers})
	if err != nil {
		return awscreds.Credentials{}, fmt.Errorf("sts: AssumeRole request: %w", err)
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return awscreds.Credentials{}, parseErrorResponse(resp.Body, resp.Status)
	}

	creds, err := parseCredentials(resp.Body)
	if err != nil {
		return awscreds.Credentials{}, fmt.Errorf("sts: AssumeRole response: %w", err)
	}
	return creds, nil
}

// AssumeRoleWithWebIdentityParams carries the inputs to an unsigned
// AssumeRoleWithWebIdentity call.
type AssumeRoleWithWebIdentityParams struct {
	RoleARN   string
	Token     string
	RootURL   string // e.g. "https://sts.us-east-1.amazonaws.com"
}

// AssumeRoleWithWebIdentity exchanges an OIDC token for temporary
// credentials. The request is not signed: STS authenticates the caller via
// the web identity token itself.
func AssumeRoleWithWebIdentity(ctx context.Context, fetcher fetch.Fetcher, p AssumeRoleWithWebIdentityParams) (awscreds.Credentials, error) {
	requestURL := p.RootURL + "/?Action=AssumeRoleWithWebIdentity&RoleSessionName=" + webIdentitySessionName +
		"&Version=2011-06-15&RoleArn=" + awsenc.URLEncode(p.RoleARN, true) + "&WebIdentityToken=" + awsenc.URLEncode(p.Token, true)

	resp, err := fetcher.Fetch(ctx, fetch.Request{Method: "GET", URL: requestURL})
	if err != nil {
		return awscreds.Credentials{}, fmt.Errorf("sts: AssumeRoleWithWebIdentity request: %w", err)
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return awscreds.Credentials{}, parseErrorResponse(resp.Body, resp.Status)
	}

	creds, err := parseCredentials(resp.Body)
	if err != nil {
		return awscreds.Credentials{}, fmt.Errorf("sts: AssumeRoleWithWebIdentity response: %w", err)
	}
	return creds, nil
}
