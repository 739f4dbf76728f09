// Package imds resolves credentials from the EC2/ECS instance metadata
// service: an IMDSv2 token fetch with IMDSv1 fallback, the ECS
// container-credentials shortcut, and a pre-flight heuristic that avoids a
// network round trip on hosts that are obviously not EC2 instances.
// Grounded on GetConfigurationFromEC2 and IsMachinePotentiallyEC2Instance in
// the original GDAL cpl_aws.cpp.
package imds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/fathomdata/s3sign/awscreds"
	"github.com/fathomdata/s3sign/awsenc"
	"github.com/fathomdata/s3sign/fetch"
)

// DefaultRootURL is the EC2 instance metadata service address.
const DefaultRootURL = "http://169.254.169.254"

// ecsCredentialsHost is the fixed ECS task-credentials endpoint; relative to
// it, AWS_CONTAINER_CREDENTIALS_RELATIVE_URI names the actual path.
const ecsCredentialsHost = "http://169.254.170.2"

// Params configures one metadata-service resolution attempt. Empty string
// fields take the same defaults CPLGetConfigOption would apply.
type Params struct {
	// RootURL overrides the EC2 metadata root (CPL_AWS_EC2_API_ROOT_URL).
	RootURL string
	// ECSRelativeURI, if set, takes the ECS container-credentials shortcut
	// instead of talking to the EC2 metadata service directly
	// (AWS_CONTAINER_CREDENTIALS_RELATIVE_URI). Only honored when RootURL is
	// unset/default, matching the original.
	ECSRelativeURI string
	// AutodetectEC2 is the raw CPL_AWS_AUTODETECT_EC2 value ("" means "YES").
	AutodetectEC2 string
	// CheckHypervisorUUID is the raw, deprecated CPL_AWS_CHECK_HYPERVISOR_UUID
	// value; "" means unset.
	CheckHypervisorUUID string
}

// probeLinuxHypervisor distinguishes Xen-hypervisor EC2 instances (via
// /sys/hypervisor/uuid) from Nitro-hypervisor ones (via
// /sys/devices/virtual/dmi/id/sys_vendor). If neither file exists, this
// host might still be EC2 behind something that hides both; fall back to
// trying the network. Also used, under Windows, for hosts running under
// Wine, where the registry-reported product UUID isn't meaningful and
// GDAL's cpl_aws.cpp falls back to this same sysfs probe.
func probeLinuxHypervisor() bool {
	if data, err := os.ReadFile("/sys/hypervisor/uuid"); err == nil {
		return len(data) >= 3 && strings.EqualFold(string(data[:3]), "ec2")
	}
	if data, err := os.ReadFile("/sys/devices/virtual/dmi/id/sys_vendor"); err == nil {
		return len(data) >= 10 && strings.EqualFold(string(data[:10]), "Amazon EC2")
	}
	return true
}

func isPotentiallyEC2Instance(p Params, logger *slog.Logger) bool {
	autodetect := p.AutodetectEC2
	if autodetect == "" {
		autodetect = "YES"
	}
	if !awsenc.TestBool(autodetect) {
		return true
	}
	if p.CheckHypervisorUUID != "" {
		logger.Debug("CPL_AWS_CHECK_HYPERVISOR_UUID is deprecated, use CPL_AWS_AUTODETECT_EC2 instead")
		if !awsenc.TestBool(p.CheckHypervisorUUID) {
			return true
		}
	}
	return probeHostIsEC2()
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// fetchIMDSv2Token requests a short-lived token via the IMDSv2 PUT handshake.
// Returns "" (not an error) on any failure: the caller falls back to
// unauthenticated IMDSv1 requests, matching the original's tolerance for
// hosts that don't implement IMDSv2 yet.
func fetchIMDSv2Token(ctx context.Context, fetcher fetch.Fetcher, logger *slog.Logger, rootURL string) string {
	resp, err := fetcher.Fetch(ctx, fetch.Request{
		Method:  "PUT",
		URL:     rootURL + "/latest/api/token",
		Headers: map[string]string{"X-aws-ec2-metadata-token-ttl-seconds": "10"},
		Timeout: time.Second,
	})
	if err == nil && resp.Status >= 200 && resp.Status < 300 {
		return string(resp.Body)
	}
	if err == nil || !isTimeout(err) {
		return ""
	}

	// /latest/api/token can time out inside a container with no host
	// networking even though plain metadata GETs succeed; log the Docker
	// hint instead of surfacing it as a hard failure.
	probeResp, probeErr := fetcher.Fetch(ctx, fetch.Request{
		Method:  "GET",
		URL:     rootURL + "/latest/meta-data",
		Timeout: time.Second,
	})
	if probeErr == nil && probeResp.Status >= 200 && probeResp.Status < 300 {
		if _, statErr := os.Stat("/.dockerenv"); statErr == nil {
			logger.Debug("imdsv2 token request timed out but /latest/meta-data succeeded; falling back to imdsv1, try running the container with --network=host")
		} else {
			logger.Debug("imdsv2 token request timed out but /latest/meta-data succeeded; falling back to imdsv1, are you running inside a container with no host networking?")
		}
	}
	return ""
}

func fetchIAMRole(ctx context.Context, fetcher fetch.Fetcher, rootURL, token string) (string, error) {
	headers := map[string]string{}
	if token != "" {
		headers["X-aws-ec2-metadata-token"] = token
	}
	resp, err := fetcher.Fetch(ctx, fetch.Request{
		Method:  "GET",
		URL:     rootURL + "/latest/meta-data/iam/security-credentials/",
		Headers: headers,
		Timeout: time.Second,
	})
	if err != nil {
		return "", err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return "", fmt.Errorf("http status %d", resp.Status)
	}
	return strings.TrimSpace(string(resp.Body)), nil
}

type credentialsJSON struct {
	AccessKeyID     string `json:"AccessKeyId"`
	SecretAccessKey string `json:"SecretAccessKey"`
	Token           string `json:"Token"`
	Expiration      string `json:"Expiration"`
}

func parseCredentialsJSON(body []byte) (awscreds.Credentials, error) {
	var c credentialsJSON
	if err := json.Unmarshal(body, &c); err != nil {
		return awscreds.Credentials{}, fmt.Errorf("imds: parsing credentials response: %w", err)
	}
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return awscreds.Credentials{}, fmt.Errorf("imds: credentials response missing AccessKeyId/SecretAccessKey")
	}
	var expirationUnix int64
	if c.Expiration != "" {
		var err error
		expirationUnix, err = awsenc.ISO8601ToUnix(c.Expiration)
		if err != nil {
			return awscreds.Credentials{}, fmt.Errorf("imds: parsing Expiration %q: %w", c.Expiration, err)
		}
	}
	return awscreds.Credentials{
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		SessionToken:    c.Token,
		ExpirationUnix:  expirationUnix,
	}, nil
}

// FetchCredentials resolves credentials from ECS container credentials (if
// ECSRelativeURI is set) or the EC2 instance metadata service. cachedIAMRole
// lets the caller avoid re-discovering the role name on every call; the
// (possibly newly-discovered) role name is always returned so the caller can
// update its cache, even on error paths where it was reused unchanged.
func FetchCredentials(ctx context.Context, fetcher fetch.Fetcher, logger *slog.Logger, p Params, cachedIAMRole string) (awscreds.Credentials, string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	rootURL := p.RootURL
	if rootURL == "" {
		rootURL = DefaultRootURL
	}

	var refreshURL, token string
	if rootURL == DefaultRootURL && p.ECSRelativeURI != "" {
		refreshURL = ecsCredentialsHost + p.ECSRelativeURI
	} else {
		if !isPotentiallyEC2Instance(p, logger) {
			return awscreds.Credentials{}, cachedIAMRole, errors.New("imds: host does not appear to be an ec2 instance")
		}

		token = fetchIMDSv2Token(ctx, fetcher, logger, rootURL)

		iamRole := cachedIAMRole
		if iamRole == "" {
			var err error
			iamRole, err = fetchIAMRole(ctx, fetcher, rootURL, token)
			if err != nil || iamRole == "" {
				return awscreds.Credentials{}, cachedIAMRole, fmt.Errorf("imds: discovering iam role: %w", err)
			}
		}
		cachedIAMRole = iamRole
		refreshURL = rootURL + "/latest/meta-data/iam/security-credentials/" + iamRole
	}

	headers := map[string]string{}
	if token != "" {
		headers["X-aws-ec2-metadata-token"] = token
	}
	resp, err := fetcher.Fetch(ctx, fetch.Request{Method: "GET", URL: refreshURL, Headers: headers})
	if err != nil {
		return awscreds.Credentials{}, cachedIAMRole, fmt.Errorf("imds: fetching credentials: %w", err)
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return awscreds.Credentials{}, cachedIAMRole, fmt.Errorf("imds: fetching credentials: http status %d", resp.Status)
	}

	creds, err := parseCredentialsJSON(resp.Body)
	if err != nil {
		return awscreds.Credentials{}, cachedIAMRole, err
	}
	return creds, cachedIAMRole, nil
}
