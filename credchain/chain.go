// Package credchain implements the ordered AWS credential-provider chain:
// unsigned requests, explicit static credentials, a cached assumed role,
// config/credentials-file profiles (including role_arn+source_profile and
// role_arn+web_identity_token_file chaining), direct web-identity
// federation, and finally EC2/ECS instance metadata. Grounded on
// VSIS3HandleHelper::GetConfiguration,
// VSIS3HandleHelper::GetOrRefreshTemporaryCredentialsForRole and
// VSIS3HandleHelper::ClearCache in the original GDAL cpl_aws.cpp.
package credchain

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fathomdata/s3sign/awsconfig"
	"github.com/fathomdata/s3sign/awscreds"
	"github.com/fathomdata/s3sign/awsenc"
	"github.com/fathomdata/s3sign/fetch"
	"github.com/fathomdata/s3sign/imds"
	"github.com/fathomdata/s3sign/options"
	"github.com/fathomdata/s3sign/s3errors"
	"github.com/fathomdata/s3sign/sts"
)

// Chain resolves credentials for one logical request path, consulting and
// updating a shared Cache across calls.
type Chain struct {
	cache    *Cache
	fetcher  fetch.Fetcher
	logger   *slog.Logger
	get      awsconfig.Getter
	now      func() int64
	readFile func(string) ([]byte, error)
}

// NewChain builds a Chain with an independent Cache and an environment-only
// Getter by default; override either with WithCache/WithGetter.
func NewChain(opts ...options.Option[Chain]) *Chain {
	c := &Chain{
		cache:    NewCache(),
		fetcher:  fetch.NewHTTPFetcher(0),
		logger:   slog.Default(),
		get:      awsconfig.OSGetter(),
		now:      func() int64 { return time.Now().Unix() },
		readFile: func(path string) ([]byte, error) { return os.ReadFile(path) },
	}
	options.Apply(c, opts...)
	return c
}

// ClearCache erases every cached credential, spec and region.
func (c *Chain) ClearCache() {
	c.cache.Clear()
}

// Resolve runs the seven-step provider chain from spec §4.F, returning
// credentials, the resolved region, and which source produced them.
func (c *Chain) Resolve(ctx context.Context, path string) (awscreds.Credentials, string, Source, error) {
	region := c.get(path, "AWS_REGION", "us-east-1")

	if awsenc.TestBool(c.get(path, "AWS_NO_SIGN_REQUEST", "NO")) {
		return awscreds.Credentials{}, c.finalRegion(path, region), SourceStatic, nil
	}

	if secret := c.get(path, "AWS_SECRET_ACCESS_KEY", ""); secret != "" {
		accessKeyID := c.get(path, "AWS_ACCESS_KEY_ID", "")
		if accessKeyID == "" {
			return awscreds.Credentials{}, "", SourceStatic,
				s3errors.WrapInvalidCredentials("AWS_ACCESS_KEY_ID configuration option not defined")
		}
		creds := awscreds.Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secret,
			SessionToken:    c.get(path, "AWS_SESSION_TOKEN", ""),
		}
		return creds, c.finalRegion(path, region), SourceStatic, nil
	}

	if creds, cachedRegion, ok := c.reuseOrRefreshAssumedRole(ctx, false); ok {
		if cachedRegion != "" {
			region = cachedRegion
		}
		return creds, c.finalRegion(path, region), SourceAssumedRole, nil
	}

	if creds, fileRegion, source, attempted, err := c.resolveFromConfigFiles(ctx, path); attempted {
		if err != nil {
			return awscreds.Credentials{}, "", source, err
		}
		if fileRegion != "" {
			region = fileRegion
		}
		return creds, c.finalRegion(path, region), source, nil
	}

	if awsenc.TestBool(c.get(path, "CPL_AWS_WEB_IDENTITY_ENABLE", "YES")) {
		if creds, err := c.resolveWebIdentity(ctx, path, "", ""); err == nil {
			return creds, c.finalRegion(path, region), SourceWebIdentity, nil
		}
	}

	if creds, err := c.resolveEC2(ctx, path); err == nil {
		return creds, c.finalRegion(path, region), SourceEC2, nil
	}

	return awscreds.Credentials{}, "", SourceStatic, s3errors.WrapInvalidCredentials(
		"AWS_SECRET_ACCESS_KEY and AWS_NO_SIGN_REQUEST configuration options not defined, and no usable profile found")
}

func (c *Chain) finalRegion(path, region string) string {
	if v := c.get(path, "AWS_DEFAULT_REGION", ""); v != "" {
		return v
	}
	return region
}

// reuseOrRefreshAssumedRole reports ok=false whenever the cache holds no
// assumed-role spec, or a refresh attempt failed - either way the caller
// falls through to re-reading the config files, matching the original's
// unconditional fallthrough on a failed GetOrRefreshTemporaryCredentialsForRole.
func (c *Chain) reuseOrRefreshAssumedRole(ctx context.Context, forceRefresh bool) (awscreds.Credentials, string, bool) {
	creds, source, assumedRole, webIdentity, _, region := c.cache.snapshot()
	if assumedRole == nil {
		return awscreds.Credentials{}, "", false
	}
	if !forceRefresh && source == SourceAssumedRole && !creds.Empty() && !creds.ExpiresSoon(c.now(), 60) {
		return creds, region, true
	}

	spec := *assumedRole
	if webIdentity != nil {
		wiCreds, err := c.resolveWebIdentity(ctx, "", webIdentity.RoleARN, webIdentity.TokenFilePath)
		if err != nil {
			return awscreds.Credentials{}, "", false
		}
		spec.SourceCreds = wiCreds
	}

	newCreds, err := c.assumeRole(ctx, &spec)
	if err != nil {
		return awscreds.Credentials{}, "", false
	}
	c.logger.Debug("refreshed assumed role credentials", "role_arn", spec.RoleARN)
	c.cache.store(newCreds, SourceAssumedRole, &spec, webIdentity, region)
	return newCreds, region, true
}

func (c *Chain) resolveFromConfigFiles(ctx context.Context, path string) (awscreds.Credentials, string, Source, bool, error) {
	profile := awsconfig.ResolveProfile(path, c.get, "")
	credsPath, err := awsconfig.DefaultCredentialsPath(path, c.get)
	if err != nil {
		return awscreds.Credentials{}, "", SourceStatic, false, nil
	}
	cfgPath, err := awsconfig.DefaultConfigPath(path, c.get)
	if err != nil {
		return awscreds.Credentials{}, "", SourceStatic, false, nil
	}

	merged, err := awsconfig.Load(profile, credsPath, cfgPath, c.logger)
	if err != nil {
		return awscreds.Credentials{}, "", SourceStatic, false, nil
	}

	success := merged.HasStaticKeys() || (merged.RoleARN != "" && merged.SourceProfile != "")
	if !success {
		return awscreds.Credentials{}, "", SourceStatic, false, nil
	}

	if merged.HasStaticKeys() {
		creds := awscreds.Credentials{
			AccessKeyID:     merged.AccessKeyID,
			SecretAccessKey: merged.SecretAccessKey,
			SessionToken:    merged.SessionToken,
		}
		return creds, merged.Region, SourceStatic, true, nil
	}

	creds, region, source, err := c.resolveRoleChaining(ctx, path, merged, credsPath, cfgPath)
	return creds, region, source, true, err
}

// resolveRoleChaining implements the role_arn+source_profile branch of
// GetConfiguration: the source profile is checked for its own
// role_arn+web_identity_token_file pair first (in which case that profile's
// credentials come from AssumeRoleWithWebIdentity), else its static key
// pair is re-read from the credentials file alone, then AssumeRole is
// called with whichever source credentials resulted.
func (c *Chain) resolveRoleChaining(ctx context.Context, path string, merged awsconfig.Profile, credsPath, cfgPath string) (awscreds.Credentials, string, Source, error) {
	var sourceCreds awscreds.Credentials
	var webIdentitySpec *WebIdentitySpec

	if spProfile, err := awsconfig.Load(merged.SourceProfile, credsPath, cfgPath, c.logger); err == nil &&
		spProfile.RoleARN != "" && spProfile.WebIdentityTokenFile != "" {
		if creds, wiErr := c.resolveWebIdentity(ctx, path, spProfile.RoleARN, spProfile.WebIdentityTokenFile); wiErr == nil {
			sourceCreds = creds
			webIdentitySpec = &WebIdentitySpec{RoleARN: spProfile.RoleARN, TokenFilePath: spProfile.WebIdentityTokenFile}
		}
	}

	if webIdentitySpec == nil {
		spCreds, err := awsconfig.LoadCredentialsOnly(merged.SourceProfile, credsPath)
		if err != nil || !spCreds.HasStaticKeys() {
			return awscreds.Credentials{}, "", SourceAssumedRole,
				s3errors.WrapInvalidCredentials("cannot retrieve credentials for source profile %s", merged.SourceProfile)
		}
		sourceCreds = awscreds.Credentials{
			AccessKeyID:     spCreds.AccessKeyID,
			SecretAccessKey: spCreds.SecretAccessKey,
			SessionToken:    spCreds.SessionToken,
		}
	}

	spec := &AssumedRoleSpec{
		RoleARN:         merged.RoleARN,
		ExternalID:      merged.ExternalID,
		MFASerial:       merged.MFASerial,
		RoleSessionName: merged.RoleSessionName,
		SourceCreds:     sourceCreds,
	}
	creds, err := c.assumeRole(ctx, spec)
	if err != nil {
		return awscreds.Credentials{}, "", SourceAssumedRole, err
	}

	c.logger.Debug("using assumed role", "role_arn", merged.RoleARN)
	c.cache.store(creds, SourceAssumedRole, spec, webIdentitySpec, merged.Region)
	return creds, merged.Region, SourceAssumedRole, nil
}

func (c *Chain) assumeRole(ctx context.Context, spec *AssumedRoleSpec) (awscreds.Credentials, error) {
	timestamp := c.get("", "AWS_TIMESTAMP", "")
	if timestamp == "" {
		timestamp = awsenc.Timestamp(time.Unix(c.now(), 0).UTC())
	}
	return sts.AssumeRole(ctx, c.fetcher, sts.AssumeRoleParams{
		RoleARN:           spec.RoleARN,
		ExternalID:        spec.ExternalID,
		MFASerial:         spec.MFASerial,
		RoleSessionName:   spec.RoleSessionName,
		Region:            c.get("", "AWS_STS_REGION", "us-east-1"),
		Host:              c.get("", "AWS_STS_ENDPOINT", "sts.amazonaws.com"),
		UseHTTPS:          awsenc.TestBool(c.get("", "AWS_HTTPS", "YES")),
		SourceCredentials: spec.SourceCreds,
		Timestamp:         timestamp,
	})
}

// resolveWebIdentity exchanges a web-identity token file for temporary
// credentials. roleARNIn/tokenFileIn, when non-empty, override the
// AWS_ROLE_ARN/AWS_WEB_IDENTITY_TOKEN_FILE options - used when the role and
// token file come from a source profile rather than the environment.
func (c *Chain) resolveWebIdentity(ctx context.Context, path, roleARNIn, tokenFileIn string) (awscreds.Credentials, error) {
	roleARN := roleARNIn
	if roleARN == "" {
		roleARN = c.get(path, "AWS_ROLE_ARN", "")
	}
	if roleARN == "" {
		return awscreds.Credentials{}, fmt.Errorf("credchain: AWS_ROLE_ARN configuration option not defined")
	}

	tokenFile := tokenFileIn
	if tokenFile == "" {
		tokenFile = c.get(path, "AWS_WEB_IDENTITY_TOKEN_FILE", "")
	}
	if tokenFile == "" {
		return awscreds.Credentials{}, fmt.Errorf("credchain: AWS_WEB_IDENTITY_TOKEN_FILE configuration option not defined")
	}

	rootURL := c.get(path, "CPL_AWS_STS_ROOT_URL", "")
	if rootURL == "" {
		region := c.get(path, "AWS_REGION", "us-east-1")
		if c.get(path, "AWS_STS_REGIONAL_ENDPOINTS", "regional") == "regional" {
			rootURL = "https://sts." + region + ".amazonaws.com"
		} else {
			rootURL = "https://sts.amazonaws.com"
		}
	}

	tokenBytes, err := c.readFile(tokenFile)
	if err != nil {
		return awscreds.Credentials{}, fmt.Errorf("credchain: reading web identity token file %s: %w", tokenFile, err)
	}
	token := strings.TrimSuffix(string(tokenBytes), "\n")
	if token == "" {
		return awscreds.Credentials{}, fmt.Errorf("credchain: %s is empty", tokenFile)
	}

	return sts.AssumeRoleWithWebIdentity(ctx, c.fetcher, sts.AssumeRoleWithWebIdentityParams{
		RoleARN: roleARN,
		Token:   token,
		RootURL: rootURL,
	})
}

func (c *Chain) resolveEC2(ctx context.Context, path string) (awscreds.Credentials, error) {
	if cached, source, _, _, _, _ := c.cache.snapshot(); source == SourceEC2 && !cached.Empty() && !cached.ExpiresSoon(c.now(), 60) {
		return cached, nil
	}

	cachedRole := c.cache.iamRoleName()
	p := imds.Params{
		RootURL:             c.get(path, "CPL_AWS_EC2_API_ROOT_URL", ""),
		ECSRelativeURI:      c.get(path, "AWS_CONTAINER_CREDENTIALS_RELATIVE_URI", ""),
		AutodetectEC2:       c.get(path, "CPL_AWS_AUTODETECT_EC2", ""),
		CheckHypervisorUUID: c.get(path, "CPL_AWS_CHECK_HYPERVISOR_UUID", ""),
	}
	creds, role, err := imds.FetchCredentials(ctx, c.fetcher, c.logger, p, cachedRole)
	if role != "" {
		c.cache.setIAMRole(role)
	}
	if err != nil {
		return awscreds.Credentials{}, err
	}
	c.cache.store(creds, SourceEC2, nil, nil, "")
	return creds, nil
}
