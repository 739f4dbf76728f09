package credchain_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/fathomdata/s3sign/awsconfig"
	"github.com/fathomdata/s3sign/credchain"
	"github.com/fathomdata/s3sign/fetch"
)

func mapGetter(values map[string]string) awsconfig.Getter {
	return func(_, key, def string) string {
		if v, ok := values[key]; ok {
			return v
		}
		return def
	}
}

func assumeRoleServer(t *testing.T, accessKeyID, secret, token, expiration string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<AssumeRoleResponse><AssumeRoleResult><Credentials>` +
			`<AccessKeyId>` + accessKeyID + `</AccessKeyId>` +
			`<SecretAccessKey>` + secret + `</SecretAccessKey>` +
			`<SessionToken>` + token + `</SessionToken>` +
			`<Expiration>` + expiration + `</Expiration>` +
			`</Credentials></AssumeRoleResult></AssumeRoleResponse>`))
	}))
}

type ChainTestSuite struct {
	suite.Suite
	dir string
}

func (s *ChainTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
}

func (s *ChainTestSuite) writeFile(name, content string) string {
	path := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (s *ChainTestSuite) TestNoSignRequestReturnsEmptyStaticCredentials() {
	chain := credchain.NewChain(credchain.WithGetter(mapGetter(map[string]string{
		"AWS_NO_SIGN_REQUEST": "YES",
	})))

	creds, region, source, err := chain.Resolve(context.Background(), "")
	s.Require().NoError(err)
	s.True(creds.Empty())
	s.Equal("us-east-1", region)
	s.Equal(credchain.SourceStatic, source)
}

func (s *ChainTestSuite) TestExplicitStaticCredentials() {
	chain := credchain.NewChain(credchain.WithGetter(mapGetter(map[string]string{
		"AWS_SECRET_ACCESS_KEY": "SECRET",
		"AWS_ACCESS_KEY_ID":     "AKID",
		"AWS_SESSION_TOKEN":     "TOKEN",
		"AWS_REGION":            "eu-west-1",
	})))

	creds, region, source, err := chain.Resolve(context.Background(), "")
	s.Require().NoError(err)
	s.Equal("AKID", creds.AccessKeyID)
	s.Equal("SECRET", creds.SecretAccessKey)
	s.Equal("TOKEN", creds.SessionToken)
	s.Equal("eu-west-1", region)
	s.Equal(credchain.SourceStatic, source)
}

func (s *ChainTestSuite) TestExplicitSecretWithoutAccessKeyIDFails() {
	chain := credchain.NewChain(credchain.WithGetter(mapGetter(map[string]string{
		"AWS_SECRET_ACCESS_KEY": "SECRET",
	})))

	_, _, _, err := chain.Resolve(context.Background(), "")
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid credentials")
}

func (s *ChainTestSuite) TestCachedAssumedRoleReusedBeforeExpiryMargin() {
	srv := assumeRoleServer(s.T(), "SHOULD_NOT_BE_CALLED", "x", "x", "2017-07-03T22:42:58Z")
	defer srv.Close()

	expiration := int64(1000)
	cache := credchain.NewCache()
	cache.SeedAssumedRole(&credchain.AssumedRoleSpec{RoleARN: "arn:aws:iam::1234:role/x"},
		"PREVAKID", "PREVSECRET", expiration, "us-east-1")

	chain := credchain.NewChain(
		credchain.WithCache(cache),
		credchain.WithFetcher(fetch.NewHTTPFetcher(0)),
		credchain.WithClock(func() int64 { return expiration - 61 }),
		credchain.WithGetter(mapGetter(map[string]string{"AWS_STS_ENDPOINT": strings.TrimPrefix(srv.URL, "http://")})),
	)

	creds, _, source, err := chain.Resolve(context.Background(), "")
	s.Require().NoError(err)
	s.Equal(credchain.SourceAssumedRole, source)
	s.Equal("PREVAKID", creds.AccessKeyID)
}

func (s *ChainTestSuite) TestCachedAssumedRoleRefreshedPastExpiryMargin() {
	srv := assumeRoleServer(s.T(), "REFRESHEDAKID", "REFRESHEDSECRET", "REFRESHEDTOKEN", "2017-07-03T22:42:58Z")
	defer srv.Close()

	expiration := int64(1000)
	cache := credchain.NewCache()
	cache.SeedAssumedRole(&credchain.AssumedRoleSpec{
		RoleARN:     "arn:aws:iam::1234:role/x",
		SourceCreds: credchain.StaticSourceCreds("AKID", "SECRET"),
	}, "PREVAKID", "PREVSECRET", expiration, "us-east-1")

	chain := credchain.NewChain(
		credchain.WithCache(cache),
		credchain.WithFetcher(fetch.NewHTTPFetcher(0)),
		credchain.WithClock(func() int64 { return expiration - 59 }),
		credchain.WithGetter(mapGetter(map[string]string{
			"AWS_STS_ENDPOINT": strings.TrimPrefix(srv.URL, "http://"),
			"AWS_HTTPS":        "NO",
		})),
	)

	creds, _, source, err := chain.Resolve(context.Background(), "")
	s.Require().NoError(err)
	s.Equal(credchain.SourceAssumedRole, source)
	s.Equal("REFRESHEDAKID", creds.AccessKeyID)
}

func (s *ChainTestSuite) TestConfigFileStaticCredentials() {
	credsPath := s.writeFile("credentials", "[default]\naws_access_key_id = AKID\naws_secret_access_key = SECRET\n")
	cfgPath := s.writeFile("config", "[default]\nregion = ap-south-1\n")

	chain := credchain.NewChain(credchain.WithGetter(mapGetter(map[string]string{
		"CPL_AWS_CREDENTIALS_FILE": credsPath,
		"AWS_CONFIG_FILE":          cfgPath,
	})))

	creds, region, source, err := chain.Resolve(context.Background(), "")
	s.Require().NoError(err)
	s.Equal("AKID", creds.AccessKeyID)
	s.Equal("ap-south-1", region)
	s.Equal(credchain.SourceStatic, source)
}

func (s *ChainTestSuite) TestConfigFileRoleArnWithSourceProfile() {
	credsPath := s.writeFile("credentials", "[base]\naws_access_key_id = BASEAKID\naws_secret_access_key = BASESECRET\n")
	cfgPath := s.writeFile("config", "[default]\nrole_arn = arn:aws:iam::1234:role/x\nsource_profile = base\n")

	srv := assumeRoleServer(s.T(), "CHAINAKID", "CHAINSECRET", "CHAINTOKEN", "2017-07-03T22:42:58Z")
	defer srv.Close()

	chain := credchain.NewChain(credchain.WithGetter(mapGetter(map[string]string{
		"CPL_AWS_CREDENTIALS_FILE": credsPath,
		"AWS_CONFIG_FILE":          cfgPath,
		"AWS_STS_ENDPOINT":         strings.TrimPrefix(srv.URL, "http://"),
		"AWS_HTTPS":                "NO",
	})))

	creds, _, source, err := chain.Resolve(context.Background(), "")
	s.Require().NoError(err)
	s.Equal(credchain.SourceAssumedRole, source)
	s.Equal("CHAINAKID", creds.AccessKeyID)
}

func (s *ChainTestSuite) TestConfigFileRoleArnMissingSourceProfileFallsThrough() {
	// role_arn alone (no source_profile, no static keys) is not a success
	// per GetConfigurationFromAWSConfigFiles; the chain must fall through
	// past the config-file step to web identity/EC2, and fail there too.
	cfgPath := s.writeFile("config", "[default]\nrole_arn = arn:aws:iam::1234:role/x\n")
	credsPath := filepath.Join(s.dir, "no-credentials")

	chain := credchain.NewChain(credchain.WithGetter(mapGetter(map[string]string{
		"CPL_AWS_CREDENTIALS_FILE":        credsPath,
		"AWS_CONFIG_FILE":                 cfgPath,
		"CPL_AWS_WEB_IDENTITY_ENABLE":     "NO",
		"CPL_AWS_AUTODETECT_EC2":          "NO",
	})))

	_, _, _, err := chain.Resolve(context.Background(), "")
	s.Require().Error(err)
}

func (s *ChainTestSuite) TestDirectWebIdentity() {
	tokenPath := s.writeFile("token", "token-contents\n")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Empty(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<AssumeRoleWithWebIdentityResponse><AssumeRoleWithWebIdentityResult><Credentials>` +
			`<AccessKeyId>WIDAKID</AccessKeyId><SecretAccessKey>WIDSECRET</SecretAccessKey>` +
			`<SessionToken>WIDTOKEN</SessionToken><Expiration>2017-07-03T22:42:58Z</Expiration>` +
			`</Credentials></AssumeRoleWithWebIdentityResult></AssumeRoleWithWebIdentityResponse>`))
	}))
	defer srv.Close()

	credsPath := filepath.Join(s.dir, "no-credentials")
	cfgPath := filepath.Join(s.dir, "no-config")

	chain := credchain.NewChain(credchain.WithGetter(mapGetter(map[string]string{
		"CPL_AWS_CREDENTIALS_FILE": credsPath,
		"AWS_CONFIG_FILE":          cfgPath,
		"AWS_ROLE_ARN":             "arn:aws:iam::1234:role/x",
		"AWS_WEB_IDENTITY_TOKEN_FILE": tokenPath,
		"CPL_AWS_STS_ROOT_URL":     srv.URL,
	})))

	creds, _, source, err := chain.Resolve(context.Background(), "")
	s.Require().NoError(err)
	s.Equal(credchain.SourceWebIdentity, source)
	s.Equal("WIDAKID", creds.AccessKeyID)
}

func (s *ChainTestSuite) TestEC2Fallback() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/latest/api/token":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("tok"))
		case r.URL.Path == "/latest/meta-data/iam/security-credentials/":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ec2-role"))
		case r.URL.Path == "/latest/meta-data/iam/security-credentials/ec2-role":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"AccessKeyId":"EC2AKID","SecretAccessKey":"EC2SECRET"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	credsPath := filepath.Join(s.dir, "no-credentials")
	cfgPath := filepath.Join(s.dir, "no-config")

	chain := credchain.NewChain(credchain.WithGetter(mapGetter(map[string]string{
		"CPL_AWS_CREDENTIALS_FILE":   credsPath,
		"AWS_CONFIG_FILE":            cfgPath,
		"CPL_AWS_WEB_IDENTITY_ENABLE": "NO",
		"CPL_AWS_AUTODETECT_EC2":     "NO",
		"CPL_AWS_EC2_API_ROOT_URL":   srv.URL,
	})))

	creds, _, source, err := chain.Resolve(context.Background(), "")
	s.Require().NoError(err)
	s.Equal(credchain.SourceEC2, source)
	s.Equal("EC2AKID", creds.AccessKeyID)
}

func (s *ChainTestSuite) TestEverythingFailsReturnsInvalidCredentials() {
	credsPath := filepath.Join(s.dir, "no-credentials")
	cfgPath := filepath.Join(s.dir, "no-config")

	chain := credchain.NewChain(credchain.WithGetter(mapGetter(map[string]string{
		"CPL_AWS_CREDENTIALS_FILE":    credsPath,
		"AWS_CONFIG_FILE":             cfgPath,
		"CPL_AWS_WEB_IDENTITY_ENABLE": "NO",
		"CPL_AWS_AUTODETECT_EC2":      "NO",
		"CPL_AWS_EC2_API_ROOT_URL":    "http://127.0.0.1:1",
	})))

	_, _, _, err := chain.Resolve(context.Background(), "")
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid credentials")
}

func (s *ChainTestSuite) TestClearCacheForgetsAssumedRole() {
	cache := credchain.NewCache()
	cache.SeedAssumedRole(&credchain.AssumedRoleSpec{RoleARN: "arn:aws:iam::1234:role/x"},
		"AKID", "SECRET", 99999999999, "us-east-1")

	chain := credchain.NewChain(credchain.WithCache(cache), credchain.WithGetter(mapGetter(map[string]string{
		"CPL_AWS_CREDENTIALS_FILE":    filepath.Join(s.dir, "no-credentials"),
		"AWS_CONFIG_FILE":             filepath.Join(s.dir, "no-config"),
		"CPL_AWS_WEB_IDENTITY_ENABLE": "NO",
		"CPL_AWS_AUTODETECT_EC2":      "NO",
		"CPL_AWS_EC2_API_ROOT_URL":    "http://127.0.0.1:1",
	})))
	chain.ClearCache()
	_, _, _, err := chain.Resolve(context.Background(), "")
	s.Require().Error(err)
}

func TestChainTestSuite(t *testing.T) {
	suite.Run(t, new(ChainTestSuite))
}
