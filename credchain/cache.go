package credchain

import (
	"sync"

	"github.com/fathomdata/s3sign/awscreds"
)

// Source tags which provider produced the credentials currently in a Cache,
// mirroring the original's AWSCredentialsSource enum.
type Source int

const (
	SourceStatic Source = iota
	SourceAssumedRole
	SourceWebIdentity
	SourceEC2
)

func (s Source) String() string {
	switch s {
	case SourceStatic:
		return "static"
	case SourceAssumedRole:
		return "assumed_role"
	case SourceWebIdentity:
		return "web_identity"
	case SourceEC2:
		return "ec2"
	default:
		return "unknown"
	}
}

// AssumedRoleSpec is the inputs needed to refresh an AssumeRole-derived
// credential set: the role and its session parameters, plus the static (or
// itself-assumed) credentials used to sign the AssumeRole call.
type AssumedRoleSpec struct {
	RoleARN         string
	ExternalID      string
	MFASerial       string
	RoleSessionName string
	SourceCreds     awscreds.Credentials
}

// WebIdentitySpec is the inputs needed to refresh an
// AssumeRoleWithWebIdentity-derived credential set.
type WebIdentitySpec struct {
	RoleARN       string
	TokenFilePath string
}

// Cache is the process-wide credential cache: one lock, one live credential
// set, and whichever spec (if any) describes how to refresh it. Grounded on
// the file-scope globals (gosGlobalAccessKeyId, gosRoleArn, gosIAMRole, ...)
// guarded by ghMutex in the original VSIS3HandleHelper.
type Cache struct {
	mu sync.Mutex

	creds  awscreds.Credentials
	source Source

	assumedRole *AssumedRoleSpec
	webIdentity *WebIdentitySpec

	iamRole string
	region  string
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{}
}

// Clear erases every cached field, matching VSIS3HandleHelper::ClearCache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = awscreds.Credentials{}
	c.source = SourceStatic
	c.assumedRole = nil
	c.webIdentity = nil
	c.iamRole = ""
	c.region = ""
}

// snapshot returns a copy of the cache's state under lock.
func (c *Cache) snapshot() (awscreds.Credentials, Source, *AssumedRoleSpec, *WebIdentitySpec, string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds, c.source, c.assumedRole, c.webIdentity, c.iamRole, c.region
}

func (c *Cache) iamRoleName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.iamRole
}

func (c *Cache) setIAMRole(role string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.iamRole = role
}

func (c *Cache) store(creds awscreds.Credentials, source Source, assumedRole *AssumedRoleSpec, webIdentity *WebIdentitySpec, region string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = creds
	c.source = source
	c.assumedRole = assumedRole
	c.webIdentity = webIdentity
	if region != "" {
		c.region = region
	}
}

// SeedAssumedRole installs spec as the cache's current assumed-role spec
// along with cached credentials expiring at expirationUnix, without going
// through a Chain.Resolve call first. Exported for tests that exercise the
// cache-reuse and cache-refresh properties directly.
func (c *Cache) SeedAssumedRole(spec *AssumedRoleSpec, accessKeyID, secretAccessKey string, expirationUnix int64, region string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = awscreds.Credentials{
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secretAccessKey,
		ExpirationUnix:  expirationUnix,
	}
	c.source = SourceAssumedRole
	c.assumedRole = spec
	c.region = region
}

// StaticSourceCreds builds the Credentials value an AssumedRoleSpec expects
// for a source profile holding a plain, never-expiring key pair.
func StaticSourceCreds(accessKeyID, secretAccessKey string) awscreds.Credentials {
	return awscreds.Credentials{AccessKeyID: accessKeyID, SecretAccessKey: secretAccessKey}
}
