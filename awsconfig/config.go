// Package awsconfig reads the minimal subset of the AWS CLI's INI-style
// ~/.aws/credentials and ~/.aws/config files that credential resolution
// needs, and resolves which profile to read. Grounded on ReadAWSCredentials
// and GetConfigurationFromAWSConfigFiles in the original GDAL cpl_aws.cpp,
// parsed with gopkg.in/ini.v1 instead of a hand-rolled line scanner, and
// using github.com/mitchellh/go-homedir for home-directory resolution the
// same way backend/sftp does in the teacher repo.
package awsconfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"gopkg.in/ini.v1"
)

// Profile holds everything either file can contribute for one profile name.
type Profile struct {
	AccessKeyID          string
	SecretAccessKey      string
	SessionToken         string
	Region               string
	RoleARN              string
	SourceProfile        string
	ExternalID           string
	MFASerial            string
	RoleSessionName      string
	WebIdentityTokenFile string
}

// HasStaticKeys reports whether both halves of a static key pair are set.
func (p Profile) HasStaticKeys() bool {
	return p.AccessKeyID != "" && p.SecretAccessKey != ""
}

// Getter resolves a path-specific config option, falling back to def when
// unset. It stands in for the spec's opaque get_option(path, key, default)
// collaborator, which this subsystem treats as an external dependency.
type Getter func(path, key, def string) string

// OSGetter returns a Getter backed only by the process environment,
// ignoring the path argument - the simplest faithful implementation of
// get_option available without a real path-specific option store.
func OSGetter() Getter {
	return func(_, key, def string) string {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v
		}
		return def
	}
}

// ResolveProfile applies spec §4.B's precedence: an explicit profile wins,
// else AWS_DEFAULT_PROFILE, else AWS_PROFILE, else "default".
func ResolveProfile(path string, get Getter, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v := get(path, "AWS_DEFAULT_PROFILE", ""); v != "" {
		return v
	}
	if v := get(path, "AWS_PROFILE", ""); v != "" {
		return v
	}
	return "default"
}

// DefaultCredentialsPath returns CPL_AWS_CREDENTIALS_FILE if set, else
// ~/.aws/credentials.
func DefaultCredentialsPath(path string, get Getter) (string, error) {
	if v := get(path, "CPL_AWS_CREDENTIALS_FILE", ""); v != "" {
		return v, nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("awsconfig: resolving home directory: %w", err)
	}
	return filepath.Join(home, ".aws", "credentials"), nil
}

// DefaultConfigPath returns AWS_CONFIG_FILE if set, else ~/.aws/config.
func DefaultConfigPath(path string, get Getter) (string, error) {
	if v := get(path, "AWS_CONFIG_FILE", ""); v != "" {
		return v, nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("awsconfig: resolving home directory: %w", err)
	}
	return filepath.Join(home, ".aws", "config"), nil
}

// section finds profile's section in cfg, trying the config file's
// "[profile <name>]" form in addition to the bare "[<name>]" form: both are
// accepted for every profile name, matching the original parser.
func section(cfg *ini.File, profile string) *ini.Section {
	if sec, err := cfg.GetSection(profile); err == nil {
		return sec
	}
	if sec, err := cfg.GetSection("profile " + profile); err == nil {
		return sec
	}
	return nil
}

func readCredentials(path, profile string) (Profile, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{Loose: true}, path)
	if err != nil {
		return Profile{}, fmt.Errorf("awsconfig: reading %s: %w", path, err)
	}
	sec, err := cfg.GetSection(profile)
	if err != nil {
		return Profile{}, nil
	}
	return Profile{
		AccessKeyID:     sec.Key("aws_access_key_id").String(),
		SecretAccessKey: sec.Key("aws_secret_access_key").String(),
		SessionToken:    sec.Key("aws_session_token").String(),
	}, nil
}

// LoadCredentialsOnly reads profile from credentialsPath alone, with no
// config-file merge. It exists for role-chaining: when a profile's
// source_profile is itself re-read to obtain the static key pair used to
// assume a role, the original (ReadAWSCredentials) consults only the
// credentials file, never ~/.aws/config.
func LoadCredentialsOnly(profile, credentialsPath string) (Profile, error) {
	return readCredentials(credentialsPath, profile)
}

func readConfig(path, profile string) (Profile, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{Loose: true}, path)
	if err != nil {
		return Profile{}, fmt.Errorf("awsconfig: reading %s: %w", path, err)
	}
	sec := section(cfg, profile)
	if sec == nil {
		return Profile{}, nil
	}
	return Profile{
		AccessKeyID:          sec.Key("aws_access_key_id").String(),
		SecretAccessKey:      sec.Key("aws_secret_access_key").String(),
		SessionToken:         sec.Key("aws_session_token").String(),
		Region:               sec.Key("region").String(),
		RoleARN:              sec.Key("role_arn").String(),
		SourceProfile:        sec.Key("source_profile").String(),
		ExternalID:           sec.Key("external_id").String(),
		MFASerial:            sec.Key("mfa_serial").String(),
		RoleSessionName:      sec.Key("role_session_name").String(),
		WebIdentityTokenFile: sec.Key("web_identity_token_file").String(),
	}, nil
}

// preferCredentials implements UpdateAndWarnIfInconsistent: the credentials
// file's value wins whenever it's set; a differing config-file value for
// the same key is logged, naming both files, but otherwise ignored.
func preferCredentials(logger *slog.Logger, key, credValue, cfgValue, credentialsPath, configPath string) string {
	if credValue == "" {
		return cfgValue
	}
	if cfgValue != "" && cfgValue != credValue {
		logger.Warn("aws credential value set in both files; using credentials file",
			"key", key, "credentials_file", credentialsPath, "config_file", configPath)
	}
	return credValue
}

// Load reads profile from both credentialsPath and configPath and merges
// them per spec §4.B's precedence rule (credentials file wins on conflict
// for the three key/secret/token fields; everything else comes only from
// the config file). Either file may be absent; that is not an error. logger
// defaults to slog.Default() when nil.
func Load(profile, credentialsPath, configPath string, logger *slog.Logger) (Profile, error) {
	if logger == nil {
		logger = slog.Default()
	}

	credProfile, err := readCredentials(credentialsPath, profile)
	if err != nil {
		return Profile{}, err
	}
	cfgProfile, err := readConfig(configPath, profile)
	if err != nil {
		return Profile{}, err
	}

	merged := cfgProfile
	merged.AccessKeyID = preferCredentials(logger, "aws_access_key_id", credProfile.AccessKeyID, cfgProfile.AccessKeyID, credentialsPath, configPath)
	merged.SecretAccessKey = preferCredentials(logger, "aws_secret_access_key", credProfile.SecretAccessKey, cfgProfile.SecretAccessKey, credentialsPath, configPath)
	merged.SessionToken = preferCredentials(logger, "aws_session_token", credProfile.SessionToken, cfgProfile.SessionToken, credentialsPath, configPath)

	return merged, nil
}
