// Package config loads client configuration from a YAML file and DVSDK_*
// environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied to fields left empty.
const (
	DefaultAuthorityURL   = "https://login.microsoftonline.com"
	DefaultAPIVersion     = "v9.2"
	DefaultTimeout        = 30 * time.Second
	DefaultMetadataMaxAge = 24 * time.Hour
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DVSDK_"

// Config holds everything needed to talk to one organization.
type Config struct {
	// TenantID, ClientID and ClientSecret identify the app registration used
	// for the client-credentials grant.
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// ResourceURL is the organization root, e.g. https://org.crm.dynamics.com.
	ResourceURL string `yaml:"resource_url"`

	AuthorityURL string        `yaml:"authority_url,omitempty"`
	APIVersion   string        `yaml:"api_version,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`

	// MetadataCache is the SQLite file used to cache entity definitions.
	// Empty disables the cache.
	MetadataCache      string        `yaml:"metadata_cache,omitempty"`
	MetadataMaxAge     time.Duration `yaml:"metadata_max_age,omitempty"`
	FetchRelationships bool          `yaml:"fetch_relationships,omitempty"`

	// Request flags sent with every message.
	Tag                         string `yaml:"tag,omitempty"`
	SuppressDuplicateDetection  bool   `yaml:"suppress_duplicate_detection,omitempty"`
	BypassCustomPluginExecution bool   `yaml:"bypass_custom_plugin_execution,omitempty"`
}

// Load reads path (when non-empty), applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML, rejecting unknown fields.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from DVSDK_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"TENANT_ID":      &c.TenantID,
		"CLIENT_ID":      &c.ClientID,
		"CLIENT_SECRET":  &c.ClientSecret,
		"RESOURCE_URL":   &c.ResourceURL,
		"AUTHORITY_URL":  &c.AuthorityURL,
		"API_VERSION":    &c.APIVersion,
		"METADATA_CACHE": &c.MetadataCache,
		"TAG":            &c.Tag,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"TIMEOUT":          &c.Timeout,
		"METADATA_MAX_AGE": &c.MetadataMaxAge,
	}
	for name, dst := range durations {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = d
		}
	}

	bools := map[string]*bool{
		"FETCH_RELATIONSHIPS":            &c.FetchRelationships,
		"SUPPRESS_DUPLICATE_DETECTION":   &c.SuppressDuplicateDetection,
		"BYPASS_CUSTOM_PLUGIN_EXECUTION": &c.BypassCustomPluginExecution,
	}
	for name, dst := range bools {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = b
		}
	}
	return nil
}

// ApplyDefaults fills empty optional fields.
func (c *Config) ApplyDefaults() {
	if c.AuthorityURL == "" {
		c.AuthorityURL = DefaultAuthorityURL
	}
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MetadataMaxAge == 0 {
		c.MetadataMaxAge = DefaultMetadataMaxAge
	}
	c.ResourceURL = strings.TrimRight(c.ResourceURL, "/")
}

// Validate reports every missing or malformed field.
func (c *Config) Validate() error {
	var errs []error
	required := []struct {
		name  string
		value string
	}{
		{"tenant_id", c.TenantID},
		{"client_id", c.ClientID},
		{"client_secret", c.ClientSecret},
		{"resource_url", c.ResourceURL},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.name))
		}
	}
	if c.ResourceURL != "" {
		if err := checkURL(c.ResourceURL); err != nil {
			errs = append(errs, fmt.Errorf("resource_url: %w", err))
		}
	}
	if c.AuthorityURL != "" {
		if err := checkURL(c.AuthorityURL); err != nil {
			errs = append(errs, fmt.Errorf("authority_url: %w", err))
		}
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative"))
	}
	if c.MetadataMaxAge < 0 {
		errs = append(errs, fmt.Errorf("metadata_max_age must not be negative"))
	}
	return errors.Join(errs...)
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

// TokenURL returns the OAuth2 v2.0 token endpoint of the tenant.
func (c *Config) TokenURL() string {
	authority := c.AuthorityURL
	if authority == "" {
		authority = DefaultAuthorityURL
	}
	return strings.TrimRight(authority, "/") + "/" + c.TenantID + "/oauth2/v2.0/token"
}

// Scopes returns the client-credentials scope for the organization.
func (c *Config) Scopes() []string {
	return []string{strings.TrimRight(c.ResourceURL, "/") + "/.default"}
}
