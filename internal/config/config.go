package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/rob634/rmhtitiler-sub001/internal/core"
)

// Identity chain modes. The mode is fixed for the whole process
// lifetime; there is no per-request or per-scope switching.
const (
	ModeLocal    = "local"
	ModePlatform = "platform"
)

// Credential source types, as referenced in identity.sources keys.
const (
	SourceCLI       = "cli"
	SourceSharedKey = "shared-key"
	SourceMetadata  = "metadata"
)

// Tile frontend modes.
const (
	TilesStatic = "static"
	TilesProxy  = "proxy"
	TilesOff    = "off"
)

// Default environment variable names of the storage publishing contract.
const (
	DefaultAccountVar = "AZURE_STORAGE_ACCOUNT"
	DefaultTokenVar   = "AZURE_STORAGE_SAS_TOKEN"
	DefaultSecretVar  = "AZURE_STORAGE_ACCESS_KEY"
)

type Config struct {
	Identity IdentityConfig  `yaml:"identity"`
	Storage  StorageConfig   `yaml:"storage"`
	Database *DatabaseConfig `yaml:"database,omitempty"`
	Scopes   []ScopeConfig   `yaml:"scopes"`
	Rules    []RuleConfig    `yaml:"rules"`
	Tiles    TilesConfig     `yaml:"tiles"`
	Audit    AuditConfig     `yaml:"audit"`
	Refresh  RefreshConfig   `yaml:"refresh"`
}

// IdentityConfig selects the credential source chain. Sources carries
// per-source options keyed by source type; unknown keys are rejected
// during chain construction, not here.
type IdentityConfig struct {
	Mode    string                    `yaml:"mode"`
	Sources map[string]map[string]any `yaml:"sources,omitempty"`
}

func (c *IdentityConfig) Validate() error {
	switch c.Mode {
	case ModeLocal, ModePlatform:
	case "":
		return fmt.Errorf("mode is required (%q or %q)", ModeLocal, ModePlatform)
	default:
		return fmt.Errorf("unknown mode %q (want %q or %q)", c.Mode, ModeLocal, ModePlatform)
	}
	if c.Mode == ModePlatform {
		// A raw signing key configured on a platform deployment defeats
		// the point of running on platform identity.
		if _, ok := c.Sources[SourceSharedKey]; ok {
			return fmt.Errorf("%q source is not allowed in %q mode", SourceSharedKey, ModePlatform)
		}
	}
	return nil
}

// StorageConfig describes the storage account whose credentials are
// published into the environment for native object readers.
type StorageConfig struct {
	// Account is the storage account name, e.g. "rmhtiles".
	Account string `yaml:"account"`

	// Container holds the tile pyramids served by the static frontend.
	Container string `yaml:"container"`

	// Endpoint overrides the blob endpoint, mainly for emulators.
	// Empty means https://{account}.blob.core.windows.net.
	Endpoint string `yaml:"endpoint,omitempty"`

	AccountVar string `yaml:"account_var"`
	TokenVar   string `yaml:"token_var"`
	SecretVar  string `yaml:"secret_var"`
}

func (c *StorageConfig) Validate() error {
	if c.Account == "" {
		return fmt.Errorf("account is required")
	}
	return nil
}

// BlobEndpoint returns the base URL blobs are fetched from.
func (c *StorageConfig) BlobEndpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net", c.Account)
}

// DatabaseConfig describes the metadata database. A nil DatabaseConfig
// disables the database scope entirely.
type DatabaseConfig struct {
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Name     string            `yaml:"name"`
	User     string            `yaml:"user"`
	SSLMode  string            `yaml:"sslmode"`
	Params   map[string]string `yaml:"params,omitempty"`
	MaxConns int32             `yaml:"max_conns,omitempty"`
}

func (c *DatabaseConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	return nil
}

// ScopeConfig overrides or extends the built-in scope registry.
type ScopeConfig struct {
	Name             string        `yaml:"name"`
	Audience         string        `yaml:"audience"`
	RefreshThreshold time.Duration `yaml:"refresh_threshold"`
	Publish          string        `yaml:"publish"`
}

func (c *ScopeConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch core.PublishTarget(c.Publish) {
	case core.PublishEnv, core.PublishConnString, core.PublishNone, "":
	default:
		return fmt.Errorf("unknown publish target %q", c.Publish)
	}
	if c.RefreshThreshold < 0 {
		return fmt.Errorf("refresh_threshold must not be negative")
	}
	return nil
}

// RuleConfig binds request shapes to the scopes they need. Rules are
// evaluated in order; the first match wins.
type RuleConfig struct {
	Name   string   `yaml:"name"`
	Match  Match    `yaml:"match"`
	Scopes []string `yaml:"scopes"`
}

// Match narrows a rule to a subset of requests. PathPrefix is the fast
// path; Expr is an optional expression over method, path and query.
type Match struct {
	PathPrefix string `yaml:"path_prefix,omitempty"`
	Expr       string `yaml:"expr,omitempty"`
}

func (r *RuleConfig) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if r.Match.PathPrefix == "" && r.Match.Expr == "" {
		return fmt.Errorf("match needs a path_prefix or an expr")
	}
	if len(r.Scopes) == 0 {
		return fmt.Errorf("at least one scope is required")
	}
	return nil
}

// TilesConfig selects the tile frontend.
type TilesConfig struct {
	Mode string `yaml:"mode"`

	// Upstream is the renderer base URL in proxy mode.
	Upstream string `yaml:"upstream,omitempty"`
}

func (c *TilesConfig) Validate() error {
	switch c.Mode {
	case TilesStatic, TilesOff, "":
	case TilesProxy:
		if c.Upstream == "" {
			return fmt.Errorf("upstream is required in %q mode", TilesProxy)
		}
	default:
		return fmt.Errorf("unknown tiles mode %q", c.Mode)
	}
	return nil
}

// AuditConfig holds configuration for the credential audit trail.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Type    string `yaml:"type"` // e.g., "file", "memory"
}

// RefreshConfig controls the background refresh task.
type RefreshConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Load reads and parses the configuration file at the given path.
// It returns a Config struct or an error if loading/parsing/validation fails.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills omitted fields with their production defaults.
func (c *Config) ApplyDefaults() {
	if c.Storage.AccountVar == "" {
		c.Storage.AccountVar = DefaultAccountVar
	}
	if c.Storage.TokenVar == "" {
		c.Storage.TokenVar = DefaultTokenVar
	}
	if c.Storage.SecretVar == "" {
		c.Storage.SecretVar = DefaultSecretVar
	}
	if c.Storage.Container == "" {
		c.Storage.Container = "tiles"
	}
	if c.Tiles.Mode == "" {
		c.Tiles.Mode = TilesStatic
	}
	if c.Refresh.Interval <= 0 {
		c.Refresh.Interval = time.Minute
	}
	if c.Database != nil {
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.Name == "" {
			c.Database.Name = "postgres"
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "require"
		}
	}
	if len(c.Rules) == 0 {
		// Out of the box, everything under /tiles/ needs storage access.
		c.Rules = []RuleConfig{{
			Name:   "tiles",
			Match:  Match{PathPrefix: "/tiles/"},
			Scopes: []string{core.ScopeStorage},
		}}
	}
}

func (c *Config) Validate() error {
	if err := c.Identity.Validate(); err != nil {
		return fmt.Errorf("validating identity: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("validating storage: %w", err)
	}
	if c.Database != nil {
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("validating database: %w", err)
		}
	}

	seen := make(map[string]struct{})
	for idx, s := range c.Scopes {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("validating scope at index %d: %w", idx, err)
		}
		if _, ok := seen[s.Name]; ok {
			return fmt.Errorf("duplicate scope %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}

	for idx, r := range c.Rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("validating rule at index %d: %w", idx, err)
		}
	}

	if err := c.Tiles.Validate(); err != nil {
		return fmt.Errorf("validating tiles: %w", err)
	}

	if c.Audit.Enabled && c.Audit.Type == "file" && c.Audit.Path == "" {
		return fmt.Errorf("validating audit: path is required for file audits")
	}

	return nil
}
