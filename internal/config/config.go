// Package config provides profile configuration loading for the GitBridge server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// TokenEnvVar is the process-wide credential override consulted when a
// profile does not carry a token of its own.
const TokenEnvVar = "GITBRIDGE_TOKEN"

// DefaultBranch is the branch used when a profile does not name one.
const DefaultBranch = "main"

// ErrNoCredential is returned when a profile has no token and the
// environment override is empty.
var ErrNoCredential = errors.New("no credential configured")

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// DefaultProfile names the profile activated at startup.
	// Defaults to the first profile if not specified.
	DefaultProfile string    `yaml:"defaultProfile,omitempty"`
	Profiles       []Profile `yaml:"profiles"`
}

// Profile defines a named target repository configuration
type Profile struct {
	// Name is the unique identifier for this profile
	Name string `yaml:"name"`

	// Repository identifies the target repository. Either the GitHub
	// "owner/repo" shorthand or a full clone URL / local path.
	Repository string `yaml:"repository"`

	// Branch is the branch commits are pushed to (defaults to "main")
	Branch string `yaml:"branch,omitempty"`

	// Token is the credential used for clone and push. May be empty to
	// defer to TokenFile or the GITBRIDGE_TOKEN environment variable.
	Token string `yaml:"token,omitempty"`

	// TokenFile is the path to a file containing the token
	// The file should contain only the token with optional trailing whitespace
	TokenFile string `yaml:"tokenFile,omitempty"`

	// LocalPath is the filesystem root of the working copy
	LocalPath string `yaml:"localPath"`

	// SafeMode disables destructive operations (delete) when true
	SafeMode bool `yaml:"safeMode"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	// As of now, this is required because there's no other options to load
	// configuration. Once we add more options, we can remove this check.
	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	// Read the entire file into memory
	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML content
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// Validate the config
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if len(c.Profiles) == 0 {
		return fmt.Errorf("at least one profile must be configured")
	}

	profileNames := make(map[string]bool)
	for i, p := range c.Profiles {
		prefix := fmt.Sprintf("profile[%d]", i)
		if p.Name != "" {
			prefix = fmt.Sprintf("profile[%d] (%s)", i, p.Name)
		}

		if p.Name == "" {
			return fmt.Errorf("%s: name is required", prefix)
		}
		if profileNames[p.Name] {
			return fmt.Errorf("%s: duplicate profile name '%s'", prefix, p.Name)
		}
		profileNames[p.Name] = true

		if p.Repository == "" {
			return fmt.Errorf("%s: repository is required", prefix)
		}
		if p.LocalPath == "" {
			return fmt.Errorf("%s: localPath is required", prefix)
		}
	}

	if c.DefaultProfile != "" && !profileNames[c.DefaultProfile] {
		return fmt.Errorf("defaultProfile '%s' does not match any profile", c.DefaultProfile)
	}

	return nil
}

// GetDefaultProfile returns the name of the profile to activate at startup,
// falling back to the first configured profile
func (c *Config) GetDefaultProfile() string {
	if c.DefaultProfile != "" {
		return c.DefaultProfile
	}
	return c.Profiles[0].Name
}

// Profile returns the profile with the given name
func (c *Config) Profile(name string) (*Profile, bool) {
	for i := range c.Profiles {
		if c.Profiles[i].Name == name {
			return &c.Profiles[i], true
		}
	}
	return nil, false
}

// CloneURL returns the URL the profile's repository is cloned from and
// pushed to. The GitHub "owner/repo" shorthand expands to an HTTPS URL;
// anything carrying a scheme or an explicit filesystem path is used as-is.
func (p *Profile) CloneURL() string {
	if strings.Contains(p.Repository, "://") ||
		strings.HasPrefix(p.Repository, "/") ||
		strings.HasPrefix(p.Repository, ".") {
		return p.Repository
	}
	return fmt.Sprintf("https://github.com/%s.git", p.Repository)
}

// GetBranch returns the configured branch, defaulting to "main"
func (p *Profile) GetBranch() string {
	if p.Branch == "" {
		return DefaultBranch
	}
	return p.Branch
}

// ResolveToken returns the credential for this profile using the following
// priority:
// 1. The explicit Token field
// 2. Read from TokenFile if specified
// 3. Read from the GITBRIDGE_TOKEN environment variable
//
// The token from file will have leading/trailing whitespace trimmed.
// Returns ErrNoCredential if every source is empty.
func (p *Profile) ResolveToken() (string, error) {
	// Priority 1: the profile's own token
	if p.Token != "" {
		return p.Token, nil
	}

	// Priority 2: read from file if specified
	if p.TokenFile != "" {
		// Use filepath.Clean to prevent path traversal attacks
		cleanPath := filepath.Clean(p.TokenFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read token from file %s: %w", p.TokenFile, err)
		}

		token := strings.TrimSpace(string(data))
		if token == "" {
			return "", fmt.Errorf("%w: token file %s is empty", ErrNoCredential, p.TokenFile)
		}
		return token, nil
	}

	// Priority 3: check environment variable
	if envToken := os.Getenv(TokenEnvVar); envToken != "" {
		return envToken, nil
	}

	return "", fmt.Errorf("%w for profile '%s': set token, tokenFile or %s", ErrNoCredential, p.Name, TokenEnvVar)
}
