package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	configFileName = "scriptstash.yaml"
	configDirName  = "scriptstash"

	// DefaultTimeoutSeconds bounds every remote call.
	DefaultTimeoutSeconds = 30

	// DefaultModel is used when the config does not name one.
	DefaultModel = "claude-sonnet-4-0"
)

// tokenEnvVars are checked in order before the token file.
var tokenEnvVars = []string{"SCRIPTSTASH_TOKEN", "GITHUB_TOKEN"}

// DefaultPath returns the platform-standard user config path.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, configDirName, configFileName)
}

// DefaultRoot returns the default local state directory, ~/.scriptstash.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "scriptstash")
	}
	return filepath.Join(home, ".scriptstash")
}

// DefaultTokenFile returns the path the auth command writes tokens to.
func DefaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, configDirName, "token")
}

// Load reads and validates a scriptstash.yaml configuration file.
// A missing file yields a default config rather than an error, so the tool
// works out of the box with only a token in the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if errs := Validate(&cfg); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{Version: 1, PrivateDocuments: true}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Root == "" {
		cfg.Root = DefaultRoot()
	}
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if cfg.TokenFile == "" {
		cfg.TokenFile = DefaultTokenFile()
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = DefaultModel
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 4096
	}
}

// Token resolves the remote access token: environment variables first,
// then the token file. Returns an empty string when neither is set.
func (c *Config) Token() string {
	for _, env := range tokenEnvVars {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
	}
	if c.TokenFile != "" {
		if data, err := os.ReadFile(c.TokenFile); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}

// ValidationError holds multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Validate checks a Config for semantic correctness.
// Returns a list of validation error messages (empty if valid).
func Validate(cfg *Config) []string {
	var errs []string

	if cfg.Version != 1 {
		errs = append(errs, fmt.Sprintf("unsupported version %d (only version 1 is supported)", cfg.Version))
	}

	if cfg.TimeoutSeconds < 0 {
		errs = append(errs, "'timeout_seconds' must not be negative")
	}

	if cfg.APIBaseURL != "" && !strings.HasPrefix(cfg.APIBaseURL, "http://") && !strings.HasPrefix(cfg.APIBaseURL, "https://") {
		errs = append(errs, fmt.Sprintf("invalid api_base_url '%s': must start with http:// or https://", cfg.APIBaseURL))
	}

	if cfg.Generation.MaxTokens < 0 {
		errs = append(errs, "'generation.max_tokens' must not be negative")
	}

	return errs
}
