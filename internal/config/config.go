package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultBlossomServer is used for uploads when no server is configured.
const DefaultBlossomServer = "https://blossom.primal.net"

// Config holds the operator's key material and relay endpoints.
type Config struct {
	// SecretKey is the operator's secret key (nsec or hex). Empty until init.
	SecretKey string `yaml:"secret_key,omitempty"`

	// Relays is the operator-configured relay list. When empty,
	// DefaultRelays is used instead.
	Relays []string `yaml:"relays"`

	// DefaultRelays is the built-in fallback relay list, persisted so the
	// operator can edit it.
	DefaultRelays []string `yaml:"default_relays"`

	// BlossomServer overrides the default Blossom upload endpoint.
	BlossomServer string `yaml:"blossom_server,omitempty"`

	// PaymentCommand is the external binary invoked to pay zap invoices.
	// The invoice is appended as the final argument.
	PaymentCommand []string `yaml:"payment_command,omitempty"`
}

// DefaultConfig returns a config with the built-in relay list.
func DefaultConfig() *Config {
	return &Config{
		DefaultRelays: []string{
			"wss://relay.damus.io",
			"wss://nos.lol",
			"wss://relay.nostr.band",
			"wss://r.kojira.io",
		},
	}
}

// Dir returns the default base directory (~/.nostaro).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".nostaro"), nil
}

// Load reads baseDir/config.yaml. Returns the default config when the
// file does not exist. The baseDir parameter allows tests to use
// t.TempDir() instead of ~/.nostaro.
func Load(baseDir string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, "config.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.DefaultRelays) == 0 {
		cfg.DefaultRelays = DefaultConfig().DefaultRelays
	}
	return cfg, nil
}

// Save writes the config to baseDir/config.yaml, creating the base
// directory with restricted permissions if needed. The config file holds
// the secret key, so it is written 0600.
func (c *Config) Save(baseDir string) error {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	path := filepath.Join(baseDir, "config.yaml")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ActiveRelays returns the configured relays, falling back to the
// default list when none are configured.
func (c *Config) ActiveRelays() []string {
	if len(c.Relays) == 0 {
		return c.DefaultRelays
	}
	return c.Relays
}

// BlossomURL returns the upload server, falling back to the default.
func (c *Config) BlossomURL() string {
	if c.BlossomServer != "" {
		return c.BlossomServer
	}
	return DefaultBlossomServer
}
