// Package config loads the service configuration from YAML with environment
// overrides for deployment secrets.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// SigningNetworkConfig configures the threshold signing network client.
type SigningNetworkConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// ProviderConfig configures the federated login redirect.
type ProviderConfig struct {
	LoginURL    string `yaml:"login_url"`
	RedirectURI string `yaml:"redirect_uri"`
}

// Config is the top-level service configuration.
type Config struct {
	Listen          string               `yaml:"listen"`
	LogLevel        string               `yaml:"log_level"`
	RedisURL        string               `yaml:"redis_url"`
	RPCURL          string               `yaml:"rpc_url"`
	RelayerKey      string               `yaml:"relayer_key"`
	DeployerURL     string               `yaml:"deployer_url"`
	CredentialStore string               `yaml:"credential_store"` // redis, keyring or memory
	SigningNetwork  SigningNetworkConfig `yaml:"signing_network"`
	Provider        ProviderConfig       `yaml:"provider"`
}

// Load reads the configuration file and applies environment overrides for
// REDIS_URL and RELAYER_KEY.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Listen:          ":9000",
		LogLevel:        "info",
		RedisURL:        "redis://localhost:6379/0",
		CredentialStore: "redis",
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("RELAYER_KEY"); v != "" {
		cfg.RelayerKey = v
	}

	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc_url is required")
	}
	if cfg.RelayerKey == "" {
		return nil, fmt.Errorf("relayer key is required")
	}

	return cfg, nil
}
