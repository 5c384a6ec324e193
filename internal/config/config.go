// Package config loads the core's service-level configuration and the
// ASP provider config, using flat getEnv/getEnvUint64 helpers and
// extending them with an optional .env file and a YAML provider-config
// file.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// ServiceConfig holds cmd/server's process-level configuration.
type ServiceConfig struct {
	Port            string
	Environment     string
	LogLevel        string
	StoreDSN        string
	ProviderConfigPath string
	AttesterPrivateKeyHex string
}

// LoadServiceConfig loads a .env file if present (a missing file is not
// an error) and then reads environment variables with defaults.
func LoadServiceConfig() *ServiceConfig {
	_ = godotenv.Load()

	return &ServiceConfig{
		Port:                  getEnv("CORE_PORT", "8082"),
		Environment:           getEnv("CORE_ENV", "development"),
		LogLevel:              getEnv("CORE_LOG_LEVEL", "info"),
		StoreDSN:              getEnv("CORE_STORE_DSN", ""),
		ProviderConfigPath:    getEnv("CORE_PROVIDER_CONFIG", ""),
		AttesterPrivateKeyHex: getEnv("CORE_ATTESTER_PRIVATE_KEY", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		var result uint64
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

// ProviderPolicy mirrors asp.Policy's wire tag without importing
// internal/asp, so config stays a leaf package.
type ProviderPolicy struct {
	Kind string `yaml:"kind"` // "permissive", "restrictive", or "custom"
	Name string `yaml:"name,omitempty"`
}

// ProviderConfig is an association set provider's static configuration:
// {name, policy, update_frequency_secs, max_set_size}. Default values
// are Permissive, 3600, 1_000_000.
type ProviderConfig struct {
	Name                string          `yaml:"name"`
	Policy              ProviderPolicy  `yaml:"policy"`
	UpdateFrequencySecs uint64          `yaml:"update_frequency_secs"`
	MaxSetSize          uint64          `yaml:"max_set_size"`
}

// DefaultProviderConfig returns the default provider configuration for
// a permissive association set named name, capped at 1_000_000 members.
func DefaultProviderConfig(name string) ProviderConfig {
	return ProviderConfig{
		Name:                name,
		Policy:              ProviderPolicy{Kind: "permissive"},
		UpdateFrequencySecs: 3600,
		MaxSetSize:           1_000_000,
	}
}

// LoadProviderConfig reads a YAML provider config from path. When path
// is empty, it returns DefaultProviderConfig("default").
func LoadProviderConfig(path string) (ProviderConfig, error) {
	if path == "" {
		return DefaultProviderConfig("default"), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return ProviderConfig{}, fmt.Errorf("config: read provider config: %w", err)
	}
	cfg := DefaultProviderConfig("default")
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return ProviderConfig{}, fmt.Errorf("config: parse provider config: %w", err)
	}
	return cfg, nil
}

// EnvUint64 exposes getEnvUint64 for callers outside this package that
// need the same tolerant parsing (e.g. cmd/server rate-limit flags).
func EnvUint64(key string, defaultValue uint64) uint64 {
	return getEnvUint64(key, defaultValue)
}
