package config

import (
	"os"

	"github.com/goccy/go-yaml"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Hub      HubConfig     `yaml:"hub"`
	Onboard  OnboardConfig `yaml:"onboard"`
	DataDir  string        `yaml:"data_dir"`
	LogLevel string        `yaml:"log_level"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// HubConfig identifies the hub cluster in the operator's kubeconfig
type HubConfig struct {
	Context string `yaml:"context"`
}

// OnboardConfig tunes the onboarding workflow
type OnboardConfig struct {
	// Labels applied to every managed cluster after joining, in addition
	// to the cluster's own name label.
	Labels map[string]string `yaml:"labels"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Hub: HubConfig{
			Context: "its1",
		},
		Onboard: OnboardConfig{
			Labels: map[string]string{
				"location-group": "edge",
			},
		},
		DataDir:  "./data",
		LogLevel: "info",
	}
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil // Return default config if file doesn't exist
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides overrides configuration with environment variables
func applyEnvOverrides(cfg *Config) {
	if hubContext := os.Getenv("HUB_CONTEXT"); hubContext != "" {
		cfg.Hub.Context = hubContext
	}
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		cfg.DataDir = dataDir
	}
}
