// Copyright 2026 Eliton Melo
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig is the YAML-shaped configuration of the serve command.
// Flags override file values.
type ServerConfig struct {
	Listen      string `yaml:"listen"`
	DatabaseURL string `yaml:"database_url"` // empty selects in-memory storage
	JWTSecret   string `yaml:"jwt_secret"`
}

// DefaultServerConfig returns the serve defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Listen:    ":8080",
		JWTSecret: "dev-secret-change-me",
	}
}

// LoadServerConfig reads a YAML config file over the defaults. An empty
// path returns the defaults untouched.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}
