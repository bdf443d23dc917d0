// Package config loads client configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the client configuration.
type Config struct {
	API struct {
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"api"`
	Socket struct {
		URL string `yaml:"url"`
	} `yaml:"socket"`
	Cache struct {
		Path string `yaml:"path"`
	} `yaml:"cache"`
}

// Load reads the config file, then applies environment overrides. A missing
// file is not an error; env-only configuration is supported.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.API.BaseURL = getEnv("MAI_API_URL", cfg.API.BaseURL)
	cfg.API.TimeoutSeconds = getEnvAsInt("MAI_API_TIMEOUT_SECONDS", cfg.API.TimeoutSeconds)
	cfg.Socket.URL = getEnv("MAI_SOCKET_URL", cfg.Socket.URL)
	cfg.Cache.Path = getEnv("MAI_CACHE_PATH", cfg.Cache.Path)

	if cfg.API.BaseURL == "" {
		return nil, fmt.Errorf("api base url is required (api.base_url or MAI_API_URL)")
	}
	if cfg.Socket.URL == "" {
		return nil, fmt.Errorf("socket url is required (socket.url or MAI_SOCKET_URL)")
	}
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = "mai-cache.db"
	}
	return &cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
