package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the ledger location.
const (
	EnvEndpoint      = "LIVEPREDICT_ENDPOINT"
	EnvApplicationID = "LIVEPREDICT_APP"
	EnvChainID       = "LIVEPREDICT_CHAIN"
	EnvFeedToken     = "LIVEPREDICT_PANDASCORE_TOKEN"
)

// Load reads the config file at path. A ".toml" extension selects TOML, anything
// else YAML. ${VAR} references are expanded after a .env file in the working
// directory, if any, has been loaded. An empty path builds the config from the
// environment alone.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))

		if strings.EqualFold(filepath.Ext(path), ".toml") {
			if _, err := toml.Decode(expanded, &cfg); err != nil {
				return nil, fmt.Errorf("parse toml config: %w", err)
			}
		} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
	}

	cfg.applyEnv()
	return &cfg, nil
}

// LoadWithDefaults loads the config, applies defaults and validates it.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvEndpoint); v != "" {
		c.Ledger.Endpoint = v
	}
	if v := os.Getenv(EnvApplicationID); v != "" {
		c.Ledger.ApplicationID = v
	}
	if v := os.Getenv(EnvChainID); v != "" {
		c.Ledger.ChainID = v
	}
	if v := os.Getenv(EnvFeedToken); v != "" {
		c.Feed.Token = v
	}
}
