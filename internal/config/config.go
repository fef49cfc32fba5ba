// Package config loads policy-guard settings from an optional YAML file and
// the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// #region config
// Config holds runtime settings for the CLI and servers.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
	AuditDB  string `yaml:"audit_db"`  // empty disables the audit trail
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
	Strict   bool   `yaml:"strict"`    // exit non-zero on a failing verdict
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		GRPCAddr: ":50061",
		LogLevel: "info",
	}
}

// #endregion config

// #region load
// Load reads path (if non-empty) over the defaults, then applies environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = envOr("POLICY_GUARD_HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = envOr("POLICY_GUARD_GRPC_ADDR", c.GRPCAddr)
	c.AuditDB = envOr("POLICY_GUARD_AUDIT_DB", c.AuditDB)
	c.LogLevel = envOr("POLICY_GUARD_LOG_LEVEL", c.LogLevel)
}

// #endregion load

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
