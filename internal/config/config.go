// Package config loads bridge server settings from an optional TOML
// file, an optional .env file, and BRIDGE_* environment variables, in
// that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type BridgeConfig struct {
	Addr string `toml:"addr"`
}

type EvalConfig struct {
	Addr        string `toml:"addr"`
	SessionRoot string `toml:"session_root"`
}

type SecurityConfig struct {
	AllowRemote bool   `toml:"allow_remote"`
	Token       string `toml:"token"`
}

type Config struct {
	Bridge   BridgeConfig   `toml:"bridge"`
	Eval     EvalConfig     `toml:"eval"`
	Security SecurityConfig `toml:"security"`

	MaxMessageSize int  `toml:"max_message_size"`
	CheckIntervalMS int `toml:"check_interval_ms"`
	Verbose        bool `toml:"verbose"`
}

// CheckInterval returns the reactor tick interval.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalMS) * time.Millisecond
}

// Default returns the configuration used when nothing is specified:
// both variants on loopback, standard ports, 250ms ticks.
func Default() Config {
	return Config{
		Bridge:          BridgeConfig{Addr: "127.0.0.1:9876"},
		Eval:            EvalConfig{Addr: "127.0.0.1:9877"},
		CheckIntervalMS: 250,
	}
}

// Load reads the TOML file at path when it exists, then applies .env
// and environment overrides. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err == nil {
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse TOML: %w", err)
			}
		}
	}

	// Missing .env is fine; explicit env vars still apply.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("BRIDGE_ADDR"); v != "" {
		c.Bridge.Addr = v
	}
	if v := os.Getenv("BRIDGE_EVAL_ADDR"); v != "" {
		c.Eval.Addr = v
	}
	if v := os.Getenv("BRIDGE_SESSION_ROOT"); v != "" {
		c.Eval.SessionRoot = v
	}
	if v := os.Getenv("BRIDGE_TOKEN"); v != "" {
		c.Security.Token = v
	}
	if v := os.Getenv("BRIDGE_ALLOW_REMOTE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid BRIDGE_ALLOW_REMOTE %q: %w", v, err)
		}
		c.Security.AllowRemote = b
	}
	if v := os.Getenv("BRIDGE_MAX_MESSAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid BRIDGE_MAX_MESSAGE_SIZE %q", v)
		}
		c.MaxMessageSize = n
	}
	if v := os.Getenv("BRIDGE_CHECK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid BRIDGE_CHECK_INTERVAL %q", v)
		}
		c.CheckIntervalMS = int(d / time.Millisecond)
	}
	if v := os.Getenv("BRIDGE_VERBOSE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid BRIDGE_VERBOSE %q: %w", v, err)
		}
		c.Verbose = b
	}
	return nil
}
