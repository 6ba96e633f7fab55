// Package config provides configuration loading and validation for relayd.
// Supports YAML files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"reflect"
	"strconv"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable Load reads the config file path from.
const EnvConfigPath = "RELAY_CONFIG"

// Config holds all configuration for a relay process.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	StatusAddr string `yaml:"statusAddr" env:"RELAY_STATUS_ADDR"`
}

type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metricsAddr" env:"RELAY_METRICS_ADDR"`
	LogLevel    string `yaml:"logLevel" env:"RELAY_LOG_LEVEL"`
	LogFormat   string `yaml:"logFormat" env:"RELAY_LOG_FORMAT"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			StatusAddr: ":8080",
		},
		Observability: ObservabilityConfig{
			MetricsAddr: ":9090",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

// Load builds a Config from defaults, the file named by RELAY_CONFIG if set,
// and environment overrides.
func Load() (*Config, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return LoadFromPath(path)
	}
	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath reads a YAML file over the defaults, then applies environment
// overrides. Unknown keys are rejected.
func LoadFromPath(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	if c.Server.StatusAddr != "" {
		if _, _, err := net.SplitHostPort(c.Server.StatusAddr); err != nil {
			return fmt.Errorf("config: invalid server.statusAddr %q: %w", c.Server.StatusAddr, err)
		}
	}
	if c.Observability.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.Observability.MetricsAddr); err != nil {
			return fmt.Errorf("config: invalid observability.metricsAddr %q: %w", c.Observability.MetricsAddr, err)
		}
	}
	switch c.Observability.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid observability.logLevel %q", c.Observability.LogLevel)
	}
	switch c.Observability.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("config: invalid observability.logFormat %q", c.Observability.LogFormat)
	}
	return nil
}

// applyEnv overrides fields tagged with `env` from the environment.
func (c *Config) applyEnv() error {
	return applyEnvTo(reflect.ValueOf(c).Elem())
}

func applyEnvTo(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		sf := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := applyEnvTo(field); err != nil {
				return err
			}
			continue
		}

		name := sf.Tag.Get("env")
		if name == "" {
			continue
		}
		raw, ok := os.LookupEnv(name)
		if !ok {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(raw)
		case reflect.Bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("config: %s: %w", name, err)
			}
			field.SetBool(b)
		case reflect.Int, reflect.Int64:
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("config: %s: %w", name, err)
			}
			field.SetInt(n)
		}
	}
	return nil
}
