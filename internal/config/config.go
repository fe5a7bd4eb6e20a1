// Package config loads flindoc settings from a YAML file and FLINDOC_*
// environment variables. Environment values override the file; command-line
// flags, applied by the caller, override both.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EngineMemory = "memory"
	EngineBadger = "badger"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`

	// IDStrategy is "objectid" or "uuid".
	IDStrategy string `yaml:"id_strategy"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	MaxConnections int           `yaml:"max_connections"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

type StorageConfig struct {
	Engine     string `yaml:"engine"`
	Dir        string `yaml:"dir"`
	SyncWrites bool   `yaml:"sync_writes"`
}

type MetricsConfig struct {
	// Addr serves /metrics over HTTP. Empty disables it.
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":7380",
			MaxConnections: 1024,
			ReadTimeout:    5 * time.Minute,
			WriteTimeout:   10 * time.Second,
		},
		Storage: StorageConfig{
			Engine: EngineMemory,
			Dir:    "./data/db",
		},
		Metrics:    MetricsConfig{Addr: ":9380"},
		Log:        LogConfig{Level: "info"},
		IDStrategy: "objectid",
	}
}

// Load reads path over the defaults, then applies the environment. An empty
// path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	str("FLINDOC_ADDR", &c.Server.Addr)
	str("FLINDOC_STORAGE", &c.Storage.Engine)
	str("FLINDOC_DATA_DIR", &c.Storage.Dir)
	str("FLINDOC_METRICS_ADDR", &c.Metrics.Addr)
	str("FLINDOC_LOG_LEVEL", &c.Log.Level)
	str("FLINDOC_ID_STRATEGY", &c.IDStrategy)

	if v, ok := lookup("FLINDOC_MAX_CONNECTIONS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FLINDOC_MAX_CONNECTIONS: %w", err)
		}
		c.Server.MaxConnections = n
	}
	if v, ok := lookup("FLINDOC_SYNC_WRITES"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FLINDOC_SYNC_WRITES: %w", err)
		}
		c.Storage.SyncWrites = b
	}
	if v, ok := lookup("FLINDOC_LOG_DEVELOPMENT"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FLINDOC_LOG_DEVELOPMENT: %w", err)
		}
		c.Log.Development = b
	}
	return nil
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch c.Storage.Engine {
	case EngineMemory:
	case EngineBadger:
		if c.Storage.Dir == "" {
			return errors.New("config: storage.dir is required for the badger engine")
		}
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}
	switch c.IDStrategy {
	case "", "objectid", "uuid":
	default:
		return fmt.Errorf("config: unknown id strategy %q", c.IDStrategy)
	}
	if c.Server.Addr == "" {
		return errors.New("config: server.addr is required")
	}
	if c.Server.MaxConnections < 0 {
		return errors.New("config: server.max_connections must not be negative")
	}
	return nil
}
