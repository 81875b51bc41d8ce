// Package config loads service settings from defaults, an optional YAML file,
// and environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	FlagBackendNone  = "none"
	FlagBackendFile  = "file"
	FlagBackendRedis = "redis"

	StateBackendDatabase = "database"
	StateBackendAPI      = "api"
)

type Config struct {
	Temporal     TemporalConfig    `yaml:"temporal"`
	Database     DatabaseConfig    `yaml:"database"`
	API          APIConfig         `yaml:"api"`
	Worker       WorkerConfig      `yaml:"worker"`
	FeatureFlags FeatureFlagConfig `yaml:"featureFlags"`
	Tracing      TracingConfig     `yaml:"tracing"`
	Log          LogConfig         `yaml:"log"`
}

type TemporalConfig struct {
	Address   string `yaml:"address"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"taskQueue"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// APIConfig is shared by the config API server (Addr, Token) and by workers
// that reach it over HTTP (URL, Token).
type APIConfig struct {
	Addr  string `yaml:"addr"`
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

type WorkerConfig struct {
	Addr         string `yaml:"addr"`
	StateBackend string `yaml:"stateBackend"`
}

type FeatureFlagConfig struct {
	Backend     string   `yaml:"backend"`
	Path        string   `yaml:"path"`
	RedisAddrs  []string `yaml:"redisAddrs"`
	RedisPrefix string   `yaml:"redisPrefix"`
}

type TracingConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"serviceName"`
}

type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

func Default() Config {
	return Config{
		Temporal: TemporalConfig{
			Address:   "127.0.0.1:7233",
			Namespace: "default",
			TaskQueue: "job-input",
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			DSN:    "jobinput.db",
		},
		API: APIConfig{
			Addr: ":8081",
			URL:  "http://127.0.0.1:8081",
		},
		Worker: WorkerConfig{
			Addr:         ":8082",
			StateBackend: StateBackendDatabase,
		},
		FeatureFlags: FeatureFlagConfig{
			Backend:     FlagBackendNone,
			RedisPrefix: "featureflag:",
		},
		Tracing: TracingConfig{ServiceName: "jobinput"},
		Log:     LogConfig{Format: "json", Level: "info"},
	}
}

// Load reads path (skipped when empty) over the defaults and applies the
// process environment.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

func LoadWithEnv(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv(lookup)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set("TEMPORAL_ADDRESS", &c.Temporal.Address)
	set("TEMPORAL_NAMESPACE", &c.Temporal.Namespace)
	set("JOB_INPUT_TASK_QUEUE", &c.Temporal.TaskQueue)
	set("DATABASE_DRIVER", &c.Database.Driver)
	set("DATABASE_DSN", &c.Database.DSN)
	set("API_ADDR", &c.API.Addr)
	set("CONFIG_API_URL", &c.API.URL)
	set("CONFIG_API_TOKEN", &c.API.Token)
	set("WORKER_ADDR", &c.Worker.Addr)
	set("STATE_BACKEND", &c.Worker.StateBackend)
	set("FEATURE_FLAG_BACKEND", &c.FeatureFlags.Backend)
	set("FEATURE_FLAG_PATH", &c.FeatureFlags.Path)
	set("OTEL_ENDPOINT", &c.Tracing.Endpoint)
	set("LOG_FORMAT", &c.Log.Format)
	set("LOG_LEVEL", &c.Log.Level)

	var addrs string
	set("REDIS_ADDRS", &addrs)
	if addrs != "" {
		c.FeatureFlags.RedisAddrs = nil
		for _, a := range strings.Split(addrs, ",") {
			if a = strings.TrimSpace(a); a != "" {
				c.FeatureFlags.RedisAddrs = append(c.FeatureFlags.RedisAddrs, a)
			}
		}
	}
}

func (c Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	switch c.Worker.StateBackend {
	case StateBackendDatabase:
	case StateBackendAPI:
		if c.API.URL == "" {
			errs = append(errs, errors.New("state backend api requires an api url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown state backend %q", c.Worker.StateBackend))
	}
	switch c.FeatureFlags.Backend {
	case FlagBackendNone:
	case FlagBackendFile:
		if c.FeatureFlags.Path == "" {
			errs = append(errs, errors.New("feature flag backend file requires a path"))
		}
	case FlagBackendRedis:
		if len(c.FeatureFlags.RedisAddrs) == 0 {
			errs = append(errs, errors.New("feature flag backend redis requires at least one address"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown feature flag backend %q", c.FeatureFlags.Backend))
	}
	if c.Temporal.TaskQueue == "" {
		errs = append(errs, errors.New("temporal task queue required"))
	}
	return errors.Join(errs...)
}
