// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

// Package config loads tessera configuration. Sources are layered: flag
// defaults, then the YAML file, then flags set on the command line.
// store.database_url falls back to the DATABASE_URL environment variable.
package config

import (
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/tessera-dev/tessera/internal/logging"
	"github.com/tessera-dev/tessera/internal/xdg"
)

// CodeInvalid is the error code for configuration problems.
const CodeInvalid = "CONFIG_INVALID"

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the complete runtime configuration.
type Config struct {
	HTTP struct {
		Addr string `koanf:"addr"`
	} `koanf:"http"`
	Metrics struct {
		Addr string `koanf:"addr"`
	} `koanf:"metrics"`
	Log struct {
		Format string `koanf:"format"`
		Level  string `koanf:"level"`
	} `koanf:"log"`
	Store struct {
		Driver      string `koanf:"driver"`
		DatabaseURL string `koanf:"database_url"`
	} `koanf:"store"`
	Bundles struct {
		Dir          string        `koanf:"dir"`
		FetchTimeout time.Duration `koanf:"fetch_timeout"`
		LZ4          bool          `koanf:"lz4"`
	} `koanf:"bundles"`
	Proxy struct {
		BaseURL             string        `koanf:"base_url"`
		Timeout             time.Duration `koanf:"timeout"`
		RequireInstallation bool          `koanf:"require_installation"`
	} `koanf:"proxy"`
	Loader struct {
		BundleBaseURL string        `koanf:"bundle_base_url"`
		FetchTimeout  time.Duration `koanf:"fetch_timeout"`
	} `koanf:"loader"`
	Sandbox struct {
		ExecTimeout time.Duration `koanf:"exec_timeout"`
	} `koanf:"sandbox"`
	Admin struct {
		KeyHashes []string `koanf:"key_hashes"`
	} `koanf:"admin"`
}

// RegisterFlags adds one flag per configuration key to fs. Flag defaults
// are the configuration defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("http.addr", ":8080", "API listen address")
	fs.String("metrics.addr", "127.0.0.1:9100", "metrics/health listen address (empty = disabled)")
	fs.String("log.format", "json", "log format (json or text)")
	fs.String("log.level", "info", "log level (debug, info, warn, error)")
	fs.String("store.driver", DriverPostgres, "storage driver (postgres or memory)")
	fs.String("store.database_url", "", "PostgreSQL URL (default: $DATABASE_URL)")
	fs.String("bundles.dir", "", "bundle store directory (default: XDG_DATA_HOME/tessera/bundles)")
	fs.Duration("bundles.fetch_timeout", 10*time.Second, "timeout for remote bundle fetches")
	fs.Bool("bundles.lz4", false, "store uploaded bundles LZ4-compressed")
	fs.String("proxy.base_url", "http://127.0.0.1:8081", "plugin execution service base URL")
	fs.Duration("proxy.timeout", 15*time.Second, "timeout for plugin execution service calls")
	fs.Bool("proxy.require_installation", true, "require X-Organization-ID on proxied calls")
	fs.String("loader.bundle_base_url", "", "fetch bundles over HTTP from this base (default: in-process)")
	fs.Duration("loader.fetch_timeout", 10*time.Second, "timeout for loader bundle fetches")
	fs.Duration("sandbox.exec_timeout", 5*time.Second, "guest execution timeout")
	fs.StringSlice("admin.key_hashes", nil, "argon2id hashes of accepted admin keys")
}

// Load reads path (or the XDG default when path is empty and the default
// exists) and overlays flags, which must have been passed to RegisterFlags.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		if def, err := xdg.ConfigFile(); err == nil {
			if _, statErr := os.Stat(def); statErr == nil {
				path = def
			}
		}
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, oops.Code(CodeInvalid).With("path", path).Wrapf(err, "config file")
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code(CodeInvalid).With("path", path).Wrapf(err, "read config file")
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code(CodeInvalid).Wrapf(err, "read flags")
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code(CodeInvalid).Wrapf(err, "decode configuration")
	}
	if cfg.Store.DatabaseURL == "" {
		cfg.Store.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.Bundles.Dir == "" {
		dir, err := xdg.BundlesDir()
		if err != nil {
			return nil, oops.Code(CodeInvalid).Wrapf(err, "resolve bundles.dir")
		}
		cfg.Bundles.Dir = dir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration before use.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "unknown level %q", c.Log.Level)
	}
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return invalid("store.database_url", "is required for the postgres driver (or set DATABASE_URL)")
		}
	case DriverMemory:
	default:
		return invalid("store.driver", "must be 'postgres' or 'memory', got %q", c.Store.Driver)
	}
	if err := absoluteHTTP("proxy.base_url", c.Proxy.BaseURL, true); err != nil {
		return err
	}
	if err := absoluteHTTP("loader.bundle_base_url", c.Loader.BundleBaseURL, false); err != nil {
		return err
	}
	for key, d := range map[string]time.Duration{
		"bundles.fetch_timeout": c.Bundles.FetchTimeout,
		"proxy.timeout":         c.Proxy.Timeout,
		"loader.fetch_timeout":  c.Loader.FetchTimeout,
		"sandbox.exec_timeout":  c.Sandbox.ExecTimeout,
	} {
		if d <= 0 {
			return invalid(key, "must be positive, got %s", d)
		}
	}
	return nil
}

// LogLevel is the parsed log.level.
func (c *Config) LogLevel() slog.Level {
	level, _ := logging.ParseLevel(c.Log.Level) //nolint:errcheck // checked by Validate
	return level
}

func absoluteHTTP(key, raw string, required bool) error {
	if raw == "" {
		if required {
			return invalid(key, "is required")
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid(key, "must be an absolute http(s) URL, got %q", raw)
	}
	return nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code(CodeInvalid).With("key", key).Errorf(key+" "+format, args...)
}
