// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads ethanol configuration from a YAML file with command
// line overrides.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/ethanol/internal/auth"
	"github.com/holomush/ethanol/internal/xdg"
)

// Database drivers.
const (
	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"
)

// Session backends.
const (
	SessionToken = "token"
	SessionRedis = "redis"
	SessionSCS   = "scs"
)

// Auth driver names known to the CLI.
const (
	DriverDatabase  = auth.DefaultDriverName
	DriverCryptFile = "cryptfile"
	DriverOIDC      = "oidc"
)

// Config is the complete ethanol configuration.
type Config struct {
	Auth      AuthConfig      `koanf:"auth" yaml:"auth"`
	Hasher    HasherConfig    `koanf:"hasher" yaml:"hasher"`
	Database  DatabaseConfig  `koanf:"database" yaml:"database"`
	Session   SessionConfig   `koanf:"session" yaml:"session"`
	Audit     AuditConfig     `koanf:"audit" yaml:"audit"`
	OIDC      OIDCConfig      `koanf:"oidc" yaml:"oidc"`
	CryptFile CryptFileConfig `koanf:"cryptfile" yaml:"cryptfile"`
	Log       LogConfig       `koanf:"log" yaml:"log"`
	Metrics   MetricsConfig   `koanf:"metrics" yaml:"metrics"`
}

// AuthConfig controls provisioning and driver selection.
type AuthConfig struct {
	ActivateEmails      bool     `koanf:"activate_emails" yaml:"activate_emails"`
	ActivationKeyLength int      `koanf:"activation_key_length" yaml:"activation_key_length"`
	DefaultAuthDriver   string   `koanf:"default_auth_driver" yaml:"default_auth_driver"`
	Drivers             []string `koanf:"drivers" yaml:"drivers"`
	PermissionCacheSize int      `koanf:"permission_cache_size" yaml:"permission_cache_size"`
}

// HasherConfig selects the credential hash and its cost.
type HasherConfig struct {
	Algorithm string       `koanf:"algorithm" yaml:"algorithm"`
	Argon2    Argon2Config `koanf:"argon2" yaml:"argon2"`
	Scrypt    ScryptConfig `koanf:"scrypt" yaml:"scrypt"`
}

// Argon2Config mirrors auth.Argon2Params.
type Argon2Config struct {
	Time      uint32 `koanf:"time" yaml:"time"`
	MemoryKiB uint32 `koanf:"memory_kib" yaml:"memory_kib"`
	Threads   uint8  `koanf:"threads" yaml:"threads"`
	KeyLen    uint32 `koanf:"key_len" yaml:"key_len"`
}

// ScryptConfig mirrors auth.ScryptParams.
type ScryptConfig struct {
	LogN   uint8 `koanf:"log_n" yaml:"log_n"`
	R      int   `koanf:"r" yaml:"r"`
	P      int   `koanf:"p" yaml:"p"`
	KeyLen int   `koanf:"key_len" yaml:"key_len"`
}

// DatabaseConfig locates the directory and attempt stores.
type DatabaseConfig struct {
	Driver       string        `koanf:"driver" yaml:"driver"`
	DSN          string        `koanf:"dsn" yaml:"dsn"`
	Path         string        `koanf:"path" yaml:"path"`
	MaxConns     int32         `koanf:"max_conns" yaml:"max_conns"`
	PingAttempts uint64        `koanf:"ping_attempts" yaml:"ping_attempts"`
	PingBackoff  time.Duration `koanf:"ping_backoff" yaml:"ping_backoff"`
}

// SessionConfig selects the session backend.
type SessionConfig struct {
	Backend     string        `koanf:"backend" yaml:"backend"`
	TTL         time.Duration `koanf:"ttl" yaml:"ttl"`
	Secret      string        `koanf:"secret" yaml:"secret"`
	RedisURL    string        `koanf:"redis_url" yaml:"redis_url"`
	RedisPrefix string        `koanf:"redis_prefix" yaml:"redis_prefix"`
}

// AuditConfig tunes the attempt log.
type AuditConfig struct {
	WALPath        string        `koanf:"wal_path" yaml:"wal_path"`
	ReplayInterval time.Duration `koanf:"replay_interval" yaml:"replay_interval"`
	ThrottleWindow time.Duration `koanf:"throttle_window" yaml:"throttle_window"`
}

// OIDCConfig configures the oidc driver.
type OIDCConfig struct {
	Issuer   string   `koanf:"issuer" yaml:"issuer"`
	ClientID string   `koanf:"client_id" yaml:"client_id"`
	Domains  []string `koanf:"domains" yaml:"domains"`
}

// CryptFileConfig configures the cryptfile driver.
type CryptFileConfig struct {
	Path string `koanf:"path" yaml:"path"`
}

// LogConfig configures logging.Setup.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// MetricsConfig configures the metrics and health endpoint.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	argon := auth.DefaultArgon2Params()
	sc := auth.DefaultScryptParams()
	return Config{
		Auth: AuthConfig{
			ActivateEmails:      false,
			ActivationKeyLength: auth.DefaultTokenLength,
			DefaultAuthDriver:   DriverDatabase,
			Drivers:             []string{DriverDatabase},
			PermissionCacheSize: 256,
		},
		Hasher: HasherConfig{
			Algorithm: auth.AlgorithmArgon2id,
			Argon2: Argon2Config{
				Time: argon.Time, MemoryKiB: argon.MemoryKiB, Threads: argon.Threads, KeyLen: argon.KeyLen,
			},
			Scrypt: ScryptConfig{LogN: sc.LogN, R: sc.R, P: sc.P, KeyLen: sc.KeyLen},
		},
		Database: DatabaseConfig{
			Driver:       DatabaseSQLite,
			MaxConns:     10,
			PingAttempts: 5,
			PingBackoff:  200 * time.Millisecond,
		},
		Session: SessionConfig{
			Backend: SessionToken,
			TTL:     24 * time.Hour,
		},
		Audit: AuditConfig{
			ReplayInterval: time.Minute,
			ThrottleWindow: 15 * time.Minute,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path over the defaults, then applies flags
// that were set explicitly. An empty path selects the XDG config file, which
// may be absent; an explicit path must exist.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		p, err := xdg.ConfigFile()
		if err != nil {
			return Config{}, err
		}
		path = p
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_PARSE_FAILED").With("path", path).Wrap(err)
		}
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return Config{}, oops.Code("CONFIG_NOT_FOUND").With("path", path).Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_PARSE_FAILED").With("path", path).Wrap(err)
	}
	if cfg.Database.Path == "" && cfg.Database.Driver == DatabaseSQLite {
		dir, err := xdg.DataDir()
		if err != nil {
			return Config{}, err
		}
		cfg.Database.Path = filepath.Join(dir, "ethanol.db")
	}
	return cfg, cfg.Validate()
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"db-driver":      "database.driver",
	"dsn":            "database.dsn",
	"db-path":        "database.path",
	"auth-driver":    "auth.default_auth_driver",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"session":        "session.backend",
	"redis-url":      "session.redis_url",
	"wal":            "audit.wal_path",
	"metrics-addr":   "metrics.addr",
	"activate-email": "auth.activate_emails",
}

// RegisterFlags adds the override flags Load understands.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("db-driver", "", "database driver (sqlite or postgres)")
	flags.String("dsn", "", "PostgreSQL connection string")
	flags.String("db-path", "", "SQLite database file")
	flags.String("auth-driver", "", "default auth driver")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text or json)")
	flags.String("session", "", "session backend (token, redis or scs)")
	flags.String("redis-url", "", "Redis URL for the redis session backend")
	flags.String("wal", "", "audit write-ahead log path")
	flags.String("metrics-addr", "", "listen address for metrics and health endpoints")
	flags.Bool("activate-email", false, "require email activation for new accounts")
}

// Validate reports the first configuration error.
func (c Config) Validate() error {
	known := []string{DriverDatabase, DriverCryptFile, DriverOIDC}
	if len(c.Auth.Drivers) == 0 {
		return invalid("auth.drivers", "at least one driver is required")
	}
	for _, d := range c.Auth.Drivers {
		if !slices.Contains(known, d) {
			return invalid("auth.drivers", "unknown driver "+d)
		}
	}
	if !slices.Contains(c.Auth.Drivers, c.Auth.DefaultAuthDriver) {
		return invalid("auth.default_auth_driver", "must be one of auth.drivers")
	}
	if c.Auth.ActivationKeyLength <= 0 {
		return invalid("auth.activation_key_length", "must be positive")
	}
	switch c.Hasher.Algorithm {
	case auth.AlgorithmArgon2id, auth.AlgorithmScrypt:
	default:
		return invalid("hasher.algorithm", "unknown algorithm "+c.Hasher.Algorithm)
	}

	switch c.Database.Driver {
	case DatabaseSQLite:
		if c.Database.Path == "" {
			return invalid("database.path", "required for sqlite")
		}
	case DatabasePostgres:
		if c.Database.DSN == "" {
			return invalid("database.dsn", "required for postgres")
		}
	default:
		return invalid("database.driver", "unknown driver "+c.Database.Driver)
	}

	switch c.Session.Backend {
	case SessionToken, SessionSCS:
	case SessionRedis:
		if c.Session.RedisURL == "" {
			return invalid("session.redis_url", "required for the redis backend")
		}
	default:
		return invalid("session.backend", "unknown backend "+c.Session.Backend)
	}
	if c.Session.Backend == SessionSCS && c.Database.Driver != DatabaseSQLite {
		return invalid("session.backend", "scs sessions are stored in the sqlite database")
	}
	if c.Session.TTL <= 0 {
		return invalid("session.ttl", "must be positive")
	}

	if slices.Contains(c.Auth.Drivers, DriverCryptFile) && c.CryptFile.Path == "" {
		return invalid("cryptfile.path", "required when the cryptfile driver is enabled")
	}
	if slices.Contains(c.Auth.Drivers, DriverOIDC) {
		if c.OIDC.Issuer == "" || c.OIDC.ClientID == "" {
			return invalid("oidc", "issuer and client_id are required when the oidc driver is enabled")
		}
		if len(c.OIDC.Domains) == 0 {
			return invalid("oidc.domains", "at least one domain is required")
		}
	}
	return nil
}

func invalid(key, reason string) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf("%s: %s", key, strings.TrimSpace(reason))
}

// Argon2Params converts the hasher section.
func (h HasherConfig) Argon2Params() auth.Argon2Params {
	return auth.Argon2Params{Time: h.Argon2.Time, MemoryKiB: h.Argon2.MemoryKiB, Threads: h.Argon2.Threads, KeyLen: h.Argon2.KeyLen}
}

// ScryptParams converts the hasher section.
func (h HasherConfig) ScryptParams() auth.ScryptParams {
	return auth.ScryptParams{LogN: h.Scrypt.LogN, R: h.Scrypt.R, P: h.Scrypt.P, KeyLen: h.Scrypt.KeyLen}
}

// Policy returns the local driver's provisioning policy.
func (a AuthConfig) Policy() auth.ProvisionPolicy {
	return auth.ProvisionPolicy{ActivateEmails: a.ActivateEmails, ActivationKeyLength: a.ActivationKeyLength}
}
