package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // display_timezone must resolve on hosts without zoneinfo

	"github.com/cockroachdb/errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "SKATING_"
	envConfigFile = "SKATING_CONFIG"
	// Kept so existing deployments that only set the database location keep working.
	envLegacyDatabasePath = "DATABASE_PATH"
)

// Config holds all configuration for the application. By centralizing these
// settings, we make the application easier to manage and deploy.
type Config struct {
	// --- Server & Paths ---
	ServerAddr   string `koanf:"server_addr"`
	DataPath     string `koanf:"data_path"`
	DatabasePath string `koanf:"database_path"`

	// --- HTTP ---
	CORSAllowedOrigins []string      `koanf:"cors_allowed_origins"`
	MaxImportBytes     int64         `koanf:"max_import_bytes"`
	ReadTimeout        time.Duration `koanf:"read_timeout"`
	WriteTimeout       time.Duration `koanf:"write_timeout"`
	ShutdownTimeout    time.Duration `koanf:"shutdown_timeout"`

	// --- Presentation ---
	SiteTitle       string `koanf:"site_title"`
	Organizer       string `koanf:"organizer"`
	DisplayTimezone string `koanf:"display_timezone"`

	LogLevel string `koanf:"log_level"`

	// --- Parsed & Derived Fields ---
	// Location is DisplayTimezone resolved once at startup.
	Location *time.Location `koanf:"-"`
}

// Defaults returns the configuration used when nothing overrides a value.
func Defaults() Config {
	return Config{
		ServerAddr:         ":8080",
		DataPath:           "./data",
		CORSAllowedOrigins: []string{"*"},
		MaxImportBytes:     10 << 20,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       30 * time.Second,
		ShutdownTimeout:    10 * time.Second,
		SiteTitle:          "Kilpailutulokset",
		DisplayTimezone:    "Europe/Helsinki",
		LogLevel:           "info",
	}
}

// Load builds a Config by layering, from lowest to highest precedence:
//  1. Defaults()
//  2. a YAML file, when SKATING_CONFIG points at one
//  3. SKATING_* environment variables (SKATING_SERVER_ADDR -> server_addr)
//
// It validates the result and returns an error if the configuration is
// invalid, preventing the server from starting.
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := strings.TrimSpace(os.Getenv(envConfigFile)); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "load config file %s", path)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, errors.Wrap(err, "load environment")
	}

	cfg := Defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = strings.TrimSpace(os.Getenv(envLegacyDatabasePath))
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finalize validates critical values and fills derived fields.
func (c *Config) finalize() error {
	c.ServerAddr = strings.TrimSpace(c.ServerAddr)
	if c.ServerAddr == "" {
		return errors.New("server_addr must not be empty")
	}
	if c.DataPath == "" {
		c.DataPath = "./data"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataPath, "skating-results.db")
	}

	if c.MaxImportBytes <= 0 {
		return errors.Newf("max_import_bytes must be > 0, got %d", c.MaxImportBytes)
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return errors.New("read_timeout, write_timeout and shutdown_timeout must be > 0")
	}

	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.Newf("invalid log_level %q", c.LogLevel)
	}

	// Env values arrive as one comma separated string.
	var origins []string
	for _, entry := range c.CORSAllowedOrigins {
		for _, o := range strings.Split(entry, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c.CORSAllowedOrigins = origins

	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return errors.Wrapf(err, "invalid display_timezone %q", c.DisplayTimezone)
	}
	c.Location = loc

	return nil
}
