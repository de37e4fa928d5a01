package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. DOCBUILDER_HTTP_ADDR.
const EnvPrefix = "DOCBUILDER"

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr    string `mapstructure:"addr"`
	BaseURL string `mapstructure:"base_url"`
}

// StoreConfig selects the document repository.
type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// StorageConfig configures PDF object storage.
type StorageConfig struct {
	Dir           string        `mapstructure:"dir"`
	TempDir       string        `mapstructure:"temp_dir"`
	SigningSecret string        `mapstructure:"signing_secret"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// CatalogConfig points at the block definition catalog.
type CatalogConfig struct {
	Dir   string `mapstructure:"dir"`
	Watch bool   `mapstructure:"watch"`
}

// PDFConfig selects the LaTeX converter.
type PDFConfig struct {
	Converter      string        `mapstructure:"converter"`
	PDFLatexPath   string        `mapstructure:"pdflatex_path"`
	ConvertTimeout time.Duration `mapstructure:"convert_timeout"`
}

// CompileConfig tunes compile responses.
type CompileConfig struct {
	InlinePDFLimit int           `mapstructure:"inline_pdf_limit"`
	TempTTL        time.Duration `mapstructure:"temp_ttl"`
}

// VersionsConfig tunes version snapshots.
type VersionsConfig struct {
	Max int `mapstructure:"max"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config holds all runtime configuration. Values are populated from
// docbuilder.yaml, DOCBUILDER_* env vars and CLI flags.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Store    StoreConfig    `mapstructure:"store"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	PDF      PDFConfig      `mapstructure:"pdf"`
	Compile  CompileConfig  `mapstructure:"compile"`
	Versions VersionsConfig `mapstructure:"versions"`
	Log      LogConfig      `mapstructure:"log"`
}

// BindEnv enables DOCBUILDER_* overrides for nested keys.
func BindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	viper.SetDefault("http.addr", ":8080")
	viper.SetDefault("http.base_url", "http://localhost:8080")
	viper.SetDefault("store.driver", "memory")
	viper.SetDefault("store.sqlite_path", "docbuilder.db")
	viper.SetDefault("store.postgres_dsn", "")
	viper.SetDefault("storage.dir", "data/objects")
	viper.SetDefault("storage.temp_dir", "data/tmp")
	viper.SetDefault("storage.signing_secret", "")
	viper.SetDefault("storage.sweep_interval", time.Minute)
	viper.SetDefault("catalog.dir", "catalog")
	viper.SetDefault("catalog.watch", false)
	viper.SetDefault("pdf.converter", "pdflatex")
	viper.SetDefault("pdf.pdflatex_path", "pdflatex")
	viper.SetDefault("pdf.convert_timeout", 30*time.Second)
	viper.SetDefault("compile.inline_pdf_limit", 5<<20)
	viper.SetDefault("compile.temp_ttl", 5*time.Minute)
	viper.SetDefault("versions.max", 5)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks values the server cannot start without.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return errors.New("store.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}
	switch c.PDF.Converter {
	case "pdflatex", "preview":
	default:
		return fmt.Errorf("pdf.converter %q is not supported", c.PDF.Converter)
	}
	if c.Storage.SigningSecret == "" {
		return errors.New("storage.signing_secret is required")
	}
	if c.PDF.ConvertTimeout <= 0 {
		return errors.New("pdf.convert_timeout must be positive")
	}
	if c.Versions.Max <= 0 {
		return errors.New("versions.max must be positive")
	}
	return nil
}
