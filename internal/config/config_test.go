package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetViper clears all viper state between tests to avoid cross-contamination.
func resetViper() {
	viper.Reset()
}

func TestLoadDefaults(t *testing.T) {
	resetViper()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "pdflatex", cfg.PDF.Converter)
	assert.Equal(t, 30*time.Second, cfg.PDF.ConvertTimeout)
	assert.Equal(t, 5<<20, cfg.Compile.InlinePDFLimit)
	assert.Equal(t, 5*time.Minute, cfg.Compile.TempTTL)
	assert.Equal(t, 5, cfg.Versions.Max)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Catalog.Watch)
}

func TestLoadEnvOverrides(t *testing.T) {
	resetViper()
	BindEnv()
	t.Setenv("DOCBUILDER_STORE_DRIVER", "sqlite")
	t.Setenv("DOCBUILDER_PDF_CONVERT_TIMEOUT", "45s")
	t.Setenv("DOCBUILDER_VERSIONS_MAX", "9")
	t.Setenv("DOCBUILDER_CATALOG_WATCH", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 45*time.Second, cfg.PDF.ConvertTimeout)
	assert.Equal(t, 9, cfg.Versions.Max)
	assert.True(t, cfg.Catalog.Watch)
}

func TestLoadConfigFile(t *testing.T) {
	resetViper()
	path := filepath.Join(t.TempDir(), "docbuilder.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: postgres\n  postgres_dsn: host=db\nlog:\n  format: console\n"), 0o644))
	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "host=db", cfg.Store.PostgresDSN)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestValidate(t *testing.T) {
	resetViper()
	cfg, err := Load()
	require.NoError(t, err)

	assert.Error(t, cfg.Validate(), "signing secret is required")
	cfg.Storage.SigningSecret = "s3cret"
	assert.NoError(t, cfg.Validate())

	bad := cfg
	bad.Store.Driver = "mysql"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Store.Driver = "postgres"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.PDF.Converter = "xelatex"
	assert.Error(t, bad.Validate())
}
