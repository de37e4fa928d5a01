package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/rs/zerolog"

	"github.com/lumiforge/docbuilder-backend/internal/blockdefs"
	"github.com/lumiforge/docbuilder-backend/internal/config"
	"github.com/lumiforge/docbuilder-backend/internal/documents"
	"github.com/lumiforge/docbuilder-backend/internal/logging"
	"github.com/lumiforge/docbuilder-backend/internal/pdf"
	"github.com/lumiforge/docbuilder-backend/internal/store/postgres"
	"github.com/lumiforge/docbuilder-backend/internal/store/sqlite"
)

// loadConfig reads and validates configuration and builds a logger writing
// to logOut, or stdout when nil.
func loadConfig(logOut io.Writer) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, zerolog.Nop(), fmt.Errorf("config: %w", err)
	}
	log, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Writer: logOut})
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, log, nil
}

// openRepository opens the configured store. The returned close func is
// never nil.
func openRepository(ctx context.Context, cfg config.StoreConfig) (documents.Repository, func() error, error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "postgres":
		s, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return documents.NewInMemoryRepository(), func() error { return nil }, nil
	}
}

func newConverter(cfg config.PDFConfig, log zerolog.Logger) documents.Converter {
	if cfg.Converter == "preview" {
		return pdf.Preview{Title: "docbuilder preview"}
	}
	return pdf.NewPDFLatex(cfg.PDFLatexPath, log)
}

// loadCatalog fills a registry from dir. A missing directory yields an empty
// catalog.
func loadCatalog(dir string, log zerolog.Logger) (*blockdefs.Registry, error) {
	registry := blockdefs.NewRegistry()
	defs, err := blockdefs.LoadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("dir", dir).Msg("catalog directory not found, starting with no block definitions")
		return registry, nil
	}
	if err != nil {
		return nil, err
	}
	if err := registry.Replace(defs); err != nil {
		return nil, err
	}
	log.Info().Str("dir", dir).Int("definitions", registry.Len()).Msg("catalog loaded")
	return registry, nil
}
