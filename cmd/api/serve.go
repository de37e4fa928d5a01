package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lumiforge/docbuilder-backend/internal/blockdefs"
	"github.com/lumiforge/docbuilder-backend/internal/documents"
	"github.com/lumiforge/docbuilder-backend/internal/httpapi"
	"github.com/lumiforge/docbuilder-backend/internal/storage"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides http.addr)")
	_ = viper.BindPFlag("http.addr", serveCmd.Flags().Lookup("addr"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeRepo(); err != nil {
			log.Warn().Err(err).Msg("closing store")
		}
	}()

	objects, err := storage.NewFS(cfg.Storage.Dir)
	if err != nil {
		return err
	}
	signer, err := storage.NewSigner(cfg.Storage.SigningSecret)
	if err != nil {
		return err
	}
	temp, err := storage.NewTempStore(cfg.Storage.TempDir, cfg.HTTP.BaseURL, signer, log)
	if err != nil {
		return err
	}
	go temp.Run(ctx, cfg.Storage.SweepInterval)

	registry, err := loadCatalog(cfg.Catalog.Dir, log)
	if err != nil {
		return err
	}
	if cfg.Catalog.Watch {
		watcher, err := blockdefs.NewWatcher(cfg.Catalog.Dir, registry, log)
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	hub := httpapi.NewHub(log)
	defer hub.Close()

	service := documents.NewService(documents.Dependencies{
		Repo:        repo,
		Definitions: registry,
		Converter:   newConverter(cfg.PDF, log),
		Objects:     objects,
		Temp:        temp,
		Events:      hub,
		Logger:      log,
	}, documents.Options{
		ConvertTimeout: cfg.PDF.ConvertTimeout,
		InlinePDFLimit: cfg.Compile.InlinePDFLimit,
		TempTTL:        cfg.Compile.TempTTL,
		MaxVersions:    cfg.Versions.Max,
	})

	handler := httpapi.NewHandler(httpapi.Dependencies{
		Documents:   service,
		Definitions: registry,
		Temp:        temp,
		Signer:      signer,
		Hub:         hub,
		BaseURL:     cfg.HTTP.BaseURL,
		Logger:      log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.Router(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.HTTP.Addr).
			Str("store", cfg.Store.Driver).
			Str("converter", cfg.PDF.Converter).
			Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
