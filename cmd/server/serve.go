package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Rbruno/PokeCapture/internal/api"
	"github.com/Rbruno/PokeCapture/internal/services"
)

func newServeCmd(a *app) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the PokeCapture API server",
		Long: `Starts the HTTP API, the /proxy endpoint and, when FRONTEND_DIST_PATH is set,
the web interface. The catalog is crawled in the background on startup and the
collection is saved periodically and on shutdown.`,
		Example: `  # Start on the configured port (default 8080)
  pokecapture serve

  # Use the official API with a key from the environment
  CARD_PROVIDER=pokemontcg POKEMON_TCG_API_KEY=... pokecapture serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				a.cfg.Server.Port = port
			}
			return a.serve(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides config)")

	return cmd
}

func (a *app) serve(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	collection, err := a.openCollection(ctx)
	if err != nil {
		return err
	}

	catalog, err := services.NewCatalogService(a.cfg.Catalog, a.logger)
	if err != nil {
		return err
	}

	factory, err := services.NewProviderFactory(a.cfg.Providers, a.logger)
	if err != nil {
		return err
	}
	lookups := services.NewLookupManager(factory, a.cfg.Lookup, a.logger)
	defer lookups.Shutdown()

	var workers sync.WaitGroup

	workers.Add(1)
	go func() {
		defer workers.Done()
		if err := catalog.Refresh(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("catalog crawl failed", zap.Error(err))
		}
	}()

	autoSaver := services.NewAutoSaver(collection, a.cfg.Collection.AutosaveInterval, a.logger)
	workers.Add(1)
	go func() {
		defer workers.Done()
		runWithRecovery(ctx, "autosave", a.logger, autoSaver.Start)
	}()

	router := api.SetupRouter(a.cfg, api.Services{
		Catalog:    catalog,
		Lookups:    lookups,
		Collection: collection,
	}, a.logger)

	srv := &http.Server{
		Addr:              ":" + a.cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.String("card_provider", string(a.cfg.Providers.CardProvider)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down server")
	case err := <-serverErr:
		cancel()
		workers.Wait()
		return fmt.Errorf("server failed: %w", err)
	}

	// Stops the workers; the auto-saver writes its final save
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("server forced to shutdown", zap.Error(err))
	}

	workers.Wait()
	a.logger.Info("server exited")
	return nil
}
