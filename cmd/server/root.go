package main

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Rbruno/PokeCapture/internal/config"
	"github.com/Rbruno/PokeCapture/internal/database"
	"github.com/Rbruno/PokeCapture/internal/logging"
	"github.com/Rbruno/PokeCapture/internal/services"
)

// app carries what every subcommand needs once flags are parsed
type app struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "pokecapture",
		Short: "Track captured Pokémon with a trading card for each one",
		Long: `PokeCapture keeps a collection of captured Pokémon, each linked to a trading
card picked from the Pokémon TCG API or TCGdex.

It serves the API the web interface talks to, a reverse proxy for the card
catalogs, and a few commands for working with the collection offline.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Level, a.verbose)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "pokecapture.yaml", "Path to an optional YAML config file")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(
		newServeCmd(a),
		newProxyCmd(a),
		newSearchCmd(a),
		newExportCmd(a),
		newImportCmd(a),
	)

	return cmd
}

// openCollection connects the database, builds the store chain and restores
// the last saved collection
func (a *app) openCollection(ctx context.Context) (*services.CollectionService, error) {
	if err := database.Initialize(a.cfg.Database.Path, a.logger); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	var preferred services.CollectionStore
	if a.cfg.Collection.SaveFilePath != "" {
		preferred = services.NewFileStore(a.cfg.Collection.SaveFilePath)
	}
	store := services.NewFallbackStore(preferred, services.NewKVStore(database.GetDB()), a.logger)

	collection := services.NewCollectionService(store, a.cfg.Providers.TCGdex.AssetURLTemplate, a.logger)
	if err := collection.LoadSaved(ctx); err != nil {
		return nil, err
	}
	return collection, nil
}

// runWithRecovery runs fn until ctx is done, restarting it after a panic
func runWithRecovery(ctx context.Context, name string, logger *zap.Logger, fn func(ctx context.Context)) {
	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("background worker panicked, restarting in 30 seconds",
						zap.String("worker", name), zap.Any("panic", r))
				}
			}()
			fn(ctx)
		}()

		select {
		case <-ctx.Done():
			return
		case <-time.After(30 * time.Second):
			logger.Info("background worker restarting after panic recovery", zap.String("worker", name))
		}
	}
}
