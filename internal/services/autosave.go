package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultAutosaveInterval = 30 * time.Second

// AutoSaver periodically saves a dirty, non-empty collection and saves once
// more when stopped
type AutoSaver struct {
	collection *CollectionService
	interval   time.Duration
	logger     *zap.Logger
}

func NewAutoSaver(collection *CollectionService, interval time.Duration, logger *zap.Logger) *AutoSaver {
	if interval <= 0 {
		interval = defaultAutosaveInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoSaver{
		collection: collection,
		interval:   interval,
		logger:     logger.Named("autosave"),
	}
}

// Start runs until ctx is cancelled
func (a *AutoSaver) Start(ctx context.Context) {
	a.logger.Info("auto-save started", zap.Duration("interval", a.interval))

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("auto-save stopping, writing final save")
			// ctx is already done; give the final save its own deadline
			finalCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			a.saveIfNeeded(finalCtx)
			cancel()
			return
		case <-ticker.C:
			a.saveIfNeeded(ctx)
		}
	}
}

func (a *AutoSaver) saveIfNeeded(ctx context.Context) {
	if a.collection.Len() == 0 || !a.collection.Dirty() {
		return
	}
	if err := a.collection.Save(ctx); err != nil {
		a.logger.Warn("periodic save failed", zap.Error(err))
		return
	}
	a.logger.Debug("collection saved")
}
