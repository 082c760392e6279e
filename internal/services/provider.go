package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Rbruno/PokeCapture/internal/config"
	"github.com/Rbruno/PokeCapture/internal/metrics"
	"github.com/Rbruno/PokeCapture/internal/models"
)

// CardProvider searches one external card catalog and returns normalized pages.
// Implementations never retry; that is left to the caller.
type CardProvider interface {
	Name() string
	Search(ctx context.Context, name string, page, pageSize int) (*models.CardPage, error)
}

// ProviderFactory returns the provider a new lookup session should use
type ProviderFactory func() CardProvider

// NewProviderFactory selects the configured card provider.
// The keyed provider is stateless and shared; the community provider caches
// the full card list, so each session gets its own instance.
func NewProviderFactory(cfg config.ProvidersConfig, logger *zap.Logger) (ProviderFactory, error) {
	switch cfg.CardProvider {
	case models.ProviderPokemonTCG:
		quota := NewQuota(cfg.PokemonTCG.RequestsPerSecond, cfg.PokemonTCG.DailyLimit)
		svc := NewPokemonTCGService(cfg.PokemonTCG, quota, logger)
		return func() CardProvider { return svc }, nil
	case models.ProviderTCGdex:
		client := &http.Client{Timeout: 60 * time.Second}
		return func() CardProvider {
			return NewTCGdexService(cfg.TCGdex, client, logger)
		}, nil
	default:
		return nil, fmt.Errorf("unknown card provider %q", cfg.CardProvider)
	}
}

func observeSearch(provider string, start time.Time, page *models.CardPage, err error) {
	metrics.ProviderLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		metrics.ProviderRequestsTotal.WithLabelValues(provider, "error").Inc()
	case page == nil || len(page.Items) == 0:
		metrics.ProviderRequestsTotal.WithLabelValues(provider, "empty").Inc()
	default:
		metrics.ProviderRequestsTotal.WithLabelValues(provider, "success").Inc()
	}
}
