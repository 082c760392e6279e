package services

import (
	"context"
	"time"

	"github.com/Rbruno/PokeCapture/internal/models"
)

// RetryPolicy re-runs a page fetch a bounded number of times with a fixed delay
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration

	// ShouldRetry decides whether another attempt is warranted; nil never retries
	ShouldRetry func(page *models.CardPage, err error) bool

	// OnRetry is called before each retry with the 1-based retry number
	OnRetry func(retry int, err error)
}

// RetryEmptyOrTransient retries when the page has no items or the failure is a timeout
func RetryEmptyOrTransient(page *models.CardPage, err error) bool {
	if err != nil {
		return IsTransient(err)
	}
	return page == nil || len(page.Items) == 0
}

// Do runs fn once plus up to MaxRetries retries and returns the last result.
// A cancelled ctx stops waiting and returns ctx.Err().
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) (*models.CardPage, error)) (*models.CardPage, error) {
	page, err := fn(ctx)
	for retry := 1; retry <= p.MaxRetries; retry++ {
		if p.ShouldRetry == nil || !p.ShouldRetry(page, err) {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if p.OnRetry != nil {
			p.OnRetry(retry, err)
		}

		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		page, err = fn(ctx)
	}
	return page, err
}
