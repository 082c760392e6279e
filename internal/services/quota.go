package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Quota paces requests to one upstream: a per-second token bucket plus a daily cap
// that resets at local midnight. A zero daily limit disables the cap.
type Quota struct {
	limiter    *rate.Limiter
	dailyLimit int

	mu             sync.Mutex
	requestsToday  int
	lastRequestDay time.Time
	now            func() time.Time
}

// NewQuota creates a quota. perSecond <= 0 disables pacing.
func NewQuota(perSecond float64, dailyLimit int) *Quota {
	limit := rate.Inf
	burst := 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &Quota{
		limiter:    rate.NewLimiter(limit, burst),
		dailyLimit: dailyLimit,
		now:        time.Now,
	}
}

// Wait blocks until the next request may proceed, or fails when today's budget is spent
func (q *Quota) Wait(ctx context.Context) error {
	if !q.take() {
		return fmt.Errorf("%w (%d per day)", ErrQuotaExceeded, q.dailyLimit)
	}
	if err := q.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed waiting for rate limiter: %w", err)
	}
	return nil
}

func (q *Quota) take() bool {
	if q.dailyLimit <= 0 {
		return true
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	today := startOfDay(q.now())
	if q.lastRequestDay.Before(today) {
		q.requestsToday = 0
		q.lastRequestDay = today
	}

	if q.requestsToday >= q.dailyLimit {
		return false
	}
	q.requestsToday++
	return true
}

// Remaining returns the requests left today, or -1 when uncapped
func (q *Quota) Remaining() int {
	if q.dailyLimit <= 0 {
		return -1
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.lastRequestDay.Before(startOfDay(q.now())) {
		return q.dailyLimit
	}
	remaining := q.dailyLimit - q.requestsToday
	if remaining < 0 {
		return 0
	}
	return remaining
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
