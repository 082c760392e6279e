package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Rbruno/PokeCapture/internal/config"
	"github.com/Rbruno/PokeCapture/internal/metrics"
	"github.com/Rbruno/PokeCapture/internal/models"
)

// LookupManager owns the single open card lookup. Opening a new lookup closes
// the previous one, and results for a closed session are dropped.
type LookupManager struct {
	factory ProviderFactory
	cfg     config.LookupConfig
	logger  *zap.Logger

	mu      sync.Mutex
	current *LookupSession
}

func NewLookupManager(factory ProviderFactory, cfg config.LookupConfig, logger *zap.Logger) *LookupManager {
	if cfg.PageSize <= 0 {
		cfg.PageSize = models.DefaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LookupManager{
		factory: factory,
		cfg:     cfg,
		logger:  logger.Named("lookup"),
	}
}

// Open starts a lookup for entry and loads its first page before returning
func (m *LookupManager) Open(ctx context.Context, entry models.CatalogEntry) *LookupSession {
	session := newLookupSession(entry, m.factory(), m.cfg, m.logger)

	m.mu.Lock()
	if m.current != nil {
		m.current.Close()
	}
	m.current = session
	m.mu.Unlock()

	metrics.LookupSessionsTotal.Inc()
	m.logger.Info("lookup opened",
		zap.String("session", session.ID()),
		zap.String("entry", entry.ID),
		zap.String("provider", session.provider.Name()))

	session.FetchPage(ctx, 1, true)
	return session
}

// Session returns the open session with the given id
func (m *LookupManager) Session(id string) (*LookupSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.ID() != id {
		return nil, false
	}
	return m.current, true
}

// Current returns the open session, if any
func (m *LookupManager) Current() *LookupSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Close closes the session with the given id. It reports whether it was open.
func (m *LookupManager) Close(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.ID() != id {
		return false
	}
	m.current.Close()
	m.current = nil
	m.logger.Info("lookup closed", zap.String("session", id))
	return true
}

// Shutdown closes whatever session is open
func (m *LookupManager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
}

// LookupSession is one "select a card for this creature" interaction.
// All fields below mu are guarded by it; Loading in pagination is the
// single-flight flag.
type LookupSession struct {
	id       string
	subject  models.CatalogEntry
	provider CardProvider
	cfg      config.LookupConfig
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         models.SessionState
	pagination    models.PaginationState
	cards         []models.CardRecord
	seen          map[string]struct{}
	noResults     bool
	failure       *models.LookupFailure
	loadMoreError *models.LookupFailure
	closed        bool
}

func newLookupSession(entry models.CatalogEntry, provider CardProvider, cfg config.LookupConfig, logger *zap.Logger) *LookupSession {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()

	pagination := models.NewPaginationState(entry.Name)
	pagination.PageSize = cfg.PageSize

	return &LookupSession{
		id:         id,
		subject:    entry,
		provider:   provider,
		cfg:        cfg,
		logger:     logger.With(zap.String("session", id)),
		ctx:        ctx,
		cancel:     cancel,
		state:      models.SessionIdle,
		pagination: pagination,
		seen:       make(map[string]struct{}),
	}
}

func (s *LookupSession) ID() string {
	return s.id
}

func (s *LookupSession) Subject() models.CatalogEntry {
	return s.subject
}

// FetchPage loads page and merges it into the session. It is a no-op, and
// returns false, when a fetch is already in flight, there is nothing more to
// load, the session is closed, or page was already loaded.
//
// The fetch runs under the session's context; cancelling ctx abandons it
// without recording a failure.
func (s *LookupSession) FetchPage(ctx context.Context, page int, first bool) bool {
	s.mu.Lock()
	if s.closed || s.pagination.Loading || !s.pagination.HasMore || page <= s.pagination.CurrentPage {
		s.mu.Unlock()
		return false
	}
	if !first && s.state == models.SessionFailed {
		s.mu.Unlock()
		return false
	}
	prevState := s.state
	s.pagination.Loading = true
	if first {
		s.state = models.SessionFirstLoadPending
	} else {
		s.state = models.SessionLoadingMore
	}
	pageSize := s.pagination.PageSize
	s.mu.Unlock()

	fetchCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	policy := RetryPolicy{}
	if first {
		policy = RetryPolicy{
			MaxRetries:  s.cfg.MaxRetries,
			Delay:       s.cfg.RetryDelay,
			ShouldRetry: RetryEmptyOrTransient,
			OnRetry: func(retry int, err error) {
				metrics.LookupRetriesTotal.Inc()
				s.logger.Info("retrying first page",
					zap.Int("retry", retry),
					zap.Duration("delay", s.cfg.RetryDelay),
					zap.Error(err))
			},
		}
	}

	result, err := policy.Do(fetchCtx, func(ctx context.Context) (*models.CardPage, error) {
		return s.provider.Search(ctx, s.subject.Name, page, pageSize)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.logger.Debug("dropping result for closed session", zap.Int("page", page))
		return false
	}
	s.pagination.Loading = false

	if err != nil {
		if ctx.Err() != nil {
			s.state = prevState
			return false
		}
		s.recordFailure(err, first)
		return true
	}

	if result == nil || len(result.Items) == 0 {
		s.pagination.HasMore = false
		if first {
			s.state = models.SessionFailed
			s.noResults = true
			metrics.LookupFailuresTotal.WithLabelValues("no_results", "first").Inc()
		} else {
			s.state = models.SessionReady
		}
		metrics.LookupCardsReturned.Observe(0)
		return true
	}

	ResolveCardIDs(result.Items, s.subject.ID, len(s.cards), s.seen)
	s.cards = append(s.cards, result.Items...)
	s.pagination.CurrentPage = page
	s.pagination.HasMore = result.HasMore
	s.pagination.TotalCount = result.TotalCount
	s.state = models.SessionReady
	s.loadMoreError = nil
	metrics.LookupCardsReturned.Observe(float64(len(result.Items)))

	s.logger.Debug("page loaded",
		zap.Int("page", page),
		zap.Int("items", len(result.Items)),
		zap.Int("total", result.TotalCount),
		zap.Bool("has_more", result.HasMore))
	return true
}

func (s *LookupSession) recordFailure(err error, first bool) {
	kind := ClassifyError(err)
	failure := &models.LookupFailure{
		Kind:     string(kind),
		Message:  Message(kind),
		Guidance: Guidance(kind),
	}

	if first {
		s.state = models.SessionFailed
		s.failure = failure
		metrics.LookupFailuresTotal.WithLabelValues(string(kind), "first").Inc()
		s.logger.Warn("first page failed", zap.String("kind", string(kind)), zap.Error(err))
		return
	}

	// Keep what was already loaded and leave "load more" available
	s.state = models.SessionReady
	s.loadMoreError = failure
	metrics.LookupFailuresTotal.WithLabelValues(string(kind), "more").Inc()
	s.logger.Warn("load more failed", zap.String("kind", string(kind)), zap.Error(err))
}

// LoadMore fetches the page after the last one loaded. A session whose first
// page was abandoned by its caller loads it again as a first page.
func (s *LookupSession) LoadMore(ctx context.Context) bool {
	s.mu.Lock()
	next := s.pagination.CurrentPage + 1
	first := s.pagination.CurrentPage == 0 && s.state != models.SessionFailed
	s.mu.Unlock()
	return s.FetchPage(ctx, next, first)
}

// Close abandons any in-flight fetch and discards the session's state
func (s *LookupSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	s.cards = nil
	s.seen = nil
	s.pagination = models.NewPaginationState("")
	s.state = models.SessionIdle
}

// Closed reports whether Close has been called
func (s *LookupSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Card returns a loaded card by id
func (s *LookupSession) Card(id string) (models.CardRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.cards {
		if c.ID == id {
			return c, true
		}
	}
	return models.CardRecord{}, false
}

// Snapshot returns a consistent copy of the session for rendering
func (s *LookupSession) Snapshot() models.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	cards := make([]models.CardRecord, len(s.cards))
	copy(cards, s.cards)

	return models.SessionSnapshot{
		SessionID:     s.id,
		Subject:       s.subject,
		Provider:      models.ProviderKind(s.provider.Name()),
		State:         s.state,
		Pagination:    s.pagination,
		Cards:         cards,
		NoResults:     s.noResults,
		Error:         s.failure,
		LoadMoreError: s.loadMoreError,
	}
}
