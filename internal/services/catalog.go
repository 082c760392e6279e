package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Rbruno/PokeCapture/internal/config"
	"github.com/Rbruno/PokeCapture/internal/metrics"
	"github.com/Rbruno/PokeCapture/internal/models"
)

const pokeAPIBaseURL = "https://pokeapi.co/api/v2"

// CatalogService crawls the creature catalog: the list endpoint, then every
// entry's detail and alternate forms. Raw responses are kept in an LRU so a
// refresh only refetches what was evicted.
type CatalogService struct {
	client      *http.Client
	baseURL     string
	limit       int
	concurrency int
	limiter     *rate.Limiter
	cache       *lru.Cache[string, []byte]
	logger      *zap.Logger

	mu      sync.RWMutex
	entries []models.CatalogEntry
	index   map[string]int
	loading bool
}

type namedResource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type pokeAPIList struct {
	Count   int             `json:"count"`
	Results []namedResource `json:"results"`
}

type pokeAPIPokemon struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Sprites struct {
		FrontDefault string `json:"front_default"`
		Other        struct {
			OfficialArtwork struct {
				FrontDefault string `json:"front_default"`
			} `json:"official-artwork"`
		} `json:"other"`
	} `json:"sprites"`
	Forms []namedResource `json:"forms"`
}

type pokeAPIForm struct {
	Name string `json:"name"`
}

func NewCatalogService(cfg config.CatalogConfig, logger *zap.Logger) (*CatalogService, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = pokeAPIBaseURL
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 2048
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog cache: %w", err)
	}

	return &CatalogService{
		client:      &http.Client{Timeout: 30 * time.Second},
		baseURL:     baseURL,
		limit:       cfg.Limit,
		concurrency: concurrency,
		limiter:     rate.NewLimiter(limit, concurrency),
		cache:       cache,
		logger:      logger.Named("catalog"),
		index:       make(map[string]int),
	}, nil
}

// Refresh reloads the catalog. Entries whose detail cannot be fetched are skipped.
func (s *CatalogService) Refresh(ctx context.Context) error {
	start := time.Now()
	s.setLoading(true)
	defer s.setLoading(false)

	var list pokeAPIList
	listURL := fmt.Sprintf("%s/pokemon?limit=%d", s.baseURL, s.limit)
	if err := s.getJSON(ctx, listURL, false, &list); err != nil {
		return fmt.Errorf("failed to list catalog: %w", err)
	}

	perItem := make([][]models.CatalogEntry, len(list.Results))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, item := range list.Results {
		g.Go(func() error {
			entries, err := s.loadEntry(gctx, item)
			if err != nil {
				s.logger.Warn("skipping catalog entry", zap.String("name", item.Name), zap.Error(err))
				return nil
			}
			perItem[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Base entries first, then forms, so the stable sort keeps each base ahead of its forms
	var bases, forms []models.CatalogEntry
	for _, entries := range perItem {
		if len(entries) == 0 {
			continue
		}
		bases = append(bases, entries[0])
		forms = append(forms, entries[1:]...)
	}
	all := append(bases, forms...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].SortKey() < all[j].SortKey()
	})

	index := make(map[string]int, len(all))
	for i, e := range all {
		index[e.ID] = i
	}

	s.mu.Lock()
	s.entries = all
	s.index = index
	s.mu.Unlock()

	metrics.CatalogEntries.Set(float64(len(all)))
	metrics.CatalogRefreshDuration.Observe(time.Since(start).Seconds())
	s.logger.Info("catalog loaded",
		zap.Int("entries", len(all)),
		zap.Int("alternate_forms", len(forms)),
		zap.Duration("took", time.Since(start)))
	return nil
}

// loadEntry returns the base entry followed by its alternate forms
func (s *CatalogService) loadEntry(ctx context.Context, item namedResource) ([]models.CatalogEntry, error) {
	var p pokeAPIPokemon
	if err := s.getJSON(ctx, item.URL, true, &p); err != nil {
		return nil, err
	}

	image := p.Sprites.Other.OfficialArtwork.FrontDefault
	if image == "" {
		image = p.Sprites.FrontDefault
	}

	entries := []models.CatalogEntry{{
		ID:       strconv.Itoa(p.ID),
		Name:     p.Name,
		ImageURL: image,
	}}

	if len(p.Forms) > 1 {
		for _, form := range p.Forms[1:] {
			var f pokeAPIForm
			if err := s.getJSON(ctx, form.URL, true, &f); err != nil {
				s.logger.Debug("skipping alternate form", zap.String("form", form.Name), zap.Error(err))
				continue
			}
			name := f.Name
			if name == "" {
				name = form.Name
			}
			baseID := p.ID
			entries = append(entries, models.CatalogEntry{
				ID:              fmt.Sprintf("%d-%s", p.ID, form.Name),
				Name:            name,
				ImageURL:        image,
				IsAlternateForm: true,
				BaseID:          &baseID,
			})
		}
	}
	return entries, nil
}

func (s *CatalogService) getJSON(ctx context.Context, reqURL string, cacheable bool, out any) error {
	if cacheable {
		if body, ok := s.cache.Get(reqURL); ok {
			metrics.CatalogCacheLookups.WithLabelValues("hit").Inc()
			return json.Unmarshal(body, out)
		}
		metrics.CatalogCacheLookups.WithLabelValues("miss").Inc()
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", reqURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pokeapi returned status %d for %s", resp.StatusCode, reqURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if cacheable {
		s.cache.Add(reqURL, body)
	}
	return nil
}

func (s *CatalogService) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

// Loading reports whether a refresh is in progress
func (s *CatalogService) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Len returns the number of entries, alternate forms included
func (s *CatalogService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns a copy of the catalog in display order
func (s *CatalogService) Entries() []models.CatalogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.CatalogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *CatalogService) Entry(id string) (models.CatalogEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return models.CatalogEntry{}, false
	}
	return s.entries[i], true
}

// Search filters by name or id substring. With capturedOnly set, only entries
// isCaptured accepts are returned.
func (s *CatalogService) Search(term string, capturedOnly bool, isCaptured func(id string) bool) []models.CatalogEntry {
	term = strings.ToLower(strings.TrimSpace(term))

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.CatalogEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.Matches(term) {
			continue
		}
		if capturedOnly && (isCaptured == nil || !isCaptured(e.ID)) {
			continue
		}
		out = append(out, e)
	}
	return out
}
