package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Rbruno/PokeCapture/internal/config"
	"github.com/Rbruno/PokeCapture/internal/models"
)

const tcgdexBaseURL = "https://api.tcgdex.net/v2"

// TCGdexService searches the community card API, which has no server-side
// pagination. The full card list is fetched once per instance and filtered
// and sliced locally.
type TCGdexService struct {
	client        *http.Client
	baseURLs      []string
	lang          string
	assetTemplate string
	logger        *zap.Logger

	mu     sync.Mutex
	cards  []tcgdexCard
	loaded bool
}

func NewTCGdexService(cfg config.TCGdexConfig, client *http.Client, logger *zap.Logger) *TCGdexService {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	baseURLs := make([]string, 0, len(cfg.BaseURLs))
	for _, u := range cfg.BaseURLs {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			baseURLs = append(baseURLs, u)
		}
	}
	if len(baseURLs) == 0 {
		baseURLs = []string{tcgdexBaseURL}
	}
	lang := cfg.Lang
	if lang == "" {
		lang = "en"
	}

	return &TCGdexService{
		client:        client,
		baseURLs:      baseURLs,
		lang:          lang,
		assetTemplate: cfg.AssetURLTemplate,
		logger:        logger.Named("tcgdex"),
	}
}

type tcgdexCard struct {
	Set     *setRef           `json:"set"`
	Images  map[string]string `json:"images"`
	ID      string            `json:"id"`
	LocalID string            `json:"localId"`
	Name    string            `json:"name"`
	Image   string            `json:"image"`
	SetName string            `json:"setName"`
}

func (s *TCGdexService) Name() string {
	return string(models.ProviderTCGdex)
}

// Search filters the cached card list by case-insensitive name substring and
// returns the requested slice. TotalCount is the filtered length.
func (s *TCGdexService) Search(ctx context.Context, name string, page, pageSize int) (result *models.CardPage, err error) {
	start := time.Now()
	defer func() { observeSearch(s.Name(), start, result, err) }()

	all, err := s.allCards(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(name))
	var matched []tcgdexCard
	for _, c := range all {
		if strings.Contains(strings.ToLower(c.Name), needle) {
			matched = append(matched, c)
		}
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = models.DefaultPageSize
	}
	from := (page - 1) * pageSize
	to := from + pageSize
	if from > len(matched) {
		from = len(matched)
	}
	if to > len(matched) {
		to = len(matched)
	}

	items := make([]models.CardRecord, 0, to-from)
	for _, c := range matched[from:to] {
		items = append(items, s.convertToCard(c))
	}

	total := len(matched)
	return &models.CardPage{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
		HasMore:    page*pageSize < total,
	}, nil
}

// allCards returns the cached list, fetching it on first use. Failures are not cached.
func (s *TCGdexService) allCards(ctx context.Context) ([]tcgdexCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return s.cards, nil
	}

	var lastErr error
	for _, base := range s.baseURLs {
		cards, err := s.fetchAll(ctx, base)
		if err == nil {
			s.cards = cards
			s.loaded = true
			s.logger.Debug("card list loaded", zap.String("base_url", base), zap.Int("cards", len(cards)))
			return cards, nil
		}
		if ctx.Err() != nil {
			return nil, wrapFetchError(s.Name(), ctx.Err())
		}
		s.logger.Warn("card list fetch failed, trying next base url", zap.String("base_url", base), zap.Error(err))
		lastErr = err
	}
	return nil, wrapFetchError(s.Name(), lastErr)
}

func (s *TCGdexService) fetchAll(ctx context.Context, base string) ([]tcgdexCard, error) {
	reqURL := fmt.Sprintf("%s/%s/cards", base, s.lang)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, wrapFetchError(s.Name(), fmt.Errorf("failed to fetch tcgdex cards: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newStatusError(s.Name(), resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapFetchError(s.Name(), fmt.Errorf("failed to read response: %w", err))
	}
	cards, err := decodeCardList(body)
	if err != nil {
		return nil, wrapFetchError(s.Name(), err)
	}
	return cards, nil
}

// decodeCardList accepts a bare array or an object wrapping it in "data"
func decodeCardList(body []byte) ([]tcgdexCard, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("failed to decode response: empty body")
	}

	if body[0] == '[' {
		var cards []tcgdexCard
		if err := json.Unmarshal(body, &cards); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return cards, nil
	}

	var wrapped struct {
		Data []tcgdexCard `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return wrapped.Data, nil
}

func (s *TCGdexService) convertToCard(tc tcgdexCard) models.CardRecord {
	var setID string
	if tc.Set != nil {
		setID = tc.Set.ID
	}

	// Image fields are asset prefixes without a quality suffix
	image := tc.Image
	if image != "" && path.Ext(image) == "" {
		image += "/high.png"
	}

	return models.CardRecord{
		Name:     tc.Name,
		ImageURL: resolveImageURL(image, tc.Images, tc.LocalID, s.assetTemplate),
		SetName:  resolveSetName(tc.Set, tc.SetName),
		NativeID: tc.ID,
		LocalID:  tc.LocalID,
		SetID:    setID,
		Provider: models.ProviderTCGdex,
	}
}
