package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Rbruno/PokeCapture/internal/config"
	"github.com/Rbruno/PokeCapture/internal/metrics"
	"github.com/Rbruno/PokeCapture/internal/models"
)

// queryEscaper escapes a name for a quoted Lucene phrase
var queryEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

const (
	pokemonTCGBaseURL        = "https://api.pokemontcg.io/v2"
	pokemonTCGDefaultTimeout = 180 * time.Second
)

// PokemonTCGService searches the keyed, server-paginated official card API
type PokemonTCGService struct {
	client  *http.Client
	apiKey  string
	baseURL string
	timeout time.Duration
	quota   *Quota
	logger  *zap.Logger
}

func NewPokemonTCGService(cfg config.PokemonTCGConfig, quota *Quota, logger *zap.Logger) *PokemonTCGService {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = pokemonTCGBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = pokemonTCGDefaultTimeout
	}
	if quota == nil {
		quota = NewQuota(0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PokemonTCGService{
		// The per-request context carries the deadline
		client:  &http.Client{},
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		timeout: timeout,
		quota:   quota,
		logger:  logger.Named("pokemontcg"),
	}
}

type pokemonSearchResponse struct {
	Data       []pokemonCard `json:"data"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	Count      int           `json:"count"`
	TotalCount *int          `json:"totalCount"`
}

type pokemonCard struct {
	Set     *setRef           `json:"set"`
	Images  map[string]string `json:"images"`
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Number  string            `json:"number"`
	Image   string            `json:"image"`
	SetName string            `json:"setName"`
}

func (s *PokemonTCGService) Name() string {
	return string(models.ProviderPokemonTCG)
}

// Search runs a name-prefix query. page and pageSize are forwarded as given.
func (s *PokemonTCGService) Search(ctx context.Context, name string, page, pageSize int) (result *models.CardPage, err error) {
	start := time.Now()
	defer func() { observeSearch(s.Name(), start, result, err) }()

	if err := s.quota.Wait(ctx); err != nil {
		return nil, wrapFetchError(s.Name(), err)
	}
	if remaining := s.quota.Remaining(); remaining >= 0 {
		metrics.ProviderQuotaRemaining.WithLabelValues(s.Name()).Set(float64(remaining))
	}

	params := url.Values{}
	params.Set("q", fmt.Sprintf("name:\"%s*\"", queryEscaper.Replace(name)))
	params.Set("page", strconv.Itoa(page))
	params.Set("pageSize", strconv.Itoa(pageSize))
	reqURL := fmt.Sprintf("%s/cards?%s", s.baseURL, params.Encode())

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, wrapFetchError(s.Name(), fmt.Errorf("failed to create request: %w", err))
	}
	if s.apiKey != "" {
		req.Header.Set("X-Api-Key", s.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, wrapFetchError(s.Name(), fmt.Errorf("failed to search pokemon tcg: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newStatusError(s.Name(), resp.StatusCode)
	}

	var searchResp pokemonSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, wrapFetchError(s.Name(), fmt.Errorf("failed to decode pokemon tcg response: %w", err))
	}

	cards := make([]models.CardRecord, len(searchResp.Data))
	for i, pc := range searchResp.Data {
		cards[i] = s.convertToCard(pc)
	}

	result = &models.CardPage{
		Items:    cards,
		Page:     page,
		PageSize: pageSize,
	}
	if searchResp.TotalCount != nil {
		result.TotalCount = *searchResp.TotalCount
		result.HasMore = page*pageSize < result.TotalCount
	} else {
		result.TotalCount = (page-1)*pageSize + len(cards)
		result.HasMore = len(cards) == pageSize
	}

	s.logger.Debug("search complete",
		zap.String("name", name),
		zap.Int("page", page),
		zap.Int("items", len(cards)),
		zap.Int("total", result.TotalCount))

	return result, nil
}

func (s *PokemonTCGService) convertToCard(pc pokemonCard) models.CardRecord {
	var setID string
	if pc.Set != nil {
		setID = pc.Set.ID
	}
	return models.CardRecord{
		Name:     pc.Name,
		ImageURL: resolveImageURL(pc.Image, pc.Images, pc.Number, ""),
		SetName:  resolveSetName(pc.Set, pc.SetName),
		NativeID: pc.ID,
		LocalID:  pc.Number,
		SetID:    setID,
		Provider: models.ProviderPokemonTCG,
	}
}
