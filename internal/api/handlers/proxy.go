package handlers

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Rbruno/PokeCapture/internal/config"
	"github.com/Rbruno/PokeCapture/internal/metrics"
)

// ProxyHandler forwards card searches to the upstream catalogs so the browser
// never talks to them directly and never sees the API key
type ProxyHandler struct {
	client         *http.Client
	keyedBaseURL   string
	apiKey         string
	tcgdexBaseURLs []string
	defaultLang    string
	logger         *zap.Logger
}

func NewProxyHandler(cfg config.ProvidersConfig, logger *zap.Logger) *ProxyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.PokemonTCG.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	lang := cfg.TCGdex.Lang
	if lang == "" {
		lang = "en"
	}

	return &ProxyHandler{
		client:         &http.Client{Timeout: timeout},
		keyedBaseURL:   strings.TrimRight(cfg.PokemonTCG.BaseURL, "/"),
		apiKey:         cfg.PokemonTCG.APIKey,
		tcgdexBaseURLs: cfg.TCGdex.BaseURLs,
		defaultLang:    lang,
		logger:         logger.Named("proxy"),
	}
}

// Handle serves /proxy for every method
func (h *ProxyHandler) Handle(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type, X-Api-Key")

	switch c.Request.Method {
	case http.MethodOptions:
		c.Status(http.StatusOK)
		return
	case http.MethodGet:
	default:
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
		return
	}

	switch strings.ToLower(c.Query("api")) {
	case "tcgdx", "tcgdex":
		h.proxyTCGdex(c)
	default:
		h.proxyPokemonTCG(c)
	}
}

// proxyTCGdex tries each base URL in order and returns the first success
func (h *ProxyHandler) proxyTCGdex(c *gin.Context) {
	lang := c.DefaultQuery("lang", h.defaultLang)

	tried := make([]string, 0, len(h.tcgdexBaseURLs))
	var lastErr error
	for _, base := range h.tcgdexBaseURLs {
		target := fmt.Sprintf("%s/%s/cards", strings.TrimRight(base, "/"), url.PathEscape(lang))
		tried = append(tried, target)

		status, contentType, body, err := h.get(c, target, false)
		if err != nil {
			h.logger.Warn("tcgdex upstream failed", zap.String("url", target), zap.Error(err))
			lastErr = err
			continue
		}
		if status < 200 || status > 299 {
			lastErr = fmt.Errorf("upstream returned status %d", status)
			h.logger.Warn("tcgdex upstream failed", zap.String("url", target), zap.Int("status", status))
			continue
		}

		metrics.ProxyRequestsTotal.WithLabelValues("tcgdex", strconv.Itoa(http.StatusOK)).Inc()
		c.Data(http.StatusOK, contentType, body)
		return
	}

	message := "no upstream configured"
	if lastErr != nil {
		message = lastErr.Error()
	}
	metrics.ProxyRequestsTotal.WithLabelValues("tcgdex", strconv.Itoa(http.StatusInternalServerError)).Inc()
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":      "Failed to fetch from TCGdex",
		"message":    message,
		"tried_urls": tried,
	})
}

// proxyPokemonTCG forwards a card search and passes the upstream status through
func (h *ProxyHandler) proxyPokemonTCG(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		metrics.ProxyRequestsTotal.WithLabelValues("pokemontcg", strconv.Itoa(http.StatusBadRequest)).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
		return
	}

	params := url.Values{}
	params.Set("q", q)
	if page := c.Query("page"); page != "" {
		params.Set("page", page)
	}
	if pageSize := c.Query("pageSize"); pageSize != "" {
		params.Set("pageSize", pageSize)
	}
	target := fmt.Sprintf("%s/cards?%s", h.keyedBaseURL, params.Encode())

	status, contentType, body, err := h.get(c, target, true)
	if err != nil {
		h.logger.Warn("pokemon tcg upstream failed", zap.Error(err))
		metrics.ProxyRequestsTotal.WithLabelValues("pokemontcg", strconv.Itoa(http.StatusInternalServerError)).Inc()
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Proxy request failed",
			"message": err.Error(),
		})
		return
	}

	metrics.ProxyRequestsTotal.WithLabelValues("pokemontcg", strconv.Itoa(status)).Inc()
	c.Data(status, contentType, body)
}

func (h *ProxyHandler) get(c *gin.Context, target string, withKey bool) (int, string, []byte, error) {
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, target, nil)
	if err != nil {
		return 0, "", nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if withKey && h.apiKey != "" {
		req.Header.Set("X-Api-Key", h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, "", nil, fmt.Errorf("failed to reach upstream: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", nil, fmt.Errorf("failed to read upstream response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	return resp.StatusCode, contentType, body, nil
}
