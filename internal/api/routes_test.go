package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rbruno/PokeCapture/internal/config"
	"github.com/Rbruno/PokeCapture/internal/models"
	"github.com/Rbruno/PokeCapture/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubProvider returns 15 cards for any name, ten per page
type stubProvider struct{}

func (stubProvider) Name() string { return "stub" }

func (stubProvider) Search(ctx context.Context, name string, page, pageSize int) (*models.CardPage, error) {
	const total = 15
	start := (page - 1) * pageSize
	var items []models.CardRecord
	for i := start; i < total && i < start+pageSize; i++ {
		items = append(items, models.CardRecord{
			NativeID: fmt.Sprintf("card-%d", i),
			Name:     name,
			ImageURL: fmt.Sprintf("https://img/%d.png", i),
			SetName:  "Base",
		})
	}
	return &models.CardPage{Items: items, Page: page, PageSize: pageSize, TotalCount: total, HasMore: page*pageSize < total}, nil
}

func newPokeAPIStub(t *testing.T) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pokemon":
			_ = json.NewEncoder(w).Encode(map[string]any{"results": []map[string]any{
				{"name": "bulbasaur", "url": server.URL + "/pokemon/1"},
				{"name": "pikachu", "url": server.URL + "/pokemon/25"},
			}})
		case "/pokemon/1":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 1, "name": "bulbasaur"})
		case "/pokemon/25":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 25, "name": "pikachu"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

type testEnv struct {
	router     *gin.Engine
	collection *services.CollectionService
	lookups    *services.LookupManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Catalog.BaseURL = newPokeAPIStub(t).URL

	catalog, err := services.NewCatalogService(cfg.Catalog, nil)
	require.NoError(t, err)
	require.NoError(t, catalog.Refresh(context.Background()))

	store := services.NewFileStore(filepath.Join(t.TempDir(), "save.json"))
	collection := services.NewCollectionService(store, cfg.Providers.TCGdex.AssetURLTemplate, nil)

	factory := func() services.CardProvider { return stubProvider{} }
	lookups := services.NewLookupManager(factory, config.LookupConfig{PageSize: 10, RetryDelay: time.Millisecond}, nil)
	t.Cleanup(lookups.Shutdown)

	router := SetupRouter(cfg, Services{Catalog: catalog, Lookups: lookups, Collection: collection}, nil)
	return &testEnv{router: router, collection: collection, lookups: lookups}
}

func (e *testEnv) do(method, target string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/collection/select", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCatalogEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/catalog", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[models.CatalogResponse](t, w)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, "1", list.Entries[0].ID)

	w = env.do(http.MethodGet, "/api/catalog?q=pika", nil)
	assert.Equal(t, 1, decode[models.CatalogResponse](t, w).Total)

	w = env.do(http.MethodGet, "/api/catalog?filter=captured", nil)
	assert.Equal(t, 0, decode[models.CatalogResponse](t, w).Total)

	w = env.do(http.MethodGet, "/api/catalog?filter=nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/catalog/25", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "capture")

	w = env.do(http.MethodGet, "/api/catalog/9999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLookupAndSelectFlow(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/lookup", map[string]string{"entry_id": "9999"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/api/lookup", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/lookup", map[string]string{"entry_id": "25"})
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[models.SessionSnapshot](t, w)
	assert.Equal(t, models.SessionReady, snap.State)
	assert.Len(t, snap.Cards, 10)
	assert.True(t, snap.Pagination.HasMore)
	session := snap.SessionID

	w = env.do(http.MethodPost, "/api/lookup/"+session+"/more", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap = decode[models.SessionSnapshot](t, w)
	assert.Len(t, snap.Cards, 15)
	assert.False(t, snap.Pagination.HasMore)

	w = env.do(http.MethodGet, "/api/lookup/"+session, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// A session belongs to one entry
	w = env.do(http.MethodPost, "/api/collection/select", map[string]string{
		"entry_id": "1", "session_id": session, "card_id": "card-12",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/collection/select", map[string]string{
		"entry_id": "25", "session_id": session, "card_id": "missing",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/api/collection/select", map[string]string{
		"entry_id": "25", "session_id": session, "card_id": "card-12",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, env.collection.IsCaptured("25"))
	record, _ := env.collection.Get("25")
	assert.Equal(t, "card-12", record.SelectedCardID)
	assert.Equal(t, "https://img/12.png", record.CardImageURL)

	w = env.do(http.MethodGet, "/api/collection", nil)
	coll := decode[models.CollectionResponse](t, w)
	assert.Equal(t, models.CollectionStats{Total: 2, Captured: 1, Percentage: 50}, coll.Stats)

	w = env.do(http.MethodGet, "/api/catalog?filter=captured", nil)
	assert.Equal(t, 1, decode[models.CatalogResponse](t, w).Total)

	w = env.do(http.MethodDelete, "/api/lookup/"+session, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodDelete, "/api/lookup/"+session, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(http.MethodPost, "/api/lookup/"+session+"/more", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSelectInlineCard(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/collection/select", map[string]any{
		"entry_id": "1",
		"card":     map[string]any{"id": "base1-44", "name": "Bulbasaur"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, env.collection.IsCaptured("1"))

	w = env.do(http.MethodPost, "/api/collection/select", map[string]any{
		"entry_id": "1",
		"card":     map[string]any{"id": "base1-44", "name": "Bulbasaur", "local_id": "44", "provider": "tcgdex"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	record, _ := env.collection.Get("1")
	assert.Equal(t, "https://assets.tcgdex.net/images/cards/44.png", record.CardImageURL)

	w = env.do(http.MethodPost, "/api/collection/select", map[string]any{"entry_id": "1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/collection/select", map[string]any{
		"entry_id": "9999",
		"card":     map[string]any{"id": "x"},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExportImport(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.collection.SelectCard(context.Background(), "25", models.CardRecord{ID: "p", Name: "Pikachu"})
	require.NoError(t, err)

	w := env.do(http.MethodGet, "/api/collection/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	disposition := w.Header().Get("Content-Disposition")
	assert.True(t, strings.HasPrefix(disposition, `attachment; filename="pokeCapture_save_`), disposition)
	saved := decode[models.SaveFile](t, w)
	assert.Equal(t, 1, saved.TotalCaptured)
	exported := w.Body.String()

	w = env.do(http.MethodPost, "/api/collection/import", `{"25": "nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, env.collection.IsCaptured("25"), "failed import leaves the collection alone")

	w = env.do(http.MethodPost, "/api/collection/import", `{"1": {"captured": true, "selectedCard": "b", "cardName": "Bulbasaur"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, env.collection.IsCaptured("25"), "import replaces the collection")
	assert.True(t, env.collection.IsCaptured("1"))

	w = env.do(http.MethodPost, "/api/collection/import", exported)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[struct {
		Imported int                    `json:"imported"`
		Stats    models.CollectionStats `json:"stats"`
	}](t, w)
	assert.Equal(t, 1, resp.Imported)
	assert.Equal(t, 1, resp.Stats.Captured)
	assert.True(t, env.collection.IsCaptured("25"))
}

func TestProxyRouter(t *testing.T) {
	cfg := config.Default()
	router := SetupProxyRouter(cfg, nil)

	for _, path := range []string{"/proxy", "/api/proxy"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"), path)
	}
}
