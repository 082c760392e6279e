package services

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/gorm"

	"github.com/Rbruno/PokeCapture/internal/database"
	"github.com/Rbruno/PokeCapture/internal/models"
)

// memStore is an in-memory CollectionStore that can be told to fail
type memStore struct {
	name  string
	saved *models.SaveFile
	fail  atomic.Bool
	saves atomic.Int32
}

func (m *memStore) Name() string { return m.name }

func (m *memStore) Save(ctx context.Context, sf *models.SaveFile) error {
	m.saves.Add(1)
	if m.fail.Load() {
		return errors.New("storage unavailable")
	}
	m.saved = sf
	return nil
}

func (m *memStore) Load(ctx context.Context) (*models.SaveFile, error) {
	if m.fail.Load() {
		return nil, errors.New("storage unavailable")
	}
	if m.saved == nil {
		return nil, ErrNoSavedCollection
	}
	return m.saved, nil
}

func newTestCollection(store CollectionStore) *CollectionService {
	svc := NewCollectionService(store, "https://assets.example/{id}.png", nil)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }
	return svc
}

func TestCollection_ReselectKeepsOneRecord(t *testing.T) {
	store := &memStore{name: "mem"}
	svc := newTestCollection(store)
	ctx := context.Background()

	_, err := svc.SelectCard(ctx, "25", models.CardRecord{ID: "base1-58", Name: "Pikachu", ImageURL: "https://img/58.png"})
	require.NoError(t, err)
	_, err = svc.SelectCard(ctx, "25", models.CardRecord{ID: "swsh3-136", Name: "Pikachu V", ImageURL: "https://img/136.png"})
	require.NoError(t, err)

	want := map[string]models.CaptureRecord{
		"25": {Captured: true, SelectedCardID: "swsh3-136", CardName: "Pikachu V", CardImageURL: "https://img/136.png"},
	}
	if diff := cmp.Diff(want, svc.Records()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	assert.EqualValues(t, 2, store.saves.Load(), "every selection triggers a save")
	assert.False(t, svc.Dirty())
	require.NotNil(t, store.saved)
	assert.Equal(t, 1, store.saved.TotalCaptured)
}

func TestCollection_SelectValidation(t *testing.T) {
	svc := newTestCollection(&memStore{name: "mem"})
	ctx := context.Background()

	_, err := svc.SelectCard(ctx, "  ", models.CardRecord{ID: "x"})
	assert.ErrorIs(t, err, ErrMissingEntryID)

	_, err = svc.SelectCard(ctx, "25", models.CardRecord{Name: "Pikachu"})
	assert.ErrorIs(t, err, ErrMissingCardID)

	assert.Zero(t, svc.Len())
}

func TestCollection_SelectUsesPlaceholderImage(t *testing.T) {
	svc := newTestCollection(&memStore{name: "mem"})

	record, err := svc.SelectCard(context.Background(), "132", models.CardRecord{ID: "ditto-1", Name: " Ditto "})
	require.NoError(t, err)
	assert.Equal(t, models.PlaceholderImageURL, record.CardImageURL)
	assert.Equal(t, "Ditto", record.CardName)
	assert.True(t, svc.IsCaptured("132"))
	assert.False(t, svc.IsCaptured("1"))
}

func TestCollection_SelectResolvesTCGdexImage(t *testing.T) {
	tests := []struct {
		name string
		card models.CardRecord
		want string
	}{
		{
			name: "tcgdex local id",
			card: models.CardRecord{ID: "base1-58", Name: "Pikachu", LocalID: "58", Provider: models.ProviderTCGdex},
			want: "https://assets.example/58.png",
		},
		{
			name: "explicit image wins",
			card: models.CardRecord{ID: "base1-58", Name: "Pikachu", LocalID: "58", Provider: models.ProviderTCGdex, ImageURL: "https://img/58.png"},
			want: "https://img/58.png",
		},
		{
			name: "other provider ignores local id",
			card: models.CardRecord{ID: "base1-58", Name: "Pikachu", LocalID: "58", Provider: models.ProviderPokemonTCG},
			want: models.PlaceholderImageURL,
		},
		{
			name: "tcgdex without local id",
			card: models.CardRecord{ID: "base1-58", Name: "Pikachu", Provider: models.ProviderTCGdex},
			want: models.PlaceholderImageURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestCollection(&memStore{name: "mem"})
			record, err := svc.SelectCard(context.Background(), "25", tt.card)
			require.NoError(t, err)
			assert.Equal(t, tt.want, record.CardImageURL)
			assert.Equal(t, tt.want, svc.Records()["25"].CardImageURL)
		})
	}
}

func TestCollection_SaveFailureIsNotFatal(t *testing.T) {
	store := &memStore{name: "mem"}
	store.fail.Store(true)
	svc := newTestCollection(store)

	_, err := svc.SelectCard(context.Background(), "25", models.CardRecord{ID: "a", Name: "Pikachu"})
	require.NoError(t, err, "selection succeeds even when the save does not")
	assert.True(t, svc.Dirty())

	store.fail.Store(false)
	require.NoError(t, svc.Save(context.Background()))
	assert.False(t, svc.Dirty())
}

func TestCollection_ExportImportRoundTrip(t *testing.T) {
	src := newTestCollection(&memStore{name: "mem"})
	ctx := context.Background()

	_, _ = src.SelectCard(ctx, "1", models.CardRecord{ID: "b-1", Name: "Bulbasaur", ImageURL: "https://img/1.png"})
	_, _ = src.SelectCard(ctx, "25", models.CardRecord{ID: "p-58", Name: "Pikachu", ImageURL: "https://img/58.png"})

	sf := src.Export()
	assert.Equal(t, models.SaveFileVersion, sf.Version)
	assert.Equal(t, 2, sf.TotalCaptured)
	assert.Equal(t, "2024-05-01T09:30:00Z", sf.LastUpdated)

	data, err := json.Marshal(sf)
	require.NoError(t, err)

	dst := newTestCollection(&memStore{name: "mem"})
	_, _ = dst.SelectCard(ctx, "150", models.CardRecord{ID: "m-1", Name: "Mewtwo"})

	n, err := dst.Import(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	if diff := cmp.Diff(src.Records(), dst.Records()); diff != "" {
		t.Errorf("import should replace the collection (-want +got):\n%s", diff)
	}
}

func TestCollection_ImportLegacy(t *testing.T) {
	svc := newTestCollection(&memStore{name: "mem"})

	legacy := []byte(`{
		"25": {"captured": true, "selectedCard": "base1-58", "cardName": "Pikachu", "cardImage": "https://img/58.png"},
		"4":  {"captured": false}
	}`)
	n, err := svc.Import(context.Background(), legacy)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	record, ok := svc.Get("25")
	require.True(t, ok)
	assert.Equal(t, "base1-58", record.SelectedCardID)
	assert.Equal(t, "https://img/58.png", record.CardImageURL)
	assert.Equal(t, 1, svc.Stats(10).Captured)
}

func TestCollection_InvalidImportLeavesCollection(t *testing.T) {
	svc := newTestCollection(&memStore{name: "mem"})
	ctx := context.Background()
	_, _ = svc.SelectCard(ctx, "25", models.CardRecord{ID: "p", Name: "Pikachu"})
	before := svc.Records()

	for _, input := range []string{``, `[]`, `"text"`, `{"25": 7}`, `{not json`} {
		_, err := svc.Import(ctx, []byte(input))
		assert.Error(t, err, "input %q", input)
	}

	if diff := cmp.Diff(before, svc.Records()); diff != "" {
		t.Errorf("collection changed after failed imports (-want +got):\n%s", diff)
	}
}

func TestCollection_Stats(t *testing.T) {
	svc := newTestCollection(&memStore{name: "mem"})
	ctx := context.Background()
	_, _ = svc.SelectCard(ctx, "1", models.CardRecord{ID: "a"})
	_, _ = svc.SelectCard(ctx, "2", models.CardRecord{ID: "b"})

	tests := []struct {
		total int
		want  models.CollectionStats
	}{
		{0, models.CollectionStats{Total: 0, Captured: 2, Percentage: 0}},
		{3, models.CollectionStats{Total: 3, Captured: 2, Percentage: 67}},
		{8, models.CollectionStats{Total: 8, Captured: 2, Percentage: 25}},
		{1025, models.CollectionStats{Total: 1025, Captured: 2, Percentage: 0}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, svc.Stats(tt.total), "total %d", tt.total)
	}
}

func TestCollection_LoadSaved(t *testing.T) {
	store := &memStore{name: "mem"}
	svc := newTestCollection(store)
	require.NoError(t, svc.LoadSaved(context.Background()), "no save yet is not an error")
	assert.Zero(t, svc.Len())

	store.saved = models.NewSaveFile(map[string]models.CaptureRecord{
		" 25 ": {Captured: true, SelectedCardID: "p", CardName: "Pikachu"},
	}, time.Now())
	require.NoError(t, svc.LoadSaved(context.Background()))
	record, ok := svc.Get("25")
	require.True(t, ok, "ids are trimmed on load")
	assert.Equal(t, models.PlaceholderImageURL, record.CardImageURL)

	store.fail.Store(true)
	assert.Error(t, svc.LoadSaved(context.Background()))
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saves", "collection.json")
	store := NewFileStore(path)
	ctx := context.Background()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSavedCollection)

	sf := models.NewSaveFile(map[string]models.CaptureRecord{
		"25": {Captured: true, SelectedCardID: "p", CardName: "Pikachu", CardImageURL: "https://img/p.png"},
	}, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.Save(ctx, sf))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(sf, got); diff != "" {
		t.Errorf("loaded save mismatch (-want +got):\n%s", diff)
	}

	// No temp files are left next to the save
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))
	_, err = store.Load(ctx)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSavedCollection)
}

// openTestDB opens a sqlite database that is closed when the test ends
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestKVStore(t *testing.T) {
	// Registered first so it runs after the database is closed
	t.Cleanup(func() { goleak.VerifyNone(t, leakOpts...) })

	db := openTestDB(t)
	store := NewKVStore(db)
	ctx := context.Background()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSavedCollection)

	first := models.NewSaveFile(map[string]models.CaptureRecord{
		"1": {Captured: true, SelectedCardID: "a", CardName: "Bulbasaur", CardImageURL: "https://img/a.png"},
	}, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.Save(ctx, first))

	second := models.NewSaveFile(map[string]models.CaptureRecord{
		"1":  {Captured: true, SelectedCardID: "a", CardName: "Bulbasaur", CardImageURL: "https://img/a.png"},
		"25": {Captured: true, SelectedCardID: "p", CardName: "Pikachu", CardImageURL: "https://img/p.png"},
	}, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.Save(ctx, second), "saving again upserts the same key")

	got, err := store.Load(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(second, got); diff != "" {
		t.Errorf("loaded save mismatch (-want +got):\n%s", diff)
	}

	var rows int64
	require.NoError(t, db.Model(&models.KVEntry{}).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)
}

func TestFallbackStore_DropsFailingPreferred(t *testing.T) {
	preferred := &memStore{name: "file"}
	fallback := &memStore{name: "kv"}
	store := NewFallbackStore(preferred, fallback, nil)
	ctx := context.Background()
	sf := models.NewSaveFile(map[string]models.CaptureRecord{"25": {Captured: true}}, time.Now())

	require.NoError(t, store.Save(ctx, sf))
	assert.EqualValues(t, 1, preferred.saves.Load())
	assert.EqualValues(t, 1, fallback.saves.Load())
	assert.True(t, store.HasPreferred())

	preferred.fail.Store(true)
	require.NoError(t, store.Save(ctx, sf), "fallback save still succeeds")
	assert.False(t, store.HasPreferred())

	require.NoError(t, store.Save(ctx, sf))
	assert.EqualValues(t, 2, preferred.saves.Load(), "dropped store is not written again")
	assert.EqualValues(t, 3, fallback.saves.Load())
}

func TestFallbackStore_SaveFailsWhenFallbackFails(t *testing.T) {
	fallback := &memStore{name: "kv"}
	fallback.fail.Store(true)
	store := NewFallbackStore(nil, fallback, nil)

	err := store.Save(context.Background(), models.NewSaveFile(nil, time.Now()))
	assert.Error(t, err)
}

func TestFallbackStore_LoadFallsBack(t *testing.T) {
	preferred := &memStore{name: "file"}
	fallback := &memStore{name: "kv", saved: models.NewSaveFile(map[string]models.CaptureRecord{"4": {Captured: true}}, time.Now())}
	store := NewFallbackStore(preferred, fallback, nil)
	ctx := context.Background()

	got, err := store.Load(ctx)
	require.NoError(t, err, "empty preferred store falls back")
	assert.Contains(t, got.Collection, "4")

	preferred.fail.Store(true)
	got, err = store.Load(ctx)
	require.NoError(t, err, "failing preferred store falls back")
	assert.Contains(t, got.Collection, "4")

	preferred.fail.Store(false)
	preferred.saved = models.NewSaveFile(map[string]models.CaptureRecord{"7": {Captured: true}}, time.Now())
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Contains(t, got.Collection, "7")
}

func TestAutoSaver_FinalSaveOnStop(t *testing.T) {
	store := &memStore{name: "mem"}
	store.fail.Store(true)
	svc := newTestCollection(store)
	_, _ = svc.SelectCard(context.Background(), "25", models.CardRecord{ID: "p"})
	require.True(t, svc.Dirty())
	store.fail.Store(false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewAutoSaver(svc, time.Hour, nil).Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("auto-saver did not stop")
	}
	assert.False(t, svc.Dirty())
	require.NotNil(t, store.saved)
	assert.Equal(t, 1, store.saved.TotalCaptured)
}

func TestAutoSaver_PeriodicSave(t *testing.T) {
	store := &memStore{name: "mem"}
	svc := newTestCollection(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewAutoSaver(svc, 10*time.Millisecond, nil).Start(ctx)

	// Empty collections are never written
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, store.saves.Load())

	store.fail.Store(true)
	_, _ = svc.SelectCard(context.Background(), "25", models.CardRecord{ID: "p"})
	store.fail.Store(false)

	assert.Eventually(t, func() bool { return !svc.Dirty() }, 2*time.Second, 10*time.Millisecond)
}
