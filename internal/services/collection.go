package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Rbruno/PokeCapture/internal/metrics"
	"github.com/Rbruno/PokeCapture/internal/models"
)

var (
	ErrMissingEntryID = errors.New("entry id is required")
	ErrMissingCardID  = errors.New("card id is required")
)

// CollectionService holds the capture records keyed by catalog entry id.
// Every mutation is followed by a save whose failure is only logged.
type CollectionService struct {
	store  CollectionStore
	logger *zap.Logger
	now    func() time.Time

	// assetTemplate builds TCGdex image urls from a card's local id
	assetTemplate string

	mu      sync.RWMutex
	records map[string]models.CaptureRecord
	dirty   bool
	version uint64

	saveMu sync.Mutex
}

func NewCollectionService(store CollectionStore, assetTemplate string, logger *zap.Logger) *CollectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CollectionService{
		store:         store,
		logger:        logger.Named("collection"),
		now:           time.Now,
		assetTemplate: assetTemplate,
		records:       make(map[string]models.CaptureRecord),
	}
}

// LoadSaved restores the last saved collection. A missing save is not an error.
func (s *CollectionService) LoadSaved(ctx context.Context) error {
	sf, err := s.store.Load(ctx)
	if errors.Is(err, ErrNoSavedCollection) {
		s.logger.Info("no saved collection, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	records := normalizeCollection(sf.Collection)

	s.mu.Lock()
	s.records = records
	s.dirty = false
	s.mu.Unlock()

	metrics.CollectionCaptured.Set(float64(models.CountCaptured(records)))
	s.logger.Info("collection loaded", zap.Int("records", len(records)), zap.Int("captured", sf.TotalCaptured))
	return nil
}

// SelectCard records card as the capture for entryID, replacing any earlier choice
func (s *CollectionService) SelectCard(ctx context.Context, entryID string, card models.CardRecord) (models.CaptureRecord, error) {
	entryID = strings.TrimSpace(entryID)
	if entryID == "" {
		return models.CaptureRecord{}, ErrMissingEntryID
	}
	if strings.TrimSpace(card.ID) == "" {
		return models.CaptureRecord{}, ErrMissingCardID
	}

	image := strings.TrimSpace(card.ImageURL)
	if card.Provider == models.ProviderTCGdex {
		image = resolveImageURL(image, nil, strings.TrimSpace(card.LocalID), s.assetTemplate)
	}

	record := normalizeCaptureRecord(models.CaptureRecord{
		Captured:       true,
		SelectedCardID: card.ID,
		CardName:       card.Name,
		CardImageURL:   image,
	})

	s.mu.Lock()
	s.records[entryID] = record
	s.dirty = true
	s.version++
	captured := models.CountCaptured(s.records)
	s.mu.Unlock()

	metrics.CollectionCaptured.Set(float64(captured))
	s.logger.Info("card selected", zap.String("entry", entryID), zap.String("card", card.ID))

	s.saveSilently(ctx)
	return record, nil
}

// Import replaces the whole collection with the contents of a save file.
// It accepts the envelope and the legacy bare mapping.
func (s *CollectionService) Import(ctx context.Context, data []byte) (int, error) {
	sf, legacy, err := models.ParseSaveFile(data)
	if err != nil {
		return 0, fmt.Errorf("failed to import collection: %w", err)
	}

	records := normalizeCollection(sf.Collection)

	s.mu.Lock()
	s.records = records
	s.dirty = true
	s.version++
	s.mu.Unlock()

	captured := models.CountCaptured(records)
	metrics.CollectionCaptured.Set(float64(captured))
	s.logger.Info("collection imported",
		zap.Int("records", len(records)),
		zap.Int("captured", captured),
		zap.Bool("legacy", legacy))

	s.saveSilently(ctx)
	return len(records), nil
}

// Export returns the current collection wrapped in a fresh envelope
func (s *CollectionService) Export() *models.SaveFile {
	return models.NewSaveFile(s.Records(), s.now())
}

// Save writes the collection and reports any failure to the caller
func (s *CollectionService) Save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	sf := models.NewSaveFile(copyRecords(s.records), s.now())
	version := s.version
	s.mu.RUnlock()

	if err := s.store.Save(ctx, sf); err != nil {
		return fmt.Errorf("failed to save collection: %w", err)
	}

	// A mutation during the save keeps the collection dirty
	s.mu.Lock()
	if s.version == version {
		s.dirty = false
	}
	s.mu.Unlock()
	return nil
}

func (s *CollectionService) saveSilently(ctx context.Context) {
	if err := s.Save(ctx); err != nil {
		s.logger.Warn("auto-save failed", zap.Error(err))
	}
}

// Dirty reports whether there are changes not yet saved
func (s *CollectionService) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Len returns the number of records, captured or not
func (s *CollectionService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *CollectionService) Get(entryID string) (models.CaptureRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[entryID]
	return r, ok
}

func (s *CollectionService) IsCaptured(entryID string) bool {
	r, ok := s.Get(entryID)
	return ok && r.Captured
}

// Records returns a copy of every record
func (s *CollectionService) Records() map[string]models.CaptureRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyRecords(s.records)
}

// Stats summarizes progress against a catalog of totalEntries entries
func (s *CollectionService) Stats(totalEntries int) models.CollectionStats {
	s.mu.RLock()
	captured := models.CountCaptured(s.records)
	s.mu.RUnlock()

	percentage := 0
	if totalEntries > 0 {
		percentage = int(math.Round(float64(captured) * 100 / float64(totalEntries)))
	}
	return models.CollectionStats{
		Total:      totalEntries,
		Captured:   captured,
		Percentage: percentage,
	}
}

// normalizeCaptureRecord is applied to every record entering the collection,
// from a selection or an import
func normalizeCaptureRecord(r models.CaptureRecord) models.CaptureRecord {
	r.SelectedCardID = strings.TrimSpace(r.SelectedCardID)
	r.CardName = strings.TrimSpace(r.CardName)
	r.CardImageURL = strings.TrimSpace(r.CardImageURL)
	if r.Captured && r.CardImageURL == "" {
		r.CardImageURL = models.PlaceholderImageURL
	}
	return r
}

func normalizeCollection(in map[string]models.CaptureRecord) map[string]models.CaptureRecord {
	out := make(map[string]models.CaptureRecord, len(in))
	for id, r := range in {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		out[id] = normalizeCaptureRecord(r)
	}
	return out
}

func copyRecords(in map[string]models.CaptureRecord) map[string]models.CaptureRecord {
	out := make(map[string]models.CaptureRecord, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
