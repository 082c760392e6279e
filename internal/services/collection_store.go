package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Rbruno/PokeCapture/internal/metrics"
	"github.com/Rbruno/PokeCapture/internal/models"
)

// ErrNoSavedCollection is returned by Load when nothing has been saved yet
var ErrNoSavedCollection = errors.New("no saved collection")

// CollectionStore persists the collection envelope
type CollectionStore interface {
	Name() string
	Save(ctx context.Context, sf *models.SaveFile) error
	Load(ctx context.Context) (*models.SaveFile, error)
}

// FileStore writes the collection to a user-chosen save file
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Name() string {
	return "file"
}

// Path returns the save file location
func (s *FileStore) Path() string {
	return s.path
}

// Save replaces the file atomically so a crash never leaves half a save behind
func (s *FileStore) Save(ctx context.Context, sf *models.SaveFile) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode collection: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create save directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".pokecapture-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write save file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write save file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace save file: %w", err)
	}
	return nil
}

func (s *FileStore) Load(ctx context.Context) (*models.SaveFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSavedCollection
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read save file: %w", err)
	}

	sf, _, err := models.ParseSaveFile(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse save file %s: %w", s.path, err)
	}
	return sf, nil
}

// KVStore keeps the collection as a single JSON blob in the local database
type KVStore struct {
	db *gorm.DB
}

func NewKVStore(db *gorm.DB) *KVStore {
	return &KVStore{db: db}
}

func (s *KVStore) Name() string {
	return "kv"
}

func (s *KVStore) Save(ctx context.Context, sf *models.SaveFile) error {
	data, err := json.Marshal(sf)
	if err != nil {
		return fmt.Errorf("failed to encode collection: %w", err)
	}

	entry := models.KVEntry{
		Key:   models.CollectionKVKey,
		Value: string(data),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to store collection: %w", err)
	}
	return nil
}

func (s *KVStore) Load(ctx context.Context) (*models.SaveFile, error) {
	var entry models.KVEntry
	err := s.db.WithContext(ctx).Where("key = ?", models.CollectionKVKey).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSavedCollection
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}

	sf, _, err := models.ParseSaveFile([]byte(entry.Value))
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored collection: %w", err)
	}
	return sf, nil
}

// FallbackStore writes to an always-available fallback store and, when
// configured, a preferred one. A preferred store that fails once is dropped
// for the rest of the process.
type FallbackStore struct {
	fallback CollectionStore
	logger   *zap.Logger

	mu        sync.Mutex
	preferred CollectionStore
}

// NewFallbackStore builds the store chain. preferred may be nil.
func NewFallbackStore(preferred, fallback CollectionStore, logger *zap.Logger) *FallbackStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackStore{
		preferred: preferred,
		fallback:  fallback,
		logger:    logger.Named("store"),
	}
}

func (s *FallbackStore) Name() string {
	return "fallback"
}

// HasPreferred reports whether the preferred store is still in use
func (s *FallbackStore) HasPreferred() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preferred != nil
}

// Save fails only when no store accepted the collection
func (s *FallbackStore) Save(ctx context.Context, sf *models.SaveFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fallbackErr := s.fallback.Save(ctx, sf)
	recordSave(s.fallback.Name(), fallbackErr)
	if fallbackErr != nil {
		s.logger.Warn("fallback save failed", zap.String("store", s.fallback.Name()), zap.Error(fallbackErr))
	}

	if s.preferred == nil {
		return fallbackErr
	}

	err := s.preferred.Save(ctx, sf)
	recordSave(s.preferred.Name(), err)
	if err != nil {
		s.logger.Warn("preferred save failed, falling back for the rest of the session",
			zap.String("store", s.preferred.Name()), zap.Error(err))
		s.preferred = nil
		return fallbackErr
	}
	return nil
}

func (s *FallbackStore) Load(ctx context.Context) (*models.SaveFile, error) {
	s.mu.Lock()
	preferred := s.preferred
	s.mu.Unlock()

	if preferred != nil {
		sf, err := preferred.Load(ctx)
		if err == nil {
			return sf, nil
		}
		if !errors.Is(err, ErrNoSavedCollection) {
			s.logger.Warn("preferred load failed, trying fallback", zap.String("store", preferred.Name()), zap.Error(err))
		}
	}
	return s.fallback.Load(ctx)
}

func recordSave(store string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.CollectionSavesTotal.WithLabelValues(store, result).Inc()
}
