package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SaveFileVersion is the envelope version written on export
const SaveFileVersion = "1.0"

// ErrInvalidSaveFile is returned when an imported document is neither an envelope nor a legacy mapping
var ErrInvalidSaveFile = errors.New("save file has an invalid format")

// CaptureRecord links a catalog entry to the card the user picked for it.
// JSON keys match the save file format shared with the browser frontend.
type CaptureRecord struct {
	Captured       bool   `json:"captured"`
	SelectedCardID string `json:"selectedCardId"`
	CardName       string `json:"cardName"`
	CardImageURL   string `json:"cardImageUrl"`
}

// UnmarshalJSON accepts the legacy keys selectedCard and cardImage
func (r *CaptureRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		Captured       bool   `json:"captured"`
		SelectedCardID string `json:"selectedCardId"`
		SelectedCard   string `json:"selectedCard"`
		CardName       string `json:"cardName"`
		CardImageURL   string `json:"cardImageUrl"`
		CardImage      string `json:"cardImage"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Captured = raw.Captured
	r.SelectedCardID = raw.SelectedCardID
	if r.SelectedCardID == "" {
		r.SelectedCardID = raw.SelectedCard
	}
	r.CardName = raw.CardName
	r.CardImageURL = raw.CardImageURL
	if r.CardImageURL == "" {
		r.CardImageURL = raw.CardImage
	}
	return nil
}

// SaveFile is the persisted collection envelope
type SaveFile struct {
	Version       string                   `json:"version"`
	LastUpdated   string                   `json:"lastUpdated"`
	TotalCaptured int                      `json:"totalCaptured"`
	Collection    map[string]CaptureRecord `json:"collection"`
}

// NewSaveFile wraps a collection in a fresh envelope stamped with now
func NewSaveFile(collection map[string]CaptureRecord, now time.Time) *SaveFile {
	if collection == nil {
		collection = map[string]CaptureRecord{}
	}
	return &SaveFile{
		Version:       SaveFileVersion,
		LastUpdated:   now.UTC().Format(time.RFC3339Nano),
		TotalCaptured: CountCaptured(collection),
		Collection:    collection,
	}
}

// CountCaptured returns how many records are marked captured
func CountCaptured(collection map[string]CaptureRecord) int {
	n := 0
	for _, r := range collection {
		if r.Captured {
			n++
		}
	}
	return n
}

// ParseSaveFile decodes an envelope or, for older saves, a bare id -> record mapping.
// The returned bool reports whether the input used the legacy layout.
func ParseSaveFile(data []byte) (*SaveFile, bool, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, false, ErrInvalidSaveFile
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, false, fmt.Errorf("failed to decode save file: %w", err)
	}

	if raw, ok := fields["collection"]; ok {
		var sf SaveFile
		if err := json.Unmarshal(data, &sf); err != nil {
			return nil, false, fmt.Errorf("failed to decode save file: %w", err)
		}
		if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			sf.Collection = map[string]CaptureRecord{}
		}
		if sf.Version == "" {
			sf.Version = SaveFileVersion
		}
		sf.TotalCaptured = CountCaptured(sf.Collection)
		return &sf, false, nil
	}

	// Legacy layout: every top-level value must be a record object
	collection := make(map[string]CaptureRecord, len(fields))
	for id, raw := range fields {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '{' {
			return nil, false, ErrInvalidSaveFile
		}
		var rec CaptureRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, false, fmt.Errorf("failed to decode record %q: %w", id, err)
		}
		collection[id] = rec
	}

	return &SaveFile{
		Version:       SaveFileVersion,
		TotalCaptured: CountCaptured(collection),
		Collection:    collection,
	}, true, nil
}

// CollectionStats summarizes progress across the catalog
type CollectionStats struct {
	Total      int `json:"total"`
	Captured   int `json:"captured"`
	Percentage int `json:"percentage"`
}

// SelectCardRequest is the body of a capture selection.
// Either SessionID+CardID (a card from an open lookup) or Card must be set.
type SelectCardRequest struct {
	EntryID   string      `json:"entry_id" binding:"required"`
	SessionID string      `json:"session_id"`
	CardID    string      `json:"card_id"`
	Card      *CardRecord `json:"card"`
}

// CollectionResponse is returned by the collection listing endpoint
type CollectionResponse struct {
	Collection map[string]CaptureRecord `json:"collection"`
	Stats      CollectionStats          `json:"stats"`
}
