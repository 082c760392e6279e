package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseSaveFile_Envelope(t *testing.T) {
	data := []byte(`{
		"version": "1.0",
		"lastUpdated": "2024-05-01T10:00:00Z",
		"totalCaptured": 99,
		"collection": {
			"25": {"captured": true, "selectedCardId": "base1-58", "cardName": "Pikachu", "cardImageUrl": "https://img/58.png"},
			"1": {"captured": false, "selectedCardId": "", "cardName": "", "cardImageUrl": ""}
		}
	}`)

	sf, legacy, err := ParseSaveFile(data)
	if err != nil {
		t.Fatalf("ParseSaveFile() error = %v", err)
	}
	if legacy {
		t.Error("expected envelope, got legacy")
	}
	if sf.TotalCaptured != 1 {
		t.Errorf("TotalCaptured = %d, want 1 (recomputed)", sf.TotalCaptured)
	}
	if got := sf.Collection["25"].SelectedCardID; got != "base1-58" {
		t.Errorf("SelectedCardID = %q, want base1-58", got)
	}
}

func TestParseSaveFile_Legacy(t *testing.T) {
	data := []byte(`{
		"25": {"captured": true, "selectedCard": "swsh3-136", "cardName": "Pikachu", "cardImage": "https://img/136.png"}
	}`)

	sf, legacy, err := ParseSaveFile(data)
	if err != nil {
		t.Fatalf("ParseSaveFile() error = %v", err)
	}
	if !legacy {
		t.Error("expected legacy layout")
	}
	rec := sf.Collection["25"]
	if rec.SelectedCardID != "swsh3-136" {
		t.Errorf("legacy selectedCard not mapped, got %q", rec.SelectedCardID)
	}
	if rec.CardImageURL != "https://img/136.png" {
		t.Errorf("legacy cardImage not mapped, got %q", rec.CardImageURL)
	}
	if sf.Version != SaveFileVersion {
		t.Errorf("Version = %q, want %q", sf.Version, SaveFileVersion)
	}
}

func TestParseSaveFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"array", `[1,2,3]`},
		{"legacy with scalar values", `{"25": true}`},
		{"broken json", `{"collection": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseSaveFile([]byte(tt.data)); err == nil {
				t.Errorf("ParseSaveFile(%q) expected error", tt.data)
			}
		})
	}

	if _, _, err := ParseSaveFile([]byte(`{"25": 3}`)); !errors.Is(err, ErrInvalidSaveFile) {
		t.Errorf("expected ErrInvalidSaveFile, got %v", err)
	}
}

func TestNewSaveFile_RoundTrip(t *testing.T) {
	collection := map[string]CaptureRecord{
		"25":                  {Captured: true, SelectedCardID: "base1-58", CardName: "Pikachu", CardImageURL: "https://img/58.png"},
		"25-pikachu-rock-star": {Captured: true, SelectedCardID: "25-unknown-3-Pikachu", CardName: "Pikachu", CardImageURL: PlaceholderImageURL},
	}
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	data, err := json.Marshal(NewSaveFile(collection, now))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	sf, legacy, err := ParseSaveFile(data)
	if err != nil {
		t.Fatalf("ParseSaveFile() error = %v", err)
	}
	if legacy {
		t.Error("exported file parsed as legacy")
	}
	if sf.TotalCaptured != 2 {
		t.Errorf("TotalCaptured = %d, want 2", sf.TotalCaptured)
	}
	if sf.LastUpdated != "2024-05-01T10:00:00Z" {
		t.Errorf("LastUpdated = %q", sf.LastUpdated)
	}
	for id, want := range collection {
		if got := sf.Collection[id]; got != want {
			t.Errorf("record %s = %+v, want %+v", id, got, want)
		}
	}
}
