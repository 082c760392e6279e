package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Rbruno/PokeCapture/internal/models"
)

// setRef decodes a card's set, which providers send either as a plain
// string or as an object with id and name
type setRef struct {
	ID   string
	Name string
}

func (s *setRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '"' {
		return json.Unmarshal(data, &s.Name)
	}

	var obj struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		// Unknown shapes are treated as missing rather than failing the page
		return nil
	}
	s.ID = obj.ID
	s.Name = obj.Name
	return nil
}

// resolveSetName picks the set label: set value, then flat setName, then the sentinel
func resolveSetName(set *setRef, flatSetName string) string {
	if set != nil && strings.TrimSpace(set.Name) != "" {
		return set.Name
	}
	if strings.TrimSpace(flatSetName) != "" {
		return flatSetName
	}
	return models.NoSetName
}

// resolveImageURL never returns an empty string
func resolveImageURL(explicit string, images map[string]string, localID, assetTemplate string) string {
	if explicit != "" {
		return explicit
	}
	for _, key := range []string{"large", "small", "normal"} {
		if u := images[key]; u != "" {
			return u
		}
	}
	if localID != "" && assetTemplate != "" {
		return strings.ReplaceAll(assetTemplate, "{id}", localID)
	}
	return models.PlaceholderImageURL
}

// synthesizeCardID builds a deterministic id for cards without a usable native or local id
func synthesizeCardID(subjectID, setID string, index int, name string) string {
	if setID == "" {
		setID = models.UnknownSetID
	}
	return fmt.Sprintf("%s-%s-%d-%s", subjectID, setID, index, name)
}

// ResolveCardIDs assigns IDs to a freshly fetched page. offset is the absolute
// index of the page's first card in the session's result set and seen holds
// the ids already handed out; both keep ids unique across "load more" pages.
func ResolveCardIDs(cards []models.CardRecord, subjectID string, offset int, seen map[string]struct{}) {
	for i := range cards {
		card := &cards[i]

		id := card.NativeID
		if id == "" {
			id = card.LocalID
		}
		if _, dup := seen[id]; id == "" || dup {
			id = synthesizeCardID(subjectID, card.SetID, offset+i, card.Name)
		}

		card.ID = id
		seen[id] = struct{}{}
	}
}
