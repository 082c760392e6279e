package models

import (
	"strconv"
	"strings"
)

// CatalogEntry is a creature the user can capture. Alternate forms are separate
// entries whose ID is "<baseID>-<formName>".
type CatalogEntry struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	ImageURL        string `json:"image_url"`
	IsAlternateForm bool   `json:"is_alternate_form"`
	BaseID          *int   `json:"base_id,omitempty"`
}

// SortKey returns the numeric base id used to order the catalog
func (e CatalogEntry) SortKey() int {
	if e.BaseID != nil {
		return *e.BaseID
	}
	head, _, _ := strings.Cut(e.ID, "-")
	n, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}
	return n
}

// Matches reports whether the entry's name or id contains the lowercase term
func (e CatalogEntry) Matches(term string) bool {
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(e.Name), term) || strings.Contains(e.ID, term)
}

// CatalogResponse is the catalog listing payload
type CatalogResponse struct {
	Entries []CatalogEntry `json:"entries"`
	Total   int            `json:"total"`
	Loading bool           `json:"loading"`
}
