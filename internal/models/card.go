package models

// ProviderKind selects which card catalog backs a lookup session.
type ProviderKind string

const (
	ProviderPokemonTCG ProviderKind = "pokemontcg"
	ProviderTCGdex     ProviderKind = "tcgdex"
)

// Sentinels used when a provider record is missing fields
const (
	PlaceholderImageURL = "https://via.placeholder.com/200?text=Card"
	NoSetName           = "No set"
	UnknownSetID        = "unknown"
)

// CardRecord is a card normalized from either provider.
// ID is only guaranteed unique within one lookup session's results.
type CardRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
	SetName  string `json:"set_name"`

	// Provenance used to resolve ID and ImageURL
	NativeID string       `json:"native_id,omitempty"`
	LocalID  string       `json:"local_id,omitempty"`
	SetID    string       `json:"set_id,omitempty"`
	Provider ProviderKind `json:"provider,omitempty"`
}

// CardPage is one page of a provider search
type CardPage struct {
	Items      []CardRecord `json:"items"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
	TotalCount int          `json:"total_count"`
	HasMore    bool         `json:"has_more"`
}
