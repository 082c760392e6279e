package models

// DefaultPageSize is the number of cards requested per lookup page
const DefaultPageSize = 10

// SessionState is the lifecycle of a card lookup session
type SessionState string

const (
	SessionIdle             SessionState = "idle"
	SessionFirstLoadPending SessionState = "first_load_pending"
	SessionReady            SessionState = "ready"
	SessionLoadingMore      SessionState = "loading_more"
	SessionFailed           SessionState = "failed"
)

// PaginationState tracks "load more" progress for one lookup session
type PaginationState struct {
	CurrentPage int    `json:"current_page"`
	PageSize    int    `json:"page_size"`
	TotalCount  int    `json:"total_count"`
	HasMore     bool   `json:"has_more"`
	Loading     bool   `json:"loading"`
	SubjectName string `json:"subject_name"`
}

// NewPaginationState returns the state a session starts from
func NewPaginationState(subjectName string) PaginationState {
	return PaginationState{
		CurrentPage: 0,
		PageSize:    DefaultPageSize,
		TotalCount:  0,
		HasMore:     true,
		Loading:     false,
		SubjectName: subjectName,
	}
}

// LookupFailure is the user-facing description of a failed first page
type LookupFailure struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Guidance string `json:"guidance"`
}

// SessionSnapshot is a consistent copy of a session for rendering
type SessionSnapshot struct {
	SessionID  string          `json:"session_id"`
	Subject    CatalogEntry    `json:"subject"`
	Provider   ProviderKind    `json:"provider"`
	State      SessionState    `json:"state"`
	Pagination PaginationState `json:"pagination"`
	Cards      []CardRecord    `json:"cards"`
	NoResults  bool            `json:"no_results"`
	Error      *LookupFailure  `json:"error,omitempty"`
	// LoadMoreError is set when the last "load more" failed; cards are kept
	LoadMoreError *LookupFailure `json:"load_more_error,omitempty"`
}

// OpenLookupRequest starts a lookup for a catalog entry
type OpenLookupRequest struct {
	EntryID string `json:"entry_id" binding:"required"`
}
