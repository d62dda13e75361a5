package mismatch

import "time"

// Reasons an item ends up in the report
const (
	ReasonNotFound    = "not found on AniList or MyAnimeList"
	ReasonSearchError = "AniList search failed"
	ReasonUpdateError = "AniList rejected the update"
)

// Entry is a bookmark that could not be synchronized
type Entry struct {
	Title       string    `json:"title"`
	RawProgress string    `json:"raw_progress,omitempty"`
	Line        int       `json:"line,omitempty"`
	Query       string    `json:"query,omitempty"` // Cleaned secondary search query
	CatalogID   int       `json:"catalog_id,omitempty"`
	Reason      string    `json:"reason"`
	Detail      string    `json:"detail,omitempty"`
	Timestamp   int64     `json:"timestamp"`
	Attempts    int       `json:"attempts,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
