// Package collector holds the per-keyword collection orchestrator and the
// record types flowing through the pipeline.
package collector

import (
	"time"

	"github.com/google/uuid"
)

// CandidateRecord is one video as extracted from a search results page,
// before dedup and filtering.
type CandidateRecord struct {
	ID           string `json:"video_id"`
	Title        string `json:"title"`
	Channel      string `json:"channel"`
	ViewCount    string `json:"view_count"`
	PublishedAge string `json:"published_age"`
	Duration     string `json:"duration"`
	ThumbnailURL string `json:"thumbnail_url"`
	URL          string `json:"url"`
	Keyword      string `json:"keyword"`
}

// AcceptedRecord is a candidate that passed dedup and filtering, annotated
// with collection provenance. This is the shape that travels through the
// upload queue.
type AcceptedRecord struct {
	CandidateRecord
	SessionID string    `json:"session_id"`
	Identity  string    `json:"identity,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Session identifies one keyword collection run.
type Session struct {
	ID      string
	Keyword string
	Started time.Time
}

// NewSession mints a session with a time-ordered unique id.
func NewSession(keyword string, started time.Time) Session {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return Session{ID: id.String(), Keyword: keyword, Started: started}
}

// Status is the terminal state of a keyword collection.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusNoResults Status = "no_results"
	StatusBlocked   Status = "blocked"
	StatusBudget    Status = "budget_exceeded"
	StatusFailed    Status = "failed"
)

// Result summarizes one keyword collection run.
type Result struct {
	Keyword           string
	SessionID         string
	Status            Status
	Accepted          int
	TotalSeen         int
	DuplicatesSkipped int
	Filtered          int
	BlockEvents       int
	ScrollPasses      int
	Duration          time.Duration
	Err               error
}
