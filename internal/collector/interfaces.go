package collector

import (
	"context"
	"time"

	"github.com/lbarthel/tubewatch/internal/behavior"
	"github.com/lbarthel/tubewatch/internal/blockdetect"
	"github.com/lbarthel/tubewatch/internal/identity"
)

// DedupStore answers collected-before questions and records progress.
type DedupStore interface {
	IsCollected(ctx context.Context, videoID string) (bool, error)
	MarkCollected(ctx context.Context, videoID string) error
	IncrementProgress(ctx context.Context, sessionID, keyword string) error
	Enqueue(ctx context.Context, rec AcceptedRecord) error
	FailOpen() bool
}

// BrowserSession is one live browser tab pointed at the target site.
type BrowserSession interface {
	Navigate(ctx context.Context, url string) error
	State(ctx context.Context) (blockdetect.PageState, error)
	HTML(ctx context.Context) ([]byte, error)
	Candidates(ctx context.Context, keyword string) ([]CandidateRecord, error)
	Scroll(ctx context.Context, plan behavior.ScrollPlan) error
	ScrollViewport(ctx context.Context) error
	MoveMouse(ctx context.Context, path []behavior.Point, stepPause func() time.Duration) error
	VisibleCount(ctx context.Context) (int, error)
	EndOfResults(ctx context.Context) (bool, error)
	Close() error
}

// SessionFactory opens browser sessions with a given fingerprint.
type SessionFactory interface {
	Open(ctx context.Context, fp behavior.Fingerprint) (BrowserSession, error)
}

// RateGate is the shared adaptive request budget.
type RateGate interface {
	Acquire(ctx context.Context) error
	RecordSuccess()
	RecordError()
}

// Rotator swaps the network egress identity.
type Rotator interface {
	Rotate(ctx context.Context) (*identity.Lease, error)
	CurrentName() string
}

// Pacer produces the timing and movement texture of a browsing session.
type Pacer interface {
	Delay(action behavior.ActionClass) time.Duration
	PointerPath(from, to behavior.Point) []behavior.Point
	StepPause() time.Duration
	ScrollPlan() behavior.ScrollPlan
	PostScrollPause(visible int) time.Duration
	Fingerprint() behavior.Fingerprint
}

// Archiver persists a page snapshot for later block forensics.
type Archiver interface {
	Archive(ctx context.Context, sessionID, kind string, html []byte) (string, error)
}
