// Package blockdetect classifies page state into block conditions.
//
// This is intentionally a cheap heuristic classifier, not a certainty
// oracle: missed blocks are tolerated because the rate limiter and dedup
// layers provide defense in depth.
package blockdetect

import (
	"context"
	"strings"
	"time"
)

// Kind is one block condition from the closed enumeration.
type Kind string

// Block kinds in detection priority order.
const (
	KindCaptcha     Kind = "captcha"
	KindRateLimited Kind = "rate_limited"
	KindBlocked     Kind = "blocked"
	KindNoResults   Kind = "no_results"
)

// PageState is the input snapshot of a navigated page.
type PageState struct {
	URL         string
	Content     string
	IsSearch    bool
	ResultCount int
}

// Event is one classification result, consumed immediately by the
// orchestrator's reaction logic.
type Event struct {
	Kind       Kind
	DetectedAt time.Time
	SessionID  string
	Identity   string
}

// Static category table checked in fixed priority order; the first category
// with any matching keyword wins.
var categories = []struct {
	kind     Kind
	patterns []string
}{
	{KindCaptcha, []string{
		"recaptcha",
		"captcha",
		"challenge",
		"verify you're human",
		"suspicious activity",
	}},
	{KindRateLimited, []string{
		"too many requests",
		"slow down",
		"try again later",
		"rate limit",
		"quota exceeded",
	}},
	{KindBlocked, []string{
		"blocked",
		"banned",
		"suspended",
		"violation",
		"terms of service",
	}},
}

// Detector matches page text and URL against the category table.
type Detector struct {
	grace time.Duration
	sleep func(context.Context, time.Duration) error
}

// New builds a Detector. grace is the wait before the one no-results
// recheck; zero uses the 3s default.
func New(grace time.Duration) *Detector {
	if grace <= 0 {
		grace = 3 * time.Second
	}
	return &Detector{grace: grace, sleep: sleepCtx}
}

// Classify inspects the page text and URL. It returns (kind, true) on a
// match and (zero, false) when no indicator matches. The no-results grace
// recheck is handled by ClassifyWithRecheck.
func (d *Detector) Classify(state PageState) (Kind, bool) {
	// URL short-circuits observed on the target before any content match.
	lowerURL := strings.ToLower(state.URL)
	if strings.Contains(lowerURL, "/sorry") {
		return KindRateLimited, true
	}
	if strings.Contains(lowerURL, "blocked") {
		return KindBlocked, true
	}

	content := strings.ToLower(state.Content)
	for _, cat := range categories {
		for _, pattern := range cat.patterns {
			if strings.Contains(content, pattern) {
				return cat.kind, true
			}
		}
	}
	return "", false
}

// ClassifyWithRecheck runs Classify, then applies the zero-results check for
// search pages: wait a short grace period, refresh the state once, and if
// still empty classify as no_results. This is a shadow-restriction guess,
// distinct from a hard block; refresh errors are swallowed and leave the
// page unclassified.
func (d *Detector) ClassifyWithRecheck(
	ctx context.Context,
	state PageState,
	refresh func(context.Context) (PageState, error),
) (Kind, bool) {
	if kind, ok := d.Classify(state); ok {
		return kind, true
	}

	if !state.IsSearch || state.ResultCount > 0 || refresh == nil {
		return "", false
	}

	if err := d.sleep(ctx, d.grace); err != nil {
		return "", false
	}
	again, err := refresh(ctx)
	if err != nil {
		return "", false
	}
	if kind, ok := d.Classify(again); ok {
		return kind, true
	}
	if again.ResultCount == 0 {
		return KindNoResults, true
	}
	return "", false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
