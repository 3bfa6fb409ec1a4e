package blockdetect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newFastDetector() *Detector {
	d := New(time.Millisecond)
	d.sleep = func(context.Context, time.Duration) error { return nil }
	return d
}

func TestClassifyCategoryPrecedence(t *testing.T) {
	d := newFastDetector()

	// Captcha wins even when rate-limit wording is absent and block wording
	// present further down the page.
	kind, ok := d.Classify(PageState{
		URL:     "https://www.youtube.com/results?search_query=demo",
		Content: "Please solve this reCAPTCHA. Your account may be blocked.",
	})
	require.True(t, ok)
	require.Equal(t, KindCaptcha, kind)

	kind, ok = d.Classify(PageState{
		URL:     "https://www.youtube.com/results",
		Content: "Too many requests. Please try again later.",
	})
	require.True(t, ok)
	require.Equal(t, KindRateLimited, kind)

	kind, ok = d.Classify(PageState{
		URL:     "https://www.youtube.com/results",
		Content: "This account has been suspended for a terms of service violation.",
	})
	require.True(t, ok)
	require.Equal(t, KindBlocked, kind)
}

func TestClassifyURLShortCircuits(t *testing.T) {
	d := newFastDetector()

	kind, ok := d.Classify(PageState{URL: "https://www.youtube.com/sorry/index"})
	require.True(t, ok)
	require.Equal(t, KindRateLimited, kind)

	kind, ok = d.Classify(PageState{URL: "https://example.com/blocked"})
	require.True(t, ok)
	require.Equal(t, KindBlocked, kind)
}

func TestClassifyCleanPage(t *testing.T) {
	d := newFastDetector()

	_, ok := d.Classify(PageState{
		URL:     "https://www.youtube.com/results?search_query=demo",
		Content: "regular search results page",
	})
	require.False(t, ok)
}

func TestNoResultsRequiresRecheck(t *testing.T) {
	d := newFastDetector()
	ctx := context.Background()

	state := PageState{
		URL:      "https://www.youtube.com/results?search_query=demo",
		Content:  "nothing here",
		IsSearch: true,
	}

	// Results appear on recheck: not classified.
	kind, ok := d.ClassifyWithRecheck(ctx, state, func(context.Context) (PageState, error) {
		s := state
		s.ResultCount = 7
		return s, nil
	})
	require.False(t, ok, "got %q", kind)

	// Still empty on recheck: no_results.
	kind, ok = d.ClassifyWithRecheck(ctx, state, func(context.Context) (PageState, error) {
		return state, nil
	})
	require.True(t, ok)
	require.Equal(t, KindNoResults, kind)
}

func TestNoResultsSkippedForNonSearchPages(t *testing.T) {
	d := newFastDetector()

	_, ok := d.ClassifyWithRecheck(context.Background(), PageState{
		URL:      "https://www.youtube.com/watch?v=abc",
		Content:  "video page",
		IsSearch: false,
	}, func(context.Context) (PageState, error) {
		t.Fatal("refresh must not be called for non-search pages")
		return PageState{}, nil
	})
	require.False(t, ok)
}

func TestRecheckCanStillFindExplicitBlock(t *testing.T) {
	d := newFastDetector()

	state := PageState{
		URL:      "https://www.youtube.com/results?search_query=demo",
		Content:  "empty",
		IsSearch: true,
	}
	kind, ok := d.ClassifyWithRecheck(context.Background(), state, func(context.Context) (PageState, error) {
		s := state
		s.Content = "unusual traffic: solve this captcha"
		return s, nil
	})
	require.True(t, ok)
	require.Equal(t, KindCaptcha, kind)
}
