// Package browser drives a headless Chrome tab through chromedp. It is the
// interactive counterpart to the static fetcher: navigation, scrolling,
// pointer movement, and page-state capture for block classification.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/lbarthel/tubewatch/internal/behavior"
	"github.com/lbarthel/tubewatch/internal/blockdetect"
	"github.com/lbarthel/tubewatch/internal/collector"
	"github.com/lbarthel/tubewatch/internal/extract"
	"github.com/lbarthel/tubewatch/internal/logging"
)

// Config tunes how sessions are opened.
type Config struct {
	Headless   bool
	NavTimeout time.Duration
	// UserAgent, when set, overrides the per-session fingerprint agent.
	UserAgent string
}

// Factory opens chromedp sessions. Each session gets its own browser
// process so fingerprints never bleed across sessions.
type Factory struct {
	log *zap.Logger
	cfg Config
}

// NewFactory builds a Factory.
func NewFactory(log *zap.Logger, cfg Config) *Factory {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}
	return &Factory{log: logging.Named(log, "browser"), cfg: cfg}
}

// Open starts a browser and applies the fingerprint to the fresh tab.
func (f *Factory) Open(ctx context.Context, fp behavior.Fingerprint) (collector.BrowserSession, error) {
	ua := fp.UserAgent
	if f.cfg.UserAgent != "" {
		ua = f.cfg.UserAgent
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(ua),
		chromedp.WindowSize(fp.ViewportWidth, fp.ViewportHeight),
		chromedp.Flag("lang", fp.Locale),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	s := &Session{
		log:        f.log,
		ctx:        tabCtx,
		cancel:     func() { cancelTab(); cancelAlloc() },
		navTimeout: f.cfg.NavTimeout,
	}

	err := chromedp.Run(tabCtx,
		emulation.SetUserAgentOverride(ua).WithAcceptLanguage(fp.Locale),
		emulation.SetDeviceMetricsOverride(int64(fp.ViewportWidth), int64(fp.ViewportHeight), 1.0, false),
		emulation.SetTimezoneOverride(fp.Timezone),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("apply fingerprint: %w", err)
	}

	f.log.Debug("browser session opened",
		zap.Int("viewport_w", fp.ViewportWidth),
		zap.Int("viewport_h", fp.ViewportHeight),
		zap.String("timezone", fp.Timezone))
	return s, nil
}

// Session is one live tab.
type Session struct {
	log        *zap.Logger
	ctx        context.Context
	cancel     func()
	navTimeout time.Duration
}

// run executes actions inside the tab context while honoring the caller's
// deadline and cancellation.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()
	select {
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Navigate loads the URL and waits for the document body.
func (s *Session) Navigate(ctx context.Context, url string) error {
	err := s.run(ctx, s.navTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// State captures the page as seen by the block detector: current URL, full
// document text, and the rendered result count.
func (s *Session) State(ctx context.Context) (blockdetect.PageState, error) {
	var (
		location string
		content  string
		count    int
	)
	err := s.run(ctx, 15*time.Second,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &content),
		chromedp.Evaluate(`document.querySelectorAll('ytd-video-renderer').length`, &count),
	)
	if err != nil {
		return blockdetect.PageState{}, fmt.Errorf("capture page state: %w", err)
	}
	return blockdetect.PageState{
		URL:         location,
		Content:     content,
		IsSearch:    strings.Contains(location, "/results"),
		ResultCount: count,
	}, nil
}

// HTML returns the full serialized document.
func (s *Session) HTML(ctx context.Context) ([]byte, error) {
	var content string
	if err := s.run(ctx, 15*time.Second, chromedp.OuterHTML("html", &content)); err != nil {
		return nil, fmt.Errorf("capture html: %w", err)
	}
	return []byte(content), nil
}

// Candidates extracts the current result set from the embedded data blob.
func (s *Session) Candidates(ctx context.Context, keyword string) ([]collector.CandidateRecord, error) {
	html, err := s.HTML(ctx)
	if err != nil {
		return nil, err
	}
	videos, err := extract.Parse(html)
	if err != nil {
		return nil, err
	}

	out := make([]collector.CandidateRecord, 0, len(videos))
	for _, v := range videos {
		out = append(out, collector.CandidateRecord{
			ID:           v.ID,
			Title:        v.Title,
			Channel:      v.Channel,
			ViewCount:    v.ViewCount,
			PublishedAge: v.PublishedAge,
			Duration:     v.Duration,
			ThumbnailURL: v.ThumbnailURL,
			URL:          "https://www.youtube.com/watch?v=" + v.ID,
			Keyword:      keyword,
		})
	}
	return out, nil
}

// Scroll executes the plan chunk by chunk.
func (s *Session) Scroll(ctx context.Context, plan behavior.ScrollPlan) error {
	for i, chunk := range plan.Chunks {
		err := s.run(ctx, 10*time.Second,
			chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", chunk), nil),
		)
		if err != nil {
			return fmt.Errorf("scroll chunk %d: %w", i, err)
		}
		if plan.ChunkPause > 0 && i < len(plan.Chunks)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(plan.ChunkPause):
			}
		}
	}
	return nil
}

// ScrollViewport advances the page by most of one viewport height, the
// gesture used between result passes.
func (s *Session) ScrollViewport(ctx context.Context) error {
	err := s.run(ctx, 10*time.Second,
		chromedp.Evaluate(`window.scrollBy(0, window.innerHeight * 0.8)`, nil),
	)
	if err != nil {
		return fmt.Errorf("scroll viewport: %w", err)
	}
	return nil
}

// MoveMouse dispatches mouse-move events along the path, sleeping stepPause
// between waypoints. Pointer movement is texture only, so a dispatch
// failure never fails the caller.
func (s *Session) MoveMouse(ctx context.Context, path []behavior.Point, stepPause func() time.Duration) error {
	for _, p := range path {
		err := s.run(ctx, 5*time.Second,
			input.DispatchMouseEvent(input.MouseMoved, p.X, p.Y),
		)
		if err != nil {
			s.log.Debug("mouse move dispatch failed", zap.Error(err))
			return nil
		}
		if stepPause != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(stepPause()):
			}
		}
	}
	return nil
}

// VisibleCount estimates how many result tiles are inside the viewport.
func (s *Session) VisibleCount(ctx context.Context) (int, error) {
	const script = `(() => {
		const vh = window.innerHeight;
		let n = 0;
		for (const el of document.querySelectorAll('ytd-video-renderer')) {
			const r = el.getBoundingClientRect();
			if (r.bottom > 0 && r.top < vh) n++;
		}
		return n;
	})()`
	var count int
	if err := s.run(ctx, 10*time.Second, chromedp.Evaluate(script, &count)); err != nil {
		return 0, fmt.Errorf("count visible results: %w", err)
	}
	return count, nil
}

// EndOfResults reports whether the results feed shows its terminal message.
func (s *Session) EndOfResults(ctx context.Context) (bool, error) {
	const script = `(() => {
		const m = document.querySelector('yt-formatted-string.ytd-message-renderer');
		return m !== null && m.textContent.toLowerCase().includes('no more results');
	})()`
	var done bool
	if err := s.run(ctx, 10*time.Second, chromedp.Evaluate(script, &done)); err != nil {
		return false, fmt.Errorf("check end of results: %w", err)
	}
	return done, nil
}

// Close tears the tab and its browser process down.
func (s *Session) Close() error {
	s.cancel()
	return nil
}
