package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lbarthel/tubewatch/internal/behavior"
	"github.com/lbarthel/tubewatch/internal/blockdetect"
	"github.com/lbarthel/tubewatch/internal/clock"
	"github.com/lbarthel/tubewatch/internal/extract"
	"github.com/lbarthel/tubewatch/internal/fetch"
	"github.com/lbarthel/tubewatch/internal/identity"
	"github.com/lbarthel/tubewatch/internal/logging"
	"github.com/lbarthel/tubewatch/internal/progress"
)

// Config tunes one Orchestrator, shared by all keywords it processes.
type Config struct {
	SearchBaseURL string
	RecencyParam  string
	// MaxRecords caps accepted records per keyword.
	MaxRecords int
	// MaxScrollAttempts caps result passes per keyword.
	MaxScrollAttempts int
	// StallPasses ends collection after this many consecutive passes with no
	// new candidates.
	StallPasses int
	// KeywordBudget bounds wall time per keyword. Zero disables the budget.
	KeywordBudget time.Duration
	// RotateOnBlock enables one identity rotation per keyword on a hard
	// block before giving up.
	RotateOnBlock bool
	// NavRetryOnRateLimit bounds navigate retries on a rate_limited page.
	NavRetryOnRateLimit int
	Filter              extract.TitleFilter
}

func (c Config) withDefaults() Config {
	if c.SearchBaseURL == "" {
		c.SearchBaseURL = "https://www.youtube.com/results"
	}
	if c.MaxRecords <= 0 {
		c.MaxRecords = 1000
	}
	if c.MaxScrollAttempts <= 0 {
		c.MaxScrollAttempts = 10
	}
	if c.StallPasses <= 0 {
		c.StallPasses = 3
	}
	if c.NavRetryOnRateLimit < 0 {
		c.NavRetryOnRateLimit = 0
	}
	return c
}

// Orchestrator runs the collection loop for one keyword at a time. It is
// safe to call Collect concurrently; all shared state lives behind the
// injected collaborators.
type Orchestrator struct {
	log      *zap.Logger
	cfg      Config
	clk      clock.Clock
	sessions SessionFactory
	pacer    Pacer
	detector *blockdetect.Detector
	dedup    DedupStore
	gate     RateGate
	rotator  Rotator
	archiver Archiver
	hub      *progress.Hub

	sleep func(context.Context, time.Duration) error
}

// New builds an Orchestrator. rotator and archiver may be nil; hub may be
// nil to disable progress events.
func New(
	log *zap.Logger,
	cfg Config,
	clk clock.Clock,
	sessions SessionFactory,
	pacer Pacer,
	detector *blockdetect.Detector,
	dedup DedupStore,
	gate RateGate,
	rotator Rotator,
	archiver Archiver,
	hub *progress.Hub,
) *Orchestrator {
	if clk == nil {
		clk = clock.System{}
	}
	return &Orchestrator{
		log:      logging.Named(log, "collector"),
		cfg:      cfg.withDefaults(),
		clk:      clk,
		sessions: sessions,
		pacer:    pacer,
		detector: detector,
		dedup:    dedup,
		gate:     gate,
		rotator:  rotator,
		archiver: archiver,
		hub:      hub,
		sleep:    sleepCtx,
	}
}

// Collect runs the full collection loop for one keyword and returns its
// Result. The returned error mirrors Result.Err for fatal failures; a
// blocked or empty keyword is a normal Result, not an error.
func (o *Orchestrator) Collect(ctx context.Context, keyword string) Result {
	start := o.clk.Now()
	session := NewSession(keyword, start)

	if o.cfg.KeywordBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.KeywordBudget)
		defer cancel()
	}

	log := o.log.With(
		zap.String("keyword", keyword),
		zap.String("session_id", session.ID),
	)
	log.Info("keyword collection started")
	o.publish(progress.Event{Stage: progress.StageSessionStart, SessionID: session.ID, Keyword: keyword, At: start})

	res := o.collect(ctx, log, session)
	res.Duration = o.clk.Now().Sub(start)

	// A budget overrun surfaces as a deadline error on the keyword context.
	if errors.Is(res.Err, context.DeadlineExceeded) && ctx.Err() != nil {
		res.Status = StatusBudget
		res.Err = nil
	}

	o.publish(progress.Event{
		Stage:     progress.StageSessionEnd,
		SessionID: session.ID,
		Keyword:   keyword,
		Status:    string(res.Status),
		At:        o.clk.Now(),
	})
	log.Info("keyword collection finished",
		zap.String("status", string(res.Status)),
		zap.Int("accepted", res.Accepted),
		zap.Int("total_seen", res.TotalSeen),
		zap.Int("duplicates_skipped", res.DuplicatesSkipped),
		zap.Int("filtered", res.Filtered),
		zap.Int("scroll_passes", res.ScrollPasses),
		zap.Duration("took", res.Duration),
		zap.Error(res.Err),
	)
	return res
}

func (o *Orchestrator) collect(ctx context.Context, log *zap.Logger, session Session) Result {
	res := Result{Keyword: session.Keyword, SessionID: session.ID, Status: StatusFailed}

	browser, err := o.sessions.Open(ctx, o.pacer.Fingerprint())
	if err != nil {
		res.Err = fmt.Errorf("open browser session: %w", err)
		return res
	}
	defer func() {
		if err := browser.Close(); err != nil {
			log.Warn("browser close failed", zap.Error(err))
		}
	}()

	kind, err := o.navigate(ctx, log, &res, session, browser)
	if err != nil {
		res.Err = err
		return res
	}
	switch kind {
	case blockdetect.KindNoResults:
		res.Status = StatusNoResults
		return res
	case blockdetect.KindCaptcha, blockdetect.KindBlocked:
		res.Status = StatusBlocked
		return res
	case "":
		// clean page, continue
	}

	// Candidates already in this call's seen set count once; candidates in
	// the 24h store count as duplicates every time they reappear.
	seen := make(map[string]bool)
	stall := 0

	for pass := 0; pass < o.cfg.MaxScrollAttempts; pass++ {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}
		res.ScrollPasses = pass + 1

		candidates, err := browser.Candidates(ctx, session.Keyword)
		if err != nil {
			res.Err = fmt.Errorf("extract candidates: %w", err)
			return res
		}

		newThisPass := 0
		for _, cand := range candidates {
			if res.Accepted >= o.cfg.MaxRecords {
				break
			}
			if seen[cand.ID] {
				res.DuplicatesSkipped++
				continue
			}
			seen[cand.ID] = true
			res.TotalSeen++
			newThisPass++

			accepted, err := o.admit(ctx, log, &res, session, cand)
			if err != nil {
				res.Err = err
				return res
			}
			if accepted {
				res.Accepted++
			}
		}

		if res.Accepted >= o.cfg.MaxRecords {
			break
		}

		if newThisPass == 0 {
			stall++
			end, err := browser.EndOfResults(ctx)
			if err != nil {
				log.Debug("end-of-results check failed", zap.Error(err))
			} else if end {
				break
			}
			if stall >= o.cfg.StallPasses {
				log.Info("result feed stalled", zap.Int("passes", stall))
				break
			}
		} else {
			stall = 0
		}

		if err := o.advance(ctx, browser); err != nil {
			res.Err = err
			return res
		}

		// Block checks between passes catch mid-scroll interventions.
		state, err := browser.State(ctx)
		if err != nil {
			res.Err = fmt.Errorf("capture page state: %w", err)
			return res
		}
		if kind, blocked := o.detector.Classify(state); blocked {
			o.recordBlock(ctx, log, &res, session, browser, kind)
			res.Status = StatusBlocked
			return res
		}

		// A pass that cleared the block check decays the error budget.
		o.gate.RecordSuccess()
	}

	res.Status = StatusCompleted
	return res
}

// navigate loads the search page and classifies it, handling rate-limited
// retries and the one-shot rotate-and-retry on hard blocks. It returns the
// terminal block kind, or "" for a clean page.
func (o *Orchestrator) navigate(ctx context.Context, log *zap.Logger, res *Result, session Session, browser BrowserSession) (blockdetect.Kind, error) {
	url := fetch.SearchURL(o.cfg.SearchBaseURL, session.Keyword, o.cfg.RecencyParam)
	rotated := false
	rateRetries := 0

	for {
		if err := o.gate.Acquire(ctx); err != nil {
			return "", err
		}
		if err := o.sleep(ctx, o.pacer.Delay(behavior.ActionNavigate)); err != nil {
			return "", err
		}
		if err := browser.Navigate(ctx, url); err != nil {
			o.gate.RecordError()
			return "", fmt.Errorf("navigate search page: %w", err)
		}

		state, err := browser.State(ctx)
		if err != nil {
			return "", fmt.Errorf("capture page state: %w", err)
		}

		kind, blocked := o.detector.ClassifyWithRecheck(ctx, state, func(ctx context.Context) (blockdetect.PageState, error) {
			return browser.State(ctx)
		})
		if !blocked {
			return "", nil
		}

		switch kind {
		case blockdetect.KindNoResults:
			log.Info("keyword has no recent results")
			return kind, nil

		case blockdetect.KindRateLimited:
			o.recordBlock(ctx, log, res, session, browser, kind)
			if rateRetries >= o.cfg.NavRetryOnRateLimit {
				return blockdetect.KindBlocked, nil
			}
			rateRetries++
			// Acquire at the top of the loop applies the grown backoff.

		case blockdetect.KindCaptcha, blockdetect.KindBlocked:
			o.recordBlock(ctx, log, res, session, browser, kind)
			if rotated || !o.cfg.RotateOnBlock || o.rotator == nil {
				return kind, nil
			}
			if err := o.rotate(ctx, log, session); err != nil {
				log.Warn("identity rotation failed", zap.Error(err))
				return kind, nil
			}
			rotated = true
		}
	}
}

// admit runs one candidate through the dedup store and title filter and, on
// acceptance, emits it to the queue.
func (o *Orchestrator) admit(ctx context.Context, log *zap.Logger, res *Result, session Session, cand CandidateRecord) (bool, error) {
	collected, err := o.dedup.IsCollected(ctx, cand.ID)
	if err != nil {
		// Outage policy: fail-closed treats the candidate as collected so an
		// unreachable store never floods the destination with repeats.
		collected = !o.dedup.FailOpen()
		log.Warn("dedup check failed",
			zap.String("video_id", cand.ID),
			zap.Bool("assume_collected", collected),
			zap.Error(err))
	}
	if collected {
		res.DuplicatesSkipped++
		o.publish(progress.Event{
			Stage: progress.StageDuplicate, SessionID: session.ID,
			Keyword: session.Keyword, VideoID: cand.ID, At: o.clk.Now(),
		})
		return false, nil
	}

	if !o.cfg.Filter.Matches(cand.Title, session.Keyword) {
		res.Filtered++
		o.publish(progress.Event{
			Stage: progress.StageFiltered, SessionID: session.ID,
			Keyword: session.Keyword, VideoID: cand.ID, At: o.clk.Now(),
		})
		return false, nil
	}

	rec := AcceptedRecord{
		CandidateRecord: cand,
		SessionID:       session.ID,
		EmittedAt:       o.clk.Now(),
	}
	if o.rotator != nil {
		rec.Identity = o.rotator.CurrentName()
	}

	if err := o.dedup.Enqueue(ctx, rec); err != nil {
		return false, fmt.Errorf("enqueue record %s: %w", cand.ID, err)
	}
	if err := o.dedup.MarkCollected(ctx, cand.ID); err != nil {
		log.Warn("mark collected failed", zap.String("video_id", cand.ID), zap.Error(err))
	}
	if err := o.dedup.IncrementProgress(ctx, session.ID, session.Keyword); err != nil {
		log.Warn("progress increment failed", zap.Error(err))
	}

	o.publish(progress.Event{
		Stage: progress.StageAccepted, SessionID: session.ID,
		Keyword: session.Keyword, VideoID: cand.ID, At: o.clk.Now(),
	})
	return true, nil
}

// advance performs the human-texture move to the next slice of results:
// pointer drift, a scroll gesture, the viewport advance, and a reading
// pause, all behind the shared rate gate.
func (o *Orchestrator) advance(ctx context.Context, browser BrowserSession) error {
	if err := o.gate.Acquire(ctx); err != nil {
		return err
	}

	from := behavior.Point{X: 200, Y: 300}
	to := behavior.Point{X: 640, Y: 520}
	if err := browser.MoveMouse(ctx, o.pacer.PointerPath(from, to), o.pacer.StepPause); err != nil {
		return err
	}
	if err := browser.Scroll(ctx, o.pacer.ScrollPlan()); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	if err := browser.ScrollViewport(ctx); err != nil {
		return err
	}

	visible, err := browser.VisibleCount(ctx)
	if err != nil {
		visible = 0
	}
	return o.sleep(ctx, o.pacer.PostScrollPause(visible))
}

// recordBlock archives the page, bumps counters, and feeds the rate gate.
func (o *Orchestrator) recordBlock(ctx context.Context, log *zap.Logger, res *Result, session Session, browser BrowserSession, kind blockdetect.Kind) {
	res.BlockEvents++
	o.gate.RecordError()
	log.Warn("block detected", zap.String("kind", string(kind)))
	o.publish(progress.Event{
		Stage: progress.StageBlocked, SessionID: session.ID,
		Keyword: session.Keyword, Kind: string(kind), At: o.clk.Now(),
	})

	if o.archiver == nil {
		return
	}
	html, err := browser.HTML(ctx)
	if err != nil {
		log.Debug("snapshot capture failed", zap.Error(err))
		return
	}
	if _, err := o.archiver.Archive(ctx, session.ID, string(kind), html); err != nil {
		log.Warn("snapshot archive failed", zap.Error(err))
	}
}

func (o *Orchestrator) rotate(ctx context.Context, log *zap.Logger, session Session) error {
	lease, err := o.rotator.Rotate(ctx)
	if errors.Is(err, identity.ErrRotationInFlight) {
		// Another keyword is rotating; ride along on its result.
		log.Info("waiting out concurrent rotation")
		return o.sleep(ctx, 5*time.Second)
	}
	if err != nil {
		return err
	}
	o.publish(progress.Event{
		Stage: progress.StageRotated, SessionID: session.ID,
		Keyword: session.Keyword, Kind: lease.Identity.Name, At: o.clk.Now(),
	})
	return nil
}

func (o *Orchestrator) publish(ev progress.Event) {
	o.hub.Publish(ev)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
