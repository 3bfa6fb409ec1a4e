// Package behavior produces human-plausible timing and input-device traces
// used to drive the browser session: delays, pointer paths, and scroll plans
// drawn from randomized-but-bounded distributions.
package behavior

import (
	"math/rand"
	"sync"
	"time"

	"github.com/lbarthel/tubewatch/internal/clock"
)

// ActionClass identifies what kind of interaction a delay paces.
type ActionClass string

// Action classes understood by the simulator.
const (
	ActionNavigate  ActionClass = "navigate"
	ActionClick     ActionClass = "click"
	ActionTypeChar  ActionClass = "type-char"
	ActionScroll    ActionClass = "scroll"
	ActionReadPause ActionClass = "read-pause"
)

const (
	baseDelay          = 1500 * time.Millisecond
	longPauseInterval  = 5 * time.Minute
	longPauseChance    = 0.1
	historyRetention   = 5 * time.Minute
	slowdownWindow     = time.Minute
	slowdownThreshold  = 10
	slowdownFactor     = 1.5
	pointerMaxOffsetPx = 5.0
)

// Point is a viewport coordinate.
type Point struct {
	X float64
	Y float64
}

// ScrollPlan describes one scroll gesture. A smooth scroll carries several
// chunks with a short pause between them; an instant scroll is one chunk.
type ScrollPlan struct {
	Chunks     []int
	ChunkPause time.Duration
}

// Total returns the overall displacement of the plan in pixels.
func (p ScrollPlan) Total() int {
	sum := 0
	for _, c := range p.Chunks {
		sum += c
	}
	return sum
}

// Fingerprint is one randomized browser identity handed to a new session.
type Fingerprint struct {
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
	Locale         string
	Timezone       string
}

// Simulator generates the traces. It is safe for concurrent use; the only
// adaptive element is the progressive slowdown on dense recent activity.
// Error feedback lives in the rate limiter, not here.
type Simulator struct {
	mu            sync.Mutex
	rng           *rand.Rand
	clk           clock.Clock
	history       []time.Time
	lastLongPause time.Time
}

// New builds a Simulator seeded from the current time.
func New(clk clock.Clock) *Simulator {
	return NewWithSource(clk, rand.NewSource(time.Now().UnixNano()))
}

// NewWithSource builds a Simulator with an explicit randomness source,
// used by tests that need reproducible traces.
func NewWithSource(clk clock.Clock, src rand.Source) *Simulator {
	if clk == nil {
		clk = clock.System{}
	}
	return &Simulator{
		rng:           rand.New(src),
		clk:           clk,
		lastLongPause: clk.Now(),
	}
}

// Delay computes the pacing delay for the given action class and records the
// action in the recent-activity window.
func (s *Simulator) Delay(action ActionClass) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()

	var delay time.Duration
	switch action {
	case ActionTypeChar:
		// Per-character typing delay, much smaller than everything else.
		delay = s.uniform(50*time.Millisecond, 150*time.Millisecond)
	case ActionNavigate:
		delay = baseDelay + s.uniform(0, 2*time.Second) + s.uniform(time.Second, 3*time.Second)
	case ActionClick:
		delay = baseDelay + s.uniform(0, 2*time.Second) + s.uniform(500*time.Millisecond, 1500*time.Millisecond)
	default:
		delay = baseDelay + s.uniform(0, 2*time.Second)
	}

	// Occasional long pause, modeling human distraction.
	if action != ActionTypeChar && now.Sub(s.lastLongPause) > longPauseInterval {
		if s.rng.Float64() < longPauseChance {
			delay += s.uniform(5*time.Second, 15*time.Second)
			s.lastLongPause = now
		}
	}

	// Progressive slowdown when the last minute was busy.
	if s.recentActionsLocked(now) > slowdownThreshold {
		delay = time.Duration(float64(delay) * slowdownFactor)
	}

	s.history = append(s.history, now)
	s.pruneLocked(now)
	return delay
}

// PointerPath interpolates 2-4 perturbed waypoints between from and to,
// ending exactly on the target. Callers sleep StepPause between waypoints.
func (s *Simulator) PointerPath(from, to Point) []Point {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps := 2 + s.rng.Intn(3)
	path := make([]Point, 0, steps+1)
	cur := from
	for i := 0; i < steps; i++ {
		frac := float64(i+1) / float64(steps)
		next := Point{
			X: cur.X + (to.X-cur.X)*frac + s.offsetLocked(),
			Y: cur.Y + (to.Y-cur.Y)*frac + s.offsetLocked(),
		}
		path = append(path, next)
		cur = next
	}
	return append(path, to)
}

// StepPause is the sleep between pointer waypoints.
func (s *Simulator) StepPause() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uniform(10*time.Millisecond, 30*time.Millisecond)
}

// ScrollPlan builds the next scroll gesture: ~70% smooth multi-chunk, ~30%
// a single instantaneous displacement.
func (s *Simulator) ScrollPlan() ScrollPlan {
	s.mu.Lock()
	defer s.mu.Unlock()

	distance := 300 + s.rng.Intn(201) - 100
	if s.rng.Float64() < 0.7 {
		steps := 3 + s.rng.Intn(5)
		chunks := make([]int, steps)
		for i := range chunks {
			chunks[i] = distance / steps
		}
		// Put the rounding remainder in the last chunk.
		chunks[steps-1] += distance - (distance/steps)*steps
		return ScrollPlan{Chunks: chunks, ChunkPause: s.uniform(10*time.Millisecond, 50*time.Millisecond)}
	}
	return ScrollPlan{Chunks: []int{distance}}
}

// PostScrollPause returns the reading pause after a scroll, longer when more
// elements are estimated to be in the viewport.
func (s *Simulator) PostScrollPause(visibleElements int) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if visibleElements > 5 {
		return s.uniform(2*time.Second, 5*time.Second)
	}
	return s.uniform(500*time.Millisecond, 1500*time.Millisecond)
}

var viewports = [][2]int{
	{1920, 1080},
	{1366, 768},
	{1536, 864},
	{1440, 900},
	{1680, 1050},
	{2560, 1440},
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36 Edg/121.0.0.0",
}

var locales = [][2]string{
	{"en-US", "America/New_York"},
	{"en-US", "America/Chicago"},
	{"en-US", "America/Los_Angeles"},
	{"en-GB", "Europe/London"},
	{"en-CA", "America/Toronto"},
	{"en-AU", "Australia/Sydney"},
}

// Fingerprint draws one randomized browser identity from fixed realistic
// tables. One fingerprint is used per session and never mutated mid-session.
func (s *Simulator) Fingerprint() Fingerprint {
	s.mu.Lock()
	defer s.mu.Unlock()

	vp := viewports[s.rng.Intn(len(viewports))]
	loc := locales[s.rng.Intn(len(locales))]
	return Fingerprint{
		ViewportWidth:  vp[0],
		ViewportHeight: vp[1],
		UserAgent:      userAgents[s.rng.Intn(len(userAgents))],
		Locale:         loc[0],
		Timezone:       loc[1],
	}
}

func (s *Simulator) uniform(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(s.rng.Int63n(int64(max-min)))
}

func (s *Simulator) offsetLocked() float64 {
	return (s.rng.Float64()*2 - 1) * pointerMaxOffsetPx
}

func (s *Simulator) recentActionsLocked(now time.Time) int {
	n := 0
	for _, t := range s.history {
		if now.Sub(t) < slowdownWindow {
			n++
		}
	}
	return n
}

func (s *Simulator) pruneLocked(now time.Time) {
	kept := s.history[:0]
	for _, t := range s.history {
		if now.Sub(t) < historyRetention {
			kept = append(kept, t)
		}
	}
	s.history = kept
}
