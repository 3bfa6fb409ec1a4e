// Package progress fans collection lifecycle events out to interested
// sinks: the structured log, Prometheus counters, and anything else wired
// in at startup.
package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lbarthel/tubewatch/internal/metrics"
)

// Stage is a lifecycle point in a keyword collection.
type Stage string

const (
	StageSessionStart Stage = "session_start"
	StageAccepted     Stage = "accepted"
	StageDuplicate    Stage = "duplicate"
	StageFiltered     Stage = "filtered"
	StageBlocked      Stage = "blocked"
	StageRotated      Stage = "rotated"
	StageSessionEnd   Stage = "session_end"
)

// Event is one observation from the collection pipeline.
type Event struct {
	Stage     Stage
	SessionID string
	Keyword   string
	VideoID   string
	Kind      string
	Status    string
	At        time.Time
}

// Sink consumes events. Implementations must not block.
type Sink interface {
	Observe(ev Event)
}

// Hub fans events out to all registered sinks.
type Hub struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewHub builds an empty hub. A nil *Hub is valid and drops every event.
func NewHub() *Hub { return &Hub{} }

// Register adds a sink.
func (h *Hub) Register(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, s)
}

// Publish delivers the event to every sink.
func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sinks {
		s.Observe(ev)
	}
}

// LogSink writes events to the structured log.
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) Observe(ev Event) {
	if s.Log == nil {
		return
	}
	fields := []zap.Field{
		zap.String("session_id", ev.SessionID),
		zap.String("keyword", ev.Keyword),
	}
	if ev.VideoID != "" {
		fields = append(fields, zap.String("video_id", ev.VideoID))
	}
	if ev.Kind != "" {
		fields = append(fields, zap.String("kind", ev.Kind))
	}
	if ev.Status != "" {
		fields = append(fields, zap.String("status", ev.Status))
	}
	s.Log.Debug(string(ev.Stage), fields...)
}

// MetricsSink translates events into Prometheus counters.
type MetricsSink struct{}

func (MetricsSink) Observe(ev Event) {
	switch ev.Stage {
	case StageAccepted:
		metrics.ObserveAccepted(ev.Keyword)
	case StageDuplicate:
		metrics.ObserveDuplicate(ev.Keyword)
	case StageBlocked:
		metrics.ObserveBlockEvent(ev.Kind)
	case StageSessionStart:
		metrics.IncActiveSessions()
	case StageSessionEnd:
		metrics.DecActiveSessions()
		metrics.ObserveKeyword(ev.Status)
	}
}
