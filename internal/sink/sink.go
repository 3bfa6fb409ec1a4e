// Package sink delivers accepted records to their final destination. The
// drain worker is the only writer; collection itself never touches a sink
// directly.
package sink

import (
	"context"

	"github.com/lbarthel/tubewatch/internal/collector"
)

// Sink persists accepted records.
type Sink interface {
	Save(ctx context.Context, rec collector.AcceptedRecord) error
	Close() error
}

// Noop discards records. Used when no destination is configured.
type Noop struct{}

func (Noop) Save(context.Context, collector.AcceptedRecord) error { return nil }
func (Noop) Close() error                                         { return nil }
