// Package snapshot archives the raw HTML of pages that triggered a block
// classification, for offline forensics.
package snapshot

import (
	"context"
	"fmt"
	"time"
)

// Archiver persists one page snapshot and returns its location.
type Archiver interface {
	Archive(ctx context.Context, sessionID, kind string, html []byte) (string, error)
	Close() error
}

// objectName builds the archive path for one snapshot. Grouping by day keeps
// listing cheap when cleaning old snapshots.
func objectName(sessionID, kind string, now time.Time) string {
	return fmt.Sprintf("%s/%s_%s_%s.html",
		now.UTC().Format("2006-01-02"),
		now.UTC().Format("150405"),
		kind,
		sessionID,
	)
}

// Noop discards snapshots.
type Noop struct{}

func (Noop) Archive(context.Context, string, string, []byte) (string, error) { return "", nil }
func (Noop) Close() error                                                    { return nil }
