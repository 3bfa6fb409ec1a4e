package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/lbarthel/tubewatch/internal/clock"
	"github.com/lbarthel/tubewatch/internal/logging"
)

// Local writes snapshots under a directory on disk.
type Local struct {
	log *zap.Logger
	dir string
	clk clock.Clock
}

// NewLocal builds a Local archiver rooted at dir.
func NewLocal(log *zap.Logger, dir string, clk clock.Clock) (*Local, error) {
	if clk == nil {
		clk = clock.System{}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Local{log: logging.Named(log, "snapshot"), dir: dir, clk: clk}, nil
}

func (l *Local) Archive(_ context.Context, sessionID, kind string, html []byte) (string, error) {
	path := filepath.Join(l.dir, objectName(sessionID, kind, l.clk.Now()))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create snapshot day dir: %w", err)
	}
	if err := os.WriteFile(path, html, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	l.log.Info("snapshot archived",
		zap.String("kind", kind),
		zap.String("path", path),
		zap.Int("bytes", len(html)))
	return path, nil
}

func (l *Local) Close() error { return nil }
