package snapshot

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/lbarthel/tubewatch/internal/clock"
	"github.com/lbarthel/tubewatch/internal/logging"
)

// GCS writes snapshots as objects in a Cloud Storage bucket.
type GCS struct {
	log    *zap.Logger
	client *storage.Client
	bucket string
	clk    clock.Clock
}

// NewGCS builds a GCS archiver. Credentials come from the environment.
func NewGCS(ctx context.Context, log *zap.Logger, bucket string, clk clock.Clock) (*GCS, error) {
	if clk == nil {
		clk = clock.System{}
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCS{log: logging.Named(log, "snapshot"), client: client, bucket: bucket, clk: clk}, nil
}

func (g *GCS) Archive(ctx context.Context, sessionID, kind string, html []byte) (string, error) {
	name := objectName(sessionID, kind, g.clk.Now())

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "text/html; charset=utf-8"
	if _, err := w.Write(html); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write snapshot object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize snapshot object: %w", err)
	}

	uri := fmt.Sprintf("gs://%s/%s", g.bucket, name)
	g.log.Info("snapshot archived", zap.String("kind", kind), zap.String("uri", uri))
	return uri, nil
}

func (g *GCS) Close() error { return g.client.Close() }
