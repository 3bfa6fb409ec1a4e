// Package uploader drains the Redis upload queue into the configured sink.
// It runs as its own worker, decoupled from collection, so a slow or
// unavailable destination never stalls the browser.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lbarthel/tubewatch/internal/collector"
	"github.com/lbarthel/tubewatch/internal/logging"
	"github.com/lbarthel/tubewatch/internal/metrics"
	"github.com/lbarthel/tubewatch/internal/sink"
)

// Queue is the upload-queue slice of the dedup store.
type Queue interface {
	DequeueBatch(ctx context.Context, n int) ([]collector.AcceptedRecord, error)
	Enqueue(ctx context.Context, rec collector.AcceptedRecord) error
	QueueLen(ctx context.Context) (int64, error)
}

// Config tunes the drain worker.
type Config struct {
	// BatchSize bounds how many records one pass pulls from the queue.
	BatchSize int
	// RatePerSec bounds sink writes per second.
	RatePerSec float64
	// IdleSleep is the pause after finding the queue empty.
	IdleSleep time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 20
	}
	if c.IdleSleep <= 0 {
		c.IdleSleep = 5 * time.Second
	}
	return c
}

// Uploader moves records from the queue into the sink.
type Uploader struct {
	log     *zap.Logger
	queue   Queue
	sink    sink.Sink
	cfg     Config
	limiter *rate.Limiter
}

// New builds an Uploader.
func New(log *zap.Logger, queue Queue, s sink.Sink, cfg Config) *Uploader {
	cfg = cfg.withDefaults()
	return &Uploader{
		log:     logging.Named(log, "uploader"),
		queue:   queue,
		sink:    s,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
	}
}

// DrainOnce pulls one batch and writes it to the sink. Records that fail to
// save are pushed back to the tail of the queue. Returns how many records
// were saved.
func (u *Uploader) DrainOnce(ctx context.Context) (int, error) {
	batch, err := u.queue.DequeueBatch(ctx, u.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("dequeue batch: %w", err)
	}

	saved := 0
	for i, rec := range batch {
		if err := u.limiter.Wait(ctx); err != nil {
			// The batch is already popped from Redis; everything not yet
			// saved goes back, not just the current record.
			u.requeue(batch[i:]...)
			return saved, err
		}
		if err := u.sink.Save(ctx, rec); err != nil {
			metrics.ObserveUpload("error")
			u.log.Warn("sink save failed, requeueing",
				zap.String("video_id", rec.ID),
				zap.Error(err))
			u.requeue(rec)
			continue
		}
		metrics.ObserveUpload("success")
		saved++
	}

	if depth, err := u.queue.QueueLen(ctx); err == nil {
		metrics.SetUploadQueueDepth(depth)
	}
	return saved, nil
}

// requeue returns records to the queue on a background context so a
// canceled drain does not lose them.
func (u *Uploader) requeue(recs ...collector.AcceptedRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, rec := range recs {
		if err := u.queue.Enqueue(ctx, rec); err != nil {
			u.log.Error("record lost: requeue failed",
				zap.String("video_id", rec.ID),
				zap.Error(err))
		}
	}
}

// Run drains until the context ends, sleeping briefly whenever the queue
// runs dry.
func (u *Uploader) Run(ctx context.Context) error {
	u.log.Info("uploader started",
		zap.Int("batch_size", u.cfg.BatchSize),
		zap.Float64("rate_per_sec", u.cfg.RatePerSec))

	for {
		n, err := u.DrainOnce(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		if err != nil {
			u.log.Warn("drain pass failed", zap.Error(err))
		}
		if n == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(u.cfg.IdleSleep):
			}
		}
	}
}
