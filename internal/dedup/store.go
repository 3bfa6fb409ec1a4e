// Package dedup is the Redis-backed memory of the pipeline: which videos
// were collected in the last day, per-session progress counters, and the
// remote upload queue.
package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lbarthel/tubewatch/internal/collector"
	"github.com/lbarthel/tubewatch/internal/logging"
)

const opTimeout = 5 * time.Second

// Config tunes the store.
type Config struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
	// VideoTTL bounds how long a collected video id suppresses re-collection.
	VideoTTL time.Duration
	// SessionTTL bounds how long per-session progress counters live.
	SessionTTL time.Duration
	// FailOpen controls the dedup policy when Redis is unreachable: false
	// treats every candidate as already collected.
	FailOpen bool
}

func (c Config) withDefaults() Config {
	if c.Namespace == "" {
		c.Namespace = "yt"
	}
	if c.VideoTTL <= 0 {
		c.VideoTTL = 24 * time.Hour
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 2 * time.Hour
	}
	return c
}

// Store wraps a Redis client with the pipeline's key schema.
type Store struct {
	log *zap.Logger
	rdb *redis.Client
	cfg Config
}

// New connects to Redis and pings it once.
func New(log *zap.Logger, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}

	return &Store{log: logging.Named(log, "dedup"), rdb: rdb, cfg: cfg}, nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(log *zap.Logger, rdb *redis.Client, cfg Config) *Store {
	return &Store{log: logging.Named(log, "dedup"), rdb: rdb, cfg: cfg.withDefaults()}
}

// FailOpen reports the configured policy for dedup checks during outages.
func (s *Store) FailOpen() bool { return s.cfg.FailOpen }

func (s *Store) videoKey(videoID string) string {
	return fmt.Sprintf("%s:24h:videos:%s", s.cfg.Namespace, videoID)
}

func (s *Store) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s:collected", s.cfg.Namespace, sessionID)
}

func (s *Store) queueKey() string {
	return fmt.Sprintf("%s:upload:queue", s.cfg.Namespace)
}

// MarkCollected records a video id with the configured TTL.
func (s *Store) MarkCollected(ctx context.Context, videoID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.rdb.SetEx(ctx, s.videoKey(videoID), "1", s.cfg.VideoTTL).Err(); err != nil {
		return fmt.Errorf("mark collected %s: %w", videoID, err)
	}
	return nil
}

// IsCollected reports whether a video id was collected within the TTL
// window. On transport failure the error is returned for the caller to
// apply the fail-open policy.
func (s *Store) IsCollected(ctx context.Context, videoID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := s.rdb.Exists(ctx, s.videoKey(videoID)).Result()
	if err != nil {
		return false, fmt.Errorf("check collected %s: %w", videoID, err)
	}
	return n > 0, nil
}

// IncrementProgress bumps the per-keyword counter in the session's progress
// hash and refreshes the hash TTL.
func (s *Store) IncrementProgress(ctx context.Context, sessionID, keyword string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := s.sessionKey(sessionID)
	pipe := s.rdb.TxPipeline()
	pipe.HIncrBy(ctx, key, keyword, 1)
	pipe.Expire(ctx, key, s.cfg.SessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("increment progress %s/%s: %w", sessionID, keyword, err)
	}
	return nil
}

// SessionProgress returns per-keyword counts for one session. A missing
// session yields an empty map, not an error.
func (s *Store) SessionProgress(ctx context.Context, sessionID string) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := s.rdb.HGetAll(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("session progress %s: %w", sessionID, err)
	}

	out := make(map[string]int64, len(raw))
	for kw, v := range raw {
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			continue
		}
		out[kw] = n
	}
	return out, nil
}

// Enqueue appends an accepted record to the upload queue.
func (s *Store) Enqueue(ctx context.Context, rec collector.AcceptedRecord) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	if err := s.rdb.RPush(ctx, s.queueKey(), payload).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", rec.ID, err)
	}
	return nil
}

// DequeueBatch pops up to n records from the head of the upload queue.
// Entries that fail to decode are dropped and counted, never requeued.
func (s *Store) DequeueBatch(ctx context.Context, n int) ([]collector.AcceptedRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	out := make([]collector.AcceptedRecord, 0, n)
	dropped := 0
	for len(out) < n {
		raw, err := s.rdb.LPop(ctx, s.queueKey()).Bytes()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("dequeue: %w", err)
		}

		var rec collector.AcceptedRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			dropped++
			continue
		}
		out = append(out, rec)
	}
	if dropped > 0 {
		s.log.Warn("dropped undecodable queue entries", zap.Int("count", dropped))
	}
	return out, nil
}

// QueueLen reports the current upload queue depth.
func (s *Store) QueueLen(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := s.rdb.LLen(ctx, s.queueKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.rdb.Close()
}
