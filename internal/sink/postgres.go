package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/lbarthel/tubewatch/internal/collector"
	"github.com/lbarthel/tubewatch/internal/logging"
)

const insertVideo = `
INSERT INTO videos (
	video_id, title, channel, view_count, published_age, duration,
	thumbnail_url, url, keyword, session_id, identity, emitted_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (video_id) DO NOTHING`

// PgxIface is the slice of pgxpool.Pool the sink needs. Tests substitute a
// mock.
type PgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Postgres writes records into the videos table.
type Postgres struct {
	log  *zap.Logger
	pool PgxIface
}

// NewPostgres connects a pool against the DSN and pings it.
func NewPostgres(ctx context.Context, log *zap.Logger, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{log: logging.Named(log, "sink"), pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(log *zap.Logger, pool PgxIface) *Postgres {
	return &Postgres{log: logging.Named(log, "sink"), pool: pool}
}

func (p *Postgres) Save(ctx context.Context, rec collector.AcceptedRecord) error {
	tag, err := p.pool.Exec(ctx, insertVideo,
		rec.ID, rec.Title, rec.Channel, rec.ViewCount, rec.PublishedAge,
		rec.Duration, rec.ThumbnailURL, rec.URL, rec.Keyword,
		rec.SessionID, rec.Identity, rec.EmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert video %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		p.log.Debug("video already stored", zap.String("video_id", rec.ID))
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
