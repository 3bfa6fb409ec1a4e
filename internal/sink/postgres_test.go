package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/lbarthel/tubewatch/internal/collector"
)

func testRecord() collector.AcceptedRecord {
	return collector.AcceptedRecord{
		CandidateRecord: collector.CandidateRecord{
			ID:           "dQw4w9WgXcQ",
			Title:        "Live Coding Session",
			Channel:      "devchannel",
			ViewCount:    "1,234 views",
			PublishedAge: "3 hours ago",
			Duration:     "10:02",
			ThumbnailURL: "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg",
			URL:          "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			Keyword:      "live coding",
		},
		SessionID: "sess-1",
		Identity:  "node-2",
		EmittedAt: time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
	}
}

func TestPostgresSaveInserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rec := testRecord()
	mock.ExpectExec("INSERT INTO videos").
		WithArgs(rec.ID, rec.Title, rec.Channel, rec.ViewCount, rec.PublishedAge,
			rec.Duration, rec.ThumbnailURL, rec.URL, rec.Keyword,
			rec.SessionID, rec.Identity, rec.EmittedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := NewPostgresWithPool(nil, mock)
	require.NoError(t, s.Save(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveConflictIsNotAnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rec := testRecord()
	mock.ExpectExec("INSERT INTO videos").
		WithArgs(rec.ID, rec.Title, rec.Channel, rec.ViewCount, rec.PublishedAge,
			rec.Duration, rec.ThumbnailURL, rec.URL, rec.Keyword,
			rec.SessionID, rec.Identity, rec.EmittedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	s := NewPostgresWithPool(nil, mock)
	require.NoError(t, s.Save(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSavePropagatesErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rec := testRecord()
	mock.ExpectExec("INSERT INTO videos").
		WithArgs(rec.ID, rec.Title, rec.Channel, rec.ViewCount, rec.PublishedAge,
			rec.Duration, rec.ThumbnailURL, rec.URL, rec.Keyword,
			rec.SessionID, rec.Identity, rec.EmittedAt).
		WillReturnError(errors.New("connection refused"))

	s := NewPostgresWithPool(nil, mock)
	err = s.Save(context.Background(), rec)
	require.Error(t, err)
	require.Contains(t, err.Error(), "dQw4w9WgXcQ")
}
