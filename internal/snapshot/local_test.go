package snapshot

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fixedClock struct{ now time.Time }

func (f fixedClock) Now() time.Time { return f.now }

func TestLocalArchiveWritesDatedFile(t *testing.T) {
	clk := fixedClock{now: time.Date(2026, 8, 24, 9, 30, 15, 0, time.UTC)}
	l, err := NewLocal(nil, t.TempDir(), clk)
	require.NoError(t, err)

	path, err := l.Archive(context.Background(), "sess-1", "captcha", []byte("<html>blocked</html>"))
	require.NoError(t, err)
	require.Contains(t, path, "2026-08-24/")
	require.Contains(t, path, "captcha")
	require.Contains(t, path, "sess-1")

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "<html>blocked</html>", string(body))
}

func TestNoopArchiver(t *testing.T) {
	path, err := Noop{}.Archive(context.Background(), "s", "k", nil)
	require.NoError(t, err)
	require.Empty(t, path)
}
