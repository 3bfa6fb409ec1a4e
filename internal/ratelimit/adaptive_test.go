package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time          { return f.now }
func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

// newTestLimiter swaps the real sleep for one that advances the fake clock,
// recording each requested wait.
func newTestLimiter(cfg Config) (*Limiter, *fakeClock, *[]time.Duration) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	l := New(cfg, clk)
	waits := &[]time.Duration{}
	l.sleep = func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		clk.advance(d)
		return nil
	}
	return l, clk, waits
}

func TestBackoffFactorBounds(t *testing.T) {
	l, _, _ := newTestLimiter(Config{FactorCeiling: 5.0})

	for i := 0; i < 50; i++ {
		prev := l.factor
		l.RecordError()
		require.GreaterOrEqual(t, l.factor, prev, "factor must not decrease across consecutive errors")
		require.LessOrEqual(t, l.factor, 5.0)
		require.GreaterOrEqual(t, l.factor, 1.0)
	}
	require.InDelta(t, 5.0, l.factor, 1e-9)

	for i := 0; i < 200; i++ {
		l.RecordSuccess()
		require.GreaterOrEqual(t, l.factor, 1.0)
	}
	require.InDelta(t, 1.0, l.factor, 1e-9)
	require.Zero(t, l.errCount)
}

func TestRecordSuccessNeverUnderflows(t *testing.T) {
	l, _, _ := newTestLimiter(Config{})

	l.RecordSuccess()
	l.RecordSuccess()
	require.Zero(t, l.errCount)

	l.RecordError()
	l.RecordError()
	l.RecordSuccess()
	require.Equal(t, 1, l.errCount)
}

func TestAcquireBacksOffAfterErrors(t *testing.T) {
	l, clk, waits := newTestLimiter(Config{MaxBackoff: time.Minute})

	l.RecordError()
	l.RecordError()
	// factor = 1.2*1.2 = 1.44; wait = min(60, 2^2*1.44) = 5.76s since the
	// last error.
	clk.advance(time.Second)
	require.NoError(t, l.Acquire(context.Background()))
	require.Len(t, *waits, 1)
	require.InDelta(t, (5.76 - 1.0), (*waits)[0].Seconds(), 0.01)
}

func TestAcquireCapsBackoffAtMax(t *testing.T) {
	l, _, waits := newTestLimiter(Config{MaxBackoff: time.Minute})

	for i := 0; i < 10; i++ {
		l.RecordError()
	}
	require.NoError(t, l.Acquire(context.Background()))
	require.Len(t, *waits, 1)
	require.LessOrEqual(t, (*waits)[0], time.Minute)
}

func TestAcquireNoWaitWhenHealthy(t *testing.T) {
	l, _, waits := newTestLimiter(Config{})

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	require.Empty(t, *waits)
	_, _, inWindow := l.Stats()
	require.Equal(t, 5, inWindow)
}

func TestAcquireSoftCeilingCooldown(t *testing.T) {
	l, _, waits := newTestLimiter(Config{SoftCeilingPerMin: 3, Cooldown: 2 * time.Second})

	for i := 0; i < 4; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	require.Empty(t, *waits)

	// Fifth request sees 4 entries in the window, above the ceiling of 3.
	require.NoError(t, l.Acquire(context.Background()))
	require.Len(t, *waits, 1)
	require.Equal(t, 2*time.Second, (*waits)[0])
}

func TestWindowPrunesOldEntries(t *testing.T) {
	l, clk, _ := newTestLimiter(Config{})

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	clk.advance(61 * time.Second)
	_, _, inWindow := l.Stats()
	require.Zero(t, inWindow)
}

func TestAcquireHonorsContext(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	l := New(Config{}, clk)
	l.RecordError()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
