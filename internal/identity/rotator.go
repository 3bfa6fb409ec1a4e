package identity

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lbarthel/tubewatch/internal/clock"
	"github.com/lbarthel/tubewatch/internal/logging"
	"github.com/lbarthel/tubewatch/internal/metrics"
)

var (
	// ErrRotationInFlight is returned when another goroutine is already
	// rotating. Callers should wait and reuse whatever identity wins.
	ErrRotationInFlight = errors.New("identity rotation already in progress")

	// ErrNoIdentities is returned when the epoch is exhausted.
	ErrNoIdentities = errors.New("no unused identities left in epoch")
)

const (
	rotateAttempts = 3
)

// Rotator leases identities from a fixed pool, one at a time, never reusing
// an identity within an epoch.
type Rotator struct {
	log           *zap.Logger
	tunnel        *Tunnel
	verifier      Verifier
	clk           clock.Clock
	stabilization time.Duration
	sleep         func(context.Context, time.Duration) error
	rng           *rand.Rand

	rotating sync.Mutex

	mu    sync.Mutex
	pool  []Identity
	used  map[string]bool
	lease *Lease
}

// NewRotator builds a Rotator over the given pool.
func NewRotator(log *zap.Logger, tunnel *Tunnel, verifier Verifier, pool []Identity, stabilization time.Duration, clk clock.Clock) *Rotator {
	if clk == nil {
		clk = clock.System{}
	}
	if stabilization <= 0 {
		stabilization = 3 * time.Second
	}
	return &Rotator{
		log:           logging.Named(log, "identity"),
		tunnel:        tunnel,
		verifier:      verifier,
		clk:           clk,
		stabilization: stabilization,
		sleep:         sleepCtx,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		pool:          append([]Identity(nil), pool...),
		used:          make(map[string]bool),
	}
}

// Current returns the active lease, or nil when disconnected.
func (r *Rotator) Current() *Lease {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lease == nil {
		return nil
	}
	cp := *r.lease
	return &cp
}

// CurrentName returns the active identity name, or "" when disconnected.
func (r *Rotator) CurrentName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lease == nil {
		return ""
	}
	return r.lease.Identity.Name
}

// Rotate tears down the current identity and connects a new one, trying up
// to three unused identities in shuffled order. Identities that fail to
// connect are still consumed from the epoch. Only one rotation runs at a
// time; concurrent callers get ErrRotationInFlight immediately.
func (r *Rotator) Rotate(ctx context.Context) (*Lease, error) {
	if !r.rotating.TryLock() {
		return nil, ErrRotationInFlight
	}
	defer r.rotating.Unlock()

	for attempt := 0; attempt < rotateAttempts; attempt++ {
		id, ok := r.takeUnused()
		if !ok {
			metrics.ObserveRotation("exhausted")
			return nil, ErrNoIdentities
		}

		lease, err := r.connect(ctx, id)
		if err != nil {
			r.log.Warn("identity connect failed",
				zap.String("identity", id.Name),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			if ctx.Err() != nil {
				metrics.ObserveRotation("canceled")
				return nil, ctx.Err()
			}
			continue
		}

		r.mu.Lock()
		r.lease = lease
		r.mu.Unlock()

		metrics.ObserveRotation("success")
		r.log.Info("identity rotated",
			zap.String("identity", id.Name),
			zap.String("external_ip", lease.External.IP))
		return lease, nil
	}

	metrics.ObserveRotation("failed")
	return nil, fmt.Errorf("rotate: %d consecutive identities failed to connect", rotateAttempts)
}

// DisconnectCurrent tears down the active tunnel. Safe to call when nothing
// is connected.
func (r *Rotator) DisconnectCurrent(ctx context.Context) error {
	r.mu.Lock()
	lease := r.lease
	r.lease = nil
	r.mu.Unlock()

	if lease == nil {
		return nil
	}
	if err := r.tunnel.Down(ctx); err != nil {
		return fmt.Errorf("disconnect %s: %w", lease.Identity.Name, err)
	}
	r.log.Info("identity disconnected", zap.String("identity", lease.Identity.Name))
	return nil
}

// ClearEpoch marks every identity unused again. The active lease, if any,
// stays connected.
func (r *Rotator) ClearEpoch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.used = make(map[string]bool)
	r.log.Info("identity epoch cleared", zap.Int("pool", len(r.pool)))
}

// Remaining reports how many identities are still unused in this epoch.
func (r *Rotator) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pool) - len(r.used)
}

// takeUnused picks a random unused identity and consumes it from the epoch.
func (r *Rotator) takeUnused() (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	unused := make([]Identity, 0, len(r.pool))
	for _, id := range r.pool {
		if !r.used[id.Name] {
			unused = append(unused, id)
		}
	}
	if len(unused) == 0 {
		return Identity{}, false
	}
	pick := unused[r.rng.Intn(len(unused))]
	r.used[pick.Name] = true
	return pick, true
}

// connect brings up the tunnel for one identity and verifies the external
// address through it. On any failure the tunnel is torn back down.
func (r *Rotator) connect(ctx context.Context, id Identity) (*Lease, error) {
	r.mu.Lock()
	hadLease := r.lease != nil
	r.lease = nil
	r.mu.Unlock()

	if hadLease {
		if err := r.tunnel.Down(ctx); err != nil {
			r.log.Warn("teardown before connect failed", zap.Error(err))
		}
	}

	if err := r.tunnel.Up(ctx, id); err != nil {
		return nil, err
	}
	if err := r.sleep(ctx, r.stabilization); err != nil {
		_ = r.tunnel.Down(context.WithoutCancel(ctx))
		return nil, err
	}

	addr, err := r.verifier.ExternalAddr(ctx)
	if err != nil {
		_ = r.tunnel.Down(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("verify %s: %w", id.Name, err)
	}

	return &Lease{
		Identity:   id,
		External:   addr,
		AcquiredAt: r.clk.Now(),
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
