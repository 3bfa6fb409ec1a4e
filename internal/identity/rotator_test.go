package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, call)
	for prefix, err := range f.fail {
		if strings.HasPrefix(call, prefix) {
			return []byte("boom"), err
		}
	}
	return nil, nil
}

type fakeVerifier struct {
	mu    sync.Mutex
	addrs []ExternalAddr
	errs  []error
	n     int
}

func (f *fakeVerifier) ExternalAddr(context.Context) (ExternalAddr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.n
	f.n++
	if i < len(f.errs) && f.errs[i] != nil {
		return ExternalAddr{}, f.errs[i]
	}
	if i < len(f.addrs) {
		return f.addrs[i], nil
	}
	return ExternalAddr{IP: fmt.Sprintf("10.0.0.%d", i+1)}, nil
}

func testPool(n int) []Identity {
	pool := make([]Identity, n)
	for i := range pool {
		pool[i] = Identity{
			Name:      fmt.Sprintf("node-%d", i),
			Endpoint:  fmt.Sprintf("198.51.100.%d:51820", i+1),
			PublicKey: fmt.Sprintf("pk-%d", i),
		}
	}
	return pool
}

func newTestRotator(t *testing.T, runner Runner, verifier Verifier, pool []Identity) *Rotator {
	t.Helper()
	tun := &Tunnel{
		Interface:  "wg0",
		ConfigDir:  t.TempDir(),
		PrivateKey: "priv",
		Address:    "10.8.0.2/24",
		Runner:     runner,
	}
	r := NewRotator(zap.NewNop(), tun, verifier, pool, time.Millisecond, nil)
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return r
}

func TestRotateLeasesUnusedIdentity(t *testing.T) {
	runner := &fakeRunner{}
	r := newTestRotator(t, runner, &fakeVerifier{}, testPool(3))

	lease, err := r.Rotate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, lease)
	require.NotEmpty(t, lease.External.IP)
	require.Equal(t, lease.Identity.Name, r.CurrentName())
	require.Equal(t, 2, r.Remaining())

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.calls, 1)
	require.Contains(t, runner.calls[0], "wg-quick up")
}

func TestRotateNeverReusesWithinEpoch(t *testing.T) {
	r := newTestRotator(t, &fakeRunner{}, &fakeVerifier{}, testPool(3))

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		lease, err := r.Rotate(context.Background())
		require.NoError(t, err)
		require.False(t, seen[lease.Identity.Name], "identity %q leased twice", lease.Identity.Name)
		seen[lease.Identity.Name] = true
	}

	_, err := r.Rotate(context.Background())
	require.ErrorIs(t, err, ErrNoIdentities)
}

func TestClearEpochRestoresPool(t *testing.T) {
	r := newTestRotator(t, &fakeRunner{}, &fakeVerifier{}, testPool(2))

	_, err := r.Rotate(context.Background())
	require.NoError(t, err)
	_, err = r.Rotate(context.Background())
	require.NoError(t, err)
	require.Zero(t, r.Remaining())

	r.ClearEpoch()
	require.Equal(t, 2, r.Remaining())

	_, err = r.Rotate(context.Background())
	require.NoError(t, err)
}

func TestRotateSkipsFailingIdentities(t *testing.T) {
	// First two verifications fail, third succeeds. Failed identities stay
	// consumed.
	verifier := &fakeVerifier{errs: []error{
		errors.New("no route"),
		errors.New("no route"),
		nil,
	}}
	r := newTestRotator(t, &fakeRunner{}, verifier, testPool(5))

	lease, err := r.Rotate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, lease)
	require.Equal(t, 2, r.Remaining())
}

func TestRotateFailsAfterThreeAttempts(t *testing.T) {
	verifier := &fakeVerifier{errs: []error{
		errors.New("down"), errors.New("down"), errors.New("down"), errors.New("down"),
	}}
	r := newTestRotator(t, &fakeRunner{}, verifier, testPool(5))

	_, err := r.Rotate(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNoIdentities)
	// Three identities consumed, none leased.
	require.Equal(t, 2, r.Remaining())
	require.Nil(t, r.Current())
}

func TestFailedVerifyTearsTunnelDown(t *testing.T) {
	runner := &fakeRunner{}
	verifier := &fakeVerifier{errs: []error{errors.New("leak suspected")}}
	r := newTestRotator(t, runner, verifier, testPool(1))

	_, err := r.Rotate(context.Background())
	require.Error(t, err)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.calls, 2)
	require.Contains(t, runner.calls[0], "wg-quick up")
	require.Contains(t, runner.calls[1], "wg-quick down")
}

func TestConcurrentRotateIsRejected(t *testing.T) {
	block := make(chan struct{})
	release := make(chan struct{})
	verifier := &fakeVerifier{}
	r := newTestRotator(t, &fakeRunner{}, verifier, testPool(3))
	r.sleep = func(context.Context, time.Duration) error {
		close(block)
		<-release
		return nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := r.Rotate(context.Background())
		done <- err
	}()

	<-block
	_, err := r.Rotate(context.Background())
	require.ErrorIs(t, err, ErrRotationInFlight)

	close(release)
	require.NoError(t, <-done)
	require.NotEmpty(t, r.CurrentName())
}

func TestDisconnectCurrentIsIdempotent(t *testing.T) {
	runner := &fakeRunner{}
	r := newTestRotator(t, runner, &fakeVerifier{}, testPool(1))

	require.NoError(t, r.DisconnectCurrent(context.Background()))

	_, err := r.Rotate(context.Background())
	require.NoError(t, err)
	require.NoError(t, r.DisconnectCurrent(context.Background()))
	require.Empty(t, r.CurrentName())
	require.NoError(t, r.DisconnectCurrent(context.Background()))
}

func TestRenderConfigShape(t *testing.T) {
	conf := renderConfig(Identity{
		Name:      "node-1",
		Endpoint:  "198.51.100.7:51820",
		PublicKey: "pubkey",
	}, "privkey", "10.8.0.2/24")

	require.Contains(t, conf, "PrivateKey = privkey")
	require.Contains(t, conf, "Address = 10.8.0.2/24")
	require.Contains(t, conf, "DNS = 1.1.1.1, 8.8.8.8")
	require.Contains(t, conf, "PublicKey = pubkey")
	require.Contains(t, conf, "Endpoint = 198.51.100.7:51820")
	require.Contains(t, conf, "PersistentKeepalive = 25")
}
