package identity

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Runner executes an external command, returning combined output. The tunnel
// manager shells out through this seam so tests can fake wg-quick.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Tunnel drives wg-quick for a single interface. Configs are written to
// ConfigDir under <interface>.conf before every bring-up.
type Tunnel struct {
	Interface  string
	ConfigDir  string
	PrivateKey string
	Address    string
	Runner     Runner
}

func (t *Tunnel) runner() Runner {
	if t.Runner != nil {
		return t.Runner
	}
	return execRunner{}
}

func (t *Tunnel) configPath() string {
	return filepath.Join(t.ConfigDir, t.Interface+".conf")
}

// Up writes the identity's config and brings the interface up.
func (t *Tunnel) Up(ctx context.Context, id Identity) error {
	if err := os.MkdirAll(t.ConfigDir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	conf := renderConfig(id, t.PrivateKey, t.Address)
	if err := os.WriteFile(t.configPath(), []byte(conf), 0o600); err != nil {
		return fmt.Errorf("write tunnel config: %w", err)
	}
	out, err := t.runner().Run(ctx, "wg-quick", "up", t.configPath())
	if err != nil {
		return fmt.Errorf("wg-quick up %s: %w: %s", t.Interface, err, out)
	}
	return nil
}

// Down tears the interface down. A failure from wg-quick when the interface
// is already gone is not an error.
func (t *Tunnel) Down(ctx context.Context) error {
	out, err := t.runner().Run(ctx, "wg-quick", "down", t.configPath())
	if err != nil {
		if _, statErr := os.Stat(t.configPath()); os.IsNotExist(statErr) {
			return nil
		}
		return fmt.Errorf("wg-quick down %s: %w: %s", t.Interface, err, out)
	}
	return nil
}
