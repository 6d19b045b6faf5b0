package restoretests

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/picotests/connection-restore-tests/framework"
	"github.com/picotests/connection-restore-tests/suitedef"
)

// The fake programs below share state through files in $FAKE_STATE_DIR: router.up
// exists while the router runs, blocked exists while the network is blocked, and each
// client touches <name>.connected while it considers itself connected.

const fakeRouterScript = `#!/bin/sh
dir="$FAKE_STATE_DIR"
trap 'rm -f "$dir/router.up"; exit 0' TERM INT
echo "zenohd listening $*"
if [ -n "$FAKE_ROUTER_ERROR" ]; then
  echo "2024-01-01T00:00:00Z ERROR zenohd: simulated failure"
fi
touch "$dir/router.up"
while :; do sleep 0.02; done
`

const fakeClientScript = `#!/bin/sh
dir="$FAKE_STATE_DIR"
me=%s
connected=0
alive=0
trap 'rm -f "$dir/$me.up" "$dir/$me.connected"; exit 0' TERM INT
echo "starting $me $*"
touch "$dir/$me.up"
while :; do
  if [ -e "$dir/router.up" ] && [ ! -e "$dir/blocked" ]; then
    if [ "$connected" = 0 ]; then
      connected=1
      touch "$dir/$me.connected"
      echo "Z_OPEN(Ack)"
    fi
  elif [ "$connected" = 1 ]; then
    connected=0
    rm -f "$dir/$me.connected"
    echo "Send keep alive failed" >&2
  fi
  case "$me" in
  z_pub)
    if [ "$connected" = 1 ]; then
      if [ -e "$dir/z_sub.connected" ]; then echo "write filter: inactive"; else echo "write filter: active"; fi
    fi
    ;;
  z_sub)
    if [ "$connected" = 1 ] && [ -e "$dir/z_pub.connected" ]; then
      echo ">> [Subscriber] Received ('demo/example/zenoh-pico-pub': 'Pub from fake')"
    fi
    ;;
  z_sub_liveliness)
    now=0
    if [ "$connected" = 1 ] && [ -e "$dir/z_liveliness.connected" ]; then now=1; fi
    if [ "$now" = 1 ] && [ "$alive" = 0 ]; then echo "[LivelinessSubscriber] New alive token ('group1/zenoh-pico')"; fi
    if [ "$now" = 0 ] && [ "$alive" = 1 ]; then echo "[LivelinessSubscriber] Dropped token ('group1/zenoh-pico')"; fi
    alive=$now
    ;;
  esac
  sleep 0.02
done
`

// fileBackend simulates iptables by creating and removing the blocked file.
type fileBackend struct {
	dir string
}

func (f fileBackend) Block(context.Context, int) error {
	return os.WriteFile(filepath.Join(f.dir, "blocked"), nil, 0644)
}

func (f fileBackend) Unblock(context.Context, int) error {
	err := os.Remove(filepath.Join(f.dir, "blocked"))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

type fakeSetup struct {
	binDir   string
	stateDir string
	config   suitedef.Config
}

func newFakeSetup(t *testing.T) *fakeSetup {
	t.Helper()
	f := &fakeSetup{binDir: t.TempDir(), stateDir: t.TempDir()}
	writeScript(t, filepath.Join(f.binDir, "zenohd"), fakeRouterScript)
	for _, name := range []string{"z_pub", "z_sub", "z_liveliness", "z_sub_liveliness"} {
		writeScript(t, filepath.Join(f.binDir, name), fmt.Sprintf(fakeClientScript, name))
	}

	cfg := suitedef.Default()
	cfg.RouterPath = filepath.Join(f.binDir, "zenohd")
	cfg.ExamplesDir = f.binDir
	cfg.Unbuffered = false
	cfg.Sanitizer = suitedef.SanitizerOff
	cfg.Env = map[string]string{"RUST_LOG": "trace", "FAKE_STATE_DIR": f.stateDir}
	cfg.Timing = suitedef.Timing{
		RouterSettle:     50 * time.Millisecond,
		EventTimeout:     3 * time.Second,
		TerminateGrace:   2 * time.Second,
		LivelinessOutage: 100 * time.Millisecond,
	}
	cfg.Outages = []time.Duration{100 * time.Millisecond}
	f.config = cfg
	return f
}

func writeScript(t *testing.T, path, content string) {
	require.NoError(t, os.WriteFile(path, []byte(content), 0755))
}

func newEnvironment(t *testing.T, ctx context.Context, cfg suitedef.Config, opts EnvironmentOptions) *Environment {
	t.Helper()
	env, err := NewEnvironment(ctx, cfg, opts)
	require.NoError(t, err)
	return env
}

func (f *fakeSetup) environment(t *testing.T, ctx context.Context) *Environment {
	t.Helper()
	return newEnvironment(t, ctx, f.config, EnvironmentOptions{FaultBackend: fileBackend{dir: f.stateDir}})
}

func (f *fakeSetup) run(t *testing.T, scenarios ...Scenario) framework.Results {
	t.Helper()
	return RunScenarios(f.environment(t, context.Background()), scenarios, nil, nil)
}

// leftovers lists state files that only exist while something is still running or the
// network is still blocked.
func (f *fakeSetup) leftovers(t *testing.T) []string {
	t.Helper()
	var ret []string
	for _, pattern := range []string{"*.up", "blocked"} {
		matches, err := filepath.Glob(filepath.Join(f.stateDir, pattern))
		require.NoError(t, err)
		for _, m := range matches {
			ret = append(ret, filepath.Base(m))
		}
	}
	return ret
}

// capture is a phase that hands the running scenario's T to the test.
func capture(dest **T) Phase {
	return Phase{Name: "capture scope", run: func(t *T) { *dest = t }}
}
