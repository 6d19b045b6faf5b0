package procs

import (
	"context"
	"errors"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picotests/connection-restore-tests/framework"
	"github.com/picotests/connection-restore-tests/framework/logbuf"
)

func shell(name, script string) Command {
	return Command{Name: name, Path: "sh", Args: []string{"-c", script}}
}

func waitForLine(t *testing.T, b *logbuf.Buffer, text string) {
	t.Helper()
	_, ok := logbuf.WaitFor(context.Background(), []*logbuf.Buffer{b}, logbuf.Contains(text), 5*time.Second)
	require.True(t, ok, "timed out waiting for %q in %s", text, b.Name())
}

func TestSpawnCollectsStdoutAndStderrSeparately(t *testing.T) {
	p, err := Spawn(shell("both", "echo out-line; echo err-line >&2"), Options{})
	require.NoError(t, err)
	<-p.Done()

	assert.Equal(t, Exited, p.State())
	assert.Equal(t, 0, p.ExitCode())
	assert.Equal(t, []string{"out-line"}, p.Stdout().Snapshot())
	assert.Equal(t, []string{"err-line"}, p.Stderr().Snapshot())
	assert.NotEmpty(t, p.ID())
	assert.NotZero(t, p.Pid())
}

func TestExitIsLoggedWithOutputLineCount(t *testing.T) {
	var logger framework.CapturingLogger
	p, err := Spawn(shell("chatty", "echo one; echo two; echo three >&2"), Options{Logger: &logger})
	require.NoError(t, err)
	<-p.Done()

	output := logger.Output()
	require.NotEmpty(t, output)
	last := output[len(output)-1].Message
	assert.Contains(t, last, "exited with code 0")
	assert.Contains(t, last, "3 lines of output")
}

func TestSpawnRecordsExitCode(t *testing.T) {
	p, err := Spawn(shell("fails", "exit 3"), Options{})
	require.NoError(t, err)
	<-p.Done()
	assert.Equal(t, 3, p.ExitCode())
}

func TestSpawnPassesEnvironmentOverrides(t *testing.T) {
	cmd := shell("env", `echo "level=$RUST_LOG"`)
	cmd.Env = []string{"RUST_LOG=trace"}
	p, err := Spawn(cmd, Options{})
	require.NoError(t, err)
	<-p.Done()
	assert.Equal(t, []string{"level=trace"}, p.Stdout().Snapshot())
}

func TestSpawnUsesLauncherPrefix(t *testing.T) {
	cmd := Command{Name: "prefixed", Path: "echo", Args: []string{"hello"}, Prefix: []string{"env", "GREETING=1"}}
	p, err := Spawn(cmd, Options{})
	require.NoError(t, err)
	<-p.Done()
	assert.Equal(t, []string{"hello"}, p.Stdout().Snapshot())
}

func TestSpawnMissingBinaryIsSpawnError(t *testing.T) {
	_, err := Spawn(Command{Path: "/nonexistent/z_pub"}, Options{})
	require.Error(t, err)
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, "z_pub", spawnErr.Command.Name)
	assert.Contains(t, err.Error(), "/nonexistent/z_pub")
	assert.True(t, errors.Is(err, exec.ErrNotFound) || errors.Is(err, syscall.ENOENT))
}

func TestSpawnIntoSharedBuffer(t *testing.T) {
	shared := logbuf.New("router")
	first, err := Spawn(shell("router", "echo first"), Options{Stdout: shared})
	require.NoError(t, err)
	<-first.Done()
	second, err := Spawn(shell("router", "echo second"), Options{Stdout: shared})
	require.NoError(t, err)
	<-second.Done()
	assert.Equal(t, []string{"first", "second"}, shared.Snapshot())
}

func TestEcho(t *testing.T) {
	lines := make(chan string, 10)
	p, err := Spawn(shell("talker", "echo hi"), Options{Echo: func(process, stream, line string) {
		lines <- process + " " + stream + " " + line
	}})
	require.NoError(t, err)
	<-p.Done()
	assert.Equal(t, "talker stdout hi", <-lines)
}

func TestTerminateIsIdempotent(t *testing.T) {
	p, err := Spawn(shell("sleeper", "echo ready; sleep 30"), Options{})
	require.NoError(t, err)
	waitForLine(t, p.Stdout(), "ready")
	assert.Equal(t, Running, p.State())

	require.NoError(t, p.Terminate(2*time.Second))
	assert.Equal(t, Exited, p.State())
	require.NoError(t, p.Terminate(2*time.Second))
	assert.Equal(t, Exited, p.State())
}

func TestTerminateAfterNaturalExit(t *testing.T) {
	p, err := Spawn(shell("quick", "true"), Options{})
	require.NoError(t, err)
	<-p.Done()
	assert.NoError(t, p.Terminate(time.Second))
	assert.Equal(t, Exited, p.State())
}

func TestTerminateEscalatesToKill(t *testing.T) {
	p, err := Spawn(shell("stubborn", "trap '' TERM; echo ready; while true; do sleep 0.05; done"), Options{})
	require.NoError(t, err)
	waitForLine(t, p.Stdout(), "ready")

	started := time.Now()
	require.NoError(t, p.Terminate(200*time.Millisecond))
	assert.Equal(t, Exited, p.State())
	assert.GreaterOrEqual(t, int64(time.Since(started)), int64(200*time.Millisecond))
	assert.Equal(t, -1, p.ExitCode())
}

func TestTerminateReachesWholeProcessGroup(t *testing.T) {
	p, err := Spawn(shell("parent", "sleep 30 & echo child=$!; wait"), Options{})
	require.NoError(t, err)
	waitForLine(t, p.Stdout(), "child=")

	require.NoError(t, p.Terminate(2*time.Second))
	// Collection only finishes once every writer to the pipe is gone.
	select {
	case <-p.Done():
	default:
		t.Fatal("process output still open after Terminate")
	}
}

func TestTerminateAllContinuesPastErrors(t *testing.T) {
	a, err := Spawn(shell("a", "echo ready; sleep 30"), Options{})
	require.NoError(t, err)
	b, err := Spawn(shell("b", "echo ready; sleep 30"), Options{})
	require.NoError(t, err)
	waitForLine(t, a.Stdout(), "ready")
	waitForLine(t, b.Stdout(), "ready")

	broken := &Process{command: Command{Name: "broken"}, state: Running}
	errs := TerminateAll(time.Second, a, nil, broken, b)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "broken")
	assert.Equal(t, Exited, a.State())
	assert.Equal(t, Exited, b.State())
}

func TestCommandString(t *testing.T) {
	cmd := Command{Path: "build/examples/z_pub", Args: []string{"-e", "tcp/127.0.0.1:7447", "-v", "hello world"}, Prefix: []string{"stdbuf", "-o0"}}
	assert.Equal(t, `stdbuf -o0 build/examples/z_pub -e tcp/127.0.0.1:7447 -v 'hello world'`, cmd.String())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "not started", NotStarted.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "exited", Exited.String())
}
