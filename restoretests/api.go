package restoretests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/picotests/connection-restore-tests/framework"
	"github.com/picotests/connection-restore-tests/framework/logbuf"
	"github.com/picotests/connection-restore-tests/framework/procs"
)

// T represents one scenario run.
//
// It implements the same basic functionality as Go's testing.T, but in an environment that is
// outside of the Go test runner. Those features are provided by our lower-level framework
// package.
//
// It also owns every process the scenario starts, and one log per role that outlives the
// role's processes, so that a restarted router keeps appending to the same log. When the
// scenario ends, however it ends, T unblocks the network and terminates every process it
// started, in that order.
//
// To make test assertions, you can use the assert and require packages, passing the *T as if
// it were a *testing.T. The wait methods fail the scenario and exit immediately on their own.
type T struct {
	context   *framework.Context
	env       *Environment
	procs     *procs.Supervisor
	logs      map[Role]*roleLogs
	processes map[Role]*procs.Process
}

type roleLogs struct {
	stdout *logbuf.Buffer
	stderr *logbuf.Buffer
}

func (l *roleLogs) all() []*logbuf.Buffer {
	return []*logbuf.Buffer{l.stdout, l.stderr}
}

func newTestScope(context *framework.Context, env *Environment) *T {
	t := &T{
		context:   context,
		env:       env,
		logs:      make(map[Role]*roleLogs),
		processes: make(map[Role]*procs.Process),
	}
	t.procs = procs.NewSupervisor(env.config.Timing.TerminateGrace, procs.Options{
		Logger: context.DebugLogger(),
		Echo: func(process, stream, line string) {
			context.DebugOutput(process+" "+stream, line)
		},
	})
	context.Defer(t.cleanup)
	return t
}

// cleanup restores the network and stops every process. Problems become warnings so they
// never replace the scenario's own verdict.
func (t *T) cleanup() {
	// The run may have been interrupted, but the network must be restored regardless.
	if err := t.env.faults.Unblock(context.WithoutCancel(t.env.ctx)); err != nil {
		t.context.Warn(&framework.CleanupError{Op: "unblock network", Err: err})
	}
	for _, err := range t.procs.TerminateAll() {
		t.context.Warn(&framework.CleanupError{Op: "terminate", Err: err})
	}
	for _, p := range t.procs.Running() {
		t.context.Warn(&framework.CleanupError{Op: "terminate", Err: fmt.Errorf("%s (pid %d) is still running", p.Name(), p.Pid())})
	}
}

// Errorf is called by assertions to log a test failure. It does not cause an immediate exit.
func (t *T) Errorf(format string, args ...interface{}) {
	t.context.Errorf(format, args...)
}

// FailNow is called by assertions when a test should fail and immediately exit. The methods in
// the require package call FailNow.
func (t *T) FailNow() {
	t.context.FailNow()
}

// FailWith records err as the reason the scenario failed and exits immediately.
func (t *T) FailWith(err error) {
	t.context.Error(err)
	t.context.FailNow()
}

// Debug logs some debug output for the test. The output will be passed to the test logger at
// the end of the test.
func (t *T) Debug(format string, args ...interface{}) {
	t.context.Debug(format, args...)
}

// logf reports scenario progress both to the console and to the test's debug output.
func (t *T) logf(format string, args ...interface{}) {
	t.env.logger.Printf("[%s] "+format, append([]interface{}{t.context.ID()}, args...)...)
	t.context.Debug(format, args...)
}

// Logs returns the stdout and stderr logs of role.
func (t *T) Logs(role Role) []*logbuf.Buffer {
	return t.roleLogs(role).all()
}

func (t *T) roleLogs(role Role) *roleLogs {
	l := t.logs[role]
	if l == nil {
		l = &roleLogs{
			stdout: logbuf.New(string(role) + " stdout"),
			stderr: logbuf.New(string(role) + " stderr"),
		}
		t.logs[role] = l
	}
	return l
}

// Process returns the latest process started for role, or nil.
func (t *T) Process(role Role) *procs.Process {
	return t.processes[role]
}

// Processes returns every process the scenario has started, in order.
func (t *T) Processes() []*procs.Process {
	return t.procs.Processes()
}

// Start launches the program for role. The scenario fails immediately if it cannot be
// started, or if the role already has a running process.
func (t *T) Start(role Role) *procs.Process {
	if p := t.processes[role]; p != nil {
		require.NotEqual(t, procs.Running, p.State(), "%s is already running", role)
	}
	cmd := t.env.command(role)
	logs := t.roleLogs(role)
	p, err := t.procs.Spawn(cmd, procs.Options{Stdout: logs.stdout, Stderr: logs.stderr})
	if err != nil {
		t.FailWith(err)
	}
	t.processes[role] = p
	t.logf("Started %s (pid %d): %s", role, p.Pid(), cmd)
	return p
}

// Stop terminates the running process for role, if any.
func (t *T) Stop(role Role) {
	p := t.processes[role]
	if p == nil {
		return
	}
	t.logf("Stopping %s...", role)
	if err := p.Terminate(t.env.config.Timing.TerminateGrace); err != nil {
		t.FailWith(err)
	}
}

// StopAll terminates every process the scenario started, in start order.
func (t *T) StopAll() {
	if errs := t.procs.TerminateAll(); len(errs) != 0 {
		t.FailWith(errors.Join(errs...))
	}
}

// RequireEvent waits until role logs an event of the given kind, and returns the line.
// Lines logged before the role's log was last cleared do not count.
//
// The test fails and immediately exits with a *TimeoutError if the event is not seen in time.
func (t *T) RequireEvent(role Role, kind EventKind, timeout time.Duration) string {
	matcher := t.env.events[kind]
	require.NotNil(t, matcher, "no markers configured for %s", kind)
	logs := t.roleLogs(role)
	started := time.Now()
	m, ok := logbuf.WaitFor(t.env.ctx, logs.all(), matcher, timeout)
	if !ok {
		t.failIfInterrupted()
		t.FailWith(&TimeoutError{
			Role:     role,
			Event:    kind,
			Expected: matcher.String(),
			Timeout:  timeout,
			Received: tails(logs.all()),
		})
	}
	t.logf("%s: %s after %s", role, kind, time.Since(started).Round(time.Millisecond))
	t.Debug("matched in %s: %s", m.Buffer, m.Line)
	return m.Line
}

func tails(bufs []*logbuf.Buffer) []ReceivedLines {
	ret := make([]ReceivedLines, 0, len(bufs))
	for _, b := range bufs {
		ret = append(ret, ReceivedLines{Log: b.Name(), Lines: b.Tail(receivedTailLines)})
	}
	return ret
}

// RequireLatest fails with a *StateError if, in any of role's logs, the last line
// reporting either want or other reports other. It also fails if want was not reported
// at all since the last Clear. Unlike RequireEvent it does not wait.
func (t *T) RequireLatest(role Role, want, other EventKind) {
	wantMatcher, otherMatcher := t.env.events[want], t.env.events[other]
	require.NotNil(t, wantMatcher, "no markers configured for %s", want)
	require.NotNil(t, otherMatcher, "no markers configured for %s", other)
	seen := false
	for _, b := range t.Logs(role) {
		lines := b.Snapshot()
		for i := len(lines) - 1; i >= 0; i-- {
			if wantMatcher.Match(lines[i]) {
				seen = true
				break
			}
			if otherMatcher.Match(lines[i]) {
				t.FailWith(&StateError{Role: role, Want: want, Got: other, Line: lines[i]})
			}
		}
	}
	if !seen {
		t.FailWith(fmt.Errorf("%s has not reported %s", role, want))
	}
	t.logf("%s: still %s", role, want)
}

// Clear hides everything the given roles have logged so far from later waits.
func (t *T) Clear(roles ...Role) {
	for _, role := range roles {
		for _, b := range t.Logs(role) {
			b.Clear()
		}
	}
}

// BlockNetwork drops all traffic on the router port.
func (t *T) BlockNetwork() {
	t.logf("Blocking connection...")
	if err := t.env.faults.Block(t.env.ctx); err != nil {
		t.FailWith(err)
	}
}

// UnblockNetwork restores traffic on the router port.
func (t *T) UnblockNetwork() {
	t.logf("Unblocking connection...")
	if err := t.env.faults.Unblock(t.env.ctx); err != nil {
		t.FailWith(err)
	}
}

// Sleep pauses the scenario for d. It fails with ErrInterrupted if the run is cancelled
// meanwhile.
func (t *T) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-t.env.ctx.Done():
		t.FailWith(ErrInterrupted)
	}
}

// RequireNoRouterErrors fails with a *RouterError if the router has logged its error
// marker at any point in the scenario, including before a restart or a Clear.
func (t *T) RequireNoRouterErrors() {
	for _, line := range t.roleLogs(Router).stdout.History() {
		if t.env.routerError.Match(line) {
			t.FailWith(&RouterError{Line: line})
		}
	}
}

func (t *T) failIfInterrupted() {
	if t.env.ctx.Err() != nil {
		t.FailWith(ErrInterrupted)
	}
}
