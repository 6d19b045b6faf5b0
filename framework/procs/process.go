// Package procs starts the binaries under test and guarantees they can be stopped again.
//
// Every process is started in its own process group so that signals reach anything it
// forks. Termination is idempotent: it is always safe to call Terminate on a handle, in
// any state, any number of times.
package procs

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/alessio/shellescape"
	"github.com/google/uuid"
	gopsprocess "github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/picotests/connection-restore-tests/framework"
	"github.com/picotests/connection-restore-tests/framework/logbuf"
)

// State is the lifecycle state of a Process. It only ever moves forward.
type State int

const (
	NotStarted State = iota
	Running
	Exited
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Running:
		return "running"
	case Exited:
		return "exited"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// killTimeout bounds how long Terminate waits after SIGKILL before giving up.
const killTimeout = 5 * time.Second

// Command describes a binary to run.
type Command struct {
	// Name labels the process in logs and buffers. Defaults to the base name of Path.
	Name string
	Path string
	Args []string
	// Env holds KEY=VALUE overrides appended to the harness's own environment.
	Env []string
	Dir string
	// Prefix is an optional launcher, such as "stdbuf -o0", that Path is passed to.
	Prefix []string
	// StopSignal is sent first on Terminate. Defaults to SIGTERM.
	StopSignal syscall.Signal
}

// String renders the command line in a form that can be pasted into a shell.
func (c Command) String() string {
	return shellescape.QuoteCommand(append(append(append([]string(nil), c.Prefix...), c.Path), c.Args...))
}

// SpawnError means a binary was missing or could not be started.
type SpawnError struct {
	Command Command
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s (%s): %s", e.Command.Name, e.Command.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Options controls where a process's output goes.
type Options struct {
	// Stdout and Stderr are the buffers to collect into. If nil, new ones are created.
	// Passing the same buffer to successive processes gives them one continuous log.
	Stdout *logbuf.Buffer
	Stderr *logbuf.Buffer
	// Echo, if set, receives every collected line as it arrives.
	Echo   func(process, stream, line string)
	Logger framework.Logger
}

// Process is a handle to one spawned binary.
type Process struct {
	id       string
	command  Command
	cmd      *exec.Cmd
	pid      int
	stdout   *logbuf.Buffer
	stderr   *logbuf.Buffer
	logger   framework.Logger
	done     chan struct{}
	state    State
	exitCode int
	start    time.Time
	end      time.Time
	lock     sync.RWMutex
}

// Spawn starts cmd and begins collecting its stdout and stderr in the background.
func Spawn(cmd Command, opts Options) (*Process, error) {
	if cmd.Name == "" {
		cmd.Name = filepath.Base(cmd.Path)
	}
	if cmd.StopSignal == 0 {
		cmd.StopSignal = syscall.SIGTERM
	}
	logger := opts.Logger
	if logger == nil {
		logger = framework.NullLogger()
	}

	target, err := exec.LookPath(cmd.Path)
	if err != nil {
		return nil, &SpawnError{Command: cmd, Err: err}
	}
	argv := append([]string{target}, cmd.Args...)
	if len(cmd.Prefix) != 0 {
		launcher, err := exec.LookPath(cmd.Prefix[0])
		if err != nil {
			return nil, &SpawnError{Command: cmd, Err: fmt.Errorf("launcher: %w", err)}
		}
		argv = append(append([]string{launcher}, cmd.Prefix[1:]...), argv...)
	}

	c := exec.Command(argv[0], argv[1:]...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdoutPipe, err := c.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Command: cmd, Err: err}
	}
	stderrPipe, err := c.StderrPipe()
	if err != nil {
		return nil, &SpawnError{Command: cmd, Err: err}
	}

	p := &Process{
		id:       uuid.NewString(),
		command:  cmd,
		cmd:      c,
		stdout:   opts.Stdout,
		stderr:   opts.Stderr,
		logger:   logger,
		done:     make(chan struct{}),
		exitCode: -1,
	}
	if p.stdout == nil {
		p.stdout = logbuf.New(cmd.Name + " stdout")
	}
	if p.stderr == nil {
		p.stderr = logbuf.New(cmd.Name + " stderr")
	}

	logger.Printf("Starting %s: %s", cmd.Name, cmd)
	if err := c.Start(); err != nil {
		return nil, &SpawnError{Command: cmd, Err: err}
	}
	p.lock.Lock()
	p.pid = c.Process.Pid
	p.state = Running
	p.start = time.Now()
	p.lock.Unlock()

	echo := func(stream string) func(string) {
		if opts.Echo == nil {
			return nil
		}
		return func(line string) { opts.Echo(cmd.Name, stream, line) }
	}
	stdout := logbuf.Collect(stdoutPipe, p.stdout, echo("stdout"))
	stderr := logbuf.Collect(stderrPipe, p.stderr, echo("stderr"))

	go func() {
		// cmd.Wait closes the pipes, so both streams must be fully drained first.
		var streams errgroup.Group
		streams.Go(stdout.Wait)
		streams.Go(stderr.Wait)
		if err := streams.Wait(); err != nil {
			logger.Printf("Error reading output of %s: %s", cmd.Name, err)
		}
		err := c.Wait()
		code := 0
		if err != nil {
			code = -1
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
			}
		}
		p.lock.Lock()
		p.exitCode = code
		p.end = time.Now()
		p.state = Exited
		p.lock.Unlock()
		logger.Printf("%s (pid %d) exited with code %d after %s, %d lines of output",
			cmd.Name, p.pid, code, p.end.Sub(p.start).Round(time.Millisecond), stdout.Lines()+stderr.Lines())
		close(p.done)
	}()

	return p, nil
}

func (p *Process) ID() string { return p.id }

func (p *Process) Name() string { return p.command.Name }

func (p *Process) Command() Command { return p.command }

func (p *Process) Pid() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.pid
}

func (p *Process) State() State {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.state
}

// ExitCode returns the exit status, or -1 if the process has not exited or was killed
// by a signal.
func (p *Process) ExitCode() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.exitCode
}

func (p *Process) Stdout() *logbuf.Buffer { return p.stdout }

func (p *Process) Stderr() *logbuf.Buffer { return p.stderr }

// Done is closed once the process has exited and all of its output has been collected.
func (p *Process) Done() <-chan struct{} { return p.done }

// Terminate stops the process if it is still running. It sends the stop signal to the
// whole process group, waits up to grace, then kills the group and every remaining
// descendant. Calling it on a process that already exited does nothing.
func (p *Process) Terminate(grace time.Duration) error {
	if p.State() != Running {
		return nil
	}
	pid := p.Pid()
	if pid <= 0 {
		return fmt.Errorf("%s is marked running but has no pid", p.command.Name)
	}

	p.logger.Printf("Stopping %s (pid %d)", p.command.Name, pid)
	if err := unix.Kill(-pid, p.command.StopSignal); err != nil && !errors.Is(err, unix.ESRCH) {
		p.logger.Printf("Could not signal %s: %s", p.command.Name, err)
	}
	if p.waitExit(grace) {
		return nil
	}

	p.logger.Printf("%s did not exit within %s, killing it", p.command.Name, grace)
	killDescendants(pid)
	_ = unix.Kill(-pid, unix.SIGKILL)
	if p.waitExit(killTimeout) {
		return nil
	}
	return fmt.Errorf("%s (pid %d) still running after SIGKILL", p.command.Name, pid)
}

func (p *Process) waitExit(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}

// killDescendants kills children that may have moved to another process group.
func killDescendants(pid int) {
	proc, err := gopsprocess.NewProcess(int32(pid))
	if err != nil {
		return
	}
	children, err := proc.Children()
	if err != nil {
		return
	}
	for _, child := range children {
		killDescendants(int(child.Pid))
		_ = child.Kill()
	}
}

// TerminateAll terminates every process in order. It never stops early: a failure or
// panic for one process is recorded and the rest are still terminated.
func TerminateAll(grace time.Duration, procs ...*Process) []error {
	var errs []error
	for _, p := range procs {
		if p == nil {
			continue
		}
		if err := terminateOne(p, grace); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func terminateOne(p *Process, grace time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while terminating %s: %v", p.Name(), r)
		}
	}()
	return p.Terminate(grace)
}
