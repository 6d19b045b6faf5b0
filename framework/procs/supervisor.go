package procs

import (
	"sync"
	"time"
)

// Supervisor owns every process spawned through it, so that a single call can stop
// them all no matter how a test ended.
type Supervisor struct {
	grace     time.Duration
	defaults  Options
	processes []*Process
	lock      sync.Mutex
}

// NewSupervisor returns a Supervisor that terminates with the given grace period and
// applies defaults to every Spawn that does not override them.
func NewSupervisor(grace time.Duration, defaults Options) *Supervisor {
	return &Supervisor{grace: grace, defaults: defaults}
}

// Spawn starts cmd and registers the handle. Zero fields of opts fall back to the
// Supervisor's defaults.
func (s *Supervisor) Spawn(cmd Command, opts Options) (*Process, error) {
	if opts.Echo == nil {
		opts.Echo = s.defaults.Echo
	}
	if opts.Logger == nil {
		opts.Logger = s.defaults.Logger
	}
	p, err := Spawn(cmd, opts)
	if err != nil {
		return nil, err
	}
	s.lock.Lock()
	s.processes = append(s.processes, p)
	s.lock.Unlock()
	return p, nil
}

// Processes returns every handle spawned so far, in spawn order.
func (s *Supervisor) Processes() []*Process {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]*Process(nil), s.processes...)
}

// Running returns the handles that have not exited yet.
func (s *Supervisor) Running() []*Process {
	var ret []*Process
	for _, p := range s.Processes() {
		if p.State() == Running {
			ret = append(ret, p)
		}
	}
	return ret
}

// TerminateAll terminates every registered process in spawn order.
func (s *Supervisor) TerminateAll() []error {
	return TerminateAll(s.grace, s.Processes()...)
}
