// Package netfault simulates network partitions between the clients under test and the
// router by dropping traffic on the router's port.
package netfault

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrAlreadyBlocked is returned by Block when this Injector has already blocked traffic.
var ErrAlreadyBlocked = errors.New("network is already blocked")

// Backend installs and removes the rules that drop traffic on a port. Unblock must
// succeed when no rules are installed.
type Backend interface {
	Block(ctx context.Context, port int) error
	Unblock(ctx context.Context, port int) error
}

// Injector tracks whether it currently has traffic blocked. State lives in the value,
// so independent Injectors do not interfere with each other's bookkeeping.
type Injector struct {
	backend Backend
	port    int
	blocked bool
	lock    sync.Mutex
}

func NewInjector(backend Backend, port int) *Injector {
	return &Injector{backend: backend, port: port}
}

func (i *Injector) Port() int { return i.port }

// Block starts dropping traffic. If the backend fails part way, whatever it installed
// is removed again and the Injector stays unblocked.
func (i *Injector) Block(ctx context.Context) error {
	i.lock.Lock()
	defer i.lock.Unlock()
	if i.blocked {
		return ErrAlreadyBlocked
	}
	if err := i.backend.Block(ctx, i.port); err != nil {
		if rollbackErr := i.backend.Unblock(ctx, i.port); rollbackErr != nil {
			return fmt.Errorf("blocking port %d: %w (rollback also failed: %s)", i.port, err, rollbackErr)
		}
		return fmt.Errorf("blocking port %d: %w", i.port, err)
	}
	i.blocked = true
	return nil
}

// Unblock removes any rules for the port, whatever state the Injector believes it is
// in. The Injector is considered unblocked afterward even if the backend reports an
// error; the error is returned for logging.
func (i *Injector) Unblock(ctx context.Context) error {
	i.lock.Lock()
	defer i.lock.Unlock()
	i.blocked = false
	if err := i.backend.Unblock(ctx, i.port); err != nil {
		return fmt.Errorf("unblocking port %d: %w", i.port, err)
	}
	return nil
}

func (i *Injector) Blocked() bool {
	i.lock.Lock()
	defer i.lock.Unlock()
	return i.blocked
}

// None is a Backend that does nothing, for hosts where traffic cannot be blocked.
type None struct{}

func (None) Block(context.Context, int) error   { return nil }
func (None) Unblock(context.Context, int) error { return nil }
