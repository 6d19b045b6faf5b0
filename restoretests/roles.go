package restoretests

import (
	"path/filepath"

	"github.com/picotests/connection-restore-tests/framework/procs"
)

// Role is the part a process plays in a scenario. A scenario runs at most one process
// per role at a time.
type Role string

const (
	Router               Role = "router"
	Publisher            Role = "publisher"
	Subscriber           Role = "subscriber"
	LivelinessToken      Role = "liveliness token"
	LivelinessSubscriber Role = "liveliness subscriber"
)

var unbufferedPrefix = []string{"stdbuf", "-o0"}

// command builds the command line for role from the configuration.
func (e *Environment) command(role Role) procs.Command {
	cfg := e.config
	cmd := procs.Command{
		Name: string(role),
		Env:  e.childEnv,
	}
	if cfg.Unbuffered {
		cmd.Prefix = unbufferedPrefix
	}
	switch role {
	case Router:
		cmd.Path = cfg.RouterPath
		cmd.Args = cfg.ListenArgs()
		return cmd
	case Publisher:
		cmd.Path = cfg.Binaries.Publisher
	case Subscriber:
		cmd.Path = cfg.Binaries.Subscriber
	case LivelinessToken:
		cmd.Path = cfg.Binaries.LivelinessToken
	case LivelinessSubscriber:
		cmd.Path = cfg.Binaries.LivelinessSubscriber
		// also report tokens that were declared before the subscription
		cmd.Args = []string{"-h"}
	}
	if !filepath.IsAbs(cmd.Path) {
		cmd.Path = filepath.Join(cfg.ExamplesDir, cmd.Path)
	}
	cmd.Args = append(cmd.Args, cfg.ConnectArgs()...)
	return cmd
}
