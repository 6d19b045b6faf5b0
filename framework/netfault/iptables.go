package netfault

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/alessio/shellescape"
)

// maxRuleCopies bounds how many duplicate rules Unblock will delete for one chain.
const maxRuleCopies = 16

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Iptables drops TCP traffic to and from a port with iptables rules on the INPUT and
// OUTPUT chains. It needs root, or Sudo.
type Iptables struct {
	// Path is the iptables binary. Defaults to "iptables".
	Path string
	Sudo bool
	// Run executes commands. Defaults to os/exec.
	Run Runner
}

type rule struct {
	chain string
	match []string
}

func rules(port int) []rule {
	p := strconv.Itoa(port)
	return []rule{
		{chain: "INPUT", match: []string{"-p", "tcp", "--dport", p, "-j", "DROP"}},
		{chain: "OUTPUT", match: []string{"-p", "tcp", "--sport", p, "-j", "DROP"}},
	}
}

func (t Iptables) Block(ctx context.Context, port int) error {
	for _, r := range rules(port) {
		if err := t.exec(ctx, "-A", r); err != nil {
			return err
		}
	}
	return nil
}

// Unblock deletes every copy of the rules that exists. It is not an error if there
// are none.
func (t Iptables) Unblock(ctx context.Context, port int) error {
	var errs []error
	for _, r := range rules(port) {
		for n := 0; n < maxRuleCopies && t.exec(ctx, "-C", r) == nil; n++ {
			if err := t.exec(ctx, "-D", r); err != nil {
				errs = append(errs, err)
				break
			}
		}
	}
	return errors.Join(errs...)
}

func (t Iptables) exec(ctx context.Context, op string, r rule) error {
	path := t.Path
	if path == "" {
		path = "iptables"
	}
	args := append([]string{op, r.chain}, r.match...)
	name := path
	if t.Sudo {
		args = append([]string{path}, args...)
		name = "sudo"
	}
	run := t.Run
	if run == nil {
		run = runCommand
	}
	out, err := run(ctx, name, args...)
	if err != nil {
		cmdline := shellescape.QuoteCommand(append([]string{name}, args...))
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s: %w: %s", cmdline, err, msg)
		}
		return fmt.Errorf("%s: %w", cmdline, err)
	}
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
