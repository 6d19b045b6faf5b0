package restoretests

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// receivedTailLines is how much of a log a TimeoutError quotes.
const receivedTailLines = 20

// ErrInterrupted means the harness was asked to stop while a scenario was running.
var ErrInterrupted = errors.New("test run interrupted")

// TimeoutError means an expected log line did not appear in time.
type TimeoutError struct {
	Role     Role
	Event    EventKind
	Expected string
	Timeout  time.Duration
	// Received holds, for every log that was searched, the last lines the role wrote to
	// it since it was last cleared.
	Received []ReceivedLines
}

// ReceivedLines is the tail of one searched log.
type ReceivedLines struct {
	Log   string
	Lines []string
}

func (e *TimeoutError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s did not report %s within %s\n", e.Role, e.Event, e.Timeout)
	fmt.Fprintf(&b, "expected: %s", e.Expected)
	quoted := false
	for _, r := range e.Received {
		if len(r.Lines) == 0 {
			continue
		}
		quoted = true
		fmt.Fprintf(&b, "\nreceived on %s (last %d lines):", r.Log, len(r.Lines))
		for _, line := range r.Lines {
			b.WriteString("\n  | ")
			b.WriteString(line)
		}
	}
	if !quoted {
		b.WriteString("\nreceived: nothing")
	}
	return b.String()
}

// StateError means a role's most recent report of some state is not the expected one.
type StateError struct {
	Role Role
	Want EventKind
	Got  EventKind
	Line string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s last reported %s, not %s: %s", e.Role, e.Got, e.Want, e.Line)
}

// RouterError means the router logged its hard-failure marker at some point during the
// scenario.
type RouterError struct {
	Line string
}

func (e *RouterError) Error() string {
	return fmt.Sprintf("router reported an error: %s", e.Line)
}
