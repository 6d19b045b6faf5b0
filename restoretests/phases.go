package restoretests

import (
	"fmt"
	"strings"
	"time"
)

// Phase is one step of a scenario. Scenarios are declared as lists of phases built with
// the constructors below, and every phase becomes a numbered step in the test result.
type Phase struct {
	Name string
	run  func(t *T)
	// repeat and body are set only by Repeat.
	repeat int
	body   []Phase
}

// RunPhases runs phases in order. The first phase that fails ends the scenario.
func (t *T) RunPhases(phases ...Phase) {
	for _, p := range phases {
		p.exec(t, "")
	}
}

func (p Phase) exec(t *T, suffix string) {
	if p.repeat > 0 {
		for i := 1; i <= p.repeat; i++ {
			for _, sub := range p.body {
				sub.exec(t, fmt.Sprintf("%s (cycle %d of %d)", suffix, i, p.repeat))
			}
		}
		return
	}
	t.failIfInterrupted()
	t.context.Step(p.Name + suffix)
	p.run(t)
}

func StartRouter() Phase {
	return Phase{Name: "start router", run: func(t *T) { t.Start(Router) }}
}

// SettleRouter waits a fixed time for the router to start listening. The router does not
// log anything that says it is ready.
func SettleRouter() Phase {
	return Phase{Name: "wait for router to settle", run: func(t *T) {
		t.Sleep(t.env.config.Timing.RouterSettle)
	}}
}

func StopRouter() Phase {
	return Phase{Name: "stop router", run: func(t *T) { t.Stop(Router) }}
}

// RestartRouter starts a new router process, appending to the same log as the old one,
// and waits for it to settle.
func RestartRouter() Phase {
	return Phase{Name: "restart router", run: func(t *T) {
		t.Start(Router)
		t.Sleep(t.env.config.Timing.RouterSettle)
	}}
}

func StartClient(role Role) Phase {
	return Phase{Name: "start " + string(role), run: func(t *T) { t.Start(role) }}
}

// Await waits, for the configured event timeout, until role logs an event of kind.
func Await(role Role, kind EventKind) Phase {
	return Phase{Name: fmt.Sprintf("wait for %s: %s", role, kind), run: func(t *T) {
		t.RequireEvent(role, kind, t.env.config.Timing.EventTimeout)
	}}
}

// AwaitWithin is Await with an explicit timeout.
func AwaitWithin(role Role, kind EventKind, timeout time.Duration) Phase {
	return Phase{Name: fmt.Sprintf("wait for %s: %s", role, kind), run: func(t *T) {
		t.RequireEvent(role, kind, timeout)
	}}
}

// AwaitAll waits for the same event from each role in turn.
func AwaitAll(kind EventKind, roles ...Role) []Phase {
	var ret []Phase
	for _, role := range roles {
		ret = append(ret, Await(role, kind))
	}
	return ret
}

// ExpectLatest checks, without waiting, that the last report role made of want or other
// was want.
func ExpectLatest(role Role, want, other EventKind) Phase {
	return Phase{Name: fmt.Sprintf("check %s: latest is %s", role, want), run: func(t *T) {
		t.RequireLatest(role, want, other)
	}}
}

func Clear(roles ...Role) Phase {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r))
	}
	return Phase{Name: "clear logs of " + strings.Join(names, ", "), run: func(t *T) { t.Clear(roles...) }}
}

func BlockNetwork() Phase {
	return Phase{Name: "block network", run: func(t *T) { t.BlockNetwork() }}
}

func UnblockNetwork() Phase {
	return Phase{Name: "unblock network", run: func(t *T) { t.UnblockNetwork() }}
}

// Outage keeps whatever fault was just injected in place for d.
func Outage(d time.Duration) Phase {
	return Phase{Name: fmt.Sprintf("keep outage for %s", d), run: func(t *T) { t.Sleep(d) }}
}

// LivelinessOutage is Outage for the configured liveliness outage duration.
func LivelinessOutage() Phase {
	return Phase{Name: "keep outage until liveliness lease expires", run: func(t *T) {
		t.Sleep(t.env.config.Timing.LivelinessOutage)
	}}
}

func CheckRouterErrors() Phase {
	return Phase{Name: "check router log for errors", run: func(t *T) { t.RequireNoRouterErrors() }}
}

// Repeat runs phases n times in sequence. n is at least 1.
func Repeat(n int, phases ...Phase) Phase {
	if n < 1 {
		n = 1
	}
	return Phase{Name: fmt.Sprintf("repeat %d times", n), repeat: n, body: phases}
}

func StopAll() Phase {
	return Phase{Name: "stop all processes", run: func(t *T) { t.StopAll() }}
}
