package restoretests

import (
	"fmt"
	"strings"
	"time"

	"github.com/picotests/connection-restore-tests/suitedef"
)

// Scenario is a named, declarative list of phases.
type Scenario struct {
	Name        string
	Description string
	// NeedsNetworkFault marks scenarios that cannot run without a fault backend.
	NeedsNetworkFault bool
	Phases            []Phase
}

// Scenarios returns the full suite, in the order it runs.
func Scenarios(cfg suitedef.Config) []Scenario {
	var ret []Scenario
	for _, outage := range cfg.Outages {
		for _, clients := range [][]Role{{Publisher}, {Subscriber}, {Subscriber, Publisher}} {
			ret = append(ret, ConnectionDrop(clients, outage, cfg.ReconnectCycles))
		}
	}
	for _, outage := range cfg.Outages {
		for _, client := range []Role{Publisher, Subscriber} {
			ret = append(ret, RouterRestart(client, outage))
		}
	}
	ret = append(ret,
		LivelinessDrop(),
		PubSubSurviveRestart(),
		PubBeforeRestartThenNewSub(),
	)
	return ret
}

func roleList(roles []Role) string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r))
	}
	return strings.Join(names, " + ")
}

// ConnectionDrop blocks the router port while clients are connected, and checks that
// they notice the loss and reconnect once traffic flows again. The block/unblock cycle
// runs cycles times, since a failure was once seen only on the second reconnection.
func ConnectionDrop(clients []Role, outage time.Duration, cycles int) Scenario {
	ps := []Phase{StartRouter(), SettleRouter()}
	for _, c := range clients {
		ps = append(ps, StartClient(c))
	}
	cycle := AwaitAll(Connected, clients...)
	cycle = append(cycle, Clear(clients...), BlockNetwork(), Outage(outage))
	cycle = append(cycle, AwaitAll(Disconnected, clients...)...)
	cycle = append(cycle, Clear(clients...), UnblockNetwork())
	cycle = append(cycle, AwaitAll(Connected, clients...)...)
	ps = append(ps, Repeat(cycles, cycle...), CheckRouterErrors(), StopAll())

	return Scenario{
		Name:              fmt.Sprintf("connection drop (%s, outage %s)", roleList(clients), outage),
		Description:       "clients reconnect after the router port is blocked and unblocked",
		NeedsNetworkFault: true,
		Phases:            ps,
	}
}

// RouterRestart stops the router instead of blocking the network.
func RouterRestart(client Role, outage time.Duration) Scenario {
	return Scenario{
		Name:        fmt.Sprintf("router restart (%s, outage %s)", client, outage),
		Description: "a client reconnects to a router that was stopped and started again",
		Phases: []Phase{
			StartRouter(),
			SettleRouter(),
			StartClient(client),
			Await(client, Connected),
			Clear(client),
			StopRouter(),
			Outage(outage),
			Await(client, Disconnected),
			Clear(client),
			RestartRouter(),
			Await(client, Connected),
			CheckRouterErrors(),
			StopAll(),
		},
	}
}

// LivelinessDrop checks that a liveliness token is reported dropped while the network is
// blocked, and alive again afterward. Only the token and the liveliness subscriber take
// part; no publisher is started, since the token holder is the client whose session is
// cut.
func LivelinessDrop() Scenario {
	return Scenario{
		Name:              "liveliness drop",
		Description:       "a liveliness subscriber sees a token drop and come back across a network outage",
		NeedsNetworkFault: true,
		Phases: []Phase{
			StartRouter(),
			SettleRouter(),
			StartClient(LivelinessSubscriber),
			StartClient(LivelinessToken),
			Await(LivelinessSubscriber, TokenAlive),
			Clear(LivelinessSubscriber),
			BlockNetwork(),
			LivelinessOutage(),
			Await(LivelinessSubscriber, TokenDropped),
			Clear(LivelinessSubscriber),
			UnblockNetwork(),
			Await(LivelinessSubscriber, TokenAlive),
			CheckRouterErrors(),
			StopAll(),
		},
	}
}

// PubSubSurviveRestart checks that samples flow between an existing publisher and
// subscriber both before and after a router restart.
func PubSubSurviveRestart() Scenario {
	ps := []Phase{
		StartRouter(),
		SettleRouter(),
		StartClient(Subscriber),
		StartClient(Publisher),
	}
	ps = append(ps, AwaitAll(Connected, Subscriber, Publisher)...)
	ps = append(ps, Await(Subscriber, SampleReceived), Clear(Subscriber, Publisher), StopRouter())
	ps = append(ps, AwaitAll(Disconnected, Subscriber, Publisher)...)
	ps = append(ps, Clear(Subscriber, Publisher), RestartRouter())
	ps = append(ps, AwaitAll(Connected, Subscriber, Publisher)...)
	ps = append(ps, Await(Subscriber, SampleReceived), CheckRouterErrors(), StopAll())
	return Scenario{
		Name:        "pub/sub survive restart",
		Description: "samples are delivered before and after a router restart",
		Phases:      ps,
	}
}

// PubBeforeRestartThenNewSub checks that a publisher which connected before a router
// restart does not keep filtering out writes for lack of subscribers, once a new
// subscriber appears after the restart. The publisher starts alone, so its write filter
// must be active first; at the end the filter must be inactive and stay that way.
func PubBeforeRestartThenNewSub() Scenario {
	return Scenario{
		Name:        "publisher before restart, new subscriber after",
		Description: "a subscriber started after a router restart receives samples from an older publisher",
		Phases: []Phase{
			StartRouter(),
			SettleRouter(),
			StartClient(Publisher),
			Await(Publisher, Connected),
			Await(Publisher, WriteFilterActive),
			Clear(Publisher),
			StopRouter(),
			Await(Publisher, Disconnected),
			Clear(Publisher),
			RestartRouter(),
			Await(Publisher, Connected),
			StartClient(Subscriber),
			Await(Subscriber, SampleReceived),
			Await(Publisher, WriteFilterInactive),
			ExpectLatest(Publisher, WriteFilterInactive, WriteFilterActive),
			CheckRouterErrors(),
			StopAll(),
		},
	}
}
