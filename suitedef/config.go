// Package suitedef describes where the binaries under test live, how to launch them,
// how long to wait for them, and which log lines count as events.
package suitedef

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/picotests/connection-restore-tests/framework/logbuf"
)

const (
	FaultBackendIptables = "iptables"
	FaultBackendNone     = "none"

	SanitizerAuto = "auto"
	SanitizerOff  = "off"

	DefaultPort        = 7447
	DefaultExamplesDir = "build/examples"
)

type Config struct {
	// RouterPath is the router binary named on the command line.
	RouterPath string
	// RouterArgs replaces the default listen arguments if non-empty.
	RouterArgs  []string
	ExamplesDir string
	Binaries    Binaries
	Port        int
	// Unbuffered launches every binary through "stdbuf -o0".
	Unbuffered bool
	// Sanitizer is "auto" (ask gcc where libasan lives), "off", or a library path. The
	// library is preloaded into every child.
	Sanitizer string
	// Env is passed unchanged to every child, on top of the harness's own environment.
	Env          map[string]string
	FaultBackend string
	IptablesPath string
	Sudo         bool
	Timing       Timing
	// Outages are the durations the network stays blocked, or the router stays down, in
	// the connection-drop and router-restart scenarios. One should be shorter than the
	// session lease and one longer.
	Outages []time.Duration
	// ReconnectCycles is how many block/unblock cycles a connection-drop scenario runs.
	ReconnectCycles int
	Markers         Markers
}

type Binaries struct {
	Publisher            string
	Subscriber           string
	LivelinessToken      string
	LivelinessSubscriber string
}

type Timing struct {
	// RouterSettle is a fixed pause after starting the router, which prints nothing
	// when it becomes ready.
	RouterSettle time.Duration
	// EventTimeout bounds every wait for a log marker.
	EventTimeout     time.Duration
	TerminateGrace   time.Duration
	LivelinessOutage time.Duration
}

// Markers are the log substrings the harness treats as events. A line matches an event
// if it contains any of the event's strings.
type Markers struct {
	Connect             []string
	Disconnect          []string
	TokenAlive          []string
	TokenDropped        []string
	WriteFilterActive   []string
	WriteFilterInactive []string
	Sample              []string
	RouterError         []string
}

func Default() Config {
	return Config{
		ExamplesDir: DefaultExamplesDir,
		Binaries: Binaries{
			Publisher:            "z_pub",
			Subscriber:           "z_sub",
			LivelinessToken:      "z_liveliness",
			LivelinessSubscriber: "z_sub_liveliness",
		},
		Port:         DefaultPort,
		Unbuffered:   true,
		Sanitizer:    SanitizerAuto,
		Env:          map[string]string{"RUST_LOG": "trace"},
		FaultBackend: FaultBackendIptables,
		Timing: Timing{
			RouterSettle:     3 * time.Second,
			EventTimeout:     15 * time.Second,
			TerminateGrace:   5 * time.Second,
			LivelinessOutage: 15 * time.Second,
		},
		Outages:         []time.Duration{8 * time.Second, 15 * time.Second},
		ReconnectCycles: 2,
		Markers: Markers{
			Connect:             []string{"Z_OPEN(Ack)"},
			Disconnect:          []string{"Closing session because it has expired", "Send keep alive failed"},
			TokenAlive:          []string{"[LivelinessSubscriber] New alive token"},
			TokenDropped:        []string{"[LivelinessSubscriber] Dropped token"},
			WriteFilterActive:   []string{"write filter: active"},
			WriteFilterInactive: []string{"write filter: inactive"},
			Sample:              []string{">> [Subscriber] Received"},
			RouterError:         []string{"ERROR"},
		},
	}
}

// ListenArgs returns the router's command-line arguments.
func (c Config) ListenArgs() []string {
	if len(c.RouterArgs) != 0 {
		return append([]string(nil), c.RouterArgs...)
	}
	return []string{"-l", "tcp/0.0.0.0:" + strconv.Itoa(c.Port), "--no-multicast-scouting"}
}

// ConnectArgs returns the arguments that point a client at the router.
func (c Config) ConnectArgs() []string {
	return []string{"-e", "tcp/127.0.0.1:" + strconv.Itoa(c.Port)}
}

// EnvList renders Env as sorted KEY=VALUE pairs.
func (c Config) EnvList() []string {
	ret := make([]string, 0, len(c.Env))
	for k, v := range c.Env {
		ret = append(ret, k+"="+v)
	}
	sort.Strings(ret)
	return ret
}

func (c Config) Validate() error {
	var errs []error
	if c.RouterPath == "" {
		errs = append(errs, errors.New("router path is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d is out of range", c.Port))
	}
	switch c.FaultBackend {
	case FaultBackendIptables, FaultBackendNone:
	default:
		errs = append(errs, fmt.Errorf("unknown fault backend %q", c.FaultBackend))
	}
	if c.ReconnectCycles < 1 {
		errs = append(errs, errors.New("reconnect cycles must be at least 1"))
	}
	if len(c.Outages) == 0 {
		errs = append(errs, errors.New("at least one outage duration is required"))
	}
	for _, d := range c.Outages {
		if d < 0 {
			errs = append(errs, fmt.Errorf("outage %s is negative", d))
		}
	}
	if c.Timing.EventTimeout <= 0 {
		errs = append(errs, errors.New("event timeout must be positive"))
	}
	if c.Timing.RouterSettle < 0 || c.Timing.TerminateGrace < 0 || c.Timing.LivelinessOutage < 0 {
		errs = append(errs, errors.New("timing values must not be negative"))
	}
	for _, set := range []struct {
		name    string
		markers []string
	}{
		{"connect", c.Markers.Connect},
		{"disconnect", c.Markers.Disconnect},
		{"token alive", c.Markers.TokenAlive},
		{"token dropped", c.Markers.TokenDropped},
		{"write filter active", c.Markers.WriteFilterActive},
		{"write filter inactive", c.Markers.WriteFilterInactive},
		{"sample", c.Markers.Sample},
		{"router error", c.Markers.RouterError},
	} {
		if len(set.markers) == 0 {
			errs = append(errs, fmt.Errorf("no %s markers defined", set.name))
		}
		for _, m := range set.markers {
			if m == "" {
				errs = append(errs, fmt.Errorf("empty %s marker", set.name))
			} else if _, err := logbuf.Marker(m); err != nil {
				errs = append(errs, fmt.Errorf("%s marker %q: %w", set.name, m, err))
			}
		}
	}
	return errors.Join(errs...)
}
