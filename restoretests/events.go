package restoretests

import (
	"fmt"

	"github.com/picotests/connection-restore-tests/framework/logbuf"
	"github.com/picotests/connection-restore-tests/suitedef"
)

// EventKind is something a scenario waits to see in a program's log.
type EventKind int

const (
	Connected EventKind = iota
	Disconnected
	TokenAlive
	TokenDropped
	WriteFilterActive
	WriteFilterInactive
	SampleReceived
)

func (k EventKind) String() string {
	switch k {
	case Connected:
		return "connection established"
	case Disconnected:
		return "connection lost"
	case TokenAlive:
		return "liveliness token alive"
	case TokenDropped:
		return "liveliness token dropped"
	case WriteFilterActive:
		return "write filter active"
	case WriteFilterInactive:
		return "write filter inactive"
	case SampleReceived:
		return "sample received"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Events maps each kind of event to the lines that signal it.
type Events map[EventKind]logbuf.Matcher

// EventsFromMarkers parses the configured markers for every kind of event.
func EventsFromMarkers(m suitedef.Markers) (Events, error) {
	events := make(Events)
	for kind, markers := range map[EventKind][]string{
		Connected:           m.Connect,
		Disconnected:        m.Disconnect,
		TokenAlive:          m.TokenAlive,
		TokenDropped:        m.TokenDropped,
		WriteFilterActive:   m.WriteFilterActive,
		WriteFilterInactive: m.WriteFilterInactive,
		SampleReceived:      m.Sample,
	} {
		matcher, err := logbuf.Markers(markers...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		events[kind] = matcher
	}
	return events, nil
}
