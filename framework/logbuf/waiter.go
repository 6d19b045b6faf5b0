package logbuf

import (
	"context"
	"time"
)

// Match identifies the line that satisfied a WaitFor call.
type Match struct {
	Buffer string
	Line   string
}

// WaitFor blocks until some line in any of bufs, appended since that buffer's last
// Clear, satisfies m. Lines already present when the call begins count, so callers
// wanting a fresh event must Clear first.
//
// It returns false once timeout elapses or ctx is done. The deadline is checked before
// every scan, so a match is never reported after the deadline has passed.
func WaitFor(ctx context.Context, bufs []*Buffer, m Matcher, timeout time.Duration) (Match, bool) {
	deadline := time.Now().Add(timeout)

	// Subscribe before the first scan so that no append can slip in between.
	notify := make(chan struct{}, 1)
	for _, b := range bufs {
		unsubscribe := b.Subscribe(notify)
		defer unsubscribe()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	next := make([]int, len(bufs))
	for {
		if time.Now().After(deadline) {
			return Match{}, false
		}
		for i, b := range bufs {
			line, n, ok := b.scanFrom(next[i], m)
			if ok {
				return Match{Buffer: b.Name(), Line: line}, true
			}
			next[i] = n
		}
		select {
		case <-notify:
		case <-timer.C:
			return Match{}, false
		case <-ctx.Done():
			return Match{}, false
		}
	}
}
