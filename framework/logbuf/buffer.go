// Package logbuf captures the line-oriented output of spawned processes and lets the
// test harness wait for specific lines to appear in it.
//
// Each monitored stream has exactly one Buffer, written by exactly one Collector. Any
// number of goroutines may read a Buffer concurrently, and WaitFor blocks on append
// notifications rather than sleeping between scans.
package logbuf

import (
	"sync"
)

// Buffer is an ordered, append-only log of text lines.
//
// Clear does not discard anything: it moves a mark so that Snapshot, Tail and WaitFor
// only see lines appended afterward, while History still returns everything for
// diagnostics.
type Buffer struct {
	name  string
	lines []string
	mark  int
	subs  map[chan<- struct{}]struct{}
	lock  sync.RWMutex
}

func New(name string) *Buffer {
	return &Buffer{name: name, subs: make(map[chan<- struct{}]struct{})}
}

// Name returns the label given to New, used in diagnostics.
func (b *Buffer) Name() string {
	return b.name
}

// Append adds a line. It must only be called by the Buffer's single writer.
func (b *Buffer) Append(line string) {
	b.lock.Lock()
	b.lines = append(b.lines, line)
	for ch := range b.subs {
		select { // non-blocking; a pending notification already covers this line
		case ch <- struct{}{}:
		default:
		}
	}
	b.lock.Unlock()
}

// Clear hides every line appended so far from Snapshot, Tail and WaitFor.
func (b *Buffer) Clear() {
	b.lock.Lock()
	b.mark = len(b.lines)
	b.lock.Unlock()
}

// Snapshot returns a copy of the lines appended since the last Clear.
func (b *Buffer) Snapshot() []string {
	b.lock.RLock()
	ret := append([]string(nil), b.lines[b.mark:]...)
	b.lock.RUnlock()
	return ret
}

// History returns a copy of every line ever appended, including cleared ones.
func (b *Buffer) History() []string {
	b.lock.RLock()
	ret := append([]string(nil), b.lines...)
	b.lock.RUnlock()
	return ret
}

// Len returns the number of lines visible since the last Clear.
func (b *Buffer) Len() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return len(b.lines) - b.mark
}

// Tail returns at most n of the most recent lines visible since the last Clear.
func (b *Buffer) Tail(n int) []string {
	b.lock.RLock()
	defer b.lock.RUnlock()
	if n < 0 {
		n = 0
	}
	start := b.mark
	if len(b.lines)-start > n {
		start = len(b.lines) - n
	}
	return append([]string(nil), b.lines[start:]...)
}

// scanFrom looks for a match starting at absolute index from, or at the clear mark if
// that is later. It returns the index the next scan should start from.
func (b *Buffer) scanFrom(from int, m Matcher) (string, int, bool) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	if from < b.mark {
		from = b.mark
	}
	for i := from; i < len(b.lines); i++ {
		if m.Match(b.lines[i]) {
			return b.lines[i], i + 1, true
		}
	}
	return "", len(b.lines), false
}

// Subscribe registers ch to receive a non-blocking send after every Append. The
// channel should have a buffer of 1 so that bursts of appends coalesce. The returned
// function removes the subscription.
func (b *Buffer) Subscribe(ch chan<- struct{}) (unsubscribe func()) {
	b.lock.Lock()
	b.subs[ch] = struct{}{}
	b.lock.Unlock()
	return func() {
		b.lock.Lock()
		delete(b.subs, ch)
		b.lock.Unlock()
	}
}
