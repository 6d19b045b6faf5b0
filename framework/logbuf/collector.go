package logbuf

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
	"sync/atomic"
)

// Drain reads r line by line until end of stream, appending each non-empty line to buf
// in arrival order and passing it to echo if that is non-nil. A final line without a
// trailing newline is kept. Reading from a pipe that was closed underneath us counts
// as end of stream, not an error.
func Drain(r io.Reader, buf *Buffer, echo func(string)) error {
	reader := bufio.NewReader(r)
	for {
		raw, err := reader.ReadString('\n')
		if line := strings.TrimSpace(raw); line != "" {
			buf.Append(line)
			if echo != nil {
				echo(line)
			}
		}
		if err != nil {
			if err == io.EOF || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

// Collector is a background worker draining one stream into one Buffer.
type Collector struct {
	buf   *Buffer
	lines int64
	done  chan struct{}
	err   error
}

// Collect starts draining r into buf on a new goroutine. The worker stops by itself
// when the stream ends.
func Collect(r io.Reader, buf *Buffer, echo func(string)) *Collector {
	c := &Collector{buf: buf, done: make(chan struct{})}
	go func() {
		defer close(c.done)
		c.err = Drain(r, buf, func(line string) {
			atomic.AddInt64(&c.lines, 1)
			if echo != nil {
				echo(line)
			}
		})
	}()
	return c
}

// Wait blocks until the stream has ended and returns the read error, if any.
func (c *Collector) Wait() error {
	<-c.done
	return c.err
}

// Lines returns the number of lines collected so far.
func (c *Collector) Lines() int {
	return int(atomic.LoadInt64(&c.lines))
}
