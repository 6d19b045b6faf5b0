package framework

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	timestampFormat = "15:04:05.000"

	// DefaultCaptureLimit bounds how many messages one test keeps.
	DefaultCaptureLimit = 20000
)

type Logger interface {
	Printf(message string, args ...interface{})
}

type nullLogger struct{}

func (n nullLogger) Printf(message string, args ...interface{}) {}

func NullLogger() Logger { return nullLogger{} }

// CapturedMessage is one line of debug output. Source names the process and stream it
// came from, or is empty for the harness's own messages.
type CapturedMessage struct {
	Time    time.Time
	Source  string
	Message string
}

type CapturedOutput []CapturedMessage

// CapturingLogger keeps the most recent messages up to Limit (DefaultCaptureLimit if
// zero), counting the ones it had to drop.
type CapturingLogger struct {
	Limit   int
	output  []CapturedMessage
	dropped int
	lock    sync.Mutex
}

func (l *CapturingLogger) Printf(message string, args ...interface{}) {
	l.Record("", fmt.Sprintf(message, args...))
}

// Record adds a message that was already formatted, such as a line of process output.
func (l *CapturingLogger) Record(source, message string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	limit := l.Limit
	if limit <= 0 {
		limit = DefaultCaptureLimit
	}
	if len(l.output) >= limit {
		n := len(l.output) - limit + 1
		l.output = append(l.output[:0], l.output[n:]...)
		l.dropped += n
	}
	l.output = append(l.output, CapturedMessage{Time: time.Now(), Source: source, Message: message})
}

func (l *CapturingLogger) Output() CapturedOutput {
	l.lock.Lock()
	defer l.lock.Unlock()
	ret := make(CapturedOutput, 0, len(l.output)+1)
	if l.dropped > 0 {
		ret = append(ret, CapturedMessage{
			Time:    l.output[0].Time,
			Message: fmt.Sprintf("(%d earlier messages dropped)", l.dropped),
		})
	}
	return append(ret, l.output...)
}

func (output CapturedOutput) Dump(dest io.Writer, prefix string) {
	for _, m := range output {
		if m.Source == "" {
			fmt.Fprintf(dest, "%s[%s] %s\n", prefix, m.Time.Format(timestampFormat), m.Message)
		} else {
			fmt.Fprintf(dest, "%s[%s] [%s] %s\n", prefix, m.Time.Format(timestampFormat), m.Source, m.Message)
		}
	}
}
