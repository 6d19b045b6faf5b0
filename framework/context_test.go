package framework

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTestLogger struct {
	events []string
}

func (r *recordingTestLogger) TestStarted(id TestID) {
	r.events = append(r.events, "start "+id.String())
}

func (r *recordingTestLogger) TestError(id TestID, err error) {
	r.events = append(r.events, "error "+id.String()+": "+err.Error())
}

func (r *recordingTestLogger) TestWarning(id TestID, err error) {
	r.events = append(r.events, "warning "+id.String()+": "+err.Error())
}

func (r *recordingTestLogger) TestFinished(id TestID, failed bool, _ CapturedOutput) {
	r.events = append(r.events, fmt.Sprintf("finish %s failed=%t", id, failed))
}

func (r *recordingTestLogger) TestSkipped(id TestID, reason string) {
	r.events = append(r.events, "skip "+id.String()+": "+reason)
}

func TestRunRecordsPassAndFailure(t *testing.T) {
	logger := &recordingTestLogger{}
	results := Run(nil, logger, func(c *Context) {
		c.Run("passes", func(c *Context) {})
		c.Run("fails", func(c *Context) {
			c.Errorf("expected %s", "Z_OPEN(Ack)")
			c.FailNow()
		})
		c.Run("after failure", func(c *Context) {})
	})

	assert.False(t, results.OK())
	assert.Equal(t, 1, results.ExitCode())
	require.Len(t, results.Failures, 1)
	assert.Equal(t, "fails", results.Failures[0].TestID.String())
	passed, failed, skipped := results.Counts()
	assert.Equal(t, []int{2, 1, 0}, []int{passed, failed, skipped})
	assert.Equal(t, []string{
		"start passes",
		"finish passes failed=false",
		"start fails",
		"error fails: expected Z_OPEN(Ack)",
		"finish fails failed=true",
		"start after failure",
		"finish after failure failed=false",
	}, logger.events)
}

func TestAllPassingRunExitsZero(t *testing.T) {
	results := Run(nil, nil, func(c *Context) {
		c.Run("a", func(c *Context) {})
	})
	assert.True(t, results.OK())
	assert.Equal(t, 0, results.ExitCode())
}

func TestDeferredCleanupRunsOnEveryExitPath(t *testing.T) {
	for name, body := range map[string]func(*Context){
		"pass":    func(c *Context) {},
		"failNow": func(c *Context) { c.Errorf("boom"); c.FailNow() },
		"skip":    func(c *Context) { c.SkipWithReason("no iptables") },
		"panic":   func(c *Context) { panic("unexpected") },
	} {
		t.Run(name, func(t *testing.T) {
			var order []string
			Run(nil, nil, func(c *Context) {
				c.Run("scenario", func(c *Context) {
					c.Defer(func() { order = append(order, "first") })
					c.Defer(func() { order = append(order, "second") })
					body(c)
				})
			})
			assert.Equal(t, []string{"second", "first"}, order)
		})
	}
}

func TestPanickingCleanupBecomesWarning(t *testing.T) {
	logger := &recordingTestLogger{}
	ran := false
	results := Run(nil, logger, func(c *Context) {
		c.Run("scenario", func(c *Context) {
			c.Defer(func() { ran = true })
			c.Defer(func() { panic("kill failed") })
		})
	})
	assert.True(t, ran, "later cleanups must still run")
	assert.True(t, results.OK(), "cleanup problems never change the verdict")
	leaves := results.Leaves()
	require.Len(t, leaves, 1)
	require.Len(t, leaves[0].Warnings, 1)
	var cleanupErr *CleanupError
	assert.True(t, errors.As(leaves[0].Warnings[0], &cleanupErr))
	assert.Contains(t, logger.events, "warning scenario: cleanup failed (cleanup): panic: kill failed")
}

func TestWarnDoesNotFail(t *testing.T) {
	results := Run(nil, nil, func(c *Context) {
		c.Run("scenario", func(c *Context) {
			c.Warn(&CleanupError{Op: "unblock", Err: errors.New("iptables missing")})
		})
	})
	assert.True(t, results.OK())
	assert.Equal(t, "cleanup failed (unblock): iptables missing", results.Leaves()[0].Warnings[0].Error())
}

func TestErrorKeepsTypedError(t *testing.T) {
	typed := &CleanupError{Op: "x", Err: errors.New("y")}
	results := Run(nil, nil, func(c *Context) {
		c.Run("scenario", func(c *Context) {
			c.Error(typed)
			assert.True(t, c.Failed())
		})
	})
	require.Len(t, results.Failures, 1)
	assert.Same(t, typed, results.Failures[0].Errors[0])
}

func TestStepIsRecordedOnFailure(t *testing.T) {
	results := Run(nil, nil, func(c *Context) {
		c.Run("scenario", func(c *Context) {
			assert.Equal(t, 1, c.Step("start router"))
			assert.Equal(t, 2, c.Step("wait for connect"))
			c.Errorf("timed out")
			c.FailNow()
		})
	})
	require.Len(t, results.Failures, 1)
	assert.Equal(t, 2, results.Failures[0].Step)
	assert.Equal(t, "wait for connect", results.Failures[0].StepName)
}

func TestFilterSkipsTests(t *testing.T) {
	logger := &recordingTestLogger{}
	ran := false
	results := Run(func(id TestID) bool { return id.String() != "excluded" }, logger, func(c *Context) {
		c.Run("excluded", func(c *Context) { ran = true })
	})
	assert.False(t, ran)
	passed, failed, skipped := results.Counts()
	assert.Equal(t, []int{0, 0, 1}, []int{passed, failed, skipped})
	assert.Contains(t, logger.events, "skip excluded: excluded by filter parameters")
}

func TestUnexpectedPanicFailsTest(t *testing.T) {
	results := Run(nil, nil, func(c *Context) {
		c.Run("scenario", func(c *Context) { panic("nil map") })
	})
	require.Len(t, results.Failures, 1)
	assert.Contains(t, results.Failures[0].Errors[0].Error(), "unexpected panic in test: nil map")
}

func TestMultiLineErrorsAreIndented(t *testing.T) {
	logger := &recordingTestLogger{}
	Run(nil, logger, func(c *Context) {
		c.Run("scenario", func(c *Context) { c.Errorf("expected:\nline\nreceived:\nother\n") })
	})
	assert.Contains(t, logger.events, "error scenario: expected:\n  line\n  received:\n  other")
}

func TestNestedTestIDs(t *testing.T) {
	results := Run(nil, nil, func(c *Context) {
		c.Run("group", func(c *Context) {
			c.Run("child", func(c *Context) {})
		})
	})
	leaves := results.Leaves()
	require.Len(t, leaves, 1)
	assert.Equal(t, []string{"group", "child"}, leaves[0].TestID.Path)
}
