package framework

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

type environment struct {
	results    Results
	testLogger TestLogger
	filter     Filter
}

type Context struct {
	env         *environment
	id          TestID
	debugLogger CapturingLogger
	failed      bool
	skipped     bool
	skipReason  string
	errors      []error
	warnings    []error
	cleanups    []func()
	subtests    int
	step        int
	stepName    string
	started     time.Time
}

func Run(
	filter func(TestID) bool,
	testLogger TestLogger,
	action func(*Context),
) Results {
	if testLogger == nil {
		testLogger = nullTestLogger{}
	}
	env := &environment{
		filter:     filter,
		testLogger: testLogger,
	}
	c := &Context{env: env}
	started := time.Now()
	c.run(action)
	env.results.Duration = time.Since(started)
	return env.results
}

func (c *Context) run(action func(*Context)) {
	c.started = time.Now()
	defer func() {
		if r := recover(); r != nil && !c.skipped {
			c.failed = true
			var addError error
			if _, ok := r.(*Context); ok {
				if len(c.errors) == 0 {
					addError = errors.New("test failed with no failure message")
				}
			} else {
				addError = fmt.Errorf("unexpected panic in test: %+v\n%s", r, string(debug.Stack()))
			}
			if addError != nil {
				c.errors = append(c.errors, addError)
				c.env.testLogger.TestError(c.id, addError)
			}
		}
		c.runCleanups()
		result := TestResult{
			TestID:     c.id,
			Errors:     c.errors,
			Warnings:   c.warnings,
			Skipped:    c.skipped,
			SkipReason: c.skipReason,
			Leaf:       c.subtests == 0,
			Step:       c.step,
			StepName:   c.stepName,
			Duration:   time.Since(c.started),
		}
		c.env.results.Tests = append(c.env.results.Tests, result)
		if c.failed {
			c.env.results.Failures = append(c.env.results.Failures, result)
		}
	}()

	action(c)
}

// runCleanups runs deferred functions in reverse order. A panicking cleanup becomes a
// warning and does not stop the others.
func (c *Context) runCleanups() {
	for len(c.cleanups) > 0 {
		fn := c.cleanups[len(c.cleanups)-1]
		c.cleanups = c.cleanups[:len(c.cleanups)-1]
		func() {
			defer func() {
				if r := recover(); r != nil {
					if _, ok := r.(*Context); ok {
						return
					}
					c.Warn(&CleanupError{Op: "cleanup", Err: fmt.Errorf("panic: %+v", r)})
				}
			}()
			fn()
		}()
	}
}

func (c *Context) ID() TestID {
	return c.id
}

func (c *Context) Run(name string, action func(*Context)) {
	id := TestID{Path: append(append([]string(nil), c.id.Path...), name)}
	c.subtests++

	c.env.testLogger.TestStarted(id)
	if c.env.filter != nil && !c.env.filter(id) {
		const reason = "excluded by filter parameters"
		c.env.results.Tests = append(c.env.results.Tests,
			TestResult{TestID: id, Skipped: true, SkipReason: reason, Leaf: true})
		c.env.testLogger.TestSkipped(id, reason)
		return
	}
	c1 := &Context{
		id:  id,
		env: c.env,
	}
	c1.run(action)
	if c1.skipped {
		c.env.testLogger.TestSkipped(id, c1.skipReason)
	} else {
		c.env.testLogger.TestFinished(id, c1.failed, c1.debugLogger.Output())
	}
}

// Defer registers fn to run when the test ends, however it ends: normally, through
// FailNow or Skip, or by an unexpected panic. Deferred functions run in reverse order
// of registration.
func (c *Context) Defer(fn func()) {
	c.cleanups = append(c.cleanups, fn)
}

// Step records that the test has moved on to a new numbered step, so that a failure can
// be attributed to it. It returns the step number, starting from 1.
func (c *Context) Step(name string) int {
	c.step++
	c.stepName = name
	c.Debug("step %d: %s", c.step, name)
	return c.step
}

// Error marks the test as failed without stopping it.
func (c *Context) Error(err error) {
	c.failed = true
	c.errors = append(c.errors, err)
	c.env.testLogger.TestError(c.id, reformatError(err))
}

func (c *Context) Errorf(format string, args ...interface{}) {
	c.Error(fmt.Errorf(format, args...))
}

// Warn records a problem that does not affect the test's verdict.
func (c *Context) Warn(err error) {
	c.warnings = append(c.warnings, err)
	c.env.testLogger.TestWarning(c.id, err)
}

func (c *Context) Failed() bool {
	return c.failed
}

func (c *Context) FailNow() {
	panic(c)
}

func (c *Context) Skip() {
	c.skipped = true
	panic(c)
}

func (c *Context) SkipWithReason(reason string) {
	c.skipReason = reason
	c.Skip()
}

func (c *Context) Debug(message string, args ...interface{}) {
	c.debugLogger.Printf(message, args...)
}

// DebugOutput records a line printed by a program under test, tagged with where it came
// from.
func (c *Context) DebugOutput(source, line string) {
	c.debugLogger.Record(source, line)
}

func (c *Context) DebugLogger() Logger {
	return &c.debugLogger
}

// reformatError indents continuation lines so multi-line messages stay readable under
// the test ID.
func reformatError(err error) error {
	s := strings.TrimRight(err.Error(), "\n")
	if !strings.Contains(s, "\n") {
		return err
	}
	return errors.New(strings.ReplaceAll(s, "\n", "\n  "))
}
