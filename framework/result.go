package framework

import (
	"fmt"
	"strings"
	"time"
)

type Results struct {
	Tests    []TestResult
	Failures []TestResult
	Duration time.Duration
}

type TestResult struct {
	TestID     TestID
	Errors     []error
	Warnings   []error
	Skipped    bool
	SkipReason string
	// Leaf is false for a test that only groups subtests.
	Leaf bool
	// Step and StepName identify the last step the test reached; Step is 0 if it
	// never called Context.Step.
	Step     int
	StepName string
	Duration time.Duration
}

func (r TestResult) Failed() bool {
	return len(r.Errors) != 0
}

func (r Results) OK() bool {
	return len(r.Failures) == 0
}

// ExitCode is the process exit status for the run: 0 only if nothing failed.
func (r Results) ExitCode() int {
	if r.OK() {
		return 0
	}
	return 1
}

// Leaves returns the results of tests that did not just group other tests.
func (r Results) Leaves() []TestResult {
	var ret []TestResult
	for _, t := range r.Tests {
		if t.Leaf && len(t.TestID.Path) != 0 {
			ret = append(ret, t)
		}
	}
	return ret
}

// Counts tallies the leaf tests.
func (r Results) Counts() (passed, failed, skipped int) {
	for _, t := range r.Leaves() {
		switch {
		case t.Skipped:
			skipped++
		case t.Failed():
			failed++
		default:
			passed++
		}
	}
	return
}

type TestID struct {
	Path []string
}

func (t TestID) String() string {
	return strings.Join(t.Path, "/")
}

// CleanupError is a failure while tearing a test down. It is reported as a warning and
// never changes the test's verdict.
type CleanupError struct {
	Op  string
	Err error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup failed (%s): %s", e.Op, e.Err)
}

func (e *CleanupError) Unwrap() error {
	return e.Err
}
