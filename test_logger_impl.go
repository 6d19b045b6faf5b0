package main

import (
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/picotests/connection-restore-tests/framework"
)

var (
	failColor = color.New(color.FgRed, color.Bold)
	passColor = color.New(color.FgGreen)
	skipColor = color.New(color.FgYellow)
	warnColor = color.New(color.FgYellow)
)

type ConsoleTestLogger struct {
	Out                  io.Writer
	DebugOutputOnFailure bool
	DebugOutputOnSuccess bool
}

func (c *ConsoleTestLogger) TestStarted(id framework.TestID) {
	color.New(color.Bold).Fprintf(c.Out, "[%s]\n", id)
}

func (c *ConsoleTestLogger) TestError(id framework.TestID, err error) {
	for _, line := range strings.Split(err.Error(), "\n") {
		failColor.Fprintf(c.Out, "  %s\n", line)
	}
}

func (c *ConsoleTestLogger) TestWarning(id framework.TestID, err error) {
	warnColor.Fprintf(c.Out, "  WARNING: %s\n", err)
}

func (c *ConsoleTestLogger) TestFinished(id framework.TestID, failed bool, debugOutput framework.CapturedOutput) {
	if failed {
		failColor.Fprintf(c.Out, "  FAILED: %s\n", id)
	} else {
		passColor.Fprintf(c.Out, "  PASSED: %s\n", id)
	}
	if len(debugOutput) > 0 &&
		((failed && c.DebugOutputOnFailure) || (!failed && c.DebugOutputOnSuccess)) {
		debugOutput.Dump(c.Out, "    DEBUG ")
	}
}

func (c *ConsoleTestLogger) TestSkipped(id framework.TestID, reason string) {
	if reason == "" {
		skipColor.Fprintf(c.Out, "  SKIPPED: %s\n", id)
	} else {
		skipColor.Fprintf(c.Out, "  SKIPPED: %s (%s)\n", id, reason)
	}
}
