package framework

// TestLogger receives progress events while tests run. Every test gets TestStarted,
// then any number of TestError and TestWarning calls, then exactly one of TestFinished
// or TestSkipped.
type TestLogger interface {
	TestStarted(id TestID)
	// TestError reports a failure. The test's verdict is already decided when it is called.
	TestError(id TestID, err error)
	// TestWarning reports a problem that does not fail the test, such as a cleanup step
	// that could not complete.
	TestWarning(id TestID, err error)
	TestFinished(id TestID, failed bool, debugOutput CapturedOutput)
	TestSkipped(id TestID, reason string)
}

type nullTestLogger struct{}

func (nullTestLogger) TestStarted(TestID)                        {}
func (nullTestLogger) TestError(TestID, error)                   {}
func (nullTestLogger) TestWarning(TestID, error)                 {}
func (nullTestLogger) TestFinished(TestID, bool, CapturedOutput) {}
func (nullTestLogger) TestSkipped(TestID, string)                {}
