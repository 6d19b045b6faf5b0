// Package framework contains the low-level implementation of test harness infrastructure
// that can be reused for different kinds of tests.
//
// The general model is:
//
// 1. The test harness launches the programs under test as child processes and observes
// them only through their output, which the logbuf package collects.
//
// 2. The harness can interfere with those programs from outside, by stopping and
// restarting them (package procs) or by cutting the network between them (package
// netfault).
//
// 3. There is a general notion of a test context which is similar to Go's *testing.T,
// allowing pieces of test logic to be associated with a test identifier, to accumulate
// success/failure results, and to register cleanup that runs however the test ends.
//
// The domain-specific code that knows what is being tested is responsible for deciding
// which programs to launch, which log lines matter, and in what order things must happen,
// and for providing a domain-specific test API on top of the test context.
package framework
