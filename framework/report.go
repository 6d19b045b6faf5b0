package framework

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Summary is the machine-readable record of one harness run.
type Summary struct {
	RunID      string        `json:"runId"`
	Started    time.Time     `json:"started"`
	DurationMS int64         `json:"durationMs"`
	Passed     int           `json:"passed"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Tests      []TestSummary `json:"tests"`
}

type TestSummary struct {
	ID         string   `json:"id"`
	Status     string   `json:"status"`
	Errors     []string `json:"errors,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	SkipReason string   `json:"skipReason,omitempty"`
	// FailedStep is the step a failed test had reached, or null.
	FailedStep     ldvalue.OptionalInt `json:"failedStep"`
	FailedStepName string              `json:"failedStepName,omitempty"`
	DurationMS     int64               `json:"durationMs"`
}

func NewSummary(results Results, started time.Time) Summary {
	s := Summary{
		RunID:      uuid.NewString(),
		Started:    started,
		DurationMS: results.Duration.Milliseconds(),
	}
	s.Passed, s.Failed, s.Skipped = results.Counts()
	for _, t := range results.Leaves() {
		ts := TestSummary{
			ID:         t.TestID.String(),
			Status:     StatusPassed,
			Errors:     errorStrings(t.Errors),
			Warnings:   errorStrings(t.Warnings),
			SkipReason: t.SkipReason,
			DurationMS: t.Duration.Milliseconds(),
		}
		switch {
		case t.Skipped:
			ts.Status = StatusSkipped
		case t.Failed():
			ts.Status = StatusFailed
			if t.Step > 0 {
				ts.FailedStep = ldvalue.NewOptionalInt(t.Step)
				ts.FailedStepName = t.StepName
			}
		}
		s.Tests = append(s.Tests, ts)
	}
	return s
}

func errorStrings(errs []error) []string {
	var ret []string
	for _, e := range errs {
		ret = append(ret, e.Error())
	}
	return ret
}

// WriteSummary writes s as indented JSON to path.
func WriteSummary(path string, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// PostSummary sends s as JSON to url, for a CI dashboard or similar collector.
func PostSummary(url string, s Summary, timeout time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	req, err := http.NewRequest("POST", url, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message, _ := ioutil.ReadAll(resp.Body)
		if len(message) != 0 {
			return fmt.Errorf("unexpected response status %d from %s: %s", resp.StatusCode, url, string(message))
		}
		return fmt.Errorf("unexpected response status %d from %s", resp.StatusCode, url)
	}
	return nil
}

// PrintResults prints the final tally and lists every failed test.
func PrintResults(out io.Writer, results Results) {
	passed, failed, skipped := results.Counts()
	if len(results.Failures) == 0 {
		fmt.Fprintf(out, "All tests passed (%d passed, %d skipped, %s)\n",
			passed, skipped, results.Duration.Round(time.Millisecond))
		return
	}
	fmt.Fprintf(out, "FAILED TESTS (%d failed, %d passed, %d skipped, %s):\n",
		failed, passed, skipped, results.Duration.Round(time.Millisecond))
	for _, f := range results.Failures {
		if f.Step > 0 {
			fmt.Fprintf(out, "* %s (at step %d: %s)\n", f.TestID, f.Step, f.StepName)
		} else {
			fmt.Fprintf(out, "* %s\n", f.TestID)
		}
	}
}
