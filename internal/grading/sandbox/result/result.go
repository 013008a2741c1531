// Package result defines script results and the grading outcome taxonomy.
package result

import (
	"strings"
	"time"
)

// Conventional exit codes of the execution primitive.
const (
	ExitTimeout  = 124
	ExitNotFound = 127
)

// ScriptResult captures one executed script.
type ScriptResult struct {
	ExitCode int
	// Output holds the first lines of combined stdout and stderr.
	Output   string
	TimedOut bool
	NotFound bool
	Duration time.Duration
}

// OK reports a zero exit without timeout.
func (r ScriptResult) OK() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Status is the outcome of one test.
type Status string

const (
	StatusOK Status = "OK"
	// StatusFailed marks a failed required test.
	StatusFailed Status = "FAILED"
	// StatusFailedOptional marks a failed optional test.
	StatusFailedOptional Status = "failed"

	timeOutSuffix = " (time out)"
)

// FailStatus returns the failure status for a test.
func FailStatus(optional, timedOut bool) Status {
	status := StatusFailed
	if optional {
		status = StatusFailedOptional
	}
	if timedOut {
		status += timeOutSuffix
	}
	return status
}

// RequiredFailure reports statuses that fail the run.
func (s Status) RequiredFailure() bool {
	return strings.HasPrefix(string(s), string(StatusFailed))
}

// FailureReason is the terminal reason of a submission that never reached its tests.
type FailureReason string

const (
	ReasonInvalid          FailureReason = "INVALID"
	ReasonDependencyFailed FailureReason = "DEPENDENCY_FAILED"
	ReasonCompileFailed    FailureReason = "COMPILE_FAILED"
)

// CompileResult contains compilation outcomes.
type CompileResult struct {
	OK       bool
	Skipped  bool
	ExitCode int
	NotFound bool
	Output   string
}

// TestOutcome is the result of one test of one submission variant.
type TestOutcome struct {
	Participant  string `json:"participant"`
	Assignment   string `json:"assignment"`
	SubmissionID string `json:"submission,omitempty"`
	Test         string `json:"test"`
	Status       Status `json:"status"`
	Detail       string `json:"detail,omitempty"`
}

// SubmissionFailure records a submission variant stopped before testing.
type SubmissionFailure struct {
	Participant  string        `json:"participant"`
	Assignment   string        `json:"assignment"`
	SubmissionID string        `json:"submission,omitempty"`
	Reason       FailureReason `json:"reason"`
	Detail       string        `json:"detail,omitempty"`
}
