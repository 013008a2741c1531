package service

import (
	"time"

	"gitcats/internal/grading/environment"
	"gitcats/internal/grading/report"
	"gitcats/internal/grading/sandbox/runner"
)

// Run holds the mutable state of one grading run.
type Run struct {
	ID          string
	Participant string
	Workspace   string
	StartedAt   time.Time
	Registry    *environment.Registry
	Report      *report.Report
	Runner      *runner.Runner
}
