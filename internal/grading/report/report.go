// Package report aggregates outcomes into the run summary and verdict.
package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gitcats/internal/grading/sandbox/result"
	"gitcats/pkg/utils/logger"

	"github.com/fatih/color"
	"go.uber.org/zap/zapcore"
)

const (
	rowFormat = "%-16s %-16s %-16s %-16s %s"
	rule      = "--------------------------------------------------------------------------"
	banner    = "=========================================================================="
	title     = "================================ SUMMARY ================================="
	noID      = "-"
)

// Exit codes of a finished run.
const (
	ExitOK     = 0
	ExitFailed = 1
)

// Report collects the outcomes of one run in production order.
type Report struct {
	Participant string
	Outcomes    []result.TestOutcome
	Failures    []result.SubmissionFailure
}

// New creates an empty report for a participant.
func New(participant string) *Report {
	return &Report{Participant: participant}
}

// AddOutcome records a test outcome.
func (r *Report) AddOutcome(o result.TestOutcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// AddFailure records a submission failure.
func (r *Report) AddFailure(f result.SubmissionFailure) {
	r.Failures = append(r.Failures, f)
}

// Empty reports a run that performed nothing.
func (r *Report) Empty() bool {
	return len(r.Outcomes) == 0 && len(r.Failures) == 0
}

// TestsPassed reports that no required test failed.
func (r *Report) TestsPassed() bool {
	for _, o := range r.Outcomes {
		if o.Status.RequiredFailure() {
			return false
		}
	}
	return true
}

// AllOK reports that no required test failed and no submission failed.
func (r *Report) AllOK() bool {
	return r.TestsPassed() && len(r.Failures) == 0
}

// ExitCode is the process status for the run.
func (r *Report) ExitCode() int {
	if r.AllOK() {
		return ExitOK
	}
	return ExitFailed
}

func displayID(id string) string {
	if id == "" {
		return noID
	}
	return id
}

// Render writes the summary table. Statuses are colored when w is a terminal.
func (r *Report) Render(w io.Writer) error {
	var b strings.Builder
	b.WriteString("\n" + banner + "\n" + title + "\n\n")
	if !r.Empty() {
		b.WriteString(strings.TrimRight(fmt.Sprintf(rowFormat, "PARTICIPANT", "ASSIGNMENT", "SUBMISSION", "TEST", "STATUS"), " ") + "\n")
		b.WriteString(rule + "\n")
		for _, o := range r.Outcomes {
			b.WriteString(fmt.Sprintf(rowFormat, o.Participant, o.Assignment, displayID(o.SubmissionID), o.Test, colorize(string(o.Status))) + "\n")
		}
		for _, f := range r.Failures {
			b.WriteString(fmt.Sprintf(rowFormat, f.Participant, f.Assignment, displayID(f.SubmissionID), "*", colorize(string(f.Reason))) + "\n")
		}
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

var (
	okColor       = color.New(color.FgGreen, color.Bold)
	failColor     = color.New(color.FgRed, color.Bold)
	optionalColor = color.New(color.FgYellow)
)

func colorize(status string) string {
	switch {
	case status == string(result.StatusOK):
		return okColor.Sprint(status)
	case strings.HasPrefix(status, string(result.StatusFailedOptional)):
		return optionalColor.Sprint(status)
	default:
		return failColor.Sprint(status)
	}
}

// Message is one closing line of the run.
type Message struct {
	Level zapcore.Level
	Text  string
}

// Verdict returns the closing messages in the order they are logged.
func (r *Report) Verdict() []Message {
	var msgs []Message
	if r.TestsPassed() {
		switch {
		case len(r.Outcomes) == 0:
			msgs = append(msgs, Message{zapcore.InfoLevel, "No tests performed."})
		case len(r.Failures) == 0:
			msgs = append(msgs, Message{zapcore.InfoLevel, "All required tests passed. CONGRATULATIONS!"})
		default:
			msgs = append(msgs, Message{zapcore.InfoLevel, "At least the valid tests passed :-)"})
		}
	} else {
		msgs = append(msgs, Message{zapcore.WarnLevel, "Some tests FAILED."})
	}
	if len(r.Failures) > 0 {
		msgs = append(msgs, Message{zapcore.ErrorLevel, "There were FAILED submissions, which have to be corrected."})
	}
	if r.AllOK() {
		msgs = append(msgs, Message{zapcore.InfoLevel, "You're all set! :-)"})
	} else {
		msgs = append(msgs, Message{zapcore.ErrorLevel, "There is STILL WORK TO DO!"})
	}
	return msgs
}

// LogVerdict logs the closing messages.
func (r *Report) LogVerdict(ctx context.Context) {
	for _, m := range r.Verdict() {
		switch m.Level {
		case zapcore.ErrorLevel:
			logger.Error(ctx, m.Text)
		case zapcore.WarnLevel:
			logger.Warn(ctx, m.Text)
		default:
			logger.Info(ctx, m.Text)
		}
	}
}
