package report

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gitcats/internal/grading/sandbox/result"

	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zapcore"
)

func init() {
	color.NoColor = true
}

func outcome(test string, status result.Status) result.TestOutcome {
	return result.TestOutcome{Participant: "alice", Assignment: "A1", Test: test, Status: status}
}

func texts(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}

func TestVerdict(t *testing.T) {
	cases := []struct {
		name     string
		outcomes []result.TestOutcome
		failures []result.SubmissionFailure
		want     []string
		exit     int
	}{
		{
			name: "nothing to do",
			want: []string{"No tests performed.", "You're all set! :-)"},
			exit: ExitOK,
		},
		{
			name:     "all passed",
			outcomes: []result.TestOutcome{outcome("1", result.StatusOK), outcome("2", "failed")},
			want:     []string{"All required tests passed. CONGRATULATIONS!", "You're all set! :-)"},
			exit:     ExitOK,
		},
		{
			name:     "required failure",
			outcomes: []result.TestOutcome{outcome("1", result.StatusOK), outcome("2", "FAILED (time out)")},
			want:     []string{"Some tests FAILED.", "There is STILL WORK TO DO!"},
			exit:     ExitFailed,
		},
		{
			name:     "valid tests passed but a submission failed",
			outcomes: []result.TestOutcome{outcome("1", result.StatusOK)},
			failures: []result.SubmissionFailure{{Participant: "alice", Assignment: "A2", Reason: result.ReasonCompileFailed}},
			want: []string{
				"At least the valid tests passed :-)",
				"There were FAILED submissions, which have to be corrected.",
				"There is STILL WORK TO DO!",
			},
			exit: ExitFailed,
		},
		{
			name:     "only submission failures",
			failures: []result.SubmissionFailure{{Participant: "alice", Assignment: "A2", Reason: result.ReasonInvalid}},
			want: []string{
				"No tests performed.",
				"There were FAILED submissions, which have to be corrected.",
				"There is STILL WORK TO DO!",
			},
			exit: ExitFailed,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := &Report{Participant: "alice", Outcomes: tc.outcomes, Failures: tc.failures}
			if diff := cmp.Diff(tc.want, texts(r.Verdict())); diff != "" {
				t.Fatalf("verdict mismatch (-want +got):\n%s", diff)
			}
			if r.ExitCode() != tc.exit {
				t.Fatalf("expected exit %d, got %d", tc.exit, r.ExitCode())
			}
		})
	}
}

func TestVerdictLevels(t *testing.T) {
	r := &Report{Outcomes: []result.TestOutcome{outcome("1", "FAILED")}}
	msgs := r.Verdict()
	if msgs[0].Level != zapcore.WarnLevel || msgs[len(msgs)-1].Level != zapcore.ErrorLevel {
		t.Fatalf("unexpected levels: %+v", msgs)
	}
}

func TestRender(t *testing.T) {
	r := New("alice")
	r.AddOutcome(outcome("basic", result.StatusOK))
	r.AddOutcome(result.TestOutcome{Participant: "alice", Assignment: "A1", SubmissionID: "v2", Test: "2", Status: "failed"})
	r.AddFailure(result.SubmissionFailure{Participant: "alice", Assignment: "A2", Reason: result.ReasonDependencyFailed})

	var b strings.Builder
	if err := r.Render(&b); err != nil {
		t.Fatalf("render: %v", err)
	}
	lines := strings.Split(b.String(), "\n")
	want := []string{
		"",
		banner,
		title,
		"",
		"PARTICIPANT      ASSIGNMENT       SUBMISSION       TEST             STATUS",
		rule,
		"alice            A1               -                basic            OK",
		"alice            A1               v2               2                failed",
		"alice            A2               -                *                DEPENDENCY_FAILED",
		"",
		"",
	}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Fatalf("table mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderEmpty(t *testing.T) {
	var b strings.Builder
	if err := New("alice").Render(&b); err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(b.String(), "PARTICIPANT") {
		t.Fatalf("empty report must not print a header")
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	r := New("alice")
	r.AddOutcome(outcome("basic", result.StatusOK))
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := NewArtifact("run-1", r, started, started.Add(time.Second))

	for _, name := range []string{"report.json", "nested/report.json.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := WriteArtifact(path, a); err != nil {
				t.Fatalf("write: %v", err)
			}
			got, err := ReadArtifact(path)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if diff := cmp.Diff(a, got); diff != "" {
				t.Fatalf("artifact mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
