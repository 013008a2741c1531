package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gitcats/internal/grading/sandbox/result"
	appErr "gitcats/pkg/errors"

	"github.com/klauspost/compress/zstd"
)

// CompressedSuffix selects zstd compression for an artifact path.
const CompressedSuffix = ".zst"

// Artifact is the machine-readable record of one run.
type Artifact struct {
	RunID       string                     `json:"run_id"`
	Participant string                     `json:"participant"`
	StartedAt   time.Time                  `json:"started_at"`
	FinishedAt  time.Time                  `json:"finished_at"`
	AllOK       bool                       `json:"all_ok"`
	ExitCode    int                        `json:"exit_code"`
	Outcomes    []result.TestOutcome       `json:"outcomes"`
	Failures    []result.SubmissionFailure `json:"failures"`
}

// NewArtifact snapshots the report.
func NewArtifact(runID string, r *Report, startedAt, finishedAt time.Time) Artifact {
	outcomes := r.Outcomes
	if outcomes == nil {
		outcomes = []result.TestOutcome{}
	}
	failures := r.Failures
	if failures == nil {
		failures = []result.SubmissionFailure{}
	}
	return Artifact{
		RunID:       runID,
		Participant: r.Participant,
		StartedAt:   startedAt.UTC(),
		FinishedAt:  finishedAt.UTC(),
		AllOK:       r.AllOK(),
		ExitCode:    r.ExitCode(),
		Outcomes:    outcomes,
		Failures:    failures,
	}
}

// WriteArtifact writes the artifact as JSON, zstd-compressed when the path ends in .zst.
func WriteArtifact(path string, a Artifact) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return appErr.Wrapf(err, appErr.ReportWriteFailed, "create report directory: %v", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return appErr.Wrapf(err, appErr.ReportWriteFailed, "create report %s: %v", path, err)
	}
	defer file.Close()

	var w io.Writer = file
	var enc *zstd.Encoder
	if strings.HasSuffix(path, CompressedSuffix) {
		enc, err = zstd.NewWriter(file)
		if err != nil {
			return appErr.Wrapf(err, appErr.ReportWriteFailed, "init zstd writer: %v", err)
		}
		w = enc
	}

	jsonEnc := json.NewEncoder(w)
	jsonEnc.SetIndent("", "  ")
	if err := jsonEnc.Encode(a); err != nil {
		if enc != nil {
			_ = enc.Close()
		}
		return appErr.Wrapf(err, appErr.ReportWriteFailed, "encode report: %v", err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return appErr.Wrapf(err, appErr.ReportWriteFailed, "flush zstd stream: %v", err)
		}
	}
	if err := file.Sync(); err != nil {
		return appErr.Wrapf(err, appErr.ReportWriteFailed, "sync report: %v", err)
	}
	return nil
}

// ReadArtifact loads an artifact written by WriteArtifact.
func ReadArtifact(path string) (Artifact, error) {
	var a Artifact
	file, err := os.Open(path)
	if err != nil {
		return a, fmt.Errorf("open report: %w", err)
	}
	defer file.Close()

	var r io.Reader = file
	if strings.HasSuffix(path, CompressedSuffix) {
		dec, err := zstd.NewReader(file)
		if err != nil {
			return a, fmt.Errorf("init zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
	}
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return a, fmt.Errorf("decode report: %w", err)
	}
	return a, nil
}
