package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gitcats/internal/grading/environment"
	"gitcats/internal/grading/model"
	"gitcats/internal/grading/report"
	"gitcats/internal/grading/repository"
	"gitcats/internal/grading/sandbox/engine"
	"gitcats/internal/grading/sandbox/result"
	"gitcats/internal/grading/sandbox/runner"
	"gitcats/internal/grading/validator"
	appErr "gitcats/pkg/errors"
	"gitcats/pkg/utils/contextkey"
	"gitcats/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service runs the grading pipeline for one participant.
type Service struct {
	model          *model.Config
	engine         engine.Engine
	validator      *validator.Validator
	environments   *environment.Manager
	checked        *repository.CheckedRepository
	participant    string
	skipDepends    bool
	markChecked    bool
	defaultTimeout time.Duration
	workRoot       string
	reportPath     string
	out            io.Writer
}

// Config wires the service.
type Config struct {
	Model        *model.Config
	Engine       engine.Engine
	Environments *environment.Manager
	// Checked is optional; without it no markers are read or written.
	Checked        *repository.CheckedRepository
	Participant    string
	SkipDepends    bool
	MarkChecked    bool
	DefaultTimeout time.Duration
	WorkRoot       string
	ReportPath     string
	// Out receives the summary table.
	Out io.Writer
}

// NewService validates the wiring and creates a service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("configuration model is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Environments == nil {
		return nil, fmt.Errorf("environment manager is required")
	}
	if cfg.Participant == "" {
		return nil, appErr.ValidationError("participant", "required")
	}
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = os.TempDir()
	}
	// Scripts change into the assignment directory before writing genfiles.
	workRoot, err := filepath.Abs(cfg.WorkRoot)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "resolve work root %s: %v", cfg.WorkRoot, err)
	}
	cfg.WorkRoot = workRoot
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &Service{
		model:          cfg.Model,
		engine:         cfg.Engine,
		validator:      validator.NewValidator(cfg.Model),
		environments:   cfg.Environments,
		checked:        cfg.Checked,
		participant:    cfg.Participant,
		skipDepends:    cfg.SkipDepends,
		markChecked:    cfg.MarkChecked,
		defaultTimeout: cfg.DefaultTimeout,
		workRoot:       cfg.WorkRoot,
		reportPath:     cfg.ReportPath,
		out:            cfg.Out,
	}, nil
}

// Execute grades every submission of the participant and returns the
// process exit code. Errors are reserved for failures of the run itself.
func (s *Service) Execute(ctx context.Context) (int, error) {
	runID := uuid.NewString()
	ctx = context.WithValue(ctx, contextkey.RunID, runID)
	ctx = context.WithValue(ctx, contextkey.Participant, s.participant)

	logger.Debug(ctx, "loaded configuration", zap.String("config", s.model.Dump()))

	if !s.model.IsParticipant(s.participant) {
		logger.Info(ctx, s.participant+" is not known as the account name of a participant. "+
			"For pull requests, tests are performed only if the name of the source branch "+
			"is the name of a registered participant.")
		logger.Info(ctx, "No tests are performed.")
		return report.ExitOK, nil
	}
	logger.Info(ctx, "perform tests for participant")

	run, err := s.newRun(runID)
	if err != nil {
		return report.ExitFailed, err
	}
	defer func() {
		if err := os.RemoveAll(run.Workspace); err != nil {
			logger.Warn(ctx, "remove run workspace failed", zap.String("workspace", run.Workspace), zap.Error(err))
		}
	}()

	s.grade(ctx, run)

	if err := run.Report.Render(s.out); err != nil {
		logger.Warn(ctx, "print summary failed", zap.Error(err))
	}
	run.Report.LogVerdict(ctx)

	if s.reportPath != "" {
		artifact := report.NewArtifact(run.ID, run.Report, run.StartedAt, time.Now())
		if err := report.WriteArtifact(s.reportPath, artifact); err != nil {
			logger.Error(ctx, "write report artifact failed", zap.String("path", s.reportPath), zap.Error(err))
		} else {
			logger.Info(ctx, "report artifact written", zap.String("path", s.reportPath))
		}
	}
	return run.Report.ExitCode(), nil
}

func (s *Service) newRun(runID string) (*Run, error) {
	workspace := filepath.Join(s.workRoot, "gitcats-"+runID)
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "create run workspace: %v", err)
	}
	return &Run{
		ID:          runID,
		Participant: s.participant,
		Workspace:   workspace,
		StartedAt:   time.Now(),
		Registry:    environment.NewRegistry(),
		Report:      report.New(s.participant),
		Runner: runner.NewRunner(s.engine, runner.Config{
			WorkspaceDir:   workspace,
			DefaultTimeout: s.defaultTimeout,
		}),
	}, nil
}

// grade walks the participant's submissions in document order. Environments
// are removed once at the end, also when a stage panics.
func (s *Service) grade(ctx context.Context, run *Run) {
	defer func() {
		if err := s.environments.Cleanup(context.WithoutCancel(ctx), run.Registry); err != nil {
			logger.Warn(ctx, "environment cleanup incomplete", zap.Error(err))
		}
	}()

	entries := s.model.EntriesFor(run.Participant)
	if len(entries) > 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Assignment)
		}
		logger.Info(ctx, "perform tests for submissions", zap.Strings("assignments", names))
	}
	for _, entry := range entries {
		for _, variant := range entry.Variants() {
			s.gradeVariant(ctx, run, entry.Assignment, variant)
		}
	}
}

func (s *Service) fail(run *Run, assignment string, variant model.Variant, reason result.FailureReason, detail string) {
	run.Report.AddFailure(result.SubmissionFailure{
		Participant:  run.Participant,
		Assignment:   assignment,
		SubmissionID: variant.ID.String(),
		Reason:       reason,
		Detail:       detail,
	})
}

func (s *Service) gradeVariant(ctx context.Context, run *Run, assignment string, variant model.Variant) {
	submissionID := variant.ID.String()
	fields := []zap.Field{zap.String("assignment", assignment), zap.String("submission", submissionID)}

	resolved, err := s.validator.Validate(ctx, run.Participant, assignment, variant)
	if err != nil {
		s.fail(run, assignment, variant, result.ReasonInvalid, err.Error())
		return
	}
	if variant.Record.Checked() {
		logger.Info(ctx, "submission is marked as checked, skipping", fields...)
		return
	}

	if s.checked != nil {
		checked, err := s.checked.IsChecked(ctx, run.Participant, assignment, submissionID, resolved.ProgramPath)
		if err != nil {
			logger.Warn(ctx, "read checked marker failed", append(fields, zap.Error(err))...)
		} else if checked {
			logger.Info(ctx, "submission unchanged since it was checked, skipping", fields...)
			return
		}
	}

	if !s.skipDepends && !s.environments.Ensure(ctx, resolved.Language, run.Registry) {
		s.fail(run, assignment, variant, result.ReasonDependencyFailed, "failure to create environment")
		return
	}

	sub := runner.Submission{
		Participant: run.Participant,
		Assignment:  resolved.Assignment,
		Language:    resolved.Language,
		ID:          variant.ID,
		Scope:       s.environments.Scope(resolved.Language, run.Registry),
	}
	if compiled := run.Runner.Compile(ctx, sub); !compiled.OK {
		s.fail(run, assignment, variant, result.ReasonCompileFailed, compiled.Output)
		return
	}

	tests := resolved.Assignment.Tests
	if len(tests) == 0 {
		logger.Warn(ctx, "assignment has no tests", fields...)
		return
	}
	passed := true
	for _, test := range tests {
		outcome := run.Runner.RunTest(ctx, sub, test)
		run.Report.AddOutcome(outcome)
		if outcome.Status.RequiredFailure() {
			passed = false
		}
	}

	if s.markChecked && passed && s.checked != nil {
		if err := s.checked.MarkChecked(ctx, run.Participant, assignment, submissionID, resolved.ProgramPath, run.ID, len(tests)); err != nil {
			logger.Warn(ctx, "store checked marker failed", append(fields, zap.Error(err))...)
		} else {
			logger.Info(ctx, "submission marked as checked", fields...)
		}
	}
}
