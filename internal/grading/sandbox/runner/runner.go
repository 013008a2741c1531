package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gitcats/internal/grading/model"
	"gitcats/internal/grading/sandbox/engine"
	"gitcats/internal/grading/sandbox/result"
	"gitcats/internal/grading/sandbox/spec"
	"gitcats/internal/grading/template"
	"gitcats/pkg/utils/logger"

	"go.uber.org/zap"
)

// DefaultCheck compares the generated output with the expected one.
const DefaultCheck = "diff -d -y --suppress-common-lines {genfile} {outfile} | head -n10"

const (
	defaultCall   = "./{name}{suffix}"
	runArgsSuffix = " {arguments} {infile}"
)

// Scope is the environment activation of one submission.
type Scope struct {
	Activate   string
	Deactivate string
}

// Submission is one validated submission variant ready to build and test.
type Submission struct {
	Participant string
	Assignment  *model.Assignment
	Language    *model.Language
	ID          model.SubmissionID
	Scope       Scope
}

// ProgramName derives the program file stem.
func (s Submission) ProgramName() string {
	return model.ProgramName(s.Participant, s.Assignment.Name, s.ID)
}

// Config controls the runner.
type Config struct {
	// WorkspaceDir holds generated output files.
	WorkspaceDir   string
	DefaultTimeout time.Duration
}

// Runner compiles submissions and runs their tests.
type Runner struct {
	eng engine.Engine
	cfg Config
}

// NewRunner creates a runner backed by the engine.
func NewRunner(eng engine.Engine, cfg Config) *Runner {
	return &Runner{eng: eng, cfg: cfg}
}

// Compile runs the language compile step for the submission.
func (r *Runner) Compile(ctx context.Context, sub Submission) result.CompileResult {
	if sub.Language.Compile == "" {
		return result.CompileResult{OK: true, Skipped: true}
	}
	cmd, err := template.Expand(sub.Language.Compile, map[string]string{
		template.KeyName:   word(sub.ProgramName()),
		template.KeySuffix: word(sub.Language.Suffix),
	})
	if err != nil {
		logger.Error(ctx, "expand compile template failed", zap.String("program", sub.ProgramName()), zap.Error(err))
		return result.CompileResult{ExitCode: -1, Output: err.Error()}
	}

	logger.Info(ctx, "compile submission",
		zap.String("program", filepath.Join(sub.Assignment.Directory, sub.ProgramName())),
		zap.String("command", cmd))
	res, err := r.eng.Execute(ctx, spec.ScriptSpec{
		Label:      "compile",
		WorkDir:    sub.Assignment.Dir,
		Activate:   sub.Scope.Activate,
		Deactivate: sub.Scope.Deactivate,
		Command:    cmd,
	})
	compileRes := result.CompileResult{
		OK:       err == nil && res.OK(),
		ExitCode: res.ExitCode,
		NotFound: res.NotFound,
		Output:   res.Output,
	}
	switch {
	case err != nil:
		compileRes.Output = err.Error()
		logger.Warn(ctx, "compile invocation failed", zap.String("program", sub.ProgramName()), zap.Error(err))
	case res.NotFound:
		logger.Warn(ctx, "compiler not found", zap.String("program", template.Program(cmd)))
	case !compileRes.OK:
		logger.Warn(ctx, "compilation failed",
			zap.String("program", sub.ProgramName()),
			zap.Int("exit_code", res.ExitCode),
			zap.String("output", res.Output))
	}
	return compileRes
}

func (r *Runner) timeout(sub Submission, test model.Test) time.Duration {
	switch {
	case test.Timeout > 0:
		return test.Timeout
	case sub.Language.Timeout > 0:
		return sub.Language.Timeout
	default:
		return r.cfg.DefaultTimeout
	}
}

// word quotes a substituted value; empty values stay empty.
func word(s string) string {
	if s == "" {
		return ""
	}
	return spec.Quote(s)
}

func fileSafe(s string) string {
	return strings.ReplaceAll(s, "/", "_")
}

// RunTest runs one test in two phases: the program writes its output to a
// file, then the check command compares that file with the expected output.
// It never fails; every problem becomes a status.
func (r *Runner) RunTest(ctx context.Context, sub Submission, test model.Test) result.TestOutcome {
	desc, named := test.Description()
	if !named {
		logger.Warn(ctx, "test has no name, using its position",
			zap.String("assignment", sub.Assignment.Name), zap.String("test", desc))
	}
	outcome := result.TestOutcome{
		Participant:  sub.Participant,
		Assignment:   sub.Assignment.Name,
		SubmissionID: sub.ID.String(),
		Test:         desc,
	}

	program := sub.ProgramName()
	genfile := filepath.Join(r.cfg.WorkspaceDir, fileSafe(program+"-"+desc)+".gen")
	values := map[string]string{
		template.KeyName:      word(program),
		template.KeySuffix:    word(sub.Language.Suffix),
		template.KeyArguments: test.Arguments,
		template.KeyInfile:    word(sub.Assignment.Name + "-" + desc + ".in"),
		template.KeyOutfile:   word(sub.Assignment.Name + "-" + desc + ".out"),
		template.KeyGenfile:   word(genfile),
	}

	call := sub.Language.Call
	if call == "" {
		call = defaultCall
	}
	runCmd, err := template.Expand(call+runArgsSuffix, values)
	if err != nil {
		outcome.Status = result.FailStatus(test.Optional, false)
		outcome.Detail = err.Error()
		return r.finish(ctx, outcome)
	}
	check := test.Check
	if check == "" {
		check = sub.Language.Check
	}
	if check == "" {
		check = DefaultCheck
	}
	checkCmd, err := template.Expand(check, values)
	if err != nil {
		outcome.Status = result.FailStatus(test.Optional, false)
		outcome.Detail = err.Error()
		return r.finish(ctx, outcome)
	}

	logger.Info(ctx, "run test",
		zap.String("test", desc),
		zap.String("program", filepath.Join(sub.Assignment.Directory, program)+sub.Language.Suffix))
	logger.Info(ctx, "program call", zap.String("command", runCmd))
	logger.Info(ctx, "check by", zap.String("command", checkCmd))

	timeout := r.timeout(sub, test)
	runRes, err := r.eng.Execute(ctx, spec.ScriptSpec{
		Label:      "run",
		WorkDir:    sub.Assignment.Dir,
		Activate:   sub.Scope.Activate,
		Deactivate: sub.Scope.Deactivate,
		Command:    runCmd,
		StdoutPath: genfile,
		Pipefail:   true,
		Timeout:    timeout,
	})
	switch {
	case err != nil:
		logger.Warn(ctx, "test call failed", zap.String("test", desc), zap.Error(err))
		outcome.Status = result.FailStatus(test.Optional, false)
		outcome.Detail = err.Error()
		return r.finish(ctx, outcome)
	case runRes.TimedOut || runRes.ExitCode == result.ExitTimeout:
		logger.Debug(ctx, "test call timed out", zap.String("test", desc), zap.Duration("timeout", timeout))
		outcome.Status = result.FailStatus(test.Optional, true)
		outcome.Detail = fmt.Sprintf("time limit %s exceeded", timeout)
		return r.finish(ctx, outcome)
	case runRes.NotFound:
		logger.Warn(ctx, "test call failed (file not found)", zap.String("program", template.Program(runCmd)))
		outcome.Status = result.FailStatus(test.Optional, false)
		outcome.Detail = runRes.Output
		return r.finish(ctx, outcome)
	case runRes.ExitCode != 0:
		logger.Debug(ctx, "test call failed", zap.Int("exit_code", runRes.ExitCode), zap.String("output", runRes.Output))
		outcome.Status = result.FailStatus(test.Optional, false)
		outcome.Detail = runRes.Output
		return r.finish(ctx, outcome)
	}

	checkRes, err := r.eng.Execute(ctx, spec.ScriptSpec{
		Label:      "check",
		WorkDir:    sub.Assignment.Dir,
		Activate:   sub.Scope.Activate,
		Deactivate: sub.Scope.Deactivate,
		Command:    checkCmd,
		StdinPath:  genfile,
		Pipefail:   true,
	})
	switch {
	case err != nil:
		outcome.Status = result.FailStatus(test.Optional, false)
		outcome.Detail = err.Error()
	case checkRes.ExitCode != 0:
		logger.Debug(ctx, "test does not produce expected result", zap.String("diff", checkRes.Output))
		outcome.Status = result.FailStatus(test.Optional, false)
		outcome.Detail = checkRes.Output
	default:
		outcome.Status = result.StatusOK
	}
	return r.finish(ctx, outcome)
}

func (r *Runner) finish(ctx context.Context, outcome result.TestOutcome) result.TestOutcome {
	if outcome.Status.RequiredFailure() {
		logger.Error(ctx, " ... "+string(outcome.Status)+".", zap.String("test", outcome.Test))
	} else {
		logger.Info(ctx, " ... "+string(outcome.Status)+".", zap.String("test", outcome.Test))
	}
	return outcome
}
