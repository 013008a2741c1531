//go:build unix

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"gitcats/internal/grading/sandbox/result"
	"gitcats/internal/grading/sandbox/spec"
	appErr "gitcats/pkg/errors"
	"gitcats/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

type shellEngine struct {
	cfg Config
}

// NewEngine creates a bash-backed engine.
func NewEngine(cfg Config) (Engine, error) {
	cfg.applyDefaults()
	if _, err := exec.LookPath(cfg.Shell); err != nil {
		return nil, fmt.Errorf("shell %s: %w", cfg.Shell, err)
	}
	return &shellEngine{cfg: cfg}, nil
}

func (e *shellEngine) Execute(ctx context.Context, script spec.ScriptSpec) (result.ScriptResult, error) {
	text := script.Render()
	logger.Debug(ctx, "execute script", zap.String("step", script.Label), zap.String("script", text))

	out := &headWriter{maxLines: e.cfg.OutputLines}
	cmd := exec.Command(e.cfg.Shell, "-c", text)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = time.Second
	if len(e.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), e.cfg.Env...)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return result.ScriptResult{ExitCode: -1, NotFound: true},
				appErr.Wrapf(err, appErr.CommandNotFound, "start %s: %v", e.cfg.Shell, err)
		}
		return result.ScriptResult{ExitCode: -1},
			appErr.Wrapf(err, appErr.ShellStartFailed, "start %s: %v", e.cfg.Shell, err)
	}

	var wallTimer <-chan time.Time
	if script.Timeout > 0 {
		timer := time.NewTimer(script.Timeout)
		defer timer.Stop()
		wallTimer = timer.C
	}

	done := make(chan struct{})
	timedOut := make(chan bool, 1)
	go func() {
		select {
		case <-ctx.Done():
			killProcessGroup(cmd.Process.Pid)
			timedOut <- false
		case <-wallTimer:
			killProcessGroup(cmd.Process.Pid)
			timedOut <- true
		case <-done:
			timedOut <- false
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	expired := <-timedOut && signaled(cmd.ProcessState)

	res := result.ScriptResult{
		ExitCode: exitCodeFromErr(waitErr, cmd.ProcessState),
		Output:   out.String(),
		Duration: time.Since(start),
	}
	switch {
	case expired:
		res.ExitCode = result.ExitTimeout
		res.TimedOut = true
	case ctx.Err() != nil:
		return res, ctx.Err()
	case res.ExitCode == result.ExitTimeout:
		// A nested timeout(1) wrapper reports its own deadline the same way.
		res.TimedOut = true
	case res.ExitCode == result.ExitNotFound:
		res.NotFound = true
	}
	return res, nil
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		if code := state.ExitCode(); code >= 0 {
			return code
		}
		return -1
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// signaled distinguishes a killed script from one that exited as the timer fired.
func signaled(state *os.ProcessState) bool {
	if state == nil {
		return true
	}
	status, ok := state.Sys().(syscall.WaitStatus)
	return !ok || status.Signaled()
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = unix.Kill(-pid, unix.SIGKILL)
}
