//go:build !unix

package engine

import (
	"context"
	"fmt"

	"gitcats/internal/grading/sandbox/result"
	"gitcats/internal/grading/sandbox/spec"
)

type stubEngine struct{}

func NewEngine(cfg Config) (Engine, error) {
	return &stubEngine{}, nil
}

func (s *stubEngine) Execute(ctx context.Context, script spec.ScriptSpec) (result.ScriptResult, error) {
	return result.ScriptResult{ExitCode: -1}, fmt.Errorf("shell engine is only supported on unix")
}
