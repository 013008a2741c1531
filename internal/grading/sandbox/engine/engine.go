package engine

import (
	"bytes"
	"context"

	"gitcats/internal/grading/sandbox/result"
	"gitcats/internal/grading/sandbox/spec"
)

const (
	defaultShell       = "bash"
	defaultOutputLines = 10
	maxOutputBytes     = 64 * 1024
)

// Engine executes scoped scripts.
type Engine interface {
	Execute(ctx context.Context, script spec.ScriptSpec) (result.ScriptResult, error)
}

// Config controls engine behavior.
type Config struct {
	Shell       string   `yaml:"shell"`
	OutputLines int      `yaml:"outputLines"`
	Env         []string `yaml:"env"`
}

func (c *Config) applyDefaults() {
	if c.Shell == "" {
		c.Shell = defaultShell
	}
	if c.OutputLines <= 0 {
		c.OutputLines = defaultOutputLines
	}
}

// headWriter keeps the first lines written to it and drains the rest.
type headWriter struct {
	maxLines int
	lines    int
	buf      bytes.Buffer
}

func (w *headWriter) Write(p []byte) (int, error) {
	for _, c := range p {
		if w.lines >= w.maxLines || w.buf.Len() >= maxOutputBytes {
			break
		}
		w.buf.WriteByte(c)
		if c == '\n' {
			w.lines++
		}
	}
	return len(p), nil
}

func (w *headWriter) String() string {
	return w.buf.String()
}
