// Package spec defines the scoped shell script executed for one grading step.
package spec

import (
	"strings"
	"time"

	"github.com/alessio/shellescape"
)

// ScriptSpec is one step executed by bash: an optional directory scope,
// an optional environment scope and the command itself.
type ScriptSpec struct {
	Label      string
	WorkDir    string
	Activate   string
	Deactivate string
	Command    string
	// StdinPath feeds a file to the command's standard input.
	StdinPath string
	// StdoutPath captures the command's standard output into a file.
	StdoutPath string
	Pipefail   bool
	// Timeout bounds the whole script; zero means none.
	Timeout time.Duration
}

// Quote makes s a single shell word; safe words stay bare.
func Quote(s string) string {
	return shellescape.Quote(s)
}

// Render produces the script text. The exit status of the script is the
// exit status of Command; activate and deactivate are always paired.
func (s ScriptSpec) Render() string {
	var b strings.Builder
	if s.WorkDir != "" {
		b.WriteString("cd " + Quote(s.WorkDir) + " || exit 1\n")
	}
	if s.Activate != "" {
		b.WriteString(s.Activate + "\n")
	}
	if s.Pipefail {
		b.WriteString("set -o pipefail\n")
	}
	if s.StdinPath != "" || s.StdoutPath != "" {
		b.WriteString("{\n" + s.Command + "\n}")
		if s.StdinPath != "" {
			b.WriteString(" < " + Quote(s.StdinPath))
		}
		if s.StdoutPath != "" {
			b.WriteString(" > " + Quote(s.StdoutPath))
		}
		b.WriteString("\n")
	} else {
		b.WriteString(s.Command + "\n")
	}
	b.WriteString("status=$?\n")
	if s.Activate != "" && s.Deactivate != "" {
		b.WriteString(s.Deactivate + "\n")
	}
	b.WriteString("exit $status\n")
	return b.String()
}
