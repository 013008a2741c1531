// Package template expands command templates with a closed set of placeholders.
//
// A placeholder is written {key}. Literal braces are written {{ and }}.
//
// Callers substitute values already quoted as single shell words, except for
// {arguments}, which is spliced verbatim. Templates must therefore use
// placeholders bare: python3 {name}{suffix}, never python3 "{name}{suffix}".
package template

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// Placeholder keys.
const (
	KeyName      = "name"
	KeySuffix    = "suffix"
	KeyArguments = "arguments"
	KeyInfile    = "infile"
	KeyOutfile   = "outfile"
	KeyGenfile   = "genfile"
	KeyEnv       = "env"
	KeySpec      = "spec"
)

var (
	// CompileKeys are the placeholders a compile template may use.
	CompileKeys = []string{KeyName, KeySuffix}
	// RunKeys are the placeholders call and check templates may use.
	RunKeys = []string{KeyName, KeySuffix, KeyArguments, KeyInfile, KeyOutfile, KeyGenfile}
	// EnvKeys are the placeholders environment tool snippets may use.
	EnvKeys = []string{KeyEnv, KeySpec}
)

type segment struct {
	literal string
	key     string
}

func parse(tmpl string) ([]segment, error) {
	var segments []segment
	var lit strings.Builder
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unterminated placeholder at offset %d", i)
			}
			key := tmpl[i+1 : i+1+end]
			if key == "" || strings.ContainsAny(key, "{ \t") {
				return nil, fmt.Errorf("malformed placeholder %q at offset %d", "{"+key+"}", i)
			}
			if lit.Len() > 0 {
				segments = append(segments, segment{literal: lit.String()})
				lit.Reset()
			}
			segments = append(segments, segment{key: key})
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("single '}' at offset %d", i)
		default:
			lit.WriteByte(c)
		}
	}
	if lit.Len() > 0 {
		segments = append(segments, segment{literal: lit.String()})
	}
	return segments, nil
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// Validate checks that tmpl uses only allowed placeholders and splits as a shell line.
func Validate(tmpl string, allowed []string) error {
	segments, err := parse(tmpl)
	if err != nil {
		return err
	}
	values := make(map[string]string, len(allowed))
	for _, seg := range segments {
		if seg.key == "" {
			continue
		}
		if !contains(allowed, seg.key) {
			return fmt.Errorf("unknown placeholder {%s}, allowed: %s", seg.key, strings.Join(allowed, ", "))
		}
		values[seg.key] = "x"
	}
	expanded, err := expand(segments, values)
	if err != nil {
		return err
	}
	if _, err := shlex.Split(expanded); err != nil {
		return fmt.Errorf("not a valid shell line: %w", err)
	}
	return nil
}

// Expand substitutes every placeholder of tmpl from values.
func Expand(tmpl string, values map[string]string) (string, error) {
	segments, err := parse(tmpl)
	if err != nil {
		return "", err
	}
	return expand(segments, values)
}

func expand(segments []segment, values map[string]string) (string, error) {
	var b strings.Builder
	for _, seg := range segments {
		if seg.key == "" {
			b.WriteString(seg.literal)
			continue
		}
		v, ok := values[seg.key]
		if !ok {
			return "", fmt.Errorf("no value for placeholder {%s}", seg.key)
		}
		b.WriteString(v)
	}
	return b.String(), nil
}

// Program returns the first word of a shell line, empty when it has none.
func Program(line string) string {
	words, err := shlex.Split(line)
	if err != nil || len(words) == 0 {
		return ""
	}
	return words[0]
}
