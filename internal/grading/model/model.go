// Package model holds the configuration graph built from the four grading documents.
package model

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultLanguage is the language of records that do not declare one.
const DefaultLanguage = "default"

// Language describes how submissions in one language are built, run and checked.
type Language struct {
	Name         string
	Compile      string
	Call         string
	Check        string
	Suffix       string
	CondaInstall string
	Timeout      time.Duration
}

// Test is one declared test of an assignment.
type Test struct {
	Position  int // 1-based
	Name      string
	Arguments string
	Check     string
	Optional  bool
	Timeout   time.Duration
}

// Description is the test name, or its position when unnamed.
func (t Test) Description() (string, bool) {
	if t.Name != "" {
		return t.Name, true
	}
	return strconv.Itoa(t.Position), false
}

// Assignment is one entry of assignments.yml.
type Assignment struct {
	Name      string
	Directory string // as written in the document
	Dir       string // resolved against the configuration directory
	Tests     []Test
}

// Record is one submission variant's fields.
type Record struct {
	values map[string]any
}

// NewRecord wraps decoded record fields.
func NewRecord(values map[string]any) *Record {
	if values == nil {
		values = make(map[string]any)
	}
	return &Record{values: values}
}

// Feature returns the value for key, or def when the key is absent or null.
func (r *Record) Feature(key string, def any) any {
	if r == nil {
		return def
	}
	return Feature(r.values, key, def)
}

// Language returns the declared language name, empty when unset.
// Non-string values keep their YAML rendering so they fail the lookup.
func (r *Record) Language() string {
	switch v := r.Feature("language", nil).(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// SetLanguage persists the language onto the record.
func (r *Record) SetLanguage(name string) {
	r.values["language"] = name
}

// Checked reports whether the record is already marked as checked.
func (r *Record) Checked() bool {
	v, _ := r.Feature("checked", false).(bool)
	return v
}

// Values exposes the record fields for reporting.
func (r *Record) Values() map[string]any {
	return r.values
}

// Feature returns values[key], treating a present-but-null value as absent.
func Feature(values map[string]any, key string, def any) any {
	v, ok := values[key]
	if !ok || v == nil {
		return def
	}
	return v
}

// Entry is the submission entry of one participant for one assignment.
type Entry struct {
	Assignment  string
	Participant string
	Line        int

	raw        *yaml.Node
	variants   []Variant
	normalized bool
}

// SubmissionGroup is one assignment key of submissions.yml.
type SubmissionGroup struct {
	Assignment string
	Entries    []*Entry
}
