package model

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	appErr "gitcats/pkg/errors"

	"gopkg.in/yaml.v3"
)

const (
	assignmentsDoc = `assignments:
  - name: A1
    directory: a1
    tests:
      - name: basic
        arguments: -v
      - optional: true
        timeout: 2
  - name: A2
    directory: /abs/a2
`
	languagesDoc = `languages:
  python:
    call: python3 {name}{suffix}
    suffix: .py
    conda-install: python=3.11 numpy
    timeout: 1.5s
  c:
    compile: gcc -o {name} {name}{suffix}
    suffix: .c
`
	participantsDoc = `participants:
  - alice
  - bob
`
	submissionsDoc = `submissions:
  A1:
    alice:
      language: python
    bob:
      - language: c
      - language: c
  A2:
    alice:
      first: {language: python}
      second: {checked: true}
`
)

func writeDocs(t *testing.T, docs map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	defaults := map[string]string{
		DocAssignments:  assignmentsDoc,
		DocLanguages:    languagesDoc,
		DocParticipants: participantsDoc,
		DocSubmissions:  submissionsDoc,
	}
	for name, content := range docs {
		defaults[name] = content
	}
	for name, content := range defaults {
		if content == "" {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, name+".yml"), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeDocs(t, nil)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	a1, ok := cfg.LookupAssignment("A1")
	if !ok {
		t.Fatalf("A1 not found")
	}
	if a1.Dir != filepath.Join(cfg.Dir, "a1") {
		t.Fatalf("unexpected dir: %s", a1.Dir)
	}
	if len(a1.Tests) != 2 {
		t.Fatalf("unexpected tests: %+v", a1.Tests)
	}
	if desc, named := a1.Tests[0].Description(); desc != "basic" || !named {
		t.Fatalf("unexpected first test description %q", desc)
	}
	if desc, named := a1.Tests[1].Description(); desc != "2" || named {
		t.Fatalf("unexpected second test description %q", desc)
	}
	if !a1.Tests[1].Optional || a1.Tests[1].Timeout != 2*time.Second {
		t.Fatalf("unexpected second test: %+v", a1.Tests[1])
	}

	a2, _ := cfg.LookupAssignment("A2")
	if a2.Dir != "/abs/a2" {
		t.Fatalf("absolute directory must be kept, got %s", a2.Dir)
	}
	if _, ok := cfg.LookupAssignment("A3"); ok {
		t.Fatalf("A3 must not exist")
	}

	py, ok := cfg.Language("python")
	if !ok || py.Timeout != 1500*time.Millisecond || py.CondaInstall != "python=3.11 numpy" {
		t.Fatalf("unexpected python language: %+v", py)
	}
	if _, ok := cfg.Language(DefaultLanguage); !ok {
		t.Fatalf("default language must always exist")
	}

	if !cfg.IsParticipant("alice") || cfg.IsParticipant("carol") {
		t.Fatalf("unexpected participant membership")
	}

	entries := cfg.EntriesFor("alice")
	if len(entries) != 2 || entries[0].Assignment != "A1" || entries[1].Assignment != "A2" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestLoadParticipantsMapping(t *testing.T) {
	dir := writeDocs(t, map[string]string{DocParticipants: "participants:\n  carol: {email: c@example.com}\n  dave:\n"})
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(cfg.Participants(), []string{"carol", "dave"}) {
		t.Fatalf("unexpected participants: %v", cfg.Participants())
	}
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name     string
		docs     map[string]string
		missing  string
		code     appErr.ErrorCode
		location string
	}{
		{
			name:    "missing file",
			missing: DocLanguages,
			code:    appErr.ConfigReadFailed,
		},
		{
			name:     "missing entry",
			docs:     map[string]string{DocParticipants: "people:\n  - alice\n"},
			code:     appErr.ConfigEntryMissing,
			location: "participants.yml",
		},
		{
			name:     "parse error",
			docs:     map[string]string{DocSubmissions: "submissions:\n  A1: [\n"},
			code:     appErr.ConfigParseFailed,
			location: "submissions.yml:",
		},
		{
			name:     "assignment without directory",
			docs:     map[string]string{DocAssignments: "assignments:\n  - name: A1\n"},
			code:     appErr.ConfigInvalid,
			location: "assignments.yml:2:5",
		},
		{
			name:     "assignment without name",
			docs:     map[string]string{DocAssignments: "assignments:\n  - directory: a\n"},
			code:     appErr.ConfigInvalid,
			location: "assignments.yml:2:5",
		},
		{
			name:     "duplicate assignment",
			docs:     map[string]string{DocAssignments: "assignments:\n  - {name: A1, directory: a}\n  - {name: A1, directory: b}\n"},
			code:     appErr.DuplicateName,
			location: "assignments.yml:3:5",
		},
		{
			name:     "unknown placeholder",
			docs:     map[string]string{DocLanguages: "languages:\n  c:\n    compile: gcc {source}\n"},
			code:     appErr.TemplateInvalid,
			location: "languages.yml:3:14",
		},
		{
			name:     "bad timeout",
			docs:     map[string]string{DocLanguages: "languages:\n  c:\n    timeout: soon\n"},
			code:     appErr.ConfigInvalid,
			location: "languages.yml:3:14",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := writeDocs(t, tc.docs)
			if tc.missing != "" {
				_ = os.Remove(filepath.Join(dir, tc.missing+".yml"))
			}
			_, err := Load(dir)
			if !appErr.Is(err, tc.code) {
				t.Fatalf("expected code %d, got %v", tc.code, err)
			}
			if tc.location != "" {
				if got := appErr.GetError(err).Location(); !strings.HasPrefix(got, tc.location) {
					t.Fatalf("expected location %q, got %q", tc.location, got)
				}
			}
		})
	}
}

func TestFeature(t *testing.T) {
	values := map[string]any{"language": nil, "checked": true}
	if got := Feature(values, "language", "default"); got != "default" {
		t.Fatalf("null value must fall back to default, got %v", got)
	}
	if got := Feature(values, "missing", 3); got != 3 {
		t.Fatalf("absent value must fall back to default, got %v", got)
	}
	if got := Feature(values, "checked", false); got != true {
		t.Fatalf("present value must be returned, got %v", got)
	}
}

func TestRecordLanguagePersists(t *testing.T) {
	rec := NewRecord(map[string]any{"language": nil})
	if rec.Language() != "" {
		t.Fatalf("expected unset language")
	}
	rec.SetLanguage(DefaultLanguage)
	if rec.Language() != DefaultLanguage {
		t.Fatalf("language not persisted")
	}
}

func parseNode(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc.Content[0]
}

func TestNormalizeShapesAgree(t *testing.T) {
	shapes := map[string]string{
		"flat":    "language: python\nnote: x\n",
		"indexed": "- language: python\n  note: x\n",
		"named":   "\"\": {language: python, note: x}\n",
	}
	want := map[string]any{"language": "python", "note": "x"}
	for name, src := range shapes {
		t.Run(name, func(t *testing.T) {
			variants := Normalize(parseNode(t, src))
			if len(variants) != 1 {
				t.Fatalf("expected one variant, got %d", len(variants))
			}
			v := variants[0]
			if v.Err != nil || v.ID != (SubmissionID{}) {
				t.Fatalf("unexpected variant: %+v", v)
			}
			if !reflect.DeepEqual(v.Record.Values(), want) {
				t.Fatalf("unexpected record: %v", v.Record.Values())
			}
			if got := ProgramName("alice", "A1", v.ID); got != "alice-A1" {
				t.Fatalf("unexpected program name: %s", got)
			}
		})
	}
}

func TestNormalizeNamedAndIndexed(t *testing.T) {
	named := Normalize(parseNode(t, "v1: {language: c}\nv2: {}\n"))
	if len(named) != 2 || named[0].ID != NamedID("v1") || named[1].ID != NamedID("v2") {
		t.Fatalf("unexpected named variants: %+v", named)
	}
	if ProgramName("alice", "A1", named[1].ID) != "alice-A1#v2" {
		t.Fatalf("unexpected named program name")
	}

	indexed := Normalize(parseNode(t, "- {language: c}\n- {language: c}\n- {language: c}\n"))
	if len(indexed) != 3 {
		t.Fatalf("unexpected indexed variants: %+v", indexed)
	}
	if indexed[0].ID != (SubmissionID{}) || indexed[2].ID != IndexedID(2) {
		t.Fatalf("unexpected indexed ids: %+v", indexed)
	}
	if ProgramName("alice", "A1", indexed[2].ID) != "alice-2-A1" {
		t.Fatalf("unexpected indexed program name")
	}
}

func TestNormalizeMixedMappingIsFlat(t *testing.T) {
	variants := Normalize(parseNode(t, "language: c\nextra: {k: v}\n"))
	if len(variants) != 1 || variants[0].ID != (SubmissionID{}) || variants[0].Record.Language() != "c" {
		t.Fatalf("mixed mapping must be a flat record: %+v", variants)
	}
}

func TestNormalizeInvalidEntries(t *testing.T) {
	unsafe := Normalize(parseNode(t, "../x: {language: c}\nok: {language: c}\n"))
	if !appErr.Is(unsafe[0].Err, appErr.SubmissionIDInvalid) || unsafe[1].Err != nil {
		t.Fatalf("unexpected variants: %+v", unsafe)
	}

	null := Normalize(parseNode(t, "~\n"))
	if len(null) != 1 || !appErr.Is(null[0].Err, appErr.SubmissionShapeBroken) {
		t.Fatalf("null entry must be broken: %+v", null)
	}

	scalar := Normalize(parseNode(t, "python\n"))
	if !appErr.Is(scalar[0].Err, appErr.SubmissionShapeBroken) {
		t.Fatalf("scalar entry must be broken: %+v", scalar)
	}
}

func TestEntryVariantsIdempotent(t *testing.T) {
	dir := writeDocs(t, nil)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	entry := cfg.EntriesFor("alice")[0]
	first := entry.Variants()
	first[0].Record.SetLanguage("c")
	second := entry.Variants()
	if second[0].Record.Language() != "c" {
		t.Fatalf("normalized variants must be written back")
	}
}

func TestValidID(t *testing.T) {
	for _, id := range []string{"v1", "try_2", "a.b", "x+y", "final-1"} {
		if !ValidID(id) {
			t.Errorf("%q should be valid", id)
		}
	}
	for _, id := range []string{".hidden", "a/b", "a b", "", "x#y"} {
		if ValidID(id) {
			t.Errorf("%q should be invalid", id)
		}
	}
}

func TestParseTimeout(t *testing.T) {
	cases := map[string]time.Duration{
		"":     0,
		"3":    3 * time.Second,
		"0.5":  500 * time.Millisecond,
		"2m":   2 * time.Minute,
		"1.5s": 1500 * time.Millisecond,
	}
	for raw, want := range cases {
		got, err := ParseTimeout(raw)
		if err != nil || got != want {
			t.Errorf("ParseTimeout(%q) = %v, %v; want %v", raw, got, err, want)
		}
	}
	for _, raw := range []string{"-1", "soon"} {
		if _, err := ParseTimeout(raw); err == nil {
			t.Errorf("ParseTimeout(%q) should fail", raw)
		}
	}
}

func TestParseErrorLocationHasNoColumn(t *testing.T) {
	dir := writeDocs(t, map[string]string{DocSubmissions: "submissions:\n\tA1: {}\n"})
	_, err := Load(dir)
	if !appErr.Is(err, appErr.ConfigParseFailed) {
		t.Fatalf("expected parse failure, got %v", err)
	}
	if got := appErr.GetError(err).Location(); got != "submissions.yml:2" {
		t.Fatalf("Location() = %q, want line without column", got)
	}
}
