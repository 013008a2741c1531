package model

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gitcats/internal/grading/template"
	appErr "gitcats/pkg/errors"

	"gopkg.in/yaml.v3"
)

// Document names; each file must hold a top-level entry of the same name.
const (
	DocAssignments  = "assignments"
	DocParticipants = "participants"
	DocLanguages    = "languages"
	DocSubmissions  = "submissions"
)

// yaml.v3 syntax errors only carry the line, inside the message.
var yamlLine = regexp.MustCompile(`line (\d+)`)

// Config is the loaded configuration graph.
type Config struct {
	Dir         string
	Assignments []*Assignment
	Submissions []*SubmissionGroup

	assignments   map[string]*Assignment
	languages     map[string]*Language
	languageOrder []string
	participants  map[string]struct{}
	participantOr []string
}

// Load reads the four documents from dir.
func Load(dir string) (*Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ConfigReadFailed, "resolve configuration directory %s: %v", dir, err)
	}
	c := &Config{
		Dir:          absDir,
		assignments:  make(map[string]*Assignment),
		languages:    make(map[string]*Language),
		participants: make(map[string]struct{}),
	}

	steps := []struct {
		doc  string
		load func(file string, node *yaml.Node) error
	}{
		{DocLanguages, c.loadLanguages},
		{DocAssignments, c.loadAssignments},
		{DocParticipants, c.loadParticipants},
		{DocSubmissions, c.loadSubmissions},
	}
	for _, step := range steps {
		file, node, err := readDocument(absDir, step.doc)
		if err != nil {
			return nil, err
		}
		if err := step.load(file, node); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// readDocument parses <doc>.yml and returns the value of its top-level entry.
func readDocument(dir, doc string) (string, *yaml.Node, error) {
	file := doc + ".yml"
	data, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		return file, nil, appErr.Wrapf(err, appErr.ConfigReadFailed, "cannot read %s: %v", file, err).
			WithDetail("file", file)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		line := 0
		if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
			line, _ = strconv.Atoi(m[1])
		}
		cfgErr := appErr.ConfigError(appErr.ConfigParseFailed, file, line, 0, "cannot parse %s: %v", file, err)
		cfgErr.Err = err
		return file, nil, cfgErr
	}

	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		top := resolve(root.Content[0])
		if top.Kind == yaml.MappingNode {
			for i := 0; i+1 < len(top.Content); i += 2 {
				if top.Content[i].Value == doc {
					return file, resolve(top.Content[i+1]), nil
				}
			}
		}
	}
	return file, nil, appErr.ConfigError(appErr.ConfigEntryMissing, file, 0, 0,
		"%s does not contain a top-level %q entry", file, doc)
}

func invalid(file string, node *yaml.Node, format string, args ...interface{}) *appErr.Error {
	return appErr.ConfigError(appErr.ConfigInvalid, file, node.Line, node.Column, format, args...)
}

func isNull(node *yaml.Node) bool {
	return node == nil || (node.Kind == yaml.ScalarNode && node.Tag == "!!null")
}

func scalar(file string, node *yaml.Node, field string) (string, error) {
	node = resolve(node)
	if isNull(node) {
		return "", nil
	}
	if node.Kind != yaml.ScalarNode {
		return "", invalid(file, node, "%s must be a scalar", field)
	}
	return node.Value, nil
}

func boolField(file string, node *yaml.Node, field string) (bool, error) {
	node = resolve(node)
	if isNull(node) {
		return false, nil
	}
	var b bool
	if err := node.Decode(&b); err != nil {
		return false, invalid(file, node, "%s must be a boolean", field)
	}
	return b, nil
}

func timeout(file string, node *yaml.Node, field string) (time.Duration, error) {
	raw, err := scalar(file, node, field)
	if err != nil || raw == "" {
		return 0, err
	}
	d, err := ParseTimeout(raw)
	if err != nil {
		return 0, invalid(file, node, "%s: %v", field, err)
	}
	return d, nil
}

// ParseTimeout accepts a Go duration ("1.5s", "2m") or a number of seconds.
func ParseTimeout(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	var d time.Duration
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		d = time.Duration(secs * float64(time.Second))
	} else if d, err = time.ParseDuration(raw); err != nil {
		return 0, fmt.Errorf("invalid timeout %q", raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative timeout %q", raw)
	}
	return d, nil
}

func checkTemplate(file string, node *yaml.Node, field, tmpl string, keys []string) error {
	if tmpl == "" {
		return nil
	}
	if err := template.Validate(tmpl, keys); err != nil {
		return appErr.ConfigError(appErr.TemplateInvalid, file, node.Line, node.Column, "%s template %q: %v", field, tmpl, err)
	}
	return nil
}

func (c *Config) loadLanguages(file string, node *yaml.Node) error {
	if !isNull(node) {
		if node.Kind != yaml.MappingNode {
			return invalid(file, node, "languages must be a mapping of language name to definition")
		}
		for i := 0; i+1 < len(node.Content); i += 2 {
			name := node.Content[i].Value
			lang, err := parseLanguage(file, name, resolve(node.Content[i+1]))
			if err != nil {
				return err
			}
			if _, dup := c.languages[name]; dup {
				return appErr.ConfigError(appErr.DuplicateName, file, node.Content[i].Line, node.Content[i].Column,
					"language %q is defined twice", name)
			}
			c.languages[name] = lang
			c.languageOrder = append(c.languageOrder, name)
		}
	}
	// Records without a language run as plain executables.
	if _, ok := c.languages[DefaultLanguage]; !ok {
		c.languages[DefaultLanguage] = &Language{Name: DefaultLanguage}
		c.languageOrder = append(c.languageOrder, DefaultLanguage)
	}
	return nil
}

func parseLanguage(file, name string, node *yaml.Node) (*Language, error) {
	lang := &Language{Name: name}
	if isNull(node) {
		return lang, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, invalid(file, node, "language %q must be a mapping", name)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]
		field := "languages." + name + "." + key
		var err error
		switch key {
		case "compile":
			if lang.Compile, err = scalar(file, value, field); err == nil {
				err = checkTemplate(file, value, field, lang.Compile, template.CompileKeys)
			}
		case "call":
			if lang.Call, err = scalar(file, value, field); err == nil {
				err = checkTemplate(file, value, field, lang.Call, template.RunKeys)
			}
		case "check":
			if lang.Check, err = scalar(file, value, field); err == nil {
				err = checkTemplate(file, value, field, lang.Check, template.RunKeys)
			}
		case "suffix":
			lang.Suffix, err = scalar(file, value, field)
		case "conda-install":
			lang.CondaInstall, err = scalar(file, value, field)
		case "timeout":
			lang.Timeout, err = timeout(file, value, field)
		}
		if err != nil {
			return nil, err
		}
	}
	return lang, nil
}

func (c *Config) loadAssignments(file string, node *yaml.Node) error {
	if isNull(node) {
		return nil
	}
	if node.Kind != yaml.SequenceNode {
		return invalid(file, node, "assignments must be a list")
	}
	for _, item := range node.Content {
		item = resolve(item)
		if item.Kind != yaml.MappingNode {
			return invalid(file, item, "assignment must be a mapping")
		}
		a, err := c.parseAssignment(file, item)
		if err != nil {
			return err
		}
		if _, dup := c.assignments[a.Name]; dup {
			return appErr.ConfigError(appErr.DuplicateName, file, item.Line, item.Column,
				"assignment %q is defined twice", a.Name)
		}
		c.assignments[a.Name] = a
		c.Assignments = append(c.Assignments, a)
	}
	return nil
}

func (c *Config) parseAssignment(file string, node *yaml.Node) (*Assignment, error) {
	a := &Assignment{}
	var tests *yaml.Node
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]
		var err error
		switch key {
		case "name":
			a.Name, err = scalar(file, value, "assignment name")
		case "directory":
			a.Directory, err = scalar(file, value, "assignment directory")
		case "tests":
			tests = resolve(value)
		}
		if err != nil {
			return nil, err
		}
	}
	if a.Name == "" {
		return nil, invalid(file, node, "assignment has no name")
	}
	if a.Directory == "" {
		return nil, invalid(file, node, "assignment %q has no directory", a.Name)
	}
	a.Dir = a.Directory
	if !filepath.IsAbs(a.Dir) {
		a.Dir = filepath.Join(c.Dir, a.Dir)
	}

	if isNull(tests) {
		return a, nil
	}
	if tests.Kind != yaml.SequenceNode {
		return nil, invalid(file, tests, "tests of assignment %q must be a list", a.Name)
	}
	for i, item := range tests.Content {
		test, err := parseTest(file, a.Name, i+1, resolve(item))
		if err != nil {
			return nil, err
		}
		a.Tests = append(a.Tests, test)
	}
	return a, nil
}

func parseTest(file, assignment string, position int, node *yaml.Node) (Test, error) {
	test := Test{Position: position}
	if isNull(node) {
		return test, nil
	}
	if node.Kind != yaml.MappingNode {
		return test, invalid(file, node, "test %d of assignment %q must be a mapping", position, assignment)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]
		field := fmt.Sprintf("%s test %d %s", assignment, position, key)
		var err error
		switch key {
		case "name":
			test.Name, err = scalar(file, value, field)
		case "arguments":
			test.Arguments, err = scalar(file, value, field)
		case "check":
			if test.Check, err = scalar(file, value, field); err == nil {
				err = checkTemplate(file, value, field, test.Check, template.RunKeys)
			}
		case "optional":
			test.Optional, err = boolField(file, value, field)
		case "timeout":
			test.Timeout, err = timeout(file, value, field)
		}
		if err != nil {
			return test, err
		}
	}
	return test, nil
}

func (c *Config) loadParticipants(file string, node *yaml.Node) error {
	add := func(name string) {
		if _, ok := c.participants[name]; ok {
			return
		}
		c.participants[name] = struct{}{}
		c.participantOr = append(c.participantOr, name)
	}
	switch {
	case isNull(node):
	case node.Kind == yaml.SequenceNode:
		for _, item := range node.Content {
			name, err := scalar(file, item, "participant")
			if err != nil {
				return err
			}
			add(name)
		}
	case node.Kind == yaml.MappingNode:
		for i := 0; i < len(node.Content); i += 2 {
			add(node.Content[i].Value)
		}
	default:
		return invalid(file, node, "participants must be a list or a mapping")
	}
	return nil
}

func (c *Config) loadSubmissions(file string, node *yaml.Node) error {
	if isNull(node) {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return invalid(file, node, "submissions must be a mapping of assignment name to participants")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		group := &SubmissionGroup{Assignment: node.Content[i].Value}
		participants := resolve(node.Content[i+1])
		if !isNull(participants) {
			if participants.Kind != yaml.MappingNode {
				return invalid(file, participants, "submissions of %q must be a mapping of participant to submission", group.Assignment)
			}
			for j := 0; j+1 < len(participants.Content); j += 2 {
				key := participants.Content[j]
				group.Entries = append(group.Entries, &Entry{
					Assignment:  group.Assignment,
					Participant: key.Value,
					Line:        key.Line,
					raw:         participants.Content[j+1],
				})
			}
		}
		c.Submissions = append(c.Submissions, group)
	}
	return nil
}

// LookupAssignment finds an assignment by name.
func (c *Config) LookupAssignment(name string) (*Assignment, bool) {
	a, ok := c.assignments[name]
	return a, ok
}

// Language finds a language by name.
func (c *Config) Language(name string) (*Language, bool) {
	l, ok := c.languages[name]
	return l, ok
}

// IsParticipant reports registry membership.
func (c *Config) IsParticipant(name string) bool {
	_, ok := c.participants[name]
	return ok
}

// Participants returns the registered participants in document order.
func (c *Config) Participants() []string {
	return c.participantOr
}

// EntriesFor returns the participant's submission entries in document order.
func (c *Config) EntriesFor(participant string) []*Entry {
	var entries []*Entry
	for _, group := range c.Submissions {
		for _, entry := range group.Entries {
			if entry.Participant == participant {
				entries = append(entries, entry)
			}
		}
	}
	return entries
}

type dumpLanguage struct {
	Name         string `yaml:"name"`
	Compile      string `yaml:"compile,omitempty"`
	Call         string `yaml:"call,omitempty"`
	Check        string `yaml:"check,omitempty"`
	Suffix       string `yaml:"suffix,omitempty"`
	CondaInstall string `yaml:"conda-install,omitempty"`
	Timeout      string `yaml:"timeout,omitempty"`
}

type dumpAssignment struct {
	Name      string   `yaml:"name"`
	Directory string   `yaml:"directory"`
	Tests     []string `yaml:"tests,omitempty"`
}

type dump struct {
	Languages    []dumpLanguage   `yaml:"languages"`
	Assignments  []dumpAssignment `yaml:"assignments"`
	Participants []string         `yaml:"participants"`
}

// Dump renders the loaded configuration as YAML for debug logging.
func (c *Config) Dump() string {
	var d dump
	for _, name := range c.languageOrder {
		l := c.languages[name]
		dl := dumpLanguage{
			Name: l.Name, Compile: l.Compile, Call: l.Call, Check: l.Check,
			Suffix: l.Suffix, CondaInstall: l.CondaInstall,
		}
		if l.Timeout > 0 {
			dl.Timeout = l.Timeout.String()
		}
		d.Languages = append(d.Languages, dl)
	}
	for _, a := range c.Assignments {
		da := dumpAssignment{Name: a.Name, Directory: a.Directory}
		for _, t := range a.Tests {
			desc, _ := t.Description()
			da.Tests = append(da.Tests, desc)
		}
		d.Assignments = append(d.Assignments, da)
	}
	d.Participants = c.participantOr
	out, err := yaml.Marshal(d)
	if err != nil {
		return err.Error()
	}
	return string(out)
}
