// Package environment provisions per-language execution environments.
//
// Environments are keyed by the dependency spec alone, so two languages
// with the same spec share one environment.
package environment

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"gitcats/internal/grading/model"
	"gitcats/internal/grading/sandbox/engine"
	"gitcats/internal/grading/sandbox/runner"
	"gitcats/internal/grading/sandbox/spec"
	"gitcats/internal/grading/template"
	appErr "gitcats/pkg/errors"
	"gitcats/pkg/utils/logger"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// KeyPrefix starts every environment key.
const KeyPrefix = "__gitcats-"

var nonWord = regexp.MustCompile(`\W+`)

// DeriveKey maps a dependency spec to its environment name.
func DeriveKey(dependencySpec string) string {
	return KeyPrefix + nonWord.ReplaceAllString(dependencySpec, "_")
}

// Tooling holds the shell snippets of the provisioning tool.
type Tooling struct {
	Create     string `yaml:"create"`
	Remove     string `yaml:"remove"`
	Activate   string `yaml:"activate"`
	Deactivate string `yaml:"deactivate"`
}

// DefaultTooling drives conda.
func DefaultTooling() Tooling {
	return Tooling{
		Create:     "conda create -y -n {env} {spec}",
		Remove:     "conda env remove -y -n {env}",
		Activate:   "source activate {env}",
		Deactivate: "source deactivate",
	}
}

func (t *Tooling) applyDefaults() {
	def := DefaultTooling()
	if t.Create == "" {
		t.Create = def.Create
	}
	if t.Remove == "" {
		t.Remove = def.Remove
	}
	if t.Activate == "" {
		t.Activate = def.Activate
	}
	if t.Deactivate == "" {
		t.Deactivate = def.Deactivate
	}
}

// Manager creates and removes environments through the engine.
type Manager struct {
	eng     engine.Engine
	tooling Tooling
}

// NewManager validates the tooling snippets and creates a manager.
func NewManager(eng engine.Engine, tooling Tooling) (*Manager, error) {
	tooling.applyDefaults()
	for name, snippet := range map[string]string{
		"create":     tooling.Create,
		"remove":     tooling.Remove,
		"activate":   tooling.Activate,
		"deactivate": tooling.Deactivate,
	} {
		if err := template.Validate(snippet, template.EnvKeys); err != nil {
			return nil, appErr.Wrapf(err, appErr.TemplateInvalid, "environment %s snippet %q: %v", name, snippet, err)
		}
	}
	return &Manager{eng: eng, tooling: tooling}, nil
}

func (m *Manager) expand(snippet, key, dependencySpec string) string {
	// Snippets are validated in NewManager and every key has a value.
	out, _ := template.Expand(snippet, map[string]string{
		template.KeyEnv:  spec.Quote(key),
		template.KeySpec: dependencySpec,
	})
	return out
}

// Ensure provisions the language's environment unless it needs none or the
// run already attempted it. Concurrent callers for one key share the first attempt.
func (m *Manager) Ensure(ctx context.Context, lang *model.Language, reg *Registry) bool {
	if lang.CondaInstall == "" {
		return true
	}
	key := DeriveKey(lang.CondaInstall)
	if reg.Seen(key) {
		return true
	}
	v, _, _ := reg.group.Do(key, func() (interface{}, error) {
		if reg.Seen(key) {
			return true, nil
		}
		ok := m.create(ctx, key, lang.CondaInstall)
		reg.record(key, ok)
		return ok, nil
	})
	return v.(bool)
}

func (m *Manager) create(ctx context.Context, key, dependencySpec string) bool {
	logger.Info(ctx, "create environment", zap.String("env", key), zap.String("spec", dependencySpec))
	script := spec.ScriptSpec{
		Label:   "env-create",
		Command: m.expand(m.tooling.Create, key, dependencySpec),
	}
	debug := logger.DebugEnabled()
	if !debug {
		// Tool progress is shown at debug level only.
		script.StdoutPath = os.DevNull
	}
	res, err := m.eng.Execute(ctx, script)
	if debug {
		logger.Debug(ctx, "environment tool output", zap.String("env", key), zap.String("output", res.Output))
	}
	if err == nil && !res.OK() {
		err = fmt.Errorf("exit code %d: %s", res.ExitCode, res.Output)
	}
	if err != nil {
		logger.Error(ctx, "failure to create environment",
			zap.String("env", key),
			zap.Error(appErr.Wrapf(err, appErr.EnvironmentCreateFailed, "create environment %s: %v", key, err)))
		return false
	}
	return true
}

// Scope returns the activation of the language's environment, empty when
// the language needs none or provisioning did not succeed.
func (m *Manager) Scope(lang *model.Language, reg *Registry) runner.Scope {
	if lang.CondaInstall == "" {
		return runner.Scope{}
	}
	key := DeriveKey(lang.CondaInstall)
	if !reg.Created(key) {
		return runner.Scope{}
	}
	return runner.Scope{
		Activate:   m.expand(m.tooling.Activate, key, lang.CondaInstall),
		Deactivate: m.expand(m.tooling.Deactivate, key, lang.CondaInstall),
	}
}

// Cleanup removes every environment registered in the run. Keys are handed
// out once, so repeated calls do nothing. Removal errors are returned
// combined for logging; every key is attempted.
func (m *Manager) Cleanup(ctx context.Context, reg *Registry) error {
	var errs error
	for _, key := range reg.drain() {
		logger.Info(ctx, "remove environment", zap.String("env", key))
		res, err := m.eng.Execute(ctx, spec.ScriptSpec{
			Label:   "env-remove",
			Command: m.expand(m.tooling.Remove, key, ""),
		})
		if err == nil && !res.OK() {
			err = fmt.Errorf("exit code %d: %s", res.ExitCode, res.Output)
		}
		if err != nil {
			logger.Warn(ctx, "failure to remove environment", zap.String("env", key), zap.Error(err))
			errs = multierr.Append(errs, appErr.Wrapf(err, appErr.EnvironmentRemoveFailed, "remove environment %s: %v", key, err))
		}
	}
	return errs
}
