// Package validator checks submission variants against the configuration
// before anything is executed.
package validator

import (
	"context"
	"os"
	"path/filepath"

	"gitcats/internal/grading/model"
	appErr "gitcats/pkg/errors"
	"gitcats/pkg/utils/logger"

	"go.uber.org/zap"
)

// Catalog resolves assignment and language names.
type Catalog interface {
	LookupAssignment(name string) (*model.Assignment, bool)
	Language(name string) (*model.Language, bool)
}

// Resolved is a variant whose assignment and language exist.
type Resolved struct {
	Assignment  *model.Assignment
	Language    *model.Language
	ProgramPath string
}

// Validator checks variants without running external processes.
type Validator struct {
	catalog Catalog
}

// NewValidator creates a validator over the catalog.
func NewValidator(catalog Catalog) *Validator {
	return &Validator{catalog: catalog}
}

// Validate resolves the variant or explains why it cannot be graded. An
// unset language is defaulted and written back onto the record.
func (v *Validator) Validate(ctx context.Context, participant, assignment string, variant model.Variant) (Resolved, error) {
	resolved, err := v.validate(participant, assignment, variant)
	if err != nil {
		logger.Warn(ctx, err.Error(),
			zap.String("assignment", assignment),
			zap.String("submission", variant.ID.String()))
		return Resolved{}, err
	}
	return resolved, nil
}

func (v *Validator) validate(participant, assignment string, variant model.Variant) (Resolved, error) {
	if variant.Err != nil {
		return Resolved{}, variant.Err
	}

	a, ok := v.catalog.LookupAssignment(assignment)
	if !ok {
		return Resolved{}, appErr.Newf(appErr.AssignmentNotFound,
			"submission name %q is not defined as assignment name", assignment)
	}

	langName := variant.Record.Language()
	if langName == "" {
		langName = model.DefaultLanguage
		variant.Record.SetLanguage(langName)
	}
	lang, ok := v.catalog.Language(langName)
	if !ok {
		return Resolved{}, appErr.Newf(appErr.LanguageNotSupported,
			"language %q of submission %q is not defined", langName, assignment)
	}

	name := model.ProgramName(participant, assignment, variant.ID) + lang.Suffix
	path := filepath.Join(a.Dir, name)
	info, statErr := os.Stat(path)
	if statErr != nil || info.IsDir() {
		return Resolved{}, appErr.Newf(appErr.ProgramFileMissing,
			"program file %s does not exist", filepath.Join(a.Directory, name)).WithDetail("path", path)
	}
	if langName == model.DefaultLanguage && !executable(path) {
		return Resolved{}, appErr.Newf(appErr.ProgramNotExecutable,
			"program file %s is not executable", filepath.Join(a.Directory, name)).WithDetail("path", path)
	}

	return Resolved{Assignment: a, Language: lang, ProgramPath: path}, nil
}
