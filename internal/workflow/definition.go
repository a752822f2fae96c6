// Package workflow runs named, ordered stage sequences with conditional
// skips, threading each stage's output into later prompts and conditions
// and recording per-stage cost and timing.
package workflow

import (
	_ "embed"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/qualify-cli/internal/apperr"
	"github.com/sells-group/qualify-cli/internal/model"
)

//go:embed workflows.yaml
var builtinWorkflows []byte

// Condition is one skip condition on a stage.
type Condition struct {
	Field      string `yaml:"field" json:"field" validate:"required"`
	Operator   string `yaml:"operator" json:"operator" validate:"oneof=> < == contains"`
	Value      any    `yaml:"value" json:"value"`
	SkipIfTrue bool   `yaml:"skip_if_true" json:"skip_if_true"`
}

// Stage is a declaration of one unit of work.
type Stage struct {
	Name           string          `yaml:"name" json:"name" validate:"required"`
	Kind           model.StageKind `yaml:"kind" json:"kind" validate:"required"`
	Required       bool            `yaml:"required" json:"required"`
	SkipConditions []Condition     `yaml:"skip_conditions" json:"skip_conditions,omitempty" validate:"dive"`
}

// Definition is a named, ordered list of stages.
type Definition struct {
	Name        string  `yaml:"name" json:"name" validate:"required"`
	Description string  `yaml:"description" json:"description,omitempty"`
	Stages      []Stage `yaml:"stages" json:"stages" validate:"required,min=1,dive"`
}

type definitionFile struct {
	Workflows []Definition `yaml:"workflows"`
}

// Registry holds validated workflow definitions keyed by name.
type Registry struct {
	defs map[string]Definition
}

// LoadRegistry parses the built-in definitions and, when overridePath is
// set, the definitions in that file. An override replaces the built-in
// workflow of the same name.
func LoadRegistry(overridePath string) (*Registry, error) {
	defs, err := parseDefinitions(builtinWorkflows)
	if err != nil {
		return nil, eris.Wrap(err, "workflow: builtin definitions")
	}

	if overridePath != "" {
		data, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, eris.Wrapf(err, "workflow: read %s", overridePath)
		}
		extra, err := parseDefinitions(data)
		if err != nil {
			return nil, eris.Wrapf(err, "workflow: %s", overridePath)
		}
		defs = append(defs, extra...)
	}
	return NewRegistry(defs...)
}

// NewRegistry validates defs and indexes them by name. Later definitions
// win over earlier ones with the same name.
func NewRegistry(defs ...Definition) (*Registry, error) {
	v := validator.New()
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if err := v.Struct(d); err != nil {
			return nil, eris.Wrapf(err, "workflow: invalid definition %q", d.Name)
		}
		if err := checkStages(d); err != nil {
			return nil, err
		}
		r.defs[d.Name] = d
	}
	return r, nil
}

func parseDefinitions(data []byte) ([]Definition, error) {
	var f definitionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "workflow: parse yaml")
	}
	return f.Workflows, nil
}

// checkStages enforces unique stage names, known kinds, and conditions that
// only look at context fields or earlier stages.
func checkStages(d Definition) error {
	seenNames := map[string]bool{}
	seenKinds := map[string]bool{}
	for _, s := range d.Stages {
		if !s.Kind.Valid() {
			return eris.Wrapf(apperr.NewConfigurationError("stage kind", string(s.Kind)), "workflow: %s stage %s", d.Name, s.Name)
		}
		if seenNames[s.Name] {
			return eris.Errorf("workflow: %s has duplicate stage %q", d.Name, s.Name)
		}
		for _, c := range s.SkipConditions {
			root, _, _ := strings.Cut(c.Field, ".")
			if contextRoots[root] || seenNames[root] || seenKinds[root] {
				continue
			}
			return eris.Errorf("workflow: %s stage %s condition reads %q, which is not a context field or an earlier stage", d.Name, s.Name, c.Field)
		}
		seenNames[s.Name] = true
		seenKinds[string(s.Kind)] = true
	}
	return nil
}

// Get returns the named definition.
func (r *Registry) Get(name string) (Definition, error) {
	d, ok := r.defs[name]
	if !ok {
		return Definition{}, apperr.NewConfigurationError("workflow", name)
	}
	return d, nil
}

// List returns all definitions sorted by name.
func (r *Registry) List() []Definition {
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
