// Package stage defines the closed set of workflow stage kinds. Each kind
// maps to a Spec holding its system prompt, prompt builder, output schema,
// token budget and decoder.
package stage

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"

	"github.com/sells-group/qualify-cli/internal/apperr"
	"github.com/sells-group/qualify-cli/internal/model"
)

// Input is everything a prompt builder may read. The prior-output fields
// hold the most recent output of each kind and are nil until such a stage
// has completed.
type Input struct {
	Profile  *model.Profile
	Business model.Business
	Depth    model.Depth

	Triage     *Triage
	Preprocess *Preprocess
	Context    *BusinessContext
}

// Spec describes how to run and parse one stage kind.
type Spec struct {
	Kind         model.StageKind
	SystemPrompt string
	BuildPrompt  func(in Input) string
	SchemaName   string
	Schema       json.RawMessage
	MaxTokens    func(d model.Depth) int
	Decode       func(data []byte) (any, error)

	compiled *gojsonschema.Schema
}

// Table maps every stage kind to its Spec.
type Table map[model.StageKind]*Spec

// NewTable builds the stage table and compiles each output schema.
func NewTable() (Table, error) {
	specs := []*Spec{
		{
			Kind:         model.KindTriage,
			SystemPrompt: triageSystemPrompt,
			BuildPrompt:  buildTriagePrompt,
			SchemaName:   "triage",
			Schema:       json.RawMessage(triageSchema),
			MaxTokens:    fixedTokens(600),
			Decode:       decodeAs[Triage],
		},
		{
			Kind:         model.KindPreprocess,
			SystemPrompt: preprocessSystemPrompt,
			BuildPrompt:  buildPreprocessPrompt,
			SchemaName:   "preprocess",
			Schema:       json.RawMessage(preprocessSchema),
			MaxTokens:    fixedTokens(1200),
			Decode:       decodeAs[Preprocess],
		},
		{
			Kind:         model.KindAnalysis,
			SystemPrompt: analysisSystemPrompt,
			BuildPrompt:  buildAnalysisPrompt,
			SchemaName:   "analysis",
			Schema:       json.RawMessage(analysisSchema),
			MaxTokens:    analysisTokens,
			Decode:       decodeAs[Analysis],
		},
		{
			Kind:         model.KindContext,
			SystemPrompt: contextSystemPrompt,
			BuildPrompt:  buildContextPrompt,
			SchemaName:   "business_context",
			Schema:       json.RawMessage(contextSchema),
			MaxTokens:    fixedTokens(800),
			Decode:       decodeAs[BusinessContext],
		},
	}

	t := make(Table, len(specs))
	for _, s := range specs {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(s.Schema))
		if err != nil {
			return nil, eris.Wrapf(err, "stage: compile %s schema", s.Kind)
		}
		s.compiled = compiled
		t[s.Kind] = s
	}
	return t, nil
}

// Lookup returns the Spec for kind.
func (t Table) Lookup(kind model.StageKind) (*Spec, error) {
	s, ok := t[kind]
	if !ok {
		return nil, apperr.NewConfigurationError("stage kind", string(kind))
	}
	return s, nil
}

func fixedTokens(n int) func(model.Depth) int {
	return func(model.Depth) int { return n }
}

func analysisTokens(d model.Depth) int {
	switch d {
	case model.DepthExtended:
		return 4000
	case model.DepthDeep:
		return 2500
	default:
		return 1200
	}
}

func decodeAs[T any](data []byte) (any, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
