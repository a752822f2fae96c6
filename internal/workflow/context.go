package workflow

import (
	"encoding/json"
	"strings"

	"github.com/sells-group/qualify-cli/internal/model"
	"github.com/sells-group/qualify-cli/internal/stage"
)

// contextRoots are the top-level names conditions may read besides stage
// outputs.
var contextRoots = map[string]bool{
	"profile":  true,
	"business": true,
	"depth":    true,
	"tier":     true,
}

// PipelineContext is the state of one workflow run. It is owned by a single
// Execute call and must not be shared.
type PipelineContext struct {
	profile  *model.Profile
	business model.Business
	depth    model.Depth
	tier     model.Tier

	outputs map[string]any
	order   []string
	latest  map[model.StageKind]any

	// view is the generic form of everything above, used for condition
	// lookups.
	view map[string]any
}

// NewPipelineContext creates the context for one run. Depth and tier are
// fixed for the life of the run.
func NewPipelineContext(p *model.Profile, b model.Business, depth model.Depth, tier model.Tier) *PipelineContext {
	pc := &PipelineContext{
		profile:  p,
		business: b,
		depth:    depth,
		tier:     tier,
		outputs:  make(map[string]any),
		latest:   make(map[model.StageKind]any),
		view: map[string]any{
			"profile":  toGeneric(p),
			"business": toGeneric(b),
			"depth":    string(depth),
			"tier":     string(tier),
		},
	}
	return pc
}

// Depth returns the requested analysis depth.
func (pc *PipelineContext) Depth() model.Depth { return pc.depth }

// Tier returns the model tier for the run.
func (pc *PipelineContext) Tier() model.Tier { return pc.tier }

// Profile returns the acquired profile.
func (pc *PipelineContext) Profile() *model.Profile { return pc.profile }

// Output returns the recorded output of a stage.
func (pc *PipelineContext) Output(name string) (any, bool) {
	v, ok := pc.outputs[name]
	return v, ok
}

// Latest returns the most recent output of a stage kind.
func (pc *PipelineContext) Latest(kind model.StageKind) (any, bool) {
	v, ok := pc.latest[kind]
	return v, ok
}

// record stores a completed stage's output under its name and as the
// latest output of its kind.
func (pc *PipelineContext) record(name string, kind model.StageKind, out any) {
	if _, ok := pc.outputs[name]; !ok {
		pc.order = append(pc.order, name)
	}
	pc.outputs[name] = out
	pc.latest[kind] = out
}

// stageInput builds the prompt input from the context and latest outputs.
func (pc *PipelineContext) stageInput() stage.Input {
	in := stage.Input{Profile: pc.profile, Business: pc.business, Depth: pc.depth}
	if v, ok := pc.latest[model.KindTriage].(*stage.Triage); ok {
		in.Triage = v
	}
	if v, ok := pc.latest[model.KindPreprocess].(*stage.Preprocess); ok {
		in.Preprocess = v
	}
	if v, ok := pc.latest[model.KindContext].(*stage.BusinessContext); ok {
		in.Context = v
	}
	return in
}

// resolve looks up a dotted path in the merged view: context fields first,
// then the latest output of a kind, then stage outputs by name. A kind
// always means its most recent output, even when an earlier stage carries
// the kind's name.
func (pc *PipelineContext) resolve(path string) (any, bool) {
	parts := strings.Split(path, ".")
	root, rest := parts[0], parts[1:]

	var cur any
	switch kind := model.StageKind(root); {
	case contextRoots[root]:
		cur = pc.view[root]
	case kind.Valid() && pc.latest[kind] != nil:
		cur = toGeneric(pc.latest[kind])
	case pc.outputs[root] != nil:
		cur = toGeneric(pc.outputs[root])
	default:
		return nil, false
	}

	for _, p := range rest {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[p]; !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// toGeneric round-trips v through JSON so paths follow the JSON field
// names.
func toGeneric(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
