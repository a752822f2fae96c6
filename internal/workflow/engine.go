package workflow

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sells-group/qualify-cli/internal/apperr"
	"github.com/sells-group/qualify-cli/internal/cache"
	"github.com/sells-group/qualify-cli/internal/llm"
	"github.com/sells-group/qualify-cli/internal/model"
	"github.com/sells-group/qualify-cli/internal/stage"
	"github.com/sells-group/qualify-cli/internal/tracing"
)

// Stage record statuses.
const (
	StatusCompleted = "completed"
	StatusCached    = "cached"
	StatusFailed    = "failed"
)

// StageRecord is the cost and timing of one executed stage. Skipped stages
// have no record.
type StageRecord struct {
	Name       string          `json:"name"`
	Kind       model.StageKind `json:"kind"`
	Status     string          `json:"status"`
	Model      string          `json:"model,omitempty"`
	TokensIn   int             `json:"tokens_in"`
	TokensOut  int             `json:"tokens_out"`
	CostUSD    float64         `json:"cost_usd"`
	DurationMs int64           `json:"duration_ms"`
	Error      string          `json:"error,omitempty"`
}

// Result is the outcome of one workflow execution.
type Result struct {
	Workflow string
	// Outputs holds each completed stage's decoded output by stage name.
	Outputs map[string]any
	// Order lists the keys of Outputs in execution order.
	Order   []string
	Records []StageRecord
	Skipped []string

	latest       map[model.StageKind]any
	skippedKinds map[model.StageKind]bool
}

// Latest returns the most recent output of kind, or nil.
func (r *Result) Latest(kind model.StageKind) any {
	return r.latest[kind]
}

// SkippedKind reports whether any stage of kind was skipped.
func (r *Result) SkippedKind(kind model.StageKind) bool {
	return r.skippedKinds[kind]
}

// Option configures an Engine.
type Option func(*Engine)

// WithStageCache caches preprocess outputs in store for ttl.
func WithStageCache(store cache.Store, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cache = store
		e.cacheTTL = ttl
	}
}

// Engine executes workflow definitions.
type Engine struct {
	registry *Registry
	stages   stage.Table
	selector *llm.Selector
	exec     llm.Executor

	cache    cache.Store
	cacheTTL time.Duration
	now      func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(registry *Registry, stages stage.Table, selector *llm.Selector, exec llm.Executor, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		stages:   stages,
		selector: selector,
		exec:     exec,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the engine's workflow definitions.
func (e *Engine) Registry() *Registry { return e.registry }

// Execute runs the named workflow against pc. Stages run strictly in order.
// A required stage failure aborts the run with a StageError; the returned
// Result then has no outputs but still lists the records of every stage that
// ran, so spend up to the failure can be attributed.
func (e *Engine) Execute(ctx context.Context, name string, pc *PipelineContext) (*Result, error) {
	def, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "workflow",
		attribute.String(tracing.WorkflowKey, name),
		attribute.String(tracing.DepthKey, string(pc.Depth())),
	)
	defer span.End()

	log := zap.L().With(zap.String("workflow", name))
	res := &Result{Workflow: name, skippedKinds: map[model.StageKind]bool{}}

	for _, st := range def.Stages {
		if err := ctx.Err(); err != nil {
			tracing.SetError(span, err)
			return &Result{Workflow: name, Records: res.Records}, eris.Wrap(err, "workflow: cancelled")
		}

		if skip, why := shouldSkip(st.SkipConditions, pc); skip {
			log.Info("workflow: stage skipped", zap.String("stage", st.Name), zap.String("reason", why))
			res.Skipped = append(res.Skipped, st.Name)
			res.skippedKinds[st.Kind] = true
			continue
		}

		out, rec, err := e.runStage(ctx, st, pc)
		res.Records = append(res.Records, rec)
		if err != nil {
			if st.Required {
				log.Error("workflow: required stage failed", zap.String("stage", st.Name), zap.Error(err))
				serr := &apperr.StageError{Stage: st.Name, Err: err}
				tracing.SetError(span, serr)
				return &Result{Workflow: name, Records: res.Records, Skipped: res.Skipped}, serr
			}
			log.Warn("workflow: optional stage failed", zap.String("stage", st.Name), zap.Error(err))
			continue
		}
		pc.record(st.Name, st.Kind, out)
	}

	res.Outputs = pc.outputs
	res.Order = pc.order
	res.latest = pc.latest
	return res, nil
}

func (e *Engine) runStage(ctx context.Context, st Stage, pc *PipelineContext) (any, StageRecord, error) {
	start := e.now()
	rec := StageRecord{Name: st.Name, Kind: st.Kind}
	finish := func(status string, err error) StageRecord {
		rec.Status = status
		rec.DurationMs = e.now().Sub(start).Milliseconds()
		if err != nil {
			rec.Error = err.Error()
		}
		return rec
	}

	ctx, span := tracing.StartSpan(ctx, "workflow.stage",
		attribute.String(tracing.StageKey, st.Name),
		attribute.String(tracing.StageKind, string(st.Kind)),
	)
	defer span.End()

	spec, err := e.stages.Lookup(st.Kind)
	if err != nil {
		return nil, finish(StatusFailed, err), err
	}

	var cacheKey string
	if st.Kind == model.KindPreprocess && e.cache != nil {
		cacheKey = preprocessKey(pc.Profile())
		if out, ok := e.cachedOutput(ctx, spec, cacheKey, pc.Depth()); ok {
			return out, finish(StatusCached, nil), nil
		}
	}

	modelID, err := e.selector.Select(st.Kind, pc.Tier(), e.signal(pc))
	if err != nil {
		return nil, finish(StatusFailed, err), err
	}
	rec.Model = modelID
	span.SetAttributes(attribute.String(tracing.ModelKey, modelID))

	in := pc.stageInput()
	resp, err := e.exec.ExecuteRequest(ctx, llm.UniversalRequest{
		Model:      modelID,
		System:     spec.SystemPrompt,
		User:       spec.BuildPrompt(in),
		MaxTokens:  spec.MaxTokens(pc.Depth()),
		Schema:     spec.Schema,
		SchemaName: spec.SchemaName,
	})
	if err != nil {
		tracing.SetError(span, err)
		return nil, finish(StatusFailed, err), err
	}
	rec.Model = resp.ModelUsed
	rec.TokensIn = resp.TokensIn
	rec.TokensOut = resp.TokensOut
	rec.CostUSD = resp.CostUSD

	out, err := spec.Parse(st.Name, resp.Text)
	if err != nil {
		tracing.SetError(span, err)
		return nil, finish(StatusFailed, err), err
	}

	if cacheKey != "" {
		e.storeOutput(ctx, cacheKey, out, pc.Depth())
	}
	return out, finish(StatusCompleted, nil), nil
}

// signal feeds the latest triage lead score to the model selector.
func (e *Engine) signal(pc *PipelineContext) *llm.Signal {
	if t, ok := pc.latest[model.KindTriage].(*stage.Triage); ok && t != nil {
		return &llm.Signal{LeadScore: t.LeadScore}
	}
	return nil
}

// cachedOutput serves a stored stage output only when it was produced at a
// quality at least as rich as depth needs.
func (e *Engine) cachedOutput(ctx context.Context, spec *stage.Spec, key string, depth model.Depth) (any, bool) {
	env, err := cache.Load(ctx, e.cache, key, e.now())
	if err != nil {
		zap.L().Warn("workflow: stage cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if env == nil || model.DataQuality(env.QualityTag).Rank() < depth.Quality().Rank() {
		return nil, false
	}
	out, err := spec.Decode(env.Payload)
	if err != nil {
		return nil, false
	}
	return out, true
}

// storeOutput writes out unless a live entry of higher quality exists.
func (e *Engine) storeOutput(ctx context.Context, key string, out any, depth model.Depth) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	now := e.now()
	quality := depth.Quality()
	if existing, err := cache.Load(wctx, e.cache, key, now); err == nil && existing != nil {
		if model.DataQuality(existing.QualityTag).Rank() > quality.Rank() {
			zap.L().Debug("workflow: keeping richer stage cache entry",
				zap.String("key", key),
				zap.String("cached", existing.QualityTag),
				zap.String("new", string(quality)),
			)
			return
		}
	}

	env, err := cache.NewEnvelope(out, string(quality), e.cacheTTL, now)
	if err == nil {
		err = cache.Save(wctx, e.cache, key, env, now)
	}
	if err != nil {
		zap.L().Warn("workflow: stage cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func preprocessKey(p *model.Profile) string {
	if p == nil {
		return cache.PreprocessKey("", 0, "", nil)
	}
	captions := make([]string, len(p.Posts))
	for i, post := range p.Posts {
		captions[i] = post.Caption
	}
	return cache.PreprocessKey(p.Username, int(p.FollowersCount), p.Bio, captions)
}
