// Package qualify is the orchestration facade: it turns a profile
// reference, a business and a depth into one Outcome by driving
// acquisition, then workflow execution, then result shaping.
package qualify

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sells-group/qualify-cli/internal/acquire"
	"github.com/sells-group/qualify-cli/internal/apperr"
	"github.com/sells-group/qualify-cli/internal/cost"
	"github.com/sells-group/qualify-cli/internal/model"
	"github.com/sells-group/qualify-cli/internal/stage"
	"github.com/sells-group/qualify-cli/internal/tracing"
	"github.com/sells-group/qualify-cli/internal/workflow"
)

// Acquirer fetches profiles.
type Acquirer interface {
	Acquire(ctx context.Context, subject string, depth model.Depth) (*acquire.Result, error)
}

// Runner executes workflows.
type Runner interface {
	Execute(ctx context.Context, name string, pc *workflow.PipelineContext) (*workflow.Result, error)
}

// Options tunes one analysis. Zero values pick depth defaults.
type Options struct {
	Workflow string     `json:"workflow,omitempty"`
	Tier     model.Tier `json:"tier,omitempty"`
}

// Service runs analyses.
type Service struct {
	acquirer Acquirer
	runner   Runner
	credits  cost.CreditPolicy
	validate *validator.Validate
	now      func() time.Time
}

// NewService creates a Service.
func NewService(acquirer Acquirer, runner Runner, credits cost.CreditPolicy) *Service {
	return &Service{
		acquirer: acquirer,
		runner:   runner,
		credits:  credits,
		validate: validator.New(),
		now:      time.Now,
	}
}

// RunAnalysis qualifies the profile behind profileRef against business.
// It never returns nil; failures are reported through the Outcome's error
// verdict with cost limited to the stages that ran.
func (s *Service) RunAnalysis(ctx context.Context, profileRef string, business model.Business, depth model.Depth, opts Options) *Outcome {
	start := s.now()
	out := &Outcome{
		RunID: uuid.NewString(),
		Depth: depth,
		Cost:  Cost{Stages: []workflow.StageRecord{}},
		Performance: Performance{
			Stages: map[string]int64{},
		},
	}
	defer func() { out.Performance.TotalMs = s.now().Sub(start).Milliseconds() }()

	ctx, span := tracing.StartSpan(ctx, "analysis",
		attribute.String(tracing.RunIDKey, out.RunID),
		attribute.String(tracing.DepthKey, string(depth)),
	)
	defer span.End()

	log := zap.L().With(zap.String("run_id", out.RunID))

	fail := func(err error) *Outcome {
		tracing.SetError(span, err)
		out.Verdict = model.VerdictError
		out.Error = apperr.UserMessage(err)
		out.err = err
		if kind := apperr.AcquisitionKindOf(err); kind != "" {
			out.ErrorKind = string(kind)
		}
		log.Warn("qualify: analysis failed", zap.String("subject", out.Subject), zap.Error(err))
		return out
	}

	if !depth.Valid() {
		return fail(apperr.NewConfigurationError("depth", string(depth)))
	}
	subject, err := model.ParseProfileRef(profileRef)
	if err != nil {
		return fail(&apperr.InputError{Field: "profile reference", Reason: err.Error()})
	}
	out.Subject = subject
	span.SetAttributes(attribute.String(tracing.SubjectKey, subject))
	if err := s.validate.Struct(business); err != nil {
		return fail(&apperr.InputError{Field: "business", Reason: "name is required"})
	}

	tier := opts.Tier
	if tier == "" {
		tier = depth.DefaultTier()
	}
	if !tier.Valid() {
		return fail(apperr.NewConfigurationError("tier", string(tier)))
	}
	out.Workflow = opts.Workflow
	if out.Workflow == "" {
		out.Workflow = string(depth)
	}

	acqStart := s.now()
	acq, err := s.acquirer.Acquire(ctx, subject, depth)
	out.Performance.AcquisitionMs = s.now().Sub(acqStart).Milliseconds()
	if err != nil {
		return fail(err)
	}
	out.Performance.CacheHit = acq.CacheHit

	wfStart := s.now()
	pc := workflow.NewPipelineContext(acq.Profile, business, depth, tier)
	res, err := s.runner.Execute(ctx, out.Workflow, pc)
	out.Performance.WorkflowMs = s.now().Sub(wfStart).Milliseconds()
	if res != nil {
		s.attribute(out, res.Records)
	}
	if err != nil {
		return fail(err)
	}

	v, err := verdict(res)
	if err != nil {
		return fail(err)
	}
	out.Cost.Credits = s.credits.Credits(depth, out.Cost.ActualUSD, out.Cost.TokensIn+out.Cost.TokensOut)
	out.Result = shape(acq.Profile, res)
	out.Verdict = v

	log.Info("qualify: analysis complete",
		zap.String("subject", subject),
		zap.String("workflow", out.Workflow),
		zap.String("verdict", string(out.Verdict)),
		zap.Float64("cost_usd", out.Cost.ActualUSD),
		zap.Float64("credits", out.Cost.Credits),
	)
	return out
}

// attribute sums the records of every stage that ran.
func (s *Service) attribute(out *Outcome, records []workflow.StageRecord) {
	var sum cost.Summary
	for _, r := range records {
		sum.Add(r.TokensIn, r.TokensOut, r.CostUSD)
		out.Performance.Stages[r.Name] = r.DurationMs
	}
	out.Cost.ActualUSD = sum.USD
	out.Cost.TokensIn = sum.TokensIn
	out.Cost.TokensOut = sum.TokensOut
	out.Cost.Stages = append(out.Cost.Stages, records...)
}

func shape(p *model.Profile, res *workflow.Result) *Result {
	r := &Result{Profile: p, Stages: res.Outputs, Skipped: res.Skipped}
	r.Context, _ = res.Latest(model.KindContext).(*stage.BusinessContext)
	r.Triage, _ = res.Latest(model.KindTriage).(*stage.Triage)
	r.Brief, _ = res.Latest(model.KindPreprocess).(*stage.Preprocess)
	r.Analysis, _ = res.Latest(model.KindAnalysis).(*stage.Analysis)
	return r
}

// verdict is early_exit when no analysis output exists because analysis
// stages were skipped. A run that ends without analysis for any other reason
// is an error.
func verdict(res *workflow.Result) (model.Verdict, error) {
	if res.Latest(model.KindAnalysis) != nil {
		return model.VerdictSuccess, nil
	}
	if res.SkippedKind(model.KindAnalysis) {
		return model.VerdictEarlyExit, nil
	}
	return model.VerdictError, &apperr.ValidationError{
		Stage:   string(model.KindAnalysis),
		Details: []string{"workflow " + res.Workflow + " produced no analysis output"},
	}
}
