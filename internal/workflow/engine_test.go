package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/qualify-cli/internal/apperr"
	"github.com/sells-group/qualify-cli/internal/cache"
	"github.com/sells-group/qualify-cli/internal/llm"
	"github.com/sells-group/qualify-cli/internal/model"
	"github.com/sells-group/qualify-cli/internal/stage"
)

const (
	triageRich   = `{"lead_score": 82, "data_richness": 80, "recommendation": "proceed", "niche": "coffee"}`
	triageSparse = `{"lead_score": 40, "data_richness": 50, "recommendation": "review"}`
	triageSkip   = `{"lead_score": 5, "data_richness": 20, "recommendation": "skip"}`
	preprocessOK = "```json\n{\"summary\": \"Coffee content\", \"themes\": [\"espresso\"]}\n```"
	analysisOK   = `{"fit_score": 78, "qualification": "qualified", "summary": "Strong match"}`
)

func newEngine(t *testing.T, exec llm.Executor, opts ...Option) *Engine {
	t.Helper()
	reg, err := LoadRegistry("")
	require.NoError(t, err)
	tbl, err := stage.NewTable()
	require.NoError(t, err)
	return NewEngine(reg, tbl, llm.NewSelector(0), exec, opts...)
}

func newCustomEngine(t *testing.T, exec llm.Executor, defs ...Definition) *Engine {
	t.Helper()
	reg, err := NewRegistry(defs...)
	require.NoError(t, err)
	tbl, err := stage.NewTable()
	require.NoError(t, err)
	return NewEngine(reg, tbl, llm.NewSelector(0), exec)
}

func newContext(tier model.Tier) *PipelineContext {
	return newContextAt(model.DepthDeep, tier)
}

func newContextAt(depth model.Depth, tier model.Tier) *PipelineContext {
	p := &model.Profile{
		Username:       "acme",
		FollowersCount: 12000,
		Bio:            "Coffee roasters",
		Posts:          []model.Post{{Caption: "beans", Likes: 10}},
	}
	return NewPipelineContext(p.WithEngagement(), model.Business{Name: "Beanery"}, depth, tier)
}

func schemaOrder(m *mockExecutor) []string {
	var out []string
	for _, c := range m.Calls {
		out = append(out, c.Arguments.Get(1).(llm.UniversalRequest).SchemaName)
	}
	return out
}

func TestExecute_AutoRunsPreprocessWhenDataRich(t *testing.T) {
	m := &mockExecutor{}
	m.On("ExecuteRequest", mock.Anything, forSchema("triage")).Return(reply(llm.ModelHaiku, triageRich), nil)
	m.On("ExecuteRequest", mock.Anything, forSchema("preprocess")).Return(reply(llm.ModelHaiku, preprocessOK), nil)
	m.On("ExecuteRequest", mock.Anything, forSchema("analysis")).Return(reply(llm.ModelOpus, analysisOK), nil)

	res, err := newEngine(t, m).Execute(context.Background(), "auto", newContext(model.TierBalanced))
	require.NoError(t, err)

	assert.Equal(t, "auto", res.Workflow)
	assert.Equal(t, []string{"triage", "preprocess", "analysis"}, res.Order)
	assert.Equal(t, []string{"triage", "preprocess", "analysis"}, schemaOrder(m))
	assert.Empty(t, res.Skipped)
	require.Len(t, res.Records, 3)
	for _, r := range res.Records {
		assert.Equal(t, StatusCompleted, r.Status)
		assert.Equal(t, 0.001, r.CostUSD)
	}

	a, ok := res.Latest(model.KindAnalysis).(*stage.Analysis)
	require.True(t, ok)
	assert.Equal(t, "qualified", a.Qualification)
}

func TestExecute_AutoSkipsPreprocessWhenSparse(t *testing.T) {
	m := &mockExecutor{}
	m.On("ExecuteRequest", mock.Anything, forSchema("triage")).Return(reply(llm.ModelHaiku, triageSparse), nil)
	m.On("ExecuteRequest", mock.Anything, forSchema("analysis")).Return(reply(llm.ModelSonnet, analysisOK), nil)

	res, err := newEngine(t, m).Execute(context.Background(), "auto", newContext(model.TierBalanced))
	require.NoError(t, err)
	assert.Equal(t, []string{"preprocess"}, res.Skipped)
	assert.Len(t, res.Records, 2, "skipped stages have no cost record")
	m.AssertNotCalled(t, "ExecuteRequest", mock.Anything, forSchema("preprocess"))
}

func TestExecute_ThreadsPriorOutputsIntoPrompts(t *testing.T) {
	m := &mockExecutor{}
	m.On("ExecuteRequest", mock.Anything, forSchema("triage")).Return(reply(llm.ModelHaiku, triageRich), nil)
	m.On("ExecuteRequest", mock.Anything, forSchema("preprocess")).Return(reply(llm.ModelHaiku, preprocessOK), nil)
	m.On("ExecuteRequest", mock.Anything, mock.MatchedBy(func(r llm.UniversalRequest) bool {
		return r.SchemaName == "analysis" &&
			strings.Contains(r.User, "lead_score=82") &&
			strings.Contains(r.User, "Content brief: Coffee content")
	})).Return(reply(llm.ModelOpus, analysisOK), nil)

	_, err := newEngine(t, m).Execute(context.Background(), "auto", newContext(model.TierBalanced))
	require.NoError(t, err)
	m.AssertExpectations(t)
}

func TestExecute_HighLeadScoreUpgradesBalancedTier(t *testing.T) {
	m := &mockExecutor{}
	m.On("ExecuteRequest", mock.Anything, forSchema("triage")).Return(reply(llm.ModelHaiku, triageRich), nil)
	m.On("ExecuteRequest", mock.Anything, forSchema("preprocess")).Return(reply(llm.ModelSonnet, preprocessOK), nil)
	m.On("ExecuteRequest", mock.Anything, forSchema("analysis")).Return(reply(llm.ModelOpus, analysisOK), nil)

	_, err := newEngine(t, m).Execute(context.Background(), "auto", newContext(model.TierBalanced))
	require.NoError(t, err)

	models := map[string]string{}
	for _, c := range m.Calls {
		r := c.Arguments.Get(1).(llm.UniversalRequest)
		models[r.SchemaName] = r.Model
	}
	assert.Equal(t, llm.ModelHaiku, models["triage"], "no signal before triage")
	assert.Equal(t, llm.ModelOpus, models["analysis"])
}

func TestExecute_RequiredFailureAborts(t *testing.T) {
	m := &mockExecutor{}
	provErr := &apperr.ProviderError{Model: llm.ModelSonnet, Err: errors.New("503")}
	m.On("ExecuteRequest", mock.Anything, forSchema("triage")).Return(reply(llm.ModelHaiku, triageSparse), nil)
	m.On("ExecuteRequest", mock.Anything, forSchema("analysis")).Return(nil, provErr)

	res, err := newEngine(t, m).Execute(context.Background(), "auto", newContext(model.TierBalanced))
	require.Error(t, err)

	var se *apperr.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "analysis", se.Stage)
	assert.ErrorIs(t, err, provErr)

	require.NotNil(t, res)
	assert.Nil(t, res.Outputs, "no partial outputs on abort")
	require.Len(t, res.Records, 2)
	assert.Equal(t, StatusFailed, res.Records[1].Status)
	assert.NotEmpty(t, res.Records[1].Error)
}

func TestExecute_OptionalFailureContinues(t *testing.T) {
	m := &mockExecutor{}
	m.On("ExecuteRequest", mock.Anything, forSchema("triage")).Return(reply(llm.ModelHaiku, triageRich), nil)
	m.On("ExecuteRequest", mock.Anything, forSchema("preprocess")).Return(reply(llm.ModelHaiku, "sorry, cannot help"), nil)
	m.On("ExecuteRequest", mock.Anything, forSchema("analysis")).Return(reply(llm.ModelOpus, analysisOK), nil)

	res, err := newEngine(t, m).Execute(context.Background(), "auto", newContext(model.TierBalanced))
	require.NoError(t, err)

	_, ok := res.Outputs["preprocess"]
	assert.False(t, ok)
	assert.Equal(t, []string{"triage", "analysis"}, res.Order)
	require.Len(t, res.Records, 3)
	assert.Equal(t, StatusFailed, res.Records[1].Status)
	assert.Equal(t, 0.001, res.Records[1].CostUSD, "a failed stage still records its spend")
}

func TestExecute_RequiredValidationFailure(t *testing.T) {
	m := &mockExecutor{}
	m.On("ExecuteRequest", mock.Anything, forSchema("triage")).Return(reply(llm.ModelGPT4oMini, `{"lead_score": 900}`), nil)

	_, err := newEngine(t, m).Execute(context.Background(), "light", newContext(model.TierEconomy))
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "triage", ve.Stage)
	m.AssertNumberOfCalls(t, "ExecuteRequest", 1)
}

func TestExecute_AnalysisSkippedOnTriageSkip(t *testing.T) {
	m := &mockExecutor{}
	m.On("ExecuteRequest", mock.Anything, forSchema("triage")).Return(reply(llm.ModelGPT4oMini, triageSkip), nil)

	res, err := newEngine(t, m).Execute(context.Background(), "light", newContext(model.TierEconomy))
	require.NoError(t, err)
	assert.Equal(t, []string{"analysis"}, res.Skipped)
	assert.Nil(t, res.Latest(model.KindAnalysis))
}

func TestExecute_UnknownWorkflow(t *testing.T) {
	_, err := newEngine(t, &mockExecutor{}).Execute(context.Background(), "turbo", newContext(model.TierEconomy))
	assert.True(t, apperr.IsConfiguration(err))
}

func TestExecute_Cancelled(t *testing.T) {
	m := &mockExecutor{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newEngine(t, m).Execute(ctx, "light", newContext(model.TierEconomy))
	assert.ErrorIs(t, err, context.Canceled)
	m.AssertNotCalled(t, "ExecuteRequest", mock.Anything, mock.Anything)
}

func TestExecute_PreprocessCache(t *testing.T) {
	store := cache.NewMemory()
	m := &mockExecutor{}
	m.On("ExecuteRequest", mock.Anything, forSchema("triage")).Return(reply(llm.ModelHaiku, triageRich), nil)
	m.On("ExecuteRequest", mock.Anything, forSchema("preprocess")).Return(reply(llm.ModelHaiku, preprocessOK), nil).Once()
	m.On("ExecuteRequest", mock.Anything, forSchema("analysis")).Return(reply(llm.ModelOpus, analysisOK), nil)

	e := newEngine(t, m, WithStageCache(store, time.Hour))
	_, err := e.Execute(context.Background(), "auto", newContext(model.TierBalanced))
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), "auto", newContext(model.TierBalanced))
	require.NoError(t, err)

	rec := res.Records[1]
	assert.Equal(t, "preprocess", rec.Name)
	assert.Equal(t, StatusCached, rec.Status)
	assert.Zero(t, rec.CostUSD)
	assert.Zero(t, rec.TokensIn)

	pre, ok := res.Outputs["preprocess"].(*stage.Preprocess)
	require.True(t, ok)
	assert.Equal(t, "Coffee content", pre.Summary)
	m.AssertNumberOfCalls(t, "ExecuteRequest", 5)
}

func TestPipelineContext_LatestKindWins(t *testing.T) {
	pc := newContext(model.TierEconomy)
	pc.record("first", model.KindTriage, &stage.Triage{LeadScore: 10})
	pc.record("second", model.KindTriage, &stage.Triage{LeadScore: 90})

	assert.Equal(t, 90.0, pc.stageInput().Triage.LeadScore)
	v, ok := pc.resolve("triage.lead_score")
	require.True(t, ok)
	assert.Equal(t, 90.0, v)
	v, ok = pc.resolve("first.lead_score")
	require.True(t, ok)
	assert.Equal(t, 10.0, v)
}

func TestPipelineContext_KindBeatsStageNamedLikeIt(t *testing.T) {
	pc := newContext(model.TierEconomy)
	pc.record("triage", model.KindTriage, &stage.Triage{LeadScore: 10})
	pc.record("retriage", model.KindTriage, &stage.Triage{LeadScore: 90})

	v, ok := pc.resolve("triage.lead_score")
	require.True(t, ok)
	assert.Equal(t, 90.0, v)
	v, ok = pc.resolve("retriage.lead_score")
	require.True(t, ok)
	assert.Equal(t, 90.0, v)
}

func TestExecute_ConditionsReadLatestTriage(t *testing.T) {
	def := Definition{
		Name: "rescreen",
		Stages: []Stage{
			{Name: "triage", Kind: model.KindTriage, Required: true},
			{Name: "retriage", Kind: model.KindTriage, Required: true},
			{Name: "analysis", Kind: model.KindAnalysis, Required: true, SkipConditions: []Condition{
				{Field: "triage.lead_score", Operator: "<", Value: 15, SkipIfTrue: true},
			}},
		},
	}
	m := &mockExecutor{}
	m.On("ExecuteRequest", mock.Anything, forSchema("triage")).Return(reply(llm.ModelHaiku, triageSkip), nil).Once()
	m.On("ExecuteRequest", mock.Anything, forSchema("triage")).Return(reply(llm.ModelHaiku, triageRich), nil).Once()
	m.On("ExecuteRequest", mock.Anything, forSchema("analysis")).Return(reply(llm.ModelOpus, analysisOK), nil)

	res, err := newCustomEngine(t, m, def).Execute(context.Background(), "rescreen", newContext(model.TierBalanced))
	require.NoError(t, err)

	assert.Empty(t, res.Skipped, "the second screen scored 82, so analysis runs")
	assert.Equal(t, []string{"triage", "retriage", "analysis"}, res.Order)
	tr, ok := res.Latest(model.KindTriage).(*stage.Triage)
	require.True(t, ok)
	assert.Equal(t, 82.0, tr.LeadScore)
}

func TestExecute_MixedPolarityConditions(t *testing.T) {
	def := Definition{
		Name: "gated",
		Stages: []Stage{
			{Name: "triage", Kind: model.KindTriage, Required: true},
			{Name: "preprocess", Kind: model.KindPreprocess, Required: false, SkipConditions: []Condition{
				{Field: "triage.data_richness", Operator: ">", Value: 70, SkipIfTrue: false},
				{Field: "triage.recommendation", Operator: "==", Value: "review", SkipIfTrue: true},
			}},
			{Name: "analysis", Kind: model.KindAnalysis, Required: true},
		},
	}
	tests := []struct {
		name    string
		triage  string
		skipped []string
	}{
		{"rich and proceeding runs", `{"lead_score": 80, "data_richness": 85, "recommendation": "proceed"}`, nil},
		{"rich but under review skips", `{"lead_score": 80, "data_richness": 85, "recommendation": "review"}`, []string{"preprocess"}},
		{"sparse and proceeding skips", `{"lead_score": 80, "data_richness": 40, "recommendation": "proceed"}`, []string{"preprocess"}},
		{"sparse and under review skips", `{"lead_score": 80, "data_richness": 40, "recommendation": "review"}`, []string{"preprocess"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockExecutor{}
			m.On("ExecuteRequest", mock.Anything, forSchema("triage")).Return(reply(llm.ModelHaiku, tt.triage), nil)
			m.On("ExecuteRequest", mock.Anything, forSchema("preprocess")).Return(reply(llm.ModelHaiku, preprocessOK), nil)
			m.On("ExecuteRequest", mock.Anything, forSchema("analysis")).Return(reply(llm.ModelOpus, analysisOK), nil)

			res, err := newCustomEngine(t, m, def).Execute(context.Background(), "gated", newContext(model.TierBalanced))
			require.NoError(t, err)
			assert.Equal(t, tt.skipped, res.Skipped)
			if tt.skipped == nil {
				m.AssertNumberOfCalls(t, "ExecuteRequest", 3)
			} else {
				m.AssertNotCalled(t, "ExecuteRequest", mock.Anything, forSchema("preprocess"))
			}
		})
	}
}

func TestExecute_PreprocessCacheRespectsQuality(t *testing.T) {
	store := cache.NewMemory()
	m := &mockExecutor{}
	m.On("ExecuteRequest", mock.Anything, forSchema("triage")).Return(reply(llm.ModelHaiku, triageRich), nil)
	m.On("ExecuteRequest", mock.Anything, forSchema("preprocess")).Return(reply(llm.ModelHaiku, preprocessOK), nil)
	m.On("ExecuteRequest", mock.Anything, forSchema("analysis")).Return(reply(llm.ModelOpus, analysisOK), nil)

	e := newEngine(t, m, WithStageCache(store, time.Hour))
	preprocessStatus := func(depth model.Depth) string {
		res, err := e.Execute(context.Background(), "auto", newContextAt(depth, model.TierBalanced))
		require.NoError(t, err)
		require.Equal(t, "preprocess", res.Records[1].Name)
		return res.Records[1].Status
	}

	assert.Equal(t, StatusCompleted, preprocessStatus(model.DepthDeep))
	assert.Equal(t, StatusCompleted, preprocessStatus(model.DepthExtended), "a standard entry cannot serve an extended run")
	assert.Equal(t, StatusCached, preprocessStatus(model.DepthDeep), "a rich entry serves a shallower run")
	m.AssertNumberOfCalls(t, "ExecuteRequest", 8)

	env, err := cache.Load(context.Background(), store, preprocessKey(newContext(model.TierBalanced).Profile()), time.Now())
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, string(model.DataQualityRich), env.QualityTag)
}

func TestStoreOutput_KeepsRicherEntry(t *testing.T) {
	store := cache.NewMemory()
	e := newEngine(t, &mockExecutor{}, WithStageCache(store, time.Hour))
	key := preprocessKey(newContext(model.TierBalanced).Profile())
	ctx := context.Background()

	e.storeOutput(ctx, key, &stage.Preprocess{Summary: "full brief"}, model.DepthExtended)
	e.storeOutput(ctx, key, &stage.Preprocess{Summary: "short brief"}, model.DepthDeep)

	env, err := cache.Load(ctx, store, key, time.Now())
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, string(model.DataQualityRich), env.QualityTag)
	var pre stage.Preprocess
	require.NoError(t, env.Decode(&pre))
	assert.Equal(t, "full brief", pre.Summary)

	e.storeOutput(ctx, key, &stage.Preprocess{Summary: "refreshed"}, model.DepthExtended)
	env, err = cache.Load(ctx, store, key, time.Now())
	require.NoError(t, err)
	require.NoError(t, env.Decode(&pre))
	assert.Equal(t, "refreshed", pre.Summary, "an equal quality replaces the entry")
}
