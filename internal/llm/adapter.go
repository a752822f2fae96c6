package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sells-group/qualify-cli/internal/apperr"
	"github.com/sells-group/qualify-cli/internal/cost"
	"github.com/sells-group/qualify-cli/internal/resilience"
	"github.com/sells-group/qualify-cli/internal/secrets"
	"github.com/sells-group/qualify-cli/internal/tracing"
	"github.com/sells-group/qualify-cli/pkg/anthropic"
	"github.com/sells-group/qualify-cli/pkg/openai"
)

// UniversalRequest is a provider-neutral model call.
type UniversalRequest struct {
	Model       string
	System      string
	User        string
	MaxTokens   int
	Schema      json.RawMessage // optional structured-output constraint
	SchemaName  string
	Temperature *float64
}

// UniversalResponse is a provider-neutral model result.
type UniversalResponse struct {
	Text      string
	TokensIn  int
	TokensOut int
	CostUSD   float64
	ModelUsed string
}

// Executor runs a UniversalRequest.
type Executor interface {
	ExecuteRequest(ctx context.Context, req UniversalRequest) (*UniversalResponse, error)
}

const perplexityBaseURL = "https://api.perplexity.ai"

// Endpoints overrides provider base URLs. Empty fields keep client defaults.
type Endpoints struct {
	Anthropic  string
	OpenAI     string
	Perplexity string
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithRegistry replaces the built-in model table.
func WithRegistry(r Registry) AdapterOption {
	return func(a *Adapter) { a.registry = r }
}

// WithCallTimeout bounds each provider call.
func WithCallTimeout(d time.Duration) AdapterOption {
	return func(a *Adapter) { a.timeout = d }
}

// WithEndpoints overrides provider base URLs.
func WithEndpoints(e Endpoints) AdapterOption {
	return func(a *Adapter) { a.endpoints = e }
}

// WithHTTPClient sets the HTTP client handed to every provider client.
func WithHTTPClient(hc *http.Client) AdapterOption {
	return func(a *Adapter) { a.http = hc }
}

// Adapter dispatches UniversalRequests to provider clients by wire format.
// API keys are resolved per call so rotated secrets are picked up once the
// secret cache expires.
type Adapter struct {
	registry  Registry
	keys      secrets.Getter
	endpoints Endpoints
	timeout   time.Duration
	http      *http.Client

	// One client per provider, rebuilt when its key rotates.
	mu       sync.Mutex
	messages keyedClient[anthropic.Client]
	chat     map[Provider]keyedClient[openai.Client]
}

type keyedClient[T any] struct {
	key    string
	client T
	set    bool
}

// NewAdapter creates an Adapter.
func NewAdapter(keys secrets.Getter, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		registry: DefaultRegistry(),
		keys:     keys,
		timeout:  60 * time.Second,
		chat:     make(map[Provider]keyedClient[openai.Client]),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Registry exposes the model table.
func (a *Adapter) Registry() Registry { return a.registry }

// ExecuteRequest runs req on its model. If that fails and the model names a
// backup, the same request is retried once on the backup. When both fail the
// returned ProviderError carries the primary's error.
func (a *Adapter) ExecuteRequest(ctx context.Context, req UniversalRequest) (*UniversalResponse, error) {
	primary, err := a.registry.Lookup(req.Model)
	if err != nil {
		return nil, err
	}

	resp, err := a.call(ctx, primary, req)
	if err == nil {
		return resp, nil
	}
	if primary.Backup == "" || ctx.Err() != nil {
		return nil, &apperr.ProviderError{Model: primary.ID, Err: err}
	}

	backup, lerr := a.registry.Lookup(primary.Backup)
	if lerr != nil {
		return nil, &apperr.ProviderError{Model: primary.ID, Err: err}
	}

	zap.L().Warn("llm: primary model failed, trying backup",
		zap.String("model", primary.ID),
		zap.String("backup", backup.ID),
		zap.Bool("transient", resilience.IsTransient(err)),
		zap.Error(err),
	)

	resp, berr := a.call(ctx, backup, req)
	if berr == nil {
		return resp, nil
	}
	zap.L().Error("llm: backup model failed",
		zap.String("model", backup.ID),
		zap.Error(berr),
	)
	return nil, &apperr.ProviderError{Model: primary.ID, Backup: backup.ID, Err: err}
}

func (a *Adapter) call(ctx context.Context, d ModelDescriptor, req UniversalRequest) (*UniversalResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "llm.call",
		attribute.String(tracing.ModelKey, d.ID),
		attribute.String("qualify.provider", string(d.Provider)),
	)
	defer span.End()

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var (
		res callResult
		err error
	)
	switch d.Wire {
	case WireMessages:
		res, err = a.callMessages(callCtx, d, req)
	case WireChat:
		res, err = a.callChat(callCtx, d, req)
	default:
		err = apperr.NewConfigurationError("wire format", string(d.Wire))
	}
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = &resilience.TimeoutError{After: a.timeout, Err: err}
		}
		tracing.SetError(span, err)
		return nil, err
	}

	usd := cost.Calculate(res.TokensIn, res.TokensOut, d.Price)
	zap.L().Info("llm: cost attribution",
		zap.String("model", d.ID),
		zap.String("provider", string(d.Provider)),
		zap.Int("tokens_in", res.TokensIn),
		zap.Int("tokens_out", res.TokensOut),
		zap.Float64("cost_usd", usd),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	span.SetAttributes(
		attribute.Int("qualify.tokens_in", res.TokensIn),
		attribute.Int("qualify.tokens_out", res.TokensOut),
	)

	return &UniversalResponse{
		Text:      res.Text,
		TokensIn:  res.TokensIn,
		TokensOut: res.TokensOut,
		CostUSD:   usd,
		ModelUsed: d.ID,
	}, nil
}

type callResult struct {
	Text      string
	TokensIn  int
	TokensOut int
}

func (a *Adapter) key(ctx context.Context, p Provider) (string, error) {
	name := map[Provider]string{
		ProviderAnthropic:  secrets.AnthropicKey,
		ProviderOpenAI:     secrets.OpenAIKey,
		ProviderPerplexity: secrets.PerplexityKey,
	}[p]
	k, err := a.keys.Get(ctx, name)
	if err != nil {
		return "", eris.Wrapf(err, "llm: api key for %s", p)
	}
	return k, nil
}

func (a *Adapter) messagesClient(key string) anthropic.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.messages.set && a.messages.key == key {
		return a.messages.client
	}
	var opts []anthropic.Option
	if a.endpoints.Anthropic != "" {
		opts = append(opts, anthropic.WithBaseURL(a.endpoints.Anthropic))
	}
	if a.http != nil {
		opts = append(opts, anthropic.WithHTTPClient(a.http))
	}
	c := anthropic.NewClient(key, opts...)
	a.messages = keyedClient[anthropic.Client]{key: key, client: c, set: true}
	return c
}

func (a *Adapter) chatClient(p Provider, key string) openai.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	if slot, ok := a.chat[p]; ok && slot.key == key {
		return slot.client
	}
	var opts []openai.Option
	switch p {
	case ProviderPerplexity:
		base := a.endpoints.Perplexity
		if base == "" {
			base = perplexityBaseURL
		}
		opts = append(opts, openai.WithBaseURL(base))
	default:
		if a.endpoints.OpenAI != "" {
			opts = append(opts, openai.WithBaseURL(a.endpoints.OpenAI))
		}
	}
	if a.http != nil {
		opts = append(opts, openai.WithHTTPClient(a.http))
	}
	c := openai.NewClient(key, opts...)
	a.chat[p] = keyedClient[openai.Client]{key: key, client: c, set: true}
	return c
}

func (a *Adapter) callMessages(ctx context.Context, d ModelDescriptor, req UniversalRequest) (callResult, error) {
	key, err := a.key(ctx, d.Provider)
	if err != nil {
		return callResult{}, err
	}

	user := req.User
	if len(req.Schema) > 0 {
		user += "\n\nRespond with a single JSON object that validates against this JSON schema:\n" + string(req.Schema)
	}

	resp, err := a.messagesClient(key).CreateMessage(ctx, anthropic.MessageRequest{
		Model:       d.ID,
		MaxTokens:   int64(req.MaxTokens),
		System:      anthropic.BuildCachedSystemBlocks(req.System),
		Messages:    []anthropic.Message{{Role: "user", Content: user}},
		Temperature: req.Temperature,
	})
	if err != nil {
		var apiErr *anthropic.APIError
		if errors.As(err, &apiErr) {
			return callResult{}, resilience.StatusError(err, apiErr.StatusCode)
		}
		return callResult{}, err
	}
	return callResult{
		Text:      resp.Text(),
		TokensIn:  int(resp.Usage.TotalInput()),
		TokensOut: int(resp.Usage.OutputTokens),
	}, nil
}

func (a *Adapter) callChat(ctx context.Context, d ModelDescriptor, req UniversalRequest) (callResult, error) {
	key, err := a.key(ctx, d.Provider)
	if err != nil {
		return callResult{}, err
	}

	creq := openai.ChatCompletionRequest{
		Model: d.ID,
		Messages: []openai.Message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		creq.MaxTokens = &mt
	}
	if len(req.Schema) > 0 {
		name := req.SchemaName
		if name == "" {
			name = "result"
		}
		creq.ResponseFormat = openai.SchemaFormat(name, req.Schema)
	}

	resp, err := a.chatClient(d.Provider, key).ChatCompletion(ctx, creq)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return callResult{}, resilience.StatusError(err, apiErr.StatusCode)
		}
		return callResult{}, err
	}
	return callResult{
		Text:      resp.Text(),
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
	}, nil
}
