package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/qualify-cli/internal/acquire"
	"github.com/sells-group/qualify-cli/internal/cache"
	"github.com/sells-group/qualify-cli/internal/config"
	"github.com/sells-group/qualify-cli/internal/cost"
	"github.com/sells-group/qualify-cli/internal/llm"
	"github.com/sells-group/qualify-cli/internal/model"
	"github.com/sells-group/qualify-cli/internal/qualify"
	"github.com/sells-group/qualify-cli/internal/resilience"
	"github.com/sells-group/qualify-cli/internal/scrape"
	"github.com/sells-group/qualify-cli/internal/secrets"
	"github.com/sells-group/qualify-cli/internal/stage"
	"github.com/sells-group/qualify-cli/internal/workflow"
	"github.com/sells-group/qualify-cli/pkg/apify"
	"github.com/sells-group/qualify-cli/pkg/firecrawl"
	"github.com/sells-group/qualify-cli/pkg/jina"
)

// qualifyEnv holds the components built once per process and shared by the
// analyze, batch and serve commands.
type qualifyEnv struct {
	Store     cache.Store
	Secrets   *secrets.Manager
	Breakers  *resilience.Breakers
	Acquirer  *acquire.Acquirer
	Workflows *workflow.Registry
	Service   *qualify.Service
}

// Close releases resources held by the environment.
func (qe *qualifyEnv) Close() {
	if qe.Store != nil {
		_ = qe.Store.Close()
	}
}

// initQualify builds the cache, secret manager, scraper backends, provider
// adapter and workflow engine. Callers should defer env.Close().
func initQualify(ctx context.Context) (*qualifyEnv, error) {
	store, err := cache.Open(ctx, cfg.Cache)
	if err != nil {
		return nil, eris.Wrap(err, "open cache")
	}
	env := &qualifyEnv{Store: store}

	env.Secrets = secrets.NewManager(cfg.Secrets.TTL(),
		secrets.FileSource{Dir: cfg.Secrets.Dir},
		secrets.StaticSource{
			secrets.AnthropicKey:  cfg.Anthropic.Key,
			secrets.OpenAIKey:     cfg.OpenAI.Key,
			secrets.PerplexityKey: cfg.Perplexity.Key,
			secrets.ApifyToken:    cfg.Apify.Key,
			secrets.JinaKey:       cfg.Jina.Key,
			secrets.FirecrawlKey:  cfg.Firecrawl.Key,
		},
	)

	// Scraper tokens are resolved per request so rotated secrets apply
	// without a restart. A missing Apify or Firecrawl token fails that
	// backend and acquisition moves on to the next one.
	apifyClient := apify.NewClient("",
		apify.WithTokenSource(secretToken(env.Secrets, secrets.ApifyToken)),
		apify.WithBaseURL(cfg.Apify.BaseURL),
		apify.WithRateLimit(cfg.Apify.RateLimit, cfg.Apify.Burst),
	)
	if optionalSecret(ctx, env.Secrets, secrets.ApifyToken) == "" {
		zap.L().Warn("apify token not configured, structured scrapers will fail over")
	}

	jinaClient := jina.NewClient("",
		jina.WithTokenSource(func(ctx context.Context) (string, error) {
			return optionalSecret(ctx, env.Secrets, secrets.JinaKey), nil
		}),
		jina.WithBaseURL(cfg.Jina.BaseURL),
	)
	firecrawlClient := firecrawl.NewClient("",
		firecrawl.WithTokenSource(secretToken(env.Secrets, secrets.FirecrawlKey)),
		firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL),
	)
	chain := []scrape.Scraper{scrape.NewJinaAdapter(jinaClient), scrape.NewFirecrawlAdapter(firecrawlClient)}
	reader := scrape.NewProfileReader(scrape.NewChain(chain...))

	env.Breakers = resilience.NewBreakers(resilience.BackendCircuitConfig)
	env.Acquirer, err = acquire.New(store, apifyClient, reader,
		acquire.WithTTLs(profileTTLs(cfg.Cache)),
		acquire.WithBreakers(env.Breakers),
	)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Workflows, err = workflow.LoadRegistry(cfg.Workflows.Path)
	if err != nil {
		env.Close()
		return nil, err
	}
	stages, err := stage.NewTable()
	if err != nil {
		env.Close()
		return nil, err
	}

	adapter := llm.NewAdapter(env.Secrets,
		llm.WithCallTimeout(cfg.Providers.CallTimeout()),
		llm.WithEndpoints(llm.Endpoints{
			Anthropic:  cfg.Anthropic.BaseURL,
			OpenAI:     cfg.OpenAI.BaseURL,
			Perplexity: cfg.Perplexity.BaseURL,
		}),
	)
	engine := workflow.NewEngine(env.Workflows, stages, llm.NewSelector(cfg.Providers.UpgradeThreshold), adapter,
		workflow.WithStageCache(store, time.Duration(cfg.Cache.StageTTLHours)*time.Hour),
	)

	env.Service = qualify.NewService(env.Acquirer, engine, creditPolicy(cfg.Pricing))
	return env, nil
}

// secretToken adapts a secret name to a per-request token source. A
// missing credential must not read as a missing profile when acquisition
// errors are classified, so the lookup error is logged and replaced.
func secretToken(m secrets.Getter, name string) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		v, err := m.Get(ctx, name)
		if err != nil {
			zap.L().Debug("secret not available", zap.String("secret", name), zap.Error(err))
			return "", eris.Errorf("credential %s unavailable", name)
		}
		return v, nil
	}
}

// optionalSecret resolves a secret that may legitimately be absent.
func optionalSecret(ctx context.Context, m *secrets.Manager, name string) string {
	v, err := m.Get(ctx, name)
	if err != nil {
		zap.L().Debug("secret not available", zap.String("secret", name), zap.Error(err))
		return ""
	}
	return v
}

func profileTTLs(c config.CacheConfig) map[model.Depth]time.Duration {
	return map[model.Depth]time.Duration{
		model.DepthLight:    time.Duration(c.LightTTLHours) * time.Hour,
		model.DepthDeep:     time.Duration(c.DeepTTLHours) * time.Hour,
		model.DepthExtended: time.Duration(c.ExtTTLHours) * time.Hour,
	}
}

func creditPolicy(p config.PricingConfig) cost.CreditPolicy {
	return cost.CreditPolicy{
		BaseFees: map[model.Depth]float64{
			model.DepthLight:    p.BaseFees.Light,
			model.DepthDeep:     p.BaseFees.Deep,
			model.DepthExtended: p.BaseFees.Extended,
		},
		Margin:        p.Margin,
		MinimumCharge: p.MinimumCharge,
		TokenCap:      p.TokenCap,
	}
}
