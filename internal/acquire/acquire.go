// Package acquire fetches profile records through an ordered list of scraper
// backends with per-backend retry and circuit breaking, classifies failures
// and caches results under a depth-monotonic upgrade rule.
package acquire

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sells-group/qualify-cli/internal/apperr"
	"github.com/sells-group/qualify-cli/internal/cache"
	"github.com/sells-group/qualify-cli/internal/model"
	"github.com/sells-group/qualify-cli/internal/resilience"
	"github.com/sells-group/qualify-cli/internal/tracing"
	"github.com/sells-group/qualify-cli/pkg/apify"
)

// ProfileReader produces a basic profile from a shallow page read.
type ProfileReader interface {
	Read(ctx context.Context, subject string) (*model.Profile, error)
}

// Result is the outcome of one acquisition.
type Result struct {
	Profile  *model.Profile
	CacheHit bool
	Backend  string
}

// Option configures an Acquirer.
type Option func(*Acquirer)

// WithScraperConfigs replaces the per-depth backend lists.
func WithScraperConfigs(c map[model.Depth][]ScraperConfig) Option {
	return func(a *Acquirer) { a.configs = c }
}

// WithTTLs replaces the per-depth cache TTLs.
func WithTTLs(t map[model.Depth]time.Duration) Option {
	return func(a *Acquirer) { a.ttls = t }
}

// WithBreakers shares a breaker registry, e.g. with the health endpoint.
func WithBreakers(b *resilience.Breakers) Option {
	return func(a *Acquirer) { a.breakers = b }
}

// Acquirer implements profile acquisition.
type Acquirer struct {
	store    cache.Store
	apify    apify.Client
	reader   ProfileReader
	configs  map[model.Depth][]ScraperConfig
	ttls     map[model.Depth]time.Duration
	breakers *resilience.Breakers

	writeTimeout time.Duration
	now          func() time.Time
}

// New creates an Acquirer. apifyClient or reader may be nil when the
// matching backend is not configured; attempts on it then fail over.
func New(store cache.Store, apifyClient apify.Client, reader ProfileReader, opts ...Option) (*Acquirer, error) {
	a := &Acquirer{
		store:        store,
		apify:        apifyClient,
		reader:       reader,
		configs:      DefaultScraperConfigs(),
		ttls:         DefaultTTLs(),
		writeTimeout: 5 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.breakers == nil {
		a.breakers = resilience.NewBreakers(resilience.BackendCircuitConfig)
	}
	configs, err := validateConfigs(a.configs)
	if err != nil {
		return nil, err
	}
	a.configs = configs
	return a, nil
}

// Acquire returns the profile for subject at the requested depth.
func (a *Acquirer) Acquire(ctx context.Context, subject string, depth model.Depth) (*Result, error) {
	if !depth.Valid() {
		return nil, apperr.NewConfigurationError("depth", string(depth))
	}
	subject = model.NormalizeSubject(subject)

	ctx, span := tracing.StartSpan(ctx, "acquire",
		attribute.String(tracing.SubjectKey, subject),
		attribute.String(tracing.DepthKey, string(depth)),
	)
	defer span.End()

	log := zap.L().With(zap.String("subject", subject), zap.String("depth", string(depth)))
	key := cache.ProfileKey(subject)

	if p := a.lookup(ctx, key, depth); p != nil {
		log.Debug("acquire: cache hit", zap.String("quality", string(p.Quality)))
		span.SetAttributes(attribute.Bool("qualify.cache_hit", true))
		return &Result{Profile: p, CacheHit: true, Backend: "cache"}, nil
	}

	p, backend, err := a.fetch(ctx, subject, depth, a.configs[depth])
	cacheDepth := depth
	if err != nil && depth != model.DepthLight && ctx.Err() == nil {
		log.Warn("acquire: structured backends failed, falling back to light scrape", zap.Error(err))
		p, backend, err = a.fetch(ctx, subject, model.DepthLight, a.configs[model.DepthLight])
		if err == nil {
			p = asFallback(p)
			cacheDepth = model.DepthLight
		}
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			tracing.SetError(span, ctxErr)
			return nil, eris.Wrap(ctxErr, "acquire: cancelled")
		}
		aerr := &apperr.AcquisitionError{
			Kind:    Classify(err, subject),
			Subject: subject,
			Err:     err,
		}
		tracing.SetError(span, aerr)
		log.Warn("acquire: failed", zap.String("kind", string(aerr.Kind)), zap.Error(err))
		return nil, aerr
	}

	a.save(ctx, key, p, cacheDepth)
	log.Info("acquire: fetched",
		zap.String("backend", backend),
		zap.String("quality", string(p.Quality)),
		zap.Bool("fallback", p.Fallback),
	)
	return &Result{Profile: p, Backend: backend}, nil
}

// lookup returns a cached profile at least as rich as depth requires.
func (a *Acquirer) lookup(ctx context.Context, key string, depth model.Depth) *model.Profile {
	env, err := cache.Load(ctx, a.store, key, a.now())
	if err != nil {
		zap.L().Warn("acquire: cache read failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if env == nil || model.DataQuality(env.QualityTag).Rank() < depth.Rank() {
		return nil
	}
	var p model.Profile
	if err := env.Decode(&p); err != nil {
		return nil
	}
	return &p
}

// save writes p unless a live entry of higher quality exists. The write is
// detached from ctx so a cancelled request still leaves its result behind.
func (a *Acquirer) save(ctx context.Context, key string, p *model.Profile, depth model.Depth) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.writeTimeout)
	defer cancel()

	now := a.now()
	quality := depth.Quality()
	if existing, err := cache.Load(wctx, a.store, key, now); err == nil && existing != nil {
		if model.DataQuality(existing.QualityTag).Rank() > quality.Rank() {
			zap.L().Debug("acquire: keeping richer cache entry",
				zap.String("key", key),
				zap.String("cached", existing.QualityTag),
				zap.String("new", string(quality)),
			)
			return
		}
	}

	env, err := cache.NewEnvelope(p, string(quality), a.ttls[depth], now)
	if err == nil {
		err = cache.Save(wctx, a.store, key, env, now)
	}
	if err != nil {
		zap.L().Warn("acquire: cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// fetch walks configs in priority order and returns the first success.
func (a *Acquirer) fetch(ctx context.Context, subject string, depth model.Depth, configs []ScraperConfig) (*model.Profile, string, error) {
	attempts := make([]resilience.Attempt[*model.Profile], len(configs))
	for i, cfg := range configs {
		attempts[i] = resilience.Attempt[*model.Profile]{
			Name: cfg.Name,
			Run: func(ctx context.Context) (*model.Profile, error) {
				return a.runBackend(ctx, cfg, subject, depth)
			},
		}
	}

	p, idx, err := resilience.FirstSuccess(ctx, attempts)
	if err != nil {
		var ex *resilience.ExhaustedError
		if errors.As(err, &ex) && ex.Last() != nil {
			return nil, "", ex.Last()
		}
		return nil, "", err
	}
	return p, configs[idx].Name, nil
}

// runBackend runs one config behind its circuit breaker, retrying transient
// failures with a constant delay.
func (a *Acquirer) runBackend(ctx context.Context, cfg ScraperConfig, subject string, depth model.Depth) (*model.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "acquire.backend", attribute.String(tracing.BackendKey, cfg.Name))
	defer span.End()

	retry := resilience.ConstantRetry(cfg.Retries, cfg.RetryDelay, cfg.Timeout)
	retry.ShouldRetry = resilience.IsTransient
	retry.OnRetry = resilience.RetryLogger("acquire", cfg.Name)

	breaker := a.breakers.Get(cfg.Name)
	p, err := resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (*model.Profile, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) (*model.Profile, error) {
			return a.call(ctx, cfg, subject)
		})
	})
	if err != nil {
		tracing.SetError(span, err)
		return nil, err
	}

	p.Source = cfg.Name
	p.Quality = depth.Quality()
	if p.FetchedAt.IsZero() {
		p.FetchedAt = a.now().UTC()
	}
	if depth == model.DepthLight {
		p.Posts = nil
	}
	return p.WithEngagement(), nil
}

func (a *Acquirer) call(ctx context.Context, cfg ScraperConfig, subject string) (*model.Profile, error) {
	switch cfg.Backend {
	case BackendApify:
		if a.apify == nil {
			return nil, eris.New("apify: client not configured")
		}
		items, err := a.apify.RunSync(ctx, cfg.Actor, cfg.Input(subject, cfg.PostLimit), apify.RunOptions{Timeout: cfg.Timeout})
		if err != nil {
			var apiErr *apify.APIError
			if errors.As(err, &apiErr) {
				return nil, resilience.StatusError(err, apiErr.StatusCode)
			}
			return nil, err
		}
		return parseApifyItems(items, subject, cfg.PostLimit)
	case BackendReader:
		if a.reader == nil {
			return nil, eris.New("reader: not configured")
		}
		return a.reader.Read(ctx, subject)
	default:
		return nil, apperr.NewConfigurationError("scraper backend", cfg.Backend)
	}
}

// asFallback marks a shallow result standing in for a deep request. It
// carries no engagement numbers.
func asFallback(p *model.Profile) *model.Profile {
	p.Posts = nil
	p.Engagement = nil
	p.HasEngagementData = false
	p.Fallback = true
	p.Quality = model.DataQualityBasic
	return p
}

// Purge deletes the cached profile for subject.
func (a *Acquirer) Purge(ctx context.Context, subject string) error {
	return a.store.Delete(ctx, cache.ProfileKey(subject))
}

// Breakers exposes backend circuit state.
func (a *Acquirer) Breakers() *resilience.Breakers { return a.breakers }
