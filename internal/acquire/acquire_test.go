package acquire

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/qualify-cli/internal/apperr"
	"github.com/sells-group/qualify-cli/internal/cache"
	"github.com/sells-group/qualify-cli/internal/model"
	"github.com/sells-group/qualify-cli/pkg/apify"
)

// fastConfigs mirrors the default layout with zero delays.
func fastConfigs() map[model.Depth][]ScraperConfig {
	cfgs := DefaultScraperConfigs()
	for d, list := range cfgs {
		for i := range list {
			list[i].Timeout = time.Second
			list[i].RetryDelay = 0
		}
		cfgs[d] = list
	}
	return cfgs
}

func newTestAcquirer(t *testing.T, ap apify.Client, r ProfileReader, opts ...Option) (*Acquirer, *cache.MemoryStore) {
	t.Helper()
	store := cache.NewMemory()
	a, err := New(store, ap, r, append([]Option{WithScraperConfigs(fastConfigs())}, opts...)...)
	require.NoError(t, err)
	return a, store
}

func cachedEnvelope(t *testing.T, store cache.Store, subject string) *cache.Envelope {
	t.Helper()
	env, err := cache.Load(context.Background(), store, cache.ProfileKey(subject), time.Now())
	require.NoError(t, err)
	return env
}

func TestAcquire_DeepComputesEngagementAndCaches(t *testing.T) {
	ap := newFakeApify()
	ap.handlers[ActorProfileScraper] = func(int) ([]json.RawMessage, error) { return items(acmeItem), nil }
	a, store := newTestAcquirer(t, ap, nil)

	res, err := a.Acquire(context.Background(), "@Acme", model.DepthDeep)
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	assert.Equal(t, "apify-profile", res.Backend)

	p := res.Profile
	assert.Equal(t, "acme", p.Username)
	assert.Equal(t, model.DataQualityStandard, p.Quality)
	require.NotNil(t, p.Engagement)
	assert.Equal(t, 3, p.Engagement.SampleSize)
	assert.Equal(t, 200.0, p.Engagement.AvgLikes)
	assert.True(t, p.HasEngagementData)
	assert.False(t, p.Fallback)

	env := cachedEnvelope(t, store, "acme")
	require.NotNil(t, env)
	assert.Equal(t, string(model.DataQualityStandard), env.QualityTag)

	assert.Equal(t, []any{"acme"}, toAny(ap.calls[0].Input["usernames"]))
	assert.Equal(t, 12, ap.calls[0].Input["resultsLimit"])
}

func toAny(v any) []any {
	switch s := v.(type) {
	case []string:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out
	case []any:
		return s
	}
	return nil
}

func TestAcquire_LightDropsPosts(t *testing.T) {
	ap := newFakeApify()
	ap.handlers[ActorProfileScraper] = func(int) ([]json.RawMessage, error) { return items(acmeItem), nil }
	a, _ := newTestAcquirer(t, ap, nil)

	res, err := a.Acquire(context.Background(), "acme", model.DepthLight)
	require.NoError(t, err)
	assert.Empty(t, res.Profile.Posts)
	assert.Nil(t, res.Profile.Engagement)
	assert.Equal(t, model.DataQualityBasic, res.Profile.Quality)
}

func TestAcquire_CacheHitServesShallowerRequest(t *testing.T) {
	ap := newFakeApify()
	ap.handlers[ActorProfileScraper] = func(int) ([]json.RawMessage, error) { return items(acmeItem), nil }
	a, _ := newTestAcquirer(t, ap, nil)

	_, err := a.Acquire(context.Background(), "acme", model.DepthDeep)
	require.NoError(t, err)

	res, err := a.Acquire(context.Background(), "acme", model.DepthLight)
	require.NoError(t, err)
	assert.True(t, res.CacheHit)
	assert.Len(t, ap.actors(), 1, "no network call on a cache hit")
	assert.Equal(t, model.DataQualityStandard, res.Profile.Quality)
}

func TestAcquire_UpgradeLaw(t *testing.T) {
	ap := newFakeApify()
	ap.handlers[ActorProfileScraper] = func(int) ([]json.RawMessage, error) { return items(acmeItem), nil }
	a, store := newTestAcquirer(t, ap, nil)
	start := time.Now()

	_, err := a.Acquire(context.Background(), "acme", model.DepthLight)
	require.NoError(t, err)
	env := cachedEnvelope(t, store, "acme")
	assert.Equal(t, string(model.DataQualityBasic), env.QualityTag)

	_, err = a.Acquire(context.Background(), "acme", model.DepthDeep)
	require.NoError(t, err)
	env = cachedEnvelope(t, store, "acme")
	assert.Equal(t, string(model.DataQualityStandard), env.QualityTag)
	assert.WithinDuration(t, start.Add(24*time.Hour), env.ExpiresAt(), 5*time.Second)
	assert.Len(t, ap.actors(), 2, "light entry cannot serve a deep request")
}

func TestAcquire_NeverDowngradesCache(t *testing.T) {
	a, store := newTestAcquirer(t, newFakeApify(), nil)
	ctx := context.Background()
	key := cache.ProfileKey("acme")

	rich := &model.Profile{Username: "acme", Quality: model.DataQualityRich}
	a.save(ctx, key, rich, model.DepthExtended)
	before := cachedEnvelope(t, store, "acme")

	a.save(ctx, key, &model.Profile{Username: "acme"}, model.DepthLight)
	after := cachedEnvelope(t, store, "acme")
	assert.Equal(t, before.QualityTag, after.QualityTag)
	assert.Equal(t, before.ExpiresAtEpochMs, after.ExpiresAtEpochMs)

	a.save(ctx, key, &model.Profile{Username: "acme"}, model.DepthExtended)
	assert.Equal(t, string(model.DataQualityRich), cachedEnvelope(t, store, "acme").QualityTag, "equal rank overwrites")
}

func TestAcquire_FallbackOrder(t *testing.T) {
	ap := newFakeApify()
	ap.handlers["a/first"] = func(int) ([]json.RawMessage, error) { return nil, errors.New("actor crashed") }
	ap.handlers["a/second"] = func(int) ([]json.RawMessage, error) { return nil, nil }
	ap.handlers["a/third"] = func(int) ([]json.RawMessage, error) { return items(acmeItem), nil }

	in := func(s string, _ int) map[string]any { return map[string]any{"u": s} }
	list := []ScraperConfig{
		{Name: "third", Backend: BackendApify, Actor: "a/third", Timeout: time.Second, Priority: 3, Input: in},
		{Name: "first", Backend: BackendApify, Actor: "a/first", Timeout: time.Second, Priority: 1, Input: in},
		{Name: "second", Backend: BackendApify, Actor: "a/second", Timeout: time.Second, Priority: 2, Input: in},
	}
	cfgs := fastConfigs()
	cfgs[model.DepthLight] = list

	a, _ := newTestAcquirer(t, ap, nil, WithScraperConfigs(cfgs))
	res, err := a.Acquire(context.Background(), "acme", model.DepthLight)
	require.NoError(t, err)
	assert.Equal(t, "third", res.Backend)
	assert.Equal(t, []string{"a/first", "a/second", "a/third"}, ap.actors())
}

func TestAcquire_RetriesTransientWithinBackend(t *testing.T) {
	ap := newFakeApify()
	ap.handlers[ActorProfileScraper] = func(n int) ([]json.RawMessage, error) {
		if n < 3 {
			return nil, &apify.APIError{StatusCode: 503, Body: "busy"}
		}
		return items(acmeItem), nil
	}
	a, _ := newTestAcquirer(t, ap, nil)

	res, err := a.Acquire(context.Background(), "acme", model.DepthLight)
	require.NoError(t, err)
	assert.Equal(t, "apify-profile", res.Backend)
	assert.Len(t, ap.actors(), 3, "two retries then success")
}

func TestAcquire_NonTransientMovesOnImmediately(t *testing.T) {
	ap := newFakeApify()
	ap.handlers[ActorProfileScraper] = func(int) ([]json.RawMessage, error) {
		return nil, &apify.APIError{StatusCode: 400, Body: "bad input"}
	}
	r := &fakeReader{profile: &model.Profile{FollowersCount: 10}}
	a, _ := newTestAcquirer(t, ap, r)

	res, err := a.Acquire(context.Background(), "acme", model.DepthLight)
	require.NoError(t, err)
	assert.Equal(t, "reader", res.Backend)
	assert.Len(t, ap.actors(), 1)
	assert.Equal(t, 1, r.calls)
}

func TestAcquire_DeepFallsBackToLight(t *testing.T) {
	ap := newFakeApify()
	ap.handlers[ActorProfileScraper] = func(int) ([]json.RawMessage, error) {
		return nil, &apify.APIError{StatusCode: 400, Body: "actor input rejected"}
	}
	ap.handlers[ActorDetailsScraper] = func(int) ([]json.RawMessage, error) {
		return nil, &apify.APIError{StatusCode: 400, Body: "actor input rejected"}
	}
	r := &fakeReader{profile: &model.Profile{FollowersCount: 5000, Bio: "coffee"}}
	a, store := newTestAcquirer(t, ap, r)

	res, err := a.Acquire(context.Background(), "acme", model.DepthExtended)
	require.NoError(t, err)
	p := res.Profile
	assert.True(t, p.Fallback)
	assert.Nil(t, p.Engagement)
	assert.False(t, p.HasEngagementData)
	assert.Empty(t, p.Posts)
	assert.Equal(t, model.DataQualityBasic, p.Quality)
	assert.Equal(t, int64(5000), p.FollowersCount)

	env := cachedEnvelope(t, store, "acme")
	assert.Equal(t, string(model.DataQualityBasic), env.QualityTag, "fallback is cached as light")

	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"engagement":null`)
}

func TestAcquire_AllFailClassifies(t *testing.T) {
	tests := []struct {
		name      string
		apifyErr  error
		readerErr error
		want      apperr.AcquisitionKind
	}{
		{"not found", &apify.APIError{StatusCode: 400, Body: "x"}, errors.New("reader: profile acme not found"), apperr.AcquisitionNotFound},
		{"private", &apify.APIError{StatusCode: 400, Body: "x"}, errors.New("reader: account acme is private"), apperr.AcquisitionPrivateAccount},
		{"rate limited", &apify.APIError{StatusCode: 400, Body: "x"}, errors.New("jina: HTTP 429: slow down"), apperr.AcquisitionRateLimited},
		{"scraper fault", &apify.APIError{StatusCode: 400, Body: "x"}, errors.New("scrape: all scrapers failed: jina: blocked (captcha)"), apperr.AcquisitionScraperFault},
		{"unknown", &apify.APIError{StatusCode: 400, Body: "x"}, errors.New("something odd"), apperr.AcquisitionUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ap := newFakeApify()
			ap.handlers[ActorProfileScraper] = func(int) ([]json.RawMessage, error) { return nil, tt.apifyErr }
			a, store := newTestAcquirer(t, ap, &fakeReader{err: tt.readerErr})

			_, err := a.Acquire(context.Background(), "acme", model.DepthLight)
			require.Error(t, err)
			var ae *apperr.AcquisitionError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.want, ae.Kind)
			assert.Equal(t, "acme", ae.Subject)
			assert.Nil(t, cachedEnvelope(t, store, "acme"))
		})
	}
}

func TestAcquire_InvalidDepth(t *testing.T) {
	a, _ := newTestAcquirer(t, newFakeApify(), nil)
	_, err := a.Acquire(context.Background(), "acme", "bottomless")
	assert.True(t, apperr.IsConfiguration(err))
}

func TestAcquire_CancelledContext(t *testing.T) {
	ap := newFakeApify()
	a, _ := newTestAcquirer(t, ap, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Acquire(ctx, "acme", model.DepthDeep)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ap.actors())
}

func TestAcquire_Purge(t *testing.T) {
	ap := newFakeApify()
	ap.handlers[ActorProfileScraper] = func(int) ([]json.RawMessage, error) { return items(acmeItem), nil }
	a, store := newTestAcquirer(t, ap, nil)

	_, err := a.Acquire(context.Background(), "acme", model.DepthLight)
	require.NoError(t, err)
	require.NoError(t, a.Purge(context.Background(), "acme"))
	assert.Nil(t, cachedEnvelope(t, store, "acme"))
}

func TestNew_RejectsBadConfigs(t *testing.T) {
	cfgs := fastConfigs()
	cfgs[model.DepthDeep] = []ScraperConfig{{Name: "x", Backend: "ftp", Timeout: time.Second}}
	_, err := New(cache.NewMemory(), nil, nil, WithScraperConfigs(cfgs))
	assert.Error(t, err)

	cfgs = fastConfigs()
	delete(cfgs, model.DepthExtended)
	_, err = New(cache.NewMemory(), nil, nil, WithScraperConfigs(cfgs))
	assert.ErrorContains(t, err, "no scraper configs")
}
