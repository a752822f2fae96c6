// Package secrets resolves provider credentials from an ordered list of
// sources with a short-lived in-memory cache.
package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Well-known secret names.
const (
	AnthropicKey  = "anthropic_api_key"
	OpenAIKey     = "openai_api_key"
	PerplexityKey = "perplexity_api_key"
	ApifyToken    = "apify_token"
	JinaKey       = "jina_api_key"
	FirecrawlKey  = "firecrawl_api_key"
)

// ErrNotFound is returned by a Source that has no value for a name.
var ErrNotFound = errors.New("secret not found")

// Source is one place a secret can come from.
type Source interface {
	Name() string
	Lookup(ctx context.Context, name string) (string, error)
}

// Getter resolves a secret by name.
type Getter interface {
	Get(ctx context.Context, name string) (string, error)
}

type entry struct {
	value     string
	fetchedAt time.Time
}

// Manager walks its sources in order and caches the first hit for ttl. When
// every source fails it serves the last known value, if any.
type Manager struct {
	sources []Source
	ttl     time.Duration

	mu    sync.RWMutex
	cache map[string]entry
	group singleflight.Group

	now func() time.Time
}

// NewManager creates a Manager. Sources are consulted in the order given,
// most trusted first.
func NewManager(ttl time.Duration, sources ...Source) *Manager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Manager{
		sources: sources,
		ttl:     ttl,
		cache:   make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the secret for name.
func (m *Manager) Get(ctx context.Context, name string) (string, error) {
	m.mu.RLock()
	cached, ok := m.cache[name]
	m.mu.RUnlock()
	if ok && m.now().Sub(cached.fetchedAt) < m.ttl {
		return cached.value, nil
	}

	v, err, _ := m.group.Do(name, func() (any, error) {
		return m.fetch(ctx, name)
	})
	if err != nil {
		if ok {
			zap.L().Warn("secrets: serving stale value",
				zap.String("secret", name),
				zap.Duration("age", m.now().Sub(cached.fetchedAt)),
				zap.Error(err),
			)
			return cached.value, nil
		}
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) fetch(ctx context.Context, name string) (string, error) {
	var lastErr error = ErrNotFound
	for _, src := range m.sources {
		val, err := src.Lookup(ctx, name)
		if err == nil && val != "" {
			m.mu.Lock()
			m.cache[name] = entry{value: val, fetchedAt: m.now()}
			m.mu.Unlock()
			return val, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			zap.L().Warn("secrets: source failed, trying next",
				zap.String("source", src.Name()),
				zap.String("secret", name),
				zap.Error(err),
			)
			lastErr = err
		}
	}
	return "", eris.Wrapf(lastErr, "secrets: resolve %s", name)
}

// Invalidate drops a cached value so the next Get refetches it.
func (m *Manager) Invalidate(name string) {
	m.mu.Lock()
	delete(m.cache, name)
	m.mu.Unlock()
}

// FileSource reads secrets from files named after the secret in Dir, the
// layout used by mounted Kubernetes and Docker secrets.
type FileSource struct {
	Dir string
}

// Name implements Source.
func (f FileSource) Name() string { return "file" }

// Lookup implements Source.
func (f FileSource) Lookup(_ context.Context, name string) (string, error) {
	if f.Dir == "" {
		return "", ErrNotFound
	}
	data, err := os.ReadFile(filepath.Join(f.Dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", eris.Wrapf(err, "secrets: read %s", name)
	}
	return strings.TrimSpace(string(data)), nil
}

// StaticSource serves values loaded from configuration or the environment.
// It is the lower-trust fallback.
type StaticSource map[string]string

// Name implements Source.
func (s StaticSource) Name() string { return "config" }

// Lookup implements Source.
func (s StaticSource) Lookup(_ context.Context, name string) (string, error) {
	if v, ok := s[name]; ok && v != "" {
		return v, nil
	}
	return "", ErrNotFound
}
