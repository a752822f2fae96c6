// Package cache stores acquisition and stage results in an external keyed
// blob store. Values are JSON envelopes carrying their own expiry and a
// quality tag so that callers can enforce upgrade rules the store does not
// know about.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/qualify-cli/internal/config"
)

// Store is a keyed blob store. Implementations must tolerate concurrent
// readers and last-write-wins writers.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent or
	// the store's own TTL has elapsed.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Envelope is the serialized form of every cached value.
type Envelope struct {
	Payload          json.RawMessage `json:"payload"`
	ExpiresAtEpochMs int64           `json:"expiresAtEpochMs"`
	QualityTag       string          `json:"qualityTag"`
}

// NewEnvelope marshals payload and stamps it with an absolute expiry.
func NewEnvelope(payload any, quality string, ttl time.Duration, now time.Time) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, eris.Wrap(err, "cache: marshal payload")
	}
	return Envelope{
		Payload:          raw,
		ExpiresAtEpochMs: now.Add(ttl).UnixMilli(),
		QualityTag:       quality,
	}, nil
}

// ExpiresAt returns the absolute expiry.
func (e Envelope) ExpiresAt() time.Time { return time.UnixMilli(e.ExpiresAtEpochMs) }

// Expired reports whether the entry should be treated as absent.
func (e Envelope) Expired(now time.Time) bool { return now.UnixMilli() >= e.ExpiresAtEpochMs }

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	return eris.Wrap(json.Unmarshal(e.Payload, v), "cache: decode payload")
}

// Load reads and decodes the envelope at key. A missing, expired or
// undecodable entry yields (nil, nil).
func Load(ctx context.Context, s Store, key string, now time.Time) (*Envelope, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil
	}
	if env.Expired(now) {
		return nil, nil
	}
	return &env, nil
}

// Save writes env at key. The store TTL matches the envelope expiry.
func Save(ctx context.Context, s Store, key string, env Envelope, now time.Time) error {
	ttl := env.ExpiresAt().Sub(now)
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return eris.Wrap(err, "cache: marshal envelope")
	}
	return s.Put(ctx, key, raw, ttl)
}

// Open builds the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemory(), nil
	case "redis":
		return NewRedis(cfg.URL)
	case "sqlite":
		s, err := NewSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgres(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("cache: unknown driver %q", cfg.Driver)
	}
}
