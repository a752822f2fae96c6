// Package monitoring keeps a rolling window of analysis outcomes and raises
// webhook alerts when failure rate, spend or backend health cross
// configured thresholds.
package monitoring

import (
	"sort"
	"sync"
	"time"

	"github.com/sells-group/qualify-cli/internal/model"
	"github.com/sells-group/qualify-cli/internal/qualify"
)

const defaultMaxSamples = 10000

// MetricsSnapshot holds a point-in-time view of analysis health.
type MetricsSnapshot struct {
	// Analyses finished within the lookback window.
	AnalysisTotal     int            `json:"analysis_total"`
	AnalysisSucceeded int            `json:"analysis_succeeded"`
	AnalysisEarlyExit int            `json:"analysis_early_exit"`
	AnalysisFailed    int            `json:"analysis_failed"`
	AnalysisFailRate  float64        `json:"analysis_fail_rate"`
	FailuresByKind    map[string]int `json:"failures_by_kind,omitempty"`
	CostUSD           float64        `json:"cost_usd"`
	Credits           float64        `json:"credits"`
	AvgTokens         int            `json:"avg_tokens"`
	AvgFitScore       float64        `json:"avg_fit_score"`
	CacheHitRate      float64        `json:"cache_hit_rate"`

	// Backends whose circuit is not closed at collection time.
	OpenCircuits []string `json:"open_circuits,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

type sample struct {
	at        time.Time
	verdict   model.Verdict
	errorKind string
	costUSD   float64
	credits   float64
	tokens    int
	fitScore  float64
	scored    bool
	cacheHit  bool
}

// Collector accumulates outcomes in memory. It is safe for concurrent use.
type Collector struct {
	health func() map[string]string

	mu      sync.Mutex
	samples []sample
	max     int

	now func() time.Time
}

// NewCollector creates a Collector. health, when non-nil, reports backend
// circuit states by name.
func NewCollector(health func() map[string]string) *Collector {
	return &Collector{health: health, max: defaultMaxSamples, now: time.Now}
}

// Record adds a finished analysis to the window.
func (c *Collector) Record(o *qualify.Outcome) {
	if o == nil {
		return
	}
	s := sample{
		at:        c.now().UTC(),
		verdict:   o.Verdict,
		errorKind: o.ErrorKind,
		costUSD:   o.Cost.ActualUSD,
		credits:   o.Cost.Credits,
		tokens:    o.Cost.TokensIn + o.Cost.TokensOut,
		cacheHit:  o.Performance.CacheHit,
	}
	if s.verdict == model.VerdictError && s.errorKind == "" {
		s.errorKind = "other"
	}
	if o.Result != nil && o.Result.Analysis != nil {
		s.fitScore = o.Result.Analysis.FitScore
		s.scored = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, s)
	if over := len(c.samples) - c.max; over > 0 {
		c.samples = append(c.samples[:0], c.samples[over:]...)
	}
}

// Collect summarizes the outcomes recorded in the last lookbackHours.
func (c *Collector) Collect(lookbackHours int) *MetricsSnapshot {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	c.mu.Lock()
	var totalTokens, scored, hits int
	var totalScore float64
	for _, s := range c.samples {
		if s.at.Before(cutoff) {
			continue
		}
		snap.AnalysisTotal++
		switch s.verdict {
		case model.VerdictSuccess:
			snap.AnalysisSucceeded++
		case model.VerdictEarlyExit:
			snap.AnalysisEarlyExit++
		case model.VerdictError:
			snap.AnalysisFailed++
			if snap.FailuresByKind == nil {
				snap.FailuresByKind = map[string]int{}
			}
			snap.FailuresByKind[s.errorKind]++
		}
		snap.CostUSD += s.costUSD
		snap.Credits += s.credits
		totalTokens += s.tokens
		if s.scored {
			totalScore += s.fitScore
			scored++
		}
		if s.cacheHit {
			hits++
		}
	}
	c.mu.Unlock()

	if snap.AnalysisTotal > 0 {
		snap.AnalysisFailRate = float64(snap.AnalysisFailed) / float64(snap.AnalysisTotal)
		snap.AvgTokens = totalTokens / snap.AnalysisTotal
		snap.CacheHitRate = float64(hits) / float64(snap.AnalysisTotal)
	}
	if scored > 0 {
		snap.AvgFitScore = totalScore / float64(scored)
	}

	if c.health != nil {
		for name, state := range c.health() {
			if state != "closed" {
				snap.OpenCircuits = append(snap.OpenCircuits, name)
			}
		}
		sort.Strings(snap.OpenCircuits)
	}
	return snap
}
