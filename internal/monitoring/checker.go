package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/qualify-cli/internal/config"
)

// Checker evaluates the collector on a ticker and forwards alerts. An alert
// type that was delivered is held back until its cooldown passes, so a
// condition that persists across ticks pages once per cooldown.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	cooldown  time.Duration

	mu       sync.Mutex
	lastSent map[AlertType]time.Time
	now      func() time.Time
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		cooldown:  time.Duration(cfg.CooldownSecs) * time.Second,
		lastSent:  make(map[AlertType]time.Time),
		now:       time.Now,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Duration("cooldown", c.cooldown),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

// check runs one evaluation and returns how many alerts were delivered.
func (c *Checker) check(ctx context.Context, log *zap.Logger) int {
	snap := c.collector.Collect(c.cfg.LookbackWindowHours)

	alerts := c.due(c.alerter.Evaluate(snap))
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts due", zap.Int("analyses", snap.AnalysisTotal))
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	if sent > 0 {
		c.mu.Lock()
		now := c.now()
		for _, a := range alerts {
			c.lastSent[a.Type] = now
		}
		c.mu.Unlock()
	}
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return sent
}

// due drops alerts whose type is still cooling down.
func (c *Checker) due(alerts []Alert) []Alert {
	if c.cooldown <= 0 {
		return alerts
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	out := alerts[:0:0]
	for _, a := range alerts {
		if last, ok := c.lastSent[a.Type]; ok && now.Sub(last) < c.cooldown {
			continue
		}
		out = append(out, a)
	}
	return out
}
