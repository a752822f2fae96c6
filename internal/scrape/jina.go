package scrape

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/qualify-cli/internal/resilience"
	"github.com/sells-group/qualify-cli/pkg/jina"
)

// JinaAdapter wraps a Jina Reader client as a Scraper with a circuit breaker.
type JinaAdapter struct {
	client  jina.Client
	breaker *resilience.CircuitBreaker
}

// NewJinaAdapter creates a JinaAdapter from a Jina client.
// Three consecutive failures open the circuit for 60s, causing immediate
// fallback to the next scraper.
func NewJinaAdapter(client jina.Client) *JinaAdapter {
	return &JinaAdapter{
		client: client,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     60 * time.Second,
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("scrape: jina circuit state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
}

func (j *JinaAdapter) Name() string { return "jina" }

// Supports returns true unless the circuit breaker is open.
func (j *JinaAdapter) Supports(_ string) bool {
	return j.breaker.State() != resilience.CircuitOpen
}

// Scrape fetches a URL via Jina Reader and validates the response.
func (j *JinaAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	return resilience.ExecuteVal(ctx, j.breaker, func(ctx context.Context) (*Result, error) {
		resp, err := j.client.Read(ctx, targetURL)
		if err != nil {
			var apiErr *jina.APIError
			if errors.As(err, &apiErr) {
				return nil, resilience.StatusError(err, apiErr.StatusCode)
			}
			return nil, err
		}
		if reason := needsFallback(resp); reason != "" {
			return nil, eris.Errorf("jina: %s", reason)
		}
		return &Result{
			Page: Page{
				URL:         resp.Data.URL,
				Title:       resp.Data.Title,
				Description: resp.Data.Description,
				Markdown:    resp.Data.Content,
				StatusCode:  resp.Code,
			},
			Source: "jina",
		}, nil
	})
}

// needsFallback returns why a Jina response is unusable, or "" when the
// content can be parsed.
func needsFallback(resp *jina.ReadResponse) string {
	if resp == nil {
		return "empty response"
	}
	if resp.Code == 404 {
		return "page not found"
	}
	if resp.Code != 0 && resp.Code != 200 {
		return "upstream status " + strconv.Itoa(resp.Code)
	}
	content := strings.TrimSpace(resp.Data.Content)
	if len(content) < 100 && resp.Data.Description == "" {
		return "content too short"
	}
	if bt := DetectBlock(resp.Code, content); bt != BlockNone {
		return "blocked (" + string(bt) + ")"
	}
	return ""
}
