package scrape

import (
	"context"
	"fmt"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/qualify-cli/pkg/firecrawl"
	"github.com/sells-group/qualify-cli/pkg/jina"
)

type mockJina struct{ mock.Mock }

func (m *mockJina) Read(ctx context.Context, targetURL string) (*jina.ReadResponse, error) {
	args := m.Called(ctx, targetURL)
	resp, _ := args.Get(0).(*jina.ReadResponse)
	return resp, args.Error(1)
}

type mockFirecrawl struct{ mock.Mock }

func (m *mockFirecrawl) Scrape(ctx context.Context, req firecrawl.ScrapeRequest) (*firecrawl.ScrapeResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*firecrawl.ScrapeResponse)
	return resp, args.Error(1)
}

// stubScraper implements Scraper for chain tests.
type stubScraper struct {
	name     string
	supports bool
	result   *Result
	err      error
	calls    int
	onCall   func()
}

func (s *stubScraper) Name() string           { return s.name }
func (s *stubScraper) Supports(_ string) bool { return s.supports }
func (s *stubScraper) Scrape(_ context.Context, _ string) (*Result, error) {
	s.calls++
	if s.onCall != nil {
		s.onCall()
	}
	return s.result, s.err
}

type statusErr struct{ code int }

func (e *statusErr) Error() string { return fmt.Sprintf("HTTP %d", e.code) }
