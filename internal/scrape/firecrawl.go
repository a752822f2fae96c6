package scrape

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/qualify-cli/internal/resilience"
	"github.com/sells-group/qualify-cli/pkg/firecrawl"
)

// FirecrawlAdapter wraps a Firecrawl client as a Scraper for single-page scrapes.
type FirecrawlAdapter struct {
	client firecrawl.Client
}

// NewFirecrawlAdapter creates a FirecrawlAdapter from a Firecrawl client.
func NewFirecrawlAdapter(client firecrawl.Client) *FirecrawlAdapter {
	return &FirecrawlAdapter{client: client}
}

// Name implements Scraper.
func (f *FirecrawlAdapter) Name() string { return "firecrawl" }

// Supports returns true. Firecrawl renders JavaScript, so it can attempt
// any URL as the last resort.
func (f *FirecrawlAdapter) Supports(_ string) bool { return true }

// Scrape fetches a single URL via Firecrawl's scrape API.
func (f *FirecrawlAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	resp, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:     targetURL,
		Formats: []string{"markdown"},
		WaitFor: 1500,
	})
	if err != nil {
		var apiErr *firecrawl.APIError
		if errors.As(err, &apiErr) {
			return nil, resilience.StatusError(err, apiErr.StatusCode)
		}
		return nil, err
	}
	if !resp.Success {
		return nil, eris.New("firecrawl: scrape not successful")
	}
	md := resp.Data.Metadata
	if md.StatusCode == 404 {
		return nil, eris.New("firecrawl: page not found")
	}
	if bt := DetectBlock(md.StatusCode, resp.Data.Markdown); bt != BlockNone {
		return nil, eris.Errorf("firecrawl: blocked (%s)", bt)
	}
	return &Result{
		Page: Page{
			URL:         md.SourceURL,
			Title:       md.Title,
			Description: md.Description,
			Markdown:    resp.Data.Markdown,
			StatusCode:  md.StatusCode,
		},
		Source: "firecrawl",
	}, nil
}
