// Package scrape reads public profile pages through a chain of hosted reader
// services and turns them into basic profile records.
package scrape

import "context"

// Page is the readable content of one fetched URL.
type Page struct {
	URL         string
	Title       string
	Description string
	Markdown    string
	StatusCode  int
}

// Result holds a scraped page with its source.
type Result struct {
	Page   Page
	Source string // e.g. "jina", "firecrawl"
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
	Supports(url string) bool
}
