package scrape

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/qualify-cli/internal/model"
)

var (
	countsPattern = regexp.MustCompile(`(?i)([\d.,]+\s*[KMB]?)\s+Followers?,\s*([\d.,]+\s*[KMB]?)\s+Following,\s*([\d.,]+\s*[KMB]?)\s+Posts?`)
	titlePattern  = regexp.MustCompile(`^(.*?)\s*\(@([A-Za-z0-9._]+)\)`)
	bioPattern    = regexp.MustCompile(`\(@[A-Za-z0-9._]+\)(?: on Instagram)?:\s*"(.+)"`)
)

// ProfileReader fetches a public profile page and parses it into a basic
// profile record without posts. Private accounts are reported as errors
// since their content cannot be qualified.
type ProfileReader struct {
	scraper Scraper
	now     func() time.Time
}

// NewProfileReader creates a ProfileReader over s, usually a Chain.
func NewProfileReader(s Scraper) *ProfileReader {
	return &ProfileReader{scraper: s, now: time.Now}
}

// Read returns the basic profile for subject.
func (r *ProfileReader) Read(ctx context.Context, subject string) (*model.Profile, error) {
	res, err := r.scraper.Scrape(ctx, model.ProfileURL(subject))
	if err != nil {
		return nil, err
	}
	p, err := ParseProfilePage(res.Page, subject)
	if err != nil {
		return nil, err
	}
	if p.IsPrivate {
		return nil, eris.Errorf("reader: account @%s is private", subject)
	}
	p.Source = "reader:" + res.Source
	p.FetchedAt = r.now().UTC()
	return p, nil
}

// ParseProfilePage extracts profile counts, name and bio from the page title,
// meta description and body text.
func ParseProfilePage(page Page, subject string) (*model.Profile, error) {
	text := page.Description + "\n" + page.Markdown
	lower := strings.ToLower(text)

	if page.StatusCode == 404 || strings.Contains(lower, "sorry, this page isn't available") ||
		strings.Contains(lower, "sorry, this page isn’t available") {
		return nil, eris.Errorf("reader: profile @%s not found", subject)
	}

	m := countsPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, eris.Errorf("reader: no profile counts on page for @%s", subject)
	}

	p := &model.Profile{
		Username:       subject,
		FollowersCount: parseCount(m[1]),
		FollowingCount: parseCount(m[2]),
		PostsCount:     parseCount(m[3]),
		IsPrivate:      strings.Contains(lower, "this account is private"),
		Quality:        model.DataQualityBasic,
	}
	if tm := titlePattern.FindStringSubmatch(page.Title); tm != nil {
		p.FullName = strings.TrimSpace(tm[1])
	}
	if bm := bioPattern.FindStringSubmatch(text); bm != nil {
		p.Bio = strings.TrimSpace(bm[1])
	}
	return p, nil
}

// parseCount converts "12K", "1.2M" or "1,234" into an integer.
func parseCount(s string) int64 {
	s = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "K"):
		mult, s = 1e3, strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		mult, s = 1e6, strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "B"):
		mult, s = 1e9, strings.TrimSuffix(s, "B")
	}
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(f*mult + 0.5)
}
