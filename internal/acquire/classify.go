package acquire

import (
	"regexp"
	"strings"

	"github.com/sells-group/qualify-cli/internal/apperr"
)

// Order matters: the first matching kind wins.
var classifiers = []struct {
	kind     apperr.AcquisitionKind
	patterns []string
}{
	{apperr.AcquisitionNotFound, []string{"not found", "not_found", "notfound", "404", "isn't available", "does not exist", "no such user"}},
	{apperr.AcquisitionPrivateAccount, []string{"private"}},
	{apperr.AcquisitionRateLimited, []string{"rate limit", "rate-limit", "ratelimit", "429", "too many requests"}},
	{apperr.AcquisitionTimeout, []string{"timeout", "timed out", "deadline exceeded", "408"}},
	{apperr.AcquisitionScraperFault, []string{"scraper", "actor", "apify", "reader", "jina", "firecrawl", "blocked", "invalid response", "http 5", "circuit breaker"}},
}

// Classify maps a backend error to an acquisition kind by matching its text.
// Mentions of the subject as a handle, a URL path segment or a quoted token
// are removed first so a handle such as "private.chef" cannot steer the
// result. Other text is left alone, so classifier words survive even when
// the handle is spelled the same.
func Classify(err error, subject string) apperr.AcquisitionKind {
	if err == nil {
		return apperr.AcquisitionUnknown
	}
	msg := strings.ToLower(err.Error())
	if subject != "" {
		msg = stripSubject(msg, strings.ToLower(subject))
	}
	for _, c := range classifiers {
		for _, p := range c.patterns {
			if strings.Contains(msg, p) {
				return c.kind
			}
		}
	}
	return apperr.AcquisitionUnknown
}

// stripSubject removes "@subject", "/subject" and quoted subject tokens. A
// token ends where a handle cannot continue; a trailing dot only ends it
// when no handle character follows.
func stripSubject(msg, subject string) string {
	re := regexp.MustCompile(`[@/"']` + regexp.QuoteMeta(subject) + `([^a-z0-9_.]|\.([^a-z0-9_]|$)|$)`)
	return re.ReplaceAllString(msg, " ${1}")
}
