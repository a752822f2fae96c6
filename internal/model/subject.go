package model

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var handlePattern = regexp.MustCompile(`^[a-z0-9._]{1,30}$`)

// NormalizeSubject canonicalizes a handle so that visually identical inputs
// map to the same cache key.
func NormalizeSubject(s string) string {
	s = norm.NFKC.String(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "@")
	// Casers carry state and must not be shared across goroutines.
	return cases.Fold().String(s)
}

// ParseProfileRef accepts "@handle", "handle" or a profile URL and returns
// the normalized subject id.
func ParseProfileRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", eris.New("model: empty profile reference")
	}

	if strings.Contains(ref, "/") {
		raw := ref
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return "", eris.Wrapf(err, "model: parse profile url %q", ref)
		}
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		if host != "instagram.com" {
			return "", eris.Errorf("model: unsupported profile host %q", u.Hostname())
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 0 || parts[0] == "" {
			return "", eris.Errorf("model: no handle in %q", ref)
		}
		ref = parts[0]
	}

	subject := NormalizeSubject(ref)
	if !handlePattern.MatchString(subject) {
		return "", eris.Errorf("model: invalid handle %q", ref)
	}
	return subject, nil
}

// ProfileURL is the public profile page for a subject.
func ProfileURL(subject string) string {
	return "https://www.instagram.com/" + subject + "/"
}
