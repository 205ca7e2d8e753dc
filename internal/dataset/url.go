package dataset

import (
	"net/url"
	"strings"
)

// CanonicalizeURL reduces a post URL to its deduplication key: scheme and
// host lowercased, trailing slashes stripped from the path, query and
// fragment dropped. Returns "" for inputs that cannot be parsed so callers
// can filter them out. Idempotent.
func CanonicalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
