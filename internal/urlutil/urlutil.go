// Package urlutil holds the small URL helpers shared by the extractor and the citation pipeline.
package urlutil

import (
	"net/url"
	"strings"
)

// Domain returns the host of rawURL with a leading "www." removed, or "" when it cannot be parsed.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Host, "www.")
}

// ParentURL drops the last path segment and keeps a trailing slash.
// It returns "" when rawURL is already at the site root.
func ParentURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	path := strings.TrimRight(u.Path, "/")
	if path == "" {
		return ""
	}
	parent := path[:strings.LastIndex(path, "/")+1]
	if parent == "" {
		parent = "/"
	}
	return u.Scheme + "://" + u.Host + parent
}

// HomeURL turns a bare site name into an https home page URL.
func HomeURL(site string) string {
	if strings.HasPrefix(site, "http") {
		return site
	}
	return "https://" + site
}

// TopSourceHomeURL normalizes an allow-listed site to its canonical www home page.
func TopSourceHomeURL(site string) string {
	clean := strings.ToLower(strings.TrimSpace(site))
	switch {
	case strings.HasPrefix(clean, "http"):
		return clean
	case strings.HasPrefix(clean, "www."):
		return "https://" + clean
	default:
		return "https://www." + clean
	}
}

// Resolve joins href against base, leaving absolute http(s) links untouched.
func Resolve(base, href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

// Path returns the path component of rawURL, or "" when it cannot be parsed.
func Path(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Path
}
