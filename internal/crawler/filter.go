package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// Normalizer turns raw href values found on a page into canonical absolute
// URLs for the crawled site, or rejects them.
type Normalizer struct {
	base           string // scheme://host of the seed
	host           string
	contentPrefix  string // e.g. /wiki/
	reservedPrefix string // e.g. /w
	keepExternal   bool
}

// NewNormalizer derives the site base from seedURL
func NewNormalizer(seedURL, contentPrefix, reservedPrefix string, keepExternal bool) (*Normalizer, error) {
	parsed, err := url.Parse(seedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid seed URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("seed URL %q is not absolute", seedURL)
	}

	host := strings.ToLower(parsed.Host)
	return &Normalizer{
		base:           strings.ToLower(parsed.Scheme) + "://" + host,
		host:           host,
		contentPrefix:  contentPrefix,
		reservedPrefix: reservedPrefix,
		keepExternal:   keepExternal,
	}, nil
}

// Canonical returns the form rawURL takes in the graph: lowercase scheme and
// host, no fragment. Links found on pages resolve to the same form, so a page
// keeps one identifier however it was reached.
func (n *Normalizer) Canonical(rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("URL %q is not absolute", rawURL)
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host) + parsed.RequestURI(), nil
}

// Normalize returns the canonical form of href and whether it is accepted.
//
// Site links start with a single slash. Absolute and protocol-relative URLs
// pointing at the crawled site are reduced to their path and treated the
// same way. Anything else (other hosts, fragment-only links) is external and
// is returned untouched only when external links are kept. Site links
// containing a colon are namespaced pages and are rejected, as are paths
// under the reserved prefix that are not content pages. The fragment is
// stripped.
func (n *Normalizer) Normalize(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	if path, ok := n.sitePath(href); ok {
		href = path
	}

	if !strings.HasPrefix(href, "/") || strings.HasPrefix(href, "//") {
		if !n.keepExternal {
			return "", false
		}
		if strings.HasPrefix(href, "//") {
			return strings.SplitN(n.base, ":", 2)[0] + ":" + href, true
		}
		return href, true
	}

	if strings.Contains(href, ":") {
		return "", false
	}

	if n.reservedPrefix != "" && strings.HasPrefix(href, n.reservedPrefix) &&
		!strings.HasPrefix(href, strings.TrimSuffix(n.contentPrefix, "/")) {
		return "", false
	}

	if path, _, found := strings.Cut(href, "#"); found {
		href = path
	}

	return n.base + href, true
}

// sitePath strips the scheme and host from links to the crawled site
func (n *Normalizer) sitePath(href string) (string, bool) {
	for _, prefix := range []string{n.base, "//" + n.host} {
		if len(href) < len(prefix) || !strings.EqualFold(href[:len(prefix)], prefix) {
			continue
		}
		rest := href[len(prefix):]
		switch {
		case rest == "":
			return "/", true
		case strings.HasPrefix(rest, "/") && !strings.HasPrefix(rest, "//"):
			return rest, true
		}
	}
	return "", false
}

// IsInternal reports whether a canonical URL is a content page of the
// crawled site and so may be crawled in turn.
func (n *Normalizer) IsInternal(canonical string) bool {
	return strings.HasPrefix(canonical, n.base+n.contentPrefix)
}

// Base returns the scheme and host every site link is resolved against
func (n *Normalizer) Base() string {
	return n.base
}
