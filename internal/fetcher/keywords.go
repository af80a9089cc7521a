package fetcher

import (
	"bytes"
	"context"
	"strings"
)

// KeywordFilter wraps a Fetcher and rejects pages that contain none of the
// configured keywords. Matching is a case-insensitive substring search.
type KeywordFilter struct {
	next     Fetcher
	keywords [][]byte // lowercased
}

// WithKeywords returns next unchanged when no keywords are given
func WithKeywords(next Fetcher, keywords []string) Fetcher {
	lowered := make([][]byte, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		lowered = append(lowered, []byte(strings.ToLower(k)))
	}
	if len(lowered) == 0 {
		return next
	}
	return &KeywordFilter{next: next, keywords: lowered}
}

// Fetch returns ErrFiltered when the page matches no keyword
func (k *KeywordFilter) Fetch(ctx context.Context, url string) ([]byte, error) {
	content, err := k.next.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if !k.Match(content) {
		return nil, ErrFiltered
	}
	return content, nil
}

// Match reports whether content contains at least one keyword
func (k *KeywordFilter) Match(content []byte) bool {
	lower := bytes.ToLower(content)
	for _, kw := range k.keywords {
		if bytes.Contains(lower, kw) {
			return true
		}
	}
	return false
}
