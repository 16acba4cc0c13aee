package parse

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

// NormalizeURL standardizes a URL for comparison (dedup keys), not for navigation.
// It lowercases the scheme and host, removes default ports, trims a trailing slash
// (unless root), turns an empty path into "/", and drops fragment and query.
// Does not modify the input *url.URL
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	normalized := *u

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	if host, port, err := net.SplitHostPort(normalized.Host); err == nil {
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host
		}
	}

	if normalized.Path == "" {
		normalized.Path = "/"
	} else if len(normalized.Path) > 1 && strings.HasSuffix(normalized.Path, "/") {
		normalized.Path = normalized.Path[:len(normalized.Path)-1]
	}

	normalized.Fragment = ""
	normalized.RawQuery = ""

	return normalized.String()
}

// ParseAndNormalize parses an absolute URL with url.ParseRequestURI and normalizes it.
// Returns the normalized string, the parsed URL, and any parse error
func ParseAndNormalize(urlStr string) (string, *url.URL, error) {
	parsed, err := url.ParseRequestURI(urlStr)
	if err != nil {
		return "", nil, err
	}
	return NormalizeURL(parsed), parsed, nil
}

// ResolveEndpoint turns an attribute value from a listing page into an absolute profile URL.
// Relative values resolve against base; the fragment is dropped, path and query are kept as-is.
func ResolveEndpoint(base *url.URL, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("%w: empty endpoint URL", utils.ErrParsing)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("%w: endpoint URL %q: %v", utils.ErrParsing, href, err)
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if !abs.IsAbs() || abs.Host == "" {
		return "", fmt.Errorf("%w: endpoint URL %q is not absolute", utils.ErrParsing, href)
	}
	abs.Fragment = ""
	abs.Host = strings.ToLower(abs.Host)
	return abs.String(), nil
}

// PageNumber returns the numeric last path segment of a listing URL ("…/bakker/12" -> 12)
func PageNumber(rawURL string) (int, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, false
	}
	last := path.Base(strings.TrimSuffix(u.Path, "/"))
	n, err := strconv.Atoi(last)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// SortByPageNumber orders listing URLs by numeric page suffix, so "/9" precedes "/10".
// URLs without a numeric suffix keep their relative order after the numbered ones.
func SortByPageNumber(urls []string) {
	sort.SliceStable(urls, func(i, j int) bool {
		ni, okI := PageNumber(urls[i])
		nj, okJ := PageNumber(urls[j])
		switch {
		case okI && okJ:
			return ni < nj
		case okI:
			return true
		default:
			return false
		}
	})
}

// DedupeURLs returns urls without repeats (by NormalizeURL), keeping first-seen order and spelling
func DedupeURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		key := raw
		if u, err := url.Parse(raw); err == nil {
			key = NormalizeURL(u)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, raw)
	}
	return out
}
