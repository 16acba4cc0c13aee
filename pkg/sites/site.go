// Package sites describes the two supported business directories: how their listing
// URLs are built, where results and counts live in the markup, and how a profile page
// is turned into a record.
package sites

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/bizdir-scraper/pkg/models"
	"github.com/Sriram-PR/bizdir-scraper/pkg/parse"
	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

// Site keys as used in configuration ("country") and on disk
const (
	KeyNL = "nl"
	KeyES = "es"
)

// Site is the per-directory knowledge used by every pipeline stage
type Site interface {
	Key() string
	// BaseURL is the scheme and host against which relative endpoints resolve
	BaseURL() *url.URL
	PageSize() int
	BatchName(q models.ListingQuery) string
	ListingURL(q models.ListingQuery, page int) string

	// CountReadySelector must be visible before the result count is read
	CountReadySelector() string
	// ParseCount reads the total result count; false when the count element is absent or has no digits
	ParseCount(doc *goquery.Document) (int, bool)

	ResultsReadySelector() string
	// ParseEndpoints returns absolute profile URLs found on one listing page, in page order
	ParseEndpoints(doc *goquery.Document) []string
	// TruncatesHarvest reports whether depth also caps the harvested endpoint list
	TruncatesHarvest() bool

	ProfileReadySelector() string
	// Extract turns profile markup into a record or a typed failure. It never panics.
	Extract(markup string) (*models.Record, *models.ExtractionFailure)
	// DedupFields lists the columns tried, in order, for the record's dedup key
	DedupFields() []string
}

// Options tune extraction
type Options struct {
	DescriptionNoise []*regexp.Regexp // Extra patterns stripped from descriptions
}

// New returns the Site registered under key
func New(key string, opts Options) (Site, error) {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case KeyNL:
		return newGoudenGids(opts), nil
	case KeyES:
		return newPaginasAmarillas(opts), nil
	default:
		return nil, fmt.Errorf("%w: unsupported country %q (want %q or %q)", utils.ErrConfigValidation, key, KeyNL, KeyES)
	}
}

// Keys lists the supported site keys
func Keys() []string {
	return []string{KeyNL, KeyES}
}

// parseCountText strips every non-digit and parses the rest
func parseCountText(text string) (int, bool) {
	digits := utils.DigitsOnly(text)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// resolveAll resolves raw attribute values against base, skipping ones that do not form a URL
func resolveAll(base *url.URL, raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		abs, err := parse.ResolveEndpoint(base, r)
		if err != nil {
			continue
		}
		out = append(out, abs)
	}
	return out
}

func mustParse(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}
