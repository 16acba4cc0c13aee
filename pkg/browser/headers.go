package browser

import (
	"math/rand"
	"sort"
	"strings"
)

// DefaultUserAgents is the pool one agent is drawn from per run
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.4430.85 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0.2 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:89.0) Gecko/20100101 Firefox/89.0",
}

// Profile names
const (
	ProfileListing   = "listing"
	ProfileDetail    = "profile"
	ProfileESListing = "es-listing"
)

const documentAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"

// HeaderProfile is an immutable set of request headers applied to every page of a session
type HeaderProfile struct {
	name      string
	userAgent string
	headers   map[string]string // lowercase name -> value, excluding user-agent
}

// Name returns the profile name
func (p HeaderProfile) Name() string { return p.name }

// UserAgent returns the agent fixed for this profile
func (p HeaderProfile) UserAgent() string { return p.userAgent }

// Get returns a header value by case-insensitive name
func (p HeaderProfile) Get(name string) string {
	name = strings.ToLower(name)
	if name == "user-agent" {
		return p.userAgent
	}
	return p.headers[name]
}

// Pairs returns the non-agent headers as a flat name/value list in name order
func (p HeaderProfile) Pairs() []string {
	names := make([]string, 0, len(p.headers))
	for k := range p.headers {
		names = append(names, k)
	}
	sort.Strings(names)
	pairs := make([]string, 0, len(names)*2)
	for _, k := range names {
		pairs = append(pairs, k, p.headers[k])
	}
	return pairs
}

// HeaderProfiles holds the per-run header sets; build it once with NewHeaderProfiles
type HeaderProfiles struct {
	Listing   HeaderProfile
	Profile   HeaderProfile
	ESListing HeaderProfile
}

// NewHeaderProfiles draws one user agent from agents (DefaultUserAgents when empty) and
// builds every profile around it. rng may be nil.
func NewHeaderProfiles(agents []string, rng *rand.Rand) HeaderProfiles {
	if len(agents) == 0 {
		agents = DefaultUserAgents
	}
	var idx int
	if rng != nil {
		idx = rng.Intn(len(agents))
	} else {
		idx = rand.Intn(len(agents))
	}
	ua := agents[idx]

	common := func(site string) map[string]string {
		return map[string]string{
			"accept":             documentAccept,
			"accept-language":    "en-US,en;q=0.9",
			"cache-control":      "max-age=0",
			"priority":           "u=0, i",
			"sec-ch-ua-mobile":   "?0",
			"sec-ch-ua-platform": `"macOS"`,
			"sec-fetch-dest":     "document",
			"sec-fetch-mode":     "navigate",
			"sec-fetch-site":     site,
			"sec-fetch-user":     "?1",
		}
	}

	listing := common("none")

	profile := common("same-origin")
	profile["upgrade-insecure-requests"] = "1"

	esListing := common("same-origin")
	esListing["upgrade-insecure-requests"] = "1"

	return HeaderProfiles{
		Listing:   HeaderProfile{name: ProfileListing, userAgent: ua, headers: listing},
		Profile:   HeaderProfile{name: ProfileDetail, userAgent: ua, headers: profile},
		ESListing: HeaderProfile{name: ProfileESListing, userAgent: ua, headers: esListing},
	}
}

// ForListing returns the listing profile for a site key
func (h HeaderProfiles) ForListing(site string) HeaderProfile {
	if site == "es" {
		return h.ESListing
	}
	return h.Listing
}
