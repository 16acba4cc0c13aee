// Package geo reverse-geocodes record coordinates through a Nominatim endpoint.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/Sriram-PR/bizdir-scraper/pkg/config"
	"github.com/Sriram-PR/bizdir-scraper/pkg/fetch"
	"github.com/Sriram-PR/bizdir-scraper/pkg/models"
	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

// Address parts never copied onto a record
var excludedParts = map[string]bool{
	"postcode": true,
	"gender":   true,
	"historic": true,
	"man_made": true,
}

// Address is a reverse-geocoding result; Parts keeps Nominatim's field order
type Address struct {
	Postcode string
	Parts    *orderedmap.OrderedMap[string, string]
}

type coordinate struct{ lat, lon string }

type reverseResponse struct {
	Address *orderedmap.OrderedMap[string, string] `json:"address"`
	Error   string                                 `json:"error"`
}

// Geocoder resolves coordinates to addresses, one request at a time, caching by coordinate pair
type Geocoder struct {
	fetcher     *fetch.Fetcher
	limiter     *fetch.RateLimiter
	base        *url.URL
	userAgent   string
	minInterval time.Duration

	reqMu   sync.Mutex // Serializes lookups so the per-host interval holds under concurrent windows
	cacheMu sync.Mutex
	cache   map[coordinate]*Address
	log     *logrus.Entry
}

// New creates a Geocoder for cfg.BaseURL
func New(cfg config.GeocodingConfig, fetcher *fetch.Fetcher, limiter *fetch.RateLimiter, log *logrus.Entry) (*Geocoder, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("%w: geocoding base_url %q", utils.ErrConfigValidation, cfg.BaseURL)
	}
	return &Geocoder{
		fetcher:     fetcher,
		limiter:     limiter,
		base:        base,
		userAgent:   cfg.UserAgent,
		minInterval: cfg.MinInterval,
		cache:       make(map[coordinate]*Address),
		log:         log.WithField("component", "geocoder"),
	}, nil
}

// Enrich adds zipcode and the address parts for the record's latitude/longitude.
// Records without coordinates are left alone.
func (g *Geocoder) Enrich(ctx context.Context, rec *models.Record) error {
	lat, lon := rec.Value("latitude"), rec.Value("longitude")
	if !models.IsAvailable(lat) || !models.IsAvailable(lon) {
		return nil
	}

	addr, err := g.Reverse(ctx, lat, lon)
	if err != nil {
		return err
	}
	if addr == nil {
		g.log.Debugf("No postcode for (%s, %s)", lat, lon)
		return nil
	}

	rec.Set("zipcode", addr.Postcode)
	for pair := addr.Parts.Oldest(); pair != nil; pair = pair.Next() {
		if excludedParts[pair.Key] {
			continue
		}
		rec.Set(pair.Key, pair.Value)
	}
	return nil
}

// Reverse looks up lat/lon. A nil address with a nil error means the location has no postcode.
// Only results carrying a postcode are cached.
func (g *Geocoder) Reverse(ctx context.Context, lat, lon string) (*Address, error) {
	key := coordinate{strings.TrimSpace(lat), strings.TrimSpace(lon)}

	g.cacheMu.Lock()
	cached, ok := g.cache[key]
	g.cacheMu.Unlock()
	if ok {
		return cached, nil
	}

	g.reqMu.Lock()
	defer g.reqMu.Unlock()

	// Another caller may have resolved it while we waited
	g.cacheMu.Lock()
	cached, ok = g.cache[key]
	g.cacheMu.Unlock()
	if ok {
		return cached, nil
	}

	addr, err := g.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if addr != nil {
		g.cacheMu.Lock()
		g.cache[key] = addr
		g.cacheMu.Unlock()
	}
	return addr, nil
}

func (g *Geocoder) lookup(ctx context.Context, c coordinate) (*Address, error) {
	endpoint := *g.base
	endpoint.Path += "/reverse"
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", c.lat)
	q.Set("lon", c.lon)
	q.Set("addressdetails", "1")
	endpoint.RawQuery = q.Encode()

	if err := g.limiter.ApplyDelay(ctx, g.base.Host, g.minInterval); err != nil {
		return nil, err
	}
	defer g.limiter.UpdateLastRequestTime(g.base.Host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	g.log.Debugf("Reverse geocoding (%s, %s)", c.lat, c.lon)
	resp, err := g.fetcher.FetchWithRetry(ctx, req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)
	}
	var parsed reverseResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: geocoding response: %w", utils.ErrParsing, err)
	}
	if parsed.Error != "" || parsed.Address == nil {
		return nil, nil
	}
	postcode, ok := parsed.Address.Get("postcode")
	if !ok || strings.TrimSpace(postcode) == "" {
		return nil, nil
	}
	return &Address{Postcode: postcode, Parts: parsed.Address}, nil
}
