package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RobotsHandler fetches, caches, and evaluates robots.txt per host
type RobotsHandler struct {
	fetcher     *Fetcher
	rateLimiter *RateLimiter
	userAgent   string
	robotsCache map[string]*robotstxt.RobotsData // hostname -> parsed data (nil when unavailable)
	robotsMu    sync.Mutex
	log         *logrus.Entry
}

// NewRobotsHandler creates a RobotsHandler that identifies itself with userAgent
func NewRobotsHandler(fetcher *Fetcher, rateLimiter *RateLimiter, userAgent string, log *logrus.Entry) *RobotsHandler {
	return &RobotsHandler{
		fetcher:     fetcher,
		rateLimiter: rateLimiter,
		userAgent:   userAgent,
		robotsCache: make(map[string]*robotstxt.RobotsData),
		log:         log.WithField("component", "robots"),
	}
}

// GetRobotsData returns robots.txt rules for targetURL's host, fetching once per host.
// Any fetch or parse failure is cached as nil.
func (rh *RobotsHandler) GetRobotsData(ctx context.Context, targetURL *url.URL) *robotstxt.RobotsData {
	host := targetURL.Hostname()

	rh.robotsMu.Lock()
	defer rh.robotsMu.Unlock()
	if data, found := rh.robotsCache[host]; found {
		return data
	}

	data := rh.fetchRobots(ctx, targetURL)
	if ctx.Err() == nil {
		rh.robotsCache[host] = data
	}
	return data
}

func (rh *RobotsHandler) fetchRobots(ctx context.Context, targetURL *url.URL) *robotstxt.RobotsData {
	host := targetURL.Hostname()
	robotsURL := &url.URL{Scheme: targetURL.Scheme, Host: targetURL.Host, Path: "/robots.txt"}
	if robotsURL.Scheme != "http" && robotsURL.Scheme != "https" {
		robotsURL.Scheme = "https"
	}
	robotsLog := rh.log.WithField("robots_url", robotsURL.String())
	robotsLog.Info("Fetching robots.txt...")

	if err := rh.rateLimiter.ApplyDelay(ctx, host, 0); err != nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		robotsLog.Errorf("Error creating request: %v", err)
		return nil
	}
	req.Header.Set("User-Agent", rh.userAgent)

	resp, err := rh.fetcher.FetchWithRetry(ctx, req)
	rh.rateLimiter.UpdateLastRequestTime(host)
	if err != nil {
		drain(resp)
		robotsLog.Warnf("robots.txt unavailable, treating host as unrestricted: %v", err)
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		robotsLog.Errorf("Error reading body: %v", err)
		return nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		robotsLog.Errorf("Error parsing robots.txt: %v", err)
		return nil
	}
	robotsLog.Debug("Parsed robots.txt")
	return data
}

// Allowed reports whether rawURL may be fetched. Unparseable URLs are disallowed;
// hosts whose robots.txt cannot be obtained are allowed.
func (rh *RobotsHandler) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	data := rh.GetRobotsData(ctx, u)
	if data == nil {
		return true
	}
	return data.TestAgent(u.RequestURI(), rh.userAgent)
}
