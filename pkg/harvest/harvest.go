// Package harvest visits listing pages and collects the profile endpoints they link to.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bizdir-scraper/pkg/browser"
	"github.com/Sriram-PR/bizdir-scraper/pkg/fetch"
	"github.com/Sriram-PR/bizdir-scraper/pkg/models"
	"github.com/Sriram-PR/bizdir-scraper/pkg/parse"
	"github.com/Sriram-PR/bizdir-scraper/pkg/sites"
	"github.com/Sriram-PR/bizdir-scraper/pkg/storage"
	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

// RobotsPolicy decides whether a listing URL may be visited
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Options bound the harvest navigation
type Options struct {
	NavigationTimeout time.Duration
	ReadyTimeout      time.Duration
	Retry             fetch.RetryPolicy
	PolitenessDelay   time.Duration // Minimum gap between listing navigations, jittered by the rate limiter
}

// Harvester walks every persisted listing batch and writes one endpoint file per batch
type Harvester struct {
	site    sites.Site
	factory browser.SessionFactory
	headers browser.HeaderProfile
	store   *storage.EndpointStore
	limiter *fetch.RateLimiter
	robots  RobotsPolicy // nil allows everything
	opts    Options
	log     *logrus.Entry
}

// New creates a Harvester. robots may be nil.
func New(site sites.Site, factory browser.SessionFactory, headers browser.HeaderProfile, store *storage.EndpointStore,
	limiter *fetch.RateLimiter, robots RobotsPolicy, opts Options, log *logrus.Entry) *Harvester {
	return &Harvester{
		site:    site,
		factory: factory,
		headers: headers,
		store:   store,
		limiter: limiter,
		robots:  robots,
		opts:    opts,
		log:     log.WithFields(logrus.Fields{"component": "harvest", "site": site.Key()}),
	}
}

// run holds the session shared by one Harvest call; a torn-down session is replaced lazily
type run struct {
	h       *Harvester
	session browser.Session
}

func (r *run) open(ctx context.Context) (browser.Session, error) {
	if r.session != nil {
		return r.session, nil
	}
	s, err := r.h.factory.NewSession(ctx, r.h.headers)
	if err != nil {
		return nil, err
	}
	r.session = s
	return s, nil
}

func (r *run) reset() {
	if r.session != nil {
		r.session.Close()
		r.session = nil
	}
}

// Harvest reads every listing batch, truncated to limit URLs when limit > 0, and overwrites each
// batch's endpoint file with the endpoints found. A URL that keeps failing is skipped.
// Returns ErrStageFailure when there is nothing to harvest or no endpoint was found at all.
func (h *Harvester) Harvest(ctx context.Context, limit int) (models.HarvestSummary, error) {
	var summary models.HarvestSummary

	batches, err := h.store.ReadListingBatches(limit)
	if err != nil {
		return summary, fmt.Errorf("%w: reading listing URLs: %w", utils.ErrStageFailure, err)
	}
	if len(batches) == 0 {
		return summary, fmt.Errorf("%w: no listing URLs in %s", utils.ErrStageFailure, h.store.ListingDir())
	}

	r := &run{h: h}
	defer r.reset()

	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Batches++
		endpoints, failed, err := h.harvestBatch(ctx, r, batch)
		summary.ListingPages += len(batch.URLs)
		summary.FailedPages += failed
		if err != nil {
			return summary, err
		}

		endpoints = parse.DedupeURLs(endpoints)
		if h.site.TruncatesHarvest() && limit > 0 && len(endpoints) > limit {
			endpoints = endpoints[:limit]
		}
		if len(endpoints) == 0 {
			h.log.WithField("batch", batch.Name).Warn("No profile endpoints found for batch")
			continue
		}

		path, err := h.store.WriteEndpoints(batch.Name, endpoints)
		if err != nil {
			return summary, fmt.Errorf("%w: %w", utils.ErrStageFailure, err)
		}
		summary.Endpoints += len(endpoints)
		summary.OutputFiles = append(summary.OutputFiles, path)
	}

	if summary.Endpoints == 0 {
		return summary, fmt.Errorf("%w: no profile endpoints harvested from %d listing pages", utils.ErrStageFailure, summary.ListingPages)
	}
	h.log.Infof("Harvested %d endpoints from %d listing pages (%d failed) into %d file(s)",
		summary.Endpoints, summary.ListingPages, summary.FailedPages, len(summary.OutputFiles))
	return summary, nil
}

// harvestBatch visits the batch's listing URLs in order. Only cancellation aborts it.
func (h *Harvester) harvestBatch(ctx context.Context, r *run, batch models.ListingBatch) ([]string, int, error) {
	log := h.log.WithField("batch", batch.Name)
	log.Infof("Harvesting %d listing pages", len(batch.URLs))

	var endpoints []string
	failed := 0
	for _, listingURL := range batch.URLs {
		urlLog := log.WithField("url", listingURL)

		if h.robots != nil && !h.robots.Allowed(ctx, listingURL) {
			urlLog.Warn("Disallowed by robots.txt, skipping")
			failed++
			continue
		}

		found, err := h.harvestPage(ctx, r, listingURL, urlLog)
		if err != nil {
			if ctx.Err() != nil {
				return endpoints, failed, ctx.Err()
			}
			urlLog.WithField("error_type", utils.CategorizeError(err)).Errorf("Giving up on listing page: %v", err)
			failed++
			continue
		}
		urlLog.Debugf("Found %d endpoints", len(found))
		endpoints = append(endpoints, found...)
	}
	return endpoints, failed, nil
}

// harvestPage loads one listing page with retries and returns the endpoints on it
func (h *Harvester) harvestPage(ctx context.Context, r *run, listingURL string, log *logrus.Entry) ([]string, error) {
	host := hostOf(listingURL)
	var found []string

	err := fetch.Retry(ctx, h.opts.Retry, log, func(ctx context.Context, attempt int) error {
		if h.limiter != nil {
			if err := h.limiter.ApplyDelay(ctx, host, h.opts.PolitenessDelay); err != nil {
				return err
			}
			defer h.limiter.UpdateLastRequestTime(host)
		}

		session, err := r.open(ctx)
		if err != nil {
			return fmt.Errorf("%w: opening browser session: %v", utils.ErrTransientNavigation, err)
		}

		markup, err := browser.LoadInNewPage(ctx, session, listingURL, browser.LoadOptions{
			NavigationTimeout: h.opts.NavigationTimeout,
			ReadyTimeout:      h.opts.ReadyTimeout,
			ReadySelector:     h.site.ResultsReadySelector(),
			DismissCookies:    attempt == 1,
		}, log)
		if err != nil {
			if errors.Is(err, utils.ErrContextTeardown) {
				// The next attempt gets a fresh session
				r.reset()
				return fmt.Errorf("%w: %v", utils.ErrTransientNavigation, err)
			}
			return err
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
		if err != nil {
			return fmt.Errorf("%w: listing HTML: %w", utils.ErrParsing, err)
		}
		found = h.site.ParseEndpoints(doc)
		return nil
	})
	return found, err
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
