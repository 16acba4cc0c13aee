// Package discover finds how many listing pages a query has and persists their URLs.
package discover

import (
	"context"
	"errors"
	"fmt"
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

// Options bound the discovery navigation
type Options struct {
	NavigationTimeout time.Duration
	ReadyTimeout      time.Duration
	Retry             fetch.RetryPolicy
}

// Discoverer reads the result count of a query's first listing page and
// writes one listing URL per result page through the endpoint store.
type Discoverer struct {
	site    sites.Site
	factory browser.SessionFactory
	headers browser.HeaderProfile
	store   *storage.EndpointStore
	opts    Options
	log     *logrus.Entry
}

// New creates a Discoverer; headers is the site's listing header profile
func New(site sites.Site, factory browser.SessionFactory, headers browser.HeaderProfile, store *storage.EndpointStore, opts Options, log *logrus.Entry) *Discoverer {
	return &Discoverer{
		site:    site,
		factory: factory,
		headers: headers,
		store:   store,
		opts:    opts,
		log:     log.WithFields(logrus.Fields{"component": "discover", "site": site.Key()}),
	}
}

// Discover returns the listing URLs of every result page, persisted under the query's batch name.
// ErrEmptyResult means the query has no results, which is not a failure.
// ErrStageFailure means the first listing page could not be read within the retry budget.
func (d *Discoverer) Discover(ctx context.Context, q models.ListingQuery) ([]string, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrConfigValidation, err)
	}

	batch := d.site.BatchName(q)
	firstURL := d.site.ListingURL(q, 1)
	log := d.log.WithFields(logrus.Fields{"batch": batch, "url": firstURL})

	// Opened lazily and replaced after a teardown
	var session browser.Session
	defer func() {
		if session != nil {
			session.Close()
		}
	}()

	var count int
	err := fetch.Retry(ctx, d.opts.Retry, log, func(ctx context.Context, attempt int) error {
		if session == nil {
			s, err := d.factory.NewSession(ctx, d.headers)
			if err != nil {
				return fmt.Errorf("%w: opening browser session: %v", utils.ErrTransientNavigation, err)
			}
			session = s
		}

		log.Infof("Loading first listing page (attempt %d)", attempt)
		markup, err := browser.LoadInNewPage(ctx, session, firstURL, browser.LoadOptions{
			NavigationTimeout: d.opts.NavigationTimeout,
			ReadyTimeout:      d.opts.ReadyTimeout,
			ReadySelector:     d.site.CountReadySelector(),
			ReadyRequired:     true,
			DismissCookies:    true,
		}, log)
		if err != nil {
			if errors.Is(err, utils.ErrContextTeardown) {
				log.Warnf("Browsing context torn down, retrying on a fresh session: %v", err)
				session.Close()
				session = nil
				return fmt.Errorf("%w: %v", utils.ErrTransientNavigation, err)
			}
			return err
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
		if err != nil {
			return fmt.Errorf("%w: listing HTML: %w", utils.ErrParsing, err)
		}
		n, ok := d.site.ParseCount(doc)
		if !ok || n == 0 {
			return utils.ErrEmptyResult
		}
		count = n
		return nil
	})

	switch {
	case errors.Is(err, utils.ErrEmptyResult):
		log.Info("No results for this search")
		return nil, err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	case err != nil:
		log.WithField("error_type", utils.CategorizeError(err)).Errorf("Discovery failed: %v", err)
		return nil, fmt.Errorf("%w: discovering %s: %w", utils.ErrStageFailure, batch, err)
	}

	urls := GeneratePageURLs(d.site, q, count)
	log.Infof("Total results found: %d (%d pages)", count, len(urls))

	if _, err := d.store.WriteListingURLs(batch, urls); err != nil {
		return nil, fmt.Errorf("%w: persisting listing URLs: %w", utils.ErrStageFailure, err)
	}
	return urls, nil
}

// PageCount returns ceil(count/pageSize); zero for a non-positive count
func PageCount(count, pageSize int) int {
	if count <= 0 || pageSize <= 0 {
		return 0
	}
	return (count + pageSize - 1) / pageSize
}

// GeneratePageURLs builds the listing URL of every result page, deduplicated and sorted by page number
func GeneratePageURLs(site sites.Site, q models.ListingQuery, count int) []string {
	pages := PageCount(count, site.PageSize())
	urls := make([]string, 0, pages)
	for page := 1; page <= pages; page++ {
		urls = append(urls, site.ListingURL(q, page))
	}
	urls = parse.DedupeURLs(urls)
	parse.SortByPageNumber(urls)
	return urls
}
