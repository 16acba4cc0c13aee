// Package orchestrate runs the discovery, harvest and profile stages in order for one configured query.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bizdir-scraper/pkg/browser"
	"github.com/Sriram-PR/bizdir-scraper/pkg/config"
	"github.com/Sriram-PR/bizdir-scraper/pkg/discover"
	"github.com/Sriram-PR/bizdir-scraper/pkg/fetch"
	"github.com/Sriram-PR/bizdir-scraper/pkg/geo"
	"github.com/Sriram-PR/bizdir-scraper/pkg/harvest"
	"github.com/Sriram-PR/bizdir-scraper/pkg/models"
	"github.com/Sriram-PR/bizdir-scraper/pkg/profile"
	"github.com/Sriram-PR/bizdir-scraper/pkg/sites"
	"github.com/Sriram-PR/bizdir-scraper/pkg/storage"
	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

// Stage names a pipeline step
type Stage string

const (
	StageDiscover Stage = "discover"
	StageHarvest  Stage = "harvest"
	StageProfiles Stage = "profiles"
)

const stateGCInterval = 10 * time.Minute

// StageResult is the outcome of one stage
type StageResult struct {
	Stage    Stage
	Err      error
	Duration time.Duration
}

// Result summarizes one pipeline run
type Result struct {
	Country     string
	Batch       string
	Stages      []StageResult
	ListingURLs int
	Harvest     models.HarvestSummary
	Profiles    models.ProcessorStats
	Empty       bool // Discovery found no results; later stages were not run
	Success     bool
	Duration    time.Duration
}

// Options inject collaborators; zero values build the production ones
type Options struct {
	Factory browser.SessionFactory // nil launches Chromium per Config.Browser
	Fresh   bool                   // Ignore recorded endpoint state and start over
}

// Orchestrator owns the resources shared by the stages of a run
type Orchestrator struct {
	appCfg  *config.AppConfig
	site    sites.Site
	log     *logrus.Entry
	fresh   bool
	factory browser.SessionFactory
	owned   *browser.Browser // Closed by Close when the orchestrator launched it
	headers browser.HeaderProfiles
	store   *storage.EndpointStore

	fetcher     *fetch.Fetcher
	rateLimiter *fetch.RateLimiter
}

// NewOrchestrator builds the shared resources for appCfg, which must already be validated
func NewOrchestrator(appCfg *config.AppConfig, opts Options, log *logrus.Entry) (*Orchestrator, error) {
	noise, err := utils.CompileRegexPatterns(appCfg.DescriptionNoisePatterns)
	if err != nil {
		return nil, err
	}
	site, err := sites.New(appCfg.Country, sites.Options{DescriptionNoise: noise})
	if err != nil {
		return nil, err
	}
	log = log.WithField("country", site.Key())

	o := &Orchestrator{
		appCfg:  appCfg,
		site:    site,
		log:     log,
		fresh:   opts.Fresh,
		factory: opts.Factory,
		headers: browser.NewHeaderProfiles(appCfg.Browser.UserAgents, nil),
		store:   storage.NewEndpointStore(appCfg.DataDir, site.Key(), log),
	}
	if o.factory == nil {
		o.owned = browser.NewBrowser(appCfg.Browser, log)
		o.factory = o.owned
	}

	httpClient := fetch.NewClient(appCfg.HTTPClientSettings, log)
	o.fetcher = fetch.NewFetcher(httpClient, fetch.PolicyFromConfig(appCfg), log)
	o.rateLimiter = fetch.NewRateLimiter(appCfg.PolitenessDelay, appCfg.PolitenessJitter, log)
	return o, nil
}

// Site returns the site the run targets
func (o *Orchestrator) Site() sites.Site { return o.site }

// Close releases the browser if the orchestrator launched it
func (o *Orchestrator) Close() error {
	if o.owned != nil {
		return o.owned.Close()
	}
	return nil
}

// Run executes discover, harvest and profiles in order. An empty discovery ends the run successfully;
// a failing stage stops every stage after it. Panics are recovered and reported as a failed run.
func (o *Orchestrator) Run(ctx context.Context) (result Result, err error) {
	start := time.Now()
	q := o.appCfg.Query()
	result = Result{Country: o.site.Key(), Batch: o.site.BatchName(q)}

	defer func() {
		if r := recover(); r != nil {
			o.log.WithField("stack", string(debug.Stack())).Errorf("Pipeline panicked: %v", r)
			err = fmt.Errorf("%w: panic: %v", utils.ErrStageFailure, r)
			result.Success = false
		}
		result.Duration = time.Since(start)
		o.logSummary(result, err)
	}()

	o.log.WithFields(logrus.Fields{"keyword": q.Keyword, "region": q.Region, "depth": o.appCfg.Depth}).Info("Starting pipeline")

	err = o.stage(&result, StageDiscover, func() error {
		urls, err := o.Discover(ctx)
		result.ListingURLs = len(urls)
		return err
	})
	if errors.Is(err, utils.ErrEmptyResult) {
		result.Empty = true
		result.Success = true
		return result, nil
	}
	if err != nil {
		return result, err
	}

	err = o.stage(&result, StageHarvest, func() error {
		summary, err := o.Harvest(ctx)
		result.Harvest = summary
		return err
	})
	if err != nil {
		return result, err
	}

	err = o.stage(&result, StageProfiles, func() error {
		stats, err := o.Profiles(ctx)
		result.Profiles = stats
		return err
	})
	if err != nil {
		return result, err
	}

	result.Success = true
	return result, nil
}

func (o *Orchestrator) stage(result *Result, name Stage, fn func() error) error {
	start := time.Now()
	o.log.Infof("Stage %s started", name)
	err := fn()
	result.Stages = append(result.Stages, StageResult{Stage: name, Err: err, Duration: time.Since(start)})
	switch {
	case err == nil:
		o.log.Infof("Stage %s finished in %v", name, time.Since(start).Round(time.Millisecond))
	case errors.Is(err, utils.ErrEmptyResult):
		o.log.Infof("Stage %s found nothing to do", name)
	default:
		o.log.WithField("error_type", utils.CategorizeError(err)).Errorf("Stage %s failed: %v", name, err)
	}
	return err
}

// Discover runs the pagination discoverer for the configured query
func (o *Orchestrator) Discover(ctx context.Context) ([]string, error) {
	d := discover.New(o.site, o.factory, o.headers.ForListing(o.site.Key()), o.store, discover.Options{
		NavigationTimeout: o.appCfg.NavigationTimeout,
		ReadyTimeout:      o.appCfg.ReadyTimeout,
		Retry:             fetch.PolicyFromConfig(o.appCfg),
	}, o.log)
	return d.Discover(ctx, o.appCfg.Query())
}

// Harvest runs the endpoint harvester over every persisted listing batch
func (o *Orchestrator) Harvest(ctx context.Context) (models.HarvestSummary, error) {
	listingHeaders := o.headers.ForListing(o.site.Key())

	var robots harvest.RobotsPolicy
	if o.appCfg.RespectRobots {
		robots = fetch.NewRobotsHandler(o.fetcher, o.rateLimiter, listingHeaders.UserAgent(), o.log)
	}

	h := harvest.New(o.site, o.factory, listingHeaders, o.store, o.rateLimiter, robots, harvest.Options{
		NavigationTimeout: o.appCfg.NavigationTimeout,
		ReadyTimeout:      o.appCfg.ReadyTimeout,
		Retry:             fetch.PolicyFromConfig(o.appCfg),
		PolitenessDelay:   o.appCfg.PolitenessDelay,
	}, o.log)
	return h.Harvest(ctx, o.appCfg.Depth.Limit())
}

// Profiles processes every harvested endpoint into the configured sink.
// No endpoints to process is a stage failure.
func (o *Orchestrator) Profiles(ctx context.Context) (models.ProcessorStats, error) {
	var stats models.ProcessorStats

	endpoints, err := o.store.ReadProfileEndpoints()
	if err != nil {
		return stats, fmt.Errorf("%w: reading profile endpoints: %w", utils.ErrStageFailure, err)
	}
	if len(endpoints) == 0 {
		return stats, fmt.Errorf("%w: no profile endpoints in %s", utils.ErrStageFailure, o.store.EndpointDir())
	}

	state, err := storage.NewBadgerStore(ctx, o.appCfg.StateDir, o.site.Key(), !o.fresh, o.log)
	if err != nil {
		return stats, fmt.Errorf("%w: opening state store: %w", utils.ErrStageFailure, err)
	}
	defer state.Close()

	gcCtx, stopGC := context.WithCancel(ctx)
	defer stopGC()
	go state.RunGC(gcCtx, stateGCInterval)

	sink, err := storage.OpenSink(ctx, o.appCfg.Storage, storage.SinkOptions{
		ProfileDataDir: o.store.ProfileDataDir(),
		DedupFields:    o.site.DedupFields(),
		State:          state,
		Log:            o.log,
	})
	if err != nil {
		return stats, fmt.Errorf("%w: opening %s sink: %w", utils.ErrStageFailure, o.appCfg.Storage.Mode, err)
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			o.log.Warnf("Closing sink: %v", cerr)
		}
	}()

	deps := profile.Deps{Sink: sink, State: state}
	if o.appCfg.Geocoding.Enabled {
		// The geocoder keeps its own limiter so listing jitter never shortens the geocoding interval
		g, err := geo.New(o.appCfg.Geocoding, o.fetcher, fetch.NewRateLimiter(o.appCfg.Geocoding.MinInterval, 0, o.log), o.log)
		if err != nil {
			return stats, err
		}
		deps.Enricher = g
	}

	p := profile.New(o.site, o.factory, o.headers.Profile, deps, profile.Options{
		Concurrency:       o.appCfg.Concurrency,
		NavigationTimeout: o.appCfg.NavigationTimeout,
		ReadyTimeout:      o.appCfg.ReadyTimeout,
		RetryCapacity:     len(endpoints),
		Resume:            !o.fresh,
	}, o.log)
	return p.Run(ctx, endpoints)
}

// logSummary logs a summary of the run
func (o *Orchestrator) logSummary(r Result, err error) {
	o.log.Info("============================================")
	status := "SUCCESS"
	switch {
	case err != nil:
		status = "FAILED"
	case r.Empty:
		status = "NO RESULTS"
	}
	o.log.Infof("Pipeline %s for batch %s in %v", status, r.Batch, r.Duration.Round(time.Millisecond))
	for _, s := range r.Stages {
		line := fmt.Sprintf("  %-9s %v", s.Stage, s.Duration.Round(time.Millisecond))
		if s.Err != nil {
			line += " error: " + s.Err.Error()
		}
		o.log.Info(line)
	}
	if r.ListingURLs > 0 {
		o.log.Infof("Listing pages: %d, endpoints: %d (%d pages failed)", r.ListingURLs, r.Harvest.Endpoints, r.Harvest.FailedPages)
	}
	if r.Profiles.Total > 0 {
		o.log.Infof("Profiles: %d total, %d saved, %d duplicates, %d failed, %d skipped, %d lost",
			r.Profiles.Total, r.Profiles.Succeeded-r.Profiles.Duplicates, r.Profiles.Duplicates,
			r.Profiles.Failed, r.Profiles.Skipped, r.Profiles.Lost)
	}
	o.log.Info("============================================")
}
