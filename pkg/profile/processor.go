// Package profile fetches profile pages in fixed concurrency windows, extracts them and persists the records.
package profile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/bizdir-scraper/pkg/browser"
	"github.com/Sriram-PR/bizdir-scraper/pkg/models"
	"github.com/Sriram-PR/bizdir-scraper/pkg/queue"
	"github.com/Sriram-PR/bizdir-scraper/pkg/sites"
	"github.com/Sriram-PR/bizdir-scraper/pkg/storage"
	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

const defaultConcurrency = 3

// Enricher adds derived columns to an extracted record before it is persisted
type Enricher interface {
	Enrich(ctx context.Context, rec *models.Record) error
}

// Options bound one processor run
type Options struct {
	Concurrency       int // Window size; items of a window run in parallel and are joined before the next
	NavigationTimeout time.Duration
	ReadyTimeout      time.Duration
	RetryCapacity     int  // Bound on the teardown retry queue; < 1 means unbounded
	Resume            bool // Skip endpoints the state store already records as succeeded
}

// Deps are the collaborators a Processor writes through. State and Enricher may be nil.
type Deps struct {
	Sink     storage.Sink
	State    storage.EndpointStateStore
	Enricher Enricher
}

type outcome int

const (
	outcomeWritten outcome = iota
	outcomeDuplicate
	outcomeFailed
	outcomeTeardown
)

// Processor drives one profile run. It is not reusable across concurrent Run calls.
type Processor struct {
	site    sites.Site
	factory browser.SessionFactory
	headers browser.HeaderProfile
	deps    Deps
	opts    Options
	log     *logrus.Entry

	mu      sync.Mutex
	state   models.ProcessorState
	history []models.ProcessorState
}

// New creates a Processor; headers is the profile header set
func New(site sites.Site, factory browser.SessionFactory, headers browser.HeaderProfile, deps Deps, opts Options, log *logrus.Entry) *Processor {
	if opts.Concurrency < 1 {
		opts.Concurrency = defaultConcurrency
	}
	return &Processor{
		site:    site,
		factory: factory,
		headers: headers,
		deps:    deps,
		opts:    opts,
		log:     log.WithFields(logrus.Fields{"component": "profile", "site": site.Key()}),
	}
}

// State returns the current lifecycle phase
func (p *Processor) State() models.ProcessorState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// History returns every phase entered so far, in order
func (p *Processor) History() []models.ProcessorState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.ProcessorState(nil), p.history...)
}

func (p *Processor) enter(s models.ProcessorState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.history) > 0 && p.state == s {
		return
	}
	p.state = s
	p.history = append(p.history, s)
	p.log.Debugf("Processor state: %s", s)
}

// Run processes endpoints window by window, then replays teardown casualties once, serially.
// Per-item failures are counted, never returned; only cancellation and an unusable browser end the run early.
func (p *Processor) Run(ctx context.Context, endpoints []models.ProfileEndpoint) (models.ProcessorStats, error) {
	p.enter(models.StateLoaded)
	stats := models.ProcessorStats{Total: len(endpoints)}
	pending := p.pending(endpoints, &stats)

	p.enter(models.StateBatching)
	windows := makeWindows(pending, p.opts.Concurrency)
	p.log.Infof("Processing %d endpoints in %d windows of up to %d (%d skipped)",
		len(pending), len(windows), p.opts.Concurrency, stats.Skipped)

	retries := queue.NewRetryQueue(p.opts.RetryCapacity, p.log)
	var session browser.Session
	defer func() {
		if session != nil {
			session.Close()
		}
	}()

	position := 0
	for i, window := range windows {
		if err := ctx.Err(); err != nil {
			p.log.Warnf("Stopping before window %d/%d: %v", i+1, len(windows), err)
			return stats, err
		}
		if session == nil {
			s, err := p.factory.NewSession(ctx, p.headers)
			if err != nil {
				stats.Lost += retries.Len() + retries.Dropped()
				return stats, err
			}
			session = s
		}
		p.enter(models.StateFetching)

		results := p.runWindow(ctx, session, window)
		tornDown := false
		for j, res := range results {
			switch res {
			case outcomeWritten:
				stats.Succeeded++
			case outcomeDuplicate:
				stats.Succeeded++
				stats.Duplicates++
			case outcomeFailed:
				stats.Failed++
			case outcomeTeardown:
				tornDown = true
				if retries.Add(queue.RetryItem{Endpoint: window[j], Position: position + j, Reason: utils.CategorizeError(utils.ErrContextTeardown)}) {
					stats.Requeued++
				}
			}
		}
		position += len(window)

		if tornDown {
			// The next window gets a fresh session
			session.Close()
			session = nil
		}
	}

	if session != nil && retries.Len() > 0 {
		session.Close()
		session = nil
	}
	if err := p.replay(ctx, retries, &stats); err != nil {
		return stats, err
	}

	p.enter(models.StateDone)
	p.log.WithFields(logrus.Fields{
		"total":      stats.Total,
		"skipped":    stats.Skipped,
		"succeeded":  stats.Succeeded,
		"duplicates": stats.Duplicates,
		"failed":     stats.Failed,
		"requeued":   stats.Requeued,
		"recovered":  stats.Recovered,
		"lost":       stats.Lost,
	}).Info("Profile processing finished")
	return stats, nil
}

// pending drops repeated (batch, url) pairs and, when resuming, endpoints already recorded as succeeded
func (p *Processor) pending(endpoints []models.ProfileEndpoint, stats *models.ProcessorStats) []models.ProfileEndpoint {
	seen := make(map[models.ProfileEndpoint]struct{}, len(endpoints))
	out := make([]models.ProfileEndpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if _, dup := seen[ep]; dup {
			stats.Total--
			continue
		}
		seen[ep] = struct{}{}

		if p.opts.Resume && p.deps.State != nil {
			status, _, err := p.deps.State.CheckEndpointStatus(ep.URL)
			if err != nil {
				p.log.WithField("url", ep.URL).Warnf("State lookup failed, processing anyway: %v", err)
			} else if status == models.EndpointStatusSuccess {
				stats.Skipped++
				continue
			}
		}
		out = append(out, ep)
	}
	return out
}

func makeWindows(items []models.ProfileEndpoint, size int) [][]models.ProfileEndpoint {
	var windows [][]models.ProfileEndpoint
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		windows = append(windows, items[start:end])
	}
	return windows
}

// runWindow processes every item of window concurrently and waits for all of them
func (p *Processor) runWindow(ctx context.Context, session browser.Session, window []models.ProfileEndpoint) []outcome {
	results := make([]outcome, len(window))
	var g errgroup.Group
	for i, ep := range window {
		i, ep := i, ep
		g.Go(func() error {
			results[i] = p.process(ctx, session, ep)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// replay retries queued teardown casualties one at a time on a fresh session
func (p *Processor) replay(ctx context.Context, retries *queue.RetryQueue, stats *models.ProcessorStats) error {
	items := retries.Drain()
	stats.Lost += retries.Dropped()
	if len(items) == 0 {
		return nil
	}
	p.enter(models.StateRetrying)
	p.log.Infof("Replaying %d endpoints lost to browser teardown", len(items))

	var session browser.Session
	defer func() {
		if session != nil {
			session.Close()
		}
	}()

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			stats.Lost += len(items) - i
			return err
		}
		if session == nil {
			s, err := p.factory.NewSession(ctx, p.headers)
			if err != nil {
				stats.Lost += len(items) - i
				return err
			}
			session = s
		}

		switch p.process(ctx, session, item.Endpoint) {
		case outcomeWritten:
			stats.Succeeded++
			stats.Recovered++
		case outcomeDuplicate:
			stats.Succeeded++
			stats.Duplicates++
			stats.Recovered++
		case outcomeTeardown:
			session.Close()
			session = nil
			stats.Lost++
			p.recordFailure(item.Endpoint, utils.ErrContextTeardown)
		default:
			stats.Lost++
		}
	}
	return nil
}

// process loads, extracts, enriches and persists one endpoint
func (p *Processor) process(ctx context.Context, session browser.Session, ep models.ProfileEndpoint) outcome {
	log := p.log.WithFields(logrus.Fields{"batch": ep.Batch, "url": ep.URL})

	markup, err := browser.LoadInNewPage(ctx, session, ep.URL, browser.LoadOptions{
		NavigationTimeout: p.opts.NavigationTimeout,
		ReadyTimeout:      p.opts.ReadyTimeout,
		ReadySelector:     p.site.ProfileReadySelector(),
		DismissCookies:    true,
	}, log)
	if err != nil {
		if errors.Is(err, utils.ErrContextTeardown) && ctx.Err() == nil {
			log.Warnf("Browser context torn down, queueing for replay: %v", err)
			return outcomeTeardown
		}
		log.WithField("error_type", utils.CategorizeError(err)).Errorf("Failed to load profile: %v", err)
		p.recordFailure(ep, err)
		return outcomeFailed
	}

	rec, failure := p.site.Extract(markup)
	if failure != nil {
		log.WithField("error_kind", failure.Kind).Errorf("Extraction failed: %s", failure.Message)
		p.recordFailure(ep, utils.ErrExtraction)
		return outcomeFailed
	}

	if p.deps.Enricher != nil {
		if err := p.deps.Enricher.Enrich(ctx, rec); err != nil {
			log.Warnf("Enrichment failed, persisting record without it: %v", err)
		}
	}

	written, err := p.deps.Sink.Persist(ctx, ep.Batch, rec)
	if err != nil {
		log.WithField("error_type", utils.CategorizeError(err)).Errorf("Persisting record failed: %v", err)
		p.recordFailure(ep, err)
		return outcomeFailed
	}

	p.recordSuccess(ep, rec)
	if !written {
		log.Debug("Duplicate record skipped")
		return outcomeDuplicate
	}
	log.Info("Profile saved")
	return outcomeWritten
}

func (p *Processor) recordSuccess(ep models.ProfileEndpoint, rec *models.Record) {
	if p.deps.State == nil {
		return
	}
	entry := &models.EndpointDBEntry{
		Status:      models.EndpointStatusSuccess,
		Batch:       ep.Batch,
		DedupKey:    rec.DedupKey(p.site.DedupFields()),
		ProcessedAt: time.Now().UTC(),
	}
	if err := p.deps.State.UpdateEndpointStatus(ep.URL, entry); err != nil {
		p.log.WithField("url", ep.URL).Warnf("Recording success failed: %v", err)
	}
}

func (p *Processor) recordFailure(ep models.ProfileEndpoint, cause error) {
	if p.deps.State == nil {
		return
	}
	entry := &models.EndpointDBEntry{
		Status:    models.EndpointStatusFailure,
		Batch:     ep.Batch,
		ErrorType: utils.CategorizeError(cause),
	}
	if err := p.deps.State.UpdateEndpointStatus(ep.URL, entry); err != nil {
		p.log.WithField("url", ep.URL).Warnf("Recording failure failed: %v", err)
	}
}
