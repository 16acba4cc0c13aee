package watch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bizdir-scraper/pkg/log"
	"github.com/Sriram-PR/bizdir-scraper/pkg/orchestrate"
)

// Runner executes one pipeline run
type Runner func(ctx context.Context) (orchestrate.Result, error)

// Scheduler re-runs the pipeline for one batch on a cron schedule
type Scheduler struct {
	batch        string
	spec         string
	schedule     cron.Schedule
	run          Runner
	log          *logrus.Entry
	stateManager *StateManager

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler for batch. spec is a cron expression, a descriptor
// such as "@daily" or "@every 6h", or a bare interval such as "12h" or "7d".
func NewScheduler(batch, spec, stateDir string, run Runner, log *logrus.Entry) (*Scheduler, error) {
	schedule, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		batch:        batch,
		spec:         spec,
		schedule:     schedule,
		run:          run,
		log:          log.WithFields(logrus.Fields{"component": "watch", "batch": batch}),
		stateManager: NewStateManager(stateDir),
	}, nil
}

// ParseSchedule accepts bare intervals ("30m", "1d12h") as well as anything cron.ParseStandard does
func ParseSchedule(spec string) (cron.Schedule, error) {
	if d, err := ParseInterval(spec); err == nil {
		if d < time.Second {
			return nil, fmt.Errorf("watch interval %s is shorter than one second", d)
		}
		return cron.Every(d), nil
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid watch schedule %q: %w", spec, err)
	}
	return schedule, nil
}

// Run blocks until ctx is cancelled. A batch that never ran, or whose last run is
// older than one schedule period, runs immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.stateManager.Load(); err != nil {
		s.log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}

	s.log.Infof("Starting watch mode with schedule %q", s.spec)
	s.logSchedule()

	cronLog := log.NewCronLogrusAdapter(s.log)
	c := cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))
	c.Schedule(s.schedule, cron.FuncJob(func() { s.runOnce(ctx) }))
	c.Start()

	if s.stateManager.ShouldRun(s.batch, s.schedule, time.Now()) {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runOnce(ctx)
		}()
	}

	<-ctx.Done()
	s.log.Info("Watch scheduler shutting down...")
	<-c.Stop().Done()
	s.wg.Wait()
	return nil
}

// runOnce runs the pipeline unless a run is already in flight, then records the outcome
func (s *Scheduler) runOnce(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("Previous run still in progress, skipping this one")
		return
	}
	defer s.running.Store(false)
	if ctx.Err() != nil {
		return
	}

	started := time.Now()
	result, err := s.run(ctx)
	record := RunRecord{
		StartedAt:  started,
		FinishedAt: time.Now(),
		Success:    err == nil && result.Success,
		Empty:      result.Empty,
		Endpoints:  result.Harvest.Endpoints,
		Profiles:   result.Profiles.Succeeded - result.Profiles.Duplicates,
	}
	if err != nil {
		record.Error = err.Error()
	}
	s.stateManager.Record(s.batch, record)

	if err := s.stateManager.Save(); err != nil {
		s.log.Errorf("Failed to save watch state: %v", err)
	}
	s.logNextRun()
}

// logSchedule logs the last known run and when the next one is due
func (s *Scheduler) logSchedule() {
	last, ok := s.stateManager.LastRun(s.batch)
	if !ok {
		s.log.Info("Never run, will run immediately")
		return
	}
	status := "success"
	if !last.Success {
		status = "failed"
	}
	next := s.stateManager.GetNextRunTime(s.batch, s.schedule, time.Now())
	s.log.Infof("Last run %s (%s, %d profiles), next run %s",
		last.StartedAt.Format(time.RFC3339), status, last.Profiles, next.Format(time.RFC3339))
}

// logNextRun logs when the next run will occur
func (s *Scheduler) logNextRun() {
	next := s.schedule.Next(time.Now())
	until := time.Until(next)
	if until < 0 {
		until = 0
	}
	s.log.Infof("Next run in %s (at %s)", FormatInterval(until.Round(time.Second)), next.Format("15:04:05"))
}

// History returns the recorded runs for the scheduler's batch
func (s *Scheduler) History() []RunRecord {
	return s.stateManager.History(s.batch)
}

// FormatInterval formats a duration for display
func FormatInterval(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}

// ParseInterval parses a duration string with support for days
func ParseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	// "7d" or "1d12h"; cron expressions such as "5 4 * * *" must not match
	daysPart, remaining, found := strings.Cut(s, "d")
	if days, convErr := strconv.Atoi(daysPart); found && convErr == nil && days >= 0 {
		d = time.Duration(days) * 24 * time.Hour
		if remaining != "" {
			extra, err := time.ParseDuration(remaining)
			if err != nil {
				return 0, fmt.Errorf("invalid interval format: %s", s)
			}
			d += extra
		}
		return d, nil
	}

	return 0, fmt.Errorf("invalid interval format: %s (examples: 30m, 1h, 24h, 7d)", s)
}
