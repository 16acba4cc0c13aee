package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/bizdir-scraper/pkg/config"
	"github.com/Sriram-PR/bizdir-scraper/pkg/orchestrate"
	"github.com/Sriram-PR/bizdir-scraper/pkg/sites"
	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
	"github.com/Sriram-PR/bizdir-scraper/pkg/watch"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run", "discover", "harvest", "profiles":
		runPipeline(os.Args[1], os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "version":
		fmt.Printf("bizdir-scraper %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `bizdir-scraper - Business directory scraper (goudengids.nl, paginasamarillas.es)

Usage:
  bizdir-scraper <command> [options]

Commands:
  run         Run discovery, harvesting and profile processing in order
  discover    Discover listing page URLs only
  harvest     Harvest profile endpoints from discovered listing pages
  profiles    Process harvested profile endpoints into records
  watch       Re-run the pipeline on a schedule
  validate    Validate configuration file
  version     Show version info

Run 'bizdir-scraper <command> -h' for command-specific help.`)
}

// loadConfig loads and parses the config file
func loadConfig(path string) (*config.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg config.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// setupLogger creates a configured logrus.Logger with the given log level.
func setupLogger(logLevelStr string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
		log.Debugf("Setting log level to: %s", level.String())
	}

	return log
}

// loadAndValidateConfig loads the config file, validates it, and logs warnings.
func loadAndValidateConfig(configFile string, log *logrus.Logger) *config.AppConfig {
	log.Infof("Loading configuration from %s", configFile)
	appCfg, err := loadConfig(configFile)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	appWarnings, err := appCfg.Validate()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	for _, w := range appWarnings {
		log.Warn(w)
	}

	return appCfg
}

// runPipeline handles run and the single-stage subcommands
func runPipeline(cmdName string, args []string) {
	fs := flag.NewFlagSet(cmdName, flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	fresh := fs.Bool("fresh", false, "Ignore recorded endpoint state and process every profile again")
	pprofAddr := fs.String("pprof", "", "pprof address, e.g. localhost:6060 (disabled by default)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: bizdir-scraper %s [options]\n\nOptions:\n", cmdName)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	appCfg := loadAndValidateConfig(*configFile, log)
	logAppConfig(appCfg, log)

	if cmdName == "run" && !appCfg.RunPipeline.Value {
		log.Info("run_pipeline is false, nothing to do")
		return
	}

	startPprof(*pprofAddr, log)

	ctx, cancel := newRunContext(appCfg.GlobalRunTimeout, log)
	code := exitCode(runCommand(ctx, cmdName, appCfg, orchestrate.Options{Fresh: *fresh}, log.WithField("component", cmdName)), log)
	cancel()
	os.Exit(code)
}

// runCommand builds an orchestrator and executes one subcommand with it
func runCommand(ctx context.Context, cmdName string, appCfg *config.AppConfig, opts orchestrate.Options, log *logrus.Entry) error {
	orch, err := orchestrate.NewOrchestrator(appCfg, opts, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := orch.Close(); cerr != nil {
			log.Warnf("Closing browser: %v", cerr)
		}
	}()

	switch cmdName {
	case "run":
		_, err = orch.Run(ctx)
		return err
	case "discover":
		urls, err := orch.Discover(ctx)
		if errors.Is(err, utils.ErrEmptyResult) {
			log.Info("Search returned no results")
			return nil
		}
		if err == nil {
			log.Infof("Discovered %d listing pages", len(urls))
		}
		return err
	case "harvest":
		summary, err := orch.Harvest(ctx)
		if err == nil {
			log.Infof("Harvested %d endpoints from %d listing pages (%d failed) into %d files",
				summary.Endpoints, summary.ListingPages, summary.FailedPages, len(summary.OutputFiles))
		}
		return err
	case "profiles":
		stats, err := orch.Profiles(ctx)
		if err == nil {
			log.Infof("Profiles: %d total, %d saved, %d duplicates, %d failed, %d skipped, %d lost",
				stats.Total, stats.Succeeded-stats.Duplicates, stats.Duplicates, stats.Failed, stats.Skipped, stats.Lost)
		}
		return err
	default:
		return fmt.Errorf("unknown command %q", cmdName)
	}
}

// exitCode maps a run error to a process exit code. Cancellation by signal is a clean exit.
func exitCode(err error, log *logrus.Logger) int {
	switch {
	case err == nil:
		log.Info("Completed successfully.")
		return 0
	case errors.Is(err, context.Canceled):
		log.Warn("Run cancelled gracefully.")
		return 0
	case errors.Is(err, context.DeadlineExceeded):
		log.Error("Run timed out (global timeout).")
		return 1
	default:
		log.WithField("error_type", utils.CategorizeError(err)).Errorf("Run finished with error: %v", err)
		return 1
	}
}

// newRunContext returns a context bounded by timeout (0 = none) that is cancelled on SIGINT/SIGTERM.
// A second signal, or a stalled shutdown, forces exit.
func newRunContext(timeout time.Duration, log *logrus.Logger) (context.Context, context.CancelFunc) {
	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		log.Infof("Setting global run timeout: %v", timeout)
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("PANIC in signal handler: %v", r)
			}
		}()
		var sig os.Signal
		select {
		case sig = <-sigChan:
		case <-ctx.Done():
			return
		}
		log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// runWatch handles the watch subcommand
func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	fresh := fs.Bool("fresh", false, "Process every profile on each run instead of only new endpoints")
	schedule := fs.String("schedule", "", "Override watch.schedule (e.g. 12h, 7d, @every 6h, \"0 3 * * *\")")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: bizdir-scraper watch [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  bizdir-scraper watch -config bakker.yaml\n")
		fmt.Fprintf(os.Stderr, "  bizdir-scraper watch -config bakker.yaml -schedule 12h\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	appCfg := loadAndValidateConfig(*configFile, log)
	if *schedule != "" {
		appCfg.Watch.Schedule = *schedule
	}
	if !appCfg.RunPipeline.Value {
		log.Info("run_pipeline is false, nothing to watch")
		return
	}

	scheduler, err := newWatchScheduler(appCfg, *fresh, log.WithField("component", "watch"))
	if err != nil {
		log.Fatalf("Watch setup error: %v", err)
	}

	// The global timeout bounds each run, not the watch itself
	ctx, cancel := newRunContext(0, log)
	defer cancel()

	if err := scheduler.Run(ctx); err != nil {
		log.Fatalf("Watch scheduler error: %v", err)
	}
	log.Info("Watch mode stopped")
}

// newWatchScheduler builds a scheduler whose every run uses a fresh orchestrator
func newWatchScheduler(appCfg *config.AppConfig, fresh bool, log *logrus.Entry) (*watch.Scheduler, error) {
	site, err := sites.New(appCfg.Country, sites.Options{})
	if err != nil {
		return nil, err
	}
	batch := site.BatchName(appCfg.Query())

	runner := func(ctx context.Context) (orchestrate.Result, error) {
		if appCfg.GlobalRunTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, appCfg.GlobalRunTimeout)
			defer cancel()
		}
		orch, err := orchestrate.NewOrchestrator(appCfg, orchestrate.Options{Fresh: fresh}, log)
		if err != nil {
			return orchestrate.Result{}, err
		}
		defer orch.Close()
		return orch.Run(ctx)
	}

	return watch.NewScheduler(batch, appCfg.Watch.Schedule, appCfg.StateDir, runner, log)
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: bizdir-scraper validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, os.Stdout, os.Stderr))
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := appCfg.Validate()
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}

	noise, err := utils.CompileRegexPatterns(appCfg.DescriptionNoisePatterns)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: description_noise_patterns: %v\n", err)
		return 1
	}
	site, err := sites.New(appCfg.Country, sites.Options{DescriptionNoise: noise})
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	if _, err := watch.ParseSchedule(appCfg.Watch.Schedule); err != nil {
		fmt.Fprintf(stderr, "ERROR: watch.schedule: %v\n", err)
		return 1
	}

	q := appCfg.Query()
	fmt.Fprintf(stdout, "OK: [%s] batch %s, storage %s, depth %s\n", site.Key(), site.BatchName(q), appCfg.Storage.Mode, appCfg.Depth)
	fmt.Fprintf(stdout, "    First listing page: %s\n", site.ListingURL(q, 1))
	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// startPprof starts the pprof HTTP server if addr is non-empty.
func startPprof(addr string, log *logrus.Logger) {
	if addr != "" {
		go func() {
			log.Infof("Starting pprof server at http://%s/debug/pprof/", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				log.Errorf("pprof server error: %v", err)
			}
		}()
	}
}

// logAppConfig logs the effective configuration
func logAppConfig(appCfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Config: Country:%s, Keyword:%q, Region:%q, Depth:%s, RunPipeline:%t",
		appCfg.Country, appCfg.Keyword, appCfg.Region, appCfg.Depth, appCfg.RunPipeline.Value)
	log.Infof("Config: DataDir:%s, StateDir:%s, Storage:%s",
		appCfg.DataDir, appCfg.StateDir, appCfg.Storage.Mode)
	log.Infof("Config Retries: MaxAttempts:%d, MinDelay:%v, MaxDelay:%v",
		appCfg.MaxAttempts, appCfg.RetryMinDelay, appCfg.RetryMaxDelay)
	log.Infof("Config Timeouts: Navigation:%v, Ready:%v, GlobalRun:%v",
		appCfg.NavigationTimeout, appCfg.ReadyTimeout, appCfg.GlobalRunTimeout)
	log.Infof("Config Politeness: Delay:%v, Jitter:%.2f, Concurrency:%d, RespectRobots:%t",
		appCfg.PolitenessDelay, appCfg.PolitenessJitter, appCfg.Concurrency, appCfg.RespectRobots)
	log.Infof("Config Geocoding: Enabled:%t, BaseURL:%s, MinInterval:%v",
		appCfg.Geocoding.Enabled, appCfg.Geocoding.BaseURL, appCfg.Geocoding.MinInterval)
}
