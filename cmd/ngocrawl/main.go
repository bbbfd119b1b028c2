package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"

	"github.com/go-scripts/ngocrawl/internal/browser"
	"github.com/go-scripts/ngocrawl/internal/config"
	"github.com/go-scripts/ngocrawl/internal/crawl"
	"github.com/go-scripts/ngocrawl/internal/export"
	"github.com/go-scripts/ngocrawl/internal/extract"
	"github.com/go-scripts/ngocrawl/internal/logging"
	"github.com/go-scripts/ngocrawl/internal/progress"
)

// ConfigEnv names the environment variable holding the config file path.
const ConfigEnv = "NGOCRAWL_CONFIG"

const defaultConfigPath = "config.yaml"

const (
	exitOK      = 0
	exitFailure = 1
)

// CLIFlags holds the command line flags.
type CLIFlags struct {
	LogLevel string `name:"log-level" aliases:"log_level" default:"INFO" help:"Log verbosity: INFO or DEBUG."`
}

func main() {
	var flags CLIFlags
	kong.Parse(&flags,
		kong.Name("ngocrawl"),
		kong.Description("Crawl the NGO directory into a spreadsheet. The config file is read from $"+ConfigEnv+" (default "+defaultConfigPath+")."),
	)

	level, err := logging.ParseLevel(flags.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFailure)
	}
	// The spinner is left off at DEBUG, where log lines arrive too fast for it.
	var tracker *progress.Tracker
	out := io.Writer(os.Stderr)
	if level > log.DebugLevel {
		tracker = progress.New(os.Stderr)
		out = tracker
	}
	logger := logging.New(out, level)
	logger.SetColorProfile(termenv.NewOutput(os.Stderr).EnvColorProfile())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, logger, tracker, configPath())
	stop()
	os.Exit(code)
}

// configPath returns the config file named by the environment.
func configPath() string {
	if p := os.Getenv(ConfigEnv); p != "" {
		return p
	}
	return defaultConfigPath
}

// run performs one crawl and returns the process exit code. tracker may be
// nil.
func run(ctx context.Context, logger *log.Logger, tracker *progress.Tracker, cfgPath string) int {
	started := time.Now()
	logger.Info("start time", "at", started.Format(logging.TimeFormat))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("invalid configuration", "path", cfgPath, "err", err)
		return exitFailure
	}
	end, override := cfg.EndOverride()
	logger.Debug("configuration loaded", "path", cfgPath, "start_page", cfg.StartPage, "end_page", end, "end_override", override, "output", cfg.Output)

	chrome, err := browser.New(browser.Options{
		ExecPath:  cfg.Browser.ExecPath,
		Headless:  cfg.Browser.Headless,
		UserAgent: cfg.Browser.UserAgent,
		Log:       logger.WithPrefix("chromedp"),
	})
	if err != nil {
		logger.Error("failed to start browser", "err", err)
		return exitFailure
	}
	defer chrome.Close()

	cp := openCheckpoints(ctx, logger, cfg)
	defer cp.close()

	waiter := crawl.Waiter{Session: chrome, Interval: cfg.PollInterval()}

	orch := &crawl.Orchestrator{
		Pages: &crawl.PageCrawler{
			Session: chrome,
			Waiter:  waiter,
			Extract: extract.Extract,
			Site:    crawl.DefaultSite,
			Timing: crawl.Timing{
				LoadTimeout: cfg.LoadTimeout(),
				Settle:      cfg.SettleWait(),
				CloseSettle: cfg.CloseWait(),
			},
			Log: logger,
		},
		Resolver: &crawl.PaginationResolver{
			Session: chrome,
			Waiter:  waiter,
			Site:    crawl.DefaultSite,
			URL:     cfg.PageURL(1),
			Timeout: cfg.LoadTimeout(),
			Log:     logger,
		},
		PageURL:    cfg.PageURL,
		StartPage:  cfg.StartPage,
		EndPage:    cfg.EndPage,
		Retries:    cfg.PageRetries,
		RetryDelay: cfg.RetryDelay(),
		Log:        logger,
	}
	if tracker != nil {
		orch.Progress = tracker
	}
	if cp != nil {
		orch.Checkpoint = cp.checkpoint
		orch.Resume = cp.resume
	}

	res := orch.Run(ctx)
	cp.finish(logger, res)

	output := ""
	if shouldWrite(res) {
		if err := export.Write(cfg.Output, res.Records); err != nil {
			logger.Error("failed to write output", "path", cfg.Output, "err", err)
			return exitFailure
		}
		output = cfg.Output
		logger.Info("saved records", "path", cfg.Output, "records", len(res.Records))
	}

	finished := time.Now()
	logger.Info("end time", "at", finished.Format(logging.TimeFormat), "elapsed", finished.Sub(started).Round(time.Second))

	if level := logger.GetLevel(); level <= log.DebugLevel {
		export.Summary(os.Stderr, export.RunSummary{
			RunID:             cp.runID(),
			StartPage:         res.Range.Start,
			EndPage:           res.Range.End,
			LastCompletedPage: res.LastCompletedPage,
			Records:           len(res.Records),
			State:             res.State.String(),
			Err:               res.Err,
			Output:            output,
			Elapsed:           finished.Sub(started),
		})
	}

	return exitCode(res)
}

// shouldWrite reports whether the run got far enough to produce output. Runs
// that failed while resolving the page range write nothing.
func shouldWrite(res *crawl.Result) bool {
	return res.State == crawl.StateDone || res.AbortedIn == crawl.StateCrawling
}

// exitCode maps a run result onto the process exit code. Timeouts, range
// errors and interruptions fail; a run stopped by an extraction error does not.
func exitCode(res *crawl.Result) int {
	if res.Err == nil {
		return exitOK
	}
	if crawl.IsFatal(res.Err) || errors.Is(res.Err, context.Canceled) {
		return exitFailure
	}
	if res.AbortedIn != crawl.StateCrawling {
		return exitFailure
	}
	return exitOK
}
