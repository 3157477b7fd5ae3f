// oamon runs one monitoring cycle against the university OA notice system:
// log in through the WebVPN (pausing for the one-time password), scan the
// notice list, extract and summarize anything new, and print a digest.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/briandowns/spinner"
	"github.com/charmbracelet/log"

	"github.com/go-scripts/oamon/internal/browser"
	"github.com/go-scripts/oamon/internal/config"
	"github.com/go-scripts/oamon/internal/pipeline"
	"github.com/go-scripts/oamon/internal/store"
	"github.com/go-scripts/oamon/internal/summary"
)

// CLIFlags are the command line options. Everything here overrides the
// YAML/env configuration.
type CLIFlags struct {
	Mock     bool   `help:"Run against canned demo data instead of a live browser." default:"false"`
	OTP      string `help:"One-time password to use instead of prompting on stdin." short:"p"`
	DB       string `help:"Path to the notice database." short:"b"`
	Recent   int    `help:"List the N most recently stored notices and exit." short:"r"`
	JSON     bool   `help:"Print the run result as JSON instead of a markdown digest."`
	LogLevel string `help:"Log level (debug, info, warn, error)." short:"l"`
}

func main() {
	var flags CLIFlags
	kong.Parse(&flags,
		kong.Name("oamon"),
		kong.Description("Monitor the university OA notice system through the WebVPN."),
	)

	cfg := config.Load()
	if flags.Mock {
		cfg.MockMode = true
	}
	if flags.DB != "" {
		cfg.Store.Path = flags.DB
	}
	if flags.LogLevel != "" {
		cfg.LogLevel = flags.LogLevel
	}

	logger := newLogger(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Fatal("open notice store", "path", cfg.Store.Path, "error", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.Recent > 0 {
		if err := listRecent(ctx, st, flags.Recent); err != nil {
			logger.Fatal("list notices", "error", err)
		}
		return
	}

	relay := pipeline.NewRelay()
	var otp pipeline.OTPSource = relay
	if flags.OTP != "" {
		otp = pipeline.StaticOTP(flags.OTP)
	}

	var orch *pipeline.Orchestrator
	notify := func(state pipeline.State, msg string) {
		orch.SetStatus(state, msg)
		if state == pipeline.StateWaitingOTP && flags.OTP == "" {
			go promptOTP(relay, logger)
		}
	}

	deps := buildDeps(cfg, st, otp, logger, notify)
	mode := pipeline.ModeLive
	if cfg.MockMode {
		mode = pipeline.ModeMock
	}
	orch = pipeline.New(deps, mode, cfg.RequireOTP && !cfg.MockMode)

	stopProgress := showProgress(orch)
	run, err := orch.Run(ctx)
	stopProgress()
	if err != nil {
		logger.Fatal("run aborted", "error", err)
	}

	if flags.JSON {
		out, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			logger.Fatal("encode run", "error", err)
		}
		fmt.Println(string(out))
	} else {
		fmt.Print(pipeline.RenderDigest(run))
	}

	if run.Outcome == pipeline.OutcomeFatal {
		os.Exit(1)
	}
}

func newLogger(level string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
	if lvl, err := log.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

// buildDeps picks the collaborator set once; the pipeline never branches on
// mock mode after this point.
func buildDeps(cfg config.Config, st *store.SQLite, otp pipeline.OTPSource, logger *log.Logger, notify func(pipeline.State, string)) pipeline.Deps {
	if cfg.MockMode {
		scraper := &pipeline.CannedScraper{}
		return pipeline.Deps{
			Auth:      pipeline.MockAuthenticator{},
			Enum:      scraper,
			Extract:   scraper,
			Summarize: pipeline.CannedSummarizer{},
			Store:     st,
			Logger:    logger,
		}
	}

	drv := browser.NewChrome(cfg.Timeouts.Navigation)
	scraper := pipeline.NewWebScraper(cfg, logger)
	return pipeline.Deps{
		Auth:      pipeline.NewWebAuthenticator(drv, cfg, otp, logger, notify),
		Enum:      scraper,
		Extract:   scraper,
		Summarize: summary.NewClient(cfg.AI, logger),
		Store:     st,
		Logger:    logger,
	}
}

// promptOTP reads one line from stdin and relays it to the waiting run.
func promptOTP(relay *pipeline.Relay, logger *log.Logger) {
	fmt.Fprint(os.Stderr, "\nenter one-time password: ")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return
	}
	if err := relay.Submit(strings.TrimSpace(scanner.Text())); err != nil {
		logger.Warn("one-time password not delivered", "error", err)
	}
}

// showProgress runs a spinner that mirrors the orchestrator's status line,
// pausing while the run waits for OTP entry so the prompt stays readable.
func showProgress(orch *pipeline.Orchestrator) func() {
	s := spinner.New(spinner.CharSets[9], 100*time.Millisecond)
	s.Suffix = " starting"
	s.Start()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				status := orch.Status()
				if status.State == pipeline.StateWaitingOTP {
					if s.Active() {
						s.Stop()
					}
					continue
				}
				if !s.Active() {
					s.Restart()
				}
				s.Suffix = fmt.Sprintf(" %s", status.Message)
			}
		}
	}()

	return func() {
		close(done)
		s.Stop()
	}
}

func listRecent(ctx context.Context, st *store.SQLite, n int) error {
	records, err := st.Recent(ctx, n)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no stored notices")
		return nil
	}
	for _, rec := range records {
		summaryLine := rec.Summary
		if summaryLine == "" {
			summaryLine = "（摘要暂缺）"
		}
		fmt.Printf("%s  %-8s %s\n    %s\n", rec.PublishedAt.Format("2006-01-02"), rec.Department, rec.Title, summaryLine)
	}
	return nil
}
