package app

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/deusflow/feedgen/internal/api"
	"github.com/deusflow/feedgen/internal/config"
	"github.com/deusflow/feedgen/internal/feed"
	"github.com/deusflow/feedgen/internal/logger"
	"github.com/deusflow/feedgen/internal/news"
	"github.com/deusflow/feedgen/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

var runLocales = []string{"IT", "EN", "FR", "ES"}

// CLI holds the dependencies of the commands. Load and Build are replaced in tests.
type CLI struct {
	Out   io.Writer
	Load  func() (*config.Config, error)
	Build func(ctx context.Context, cfg *config.Config) (*Services, error)

	opts globalOptions
}

type globalOptions struct {
	LogLevel string `long:"log-level" description:"Override LOG_LEVEL (debug, info, warn, error)"`
}

// Main runs the command line and returns the process exit code.
func Main() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := &CLI{Out: os.Stdout, Load: config.Load, Build: Build}
	if err := cli.Execute(ctx, os.Args[1:]); err != nil {
		var flagsErr *flags.Error
		if !errors.As(err, &flagsErr) {
			logger.Error("feedgen failed", "error", err)
		}
		return 1
	}
	return 0
}

// Execute parses args and runs the selected command.
func (c *CLI) Execute(ctx context.Context, args []string) error {
	parser := flags.NewParser(&c.opts, flags.Default)
	parser.Name = "feedgen"

	commands := []struct {
		name, short, long string
		data              any
	}{
		{"run", "Generate the feed of one cluster",
			"Generate the feed of CLUSTER_ID and write it to the output directory. --upto stops after step 1 (search), 2 (extract) or 3 (cluster) and only writes the debug log.",
			&runCommand{cli: c, ctx: ctx}},
		{"serve", "Serve the HTTP API",
			"Serve POST /feed, /feedsummary and /dispatch. With SCHEDULE_CRON set, scheduled dispatches run in the same process.",
			&serveCommand{cli: c, ctx: ctx}},
		{"dispatch", "Generate the feeds of several clusters and locales",
			"Run one feed per cluster and locale on a bounded pool and print the dispatch report.",
			&dispatchCommand{cli: c, ctx: ctx}},
	}
	for _, cmd := range commands {
		if _, err := parser.AddCommand(cmd.name, cmd.short, cmd.long, cmd.data); err != nil {
			return err
		}
	}

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil
		}
		return err
	}
	return nil
}

// services loads the configuration, applies overrides and builds the services.
func (c *CLI) services(ctx context.Context, override func(*config.Config)) (*Services, error) {
	cfg, err := c.Load()
	if err != nil {
		return nil, err
	}
	if override != nil {
		override(cfg)
	}
	level := cmp.Or(c.opts.LogLevel, cfg.LogLevel)
	if cfg.Debug {
		level = "debug"
	}
	logger.Init(level)
	return c.Build(ctx, cfg)
}

type runCommand struct {
	cli *CLI
	ctx context.Context

	Locale string `long:"locale" default:"IT" description:"Feed locale: IT, EN, FR or ES"`
	Debug  bool   `long:"debug" description:"Write the markdown debug log"`
	UpTo   int    `long:"upto" description:"Stop after step 1, 2 or 3 (implies --debug)"`

	Args struct {
		ClusterID  int `positional-arg-name:"CLUSTER_ID" required:"yes"`
		MaxResults int `positional-arg-name:"MAX_RESULTS"`
	} `positional-args:"yes"`
}

func (r *runCommand) Execute([]string) error {
	loc := strings.ToUpper(r.Locale)
	if !slices.Contains(runLocales, loc) {
		return fmt.Errorf("locale must be one of %s, got %q", strings.Join(runLocales, ", "), r.Locale)
	}
	if r.UpTo < 0 || r.UpTo > int(feed.StepCluster) {
		return fmt.Errorf("--upto must be between 1 and %d", int(feed.StepCluster))
	}

	svc, err := r.cli.services(r.ctx, func(cfg *config.Config) {
		cfg.Debug = cfg.Debug || r.Debug || r.UpTo > 0
	})
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.Pipeline.Run(r.ctx, feed.Request{
		ClusterID:  r.Args.ClusterID,
		MaxResults: r.Args.MaxResults,
		Locale:     loc,
		UpToStep:   feed.Step(r.UpTo),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(r.cli.Out, formatResult(r.Args.ClusterID, loc, res))
	return nil
}

type serveCommand struct {
	cli *CLI
	ctx context.Context

	Addr string `long:"addr" description:"Listen address, overrides HTTP_ADDR"`
}

func (s *serveCommand) Execute([]string) error {
	svc, err := s.cli.services(s.ctx, func(cfg *config.Config) {
		cfg.HTTPAddr = cmp.Or(s.Addr, cfg.HTTPAddr)
	})
	if err != nil {
		return err
	}
	defer svc.Close()
	cfg := svc.Config

	dispatcher := scheduler.NewDispatcher(svc.Pipeline, cfg.DispatchConcurrency)
	var cron *scheduler.Scheduler
	if cfg.ScheduleCron != "" {
		jobs, err := scheduler.Jobs(cfg.ScheduleClusters, cfg.ScheduleLocales, cfg.ScheduleMaxResults, "")
		if err != nil {
			return fmt.Errorf("invalid schedule: %w", err)
		}
		if cron, err = scheduler.NewScheduler(cfg.ScheduleCron, dispatcher, jobs); err != nil {
			return err
		}
		cron.Start()
	}

	server := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewServer(api.Options{
			Feeds:      svc.Pipeline,
			Summarizer: svc.Summarizer,
			Dispatcher: dispatcher,
			Metrics:    svc.Metrics,
			Budget:     svc.Budget,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      15 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-s.ctx.Done():
	}

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("http server forced to shutdown", "error", err)
	}
	if cron != nil {
		select {
		case <-cron.Stop().Done():
		case <-ctx.Done():
		}
	}
	dispatcher.Wait()
	logger.Info("server exited")
	return nil
}

type dispatchCommand struct {
	cli *CLI
	ctx context.Context

	Clusters   string `long:"clusters" required:"yes" description:"Comma separated cluster ids"`
	Locales    string `long:"locales" default:"it" description:"Comma separated locales: it, en, es, fr"`
	MaxResults int    `long:"max-results" default:"10" description:"Feed items per run"`
	Model      string `long:"model" description:"Summary model override"`
}

func (d *dispatchCommand) Execute([]string) error {
	clusters, err := parseIDs(d.Clusters)
	if err != nil {
		return err
	}
	jobs, err := scheduler.Jobs(clusters, splitList(d.Locales), d.MaxResults, d.Model)
	if err != nil {
		return err
	}

	svc, err := d.cli.services(d.ctx, nil)
	if err != nil {
		return err
	}
	defer svc.Close()

	report := scheduler.NewDispatcher(svc.Pipeline, svc.Config.DispatchConcurrency).Dispatch(d.ctx, jobs)
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(d.cli.Out, string(out))
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d of %d runs failed", len(report.Failed), report.Jobs)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIDs(s string) ([]int, error) {
	var ids []int
	for _, part := range splitList(s) {
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid cluster id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// formatResult renders the console summary of a run.
func formatResult(clusterID int, loc string, res *feed.Result) string {
	var b strings.Builder
	if res.StoppedAt != 0 {
		fmt.Fprintf(&b, "Stopped after step %d (%s): %d clusters\n", int(res.StoppedAt), res.StoppedAt, len(res.Clusters))
		b.WriteString("See the debug log for details.")
		return b.String()
	}

	fmt.Fprintf(&b, "Feed for cluster %d (%s): %d items\n", clusterID, loc, len(res.Feed))
	b.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	for i, item := range res.Feed {
		b.WriteString(news.FormatFeedItem(i+1, item))
		b.WriteString("\n")
	}
	if d := res.Diagnostics; d != nil {
		fmt.Fprintf(&b, "%d citations, %d clusters, %d articles discarded, %.1fs",
			len(d.Citations), len(d.Clusters), d.Discarded(), d.Elapsed.Seconds())
	}
	return strings.TrimRight(b.String(), "\n")
}
