// Package scheduler fans feed runs out over clusters and locales, on demand or on a
// cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/deusflow/feedgen/internal/logger"
)

// SupportedLocales are the locales a dispatch accepts.
var SupportedLocales = []string{"it", "en", "es", "fr"}

const DefaultConcurrency = 2

// Job is one feed run.
type Job struct {
	ClusterID  int    `json:"cluster_id"`
	Locale     string `json:"locale"`
	Geo        string `json:"geo"`
	MaxResults int    `json:"max_results"`
	Model      string `json:"model,omitempty"`
}

func (j Job) String() string {
	return fmt.Sprintf("cluster %d/%s", j.ClusterID, j.Locale)
}

// Runner executes one job, including any upload or publication.
type Runner interface {
	RunJob(ctx context.Context, job Job) error
}

type RunnerFunc func(ctx context.Context, job Job) error

func (f RunnerFunc) RunJob(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// Jobs expands clusters × locales into jobs, cluster-major. Locales are validated
// against SupportedLocales case-insensitively.
func Jobs(clusters []int, locales []string, maxResults int, model string) ([]Job, error) {
	if len(clusters) == 0 || len(locales) == 0 {
		return nil, fmt.Errorf("clusters and locales are required")
	}
	for _, l := range locales {
		if !slices.Contains(SupportedLocales, strings.ToLower(l)) {
			return nil, fmt.Errorf("locales must be %s - received: %s", strings.Join(SupportedLocales, ","), l)
		}
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	jobs := make([]Job, 0, len(clusters)*len(locales))
	for _, id := range clusters {
		for _, l := range locales {
			jobs = append(jobs, Job{
				ClusterID:  id,
				Locale:     strings.ToUpper(l),
				Geo:        strings.ToUpper(l),
				MaxResults: maxResults,
				Model:      model,
			})
		}
	}
	return jobs, nil
}

type JobError struct {
	Job   Job    `json:"job"`
	Error string `json:"error"`
}

// Report summarizes a finished dispatch.
type Report struct {
	ID        string        `json:"id"`
	Jobs      int           `json:"jobs"`
	Succeeded int           `json:"succeeded"`
	Failed    []JobError    `json:"failed,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Dispatcher runs jobs on a bounded pool. Jobs are independent: one failing does
// not cancel the others.
type Dispatcher struct {
	runner      Runner
	concurrency int

	wg sync.WaitGroup
}

func NewDispatcher(runner Runner, concurrency int) *Dispatcher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Dispatcher{runner: runner, concurrency: concurrency}
}

// Dispatch runs all jobs and waits for them. Failures are listed in job order.
func (d *Dispatcher) Dispatch(ctx context.Context, jobs []Job) Report {
	return d.dispatch(ctx, uuid.NewString(), jobs)
}

func (d *Dispatcher) dispatch(ctx context.Context, id string, jobs []Job) Report {
	start := time.Now()
	log := logger.With("dispatch_id", id)
	log.Info("dispatching feed runs", "jobs", len(jobs), "concurrency", d.concurrency)

	errs := make([]error, len(jobs))
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			if err := d.runner.RunJob(ctx, job); err != nil {
				log.Error("feed run failed", "job", job.String(), "error", err)
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()

	report := Report{ID: id, Jobs: len(jobs), Elapsed: time.Since(start)}
	for i, err := range errs {
		if err != nil {
			report.Failed = append(report.Failed, JobError{Job: jobs[i], Error: err.Error()})
		} else {
			report.Succeeded++
		}
	}
	log.Info("dispatch finished", "succeeded", report.Succeeded, "failed", len(report.Failed),
		"elapsed", report.Elapsed.Round(time.Millisecond))
	return report
}

// Start runs the jobs in the background and returns the dispatch id at once. The
// jobs run detached from the caller's context.
func (d *Dispatcher) Start(jobs []Job) string {
	id := uuid.NewString()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.dispatch(context.Background(), id, jobs)
	}()
	return id
}

// Wait blocks until every dispatch begun with Start has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
