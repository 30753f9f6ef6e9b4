package scheduler

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
)

func TestJobs(t *testing.T) {
	jobs, err := Jobs([]int{1, 2}, []string{"it", "EN"}, 0, "m")
	if err != nil {
		t.Fatal(err)
	}
	want := []Job{
		{ClusterID: 1, Locale: "IT", Geo: "IT", MaxResults: 10, Model: "m"},
		{ClusterID: 1, Locale: "EN", Geo: "EN", MaxResults: 10, Model: "m"},
		{ClusterID: 2, Locale: "IT", Geo: "IT", MaxResults: 10, Model: "m"},
		{ClusterID: 2, Locale: "EN", Geo: "EN", MaxResults: 10, Model: "m"},
	}
	if !reflect.DeepEqual(jobs, want) {
		t.Errorf("jobs = %+v", jobs)
	}

	if _, err := Jobs(nil, []string{"it"}, 5, ""); err == nil {
		t.Error("expected error for missing clusters")
	}
	if _, err := Jobs([]int{1}, []string{"de"}, 5, ""); err == nil {
		t.Error("expected error for unsupported locale")
	}
}

func TestDispatch(t *testing.T) {
	var (
		mu     sync.Mutex
		seen   []Job
		active atomic.Int32
		peak   atomic.Int32
	)
	runner := RunnerFunc(func(_ context.Context, job Job) error {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		mu.Lock()
		seen = append(seen, job)
		mu.Unlock()
		if job.ClusterID == 2 {
			return errors.New("search failed")
		}
		return nil
	})

	jobs, _ := Jobs([]int{1, 2, 3}, []string{"it", "fr"}, 5, "")
	report := NewDispatcher(runner, 2).Dispatch(context.Background(), jobs)

	if report.Jobs != 6 || report.Succeeded != 4 || len(report.Failed) != 2 {
		t.Fatalf("report = %+v", report)
	}
	if report.Failed[0].Job.Locale != "IT" || report.Failed[1].Job.Locale != "FR" {
		t.Errorf("failures out of order: %+v", report.Failed)
	}
	if len(seen) != 6 {
		t.Errorf("ran %d jobs", len(seen))
	}
	if peak.Load() > 2 {
		t.Errorf("concurrency %d exceeds limit", peak.Load())
	}
}

func TestDispatcher_Start(t *testing.T) {
	var calls atomic.Int32
	d := NewDispatcher(RunnerFunc(func(context.Context, Job) error {
		calls.Add(1)
		return nil
	}), 0)

	jobs, _ := Jobs([]int{4}, []string{"es"}, 3, "")
	if id := d.Start(jobs); id == "" {
		t.Error("empty dispatch id")
	}
	d.Wait()
	if calls.Load() != 1 {
		t.Errorf("calls = %d", calls.Load())
	}
}

func TestNewScheduler(t *testing.T) {
	jobs, _ := Jobs([]int{1}, []string{"it"}, 3, "")
	d := NewDispatcher(RunnerFunc(func(context.Context, Job) error { return nil }), 1)

	if _, err := NewScheduler("not a cron", d, jobs); err == nil {
		t.Error("expected parse error")
	}
	if _, err := NewScheduler("0 6 * * *", d, nil); err == nil {
		t.Error("expected error without jobs")
	}

	s, err := NewScheduler("0 6 * * *", d, jobs)
	if err != nil {
		t.Fatal(err)
	}
	s.tick()
	s.Start()
	<-s.Stop().Done()
}
