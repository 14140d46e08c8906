package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JonMunkholm/erpserver/internal/lifecycle"
)

type fakeSource struct {
	jobs map[string][]JobDef
	err  error
}

func (f *fakeSource) ActiveJobs(ctx context.Context, dbname string) ([]JobDef, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.jobs[dbname], nil
}

func noop(ctx context.Context, dbname string) error { return nil }

func TestRegisterJobs(t *testing.T) {
	src := &fakeSource{jobs: map[string][]JobDef{
		"prod": {
			{ID: 1, Name: "vacuum", Schedule: "@every 1h", Function: "noop"},
			{ID: 2, Name: "broken", Schedule: "not a schedule", Function: "noop"},
			{ID: 3, Name: "orphan", Schedule: "@daily", Function: "missing"},
			{ID: 4, Name: "digest", Schedule: "0 6 * * *", Function: "noop"},
		},
	}}
	a := New(src, lifecycle.NewWorkerSet())
	a.RegisterFunc("noop", noop)

	n, err := a.RegisterJobs(context.Background(), "prod")
	if err != nil {
		t.Fatalf("RegisterJobs() error = %v", err)
	}
	if n != 2 {
		t.Errorf("RegisterJobs() = %d, want 2", n)
	}

	jobs := a.Jobs()
	if len(jobs) != 2 || jobs[0].Name != "digest" || jobs[1].Name != "vacuum" {
		t.Fatalf("Jobs() = %+v", jobs)
	}
	if jobs[0].Database != "prod" {
		t.Errorf("Database = %q, want prod", jobs[0].Database)
	}

	// re-registering replaces instead of duplicating
	if _, err := a.RegisterJobs(context.Background(), "prod"); err != nil {
		t.Fatal(err)
	}
	if got := len(a.Jobs()); got != 2 {
		t.Errorf("Jobs() after re-register = %d, want 2", got)
	}
}

func TestRegisterJobs_SourceError(t *testing.T) {
	boom := errors.New("relation ir_cron does not exist")
	a := New(&fakeSource{err: boom}, lifecycle.NewWorkerSet())

	_, err := a.RegisterJobs(context.Background(), "prod")
	if !errors.Is(err, boom) {
		t.Errorf("RegisterJobs() error = %v, want wrapped source error", err)
	}
}

func TestRegisterJobs_NilSource(t *testing.T) {
	a := New(nil, lifecycle.NewWorkerSet())
	n, err := a.RegisterJobs(context.Background(), "prod")
	if n != 0 || err != nil {
		t.Errorf("RegisterJobs() = %d, %v", n, err)
	}
}

func TestRunner_IsNonDaemonWorker(t *testing.T) {
	workers := lifecycle.NewWorkerSet()
	a := New(nil, workers)

	var seen []lifecycle.WorkerInfo
	var gotDB string
	run := a.runner("prod", JobDef{Name: "vacuum"}, func(ctx context.Context, dbname string) error {
		gotDB = dbname
		seen = workers.Live()
		return nil
	})
	run()

	if gotDB != "prod" {
		t.Errorf("dbname = %q, want prod", gotDB)
	}
	if len(seen) != 1 || seen[0].Name != "cron-prod-vacuum" || seen[0].Daemon {
		t.Errorf("live workers during run = %+v", seen)
	}
	if _, n := workers.Counts(); n != 0 {
		t.Errorf("worker still live after run returned: %d", n)
	}
}

func TestStop_Lifecycle(t *testing.T) {
	a := New(nil, lifecycle.NewWorkerSet())

	if err := a.Stop(context.Background()); err != nil {
		t.Errorf("Stop() before Start = %v", err)
	}
	if err := a.Stop(context.Background()); err != nil {
		t.Errorf("second Stop() = %v", err)
	}
	if err := a.Start(); err != nil {
		t.Errorf("Start() after Stop = %v", err)
	}
	if a.started {
		t.Error("Start after Stop must not schedule")
	}
}

func TestStop_TimesOutOnRunningJob(t *testing.T) {
	src := &fakeSource{jobs: map[string][]JobDef{
		"prod": {{Name: "slow", Schedule: "@every 1s", Function: "slow"}},
	}}
	workers := lifecycle.NewWorkerSet()
	a := New(src, workers)

	running := make(chan struct{}, 1)
	cancelled := make(chan struct{})
	a.RegisterFunc("slow", func(ctx context.Context, dbname string) error {
		select {
		case running <- struct{}{}:
		default:
		}
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})

	if _, err := a.RegisterJobs(context.Background(), "prod"); err != nil {
		t.Fatal(err)
	}
	if err := a.Start(); err != nil {
		t.Fatal(err)
	}

	select {
	case <-running:
	case <-time.After(3 * time.Second):
		t.Fatal("job never ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := a.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stop() error = %v, want deadline exceeded", err)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("running job context was not cancelled")
	}
	workers.Drain(5 * time.Millisecond)
	if _, n := workers.Counts(); n != 0 {
		t.Errorf("%d job workers left after drain", n)
	}
}
