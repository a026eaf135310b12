package threadpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func newMockScheduled(t *testing.T, size int) (*ScheduledPool, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	cfg := DefaultConfig()
	cfg.Background.Size = size
	r := newTestRegistry(t, cfg, WithClock(mock))
	s, err := r.Scheduled(Background)
	if err != nil {
		t.Fatal(err)
	}
	return s, mock
}

func TestScheduled_Once(t *testing.T) {
	s, mock := newMockScheduled(t, 2)

	var runs atomic.Int64
	job, err := s.Schedule("exec", time.Second, func(ctx context.Context) { runs.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	if !s.HasJobs("exec") {
		t.Fatal("expected pending job")
	}

	mock.Add(999 * time.Millisecond)
	if runs.Load() != 0 {
		t.Fatal("job ran before its delay")
	}

	mock.Add(time.Millisecond)
	select {
	case <-job.Done():
	case <-time.After(time.Second):
		t.Fatal("job did not finish")
	}

	if runs.Load() != 1 || job.Runs() != 1 {
		t.Errorf("expected exactly one run, got %d", runs.Load())
	}
	if s.HasJobs("exec") {
		t.Error("expected no jobs after one-shot completed")
	}
}

func TestScheduled_Repeating(t *testing.T) {
	s, mock := newMockScheduled(t, 2)

	job, err := s.ScheduleRepeating("exec", time.Second, time.Second, func(ctx context.Context) {})
	if err != nil {
		t.Fatal(err)
	}

	for want := int64(1); want <= 3; want++ {
		mock.Add(time.Second)
		waitFor(t, time.Second, func() bool { return job.Runs() == want })
	}

	job.Cancel()
	select {
	case <-job.Done():
	case <-time.After(time.Second):
		t.Fatal("cancelled job did not stop")
	}

	mock.Add(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if got := job.Runs(); got != 3 {
		t.Errorf("expected no runs after cancel, got %d", got)
	}
}

func TestScheduled_CancelKey(t *testing.T) {
	s, mock := newMockScheduled(t, 2)

	var runs atomic.Int64
	task := func(ctx context.Context) { runs.Add(1) }

	a, err := s.ScheduleRepeating("exec", time.Second, time.Second, task)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Schedule("exec", time.Second, task)
	if err != nil {
		t.Fatal(err)
	}
	other, err := s.Schedule("other", time.Second, task)
	if err != nil {
		t.Fatal(err)
	}

	if n := s.Cancel("exec"); n != 2 {
		t.Errorf("expected 2 cancelled jobs, got %d", n)
	}
	if s.HasJobs("exec") {
		t.Error("expected no jobs under cancelled key")
	}
	if !s.HasJobs("other") {
		t.Error("expected other key untouched")
	}
	if n := s.Cancel("exec"); n != 0 {
		t.Errorf("expected second cancel to find nothing, got %d", n)
	}

	for _, j := range []*Job{a, b} {
		select {
		case <-j.Done():
		case <-time.After(time.Second):
			t.Fatal("cancelled job did not stop")
		}
	}

	mock.Add(time.Second)
	select {
	case <-other.Done():
	case <-time.After(time.Second):
		t.Fatal("other job did not run")
	}
	if got := runs.Load(); got != 1 {
		t.Errorf("expected only the uncancelled job to run, got %d runs", got)
	}
}

func TestScheduled_CancelDuringRun(t *testing.T) {
	s, mock := newMockScheduled(t, 1)

	started := make(chan struct{})
	release := make(chan struct{})
	var interrupted atomic.Bool
	job, err := s.ScheduleRepeating("exec", time.Second, time.Second, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		interrupted.Store(true)
		<-release
	})
	if err != nil {
		t.Fatal(err)
	}

	mock.Add(time.Second)
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("job did not start")
	}

	if n := s.Cancel("exec"); n != 1 {
		t.Errorf("expected 1 cancelled job, got %d", n)
	}
	if s.HasJobs("exec") {
		t.Error("cancelled key must not report jobs while the last run drains")
	}
	select {
	case <-job.Done():
		t.Fatal("job done before its run returned")
	default:
	}

	close(release)
	select {
	case <-job.Done():
	case <-time.After(time.Second):
		t.Fatal("job did not finish")
	}
	if !interrupted.Load() {
		t.Error("running task did not see its context cancelled")
	}
	if s.HasJobs("exec") {
		t.Error("expected no jobs after the run finished")
	}
}

func TestScheduled_RejectsInvalidPeriod(t *testing.T) {
	s, _ := newMockScheduled(t, 1)

	if _, err := s.ScheduleRepeating("k", 0, 0, func(context.Context) {}); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
	if _, err := s.Schedule("k", 0, nil); !errors.Is(err, ErrNilTask) {
		t.Errorf("expected ErrNilTask, got %v", err)
	}
	if s.HasJobs("k") {
		t.Error("rejected jobs must not be registered")
	}
}

func TestScheduled_BoundsConcurrency(t *testing.T) {
	s, _ := newMockScheduled(t, 1)

	var running, peak atomic.Int64
	release := make(chan struct{})
	task := func(ctx context.Context) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		running.Add(-1)
	}

	a, err := s.Schedule("a", 0, task)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Schedule("b", 0, task)
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, func() bool { return running.Load() == 1 })
	time.Sleep(20 * time.Millisecond)
	if running.Load() != 1 {
		t.Fatal("expected a single slot to serialize jobs")
	}
	close(release)

	for _, j := range []*Job{a, b} {
		select {
		case <-j.Done():
		case <-time.After(time.Second):
			t.Fatal("job did not finish")
		}
	}
	if peak.Load() != 1 {
		t.Errorf("expected peak concurrency 1, got %d", peak.Load())
	}
}

func TestScheduled_Stats(t *testing.T) {
	s, _ := newMockScheduled(t, 3)

	for _, key := range []string{"b", "a", "b"} {
		if _, err := s.Schedule(key, time.Hour, func(context.Context) {}); err != nil {
			t.Fatal(err)
		}
	}

	stats := s.Stats()
	if stats.Jobs != 3 || stats.Size != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if len(stats.Keys) != 2 || stats.Keys[0] != "a" || stats.Keys[1] != "b" {
		t.Errorf("unexpected keys %v", stats.Keys)
	}
}
