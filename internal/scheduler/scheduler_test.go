package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "trendpipe/pkg/logx"
)

func TestInstallReplacesExisting(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	noop := func(ctx context.Context) error { return nil }

	if _, err := s.Install("daily", "0 3 * * *", noop); err != nil {
		t.Fatalf("first install: %v", err)
	}
	h, err := s.Install("daily", "0 4 * * *", noop)
	if err != nil {
		t.Fatalf("second install: %v", err)
	}

	jobs := s.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("expected exactly one active schedule, got %d", len(jobs))
	}
	if jobs[0].Spec != "0 4 * * *" {
		t.Fatalf("active spec = %q, want the replacement", jobs[0].Spec)
	}
	next := h.NextRun()
	if next.Hour() != 4 || next.Minute() != 0 {
		t.Fatalf("next run %v does not match replacement schedule", next)
	}
}

func TestFailingTickKeepsSchedule(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	var calls atomic.Int32
	_, err := s.Install("flaky", "@every 30ms", func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("injected failure")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("install: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("second tick never fired after a failing first tick (calls=%d)", calls.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	hist := s.History()
	if len(hist) == 0 || hist[0].Error == "" {
		t.Fatalf("first tick failure not recorded: %+v", hist)
	}
}

func TestPanickingTickKeepsSchedule(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	var calls atomic.Int32
	_, err := s.Install("explosive", "@every 30ms", func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("install: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("schedule died after a panicking tick (calls=%d)", calls.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestCancelSemantics(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Cancel("never-installed"); !errors.Is(err, ErrNotScheduled) {
		t.Fatalf("cancel of unknown task: got %v, want ErrNotScheduled", err)
	}

	h, err := s.Install("job", "0 0 * * *", func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Cancel(); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if err := h.Cancel(); !errors.Is(err, ErrNotScheduled) {
		t.Fatalf("second cancel: got %v, want ErrNotScheduled", err)
	}
	if len(s.Jobs()) != 0 {
		t.Fatal("cancelled schedule still listed")
	}
}

func TestCancelStopsTicks(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	var calls atomic.Int32
	if _, err := s.Install("ticker", "@every 25ms", func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	// Let it tick at least once, then cancel.
	deadline := time.After(3 * time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("schedule never ticked")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if err := s.Cancel("ticker"); err != nil {
		t.Fatal(err)
	}
	seen := calls.Load()
	time.Sleep(150 * time.Millisecond)
	// An in-flight tick may complete, but no further ticks should fire.
	if calls.Load() > seen+1 {
		t.Fatalf("ticks continued after cancel: %d -> %d", seen, calls.Load())
	}
}

func TestInstallBeforeStartArmsOnStart(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())

	var calls atomic.Int32
	if _, err := s.Install("early", "@every 25ms", func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if got := s.NextRun("early"); got.IsZero() {
		t.Fatal("NextRun should be computable before Start")
	}

	s.Start(context.Background())
	defer s.Stop(context.Background())

	deadline := time.After(3 * time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("pre-start schedule never armed")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestInstallRejectsBadSpec(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	if _, err := s.Install("bad", "not a cron spec", func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := s.Install("", "0 0 * * *", func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for empty name")
	}
}
