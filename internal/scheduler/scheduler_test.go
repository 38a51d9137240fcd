package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/Surveyor/internal/jobs"
)

type fakePool struct {
	rotateErr error
	delay     time.Duration

	passes  atomic.Int32
	running atomic.Int32
	overlap atomic.Bool
}

func (p *fakePool) Discover(context.Context) (int, error) { return 0, nil }

func (p *fakePool) Rotate(context.Context) error {
	if p.running.Add(1) > 1 {
		p.overlap.Store(true)
	}
	defer p.running.Add(-1)
	time.Sleep(p.delay)
	p.passes.Add(1)
	return p.rotateErr
}

func (p *fakePool) Len() int { return 0 }

type fakeNotifier struct {
	mu       sync.Mutex
	subjects []string
}

func (n *fakeNotifier) Notify(_ context.Context, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subjects = append(n.subjects, subject)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subjects)
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"@every 30s", false},
		{"*/5 * * * *", false},
		{"@hourly", false},
		{"every thirty seconds", true},
		{"* * *", true},
	}

	for _, tt := range tests {
		err := ValidateSchedule(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateSchedule(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}

func TestNew_InvalidSchedule(t *testing.T) {
	if _, err := New(Config{Pool: &fakePool{}, Schedule: "bogus"}); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestPass_NeverOverlaps(t *testing.T) {
	pool := &fakePool{delay: 20 * time.Millisecond}
	s, err := New(Config{Pool: pool})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Pass(context.Background()); err != nil {
				t.Errorf("pass: %v", err)
			}
		}()
	}
	wg.Wait()

	if pool.overlap.Load() {
		t.Error("passes must not overlap")
	}
	if n := pool.passes.Load(); n < 1 || n > 5 {
		t.Errorf("unexpected pass count %d", n)
	}
}

func TestRun_FatalErrorNotifiesAndStops(t *testing.T) {
	pool := &fakePool{rotateErr: fmt.Errorf("job a: %w", jobs.ErrMalformedLog)}
	notifier := &fakeNotifier{}
	s, err := New(Config{Pool: pool, Notifier: notifier, Schedule: "@every 1h"})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = s.Run(ctx)
	if !errors.Is(err, jobs.ErrMalformedLog) {
		t.Fatalf("expected ErrMalformedLog, got %v", err)
	}
	if notifier.count() != 1 {
		t.Errorf("expected 1 notification, got %d", notifier.count())
	}
}

func TestRun_TransientErrorKeepsRunning(t *testing.T) {
	pool := &fakePool{rotateErr: errors.New("qstat: connection refused")}
	notifier := &fakeNotifier{}
	s, err := New(Config{Pool: pool, Notifier: notifier, Schedule: "@every 1h"})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Сигнал извне, как от события restore.finished.
	deadline := time.Now().Add(5 * time.Second)
	for pool.passes.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.TriggerNow(ctx)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil on cancel, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if pool.passes.Load() < 2 {
		t.Errorf("expected at least 2 passes, got %d", pool.passes.Load())
	}
	if notifier.count() != 0 {
		t.Errorf("transient errors must not notify, got %d", notifier.count())
	}
}
