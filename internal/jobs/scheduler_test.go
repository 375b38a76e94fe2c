package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeReconciler struct {
	mu     sync.Mutex
	calls  int
	limits []int
	err    error
}

func (f *fakeReconciler) ReconcileCertificates(_ context.Context, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.limits = append(f.limits, limit)
	return 1, f.err
}

func (f *fakeReconciler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestNewRejectsBadSchedule(t *testing.T) {
	if _, err := New("not a schedule", 10, &fakeReconciler{}, nil); err == nil {
		t.Fatalf("expected error for invalid schedule")
	}
}

func TestSchedulerRunsReconciler(t *testing.T) {
	rec := &fakeReconciler{}
	s, err := New("@every 1s", 25, rec, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.Start()
	defer s.Stop(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if rec.count() == 0 {
		t.Fatalf("reconciler never ran")
	}
	rec.mu.Lock()
	limit := rec.limits[0]
	rec.mu.Unlock()
	if limit != 25 {
		t.Fatalf("expected batch 25, got %d", limit)
	}
	if s.Runs() == 0 {
		t.Fatalf("expected run counter to advance")
	}
}

func TestReconcileErrorIsSwallowed(t *testing.T) {
	rec := &fakeReconciler{err: errors.New("boom")}
	s, err := New("@every 1h", 5, rec, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.reconcile(context.Background(), rec, 5)
	if rec.count() != 1 || s.Runs() != 1 {
		t.Fatalf("expected one run, got calls=%d runs=%d", rec.count(), s.Runs())
	}
}
