package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"coursehub/internal/logging"
)

// CertificateReconciler issues certificates that completion failed to issue.
type CertificateReconciler interface {
	ReconcileCertificates(ctx context.Context, limit int) (int, error)
}

// Scheduler runs background maintenance on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
	log  *logging.Logger

	mu   sync.Mutex
	runs int
}

// New registers the certificate reconciler under schedule (standard 5-field
// cron or a descriptor such as "@every 10m").
func New(schedule string, batch int, rec CertificateReconciler, log *logging.Logger) (*Scheduler, error) {
	if log == nil {
		log = logging.Nop()
	}
	s := &Scheduler{cron: cron.New(), log: log}
	_, err := s.cron.AddFunc(schedule, func() {
		s.reconcile(context.Background(), rec, batch)
	})
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) reconcile(ctx context.Context, rec CertificateReconciler, batch int) {
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	n, err := rec.ReconcileCertificates(ctx, batch)
	if err != nil {
		s.log.Error("certificate reconcile run failed", "error", err)
		return
	}
	s.log.Debug("certificate reconcile run", "issued", n)
}

// Runs reports how many times the reconciler has fired.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops scheduling and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
