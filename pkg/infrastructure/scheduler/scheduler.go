package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron"
	log "github.com/sirupsen/logrus"
)

type Reconciler interface {
	ReconcilePending(ctx context.Context) (int, error)
}

// Scheduler periodically retries delivered orders whose stock reconciliation is incomplete.
type Scheduler struct {
	cron       *cron.Cron
	reconciler Reconciler
	timeout    time.Duration
	running    sync.Mutex
}

func New(reconciler Reconciler, schedule string, timeout time.Duration) (*Scheduler, error) {
	s := &Scheduler{cron: cron.New(), reconciler: reconciler, timeout: timeout}
	if err := s.cron.AddFunc(schedule, s.Run); err != nil {
		return nil, errors.Wrapf(err, "invalid reconcile schedule %q", schedule)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// Run performs one sweep. A sweep that is still running makes the next one a no-op.
func (s *Scheduler) Run() {
	if !s.running.TryLock() {
		log.Warn("previous reconciliation sweep still running, skipping")
		return
	}
	defer s.running.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	completed, err := s.reconciler.ReconcilePending(ctx)
	if err != nil {
		log.WithError(err).Error("reconciliation sweep failed")
		return
	}
	if completed > 0 {
		log.WithField("orders", completed).Info("reconciliation sweep completed orders")
	}
}
