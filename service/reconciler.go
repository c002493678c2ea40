package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"rfp-backend/events"
	"rfp-backend/metrics"
	"rfp-backend/models"
	"rfp-backend/repository"
)

// DefaultReconcileInterval is how often expired RFPs are closed
const DefaultReconcileInterval = 5 * time.Minute

// ExpiryStore is the subset of the record store the reconciler needs
type ExpiryStore interface {
	ListExpiredIDs(ctx context.Context, now time.Time) ([]string, error)
	CloseIfExpired(ctx context.Context, id string, now time.Time) (bool, error)
}

// SweepLock guards a sweep across replicas. release must be safe to call
// when ok is false.
type SweepLock interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// SweepResult summarizes one reconciler pass
type SweepResult struct {
	Candidates int
	Closed     int
	Failed     int
	Skipped    bool
}

// Reconciler periodically closes RFPs whose deadline has passed
type Reconciler struct {
	store     ExpiryStore
	lock      SweepLock
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
	interval  time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// ReconcilerOption is a functional option for Reconciler
type ReconcilerOption func(*Reconciler)

// WithInterval sets the sweep interval
func WithInterval(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithSweepLock makes each sweep conditional on holding lock
func WithSweepLock(lock SweepLock) ReconcilerOption {
	return func(r *Reconciler) {
		r.lock = lock
	}
}

// WithReconcilerPublisher sets the publisher for close events
func WithReconcilerPublisher(p events.Publisher) ReconcilerOption {
	return func(r *Reconciler) {
		if p != nil {
			r.publisher = p
		}
	}
}

// WithReconcilerMetrics sets the metrics collectors
func WithReconcilerMetrics(m *metrics.Metrics) ReconcilerOption {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// WithReconcilerLogger sets the logger
func WithReconcilerLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithReconcilerClock overrides the time source
func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		r.now = now
	}
}

// NewReconciler creates a reconciler over store
func NewReconciler(store ExpiryStore, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:     store,
		publisher: events.NopPublisher{},
		logger:    slog.Default(),
		now:       time.Now,
		interval:  DefaultReconcileInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs a sweep immediately and then on every interval until ctx
// is cancelled or Stop is called.
func (r *Reconciler) Start(ctx context.Context) error {
	if r.store == nil {
		return errors.New("expiry store not set")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("reconciler already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go r.loop(loopCtx, r.done)

	r.logger.Info("Reconciler started", "interval", r.interval)
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep to finish
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel, done := r.cancel, r.done
	r.running = false
	r.mu.Unlock()

	cancel()
	<-done
	r.logger.Info("Reconciler stopped")
}

func (r *Reconciler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Reconciler) runOnce(ctx context.Context) {
	res, err := r.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("Reconciler sweep failed", "error", err)
		}
		return
	}
	if res.Closed > 0 || res.Failed > 0 {
		r.logger.Info("Reconciler sweep complete",
			"candidates", res.Candidates,
			"closed", res.Closed,
			"failed", res.Failed)
	}
}

// Sweep closes every RFP whose deadline is before now. A failure on one
// record is logged and does not stop the others.
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	var res SweepResult

	if r.lock != nil {
		release, ok, err := r.lock.TryAcquire(ctx)
		defer release()
		if err != nil {
			r.metrics.ObserveSweep(metrics.SweepError, 0, 0, time.Since(start))
			return res, err
		}
		if !ok {
			res.Skipped = true
			r.metrics.ObserveSweep(metrics.SweepSkipped, 0, 0, time.Since(start))
			r.logger.Debug("Reconciler sweep skipped, lock held elsewhere")
			return res, nil
		}
	}

	now := r.now()
	ids, err := r.store.ListExpiredIDs(ctx, now)
	if err != nil {
		r.metrics.ObserveSweep(metrics.SweepError, 0, 0, time.Since(start))
		return res, err
	}
	res.Candidates = len(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		closed, err := r.store.CloseIfExpired(ctx, id, now)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			res.Failed++
			r.logger.Warn("Failed to close expired RFP", "rfp_id", id, "error", err)
			continue
		}
		if !closed {
			continue
		}
		res.Closed++
		r.logger.Debug("Closed expired RFP", "rfp_id", id)

		if err := r.publisher.Publish(ctx, events.Event{
			Type:       events.TypeClosed,
			RFPID:      id,
			Status:     models.StatusClosed,
			OccurredAt: now.UTC(),
		}); err != nil {
			r.logger.Warn("Failed to publish event", "type", events.TypeClosed, "rfp_id", id, "error", err)
		}
	}

	r.metrics.ObserveSweep(metrics.SweepOK, res.Closed, res.Failed, time.Since(start))
	return res, ctx.Err()
}
