// Package poller periodically reconciles processing jobs whose completion
// signal never arrived.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kubev2v/transcriber/internal/service"
	"github.com/kubev2v/transcriber/internal/store"
	"github.com/kubev2v/transcriber/internal/store/model"
	"github.com/kubev2v/transcriber/pkg/metrics"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
)

const (
	defaultInterval    = 5 * time.Minute
	defaultStopTimeout = 30 * time.Second
	defaultJobTimeout  = 5 * time.Minute
)

var ErrStopTimeout = errors.New("poller did not stop in time, cycle cancelled")

type Config struct {
	Interval          time.Duration
	StaleThreshold    time.Duration
	JobTimeout        time.Duration
	WebhookConfigured bool
}

type Poller struct {
	store      store.Store
	reconciler service.JobReconciler
	cfg        Config

	mu     sync.Mutex
	cancel context.CancelFunc
	stop   chan struct{}
	done   chan struct{}
}

func New(s store.Store, reconciler service.JobReconciler, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	return &Poller{store: s, reconciler: reconciler, cfg: cfg}
}

// RunOnce runs a single cycle and returns the number of jobs it reconciled.
// A failing job does not stop the cycle.
func (p *Poller) RunOnce(ctx context.Context) (int, error) {
	logger := zap.S().Named("poller")

	strategy := SelectStrategy(p.cfg.WebhookConfigured, p.cfg.StaleThreshold)
	jobs, err := strategy.candidates(ctx, p.store.Job())
	if err != nil {
		logger.Errorw("failed to list jobs", "strategy", strategy.Name, "error", err)
		return 0, err
	}
	metrics.IncreasePollCyclesMetric(strategy.Name, len(jobs))

	if len(jobs) == 0 {
		logger.Debugw("no jobs to check", "strategy", strategy.Name)
		return 0, nil
	}
	logger.Infow("checking jobs", "strategy", strategy.Name, "count", len(jobs))

	processed := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if !job.HasProviderJobID() {
			logger.Warnw("job has no provider job id, skipping", "job_id", job.ID)
			continue
		}

		if err := p.reconcile(ctx, job); err != nil {
			logger.Errorw("failed to reconcile job", "job_id", job.ID, "error", err)
			continue
		}
		processed++
	}

	return processed, nil
}

// reconcile gives every job its own deadline and panic boundary.
func (p *Poller) reconcile(ctx context.Context, job model.Job) (err error) {
	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reconciliation panicked: %v", r)
		}
	}()

	zap.S().Named("poller").Infow("checking job", "job_id", job.ID, "provider_job_id", *job.ProviderJobID, "created_at", job.CreatedAt)
	return p.reconciler.Reconcile(jobCtx, job.ID, *job.ProviderJobID)
}

// Start runs a cycle right away and then one per interval. Calling it on a
// running poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.stop = make(chan struct{})
	p.done = make(chan struct{})

	zap.S().Named("poller").Infow("starting poller",
		"interval", p.cfg.Interval,
		"strategy", SelectStrategy(p.cfg.WebhookConfigured, p.cfg.StaleThreshold).Name,
		"stale_threshold", p.cfg.StaleThreshold,
	)

	go p.loop(ctx, p.stop, p.done)
}

func (p *Poller) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := jitterbug.New(p.cfg.Interval, &jitterbug.Norm{Stdev: 30 * time.Millisecond, Mean: 0})
	defer ticker.Stop()

	for {
		if _, err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
			zap.S().Named("poller").Errorw("poll cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// Stop waits up to timeout for the running cycle before cancelling it.
func (p *Poller) Stop(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = defaultStopTimeout
	}

	logger := zap.S().Named("poller")
	logger.Info("stopping poller")

	close(p.stop)

	var err error
	select {
	case <-p.done:
	case <-time.After(timeout):
		logger.Warnw("poll cycle did not finish in time, cancelling", "timeout", timeout)
		p.cancel()
		<-p.done
		err = ErrStopTimeout
	}

	p.cancel()
	p.cancel, p.stop, p.done = nil, nil, nil
	logger.Info("poller stopped")
	return err
}
