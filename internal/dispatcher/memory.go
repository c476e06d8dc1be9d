package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kubev2v/transcriber/pkg/metrics"
	"go.uber.org/zap"
)

const (
	defaultWorkers    = 4
	defaultBufferSize = 100
)

type Config struct {
	Workers    int
	BufferSize int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	return c
}

// MemoryDispatcher keeps tasks in a bounded channel served by a worker pool.
// Tasks that do not fit in the buffer are dropped.
type MemoryDispatcher struct {
	queue  chan Task
	config Config

	baseCtx context.Context
	cancel  context.CancelFunc

	queued    atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

var _ Dispatcher = (*MemoryDispatcher)(nil)

func NewMemory(cfg Config) *MemoryDispatcher {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	d := &MemoryDispatcher{
		queue:    make(chan Task, cfg.BufferSize),
		config:   cfg,
		baseCtx:  ctx,
		cancel:   cancel,
		shutdown: make(chan struct{}),
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}

	zap.S().Named("dispatcher").Infow("dispatcher started", "workers", cfg.Workers, "buffer", cfg.BufferSize)
	return d
}

func (d *MemoryDispatcher) Dispatch(task Task) error {
	if d.closed.Load() {
		return ErrClosed
	}

	select {
	case d.queue <- task:
		d.queued.Add(1)
		metrics.UpdateDispatcherQueueMetric(len(d.queue))
		return nil
	default:
		d.dropped.Add(1)
		metrics.IncreaseDispatcherTasksMetric(metrics.TaskRejected)
		zap.S().Named("dispatcher").Warnw("task dropped, buffer full", "task", task.Name)
		return ErrBufferFull
	}
}

func (d *MemoryDispatcher) Stats() Stats {
	return Stats{
		QueueDepth: len(d.queue),
		Queued:     d.queued.Load(),
		Succeeded:  d.succeeded.Load(),
		Failed:     d.failed.Load(),
		Dropped:    d.dropped.Load(),
	}
}

// Close stops intake and lets running tasks finish until ctx expires. Tasks
// still running then are cancelled. Queued tasks that never started are
// abandoned.
func (d *MemoryDispatcher) Close(ctx context.Context) error {
	if d.closed.Swap(true) {
		return nil
	}

	logger := zap.S().Named("dispatcher")
	logger.Infow("dispatcher shutting down", "queued", len(d.queue))

	close(d.shutdown)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		logger.Infow("dispatcher shutdown complete",
			"succeeded", d.succeeded.Load(),
			"failed", d.failed.Load(),
			"dropped", d.dropped.Load(),
			"abandoned", len(d.queue),
		)
		return nil
	case <-ctx.Done():
		logger.Warnw("dispatcher shutdown timed out, cancelling running tasks", "remaining", len(d.queue))
		d.cancel()
		return ctx.Err()
	}
}

func (d *MemoryDispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.shutdown:
			return
		case task := <-d.queue:
			metrics.UpdateDispatcherQueueMetric(len(d.queue))
			d.run(task)
		}
	}
}

func (d *MemoryDispatcher) run(task Task) {
	logger := zap.S().Named("dispatcher")

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				metrics.IncreaseDispatcherTasksMetric(metrics.TaskPanicked)
				err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		return task.Run(d.baseCtx)
	}()

	if err != nil {
		d.failed.Add(1)
		metrics.IncreaseDispatcherTasksMetric(metrics.TaskFailed)
		logger.Errorw("task failed", "task", task.Name, "error", err)
		return
	}

	d.succeeded.Add(1)
	metrics.IncreaseDispatcherTasksMetric(metrics.TaskSucceeded)
}
