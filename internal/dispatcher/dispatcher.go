// Package dispatcher runs background tasks outside of the request that
// scheduled them.
package dispatcher

import (
	"context"
	"errors"
)

var (
	ErrBufferFull = errors.New("dispatcher buffer full, task dropped")
	ErrClosed     = errors.New("dispatcher is closed")
)

// Dispatcher queues tasks for asynchronous execution.
type Dispatcher interface {
	// Dispatch queues a task. It never blocks.
	Dispatch(task Task) error
	Stats() Stats
	// Close stops accepting tasks, cancels the running ones and waits for the
	// workers until ctx is done.
	Close(ctx context.Context) error
}

// Task is a unit of background work. Run receives a context that is
// cancelled when the dispatcher closes.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

type Stats struct {
	QueueDepth int
	Queued     int64
	Succeeded  int64
	Failed     int64
	Dropped    int64
}
