// Package background runs best-effort side effects outside the caller's result path.
package background

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gitlab.com/savesync.net/internal/core/ports/primary"
)

const (
	defaultTaskTimeout = 10 * time.Second
	errBuffer          = 64
)

// Dispatcher runs fire-and-forget tasks; their errors are drained into the logger
type Dispatcher struct {
	logger      primary.Logger
	taskTimeout time.Duration
	errCh       chan error
	drained     chan struct{}
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closed      bool
}

func NewDispatcher(logger primary.Logger) *Dispatcher {
	d := &Dispatcher{
		logger:      logger,
		taskTimeout: defaultTaskTimeout,
		errCh:       make(chan error, errBuffer),
		drained:     make(chan struct{}),
	}
	go d.drain()
	return d
}

func (d *Dispatcher) drain() {
	defer close(d.drained)
	for err := range d.errCh {
		d.logger.Warn("Background task failed", "error", err)
	}
}

// Go runs fn on its own goroutine with a context detached from any request
func (d *Dispatcher) Go(name string, fn func(ctx context.Context) error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Debug("Dropping background task after close", "task", name)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.taskTimeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				d.errCh <- fmt.Errorf("%s: panic: %v", name, r)
			}
		}()
		if err := fn(ctx); err != nil {
			d.errCh <- fmt.Errorf("%s: %w", name, err)
		}
	}()
}

// Wait blocks until every task started so far has returned
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close waits for running tasks and stops the error drain
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
	close(d.errCh)
	<-d.drained
}
