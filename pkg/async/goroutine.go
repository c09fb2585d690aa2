package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SafeGo runs fn in a goroutine with a bounded lifetime: the context is
// cancelled after timeout, panics are recovered and logged with the task
// name, and a returned error is logged instead of crashing the caller.
//
// Use this instead of a bare `go func()` for fire-and-forget work such as
// session pin write-back, where the request must not wait and a failure
// must not take the process down.
//
// Example:
//
//	SafeGo(r.Context(), 5*time.Second, "session-pin-writeback", func(ctx context.Context) error {
//	    return sessions.PinTenant(ctx, sessionID, tenantID)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logrus.WithFields(logrus.Fields{
					"task":  taskName,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("background task panicked")
			}
		}()

		if err := fn(ctx); err != nil {
			// The caller already moved on; all we can do is record it.
			logrus.WithError(err).WithField("task", taskName).Warn("background task failed")
		}
	}()
}

// SafeGoNoError is SafeGo for functions that cannot fail. Panic recovery
// and the timeout still apply.
func SafeGoNoError(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context)) {
	SafeGo(parentCtx, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// WorkerPool runs tasks on a fixed number of workers with per-task
// timeouts, panic containment, and graceful shutdown. Errors are collected
// on a buffered channel rather than returned inline.
type WorkerPool struct {
	workers      int
	taskName     string
	timeout      time.Duration
	workCh       chan func(context.Context) error
	doneCh       chan struct{}
	errCh        chan error
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// NewWorkerPool starts workers goroutines that pull tasks until the pool
// shuts down. taskName labels log lines and collected panics.
func NewWorkerPool(ctx context.Context, workers int, taskName string, timeout time.Duration) *WorkerPool {
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		workers:  workers,
		taskName: taskName,
		timeout:  timeout,
		workCh:   make(chan func(context.Context) error, workers*2),
		doneCh:   make(chan struct{}),
		errCh:    make(chan error, workers*10),
		ctx:      ctx,
		cancel:   cancel,
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				pool.run(id)
			}(i)
		}
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit queues a task. It fails once the pool has shut down.
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	select {
	case <-p.doneCh:
		return fmt.Errorf("worker pool shut down")
	default:
	}

	// Shutdown may close workCh between the check above and the send
	// below; the recover turns that race into a no-op.
	defer func() {
		_ = recover()
	}()

	select {
	case p.workCh <- fn:
		return nil
	case <-p.doneCh:
		return fmt.Errorf("worker pool shut down")
	}
}

// Shutdown stops accepting tasks, lets workers drain what is queued, and
// waits up to timeout for them to finish.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	var shutdownErr error

	p.shutdownOnce.Do(func() {
		// Batch may have closed workCh already.
		func() {
			defer func() { _ = recover() }()
			close(p.workCh)
		}()

		select {
		case <-p.doneCh:
			p.cancel()
		case <-time.After(timeout):
			p.cancel()
			shutdownErr = fmt.Errorf("worker pool shutdown timed out after %v", timeout)
		}
	})

	return shutdownErr
}

// Errors exposes the collected task errors. Reads must not block; use a
// select with a default case.
func (p *WorkerPool) Errors() <-chan error {
	return p.errCh
}

func (p *WorkerPool) collect(err error) {
	select {
	case p.errCh <- err:
	default:
		logrus.WithError(err).WithField("task", p.taskName).Warn("error channel full, dropping error")
	}
}

func (p *WorkerPool) run(id int) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"task":   p.taskName,
				"worker": id,
				"panic":  r,
				"stack":  string(debug.Stack()),
			}).Error("worker panicked")
		}
	}()

	for {
		select {
		case <-p.ctx.Done():
			return

		case fn, ok := <-p.workCh:
			if !ok {
				return
			}
			// The select picks arbitrarily when both channels are ready;
			// a task dequeued after cancellation must not run.
			if p.ctx.Err() != nil {
				return
			}

			ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
			func() {
				defer cancel()
				defer func() {
					if r := recover(); r != nil {
						p.collect(fmt.Errorf("panic: %v", r))
					}
				}()

				if err := fn(ctx); err != nil {
					p.collect(err)
				}
			}()
		}
	}
}

// Batch fans items out over a temporary worker pool and blocks until every
// item has been processed. All collected errors are returned; a nil slice
// means every item succeeded.
//
// Example:
//
//	errs := Batch(ctx, pending, 4, "domain-recheck", 30*time.Second,
//	    func(ctx context.Context, tenant tenants.Tenant) error {
//	        return recheck(ctx, tenant)
//	    })
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	if err := ctx.Err(); err != nil {
		return []error{err}
	}

	pool := NewWorkerPool(ctx, workers, taskName, timeout)
	defer pool.Shutdown(5 * time.Second)

	for _, item := range items {
		item := item
		if err := pool.Submit(func(ctx context.Context) error {
			return fn(ctx, item)
		}); err != nil {
			return []error{err}
		}
	}

	// Closing workCh lets workers drain the queue before exiting.
	close(pool.workCh)
	<-pool.doneCh
	pool.cancel()

	var errs []error
	for {
		select {
		case err := <-pool.errCh:
			errs = append(errs, err)
		default:
			return errs
		}
	}
}
