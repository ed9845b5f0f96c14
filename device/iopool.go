package device

import (
	"context"
	"runtime"

	"github.com/hybridstore/storage/errors"
	"github.com/hybridstore/storage/sync/multierror"
	"github.com/hybridstore/storage/sync/workerpool"
)

// ioPool offloads blocking pread(2)/pwrite(2) and sync calls onto a bounded
// set of goroutines, so that a caller running on a cooperative scheduler is
// never itself blocked in a syscall. It is built directly on package
// sync/workerpool's (kept from github.com/grailbio/base) fixed-goroutine-count,
// channel-dispatch WorkerPool: every submit opens a one-task TaskGroup,
// enqueues a closure-wrapping Task, and waits for that single group, giving
// each I/O op its own synchronous "run and report the error" round trip.
type ioPool struct {
	wp *workerpool.WorkerPool
}

// fnTask adapts a plain closure to workerpool.Task.
type fnTask struct {
	fn  func() error
	err error
}

func (t *fnTask) Do(grp *workerpool.TaskGroup) error {
	t.err = t.fn()
	return t.err
}

// newIOPool starts a pool with concurrency workers. concurrency <= 0 selects
// a default based on GOMAXPROCS.
func newIOPool(concurrency int) *ioPool {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
		if concurrency < 1 {
			concurrency = 1
		}
	}
	return &ioPool{wp: workerpool.New(context.Background(), concurrency)}
}

// submit runs fn on a pool worker and waits for its result, returning early
// if ctx is done before fn is enqueued.
func (p *ioPool) submit(ctx context.Context, fn func() error) error {
	grp := p.wp.NewTaskGroup("device-io", multierror.NewMultiError(1))
	t := &fnTask{fn: fn}

	enqueued := make(chan struct{})
	go func() {
		grp.Enqueue(t, true)
		close(enqueued)
	}()

	select {
	case <-enqueued:
	case <-ctx.Done():
		// fn may still land on the queue and run; device writes are not
		// cancelable mid-flight under this engine's concurrency model.
		return errors.E(errors.Canceled, ctx.Err(), "device: I/O submission canceled")
	}

	waited := make(chan struct{})
	go func() {
		grp.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		return t.err
	case <-ctx.Done():
		return errors.E(errors.Canceled, ctx.Err(), "device: I/O wait canceled")
	}
}

// close is a no-op: the underlying WorkerPool has no per-caller shutdown
// hook short of closing its own root context, which ioPool does not own.
func (p *ioPool) close() {}
