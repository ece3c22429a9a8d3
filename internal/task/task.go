// Package task manages the goroutines a driver runs for one open stream.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-serialproto/logger"
)

// ErrStopped is returned when a task is started on a stopped Manager.
var ErrStopped = errors.New("task: manager already stopped")

// Func is one iteration of a looping task. It returns false to stop the task.
type Func func() bool

// ReadFunc is one iteration of a reading task. buf is owned by the task and
// reused between iterations. It returns false to stop the task.
type ReadFunc func(buf []byte) bool

// BodyFunc is the body of a task that runs its own loop. It must return
// once ctx is done.
type BodyFunc func(ctx context.Context)

// CancelFunc is called when a task exits, for any reason.
type CancelFunc func()

// Manager manages the lifecycle of goroutines (tasks).
//
// Every task observes the manager's context. Stop cancels it and Wait blocks
// until every task has returned, after which the manager can start tasks
// again.
//
// Example usage:
//
//	mgr := task.NewManager(ctx, logger)
//	_ = mgr.StartReader("reader", 4096, readFn, onExit)
//	_ = mgr.StartBody("loop", loopFn, nil)
//	...
//	mgr.Stop()
//	mgr.Wait()
type Manager struct {
	pctx   context.Context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
	mu     sync.RWMutex // protect ctx and cancel
	taskMu sync.RWMutex // protect task creation during Wait()
}

// NewManager creates a Manager whose tasks stop when ctx is canceled.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	if l == nil {
		l = logger.GetLogger()
	}

	mgr := &Manager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context observed by the running tasks.
func (mgr *Manager) Context() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Start starts a task that calls fn until it returns false or the manager
// stops.
func (mgr *Manager) Start(name string, fn Func) error {
	mgr.logger.Debug("task: start", "name", name)

	return mgr.start(name, nil, func(ctx context.Context) {
		mgr.runLoop(ctx, name, fn)
	})
}

// StartReader starts a task that calls fn with a buffer of bufSize bytes
// until it returns false or the manager stops. onExit is called when the
// task exits.
func (mgr *Manager) StartReader(name string, bufSize int, fn ReadFunc, onExit CancelFunc) error {
	mgr.logger.Debug("task: start reader", "name", name, "buffer_size", bufSize)

	if bufSize <= 0 {
		return fmt.Errorf("task: invalid buffer size %d", bufSize)
	}

	return mgr.start(name, onExit, func(ctx context.Context) {
		buf := make([]byte, bufSize)
		mgr.runLoop(ctx, name, func() bool {
			return fn(buf)
		})
	})
}

// StartBody starts a task that runs body once. body selects on ctx itself.
// onExit is called when the task exits.
func (mgr *Manager) StartBody(name string, body BodyFunc, onExit CancelFunc) error {
	mgr.logger.Debug("task: start body", "name", name)

	return mgr.start(name, onExit, func(ctx context.Context) {
		mgr.callWithRecover(name, func() { body(ctx) })
	})
}

// Stop signals every running task to stop.
func (mgr *Manager) Stop() {
	mgr.mu.Lock()
	if mgr.cancel != nil {
		mgr.cancel()
	}
	mgr.mu.Unlock()
}

// Wait waits for every task to terminate and re-arms the manager so tasks
// can be started again.
func (mgr *Manager) Wait() {
	mgr.taskMu.Lock()
	defer mgr.taskMu.Unlock()

	mgr.wg.Wait()

	mgr.mu.Lock()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()
}

// TaskCount returns the number of running tasks.
func (mgr *Manager) TaskCount() int {
	return int(mgr.count.Load())
}

func (mgr *Manager) start(name string, onExit CancelFunc, body BodyFunc) error {
	mgr.taskMu.RLock()
	defer mgr.taskMu.RUnlock()

	ctx := mgr.Context()
	if ctx.Err() != nil {
		return ErrStopped
	}

	mgr.wg.Add(1)
	mgr.count.Add(1)

	go func() {
		defer mgr.wg.Done()
		defer func() {
			mgr.count.Add(-1)
			mgr.logger.Debug("task: terminated", "name", name, "task_count", mgr.TaskCount())
		}()
		if onExit != nil {
			defer onExit()
		}

		body(ctx)
	}()

	return nil
}

// runLoop calls fn until it returns false, ctx is done or fn panics.
func (mgr *Manager) runLoop(ctx context.Context, name string, fn Func) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("task: panic in task loop", "name", name, "panic", r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if !fn() {
				return
			}
		}
	}
}

func (mgr *Manager) callWithRecover(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("task: panic in task", "name", name, "panic", r)
		}
	}()

	fn()
}
