// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package thread owns a single OS thread of execution started from a
// callable, with settable core affinity and real-time priority. It is the
// Go rendering of join::Thread / join::Invoker.
//
// Go has no pthread_t handle: the nearest safe equivalent is a goroutine
// that calls runtime.LockOSThread for its entire lifetime and never
// unlocks before returning, so the OS thread backing it exits together
// with the goroutine (matching pthread_join semantics). Handle() then
// reports that OS thread's tid.
package thread

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/libjoin/libjoin/jerr"
)

// Func is the callable a Thread runs. It receives a context that is
// cancelled when Cancel is called; well-behaved callables should observe
// ctx.Done() and return promptly. Go offers no forced-termination
// primitive for a running goroutine, so Cancel is cooperative — see
// Thread.Cancel.
type Func func(ctx context.Context)

// Thread owns an OS thread of execution.
type Thread struct {
	jerr.Slot

	mu       sync.Mutex
	core     int // cached affinity; -1 means unpinned
	priority int // cached priority; 0 means SCHED_OTHER

	tid     atomic.Int32 // 0 until the thread has started
	running atomic.Bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// New starts a new OS thread running fn. The thread begins unpinned at
// normal priority; call Affinity/Priority afterward to bind it.
func New(fn Func) *Thread {
	t := &Thread{
		core: -1,
		done: make(chan struct{}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.running.Store(true)

	started := make(chan struct{})
	go t.routine(ctx, fn, started)
	<-started // wait until the OS thread is locked and its tid known
	return t
}

func (t *Thread) routine(ctx context.Context, fn Func, started chan struct{}) {
	runtime.LockOSThread()
	defer close(t.done)
	defer t.running.Store(false)

	t.tid.Store(int32(unix.Gettid()))
	close(started)

	fn(ctx)
}

// Affinity pins the thread to core. core == -1 unbinds and remembers
// "unpinned" for future Priority/Affinity rebinds; core == -2 unbinds
// without altering the cached value. Returns jerr.InvalidParam for any
// other out-of-range core.
func (t *Thread) Affinity(core int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tid := int(t.tid.Load())
	if core == -2 {
		return applyAffinity(tid, -1)
	}
	if core < -1 {
		return jerr.New("thread.Affinity", jerr.InvalidParam, nil)
	}
	if core >= 0 {
		n := runtime.NumCPU()
		if core >= n {
			return jerr.New("thread.Affinity", jerr.InvalidParam, nil)
		}
	}
	if err := applyAffinity(tid, core); err != nil {
		return err
	}
	t.core = core
	return nil
}

// AffinityValue reports the cached affinity (-1 if unpinned).
func (t *Thread) AffinityValue() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.core
}

func applyAffinity(tid int, core int) error {
	if tid == 0 {
		return nil // thread not started yet; nothing to apply
	}
	var set unix.CPUSet
	if core < 0 {
		for i := 0; i < runtime.NumCPU(); i++ {
			set.Set(i)
		}
	} else {
		set.Set(core)
	}
	if err := unix.SchedSetaffinity(tid, &set); err != nil {
		return jerr.New("thread.Affinity", jerr.InvalidParam, err)
	}
	return nil
}

// Priority sets the scheduling priority: 0 selects SCHED_OTHER (default
// time-sharing class), 1..99 selects SCHED_FIFO with that priority.
// Out-of-range values return jerr.InvalidParam. Real-time scheduling
// denied by the OS (missing CAP_SYS_NICE) returns jerr.PermissionDenied.
func (t *Thread) Priority(prio int) error {
	if prio < 0 || prio > 99 {
		return jerr.New("thread.Priority", jerr.InvalidParam, nil)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	tid := int(t.tid.Load())
	if tid != 0 {
		policy := unix.SCHED_OTHER
		param := &unix.SchedParam{}
		if prio > 0 {
			policy = unix.SCHED_FIFO
			param.Priority = int32(prio)
		}
		if err := unix.SchedSetscheduler(tid, policy, param); err != nil {
			if err == unix.EPERM {
				return jerr.New("thread.Priority", jerr.PermissionDenied, err)
			}
			return jerr.New("thread.Priority", jerr.InvalidParam, err)
		}
	}
	t.priority = prio
	return nil
}

// PriorityValue reports the cached priority.
func (t *Thread) PriorityValue() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.priority
}

// Joinable reports whether the thread has been started and not yet
// joined or cancelled.
func (t *Thread) Joinable() bool {
	select {
	case <-t.done:
		return false
	default:
		return t.cancel != nil
	}
}

// Running reports whether the callable is currently executing.
func (t *Thread) Running() bool {
	return t.running.Load()
}

// Join blocks until the thread's callable returns.
func (t *Thread) Join() {
	<-t.done
}

// TryJoin performs a non-blocking join attempt.
// Returns true if the thread had already finished.
func (t *Thread) TryJoin() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Cancel requests cooperative cancellation by cancelling the context
// passed to the callable, then detaches this Thread: resources held by
// the callable are not guaranteed to be released, matching spec.md's
// asynchronous-cancellation contract. After Cancel returns, the Thread
// is in a default, non-joinable state, and Handle reports the 0 sentinel.
func (t *Thread) Cancel() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	t.tid.Store(0)
}

// Handle returns the native OS thread id, or 0 if the thread has not
// started or has been cancelled/detached.
func (t *Thread) Handle() int {
	return int(t.tid.Load())
}

// Mlock locks b into physical memory for the lifetime of the calling
// process, forwarding to the OS. No package in this module calls it;
// reactor.Reactor.Mlock goes through its command queue instead.
func Mlock(b []byte) error {
	if err := unix.Mlock(b); err != nil {
		if err == unix.EPERM {
			return jerr.New("thread.Mlock", jerr.PermissionDenied, err)
		}
		return jerr.New("thread.Mlock", jerr.OutOfMemory, err)
	}
	return nil
}
