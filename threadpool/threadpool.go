// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package threadpool implements a fixed-size worker pool and a
// parallelForEach helper built on package thread, matching
// join::ThreadPool / join::distribute / join::parallelForEach.
package threadpool

import (
	"context"
	"sync"

	"github.com/libjoin/libjoin/cputopo"
	"github.com/libjoin/libjoin/thread"
)

// Pool is a FIFO job queue drained by a fixed number of worker threads.
type Pool struct {
	mu      sync.Mutex
	cond    sync.Cond
	jobs    []func()
	stop    bool
	workers []*thread.Thread
}

// New creates a pool with the given number of workers. workers <= 0
// defaults to the number of physical cores reported by cputopo.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = len(cputopo.Instance().Cores())
	}
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{}
	p.cond.L = &p.mu
	p.workers = make([]*thread.Thread, workers)
	for i := range p.workers {
		p.workers[i] = thread.New(func(ctx context.Context) { p.work() })
	}
	return p
}

// Push enqueues fn and wakes one idle worker.
func (p *Pool) Push(fn func()) {
	p.mu.Lock()
	p.jobs = append(p.jobs, fn)
	p.mu.Unlock()
	p.cond.Signal()
}

// Size returns the number of worker threads.
func (p *Pool) Size() int { return len(p.workers) }

func (p *Pool) work() {
	for {
		p.mu.Lock()
		for len(p.jobs) == 0 && !p.stop {
			p.cond.Wait()
		}
		if len(p.jobs) == 0 && p.stop {
			p.mu.Unlock()
			return
		}
		job := p.jobs[0]
		p.jobs = p.jobs[1:]
		p.mu.Unlock()

		job()
	}
}

// Close sets the stop flag, wakes every worker, and joins them all. Workers
// keep taking jobs until the queue is empty, so every job pushed before
// Close runs before Close returns. Push does not check the stop flag: a job
// pushed after Close is queued but never run.
func (p *Pool) Close() {
	p.mu.Lock()
	p.stop = true
	p.mu.Unlock()
	p.cond.Broadcast()
	for _, w := range p.workers {
		w.Join()
	}
}

// Distribute statically partitions [0, count) across min(cores, count)
// threads, each executing fn over its [begin, end) slice; the calling
// goroutine participates as one of the workers, mirroring
// join::distribute.
func Distribute(count int, fn func(begin, end int)) {
	if count <= 0 {
		return
	}
	concurrency := len(cputopo.Instance().Cores())
	if concurrency > count {
		concurrency = count
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	elements := count / concurrency
	rest := count % concurrency

	tasks := make([]int, concurrency)
	for i := range tasks {
		tasks[i] = elements
		if i < rest {
			tasks[i]++
		}
	}

	nth := concurrency - 1
	threads := make([]*thread.Thread, 0, nth)
	begin := 0
	for i := 0; i < nth; i++ {
		b, e := begin, begin+tasks[i]
		threads = append(threads, thread.New(func(ctx context.Context) { fn(b, e) }))
		begin = e
	}

	fn(begin, count)

	for _, th := range threads {
		th.Join()
	}
}

// ParallelForEach calls fn(i) for every i in [0, count), parallelized via
// Distribute.
func ParallelForEach(count int, fn func(i int)) {
	Distribute(count, func(begin, end int) {
		for i := begin; i < end; i++ {
			fn(i)
		}
	})
}
