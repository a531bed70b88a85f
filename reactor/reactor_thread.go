// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package reactor

import (
	"context"
	"sync"

	"github.com/libjoin/libjoin/jerr"
	"github.com/libjoin/libjoin/thread"
)

// defaultCmdQueueCapacity is the default Reactor command queue size,
// spec.md §4.3's "Resources owned" floor.
const defaultCmdQueueCapacity = 1024

// ReactorThread is the process-wide default Reactor, running on its own
// dedicated OS thread. Most programs need exactly one Reactor; this
// singleton is the idiomatic entry point for them, directly ported from
// reactor.hpp's ReactorThread.
type ReactorThread struct {
	jerr.Slot
	r  *Reactor
	th *thread.Thread
}

var (
	instanceOnce sync.Once
	instance     *ReactorThread
	instanceErr  error
)

// Instance returns the process-wide ReactorThread, starting it on first
// call.
func Instance() (*ReactorThread, error) {
	instanceOnce.Do(func() {
		instance, instanceErr = start()
	})
	return instance, instanceErr
}

func start() (*ReactorThread, error) {
	r, err := New(defaultCmdQueueCapacity)
	if err != nil {
		return nil, err
	}
	rt := &ReactorThread{r: r}
	rt.th = thread.New(func(ctx context.Context) {
		r.Run(ctx)
	})
	return rt, nil
}

// Reactor returns the underlying Reactor, for AddHandler/DelHandler.
func (rt *ReactorThread) Reactor() *Reactor { return rt.r }

// Affinity pins the dispatcher thread to the given CPU core (-1 unbinds).
func (rt *ReactorThread) Affinity(core int) error { return rt.th.Affinity(core) }

// Priority sets the dispatcher thread's scheduling priority.
func (rt *ReactorThread) Priority(prio int) error { return rt.th.Priority(prio) }

// Mbind binds the underlying Reactor's command queue memory to the given
// NUMA node.
func (rt *ReactorThread) Mbind(numa int) error { return rt.r.Mbind(numa) }

// Mlock locks the underlying Reactor's command queue memory into physical
// memory.
func (rt *ReactorThread) Mlock() error { return rt.r.Mlock() }

// Stop requests the dispatcher to exit and joins its thread.
func (rt *ReactorThread) Stop() error {
	if err := rt.r.Stop(); err != nil {
		return err
	}
	rt.th.Join()
	return rt.r.Close()
}
