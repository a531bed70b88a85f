// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

// Package reactor implements a single-threaded cooperative event dispatcher:
// one epoll instance, a dedicated dispatcher goroutine pinned to its own OS
// thread, and a lock-free MPSC command queue through which every other
// goroutine submits Add/Del requests — registration itself is never
// concurrent, only its submission is. Ported from
// original_source/core/include/join/reactor.hpp, cross-checked against
// spec.md §4.3's eventLoop/processCommand/dispatchEvent pseudocode.
package reactor

import (
	"context"
	"sync"

	"code.hybscloud.com/atomix"
	"golang.org/x/sys/unix"

	"github.com/libjoin/libjoin/jerr"
	"github.com/libjoin/libjoin/queue"
)

// EventHandler is a non-owning reference the Reactor dispatches events to.
// The Reactor never stores a raw pointer into handler memory it doesn't
// own; instead every registration is keyed by Handle(), a stable integer
// identity (typically a file descriptor), per spec.md §9 "Raw pointers to
// handlers".
type EventHandler interface {
	// Handle returns the file descriptor this handler watches.
	Handle() int
	// OnReceive is called when the fd is readable.
	OnReceive()
	// OnClose is called when the peer hung up (EPOLLHUP/EPOLLRDHUP).
	OnClose()
	// OnError is called on EPOLLERR.
	OnError()
}

type commandType uint8

const (
	cmdAdd commandType = iota
	cmdDel
	cmdStop
)

// command is the unit of work carried over the reactor's MPSC submission
// queue, padded to 64 bytes in size (Go gives it no 64-byte alignment).
// done lets the submitting
// goroutine block until the dispatcher has actually processed the request
// (the "synchronous submit contract") without the dispatcher needing to
// know anything about its caller.
type command struct {
	typ     commandType
	events  uint32
	handler EventHandler
	done    chan error
	_       [32]byte // pad toward a cache line
}

// Reactor is a single-threaded epoll-based dispatcher. All registration
// mutates reactor-owned state only on the dispatcher goroutine; callers
// from any other goroutine submit through AddHandler/DelHandler, which
// enqueue a command and block for its result.
type Reactor struct {
	jerr.Slot

	epfd    int
	wakeFd  int
	cmdq    *queue.LocalMPSC[command]
	running atomix.Bool

	mu       sync.Mutex
	handlers map[int]EventHandler

	// deleted holds fds removed from epoll/handlers earlier in the current
	// pass, so dispatchEvent can skip a stale event for the same fd
	// surfacing elsewhere in the same epoll_wait batch.
	deleted []int
}

// New creates a Reactor with a command queue of the given capacity
// (spec.md §4.3 "Resources owned" requires capacity >= 1024 for the
// default instance; callers needing the default should pass 1024).
func New(cmdQueueCapacity int) (*Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, jerr.New("reactor.New", jerr.OperationFailed, err)
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, jerr.New("reactor.New", jerr.OperationFailed, err)
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFd),
	}); err != nil {
		unix.Close(wakeFd)
		unix.Close(epfd)
		return nil, jerr.New("reactor.New", jerr.OperationFailed, err)
	}

	r := &Reactor{
		epfd:     epfd,
		wakeFd:   wakeFd,
		cmdq:     queue.NewLocalMPSC[command](cmdQueueCapacity),
		handlers: make(map[int]EventHandler),
		deleted:  make([]int, 0, 64),
	}
	return r, nil
}

// wake performs the reactor's single 8-byte counted-eventfd write, per
// spec.md §6 "Reactor wake channel".
func (r *Reactor) wake() error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(r.wakeFd, buf[:])
	if err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}

func (r *Reactor) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(r.wakeFd, buf[:])
		if err != nil {
			return
		}
	}
}

// submit enqueues cmd and blocks until the dispatcher processes it,
// implementing the synchronous submit contract: AddHandler/DelHandler
// return only after the registration has actually taken effect.
func (r *Reactor) submit(c command) error {
	c.done = make(chan error, 1)
	if err := r.cmdq.PushWait(context.Background(), &c); err != nil {
		return jerr.New("reactor.submit", jerr.OperationFailed, err)
	}
	if err := r.wake(); err != nil {
		return jerr.New("reactor.submit", jerr.OperationFailed, err)
	}
	return <-c.done
}

// AddHandler registers h for the given epoll event mask (unix.EPOLLIN,
// etc). Blocks until the dispatcher thread has applied the registration.
func (r *Reactor) AddHandler(h EventHandler, events uint32) error {
	return r.submit(command{typ: cmdAdd, handler: h, events: events})
}

// DelHandler deregisters h. The handler is removed from epoll and the
// handler map before this call returns, so no event for h can be
// dispatched after DelHandler returns.
func (r *Reactor) DelHandler(h EventHandler) error {
	return r.submit(command{typ: cmdDel, handler: h})
}

// Stop requests the dispatch loop to exit after processing pending
// commands and the current epoll_wait batch.
func (r *Reactor) Stop() error {
	return r.submit(command{typ: cmdStop})
}

// Run is the single dispatcher loop: drain commands, epoll_wait, dispatch,
// clear the per-pass deletion guard, repeat. It blocks until Stop is called or ctx
// is done, and must run on exactly one goroutine — the reactor's exclusion
// invariant depends on it.
func (r *Reactor) Run(ctx context.Context) error {
	r.running.Store(true)
	defer r.running.Store(false)

	events := make([]unix.EpollEvent, 64)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		stop := r.processCommands()
		if stop {
			return nil
		}

		n, err := unix.EpollWait(r.epfd, events, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return jerr.New("reactor.Run", jerr.OperationFailed, err)
		}

		for i := 0; i < n; i++ {
			r.dispatchEvent(&events[i])
		}
		r.applyDeletions()
	}
}

func (r *Reactor) processCommands() (stop bool) {
	for {
		c, err := r.cmdq.Pop()
		if err != nil {
			return false
		}
		switch c.typ {
		case cmdAdd:
			err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, c.handler.Handle(), &unix.EpollEvent{
				Events: c.events,
				Fd:     int32(c.handler.Handle()),
			})
			if err == nil {
				r.mu.Lock()
				r.handlers[c.handler.Handle()] = c.handler
				r.mu.Unlock()
			}
			c.done <- err
		case cmdDel:
			fd := c.handler.Handle()
			err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
			r.mu.Lock()
			delete(r.handlers, fd)
			r.mu.Unlock()
			r.deleted = append(r.deleted, fd)
			c.done <- err
		case cmdStop:
			c.done <- nil
			r.drainRemaining()
			return true
		}
	}
}

func (r *Reactor) drainRemaining() {
	for {
		c, err := r.cmdq.Pop()
		if err != nil {
			return
		}
		if c.done != nil {
			c.done <- jerr.New("reactor.Stop", jerr.OperationFailed, nil)
		}
	}
}

func (r *Reactor) dispatchEvent(ev *unix.EpollEvent) {
	fd := int(ev.Fd)
	if fd == r.wakeFd {
		r.drainWake()
		return
	}

	for _, d := range r.deleted {
		if d == fd {
			// Already removed from epoll and the handler map this pass;
			// guards against a stale event for the same fd surfacing
			// earlier in the same epoll_wait batch than its cmdDel.
			return
		}
	}

	r.mu.Lock()
	h, ok := r.handlers[fd]
	r.mu.Unlock()
	if !ok {
		return
	}

	switch {
	case ev.Events&unix.EPOLLERR != 0:
		h.OnError()
	case ev.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0:
		h.OnClose()
	case ev.Events&(unix.EPOLLIN|unix.EPOLLPRI) != 0:
		h.OnReceive()
	}
}

// applyDeletions clears the per-pass deletion guard. The actual
// EPOLL_CTL_DEL and handler-map removal already happened synchronously in
// processCommands' cmdDel case, before DelHandler returned to its caller;
// this only resets the stale-event guard for the next pass.
func (r *Reactor) applyDeletions() {
	r.deleted = r.deleted[:0]
}

// Running reports whether the dispatch loop is currently executing.
func (r *Reactor) Running() bool { return r.running.Load() }

// Mbind binds the command queue's reserved memory to the given NUMA node,
// per spec.md §4.3. Forwards to the queue.LocalMPSC handle backing cmdq.
func (r *Reactor) Mbind(numa int) error { return r.cmdq.Mbind(numa) }

// Mlock locks the command queue's reserved memory into physical memory,
// per spec.md §4.3. Forwards to the queue.LocalMPSC handle backing cmdq.
func (r *Reactor) Mlock() error { return r.cmdq.Mlock() }

// Close releases the epoll and eventfd descriptors. Run must have
// returned before calling Close.
func (r *Reactor) Close() error {
	errWake := unix.Close(r.wakeFd)
	errEp := unix.Close(r.epfd)
	if errWake != nil {
		return jerr.New("reactor.Close", jerr.OperationFailed, errWake)
	}
	if errEp != nil {
		return jerr.New("reactor.Close", jerr.OperationFailed, errEp)
	}
	return nil
}

