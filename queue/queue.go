// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package queue implements the lock-free bounded ring-buffer queues at the
// core of libjoin: SPSC/MPSC/MPMC discipline variants, each available in a
// process-private Local backing and a cross-process Shared backing. The
// algorithms are the sequence-number (Vyukov) protocol from the original
// join ring buffer headers, ported from hayabusa-cloud-lfq's *_seq.go family
// (mpmc_seq.go, mpsc_seq.go, spmc_seq.go, spsc.go).
package queue

import (
	"unsafe"

	"code.hybscloud.com/iox"
)

// ErrWouldBlock indicates Push/Pop cannot proceed immediately: the queue is
// full or empty. It is a control-flow signal, not a failure.
var ErrWouldBlock = iox.ErrWouldBlock

// IsWouldBlock reports whether err indicates a non-blocking call would have
// blocked.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}

// Queue is the combined producer/consumer, capacity-introspecting interface
// every ring buffer discipline implements.
type Queue[T any] interface {
	Producer[T]
	Consumer[T]
	Cap() int
	Close() error
}

// Producer pushes elements into a queue (non-blocking).
type Producer[T any] interface {
	// Push enqueues elem, copying it into the queue's internal slot.
	// Returns ErrWouldBlock if the queue is full.
	Push(elem *T) error
}

// Consumer pops elements from a queue (non-blocking).
type Consumer[T any] interface {
	// Pop dequeues and returns an element.
	// Returns (zero-value, ErrWouldBlock) if the queue is empty.
	Pop() (T, error)
}

// Drainer signals that no more pushes will occur, letting consumers drain
// the remaining backlog without producer-side threshold checks. SPSC queues
// never need this: their head/tail protocol already has no threshold.
type Drainer interface {
	Drain()
}

// pad is cache-line padding to prevent false sharing between hot fields.
type pad [64]byte

// padShort pads a slot's sequence field out to a cache line before the
// payload, matching the teacher's per-slot padding discipline (a
// best-effort pad sized for the 8-byte sequence counter; it does not scale
// with sizeof(T), same as the teacher's own fixed-size padShort).
type padShort = [64 - 8]byte

// roundToPow2 rounds n up to the next power of two, for n >= 1. Capacity 0
// is handled separately by each constructor as the inert queue (every
// Push/Pop returns ErrWouldBlock immediately, no backing slots allocated),
// unlike the teacher which panics below capacity 2.
func roundToPow2(n int) int {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// ptrSize is the size of a pointer in bytes. No code in the package refers
// to it; the Shared family addresses slots through membk.Shared.
const ptrSize = int(unsafe.Sizeof(uintptr(0)))
