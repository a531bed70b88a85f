// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package queue

import (
	"context"
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/spin"

	"github.com/libjoin/libjoin/jerr"
	"github.com/libjoin/libjoin/membk"
)

// LocalMPMC is a process-private multi-producer multi-consumer bounded
// queue, the canonical ring-buffer discipline of libjoin. It implements the
// sequence-number (Vyukov) protocol ported from hayabusa-cloud-lfq's
// mpmc_seq.go: each slot carries its own sequence counter, validated with
// acquire/release ordering, so producers and consumers never contend on a
// shared counter beyond the single CAS that claims a slot.
type LocalMPMC[T any] struct {
	jerr.Slot
	_        pad
	tail     atomix.Uint64
	_        pad
	head     atomix.Uint64
	_        pad
	buffer   []mpmcSlot[T]
	mem      *membk.Local
	mask     uint64
	capacity uint64
	closed   atomix.Uint64 // set by Close: 0 = open, 1 = closed
}

type mpmcSlot[T any] struct {
	seq atomix.Uint64
	data T
	_    padShort
}

// NewLocalMPMC creates an MPMC queue of the given logical capacity, rounded
// up to a power of two. Capacity 0 creates an inert queue: every Push/Pop
// call returns ErrWouldBlock, matching the capacity-law edge case.
//
// Besides the slot array (a regular Go slice: slots carry an EventHandler
// or similar pointer-bearing payload for some instantiations, so they must
// stay on the GC-managed heap), the queue reserves a same-sized membk.Local
// mapping purely as the target for Mbind/Mlock. The reservation is a
// separate mapping: Mbind/Mlock bind and lock its pages only, and the slot
// slice itself is neither NUMA-bound nor locked. If the reservation fails,
// Mbind/Mlock report jerr.OperationFailed rather than failing queue
// construction.
func NewLocalMPMC[T any](capacity int) *LocalMPMC[T] {
	if capacity <= 0 {
		return &LocalMPMC[T]{}
	}
	n := uint64(roundToPow2(capacity))
	q := &LocalMPMC[T]{
		buffer:   make([]mpmcSlot[T], n),
		mem:      reserveLocal(n, mpmcSlot[T]{}),
		mask:     n - 1,
		capacity: n,
	}
	for i := uint64(0); i < n; i++ {
		q.buffer[i].seq.StoreRelaxed(i)
	}
	return q
}

// reserveLocal best-effort allocates a membk.Local mapping sized to match n
// elements of T's footprint, for use as an Mbind/Mlock target. Returns nil
// if the mapping cannot be obtained.
func reserveLocal[T any](n uint64, zero T) *membk.Local {
	mem, err := membk.NewLocal(int(n) * int(unsafe.Sizeof(zero)))
	if err != nil {
		return nil
	}
	return mem
}

// Push enqueues elem. Returns ErrWouldBlock if the queue is full or inert.
func (q *LocalMPMC[T]) Push(elem *T) error {
	if q.capacity == 0 {
		return ErrWouldBlock
	}
	if q.Closed() {
		return jerr.New("queue.LocalMPMC.Push", jerr.OperationFailed, nil)
	}
	sw := spin.Wait{}
	for {
		tail := q.tail.LoadAcquire()
		slot := &q.buffer[tail&q.mask]
		seq := slot.seq.LoadAcquire()
		diff := int64(seq) - int64(tail)

		if diff == 0 {
			if q.tail.CompareAndSwapAcqRel(tail, tail+1) {
				slot.data = *elem
				slot.seq.StoreRelease(tail + 1)
				return nil
			}
		} else if diff < 0 {
			return ErrWouldBlock
		}
		sw.Once()
	}
}

// Pop dequeues the oldest element. Returns (zero-value, ErrWouldBlock) if
// the queue is empty or inert.
func (q *LocalMPMC[T]) Pop() (T, error) {
	var zero T
	if q.capacity == 0 {
		return zero, ErrWouldBlock
	}
	if q.Closed() {
		return zero, jerr.New("queue.LocalMPMC.Pop", jerr.OperationFailed, nil)
	}
	sw := spin.Wait{}
	for {
		head := q.head.LoadAcquire()
		slot := &q.buffer[head&q.mask]
		seq := slot.seq.LoadAcquire()
		diff := int64(seq) - int64(head+1)

		if diff == 0 {
			if q.head.CompareAndSwapAcqRel(head, head+1) {
				elem := slot.data
				slot.data = zero
				slot.seq.StoreRelease(head + q.capacity)
				return elem, nil
			}
		} else if diff < 0 {
			return zero, ErrWouldBlock
		}
		sw.Once()
	}
}

// PushWait blocks, spinning with adaptive backoff, until Push succeeds or
// ctx is done.
func (q *LocalMPMC[T]) PushWait(ctx context.Context, elem *T) error {
	backoff := iox.Backoff{}
	for {
		if err := q.Push(elem); err == nil {
			return nil
		} else if !IsWouldBlock(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		backoff.Wait()
	}
}

// PopWait blocks, spinning with adaptive backoff, until Pop succeeds or ctx
// is done.
func (q *LocalMPMC[T]) PopWait(ctx context.Context) (T, error) {
	backoff := iox.Backoff{}
	for {
		elem, err := q.Pop()
		if err == nil {
			return elem, nil
		} else if !IsWouldBlock(err) {
			var zero T
			return zero, err
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		default:
		}
		backoff.Wait()
	}
}

// Cap returns the queue's effective (power-of-two) capacity.
func (q *LocalMPMC[T]) Cap() int { return int(q.capacity) }

// Pending reports the number of elements currently queued. It is
// best-effort: in a concurrently mutated queue the value may be stale by
// the time the caller observes it.
func (q *LocalMPMC[T]) Pending() int {
	if q.Closed() {
		return 0
	}
	tail := q.tail.LoadAcquire()
	head := q.head.LoadAcquire()
	if tail <= head {
		return 0
	}
	return int(tail - head)
}

// Available returns Cap() - Pending().
func (q *LocalMPMC[T]) Available() int {
	return q.Cap() - q.Pending()
}

// Empty reports whether the queue currently holds no elements.
func (q *LocalMPMC[T]) Empty() bool { return q.Pending() == 0 }

// Full reports whether the queue is currently at capacity.
func (q *LocalMPMC[T]) Full() bool { return q.capacity > 0 && q.Pending() >= int(q.capacity) }

// Close marks the queue inert: every subsequent Push/Pop returns
// jerr.OperationFailed and Pending/Empty/Full report as if the queue were
// freshly drained. Outstanding Push/Pop callers already spinning are not
// woken. The reserved mapping, if any, is released.
func (q *LocalMPMC[T]) Close() error {
	q.closed.StoreRelease(1)
	if q.mem != nil {
		return q.mem.Close()
	}
	return nil
}

// Closed reports whether Close has been called.
func (q *LocalMPMC[T]) Closed() bool { return q.closed.LoadAcquire() != 0 }

// Mbind binds the queue's reserved memory to the given NUMA node. Returns
// jerr.OperationFailed if the queue has no reservation (an inert,
// zero-capacity queue, or the mmap reservation failed at construction).
func (q *LocalMPMC[T]) Mbind(numa int) error {
	if q.mem == nil {
		return jerr.New("queue.LocalMPMC.Mbind", jerr.OperationFailed, nil)
	}
	return q.mem.Mbind(numa)
}

// Mlock locks the queue's reserved memory into physical memory. Returns
// jerr.OperationFailed under the same conditions as Mbind.
func (q *LocalMPMC[T]) Mlock() error {
	if q.mem == nil {
		return jerr.New("queue.LocalMPMC.Mlock", jerr.OperationFailed, nil)
	}
	return q.mem.Mlock()
}
