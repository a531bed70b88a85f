// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package queue

import (
	"context"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/spin"

	"github.com/libjoin/libjoin/jerr"
	"github.com/libjoin/libjoin/membk"
)

// LocalMPSC is a process-private multi-producer single-consumer bounded
// queue. Producers CAS a shared tail to claim a slot; the single consumer
// reads head sequentially without any CAS. Ported from
// hayabusa-cloud-lfq's mpsc_seq.go.
type LocalMPSC[T any] struct {
	jerr.Slot
	_        pad
	head     atomix.Uint64
	_        pad
	tail     atomix.Uint64
	_        pad
	buffer   []mpmcSlot[T]
	mem      *membk.Local
	mask     uint64
	capacity uint64
	closed   atomix.Uint64
}

// NewLocalMPSC creates an MPSC queue. Capacity 0 is inert.
//
// Like LocalMPMC, the queue reserves a same-sized membk.Local mapping
// purely as an Mbind/Mlock target, independent of the (GC-managed) slot
// slice; this is how Reactor's command queue exposes Mbind/Mlock.
func NewLocalMPSC[T any](capacity int) *LocalMPSC[T] {
	if capacity <= 0 {
		return &LocalMPSC[T]{}
	}
	n := uint64(roundToPow2(capacity))
	q := &LocalMPSC[T]{
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

// Push enqueues elem (any number of concurrent producers safe).
func (q *LocalMPSC[T]) Push(elem *T) error {
	if q.capacity == 0 {
		return ErrWouldBlock
	}
	if q.Closed() {
		return jerr.New("queue.LocalMPSC.Push", jerr.OperationFailed, nil)
	}
	sw := spin.Wait{}
	for {
		tail := q.tail.LoadAcquire()
		head := q.head.LoadAcquire()
		if tail >= head+q.capacity {
			return ErrWouldBlock
		}

		slot := &q.buffer[tail&q.mask]
		seq := slot.seq.LoadAcquire()
		if seq == tail {
			if q.tail.CompareAndSwapAcqRel(tail, tail+1) {
				slot.data = *elem
				slot.seq.StoreRelease(tail + 1)
				return nil
			}
		} else if seq < tail {
			return ErrWouldBlock
		}
		sw.Once()
	}
}

// Pop dequeues the oldest element (single consumer only).
func (q *LocalMPSC[T]) Pop() (T, error) {
	var zero T
	if q.capacity == 0 {
		return zero, ErrWouldBlock
	}
	if q.Closed() {
		return zero, jerr.New("queue.LocalMPSC.Pop", jerr.OperationFailed, nil)
	}
	head := q.head.LoadRelaxed()
	slot := &q.buffer[head&q.mask]
	seq := slot.seq.LoadAcquire()
	if seq != head+1 {
		return zero, ErrWouldBlock
	}
	elem := slot.data
	slot.data = zero
	slot.seq.StoreRelease(head + q.capacity)
	q.head.StoreRelease(head + 1)
	return elem, nil
}

// PushWait blocks with adaptive backoff until Push succeeds or ctx is done.
func (q *LocalMPSC[T]) PushWait(ctx context.Context, elem *T) error {
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

// PopWait blocks with adaptive backoff until Pop succeeds or ctx is done.
func (q *LocalMPSC[T]) PopWait(ctx context.Context) (T, error) {
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

// Cap returns the queue's effective capacity.
func (q *LocalMPSC[T]) Cap() int { return int(q.capacity) }

// Pending reports the number of elements currently queued (best-effort).
func (q *LocalMPSC[T]) Pending() int {
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
func (q *LocalMPSC[T]) Available() int { return q.Cap() - q.Pending() }

// Empty reports whether the queue currently holds no elements.
func (q *LocalMPSC[T]) Empty() bool { return q.Pending() == 0 }

// Full reports whether the queue is currently at capacity.
func (q *LocalMPSC[T]) Full() bool { return q.capacity > 0 && q.Pending() >= int(q.capacity) }

// Drain lets Pop skip producer-pressure bookkeeping; for LocalMPSC this is
// a no-op hint since the consumer-side protocol already has no threshold
// beyond the per-slot sequence check.
func (q *LocalMPSC[T]) Drain() {}

// Close marks the queue inert for lifecycle tracking. The reserved
// mapping, if any, is released.
func (q *LocalMPSC[T]) Close() error {
	q.closed.StoreRelease(1)
	if q.mem != nil {
		return q.mem.Close()
	}
	return nil
}

// Closed reports whether Close has been called.
func (q *LocalMPSC[T]) Closed() bool { return q.closed.LoadAcquire() != 0 }

// Mbind binds the queue's reserved memory to the given NUMA node. Returns
// jerr.OperationFailed if the queue has no reservation (an inert,
// zero-capacity queue, or the mmap reservation failed at construction).
func (q *LocalMPSC[T]) Mbind(numa int) error {
	if q.mem == nil {
		return jerr.New("queue.LocalMPSC.Mbind", jerr.OperationFailed, nil)
	}
	return q.mem.Mbind(numa)
}

// Mlock locks the queue's reserved memory into physical memory. Returns
// jerr.OperationFailed under the same conditions as Mbind.
func (q *LocalMPSC[T]) Mlock() error {
	if q.mem == nil {
		return jerr.New("queue.LocalMPSC.Mlock", jerr.OperationFailed, nil)
	}
	return q.mem.Mlock()
}
