// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package queue

import (
	"context"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"

	"github.com/libjoin/libjoin/jerr"
	"github.com/libjoin/libjoin/membk"
)

// LocalSPSC is a process-private single-producer single-consumer bounded
// queue: a Lamport ring buffer with cached index optimization, ported from
// hayabusa-cloud-lfq's spsc.go. The producer caches the consumer's read
// index and vice versa, so the hot path only crosses cores when the cache
// proves stale.
type LocalSPSC[T any] struct {
	jerr.Slot
	_          pad
	head       atomix.Uint64
	_          pad
	cachedTail uint64
	_          pad
	tail       atomix.Uint64
	_          pad
	cachedHead uint64
	_          pad
	buffer     []T
	mem        *membk.Local
	mask       uint64
	closed     atomix.Uint64
}

// NewLocalSPSC creates an SPSC queue. Capacity 0 is inert.
//
// Like LocalMPMC, the ring (a regular Go slice, since T may carry pointers)
// is paired with a same-sized membk.Local reservation used purely as an
// Mbind/Mlock target. If the reservation fails, Mbind/Mlock report
// jerr.OperationFailed rather than failing construction.
func NewLocalSPSC[T any](capacity int) *LocalSPSC[T] {
	if capacity <= 0 {
		return &LocalSPSC[T]{}
	}
	n := uint64(roundToPow2(capacity))
	var zero T
	return &LocalSPSC[T]{
		buffer: make([]T, n),
		mem:    reserveLocal(n, zero),
		mask:   n - 1,
	}
}

// Push enqueues elem (producer goroutine only).
func (q *LocalSPSC[T]) Push(elem *T) error {
	if len(q.buffer) == 0 {
		return ErrWouldBlock
	}
	if q.Closed() {
		return jerr.New("queue.LocalSPSC.Push", jerr.OperationFailed, nil)
	}
	tail := q.tail.LoadRelaxed()
	if tail-q.cachedHead > q.mask {
		q.cachedHead = q.head.LoadAcquire()
		if tail-q.cachedHead > q.mask {
			return ErrWouldBlock
		}
	}
	q.buffer[tail&q.mask] = *elem
	q.tail.StoreRelease(tail + 1)
	return nil
}

// Pop dequeues the oldest element (consumer goroutine only).
func (q *LocalSPSC[T]) Pop() (T, error) {
	var zero T
	if len(q.buffer) == 0 {
		return zero, ErrWouldBlock
	}
	if q.Closed() {
		return zero, jerr.New("queue.LocalSPSC.Pop", jerr.OperationFailed, nil)
	}
	head := q.head.LoadRelaxed()
	if head >= q.cachedTail {
		q.cachedTail = q.tail.LoadAcquire()
		if head >= q.cachedTail {
			return zero, ErrWouldBlock
		}
	}
	elem := q.buffer[head&q.mask]
	q.buffer[head&q.mask] = zero
	q.head.StoreRelease(head + 1)
	return elem, nil
}

// PushWait blocks with adaptive backoff until Push succeeds or ctx is done.
func (q *LocalSPSC[T]) PushWait(ctx context.Context, elem *T) error {
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
func (q *LocalSPSC[T]) PopWait(ctx context.Context) (T, error) {
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
func (q *LocalSPSC[T]) Cap() int { return len(q.buffer) }

// Pending reports the number of elements currently queued (best-effort).
func (q *LocalSPSC[T]) Pending() int {
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
func (q *LocalSPSC[T]) Available() int { return q.Cap() - q.Pending() }

// Empty reports whether the queue currently holds no elements.
func (q *LocalSPSC[T]) Empty() bool { return q.Pending() == 0 }

// Full reports whether the queue is currently at capacity.
func (q *LocalSPSC[T]) Full() bool { return len(q.buffer) > 0 && q.Pending() >= len(q.buffer) }

// Close marks the queue inert for lifecycle tracking. SPSC never
// implements Drainer: its head/tail protocol has no producer-pressure
// threshold for Drain to lift. The backing mapping, if any, is released.
func (q *LocalSPSC[T]) Close() error {
	q.closed.StoreRelease(1)
	if q.mem != nil {
		return q.mem.Close()
	}
	return nil
}

// Closed reports whether Close has been called.
func (q *LocalSPSC[T]) Closed() bool { return q.closed.LoadAcquire() != 0 }

// Mbind binds the queue's reserved memory to the given NUMA node. Returns
// jerr.OperationFailed if the queue has no reservation (an inert,
// zero-capacity queue, or the mmap reservation failed at construction).
func (q *LocalSPSC[T]) Mbind(numa int) error {
	if q.mem == nil {
		return jerr.New("queue.LocalSPSC.Mbind", jerr.OperationFailed, nil)
	}
	return q.mem.Mbind(numa)
}

// Mlock locks the queue's reserved memory into physical memory. Returns
// jerr.OperationFailed under the same conditions as Mbind.
func (q *LocalSPSC[T]) Mlock() error {
	if q.mem == nil {
		return jerr.New("queue.LocalSPSC.Mlock", jerr.OperationFailed, nil)
	}
	return q.mem.Mlock()
}
