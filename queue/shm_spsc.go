// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package queue

import (
	"context"
	"sync/atomic"

	"code.hybscloud.com/iox"

	"github.com/libjoin/libjoin/jerr"
	"github.com/libjoin/libjoin/membk"
)

// ShmSPSC is a cross-process single-producer single-consumer bounded queue
// over a /dev/shm segment, the byte-oriented counterpart of LocalSPSC. Each
// side caches its peer's cursor locally to the same effect as LocalSPSC's
// cachedHead/cachedTail, just refreshed from shared rather than
// process-local memory.
type ShmSPSC struct {
	jerr.Slot
	seg    *membk.Shared
	name   string
	closed atomic.Bool

	cachedHead uint64
	cachedTail uint64
}

// OpenShmSPSC creates or attaches the named segment. Slot sequence numbers
// are unused by the SPSC protocol (ordering comes from head/tail alone) but
// are still initialized for geometry-check symmetry with the MPMC/MPSC
// family.
func OpenShmSPSC(name string, capacity int, elemSize int) (*ShmSPSC, error) {
	if capacity <= 0 || elemSize <= 0 {
		return nil, jerr.New("queue.OpenShmSPSC", jerr.InvalidParam, nil)
	}
	n := uint64(roundToPow2(capacity))
	seg, err := membk.OpenShared(name, n, uint64(elemSize), func(i uint64) uint64 { return 0 })
	if err != nil {
		return nil, err
	}
	return &ShmSPSC{seg: seg, name: name}, nil
}

// Push enqueues elem (producer process only).
func (q *ShmSPSC) Push(elem []byte) error {
	if q.closed.Load() {
		return jerr.New("queue.ShmSPSC.Push", jerr.OperationFailed, nil)
	}
	if len(elem) != int(q.seg.ElementSize()) {
		return jerr.New("queue.ShmSPSC.Push", jerr.InvalidParam, nil)
	}
	cap64 := q.seg.Capacity()
	tailAddr, headAddr := q.seg.TailAddr(), q.seg.HeadAddr()
	tail := atomic.LoadUint64(tailAddr)
	if tail-q.cachedHead >= cap64 {
		q.cachedHead = atomic.LoadUint64(headAddr)
		if tail-q.cachedHead >= cap64 {
			return ErrWouldBlock
		}
	}
	copy(q.seg.Payload(tail%cap64), elem)
	atomic.StoreUint64(tailAddr, tail+1)
	return nil
}

// Pop dequeues the oldest element (consumer process only).
func (q *ShmSPSC) Pop(dst []byte) error {
	if q.closed.Load() {
		return jerr.New("queue.ShmSPSC.Pop", jerr.OperationFailed, nil)
	}
	if len(dst) != int(q.seg.ElementSize()) {
		return jerr.New("queue.ShmSPSC.Pop", jerr.InvalidParam, nil)
	}
	cap64 := q.seg.Capacity()
	headAddr, tailAddr := q.seg.HeadAddr(), q.seg.TailAddr()
	head := atomic.LoadUint64(headAddr)
	if head >= q.cachedTail {
		q.cachedTail = atomic.LoadUint64(tailAddr)
		if head >= q.cachedTail {
			return ErrWouldBlock
		}
	}
	copy(dst, q.seg.Payload(head%cap64))
	atomic.StoreUint64(headAddr, head+1)
	return nil
}

// PushWait blocks with adaptive backoff until Push succeeds or ctx is done.
func (q *ShmSPSC) PushWait(ctx context.Context, elem []byte) error {
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
func (q *ShmSPSC) PopWait(ctx context.Context, dst []byte) error {
	backoff := iox.Backoff{}
	for {
		if err := q.Pop(dst); err == nil {
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

// Cap returns the segment's effective capacity.
func (q *ShmSPSC) Cap() int { return int(q.seg.Capacity()) }

// Pending reports the number of elements currently queued (best-effort;
// may be stale under concurrent mutation).
func (q *ShmSPSC) Pending() int {
	if q.closed.Load() {
		return 0
	}
	tail := atomic.LoadUint64(q.seg.TailAddr())
	head := atomic.LoadUint64(q.seg.HeadAddr())
	if tail <= head {
		return 0
	}
	return int(tail - head)
}

// ElementSize returns the fixed payload size in bytes.
func (q *ShmSPSC) ElementSize() int { return int(q.seg.ElementSize()) }

// Name returns the POSIX name this queue was opened with.
func (q *ShmSPSC) Name() string { return q.name }

// Close detaches from the segment without removing its POSIX name. After
// Close, every Push/Pop returns jerr.OperationFailed instead of touching
// the (now unmapped) segment.
func (q *ShmSPSC) Close() error {
	q.closed.Store(true)
	return q.seg.Close()
}
