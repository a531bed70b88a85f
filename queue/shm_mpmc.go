// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package queue

import (
	"context"
	"sync/atomic"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/spin"

	"github.com/libjoin/libjoin/jerr"
	"github.com/libjoin/libjoin/membk"
)

// ShmMPMC is a cross-process multi-producer multi-consumer bounded queue,
// running the identical sequence-number protocol as LocalMPMC but over
// fixed-size byte payloads inside a POSIX-named /dev/shm segment instead of
// a generic Go slice. Grounded on AlephTX-aleph-tx/feeder/shm's mmap-backed
// ring, wired to the sequence-based (Vyukov) protocol from
// hayabusa-cloud-lfq's mpmc_seq.go.
type ShmMPMC struct {
	jerr.Slot
	seg    *membk.Shared
	name   string
	closed atomic.Bool
}

// OpenShmMPMC creates or attaches the named segment, sized for capacity
// elements of elemSize bytes each. capacity rounds up to a power of two.
func OpenShmMPMC(name string, capacity int, elemSize int) (*ShmMPMC, error) {
	if capacity <= 0 || elemSize <= 0 {
		return nil, jerr.New("queue.OpenShmMPMC", jerr.InvalidParam, nil)
	}
	n := uint64(roundToPow2(capacity))
	seg, err := membk.OpenShared(name, n, uint64(elemSize), func(i uint64) uint64 { return i })
	if err != nil {
		return nil, err
	}
	return &ShmMPMC{seg: seg, name: name}, nil
}

// Push copies elem (which must be exactly ElementSize() bytes) into the
// next free slot. Returns ErrWouldBlock if the queue is full.
func (q *ShmMPMC) Push(elem []byte) error {
	if q.closed.Load() {
		return jerr.New("queue.ShmMPMC.Push", jerr.OperationFailed, nil)
	}
	if len(elem) != int(q.seg.ElementSize()) {
		return jerr.New("queue.ShmMPMC.Push", jerr.InvalidParam, nil)
	}
	cap64 := q.seg.Capacity()
	sw := spin.Wait{}
	tailAddr := q.seg.TailAddr()
	for {
		tail := atomic.LoadUint64(tailAddr)
		slot := tail % cap64
		seq := q.seg.SeqLoad(slot)
		diff := int64(seq) - int64(tail)

		if diff == 0 {
			if atomic.CompareAndSwapUint64(tailAddr, tail, tail+1) {
				copy(q.seg.Payload(slot), elem)
				q.seg.SeqStore(slot, tail+1)
				return nil
			}
		} else if diff < 0 {
			return ErrWouldBlock
		}
		sw.Once()
	}
}

// Pop copies the oldest element into dst (which must be exactly
// ElementSize() bytes). Returns ErrWouldBlock if the queue is empty.
func (q *ShmMPMC) Pop(dst []byte) error {
	if q.closed.Load() {
		return jerr.New("queue.ShmMPMC.Pop", jerr.OperationFailed, nil)
	}
	if len(dst) != int(q.seg.ElementSize()) {
		return jerr.New("queue.ShmMPMC.Pop", jerr.InvalidParam, nil)
	}
	cap64 := q.seg.Capacity()
	sw := spin.Wait{}
	headAddr := q.seg.HeadAddr()
	for {
		head := atomic.LoadUint64(headAddr)
		slot := head % cap64
		seq := q.seg.SeqLoad(slot)
		diff := int64(seq) - int64(head+1)

		if diff == 0 {
			if atomic.CompareAndSwapUint64(headAddr, head, head+1) {
				copy(dst, q.seg.Payload(slot))
				q.seg.SeqStore(slot, head+cap64)
				return nil
			}
		} else if diff < 0 {
			return ErrWouldBlock
		}
		sw.Once()
	}
}

// PushWait blocks with adaptive backoff until Push succeeds or ctx is done.
func (q *ShmMPMC) PushWait(ctx context.Context, elem []byte) error {
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
func (q *ShmMPMC) PopWait(ctx context.Context, dst []byte) error {
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
func (q *ShmMPMC) Cap() int { return int(q.seg.Capacity()) }

// Pending reports the number of elements currently queued (best-effort;
// may be stale under concurrent mutation).
func (q *ShmMPMC) Pending() int {
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
func (q *ShmMPMC) ElementSize() int { return int(q.seg.ElementSize()) }

// Name returns the POSIX name this queue was opened with.
func (q *ShmMPMC) Name() string { return q.name }

// Close detaches from the segment without removing its POSIX name. After
// Close, every Push/Pop returns jerr.OperationFailed instead of touching
// the (now unmapped) segment.
func (q *ShmMPMC) Close() error {
	q.closed.Store(true)
	return q.seg.Close()
}

// Unlink removes the named segment from /dev/shm. Best-effort.
func Unlink(name string) error { return membk.Unlink(name) }
