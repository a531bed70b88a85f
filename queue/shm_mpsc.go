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

// ShmMPSC is a cross-process multi-producer single-consumer bounded queue
// over a /dev/shm segment, the byte-oriented counterpart of LocalMPSC.
type ShmMPSC struct {
	jerr.Slot
	seg    *membk.Shared
	name   string
	closed atomic.Bool
}

// OpenShmMPSC creates or attaches the named segment.
func OpenShmMPSC(name string, capacity int, elemSize int) (*ShmMPSC, error) {
	if capacity <= 0 || elemSize <= 0 {
		return nil, jerr.New("queue.OpenShmMPSC", jerr.InvalidParam, nil)
	}
	n := uint64(roundToPow2(capacity))
	seg, err := membk.OpenShared(name, n, uint64(elemSize), func(i uint64) uint64 { return i })
	if err != nil {
		return nil, err
	}
	return &ShmMPSC{seg: seg, name: name}, nil
}

// Push enqueues elem (any number of concurrent producers, in-process or
// cross-process, safe).
func (q *ShmMPSC) Push(elem []byte) error {
	if q.closed.Load() {
		return jerr.New("queue.ShmMPSC.Push", jerr.OperationFailed, nil)
	}
	if len(elem) != int(q.seg.ElementSize()) {
		return jerr.New("queue.ShmMPSC.Push", jerr.InvalidParam, nil)
	}
	cap64 := q.seg.Capacity()
	tailAddr, headAddr := q.seg.TailAddr(), q.seg.HeadAddr()
	sw := spin.Wait{}
	for {
		tail := atomic.LoadUint64(tailAddr)
		head := atomic.LoadUint64(headAddr)
		if tail >= head+cap64 {
			return ErrWouldBlock
		}

		slot := tail % cap64
		seq := q.seg.SeqLoad(slot)
		if seq == tail {
			if atomic.CompareAndSwapUint64(tailAddr, tail, tail+1) {
				copy(q.seg.Payload(slot), elem)
				q.seg.SeqStore(slot, tail+1)
				return nil
			}
		} else if seq < tail {
			return ErrWouldBlock
		}
		sw.Once()
	}
}

// Pop dequeues the oldest element (single consumer process only).
func (q *ShmMPSC) Pop(dst []byte) error {
	if q.closed.Load() {
		return jerr.New("queue.ShmMPSC.Pop", jerr.OperationFailed, nil)
	}
	if len(dst) != int(q.seg.ElementSize()) {
		return jerr.New("queue.ShmMPSC.Pop", jerr.InvalidParam, nil)
	}
	cap64 := q.seg.Capacity()
	headAddr := q.seg.HeadAddr()
	head := atomic.LoadUint64(headAddr)
	slot := head % cap64
	seq := q.seg.SeqLoad(slot)
	if seq != head+1 {
		return ErrWouldBlock
	}
	copy(dst, q.seg.Payload(slot))
	q.seg.SeqStore(slot, head+cap64)
	atomic.StoreUint64(headAddr, head+1)
	return nil
}

// PushWait blocks with adaptive backoff until Push succeeds or ctx is done.
func (q *ShmMPSC) PushWait(ctx context.Context, elem []byte) error {
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
func (q *ShmMPSC) PopWait(ctx context.Context, dst []byte) error {
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
func (q *ShmMPSC) Cap() int { return int(q.seg.Capacity()) }

// ElementSize returns the fixed payload size in bytes.
func (q *ShmMPSC) ElementSize() int { return int(q.seg.ElementSize()) }

// Name returns the POSIX name this queue was opened with.
func (q *ShmMPSC) Name() string { return q.name }

// Close detaches from the segment without removing its POSIX name. After
// Close, every Push/Pop returns jerr.OperationFailed instead of touching
// the (now unmapped) segment.
func (q *ShmMPSC) Close() error {
	q.closed.Store(true)
	return q.seg.Close()
}
