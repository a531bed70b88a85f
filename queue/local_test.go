// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package queue_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"code.hybscloud.com/iox"

	"github.com/libjoin/libjoin/jerr"
	"github.com/libjoin/libjoin/queue"
)

func TestLocalSPSCBasic(t *testing.T) {
	q := queue.NewLocalSPSC[int](3)
	if q.Cap() != 4 {
		t.Fatalf("Cap: got %d, want 4", q.Cap())
	}

	for i := range 4 {
		v := i + 100
		if err := q.Push(&v); err != nil {
			t.Fatalf("Push(%d): %v", i, err)
		}
	}

	v := 999
	if err := q.Push(&v); !errors.Is(err, queue.ErrWouldBlock) {
		t.Fatalf("Push on full: got %v, want ErrWouldBlock", err)
	}
	if !q.Full() {
		t.Fatal("Full() should report true")
	}

	for i := range 4 {
		got, err := q.Pop()
		if err != nil {
			t.Fatalf("Pop(%d): %v", i, err)
		}
		if got != i+100 {
			t.Fatalf("Pop(%d): got %d, want %d", i, got, i+100)
		}
	}

	if _, err := q.Pop(); !errors.Is(err, queue.ErrWouldBlock) {
		t.Fatalf("Pop on empty: got %v, want ErrWouldBlock", err)
	}
	if !q.Empty() {
		t.Fatal("Empty() should report true")
	}
}

func TestLocalMPMCConcurrent(t *testing.T) {
	if queue.RaceEnabled {
		t.Skip("skip: lock-free algorithm uses cross-variable memory ordering")
	}
	q := queue.NewLocalMPMC[int](16)
	const producers = 4
	const consumers = 4
	const perProducer = 200
	const total = producers * perProducer

	var wg sync.WaitGroup
	wg.Add(producers + consumers)

	for p := range producers {
		go func(id int) {
			defer wg.Done()
			backoff := iox.Backoff{}
			for j := range perProducer {
				v := id*10000 + j
				for q.Push(&v) != nil {
					backoff.Wait()
				}
				backoff.Reset()
			}
		}(p)
	}

	var count atomic.Int64
	done := make(chan struct{})
	for range consumers {
		go func() {
			defer wg.Done()
			backoff := iox.Backoff{}
			for {
				select {
				case <-done:
					return
				default:
				}
				if _, err := q.Pop(); err != nil {
					backoff.Wait()
					continue
				}
				backoff.Reset()
				if count.Add(1) == total {
					close(done)
				}
			}
		}()
	}
	wg.Wait()
	if got := count.Load(); got != total {
		t.Fatalf("consumed %d elements, want %d", got, total)
	}
}

func TestLocalMPSCBasic(t *testing.T) {
	q := queue.NewLocalMPSC[int](4)
	for i := range 4 {
		v := i
		if err := q.Push(&v); err != nil {
			t.Fatalf("Push(%d): %v", i, err)
		}
	}
	if err := (func() error { v := 5; return q.Push(&v) })(); !errors.Is(err, queue.ErrWouldBlock) {
		t.Fatalf("Push on full: got %v, want ErrWouldBlock", err)
	}
	for i := range 4 {
		got, err := q.Pop()
		if err != nil || got != i {
			t.Fatalf("Pop(%d): got (%d, %v)", i, got, err)
		}
	}
}

func TestLocalCapacityZeroIsInert(t *testing.T) {
	q := queue.NewLocalMPMC[int](0)
	v := 1
	if err := q.Push(&v); !errors.Is(err, queue.ErrWouldBlock) {
		t.Fatalf("Push on capacity-0 queue: got %v, want ErrWouldBlock", err)
	}
	if _, err := q.Pop(); !errors.Is(err, queue.ErrWouldBlock) {
		t.Fatalf("Pop on capacity-0 queue: got %v, want ErrWouldBlock", err)
	}
	if q.Cap() != 0 {
		t.Fatalf("Cap: got %d, want 0", q.Cap())
	}
}

func TestLocalMPMCPendingAndAvailable(t *testing.T) {
	q := queue.NewLocalMPMC[int](8)
	for i := range 3 {
		v := i
		if err := q.Push(&v); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	if q.Pending() != 3 {
		t.Fatalf("Pending: got %d, want 3", q.Pending())
	}
	if q.Available() != 5 {
		t.Fatalf("Available: got %d, want 5", q.Available())
	}
}

// TestLocalMPMCClosedIsInert verifies Push/Pop return jerr.OperationFailed
// (not a panic) and Pending/Empty/Full report an empty queue once Close has
// been called.
func TestLocalMPMCClosedIsInert(t *testing.T) {
	q := queue.NewLocalMPMC[int](8)
	v := 1
	if err := q.Push(&v); err != nil {
		t.Fatalf("Push before Close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !q.Closed() {
		t.Fatal("Closed() should report true")
	}
	if err := q.Push(&v); !jerr.Is(err, jerr.OperationFailed) {
		t.Fatalf("Push after Close: got %v, want OperationFailed", err)
	}
	if _, err := q.Pop(); !jerr.Is(err, jerr.OperationFailed) {
		t.Fatalf("Pop after Close: got %v, want OperationFailed", err)
	}
	if q.Pending() != 0 || !q.Empty() || q.Full() {
		t.Fatalf("Pending/Empty/Full after Close: got (%d, %v, %v)", q.Pending(), q.Empty(), q.Full())
	}
}

// TestLocalMPSCClosedIsInert mirrors TestLocalMPMCClosedIsInert for
// LocalMPSC.
func TestLocalMPSCClosedIsInert(t *testing.T) {
	q := queue.NewLocalMPSC[int](8)
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	v := 1
	if err := q.Push(&v); !jerr.Is(err, jerr.OperationFailed) {
		t.Fatalf("Push after Close: got %v, want OperationFailed", err)
	}
	if _, err := q.Pop(); !jerr.Is(err, jerr.OperationFailed) {
		t.Fatalf("Pop after Close: got %v, want OperationFailed", err)
	}
}

// TestLocalSPSCClosedIsInert mirrors TestLocalMPMCClosedIsInert for
// LocalSPSC.
func TestLocalSPSCClosedIsInert(t *testing.T) {
	q := queue.NewLocalSPSC[int](8)
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	v := 1
	if err := q.Push(&v); !jerr.Is(err, jerr.OperationFailed) {
		t.Fatalf("Push after Close: got %v, want OperationFailed", err)
	}
	if _, err := q.Pop(); !jerr.Is(err, jerr.OperationFailed) {
		t.Fatalf("Pop after Close: got %v, want OperationFailed", err)
	}
}

// TestLocalMPSCMbindMlock exercises the Mbind/Mlock surface added so
// Reactor can pin its command queue's reserved memory. Tolerates
// PermissionDenied in a sandboxed/non-NUMA test environment.
func TestLocalMPSCMbindMlock(t *testing.T) {
	q := queue.NewLocalMPSC[int](8)
	defer q.Close()
	if err := q.Mbind(0); err != nil && !jerr.Is(err, jerr.PermissionDenied) {
		t.Fatalf("Mbind: %v", err)
	}
	if err := q.Mlock(); err != nil && !jerr.Is(err, jerr.PermissionDenied) {
		t.Fatalf("Mlock: %v", err)
	}
}
