// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package endpoint pairs two named shared ring buffers into a full-duplex
// channel between two processes, side A and side B: A writes to
// "<name>_AB" and reads from "<name>_BA"; B does the opposite. Grounded on
// original_source/core/tests/mpmcendpoint_test.cpp (default, MPMC-backed)
// and spscendpoint_test.cpp (single-producer-per-side variant).
package endpoint

import (
	"context"
	"errors"
	"time"

	"github.com/libjoin/libjoin/jerr"
	"github.com/libjoin/libjoin/queue"
)

// Side identifies which half of the named pair this process occupies.
type Side int

const (
	// SideA writes to "_AB" and reads from "_BA".
	SideA Side = iota
	// SideB writes to "_BA" and reads from "_AB".
	SideB
)

func segNames(name string, side Side) (tx, rx string) {
	if side == SideA {
		return name + "_AB", name + "_BA"
	}
	return name + "_BA", name + "_AB"
}

// MPMC is a bidirectional endpoint backed by two queue.ShmMPMC segments,
// the default discipline per spec.md §4.2.
type MPMC struct {
	jerr.Slot
	name string
	side Side
	tx   *queue.ShmMPMC
	rx   *queue.ShmMPMC
}

// Open creates or attaches both halves of the named endpoint.
func Open(name string, side Side, capacity, elemSize int) (*MPMC, error) {
	txName, rxName := segNames(name, side)
	tx, err := queue.OpenShmMPMC(txName, capacity, elemSize)
	if err != nil {
		return nil, err
	}
	rx, err := queue.OpenShmMPMC(rxName, capacity, elemSize)
	if err != nil {
		tx.Close()
		return nil, err
	}
	return &MPMC{name: name, side: side, tx: tx, rx: rx}, nil
}

// Send enqueues elem on the outbound half. Returns queue.ErrWouldBlock if
// full.
func (e *MPMC) Send(elem []byte) error { return e.tx.Push(elem) }

// Receive dequeues the oldest element from the inbound half. Returns
// queue.ErrWouldBlock if empty.
func (e *MPMC) Receive(dst []byte) error { return e.rx.Pop(dst) }

// SendWait blocks with adaptive backoff until Send succeeds or ctx is done.
func (e *MPMC) SendWait(ctx context.Context, elem []byte) error {
	return e.tx.PushWait(ctx, elem)
}

// ReceiveWait blocks with adaptive backoff until Receive succeeds or ctx is
// done.
func (e *MPMC) ReceiveWait(ctx context.Context, dst []byte) error {
	return e.rx.PopWait(ctx, dst)
}

// TimedSend blocks with adaptive backoff until Send succeeds or timeout
// elapses, returning jerr.TimedOut on deadline.
func (e *MPMC) TimedSend(elem []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := e.tx.PushWait(ctx, elem)
	if errors.Is(err, context.DeadlineExceeded) {
		return jerr.New("endpoint.MPMC.TimedSend", jerr.TimedOut, err)
	}
	return err
}

// TimedReceive blocks with adaptive backoff until Receive succeeds or
// timeout elapses, returning jerr.TimedOut on deadline.
func (e *MPMC) TimedReceive(dst []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := e.rx.PopWait(ctx, dst)
	if errors.Is(err, context.DeadlineExceeded) {
		return jerr.New("endpoint.MPMC.TimedReceive", jerr.TimedOut, err)
	}
	return err
}

// Pending reports the number of unread elements in the inbound half.
func (e *MPMC) Pending() int { return e.rx.Pending() }

// Empty reports whether the outgoing (Send-family) queue currently holds
// no elements.
func (e *MPMC) Empty() bool { return e.tx.Pending() == 0 }

// Full reports whether the outgoing (Send-family) queue is at capacity.
func (e *MPMC) Full() bool { return e.tx.Pending() >= e.tx.Cap() }

// Available returns the outgoing (Send-family) queue's free slot count.
func (e *MPMC) Available() int { return e.tx.Cap() - e.tx.Pending() }

// Side returns which half of the pair this endpoint occupies.
func (e *MPMC) Side() Side { return e.side }

// Name returns the endpoint's logical (un-suffixed) name.
func (e *MPMC) Name() string { return e.name }

// Close detaches from both segments without removing their POSIX names.
func (e *MPMC) Close() error {
	errTx := e.tx.Close()
	errRx := e.rx.Close()
	if errTx != nil {
		return errTx
	}
	return errRx
}

// Unlink removes both POSIX segment names for the given logical endpoint
// name. Best-effort; safe to call from either side after all peers close.
func Unlink(name string) error {
	if err := queue.Unlink(name + "_AB"); err != nil {
		return err
	}
	return queue.Unlink(name + "_BA")
}
