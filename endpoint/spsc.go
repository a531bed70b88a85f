// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package endpoint

import (
	"context"
	"errors"
	"time"

	"github.com/libjoin/libjoin/jerr"
	"github.com/libjoin/libjoin/queue"
)

// SPSC is a bidirectional endpoint backed by two queue.ShmSPSC segments,
// for the common one-thread-per-side transport: each side is a single
// producer on its outbound half and single consumer on its inbound half.
// Grounded on original_source/core/tests/spscendpoint_test.cpp.
type SPSC struct {
	jerr.Slot
	name string
	side Side
	tx   *queue.ShmSPSC
	rx   *queue.ShmSPSC
}

// OpenSPSC creates or attaches both halves of the named endpoint.
func OpenSPSC(name string, side Side, capacity, elemSize int) (*SPSC, error) {
	txName, rxName := segNames(name, side)
	tx, err := queue.OpenShmSPSC(txName, capacity, elemSize)
	if err != nil {
		return nil, err
	}
	rx, err := queue.OpenShmSPSC(rxName, capacity, elemSize)
	if err != nil {
		tx.Close()
		return nil, err
	}
	return &SPSC{name: name, side: side, tx: tx, rx: rx}, nil
}

// Send enqueues elem on the outbound half.
func (e *SPSC) Send(elem []byte) error { return e.tx.Push(elem) }

// Receive dequeues the oldest element from the inbound half.
func (e *SPSC) Receive(dst []byte) error { return e.rx.Pop(dst) }

// SendWait blocks with adaptive backoff until Send succeeds or ctx is done.
func (e *SPSC) SendWait(ctx context.Context, elem []byte) error {
	return e.tx.PushWait(ctx, elem)
}

// ReceiveWait blocks with adaptive backoff until Receive succeeds or ctx is
// done.
func (e *SPSC) ReceiveWait(ctx context.Context, dst []byte) error {
	return e.rx.PopWait(ctx, dst)
}

// TimedSend blocks with adaptive backoff until Send succeeds or timeout
// elapses, returning jerr.TimedOut on deadline.
func (e *SPSC) TimedSend(elem []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := e.tx.PushWait(ctx, elem)
	if errors.Is(err, context.DeadlineExceeded) {
		return jerr.New("endpoint.SPSC.TimedSend", jerr.TimedOut, err)
	}
	return err
}

// TimedReceive blocks with adaptive backoff until Receive succeeds or
// timeout elapses, returning jerr.TimedOut on deadline.
func (e *SPSC) TimedReceive(dst []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := e.rx.PopWait(ctx, dst)
	if errors.Is(err, context.DeadlineExceeded) {
		return jerr.New("endpoint.SPSC.TimedReceive", jerr.TimedOut, err)
	}
	return err
}

// Pending reports the number of unread elements in the inbound half.
func (e *SPSC) Pending() int { return e.rx.Pending() }

// Empty reports whether the outgoing (Send-family) queue currently holds
// no elements.
func (e *SPSC) Empty() bool { return e.tx.Pending() == 0 }

// Full reports whether the outgoing (Send-family) queue is at capacity.
func (e *SPSC) Full() bool { return e.tx.Pending() >= e.tx.Cap() }

// Available returns the outgoing (Send-family) queue's free slot count.
func (e *SPSC) Available() int { return e.tx.Cap() - e.tx.Pending() }

// Side returns which half of the pair this endpoint occupies.
func (e *SPSC) Side() Side { return e.side }

// Name returns the endpoint's logical (un-suffixed) name.
func (e *SPSC) Name() string { return e.name }

// Close detaches from both segments without removing their POSIX names.
func (e *SPSC) Close() error {
	errTx := e.tx.Close()
	errRx := e.rx.Close()
	if errTx != nil {
		return errTx
	}
	return errRx
}

// UnlinkSPSC removes both POSIX segment names for the given logical
// endpoint name. Best-effort.
func UnlinkSPSC(name string) error { return Unlink(name) }
