// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package jerr provides the error taxonomy shared by every libjoin
// package: a small set of error Kinds plus a per-owner "last error" slot
// for APIs whose hot path returns only a boolean or a bare error.
package jerr

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"
)

// Kind classifies a failure. Hot-path functions return a Kind-carrying
// *Error (or, on the hottest paths, delegate straight to iox.ErrWouldBlock)
// rather than an exception.
type Kind uint8

const (
	// InvalidParam: null/empty argument, bad CPU id, bad priority,
	// mismatched segment geometry, out-of-range capacity.
	InvalidParam Kind = iota + 1
	// InUse: opening an already-open endpoint, starting an already-running reactor.
	InUse
	// OperationFailed: action invoked on an inert or closed object.
	OperationFailed
	// TemporaryError: non-blocking push/pop on a full/empty queue.
	TemporaryError
	// TimedOut: timedSend/timedReceive/sync-submit deadline elapsed.
	TimedOut
	// OutOfMemory: allocation, mmap, or queue-array creation failed.
	OutOfMemory
	// PermissionDenied: real-time scheduling or mlock denied by the OS.
	PermissionDenied
)

func (k Kind) String() string {
	switch k {
	case InvalidParam:
		return "invalid parameter"
	case InUse:
		return "in use"
	case OperationFailed:
		return "operation failed"
	case TemporaryError:
		return "temporary error"
	case TimedOut:
		return "timed out"
	case OutOfMemory:
		return "out of memory"
	case PermissionDenied:
		return "permission denied"
	default:
		return "unknown error kind"
	}
}

// Error is the concrete error type returned by libjoin packages.
type Error struct {
	Kind Kind
	Op   string
	Err  error // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for op/kind, optionally wrapping cause.
func New(op string, kind Kind, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// ErrWouldBlock is the TemporaryError vocabulary used across queue/endpoint
// hot paths. It is an alias for iox.ErrWouldBlock for ecosystem consistency,
// mirroring the teacher package's own re-export.
var ErrWouldBlock = iox.ErrWouldBlock

// IsWouldBlock reports whether err indicates the operation would block.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err) || Is(err, TemporaryError)
}

// Owner is implemented by objects that keep a per-instance last-error slot
// (the libjoin rendering of spec.md's "thread-local last error slot" —
// Go has no lightweight TLS, so the slot lives on the owning object instead
// of the calling goroutine).
type Owner interface {
	// LastError returns the most recent recoverable error recorded by
	// this object's operations, or nil.
	LastError() error
}

// Slot is a small embeddable last-error holder. Zero value is ready to use.
type Slot struct {
	last error
}

// Set records err as the most recent error. Set(nil) clears the slot.
func (s *Slot) Set(err error) { s.last = err }

// LastError implements Owner.
func (s *Slot) LastError() error { return s.last }
