// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package membk provides the two memory backings ring buffers are built
// on: Local (process-private, NUMA-bindable, lockable) and Shared
// (POSIX-named, /dev/shm-backed, for cross-process IPC). It is the Go
// rendering of the original join library's shared-memory and NUMA-binding
// helpers (core/include/join/cpu.hpp neighbors; no single join header
// survived the source filter, reconstructed from core/tests/shm*_test.cpp
// and AlephTX-aleph-tx/feeder/shm's mmap-over-/dev/shm idiom).
package membk

import (
	"golang.org/x/sys/unix"

	"github.com/libjoin/libjoin/jerr"
)

// align is the cache-line size every slot array and cursor is padded to.
const align = 64

// Local is a single process-private allocation, backed by an anonymous
// mmap so it can be bound to a NUMA node or locked into physical memory
// like any other mapped region.
type Local struct {
	buf []byte
}

// NewLocal allocates size bytes of process-private memory.
func NewLocal(size int) (*Local, error) {
	if size <= 0 {
		return nil, jerr.New("membk.NewLocal", jerr.InvalidParam, nil)
	}
	// size is passed to mmap unchanged; the kernel maps whole pages and
	// returns page-aligned (hence 64-byte aligned) memory, while Bytes()
	// exposes exactly size bytes of it.
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANONYMOUS|unix.MAP_PRIVATE)
	if err != nil {
		return nil, jerr.New("membk.NewLocal", jerr.OutOfMemory, err)
	}
	return &Local{buf: buf}, nil
}

// Bytes returns the backing memory.
func (m *Local) Bytes() []byte { return m.buf }

// Mbind binds the backing pages to the given NUMA node.
func (m *Local) Mbind(numa int) error {
	if numa < 0 {
		return jerr.New("membk.Mbind", jerr.InvalidParam, nil)
	}
	if err := mbind(m.buf, numa); err != nil {
		return jerr.New("membk.Mbind", jerr.PermissionDenied, err)
	}
	return nil
}

// Mlock locks the backing pages into physical memory.
func (m *Local) Mlock() error {
	if err := unix.Mlock(m.buf); err != nil {
		if err == unix.EPERM {
			return jerr.New("membk.Mlock", jerr.PermissionDenied, err)
		}
		return jerr.New("membk.Mlock", jerr.OutOfMemory, err)
	}
	return nil
}

// Close releases the mapping. It is safe to call once; it does not need
// to be called for process-private memory, which is reclaimed on exit,
// but frees it eagerly for long-lived processes that churn queues.
func (m *Local) Close() error {
	if m.buf == nil {
		return nil
	}
	err := unix.Munmap(m.buf)
	m.buf = nil
	if err != nil {
		return jerr.New("membk.Close", jerr.OperationFailed, err)
	}
	return nil
}
