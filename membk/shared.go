// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package membk

import (
	"encoding/binary"
	"os"
	"strings"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/libjoin/libjoin/jerr"
)

// headerSize is the fixed 64-byte header every shared segment starts
// with: u64 capacity, u64 element_size, padding to 64 bytes.
const headerSize = 64

// Cross-process MPMC/MPSC queues need a shared head cursor (consumer side)
// and tail cursor (producer side) in addition to per-slot sequence
// counters. Each gets its own reserved 64-byte cache line, immediately
// after the header and before the slot array, so contended producer and
// consumer cursors never share a cache line with each other or with the
// capacity/element-size header — the same per-cursor isolation the
// in-process queues get from explicit pad fields.
const headCursorOffset = headerSize
const tailCursorOffset = headerSize + 64
const slotArrayOffset = headerSize + 128

// shmDir is where POSIX shared-memory-style segments live. Go has no
// shm_open; the pack's own idiom (AlephTX-aleph-tx/feeder/shm) is a
// regular file under /dev/shm, which is itself tmpfs on Linux.
const shmDir = "/dev/shm"

// Shared is a POSIX-named shared-memory segment laid out per spec.md §6:
// a 64-byte header (capacity, element size), a dedicated head-cursor cache
// line, a dedicated tail-cursor cache line, then the slot array — each
// slot an 8-byte sequence counter plus an element-size payload, padded to
// a 64-byte stride.
type Shared struct {
	f          *os.File
	buf        []byte
	capacity   uint64
	elemSize   uint64
	slotStride uint64
	created    bool
	closed     atomic.Bool
}

// ValidateName reports whether name is a valid POSIX shared-memory name:
// a leading '/', no other '/', non-empty suffix.
func ValidateName(name string) error {
	if len(name) < 2 || name[0] != '/' || strings.Count(name, "/") != 1 {
		return jerr.New("membk.ValidateName", jerr.InvalidParam, nil)
	}
	return nil
}

func slotStride(elemSize uint64) uint64 {
	total := 8 + elemSize // sequence + payload
	if rem := total % align; rem != 0 {
		total += align - rem
	}
	return total
}

// OpenShared creates or attaches the named segment with the given
// logical capacity (rounded up by the caller to a power of two) and
// per-element size. The first process to create the segment initializes
// the header and slot sequence numbers (to seqInit(i)); subsequent
// openers validate the existing header's (capacity, elementSize) and
// fail with jerr.InvalidParam on mismatch.
func OpenShared(name string, capacity, elemSize uint64, seqInit func(i uint64) uint64) (*Shared, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if capacity == 0 || elemSize == 0 {
		return nil, jerr.New("membk.OpenShared", jerr.InvalidParam, nil)
	}

	stride := slotStride(elemSize)
	size := int64(slotArrayOffset) + int64(stride*capacity)
	path := shmDir + name

	created := false
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err == nil {
		created = true
	} else if os.IsExist(err) {
		f, err = os.OpenFile(path, os.O_RDWR, 0o600)
		if err != nil {
			return nil, jerr.New("membk.OpenShared", jerr.OutOfMemory, err)
		}
	} else {
		return nil, jerr.New("membk.OpenShared", jerr.OutOfMemory, err)
	}

	if created {
		if err := f.Truncate(size); err != nil {
			f.Close()
			os.Remove(path)
			return nil, jerr.New("membk.OpenShared", jerr.OutOfMemory, err)
		}
	}

	buf, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, jerr.New("membk.OpenShared", jerr.OutOfMemory, err)
	}

	s := &Shared{f: f, buf: buf, capacity: capacity, elemSize: elemSize, slotStride: stride, created: created}

	if created {
		binary.LittleEndian.PutUint64(s.buf[0:8], capacity)
		binary.LittleEndian.PutUint64(s.buf[8:16], elemSize)
		atomic.StoreUint64(s.HeadAddr(), 0)
		atomic.StoreUint64(s.TailAddr(), 0)
		for i := uint64(0); i < capacity; i++ {
			atomic.StoreUint64(s.seqAddr(i), seqInit(i))
		}
	} else {
		haveCap := binary.LittleEndian.Uint64(s.buf[0:8])
		haveElem := binary.LittleEndian.Uint64(s.buf[8:16])
		if haveCap != capacity || haveElem != elemSize {
			unix.Munmap(s.buf)
			f.Close()
			return nil, jerr.New("membk.OpenShared", jerr.InvalidParam, nil)
		}
	}

	return s, nil
}

// Capacity returns the segment's effective (power-of-two) capacity.
func (s *Shared) Capacity() uint64 { return s.capacity }

// ElementSize returns the per-slot payload size in bytes.
func (s *Shared) ElementSize() uint64 { return s.elemSize }

// Created reports whether this handle created the segment (vs. attached
// to an existing one).
func (s *Shared) Created() bool { return s.created }

// Closed reports whether this handle has been detached via Close.
func (s *Shared) Closed() bool { return s.closed.Load() }

// closedSink is what HeadAddr/TailAddr/seqAddr hand back once the segment
// is closed, instead of indexing into a nil, unmapped buf: callers at the
// queue layer must check Closed() before reaching these, so this only
// guards against an out-of-contract call panicking.
var closedSink uint64

func (s *Shared) slotOffset(i uint64) uint64 {
	return slotArrayOffset + (i%s.capacity)*s.slotStride
}

// HeadAddr returns a pointer to the segment's shared consumer-side cursor,
// for use with sync/atomic. Shared across every process attached to the
// segment — unlike LocalMPMC/LocalMPSC's head, which is process-private.
func (s *Shared) HeadAddr() *uint64 {
	if s.closed.Load() {
		return &closedSink
	}
	return (*uint64)(unsafe.Pointer(&s.buf[headCursorOffset]))
}

// TailAddr returns a pointer to the segment's shared producer-side cursor.
func (s *Shared) TailAddr() *uint64 {
	if s.closed.Load() {
		return &closedSink
	}
	return (*uint64)(unsafe.Pointer(&s.buf[tailCursorOffset]))
}

// seqAddr returns a pointer to slot i's sequence counter, for use with
// sync/atomic. Shared-memory cursors use raw atomic functions on
// pointers (not the atomix wrapper type, which is only safe over
// in-process Go values) — grounded on AlephTX-aleph-tx's seqlock.go,
// which applies the identical technique over an mmap'd region.
func (s *Shared) seqAddr(i uint64) *uint64 {
	if s.closed.Load() {
		return &closedSink
	}
	off := s.slotOffset(i)
	return (*uint64)(unsafe.Pointer(&s.buf[off]))
}

// SeqLoad/SeqStore/SeqCAS expose the slot sequence counter atomically.
func (s *Shared) SeqLoad(i uint64) uint64 { return atomic.LoadUint64(s.seqAddr(i)) }
func (s *Shared) SeqStore(i uint64, v uint64) {
	atomic.StoreUint64(s.seqAddr(i), v)
}
func (s *Shared) SeqCAS(i uint64, old, new uint64) bool {
	return atomic.CompareAndSwapUint64(s.seqAddr(i), old, new)
}

// Payload returns the element-size byte slice for slot i's payload,
// immediately following its sequence counter.
func (s *Shared) Payload(i uint64) []byte {
	if s.closed.Load() {
		return nil
	}
	off := s.slotOffset(i) + 8
	return s.buf[off : off+s.elemSize]
}

// Mbind binds the segment's pages to the given NUMA node.
func (s *Shared) Mbind(numa int) error {
	if s.closed.Load() {
		return jerr.New("membk.Mbind", jerr.OperationFailed, nil)
	}
	if numa < 0 {
		return jerr.New("membk.Mbind", jerr.InvalidParam, nil)
	}
	if err := mbind(s.buf, numa); err != nil {
		return jerr.New("membk.Mbind", jerr.PermissionDenied, err)
	}
	return nil
}

// Mlock locks the segment's pages into physical memory.
func (s *Shared) Mlock() error {
	if s.closed.Load() {
		return jerr.New("membk.Mlock", jerr.OperationFailed, nil)
	}
	if err := unix.Mlock(s.buf); err != nil {
		if err == unix.EPERM {
			return jerr.New("membk.Mlock", jerr.PermissionDenied, err)
		}
		return jerr.New("membk.Mlock", jerr.OutOfMemory, err)
	}
	return nil
}

// Close detaches this handle from the segment. It does not remove the
// segment from the namespace — other processes may still be attached;
// only Unlink does that.
func (s *Shared) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	err := unix.Munmap(s.buf)
	s.buf = nil
	closeErr := s.f.Close()
	if err != nil {
		return jerr.New("membk.Close", jerr.OperationFailed, err)
	}
	if closeErr != nil {
		return jerr.New("membk.Close", jerr.OperationFailed, closeErr)
	}
	return nil
}

// Unlink best-effort removes the named segment. Succeeds even if the
// segment is absent.
func Unlink(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	err := os.Remove(shmDir + name)
	if err != nil && !os.IsNotExist(err) {
		return jerr.New("membk.Unlink", jerr.OperationFailed, err)
	}
	return nil
}
