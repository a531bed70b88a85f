// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build linux

package membk

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const mpolBindMode = 2 // MPOL_BIND

// mbind binds the pages underlying b to the given NUMA node, using the
// raw mbind(2) syscall (golang.org/x/sys/unix exposes no typed wrapper).
func mbind(b []byte, numa int) error {
	if len(b) == 0 {
		return nil
	}
	var nodemask uint64
	nodemask = 1 << uint(numa)
	_, _, errno := unix.Syscall6(
		unix.SYS_MBIND,
		uintptr(unsafe.Pointer(&b[0])),
		uintptr(len(b)),
		uintptr(mpolBindMode),
		uintptr(unsafe.Pointer(&nodemask)),
		uintptr(64), // maxnode
		0,
	)
	if errno != 0 {
		return errno
	}
	return nil
}
