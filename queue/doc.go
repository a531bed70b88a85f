// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package queue provides lock-free bounded FIFO queues in two families:
//
//   - Local: process-private, generic over T — LocalSPSC, LocalMPSC, LocalMPMC.
//   - Shm: cross-process, byte-oriented over a fixed element size and backed
//     by a POSIX-named /dev/shm segment — ShmSPSC, ShmMPSC, ShmMPMC.
//
// Both families implement the same sequence-number protocol: SPSC uses a
// Lamport ring buffer with cached cursors, MPSC/MPMC validate a per-slot
// sequence counter with CAS on the contended index.
//
// # Quick start
//
//	q := queue.NewLocalMPMC[Request](4096)
//	req := Request{ID: 1}
//	if err := q.Push(&req); queue.IsWouldBlock(err) {
//	    // queue full — backpressure
//	}
//	elem, err := q.Pop()
//
// For cross-process IPC, use the Shm family with a POSIX name (leading
// '/', no other '/'):
//
//	q, err := queue.OpenShmMPMC("/orders", 1024, 64)
//	defer q.Close()
//	defer queue.Unlink("/orders")
package queue
