// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package queue

// RaceEnabled is true when the race detector is active. Concurrent tests
// for the sequence-number queues skip under it: the protocol's ordering
// guarantees span multiple atomix fields at once (slot sequence plus
// head/tail), which the race detector's per-variable happens-before model
// flags as a false positive.
const RaceEnabled = true
