// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package thread_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/libjoin/libjoin/thread"
)

func TestJoinWaitsForCompletion(t *testing.T) {
	var ran atomic.Bool
	th := thread.New(func(ctx context.Context) {
		time.Sleep(10 * time.Millisecond)
		ran.Store(true)
	})
	th.Join()
	if !ran.Load() {
		t.Fatal("Join returned before the callable finished")
	}
	if th.Running() {
		t.Fatal("Running(): got true after Join, want false")
	}
}

func TestTryJoinNonBlocking(t *testing.T) {
	release := make(chan struct{})
	th := thread.New(func(ctx context.Context) {
		<-release
	})
	if th.TryJoin() {
		t.Fatal("TryJoin(): got true while callable still running")
	}
	close(release)
	th.Join()
	if !th.TryJoin() {
		t.Fatal("TryJoin(): got false after completion")
	}
}

func TestCancelDetaches(t *testing.T) {
	release := make(chan struct{})
	th := thread.New(func(ctx context.Context) {
		<-ctx.Done()
		close(release)
	})
	th.Cancel()
	select {
	case <-release:
	case <-time.After(time.Second):
		t.Fatal("callable did not observe ctx.Done() after Cancel")
	}
	if th.Joinable() {
		t.Fatal("Joinable(): got true after Cancel, want false")
	}
	if got := th.Handle(); got != 0 {
		t.Fatalf("Handle() after Cancel: got %d, want 0", got)
	}
}

func TestHandleNonZeroOnceStarted(t *testing.T) {
	release := make(chan struct{})
	th := thread.New(func(ctx context.Context) {
		<-release
	})
	defer close(release)
	if th.Handle() == 0 {
		t.Fatal("Handle(): got 0 for a started thread")
	}
}

func TestAffinityRejectsOutOfRange(t *testing.T) {
	release := make(chan struct{})
	th := thread.New(func(ctx context.Context) { <-release })
	defer close(release)

	if err := th.Affinity(-3); err == nil {
		t.Fatal("Affinity(-3): got nil error, want InvalidParam")
	}
	if err := th.Affinity(1 << 20); err == nil {
		t.Fatal("Affinity(huge): got nil error, want InvalidParam")
	}
}

func TestPriorityRejectsOutOfRange(t *testing.T) {
	release := make(chan struct{})
	th := thread.New(func(ctx context.Context) { <-release })
	defer close(release)

	if err := th.Priority(100); err == nil {
		t.Fatal("Priority(100): got nil error, want InvalidParam")
	}
	if err := th.Priority(-1); err == nil {
		t.Fatal("Priority(-1): got nil error, want InvalidParam")
	}
}
