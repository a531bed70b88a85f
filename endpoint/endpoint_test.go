// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package endpoint_test

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/libjoin/libjoin/endpoint"
	"github.com/libjoin/libjoin/jerr"
)

func epName(suffix string) string {
	return fmt.Sprintf("/libjoin-endpoint-test-%d-%s", os.Getpid(), suffix)
}

func TestMPMCFullDuplex(t *testing.T) {
	name := epName("mpmc")
	defer endpoint.Unlink(name)

	a, err := endpoint.Open(name, endpoint.SideA, 4, 4)
	if err != nil {
		t.Fatalf("Open side A: %v", err)
	}
	defer a.Close()

	b, err := endpoint.Open(name, endpoint.SideB, 4, 4)
	if err != nil {
		t.Fatalf("Open side B: %v", err)
	}
	defer b.Close()

	if err := a.Send([]byte("ping")); err != nil {
		t.Fatalf("a.Send: %v", err)
	}
	dst := make([]byte, 4)
	if err := b.Receive(dst); err != nil {
		t.Fatalf("b.Receive: %v", err)
	}
	if string(dst) != "ping" {
		t.Fatalf("b.Receive: got %q, want %q", dst, "ping")
	}

	if err := b.Send([]byte("pong")); err != nil {
		t.Fatalf("b.Send: %v", err)
	}
	if err := a.Receive(dst); err != nil {
		t.Fatalf("a.Receive: %v", err)
	}
	if string(dst) != "pong" {
		t.Fatalf("a.Receive: got %q, want %q", dst, "pong")
	}
}

func TestMPMCPending(t *testing.T) {
	name := epName("pending")
	defer endpoint.Unlink(name)

	a, err := endpoint.Open(name, endpoint.SideA, 8, 2)
	if err != nil {
		t.Fatalf("Open side A: %v", err)
	}
	defer a.Close()
	b, err := endpoint.Open(name, endpoint.SideB, 8, 2)
	if err != nil {
		t.Fatalf("Open side B: %v", err)
	}
	defer b.Close()

	for i := 0; i < 3; i++ {
		if err := a.Send([]byte{1, 2}); err != nil {
			t.Fatalf("Send(%d): %v", i, err)
		}
	}
	if got := b.Pending(); got != 3 {
		t.Fatalf("Pending: got %d, want 3", got)
	}
}

func TestSPSCFullDuplex(t *testing.T) {
	name := epName("spsc")
	defer endpoint.UnlinkSPSC(name)

	a, err := endpoint.OpenSPSC(name, endpoint.SideA, 4, 4)
	if err != nil {
		t.Fatalf("OpenSPSC side A: %v", err)
	}
	defer a.Close()

	b, err := endpoint.OpenSPSC(name, endpoint.SideB, 4, 4)
	if err != nil {
		t.Fatalf("OpenSPSC side B: %v", err)
	}
	defer b.Close()

	if err := a.Send([]byte("abcd")); err != nil {
		t.Fatalf("a.Send: %v", err)
	}
	dst := make([]byte, 4)
	if err := b.Receive(dst); err != nil {
		t.Fatalf("b.Receive: %v", err)
	}
	if string(dst) != "abcd" {
		t.Fatalf("b.Receive: got %q, want %q", dst, "abcd")
	}
}

// TestMPMCTimedSendReceive exercises TimedSend/TimedReceive: a successful
// round trip under a generous deadline, then a deadline-elapsed
// TimedReceive on an endpoint nothing is ever sent to.
func TestMPMCTimedSendReceive(t *testing.T) {
	name := epName("timed")
	defer endpoint.Unlink(name)

	a, err := endpoint.Open(name, endpoint.SideA, 4, 4)
	if err != nil {
		t.Fatalf("Open side A: %v", err)
	}
	defer a.Close()
	b, err := endpoint.Open(name, endpoint.SideB, 4, 4)
	if err != nil {
		t.Fatalf("Open side B: %v", err)
	}
	defer b.Close()

	if err := a.TimedSend([]byte("ping"), time.Second); err != nil {
		t.Fatalf("a.TimedSend: %v", err)
	}
	dst := make([]byte, 4)
	if err := b.TimedReceive(dst, time.Second); err != nil {
		t.Fatalf("b.TimedReceive: %v", err)
	}
	if string(dst) != "ping" {
		t.Fatalf("b.TimedReceive: got %q, want %q", dst, "ping")
	}

	err = b.TimedReceive(dst, 20*time.Millisecond)
	if !jerr.Is(err, jerr.TimedOut) {
		t.Fatalf("TimedReceive on empty: got %v, want TimedOut", err)
	}
}

// TestMPMCEmptyFullAvailable exercises Empty/Full/Available against the
// outgoing (Send-family) queue, distinct from Pending (the inbound queue).
func TestMPMCEmptyFullAvailable(t *testing.T) {
	name := epName("snapshot")
	defer endpoint.Unlink(name)

	a, err := endpoint.Open(name, endpoint.SideA, 2, 4)
	if err != nil {
		t.Fatalf("Open side A: %v", err)
	}
	defer a.Close()
	b, err := endpoint.Open(name, endpoint.SideB, 2, 4)
	if err != nil {
		t.Fatalf("Open side B: %v", err)
	}
	defer b.Close()

	if !a.Empty() || a.Full() || a.Available() != 2 {
		t.Fatalf("fresh endpoint: Empty=%v Full=%v Available=%d", a.Empty(), a.Full(), a.Available())
	}
	if err := a.Send([]byte("abcd")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := a.Send([]byte("efgh")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if a.Empty() || !a.Full() || a.Available() != 0 {
		t.Fatalf("full outgoing queue: Empty=%v Full=%v Available=%d", a.Empty(), a.Full(), a.Available())
	}
}
