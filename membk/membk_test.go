// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package membk_test

import (
	"fmt"
	"os"
	"testing"

	"github.com/libjoin/libjoin/jerr"
	"github.com/libjoin/libjoin/membk"
)

func TestLocalRoundTrip(t *testing.T) {
	m, err := membk.NewLocal(4096)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	defer m.Close()

	buf := m.Bytes()
	if len(buf) != 4096 {
		t.Fatalf("len(Bytes()) = %d, want 4096", len(buf))
	}
	buf[0] = 0xAB
	if m.Bytes()[0] != 0xAB {
		t.Fatal("write through Bytes() did not persist")
	}
}

func TestLocalRejectsNonPositiveSize(t *testing.T) {
	if _, err := membk.NewLocal(0); !jerr.Is(err, jerr.InvalidParam) {
		t.Fatalf("NewLocal(0) err = %v, want InvalidParam", err)
	}
	if _, err := membk.NewLocal(-1); !jerr.Is(err, jerr.InvalidParam) {
		t.Fatalf("NewLocal(-1) err = %v, want InvalidParam", err)
	}
}

func TestLocalCloseIdempotent(t *testing.T) {
	m, err := membk.NewLocal(64)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func segName(t *testing.T) string {
	return fmt.Sprintf("/libjoin-test-%d", os.Getpid())
}

func TestSharedCreateThenOpenValidatesGeometry(t *testing.T) {
	name := segName(t)
	defer membk.Unlink(name)

	creator, err := membk.OpenShared(name, 8, 16, func(i uint64) uint64 { return i })
	if err != nil {
		t.Fatalf("OpenShared (create): %v", err)
	}
	defer creator.Close()
	if !creator.Created() {
		t.Fatal("expected Created() true for first opener")
	}

	opener, err := membk.OpenShared(name, 8, 16, func(i uint64) uint64 { return i })
	if err != nil {
		t.Fatalf("OpenShared (attach): %v", err)
	}
	defer opener.Close()
	if opener.Created() {
		t.Fatal("expected Created() false for second opener")
	}

	creator.Payload(0)[0] = 0x7F
	if opener.Payload(0)[0] != 0x7F {
		t.Fatal("payload not visible across handles")
	}

	if _, err := membk.OpenShared(name, 8, 32, func(i uint64) uint64 { return i }); !jerr.Is(err, jerr.InvalidParam) {
		t.Fatalf("mismatched geometry err = %v, want InvalidParam", err)
	}
}

func TestSharedRejectsBadName(t *testing.T) {
	if _, err := membk.OpenShared("nofront", 4, 8, func(i uint64) uint64 { return i }); !jerr.Is(err, jerr.InvalidParam) {
		t.Fatalf("bad name err = %v, want InvalidParam", err)
	}
	if _, err := membk.OpenShared("/a/b", 4, 8, func(i uint64) uint64 { return i }); !jerr.Is(err, jerr.InvalidParam) {
		t.Fatalf("nested name err = %v, want InvalidParam", err)
	}
}

func TestSharedSeqLoadStoreCAS(t *testing.T) {
	name := segName(t) + "-seq"
	defer membk.Unlink(name)

	s, err := membk.OpenShared(name, 4, 8, func(i uint64) uint64 { return i })
	if err != nil {
		t.Fatalf("OpenShared: %v", err)
	}
	defer s.Close()

	if got := s.SeqLoad(2); got != 2 {
		t.Fatalf("SeqLoad(2) = %d, want 2", got)
	}
	s.SeqStore(2, 99)
	if got := s.SeqLoad(2); got != 99 {
		t.Fatalf("SeqLoad(2) after store = %d, want 99", got)
	}
	if !s.SeqCAS(2, 99, 100) {
		t.Fatal("SeqCAS(2, 99, 100) failed unexpectedly")
	}
	if s.SeqCAS(2, 99, 101) {
		t.Fatal("SeqCAS(2, 99, 101) should fail: current value is 100")
	}
}

func TestUnlinkIsIdempotent(t *testing.T) {
	name := segName(t) + "-unlink"
	if err := membk.Unlink(name); err != nil {
		t.Fatalf("Unlink on absent segment: %v", err)
	}
	s, err := membk.OpenShared(name, 2, 8, func(i uint64) uint64 { return i })
	if err != nil {
		t.Fatalf("OpenShared: %v", err)
	}
	s.Close()
	if err := membk.Unlink(name); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if err := membk.Unlink(name); err != nil {
		t.Fatalf("second Unlink: %v", err)
	}
}
