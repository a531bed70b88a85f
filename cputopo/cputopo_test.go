// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cputopo_test

import (
	"testing"

	"github.com/libjoin/libjoin/cputopo"
)

func TestInstanceNeverEmpty(t *testing.T) {
	topo := cputopo.Instance()
	if len(topo.Cores()) == 0 {
		t.Fatal("Cores(): got none, want at least one")
	}
	if len(topo.Nodes()) == 0 {
		t.Fatal("Nodes(): got none, want at least one")
	}
}

func TestInstanceIsCached(t *testing.T) {
	a := cputopo.Instance()
	b := cputopo.Instance()
	if a != b {
		t.Fatal("Instance(): got two distinct topologies, want the same cached value")
	}
}

func TestPrimaryThreadIsLowestID(t *testing.T) {
	topo := cputopo.Instance()
	for _, c := range topo.Cores() {
		want := c.Threads[0].ID
		for _, th := range c.Threads[1:] {
			if th.ID < want {
				want = th.ID
			}
		}
		if got := c.PrimaryThread(); got != want {
			t.Fatalf("PrimaryThread(): got %d, want %d (lowest logical id on core %d)", got, want, c.ID)
		}
	}
}

func TestNodesPartitionCores(t *testing.T) {
	topo := cputopo.Instance()
	seen := make(map[int]bool)
	for _, n := range topo.Nodes() {
		for _, id := range n.Cores {
			if seen[id] {
				t.Fatalf("core %d listed under more than one NUMA node", id)
			}
			seen[id] = true
		}
	}
	for _, c := range topo.Cores() {
		if !seen[c.ID] {
			t.Fatalf("core %d not present in any NUMA node", c.ID)
		}
	}
}
