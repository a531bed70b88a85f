// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cputopo reads the process-wide CPU topology once, from sysfs,
// and exposes an immutable view of logical CPUs, physical cores, and NUMA
// nodes. It is the Go rendering of join::CpuTopology.
package cputopo

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// LogicalCpu is a single hardware thread.
type LogicalCpu struct {
	ID     int
	Core   int
	Socket int
	Numa   int
}

// PhysicalCore groups the logical CPUs (SMT siblings) of one physical core.
type PhysicalCore struct {
	ID      int
	Socket  int
	Numa    int
	Threads []LogicalCpu
}

// PrimaryThread returns the lowest-numbered hardware thread of the core,
// chosen to avoid SMT contention when pinning a single-threaded workload.
func (c PhysicalCore) PrimaryThread() int {
	if len(c.Threads) == 0 {
		return -1
	}
	return c.Threads[0].ID
}

// NumaNode groups the physical cores attached to one NUMA node.
type NumaNode struct {
	ID    int
	Cores []int
}

// Topology is the immutable, process-wide CPU layout.
type Topology struct {
	cores []PhysicalCore
	nodes []NumaNode
}

// Cores returns all physical cores, ordered by (socket, core id).
func (t *Topology) Cores() []PhysicalCore { return t.cores }

// Nodes returns all NUMA nodes, ordered by id.
func (t *Topology) Nodes() []NumaNode { return t.nodes }

// String renders a human-readable dump of the topology, for diagnostics.
// The original gates the equivalent (CpuTopology::dump) behind a DEBUG
// build macro; Go has no comparably lightweight convention, so this is
// unconditional but otherwise unused on any hot path.
func (t *Topology) String() string {
	var b strings.Builder
	for _, c := range t.cores {
		b.WriteString("core ")
		b.WriteString(strconv.Itoa(c.ID))
		b.WriteString(" socket=")
		b.WriteString(strconv.Itoa(c.Socket))
		b.WriteString(" numa=")
		b.WriteString(strconv.Itoa(c.Numa))
		b.WriteString(" threads=")
		for i, th := range c.Threads {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Itoa(th.ID))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

const sysCPUDir = "/sys/devices/system/cpu"

var cpuDirRe = regexp.MustCompile(`^cpu(\d+)$`)

var (
	once     sync.Once
	instance *Topology
)

// Instance returns the process-wide Topology, building it from sysfs on
// first call. Subsequent calls return the same cached value.
func Instance() *Topology {
	once.Do(func() {
		instance = detect()
	})
	return instance
}

func detect() *Topology {
	entries, err := os.ReadDir(sysCPUDir)
	if err != nil {
		// No sysfs (non-Linux, container without /sys): degrade to a
		// single logical CPU / single core / single NUMA node so callers
		// sizing pools never see an empty topology.
		return &Topology{
			cores: []PhysicalCore{{ID: 0, Socket: 0, Numa: 0, Threads: []LogicalCpu{{ID: 0, Core: 0, Socket: 0, Numa: 0}}}},
			nodes: []NumaNode{{ID: 0, Cores: []int{0}}},
		}
	}

	logical := make(map[int]LogicalCpu)
	for _, e := range entries {
		m := cpuDirRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		id, _ := strconv.Atoi(m[1])
		cpuPath := filepath.Join(sysCPUDir, e.Name())

		core := readInt(filepath.Join(cpuPath, "topology", "core_id"))
		if core < 0 {
			core = id
		}
		socket := readInt(filepath.Join(cpuPath, "topology", "physical_package_id"))
		if socket < 0 {
			socket = 0
		}
		numa := findNuma(cpuPath)

		logical[id] = LogicalCpu{ID: id, Core: core, Socket: socket, Numa: numa}
	}

	ids := make([]int, 0, len(logical))
	for id := range logical {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	type coreKey struct{ socket, core int }
	coreIdx := make(map[coreKey]int)
	var cores []PhysicalCore
	for _, id := range ids {
		lc := logical[id]
		key := coreKey{lc.Socket, lc.Core}
		idx, ok := coreIdx[key]
		if !ok {
			idx = len(cores)
			coreIdx[key] = idx
			cores = append(cores, PhysicalCore{ID: lc.Core, Socket: lc.Socket, Numa: lc.Numa})
		}
		cores[idx].Threads = append(cores[idx].Threads, lc)
	}
	sort.Slice(cores, func(i, j int) bool {
		if cores[i].Socket != cores[j].Socket {
			return cores[i].Socket < cores[j].Socket
		}
		return cores[i].ID < cores[j].ID
	})
	for i := range cores {
		sort.Slice(cores[i].Threads, func(a, b int) bool {
			return cores[i].Threads[a].ID < cores[i].Threads[b].ID
		})
	}

	nodeIdx := make(map[int]int)
	var nodes []NumaNode
	for _, c := range cores {
		idx, ok := nodeIdx[c.Numa]
		if !ok {
			idx = len(nodes)
			nodeIdx[c.Numa] = idx
			nodes = append(nodes, NumaNode{ID: c.Numa})
		}
		nodes[idx].Cores = append(nodes[idx].Cores, c.ID)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	if len(cores) == 0 {
		cores = []PhysicalCore{{ID: 0, Socket: 0, Numa: 0, Threads: []LogicalCpu{{ID: 0}}}}
		nodes = []NumaNode{{ID: 0, Cores: []int{0}}}
	}

	return &Topology{cores: cores, nodes: nodes}
}

func readInt(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return -1
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return -1
	}
	v, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
	if err != nil {
		return -1
	}
	return v
}

// findNuma resolves the NUMA node id for a /sys/devices/system/cpu/cpuX
// directory by locating its nodeN symlink/subdirectory. Missing NUMA
// information is treated as node 0, per spec.
func findNuma(cpuPath string) int {
	entries, err := os.ReadDir(cpuPath)
	if err != nil {
		return 0
	}
	nodeRe := regexp.MustCompile(`^node(\d+)$`)
	for _, e := range entries {
		m := nodeRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err == nil {
			return id
		}
	}
	return 0
}
