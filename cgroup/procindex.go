// Copyright 2026 the CGrpFS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgroup

// pidEntry is one processIndex row. Kept in a slice (rather than only a
// map) so cgroup.procs can render pids in the order they were attached.
type pidEntry struct {
	pid  int32
	node *Node
}

// processIndex is the pid -> owning-CgDir map, in attach order. It
// holds no locks of its own; every access happens under the owning
// Manager's mutex, and the kernel-queue registration/broadcast side
// effects of attaching and detaching a pid live on Manager (see
// manager.go), not here.
type processIndex struct {
	entries []*pidEntry
	byPid   map[int32]*pidEntry
}

func newProcessIndex() *processIndex {
	return &processIndex{byPid: make(map[int32]*pidEntry)}
}

func (p *processIndex) get(pid int32) (*Node, bool) {
	e, ok := p.byPid[pid]
	if !ok {
		return nil, false
	}
	return e.node, true
}

// set inserts a new entry if pid is unseen, or updates the existing
// entry's node in place (preserving its original position) otherwise.
// Returns true if this created a new entry.
func (p *processIndex) set(pid int32, n *Node) bool {
	if e, ok := p.byPid[pid]; ok {
		e.node = n
		return false
	}
	e := &pidEntry{pid: pid, node: n}
	p.entries = append(p.entries, e)
	p.byPid[pid] = e
	return true
}

func (p *processIndex) delete(pid int32) {
	e, ok := p.byPid[pid]
	if !ok {
		return
	}
	delete(p.byPid, pid)
	for i, ent := range p.entries {
		if ent == e {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			break
		}
	}
}

// pidsIn returns the pids currently mapped to node, in attach order.
func (p *processIndex) pidsIn(node *Node) []int32 {
	var out []int32
	for _, e := range p.entries {
		if e.node == node {
			out = append(out, e.pid)
		}
	}
	return out
}

// migrate reassigns every entry pointing at from to to, preserving each
// entry's original attach-order position. If to is nil the entries are
// dropped from the index entirely (untracked) rather than reassigned;
// callers use that form when from has no parent to receive its pids.
// Returns the pids that were migrated or dropped, in attach order.
func (p *processIndex) migrate(from, to *Node) []int32 {
	var moved []int32
	if to != nil {
		for _, e := range p.entries {
			if e.node == from {
				e.node = to
				moved = append(moved, e.pid)
			}
		}
		return moved
	}
	kept := p.entries[:0]
	for _, e := range p.entries {
		if e.node == from {
			moved = append(moved, e.pid)
			delete(p.byPid, e.pid)
			continue
		}
		kept = append(kept, e)
	}
	p.entries = kept
	return moved
}

