// Copyright 2026 the CGrpFS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgroup

// This file implements the inactive/reclaim lifecycle a CgDir goes
// through between Rmdir unlinking it from its parent and the Node
// actually becoming eligible for garbage collection. It is modelled
// after puffs/macFUSE's two-phase node_inactive/node_reclaim protocol:
// a removed Node may still be "active" (referenced by an open handle or
// a filesystem-host lookup the host has not yet forgotten), so it stays
// reachable, unlinked from its parent's children, with toDelete set,
// until the host reclaims it.
//
// Hosts that only report a single combined signal (go-fuse's
// NodeOnForgetter, for one) call Reclaim directly and never call
// Inactive; see fuseadapter. Hosts with a genuine two-phase protocol
// call Inactive first and Reclaim once the host itself decides to
// recycle its handle for the Node.

// Access records a new outstanding filesystem-host reference to n,
// taken out by a successful Lookup or Mkdir. Accesses are not matched
// one for one: a single later Reclaim releases all of them.
func (m *Manager) Access(n *Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.accessed++
}

// Inactive runs the first phase of removal: the Manager itself has no
// further use for n (it is unlinked from its tree), but the host may
// still hold references. Two-phase hosts call this once, before the
// eventual Reclaim. It is idempotent and safe to call on a Node that is
// not (yet) marked toDelete.
func (m *Manager) Inactive(n *Node) {
	// Nothing for this manager to do at the inactive phase beyond what
	// removeLocked already arranged (unlinking from the parent); the
	// phase exists so hosts with real two-phase semantics have
	// somewhere to route the first callback without forcing them to
	// fabricate a Reclaim they cannot yet honestly issue.
	_ = n
}

// Reclaim releases the host's last reference to n, however many Access
// calls preceded it. If n is marked toDelete it is finally detached
// from the tree structure (already unlinked from its parent's children,
// this clears n.parent so it becomes collectable); otherwise its access
// count is reset to zero.
func (m *Manager) Reclaim(n *Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reclaimLocked(n)
}

// reclaimLocked mirrors cgrpfs_node_reclaim: a real kernel calls reclaim
// exactly once per vnode lifetime, regardless of how many lookups came
// before it, so this is never a decrement. A toDelete node is freed
// unconditionally (its one and only reclaim is what releases it); a
// node that is not marked toDelete simply has its access count reset to
// zero, ready to accumulate again under future lookups.
func (m *Manager) reclaimLocked(n *Node) {
	if n.toDelete {
		n.parent = nil
		return
	}
	n.accessed = 0
}

// removeLocked implements Rmdir's recursive removal: n (already
// validated as a non-root CgDir) and every CgDir beneath it are
// unlinked, with each directory's own attached pids migrated to its
// immediate parent rather than dropped, so membership survives the
// directory's removal. Recursion is depth-first, children before
// parent, matching the original delnode: by the time n's own pids are
// migrated, they already include whatever bubbled up from its children
// during their own processing.
//
// A directory with no outstanding host reference (accessed == 0) is
// deleted immediately; one that is still referenced is left reachable
// with toDelete set; to_delete = true therefore always implies
// accessed > 0, and Reclaim is what finally frees it.
func (m *Manager) removeLocked(n *Node) {
	// Snapshot the child list first: each recursive removeLocked call
	// below unlinks its own node from n.children via removeChild, which
	// would otherwise shift elements underneath a live range over n.children.
	children := append([]*Node(nil), n.children...)
	for _, child := range children {
		if child.kind == KindCgDir {
			m.removeLocked(child)
		}
	}

	if n.parent != nil {
		n.parent.removeChild(n)
	}

	m.migrateLocked(n, n.parent)
	m.Inactive(n)

	if n.accessed == 0 {
		n.parent = nil
		return
	}
	n.toDelete = true
}
