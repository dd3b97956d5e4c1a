// Copyright 2026 the CGrpFS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package twophase is a reference filesystem host exercising the
// genuine two-phase inactive/reclaim protocol (as puffs/macFUSE report
// it) against a *cgroup.Manager, without a real kernel. Production
// mounts go through fuseadapter instead, whose go-fuse binding only
// ever sees the collapsed single-phase OnForget signal; this package
// exists so that protocol is still driven end to end, by tests and by
// any future host binding a kernel that does separate the two calls.
package twophase

import "github.com/initware/cgrpfs/cgroup"

// Host drives cgroup.Manager's node-reference API the way a genuine
// two-phase vnode host would: Lookup takes a reference, Inactivate
// reports the vnode is no longer actively referenced, and Reclaim
// reports the kernel has recycled the vnode slot. A real host
// interleaves many of these concurrently across many vnodes; this one
// is deliberately sequential, since it exists to exercise the Manager
// side of the protocol rather than to model kernel vnode scheduling.
type Host struct {
	mgr *cgroup.Manager
}

// New returns a Host bound to mgr.
func New(mgr *cgroup.Manager) *Host {
	return &Host{mgr: mgr}
}

// Lookup resolves name under parent, taking out an Access reference on
// the result the way a successful kernel LOOKUP would.
func (h *Host) Lookup(parent *cgroup.Node, name string) (*cgroup.Node, *cgroup.Error) {
	child, err := h.mgr.NodeLookup(parent, name)
	if err != nil {
		return nil, err
	}
	h.mgr.Access(child)
	return child, nil
}

// Rmdir removes dir from the tree. The Node may still be reachable
// through an outstanding reference taken by a prior Lookup; it becomes
// collectable once Reclaim is called for it.
func (h *Host) Rmdir(dir *cgroup.Node) *cgroup.Error {
	return h.mgr.NodeRmdir(dir)
}

// Inactivate runs the first of the two lifecycle phases for node.
func (h *Host) Inactivate(node *cgroup.Node) {
	h.mgr.Inactive(node)
}

// Reclaim runs the second phase, releasing every reference taken on
// node by prior Lookups in one call, as a kernel reclaims a vnode once.
func (h *Host) Reclaim(node *cgroup.Node) {
	h.mgr.Reclaim(node)
}
