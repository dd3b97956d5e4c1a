// Copyright 2026 the CGrpFS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cgroup implements the in-memory cgroup-hierarchy manager: the
// node tree, the process index, the kernel-event-driven process watcher,
// and the notify socket. It has no dependency on any particular
// filesystem-host binding; see fuseadapter for the go-fuse wiring.
package cgroup

import (
	"sync/atomic"
	"time"
)

// Kind identifies what a Node represents in the tree.
type Kind int

const (
	// KindCgDir is a control-group directory. Carries the four fixed
	// pseudo-file children.
	KindCgDir Kind = iota
	// KindProcsFile is a cgroup.procs pseudo-file.
	KindProcsFile
	// KindEventsFile is a cgroup.events pseudo-file. Reserved; never
	// populated.
	KindEventsFile
	// KindReleaseAgentFile is a release_agent pseudo-file.
	KindReleaseAgentFile
	// KindNotifyOnReleaseFile is a notify_on_release pseudo-file.
	KindNotifyOnReleaseFile
	// KindPidRootDir is the single cgroup.meta directory, child of root.
	KindPidRootDir
	// KindPidDir is a synthesised per-pid directory under cgroup.meta.
	KindPidDir
	// KindPidCgroupFile is the cgroup file inside a PidDir.
	KindPidCgroupFile
)

func (k Kind) String() string {
	switch k {
	case KindCgDir:
		return "CgDir"
	case KindProcsFile:
		return "ProcsFile"
	case KindEventsFile:
		return "EventsFile"
	case KindReleaseAgentFile:
		return "ReleaseAgentFile"
	case KindNotifyOnReleaseFile:
		return "NotifyOnReleaseFile"
	case KindPidRootDir:
		return "PidRootDir"
	case KindPidDir:
		return "PidDir"
	case KindPidCgroupFile:
		return "PidCgroupFile"
	default:
		return "Unknown"
	}
}

// IsDir reports whether nodes of this kind may have children.
func (k Kind) IsDir() bool {
	switch k {
	case KindCgDir, KindPidRootDir, KindPidDir:
		return true
	default:
		return false
	}
}

// Attr mirrors the POSIX stat(2) fields the filesystem host cares about.
type Attr struct {
	Mode  uint32
	Uid   uint32
	Gid   uint32
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

var inoCounter uint64

func nextIno() uint64 {
	return atomic.AddUint64(&inoCounter, 1)
}

// Node is a single entry in the cgroup tree. All field access happens
// under the owning Manager's mutex; Node itself does no locking.
type Node struct {
	kind   Kind
	name   string
	parent *Node
	// children is kept in insertion order; readdir iterates it directly.
	children []*Node
	attr     Attr
	ino      uint64

	// pid is meaningful only for KindPidDir.
	pid int32

	// notifyOnRelease and releaseAgent are meaningful only for KindCgDir.
	notifyOnRelease bool
	releaseAgent    []byte

	// accessed counts outstanding filesystem-host references (lookups,
	// mkdir responses) not yet matched by a reclaim. See Manager.Reclaim.
	accessed int
	// toDelete marks a Node that has been unlinked from its parent but
	// is kept alive because the host still holds a reference to it.
	toDelete bool
}

// Kind returns the Node's kind.
func (n *Node) Kind() Kind { return n.kind }

// Name returns the Node's name relative to its parent. The root Node's
// name is "".
func (n *Node) Name() string { return n.name }

// Parent returns the Node's parent, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Ino returns the Node's stable identifier, suitable for use as a
// filesystem-host inode number. It is assigned once, at creation, and
// never reused while the Node is reachable (directly or via to_delete).
func (n *Node) Ino() uint64 { return n.ino }

// Attr returns a copy of the Node's attributes.
func (n *Node) Attr() Attr { return n.attr }

// Pid returns the process-id a PidDir Node represents. Meaningless for
// other kinds.
func (n *Node) Pid() int32 { return n.pid }

// Children returns the Node's children in insertion order. The caller
// must not mutate the returned slice.
func (n *Node) Children() []*Node { return n.children }

// ToDelete reports whether the Node has been unlinked and is awaiting
// reclaim.
func (n *Node) ToDelete() bool { return n.toDelete }

// Accessed returns the Node's outstanding-host-reference count.
func (n *Node) Accessed() int { return n.accessed }

func newNode(parent *Node, name string, kind Kind) *Node {
	n := &Node{
		kind:   kind,
		name:   name,
		parent: parent,
		ino:    nextIno(),
	}
	if parent != nil {
		n.attr.Uid = parent.attr.Uid
		n.attr.Gid = parent.attr.Gid
		now := parent.attr.Mtime
		n.attr.Atime, n.attr.Mtime, n.attr.Ctime = now, now, now
	}
	return n
}

func (n *Node) childByName(name string) *Node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (n *Node) addChild(c *Node) {
	n.children = append(n.children, c)
}

// removeChild unlinks c from n's children, if present.
func (n *Node) removeChild(c *Node) {
	for i, ch := range n.children {
		if ch == c {
			n.children = append(n.children[:i], n.children[i+1:]...)
			return
		}
	}
}
