// Copyright 2026 the CGrpFS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgroup

import (
	"strconv"
	"strings"
	"syscall"
)

const (
	nameProcs           = "cgroup.procs"
	nameEvents          = "cgroup.events"
	nameReleaseAgent    = "release_agent"
	nameNotifyOnRelease = "notify_on_release"
	nameMetaRoot        = "cgroup.meta"
	namePidCgroupFile   = "cgroup"
)

// cgDirFileSpec describes one of the four fixed pseudo-files every CgDir
// carries.
type cgDirFileSpec struct {
	name string
	kind Kind
}

var cgDirFiles = []cgDirFileSpec{
	{nameEvents, KindEventsFile},
	{nameProcs, KindProcsFile},
	{nameReleaseAgent, KindReleaseAgentFile},
	{nameNotifyOnRelease, KindNotifyOnReleaseFile},
}

// populateCgDirFiles adds the four fixed pseudo-files to a freshly
// created CgDir node.
func populateCgDirFiles(dir *Node) {
	for _, spec := range cgDirFiles {
		f := newNode(dir, spec.name, spec.kind)
		f.attr.Mode = syscall.S_IFREG | 0644
		dir.addChild(f)
	}
}

// splitPath turns an absolute, possibly slash-doubled path into its
// non-empty segments. "/" and "" both yield no segments (the root).
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LookupChild resolves a single path segment relative to parent,
// including cgroup.meta's on-demand PidDir synthesis. It is the
// primitive every other tree operation builds on. It takes no lock: the
// caller must hold the Manager's mutex. Callers outside this package
// (the filesystem-host adapter) use NodeLookup instead.
func (m *Manager) LookupChild(parent *Node, name string) (*Node, *Error) {
	if child := parent.childByName(name); child != nil {
		return child, nil
	}
	if parent.kind == KindPidRootDir {
		return m.synthPidDir(parent, name)
	}
	return nil, newErr(ErrNotFound, "no such entry: "+name)
}

// NodeLookup is LookupChild's locking counterpart, for callers (the
// filesystem-host adapter) outside this package that do not hold the
// Manager's lock themselves.
func (m *Manager) NodeLookup(parent *Node, name string) (*Node, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LookupChild(parent, name)
}

// synthPidDir creates (or returns the already-synthesised) PidDir for
// the pid named by segment, attaching it to the root CgDir if it is not
// already tracked. Idempotent: a second lookup of the same pid returns
// the same Node.
func (m *Manager) synthPidDir(metaRoot *Node, segment string) (*Node, *Error) {
	pid, ok := parsePidSegment(segment)
	if !ok {
		return nil, newErr(ErrNotFound, "not a pid: "+segment)
	}

	if _, tracked := m.idx.get(pid); !tracked {
		if err := m.attachLocked(m.root, pid); err != nil {
			if err.Kind == ErrNoSuchProcess {
				return nil, newErr(ErrNotFound, "pid not found: "+segment)
			}
			return nil, err
		}
	}

	dir := newNode(metaRoot, strconv.FormatInt(int64(pid), 10), KindPidDir)
	dir.attr.Mode = syscall.S_IFDIR | 0755
	dir.pid = pid

	cg := newNode(dir, namePidCgroupFile, KindPidCgroupFile)
	cg.attr.Mode = syscall.S_IFREG | 0644
	dir.addChild(cg)

	metaRoot.addChild(dir)
	return dir, nil
}

// parsePidSegment accepts a segment iff it is one or more decimal
// digits and nothing else: no leading '+', no whitespace, no empty
// string. This is stricter than a strtol-based parse, which would also
// accept a leading '+' or trailing garbage.
func parsePidSegment(s string) (int32, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(v), true
}

// Lookup resolves an absolute, slash-separated path from the root.
func (m *Manager) Lookup(path string) (*Node, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookupLocked(path)
}

func (m *Manager) lookupLocked(path string) (*Node, *Error) {
	node := m.root
	for _, seg := range splitPath(path) {
		child, err := m.LookupChild(node, seg)
		if err != nil {
			return nil, err
		}
		node = child
	}
	return node, nil
}

// lookupParentLocked resolves the parent directory of path's final
// component, without requiring the final component itself to exist.
// Strictly: every component up to (but not including) the last must
// resolve, or NotFound is returned.
func (m *Manager) lookupParentLocked(path string) (*Node, *Error) {
	segs := splitPath(path)
	node := m.root
	if len(segs) == 0 {
		return node, nil
	}
	for _, seg := range segs[:len(segs)-1] {
		child, err := m.LookupChild(node, seg)
		if err != nil {
			return nil, err
		}
		node = child
	}
	return node, nil
}

// GetAttr returns the Node's attributes.
func (m *Manager) GetAttr(path string) (Attr, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookupLocked(path)
	if err != nil {
		return Attr{}, err
	}
	return n.attr, nil
}

// NodeGetAttr is GetAttr's node-reference variant.
func (m *Manager) NodeGetAttr(n *Node) Attr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return n.attr
}

// NoChange is the sentinel uid/gid value meaning "leave this field
// alone", mirroring chown(2)'s -1 convention. Filesystem hosts pass it
// for whichever of uid/gid a setattr request did not touch.
const NoChange = ^uint32(0)

const noChange = NoChange

// Chmod mutates the low 12 bits of a Node's mode.
func (m *Manager) Chmod(path string, mode uint32) *Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookupLocked(path)
	if err != nil {
		return err
	}
	m.chmodNode(n, mode)
	return nil
}

// NodeChmod is Chmod's node-reference variant.
func (m *Manager) NodeChmod(n *Node, mode uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chmodNode(n, mode)
}

func (m *Manager) chmodNode(n *Node, mode uint32) {
	n.attr.Mode = (n.attr.Mode &^ 07777) | (mode & 07777)
}

// Chown mutates a Node's owner uid/gid; noChange in either leaves that
// field alone.
func (m *Manager) Chown(path string, uid, gid uint32) *Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookupLocked(path)
	if err != nil {
		return err
	}
	m.chownNode(n, uid, gid)
	return nil
}

// NodeChown is Chown's node-reference variant.
func (m *Manager) NodeChown(n *Node, uid, gid uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chownNode(n, uid, gid)
}

func (m *Manager) chownNode(n *Node, uid, gid uint32) {
	if uid != noChange {
		n.attr.Uid = uid
	}
	if gid != noChange {
		n.attr.Gid = gid
	}
}

// Mkdir creates a new CgDir at path. The full path must not already
// resolve; the parent must resolve and be a CgDir.
func (m *Manager) Mkdir(path string, mode, uid, gid uint32) (*Node, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.lookupLocked(path); err == nil {
		return nil, newErr(ErrAlreadyExists, path)
	}
	parent, err := m.lookupParentLocked(path)
	if err != nil {
		return nil, err
	}
	segs := splitPath(path)
	if len(segs) == 0 {
		return nil, newErr(ErrAlreadyExists, "root always exists")
	}
	name := segs[len(segs)-1]
	return m.mkdirChild(parent, name, mode, uid, gid)
}

// NodeMkdir is Mkdir's node-reference variant, used directly by the
// filesystem-host adapter, which already holds the parent *Node instead
// of a string path. It takes the Manager's lock itself.
func (m *Manager) NodeMkdir(parent *Node, name string, mode, uid, gid uint32) (*Node, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mkdirChild(parent, name, mode, uid, gid)
}

func (m *Manager) mkdirChild(parent *Node, name string, mode, uid, gid uint32) (*Node, *Error) {
	if parent.kind != KindCgDir {
		return nil, newErr(ErrNotSupported, "parent is not a cgroup directory")
	}
	if parent.childByName(name) != nil {
		return nil, newErr(ErrAlreadyExists, name)
	}

	dir := newNode(parent, name, KindCgDir)
	dir.attr.Mode = syscall.S_IFDIR | (mode & 07777)
	dir.attr.Uid = uid
	dir.attr.Gid = gid
	populateCgDirFiles(dir)

	parent.addChild(dir)
	return dir, nil
}

// Rmdir removes the CgDir at path via the two-phase protocol (see
// twophase.go). The target must be a CgDir and not the root.
func (m *Manager) Rmdir(path string) *Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookupLocked(path)
	if err != nil {
		return err
	}
	return m.rmdirNode(n)
}

// NodeRmdir is Rmdir's node-reference variant; it takes the Manager's
// lock itself. Unlike ordinary filesystem rmdir, n need not be empty:
// any subdirectories are removed recursively and every attached process
// (n's own and any bubbled up from its children) migrates to n's
// parent, so removing a directory never silently drops membership.
func (m *Manager) NodeRmdir(n *Node) *Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rmdirNode(n)
}

func (m *Manager) rmdirNode(n *Node) *Error {
	if n.kind != KindCgDir || n == m.root {
		return newErr(ErrNotSupported, "not a removable cgroup directory")
	}
	m.removeLocked(n)
	return nil
}

// Rename moves old to new. Only supported when old and new share a
// parent directory and the target is a CgDir.
func (m *Manager) Rename(oldPath, newPath string) *Error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, err := m.lookupLocked(oldPath)
	if err != nil {
		return err
	}
	newParent, err := m.lookupParentLocked(newPath)
	if err != nil {
		return err
	}
	if old.parent != newParent {
		return newErr(ErrNotSupported, "cross-directory rename")
	}
	segs := splitPath(newPath)
	if len(segs) == 0 {
		return newErr(ErrNotSupported, "cannot rename onto root")
	}
	return m.renameNode(old, segs[len(segs)-1])
}

// NodeRename is Rename's node-reference variant; it takes the
// Manager's lock itself. It always renames within n's existing parent;
// cross-directory renames are rejected the same way Rename rejects
// them.
func (m *Manager) NodeRename(n *Node, newName string) *Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renameNode(n, newName)
}

func (m *Manager) renameNode(n *Node, newName string) *Error {
	if n.kind != KindCgDir {
		return newErr(ErrNotSupported, "only cgroup directories may be renamed")
	}
	n.name = newName
	return nil
}

// Readdir lists path's entries: ".", "..", then each child.
func (m *Manager) Readdir(path string) ([]DirEntry, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookupLocked(path)
	if err != nil {
		return nil, err
	}
	return m.readdirNode(n), nil
}

// DirEntry is one entry in a Readdir result.
type DirEntry struct {
	Name string
	Kind Kind
	Attr Attr
}

// NodeReaddir is Readdir's node-reference variant; it takes the
// Manager's lock itself. For PidRootDir, no synthesis is performed:
// only pids already looked up (and so already materialised as
// children) are listed.
func (m *Manager) NodeReaddir(n *Node) []DirEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readdirNode(n)
}

func (m *Manager) readdirNode(n *Node) []DirEntry {
	out := make([]DirEntry, 0, len(n.children)+2)
	out = append(out, DirEntry{Name: ".", Kind: n.kind, Attr: n.attr})
	if n.parent != nil {
		out = append(out, DirEntry{Name: "..", Kind: n.parent.kind, Attr: n.parent.attr})
	} else {
		out = append(out, DirEntry{Name: "..", Kind: n.kind, Attr: n.attr})
	}
	for _, c := range n.children {
		out = append(out, DirEntry{Name: c.name, Kind: c.kind, Attr: c.attr})
	}
	return out
}
