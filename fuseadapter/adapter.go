// Copyright 2026 the CGrpFS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fuseadapter binds a *cgroup.Manager to a real FUSE mount
// through github.com/hanwen/go-fuse/v2/fs. It is the single-phase
// host: go-fuse's own lookup-count bookkeeping collapses the inactive
// and reclaim signals into one NodeOnForgetter callback, which this
// package treats as a combined Inactive+Reclaim (see cgroup/twophase.go
// for the two-phase alternative exercised by fuseadapter/twophase).
package fuseadapter

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/initware/cgrpfs/cgroup"
)

// Node is the fs.InodeEmbedder for every entry in the cgroup tree,
// directories and pseudo-files alike, mirroring loopbackNode's
// single-struct-dispatches-on-kind shape.
type Node struct {
	fs.Inode

	mgr *cgroup.Manager
	cg  *cgroup.Node
}

var (
	_ fs.NodeLookuper    = (*Node)(nil)
	_ fs.NodeGetattrer   = (*Node)(nil)
	_ fs.NodeSetattrer   = (*Node)(nil)
	_ fs.NodeMkdirer     = (*Node)(nil)
	_ fs.NodeRmdirer     = (*Node)(nil)
	_ fs.NodeRenamer     = (*Node)(nil)
	_ fs.NodeOpendirer   = (*Node)(nil)
	_ fs.NodeReaddirer   = (*Node)(nil)
	_ fs.NodeOpener      = (*Node)(nil)
	_ fs.NodeReader      = (*Node)(nil)
	_ fs.NodeWriter      = (*Node)(nil)
	_ fs.NodeOnForgetter = (*Node)(nil)
)

// NewRoot returns the InodeEmbedder for mgr's root, ready to pass to
// fs.Mount.
func NewRoot(mgr *cgroup.Manager) fs.InodeEmbedder {
	return &Node{mgr: mgr, cg: mgr.Root()}
}

func (n *Node) wrap(child *cgroup.Node) *Node {
	return &Node{mgr: n.mgr, cg: child}
}

func stableAttr(cg *cgroup.Node) fs.StableAttr {
	return fs.StableAttr{Mode: cg.Attr().Mode, Ino: cg.Ino()}
}

func attrFromCg(a cgroup.Attr) fuse.Attr {
	var out fuse.Attr
	out.Mode = a.Mode
	out.Uid = a.Uid
	out.Gid = a.Gid
	out.SetTimes(&a.Atime, &a.Mtime, &a.Ctime)
	if a.Mode&syscall.S_IFDIR != 0 {
		out.Nlink = 2
	} else {
		out.Nlink = 1
	}
	return out
}

// callerIDs returns the uid/gid of the process on the other end of
// ctx, falling back to 0/0 when the request carries none (as happens
// in tests that call Node methods directly without a live kernel).
func callerIDs(ctx context.Context) (uid, gid uint32) {
	caller, ok := fuse.FromContext(ctx)
	if !ok {
		return 0, 0
	}
	return caller.Uid, caller.Gid
}

func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child, err := n.mgr.NodeLookup(n.cg, name)
	if err != nil {
		return nil, err.Errno()
	}
	n.mgr.Access(child)
	out.Attr = attrFromCg(n.mgr.NodeGetAttr(child))
	return n.NewInode(ctx, n.wrap(child), stableAttr(child)), 0
}

func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Attr = attrFromCg(n.mgr.NodeGetAttr(n.cg))
	return 0
}

func (n *Node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if mode, ok := in.GetMode(); ok {
		n.mgr.NodeChmod(n.cg, mode)
	}
	uid, uok := in.GetUID()
	gid, gok := in.GetGID()
	if uok || gok {
		u, g := cgroup.NoChange, cgroup.NoChange
		if uok {
			u = uid
		}
		if gok {
			g = gid
		}
		n.mgr.NodeChown(n.cg, u, g)
	}
	out.Attr = attrFromCg(n.mgr.NodeGetAttr(n.cg))
	return 0
}

func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	uid, gid := callerIDs(ctx)
	child, err := n.mgr.NodeMkdir(n.cg, name, mode, uid, gid)
	if err != nil {
		return nil, err.Errno()
	}
	n.mgr.Access(child)
	out.Attr = attrFromCg(n.mgr.NodeGetAttr(child))
	return n.NewInode(ctx, n.wrap(child), stableAttr(child)), 0
}

func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	child, lerr := n.mgr.NodeLookup(n.cg, name)
	if lerr != nil {
		return lerr.Errno()
	}
	if err := n.mgr.NodeRmdir(child); err != nil {
		return err.Errno()
	}
	return 0
}

func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	np, ok := newParent.(*Node)
	if !ok || np.cg != n.cg {
		return syscall.ENOTSUP
	}
	child, lerr := n.mgr.NodeLookup(n.cg, name)
	if lerr != nil {
		return lerr.Errno()
	}
	if err := n.mgr.NodeRename(child, newName); err != nil {
		return err.Errno()
	}
	return 0
}

func (n *Node) Opendir(ctx context.Context) syscall.Errno { return 0 }

func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries := n.mgr.NodeReaddir(n.cg)
	list := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		list = append(list, fuse.DirEntry{Name: e.Name, Mode: e.Attr.Mode})
	}
	return fs.NewListDirStream(list), 0
}

// fileHandle carries the byte-string snapshot captured at Open time.
// Mirroring the original filedesc->buf, content served by Read never
// changes for the lifetime of the handle, even if the owning Node is
// rmdir'd or its live content changes in the meantime.
type fileHandle struct {
	data []byte
}

func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	data, err := n.mgr.NodeOpen(n.cg)
	if err != nil {
		return nil, 0, err.Errno()
	}
	return &fileHandle{data: data}, fuse.FOPEN_DIRECT_IO, 0
}

func (n *Node) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	h, ok := f.(*fileHandle)
	if !ok {
		return nil, syscall.EBADF
	}
	data := h.data
	if off >= int64(len(data)) {
		return fuse.ReadResultData(nil), 0
	}
	end := int(off) + len(dest)
	if end > len(data) {
		end = len(data)
	}
	return fuse.ReadResultData(data[off:end]), 0
}

func (n *Node) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	if err := n.mgr.WriteFile(n.cg, data); err != nil {
		return 0, err.Errno()
	}
	return uint32(len(data)), 0
}

// OnForget is go-fuse's single combined inactive+reclaim signal: once
// the kernel drops its last reference to this Node, release ours.
func (n *Node) OnForget() {
	n.mgr.Reclaim(n.cg)
}
