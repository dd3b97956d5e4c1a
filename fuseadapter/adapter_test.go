// Copyright 2026 the CGrpFS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fuseadapter

import (
	"context"
	"io"
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"

	"github.com/initware/cgrpfs/cgroup"
)

func newTestManager(t *testing.T) *cgroup.Manager {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	mgr, err := cgroup.NewManager(cgroup.Options{
		NotifySocketPath: t.TempDir() + "/notify.sock",
		Logger:           log,
	})
	if err != nil {
		t.Skipf("cgroup.NewManager unavailable on this platform: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestAttrFromCgMapsDirModeToNlinkTwo(t *testing.T) {
	a := cgroup.Attr{Mode: syscall.S_IFDIR | 0755}
	out := attrFromCg(a)
	if out.Nlink != 2 {
		t.Errorf("Nlink = %d, want 2 for a directory", out.Nlink)
	}
	if out.Mode != a.Mode {
		t.Errorf("Mode = %o, want %o", out.Mode, a.Mode)
	}
}

func TestAttrFromCgMapsFileModeToNlinkOne(t *testing.T) {
	a := cgroup.Attr{Mode: syscall.S_IFREG | 0644}
	out := attrFromCg(a)
	if out.Nlink != 1 {
		t.Errorf("Nlink = %d, want 1 for a regular file", out.Nlink)
	}
}

func TestCallerIDsWithoutContextDefaultsToZero(t *testing.T) {
	uid, gid := callerIDs(context.Background())
	if uid != 0 || gid != 0 {
		t.Errorf("callerIDs() = %d, %d, want 0, 0 for a context with no caller", uid, gid)
	}
}

func TestGetattrReflectsManagerState(t *testing.T) {
	mgr := newTestManager(t)
	root := &Node{mgr: mgr, cg: mgr.Root()}

	mgr.NodeChmod(mgr.Root(), 0700)

	var out fuse.AttrOut
	if errno := root.Getattr(context.Background(), nil, &out); errno != 0 {
		t.Fatalf("Getattr: errno %v", errno)
	}
	if out.Attr.Mode&07777 != 0700 {
		t.Errorf("mode = %o, want 0700", out.Attr.Mode&07777)
	}
}

func TestSetattrAppliesModeAndOwner(t *testing.T) {
	mgr := newTestManager(t)
	child, err := mgr.NodeMkdir(mgr.Root(), "web", 0755, 0, 0)
	if err != nil {
		t.Fatalf("NodeMkdir: %v", err)
	}
	n := &Node{mgr: mgr, cg: child}

	var in fuse.SetAttrIn
	in.Valid = fuse.FATTR_MODE | fuse.FATTR_UID
	in.Mode = 0700
	in.Uid = 99

	var out fuse.AttrOut
	if errno := n.Setattr(context.Background(), nil, &in, &out); errno != 0 {
		t.Fatalf("Setattr: errno %v", errno)
	}
	if out.Attr.Mode&07777 != 0700 {
		t.Errorf("mode = %o, want 0700", out.Attr.Mode&07777)
	}
	if out.Attr.Uid != 99 {
		t.Errorf("uid = %d, want 99", out.Attr.Uid)
	}
}

func TestRmdirRejectsNonexistentChild(t *testing.T) {
	mgr := newTestManager(t)
	root := &Node{mgr: mgr, cg: mgr.Root()}

	if errno := root.Rmdir(context.Background(), "nope"); errno != syscall.ENOENT {
		t.Errorf("Rmdir(nonexistent) = %v, want ENOENT", errno)
	}
}

func TestRmdirRecursivelyRemovesNonEmptyDirectory(t *testing.T) {
	mgr := newTestManager(t)
	if _, err := mgr.NodeMkdir(mgr.Root(), "web", 0755, 0, 0); err != nil {
		t.Fatalf("NodeMkdir web: %v", err)
	}
	web, err := mgr.NodeLookup(mgr.Root(), "web")
	if err != nil {
		t.Fatalf("NodeLookup: %v", err)
	}
	if _, err := mgr.NodeMkdir(web, "api", 0755, 0, 0); err != nil {
		t.Fatalf("NodeMkdir api: %v", err)
	}

	root := &Node{mgr: mgr, cg: mgr.Root()}
	if errno := root.Rmdir(context.Background(), "web"); errno != 0 {
		t.Errorf("Rmdir(non-empty) = %v, want success", errno)
	}
	if _, err := mgr.NodeLookup(mgr.Root(), "web"); err == nil {
		t.Errorf("web still resolves after recursive Rmdir")
	}
}

func TestReadWriteProcsFile(t *testing.T) {
	mgr := newTestManager(t)
	dir, err := mgr.NodeMkdir(mgr.Root(), "web", 0755, 0, 0)
	if err != nil {
		t.Fatalf("NodeMkdir: %v", err)
	}
	procs, err := mgr.NodeLookup(dir, "cgroup.procs")
	if err != nil {
		t.Fatalf("NodeLookup cgroup.procs: %v", err)
	}
	n := &Node{mgr: mgr, cg: procs}

	written, errno := n.Write(context.Background(), nil, []byte("123"), 0)
	if errno != 0 {
		t.Fatalf("Write: errno %v", errno)
	}
	if written != 3 {
		t.Errorf("Write returned %d, want 3", written)
	}

	handle, _, errno := n.Open(context.Background(), 0)
	if errno != 0 {
		t.Fatalf("Open: errno %v", errno)
	}

	dest := make([]byte, 64)
	res, errno := n.Read(context.Background(), handle, dest, 0)
	if errno != 0 {
		t.Fatalf("Read: errno %v", errno)
	}
	buf, status := res.Bytes(dest)
	if status != fuse.OK {
		t.Fatalf("ReadResult.Bytes: status %v", status)
	}
	if string(buf) != "123\n" {
		t.Errorf("Read content = %q, want %q", buf, "123\n")
	}
}

func TestReadHonorsOffset(t *testing.T) {
	mgr := newTestManager(t)
	dir, err := mgr.NodeMkdir(mgr.Root(), "web", 0755, 0, 0)
	if err != nil {
		t.Fatalf("NodeMkdir: %v", err)
	}
	procs, err := mgr.NodeLookup(dir, "cgroup.procs")
	if err != nil {
		t.Fatalf("NodeLookup cgroup.procs: %v", err)
	}
	if werr := mgr.WriteFile(procs, []byte("4242")); werr != nil {
		t.Fatalf("WriteFile: %v", werr)
	}
	n := &Node{mgr: mgr, cg: procs}

	handle, _, errno := n.Open(context.Background(), 0)
	if errno != 0 {
		t.Fatalf("Open: errno %v", errno)
	}

	dest := make([]byte, 64)
	res, errno := n.Read(context.Background(), handle, dest, 2)
	if errno != 0 {
		t.Fatalf("Read: errno %v", errno)
	}
	buf, status := res.Bytes(dest)
	if status != fuse.OK {
		t.Fatalf("ReadResult.Bytes: status %v", status)
	}
	if string(buf) != "42\n" {
		t.Errorf("Read at offset 2 = %q, want %q", buf, "42\n")
	}
}

func TestOpenSnapshotSurvivesRmdirUntilReclaim(t *testing.T) {
	mgr := newTestManager(t)
	dir, err := mgr.NodeMkdir(mgr.Root(), "a", 0755, 0, 0)
	if err != nil {
		t.Fatalf("NodeMkdir: %v", err)
	}
	procs, err := mgr.NodeLookup(dir, "cgroup.procs")
	if err != nil {
		t.Fatalf("NodeLookup cgroup.procs: %v", err)
	}
	if werr := mgr.WriteFile(procs, []byte("4321")); werr != nil {
		t.Fatalf("WriteFile: %v", werr)
	}

	n := &Node{mgr: mgr, cg: procs}
	handle, _, errno := n.Open(context.Background(), 0)
	if errno != 0 {
		t.Fatalf("Open: errno %v", errno)
	}

	mgr.Access(dir)
	root := &Node{mgr: mgr, cg: mgr.Root()}
	if errno := root.Rmdir(context.Background(), "a"); errno != 0 {
		t.Fatalf("Rmdir: errno %v", errno)
	}

	dest := make([]byte, 64)
	res, errno := n.Read(context.Background(), handle, dest, 0)
	if errno != 0 {
		t.Fatalf("Read after Rmdir: errno %v", errno)
	}
	buf, status := res.Bytes(dest)
	if status != fuse.OK {
		t.Fatalf("ReadResult.Bytes: status %v", status)
	}
	if string(buf) != "4321\n" {
		t.Errorf("Read after Rmdir = %q, want snapshot %q", buf, "4321\n")
	}
}

func TestOpenNonContentFileReturnsNotSupported(t *testing.T) {
	mgr := newTestManager(t)
	dir, err := mgr.NodeMkdir(mgr.Root(), "web", 0755, 0, 0)
	if err != nil {
		t.Fatalf("NodeMkdir: %v", err)
	}
	for _, name := range []string{"cgroup.events", "release_agent", "notify_on_release"} {
		child, err := mgr.NodeLookup(dir, name)
		if err != nil {
			t.Fatalf("NodeLookup %s: %v", name, err)
		}
		n := &Node{mgr: mgr, cg: child}
		if _, _, errno := n.Open(context.Background(), 0); errno != syscall.ENOTSUP {
			t.Errorf("Open(%s) = %v, want ENOTSUP", name, errno)
		}
	}
}

func TestOnForgetReclaimsAccessedNode(t *testing.T) {
	mgr := newTestManager(t)
	child, err := mgr.NodeMkdir(mgr.Root(), "web", 0755, 0, 0)
	if err != nil {
		t.Fatalf("NodeMkdir: %v", err)
	}
	mgr.Access(child)

	if rerr := mgr.NodeRmdir(child); rerr != nil {
		t.Fatalf("NodeRmdir: %v", rerr)
	}
	if child.Parent() == nil {
		t.Fatalf("removed Node released before OnForget despite outstanding Access")
	}

	n := &Node{mgr: mgr, cg: child}
	n.OnForget()

	if child.Parent() != nil {
		t.Fatalf("Node still held after OnForget")
	}
}
