// Copyright 2026 the CGrpFS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgroup

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// noExitStatus is passed to detachLocked when a pid is being untracked
// for a reason other than an observed kernel exit event, so no
// ExitRecord is broadcast.
const noExitStatus = -1

// Options configures a new Manager.
type Options struct {
	// NotifySocketPath is where the Notify Server binds its listening
	// socket. Defaults to DefaultNotifySocketPath.
	NotifySocketPath string
	// RootUID/RootGID/RootMode set the root CgDir's initial attributes.
	RootUID  uint32
	RootGID  uint32
	RootMode uint32
	// Logger receives structured diagnostics. Defaults to
	// logrus.StandardLogger().
	Logger *logrus.Logger
}

// Manager is the in-memory cgroup hierarchy: the node tree, the process
// index, the background watcher, and the notify server, all serialized
// behind a single mutex per the coarse-grained concurrency model every
// method here assumes.
type Manager struct {
	mu sync.Mutex

	root     *Node
	metaRoot *Node
	idx      *processIndex
	watcher  *watcher
	notify   *notifyServer

	log *logrus.Entry
}

// NewManager builds the root of the tree, starts the notify server and
// the background watcher, and returns a ready-to-use Manager. On any
// failure to stand up the notify socket or the kernel event queue, the
// returned error wraps the underlying *Error so callers can still
// inspect its Kind.
func NewManager(opts Options) (*Manager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logger.WithField("component", "cgroup.Manager")

	mode := opts.RootMode
	if mode == 0 {
		mode = 0755
	}

	root := newNode(nil, "", KindCgDir)
	root.attr.Mode = syscall.S_IFDIR | (mode & 07777)
	root.attr.Uid = opts.RootUID
	root.attr.Gid = opts.RootGID
	populateCgDirFiles(root)

	metaRoot := newNode(root, nameMetaRoot, KindPidRootDir)
	metaRoot.attr.Mode = syscall.S_IFDIR | 0555
	root.addChild(metaRoot)

	m := &Manager{
		root:     root,
		metaRoot: metaRoot,
		idx:      newProcessIndex(),
		log:      log,
	}

	sockPath := opts.NotifySocketPath
	if sockPath == "" {
		sockPath = DefaultNotifySocketPath
	}
	m.notify = newNotifyServer(newSocketBackend(), log.WithField("component", "notify"))
	if err := m.notify.listen(sockPath); err != nil {
		return nil, wrapf(asError(err), "listen on notify socket %s", sockPath)
	}

	m.watcher = newWatcher(m, newKqueueBackend(), log.WithField("component", "watcher"))
	if err := m.watcher.start(m.notify.fd()); err != nil {
		m.notify.close()
		return nil, wrapf(asError(err), "start process watcher")
	}

	return m, nil
}

// asError adapts an arbitrary error from a backend (which may return a
// raw syscall.Errno, not a *cgroup.Error) into this package's Error
// type, so wrapf always has a Kind to preserve.
func asError(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return newErr(ErrNotSupported, err.Error())
}

// Root returns the tree's root Node.
func (m *Manager) Root() *Node { return m.root }

// MetaRoot returns the cgroup.meta Node.
func (m *Manager) MetaRoot() *Node { return m.metaRoot }

// Close stops the watcher and the notify server concurrently, since
// neither shutdown path depends on the other. The tree itself is
// simply abandoned to the garbage collector.
func (m *Manager) Close() error {
	var g errgroup.Group
	g.Go(m.watcher.Close)
	g.Go(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.notify.close()
	})
	return g.Wait()
}

// attachLocked assigns pid to the cgroup directory dir, registering it
// with the kernel event watcher if this is the first time the pid has
// been seen. Called both for process forks (dir is the parent's
// existing cgroup) and for explicit cgroup.procs writes and
// cgroup.meta lookups (dir is whatever the caller names).
func (m *Manager) attachLocked(dir *Node, pid int32) *Error {
	isNew := m.idx.set(pid, dir)
	if !isNew {
		return nil
	}
	if err := m.watcher.registerProcess(pid); err != nil {
		m.idx.delete(pid)
		return asError(err)
	}
	return nil
}

// detachLocked removes pid from the process index. If status is not
// noExitStatus, an ExitRecord is broadcast to every Event Subscriber.
// untrack additionally asks the kernel event queue to stop watching
// pid; this is skipped on the ordinary exit path because the kernel has
// already delivered the terminal event and withdrawn its own
// registration.
func (m *Manager) detachLocked(pid int32, status int, untrack bool) {
	if _, ok := m.idx.get(pid); !ok {
		return
	}
	m.idx.delete(pid)
	if untrack {
		_ = m.watcher.unregisterProcess(pid)
	}
	if status != noExitStatus {
		m.notify.broadcast(exitRecordFromWaitStatus(pid, status))
	}
}

// migrateLocked reassigns every pid attached to from over to to, or
// untracks them if to is nil. Used by Rmdir's recursive removal: a
// directory's member processes move up to its parent rather than being
// treated as exiting, so no ExitRecord is broadcast and the kernel
// event-queue registration for each pid is left untouched when to is
// non-nil. Untracking (to == nil, the removed root had no parent) does
// withdraw the event-queue registration, since nothing will ever own
// those pids again in this tree.
func (m *Manager) migrateLocked(from, to *Node) {
	moved := m.idx.migrate(from, to)
	if to != nil {
		return
	}
	for _, pid := range moved {
		_ = m.watcher.unregisterProcess(pid)
	}
}

// acceptSubscriber accepts one pending connection on the notify
// socket, registering a new Event Subscriber.
func (m *Manager) acceptSubscriber() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notify.acceptOne()
}

// nodePath renders n's absolute path from the tree root, "/"-joined.
func nodePath(n *Node) string {
	if n.parent == nil {
		return "/"
	}
	var segs []string
	for cur := n; cur.parent != nil; cur = cur.parent {
		segs = append(segs, cur.name)
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return "/" + strings.Join(segs, "/")
}

// ReadFile returns the content of one of the tree's pseudo-files.
func (m *Manager) ReadFile(n *Node) ([]byte, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readFileLocked(n)
}

func (m *Manager) readFileLocked(n *Node) ([]byte, *Error) {
	switch n.kind {
	case KindProcsFile:
		return renderPids(m.idx.pidsIn(n.parent)), nil
	case KindEventsFile:
		return nil, nil
	case KindReleaseAgentFile:
		return append([]byte(nil), n.parent.releaseAgent...), nil
	case KindNotifyOnReleaseFile:
		if n.parent.notifyOnRelease {
			return []byte("1\n"), nil
		}
		return []byte("0\n"), nil
	case KindPidCgroupFile:
		path := "/"
		if owner, ok := m.idx.get(n.parent.pid); ok {
			path = nodePath(owner)
		}
		return []byte("1:name=systemd:" + path + "\n"), nil
	default:
		return nil, newErr(ErrNotSupported, "not a readable file")
	}
}

// NodeOpen captures the point-in-time snapshot a filesystem host's open
// handle carries for the rest of its lifetime: cgroup.procs and the
// per-pid cgroup files are the only kinds with real, stable content to
// snapshot; every other kind (cgroup.events, release_agent,
// notify_on_release) is reserved and not openable, matching the
// original fuse_operations' cg_open, which returns ENOTSUP for anything
// but CGN_PROCS/CGN_PID_CGROUP.
func (m *Manager) NodeOpen(n *Node) ([]byte, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch n.kind {
	case KindProcsFile, KindPidCgroupFile:
		return m.readFileLocked(n)
	default:
		return nil, newErr(ErrNotSupported, "not an openable file")
	}
}

func renderPids(pids []int32) []byte {
	var buf bytes.Buffer
	for _, pid := range pids {
		fmt.Fprintf(&buf, "%d\n", pid)
	}
	return buf.Bytes()
}

// WriteFile replaces the content of one of the tree's writable
// pseudo-files, applying whatever side effect that write implies
// (attaching a process, changing the release agent, and so on).
func (m *Manager) WriteFile(n *Node, data []byte) *Error {
	m.mu.Lock()
	defer m.mu.Unlock()

	trimmed := bytes.TrimSpace(data)
	switch n.kind {
	case KindProcsFile:
		pid, ok := parsePidSegment(string(trimmed))
		if !ok {
			return newErr(ErrInvalidArgument, "cgroup.procs accepts a single pid")
		}
		return m.attachLocked(n.parent, pid)
	case KindReleaseAgentFile:
		n.parent.releaseAgent = append([]byte(nil), trimmed...)
		return nil
	case KindNotifyOnReleaseFile:
		v, err := strconv.Atoi(string(trimmed))
		if err != nil || (v != 0 && v != 1) {
			return newErr(ErrInvalidArgument, "notify_on_release accepts 0 or 1")
		}
		n.parent.notifyOnRelease = v == 1
		return nil
	default:
		return newErr(ErrNotSupported, "not a writable file")
	}
}
