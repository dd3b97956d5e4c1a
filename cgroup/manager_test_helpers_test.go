// Copyright 2026 the CGrpFS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgroup

import (
	"io"
	"sync"
	"syscall"
	"testing"

	"github.com/sirupsen/logrus"
)

// fakeKqueueBackend is a kqueueBackend that never touches a real kernel
// event queue. wait blocks on an internal channel until the test feeds
// it an event via push, or close unblocks it with io.EOF.
type fakeKqueueBackend struct {
	mu      sync.Mutex
	events  chan kqueueEvent
	closed  bool
	tracked map[int32]bool
	openErr error
	regErr  map[int32]error
}

func newFakeKqueueBackend() *fakeKqueueBackend {
	return &fakeKqueueBackend{
		events:  make(chan kqueueEvent, 16),
		tracked: make(map[int32]bool),
		regErr:  make(map[int32]error),
	}
}

func (b *fakeKqueueBackend) open(notifyFD int) error { return b.openErr }

func (b *fakeKqueueBackend) registerProcess(pid int32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.regErr[pid]; ok {
		return err
	}
	b.tracked[pid] = true
	return nil
}

func (b *fakeKqueueBackend) unregisterProcess(pid int32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tracked, pid)
	return nil
}

func (b *fakeKqueueBackend) wait() (kqueueEvent, error) {
	ev, ok := <-b.events
	if !ok {
		return kqueueEvent{}, io.EOF
	}
	return ev, nil
}

func (b *fakeKqueueBackend) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
	return nil
}

func (b *fakeKqueueBackend) push(ev kqueueEvent) {
	b.events <- ev
}

// fakeSocketBackend is a socketBackend that keeps everything in
// process memory: fds are just monotonically increasing integers, and
// sent data is recorded per connection fd for assertions.
type fakeSocketBackend struct {
	mu       sync.Mutex
	nextFD   int
	sent     map[int][][]byte
	sendErrs map[int]error
	closed   map[int]bool
}

func newFakeSocketBackend() *fakeSocketBackend {
	return &fakeSocketBackend{
		sent:     make(map[int][][]byte),
		sendErrs: make(map[int]error),
		closed:   make(map[int]bool),
	}
}

func (b *fakeSocketBackend) listen(path string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextFD++
	return b.nextFD, nil
}

func (b *fakeSocketBackend) accept(listenFD int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextFD++
	fd := b.nextFD
	b.sent[fd] = nil
	return fd, nil
}

func (b *fakeSocketBackend) send(connFD int, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.sendErrs[connFD]; ok {
		return err
	}
	cp := append([]byte(nil), data...)
	b.sent[connFD] = append(b.sent[connFD], cp)
	return nil
}

func (b *fakeSocketBackend) closeFD(fd int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed[fd] = true
	return nil
}

// newTestManager builds a Manager the same way NewManager does, except
// its backends are in-memory fakes instead of the platform-specific
// kqueue/AF_UNIX ones, so the tree, process-index and lifecycle logic
// can be exercised identically on every GOOS.
func newTestManager(t *testing.T) (*Manager, *fakeKqueueBackend, *fakeSocketBackend) {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)
	entry := log.WithField("component", "test")

	root := newNode(nil, "", KindCgDir)
	root.attr.Mode = syscall.S_IFDIR | 0755
	populateCgDirFiles(root)

	metaRoot := newNode(root, nameMetaRoot, KindPidRootDir)
	metaRoot.attr.Mode = syscall.S_IFDIR | 0555
	root.addChild(metaRoot)

	sockBackend := newFakeSocketBackend()
	kqBackend := newFakeKqueueBackend()

	m := &Manager{
		root:     root,
		metaRoot: metaRoot,
		idx:      newProcessIndex(),
		log:      entry,
	}
	m.notify = newNotifyServer(sockBackend, entry.WithField("component", "notify"))
	if err := m.notify.listen("/test/notify.sock"); err != nil {
		t.Fatalf("listen: %v", err)
	}
	m.watcher = newWatcher(m, kqBackend, entry.WithField("component", "watcher"))
	if err := m.watcher.start(m.notify.fd()); err != nil {
		t.Fatalf("start watcher: %v", err)
	}

	return m, kqBackend, sockBackend
}
