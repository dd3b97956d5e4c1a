// Copyright 2026 the CGrpFS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgroup

import (
	"github.com/sirupsen/logrus"
)

// kqueueBackend is the seam between the platform-neutral watcher loop
// below and the actual kernel event queue syscalls, which only exist on
// BSD-family kernels (see watcher_kqueue.go / watcher_other.go). Tests
// substitute a fake implementation of this interface.
type kqueueBackend interface {
	// open creates the kernel event queue and registers notifyFD (the
	// Notify Server's listening socket) for read-readiness.
	open(notifyFD int) error
	// registerProcess asks the kernel to report exit and fork/track
	// events for pid. Returns ErrNoSuchProcess if pid is already gone.
	registerProcess(pid int32) error
	// unregisterProcess withdraws a prior registerProcess.
	unregisterProcess(pid int32) error
	// wait blocks for the next event and returns it. A nil error with
	// ev.kind == eventNone means "spurious wakeup, loop again" (e.g. an
	// EINTR-equivalent).
	wait() (kqueueEvent, error)
	// close releases the kernel event queue.
	close() error
}

type eventKind int

const (
	eventNone eventKind = iota
	eventNotifyReadable
	eventProcFork
	eventProcExit
	eventProcTrackErr
	eventProcExec
)

// kqueueEvent is the platform-neutral shape of one kevent, after the
// backend has decoded EVFILT_PROC/EVFILT_READ and their fflags.
type kqueueEvent struct {
	kind eventKind
	// pid is the subject process for proc events (kevent Ident).
	pid int32
	// parentPid is set only for eventProcFork (kevent Data: NOTE_CHILD
	// carries the parent pid there).
	parentPid int32
	// exitStatus is the wait(2) status, set only for eventProcExit.
	exitStatus int
}

// watcher drives the background loop that consumes kernel process
// events and notify-socket accept-readiness, dispatching both into the
// Manager under its lock.
type watcher struct {
	backend kqueueBackend
	mgr     *Manager
	log     *logrus.Entry

	done chan struct{}
	stop chan struct{}
}

func newWatcher(mgr *Manager, backend kqueueBackend, log *logrus.Entry) *watcher {
	return &watcher{
		backend: backend,
		mgr:     mgr,
		log:     log,
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
	}
}

func (w *watcher) start(notifyFD int) error {
	if err := w.backend.open(notifyFD); err != nil {
		return err
	}
	go w.run()
	return nil
}

func (w *watcher) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		default:
		}

		ev, err := w.backend.wait()
		if err != nil {
			select {
			case <-w.stop:
				// Close asked the backend to shut down, which is
				// exactly what unblocked wait() with an error; this is
				// an orderly exit, not a kernel-queue failure.
				return
			default:
			}
			// A wait error the watcher did not itself request is a
			// hard kernel-queue failure: the loop cannot usefully
			// continue, so it aborts the process rather than serve
			// stale process-tracking state.
			w.log.WithError(err).Fatal("kernel event queue wait failed")
			return
		}

		switch ev.kind {
		case eventNone:
			continue
		case eventNotifyReadable:
			w.mgr.acceptSubscriber()
		case eventProcFork:
			w.handleFork(ev.parentPid, ev.pid)
		case eventProcExit:
			w.handleExit(ev.pid, ev.exitStatus)
		case eventProcTrackErr:
			w.log.WithField("pid", ev.pid).Warn("process tracking error from kernel event queue")
		case eventProcExec:
			w.log.WithField("pid", ev.pid).Debug("process exec'd; identity preserved")
		}
	}
}

func (w *watcher) handleFork(parentPid, childPid int32) {
	w.mgr.mu.Lock()
	defer w.mgr.mu.Unlock()

	parent, ok := w.mgr.idx.get(parentPid)
	if !ok {
		w.log.WithFields(logrus.Fields{"parent_pid": parentPid, "child_pid": childPid}).
			Warn("fork event for untracked parent; dropping child")
		return
	}
	if err := w.mgr.attachLocked(parent, childPid); err != nil {
		w.log.WithError(err).WithField("child_pid", childPid).Warn("failed to attach forked child")
	}
}

func (w *watcher) handleExit(pid int32, status int) {
	w.mgr.mu.Lock()
	w.mgr.detachLocked(pid, status, false)
	w.mgr.mu.Unlock()
}

func (w *watcher) registerProcess(pid int32) error {
	return w.backend.registerProcess(pid)
}

func (w *watcher) unregisterProcess(pid int32) error {
	return w.backend.unregisterProcess(pid)
}

func (w *watcher) Close() error {
	close(w.stop)
	err := w.backend.close()
	<-w.done
	return err
}
