// Copyright 2026 the CGrpFS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package cgroup

import (
	"golang.org/x/sys/unix"
)

// realKqueueBackend is the kqueueBackend for the BSD-family kernels that
// actually implement EVFILT_PROC. Grounded on the combined
// FUSE-channel-fd + EVFILT_PROC loop in the original cgrpfs_main.c, and
// on the kqueue idiom used by fsnotify's darwin/BSD backend
// (unix.Kqueue, unix.Kevent_t, unix.Kevent).
type realKqueueBackend struct {
	kq       int
	notifyFD int
}

func newKqueueBackend() kqueueBackend {
	return &realKqueueBackend{kq: -1}
}

func (b *realKqueueBackend) open(notifyFD int) error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	b.kq = kq
	b.notifyFD = notifyFD

	changes := []unix.Kevent_t{{
		Ident:  uint64(notifyFD),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}}
	if _, err := unix.Kevent(b.kq, changes, nil, nil); err != nil {
		unix.Close(b.kq)
		b.kq = -1
		return err
	}
	return nil
}

func (b *realKqueueBackend) registerProcess(pid int32) error {
	changes := []unix.Kevent_t{{
		Ident:  uint64(pid),
		Filter: unix.EVFILT_PROC,
		Flags:  unix.EV_ADD,
		Fflags: unix.NOTE_EXIT | unix.NOTE_TRACK,
	}}
	if _, err := unix.Kevent(b.kq, changes, nil, nil); err != nil {
		if err == unix.ESRCH {
			return newErr(ErrNoSuchProcess, "process already exited")
		}
		return err
	}
	return nil
}

func (b *realKqueueBackend) unregisterProcess(pid int32) error {
	changes := []unix.Kevent_t{{
		Ident:  uint64(pid),
		Filter: unix.EVFILT_PROC,
		Flags:  unix.EV_DELETE,
	}}
	_, err := unix.Kevent(b.kq, changes, nil, nil)
	return err
}

func (b *realKqueueBackend) wait() (kqueueEvent, error) {
	events := make([]unix.Kevent_t, 1)
	n, err := unix.Kevent(b.kq, nil, events, nil)
	if err != nil {
		if err == unix.EINTR {
			return kqueueEvent{kind: eventNone}, nil
		}
		return kqueueEvent{}, err
	}
	if n == 0 {
		return kqueueEvent{kind: eventNone}, nil
	}

	kev := events[0]
	switch kev.Filter {
	case unix.EVFILT_READ:
		if int(kev.Ident) == b.notifyFD {
			return kqueueEvent{kind: eventNotifyReadable}, nil
		}
		return kqueueEvent{kind: eventNone}, nil
	case unix.EVFILT_PROC:
		switch {
		case kev.Fflags&unix.NOTE_CHILD != 0:
			return kqueueEvent{
				kind:      eventProcFork,
				pid:       int32(kev.Ident),
				parentPid: int32(kev.Data),
			}, nil
		case kev.Fflags&unix.NOTE_EXIT != 0:
			return kqueueEvent{
				kind:       eventProcExit,
				pid:        int32(kev.Ident),
				exitStatus: int(kev.Data),
			}, nil
		case kev.Fflags&unix.NOTE_TRACKERR != 0:
			return kqueueEvent{kind: eventProcTrackErr, pid: int32(kev.Ident)}, nil
		case kev.Fflags&unix.NOTE_EXEC != 0:
			return kqueueEvent{kind: eventProcExec, pid: int32(kev.Ident)}, nil
		}
	}
	return kqueueEvent{kind: eventNone}, nil
}

func (b *realKqueueBackend) close() error {
	if b.kq < 0 {
		return nil
	}
	err := unix.Close(b.kq)
	b.kq = -1
	return err
}
