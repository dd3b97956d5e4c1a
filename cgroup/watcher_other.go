// Copyright 2026 the CGrpFS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !(darwin || dragonfly || freebsd || netbsd || openbsd)

package cgroup

// unsupportedKqueueBackend stands in on kernels with no EVFILT_PROC
// facility. Every call reports ErrNotSupported; NewManager returns that
// error rather than a Manager, so no tree is served on these kernels.
type unsupportedKqueueBackend struct{}

func newKqueueBackend() kqueueBackend {
	return unsupportedKqueueBackend{}
}

func (unsupportedKqueueBackend) open(notifyFD int) error {
	return newErr(ErrNotSupported, "kernel event queue process tracking is not available on this platform")
}

func (unsupportedKqueueBackend) registerProcess(pid int32) error {
	return newErr(ErrNotSupported, "process tracking unavailable")
}

func (unsupportedKqueueBackend) unregisterProcess(pid int32) error {
	return newErr(ErrNotSupported, "process tracking unavailable")
}

func (unsupportedKqueueBackend) wait() (kqueueEvent, error) {
	return kqueueEvent{}, newErr(ErrNotSupported, "process tracking unavailable")
}

func (unsupportedKqueueBackend) close() error { return nil }
