// Copyright 2026 the CGrpFS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !(darwin || dragonfly || freebsd || netbsd || openbsd)

package cgroup

// unsupportedSocketBackend stands in on platforms without the BSD
// socket options this package's notify channel relies on. Every call
// reports ErrNotSupported, so NewManager fails at listen on these
// platforms, as it would at watcher_other.go's open.
type unsupportedSocketBackend struct{}

func newSocketBackend() socketBackend { return unsupportedSocketBackend{} }

func (unsupportedSocketBackend) listen(path string) (int, error) {
	return -1, newErr(ErrNotSupported, "notify socket unavailable on this platform")
}

func (unsupportedSocketBackend) accept(listenFD int) (int, error) {
	return -1, newErr(ErrNotSupported, "notify socket unavailable")
}

func (unsupportedSocketBackend) send(connFD int, data []byte) error {
	return newErr(ErrNotSupported, "notify socket unavailable")
}

func (unsupportedSocketBackend) closeFD(fd int) error { return nil }
