// Copyright 2026 the CGrpFS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package cgroup

import (
	"os"

	"golang.org/x/sys/unix"
)

// unixSocketBackend implements socketBackend directly on
// golang.org/x/sys/unix, because neither a SOCK_SEQPACKET AF_UNIX
// listener nor the SO_NOSIGPIPE socket option needed for signal-safe
// sends has a net.Conn-shaped standard-library binding, and the
// listening descriptor needs to be registered into the same kqueue the
// Process Watcher already polls.
type unixSocketBackend struct{}

func newSocketBackend() socketBackend { return unixSocketBackend{} }

func (unixSocketBackend) listen(path string) (int, error) {
	// Remove any stale socket left by a previous, uncleanly terminated
	// run before binding.
	_ = os.Remove(path)

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, err
	}

	addr := &unix.SockaddrUnix{Name: path}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, 16); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func (unixSocketBackend) accept(listenFD int) (int, error) {
	connFD, _, err := unix.Accept4(listenFD, unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK)
	if err != nil {
		return -1, err
	}
	// SO_NOSIGPIPE makes subsequent sends on this fd return EPIPE
	// instead of raising SIGPIPE in this process. BSD-family kernels
	// have no MSG_NOSIGNAL send flag, so this is the only way to send
	// to a dead peer without a signal handler.
	if err := unix.SetsockoptInt(connFD, unix.SOL_SOCKET, unix.SO_NOSIGPIPE, 1); err != nil {
		unix.Close(connFD)
		return -1, err
	}
	return connFD, nil
}

func (unixSocketBackend) send(connFD int, data []byte) error {
	return unix.Sendmsg(connFD, data, nil, nil, 0)
}

func (unixSocketBackend) closeFD(fd int) error {
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}
