// Copyright 2026 the CGrpFS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgroup

import (
	"encoding/binary"
	"syscall"

	"github.com/sirupsen/logrus"
)

// DefaultNotifySocketPath is the well-known path the Notify Server binds
// to when the caller does not override it.
const DefaultNotifySocketPath = "/var/run/cgrpfs.notify"

// SIGCHLD is fixed at its BSD-family and Darwin value rather than
// imported from syscall, since the latter is not available on every
// GOOS this package is built for. The notify socket only operates on
// those kernels (see notify_kqueue.go), and all of them number it 20.
const sigchld = 20

// Exit codes mirror the POSIX siginfo_t si_code values used to
// distinguish a normal exit from a signalled one.
const (
	cldExited = 1
	cldKilled = 2
)

// ExitRecord is the fixed-size, siginfo_t-shaped payload broadcast to
// every Event Subscriber when a tracked process exits.
type ExitRecord struct {
	Pid    int32
	Signo  int32
	Code   int32
	Status int32
}

// exitRecordSize is the wire size of ExitRecord: four int32 fields.
const exitRecordSize = 16

func (r ExitRecord) marshal() []byte {
	buf := make([]byte, exitRecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.Pid))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(r.Signo))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(r.Code))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(r.Status))
	return buf
}

// exitRecordFromWaitStatus builds the ExitRecord for a pid that has
// just been reported as exited by the kernel event queue, given the
// wait(2)-shaped status the kqueue backend decoded.
func exitRecordFromWaitStatus(pid int32, status int) ExitRecord {
	ws := syscall.WaitStatus(status)
	if ws.Exited() {
		return ExitRecord{Pid: pid, Signo: sigchld, Code: cldExited, Status: int32(ws.ExitStatus())}
	}
	return ExitRecord{Pid: pid, Signo: sigchld, Code: cldKilled, Status: int32(ws.Signal())}
}

// isPeerClosed reports whether err indicates the subscriber on the
// other end of the connection has gone away, as opposed to some other
// transient send failure.
func isPeerClosed(err error) bool {
	switch err {
	case syscall.EPIPE, syscall.ECONNRESET, syscall.ENOTCONN:
		return true
	default:
		return false
	}
}

// socketBackend is the seam between the Notify Server's bookkeeping
// below and the raw AF_UNIX SOCK_SEQPACKET syscalls needed to bind,
// accept and send without raising SIGPIPE on a dead subscriber (see
// notify_kqueue.go / notify_other.go).
type socketBackend interface {
	listen(path string) (fd int, err error)
	accept(listenFD int) (connFD int, err error)
	send(connFD int, data []byte) error
	closeFD(fd int) error
}

// notifyServer owns the Notify Server's listening socket and its set of
// connected Event Subscribers. It has no lock of its own: every method
// is called with the Manager's mutex already held.
type notifyServer struct {
	backend  socketBackend
	listenFD int
	subs     []int
	log      *logrus.Entry
}

func newNotifyServer(backend socketBackend, log *logrus.Entry) *notifyServer {
	return &notifyServer{backend: backend, log: log}
}

func (n *notifyServer) listen(path string) error {
	fd, err := n.backend.listen(path)
	if err != nil {
		return err
	}
	n.listenFD = fd
	return nil
}

func (n *notifyServer) fd() int { return n.listenFD }

// acceptOne accepts a single pending connection, recording it as a new
// Event Subscriber.
func (n *notifyServer) acceptOne() {
	connFD, err := n.backend.accept(n.listenFD)
	if err != nil {
		n.log.WithError(err).Warn("failed to accept notify subscriber")
		return
	}
	n.subs = append(n.subs, connFD)
}

// broadcast sends rec to every current subscriber, dropping any whose
// send fails with a peer-closed error and logging (but keeping) any
// subscriber whose send fails for another reason.
func (n *notifyServer) broadcast(rec ExitRecord) {
	if len(n.subs) == 0 {
		return
	}
	data := rec.marshal()
	live := n.subs[:0]
	for _, fd := range n.subs {
		err := n.backend.send(fd, data)
		switch {
		case err == nil:
			live = append(live, fd)
		case isPeerClosed(err):
			n.backend.closeFD(fd)
		default:
			n.log.WithError(err).WithField("fd", fd).Warn("failed to notify subscriber")
			live = append(live, fd)
		}
	}
	n.subs = live
}

func (n *notifyServer) close() error {
	for _, fd := range n.subs {
		n.backend.closeFD(fd)
	}
	n.subs = nil
	return n.backend.closeFD(n.listenFD)
}
