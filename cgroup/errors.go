// Copyright 2026 the CGrpFS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgroup

import (
	"fmt"
	"syscall"

	"github.com/pkg/errors"
)

// ErrKind classifies a cgroup operation failure. It is the vocabulary
// the core speaks internally; translation to a POSIX errno happens only
// at the filesystem-host boundary, via Error.Errno.
type ErrKind int

const (
	// ErrNone is the zero value; never returned as an error.
	ErrNone ErrKind = iota
	ErrNotFound
	ErrAlreadyExists
	ErrNotDirectory
	ErrNotSupported
	ErrPermissionDenied
	ErrInvalidArgument
	ErrNoSuchProcess
	ErrOutOfMemory
	ErrNoDevice
)

func (k ErrKind) String() string {
	switch k {
	case ErrNotFound:
		return "not found"
	case ErrAlreadyExists:
		return "already exists"
	case ErrNotDirectory:
		return "not a directory"
	case ErrNotSupported:
		return "not supported"
	case ErrPermissionDenied:
		return "permission denied"
	case ErrInvalidArgument:
		return "invalid argument"
	case ErrNoSuchProcess:
		return "no such process"
	case ErrOutOfMemory:
		return "out of memory"
	case ErrNoDevice:
		return "no such device"
	default:
		return "unknown error"
	}
}

// Error is the error type every exported cgroup operation returns.
type Error struct {
	Kind  ErrKind
	Msg   string
	cause error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}

// Errno maps the Error's Kind to the POSIX errno a filesystem host
// returns to the kernel.
func (e *Error) Errno() syscall.Errno {
	switch e.Kind {
	case ErrNotFound:
		return syscall.ENOENT
	case ErrAlreadyExists:
		return syscall.EEXIST
	case ErrNotDirectory:
		return syscall.ENOTDIR
	case ErrNotSupported:
		return syscall.ENOTSUP
	case ErrPermissionDenied:
		return syscall.EPERM
	case ErrInvalidArgument:
		return syscall.EINVAL
	case ErrNoSuchProcess:
		return syscall.ESRCH
	case ErrOutOfMemory:
		return syscall.ENOMEM
	case ErrNoDevice:
		return syscall.ENODEV
	default:
		return syscall.EIO
	}
}

func newErr(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Is lets errors.Is(err, cgroup.ErrNotFound) work by comparing Kind,
// without requiring the caller to construct an *Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel errors for use with errors.Is. Their Msg is empty; callers
// that need operation-specific context should not compare against these
// directly but against the Kind via (*Error).Is.
var (
	ErrIsNotFound         = &Error{Kind: ErrNotFound}
	ErrIsAlreadyExists    = &Error{Kind: ErrAlreadyExists}
	ErrIsNotDirectory     = &Error{Kind: ErrNotDirectory}
	ErrIsNotSupported     = &Error{Kind: ErrNotSupported}
	ErrIsPermissionDenied = &Error{Kind: ErrPermissionDenied}
	ErrIsInvalidArgument  = &Error{Kind: ErrInvalidArgument}
	ErrIsNoSuchProcess    = &Error{Kind: ErrNoSuchProcess}
	ErrIsOutOfMemory      = &Error{Kind: ErrOutOfMemory}
	ErrIsNoDevice         = &Error{Kind: ErrNoDevice}
)

// wrapf attaches additional context to an existing *Error without
// changing its Kind, using pkg/errors so the cause carries a stack
// trace. The wrapped error is kept as cause rather than flattened, so
// Unwrap gives errors.Is/As and stack-printing callers access to it.
func wrapf(err *Error, format string, args ...interface{}) *Error {
	return &Error{Kind: err.Kind, Msg: fmt.Sprintf(format, args...), cause: errors.Wrapf(err, format, args...)}
}

// Unwrap exposes the pkg/errors-wrapped cause attached by wrapf, if any.
func (e *Error) Unwrap() error { return e.cause }
