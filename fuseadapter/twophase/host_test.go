// Copyright 2026 the CGrpFS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package twophase

import (
	"io"
	"testing"

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

func TestHostDrivesGenuineTwoPhaseLifecycle(t *testing.T) {
	mgr := newTestManager(t)
	h := New(mgr)

	web, err := mgr.NodeMkdir(mgr.Root(), "web", 0755, 0, 0)
	if err != nil {
		t.Fatalf("NodeMkdir: %v", err)
	}

	looked, lerr := h.Lookup(mgr.Root(), "web")
	if lerr != nil {
		t.Fatalf("Lookup: %v", lerr)
	}
	if looked != web {
		t.Fatalf("Lookup returned a different Node than Mkdir created")
	}

	if rerr := h.Rmdir(web); rerr != nil {
		t.Fatalf("Rmdir: %v", rerr)
	}
	if web.Parent() == nil {
		t.Fatalf("Node released before its Lookup reference was Inactivated and Reclaimed")
	}

	h.Inactivate(web)
	if web.Parent() == nil {
		t.Fatalf("Inactivate alone released the Node; only Reclaim should")
	}

	h.Reclaim(web)
	if web.Parent() != nil {
		t.Fatalf("Node still held after Reclaim matched its one Lookup")
	}
}

func TestHostLookupMissingChild(t *testing.T) {
	mgr := newTestManager(t)
	h := New(mgr)

	if _, err := h.Lookup(mgr.Root(), "nope"); err == nil || err.Kind != cgroup.ErrNotFound {
		t.Fatalf("Lookup(nope) = %v, want ErrNotFound", err)
	}
}
