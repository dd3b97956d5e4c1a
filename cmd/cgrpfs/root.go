// Copyright 2026 the CGrpFS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/moby/sys/mountinfo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/initware/cgrpfs/cgroup"
	"github.com/initware/cgrpfs/fuseadapter"
	"github.com/initware/cgrpfs/fuseadapter/twophase"
)

var opts struct {
	notifySocket string
	debug        bool
	allowOther   bool
	rootMode     uint32
	rootUID      uint32
	rootGID      uint32
	twoPhase     bool
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cgrpfs MOUNTPOINT",
		Short: "mount an in-memory cgroup hierarchy at MOUNTPOINT",
		Args:  cobra.ExactArgs(1),
		RunE:  runMount,
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.notifySocket, "notify-socket", cgroup.DefaultNotifySocketPath, "path of the exit-event notify socket")
	flags.BoolVar(&opts.debug, "debug", false, "log every filesystem request")
	flags.BoolVar(&opts.allowOther, "allow-other", false, "mount with -o allow_other")
	flags.Uint32Var(&opts.rootMode, "root-mode", 0755, "permission bits of the cgroup root")
	flags.Uint32Var(&opts.rootUID, "root-uid", 0, "owning uid of the cgroup root")
	flags.Uint32Var(&opts.rootGID, "root-gid", 0, "owning gid of the cgroup root")
	flags.BoolVar(&opts.twoPhase, "two-phase", false, "drive a startup self-check of the inactive/reclaim protocol via the reference two-phase host before mounting")

	return cmd
}

func runMount(cmd *cobra.Command, args []string) error {
	mountpoint := args[0]

	logger := logrus.StandardLogger()
	if opts.debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	log := logger.WithField("mountpoint", mountpoint)

	if mounted, err := mountinfo.Mounted(mountpoint); err != nil {
		return fmt.Errorf("checking mountpoint %s: %w", mountpoint, err)
	} else if mounted {
		return fmt.Errorf("%s is already a mountpoint", mountpoint)
	}

	mgr, err := cgroup.NewManager(cgroup.Options{
		NotifySocketPath: opts.notifySocket,
		RootMode:         opts.rootMode,
		RootUID:          opts.rootUID,
		RootGID:          opts.rootGID,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("starting cgroup manager: %w", err)
	}
	defer mgr.Close()

	if opts.twoPhase {
		if err := runTwoPhaseSelfCheck(mgr, log); err != nil {
			return fmt.Errorf("two-phase self-check: %w", err)
		}
	}

	server, err := fs.Mount(mountpoint, fuseadapter.NewRoot(mgr), &fs.Options{
		MountOptions: fuseOptions(),
	})
	if err != nil {
		return fmt.Errorf("mounting at %s: %w", mountpoint, err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.WithField("signal", s).Info("unmounting")
		if err := server.Unmount(); err != nil {
			log.WithError(err).Warn("unmount failed; filesystem may need manual umount")
		}
	}()

	log.Info("mounted")
	server.Wait()
	return nil
}

// runTwoPhaseSelfCheck exercises the full inactive/reclaim protocol
// against the reference two-phase host (fuseadapter/twophase) on a
// throwaway directory before the real mount starts, so that --two-phase
// proves the protocol the flag is named after rather than just
// asserting it exists. go-fuse's own mount never drives Inactivate; it
// collapses straight to Reclaim on OnForget (see fuseadapter), so this
// is the only way the protocol runs end to end outside of tests.
func runTwoPhaseSelfCheck(mgr *cgroup.Manager, log *logrus.Entry) error {
	host := twophase.New(mgr)

	probe, cgErr := mgr.Mkdir("/.cgrpfs-two-phase-probe", 0755, 0, 0)
	if cgErr != nil {
		return cgErr
	}

	ref, cgErr := host.Lookup(mgr.Root(), probe.Name())
	if cgErr != nil {
		return cgErr
	}
	if cgErr := host.Rmdir(ref); cgErr != nil {
		return cgErr
	}
	host.Inactivate(ref)
	host.Reclaim(ref)

	log.Info("two-phase inactive/reclaim self-check passed")
	return nil
}

func fuseOptions() fuse.MountOptions {
	return fuse.MountOptions{
		AllowOther: opts.allowOther,
		Debug:      opts.debug,
		FsName:     "cgrpfs",
		Name:       "cgrpfs",
	}
}

// Execute runs the cgrpfs root command.
func Execute() error {
	return newRootCmd().Execute()
}
