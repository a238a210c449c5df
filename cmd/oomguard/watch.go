package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cilium/ebpf/ringbuf"
	"github.com/mrzor/oomguard/internal/bpfloader"
	"github.com/mrzor/oomguard/internal/eventstream"
	"github.com/mrzor/oomguard/internal/timesync"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const livenessInterval = time.Second

func newWatchCommand(flags *globalFlags) *cobra.Command {
	var pid int

	cmd := &cobra.Command{
		Use:   "watch --pid N",
		Short: "Score every process an already-running daemon creates",
		Long: `Watch attaches an eBPF program to the sched_process_fork tracepoint and
scores each process created under the given PID from then on. Existing
descendants are followed but not rescored. Requires root.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if pid <= 0 {
				return errors.New("--pid is required")
			}
			if os.Geteuid() != 0 {
				return errors.New("watch must run as root")
			}

			rt, cleanup, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			daemon, err := process.NewProcess(int32(pid)) //nolint:gosec // pid_t fits in int32
			if err != nil {
				return fmt.Errorf("process %d: %w", pid, err)
			}

			loader, rd, cleanupBPF, err := setupBPF()
			if err != nil {
				return err
			}
			defer cleanupBPF()

			tracked, err := trackTree(cmd.Context(), loader, daemon)
			if err != nil {
				return err
			}
			rt.logger.Info("watching process tree", zap.Int("pid", pid), zap.Int("tracked", tracked))

			converter, err := timesync.NewConverter(rt.cfg.ProcRoot)
			if err != nil {
				return fmt.Errorf("failed to create time converter: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stream := eventstream.New(rd, rt.interceptor, rt.fs, converter, rt.logger)
			done := make(chan error, 1)
			go func() {
				done <- stream.Run(ctx)
			}()

			waitForExit(ctx, daemon, rt.logger)

			// Unblocks the pending Read.
			if err := rd.Close(); err != nil {
				rt.logger.Warn("closing ring buffer", zap.Error(err))
			}
			return <-done
		},
	}
	cmd.Flags().IntVar(&pid, "pid", 0, "PID of the daemon to follow")
	return cmd
}

// setupBPF loads and attaches the fork watcher and opens its ring buffer.
func setupBPF() (*bpfloader.Loader, *ringbuf.Reader, func(), error) {
	format, err := bpfloader.ReadForkFormat()
	if err != nil {
		return nil, nil, nil, err
	}

	loader, err := bpfloader.New(format)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := loader.Attach(); err != nil {
		_ = loader.Close() //nolint:errcheck // already failing
		return nil, nil, nil, err
	}

	rd, err := loader.OpenRingBuffer()
	if err != nil {
		_ = loader.Close() //nolint:errcheck // already failing
		return nil, nil, nil, err
	}

	cleanup := func() {
		// rd may already be closed by the caller; a second close is a no-op.
		_ = rd.Close()
		_ = loader.Close()
	}
	return loader, rd, cleanup, nil
}

// trackTree adds root, its threads and every live descendant with their
// threads to the tracked map. The tracepoint is already attached, so a
// process forked during the walk is caught either way.
func trackTree(ctx context.Context, loader *bpfloader.Loader, root *process.Process) (int, error) {
	if err := loader.TrackPID(int(root.Pid)); err != nil {
		return 0, err
	}
	count := 1

	queue := []*process.Process{root}
	seen := map[int32]bool{root.Pid: true}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		if threads, err := p.ThreadsWithContext(ctx); err == nil {
			for tid := range threads {
				if seen[tid] {
					continue
				}
				seen[tid] = true
				if err := loader.TrackPID(int(tid)); err != nil {
					return count, err
				}
				count++
			}
		}

		children, err := p.ChildrenWithContext(ctx)
		if err != nil {
			// ErrorNoChildren, or the process went away.
			continue
		}
		for _, child := range children {
			if seen[child.Pid] {
				continue
			}
			seen[child.Pid] = true
			if err := loader.TrackPID(int(child.Pid)); err != nil {
				return count, err
			}
			count++
			queue = append(queue, child)
		}
	}
	return count, nil
}

// waitForExit returns when ctx is done or the daemon is gone.
func waitForExit(ctx context.Context, daemon *process.Process, logger *zap.Logger) {
	ticker := time.NewTicker(livenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("received signal, detaching")
			return
		case <-ticker.C:
			running, err := daemon.IsRunningWithContext(ctx)
			if err == nil && !running {
				logger.Info("watched process exited", zap.Int32("pid", daemon.Pid))
				return
			}
		}
	}
}
