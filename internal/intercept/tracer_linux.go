//go:build linux

package intercept

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const traceOptions = unix.PTRACE_O_TRACEFORK |
	unix.PTRACE_O_TRACEVFORK |
	unix.PTRACE_O_TRACECLONE |
	unix.PTRACE_O_TRACEEXEC |
	unix.PTRACE_O_EXITKILL

type stopKind int

const (
	stopGone stopKind = iota
	stopCreation
	stopEvent
	stopJobControl
	stopSignal
)

// classify tells what a wait status reported and which signal, if any, is to
// be delivered when the tracee resumes.
func classify(ws unix.WaitStatus) (stopKind, syscall.Signal) {
	switch {
	case ws.Exited(), ws.Signaled():
		return stopGone, 0
	case !ws.Stopped():
		return stopEvent, 0
	}

	sig := ws.StopSignal()
	if sig == unix.SIGTRAP {
		switch ws.TrapCause() {
		case unix.PTRACE_EVENT_FORK, unix.PTRACE_EVENT_VFORK, unix.PTRACE_EVENT_CLONE:
			return stopCreation, 0
		case 0:
			return stopSignal, sig
		default:
			return stopEvent, 0
		}
	}

	switch sig {
	case unix.SIGSTOP, unix.SIGTSTP, unix.SIGTTIN, unix.SIGTTOU:
		return stopJobControl, 0
	}
	return stopSignal, sig
}

// tree tracks the traced processes between wait calls.
type tree struct {
	live map[int]struct{}
	// expected holds children announced by a creation event whose initial stop
	// has not been reported yet.
	expected map[int]struct{}
	// held holds children whose initial stop arrived before their creation
	// event. They stay stopped until the event is handled.
	held map[int]struct{}
}

func newTree(root int) *tree {
	return &tree{
		live:     map[int]struct{}{root: {}},
		expected: map[int]struct{}{},
		held:     map[int]struct{}{},
	}
}

// Run starts argv under ptrace and blocks until every traced process is gone.
// The returned code is the root command's exit status.
func (t *Tracer) Run(ctx context.Context, argv []string) (int, error) {
	if len(argv) == 0 {
		return 1, errors.New("no command given")
	}

	// ptrace requests must come from the thread that attached.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	//nolint:gosec // launching the supervised command is the point
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = t.stdin
	cmd.Stdout = t.stdout
	cmd.Stderr = t.stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}

	if err := cmd.Start(); err != nil {
		return 1, fmt.Errorf("starting command: %w", err)
	}
	root := cmd.Process.Pid

	var ws unix.WaitStatus
	if _, err := unix.Wait4(root, &ws, unix.WALL, nil); err != nil {
		return 1, fmt.Errorf("waiting for %d to stop after exec: %w", root, err)
	}
	if !ws.Stopped() {
		return exitCode(rootStatus(ws)), nil
	}
	if err := unix.PtraceSetOptions(root, traceOptions); err != nil {
		_ = unix.Kill(root, unix.SIGKILL)
		return 1, fmt.Errorf("setting trace options on %d: %w", root, err)
	}
	if err := unix.PtraceCont(root, 0); err != nil {
		_ = unix.Kill(root, unix.SIGKILL)
		return 1, fmt.Errorf("resuming %d: %w", root, err)
	}

	t.logger.Info("tracing process tree", zap.Int("pid", root), zap.Strings("argv", argv))

	stopForwarding := t.forwardSignals(ctx, root)
	defer stopForwarding()

	return t.loop(ctx, root)
}

func (t *Tracer) loop(ctx context.Context, root int) (int, error) {
	procs := newTree(root)
	code := 0

	for len(procs.live) > 0 {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WALL, nil)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.ECHILD) {
				break
			}
			return 1, fmt.Errorf("wait4: %w", err)
		}

		kind, sig := classify(ws)
		switch kind {
		case stopGone:
			delete(procs.live, pid)
			delete(procs.expected, pid)
			delete(procs.held, pid)
			if pid == root {
				code = exitCode(rootStatus(ws))
				t.logger.Debug("root command exited", zap.Int("pid", pid), zap.Int("code", code))
			}
			continue

		case stopCreation:
			t.onCreation(ctx, procs, pid)

		case stopJobControl:
			if _, known := procs.live[pid]; !known {
				// Initial stop of a child whose creation event is still pending.
				procs.live[pid] = struct{}{}
				procs.held[pid] = struct{}{}
				continue
			}
			delete(procs.expected, pid)
			t.resume(pid, 0)

		default:
			t.resume(pid, sig)
		}
	}

	return code, nil
}

// onCreation handles a fork, vfork or clone stop of parent. The parent is
// resumed only after the child has been handed to the handler.
func (t *Tracer) onCreation(ctx context.Context, procs *tree, parent int) {
	msg, err := unix.PtraceGetEventMsg(parent)
	if err != nil {
		t.logger.Warn("reading new child pid", zap.Int("parent", parent), zap.Error(err))
		t.resume(parent, 0)
		return
	}
	child := int(msg)

	if t.fs.IsThreadGroupLeader(child) {
		t.handler.HandleFork(ctx, parent, child)
	}

	if _, ok := procs.held[child]; ok {
		delete(procs.held, child)
		t.resume(child, 0)
	} else {
		procs.live[child] = struct{}{}
		procs.expected[child] = struct{}{}
	}

	t.resume(parent, 0)
}

func (t *Tracer) resume(pid int, sig syscall.Signal) {
	if err := unix.PtraceCont(pid, int(sig)); err != nil && !errors.Is(err, unix.ESRCH) {
		t.logger.Warn("resuming traced process", zap.Int("pid", pid), zap.Error(err))
	}
}

// forwardSignals relays SIGINT and SIGTERM to the root command, and kills it
// when ctx is cancelled.
func (t *Tracer) forwardSignals(ctx context.Context, root int) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case s := <-sigCh:
				t.logger.Info("forwarding signal", zap.Stringer("signal", s), zap.Int("pid", root))
				if sig, ok := s.(syscall.Signal); ok {
					_ = unix.Kill(root, sig)
				}
			case <-ctx.Done():
				_ = unix.Kill(root, unix.SIGKILL)
				return
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func rootStatus(ws unix.WaitStatus) (int, bool) {
	if ws.Signaled() {
		return int(ws.Signal()), true
	}
	return ws.ExitStatus(), false
}

// exitCode maps a process termination to a shell-style exit code.
func exitCode(status int, signaled bool) int {
	if signaled {
		return 128 + status
	}
	return status
}
