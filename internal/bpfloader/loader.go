package bpfloader

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"
)

// Loader owns the fork watcher's maps, program and tracepoint link.
type Loader struct {
	tracked  *ebpf.Map
	events   *ebpf.Map
	prog     *ebpf.Program
	forkLink link.Link
}

// New creates the maps and loads the fork program built for format.
func New(format ForkFormat) (*Loader, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("removing memlock limit: %w", err)
	}

	l := &Loader{}
	var err error

	l.tracked, err = ebpf.NewMap(trackedSpec())
	if err != nil {
		return nil, l.closeErrorf("creating tracked pid map", err)
	}
	l.events, err = ebpf.NewMap(eventsSpec())
	if err != nil {
		return nil, l.closeErrorf("creating ring buffer", err)
	}

	insns := forkInstructions(format, l.tracked.FD(), l.events.FD())
	l.prog, err = ebpf.NewProgram(programSpec(insns))
	if err != nil {
		return nil, l.closeErrorf("loading fork program", err)
	}

	return l, nil
}

// closeErrorf releases whatever was created so far and wraps e.
func (l *Loader) closeErrorf(errstr string, e error) error {
	_ = l.Close() //nolint:errcheck // already failing
	return fmt.Errorf("%s: %w", errstr, e)
}

// Attach hooks the program to sched/sched_process_fork.
func (l *Loader) Attach() error {
	var err error
	l.forkLink, err = link.Tracepoint("sched", "sched_process_fork", l.prog, nil)
	if err != nil {
		return fmt.Errorf("attaching fork tracepoint: %w", err)
	}
	return nil
}

// TrackPID adds a PID to the tracked map. Forks by tracked processes are
// reported and their children tracked in turn.
func (l *Loader) TrackPID(pid int) error {
	//nolint:gosec // pid_t fits in uint32
	key := uint32(pid)
	val := uint32(1)
	if err := l.tracked.Put(&key, &val); err != nil {
		return fmt.Errorf("adding PID %d to tracked map: %w", pid, err)
	}
	return nil
}

// OpenRingBuffer returns a reader over fork records.
func (l *Loader) OpenRingBuffer() (*ringbuf.Reader, error) {
	rd, err := ringbuf.NewReader(l.events)
	if err != nil {
		return nil, fmt.Errorf("opening ring buffer: %w", err)
	}
	return rd, nil
}

// Close detaches and releases everything. It is safe on a partly built Loader.
func (l *Loader) Close() error {
	var errs []error

	if l.forkLink != nil {
		if err := l.forkLink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing fork link: %w", err))
		}
		l.forkLink = nil
	}
	if l.prog != nil {
		if err := l.prog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing fork program: %w", err))
		}
		l.prog = nil
	}
	if l.events != nil {
		if err := l.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing ring buffer: %w", err))
		}
		l.events = nil
	}
	if l.tracked != nil {
		if err := l.tracked.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing tracked map: %w", err))
		}
		l.tracked = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during cleanup: %w", errors.Join(errs...))
	}
	return nil
}
