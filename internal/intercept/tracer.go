package intercept

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/mrzor/oomguard/internal/procmeta"
	"go.uber.org/zap"
)

// ErrUnsupported is returned by Tracer.Run on platforms without ptrace fork
// reporting.
var ErrUnsupported = errors.New("process tracing is only supported on linux")

// ForkHandler receives every process creation seen by a Tracer.
type ForkHandler interface {
	HandleFork(ctx context.Context, parent, child int)
}

// Tracer runs a command and reports every process it creates, directly or
// through descendants.
type Tracer struct {
	handler ForkHandler
	fs      procmeta.FS
	logger  *zap.Logger

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithTracerLogger sets the diagnostics logger.
func WithTracerLogger(l *zap.Logger) TracerOption {
	return func(t *Tracer) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithStdio overrides the traced command's standard streams.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) TracerOption {
	return func(t *Tracer) {
		t.stdin, t.stdout, t.stderr = stdin, stdout, stderr
	}
}

// NewTracer returns a Tracer reporting to handler. fs is used to tell new
// processes from new threads.
func NewTracer(handler ForkHandler, fs procmeta.FS, opts ...TracerOption) *Tracer {
	t := &Tracer{
		handler: handler,
		fs:      fs,
		logger:  zap.NewNop(),
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}
