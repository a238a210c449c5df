package logging

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// auditFlushInterval bounds how long a record may sit in the buffer.
const auditFlushInterval = time.Second

// Audit is the pair of append-only diagnostic logs.
type Audit struct {
	// PIDs records each created process seen.
	PIDs *zap.Logger
	// Decisions records each exemption check and each verdict.
	Decisions *zap.Logger

	syncers []*zapcore.BufferedWriteSyncer
	files   []*os.File
}

// NopAudit discards every record.
func NopAudit() *Audit {
	return &Audit{PIDs: zap.NewNop(), Decisions: zap.NewNop()}
}

// OpenAudit opens both logs for appending. A log that cannot be opened
// becomes a no-op and is reported on console; it never fails the caller.
func OpenAudit(pidPath, decisionPath string, console *zap.Logger) *Audit {
	a := &Audit{}
	a.PIDs = a.open(pidPath, console)
	a.Decisions = a.open(decisionPath, console)
	return a
}

func (a *Audit) open(path string, console *zap.Logger) *zap.Logger {
	if path == "" {
		return zap.NewNop()
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		console.Warn("audit log unavailable, records will be dropped", zap.String("path", path), zap.Error(err))
		return zap.NewNop()
	}

	ws := &zapcore.BufferedWriteSyncer{
		WS:            zapcore.AddSync(f),
		FlushInterval: auditFlushInterval,
	}
	a.syncers = append(a.syncers, ws)
	a.files = append(a.files, f)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), ws, zapcore.InfoLevel))
}

// Close flushes pending records and closes the files.
func (a *Audit) Close() error {
	var firstErr error
	for _, ws := range a.syncers {
		if err := ws.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, f := range a.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.syncers, a.files = nil, nil
	return firstErr
}
