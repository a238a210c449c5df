package eventstream

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cilium/ebpf/ringbuf"
	"github.com/mrzor/oomguard/internal/bpfloader"
	"github.com/mrzor/oomguard/internal/intercept"
	"github.com/mrzor/oomguard/internal/procmeta"
	"github.com/mrzor/oomguard/internal/timesync"
	"go.uber.org/zap"
)

// RecordReader yields raw ring buffer samples.
type RecordReader interface {
	Read() (ringbuf.Record, error)
}

// Fork is a decoded fork record.
type Fork struct {
	Parent int
	Child  int
	At     time.Time
}

// Stream dispatches fork records to a handler.
type Stream struct {
	reader    RecordReader
	handler   intercept.ForkHandler
	fs        procmeta.FS
	converter *timesync.Converter
	logger    *zap.Logger
}

// New creates a Stream.
func New(reader RecordReader, handler intercept.ForkHandler, fs procmeta.FS, converter *timesync.Converter, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{
		reader:    reader,
		handler:   handler,
		fs:        fs,
		converter: converter,
		logger:    logger,
	}
}

// Run reads until the reader is closed or ctx is done. Closing the reader is
// how callers unblock a pending Read.
func (s *Stream) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		record, err := s.reader.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				return nil
			}
			s.logger.Warn("reading from ring buffer", zap.Error(err))
			continue
		}

		fork, err := s.decode(record.RawSample)
		if err != nil {
			s.logger.Warn("parsing fork record", zap.Error(err))
			continue
		}
		s.dispatch(ctx, fork)
	}
}

func (s *Stream) dispatch(ctx context.Context, fork Fork) {
	// The tracepoint also fires for new threads.
	if !s.fs.IsThreadGroupLeader(fork.Child) {
		return
	}
	s.logger.Debug("fork observed",
		zap.Int("parent", fork.Parent),
		zap.Int("child", fork.Child),
		zap.Time("at", fork.At),
	)
	s.handler.HandleFork(ctx, fork.Parent, fork.Child)
}

func (s *Stream) decode(raw []byte) (Fork, error) {
	rec, err := decodeRecord(raw)
	if err != nil {
		return Fork{}, err
	}
	fork := Fork{Parent: int(rec.Parent), Child: int(rec.Child)}
	if s.converter != nil {
		fork.At = s.converter.ToWallClock(rec.KTime)
	}
	return fork, nil
}

func decodeRecord(raw []byte) (bpfloader.ForkRecord, error) {
	var rec bpfloader.ForkRecord
	if len(raw) < bpfloader.ForkRecordSize {
		return rec, fmt.Errorf("short fork record: %d bytes", len(raw))
	}
	if err := binary.Read(bytes.NewReader(raw), binary.NativeEndian, &rec); err != nil {
		return rec, err
	}
	return rec, nil
}
