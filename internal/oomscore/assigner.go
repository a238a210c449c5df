package oomscore

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/mrzor/oomguard/internal/attributes"
	"github.com/mrzor/oomguard/internal/procmeta"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Exempter answers whether a name is on the exemption list.
type Exempter interface {
	IsExempt(name string) bool
}

// Assigner classifies new processes and writes their OOM score.
type Assigner struct {
	fs        procmeta.FS
	exempter  Exempter
	scores    Scores
	logger    *zap.Logger
	audit     *zap.Logger
	tracer    trace.Tracer
	evaluator *attributes.Evaluator
}

// Option configures an Assigner.
type Option func(*Assigner)

// WithScores overrides the protected and marked scores.
func WithScores(s Scores) Option {
	return func(a *Assigner) { a.scores = s }
}

// WithLogger sets the operator-facing logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Assigner) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithAudit records every verdict on l.
func WithAudit(l *zap.Logger) Option {
	return func(a *Assigner) {
		if l != nil {
			a.audit = l
		}
	}
}

// WithTracer emits one span per assignment.
func WithTracer(t trace.Tracer) Option {
	return func(a *Assigner) {
		if t != nil {
			a.tracer = t
		}
	}
}

// WithEvaluator attaches custom attributes to spans and verdict records.
func WithEvaluator(e *attributes.Evaluator) Option {
	return func(a *Assigner) { a.evaluator = e }
}

// New returns an Assigner reading records under fs and consulting exempter.
func New(fs procmeta.FS, exempter Exempter, opts ...Option) *Assigner {
	a := &Assigner{
		fs:       fs,
		exempter: exempter,
		scores:   DefaultScores(),
		logger:   zap.NewNop(),
		audit:    zap.NewNop(),
		tracer:   noop.NewTracerProvider().Tracer("oomguard"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assign decides and commits the score of a just-created process.
func (a *Assigner) Assign(ctx context.Context, pid int) Result {
	_, span := a.tracer.Start(ctx, "oomscore.assign",
		trace.WithAttributes(attribute.Int("process.pid", pid)))
	defer span.End()

	result := Result{PID: pid}

	scorePath := a.fs.OOMScoreAdjPath(pid)
	if !a.fs.Exists(scorePath) {
		result.Outcome = OutcomeExited
		a.finish(span, result)
		return result
	}
	// Without a record there is nothing to classify; leave the score alone.
	if !a.fs.Exists(a.fs.CmdlinePath(pid)) {
		result.Outcome = OutcomeNoCmdline
		a.finish(span, result)
		return result
	}

	cmd := a.fs.Extract(pid)
	result.Basename = cmd.Basename()
	result.Verdict, result.MatchedName = a.classify(cmd)
	result.Score = a.scores.For(result.Verdict)

	if err := writeScore(scorePath, result.Score); err != nil {
		result.Outcome = OutcomeWriteFailed
		result.Err = err
	} else {
		result.Outcome = OutcomeWritten
	}

	customAttrs := a.customAttributes(pid, cmd)
	span.SetAttributes(customAttrs...)
	a.finish(span, result)
	a.record(result, customAttrs)
	return result
}

// classify checks each candidate name in order and stops at the first
// exemption. An empty command line is marked without any lookup.
func (a *Assigner) classify(cmd procmeta.CommandLine) (Verdict, string) {
	for _, name := range cmd.Candidates() {
		if a.exempter.IsExempt(name) {
			return Protected, name
		}
	}
	return MarkedForDeath, ""
}

func (a *Assigner) customAttributes(pid int, cmd procmeta.CommandLine) []attribute.KeyValue {
	if a.evaluator.Len() == 0 {
		return nil
	}
	attrs, err := a.evaluator.Evaluate(pid, cmd)
	if err != nil {
		a.logger.Warn("custom attribute evaluation failed", zap.Int("pid", pid), zap.Error(err))
	}
	return attrs
}

func (a *Assigner) finish(span trace.Span, r Result) {
	span.SetAttributes(attribute.String("oom.outcome", r.Outcome.String()))
	if !r.Attempted() {
		a.logger.Debug("process gone before scoring", zap.Int("pid", r.PID), zap.Stringer("outcome", r.Outcome))
		return
	}

	span.SetAttributes(
		attribute.String("process.executable.name", r.Basename),
		attribute.String("oom.verdict", r.Verdict.String()),
		attribute.Int("oom.score", r.Score),
	)
	if r.MatchedName != "" {
		span.SetAttributes(attribute.String("oom.exempted_by", r.MatchedName))
	}
	if r.Err != nil {
		span.RecordError(r.Err)
		span.SetStatus(codes.Error, "oom_score_adj write failed")
	}
}

func (a *Assigner) record(r Result, customAttrs []attribute.KeyValue) {
	fields := []zap.Field{
		zap.Int("pid", r.PID),
		zap.String("basename", r.Basename),
		zap.Stringer("verdict", r.Verdict),
		zap.Int("score", r.Score),
	}
	if r.MatchedName != "" {
		fields = append(fields, zap.String("exempted_by", r.MatchedName))
	}
	for _, kv := range customAttrs {
		fields = append(fields, zap.String(string(kv.Key), kv.Value.Emit()))
	}

	if r.Err != nil {
		fields = append(fields, zap.Stringer("outcome", r.Outcome), zap.Error(r.Err))
		a.audit.Warn("oom_score_adj write refused", fields...)
		a.logger.Debug("oom_score_adj write refused", fields...)
		return
	}
	a.audit.Info("oom_score_adj set", fields...)
	a.logger.Debug("oom_score_adj set", fields...)
}

// writeScore commits score to an existing attribute file; it never creates one.
func writeScore(path string, score int) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.Itoa(score) + "\n"); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
