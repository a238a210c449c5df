package oomscore

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/mrzor/oomguard/internal/attributes"
	"github.com/mrzor/oomguard/internal/config"
	"github.com/mrzor/oomguard/internal/exemption"
	"github.com/mrzor/oomguard/internal/procmeta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// recordingExempter remembers every name it was asked about.
type recordingExempter struct {
	exempt  map[string]bool
	queried []string
}

func (r *recordingExempter) IsExempt(name string) bool {
	r.queried = append(r.queried, name)
	return r.exempt[name]
}

type fakeProc struct {
	t    *testing.T
	root string
}

func newFakeProc(t *testing.T) *fakeProc {
	return &fakeProc{t: t, root: t.TempDir()}
}

func (p *fakeProc) fs() procmeta.FS {
	return procmeta.NewFS(p.root)
}

func (p *fakeProc) write(pid int, name, content string) {
	p.t.Helper()
	dir := filepath.Join(p.root, strconv.Itoa(pid))
	require.NoError(p.t, os.MkdirAll(dir, 0o755))
	require.NoError(p.t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func (p *fakeProc) spawn(pid int, cmdline string) {
	p.write(pid, "oom_score_adj", "0\n")
	p.write(pid, "cmdline", cmdline)
}

func (p *fakeProc) score(pid int) string {
	p.t.Helper()
	b, err := os.ReadFile(filepath.Join(p.root, strconv.Itoa(pid), "oom_score_adj"))
	require.NoError(p.t, err)
	return string(b)
}

func writeList(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oom_whitelist")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAssign_SubstringEntryProtectsBasename(t *testing.T) {
	proc := newFakeProc(t)
	proc.spawn(100, "/usr/sbin/sshd\x00-D\x00")
	a := New(proc.fs(), exemption.NewStore(writeList(t, "sshd\n")))

	result := a.Assign(context.Background(), 100)

	assert.Equal(t, OutcomeWritten, result.Outcome)
	assert.Equal(t, Protected, result.Verdict)
	assert.Equal(t, -1000, result.Score)
	assert.Equal(t, "sshd", result.Basename)
	assert.Equal(t, "sshd", result.MatchedName)
	assert.Equal(t, "-1000\n", proc.score(100))
}

func TestAssign_ExactEntryDoesNotProtectShell(t *testing.T) {
	proc := newFakeProc(t)
	proc.spawn(101, "/bin/sh\x00-c\x00whoami\x00")
	exempter := &recordingExempter{exempt: map[string]bool{"sshd": true}}
	a := New(proc.fs(), exempter)

	result := a.Assign(context.Background(), 101)

	assert.Equal(t, MarkedForDeath, result.Verdict)
	assert.Equal(t, 1000, result.Score)
	assert.Equal(t, []string{"sh", "-c", "whoami"}, exempter.queried)
	assert.Equal(t, "1000\n", proc.score(101))

	// Same scenario through the real store.
	proc.spawn(102, "/bin/sh\x00-c\x00whoami\x00")
	a = New(proc.fs(), exemption.NewStore(writeList(t, "!sshd\n")))
	assert.Equal(t, MarkedForDeath, a.Assign(context.Background(), 102).Verdict)
	assert.Equal(t, "1000\n", proc.score(102))
}

func TestAssign_ArgumentMatchProtects(t *testing.T) {
	proc := newFakeProc(t)
	proc.spawn(103, "/bin/sh\x00-c\x00backup nightly\x00")
	exempter := &recordingExempter{exempt: map[string]bool{"backup": true}}
	a := New(proc.fs(), exempter)

	result := a.Assign(context.Background(), 103)

	assert.Equal(t, Protected, result.Verdict)
	assert.Equal(t, "backup", result.MatchedName)
	assert.Equal(t, []string{"sh", "-c", "backup"}, exempter.queried, "scan stops at the first match")
}

func TestAssign_UnreadableRecordIsMarkedWithoutLookup(t *testing.T) {
	proc := newFakeProc(t)
	proc.spawn(104, "")
	exempter := &recordingExempter{exempt: map[string]bool{"": true}}
	a := New(proc.fs(), exempter)

	result := a.Assign(context.Background(), 104)

	assert.Equal(t, OutcomeWritten, result.Outcome)
	assert.Equal(t, MarkedForDeath, result.Verdict)
	assert.Equal(t, 1000, result.Score)
	assert.Empty(t, exempter.queried)
	assert.Equal(t, "1000\n", proc.score(104))
}

func TestAssign_ExitedProcessIsLeftAlone(t *testing.T) {
	proc := newFakeProc(t)
	exempter := &recordingExempter{}
	a := New(proc.fs(), exempter)

	result := a.Assign(context.Background(), 105)

	assert.Equal(t, OutcomeExited, result.Outcome)
	assert.False(t, result.Attempted())
	assert.Empty(t, exempter.queried)
	assert.NoDirExists(t, filepath.Join(proc.root, "105"), "no attribute file may be created")
}

func TestAssign_MissingCmdlineDoesNothing(t *testing.T) {
	proc := newFakeProc(t)
	proc.write(106, "oom_score_adj", "0\n")
	a := New(proc.fs(), &recordingExempter{})

	result := a.Assign(context.Background(), 106)

	assert.Equal(t, OutcomeNoCmdline, result.Outcome)
	assert.Equal(t, "0\n", proc.score(106))
}

func TestAssign_WriteFailureIsAbsorbed(t *testing.T) {
	proc := newFakeProc(t)
	proc.write(107, "cmdline", "cron\x00")
	// A directory in place of the attribute makes the write fail.
	require.NoError(t, os.MkdirAll(filepath.Join(proc.root, "107", "oom_score_adj"), 0o755))
	core, logs := observer.New(zapcore.InfoLevel)
	a := New(proc.fs(), &recordingExempter{}, WithAudit(zap.New(core)))

	result := a.Assign(context.Background(), 107)

	assert.Equal(t, OutcomeWriteFailed, result.Outcome)
	assert.True(t, result.Attempted())
	assert.Error(t, result.Err)
	assert.Equal(t, MarkedForDeath, result.Verdict)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "oom_score_adj write refused", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "write_failed", fields["outcome"])
	assert.Equal(t, "marked_for_death", fields["verdict"])
	assert.Equal(t, int64(1000), fields["score"])
}

func TestAssign_CustomScores(t *testing.T) {
	proc := newFakeProc(t)
	proc.spawn(108, "/usr/sbin/cron\x00-f\x00")
	proc.spawn(109, "/usr/bin/ruby\x00")
	a := New(proc.fs(), &recordingExempter{exempt: map[string]bool{"cron": true}},
		WithScores(Scores{Protected: -17, Marked: 500}))

	assert.Equal(t, -17, a.Assign(context.Background(), 108).Score)
	assert.Equal(t, "-17\n", proc.score(108))
	assert.Equal(t, 500, a.Assign(context.Background(), 109).Score)
	assert.Equal(t, "500\n", proc.score(109))
}

func TestAssign_AuditAndSpan(t *testing.T) {
	proc := newFakeProc(t)
	proc.spawn(110, "/usr/sbin/sshd\x00-D\x00")

	core, logs := observer.New(zapcore.InfoLevel)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	evaluator, err := attributes.NewEvaluator([]config.CustomAttribute{{Name: "argc", Expression: "len(args)"}})
	require.NoError(t, err)

	a := New(proc.fs(), &recordingExempter{exempt: map[string]bool{"sshd": true}},
		WithAudit(zap.New(core)),
		WithTracer(provider.Tracer("test")),
		WithEvaluator(evaluator),
	)
	a.Assign(context.Background(), 110)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, int64(110), fields["pid"])
	assert.Equal(t, "protected", fields["verdict"])
	assert.Equal(t, int64(-1000), fields["score"])
	assert.Equal(t, "2", fields["argc"])

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "oomscore.assign", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("oom.verdict", "protected"))
	assert.Contains(t, spans[0].Attributes(), attribute.String("argc", "2"))
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestAssign_FailedWriteMarksSpan(t *testing.T) {
	proc := newFakeProc(t)
	proc.write(111, "cmdline", "cron\x00")
	require.NoError(t, os.MkdirAll(filepath.Join(proc.root, "111", "oom_score_adj"), 0o755))

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	a := New(proc.fs(), &recordingExempter{}, WithTracer(provider.Tracer("test")))

	a.Assign(context.Background(), 111)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestVerdictAndOutcomeStrings(t *testing.T) {
	assert.Equal(t, "protected", Protected.String())
	assert.Equal(t, "marked_for_death", MarkedForDeath.String())
	assert.Equal(t, "written", OutcomeWritten.String())
	assert.Equal(t, "exited", OutcomeExited.String())
	assert.Equal(t, "no_cmdline", OutcomeNoCmdline.String())
	assert.Equal(t, "write_failed", OutcomeWriteFailed.String())
	assert.Equal(t, -1000, DefaultScores().For(Protected))
	assert.Equal(t, 1000, DefaultScores().For(MarkedForDeath))
}
