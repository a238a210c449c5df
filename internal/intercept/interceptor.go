package intercept

import (
	"context"

	"github.com/mrzor/oomguard/internal/oomscore"
	"go.uber.org/zap"
)

// Assigner scores a newly created process.
type Assigner interface {
	Assign(ctx context.Context, pid int) oomscore.Result
}

// Interceptor routes creation events to the assigner.
type Interceptor struct {
	assigner Assigner
	pids     *zap.Logger
	logger   *zap.Logger
}

// New returns an Interceptor. pids receives one record per child seen and
// logger gets operator diagnostics; either may be nil.
func New(assigner Assigner, pids, logger *zap.Logger) *Interceptor {
	if pids == nil {
		pids = zap.NewNop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interceptor{assigner: assigner, pids: pids, logger: logger}
}

// Handle processes one event. PARENT events are pass-through; CHILD events
// lead to exactly one assignment.
func (i *Interceptor) Handle(ctx context.Context, ev ProcessEvent) {
	if ev.Role != RoleChild || ev.PID <= 0 {
		return
	}

	i.pids.Info("pid seen", zap.Int("pid", ev.PID))
	result := i.assigner.Assign(ctx, ev.PID)
	i.logger.Debug("child scored",
		zap.Int("pid", ev.PID),
		zap.Stringer("outcome", result.Outcome),
		zap.Stringer("verdict", result.Verdict),
		zap.Int("score", result.Score),
	)
}

// HandleFork reports a creation by parent of child as its PARENT and CHILD
// events, in that order.
func (i *Interceptor) HandleFork(ctx context.Context, parent, child int) {
	i.Handle(ctx, ProcessEvent{PID: parent, Role: RoleParent})
	i.Handle(ctx, ProcessEvent{PID: child, Role: RoleChild})
}
