package main

import (
	"context"
	"fmt"
	"time"

	"github.com/mrzor/oomguard/internal/attributes"
	"github.com/mrzor/oomguard/internal/config"
	"github.com/mrzor/oomguard/internal/exemption"
	"github.com/mrzor/oomguard/internal/intercept"
	"github.com/mrzor/oomguard/internal/logging"
	"github.com/mrzor/oomguard/internal/oomscore"
	"github.com/mrzor/oomguard/internal/otel"
	"github.com/mrzor/oomguard/internal/procmeta"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// globalFlags override the OOMGUARD_* environment.
type globalFlags struct {
	exemptions  string
	pidLog      string
	decisionLog string
	procRoot    string
	logLevel    string
	attributes  []string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "oomguard",
		Short: "Mark a daemon's children for the OOM killer, sparing exempt ones",
		Long: `oomguard follows a process tree and writes oom_score_adj for every new
process: 1000 (marked for death) by default, -1000 (protected) when the
command line matches an entry of the exemption list.

Exemption list format, one entry per line:
  name     substring entry, matches when name is contained in the entry
  !name    exact entry
  # ...    comment`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.exemptions, "exemptions", "", "exemption list path (env OOMGUARD_EXEMPTIONS)")
	pf.StringVar(&flags.pidLog, "pid-log", "", "PID audit log path (env OOMGUARD_PID_LOG)")
	pf.StringVar(&flags.decisionLog, "decision-log", "", "decision audit log path (env OOMGUARD_DECISION_LOG)")
	pf.StringVar(&flags.procRoot, "proc-root", "", "proc filesystem mount point (env OOMGUARD_PROC_ROOT)")
	pf.StringVar(&flags.logLevel, "log-level", "", "console log level (env OOMGUARD_LOG_LEVEL)")
	pf.StringArrayVarP(&flags.attributes, "attribute", "a", nil, "custom attribute NAME=EXPR, repeatable")

	root.AddCommand(
		newRunCommand(flags),
		newWatchCommand(flags),
		newCheckCommand(flags),
		newAssignCommand(flags),
		newVersionCommand(),
	)
	return root
}

// loadConfig reads the environment and applies explicitly set flags.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("exemptions") {
		cfg.ExemptionsPath = flags.exemptions
	}
	if changed("pid-log") {
		cfg.PIDLogPath = flags.pidLog
	}
	if changed("decision-log") {
		cfg.DecisionLogPath = flags.decisionLog
	}
	if changed("proc-root") {
		cfg.ProcRoot = flags.procRoot
	}
	if changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	for _, spec := range flags.attributes {
		if err := cfg.AddAttribute(spec); err != nil {
			return nil, fmt.Errorf("--attribute %q: %w", spec, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// stack is everything a scoring command needs.
type stack struct {
	cfg         *config.Config
	logger      *zap.Logger
	audit       *logging.Audit
	provider    *otel.Provider
	fs          procmeta.FS
	store       *exemption.Store
	assigner    *oomscore.Assigner
	interceptor *intercept.Interceptor
}

// setup wires the components together. The returned cleanup flushes the
// audit logs and pending spans.
func setup(cmd *cobra.Command, flags *globalFlags) (*stack, func(), error) {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return nil, nil, err
	}
	provider, err := otel.Setup(otelCfg, fmt.Sprintf("%s (%s)", version, commit), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("ABORT: failed to initialize OTEL provider: %w", err)
	}

	evaluator, err := attributes.NewEvaluator(cfg.CustomAttributes())
	if err != nil {
		return nil, nil, err
	}

	audit := logging.OpenAudit(cfg.PIDLogPath, cfg.DecisionLogPath, logger)
	fs := procmeta.NewFS(cfg.ProcRoot)
	store := exemption.NewStore(cfg.ExemptionsPath, exemption.WithAudit(audit.Decisions))
	assigner := oomscore.New(fs, store,
		oomscore.WithScores(oomscore.Scores{Protected: cfg.ProtectedScore, Marked: cfg.MarkedScore}),
		oomscore.WithLogger(logger),
		oomscore.WithAudit(audit.Decisions),
		oomscore.WithTracer(provider.Tracer()),
		oomscore.WithEvaluator(evaluator),
	)

	rt := &stack{
		cfg:         cfg,
		logger:      logger,
		audit:       audit,
		provider:    provider,
		fs:          fs,
		store:       store,
		assigner:    assigner,
		interceptor: intercept.New(assigner, audit.PIDs, logger),
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", zap.Error(err))
		}
		if err := audit.Close(); err != nil {
			logger.Warn("closing audit logs", zap.Error(err))
		}
		_ = logger.Sync() //nolint:errcheck // stderr sync fails on terminals
	}
	return rt, cleanup, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "oomguard %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
