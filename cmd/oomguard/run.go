package main

import (
	"github.com/mrzor/oomguard/internal/intercept"
	"github.com/spf13/cobra"
)

func newRunCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] -- command [args...]",
		Short: "Run a command and score every process it creates",
		Long: `Run starts the command under ptrace and follows its whole process tree.
Each new process is scored before its creator resumes. oomguard exits with
the command's exit status once every traced process is gone.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			tracer := intercept.NewTracer(rt.interceptor, rt.fs,
				intercept.WithTracerLogger(rt.logger),
				intercept.WithStdio(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr()),
			)
			code, err := tracer.Run(cmd.Context(), args)
			if err != nil {
				return err
			}
			if code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}
