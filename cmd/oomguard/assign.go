package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newAssignCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "assign pid...",
		Short: "Score existing processes once",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pids := make([]int, 0, len(args))
			for _, arg := range args {
				pid, err := strconv.Atoi(arg)
				if err != nil || pid <= 0 {
					return fmt.Errorf("invalid pid %q", arg)
				}
				pids = append(pids, pid)
			}

			rt, cleanup, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer out.Flush()
			for _, pid := range pids {
				r := rt.assigner.Assign(cmd.Context(), pid)
				if !r.Attempted() {
					fmt.Fprintf(out, "%d\t%s\n", pid, r.Outcome)
					continue
				}
				fmt.Fprintf(out, "%d\t%s\t%s\t%s\t%d\n", pid, r.Outcome, r.Basename, r.Verdict, r.Score)
			}
			return nil
		},
	}
}
