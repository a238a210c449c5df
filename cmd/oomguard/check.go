package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/mrzor/oomguard/internal/exemption"
	"github.com/mrzor/oomguard/internal/oomscore"
	"github.com/spf13/cobra"
)

func newCheckCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check [name...]",
		Short: "Show how names classify against the exemption list",
		Long: `Check looks each name up in the exemption list exactly as a new process's
basename or argument would be. Without names it lists the valid entries.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			store := exemption.NewStore(cfg.ExemptionsPath)
			out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer out.Flush()

			if len(args) == 0 {
				entries, err := store.Entries()
				if err != nil {
					return fmt.Errorf("reading %s: %w", store.Path(), err)
				}
				for _, e := range entries {
					fmt.Fprintf(out, "%s\t%s\n", e.Pattern, e.Mode)
				}
				return nil
			}

			scores := oomscore.Scores{Protected: cfg.ProtectedScore, Marked: cfg.MarkedScore}
			for _, name := range args {
				verdict := oomscore.MarkedForDeath
				if store.IsExempt(name) {
					verdict = oomscore.Protected
				}
				fmt.Fprintf(out, "%s\t%s\t%d\n", name, verdict, scores.For(verdict))
			}
			return nil
		},
	}
}
