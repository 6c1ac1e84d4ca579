package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/nmslite/snmppoller/internal/globals"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and print the plan of every target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := globals.Load(cfgFile)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TARGET\tHOST\tVERSION\tPLAN\tGROUPS\tPENDING TABLES\tINTERVAL")
			for i := range cfg.Targets {
				t := &cfg.Targets[i]
				p, err := t.BuildPlan(cfg.SNMP, slog.New(slog.DiscardHandler))
				if err != nil {
					return fmt.Errorf("target %s: %w", t.Name, err)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					t.Name, t.Host, t.Version, p.Version(), len(p.Groups()), p.Pending(),
					t.PollingInterval(cfg.Scheduler.DefaultPollingIntervalSeconds),
				)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration %s is valid\n", cfgFile)
			return nil
		},
	}
}
