package main

import (
	"fmt"
	"os"

	"github.com/nmslite/snmppoller/internal/globals"
	"github.com/spf13/cobra"
)

func newExampleConfigCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "example-config",
		Short: "Print an example configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output == "" {
				return globals.DumpExampleConfig(cmd.OutOrStdout())
			}
			f, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			if err := globals.DumpExampleConfig(f); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout (must not exist)")
	return cmd
}
