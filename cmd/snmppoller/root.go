package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	version = "dev" // set by build flags
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "snmppoller",
		Version: version,
		Short:   "Scheduled SNMP poller",
		Long: `snmppoller polls a fixed set of SNMP agents. Scalars are fetched in one
exchange per cycle, tables are discovered after the first successful cycle
and walked with bulk requests from then on.`,
		Example: `  # Start polling with the default config file
  snmppoller run

  # Write an example configuration
  snmppoller example-config --output config.yaml

  # Check a configuration and print the resulting plans
  snmppoller validate --config config.yaml`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "Configuration file path")

	root.AddCommand(newRunCmd(), newValidateCmd(), newExampleConfigCmd(), newHashPasswordCmd())
	return root
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
