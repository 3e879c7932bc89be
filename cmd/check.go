package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"atrax/internal/config"
)

var checkConfigPath string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a configuration file without starting the proxy",
	Long: `Loads the configuration file, applies documented defaults, and runs every
validation rule atrax would run at startup — without starting any upstream session or
listener. Exits non-zero and prints every validation error found.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkConfigPath, "config", "atrax.json", "path to the atrax configuration file")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(checkConfigPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d upstream server(s) configured, conflict strategy %q, listening on %s:%d\n",
		checkConfigPath, len(cfg.MCPServers), cfg.ConflictStrategy, cfg.Host, cfg.Port)
	return nil
}
