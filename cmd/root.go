package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// rootCmd is the base command for the atrax binary.
var rootCmd = &cobra.Command{
	Use:   "atrax",
	Short: "Aggregate multiple MCP servers behind one logical MCP endpoint",
	Long: `atrax is a reverse proxy for the Model Context Protocol: it starts and supervises
a set of upstream MCP servers over stdio, docker, or HTTP, merges their tools, resources,
and prompts into a single namespace, and exposes the result to a downstream client as one
logical MCP server.`,
	SilenceUsage: true,
}

// SetVersion injects the build-time version into the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command. Called from main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "atrax version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}
