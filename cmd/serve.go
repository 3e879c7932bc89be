package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"atrax/internal/app"
)

var (
	serveConfigPath string
	serveDebug      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the atrax proxy and block until terminated",
	Long: `Loads the configuration file, starts every configured upstream MCP server under
supervision, and serves the merged namespace to a downstream client over stdio and HTTP.

Blocks until interrupted (SIGINT/SIGTERM), then drains in-flight requests before exiting.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "atrax.json", "path to the atrax configuration file")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "enable debug-level logging")
}

func runServe(cmd *cobra.Command, args []string) error {
	application, err := app.NewApplication(app.Options{ConfigPath: serveConfigPath, Debug: serveDebug})
	if err != nil {
		return fmt.Errorf("failed to initialize atrax: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}
