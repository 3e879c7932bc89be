package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"atrax/internal/config"
)

var listConfigPath string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the upstream MCP servers declared in a configuration file",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listConfigPath, "config", "atrax.json", "path to the atrax configuration file")
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(listConfigPath)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(cfg.MCPServers))
	for name := range cfg.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.Colors{text.FgHiBlue, text.Bold}.Sprint("NAME"),
		text.Colors{text.FgHiBlue, text.Bold}.Sprint("TRANSPORT"),
		text.Colors{text.FgHiBlue, text.Bold}.Sprint("TARGET"),
		text.Colors{text.FgHiBlue, text.Bold}.Sprint("DESCRIPTION"),
	})

	for _, name := range names {
		sc := cfg.MCPServers[name]
		target := sc.Command
		if sc.TransportType == config.TransportDocker {
			target = sc.Image
		} else if sc.TransportType == config.TransportHTTP {
			target = sc.URL
		}
		t.AppendRow(table.Row{
			text.Colors{text.FgHiBlue, text.Bold}.Sprint(name),
			string(sc.TransportType),
			target,
			sc.Description,
		})
	}

	t.Render()
	fmt.Printf("\n%s %d server(s)\n", text.FgHiBlue.Sprint("Total:"), len(names))
	return nil
}
