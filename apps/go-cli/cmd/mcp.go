package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/slush-dev/pushbridge/apphost"
	"github.com/slush-dev/pushbridge/apps/go-cli/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP (Model Context Protocol) server on stdio",
	Long: `Start an MCP server that exposes the push bridge as tools and resources:
fetching tokens, delivering notification taps and starting the app runtime.

The server communicates via JSON-RPC over stdin/stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, rt := newMCPServer(slog.Default())
		defer rt.Close()
		return s.Run(cmd.Context())
	},
}

// newMCPServer wires the bridge components from cfg around logger, which is
// the default logger installed by the root command.
func newMCPServer(logger *slog.Logger) (*mcpserver.BridgeMCPServer, *apphost.Runtime) {
	rt := newRuntime(cfg, logger)
	s := mcpserver.New(mcpserver.Deps{
		Tokens:    newTokenProvider(cfg, newFCMClient(cfg, logger), logger),
		Runtime:   rt,
		Device:    newDevice(cfg, logger),
		EventName: cfg.EventName,
	}, rootCmd.Version, logger)
	return s, rt
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
