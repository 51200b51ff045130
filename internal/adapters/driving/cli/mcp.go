package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/stitch/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/stitch/internal/adapters/driving/mcp"
	"github.com/custodia-labs/stitch/internal/logger"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) read-side server.`,
}

var mcpServeCmd = withServices(&cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start a read-only Model Context Protocol server exposing session
progress, chunk state and segment summaries to AI assistants.

Stdio is used by default. Pass --addr to serve streamable HTTP instead;
'stitch serve --mcp' mounts the same endpoint at /mcp on the API server.

Examples:
  stitch mcp serve
  stitch mcp serve --addr :8090

Assistant configuration:
  {
    "mcpServers": {
      "stitch": {"command": "/path/to/stitch", "args": ["mcp", "serve"]}
    }
  }`,
	RunE: runMCPServe,
})

func init() {
	mcpServeCmd.Flags().String("addr", "", "HTTP listen address (empty = stdio)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func newMCPServer() (*mcp.Server, error) {
	return mcp.NewServer(&mcp.Ports{Query: services.Query})
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return fmt.Errorf("getting addr flag: %w", err)
	}

	server, err := newMCPServer()
	if err != nil {
		return err
	}
	if addr == "" {
		return server.Run(cmd.Context())
	}

	httpServer := httpapi.NewServer(addr, server.Handler())
	if err := httpServer.Start(); err != nil {
		return err
	}
	logger.Info("mcp listening on %s", httpServer.Addr())
	cmd.Printf("MCP server listening on http://%s\n", httpServer.Addr())
	return waitAndStop(cmd.Context(), httpServer, nil)
}
