package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/crew/internal/mcpserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the crew tools over MCP (stdio)",
	Long: `Serve the crew tools to a session layer over the Model Context Protocol.

The server reads JSON-RPC from stdin and writes responses to stdout, so
it is normally launched by the agent host rather than by hand. Logs go
to the configured log directory, never to stdout.

Example MCP client entry:
  {"command": "crew", "args": ["serve"]}`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return mcpserver.Serve(ctx, cfg)
}
