package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dukerupert/shepherd/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP tool server on stdio",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []mcp.Option{mcp.WithDirectory(a.directory)}
	if a.notion != nil {
		opts = append(opts, mcp.WithContacts(a.notion))
	}
	srv := mcp.NewServer(a.engine, cmd.Root().Version, a.logger.With("component", "mcp"), opts...)
	return srv.Run(ctx, os.Stdin, os.Stdout)
}
