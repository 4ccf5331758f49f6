package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/microfactory-run/microfactory/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose run/status/resume/subprocess as MCP tools over stdio",
	RunE:  runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close(cmd.Context())

	srv := mcpserver.New(mcpserver.Deps{
		Runner: newMCPRunnerShim(app.runner),
		Store:  app.store,
		Logger: app.logger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Serve(ctx)
}
