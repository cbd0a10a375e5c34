package main

import (
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/miradorstack/pipeline-rca/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the classifier, notifications and knowledge base as MCP tools over stdio",
	RunE: func(cmd *cobra.Command, _ []string) error {
		// stdout carries the protocol stream.
		a, err := newApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()
		a.logger.Info("starting MCP server over stdio")
		return mcpserver.NewServer(a.logger, a.svc, version).Run(cmd.Context())
	},
}
