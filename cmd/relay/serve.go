package main

import (
	"os/signal"
	"syscall"

	"github.com/germanamz/relay/pkg/tools/localtools"
	"github.com/germanamz/relay/pkg/tools/mcpserver"
	"github.com/spf13/cobra"
)

func newServeLocalCmd(*globals) *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "serve-local",
		Short: "Serve the built-in filesystem tools over stdio MCP",
		Long:  "serve-local exposes list_files and read_file for the files below --root. Point a local mcp_servers entry at `relay serve-local --root DIR` to use them.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			s := mcpserver.New("relay-local", version)
			s.Register(localtools.New(root).Tools()...)

			return s.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "directory the tools are confined to")

	return cmd
}
