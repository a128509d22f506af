package main

import (
	"github.com/spf13/cobra"

	"github.com/clearway/claimflow/config"
	"github.com/clearway/claimflow/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server over stdio",
	Long: `Expose the retrieval tools and claim lookups over the Model Context
Protocol on stdin/stdout, for use as an MCP server in assistant clients.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		st, err := buildStack(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		srv, err := mcpserver.NewServer(st.deps)
		if err != nil {
			return err
		}
		return srv.Run(cmd.Context())
	},
}
