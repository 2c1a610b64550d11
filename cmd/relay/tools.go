package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/germanamz/relay/pkg/engine"
	"github.com/spf13/cobra"
)

func newToolsCmd(g *globals) *cobra.Command {
	var config string

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Connect to the session's servers and list the merged tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := engine.LoadConfig(config)
			if err != nil {
				return err
			}

			logger, err := g.logger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			s, err := engine.New(g.engineOptions(logger)...).Connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			out := cmd.OutOrStdout()
			for _, r := range s.Results() {
				status := "ok"
				if r.Err != nil {
					status = "failed: " + r.Err.Error()
				}
				fmt.Fprintf(out, "# %s (%s)\n", r.Conn.Name(), status)
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TOOL\tPROVIDER\tDESCRIPTION")
			for _, d := range s.Tools().Descriptors() {
				owner, _ := s.Tools().Lookup(d.Name)
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, owner.Name(), d.Description)
			}
			for _, sh := range s.Tools().Shadowed() {
				fmt.Fprintf(w, "%s\t%s\t(shadowed by %s)\n", sh.Tool, sh.Shadowed, sh.Owner)
			}

			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&config, "config", "c", "", "path to the session file")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}
