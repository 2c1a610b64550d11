package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/germanamz/relay/pkg/engine"
	"github.com/germanamz/relay/pkg/tools/preset"
	"github.com/spf13/cobra"
)

func newPresetsCmd(*globals) *cobra.Command {
	var config string

	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List the launch presets for local servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog := preset.Builtins()

			if config != "" {
				cfg, err := engine.LoadConfig(config)
				if err != nil {
					return err
				}
				if catalog, err = cfg.PresetCatalog(catalog); err != nil {
					return err
				}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCOMMAND")
			for _, name := range catalog.Names() {
				p, _ := catalog.Lookup(name)
				fmt.Fprintf(w, "%s\t%s\n", name, p.CommandLine())
			}

			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&config, "config", "c", "", "also include the presets declared in this session file")

	return cmd
}
