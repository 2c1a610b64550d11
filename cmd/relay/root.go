package main

import (
	"errors"
	"os"

	"github.com/germanamz/relay/pkg/engine"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	envFile string
	verbose bool

	// extra is appended to the engine options; tests use it to inject a
	// completer and connections.
	extra []engine.Option
}

func newRootCmd(extra ...engine.Option) *cobra.Command {
	g := &globals{extra: extra}

	root := &cobra.Command{
		Use:           "relay",
		Short:         "Run tool-using agent sessions against MCP servers",
		Long:          "relay connects to the MCP servers listed in a session file, runs the prompt through a tool-calling model and prints the final answer.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadDotEnv(g.envFile)
		},
	}

	root.PersistentFlags().StringVar(&g.envFile, "env", ".env", "path to .env file (ignored if missing)")
	root.PersistentFlags().BoolVar(&g.verbose, "verbose", false, "enable development logging on stderr")

	root.AddCommand(
		newRunCmd(g),
		newToolsCmd(g),
		newPresetsCmd(g),
		newServeLocalCmd(g),
	)

	return root
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// logger returns a development console logger with --verbose and a
// production JSON logger at warn level otherwise. Both write to stderr.
func (g *globals) logger() (*zap.Logger, error) {
	if g.verbose {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// engineOptions wires the provider defaults from the environment.
func (g *globals) engineOptions(logger *zap.Logger, opts ...engine.Option) []engine.Option {
	out := []engine.Option{
		engine.WithLogger(logger),
		engine.WithClientInfo("relay", version),
		engine.WithProviderDefaults(engine.ProviderConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Model:   os.Getenv("RELAY_MODEL"),
		}),
	}
	out = append(out, opts...)
	return append(out, g.extra...)
}
