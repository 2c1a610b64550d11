package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/germanamz/relay/pkg/engine"
	"github.com/germanamz/relay/pkg/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runFlags struct {
	config      string
	model       string
	maxRounds   int
	render      bool
	metricsAddr string
}

func newRunCmd(g *globals) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the session file and print the final answer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd, g, f)
		},
	}

	cmd.Flags().StringVarP(&f.config, "config", "c", "", "path to the session file")
	cmd.Flags().StringVar(&f.model, "model", "", "model identifier (overrides the session file)")
	cmd.Flags().IntVar(&f.maxRounds, "max-rounds", 0, "maximum model rounds (overrides the session file, 0 keeps it)")
	cmd.Flags().BoolVar(&f.render, "render", false, "render the answer as markdown")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runSession(cmd *cobra.Command, g *globals, f *runFlags) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := engine.LoadConfig(f.config)
	if err != nil {
		return err
	}
	if f.model != "" {
		cfg.Model = f.model
	}
	if f.maxRounds > 0 {
		cfg.MaxRounds = f.maxRounds
	}

	logger, err := g.logger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var opts []engine.Option
	if f.metricsAddr != "" {
		rec := metrics.New("relay")
		opts = append(opts, engine.WithMetrics(rec))

		stop, err := serveMetrics(f.metricsAddr, rec, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	answer, err := engine.New(g.engineOptions(logger, opts...)...).InvokeConfig(ctx, cfg)
	if err != nil {
		return err
	}

	if f.render {
		answer = renderMarkdown(answer)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), answer)
	return err
}

// serveMetrics exposes rec on addr until the returned stop func is called.
func serveMetrics(addr string, rec *metrics.Recorder, logger *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics: listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// renderMarkdown formats text for the terminal. The raw text is returned if
// the renderer cannot be built.
func renderMarkdown(text string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return text
	}

	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return out
}
