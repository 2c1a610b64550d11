package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/germanamz/relay/pkg/agent"
	"github.com/germanamz/relay/pkg/metrics"
	"github.com/germanamz/relay/pkg/modeladapter"
	"github.com/germanamz/relay/pkg/tools/mcpclient"
	"github.com/germanamz/relay/pkg/tools/preset"
	"github.com/germanamz/relay/pkg/tools/registry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Defaults applied when neither the session nor the engine sets a value.
const (
	DefaultProviderKind = "openai"
	DefaultModel        = "gpt-4o-mini"
)

// CompleterFactory creates the model backend for a session.
type CompleterFactory func(cfg ProviderConfig) (modeladapter.Completer, error)

// ConnectionSource turns a session's server descriptors into unconnected
// connections. Descriptors that cannot be built are skipped by the source.
type ConnectionSource func(cfg SessionConfig) ([]Connection, error)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Sessions log through child loggers.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records sessions, connections, rounds and tool calls on rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = rec }
}

// WithPresets replaces the built-in preset catalog. Session presets are
// still overlaid on top.
func WithPresets(c preset.Catalog) Option {
	return func(e *Engine) { e.presets = c }
}

// WithEnv replaces os.Getenv for token_env lookups.
func WithEnv(getenv func(string) string) Option {
	return func(e *Engine) { e.getenv = getenv }
}

// WithProviderDefaults sets the values used for provider fields a session
// leaves empty.
func WithProviderDefaults(p ProviderConfig) Option {
	return func(e *Engine) { e.providerDefaults = p }
}

// WithCompleterFactory replaces the registered-provider lookup.
func WithCompleterFactory(f CompleterFactory) Option {
	return func(e *Engine) { e.newCompleter = f }
}

// WithCompleter uses c for every session regardless of provider settings.
func WithCompleter(c modeladapter.Completer) Option {
	return WithCompleterFactory(func(ProviderConfig) (modeladapter.Completer, error) { return c, nil })
}

// WithConnectionSource replaces the descriptor factory.
func WithConnectionSource(src ConnectionSource) Option {
	return func(e *Engine) { e.connections = src }
}

// WithClientInfo sets the client name and version announced to every MCP
// server.
func WithClientInfo(name, version string) Option {
	return func(e *Engine) { e.clientName, e.clientVersion = name, version }
}

// Engine assembles sessions from configuration. It holds no per-session
// state and may open several sessions concurrently.
type Engine struct {
	logger           *zap.Logger
	metrics          *metrics.Recorder
	presets          preset.Catalog
	getenv           func(string) string
	providerDefaults ProviderConfig
	newCompleter     CompleterFactory
	connections      ConnectionSource
	clientName       string
	clientVersion    string
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:       zap.NewNop(),
		presets:      preset.Builtins(),
		newCompleter: buildCompleter,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.connections == nil {
		e.connections = e.buildConnections
	}

	return e
}

// Invoke loads the session file at path and runs it.
func (e *Engine) Invoke(ctx context.Context, path string) (string, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return "", err
	}

	return e.InvokeConfig(ctx, cfg)
}

// InvokeConfig runs one session: it connects the configured servers, runs
// the agent on the prompt and closes every connection before returning.
// Close failures are logged and never replace the answer.
func (e *Engine) InvokeConfig(ctx context.Context, cfg SessionConfig) (answer string, err error) {
	start := time.Now()
	defer func() { e.metrics.Session(err, time.Since(start)) }()

	s, err := e.Open(ctx, cfg)
	if err != nil {
		return "", err
	}

	defer func() {
		_ = s.Close()

		usage := s.Usage()
		e.metrics.Tokens(usage.InputTokens, usage.OutputTokens)
	}()

	answer, err = s.Run(ctx)
	if err != nil {
		return "", fmt.Errorf("engine: session %s: %w", s.ID(), err)
	}

	return answer, nil
}

// Open validates cfg, connects its servers and builds the agent. Failed
// connections are logged and left out of the registry. The caller must
// Close the returned session.
func (e *Engine) Open(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return e.open(ctx, cfg)
}

// Connect is Open without the prompt requirement. It is used to inspect the
// merged tool catalog of a session file.
func (e *Engine) Connect(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if err := cfg.validate(false); err != nil {
		return nil, err
	}

	return e.open(ctx, cfg)
}

func (e *Engine) open(ctx context.Context, cfg SessionConfig) (*Session, error) {
	completer, err := e.newCompleter(e.resolveProvider(cfg))
	if err != nil {
		return nil, err
	}

	conns, err := e.connections(cfg)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	logger := e.logger.With(zap.String("session", id))

	// A session timeout covers connecting and the run. The connect context
	// stays alive until the session closes.
	var (
		deadline time.Time
		release  context.CancelFunc = func() {}
	)
	if cfg.SessionTimeout > 0 {
		deadline = time.Now().Add(cfg.SessionTimeout)
		ctx, release = context.WithDeadline(ctx, deadline)
	}

	results := connectAll(ctx, conns, logger, e.metrics)

	middleware := []agent.Middleware{agent.Recovery(), agent.Logger(logger, "relay")}
	if !deadline.IsZero() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			for _, r := range results {
				_ = r.Conn.Close()
			}
			release()
			return nil, fmt.Errorf("engine: session %s: connect: %w", id, context.DeadlineExceeded)
		}
		middleware = append([]agent.Middleware{agent.Timeout(remaining)}, middleware...)
	}

	live := make([]registry.Provider, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			live = append(live, r.Conn)
		}
	}

	tools := registry.Build(live...)
	for _, sh := range tools.Shadowed() {
		logger.Debug("tool shadowed",
			zap.String("tool", sh.Tool),
			zap.String("owner", sh.Owner),
			zap.String("shadowed", sh.Shadowed),
		)
	}

	logger.Info("session ready",
		zap.Int("connections", len(results)),
		zap.Int("live", len(live)),
		zap.Int("tools", tools.Len()),
	)

	s := &Session{
		id:      id,
		cfg:     cfg,
		results: results,
		tools:   tools,
		logger:  logger,
		release: release,
	}

	if r, ok := completer.(modeladapter.UsageReporter); ok {
		s.usage = r.UsageTracker()
	}

	s.agent = agent.New("relay", completer, tools, agent.Options{
		SystemPrompt: cfg.SystemPrompt,
		Context:      cfg.Context,
		MaxRounds:    cfg.MaxRounds,
		ToolTimeout:  cfg.ToolTimeout,
		Middleware:   middleware,
		Logger:       logger,
		Metrics:      e.metrics,
	})

	return s, nil
}

// resolveProvider merges the session's provider section with the engine
// defaults.
func (e *Engine) resolveProvider(cfg SessionConfig) ProviderConfig {
	p := cfg.Provider
	p.Model = cfg.Model
	p = mergeProvider(p, e.providerDefaults)

	if p.Kind == "" {
		p.Kind = DefaultProviderKind
	}
	if p.Model == "" {
		p.Model = DefaultModel
	}

	return p
}

func (e *Engine) buildConnections(cfg SessionConfig) ([]Connection, error) {
	catalog, err := cfg.PresetCatalog(e.presets)
	if err != nil {
		return nil, err
	}

	opts := []FactoryOption{
		WithFactoryLogger(e.logger),
		WithConnectionOptions(mcpclient.WithLogger(e.logger)),
	}
	if e.clientName != "" {
		opts = append(opts, WithConnectionOptions(mcpclient.WithImplementation(e.clientName, e.clientVersion)))
	}
	if e.getenv != nil {
		opts = append(opts, WithGetenv(e.getenv))
	}

	built := NewFactory(catalog, opts...).BuildAll(cfg.MCPServers)

	conns := make([]Connection, len(built))
	for i, c := range built {
		conns[i] = c
	}

	return conns, nil
}
