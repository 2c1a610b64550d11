package engine

import (
	"fmt"
	"os"

	"github.com/germanamz/relay/pkg/fault"
	"github.com/germanamz/relay/pkg/tools/mcpclient"
	"github.com/germanamz/relay/pkg/tools/preset"
	"go.uber.org/zap"
)

// Server types accepted in MCPServerConfig.Type.
const (
	TypeLocal  = "local"
	TypeRemote = "remote"
)

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithGetenv replaces os.Getenv for token_env lookups.
func WithGetenv(getenv func(string) string) FactoryOption {
	return func(f *Factory) { f.getenv = getenv }
}

// WithFactoryLogger sets the logger used for skipped descriptors.
func WithFactoryLogger(l *zap.Logger) FactoryOption {
	return func(f *Factory) { f.logger = l }
}

// WithConnectionOptions adds options passed to every built connection.
func WithConnectionOptions(opts ...mcpclient.Option) FactoryOption {
	return func(f *Factory) { f.connOpts = append(f.connOpts, opts...) }
}

// Factory translates server descriptors into unconnected connections. It
// performs no I/O.
type Factory struct {
	presets  preset.Catalog
	getenv   func(string) string
	logger   *zap.Logger
	connOpts []mcpclient.Option
}

// NewFactory creates a Factory resolving preset_ref against presets.
func NewFactory(presets preset.Catalog, opts ...FactoryOption) *Factory {
	f := &Factory{
		presets: presets,
		getenv:  os.Getenv,
		logger:  zap.NewNop(),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Build translates one descriptor. index is its position in the session file
// and only names otherwise anonymous local servers.
func (f *Factory) Build(index int, desc MCPServerConfig) (*mcpclient.Connection, error) {
	const op = "engine: build connection"

	name := connectionName(index, desc)

	var ep mcpclient.Endpoint
	switch desc.Type {
	case TypeLocal:
		ep = mcpclient.Endpoint{Kind: mcpclient.KindLocal, Env: desc.Env, Dir: desc.Dir}

		switch {
		case desc.PresetRef != "":
			p, ok := f.presets.Lookup(desc.PresetRef)
			if !ok {
				return nil, fault.Newf(fault.ErrConfig, op, "%s: unknown preset %q", name, desc.PresetRef)
			}
			if desc.PresetMCPParamsAppend != nil {
				p = p.WithAppendedParams(*desc.PresetMCPParamsAppend)
			}
			cmd, args, err := p.Argv()
			if err != nil {
				return nil, fault.New(fault.ErrConfig, op, fmt.Errorf("%s: %w", name, err))
			}
			ep.Command, ep.Args = cmd, args

		case desc.Command != "":
			ep.Command, ep.Args = desc.Command, desc.Args

		default:
			return nil, fault.Newf(fault.ErrConfig, op, "%s: local server needs command or preset_ref", name)
		}

	case TypeRemote:
		if desc.URL == "" {
			return nil, fault.Newf(fault.ErrConfig, op, "%s: remote server needs url", name)
		}

		stream := mcpclient.Stream(desc.Stream)
		switch stream {
		case "":
			stream = mcpclient.StreamStreamable
		case mcpclient.StreamStreamable, mcpclient.StreamSSE:
		default:
			return nil, fault.Newf(fault.ErrConfig, op, "%s: unknown stream %q", name, desc.Stream)
		}

		token := desc.Token
		if token == "" && desc.TokenEnv != "" {
			token = f.getenv(desc.TokenEnv)
		}

		ep = mcpclient.Endpoint{Kind: mcpclient.KindRemote, URL: desc.URL, Token: token, Stream: stream}

	default:
		return nil, fault.Newf(fault.ErrConfig, op, "%s: unknown type %q", name, desc.Type)
	}

	return mcpclient.New(name, ep, f.connOpts...), nil
}

// BuildAll builds every descriptor in order, skipping and logging the ones
// that fail.
func (f *Factory) BuildAll(descs []MCPServerConfig) []*mcpclient.Connection {
	conns := make([]*mcpclient.Connection, 0, len(descs))

	for i, d := range descs {
		c, err := f.Build(i, d)
		if err != nil {
			f.logger.Warn("skipping mcp server", zap.Int("index", i), zap.Error(err))
			continue
		}
		conns = append(conns, c)
	}

	return conns
}

func connectionName(index int, desc MCPServerConfig) string {
	switch {
	case desc.Name != "":
		return desc.Name
	case desc.ID != "":
		return desc.ID
	case desc.Type == TypeRemote && desc.URL != "":
		return "remote-" + desc.URL
	default:
		return fmt.Sprintf("local-%d", index)
	}
}
