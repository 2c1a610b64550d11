package mcpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/germanamz/relay/pkg/fault"
	"github.com/germanamz/relay/pkg/tools/registry"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

var (
	// ErrNotConnected is returned by Invoke unless the connection is live.
	ErrNotConnected = errors.New("mcpclient: not connected")

	// ErrAlreadyConnected is returned by a second call to Connect.
	ErrAlreadyConnected = errors.New("mcpclient: connect already attempted")
)

// State is the lifecycle stage of a Connection.
type State int

const (
	StateUninitialized State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures a Connection.
type Option func(*Connection)

// WithLogger sets the logger. The connection name is added as a field.
func WithLogger(l *zap.Logger) Option {
	return func(c *Connection) { c.logger = l }
}

// WithTransport bypasses the endpoint and connects over t instead.
func WithTransport(t mcp.Transport) Option {
	return func(c *Connection) { c.transport = t }
}

// WithHTTPClient sets the HTTP client used by remote endpoints.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connection) { c.httpClient = client }
}

// WithImplementation sets the client name and version announced during the
// handshake.
func WithImplementation(name, version string) Option {
	return func(c *Connection) { c.impl = mcp.Implementation{Name: name, Version: version} }
}

// Connection is a client for one MCP tool provider. It implements
// registry.Provider.
type Connection struct {
	name       string
	endpoint   Endpoint
	logger     *zap.Logger
	transport  mcp.Transport
	httpClient *http.Client
	impl       mcp.Implementation

	mu        sync.Mutex
	state     State
	attempted bool
	session   *mcp.ClientSession
	tools     []registry.Descriptor
	published map[string]struct{}
}

// New returns an unconnected Connection. No I/O happens until Connect.
func New(name string, ep Endpoint, opts ...Option) *Connection {
	c := &Connection{
		name:     name,
		endpoint: ep,
		logger:   zap.NewNop(),
		impl:     mcp.Implementation{Name: "relay", Version: "0.1.0"},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With(zap.String("connection", name))

	return c
}

// Name returns the connection name.
func (c *Connection) Name() string { return c.name }

// Endpoint returns the endpoint the connection was built from.
func (c *Connection) Endpoint() Endpoint { return c.endpoint }

// State returns the current lifecycle stage.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Connect opens the transport, performs the MCP handshake and fetches the
// provider's tool catalog. It may be called once per Connection. The lock is
// not held during I/O, so State and Close do not wait for a slow handshake.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.attempted || c.state != StateUninitialized {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.attempted = true
	c.state = StateConnecting
	c.mu.Unlock()

	const op = "mcpclient: connect"

	session, tools, err := c.handshake(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		if session != nil {
			_ = session.Close()
		}
		return fault.New(fault.ErrConnection, op, fmt.Errorf("%s: closed while connecting", c.name))
	}
	if err != nil {
		c.state = StateUninitialized
		return err
	}

	c.session = session
	c.published = make(map[string]struct{}, len(tools))
	c.tools = make([]registry.Descriptor, 0, len(tools))
	for _, d := range tools {
		if _, dup := c.published[d.Name]; dup {
			c.logger.Debug("duplicate tool in provider catalog", zap.String("tool", d.Name))
			continue
		}
		c.published[d.Name] = struct{}{}
		c.tools = append(c.tools, d)
	}
	c.state = StateConnected

	c.logger.Info("connected",
		zap.String("endpoint", c.endpoint.String()),
		zap.Int("tools", len(c.tools)),
	)

	return nil
}

func (c *Connection) handshake(ctx context.Context) (*mcp.ClientSession, []registry.Descriptor, error) {
	const op = "mcpclient: connect"

	transport, err := c.newTransport()
	if err != nil {
		return nil, nil, err
	}

	impl := c.impl
	client := mcp.NewClient(&impl, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, nil, fault.New(fault.ErrConnection, op, fmt.Errorf("%s: %w", c.name, err))
	}

	tools, err := listTools(ctx, session)
	if err != nil {
		_ = session.Close()
		return nil, nil, fault.New(fault.ErrConnection, op, fmt.Errorf("%s: list tools: %w", c.name, err))
	}

	return session, tools, nil
}

// Tools returns a copy of the provider's catalog, or nil unless connected.
func (c *Connection) Tools() []registry.Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected {
		return nil
	}

	cp := make([]registry.Descriptor, len(c.tools))
	copy(cp, c.tools)

	return cp
}

// Invoke calls a tool on the provider and returns its result as text.
// args must be a JSON object; an empty payload is sent as {}.
func (c *Connection) Invoke(ctx context.Context, tool string, args json.RawMessage) (string, error) {
	c.mu.Lock()
	state, session := c.state, c.session
	_, known := c.published[tool]
	c.mu.Unlock()

	if state != StateConnected {
		return "", fmt.Errorf("mcpclient: invoke %q on %s (%s): %w", tool, c.name, state, ErrNotConnected)
	}

	const op = "mcpclient: invoke"

	if !known {
		return "", fault.New(fault.ErrToolNotFound, op, errors.New(tool))
	}

	arguments, err := parseArguments(args)
	if err != nil {
		return "", fault.New(fault.ErrArgumentParse, op, fmt.Errorf("%s: %w", tool, err))
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      tool,
		Arguments: arguments,
	})
	if err != nil {
		return "", fault.New(fault.ErrToolExecution, op, fmt.Errorf("%s: %w", tool, err))
	}

	text := resultText(result)
	if result.IsError {
		return "", fault.New(fault.ErrToolExecution, op, fmt.Errorf("%s: %s", tool, text))
	}

	return text, nil
}

// Close releases the session and anything it owns. It is safe to call more
// than once and on a connection that never connected.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return nil
	}

	session := c.session
	c.session = nil
	c.tools = nil
	c.published = nil
	c.state = StateClosed

	if session == nil {
		return nil
	}

	if err := session.Close(); err != nil {
		c.logger.Warn("close failed", zap.Error(err))
		return fmt.Errorf("mcpclient: close %s: %w", c.name, err)
	}

	c.logger.Debug("closed")

	return nil
}

func listTools(ctx context.Context, session *mcp.ClientSession) ([]registry.Descriptor, error) {
	var (
		out    []registry.Descriptor
		cursor string
		seen   = make(map[string]struct{})
	)

	for {
		res, err := session.ListTools(ctx, &mcp.ListToolsParams{Cursor: cursor})
		if err != nil {
			return nil, err
		}

		for _, t := range res.Tools {
			d, err := fromSDKTool(t)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}

		if res.NextCursor == "" {
			return out, nil
		}
		if _, dup := seen[res.NextCursor]; dup {
			return nil, fmt.Errorf("cursor %q repeated", res.NextCursor)
		}
		seen[res.NextCursor] = struct{}{}
		cursor = res.NextCursor
	}
}

func fromSDKTool(t *mcp.Tool) (registry.Descriptor, error) {
	d := registry.Descriptor{Name: t.Name, Description: t.Description}

	if t.InputSchema != nil {
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			return registry.Descriptor{}, fmt.Errorf("tool %q: marshal input schema: %w", t.Name, err)
		}
		d.InputSchema = schema
	}

	return d, nil
}

func parseArguments(args json.RawMessage) (map[string]any, error) {
	if len(bytes.TrimSpace(args)) == 0 {
		return map[string]any{}, nil
	}

	var m map[string]any
	if err := json.Unmarshal(args, &m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.New("arguments must be a JSON object")
	}

	return m, nil
}

// resultText prefers structured content, then text content, then the raw
// result encoded as JSON.
func resultText(result *mcp.CallToolResult) string {
	if result.StructuredContent != nil {
		if b, err := json.Marshal(result.StructuredContent); err == nil {
			return string(b)
		}
	}

	var texts []string
	for _, item := range result.Content {
		if tc, ok := item.(*mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	if len(texts) > 0 {
		return strings.Join(texts, "\n")
	}

	b, err := json.Marshal(result)
	if err != nil {
		return ""
	}

	return string(b)
}
