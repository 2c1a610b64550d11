package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/germanamz/relay/pkg/fault"
	"github.com/germanamz/relay/pkg/tools/mcpserver"
	"github.com/germanamz/relay/pkg/tools/registry"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(_ context.Context, input json.RawMessage) (string, error) {
	return string(input), nil
}

func testTool(name string, h mcpserver.Handler) mcpserver.Tool {
	return mcpserver.Tool{
		Descriptor: registry.Descriptor{
			Name:        name,
			Description: "Test tool: " + name,
			InputSchema: json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}}}`),
		},
		Handler: h,
	}
}

// serveInMemory serves tools in memory and returns the client end.
func serveInMemory(t *testing.T, tools ...mcpserver.Tool) mcp.Transport {
	t.Helper()

	s := mcpserver.New("test-server", "1.0.0")
	s.Register(tools...)

	ctx, cancel := context.WithCancel(context.Background())
	transport, done := s.InMemory(ctx)
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return transport
}

// setupConnection returns an unconnected Connection wired to tools served
// in memory.
func setupConnection(t *testing.T, tools ...mcpserver.Tool) *Connection {
	t.Helper()

	conn := New("test", Endpoint{Kind: KindLocal, Command: "unused"}, WithTransport(serveInMemory(t, tools...)))
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

// gatedTransport holds Connect until gate is closed.
type gatedTransport struct {
	mcp.Transport
	gate chan struct{}
}

func (g gatedTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.Transport.Connect(ctx)
}

// serveSDK runs a raw SDK server in memory and returns the client end.
func serveSDK(t *testing.T, server *mcp.Server) mcp.Transport {
	t.Helper()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx, serverTransport) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return clientTransport
}

func TestConnectListsTools(t *testing.T) {
	conn := setupConnection(t,
		testTool("search", echoHandler),
		testTool("fetch", echoHandler),
	)

	assert.Equal(t, StateUninitialized, conn.State())
	assert.Nil(t, conn.Tools())

	require.NoError(t, conn.Connect(context.Background()))
	assert.Equal(t, StateConnected, conn.State())

	tools := conn.Tools()
	require.Len(t, tools, 2)

	names := []string{tools[0].Name, tools[1].Name}
	assert.ElementsMatch(t, []string{"search", "fetch"}, names)

	for _, d := range tools {
		assert.Equal(t, "Test tool: "+d.Name, d.Description)
		assert.JSONEq(t, `{"type":"object","properties":{"q":{"type":"string"}}}`, string(d.InputSchema))
	}
}

func TestToolsReturnsCopy(t *testing.T) {
	conn := setupConnection(t, testTool("search", echoHandler))
	require.NoError(t, conn.Connect(context.Background()))

	tools := conn.Tools()
	tools[0].Name = "mutated"

	assert.Equal(t, "search", conn.Tools()[0].Name)
}

func TestConnectPaginates(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{Name: "paged", Version: "1.0.0"}, &mcp.ServerOptions{PageSize: 1})
	for _, name := range []string{"a", "b", "c"} {
		server.AddTool(&mcp.Tool{Name: name, InputSchema: json.RawMessage(`{"type":"object"}`)},
			func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return &mcp.CallToolResult{}, nil
			})
	}

	conn := New("paged", Endpoint{}, WithTransport(serveSDK(t, server)))
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.Connect(context.Background()))
	assert.Len(t, conn.Tools(), 3)
}

func TestConnectRepeatedCursor(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{Name: "stuck", Version: "1.0.0"}, &mcp.ServerOptions{PageSize: 1})
	for _, name := range []string{"a", "b"} {
		server.AddTool(&mcp.Tool{Name: name, InputSchema: json.RawMessage(`{"type":"object"}`)},
			func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return &mcp.CallToolResult{}, nil
			})
	}
	// Always serve the first page and point at the same next page.
	server.AddReceivingMiddleware(func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			if lr, ok := req.(*mcp.ListToolsRequest); ok && lr.Params != nil {
				lr.Params.Cursor = ""
			}
			res, err := next(ctx, method, req)
			if lt, ok := res.(*mcp.ListToolsResult); ok && err == nil {
				lt.NextCursor = "page-2"
			}
			return res, err
		}
	})

	conn := New("stuck", Endpoint{}, WithTransport(serveSDK(t, server)))
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := conn.Connect(ctx)
	require.ErrorIs(t, err, fault.ErrConnection)
	assert.Contains(t, err.Error(), `cursor "page-2" repeated`)
	assert.Equal(t, StateUninitialized, conn.State())
}

func TestConnectReleasesLockDuringHandshake(t *testing.T) {
	gate := make(chan struct{})
	transport := gatedTransport{Transport: serveInMemory(t, testTool("echo", echoHandler)), gate: gate}
	conn := New("gated", Endpoint{}, WithTransport(transport))
	t.Cleanup(func() { _ = conn.Close() })

	errc := make(chan error, 1)
	go func() { errc <- conn.Connect(context.Background()) }()

	require.Eventually(t, func() bool { return conn.State() == StateConnecting }, time.Second, time.Millisecond)
	assert.Nil(t, conn.Tools())

	_, err := conn.Invoke(context.Background(), "echo", nil)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, conn.Connect(context.Background()), ErrAlreadyConnected)

	close(gate)
	require.NoError(t, <-errc)
	assert.Equal(t, StateConnected, conn.State())
	assert.Len(t, conn.Tools(), 1)
}

func TestCloseWhileConnecting(t *testing.T) {
	gate := make(chan struct{})
	transport := gatedTransport{Transport: serveInMemory(t, testTool("echo", echoHandler)), gate: gate}
	conn := New("gated", Endpoint{}, WithTransport(transport))

	errc := make(chan error, 1)
	go func() { errc <- conn.Connect(context.Background()) }()

	require.Eventually(t, func() bool { return conn.State() == StateConnecting }, time.Second, time.Millisecond)
	require.NoError(t, conn.Close())
	assert.Equal(t, StateClosed, conn.State())

	close(gate)
	err := <-errc
	require.ErrorIs(t, err, fault.ErrConnection)
	assert.Contains(t, err.Error(), "closed while connecting")
	assert.Equal(t, StateClosed, conn.State())
	assert.Nil(t, conn.Tools())
}

// countingTransport counts requests passing through base.
type countingTransport struct {
	base  http.RoundTripper
	count atomic.Int32
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.count.Add(1)
	return c.base.RoundTrip(req)
}

func TestWithHTTPClient(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{Name: "http", Version: "1.0.0"}, nil)
	server.AddTool(&mcp.Tool{Name: "ping", InputSchema: json.RawMessage(`{"type":"object"}`)},
		func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "pong"}}}, nil
		})

	srv := httptest.NewServer(mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil))
	t.Cleanup(srv.Close)

	rt := &countingTransport{base: http.DefaultTransport}
	conn := New("http", Endpoint{Kind: KindRemote, URL: srv.URL}, WithHTTPClient(&http.Client{Transport: rt}))
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.Connect(context.Background()))
	require.Len(t, conn.Tools(), 1)

	out, err := conn.Invoke(context.Background(), "ping", nil)
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
	assert.Positive(t, rt.count.Load())
}

func TestWithImplementation(t *testing.T) {
	var (
		mu     sync.Mutex
		client *mcp.Implementation
	)
	server := mcp.NewServer(&mcp.Implementation{Name: "peer", Version: "1.0.0"}, nil)
	server.AddReceivingMiddleware(func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			if ir, ok := req.(*mcp.InitializeRequest); ok && ir.Params != nil {
				mu.Lock()
				client = ir.Params.ClientInfo
				mu.Unlock()
			}
			return next(ctx, method, req)
		}
	})

	conn := New("named", Endpoint{}, WithTransport(serveSDK(t, server)), WithImplementation("relay-test", "9.9.9"))
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.Connect(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, client)
	assert.Equal(t, "relay-test", client.Name)
	assert.Equal(t, "9.9.9", client.Version)
}

func TestConnectTwice(t *testing.T) {
	conn := setupConnection(t, testTool("search", echoHandler))

	require.NoError(t, conn.Connect(context.Background()))
	assert.ErrorIs(t, conn.Connect(context.Background()), ErrAlreadyConnected)
}

func TestConnectConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		ep   Endpoint
	}{
		{name: "local without command", ep: Endpoint{Kind: KindLocal}},
		{name: "remote without url", ep: Endpoint{Kind: KindRemote}},
		{name: "remote without host", ep: Endpoint{Kind: KindRemote, URL: "not a url"}},
		{name: "unsupported scheme", ep: Endpoint{Kind: KindRemote, URL: "ftp://example.com/mcp"}},
		{name: "unknown kind", ep: Endpoint{Kind: "pigeon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := New("bad", tt.ep)

			err := conn.Connect(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, fault.ErrConfig)
			assert.Equal(t, StateUninitialized, conn.State())
		})
	}
}

func TestConnectMissingExecutable(t *testing.T) {
	conn := New("ghost", Endpoint{Kind: KindLocal, Command: "relay-test-no-such-binary"})

	err := conn.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrConnection)
	assert.Equal(t, StateUninitialized, conn.State())
}

func TestConnectUnreachableRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	conn := New("remote", Endpoint{Kind: KindRemote, URL: srv.URL})

	err := conn.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrConnection)
}

func TestInvokeSuccess(t *testing.T) {
	conn := setupConnection(t, testTool("echo", echoHandler))
	require.NoError(t, conn.Connect(context.Background()))

	out, err := conn.Invoke(context.Background(), "echo", json.RawMessage(`{"q":"golang"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"q":"golang"}`, out)
}

func TestInvokeEmptyArguments(t *testing.T) {
	conn := setupConnection(t, testTool("echo", echoHandler))
	require.NoError(t, conn.Connect(context.Background()))

	out, err := conn.Invoke(context.Background(), "echo", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, out)
}

func TestInvokeErrors(t *testing.T) {
	conn := setupConnection(t,
		testTool("echo", echoHandler),
		testTool("fail", func(context.Context, json.RawMessage) (string, error) {
			return "", errors.New("disk on fire")
		}),
	)
	require.NoError(t, conn.Connect(context.Background()))

	tests := []struct {
		name string
		tool string
		args string
		kind error
		msg  string
	}{
		{name: "unknown tool", tool: "nope", args: `{}`, kind: fault.ErrToolNotFound, msg: "nope"},
		{name: "array arguments", tool: "echo", args: `[1,2]`, kind: fault.ErrArgumentParse},
		{name: "null arguments", tool: "echo", args: `null`, kind: fault.ErrArgumentParse},
		{name: "malformed arguments", tool: "echo", args: `{"q":`, kind: fault.ErrArgumentParse},
		{name: "provider error", tool: "fail", args: `{}`, kind: fault.ErrToolExecution, msg: "disk on fire"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := conn.Invoke(context.Background(), tt.tool, json.RawMessage(tt.args))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestInvokeNotConnected(t *testing.T) {
	conn := setupConnection(t, testTool("echo", echoHandler))

	_, err := conn.Invoke(context.Background(), "echo", nil)
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, conn.Connect(context.Background()))
	require.NoError(t, conn.Close())

	_, err = conn.Invoke(context.Background(), "echo", nil)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Nil(t, conn.Tools())
}

func TestCloseIdempotent(t *testing.T) {
	conn := setupConnection(t, testTool("echo", echoHandler))
	require.NoError(t, conn.Connect(context.Background()))

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.Equal(t, StateClosed, conn.State())
}

func TestCloseUnconnected(t *testing.T) {
	conn := New("idle", Endpoint{Kind: KindLocal, Command: "true"})

	require.NoError(t, conn.Close())
	assert.Equal(t, StateClosed, conn.State())
	assert.ErrorIs(t, conn.Connect(context.Background()), ErrAlreadyConnected)
}

func TestResultText(t *testing.T) {
	tests := []struct {
		name   string
		result *mcp.CallToolResult
		want   string
	}{
		{
			name: "structured content wins",
			result: &mcp.CallToolResult{
				StructuredContent: map[string]any{"count": 3},
				Content:           []mcp.Content{&mcp.TextContent{Text: "ignored"}},
			},
			want: `{"count":3}`,
		},
		{
			name: "text joined with newlines",
			result: &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "one"}, &mcp.TextContent{Text: "two"}},
			},
			want: "one\ntwo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resultText(tt.result))
		})
	}

	t.Run("no text falls back to json", func(t *testing.T) {
		out := resultText(&mcp.CallToolResult{})
		assert.True(t, json.Valid([]byte(out)), out)
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestWithBearer(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	client := withBearer(nil, "s3cret")
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "Bearer s3cret", got)
	assert.Same(t, http.DefaultClient, withBearer(http.DefaultClient, ""))
}

func TestLocalCommandEnv(t *testing.T) {
	conn := New("env", Endpoint{
		Kind:    KindLocal,
		Command: "server",
		Args:    []string{"--flag"},
		Env:     map[string]string{"B": "2", "A": "1"},
		Dir:     "/work",
	})

	cmd := conn.command()
	assert.Equal(t, []string{"server", "--flag"}, cmd.Args)
	assert.Equal(t, "/work", cmd.Dir)
	require.GreaterOrEqual(t, len(cmd.Env), 2)
	assert.Equal(t, []string{"A=1", "B=2"}, cmd.Env[len(cmd.Env)-2:])
}
