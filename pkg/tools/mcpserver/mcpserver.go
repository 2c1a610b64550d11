// Package mcpserver publishes in-process tools as an MCP server using the
// official MCP Go SDK. relay uses it to serve its local tools over stdio and
// as the provider side of in-memory connections.
package mcpserver

import (
	"context"
	"encoding/json"
	"io"

	"github.com/germanamz/relay/pkg/tools/registry"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Handler executes a tool with the given JSON input and returns a text result.
type Handler func(ctx context.Context, input json.RawMessage) (string, error)

// Tool is a descriptor paired with the function that implements it.
type Tool struct {
	registry.Descriptor
	Handler Handler
}

// Server serves tools over MCP.
type Server struct {
	server *mcp.Server
}

// New creates a Server that identifies itself with name and version.
func New(name, version string) *Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: version,
	}, nil)

	return &Server{server: server}
}

// Register adds tools to the server.
func (s *Server) Register(tools ...Tool) {
	for _, t := range tools {
		s.server.AddTool(toSDKTool(t), toSDKHandler(t.Handler))
	}
}

// Serve reads requests from in and writes responses to out until ctx is
// cancelled or the stream closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	transport := &mcp.IOTransport{
		Reader: io.NopCloser(in),
		Writer: nopWriteCloser{out},
	}

	return s.Run(ctx, transport)
}

// Run serves over an arbitrary transport.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

// InMemory starts serving on one end of an in-memory transport pair and
// returns the other end for a client. done receives the result of Run once
// ctx is cancelled or the client disconnects.
func (s *Server) InMemory(ctx context.Context) (client mcp.Transport, done <-chan error) {
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ch := make(chan error, 1)
	go func() {
		ch <- s.Run(ctx, serverTransport)
	}()

	return clientTransport, ch
}

func toSDKTool(t Tool) *mcp.Tool {
	schema := t.InputSchema
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}

	return &mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
	}
}

func toSDKHandler(h Handler) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.Params.Arguments
		if args == nil {
			args = json.RawMessage("{}")
		}

		result, err := h(ctx, args)
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
				IsError: true,
			}, nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: result}},
		}, nil
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
