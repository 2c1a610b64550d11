// Package mcpclient owns the connection to one MCP tool provider.
//
// A Connection is built unconnected from an Endpoint that describes either a
// local subprocess or a remote streaming service. Connect performs the MCP
// handshake and caches the provider's tool catalog; Invoke forwards calls;
// Close releases the session together with any subprocess or stream it owns.
//
//	conn := mcpclient.New("fs", mcpclient.Endpoint{
//		Kind:    mcpclient.KindLocal,
//		Command: "npx",
//		Args:    []string{"-y", "@modelcontextprotocol/server-filesystem", "."},
//	})
//	if err := conn.Connect(ctx); err != nil { ... }
//	defer conn.Close()
//
// Remote endpoints speak streamable HTTP by default, SSE when Stream is
// StreamSSE, and WebSocket for ws:// and wss:// URLs.
package mcpclient
