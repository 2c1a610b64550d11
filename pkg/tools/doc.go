// Package tools provides tool provider connections and the registry that
// merges them.
//
// It is organized into sub-packages:
//   - [github.com/germanamz/relay/pkg/tools/registry]: merged tool namespace, first registration wins
//   - [github.com/germanamz/relay/pkg/tools/mcpclient]: one MCP connection over stdio, streamable HTTP, SSE or WebSocket
//   - [github.com/germanamz/relay/pkg/tools/mcpserver]: serves Go handlers as MCP tools
//   - [github.com/germanamz/relay/pkg/tools/preset]: launch templates for local servers
//   - [github.com/germanamz/relay/pkg/tools/localtools]: read-only filesystem tools for serve-local
//
// mcpclient and mcpserver are thin wrappers around the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk).
package tools
