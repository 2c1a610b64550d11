package mcpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Subprotocol is the WebSocket subprotocol negotiated for MCP.
const Subprotocol = "mcp"

// WebSocketTransport is an mcp.Transport that carries one JSON-RPC message
// per WebSocket text frame.
type WebSocketTransport struct {
	URL        string
	Header     http.Header
	HTTPClient *http.Client
	ReadLimit  int64 // Zero keeps the library default.
}

// Connect dials the WebSocket endpoint.
func (t *WebSocketTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	conn, _, err := websocket.Dial(ctx, t.URL, &websocket.DialOptions{
		HTTPClient:   t.HTTPClient,
		HTTPHeader:   t.Header,
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}

	if t.ReadLimit > 0 {
		conn.SetReadLimit(t.ReadLimit)
	}

	return newWSConn(conn), nil
}

type wsConn struct {
	conn *websocket.Conn

	closeOnce sync.Once
	closeErr  error
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

func (c *wsConn) Read(ctx context.Context) (jsonrpc.Message, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return nil, io.EOF
		}
		return nil, err
	}

	msg, err := jsonrpc.DecodeMessage(data)
	if err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	return msg, nil
}

func (c *wsConn) Write(ctx context.Context, msg jsonrpc.Message) error {
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		err := c.conn.Close(websocket.StatusNormalClosure, "")
		if err != nil && !errors.Is(err, net.ErrClosed) && websocket.CloseStatus(err) == -1 {
			c.closeErr = err
		}
	})
	return c.closeErr
}

func (c *wsConn) SessionID() string { return "" }
