package mcpclient

import (
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"sort"

	"github.com/germanamz/relay/pkg/fault"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Kind selects how a provider is reached.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// Stream selects the HTTP flavour used for http(s) remote endpoints.
type Stream string

const (
	StreamStreamable Stream = "streamable"
	StreamSSE        Stream = "sse"
)

// Endpoint is the address of a tool provider. Local endpoints use Command,
// Args, Env and Dir; remote endpoints use URL, Token and Stream.
type Endpoint struct {
	Kind Kind

	Command string
	Args    []string
	Env     map[string]string // Merged over the parent environment.
	Dir     string

	URL    string
	Token  string // Sent as a bearer token when set.
	Stream Stream
}

// String returns a short human description used in logs.
func (e Endpoint) String() string {
	if e.Kind == KindRemote {
		return e.URL
	}
	return e.Command
}

func (c *Connection) newTransport() (mcp.Transport, error) {
	if c.transport != nil {
		return c.transport, nil
	}

	const op = "mcpclient: connect"

	switch c.endpoint.Kind {
	case KindLocal:
		if c.endpoint.Command == "" {
			return nil, fault.Newf(fault.ErrConfig, op, "%s: local endpoint has no command", c.name)
		}
		return &mcp.CommandTransport{Command: c.command()}, nil

	case KindRemote:
		if c.endpoint.URL == "" {
			return nil, fault.Newf(fault.ErrConfig, op, "%s: remote endpoint has no url", c.name)
		}
		u, err := url.Parse(c.endpoint.URL)
		if err != nil || u.Host == "" {
			return nil, fault.Newf(fault.ErrConfig, op, "%s: invalid url %q", c.name, c.endpoint.URL)
		}
		switch u.Scheme {
		case "ws", "wss":
			header := make(http.Header)
			if c.endpoint.Token != "" {
				header.Set("Authorization", "Bearer "+c.endpoint.Token)
			}
			return &WebSocketTransport{
				URL:        c.endpoint.URL,
				Header:     header,
				HTTPClient: c.httpClient,
			}, nil
		case "http", "https":
			client := withBearer(c.httpClient, c.endpoint.Token)
			if c.endpoint.Stream == StreamSSE {
				return &mcp.SSEClientTransport{Endpoint: c.endpoint.URL, HTTPClient: client}, nil
			}
			return &mcp.StreamableClientTransport{Endpoint: c.endpoint.URL, HTTPClient: client}, nil
		default:
			return nil, fault.Newf(fault.ErrConfig, op, "%s: unsupported url scheme %q", c.name, u.Scheme)
		}

	default:
		return nil, fault.Newf(fault.ErrConfig, op, "%s: unknown endpoint kind %q", c.name, c.endpoint.Kind)
	}
}

func (c *Connection) command() *exec.Cmd {
	cmd := exec.Command(c.endpoint.Command, c.endpoint.Args...) //nolint:gosec // command comes from the session config
	cmd.Dir = c.endpoint.Dir

	if len(c.endpoint.Env) > 0 {
		keys := make([]string, 0, len(c.endpoint.Env))
		for k := range c.endpoint.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		cmd.Env = os.Environ()
		for _, k := range keys {
			cmd.Env = append(cmd.Env, k+"="+c.endpoint.Env[k])
		}
	}

	return cmd
}

// bearerTransport adds an Authorization header to every request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(req)
}

func withBearer(client *http.Client, token string) *http.Client {
	if token == "" {
		return client
	}

	base := http.DefaultTransport
	cp := &http.Client{}
	if client != nil {
		*cp = *client
		if client.Transport != nil {
			base = client.Transport
		}
	}
	cp.Transport = &bearerTransport{token: token, base: base}

	return cp
}
