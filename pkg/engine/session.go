package engine

import (
	"context"
	"sync"

	"github.com/germanamz/relay/pkg/agent"
	"github.com/germanamz/relay/pkg/metrics"
	"github.com/germanamz/relay/pkg/modeladapter"
	"github.com/germanamz/relay/pkg/tools/registry"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Connection is a tool provider with a lifecycle. *mcpclient.Connection is
// the production implementation.
type Connection interface {
	registry.Provider
	Connect(ctx context.Context) error
	Close() error
}

// ConnectResult is the outcome of connecting one constructed connection.
type ConnectResult struct {
	Conn Connection
	Err  error
}

// Session is one setup of connections, registry and agent. It is created by
// Engine.Open and must be closed by the caller.
type Session struct {
	id      string
	cfg     SessionConfig
	results []ConnectResult
	tools   *registry.Registry
	agent   *agent.Agent
	usage   *modeladapter.Tracker
	logger  *zap.Logger
	release context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// connectAll connects every connection in order. A failure is logged and the
// connection is left out of the live set.
func connectAll(ctx context.Context, conns []Connection, logger *zap.Logger, rec *metrics.Recorder) []ConnectResult {
	results := make([]ConnectResult, 0, len(conns))

	for _, c := range conns {
		err := c.Connect(ctx)
		rec.Connection(err)
		if err != nil {
			logger.Warn("connection failed", zap.String("connection", c.Name()), zap.Error(err))
		}
		results = append(results, ConnectResult{Conn: c, Err: err})
	}

	return results
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Config returns the configuration the session was opened with.
func (s *Session) Config() SessionConfig { return s.cfg }

// Results returns the connect outcome of every constructed connection.
func (s *Session) Results() []ConnectResult {
	out := make([]ConnectResult, len(s.results))
	copy(out, s.results)
	return out
}

// Live returns the connections that connected successfully, in order.
func (s *Session) Live() []Connection {
	var live []Connection
	for _, r := range s.results {
		if r.Err == nil {
			live = append(live, r.Conn)
		}
	}
	return live
}

// Tools returns the merged registry.
func (s *Session) Tools() *registry.Registry { return s.tools }

// Agent returns the session's agent.
func (s *Session) Agent() *agent.Agent { return s.agent }

// Usage returns the token totals reported by the model adapter, if it
// tracks usage.
func (s *Session) Usage() modeladapter.TokenCount {
	if s.usage == nil {
		return modeladapter.TokenCount{}
	}
	return s.usage.Total()
}

// Run sends the session's prompt to the agent and returns the final answer.
func (s *Session) Run(ctx context.Context) (string, error) {
	return s.agent.Run(ctx, s.cfg.PromptText)
}

// Close attempts to close every constructed connection exactly once, failed
// ones included. Failures are logged and returned combined; later calls
// return the same result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		for _, r := range s.results {
			if err := r.Conn.Close(); err != nil {
				s.logger.Warn("close failed", zap.String("connection", r.Conn.Name()), zap.Error(err))
				s.closeErr = multierr.Append(s.closeErr, err)
			}
		}
		if s.release != nil {
			s.release()
		}
	})

	return s.closeErr
}
