package agent

import (
	"context"

	"github.com/germanamz/relay/pkg/conversation"
	"go.uber.org/zap"
)

// callTool runs one tool call through the registry. The result is always a
// value; failures are reported as error content for the model to read.
func (a *Agent) callTool(ctx context.Context, tc conversation.ToolCall) conversation.ToolResult {
	if a.options.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.options.ToolTimeout)
		defer cancel()
	}

	res := a.tools.Call(ctx, tc)
	a.options.Metrics.ToolCall(tc.Name, res.IsError)

	if res.IsError {
		a.logger.Warn("tool call failed",
			zap.String("tool", tc.Name),
			zap.String("call_id", tc.ID),
			zap.String("error", res.Content),
		)
	} else {
		a.logger.Debug("tool call",
			zap.String("tool", tc.Name),
			zap.String("call_id", tc.ID),
			zap.Int("bytes", len(res.Content)),
		)
	}

	return res
}
