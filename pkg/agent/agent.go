// Package agent runs the tool-use loop: ask the model, execute the tools it
// requests through a registry, feed the results back, and repeat until the
// model answers without requesting tools.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/germanamz/relay/pkg/conversation"
	"github.com/germanamz/relay/pkg/metrics"
	"github.com/germanamz/relay/pkg/modeladapter"
	"github.com/germanamz/relay/pkg/tools/registry"
	"go.uber.org/zap"
)

// ErrMaxRounds is returned when the model keeps requesting tools past
// Options.MaxRounds.
var ErrMaxRounds = errors.New("agent: max rounds reached")

// Options configures an Agent.
type Options struct {
	SystemPrompt string            // Instructions placed in the system message.
	Context      string            // Background knowledge appended to the system message.
	MaxRounds    int               // Model rounds per Run (0 = unlimited).
	ToolTimeout  time.Duration     // Deadline for each tool call (0 = none).
	Middleware   []Middleware      // Applied around each Run, first is outermost.
	Logger       *zap.Logger       // Defaults to a no-op logger.
	Metrics      *metrics.Recorder // Optional.
}

// Agent drives one conversation. It is not safe for concurrent use.
type Agent struct {
	name      string
	completer modeladapter.Completer
	tools     *registry.Registry
	history   *conversation.History
	options   Options
	logger    *zap.Logger
}

// New creates an Agent. A nil registry means the model is offered no tools.
func New(name string, completer modeladapter.Completer, tools *registry.Registry, opts Options) *Agent {
	if tools == nil {
		tools = registry.Build()
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Agent{
		name:      name,
		completer: completer,
		tools:     tools,
		history:   conversation.NewHistory(),
		options:   opts,
		logger:    logger.With(zap.String("agent", name)),
	}
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// History returns the conversation so far.
func (a *Agent) History() *conversation.History { return a.history }

// Tools returns the registry the agent routes calls through.
func (a *Agent) Tools() *registry.Registry { return a.tools }

// Run appends prompt as a user message and loops until the model replies
// without tool calls. It returns that reply's text unchanged. Calling Run
// again continues the same conversation.
func (a *Agent) Run(ctx context.Context, prompt string) (string, error) {
	a.init()
	a.history.Append(conversation.NewText(conversation.RoleUser, prompt))

	var runner Runner = RunnerFunc(a.run)
	for i := len(a.options.Middleware) - 1; i >= 0; i-- {
		runner = a.options.Middleware[i](runner)
	}

	reply, err := runner.Run(ctx)
	if err != nil {
		return "", err
	}

	return reply.TextContent(), nil
}

func (a *Agent) init() {
	if a.history.Len() > 0 {
		return
	}
	if sp := a.buildSystemPrompt(); sp != "" {
		a.history.Append(conversation.NewText(conversation.RoleSystem, sp))
	}
}

func (a *Agent) run(ctx context.Context) (conversation.Message, error) {
	descriptors := a.tools.Descriptors()

	for round := 0; a.options.MaxRounds == 0 || round < a.options.MaxRounds; round++ {
		a.options.Metrics.Round()

		start := time.Now()
		reply, err := a.completer.Complete(ctx, a.history, descriptors)
		a.options.Metrics.ModelRequest(err, time.Since(start))
		if err != nil {
			return conversation.Message{}, fmt.Errorf("agent: complete: %w", err)
		}

		a.history.Append(reply)

		calls := reply.ToolCalls()
		if len(calls) == 0 {
			a.logger.Debug("final reply", zap.Int("round", round+1))
			return reply, nil
		}

		a.logger.Debug("tool round", zap.Int("round", round+1), zap.Int("calls", len(calls)))

		results := make([]conversation.ToolResult, 0, len(calls))
		for _, tc := range calls {
			results = append(results, a.callTool(ctx, tc))
		}
		a.history.Append(conversation.NewToolResults(results...))
	}

	return conversation.Message{}, fmt.Errorf("%w (%d)", ErrMaxRounds, a.options.MaxRounds)
}

// buildSystemPrompt joins the instructions and the context section.
func (a *Agent) buildSystemPrompt() string {
	var b strings.Builder

	b.WriteString(strings.TrimSpace(a.options.SystemPrompt))

	if ctx := strings.TrimSpace(a.options.Context); ctx != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## Context\n\n")
		b.WriteString(ctx)
	}

	return b.String()
}
