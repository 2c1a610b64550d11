package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/germanamz/relay/pkg/conversation"
	"go.uber.org/zap"
)

// Runner executes agent logic and returns the final message.
type Runner interface {
	Run(ctx context.Context) (conversation.Message, error)
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context) (conversation.Message, error)

// Run calls the underlying function.
func (f RunnerFunc) Run(ctx context.Context) (conversation.Message, error) {
	return f(ctx)
}

// Middleware wraps a Runner, returning a new Runner with added behaviour.
type Middleware func(next Runner) Runner

// Timeout bounds the whole run with a deadline.
func Timeout(d time.Duration) Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context) (conversation.Message, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			return next.Run(ctx)
		})
	}
}

// Recovery converts a panic in the run into an error.
func Recovery() Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context) (msg conversation.Message, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("agent panicked: %v", r)
				}
			}()

			return next.Run(ctx)
		})
	}
}

// Logger logs the start, duration and outcome of each run.
func Logger(log *zap.Logger, name string) Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context) (conversation.Message, error) {
			log.Info("agent started", zap.String("agent", name))

			start := time.Now()
			msg, err := next.Run(ctx)
			duration := time.Since(start)

			if err != nil {
				log.Error("agent finished with error",
					zap.String("agent", name),
					zap.Duration("duration", duration),
					zap.Error(err),
				)
			} else {
				log.Info("agent finished",
					zap.String("agent", name),
					zap.Duration("duration", duration),
				)
			}

			return msg, err
		})
	}
}
