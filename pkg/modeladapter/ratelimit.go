package modeladapter

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/germanamz/relay/pkg/conversation"
	"github.com/germanamz/relay/pkg/tools/registry"
	"golang.org/x/time/rate"
)

var _ Completer = (*Limited)(nil)

// LimitOpts configures a Limited completer.
type LimitOpts struct {
	RequestsPerMinute int           // Zero disables pacing.
	Burst             int           // Requests allowed back to back (default 1).
	MaxRetries        int           // Retries on HTTP 429 (default 3).
	BaseDelay         time.Duration // First backoff delay (default 1s).
}

// Limited paces an inner Completer with a token bucket and retries calls
// rejected with a *RateLimitError using exponential backoff with jitter.
type Limited struct {
	inner      Completer
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration

	sleep  func(ctx context.Context, d time.Duration) error
	random func() float64
}

// NewLimited wraps inner.
func NewLimited(inner Completer, opts LimitOpts) *Limited {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}

	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}

	return &Limited{
		inner:      inner,
		limiter:    rate.NewLimiter(limit, opts.Burst),
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		sleep:      sleepContext,
		random:     rand.Float64,
	}
}

// Complete waits for a slot, then calls the inner completer, retrying on
// rate limit errors.
func (l *Limited) Complete(ctx context.Context, h *conversation.History, tools []registry.Descriptor) (conversation.Message, error) {
	var lastErr error

	for attempt := range l.maxRetries + 1 {
		if err := l.limiter.Wait(ctx); err != nil {
			return conversation.Message{}, err
		}

		msg, err := l.inner.Complete(ctx, h, tools)
		if err == nil {
			return msg, nil
		}

		var rle *RateLimitError
		if !errors.As(err, &rle) {
			return conversation.Message{}, err
		}
		lastErr = err

		if attempt == l.maxRetries {
			break
		}

		if err := l.sleep(ctx, l.backoff(attempt, rle.RetryAfter)); err != nil {
			return conversation.Message{}, err
		}
	}

	return conversation.Message{}, lastErr
}

// UsageTracker forwards to the inner completer, or returns nil.
func (l *Limited) UsageTracker() *Tracker {
	if ur, ok := l.inner.(UsageReporter); ok {
		return ur.UsageTracker()
	}
	return nil
}

// backoff is baseDelay doubled per attempt, at least retryAfter, with ±25%
// jitter.
func (l *Limited) backoff(attempt int, retryAfter time.Duration) time.Duration {
	d := max(l.baseDelay<<attempt, retryAfter)
	factor := 0.75 + l.random()*0.5 //nolint:mnd // ±25%
	return time.Duration(float64(d) * factor)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
