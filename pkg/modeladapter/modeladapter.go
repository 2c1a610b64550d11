package modeladapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/germanamz/relay/pkg/conversation"
	"github.com/germanamz/relay/pkg/tools/registry"
)

// Completer sends the conversation so far to a model and returns its reply.
// tools is the catalog the model may call during this turn.
type Completer interface {
	Complete(ctx context.Context, h *conversation.History, tools []registry.Descriptor) (conversation.Message, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, h *conversation.History, tools []registry.Descriptor) (conversation.Message, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, h *conversation.History, tools []registry.Descriptor) (conversation.Message, error) {
	return f(ctx, h, tools)
}

// UsageReporter is implemented by completers that count tokens.
type UsageReporter interface {
	UsageTracker() *Tracker
}

// RateLimitError is returned when the API responds with HTTP 429.
type RateLimitError struct {
	RetryAfter time.Duration
	Body       string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter, e.Body)
	}
	return "rate limited: " + e.Body
}

// ParseRetryAfter reads a Retry-After value given either in seconds or as an
// HTTP date. Unparseable values and dates in the past yield zero.
func ParseRetryAfter(val string) time.Duration {
	if val == "" {
		return 0
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(val); err == nil {
		return max(time.Until(t), 0)
	}
	return 0
}

// Auth holds authentication settings for a model API.
type Auth struct {
	Key    string // API key value.
	Header string // Header name (default: "Authorization").
	Scheme string // Scheme prefix (default: "Bearer" when Header is "Authorization").
}

func (a Auth) apply(h http.Header) {
	if a.Key == "" {
		return
	}

	header, scheme := a.Header, a.Scheme
	if header == "" {
		header = "Authorization"
	}
	if header == "Authorization" && scheme == "" {
		scheme = "Bearer"
	}

	value := a.Key
	if scheme != "" {
		value = scheme + " " + value
	}
	h.Set(header, value)
}

// ModelAdapter holds the state shared by HTTP-based providers. Embed it and
// define Complete on the concrete type.
type ModelAdapter struct {
	Name        string            // Model identifier, e.g. "gpt-4o-mini".
	Temperature float64           // Sampling temperature.
	MaxTokens   int               // Maximum tokens in the response; zero leaves it to the API.
	Auth        Auth              // Authentication settings.
	BaseURL     string            // API base URL without trailing slash.
	Client      *http.Client      // Falls back to a default client with a long timeout.
	Headers     map[string]string // Extra headers applied to every request.
	Usage       Tracker

	clientOnce    sync.Once
	defaultClient *http.Client
}

// New creates a ModelAdapter. A nil client selects the default at call time.
func New(baseURL string, auth Auth, client *http.Client) ModelAdapter {
	return ModelAdapter{
		Auth:    auth,
		BaseURL: baseURL,
		Client:  client,
	}
}

// UsageTracker returns the adapter's token usage tracker.
func (a *ModelAdapter) UsageTracker() *Tracker { return &a.Usage }

// Complete always fails. Concrete providers shadow it.
func (a *ModelAdapter) Complete(context.Context, *conversation.History, []registry.Descriptor) (conversation.Message, error) {
	return conversation.Message{}, errors.New("adapter: Complete not implemented")
}

func (a *ModelAdapter) httpClient() *http.Client {
	if a.Client != nil {
		return a.Client
	}

	a.clientOnce.Do(func() {
		a.defaultClient = &http.Client{Timeout: 10 * time.Minute}
	})

	return a.defaultClient
}

// NewRequest builds a request against BaseURL+path with auth and custom
// headers applied.
func (a *ModelAdapter) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, body)
	if err != nil {
		return nil, err
	}

	a.Auth.apply(req.Header)
	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// Do sends the request with the configured client.
func (a *ModelAdapter) Do(req *http.Request) (*http.Response, error) {
	return a.httpClient().Do(req) //nolint:gosec // URL is built from BaseURL config
}

// PostJSON posts payload as JSON to path and decodes a 2xx response into
// dest. A nil dest discards the body. HTTP 429 yields a *RateLimitError.
func (a *ModelAdapter) PostJSON(ctx context.Context, path string, payload, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := a.NewRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		respBody, _ := io.ReadAll(resp.Body)
		return &RateLimitError{
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
			Body:       string(respBody),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if dest == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
