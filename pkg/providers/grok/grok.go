// Package grok targets xAI's Grok models, which speak the OpenAI Chat
// Completions dialect.
package grok

import "github.com/germanamz/relay/pkg/providers/openai"

// DefaultBaseURL is the public xAI API root.
const DefaultBaseURL = "https://api.x.ai/v1"

// New returns an OpenAI-dialect adapter for Grok. An empty baseURL selects
// DefaultBaseURL.
func New(baseURL, apiKey, model string) *openai.Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return openai.New(baseURL, apiKey, model)
}
