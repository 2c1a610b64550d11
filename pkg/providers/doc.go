// Package providers groups the model adapters relay ships with.
//
// Each sub-package embeds [github.com/germanamz/relay/pkg/modeladapter.ModelAdapter]
// and implements Complete for one wire dialect:
//   - [github.com/germanamz/relay/pkg/providers/openai]: Chat Completions, the default
//   - [github.com/germanamz/relay/pkg/providers/anthropic]: Messages API
//   - [github.com/germanamz/relay/pkg/providers/gemini]: generateContent
//   - [github.com/germanamz/relay/pkg/providers/grok]: xAI, OpenAI dialect
//
// The engine selects one by the provider kind of a session file.
package providers
