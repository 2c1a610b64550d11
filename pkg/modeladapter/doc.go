// Package modeladapter defines how relay talks to a conversational model.
//
// It contains:
//   - [Completer], the single method the agent loop needs from a model
//   - [ModelAdapter], an embeddable base with HTTP helpers, auth, custom headers
//     and a [Tracker] for token usage
//   - [Limited], a Completer wrapper that paces requests with a token bucket and
//     retries on HTTP 429
//
// Concrete adapters live in separate packages under pkg/providers.
package modeladapter
