// Package conversation is the provider-agnostic transcript the agent loop
// exchanges with a model: roles, content parts (text, tool calls, tool
// results), messages, and the mutable History of one session.
//
// No provider or API code lives here; adapters in pkg/providers translate
// History into their wire format.
package conversation
