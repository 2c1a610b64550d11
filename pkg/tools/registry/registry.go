// Package registry merges the tool catalogs of several providers into one
// namespace and routes tool calls back to the provider that owns each name.
package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/germanamz/relay/pkg/conversation"
)

// Descriptor describes a tool a provider publishes: its name (unique within
// the provider), a human description, and the JSON Schema of its input.
type Descriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Provider is anything that publishes tools and can invoke them by name.
// mcpclient.Connection is the production implementation.
type Provider interface {
	Name() string
	Tools() []Descriptor
	Invoke(ctx context.Context, tool string, args json.RawMessage) (string, error)
}

// Shadow records a tool name that was dropped because an earlier provider
// already registered it.
type Shadow struct {
	Tool     string
	Owner    string // Provider that kept the name.
	Shadowed string // Provider whose tool was dropped.
}

// Registry maps tool names to their owning Provider. It is built once and
// read-only afterwards.
type Registry struct {
	owners      map[string]Provider
	descriptors []Descriptor
	shadowed    []Shadow
}

// Build registers every tool of every provider in order. When two providers
// publish the same name the first one wins; the later tool is recorded in
// Shadowed and never reachable through the registry.
func Build(providers ...Provider) *Registry {
	r := &Registry{owners: make(map[string]Provider)}

	for _, p := range providers {
		for _, d := range p.Tools() {
			if owner, ok := r.owners[d.Name]; ok {
				r.shadowed = append(r.shadowed, Shadow{
					Tool:     d.Name,
					Owner:    owner.Name(),
					Shadowed: p.Name(),
				})
				continue
			}
			r.owners[d.Name] = p
			r.descriptors = append(r.descriptors, d)
		}
	}

	return r
}

// Lookup returns the provider that owns the named tool.
func (r *Registry) Lookup(name string) (Provider, bool) {
	p, ok := r.owners[name]
	return p, ok
}

// Len returns the number of distinct tool names.
func (r *Registry) Len() int { return len(r.descriptors) }

// Descriptors returns the merged catalog in registration order.
func (r *Registry) Descriptors() []Descriptor {
	cp := make([]Descriptor, len(r.descriptors))
	copy(cp, r.descriptors)
	return cp
}

// Shadowed returns the duplicates dropped during Build.
func (r *Registry) Shadowed() []Shadow {
	cp := make([]Shadow, len(r.shadowed))
	copy(cp, r.shadowed)
	return cp
}

// Call routes tc to its owner and converts the outcome into a ToolResult.
// Unknown names and invocation failures become error results; Call never
// returns an error.
func (r *Registry) Call(ctx context.Context, tc conversation.ToolCall) conversation.ToolResult {
	p, ok := r.owners[tc.Name]
	if !ok {
		return conversation.ToolResult{
			ToolCallID: tc.ID,
			Name:       tc.Name,
			Content:    fmt.Sprintf("tool not found: %s", tc.Name),
			IsError:    true,
		}
	}

	out, err := p.Invoke(ctx, tc.Name, json.RawMessage(tc.Arguments))
	if err != nil {
		return conversation.ToolResult{
			ToolCallID: tc.ID,
			Name:       tc.Name,
			Content:    err.Error(),
			IsError:    true,
		}
	}

	return conversation.ToolResult{
		ToolCallID: tc.ID,
		Name:       tc.Name,
		Content:    out,
	}
}
