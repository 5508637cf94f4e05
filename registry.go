package httpmcp

import (
	"context"

	"github.com/httpmcp/httpmcp-go/mcp"
)

// ToolHandler computes a tool invocation. args is never nil; the returned
// value may be any JSON-marshalable value and is delivered to the caller as a
// single stringified text content item.
type ToolHandler func(ctx context.Context, args map[string]any, rc *RequestContext) (any, error)

// ResourceListHandler returns the resource descriptors owned by one provider.
// The cursor is forwarded verbatim from the client; the returned next-cursor
// is currently discarded because the gateway does not paginate aggregated
// listings.
type ResourceListHandler func(ctx context.Context, cursor *string, rc *RequestContext) ([]mcp.Resource, *string, error)

// ResourceReadHandler returns the contents a provider holds for uri. A
// provider that does not recognize the URI returns an empty slice and no
// error; only an empty aggregate across all providers is a failure.
type ResourceReadHandler func(ctx context.Context, uri string, rc *RequestContext) ([]mcp.ResourceContents, error)

// PromptHandler expands a prompt into an optional description and an ordered
// sequence of role-tagged messages.
type PromptHandler func(ctx context.Context, name string, args map[string]string, rc *RequestContext) (string, []mcp.PromptMessage, error)

type registeredTool struct {
	tool    mcp.Tool
	handler ToolHandler
}

// registeredResource is one independent provider: its own descriptor plus a
// list/read handler pair. Queries fan out across every provider.
type registeredResource struct {
	resource mcp.Resource
	list     ResourceListHandler
	read     ResourceReadHandler
}

type registeredPrompt struct {
	prompt  mcp.Prompt
	handler PromptHandler
}

// registry is an insertion-ordered map. Built during server construction and
// immutable afterwards: no locking is needed while serving because nothing
// mutates it post-build. Re-registering an id replaces the entry in place, so
// aggregation order is first-registration order and stays deterministic.
type registry[T any] struct {
	entries map[string]T
	order   []string
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{entries: make(map[string]T)}
}

func (r *registry[T]) put(id string, v T) {
	if _, exists := r.entries[id]; !exists {
		r.order = append(r.order, id)
	}
	r.entries[id] = v
}

func (r *registry[T]) get(id string) (T, bool) {
	v, ok := r.entries[id]
	return v, ok
}

func (r *registry[T]) values() []T {
	out := make([]T, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}
	return out
}

func (r *registry[T]) len() int {
	return len(r.entries)
}
