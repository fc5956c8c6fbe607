// Package runtime defines the node handler contract and the registry the
// executor resolves handlers from.
package runtime

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/botflow-io/botflow/internal/platform/logger"
	"github.com/botflow-io/botflow/internal/workflow/domain/model"
)

// Handler executes one node instance. Implementations never panic and
// never return an error: a failure is reported as (failed, {"error": msg})
// so the executor's error policy can decide what happens next.
type Handler interface {
	Execute(ctx context.Context, ec *model.ExecutionContext) (model.NodeStatus, map[string]any)
}

// ToolHost invokes an external tool by id on behalf of a tool_action node.
type ToolHost interface {
	Invoke(ctx context.Context, toolID string, params map[string]any) (map[string]any, error)
}

// MessageSink delivers outbound chat messages produced by reply nodes.
type MessageSink interface {
	Send(ctx context.Context, message map[string]any) error
}

// Deps carries the shared collaborators handlers may need. Any field may
// be nil; handlers degrade gracefully (e.g. reply nodes only record the
// message when no sink is wired).
type Deps struct {
	HTTPClient *http.Client
	Tools      ToolHost
	Messages   MessageSink
	Logger     logger.Logger
}

// Factory builds a handler bound to one node definition.
type Factory func(node model.Node, deps Deps) Handler

// Manifest describes a registered node type for the metadata API.
type Manifest struct {
	Type        model.NodeType `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	IsTrigger   bool           `json:"is_trigger"`
}

// Registry maps node types to handler factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[model.NodeType]Factory
	manifests map[model.NodeType]Manifest
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[model.NodeType]Factory),
		manifests: make(map[model.NodeType]Manifest),
	}
}

// Register adds a node type. Registering the same type twice replaces the
// previous factory.
func (r *Registry) Register(m Manifest, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[m.Type] = f
	r.manifests[m.Type] = m
}

// Resolve builds a handler for the node, or errors for unknown types.
func (r *Registry) Resolve(node model.Node, deps Deps) (Handler, error) {
	r.mu.RLock()
	f, ok := r.factories[node.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no handler registered for node type %q", node.Type)
	}
	return f(node, deps), nil
}

// Known reports whether the type has a registered factory.
func (r *Registry) Known(t model.NodeType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[t]
	return ok
}

// List returns the registered manifests sorted by type.
func (r *Registry) List() []Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Manifest, 0, len(r.manifests))
	for _, m := range r.manifests {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

var defaultRegistry = NewRegistry()

// Register adds a node type to the process-wide registry. Built-in nodes
// call this from init().
func Register(m Manifest, f Factory) {
	defaultRegistry.Register(m, f)
}

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}
