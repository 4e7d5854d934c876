package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/depotkit/concierge/pkg/fault"
	"github.com/depotkit/concierge/pkg/llm"
)

// Registry holds the tool set advertised to the model and dispatches its
// calls. Registration order is preserved in Definitions so the prompt is
// stable across runs.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool already registered: %s", t.Name())
	}
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// MustRegister registers the tool or panics. Tool sets are assembled at
// startup where a duplicate name is a programming error.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions renders the registered tools for a completion request.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Dispatch routes a model tool call to its implementation. A call naming
// an unregistered tool is a validation fault the engine reports back to
// the model rather than a crash.
func (r *Registry) Dispatch(ctx context.Context, inv Invocation, call llm.ToolCall) (*Outcome, error) {
	t, ok := r.Get(call.Function.Name)
	if !ok {
		return nil, fault.New(fault.Validation, "unknown tool: %s", call.Function.Name)
	}
	return t.Call(ctx, inv, json.RawMessage(call.Function.Arguments))
}
