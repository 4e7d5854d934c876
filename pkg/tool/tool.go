// Package tool defines the callable-tool contract between the model and
// the assistant's business logic, with typed argument structs and JSON
// schema generation from struct tags.
package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/depotkit/concierge/pkg/fault"
	"github.com/depotkit/concierge/pkg/scope"
	"github.com/depotkit/concierge/pkg/session"
)

// Invocation carries the caller's identity and conversational state into
// a tool run. Tools never see raw HTTP or model traffic.
type Invocation struct {
	Scope   scope.Scope
	Session *session.Session
}

// Outcome is what a tool hands back: a JSON-serializable result for the
// model, an optional session patch the engine applies before the next
// round, and an optional note shown directly to the user as a UI event.
type Outcome struct {
	Result map[string]any
	Patch  *session.Patch
}

// Tool is one callable function advertised to the model.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON schema of the argument object.
	Parameters() map[string]any
	Call(ctx context.Context, inv Invocation, args json.RawMessage) (*Outcome, error)
}

// Config names and describes a typed tool.
type Config struct {
	Name        string
	Description string
}

// New builds a Tool from a typed handler. The argument schema is
// reflected from the Args struct's json and jsonschema tags:
//
//	type SearchArgs struct {
//		Query string `json:"query" jsonschema:"required,description=Free-form reference"`
//	}
func New[Args any](cfg Config, fn func(ctx context.Context, inv Invocation, args Args) (*Outcome, error)) (Tool, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("tool name is required")
	}
	if cfg.Description == "" {
		return nil, fmt.Errorf("tool %s needs a description", cfg.Name)
	}
	schema, err := reflectSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", cfg.Name, err)
	}
	return &typedTool[Args]{cfg: cfg, fn: fn, schema: schema}, nil
}

type typedTool[Args any] struct {
	cfg    Config
	fn     func(ctx context.Context, inv Invocation, args Args) (*Outcome, error)
	schema map[string]any
}

func (t *typedTool[Args]) Name() string               { return t.cfg.Name }
func (t *typedTool[Args]) Description() string        { return t.cfg.Description }
func (t *typedTool[Args]) Parameters() map[string]any { return t.schema }

func (t *typedTool[Args]) Call(ctx context.Context, inv Invocation, raw json.RawMessage) (*Outcome, error) {
	var args Args
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fault.Wrap(fault.Validation, err, "invalid arguments for %s", t.cfg.Name)
		}
	}
	return t.fn(ctx, inv, args)
}

// reflectSchema produces an inline object schema without $ref, $schema or
// $id noise, which is what completion APIs expect for tool parameters.
func reflectSchema[Args any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(Args))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	delete(out, "$schema")
	delete(out, "$id")
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}
	return out, nil
}
