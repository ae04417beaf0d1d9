package harnessports

import (
	"context"
	"encoding/json"
)

// ToolSpec describes a callable tool exposed to the model.
type ToolSpec struct {
	Name        string          // unique logical name within a registry
	Description string          // concise doc for model selection
	InputSchema json.RawMessage // JSON schema object for the arguments
}

// Tool defines the runtime that executes a tool-use request.
type Tool interface {
	Spec() ToolSpec
	Invoke(ctx context.Context, args json.RawMessage) (any, error)
}

// Cacheable marks tools whose results may be memoized by argument value.
// Only pure tools should opt in.
type Cacheable interface {
	Cacheable() bool
}
