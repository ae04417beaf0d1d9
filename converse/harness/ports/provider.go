package harnessports

import (
	"context"
	"fmt"
)

// InferenceParams controls generation. Values are forwarded to the endpoint
// opaquely; zero values mean "let the endpoint decide". Extra carries
// model-specific extension fields the core does not interpret.
type InferenceParams struct {
	MaxTokens     int
	Temperature   *float64
	TopP          *float64
	StopSequences []string
	Extra         map[string]any
}

// Usage captures token accounting for cost/telemetry.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// StopReason reports why the endpoint stopped generating.
type StopReason string

const (
	StopReasonEndTurn         StopReason = "end_turn"
	StopReasonToolUse         StopReason = "tool_use"
	StopReasonMaxTokens       StopReason = "max_tokens"
	StopReasonStopSequence    StopReason = "stop_sequence"
	StopReasonContentFiltered StopReason = "content_filtered"
)

// InvocationRequest aggregates everything a provider needs for one call.
type InvocationRequest struct {
	ModelID  string // optional per-call override of the provider default
	System   string
	Messages []Message
	Tools    []ToolSpec
	Params   InferenceParams
}

// Validate enforces the structural preconditions every provider shares:
// a non-empty history whose final entry is user-authored.
func (r InvocationRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("invocation requires at least one message")
	}
	if last := r.Messages[len(r.Messages)-1]; last.Role != RoleUser {
		return fmt.Errorf("final message must have role %q, got %q", RoleUser, last.Role)
	}
	return nil
}

// InvocationResult carries the endpoint's assistant turn unmodified so the
// driver can append it verbatim; endpoints require the full assistant turn
// in the continuation call that carries tool results.
type InvocationResult struct {
	Message    Message
	StopReason StopReason
	Usage      Usage
}

// Text returns the result's terminal text (empty when tools are pending).
func (r *InvocationResult) Text() string { return r.Message.Text() }

// ToolUses returns the pending tool-use requests in the order the model
// issued them.
func (r *InvocationResult) ToolUses() []ToolUseBlock { return r.Message.ToolUses() }

// Terminal reports whether the result ends the loop (no pending tool uses).
func (r *InvocationResult) Terminal() bool { return len(r.Message.ToolUses()) == 0 }

// Provider is the abstraction over model endpoints. Implementations perform
// one network call per Invoke, never mutate conversation state, and map
// failures onto the EndpointError/UnsupportedParameterError/
// MalformedResponseError taxonomy.
type Provider interface {
	Invoke(ctx context.Context, req InvocationRequest) (*InvocationResult, error)
}
