package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	ports "github.com/ZanzyTHEbar/converse-harness/converse/harness/ports"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
)

// Dispatcher validates and executes tool-use requests. Every failure mode
// (unregistered name, schema violation, tool error, panic, timeout) is
// converted into an error ToolResult so the model can self-correct on the
// next turn; dispatch never aborts the conversation loop.
type Dispatcher struct {
	validator *JSONValidator
	cache     ports.Cache
	tracer    ports.Tracer
	logger    zerolog.Logger
	timeout   time.Duration
	cacheTTL  int
}

// DispatcherOption customizes a dispatcher.
type DispatcherOption func(*Dispatcher)

// WithToolTimeout sets the per-tool execution timeout.
func WithToolTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// WithResultCache enables memoization of results for tools that opt in via
// the Cacheable marker.
func WithResultCache(cache ports.Cache, ttlSeconds int) DispatcherOption {
	return func(disp *Dispatcher) {
		disp.cache = cache
		disp.cacheTTL = ttlSeconds
	}
}

// WithDispatcherTracer sets the tracer used for dispatch events.
func WithDispatcherTracer(tracer ports.Tracer) DispatcherOption {
	return func(disp *Dispatcher) {
		if tracer != nil {
			disp.tracer = tracer
		}
	}
}

// NewDispatcher creates a dispatcher with a 30s default tool timeout.
func NewDispatcher(logger zerolog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		validator: NewJSONValidator(),
		tracer:    &noOpTracer{},
		logger:    logger.With().Str("component", "dispatcher").Logger(),
		timeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch resolves one tool-use request against the registry and executes
// the mapped action at most once. The returned ToolResult echoes the
// request's invocation ID.
func (d *Dispatcher) Dispatch(ctx context.Context, req ports.ToolUseBlock, reg *Registry) ports.ToolResultBlock {
	args := req.Input
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	tool, ok := lookupTool(reg, req.Name)
	if !ok {
		argErr := &ToolArgumentError{Tool: req.Name, Reason: "tool is not registered"}
		d.logger.Warn().Str("tool", req.Name).Msg("tool-use request for unregistered tool")
		return d.errorResult(ctx, req, argErr.Error())
	}

	spec := tool.Spec()
	if err := d.validator.Validate(args, spec.InputSchema); err != nil {
		argErr := &ToolArgumentError{Tool: req.Name, Reason: err.Error()}
		d.logger.Warn().Str("tool", req.Name).Err(err).Msg("tool arguments failed schema validation")
		return d.errorResult(ctx, req, argErr.Error())
	}

	cacheKey := ""
	if d.cache != nil && toolIsCacheable(tool) {
		cacheKey = d.buildCacheKey(req.Name, args)
		if cached, ok := d.cache.Get(ctx, cacheKey); ok {
			d.tracer.Event(ctx, "tool_cache_hit", map[string]any{"tool": req.Name})
			return ports.ToolResultBlock{ToolUseID: req.ID, Content: cached}
		}
	}

	toolCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var (
		output    any
		invokeErr error
	)
	recovered := panics.Try(func() {
		output, invokeErr = tool.Invoke(toolCtx, args)
	})
	if recovered != nil {
		d.logger.Error().Str("tool", req.Name).Interface("panic", recovered.Value).Msg("tool panicked during execution")
		return d.errorResult(ctx, req, fmt.Sprintf("tool %s panicked: %v", req.Name, recovered.Value))
	}
	if invokeErr != nil {
		d.logger.Warn().Str("tool", req.Name).Err(invokeErr).Msg("tool execution failed")
		return d.errorResult(ctx, req, fmt.Sprintf("tool %s failed: %v", req.Name, invokeErr))
	}

	content, err := encodeToolOutput(output)
	if err != nil {
		return d.errorResult(ctx, req, fmt.Sprintf("tool %s produced unencodable output: %v", req.Name, err))
	}

	if cacheKey != "" {
		if err := d.cache.Set(ctx, cacheKey, content, d.cacheTTL); err != nil {
			d.logger.Debug().Str("tool", req.Name).Err(err).Msg("failed to cache tool result")
		}
	}

	d.logger.Debug().Str("tool", req.Name).Int("result_bytes", len(content)).Msg("tool executed")
	return ports.ToolResultBlock{ToolUseID: req.ID, Content: content}
}

func (d *Dispatcher) errorResult(ctx context.Context, req ports.ToolUseBlock, explanation string) ports.ToolResultBlock {
	d.tracer.Event(ctx, "tool_error", map[string]any{"tool": req.Name, "error": explanation})
	content, err := json.Marshal(explanation)
	if err != nil {
		content = json.RawMessage(`"tool execution failed"`)
	}
	return ports.ToolResultBlock{ToolUseID: req.ID, Content: content, IsError: true}
}

func (d *Dispatcher) buildCacheKey(name string, args json.RawMessage) string {
	var compact bytes.Buffer
	if err := json.Compact(&compact, args); err != nil {
		return "tool:" + name + ":" + string(args)
	}
	return "tool:" + name + ":" + compact.String()
}

func lookupTool(reg *Registry, name string) (ports.Tool, bool) {
	if reg == nil {
		return nil, false
	}
	return reg.Lookup(name)
}

func toolIsCacheable(tool ports.Tool) bool {
	c, ok := tool.(ports.Cacheable)
	return ok && c.Cacheable()
}

// encodeToolOutput normalizes tool output into a JSON document: raw JSON
// passes through, strings become JSON strings, everything else is marshaled.
func encodeToolOutput(output any) (json.RawMessage, error) {
	switch v := output.(type) {
	case nil:
		return json.RawMessage(`null`), nil
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, fmt.Errorf("raw output is not valid JSON")
		}
		return v, nil
	case []byte:
		if !json.Valid(v) {
			return json.Marshal(string(v))
		}
		return json.RawMessage(v), nil
	case string:
		return json.Marshal(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tool output: %w", err)
		}
		return data, nil
	}
}
