package harness

import (
	"context"
	"fmt"

	ports "github.com/ZanzyTHEbar/converse-harness/converse/harness/ports"
	"github.com/rs/zerolog"
)

// Driver runs the tool-use orchestration loop for one conversation turn:
// model invocation, tool dispatch, result round-trip, and repeat until the
// model produces a terminal response or a structural failure occurs. One
// conversation is processed strictly sequentially; independent conversations
// may run turns concurrently as long as each owns its Conversation.
type Driver struct {
	provider   ports.Provider
	dispatcher *Dispatcher
	store      ports.ConversationStore
	limiter    ports.RateLimiter
	tracer     ports.Tracer
	guards     *Guardrails
	parser     *OutputParser
	policy     *Policy
	logger     zerolog.Logger
}

// DriverOption customizes a driver.
type DriverOption func(*Driver)

// WithPolicy replaces the default policy.
func WithPolicy(p *Policy) DriverOption {
	return func(d *Driver) {
		if p != nil {
			d.policy = p
		}
	}
}

// WithStore enables best-effort persistence of appended messages.
func WithStore(store ports.ConversationStore) DriverOption {
	return func(d *Driver) {
		if store != nil {
			d.store = store
		}
	}
}

// WithRateLimiter throttles provider calls, keyed by conversation ID.
func WithRateLimiter(limiter ports.RateLimiter) DriverOption {
	return func(d *Driver) {
		if limiter != nil {
			d.limiter = limiter
		}
	}
}

// WithTracer enables span/event emission around the loop.
func WithTracer(tracer ports.Tracer) DriverOption {
	return func(d *Driver) {
		if tracer != nil {
			d.tracer = tracer
		}
	}
}

// WithGuardrails enables tool allowlisting and output checks.
func WithGuardrails(g *Guardrails) DriverOption {
	return func(d *Driver) { d.guards = g }
}

// WithDispatcher replaces the default tool dispatcher.
func WithDispatcher(disp *Dispatcher) DriverOption {
	return func(d *Driver) {
		if disp != nil {
			d.dispatcher = disp
		}
	}
}

// WithLogger sets the driver's logger.
func WithLogger(logger zerolog.Logger) DriverOption {
	return func(d *Driver) { d.logger = logger }
}

// NewDriver creates a driver around the given provider. Store, limiter, and
// tracer default to no-ops; the dispatcher defaults to one configured from
// the policy's tool timeout.
func NewDriver(provider ports.Provider, opts ...DriverOption) (*Driver, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	d := &Driver{
		provider: provider,
		store:    &noOpStore{},
		limiter:  &noOpRateLimiter{},
		tracer:   &noOpTracer{},
		policy:   DefaultPolicy(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.dispatcher == nil {
		d.dispatcher = NewDispatcher(d.logger,
			WithToolTimeout(d.policy.ToolTimeout),
			WithDispatcherTracer(d.tracer),
		)
	}
	if d.policy.ParseTextToolCalls {
		d.parser = NewOutputParser()
	}
	return d, nil
}

// RunTurn appends userText to the conversation, then drives the invocation
// loop until a terminal response is produced. tools becomes the
// conversation's active registry; nil keeps whatever registry the
// conversation already holds. The return is either the final text or a
// typed failure; tool-level errors never surface here, they are folded
// into the conversation for the model to recover from.
func (d *Driver) RunTurn(ctx context.Context, conv *Conversation, userText string, tools *Registry, params ports.InferenceParams) (string, error) {
	if conv == nil {
		return "", fmt.Errorf("conversation cannot be nil")
	}
	if tools != nil {
		conv.SetRegistry(tools)
	}
	reg := conv.Registry()

	if d.guards != nil {
		if err := d.guards.ValidateRegistry(reg); err != nil {
			return "", fmt.Errorf("tool registry rejected: %w", err)
		}
	}

	ctx, finishTurn := d.tracer.StartSpan(ctx, "run_turn", map[string]any{
		"conversation_id": conv.ID(),
		"tool_count":      registryLen(reg),
	})
	var turnErr error
	defer func() { finishTurn(turnErr) }()

	userMsg := ports.NewTextMessage(ports.RoleUser, userText)
	conv.Append(userMsg)
	d.persist(ctx, conv.ID(), userMsg)

	text, err := d.runLoop(ctx, conv, reg, params)
	turnErr = err
	return text, err
}

// runLoop is the ModelInvocation → {Terminal, ToolExecution} state machine.
func (d *Driver) runLoop(ctx context.Context, conv *Conversation, reg *Registry, params ports.InferenceParams) (string, error) {
	var specs []ports.ToolSpec
	if reg != nil {
		specs = reg.Specs()
	}

	roundTrips := 0
	for iteration := 1; ; iteration++ {
		// Cancellation is honored between round-trips only; per-turn
		// appends are atomic so state is always a whole number of
		// exchanges here.
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("turn cancelled: %w", err)
		}

		result, err := d.invoke(ctx, conv, specs, params, iteration)
		if err != nil {
			return "", err
		}

		toolUses := result.ToolUses()
		assistantMsg := result.Message

		// With no tools registered the loop is plain chat: any tool-use
		// content the model hallucinates is treated as terminal text.
		if registryLen(reg) == 0 {
			toolUses = nil
		} else if len(toolUses) == 0 && d.parser != nil {
			if parsed := d.parser.ParseToolUses(result.Text()); len(parsed) > 0 {
				toolUses = parsed
				// Text-form calls carry no invocation IDs, so the parsed
				// blocks are grafted onto the assistant turn to keep the
				// result round-trip addressable.
				for _, use := range parsed {
					assistantMsg.Blocks = append(assistantMsg.Blocks, use)
				}
			}
		}

		if len(toolUses) == 0 {
			text := result.Text()
			if d.policy.MaxOutputBytes > 0 && len(text) > d.policy.MaxOutputBytes {
				return "", fmt.Errorf("terminal output of %d bytes exceeds limit of %d",
					len(text), d.policy.MaxOutputBytes)
			}
			if d.guards != nil {
				if err := d.guards.CheckOutput(text); err != nil {
					return "", fmt.Errorf("terminal output rejected: %w", err)
				}
			}
			conv.Append(assistantMsg)
			d.persist(ctx, conv.ID(), assistantMsg)
			d.logger.Debug().
				Str("conversation_id", conv.ID()).
				Int("round_trips", roundTrips).
				Msg("turn completed")
			return text, nil
		}

		if d.policy.MaxToolCallsPerTurn > 0 && len(toolUses) > d.policy.MaxToolCallsPerTurn {
			return "", fmt.Errorf("model requested %d tool calls in one turn, limit is %d",
				len(toolUses), d.policy.MaxToolCallsPerTurn)
		}
		if roundTrips >= d.policy.MaxIterations {
			return "", &IterationLimitError{Limit: d.policy.MaxIterations}
		}
		roundTrips++

		// Sequential dispatch in request order: conversation state must
		// reflect a single deterministic ordering of tool results.
		results := make([]ports.ToolResultBlock, 0, len(toolUses))
		for _, use := range toolUses {
			results = append(results, d.dispatcher.Dispatch(ctx, use, reg))
		}
		resultMsg := ports.NewToolResultMessage(results...)

		// One atomic append per exchange: the unmodified assistant turn
		// followed by the single user-role message bundling its results.
		conv.Append(assistantMsg, resultMsg)
		d.persist(ctx, conv.ID(), assistantMsg)
		d.persist(ctx, conv.ID(), resultMsg)

		d.tracer.Event(ctx, "tool_round_trip", map[string]any{
			"iteration":  iteration,
			"tool_calls": len(toolUses),
		})
	}
}

func (d *Driver) invoke(ctx context.Context, conv *Conversation, specs []ports.ToolSpec, params ports.InferenceParams, iteration int) (*ports.InvocationResult, error) {
	release, err := d.limiter.Acquire(ctx, conv.ID())
	if err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}
	defer release()

	req := ports.InvocationRequest{
		System:   conv.System(),
		Messages: conv.Messages(),
		Tools:    specs,
		Params:   params,
	}

	ctx, finish := d.tracer.StartSpan(ctx, "model_invocation", map[string]any{
		"iteration":     iteration,
		"message_count": len(req.Messages),
	})
	result, err := d.provider.Invoke(ctx, req)
	finish(err)
	if err != nil {
		return nil, fmt.Errorf("model invocation failed: %w", err)
	}
	d.tracer.Event(ctx, "invocation_usage", map[string]any{
		"input_tokens":  result.Usage.InputTokens,
		"output_tokens": result.Usage.OutputTokens,
		"stop_reason":   string(result.StopReason),
	})
	return result, nil
}

// persist writes a message to the store best-effort: persistence failures
// are logged, never allowed to fail the turn.
func (d *Driver) persist(ctx context.Context, conversationID string, msg ports.Message) {
	if err := d.store.SaveTurn(ctx, conversationID, msg); err != nil {
		d.logger.Warn().Str("conversation_id", conversationID).Err(err).Msg("failed to persist turn")
		d.tracer.Event(ctx, "store_error", map[string]any{"error": err.Error()})
	}
}

func registryLen(reg *Registry) int {
	if reg == nil {
		return 0
	}
	return reg.Len()
}
