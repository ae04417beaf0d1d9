package harness

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ZanzyTHEbar/converse-harness/converse/config"
	"github.com/ZanzyTHEbar/converse-harness/converse/harness/adapters"
	ports "github.com/ZanzyTHEbar/converse-harness/converse/harness/ports"
	"github.com/rs/zerolog"
)

// Factory creates and wires driver components from configuration.
type Factory struct {
	cfg    *config.Config
	db     *sql.DB // Optional, for conversation store
	logger zerolog.Logger
}

// NewFactory creates a new driver factory.
func NewFactory(cfg *config.Config, db *sql.DB, logger zerolog.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		db:     db,
		logger: logger,
	}
}

// CreateDriver creates a fully wired Driver around the given provider.
// Pass nil to have the provider selected from configuration.
func (f *Factory) CreateDriver(ctx context.Context, provider ports.Provider) (*Driver, error) {
	if provider == nil {
		p, err := f.CreateProvider(ctx)
		if err != nil {
			return nil, err
		}
		provider = p
	}

	tracer := f.createTracer()
	policy := f.CreatePolicy()

	dispatcherOpts := []DispatcherOption{
		WithToolTimeout(policy.ToolTimeout),
		WithDispatcherTracer(tracer),
	}
	if f.cfg.Harness.CacheEnabled {
		dispatcherOpts = append(dispatcherOpts,
			WithResultCache(f.createCache(), f.cfg.Harness.CacheTTLSeconds))
	}
	dispatcher := NewDispatcher(f.logger, dispatcherOpts...)

	driverOpts := []DriverOption{
		WithPolicy(policy),
		WithDispatcher(dispatcher),
		WithTracer(tracer),
		WithRateLimiter(f.createRateLimiter()),
		WithStore(f.createStore()),
		WithLogger(f.logger),
	}
	if f.cfg.Harness.EnableGuardrails {
		driverOpts = append(driverOpts, WithGuardrails(f.CreateGuardrails()))
	}

	return NewDriver(provider, driverOpts...)
}

// CreateProvider selects and constructs the model backend from configuration.
func (f *Factory) CreateProvider(ctx context.Context) (ports.Provider, error) {
	pc := f.cfg.Provider
	switch pc.Backend {
	case "bedrock":
		client, err := adapters.NewBedrockRuntimeClient(ctx, adapters.BedrockClientConfig{
			Region:          pc.Bedrock.Region,
			AccessKeyID:     pc.Bedrock.AccessKeyID,
			SecretAccessKey: pc.Bedrock.SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bedrock client: %w", err)
		}
		return adapters.NewBedrockProvider(client, pc.ModelID,
			adapters.WithBedrockLogger(f.logger)), nil
	case "anthropic":
		return adapters.NewAnthropicProvider(pc.ModelID,
			adapters.WithAnthropicAPIKey(pc.Anthropic.APIKey),
			adapters.WithAnthropicBaseURL(pc.Anthropic.BaseURL),
			adapters.WithAnthropicLogger(f.logger)), nil
	case "local":
		return adapters.NewLocalProvider(pc.Local.ModelPath,
			adapters.WithLocalContextSize(pc.Local.ContextSize),
			adapters.WithLocalGPULayers(pc.Local.GPULayers),
			adapters.WithLocalLogger(f.logger))
	default:
		return nil, fmt.Errorf("unknown provider backend: %q", pc.Backend)
	}
}

// createCache creates a cache adapter from config.
func (f *Factory) createCache() ports.Cache {
	if !f.cfg.Harness.CacheEnabled {
		return &noOpCache{}
	}

	return adapters.NewLRUCache(f.cfg.Harness.CacheCapacity)
}

// createRateLimiter creates a rate limiter adapter from config.
func (f *Factory) createRateLimiter() ports.RateLimiter {
	if !f.cfg.Harness.RateLimitEnabled {
		return &noOpRateLimiter{}
	}

	return adapters.NewTokenBucket(f.cfg.Harness.RateLimitCapacity, f.cfg.Harness.RateLimitRefillRate)
}

// createTracer creates a tracer adapter from config.
func (f *Factory) createTracer() ports.Tracer {
	if !f.cfg.Harness.EnableTracing {
		return &noOpTracer{}
	}

	return adapters.NewZerologTracer(f.logger)
}

// createStore creates a conversation store adapter from config.
func (f *Factory) createStore() ports.ConversationStore {
	if !f.cfg.Harness.PersistConversations || f.db == nil {
		return &noOpStore{}
	}

	return adapters.NewLibSQLConversationStore(f.db)
}

// CreateGuardrails creates guardrails from config.
func (f *Factory) CreateGuardrails() *Guardrails {
	opts := []GuardrailsOption{}
	if len(f.cfg.Harness.AllowedTools) > 0 {
		opts = append(opts, WithAllowedTools(f.cfg.Harness.AllowedTools...))
	}
	if len(f.cfg.Harness.BlockedWords) > 0 {
		opts = append(opts, WithBlockedWords(f.cfg.Harness.BlockedWords...))
	}
	if f.cfg.Harness.MaxOutputSize > 0 {
		opts = append(opts, WithMaxOutputSize(f.cfg.Harness.MaxOutputSize))
	}

	return NewGuardrails(opts...)
}

// CreatePolicy creates a policy from config with validation.
func (f *Factory) CreatePolicy() *Policy {
	policy := DefaultPolicy()
	policy.MaxIterations = f.cfg.Harness.MaxIterations
	policy.MaxToolCallsPerTurn = f.cfg.Harness.MaxToolCallsPerTurn
	policy.ParseTextToolCalls = f.cfg.Harness.ParseTextToolCalls
	if f.cfg.Harness.ToolTimeout > 0 {
		policy.ToolTimeout = f.cfg.Harness.ToolTimeout
	}
	if f.cfg.Harness.MaxOutputSize > 0 {
		policy.MaxOutputBytes = f.cfg.Harness.MaxOutputSize
	}

	// Validate and clamp policy values
	if policy.MaxIterations < 1 {
		policy.MaxIterations = 1
		f.logger.Warn().Int("max_iterations", f.cfg.Harness.MaxIterations).Msg("MaxIterations clamped to minimum of 1")
	}
	if policy.MaxIterations > 50 {
		policy.MaxIterations = 50
		f.logger.Warn().Int("max_iterations", f.cfg.Harness.MaxIterations).Msg("MaxIterations clamped to maximum of 50")
	}

	if policy.MaxToolCallsPerTurn < 1 {
		policy.MaxToolCallsPerTurn = 1
		f.logger.Warn().Int("max_tool_calls_per_turn", f.cfg.Harness.MaxToolCallsPerTurn).Msg("MaxToolCallsPerTurn clamped to minimum of 1")
	}
	if policy.MaxToolCallsPerTurn > 64 {
		policy.MaxToolCallsPerTurn = 64
		f.logger.Warn().Int("max_tool_calls_per_turn", f.cfg.Harness.MaxToolCallsPerTurn).Msg("MaxToolCallsPerTurn clamped to maximum of 64")
	}

	return policy
}

// noOpCache implements Cache interface with no-op behavior for testing/disabled cache.
type noOpCache struct{}

func (c *noOpCache) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }
func (c *noOpCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	return nil
}
func (c *noOpCache) Delete(ctx context.Context, key string) error { return nil }

// noOpRateLimiter implements RateLimiter interface with no-op behavior.
type noOpRateLimiter struct{}

func (r *noOpRateLimiter) Acquire(ctx context.Context, key string) (release func(), err error) {
	return func() {}, nil
}

// noOpTracer implements Tracer interface with no-op behavior.
type noOpTracer struct{}

func (t *noOpTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}

func (t *noOpTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

// noOpStore implements ConversationStore interface with no-op behavior.
type noOpStore struct{}

func (s *noOpStore) SaveTurn(ctx context.Context, conversationID string, msg ports.Message) error {
	return nil
}

func (s *noOpStore) LoadHistory(ctx context.Context, conversationID string, limit int) ([]ports.Message, error) {
	return nil, nil
}

// Ensure all no-op types implement their interfaces.
var (
	_ ports.Cache             = (*noOpCache)(nil)
	_ ports.RateLimiter       = (*noOpRateLimiter)(nil)
	_ ports.Tracer            = (*noOpTracer)(nil)
	_ ports.ConversationStore = (*noOpStore)(nil)
)
