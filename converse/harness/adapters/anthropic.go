package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	ports "github.com/ZanzyTHEbar/converse-harness/converse/harness/ports"
)

const (
	providerAnthropic         = "anthropic"
	defaultAnthropicMaxTokens = 1024
)

// messagesAPI is the slice of the Anthropic client the provider needs.
type messagesAPI interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicProvider implements the Provider port on the Anthropic Messages API.
type AnthropicProvider struct {
	api     messagesAPI
	modelID string
	apiKey  string
	baseURL string
	logger  zerolog.Logger
}

// AnthropicOption customizes an AnthropicProvider.
type AnthropicOption func(*AnthropicProvider)

// WithAnthropicAPIKey sets the API key. Empty falls back to the
// ANTHROPIC_API_KEY environment variable via the SDK.
func WithAnthropicAPIKey(key string) AnthropicOption {
	return func(p *AnthropicProvider) { p.apiKey = strings.TrimSpace(key) }
}

// WithAnthropicBaseURL points the client at a proxy or gateway.
func WithAnthropicBaseURL(baseURL string) AnthropicOption {
	return func(p *AnthropicProvider) { p.baseURL = baseURL }
}

// WithAnthropicLogger sets the provider's logger.
func WithAnthropicLogger(logger zerolog.Logger) AnthropicOption {
	return func(p *AnthropicProvider) {
		p.logger = logger.With().Str("provider", providerAnthropic).Logger()
	}
}

// WithAnthropicMessages replaces the underlying API client.
func WithAnthropicMessages(api messagesAPI) AnthropicOption {
	return func(p *AnthropicProvider) { p.api = api }
}

// NewAnthropicProvider creates a provider bound to a default model ID.
func NewAnthropicProvider(modelID string, opts ...AnthropicOption) *AnthropicProvider {
	p := &AnthropicProvider{
		modelID: modelID,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.api == nil {
		var reqOpts []option.RequestOption
		if p.apiKey != "" {
			reqOpts = append(reqOpts, option.WithAPIKey(p.apiKey))
		}
		if base := normalizeBaseURL(p.baseURL); base != "" {
			reqOpts = append(reqOpts, option.WithBaseURL(base))
		}
		client := anthropic.NewClient(reqOpts...)
		p.api = &client.Messages
	}
	return p
}

func normalizeBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/v1") {
		base = strings.TrimSuffix(base, "/v1")
		base = strings.TrimRight(base, "/")
	}
	return base
}

// Invoke performs one Messages API call.
func (p *AnthropicProvider) Invoke(ctx context.Context, req ports.InvocationRequest) (*ports.InvocationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid invocation request: %w", err)
	}

	modelID := req.ModelID
	if modelID == "" {
		modelID = p.modelID
	}

	// The Messages API has no extension-field channel; refusing up front
	// beats silently dropping whatever the caller asked for.
	if len(req.Params.Extra) > 0 {
		return nil, &ports.UnsupportedParameterError{
			Provider:  providerAnthropic,
			ModelID:   modelID,
			Parameter: "extra",
			Reason:    "endpoint has no additional model request fields",
		}
	}

	params, err := p.buildMessageParams(modelID, req)
	if err != nil {
		return nil, err
	}

	msg, err := p.api.New(ctx, params)
	if err != nil {
		return nil, &ports.EndpointError{Provider: providerAnthropic, ModelID: modelID, Err: err}
	}

	result, err := p.parseMessage(msg)
	if err != nil {
		return nil, err
	}

	p.logger.Debug().
		Str("model_id", modelID).
		Str("stop_reason", string(result.StopReason)).
		Int("output_tokens", result.Usage.OutputTokens).
		Msg("messages call completed")

	return result, nil
}

func (p *AnthropicProvider) buildMessageParams(modelID string, req ports.InvocationRequest) (anthropic.MessageNewParams, error) {
	maxTokens := req.Params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	messages, err := toAnthropicMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Params.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Params.Temperature)
	}
	if req.Params.TopP != nil {
		params.TopP = anthropic.Float(*req.Params.TopP)
	}
	if len(req.Params.StopSequences) > 0 {
		params.StopSequences = req.Params.StopSequences
	}

	if tools, err := toAnthropicTools(req.Tools); err != nil {
		return anthropic.MessageNewParams{}, err
	} else if len(tools) > 0 {
		params.Tools = tools
	}

	return params, nil
}

func toAnthropicMessages(messages []ports.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		var blocks []anthropic.ContentBlockParamUnion
		for _, b := range msg.Blocks {
			switch v := b.(type) {
			case ports.TextBlock:
				blocks = append(blocks, anthropic.NewTextBlock(v.Text))
			case ports.ToolUseBlock:
				var input any
				if len(v.Input) > 0 {
					if err := json.Unmarshal(v.Input, &input); err != nil {
						return nil, fmt.Errorf("failed to decode tool input for %s: %w", v.Name, err)
					}
				} else {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    v.ID,
						Name:  v.Name,
						Input: input,
					},
				})
			case ports.ToolResultBlock:
				blocks = append(blocks, anthropic.NewToolResultBlock(v.ToolUseID, string(v.Content), v.IsError))
			default:
				return nil, fmt.Errorf("unknown content block type %T", b)
			}
		}

		switch msg.Role {
		case ports.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out, nil
}

// toAnthropicTools maps neutral tool specs onto the SDK's tool params. The
// input schema splits into the properties/required fields the param struct
// models; other schema keywords are endpoint-ignored and dropped.
func toAnthropicTools(specs []ports.ToolSpec) ([]anthropic.ToolUnionParam, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	tools := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		var schema struct {
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		if len(spec.InputSchema) > 0 {
			if err := json.Unmarshal(spec.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("failed to decode input schema for %s: %w", spec.Name, err)
			}
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        spec.Name,
			Description: anthropic.String(spec.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema.Properties,
				Required:   schema.Required,
			},
		}})
	}
	return tools, nil
}

func (p *AnthropicProvider) parseMessage(msg *anthropic.Message) (*ports.InvocationResult, error) {
	if msg == nil {
		return nil, &ports.MalformedResponseError{
			Provider: providerAnthropic,
			Reason:   "response contained no message",
		}
	}

	out := ports.Message{Role: ports.RoleAssistant}
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Blocks = append(out.Blocks, ports.TextBlock{Text: v.Text})
		case anthropic.ToolUseBlock:
			input := json.RawMessage(v.Input)
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			out.Blocks = append(out.Blocks, ports.ToolUseBlock{
				ID:    v.ID,
				Name:  v.Name,
				Input: input,
			})
		default:
			// Thinking and other auxiliary members are dropped rather
			// than failing the turn.
			continue
		}
	}

	if len(out.Blocks) == 0 {
		return nil, &ports.MalformedResponseError{
			Provider: providerAnthropic,
			Reason:   "assistant message contained no usable content",
		}
	}

	return &ports.InvocationResult{
		Message:    out,
		StopReason: anthropicStopReason(msg.StopReason),
		Usage: ports.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}

func anthropicStopReason(reason anthropic.StopReason) ports.StopReason {
	switch reason {
	case anthropic.StopReasonEndTurn:
		return ports.StopReasonEndTurn
	case anthropic.StopReasonToolUse:
		return ports.StopReasonToolUse
	case anthropic.StopReasonMaxTokens:
		return ports.StopReasonMaxTokens
	case anthropic.StopReasonStopSequence:
		return ports.StopReasonStopSequence
	default:
		return ports.StopReason(reason)
	}
}

// Ensure AnthropicProvider implements the Provider interface.
var _ ports.Provider = (*AnthropicProvider)(nil)
