package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/rs/zerolog"

	ports "github.com/ZanzyTHEbar/converse-harness/converse/harness/ports"
)

const providerBedrock = "bedrock"

// converseAPI is the slice of the Bedrock runtime client the provider needs.
type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClientConfig carries connection settings for the runtime client.
// Leaving the credentials empty falls back to the default AWS chain
// (environment, shared config, instance role).
type BedrockClientConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// NewBedrockRuntimeClient builds a Bedrock runtime client from config.
func NewBedrockRuntimeClient(ctx context.Context, cfg BedrockClientConfig) (*bedrockruntime.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return bedrockruntime.NewFromConfig(awsCfg), nil
}

// BedrockProvider implements the Provider port on the Bedrock Converse API.
type BedrockProvider struct {
	client  converseAPI
	modelID string
	caps    *CapabilityIndex
	logger  zerolog.Logger
}

// BedrockOption customizes a BedrockProvider.
type BedrockOption func(*BedrockProvider)

// WithBedrockLogger sets the provider's logger.
func WithBedrockLogger(logger zerolog.Logger) BedrockOption {
	return func(p *BedrockProvider) {
		p.logger = logger.With().Str("provider", providerBedrock).Logger()
	}
}

// WithBedrockCapabilities replaces the default capability index.
func WithBedrockCapabilities(idx *CapabilityIndex) BedrockOption {
	return func(p *BedrockProvider) {
		if idx != nil {
			p.caps = idx
		}
	}
}

// NewBedrockProvider creates a provider bound to a default model ID.
func NewBedrockProvider(client converseAPI, modelID string, opts ...BedrockOption) *BedrockProvider {
	p := &BedrockProvider{
		client:  client,
		modelID: modelID,
		caps:    NewCapabilityIndex(),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Invoke performs one Converse call. Parameters the target model family
// cannot honor fail before the network round-trip; endpoint failures and
// undecodable responses come back as their typed errors.
func (p *BedrockProvider) Invoke(ctx context.Context, req ports.InvocationRequest) (*ports.InvocationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid invocation request: %w", err)
	}

	modelID := req.ModelID
	if modelID == "" {
		modelID = p.modelID
	}

	caps := p.caps.Lookup(modelID)
	if len(req.Tools) > 0 && !caps.Tools {
		return nil, &ports.UnsupportedParameterError{
			Provider:  providerBedrock,
			ModelID:   modelID,
			Parameter: "tools",
			Reason:    "model family does not accept a tool configuration",
		}
	}
	if req.System != "" && !caps.SystemPrompt {
		return nil, &ports.UnsupportedParameterError{
			Provider:  providerBedrock,
			ModelID:   modelID,
			Parameter: "system",
			Reason:    "model family does not accept system content",
		}
	}

	input, err := p.buildConverseInput(modelID, req)
	if err != nil {
		return nil, err
	}

	out, err := p.client.Converse(ctx, input)
	if err != nil {
		return nil, &ports.EndpointError{Provider: providerBedrock, ModelID: modelID, Err: err}
	}

	result, err := p.parseConverseOutput(out)
	if err != nil {
		return nil, err
	}

	p.logger.Debug().
		Str("model_id", modelID).
		Str("stop_reason", string(result.StopReason)).
		Int("input_tokens", result.Usage.InputTokens).
		Int("output_tokens", result.Usage.OutputTokens).
		Msg("converse call completed")

	return result, nil
}

func (p *BedrockProvider) buildConverseInput(modelID string, req ports.InvocationRequest) (*bedrockruntime.ConverseInput, error) {
	messages, err := toConverseMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(modelID),
		Messages:        messages,
		InferenceConfig: toInferenceConfig(req.Params),
	}

	if req.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}

	if toolConfig, err := toToolConfig(req.Tools); err != nil {
		return nil, err
	} else if toolConfig != nil {
		input.ToolConfig = toolConfig
	}

	if len(req.Params.Extra) > 0 {
		input.AdditionalModelRequestFields = document.NewLazyDocument(req.Params.Extra)
	}

	return input, nil
}

// toConverseMessages maps the neutral message history onto Converse union
// types. Tool-use inputs and tool-result payloads travel as JSON documents.
func toConverseMessages(messages []ports.Message) ([]types.Message, error) {
	out := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		var blocks []types.ContentBlock
		for _, b := range msg.Blocks {
			switch v := b.(type) {
			case ports.TextBlock:
				blocks = append(blocks, &types.ContentBlockMemberText{Value: v.Text})
			case ports.ToolUseBlock:
				input, err := rawToDocument(v.Input)
				if err != nil {
					return nil, fmt.Errorf("failed to encode tool input for %s: %w", v.Name, err)
				}
				blocks = append(blocks, &types.ContentBlockMemberToolUse{
					Value: types.ToolUseBlock{
						ToolUseId: aws.String(v.ID),
						Name:      aws.String(v.Name),
						Input:     input,
					},
				})
			case ports.ToolResultBlock:
				result, err := toToolResultBlock(v)
				if err != nil {
					return nil, err
				}
				blocks = append(blocks, result)
			default:
				return nil, fmt.Errorf("unknown content block type %T", b)
			}
		}
		out = append(out, types.Message{
			Role:    types.ConversationRole(msg.Role),
			Content: blocks,
		})
	}
	return out, nil
}

// toToolResultBlock encodes a tool result. JSON objects ride in the json
// content member; any other JSON value falls back to a text member because
// the endpoint only accepts objects there.
func toToolResultBlock(r ports.ToolResultBlock) (*types.ContentBlockMemberToolResult, error) {
	status := types.ToolResultStatusSuccess
	if r.IsError {
		status = types.ToolResultStatusError
	}

	var content types.ToolResultContentBlock
	var asObject map[string]any
	if err := json.Unmarshal(r.Content, &asObject); err == nil {
		content = &types.ToolResultContentBlockMemberJson{Value: document.NewLazyDocument(asObject)}
	} else {
		content = &types.ToolResultContentBlockMemberText{Value: string(r.Content)}
	}

	return &types.ContentBlockMemberToolResult{
		Value: types.ToolResultBlock{
			ToolUseId: aws.String(r.ToolUseID),
			Content:   []types.ToolResultContentBlock{content},
			Status:    status,
		},
	}, nil
}

func toInferenceConfig(params ports.InferenceParams) *types.InferenceConfiguration {
	cfg := &types.InferenceConfiguration{}
	if params.MaxTokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(params.MaxTokens))
	}
	if params.Temperature != nil {
		cfg.Temperature = aws.Float32(float32(*params.Temperature))
	}
	if params.TopP != nil {
		cfg.TopP = aws.Float32(float32(*params.TopP))
	}
	if len(params.StopSequences) > 0 {
		stop := make([]string, len(params.StopSequences))
		copy(stop, params.StopSequences)
		cfg.StopSequences = stop
	}
	return cfg
}

func toToolConfig(specs []ports.ToolSpec) (*types.ToolConfiguration, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	tools := make([]types.Tool, 0, len(specs))
	for _, spec := range specs {
		schema, err := rawToDocument(spec.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to encode input schema for %s: %w", spec.Name, err)
		}
		tools = append(tools, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(spec.Name),
				Description: aws.String(spec.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: schema},
			},
		})
	}

	return &types.ToolConfiguration{
		Tools:      tools,
		ToolChoice: &types.ToolChoiceMemberAuto{},
	}, nil
}

// rawToDocument round-trips raw JSON through an untyped value because the
// document encoder serializes Go values, not pre-encoded bytes.
func rawToDocument(raw json.RawMessage) (document.Interface, error) {
	if len(raw) == 0 {
		return document.NewLazyDocument(map[string]any{}), nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return document.NewLazyDocument(v), nil
}

func (p *BedrockProvider) parseConverseOutput(out *bedrockruntime.ConverseOutput) (*ports.InvocationResult, error) {
	if out == nil || out.Output == nil {
		return nil, &ports.MalformedResponseError{
			Provider: providerBedrock,
			Reason:   "response contained no output",
		}
	}

	outputMsg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, &ports.MalformedResponseError{
			Provider: providerBedrock,
			Reason:   fmt.Sprintf("unexpected output union member %T", out.Output),
		}
	}

	msg := ports.Message{Role: ports.RoleAssistant}
	for _, block := range outputMsg.Value.Content {
		switch v := block.(type) {
		case *types.ContentBlockMemberText:
			msg.Blocks = append(msg.Blocks, ports.TextBlock{Text: v.Value})
		case *types.ContentBlockMemberToolUse:
			use := v.Value
			if use.ToolUseId == nil || use.Name == nil {
				return nil, &ports.MalformedResponseError{
					Provider: providerBedrock,
					Reason:   "tool use block missing identifier or name",
				}
			}
			var input json.RawMessage = []byte("{}")
			if use.Input != nil {
				raw, err := use.Input.MarshalSmithyDocument()
				if err != nil {
					return nil, &ports.MalformedResponseError{
						Provider: providerBedrock,
						Reason:   "tool use input is not decodable JSON",
						Err:      err,
					}
				}
				input = raw
			}
			msg.Blocks = append(msg.Blocks, ports.ToolUseBlock{
				ID:    *use.ToolUseId,
				Name:  *use.Name,
				Input: input,
			})
		default:
			// Reasoning and other auxiliary members are dropped rather
			// than failing the turn.
			continue
		}
	}

	if len(msg.Blocks) == 0 {
		return nil, &ports.MalformedResponseError{
			Provider: providerBedrock,
			Reason:   "assistant message contained no usable content",
		}
	}

	result := &ports.InvocationResult{
		Message:    msg,
		StopReason: toStopReason(out.StopReason),
	}

	if out.Usage != nil {
		if out.Usage.InputTokens != nil {
			result.Usage.InputTokens = int(*out.Usage.InputTokens)
		}
		if out.Usage.OutputTokens != nil {
			result.Usage.OutputTokens = int(*out.Usage.OutputTokens)
		}
		if out.Usage.TotalTokens != nil {
			result.Usage.TotalTokens = int(*out.Usage.TotalTokens)
		} else {
			result.Usage.TotalTokens = result.Usage.InputTokens + result.Usage.OutputTokens
		}
	}

	return result, nil
}

func toStopReason(reason types.StopReason) ports.StopReason {
	switch reason {
	case types.StopReasonEndTurn:
		return ports.StopReasonEndTurn
	case types.StopReasonToolUse:
		return ports.StopReasonToolUse
	case types.StopReasonMaxTokens:
		return ports.StopReasonMaxTokens
	case types.StopReasonStopSequence:
		return ports.StopReasonStopSequence
	case types.StopReasonContentFiltered, types.StopReasonGuardrailIntervened:
		return ports.StopReasonContentFiltered
	default:
		return ports.StopReason(reason)
	}
}

// Ensure BedrockProvider implements the Provider interface.
var _ ports.Provider = (*BedrockProvider)(nil)
