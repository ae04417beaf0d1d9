package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ports "github.com/ZanzyTHEbar/converse-harness/converse/harness/ports"
)

// stubConverseAPI implements converseAPI, capturing the request and replaying
// a canned response.
type stubConverseAPI struct {
	input  *bedrockruntime.ConverseInput
	output *bedrockruntime.ConverseOutput
	err    error
	calls  int
}

func (s *stubConverseAPI) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.calls++
	s.input = params
	if s.err != nil {
		return nil, s.err
	}
	return s.output, nil
}

var _ converseAPI = (*stubConverseAPI)(nil)

// textOutput builds a minimal terminal Converse response.
func textOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
		}},
		StopReason: types.StopReasonEndTurn,
		Usage: &types.TokenUsage{
			InputTokens:  aws.Int32(10),
			OutputTokens: aws.Int32(5),
			TotalTokens:  aws.Int32(15),
		},
	}
}

func userRequest(text string) ports.InvocationRequest {
	return ports.InvocationRequest{
		Messages: []ports.Message{ports.NewTextMessage(ports.RoleUser, text)},
	}
}

// documentJSON renders a smithy document back to JSON for comparison.
func documentJSON(t *testing.T, doc document.Interface) string {
	t.Helper()
	raw, err := doc.MarshalSmithyDocument()
	require.NoError(t, err)
	return string(raw)
}

// TestBedrockProvider_BuildsConverseRequest tests the full request mapping
// onto the Converse API shapes.
func TestBedrockProvider_BuildsConverseRequest(t *testing.T) {
	stub := &stubConverseAPI{output: textOutput("done")}
	provider := NewBedrockProvider(stub, "anthropic.claude-3-haiku-20240307-v1:0")

	temp := 0.7
	topP := 0.9
	schema := json.RawMessage(`{"type":"object","properties":{"latitude":{"type":"number"}},"required":["latitude"]}`)
	req := ports.InvocationRequest{
		System:   "Answer briefly.",
		Messages: []ports.Message{ports.NewTextMessage(ports.RoleUser, "What's the weather?")},
		Tools: []ports.ToolSpec{{
			Name:        "getWeather",
			Description: "Current weather for coordinates.",
			InputSchema: schema,
		}},
		Params: ports.InferenceParams{
			MaxTokens:     512,
			Temperature:   &temp,
			TopP:          &topP,
			StopSequences: []string{"END"},
			Extra:         map[string]any{"top_k": 50},
		},
	}

	_, err := provider.Invoke(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, stub.input)

	in := stub.input
	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", aws.ToString(in.ModelId))

	require.Len(t, in.System, 1)
	sys, ok := in.System[0].(*types.SystemContentBlockMemberText)
	require.True(t, ok)
	assert.Equal(t, "Answer briefly.", sys.Value)

	require.NotNil(t, in.InferenceConfig)
	assert.Equal(t, int32(512), aws.ToInt32(in.InferenceConfig.MaxTokens))
	assert.InDelta(t, 0.7, float64(aws.ToFloat32(in.InferenceConfig.Temperature)), 1e-6)
	assert.InDelta(t, 0.9, float64(aws.ToFloat32(in.InferenceConfig.TopP)), 1e-6)
	assert.Equal(t, []string{"END"}, in.InferenceConfig.StopSequences)

	require.NotNil(t, in.ToolConfig)
	require.Len(t, in.ToolConfig.Tools, 1)
	toolSpec, ok := in.ToolConfig.Tools[0].(*types.ToolMemberToolSpec)
	require.True(t, ok)
	assert.Equal(t, "getWeather", aws.ToString(toolSpec.Value.Name))
	assert.Equal(t, "Current weather for coordinates.", aws.ToString(toolSpec.Value.Description))
	schemaDoc, ok := toolSpec.Value.InputSchema.(*types.ToolInputSchemaMemberJson)
	require.True(t, ok)
	assert.JSONEq(t, string(schema), documentJSON(t, schemaDoc.Value))
	assert.IsType(t, &types.ToolChoiceMemberAuto{}, in.ToolConfig.ToolChoice)

	require.NotNil(t, in.AdditionalModelRequestFields)
	assert.JSONEq(t, `{"top_k": 50}`, documentJSON(t, in.AdditionalModelRequestFields))
}

// TestBedrockProvider_OmitsOptionalRequestParts tests that empty fields stay
// off the wire.
func TestBedrockProvider_OmitsOptionalRequestParts(t *testing.T) {
	stub := &stubConverseAPI{output: textOutput("done")}
	provider := NewBedrockProvider(stub, "anthropic.claude-3-haiku-20240307-v1:0")

	_, err := provider.Invoke(context.Background(), userRequest("hi"))
	require.NoError(t, err)

	assert.Nil(t, stub.input.System)
	assert.Nil(t, stub.input.ToolConfig)
	assert.Nil(t, stub.input.AdditionalModelRequestFields)
	assert.Nil(t, stub.input.InferenceConfig.MaxTokens)
	assert.Nil(t, stub.input.InferenceConfig.Temperature)
}

// TestBedrockProvider_MapsHistory tests the conversion of a mixed message
// history including a prior tool round-trip.
func TestBedrockProvider_MapsHistory(t *testing.T) {
	stub := &stubConverseAPI{output: textOutput("The weather in Portland is currently 60F with cloudy skies.")}
	provider := NewBedrockProvider(stub, "anthropic.claude-3-haiku-20240307-v1:0")

	req := ports.InvocationRequest{
		Messages: []ports.Message{
			ports.NewTextMessage(ports.RoleUser, "Weather in Portland?"),
			{Role: ports.RoleAssistant, Blocks: []ports.ContentBlock{
				ports.TextBlock{Text: "Checking."},
				ports.ToolUseBlock{ID: "toolu_01", Name: "getWeather", Input: json.RawMessage(`{"latitude":45.5,"longitude":-122.6}`)},
			}},
			ports.NewToolResultMessage(ports.ToolResultBlock{
				ToolUseID: "toolu_01",
				Content:   json.RawMessage(`{"location":"Portland","temperature":"60F","condition":"cloudy"}`),
			}),
		},
	}

	_, err := provider.Invoke(context.Background(), req)
	require.NoError(t, err)

	in := stub.input
	require.Len(t, in.Messages, 3)
	assert.Equal(t, types.ConversationRoleUser, in.Messages[0].Role)
	assert.Equal(t, types.ConversationRoleAssistant, in.Messages[1].Role)
	assert.Equal(t, types.ConversationRoleUser, in.Messages[2].Role)

	require.Len(t, in.Messages[1].Content, 2)
	textBlock, ok := in.Messages[1].Content[0].(*types.ContentBlockMemberText)
	require.True(t, ok)
	assert.Equal(t, "Checking.", textBlock.Value)
	useBlock, ok := in.Messages[1].Content[1].(*types.ContentBlockMemberToolUse)
	require.True(t, ok)
	assert.Equal(t, "toolu_01", aws.ToString(useBlock.Value.ToolUseId))
	assert.Equal(t, "getWeather", aws.ToString(useBlock.Value.Name))
	assert.JSONEq(t, `{"latitude":45.5,"longitude":-122.6}`, documentJSON(t, useBlock.Value.Input))

	require.Len(t, in.Messages[2].Content, 1)
	resBlock, ok := in.Messages[2].Content[0].(*types.ContentBlockMemberToolResult)
	require.True(t, ok)
	assert.Equal(t, "toolu_01", aws.ToString(resBlock.Value.ToolUseId))
	assert.Equal(t, types.ToolResultStatusSuccess, resBlock.Value.Status)
	require.Len(t, resBlock.Value.Content, 1)
	jsonContent, ok := resBlock.Value.Content[0].(*types.ToolResultContentBlockMemberJson)
	require.True(t, ok)
	assert.JSONEq(t, `{"location":"Portland","temperature":"60F","condition":"cloudy"}`,
		documentJSON(t, jsonContent.Value))
}

// TestBedrockProvider_ToolResultEncodings tests the two content encodings and
// the error status flag.
func TestBedrockProvider_ToolResultEncodings(t *testing.T) {
	stub := &stubConverseAPI{output: textOutput("ok")}
	provider := NewBedrockProvider(stub, "anthropic.claude-3-haiku-20240307-v1:0")

	req := ports.InvocationRequest{
		Messages: []ports.Message{
			ports.NewTextMessage(ports.RoleUser, "go"),
			{Role: ports.RoleAssistant, Blocks: []ports.ContentBlock{
				ports.ToolUseBlock{ID: "toolu_01", Name: "alpha", Input: json.RawMessage(`{}`)},
				ports.ToolUseBlock{ID: "toolu_02", Name: "bravo", Input: json.RawMessage(`{}`)},
			}},
			ports.NewToolResultMessage(
				ports.ToolResultBlock{ToolUseID: "toolu_01", Content: json.RawMessage(`"sixty degrees"`)},
				ports.ToolResultBlock{ToolUseID: "toolu_02", Content: json.RawMessage(`{"error":"boom"}`), IsError: true},
			),
		},
	}

	_, err := provider.Invoke(context.Background(), req)
	require.NoError(t, err)

	results := stub.input.Messages[2].Content
	require.Len(t, results, 2)

	// Non-object JSON rides in the text member verbatim.
	first := results[0].(*types.ContentBlockMemberToolResult)
	textContent, ok := first.Value.Content[0].(*types.ToolResultContentBlockMemberText)
	require.True(t, ok)
	assert.Equal(t, `"sixty degrees"`, textContent.Value)
	assert.Equal(t, types.ToolResultStatusSuccess, first.Value.Status)

	second := results[1].(*types.ContentBlockMemberToolResult)
	assert.Equal(t, types.ToolResultStatusError, second.Value.Status)
	_, ok = second.Value.Content[0].(*types.ToolResultContentBlockMemberJson)
	assert.True(t, ok)
}

// TestBedrockProvider_ParsesToolUseResponse tests decoding of a tool-use
// assistant turn.
func TestBedrockProvider_ParsesToolUseResponse(t *testing.T) {
	stub := &stubConverseAPI{output: &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role: types.ConversationRoleAssistant,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: "Let me check."},
				&types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
					ToolUseId: aws.String("toolu_01"),
					Name:      aws.String("getWeather"),
					Input:     document.NewLazyDocument(map[string]any{"latitude": 45.5, "longitude": -122.6}),
				}},
			},
		}},
		StopReason: types.StopReasonToolUse,
		Usage: &types.TokenUsage{
			InputTokens:  aws.Int32(12),
			OutputTokens: aws.Int32(8),
			TotalTokens:  aws.Int32(20),
		},
	}}
	provider := NewBedrockProvider(stub, "anthropic.claude-3-haiku-20240307-v1:0")

	result, err := provider.Invoke(context.Background(), userRequest("Weather in Portland?"))
	require.NoError(t, err)

	assert.False(t, result.Terminal())
	assert.Equal(t, ports.StopReasonToolUse, result.StopReason)
	assert.Equal(t, ports.RoleAssistant, result.Message.Role)
	assert.Equal(t, "Let me check.", result.Message.Text())

	uses := result.ToolUses()
	require.Len(t, uses, 1)
	assert.Equal(t, "toolu_01", uses[0].ID)
	assert.Equal(t, "getWeather", uses[0].Name)
	assert.JSONEq(t, `{"latitude":45.5,"longitude":-122.6}`, string(uses[0].Input))

	assert.Equal(t, 12, result.Usage.InputTokens)
	assert.Equal(t, 8, result.Usage.OutputTokens)
	assert.Equal(t, 20, result.Usage.TotalTokens)
}

// TestBedrockProvider_DropsAuxiliaryBlocks tests that reasoning content is
// skipped rather than failing the turn.
func TestBedrockProvider_DropsAuxiliaryBlocks(t *testing.T) {
	stub := &stubConverseAPI{output: &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role: types.ConversationRoleAssistant,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberReasoningContent{
					Value: &types.ReasoningContentBlockMemberReasoningText{
						Value: types.ReasoningTextBlock{Text: aws.String("working through it")},
					},
				},
				&types.ContentBlockMemberText{Value: "Answer."},
			},
		}},
		StopReason: types.StopReasonEndTurn,
	}}
	provider := NewBedrockProvider(stub, "anthropic.claude-3-haiku-20240307-v1:0")

	result, err := provider.Invoke(context.Background(), userRequest("hi"))
	require.NoError(t, err)
	assert.True(t, result.Terminal())
	assert.Equal(t, "Answer.", result.Message.Text())
	assert.Len(t, result.Message.Blocks, 1)
}

// TestBedrockProvider_TotalTokenFallback tests the sum fallback when the
// endpoint omits the total.
func TestBedrockProvider_TotalTokenFallback(t *testing.T) {
	out := textOutput("done")
	out.Usage = &types.TokenUsage{InputTokens: aws.Int32(7), OutputTokens: aws.Int32(3)}
	stub := &stubConverseAPI{output: out}
	provider := NewBedrockProvider(stub, "anthropic.claude-3-haiku-20240307-v1:0")

	result, err := provider.Invoke(context.Background(), userRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, 10, result.Usage.TotalTokens)
}

// TestBedrockProvider_CapabilityGates tests that unsupported parameters fail
// before any network call.
func TestBedrockProvider_CapabilityGates(t *testing.T) {
	stub := &stubConverseAPI{output: textOutput("x")}
	provider := NewBedrockProvider(stub, "amazon.titan-text-express-v1")

	req := userRequest("hi")
	req.Tools = []ports.ToolSpec{{Name: "getWeather", InputSchema: json.RawMessage(`{}`)}}
	_, err := provider.Invoke(context.Background(), req)
	var unsupported *ports.UnsupportedParameterError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "tools", unsupported.Parameter)
	assert.Equal(t, "amazon.titan-text-express-v1", unsupported.ModelID)

	req = userRequest("hi")
	req.System = "be nice"
	_, err = provider.Invoke(context.Background(), req)
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "system", unsupported.Parameter)

	assert.Equal(t, 0, stub.calls, "gated requests must not reach the endpoint")
}

// TestBedrockProvider_ModelIDOverride tests the per-request model override.
func TestBedrockProvider_ModelIDOverride(t *testing.T) {
	stub := &stubConverseAPI{output: textOutput("done")}
	provider := NewBedrockProvider(stub, "anthropic.claude-3-haiku-20240307-v1:0")

	req := userRequest("hi")
	req.ModelID = "us.anthropic.claude-3-5-sonnet-20241022-v2:0"
	_, err := provider.Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "us.anthropic.claude-3-5-sonnet-20241022-v2:0", aws.ToString(stub.input.ModelId))
}

// TestBedrockProvider_EndpointError tests the wrapping of transport failures.
func TestBedrockProvider_EndpointError(t *testing.T) {
	cause := fmt.Errorf("throttled")
	stub := &stubConverseAPI{err: cause}
	provider := NewBedrockProvider(stub, "anthropic.claude-3-haiku-20240307-v1:0")

	_, err := provider.Invoke(context.Background(), userRequest("hi"))
	var endpoint *ports.EndpointError
	require.ErrorAs(t, err, &endpoint)
	assert.Equal(t, providerBedrock, endpoint.Provider)
	assert.ErrorIs(t, err, cause)
}

// TestBedrockProvider_MalformedResponses tests the response shapes that get
// rejected as undecodable.
func TestBedrockProvider_MalformedResponses(t *testing.T) {
	cases := []struct {
		name   string
		output *bedrockruntime.ConverseOutput
		reason string
	}{
		{
			name:   "nil output union",
			output: &bedrockruntime.ConverseOutput{},
			reason: "no output",
		},
		{
			name: "unexpected union member",
			output: &bedrockruntime.ConverseOutput{
				Output: &types.UnknownUnionMember{Tag: "mystery"},
			},
			reason: "unexpected output union member",
		},
		{
			name: "empty content",
			output: &bedrockruntime.ConverseOutput{
				Output: &types.ConverseOutputMemberMessage{Value: types.Message{
					Role: types.ConversationRoleAssistant,
				}},
			},
			reason: "no usable content",
		},
		{
			name: "tool use missing identifier",
			output: &bedrockruntime.ConverseOutput{
				Output: &types.ConverseOutputMemberMessage{Value: types.Message{
					Role: types.ConversationRoleAssistant,
					Content: []types.ContentBlock{
						&types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
							Name: aws.String("getWeather"),
						}},
					},
				}},
			},
			reason: "missing identifier or name",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider := NewBedrockProvider(&stubConverseAPI{output: tc.output}, "anthropic.claude-3-haiku-20240307-v1:0")
			_, err := provider.Invoke(context.Background(), userRequest("hi"))
			var malformed *ports.MalformedResponseError
			require.ErrorAs(t, err, &malformed)
			assert.Contains(t, malformed.Reason, tc.reason)
		})
	}
}

// TestBedrockProvider_RejectsInvalidRequest tests request validation ahead of
// the endpoint call.
func TestBedrockProvider_RejectsInvalidRequest(t *testing.T) {
	stub := &stubConverseAPI{output: textOutput("x")}
	provider := NewBedrockProvider(stub, "anthropic.claude-3-haiku-20240307-v1:0")

	_, err := provider.Invoke(context.Background(), ports.InvocationRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one message")

	_, err = provider.Invoke(context.Background(), ports.InvocationRequest{
		Messages: []ports.Message{ports.NewTextMessage(ports.RoleAssistant, "hello")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "final message")

	assert.Equal(t, 0, stub.calls)
}

// TestToStopReason tests the stop reason mapping table.
func TestToStopReason(t *testing.T) {
	cases := []struct {
		in   types.StopReason
		want ports.StopReason
	}{
		{types.StopReasonEndTurn, ports.StopReasonEndTurn},
		{types.StopReasonToolUse, ports.StopReasonToolUse},
		{types.StopReasonMaxTokens, ports.StopReasonMaxTokens},
		{types.StopReasonStopSequence, ports.StopReasonStopSequence},
		{types.StopReasonContentFiltered, ports.StopReasonContentFiltered},
		{types.StopReasonGuardrailIntervened, ports.StopReasonContentFiltered},
		{types.StopReason("something_new"), ports.StopReason("something_new")},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, toStopReason(tc.in))
	}
}
