package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	harness "github.com/ZanzyTHEbar/converse-harness/converse/harness"
	ports "github.com/ZanzyTHEbar/converse-harness/converse/harness/ports"
)

// stubLambdaAPI implements lambdaInvoker, capturing the request and replaying
// a canned response.
type stubLambdaAPI struct {
	input  *lambda.InvokeInput
	output *lambda.InvokeOutput
	err    error
}

func (s *stubLambdaAPI) Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
	s.input = params
	if s.err != nil {
		return nil, s.err
	}
	return s.output, nil
}

var _ lambdaInvoker = (*stubLambdaAPI)(nil)

func ticketSpec() ports.ToolSpec {
	return ports.ToolSpec{
		Name:        "createSupportTicket",
		Description: "Open a support ticket with a subject and body.",
		InputSchema: harness.ObjectSchema(map[string]harness.Property{
			"subject": {Type: "string"},
			"body":    {Type: "string"},
		}, "subject"),
	}
}

// TestLambdaTool_PassesArgumentsAsPayload tests the argument passthrough and
// response decoding.
func TestLambdaTool_PassesArgumentsAsPayload(t *testing.T) {
	stub := &stubLambdaAPI{output: &lambda.InvokeOutput{
		Payload: []byte(`{"ticketId":"T-1001","status":"open"}`),
	}}
	tool := NewLambdaTool(stub, "create-support-ticket", ticketSpec())

	result, err := tool.Invoke(context.Background(), json.RawMessage(`{"subject":"printer on fire"}`))
	require.NoError(t, err)

	require.NotNil(t, stub.input)
	assert.Equal(t, "create-support-ticket", aws.ToString(stub.input.FunctionName))
	assert.JSONEq(t, `{"subject":"printer on fire"}`, string(stub.input.Payload))

	raw, ok := result.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"ticketId":"T-1001","status":"open"}`, string(raw))
}

// TestLambdaTool_EmptyArgumentsBecomeEmptyObject tests the payload fallback
// for tools invoked without arguments.
func TestLambdaTool_EmptyArgumentsBecomeEmptyObject(t *testing.T) {
	stub := &stubLambdaAPI{output: &lambda.InvokeOutput{Payload: []byte(`{"ok":true}`)}}
	tool := NewLambdaTool(stub, "health-check", ticketSpec())

	_, err := tool.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(stub.input.Payload))
}

// TestLambdaTool_FunctionErrorSurfacesPayload tests that handler failures
// carry both the error kind and the serialized detail.
func TestLambdaTool_FunctionErrorSurfacesPayload(t *testing.T) {
	stub := &stubLambdaAPI{output: &lambda.InvokeOutput{
		FunctionError: aws.String("Unhandled"),
		Payload:       []byte(`{"errorMessage":"missing subject"}`),
	}}
	tool := NewLambdaTool(stub, "create-support-ticket", ticketSpec())

	_, err := tool.Invoke(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create-support-ticket")
	assert.Contains(t, err.Error(), "Unhandled")
	assert.Contains(t, err.Error(), "missing subject")
}

// TestLambdaTool_EmptyResponse tests functions that return no payload.
func TestLambdaTool_EmptyResponse(t *testing.T) {
	stub := &stubLambdaAPI{output: &lambda.InvokeOutput{}}
	tool := NewLambdaTool(stub, "fire-and-forget", ticketSpec())

	result, err := tool.Invoke(context.Background(), json.RawMessage(`{"subject":"x"}`))
	assert.NoError(t, err)
	assert.Nil(t, result)
}

// TestLambdaTool_TransportError tests invocation failures before the
// function runs.
func TestLambdaTool_TransportError(t *testing.T) {
	stub := &stubLambdaAPI{err: fmt.Errorf("connection reset")}
	tool := NewLambdaTool(stub, "create-support-ticket", ticketSpec())

	_, err := tool.Invoke(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to invoke create-support-ticket")
	assert.Contains(t, err.Error(), "connection reset")
}

// TestLambdaTool_Spec tests the spec passthrough.
func TestLambdaTool_Spec(t *testing.T) {
	spec := ticketSpec()
	tool := NewLambdaTool(&stubLambdaAPI{}, "create-support-ticket", spec)
	assert.Equal(t, spec.Name, tool.Spec().Name)
	assert.Equal(t, spec.Description, tool.Spec().Description)
}
