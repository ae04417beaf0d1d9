package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"

	ports "github.com/ZanzyTHEbar/converse-harness/converse/harness/ports"
)

// lambdaInvoker is the slice of the Lambda client the tool needs.
type lambdaInvoker interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaTool exposes an AWS Lambda function to the model under the given
// spec. The model's arguments pass through as the invocation payload and
// whatever JSON the function returns becomes the tool result.
type LambdaTool struct {
	client       lambdaInvoker
	functionName string
	spec         ports.ToolSpec
}

// NewLambdaClient builds a Lambda client from the default AWS chain.
func NewLambdaClient(ctx context.Context, region string) (*lambda.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return lambda.NewFromConfig(awsCfg), nil
}

// NewLambdaTool wires a Lambda function behind a tool spec. The spec's
// input schema should describe the event shape the function expects.
func NewLambdaTool(client lambdaInvoker, functionName string, spec ports.ToolSpec) *LambdaTool {
	return &LambdaTool{
		client:       client,
		functionName: functionName,
		spec:         spec,
	}
}

// Spec describes the tool to the model.
func (t *LambdaTool) Spec() ports.ToolSpec { return t.spec }

// Invoke calls the function synchronously with the arguments as payload.
func (t *LambdaTool) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	payload := args
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	out, err := t.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: aws.String(t.functionName),
		Payload:      payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke %s: %w", t.functionName, err)
	}

	// FunctionError means the handler itself raised; the payload carries
	// the serialized error detail the model should see.
	if out.FunctionError != nil {
		return nil, fmt.Errorf("function %s failed (%s): %s", t.functionName, *out.FunctionError, string(out.Payload))
	}

	if len(out.Payload) == 0 {
		return nil, nil
	}
	return json.RawMessage(out.Payload), nil
}

// Ensure LambdaTool implements the tool port.
var _ ports.Tool = (*LambdaTool)(nil)
