// Package tools provides ready-made tool implementations for the harness.
//
// Includes:
//   - WeatherTool: coordinate lookup backed by an injectable source.
//   - LambdaTool: exposes an AWS Lambda function under a tool spec.
//   - Invariants: tools never panic outward; failures surface as errors for
//     the dispatcher to fold into error results.
package tools
