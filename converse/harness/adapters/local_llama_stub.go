//go:build !llama || no_llama

package adapters

import (
	"context"
	"fmt"

	ports "github.com/ZanzyTHEbar/converse-harness/converse/harness/ports"
)

// Placeholder for builds without the llama tag.
var errLlamaNotAvailable = fmt.Errorf("local model support not compiled in; rebuild with -tags llama")

// LocalProvider is the placeholder used when llama.cpp is not compiled in.
type LocalProvider struct {
	settings  localSettings
	modelPath string
}

// NewLocalProvider reports that local model support is unavailable.
func NewLocalProvider(modelPath string, opts ...LocalOption) (*LocalProvider, error) {
	settings := defaultLocalSettings()
	for _, opt := range opts {
		opt(&settings)
	}
	settings.logger.Warn().Str("model_path", modelPath).Msg("local model support not compiled in")
	return nil, errLlamaNotAvailable
}

// Invoke always fails in builds without the llama tag.
func (p *LocalProvider) Invoke(ctx context.Context, req ports.InvocationRequest) (*ports.InvocationResult, error) {
	return nil, &ports.EndpointError{Provider: providerLocal, ModelID: p.modelPath, Err: errLlamaNotAvailable}
}

// Close is a no-op in builds without the llama tag.
func (p *LocalProvider) Close() error { return nil }

// Ensure LocalProvider implements the Provider interface.
var _ ports.Provider = (*LocalProvider)(nil)
