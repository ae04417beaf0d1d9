//go:build llama && !no_llama

package adapters

import (
	"context"
	"fmt"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"

	ports "github.com/ZanzyTHEbar/converse-harness/converse/harness/ports"
)

// LocalProvider implements the Provider port on a GGUF model loaded through
// llama.cpp. The loaded context is not safe for concurrent prediction, so
// invocations are serialized on a mutex.
type LocalProvider struct {
	settings  localSettings
	modelPath string
	model     *llama.LLama
	mu        sync.Mutex
}

// NewLocalProvider loads a GGUF model from disk.
func NewLocalProvider(modelPath string, opts ...LocalOption) (*LocalProvider, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("model path cannot be empty")
	}

	settings := defaultLocalSettings()
	for _, opt := range opts {
		opt(&settings)
	}

	model, err := llama.New(modelPath,
		llama.SetContext(settings.contextSize),
		llama.SetGPULayers(settings.gpuLayers),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load gguf model: %w", err)
	}

	settings.logger.Info().
		Str("model_path", modelPath).
		Int("context_size", settings.contextSize).
		Int("gpu_layers", settings.gpuLayers).
		Msg("local model loaded")

	return &LocalProvider{
		settings:  settings,
		modelPath: modelPath,
		model:     model,
	}, nil
}

// Invoke renders the request as a text transcript and completes it.
func (p *LocalProvider) Invoke(ctx context.Context, req ports.InvocationRequest) (*ports.InvocationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid invocation request: %w", err)
	}
	if len(req.Params.Extra) > 0 {
		return nil, &ports.UnsupportedParameterError{
			Provider:  providerLocal,
			ModelID:   p.modelPath,
			Parameter: "extra",
			Reason:    "local models accept no additional request fields",
		}
	}

	// The binding exposes no cancellation hook, so the context is only
	// consulted before the prediction starts.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	maxTokens := req.Params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultLocalMaxTokens
	}

	predictOpts := []llama.PredictOption{
		llama.SetTokens(maxTokens),
	}
	if req.Params.Temperature != nil {
		predictOpts = append(predictOpts, llama.SetTemperature(float32(*req.Params.Temperature)))
	}
	if req.Params.TopP != nil {
		predictOpts = append(predictOpts, llama.SetTopP(float32(*req.Params.TopP)))
	}
	if len(req.Params.StopSequences) > 0 {
		predictOpts = append(predictOpts, llama.SetStopWords(req.Params.StopSequences...))
	}

	prompt := renderLocalPrompt(req)

	p.mu.Lock()
	out, err := p.model.Predict(prompt, predictOpts...)
	p.mu.Unlock()
	if err != nil {
		return nil, &ports.EndpointError{Provider: providerLocal, ModelID: p.modelPath, Err: err}
	}

	text := strings.TrimSpace(out)
	if text == "" {
		return nil, &ports.MalformedResponseError{
			Provider: providerLocal,
			Reason:   "model produced an empty completion",
		}
	}

	return &ports.InvocationResult{
		Message:    ports.NewTextMessage(ports.RoleAssistant, text),
		StopReason: ports.StopReasonEndTurn,
	}, nil
}

// Close frees the loaded model.
func (p *LocalProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model != nil {
		p.model.Free()
		p.model = nil
	}
	return nil
}

// Ensure LocalProvider implements the Provider interface.
var _ ports.Provider = (*LocalProvider)(nil)
