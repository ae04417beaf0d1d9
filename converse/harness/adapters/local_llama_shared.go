package adapters

import (
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/converse-harness/converse/harness/ports"
	"github.com/rs/zerolog"
)

const (
	providerLocal           = "local"
	defaultLocalContextSize = 4096
	defaultLocalMaxTokens   = 512
)

// localSettings is shared between the llama-backed provider and the
// placeholder used in builds without the llama tag.
type localSettings struct {
	contextSize int
	gpuLayers   int
	logger      zerolog.Logger
}

func defaultLocalSettings() localSettings {
	return localSettings{
		contextSize: defaultLocalContextSize,
		gpuLayers:   0, // CPU-only by default
		logger:      zerolog.Nop(),
	}
}

// LocalOption customizes a LocalProvider.
type LocalOption func(*localSettings)

// WithLocalContextSize sets the model context window in tokens.
func WithLocalContextSize(n int) LocalOption {
	return func(s *localSettings) {
		if n > 0 {
			s.contextSize = n
		}
	}
}

// WithLocalGPULayers sets how many layers to offload to the GPU.
func WithLocalGPULayers(n int) LocalOption {
	return func(s *localSettings) {
		if n >= 0 {
			s.gpuLayers = n
		}
	}
}

// WithLocalLogger sets the provider's logger.
func WithLocalLogger(logger zerolog.Logger) LocalOption {
	return func(s *localSettings) {
		s.logger = logger.With().Str("provider", providerLocal).Logger()
	}
}

// renderLocalPrompt flattens an invocation request into the plain-text chat
// transcript a raw GGUF model completes. Tool calling rides on text: the
// instructions tell the model to answer with a bare JSON object, which the
// driver's output parser recovers into tool-use blocks.
func renderLocalPrompt(req ports.InvocationRequest) string {
	var sb strings.Builder

	if req.System != "" {
		sb.WriteString("System: ")
		sb.WriteString(req.System)
		sb.WriteString("\n\n")
	}

	if len(req.Tools) > 0 {
		sb.WriteString("You can call the tools listed below. To call one, reply with a single JSON object of the form {\"name\": \"<tool>\", \"arguments\": {...}} and nothing else.\n")
		for _, t := range req.Tools {
			sb.WriteString(fmt.Sprintf("- %s: %s (input schema: %s)\n", t.Name, t.Description, string(t.InputSchema)))
		}
		sb.WriteString("\n")
	}

	for _, msg := range req.Messages {
		speaker := "User"
		if msg.Role == ports.RoleAssistant {
			speaker = "Assistant"
		}
		for _, b := range msg.Blocks {
			switch v := b.(type) {
			case ports.TextBlock:
				sb.WriteString(fmt.Sprintf("%s: %s\n", speaker, v.Text))
			case ports.ToolUseBlock:
				sb.WriteString(fmt.Sprintf("%s: {\"name\": %q, \"arguments\": %s}\n", speaker, v.Name, string(v.Input)))
			case ports.ToolResultBlock:
				label := "Tool result"
				if v.IsError {
					label = "Tool error"
				}
				sb.WriteString(fmt.Sprintf("%s: %s\n", label, string(v.Content)))
			}
		}
	}

	sb.WriteString("Assistant:")
	return sb.String()
}
