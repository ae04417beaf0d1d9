package adapters

import (
	"strings"

	radix "github.com/armon/go-radix"
)

// ModelCapabilities records what a model family accepts at the endpoint.
// Sending a parameter the family rejects fails the whole call server-side,
// so the provider gates on these before spending the network round-trip.
type ModelCapabilities struct {
	Tools        bool // accepts a tool configuration
	SystemPrompt bool // accepts system content blocks
}

// CapabilityIndex resolves a model ID to its family capabilities by longest
// prefix match. Bedrock model IDs are hierarchical (vendor.family-version),
// so a radix tree lets one entry cover every variant of a family while a
// longer entry overrides it, e.g. "cohere.command-r" over "cohere.command".
type CapabilityIndex struct {
	tree     *radix.Tree
	fallback ModelCapabilities
}

// NewCapabilityIndex builds an index seeded with the Bedrock model families
// the driver is known to run against. Unknown families resolve to the
// optimistic fallback and rely on the endpoint's own validation.
func NewCapabilityIndex() *CapabilityIndex {
	idx := &CapabilityIndex{
		tree:     radix.New(),
		fallback: ModelCapabilities{Tools: true, SystemPrompt: true},
	}

	idx.Register("anthropic.", ModelCapabilities{Tools: true, SystemPrompt: true})
	idx.Register("amazon.nova", ModelCapabilities{Tools: true, SystemPrompt: true})
	idx.Register("amazon.titan", ModelCapabilities{Tools: false, SystemPrompt: false})
	idx.Register("meta.llama", ModelCapabilities{Tools: false, SystemPrompt: true})
	idx.Register("mistral.", ModelCapabilities{Tools: true, SystemPrompt: true})
	idx.Register("cohere.command", ModelCapabilities{Tools: false, SystemPrompt: true})
	idx.Register("cohere.command-r", ModelCapabilities{Tools: true, SystemPrompt: true})
	idx.Register("ai21.", ModelCapabilities{Tools: false, SystemPrompt: true})
	idx.Register("deepseek.", ModelCapabilities{Tools: false, SystemPrompt: true})
	idx.Register("qwen.", ModelCapabilities{Tools: true, SystemPrompt: true})
	idx.Register("writer.", ModelCapabilities{Tools: true, SystemPrompt: true})

	return idx
}

// Register adds or overrides a family prefix.
func (idx *CapabilityIndex) Register(prefix string, caps ModelCapabilities) {
	idx.tree.Insert(prefix, caps)
}

// Lookup resolves the capabilities for a model ID. Cross-region inference
// profile prefixes ("us.", "eu.", "apac.") are stripped before matching so
// one family entry covers its regional variants.
func (idx *CapabilityIndex) Lookup(modelID string) ModelCapabilities {
	id := stripRegionPrefix(modelID)
	if _, v, ok := idx.tree.LongestPrefix(id); ok {
		return v.(ModelCapabilities)
	}
	return idx.fallback
}

func stripRegionPrefix(modelID string) string {
	for _, region := range []string{"us.", "eu.", "apac.", "us-gov."} {
		if rest, ok := strings.CutPrefix(modelID, region); ok {
			return rest
		}
	}
	return modelID
}
