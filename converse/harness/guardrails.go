package harness

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	ports "github.com/ZanzyTHEbar/converse-harness/converse/harness/ports"
	"github.com/xeipuuv/gojsonschema"
)

// Guardrails enforces safety and policy compliance on tool usage and
// terminal output.
type Guardrails struct {
	allowlist     map[string]bool // empty means every tool is allowed
	blockedWords  []string
	outputFilters []*regexp.Regexp
	maxOutputSize int
}

// GuardrailsOption customizes guardrails.
type GuardrailsOption func(*Guardrails)

// WithAllowedTools restricts tool usage to the named tools.
func WithAllowedTools(names ...string) GuardrailsOption {
	return func(g *Guardrails) {
		for _, name := range names {
			g.allowlist[name] = true
		}
	}
}

// WithBlockedWords replaces the default blocked-word list.
func WithBlockedWords(words ...string) GuardrailsOption {
	return func(g *Guardrails) { g.blockedWords = words }
}

// WithMaxOutputSize caps terminal output size in bytes.
func WithMaxOutputSize(n int) GuardrailsOption {
	return func(g *Guardrails) {
		if n > 0 {
			g.maxOutputSize = n
		}
	}
}

// NewGuardrails creates guardrails with default safety settings.
func NewGuardrails(opts ...GuardrailsOption) *Guardrails {
	g := &Guardrails{
		allowlist: make(map[string]bool),
		blockedWords: []string{
			"password", "secret", "credential",
		},
		outputFilters: []*regexp.Regexp{
			regexp.MustCompile(`(?i)password[:=]\s*\S+`),
			regexp.MustCompile(`(?i)api[_-]?key[:=]\s*\S+`),
			regexp.MustCompile(`(?i)secret[:=]\s*\S+`),
		},
		maxOutputSize: 1 << 20,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ValidateRegistry checks every registered tool against the allowlist. An
// empty allowlist admits all tools.
func (g *Guardrails) ValidateRegistry(reg *Registry) error {
	if reg == nil || len(g.allowlist) == 0 {
		return nil
	}
	for _, spec := range reg.Specs() {
		if !g.allowlist[spec.Name] {
			return fmt.Errorf("tool %s is not in allowlist", spec.Name)
		}
	}
	return nil
}

// ValidateToolUse checks a single tool-use request against the allowlist and
// basic structural rules.
func (g *Guardrails) ValidateToolUse(req ports.ToolUseBlock) error {
	if req.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if len(g.allowlist) > 0 && !g.allowlist[req.Name] {
		return fmt.Errorf("tool %s is not in allowlist", req.Name)
	}
	if len(req.Input) > 0 && !json.Valid(req.Input) {
		return fmt.Errorf("tool arguments are not valid JSON")
	}
	return nil
}

// CheckOutput verifies terminal text against the blocked-word list, the
// output filters, and the size cap.
func (g *Guardrails) CheckOutput(output string) error {
	if g.maxOutputSize > 0 && len(output) > g.maxOutputSize {
		return fmt.Errorf("output size %d exceeds maximum %d", len(output), g.maxOutputSize)
	}
	lower := strings.ToLower(output)
	for _, word := range g.blockedWords {
		if strings.Contains(lower, word) {
			return fmt.Errorf("output contains blocked word: %s", word)
		}
	}
	for _, filter := range g.outputFilters {
		if filter.MatchString(output) {
			return fmt.Errorf("output matches blocked pattern")
		}
	}
	return nil
}

// SanitizeOutput masks sensitive fragments instead of rejecting the output.
func (g *Guardrails) SanitizeOutput(output string) string {
	sanitized := output
	for _, filter := range g.outputFilters {
		sanitized = filter.ReplaceAllString(sanitized, "[REDACTED]")
	}
	return sanitized
}

// JSONValidator validates documents against JSON schemas.
type JSONValidator struct{}

// NewJSONValidator creates a new JSON validator.
func NewJSONValidator() *JSONValidator {
	return &JSONValidator{}
}

// Validate checks that data conforms to schema. An empty schema admits any
// valid JSON document.
func (v *JSONValidator) Validate(data json.RawMessage, schema []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("data is not valid JSON")
	}
	if len(schema) == 0 {
		return nil
	}

	schemaLoader := gojsonschema.NewBytesLoader(schema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var issues []string
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(issues, "; "))
	}
	return nil
}
