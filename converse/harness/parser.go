package harness

import (
	"encoding/json"
	"regexp"
	"strings"

	ports "github.com/ZanzyTHEbar/converse-harness/converse/harness/ports"
	"github.com/google/uuid"
)

// OutputParser recovers tool-use requests that local models emit as plain
// text instead of structured content blocks. Parsed requests are assigned
// fresh invocation IDs since text-form calls carry none.
type OutputParser struct {
	patterns []*regexp.Regexp
}

// NewOutputParser creates a parser for the common text tool-call formats.
func NewOutputParser() *OutputParser {
	return &OutputParser{
		patterns: []*regexp.Regexp{
			// JSON array format: [{"name": "tool", "arguments": {...}}]
			regexp.MustCompile(`\[\s*\{\s*"name"\s*:\s*"([^"]+)"\s*,\s*"arguments"\s*:\s*(\{.*?\})\s*\}\s*\]`),
			// Bare object format: {"name": "tool", "arguments": {...}}
			regexp.MustCompile(`\{\s*"name"\s*:\s*"([^"]+)"\s*,\s*"arguments"\s*:\s*(\{.*?\})\s*\}`),
			// Function call format: tool_name({"arg": "value"})
			regexp.MustCompile(`(\w+)\s*\(\s*(\{.*?\})\s*\)`),
		},
	}
}

// ParseToolUses extracts tool-use requests from model text. The first
// pattern that matches wins; later patterns are only tried when earlier ones
// found nothing, so a single call is never double-counted.
func (p *OutputParser) ParseToolUses(text string) []ports.ToolUseBlock {
	for _, pattern := range p.patterns {
		var uses []ports.ToolUseBlock
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			if len(match) < 3 {
				continue
			}
			name := strings.TrimSpace(match[1])
			argsStr := strings.TrimSpace(match[2])

			if !json.Valid([]byte(argsStr)) {
				argsStr = fixJSON(argsStr)
				if !json.Valid([]byte(argsStr)) {
					continue
				}
			}

			uses = append(uses, ports.ToolUseBlock{
				ID:    "call_" + uuid.NewString(),
				Name:  name,
				Input: json.RawMessage(argsStr),
			})
		}
		if len(uses) > 0 {
			return uses
		}
	}
	return nil
}

// fixJSON repairs the usual model JSON slips: trailing commas, unquoted
// keys, single quotes.
func fixJSON(jsonStr string) string {
	jsonStr = regexp.MustCompile(`,\s*([}\]])`).ReplaceAllString(jsonStr, "$1")
	jsonStr = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`).ReplaceAllString(jsonStr, `$1"$2":`)
	jsonStr = strings.ReplaceAll(jsonStr, "'", "\"")
	return jsonStr
}
