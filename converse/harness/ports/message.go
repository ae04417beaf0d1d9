package harnessports

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentBlock is the sealed union of message content kinds. The unexported
// marker keeps the set closed so consumers can switch exhaustively.
type ContentBlock interface {
	contentBlock()
}

// TextBlock is plain assistant or user text.
type TextBlock struct {
	Text string
}

// ToolUseBlock is the model's request to invoke a tool. ID is the invocation
// identifier the matching ToolResultBlock must echo back.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResultBlock carries the outcome of executing a tool-use request.
// Content is always a JSON document; IsError marks results the model should
// treat as a failed invocation.
type ToolResultBlock struct {
	ToolUseID string
	Content   json.RawMessage
	IsError   bool
}

func (TextBlock) contentBlock()       {}
func (ToolUseBlock) contentBlock()    {}
func (ToolResultBlock) contentBlock() {}

// Message is one conversation entry: a role plus an ordered sequence of
// content blocks. Messages are immutable once appended to a conversation.
type Message struct {
	Role   Role
	Blocks []ContentBlock
}

// NewTextMessage builds a single-text-block message.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Blocks: []ContentBlock{TextBlock{Text: text}}}
}

// NewToolResultMessage bundles tool results for one turn into the user-role
// message the endpoint expects them in, preserving the given order.
func NewToolResultMessage(results ...ToolResultBlock) Message {
	blocks := make([]ContentBlock, len(results))
	for i, r := range results {
		blocks[i] = r
	}
	return Message{Role: RoleUser, Blocks: blocks}
}

// Text concatenates the message's text blocks.
func (m Message) Text() string {
	var out string
	for _, b := range m.Blocks {
		if tb, ok := b.(TextBlock); ok {
			out += tb.Text
		}
	}
	return out
}

// ToolUses returns the message's tool-use blocks in order.
func (m Message) ToolUses() []ToolUseBlock {
	var uses []ToolUseBlock
	for _, b := range m.Blocks {
		if tu, ok := b.(ToolUseBlock); ok {
			uses = append(uses, tu)
		}
	}
	return uses
}

// ToolResults returns the message's tool-result blocks in order.
func (m Message) ToolResults() []ToolResultBlock {
	var results []ToolResultBlock
	for _, b := range m.Blocks {
		if tr, ok := b.(ToolResultBlock); ok {
			results = append(results, tr)
		}
	}
	return results
}

// blockEnvelope is the typed JSON encoding for a content block, used by the
// store adapter to persist and reload history losslessly.
type blockEnvelope struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type messageEnvelope struct {
	Role   Role            `json:"role"`
	Blocks []blockEnvelope `json:"blocks"`
}

// MarshalJSON encodes the message with type-tagged blocks.
func (m Message) MarshalJSON() ([]byte, error) {
	env := messageEnvelope{Role: m.Role, Blocks: make([]blockEnvelope, 0, len(m.Blocks))}
	for _, b := range m.Blocks {
		switch v := b.(type) {
		case TextBlock:
			env.Blocks = append(env.Blocks, blockEnvelope{Type: "text", Text: v.Text})
		case ToolUseBlock:
			env.Blocks = append(env.Blocks, blockEnvelope{Type: "tool_use", ID: v.ID, Name: v.Name, Input: v.Input})
		case ToolResultBlock:
			env.Blocks = append(env.Blocks, blockEnvelope{Type: "tool_result", ToolUseID: v.ToolUseID, Content: v.Content, IsError: v.IsError})
		default:
			return nil, fmt.Errorf("unknown content block type %T", b)
		}
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes a type-tagged message envelope.
func (m *Message) UnmarshalJSON(data []byte) error {
	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to decode message envelope: %w", err)
	}
	m.Role = env.Role
	m.Blocks = make([]ContentBlock, 0, len(env.Blocks))
	for _, b := range env.Blocks {
		switch b.Type {
		case "text":
			m.Blocks = append(m.Blocks, TextBlock{Text: b.Text})
		case "tool_use":
			m.Blocks = append(m.Blocks, ToolUseBlock{ID: b.ID, Name: b.Name, Input: b.Input})
		case "tool_result":
			m.Blocks = append(m.Blocks, ToolResultBlock{ToolUseID: b.ToolUseID, Content: b.Content, IsError: b.IsError})
		default:
			return fmt.Errorf("unknown content block type %q", b.Type)
		}
	}
	return nil
}
