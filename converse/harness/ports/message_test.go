package harnessports

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMessage_MarshalRoundTrip tests that every block kind survives the
// type-tagged envelope encoding used for persistence.
func TestMessage_MarshalRoundTrip(t *testing.T) {
	original := Message{
		Role: RoleAssistant,
		Blocks: []ContentBlock{
			TextBlock{Text: "Checking the weather now."},
			ToolUseBlock{ID: "toolu_01", Name: "getWeather", Input: json.RawMessage(`{"latitude":45.5,"longitude":-122.6}`)},
			ToolResultBlock{ToolUseID: "toolu_01", Content: json.RawMessage(`{"location":"Portland"}`), IsError: true},
		},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, RoleAssistant, decoded.Role)
	require.Len(t, decoded.Blocks, 3)

	assert.Equal(t, TextBlock{Text: "Checking the weather now."}, decoded.Blocks[0])

	use, ok := decoded.Blocks[1].(ToolUseBlock)
	require.True(t, ok)
	assert.Equal(t, "toolu_01", use.ID)
	assert.Equal(t, "getWeather", use.Name)
	assert.JSONEq(t, `{"latitude":45.5,"longitude":-122.6}`, string(use.Input))

	result, ok := decoded.Blocks[2].(ToolResultBlock)
	require.True(t, ok)
	assert.Equal(t, "toolu_01", result.ToolUseID)
	assert.JSONEq(t, `{"location":"Portland"}`, string(result.Content))
	assert.True(t, result.IsError)
}

// TestMessage_MarshalEmitsTypeTags tests the envelope wire shape directly so
// stored rows stay readable by other consumers.
func TestMessage_MarshalEmitsTypeTags(t *testing.T) {
	msg := Message{
		Role: RoleUser,
		Blocks: []ContentBlock{
			TextBlock{Text: "hello"},
			ToolResultBlock{ToolUseID: "toolu_02", Content: json.RawMessage(`"60F"`)},
		},
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"role": "user",
		"blocks": [
			{"type": "text", "text": "hello"},
			{"type": "tool_result", "tool_use_id": "toolu_02", "content": "60F"}
		]
	}`, string(data))
}

// TestMessage_UnmarshalRejectsUnknownBlockType tests that decoding fails
// loudly instead of silently dropping content.
func TestMessage_UnmarshalRejectsUnknownBlockType(t *testing.T) {
	raw := `{"role":"assistant","blocks":[{"type":"hologram","text":"hi"}]}`

	var msg Message
	err := json.Unmarshal([]byte(raw), &msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown content block type")
}

// TestMessage_Accessors tests Text, ToolUses, and ToolResults filtering.
func TestMessage_Accessors(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Blocks: []ContentBlock{
			TextBlock{Text: "Let me check "},
			ToolUseBlock{ID: "a", Name: "getWeather", Input: json.RawMessage(`{}`)},
			TextBlock{Text: "two places."},
			ToolUseBlock{ID: "b", Name: "getWeather", Input: json.RawMessage(`{}`)},
			ToolResultBlock{ToolUseID: "a", Content: json.RawMessage(`{}`)},
		},
	}

	assert.Equal(t, "Let me check two places.", msg.Text())

	uses := msg.ToolUses()
	require.Len(t, uses, 2)
	assert.Equal(t, "a", uses[0].ID)
	assert.Equal(t, "b", uses[1].ID)

	results := msg.ToolResults()
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ToolUseID)
}

// TestNewTextMessage tests the single-block constructor.
func TestNewTextMessage(t *testing.T) {
	msg := NewTextMessage(RoleUser, "What's the weather in Portland?")

	assert.Equal(t, RoleUser, msg.Role)
	require.Len(t, msg.Blocks, 1)
	assert.Equal(t, "What's the weather in Portland?", msg.Text())
}

// TestNewToolResultMessage tests that results ride in a user-role message in
// the given order.
func TestNewToolResultMessage(t *testing.T) {
	msg := NewToolResultMessage(
		ToolResultBlock{ToolUseID: "first", Content: json.RawMessage(`1`)},
		ToolResultBlock{ToolUseID: "second", Content: json.RawMessage(`2`), IsError: true},
	)

	assert.Equal(t, RoleUser, msg.Role)
	results := msg.ToolResults()
	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].ToolUseID)
	assert.Equal(t, "second", results[1].ToolUseID)
	assert.True(t, results[1].IsError)
}
