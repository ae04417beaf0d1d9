package harness

import (
	"sync"

	ports "github.com/ZanzyTHEbar/converse-harness/converse/harness/ports"
	"github.com/google/uuid"
)

// Conversation owns the append-only message history of one session plus its
// optional system instructions and the active tool registry. Messages are
// never edited or removed once appended; a turn's messages are appended
// atomically so cancellation can never observe a half-recorded turn.
// Persistence is an external collaborator (the store port).
type Conversation struct {
	id     string
	system string

	mu       sync.RWMutex
	messages []ports.Message
	registry *Registry
}

// ConversationOption customizes a new conversation.
type ConversationOption func(*Conversation)

// WithSystem sets the system instructions sent on every invocation.
func WithSystem(system string) ConversationOption {
	return func(c *Conversation) { c.system = system }
}

// WithRegistry sets the conversation's active tool registry.
func WithRegistry(reg *Registry) ConversationOption {
	return func(c *Conversation) { c.registry = reg }
}

// WithID overrides the generated conversation ID (e.g. when resuming a
// persisted session).
func WithID(id string) ConversationOption {
	return func(c *Conversation) { c.id = id }
}

// WithHistory seeds the conversation with previously persisted messages.
func WithHistory(msgs []ports.Message) ConversationOption {
	return func(c *Conversation) { c.messages = append(c.messages, msgs...) }
}

// NewConversation creates an empty conversation with a fresh UUID.
func NewConversation(opts ...ConversationOption) *Conversation {
	c := &Conversation{id: uuid.NewString()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the conversation identifier.
func (c *Conversation) ID() string { return c.id }

// System returns the system instructions, if any.
func (c *Conversation) System() string { return c.system }

// Registry returns the active tool registry (nil when tool-less).
func (c *Conversation) Registry() *Registry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry
}

// SetRegistry replaces the active tool registry for subsequent turns.
func (c *Conversation) SetRegistry(reg *Registry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registry = reg
}

// Append records one or more messages as a single atomic mutation,
// preserving argument order.
func (c *Conversation) Append(msgs ...ports.Message) {
	if len(msgs) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msgs...)
}

// Messages returns a snapshot of the history in insertion order. The
// returned slice is a copy; mutating it does not affect the conversation.
func (c *Conversation) Messages() []ports.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := make([]ports.Message, len(c.messages))
	copy(snapshot, c.messages)
	return snapshot
}

// Len returns the number of recorded messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}
