package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Turn is one message in a conversation.
type Turn struct {
	Role      string                 `json:"role"`
	Text      string                 `json:"text"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// contextWindowTurns bounds how many trailing turns the summary replays.
const contextWindowTurns = 6

// Conversation is the ordered turn history of one attack. It is owned by
// the orchestrator that created it and discarded on reset.
type Conversation struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	Turns    []Turn `json:"turns"`
}

// NewConversation creates an empty conversation with a fresh identifier.
func NewConversation() *Conversation {
	return &Conversation{ID: uuid.NewString()}
}

// Append records a turn.
func (c *Conversation) Append(role, text string, metadata map[string]interface{}) {
	c.Turns = append(c.Turns, Turn{
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
		Metadata:  metadata,
	})
}

// TurnCount returns the number of recorded turns.
func (c *Conversation) TurnCount() int { return len(c.Turns) }

// Branch creates a child conversation containing the first k turns. The
// child's parent is this conversation's identifier.
func (c *Conversation) Branch(k int) *Conversation {
	if k < 0 {
		k = 0
	}
	if k > len(c.Turns) {
		k = len(c.Turns)
	}
	child := &Conversation{ID: uuid.NewString(), ParentID: c.ID}
	child.Turns = append(child.Turns, c.Turns[:k]...)
	return child
}

// Summary renders the trailing context window for the planner.
func (c *Conversation) Summary() string {
	start := len(c.Turns) - contextWindowTurns
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	for _, t := range c.Turns[start:] {
		text := t.Text
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		fmt.Fprintf(&b, "[%s] %s\n", t.Role, text)
	}
	return b.String()
}

// AssistantTexts returns the target's responses in order, for per-turn
// judging.
func (c *Conversation) AssistantTexts() []string {
	var out []string
	for _, t := range c.Turns {
		if t.Role == "assistant" {
			out = append(out, t.Text)
		}
	}
	return out
}
