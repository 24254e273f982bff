// Package conversation reconstructs an ordered message tree from the
// event frames of a chat stream or a persisted replay log. The fold is a
// pure function of the ordered frame sequence, so a conversation renders
// identically whether it is viewed live or reopened later.
package conversation

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartKind is the kind of an atomic render unit.
type PartKind string

const (
	PartText  PartKind = "text"
	PartTool  PartKind = "tool"
	PartImage PartKind = "image"
)

// ToolCall holds the mutable state of one tool invocation. It starts
// pending (Result unset) and is resolved in place exactly once when the
// matching result frame arrives.
type ToolCall struct {
	InvocationID string          `json:"invocation_id"`
	Name         string          `json:"name"`
	Input        json.RawMessage `json:"input,omitempty"`
	Result       *string         `json:"result,omitempty"`
	IsError      bool            `json:"is_error,omitempty"`
}

// Resolved reports whether a result has arrived for this invocation.
func (t *ToolCall) Resolved() bool {
	return t.Result != nil
}

// Part is one atomic render unit within a message. Parts keep their
// creation order and are never reordered.
type Part struct {
	ID    string          `json:"id"`
	Kind  PartKind        `json:"kind"`
	Order int             `json:"order"`
	Text  string          `json:"text,omitempty"`
	Tool  *ToolCall       `json:"tool,omitempty"`
	Image json.RawMessage `json:"image,omitempty"`
}

// Message is one conversation entry.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`
	Parts     []*Part   `json:"parts"`
}

// newMessageID derives a deterministic id from the fold position, so the
// same frame sequence always produces the same tree.
func newMessageID(index int) string {
	return fmt.Sprintf("msg-%d", index)
}

func newPartID(msgIndex, order int) string {
	return fmt.Sprintf("part-%d-%d", msgIndex, order)
}
