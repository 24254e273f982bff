// Package stream decodes the incremental event stream emitted by agent
// backends: a sequence of "data: <json>" frames, one per logical event.
package stream

import (
	"encoding/json"
	"fmt"
)

// FrameType identifies the kind of a decoded frame.
type FrameType string

const (
	// FrameSystem opens a run and carries the server-assigned session id.
	FrameSystem FrameType = "system"
	// FrameAssistant carries assistant content blocks (text, tool use).
	FrameAssistant FrameType = "assistant"
	// FrameUser carries tool results flowing back to the assistant.
	FrameUser FrameType = "user"
	// FrameResult is the terminal marker of a stream.
	FrameResult FrameType = "result"
	// FrameStatus reports external task lifecycle changes.
	FrameStatus FrameType = "status"
	// FrameUnknown is any type this client does not understand. The fold
	// ignores it; newer servers must not break older consoles.
	FrameUnknown FrameType = "unknown"
)

// BlockType identifies the kind of a content block inside a frame.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockImage      BlockType = "image"
)

// Block is one content block. Fields are populated per Type.
type Block struct {
	Type BlockType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`

	// image
	Source json.RawMessage `json:"source,omitempty"`
}

// ResultText returns the tool_result payload as a string, stringifying
// non-string JSON payloads.
func (b *Block) ResultText() string {
	if len(b.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(b.Content, &s); err == nil {
		return s
	}
	return string(b.Content)
}

// FrameMessage is the message envelope inside assistant and user frames.
type FrameMessage struct {
	Content []Block `json:"content"`
}

// Artifact is a named content bundle attached to an external task.
type Artifact struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	Content  string `json:"content,omitempty"`
}

// Frame is one parsed unit of the event stream. It is a closed union over
// FrameType; payload fields are populated per type and zero otherwise.
type Frame struct {
	Type      FrameType     `json:"type"`
	SessionID string        `json:"session_id,omitempty"`
	Message   *FrameMessage `json:"message,omitempty"`

	// result
	Subtype string `json:"subtype,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
	Result  string `json:"result,omitempty"`

	// status
	TaskID    string    `json:"task_id,omitempty"`
	ContextID string    `json:"context_id,omitempty"`
	State     string    `json:"state,omitempty"`
	Artifact  *Artifact `json:"artifact,omitempty"`
}

// ParseFrame decodes one frame payload. Types this client does not know
// are returned as FrameUnknown rather than an error.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("parse frame: %w", err)
	}

	switch f.Type {
	case FrameSystem, FrameAssistant, FrameUser, FrameResult, FrameStatus:
	default:
		f.Type = FrameUnknown
	}
	return f, nil
}
