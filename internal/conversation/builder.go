package conversation

import (
	"time"

	"agentdeck/internal/stream"
	"agentdeck/pkg/logger"
)

// Builder folds frames into an ordered message tree. One Builder serves
// exactly one stream: the pending invocation index it carries is never
// shared across streams and is discarded with the Builder.
type Builder struct {
	messages  []*Message
	pending   map[string]*Part
	sessionID string
	done      bool
	now       func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides the timestamp source. Mainly for tests and replay,
// where rebuilt trees must compare equal across fold passes.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder creates an empty Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		pending: make(map[string]*Part),
		now:     func() time.Time { return time.Time{} },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Apply folds one frame into the tree and reports whether visible state
// changed. It never returns an error: malformed or unmatched input is
// dropped, per-frame failure is data rather than control flow.
func (b *Builder) Apply(frame stream.Frame) bool {
	switch frame.Type {
	case stream.FrameSystem:
		return b.applySystem(frame)
	case stream.FrameAssistant:
		return b.applyAssistant(frame)
	case stream.FrameUser:
		return b.applyUser(frame)
	case stream.FrameResult:
		b.done = true
		return true
	default:
		return false
	}
}

// applySystem opens an assistant message carrying the session id, which
// the UI uses to correlate resumed sessions.
func (b *Builder) applySystem(frame stream.Frame) bool {
	b.sessionID = frame.SessionID

	msg := b.openMessage(RoleAssistant)
	b.appendPart(msg, &Part{
		Kind: PartText,
		Text: frame.SessionID,
	})
	return true
}

// applyAssistant opens a new assistant message, one part per content
// block in block order. Tool invocations are registered pending.
func (b *Builder) applyAssistant(frame stream.Frame) bool {
	if frame.Message == nil {
		return false
	}

	msg := b.openMessage(RoleAssistant)
	for i := range frame.Message.Content {
		block := &frame.Message.Content[i]
		switch block.Type {
		case stream.BlockText:
			b.appendPart(msg, &Part{Kind: PartText, Text: block.Text})

		case stream.BlockToolUse:
			part := &Part{
				Kind: PartTool,
				Tool: &ToolCall{
					InvocationID: block.ID,
					Name:         block.Name,
					Input:        block.Input,
				},
			}
			b.appendPart(msg, part)
			b.pending[block.ID] = part

		case stream.BlockImage:
			b.appendPart(msg, &Part{Kind: PartImage, Image: block.Source})
		}
	}
	return true
}

// applyUser resolves pending tool invocations in place. It never creates
// a message or part; a result with no matching pending invocation is
// dropped, which is expected for out-of-order delivery.
func (b *Builder) applyUser(frame stream.Frame) bool {
	if frame.Message == nil {
		return false
	}

	changed := false
	for i := range frame.Message.Content {
		block := &frame.Message.Content[i]
		if block.Type != stream.BlockToolResult {
			continue
		}

		part, ok := b.pending[block.ToolUseID]
		if !ok {
			logger.Debug().Str("tool_use_id", block.ToolUseID).Msg("dropping unmatched tool result")
			continue
		}
		if part.Tool.Resolved() {
			// A second result for the same invocation is ignored, not
			// overwritten.
			continue
		}

		result := block.ResultText()
		part.Tool.Result = &result
		part.Tool.IsError = block.IsError
		changed = true
	}
	return changed
}

func (b *Builder) openMessage(role Role) *Message {
	msg := &Message{
		ID:        newMessageID(len(b.messages)),
		Role:      role,
		Timestamp: b.now(),
	}
	b.messages = append(b.messages, msg)
	return msg
}

func (b *Builder) appendPart(msg *Message, part *Part) {
	part.Order = len(msg.Parts)
	part.ID = newPartID(len(b.messages)-1, part.Order)
	msg.Parts = append(msg.Parts, part)
}

// Messages returns the current tree. The slice header is fresh on every
// call while message and part pointers are reused, so consumers relying
// on slice identity for change detection observe each fold step.
func (b *Builder) Messages() []*Message {
	out := make([]*Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// SessionID returns the session id from the system frame, if seen.
func (b *Builder) SessionID() string {
	return b.sessionID
}

// Done reports whether the terminal result frame has arrived.
func (b *Builder) Done() bool {
	return b.done
}

// PendingCount returns the number of unresolved tool invocations.
func (b *Builder) PendingCount() int {
	n := 0
	for _, part := range b.pending {
		if !part.Tool.Resolved() {
			n++
		}
	}
	return n
}

// Fold rebuilds a message tree from an ordered frame sequence. Live
// streams and replay logs share this single fold path.
func Fold(frames []stream.Frame, opts ...Option) []*Message {
	b := NewBuilder(opts...)
	for _, f := range frames {
		b.Apply(f)
	}
	return b.Messages()
}
