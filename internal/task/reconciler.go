package task

import (
	"fmt"

	"agentdeck/internal/conversation"
	"agentdeck/internal/stream"
	"agentdeck/pkg/logger"
)

// Source names which history the reconciler is rendering from.
type Source string

const (
	SourceLive   Source = "live"
	SourceReplay Source = "replay"
)

// Snapshot is the task-level view layered over the conversation.
type Snapshot struct {
	TaskID    string
	ContextID string
	State     State
	Artifacts []stream.Artifact
}

// Reconciler folds the frames of an external-agent call. Conversation
// frames go through the embedded builder; status frames update the task
// state and artifact set. Terminal states are sticky: once the task
// completes or fails, later status frames cannot move it back.
type Reconciler struct {
	builder *conversation.Builder

	taskID    string
	contextID string
	state     State
	artifacts []stream.Artifact
	source    Source

	failure *conversation.Message
}

// NewReconciler builds a reconciler rendering from the live stream.
func NewReconciler(opts ...conversation.Option) *Reconciler {
	return &Reconciler{
		builder: conversation.NewBuilder(opts...),
		state:   StateUnknown,
		source:  SourceLive,
	}
}

// Apply folds one frame. Returns true once the stream's terminal result
// frame has arrived.
func (r *Reconciler) Apply(frame stream.Frame) bool {
	if frame.Type == stream.FrameStatus {
		r.applyStatus(frame)
		return false
	}
	r.builder.Apply(frame)
	return r.builder.Done()
}

func (r *Reconciler) applyStatus(frame stream.Frame) {
	if frame.TaskID != "" {
		r.taskID = frame.TaskID
	}
	if frame.ContextID != "" {
		r.contextID = frame.ContextID
	}
	if frame.Artifact != nil {
		r.artifacts = append(r.artifacts, *frame.Artifact)
	}
	if frame.State == "" {
		return
	}

	next := ParseState(frame.State)
	if r.state.Terminal() {
		if next != r.state {
			logger.Debug().Str("task", r.taskID).
				Str("from", string(r.state)).Str("to", string(next)).
				Msg("Ignoring transition out of terminal state")
		}
		return
	}
	r.state = next
}

// FailWith replaces the conversation with a single error message. Used
// when the call itself fails and there is nothing coherent to fold.
func (r *Reconciler) FailWith(err error) {
	r.state = StateFailed
	text := fmt.Sprintf("External call failed: %v", err)
	r.failure = &conversation.Message{
		ID:   "msg-error",
		Role: conversation.RoleAssistant,
		Parts: []*conversation.Part{{
			ID:   "part-error-0",
			Kind: conversation.PartText,
			Text: text,
		}},
	}
}

// Messages returns the current conversation. After FailWith it is the
// synthesized error message alone.
func (r *Reconciler) Messages() []*conversation.Message {
	if r.failure != nil {
		return []*conversation.Message{r.failure}
	}
	return r.builder.Messages()
}

// Snapshot returns the task-level state.
func (r *Reconciler) Snapshot() Snapshot {
	artifacts := make([]stream.Artifact, len(r.artifacts))
	copy(artifacts, r.artifacts)
	return Snapshot{
		TaskID:    r.taskID,
		ContextID: r.contextID,
		State:     r.state,
		Artifacts: artifacts,
	}
}

// Source reports which history the reconciler currently renders from.
func (r *Reconciler) Source() Source {
	return r.source
}

// SwitchToReplay moves the view to the persisted replay log. The switch
// is one-directional within a view instance; calling it again is a
// no-op and there is no way back to live.
func (r *Reconciler) SwitchToReplay(frames []stream.Frame, opts ...conversation.Option) {
	if r.source == SourceReplay {
		return
	}
	r.source = SourceReplay

	// The replay log is the sole source from here on: task identity and
	// artifacts rebuild from it rather than stacking onto what the live
	// stream already delivered. Only a terminal state survives the
	// switch, via the stickiness in applyStatus.
	r.taskID = ""
	r.contextID = ""
	r.artifacts = nil

	replay := conversation.NewBuilder(opts...)
	for _, frame := range frames {
		if frame.Type == stream.FrameStatus {
			r.applyStatus(frame)
			continue
		}
		replay.Apply(frame)
		if replay.Done() {
			break
		}
	}
	r.builder = replay
}

// SessionID returns the session the underlying stream announced.
func (r *Reconciler) SessionID() string {
	return r.builder.SessionID()
}
