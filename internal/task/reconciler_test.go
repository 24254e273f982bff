package task

import (
	"errors"
	"testing"

	"agentdeck/internal/stream"
)

func statusFrame(taskID, state string) stream.Frame {
	return stream.Frame{Type: stream.FrameStatus, TaskID: taskID, State: state}
}

func TestStateTransitions(t *testing.T) {
	r := NewReconciler()

	for _, state := range []string{"submitted", "working", "input-required", "working", "completed"} {
		r.Apply(statusFrame("t-1", state))
	}

	snap := r.Snapshot()
	if snap.State != StateCompleted {
		t.Errorf("state = %v, want completed", snap.State)
	}
	if snap.TaskID != "t-1" {
		t.Errorf("taskID = %q", snap.TaskID)
	}
}

func TestTerminalStateIsSticky(t *testing.T) {
	r := NewReconciler()
	r.Apply(statusFrame("t-1", "working"))
	r.Apply(statusFrame("t-1", "completed"))
	r.Apply(statusFrame("t-1", "working"))

	if got := r.Snapshot().State; got != StateCompleted {
		t.Errorf("state = %v after post-terminal frame, want completed", got)
	}
}

func TestAllTerminalStatesSticky(t *testing.T) {
	for _, terminal := range []string{"completed", "failed", "canceled", "rejected"} {
		r := NewReconciler()
		r.Apply(statusFrame("t-1", terminal))
		r.Apply(statusFrame("t-1", "submitted"))

		if got := r.Snapshot().State; got != State(terminal) {
			t.Errorf("state = %v after frame following %s", got, terminal)
		}
	}
}

func TestArtifactsAccumulate(t *testing.T) {
	r := NewReconciler()
	r.Apply(stream.Frame{
		Type:     stream.FrameStatus,
		Artifact: &stream.Artifact{ID: "a-1", Name: "report.md", Content: "# hi"},
	})
	r.Apply(stream.Frame{
		Type:     stream.FrameStatus,
		State:    "completed",
		Artifact: &stream.Artifact{ID: "a-2", Name: "diff.patch"},
	})
	// Terminal state does not block artifact delivery on the same frame
	// stream; it only freezes the state field.
	r.Apply(stream.Frame{
		Type:     stream.FrameStatus,
		Artifact: &stream.Artifact{ID: "a-3", Name: "log.txt"},
	})

	snap := r.Snapshot()
	if len(snap.Artifacts) != 3 {
		t.Fatalf("artifacts = %d, want 3", len(snap.Artifacts))
	}
	for i, want := range []string{"a-1", "a-2", "a-3"} {
		if snap.Artifacts[i].ID != want {
			t.Errorf("artifact %d = %q, want %q", i, snap.Artifacts[i].ID, want)
		}
	}
}

func TestUnknownStateDoesNotCrash(t *testing.T) {
	r := NewReconciler()
	r.Apply(statusFrame("t-1", "hibernating"))

	if got := r.Snapshot().State; got != StateUnknown {
		t.Errorf("state = %v, want unknown", got)
	}
}

func TestConversationFramesPassThrough(t *testing.T) {
	r := NewReconciler()
	r.Apply(stream.Frame{
		Type: stream.FrameAssistant,
		Message: &stream.FrameMessage{Content: []stream.Block{
			{Type: stream.BlockText, Text: "working on it"},
		}},
	})
	r.Apply(statusFrame("t-1", "working"))

	msgs := r.Messages()
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if msgs[0].Parts[0].Text != "working on it" {
		t.Errorf("text = %q", msgs[0].Parts[0].Text)
	}
}

func TestResultFrameCompletes(t *testing.T) {
	r := NewReconciler()
	if done := r.Apply(statusFrame("t-1", "working")); done {
		t.Error("status frame reported completion")
	}
	if done := r.Apply(stream.Frame{Type: stream.FrameResult}); !done {
		t.Error("result frame did not report completion")
	}
}

func TestFailWithSynthesizesErrorMessage(t *testing.T) {
	r := NewReconciler()
	r.Apply(stream.Frame{
		Type: stream.FrameAssistant,
		Message: &stream.FrameMessage{Content: []stream.Block{
			{Type: stream.BlockText, Text: "partial"},
		}},
	})

	r.FailWith(errors.New("backend returned 502"))

	msgs := r.Messages()
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want single error message", len(msgs))
	}
	if msgs[0].Parts[0].Kind != "text" {
		t.Errorf("kind = %v", msgs[0].Parts[0].Kind)
	}
	if r.Snapshot().State != StateFailed {
		t.Errorf("state = %v, want failed", r.Snapshot().State)
	}
}

func TestSwitchToReplayIsOneWay(t *testing.T) {
	r := NewReconciler()
	r.Apply(stream.Frame{
		Type: stream.FrameAssistant,
		Message: &stream.FrameMessage{Content: []stream.Block{
			{Type: stream.BlockText, Text: "live partial"},
		}},
	})
	if r.Source() != SourceLive {
		t.Fatalf("source = %v before switch", r.Source())
	}

	replayLog := []stream.Frame{
		{Type: stream.FrameSystem, SessionID: "s-1"},
		{Type: stream.FrameAssistant, Message: &stream.FrameMessage{Content: []stream.Block{
			{Type: stream.BlockText, Text: "full answer"},
		}}},
		{Type: stream.FrameStatus, TaskID: "t-1", State: "completed"},
		{Type: stream.FrameResult},
	}
	r.SwitchToReplay(replayLog)

	if r.Source() != SourceReplay {
		t.Fatalf("source = %v after switch", r.Source())
	}
	msgs := r.Messages()
	last := msgs[len(msgs)-1]
	if last.Parts[0].Text != "full answer" {
		t.Errorf("replay text = %q", last.Parts[0].Text)
	}
	if r.Snapshot().State != StateCompleted {
		t.Errorf("state = %v from replay status frames", r.Snapshot().State)
	}

	// A second switch is a no-op: the replayed tree stays put.
	before := r.Messages()
	r.SwitchToReplay(nil)
	after := r.Messages()
	if len(before) != len(after) {
		t.Error("second switch rebuilt the conversation")
	}
}

func TestSwitchToReplayRebuildsTaskView(t *testing.T) {
	r := NewReconciler()
	r.Apply(stream.Frame{
		Type: stream.FrameStatus, TaskID: "t-1", ContextID: "ctx-1", State: "working",
		Artifact: &stream.Artifact{ID: "a-1", Name: "report.md"},
	})

	// The persisted history holds the same artifact the live stream
	// already delivered; after the switch it must appear once, not per
	// source.
	replayLog := []stream.Frame{
		{Type: stream.FrameSystem, SessionID: "s-1"},
		{Type: stream.FrameStatus, TaskID: "t-1", ContextID: "ctx-1", State: "working",
			Artifact: &stream.Artifact{ID: "a-1", Name: "report.md"}},
		{Type: stream.FrameStatus, TaskID: "t-1", State: "completed"},
		{Type: stream.FrameResult},
	}
	r.SwitchToReplay(replayLog)

	snap := r.Snapshot()
	if len(snap.Artifacts) != 1 {
		t.Fatalf("artifacts = %d, want 1", len(snap.Artifacts))
	}
	if snap.Artifacts[0].ID != "a-1" {
		t.Errorf("artifact = %q", snap.Artifacts[0].ID)
	}
	if snap.TaskID != "t-1" || snap.ContextID != "ctx-1" {
		t.Errorf("identity = %q/%q", snap.TaskID, snap.ContextID)
	}
}

func TestSwitchToReplayKeepsTerminalState(t *testing.T) {
	r := NewReconciler()
	r.Apply(statusFrame("t-1", "completed"))

	// A replay log that lags behind the live outcome cannot regress it.
	r.SwitchToReplay([]stream.Frame{
		statusFrame("t-1", "working"),
		{Type: stream.FrameResult},
	})

	if got := r.Snapshot().State; got != StateCompleted {
		t.Errorf("state = %v, want completed", got)
	}
}

func TestRegistrySingleLiveStreamPerTarget(t *testing.T) {
	reg := NewRegistry()

	if !reg.Acquire("agent-b") {
		t.Fatal("first acquire failed")
	}
	if reg.Acquire("agent-b") {
		t.Error("second acquire succeeded for same target")
	}
	if !reg.IsLive("agent-b") {
		t.Error("target not live after acquire")
	}
	if !reg.Acquire("agent-c") {
		t.Error("unrelated target blocked")
	}

	reg.Release("agent-b")
	if reg.IsLive("agent-b") {
		t.Error("target live after release")
	}
	if !reg.Acquire("agent-b") {
		t.Error("re-acquire after release failed")
	}
}

func TestDisplayLabels(t *testing.T) {
	cases := map[State]string{
		StateUnknown:       "Calling",
		StateSubmitted:     "Submitted",
		StateWorking:       "Running",
		StateInputRequired: "Waiting for input",
		StateCompleted:     "Success",
		StateFailed:        "Error",
		StateCanceled:      "Canceled",
		StateRejected:      "Rejected",
	}
	for state, want := range cases {
		if got := state.Display(); got != want {
			t.Errorf("%v.Display() = %q, want %q", state, got, want)
		}
	}
}
