package stream

import (
	"context"
	"io"
	"strings"
	"testing"
)

func collect(t *testing.T, input string) []Frame {
	t.Helper()
	ch := Decode(context.Background(), io.NopCloser(strings.NewReader(input)))
	var frames []Frame
	for f := range ch {
		frames = append(frames, f)
	}
	return frames
}

func TestDecodeBasicSequence(t *testing.T) {
	input := strings.Join([]string{
		`data: {"type":"system","session_id":"s-1"}`,
		``,
		`data: {"type":"assistant","message":{"content":[{"type":"text","text":"hi"}]}}`,
		``,
		`data: {"type":"result","subtype":"success"}`,
		``,
	}, "\n")

	frames := collect(t, input)
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	if frames[0].Type != FrameSystem || frames[0].SessionID != "s-1" {
		t.Errorf("frame 0 = %+v", frames[0])
	}
	if frames[1].Type != FrameAssistant || frames[1].Message == nil {
		t.Fatalf("frame 1 = %+v", frames[1])
	}
	if got := frames[1].Message.Content[0].Text; got != "hi" {
		t.Errorf("text = %q", got)
	}
	if frames[2].Type != FrameResult {
		t.Errorf("frame 2 = %+v", frames[2])
	}
}

func TestDecodeSkipsMalformedAndComments(t *testing.T) {
	input := strings.Join([]string{
		`: keepalive comment`,
		`event: message`,
		`data: {not json`,
		`data: {"type":"assistant","message":{"content":[]}}`,
		`data: {"type":"result"}`,
	}, "\n")

	frames := collect(t, input)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[0].Type != FrameAssistant {
		t.Errorf("frame 0 = %+v", frames[0])
	}
}

func TestDecodeUnknownTypePassesThrough(t *testing.T) {
	input := `data: {"type":"telemetry","payload":123}` + "\n" + `data: {"type":"result"}` + "\n"

	frames := collect(t, input)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[0].Type != FrameUnknown {
		t.Errorf("frame 0 type = %q, want unknown", frames[0].Type)
	}
}

func TestDecodeStopsAtResult(t *testing.T) {
	input := strings.Join([]string{
		`data: {"type":"result"}`,
		`data: {"type":"assistant","message":{"content":[]}}`,
	}, "\n")

	frames := collect(t, input)
	if len(frames) != 1 || frames[0].Type != FrameResult {
		t.Fatalf("frames = %+v", frames)
	}
}

func TestDecodeReaderClosedMidStream(t *testing.T) {
	r, w := io.Pipe()

	ch := Decode(context.Background(), r)
	go func() {
		w.Write([]byte(`data: {"type":"assistant","message":{"content":[]}}` + "\n"))
		w.Close()
	}()

	// Partial stream ends without a result frame; channel must still close.
	var frames []Frame
	for f := range ch {
		frames = append(frames, f)
	}
	if len(frames) != 1 || frames[0].Type != FrameAssistant {
		t.Fatalf("frames = %+v", frames)
	}
}

func TestResultText(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"string payload", `"plain output"`, "plain output"},
		{"object payload", `{"files":3}`, `{"files":3}`},
		{"empty", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Block{Type: BlockToolResult, Content: []byte(tt.content)}
			if got := b.ResultText(); got != tt.want {
				t.Errorf("ResultText() = %q, want %q", got, tt.want)
			}
		})
	}
}
