package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"agentdeck/internal/backend"
	"agentdeck/internal/storage"
	"agentdeck/internal/task"
)

func newCallCmdForTest(out *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetContext(context.Background())
	return cmd
}

func sseBody(w http.ResponseWriter, lines ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, line := range lines {
		fmt.Fprintf(w, "data: %s\n\n", line)
	}
}

func TestCallInterruptedStreamStaysLive(t *testing.T) {
	var historyCalls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/chat"):
			// The connection drops mid-run: frames arrive, then the
			// stream goes quiet with no result frame.
			sseBody(w,
				`{"type":"system","session_id":"s-1"}`,
				`{"type":"status","task_id":"t-1","state":"working"}`,
			)
		case strings.HasSuffix(r.URL.Path, "/history"):
			historyCalls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `[]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	db, err := storage.Open(filepath.Join(t.TempDir(), "calls.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var out bytes.Buffer
	cmd := newCallCmdForTest(&out)
	client := backend.NewClient(srv.URL, 5*time.Second)
	tracker := task.NewTracker(db)

	err = runCall(cmd, client, tracker, task.NewRegistry(), "local", "coder", "do it", "")
	if err == nil {
		t.Fatal("interrupted stream reported success")
	}

	if !strings.Contains(out.String(), "stream interrupted") {
		t.Errorf("output missing interruption notice:\n%s", out.String())
	}
	if strings.Contains(out.String(), "--- final ---") {
		t.Error("interrupted run switched to replay")
	}
	if n := historyCalls.Load(); n != 0 {
		t.Errorf("history fetched %d times on a dropped stream", n)
	}

	records, err := tracker.History("local")
	if err != nil || len(records) != 1 {
		t.Fatalf("records = %v, %v", records, err)
	}
	if records[0].ErrorMessage == nil {
		t.Error("dropped stream recorded as clean completion")
	}
}

func TestCallCompletedStreamSwitchesToReplay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/chat"):
			sseBody(w,
				`{"type":"system","session_id":"s-1"}`,
				`{"type":"status","task_id":"t-1","state":"working","artifact":{"id":"a-1","name":"report.md"}}`,
				`{"type":"status","task_id":"t-1","state":"completed"}`,
				`{"type":"result"}`,
			)
		case strings.HasSuffix(r.URL.Path, "/history"):
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `[
				{"type":"system","session_id":"s-1"},
				{"type":"assistant","message":{"content":[{"type":"text","text":"done"}]}},
				{"type":"status","task_id":"t-1","state":"working","artifact":{"id":"a-1","name":"report.md"}},
				{"type":"status","task_id":"t-1","state":"completed"},
				{"type":"result"}
			]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	var out bytes.Buffer
	cmd := newCallCmdForTest(&out)
	client := backend.NewClient(srv.URL, 5*time.Second)

	err := runCall(cmd, client, task.NewTracker(nil), task.NewRegistry(), "local", "coder", "do it", "")
	if err != nil {
		t.Fatalf("runCall: %v", err)
	}

	if !strings.Contains(out.String(), "--- final ---") {
		t.Errorf("completed run never switched to replay:\n%s", out.String())
	}
	// The artifact came through on both the live stream and the replay
	// log; the final summary must list it once.
	if n := strings.Count(out.String(), "artifact: report.md"); n != 1 {
		t.Errorf("artifact listed %d times, want 1:\n%s", n, out.String())
	}
}
