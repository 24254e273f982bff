package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"agentdeck/internal/backend"
	"agentdeck/internal/stream"
	"agentdeck/internal/task"
)

// NewCallCmd creates the call command: delegate a task to an external
// agent and track it to completion.
func NewCallCmd() *cobra.Command {
	var (
		serviceID   string
		projectPath string
	)

	cmd := &cobra.Command{
		Use:   "call <agent> <message>",
		Short: "Delegate a task to an external agent",
		Long: `Call opens a delegated run against an external agent, renders its
conversation and lifecycle state from the live stream, and switches to
the persisted history once the stream reports completion.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			agentID := args[0]
			message := strings.Join(args[1:], " ")

			id, svc, err := cliCtx.ResolveService(serviceID)
			if err != nil {
				return err
			}
			client, err := cliCtx.BackendClient(id, svc)
			if err != nil {
				return err
			}

			db, err := cliCtx.GetStorage()
			if err != nil {
				return err
			}
			tracker := task.NewTracker(db)
			registry := task.NewRegistry()

			return runCall(cmd, client, tracker, registry, id, agentID, message, projectPath)
		},
	}

	cmd.Flags().StringVarP(&serviceID, "service", "s", "", "service id (default service if omitted)")
	cmd.Flags().StringVar(&projectPath, "project", "", "project path sent with the session")
	return cmd
}

func runCall(cmd *cobra.Command, client *backend.Client, tracker *task.Tracker, registry *task.Registry, serviceID, agentID, message, projectPath string) error {
	out := cmd.OutOrStdout()
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	target := serviceID + "/" + agentID
	if !registry.Acquire(target) {
		return fmt.Errorf("a call to %s is already running", target)
	}
	defer registry.Release(target)

	recordID := tracker.Begin(serviceID, "")
	reconciler := task.NewReconciler()

	body, err := client.OpenStream(ctx, agentID, backend.ChatRequest{
		Message:     message,
		ProjectPath: projectPath,
	})
	if err != nil {
		reconciler.FailWith(err)
		renderMessages(out, reconciler.Messages())
		tracker.Finish(recordID, reconciler.Snapshot(), err)
		return err
	}
	defer body.Close()

	renderer := newRenderer(out)
	lastState := task.StateUnknown
	done := false

	for frame := range stream.Decode(ctx, body) {
		if reconciler.Apply(frame) {
			done = true
		}
		renderer.Render(reconciler.Messages())

		if state := reconciler.Snapshot().State; state != lastState {
			lastState = state
			fmt.Fprintf(out, "[task] %s\n", state.Display())
		}
	}

	// A stream that goes quiet without its result frame is a dropped
	// connection, not a finished task. Leave the live view standing and
	// report the interruption instead of pretending the run ended.
	if !done && !reconciler.Snapshot().State.Terminal() {
		streamErr := errors.New("stream ended before completion")
		fmt.Fprintln(out, "\n[task] stream interrupted; task state unknown, check history later")
		tracker.Finish(recordID, reconciler.Snapshot(), streamErr)
		return streamErr
	}

	// The live stream has delivered its explicit end; from here the
	// persisted history is the source of truth.
	if sid := reconciler.SessionID(); sid != "" {
		frames, err := client.History(ctx, agentID, sid)
		if err == nil {
			reconciler.SwitchToReplay(frames)
			renderer = newRenderer(out)
			fmt.Fprintln(out, "--- final ---")
			renderer.Render(reconciler.Messages())
		}
	}

	snap := reconciler.Snapshot()
	fmt.Fprintf(out, "\nTask %s: %s\n", snap.TaskID, snap.State.Display())
	for _, artifact := range snap.Artifacts {
		fmt.Fprintf(out, "  artifact: %s (%s)\n", artifact.Name, artifact.MimeType)
	}

	tracker.Finish(recordID, snap, nil)
	return nil
}
