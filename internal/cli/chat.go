package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"agentdeck/internal/backend"
	"agentdeck/internal/conversation"
	"agentdeck/internal/heartbeat"
	"agentdeck/internal/stream"
)

// NewChatCmd creates the chat command.
func NewChatCmd() *cobra.Command {
	var (
		serviceID   string
		agentID     string
		sessionID   string
		projectPath string
		replay      bool
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with an agent",
		Long: `Chat opens a streamed run against an agent and renders the
conversation as it arrives. With --session it resumes an existing
session; with --replay it renders the persisted history instead of
sending anything.`,
		Example: `  # Send a message to the default service
  agentdeck chat "summarize the open incidents"

  # Continue an existing session
  agentdeck chat --session abc123 "and the closed ones?"

  # Re-render a finished conversation
  agentdeck chat --session abc123 --replay`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)

			id, svc, err := cliCtx.ResolveService(serviceID)
			if err != nil {
				return err
			}
			client, err := cliCtx.BackendClient(id, svc)
			if err != nil {
				return err
			}

			if replay {
				if sessionID == "" {
					return errors.New("--replay requires --session")
				}
				return runReplay(cmd, client, agentID, sessionID)
			}

			if len(args) == 0 {
				return errors.New("message required (or pass --replay)")
			}
			message := strings.Join(args, " ")
			return runLiveChat(cmd, cliCtx, client, agentID, sessionID, projectPath, message)
		},
	}

	cmd.Flags().StringVarP(&serviceID, "service", "s", "", "service id (default service if omitted)")
	cmd.Flags().StringVar(&agentID, "agent", "default", "agent id")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to resume")
	cmd.Flags().StringVar(&projectPath, "project", "", "project path sent with the session")
	cmd.Flags().BoolVar(&replay, "replay", false, "render persisted history instead of sending")

	return cmd
}

func runReplay(cmd *cobra.Command, client *backend.Client, agentID, sessionID string) error {
	frames, err := client.History(cmd.Context(), agentID, sessionID)
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && apiErr.IsNotFound() {
			return fmt.Errorf("no history for session %s", sessionID)
		}
		return fmt.Errorf("fetch history: %w", err)
	}

	messages := conversation.Fold(frames)
	renderMessages(cmd.OutOrStdout(), messages)
	return nil
}

func runLiveChat(cmd *cobra.Command, cliCtx *CLIContext, client *backend.Client, agentID, sessionID, projectPath, message string) error {
	out := cmd.OutOrStdout()
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	scheduler := heartbeat.NewScheduler(heartbeatAdapter{client}, cliCtx.Config.Heartbeat.Interval)
	defer scheduler.Stop()

	// A resumed session may have been reaped server-side; only arm the
	// heartbeat once its existence is confirmed. A fresh session is
	// armed by the stream itself below.
	if sessionID != "" {
		armed, err := scheduler.Resume(ctx, heartbeat.Payload{
			AgentID:     agentID,
			SessionID:   sessionID,
			ProjectPath: projectPath,
		})
		if err != nil {
			cliCtx.Log().Debug().Err(err).Msg("Session existence check failed")
		} else if armed {
			frames, err := client.History(ctx, agentID, sessionID)
			if err == nil {
				renderMessages(out, conversation.Fold(frames))
				fmt.Fprintln(out, "---")
			}
		}
	}

	body, err := client.OpenStream(ctx, agentID, backend.ChatRequest{
		Message:     message,
		SessionID:   sessionID,
		ProjectPath: projectPath,
	})
	if errors.Is(err, backend.ErrUnauthorized) {
		store, storeErr := cliCtx.GetStore()
		if storeErr == nil {
			store.Remove(serviceIDOf(cliCtx, client))
		}
		return errors.New("credential rejected; run `agentdeck login` again")
	}
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer body.Close()

	builder := conversation.NewBuilder()
	renderer := newRenderer(out)

	for frame := range stream.Decode(ctx, body) {
		builder.Apply(frame)
		renderer.Render(builder.Messages())

		// The first frame is the server's acknowledgement; from here on
		// the session exists and may be kept alive.
		if sid := builder.SessionID(); sid != "" && !scheduler.Armed() {
			scheduler.NotifySuccess(heartbeat.Payload{
				AgentID:     agentID,
				SessionID:   sid,
				ProjectPath: projectPath,
			})
		}
		if builder.Done() {
			break
		}
	}

	if n := builder.PendingCount(); n > 0 {
		fmt.Fprintf(out, "\n[%d tool invocation(s) never resolved]\n", n)
	}
	if sid := builder.SessionID(); sid != "" {
		fmt.Fprintf(out, "\nSession: %s\n", sid)
	}
	return nil
}

// serviceIDOf finds which configured service a client points at, for
// credential removal after an explicit rejection.
func serviceIDOf(cliCtx *CLIContext, client *backend.Client) string {
	for id, svc := range cliCtx.Config.Services {
		if svc.URL == client.BaseURL() {
			return id
		}
	}
	return ""
}

// heartbeatAdapter maps the backend client onto the scheduler's Pinger.
type heartbeatAdapter struct {
	client *backend.Client
}

func (a heartbeatAdapter) Ping(ctx context.Context, payload heartbeat.Payload) error {
	return a.client.Ping(ctx, backend.HeartbeatPayload{
		AgentID:     payload.AgentID,
		SessionID:   payload.SessionID,
		ProjectPath: payload.ProjectPath,
	})
}

func (a heartbeatAdapter) SessionExists(ctx context.Context, agentID, sessionID string) (bool, error) {
	return a.client.SessionExists(ctx, agentID, sessionID)
}

// renderer prints conversation parts incrementally: each part once when
// it appears, and tool resolutions once when they arrive.
type renderer struct {
	out      io.Writer
	printed  map[string]bool
	resolved map[string]bool
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{
		out:      out,
		printed:  make(map[string]bool),
		resolved: make(map[string]bool),
	}
}

func (r *renderer) Render(messages []*conversation.Message) {
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if !r.printed[part.ID] {
				r.printed[part.ID] = true
				r.printPart(msg.Role, part)
			}
			if part.Kind == conversation.PartTool && part.Tool.Resolved() && !r.resolved[part.ID] {
				r.resolved[part.ID] = true
				r.printResolution(part)
			}
		}
	}
}

func (r *renderer) printPart(role conversation.Role, part *conversation.Part) {
	switch part.Kind {
	case conversation.PartText:
		fmt.Fprintf(r.out, "[%s] %s\n", role, part.Text)
	case conversation.PartTool:
		fmt.Fprintf(r.out, "[tool] %s running...\n", part.Tool.Name)
	case conversation.PartImage:
		fmt.Fprintln(r.out, "[image]")
	}
}

func (r *renderer) printResolution(part *conversation.Part) {
	status := "done"
	if part.Tool.IsError {
		status = "error"
	}
	result := ""
	if part.Tool.Result != nil {
		result = *part.Tool.Result
	}
	if len(result) > 200 {
		result = result[:200] + "..."
	}
	fmt.Fprintf(r.out, "[tool] %s %s: %s\n", part.Tool.Name, status, result)
}

func renderMessages(out io.Writer, messages []*conversation.Message) {
	r := newRenderer(out)
	r.Render(messages)
}
