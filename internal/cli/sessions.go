package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// NewSessionsCmd creates the sessions command group.
func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect sessions and delegated task history",
	}

	cmd.AddCommand(newSessionsTasksCmd())
	cmd.AddCommand(newSessionsCheckCmd())
	return cmd
}

func newSessionsTasksCmd() *cobra.Command {
	var serviceID string

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List recorded delegated tasks for a service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)

			id, _, err := cliCtx.ResolveService(serviceID)
			if err != nil {
				return err
			}
			db, err := cliCtx.GetStorage()
			if err != nil {
				return err
			}

			records, err := db.ListTaskRecords(id)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No recorded tasks for %s\n", id)
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tTASK\tSTATE\tERROR")
			for _, rec := range records {
				errMsg := ""
				if rec.ErrorMessage != nil {
					errMsg = *rec.ErrorMessage
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					rec.StartedAt.Format(time.RFC3339), rec.TaskID, rec.State, errMsg)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&serviceID, "service", "s", "", "service id (default service if omitted)")
	return cmd
}

func newSessionsCheckCmd() *cobra.Command {
	var (
		serviceID string
		agentID   string
	)

	cmd := &cobra.Command{
		Use:   "check <session-id>",
		Short: "Check whether a session still exists server-side",
		Args:  cobra.ExactArgs(1),
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

			exists, err := client.SessionExists(cmd.Context(), agentID, args[0])
			if err != nil {
				return err
			}
			if exists {
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s exists\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s is gone\n", args[0])
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&serviceID, "service", "s", "", "service id (default service if omitted)")
	cmd.Flags().StringVar(&agentID, "agent", "default", "agent id")
	return cmd
}
