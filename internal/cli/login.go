package cli

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"agentdeck/internal/auth"
	"agentdeck/internal/backend"
)

// NewLoginCmd creates the login command.
func NewLoginCmd() *cobra.Command {
	var (
		serviceID string
		password  string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against an agent service",
		Example: `  # Log in to the default service (password prompted)
  agentdeck login

  # Log in to a specific service
  agentdeck login --service staging`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)

			id, svc, err := cliCtx.ResolveService(serviceID)
			if err != nil {
				return err
			}

			if password == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Password for %s: ", svc.URL)
				raw, err := term.ReadPassword(int(syscall.Stdin))
				fmt.Fprintln(cmd.OutOrStdout())
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				password = string(raw)
			}

			client, err := cliCtx.BackendClient(id, svc)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			token, err := client.Login(ctx, password)
			if errors.Is(err, backend.ErrUnauthorized) {
				return errors.New("login rejected: wrong password")
			}
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			store, err := cliCtx.GetStore()
			if err != nil {
				return err
			}
			err = store.Set(auth.Credential{
				ServiceID:   id,
				ServiceName: svc.Name,
				ServiceURL:  svc.URL,
				Token:       token,
				IssuedAt:    time.Now(),
			})
			if err != nil {
				return fmt.Errorf("store credential: %w", err)
			}
			store.SetActive(id)

			fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s (%s)\n", svc.Name, id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&serviceID, "service", "s", "", "service id (default service if omitted)")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted if omitted; prefer the prompt)")

	return cmd
}

// NewLogoutCmd creates the logout command.
func NewLogoutCmd() *cobra.Command {
	var serviceID string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Drop the stored credential for a service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)

			id, svc, err := cliCtx.ResolveService(serviceID)
			if err != nil {
				return err
			}

			store, err := cliCtx.GetStore()
			if err != nil {
				return err
			}
			cred, err := store.Get(id)
			if errors.Is(err, auth.ErrNoCredential) {
				fmt.Fprintf(cmd.OutOrStdout(), "Not logged in to %s\n", id)
				return nil
			}
			if err != nil {
				return err
			}

			// Server-side invalidation is best effort; the local
			// credential goes away regardless.
			client, err := cliCtx.BackendClient(id, svc)
			if err == nil {
				ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
				if err := client.Logout(ctx, cred.Token); err != nil {
					cliCtx.Log().Debug().Err(err).Str("service", id).Msg("Server-side logout failed")
				}
				cancel()
			}

			if err := store.Remove(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged out of %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&serviceID, "service", "s", "", "service id (default service if omitted)")
	return cmd
}
