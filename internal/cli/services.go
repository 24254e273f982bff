package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"agentdeck/internal/auth"
	"agentdeck/internal/config"
	"agentdeck/internal/tunnel"
)

// NewServicesCmd creates the services command group.
func NewServicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "services",
		Short: "Manage registered agent services",
	}

	cmd.AddCommand(newServicesListCmd())
	cmd.AddCommand(newServicesAddCmd())
	cmd.AddCommand(newServicesRemoveCmd())
	cmd.AddCommand(newServicesTestCmd())
	cmd.AddCommand(newServicesExposeCmd())
	return cmd
}

func newServicesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			store, err := cliCtx.GetStore()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tURL\tAUTH\tDEFAULT")
			for id, svc := range cliCtx.Config.Services {
				authed := "no"
				if _, err := store.Get(id); err == nil {
					authed = "yes"
				}
				def := ""
				if svc.Default {
					def = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", id, svc.Name, svc.URL, authed, def)
			}
			return w.Flush()
		},
	}
}

func newServicesAddCmd() *cobra.Command {
	var (
		name       string
		setDefault bool
	)

	cmd := &cobra.Command{
		Use:   "add <id> <url>",
		Short: "Register a service",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, rawURL := args[0], args[1]
			if _, err := url.ParseRequestURI(rawURL); err != nil {
				return fmt.Errorf("invalid service url %q: %w", rawURL, err)
			}
			if name == "" {
				name = id
			}

			err := config.AddService(id, config.ServiceConfig{
				Name:    name,
				URL:     rawURL,
				Default: setDefault,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added service %s (%s)\n", id, rawURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to id)")
	cmd.Flags().BoolVar(&setDefault, "default", false, "mark as the default service")
	return cmd
}

func newServicesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Unregister a service and drop its credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			id := args[0]

			if err := config.RemoveService(id); err != nil {
				return err
			}
			store, err := cliCtx.GetStore()
			if err != nil {
				return err
			}
			if err := store.Remove(id); err != nil && !errors.Is(err, auth.ErrNoCredential) {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed service %s\n", id)
			return nil
		},
	}
}

func newServicesTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <id>",
		Short: "Check a service's health endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)

			id, svc, err := cliCtx.ResolveService(args[0])
			if err != nil {
				return err
			}
			client, err := cliCtx.BackendClient(id, svc)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cliCtx.Config.Auth.VerifyTimeout)
			defer cancel()

			info, err := client.Health(ctx)
			if err != nil {
				return fmt.Errorf("%s is unreachable: %w", svc.URL, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is %s (version %s)\n", svc.URL, info.Status, info.Version)
			return nil
		},
	}
}

func newServicesExposeCmd() *cobra.Command {
	var (
		subdomain string
		localPort int
	)

	cmd := &cobra.Command{
		Use:   "expose",
		Short: "Expose a local service through the subdomain proxy",
		Long: `Expose provisions a public subdomain through the configured tunnel
proxy and prints the connector token for the local tunnel client.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)

			if cliCtx.Config.Tunnel.URL == "" {
				return errors.New("tunnel proxy not configured (set tunnel.url)")
			}
			client := tunnel.NewClient(cliCtx.Config.Tunnel.URL, cliCtx.Config.Tunnel.APIKey)

			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			if subdomain != "" {
				available, err := client.Check(ctx, subdomain)
				if err != nil {
					return err
				}
				if !available {
					return fmt.Errorf("subdomain %q is taken", subdomain)
				}
			}

			sub, err := client.Create(ctx, tunnel.CreateRequest{
				Subdomain: subdomain,
				LocalPort: localPort,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Public URL:   %s\n", sub.PublicURL)
			fmt.Fprintf(cmd.OutOrStdout(), "Tunnel ID:    %s\n", sub.TunnelID)
			fmt.Fprintf(cmd.OutOrStdout(), "Tunnel token: %s\n", sub.TunnelToken)
			return nil
		},
	}

	cmd.Flags().StringVar(&subdomain, "subdomain", "", "subdomain prefix (auto-generated if omitted)")
	cmd.Flags().IntVar(&localPort, "port", 4936, "local port to expose")
	return cmd
}
