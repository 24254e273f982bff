package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"

	"agentdeck/internal/auth"
	"agentdeck/internal/backend"
	"agentdeck/internal/tunnel"
)

// minServerVersion is the oldest backend version the console's frame
// and auth contracts are known to work against.
const minServerVersion = "1.2.0"

type checkResult struct {
	name    string
	ok      bool
	warn    bool
	message string
}

// NewDoctorCmd creates the doctor command.
func NewDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration, storage, and service connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)

			results := []checkResult{
				checkConfigFile(cliCtx),
				checkStorage(cliCtx),
			}
			results = append(results, checkServices(cmd.Context(), cliCtx)...)
			results = append(results, checkCredentials(cliCtx))
			if cliCtx.Config.Tunnel.URL != "" {
				results = append(results, checkTunnelProxy(cmd.Context(), cliCtx))
			}

			failed := 0
			for _, res := range results {
				mark := "ok"
				if res.warn {
					mark = "warn"
				} else if !res.ok {
					mark = "FAIL"
					failed++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", mark, res.name, res.message)
			}

			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

func checkConfigFile(cliCtx *CLIContext) checkResult {
	res := checkResult{name: "config"}
	if _, err := os.Stat(cliCtx.ConfigPath); err != nil {
		res.warn = true
		res.ok = true
		res.message = fmt.Sprintf("%s not found, running on defaults", cliCtx.ConfigPath)
		return res
	}
	if len(cliCtx.Config.Services) == 0 {
		res.warn = true
		res.ok = true
		res.message = "no services registered; run `agentdeck services add`"
		return res
	}
	res.ok = true
	res.message = fmt.Sprintf("%s, %d service(s)", cliCtx.ConfigPath, len(cliCtx.Config.Services))
	return res
}

func checkStorage(cliCtx *CLIContext) checkResult {
	res := checkResult{name: "storage"}
	db, err := cliCtx.GetStorage()
	if err != nil {
		res.message = err.Error()
		return res
	}
	res.ok = true
	res.message = db.Path()
	return res
}

func checkServices(ctx context.Context, cliCtx *CLIContext) []checkResult {
	var results []checkResult
	for id, svc := range cliCtx.Config.Services {
		res := checkResult{name: "service " + id}

		client, err := cliCtx.BackendClient(id, svc)
		if err != nil {
			res.message = err.Error()
			results = append(results, res)
			continue
		}

		checkCtx, cancel := context.WithTimeout(ctx, cliCtx.Config.Auth.VerifyTimeout)
		info, err := client.Health(checkCtx)
		cancel()
		if err != nil {
			res.message = fmt.Sprintf("unreachable: %v", err)
			var apiErr *backend.APIError
			if errors.As(err, &apiErr) && apiErr.IsServerError() {
				res.message = fmt.Sprintf("unhealthy: %v", apiErr)
			}
			results = append(results, res)
			continue
		}

		res.ok = true
		res.message = fmt.Sprintf("%s (version %s)", info.Status, info.Version)

		if ver, err := semver.NewVersion(info.Version); err == nil {
			min := semver.MustParse(minServerVersion)
			if ver.LessThan(min) {
				res.warn = true
				res.message = fmt.Sprintf("version %s is older than supported %s", info.Version, minServerVersion)
			}
		}
		results = append(results, res)
	}
	return results
}

func checkCredentials(cliCtx *CLIContext) checkResult {
	res := checkResult{name: "credentials", ok: true}
	store, err := cliCtx.GetStore()
	if err != nil {
		res.ok = false
		res.message = err.Error()
		return res
	}

	policy := auth.NewPolicy(cliCtx.Config.Auth)
	now := time.Now()
	total, stale := 0, 0
	for _, cred := range store.List() {
		total++
		if policy.IsExpired(cred, now) || policy.ShouldRefresh(cred, now) {
			stale++
		}
	}
	if total == 0 {
		res.warn = true
		res.message = "no stored credentials; run `agentdeck login`"
		return res
	}
	if stale > 0 {
		res.warn = true
		res.message = fmt.Sprintf("%d of %d credential(s) due for refresh", stale, total)
		return res
	}
	res.message = fmt.Sprintf("%d credential(s), all fresh", total)
	return res
}

func checkTunnelProxy(ctx context.Context, cliCtx *CLIContext) checkResult {
	res := checkResult{name: "tunnel proxy"}
	client := tunnel.NewClient(cliCtx.Config.Tunnel.URL, cliCtx.Config.Tunnel.APIKey)

	checkCtx, cancel := context.WithTimeout(ctx, cliCtx.Config.Auth.VerifyTimeout)
	defer cancel()

	if err := client.Health(checkCtx); err != nil {
		res.message = err.Error()
		return res
	}
	res.ok = true
	res.message = cliCtx.Config.Tunnel.URL
	return res
}
