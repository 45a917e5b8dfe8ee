package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/lowc1012/tiered-rate-limiter/internal/log"
	"github.com/lowc1012/tiered-rate-limiter/pkg/ratelimiter"
	"github.com/lowc1012/tiered-rate-limiter/pkg/utils"
)

func newCheckCmd() *cobra.Command {
	var (
		preset     string
		identifier string
		requests   int
		envFile    string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Send admission checks for one client against the shared store",
		Long: `Runs admission checks against the configured Redis exactly as the server
would. Every allowed check is recorded, so it consumes the client's budget.`,
		Example: `  ratelimiter check --preset expensive-operation --id 203.0.113.7
  ratelimiter check --preset quota-limited-operation --id 203.0.113.7 --requests 6 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if requests < 1 {
				return fmt.Errorf("--requests must be at least 1, got %d", requests)
			}

			cfg, err := loadConfig(envFile)
			if err != nil {
				return err
			}
			logger := log.Init(cfg.LogLevel)
			defer func() { _ = logger.Sync() }()

			manager, client, err := newManager(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			result, err := runCheck(cmd.Context(), manager, identifier, preset, requests)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			printCheckResult(out, &result)
			return nil
		},
	}

	cmd.Flags().StringVar(&preset, "preset", ratelimiter.PresetLightweight, "preset to check against")
	cmd.Flags().StringVar(&identifier, "id", utils.AnonymousIdentifier, "client identifier")
	cmd.Flags().IntVar(&requests, "requests", 1, "number of checks to send")
	cmd.Flags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading the environment")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output results as JSON")

	return cmd
}

// CheckResult captures one run of the check command.
type CheckResult struct {
	Preset     string        `json:"preset"`
	Identifier string        `json:"identifier"`
	Checks     []CheckRecord `json:"checks"`
	Allowed    int           `json:"allowed"`
	Denied     int           `json:"denied"`
}

// CheckRecord is a single admission outcome.
type CheckRecord struct {
	Allowed    bool   `json:"allowed"`
	Status     int    `json:"status,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Remaining  *int64 `json:"remaining,omitempty"`
	Limit      int64  `json:"limit"`
	ResetAt    string `json:"reset_at,omitempty"`
	RetryAfter string `json:"retry_after,omitempty"`
}

func runCheck(ctx context.Context, m *ratelimiter.Manager, identifier, preset string, requests int) (CheckResult, error) {
	result := CheckResult{Preset: preset, Identifier: identifier}

	for i := 0; i < requests; i++ {
		adm, err := m.CheckRateLimit(ctx, identifier, preset)
		if err != nil {
			return result, err
		}

		rec := CheckRecord{
			Allowed:   adm.Allowed,
			Reason:    string(adm.Decision.Reason),
			Remaining: adm.Remaining,
			Limit:     adm.Decision.Limit,
		}
		if !adm.Decision.ResetAt.IsZero() {
			rec.ResetAt = adm.Decision.ResetAt.UTC().Format(time.RFC3339)
		}
		if adm.Allowed {
			result.Allowed++
		} else {
			result.Denied++
			rec.Status = adm.Denied.Status
			rec.RetryAfter = adm.Denied.Body.RetryAfter
		}
		result.Checks = append(result.Checks, rec)
	}

	return result, nil
}

func printCheckResult(w io.Writer, r *CheckResult) {
	fmt.Fprintf(w, "preset=%s id=%s\n", r.Preset, r.Identifier)
	for i, c := range r.Checks {
		if c.Allowed {
			remaining := "n/a"
			if c.Remaining != nil {
				remaining = fmt.Sprintf("%d/%d", *c.Remaining, c.Limit)
			}
			fmt.Fprintf(w, "  #%03d [ALLOW] remaining=%s\n", i+1, remaining)
			continue
		}
		fmt.Fprintf(w, "  #%03d [DENY ] status=%d reason=%s retry_after=%q\n", i+1, c.Status, c.Reason, c.RetryAfter)
	}
	fmt.Fprintf(w, "%d allowed, %d denied\n", r.Allowed, r.Denied)
}
