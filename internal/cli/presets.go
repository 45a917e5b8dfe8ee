package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lowc1012/tiered-rate-limiter/internal/config"
	"github.com/lowc1012/tiered-rate-limiter/pkg/ratelimiter"
)

func newPresetsCmd() *cobra.Command {
	var (
		envFile    string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List the built-in presets and their fail policy",
		Long: `Lists every preset with its windows and fail policy after applying
RATE_LIMIT_FAIL_OPEN and RATE_LIMIT_FAIL_CLOSED. Redis is not contacted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(envFile)
			if err != nil && !errors.Is(err, config.ErrMissingRedisURL) {
				return err
			}

			reg, err := newRegistry(cfg.RateLimiter)
			if err != nil {
				return err
			}

			views, err := describePresets(reg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(views)
			}
			printPresets(out, views)
			return nil
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading the environment")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output presets as JSON")

	return cmd
}

// PresetView is the printable form of a preset.
type PresetView struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Quota       WindowView  `json:"quota"`
	Burst       *WindowView `json:"burst,omitempty"`
	FailOpen    bool        `json:"fail_open"`
}

// WindowView is the printable form of one window.
type WindowView struct {
	Limit     int64  `json:"limit"`
	Window    string `json:"window"`
	KeyPrefix string `json:"key_prefix"`
}

func describePresets(reg *ratelimiter.Registry) ([]PresetView, error) {
	var views []PresetView
	for _, name := range reg.Names() {
		p, err := reg.Get(name)
		if err != nil {
			return nil, err
		}

		v := PresetView{
			Name:        p.Name,
			Description: p.Description,
			Quota:       windowView(p.Quota),
			FailOpen:    p.FailOpen,
		}
		if p.Burst != nil {
			b := windowView(*p.Burst)
			v.Burst = &b
		}
		views = append(views, v)
	}
	return views, nil
}

func windowView(c ratelimiter.LimitConfig) WindowView {
	return WindowView{Limit: c.Limit, Window: c.Window.String(), KeyPrefix: c.KeyPrefix}
}

func printPresets(w io.Writer, views []PresetView) {
	for _, v := range views {
		policy := "fail-closed"
		if v.FailOpen {
			policy = "fail-open"
		}
		burst := "none"
		if v.Burst != nil {
			burst = fmt.Sprintf("%d/%s", v.Burst.Limit, v.Burst.Window)
		}
		fmt.Fprintf(w, "%-30s quota=%d/%s burst=%s %s\n", v.Name, v.Quota.Limit, v.Quota.Window, burst, policy)
		fmt.Fprintf(w, "  %s\n", v.Description)
	}
}
