package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/okian/intervue/internal/adapters/http/client"
	"github.com/okian/intervue/internal/config"
	"github.com/okian/intervue/internal/simulate"
	"github.com/okian/intervue/pkg/logger"
)

type simulateFlags struct {
	server string
	token  string
	script string
	relay  bool
	report bool
}

func newSimulateCmd(f *rootFlags) *cobra.Command {
	sf := &simulateFlags{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scripted candidate through one attempt against a server",
		Example: `  intervue simulate --token inv-123
  intervue simulate --server http://localhost:9080 --token inv-123 --script candidate.yaml --relay`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := setup(ctx, f)
			if err != nil {
				return err
			}
			if sf.server != "" {
				cfg.Session.ServerURL = sf.server
			}
			if sf.token != "" {
				cfg.Session.Token = sf.token
			}
			script := simulate.DefaultScript()
			if sf.script != "" {
				if script, err = simulate.LoadScript(sf.script); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("relay") {
				script.Relay = sf.relay
			}
			if cmd.Flags().Changed("report") {
				script.Report = sf.report
			}
			return runSimulation(ctx, cfg.Session, script, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&sf.server, "server", "", "server base URL (overrides session.server_url)")
	cmd.Flags().StringVarP(&sf.token, "token", "t", "", "invitation token (overrides session.token)")
	cmd.Flags().StringVarP(&sf.script, "script", "s", "", "YAML candidate script")
	cmd.Flags().BoolVar(&sf.relay, "relay", false, "speak answers through the transcription relay")
	cmd.Flags().BoolVar(&sf.report, "report", true, "generate the report after the attempt")
	return cmd
}

type simulationSummary struct {
	AttemptID     string  `json:"attempt_id"`
	AttemptNumber int     `json:"attempt_number"`
	Reason        string  `json:"reason"`
	Turns         int     `json:"turns"`
	Completed     bool    `json:"completed"`
	Proctor       string  `json:"proctor_status"`
	Pending       int     `json:"pending_uploads"`
	ElapsedSec    float64 `json:"elapsed_seconds"`
	Report        any     `json:"report,omitempty"`
}

func runSimulation(ctx context.Context, cfg config.SessionConfig, script simulate.Script, out io.Writer) error { //nolint:gocritic // hugeParam
	cl, err := client.New(cfg.ServerURL, cfg.Token,
		client.WithTimeout(cfg.HTTPTimeout),
		client.WithLogger(logger.Named("client")),
	)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	res, err := simulate.Run(ctx, cl, cfg, script)
	if err != nil {
		return err
	}

	sum := simulationSummary{
		AttemptID:     res.Outcome.AttemptID,
		AttemptNumber: res.Outcome.AttemptNumber,
		Reason:        res.Outcome.Reason,
		Turns:         len(res.Outcome.Turns),
		Completed:     res.Outcome.Completed,
		Proctor:       string(res.Outcome.ProctorStatus),
		Pending:       res.Outcome.PendingUploads,
		ElapsedSec:    res.Elapsed.Seconds(),
	}
	if res.Report != nil {
		sum.Report = res.Report
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}
