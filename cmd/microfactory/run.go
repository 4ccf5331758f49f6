package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/microfactory-run/microfactory/pkg/schema"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a new session from a prompt",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	flags.String("prompt", "", "the task to accomplish (required)")
	flags.String("domain", "", "domain config name (required)")
	flags.Int("samples", 0, "ensemble sample count override for every agent role")
	flags.Int("k", 0, "vote margin k override for every agent role")
	flags.Bool("dry-run", false, "decompose and vote but never apply or verify")
	_ = runCmd.MarkFlagRequired("prompt")
	_ = runCmd.MarkFlagRequired("domain")
}

func runRun(cmd *cobra.Command, args []string) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close(cmd.Context())

	prompt, _ := cmd.Flags().GetString("prompt")
	domain, _ := cmd.Flags().GetString("domain")
	provider, _ := cmd.Flags().GetString("llm-provider")
	model, _ := cmd.Flags().GetString("llm-model")

	sctx, err := app.runner.Start(cmd.Context(), prompt, domain, provider, model)
	if err != nil {
		return err
	}
	return printSessionResult(cmd.Context(), sctx)
}

// printSessionResult prints the session's export JSON, steps sorted by ID.
// A paused session's trigger appears only inside that JSON (under
// "wait_state"); no separate trigger line is printed. A failed session
// yields a Verification-class error after the JSON is written.
func printSessionResult(ctx context.Context, sctx *schema.Context) error {
	exp := sctx.Export()
	sort.Slice(exp.Steps, func(i, j int) bool { return exp.Steps[i].StepID < exp.Steps[j].StepID })

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(exp); err != nil {
		return fmt.Errorf("encode session export: %w", err)
	}

	if sctx.Status == schema.SessionFailed {
		return schema.NewErrorf(schema.ErrCodeVerification, "session %s failed", sctx.SessionID)
	}
	return nil
}
