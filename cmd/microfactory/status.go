package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/microfactory-run/microfactory/internal/ux"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a session's current tree, metrics, and wait state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	flags := statusCmd.Flags()
	flags.String("session-id", "", "session to inspect (omit to list recent sessions)")
	flags.Bool("json", false, "print the full stable session export instead of a human summary")
	flags.Int("limit", 20, "when --session-id is omitted, list up to this many recent sessions")
}

func runStatus(cmd *cobra.Command, args []string) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close(cmd.Context())

	sessionID, _ := cmd.Flags().GetString("session-id")
	asJSON, _ := cmd.Flags().GetBool("json")
	limit, _ := cmd.Flags().GetInt("limit")

	if sessionID == "" {
		summaries, err := app.store.List(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if asJSON {
			return json.NewEncoder(os.Stdout).Encode(summaries)
		}
		for _, s := range summaries {
			fmt.Println(ux.SessionRow(s.ID, s.Status, s.Domain, s.Provider))
		}
		return nil
	}

	sctx, err := app.runner.Status(cmd.Context(), sessionID)
	if err != nil {
		return err
	}
	if !asJSON {
		exp := sctx.Export()
		sort.Slice(exp.Steps, func(i, j int) bool { return exp.Steps[i].StepID < exp.Steps[j].StepID })
		fmt.Println(ux.SessionHeader(exp.SessionID, string(exp.Status), exp.Domain, exp.Provider, exp.Model))
		if exp.WaitState != nil {
			fmt.Println(ux.WaitState(exp.WaitState.StepID, exp.WaitState.Trigger, exp.WaitState.Details))
		}
		for _, step := range exp.Steps {
			fmt.Println(ux.Step(step.StepID, string(step.Status), step.Depth, step.Description))
		}
		return nil
	}

	exp := sctx.Export()
	sort.Slice(exp.Steps, func(i, j int) bool { return exp.Steps[i].StepID < exp.Steps[j].StepID })
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(exp)
}
