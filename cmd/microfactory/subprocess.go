package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/microfactory-run/microfactory/internal/voting"
	"github.com/microfactory-run/microfactory/pkg/schema"
)

// subprocessResult is the JSON shape `subprocess` prints:
// `{winner, margin, tally}`.
type subprocessResult struct {
	Winner string         `json:"winner"`
	Margin int            `json:"margin"`
	Tally  map[string]int `json:"tally"`
}

var subprocessCmd = &cobra.Command{
	Use:   "subprocess",
	Short: "Run one step to completion synchronously and print its winning output",
	RunE:  runSubprocess,
}

func init() {
	rootCmd.AddCommand(subprocessCmd)

	flags := subprocessCmd.Flags()
	flags.String("step", "", "step description to solve (required)")
	flags.String("context-json", "{}", "JSON object describing the step's ambient context")
	flags.Int("samples", 0, "ensemble sample count override")
	flags.String("domain", "", "domain config name (required)")
	_ = subprocessCmd.MarkFlagRequired("step")
	_ = subprocessCmd.MarkFlagRequired("domain")
}

func runSubprocess(cmd *cobra.Command, args []string) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close(cmd.Context())

	step, _ := cmd.Flags().GetString("step")
	domain, _ := cmd.Flags().GetString("domain")
	provider, _ := cmd.Flags().GetString("llm-provider")
	model, _ := cmd.Flags().GetString("llm-model")
	contextJSON, _ := cmd.Flags().GetString("context-json")

	var ambient map[string]any
	if err := json.Unmarshal([]byte(contextJSON), &ambient); err != nil {
		return fmt.Errorf("parse --context-json: %w", err)
	}
	prompt := step
	if len(ambient) > 0 {
		prompt = fmt.Sprintf("%s\n\ncontext: %s", step, contextJSON)
	}

	sctx, err := app.runner.RunSubprocess(cmd.Context(), prompt, domain, provider, model)
	if err != nil {
		return err
	}

	result := subprocessResult{Tally: map[string]int{}}
	if root := sctx.Steps["root"]; root != nil {
		annotated := make([]schema.AnnotatedCandidate, len(root.Candidates))
		for i, cand := range root.Candidates {
			annotated[i] = schema.AnnotatedCandidate{Text: cand.Text, Accepted: cand.Accepted, Reason: cand.Reason}
		}
		vote := voting.Reduce(annotated, 1)
		if vote.Winner != nil {
			result.Winner = *vote.Winner
		}
		result.Margin = vote.Margin
		result.Tally = vote.Tally
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
