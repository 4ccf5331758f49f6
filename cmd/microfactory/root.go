package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "microfactory",
	Short: "microfactory decomposes a prompt into a tree of small, redundantly-sampled LLM steps",
	Long: `microfactory mechanically decomposes a task into atomic steps, solves each
with an ensemble of LLM samples, votes on the result, and applies it to a
workspace — pausing for human input when the pipeline can't resolve a
disagreement on its own.`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to the YAML domain config (default <home>/config.yaml)")
	flags.String("output-dir", "", "data directory override (default $MICROFACTORY_HOME or ~/.microfactory)")
	flags.String("llm-provider", "openai", "LLM provider: openai, anthropic, gemini, or grok")
	flags.String("llm-model", "", "LLM model override for every agent role")
	flags.String("api-key", "", "API key for --llm-provider (overrides env and ~/.env)")
	flags.String("repo-path", "", "workspace checkout ApplyVerify writes into and verifies")
	flags.Int("max-concurrent-llm", 0, "bound on in-flight LLM calls (default 8)")
	flags.Bool("adaptive-k", false, "adjust vote margin k by recent decision confidence")
	flags.Bool("step-by-step", false, "pause after every checkpoint boundary for human review")
	flags.Int("human-low-margin-threshold", 0, "vote margin at or below which a step pauses (default 1; 0 disables)")
	flags.StringP("inspect", "", "", "print extra detail while running: ops, payloads, messages, or files")
	flags.BoolP("verbose", "v", false, "debug-level logging")
	flags.Bool("log-json", false, "emit structured logs as NDJSON to stdout")
	flags.Bool("pretty", false, "colorized console logging; with --log-json, indent each JSON record instead")
	flags.Bool("compact", false, "single-line --log-json output (default; mutually exclusive with --pretty)")
	flags.String("vault-key", "", "passphrase for the encrypted secrets vault (memory only, not persisted); also read from MICROFACTORY_VAULT_KEY")
	rootCmd.MarkFlagsMutuallyExclusive("pretty", "compact")
}
