package main

import (
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused session past its human-in-the-loop checkpoint",
	RunE:  runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
	resumeCmd.Flags().String("session-id", "", "session to resume (required)")
	_ = resumeCmd.MarkFlagRequired("session-id")
}

func runResume(cmd *cobra.Command, args []string) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close(cmd.Context())

	sessionID, _ := cmd.Flags().GetString("session-id")

	sctx, err := app.runner.Resume(cmd.Context(), sessionID)
	if err != nil {
		return err
	}
	return printSessionResult(cmd.Context(), sctx)
}
