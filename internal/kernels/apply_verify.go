package kernels

import (
	"context"
	"fmt"

	"github.com/microfactory-run/microfactory/internal/fsys"
	"github.com/microfactory-run/microfactory/pkg/schema"
)

// ApplyVerify implements ApplyVerifyTask: applies
// winning_output via the domain's configured applier, then runs the
// configured verifier command and stores its output on the step
// (VerifierOutput). A failed verification marks the step
// Failed(verifier_output) without retry — the runner continues with
// sibling steps. A failing verifier that prints nothing is recorded as
// its exit code.
func ApplyVerify(ctx context.Context, d Deps, sctx *schema.Context, stepID string) (NextAction, error) {
	step, ok := sctx.Steps[stepID]
	if !ok {
		return NextAction{}, schema.NewErrorf(schema.ErrCodeConfig, "apply_verify: unknown step %q", stepID).WithSession(sctx.SessionID)
	}

	if d.DryRun {
		step.Status = schema.StepDone
		step.VerifierOutput = "skipped: --dry-run"
		return NextAction{Kind: ActionDone}, nil
	}

	step.Status = schema.StepApplying
	if _, err := fsys.ApplyOverwrite(d.FS, d.Domain.Applier, step.WinningOutput); err != nil {
		step.Status = schema.StepFailed
		step.VerifierOutput = err.Error()
		return NextAction{Kind: ActionFailed, Reason: err.Error()}, nil
	}

	step.Status = schema.StepVerifying
	verifyResult, err := d.Verifier.Run(ctx, d.Domain.Verifier, d.WorkspaceRoot)
	if err != nil {
		step.Status = schema.StepFailed
		step.VerifierOutput = err.Error()
		return NextAction{Kind: ActionFailed, Reason: err.Error()}, nil
	}

	output := verifyResult.Stdout
	if !verifyResult.Passed {
		output = verifyResult.Stderr
		if output == "" {
			output = verifyResult.Stdout
		}
		if output == "" {
			output = fmt.Sprintf("verifier exited with code %d", verifyResult.ExitCode)
		}
	}
	step.VerifierOutput = output

	if !verifyResult.Passed {
		step.Status = schema.StepFailed
		return NextAction{Kind: ActionFailed, Reason: "verification failed: " + output}, nil
	}

	step.Status = schema.StepDone
	return NextAction{Kind: ActionDone}, nil
}
