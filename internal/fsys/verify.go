package fsys

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"time"

	"github.com/microfactory-run/microfactory/internal/expressions"
	"github.com/microfactory-run/microfactory/pkg/schema"
)

const defaultVerifyTimeout = 5 * time.Minute

// VerifyResult is the outcome of running a domain's configured verifier
// command.
type VerifyResult struct {
	Passed     bool
	ExitCode   int
	Stdout     string
	Stderr     string
	DurationMs int64
	Detail     any
}

// CommandVerifier runs the shell-like command string named by a
// DomainConfig's "verifier" field and reports pass/fail.
// A verifier is deemed to have passed iff it exits zero. When
// DetailFilter is set, it is a jq expression evaluated over the
// verifier's parsed JSON stdout and its result is stored in
// VerifyResult.Detail. ApplyVerify does not read Detail: a step's
// verifier_output is the verifier's raw stderr or stdout.
type CommandVerifier struct {
	Timeout      time.Duration
	DetailFilter string
	jq           *expressions.GoJQEngine
}

// NewCommandVerifier returns a verifier with the given timeout (or a
// default if zero) and an optional jq detail filter.
func NewCommandVerifier(timeout time.Duration, detailFilter string) *CommandVerifier {
	if timeout <= 0 {
		timeout = defaultVerifyTimeout
	}
	return &CommandVerifier{Timeout: timeout, DetailFilter: detailFilter, jq: expressions.NewGoJQEngine()}
}

// Run executes command in cwd and reports whether it succeeded.
func (v *CommandVerifier) Run(ctx context.Context, command, cwd string) (VerifyResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, v.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "/bin/sh", "-c", command)
	if cwd != "" {
		cmd.Dir = cwd
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	result := VerifyResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: time.Since(start).Milliseconds(),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return result, schema.NewErrorf(schema.ErrCodeVerification, "verifier command failed to run: %v", runErr).WithCause(runErr)
		}
	}
	result.Passed = result.ExitCode == 0

	if v.DetailFilter != "" && stdout.Len() > 0 && json.Valid(stdout.Bytes()) {
		var parsed map[string]any
		if err := json.Unmarshal(stdout.Bytes(), &parsed); err == nil {
			if detail, err := v.jq.Evaluate(ctx, v.DetailFilter, parsed); err == nil {
				result.Detail = detail
			}
		}
	}

	return result, nil
}
