package main

import (
	"context"

	"github.com/microfactory-run/microfactory/internal/mcpserver"
	"github.com/microfactory-run/microfactory/internal/runner"
	"github.com/microfactory-run/microfactory/pkg/schema"
)

// mcpRunnerShim adapts *runner.Runner's (*schema.Context, error) return
// shape onto mcpserver.SessionRunner's (mcpserver.Result, error) shape —
// the two surfaces serialize the same session differently, so this shim is where that one translation
// lives rather than duplicating it inside the runner itself.
type mcpRunnerShim struct {
	runner *runner.Runner
}

func newMCPRunnerShim(r *runner.Runner) mcpserver.SessionRunner {
	return &mcpRunnerShim{runner: r}
}

func (s *mcpRunnerShim) Start(ctx context.Context, prompt, domain, provider, model string) (mcpserver.Result, error) {
	sctx, err := s.runner.Start(ctx, prompt, domain, provider, model)
	if err != nil {
		return mcpserver.Result{}, err
	}
	return toMCPResult(sctx), nil
}

func (s *mcpRunnerShim) Resume(ctx context.Context, sessionID string) (mcpserver.Result, error) {
	sctx, err := s.runner.Resume(ctx, sessionID)
	if err != nil {
		return mcpserver.Result{}, err
	}
	return toMCPResult(sctx), nil
}

func (s *mcpRunnerShim) Status(ctx context.Context, sessionID string) (mcpserver.Result, error) {
	sctx, err := s.runner.Status(ctx, sessionID)
	if err != nil {
		return mcpserver.Result{}, err
	}
	return toMCPResult(sctx), nil
}

func (s *mcpRunnerShim) RunSubprocess(ctx context.Context, prompt, domain, provider, model string) (mcpserver.Result, error) {
	sctx, err := s.runner.RunSubprocess(ctx, prompt, domain, provider, model)
	if err != nil {
		return mcpserver.Result{}, err
	}
	return toMCPResult(sctx), nil
}

func toMCPResult(sctx *schema.Context) mcpserver.Result {
	exp := sctx.Export()
	var detail any
	if exp.WaitState != nil {
		detail = exp.WaitState
	}
	return mcpserver.Result{
		SessionID: exp.SessionID,
		Status:    string(exp.Status),
		Detail:    detail,
	}
}
