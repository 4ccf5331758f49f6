package kernels

import (
	"context"

	"github.com/microfactory-run/microfactory/internal/engine"
	"github.com/microfactory-run/microfactory/internal/fsys"
	"github.com/microfactory-run/microfactory/internal/ports"
	"github.com/microfactory-run/microfactory/internal/sampler"
	"github.com/microfactory-run/microfactory/pkg/schema"
)

type stubRenderer struct{}

func (stubRenderer) Render(templateName string, data map[string]any) (string, error) {
	return templateName, nil
}

type scriptedClient struct {
	responses []string
	i         int
}

func (c *scriptedClient) Complete(ctx context.Context, opts ports.LlmOptions, prompt string) (string, error) {
	if c.i >= len(c.responses) {
		return c.responses[len(c.responses)-1], nil
	}
	r := c.responses[c.i]
	c.i++
	return r, nil
}

type noFlag struct{}

func (noFlag) Evaluate(candidate string) (bool, string) { return false, "" }

func testDeps(agents map[schema.AgentKind]schema.AgentConfig, responses []string, root string) Deps {
	client := &scriptedClient{responses: responses}
	s := sampler.New(client, engine.NewWorkerPool(4))
	return Deps{
		Domain: &schema.DomainConfig{
			Name:     "test",
			Agents:   agents,
			Verifier: "exit 0",
			Applier:  schema.ApplierOverwriteFile,
		},
		Renderer:      stubRenderer{},
		Sampler:       s,
		Flaggers:      map[schema.AgentKind]ports.RedFlagger{},
		FS:            fsys.NewLocalFS(root),
		Verifier:      fsys.NewCommandVerifier(0, ""),
		WorkspaceRoot: root,
	}
}
