package runner

import (
	"context"
	"sync"

	"github.com/microfactory-run/microfactory/internal/fsys"
	"github.com/microfactory-run/microfactory/internal/ports"
	"github.com/microfactory-run/microfactory/internal/store"
	"github.com/microfactory-run/microfactory/pkg/schema"
)

type stubRenderer struct{}

func (stubRenderer) Render(name string, data map[string]any) (string, error) { return name, nil }

// scriptedClient replays a fixed script of responses in call order,
// repeating the last one once exhausted (mirrors internal/kernels'
// testDeps fixture).
type scriptedClient struct {
	mu        sync.Mutex
	responses []string
	i         int
}

func (c *scriptedClient) Complete(ctx context.Context, opts ports.LlmOptions, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.responses) == 0 {
		return "", nil
	}
	if c.i >= len(c.responses) {
		return c.responses[len(c.responses)-1], nil
	}
	r := c.responses[c.i]
	c.i++
	return r, nil
}

type fakeDomains struct {
	domains map[string]*schema.DomainConfig
}

func (f *fakeDomains) Resolve(name string) (*schema.DomainConfig, error) {
	cfg, ok := f.domains[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "unknown domain %q", name)
	}
	return cfg, nil
}

// fakeRepo is an in-memory ports.SessionRepository. failSaves, when > 0,
// makes that many subsequent Save calls fail before succeeding again,
// letting tests exercise checkpoint's retry-once policy.
type fakeRepo struct {
	mu        sync.Mutex
	snapshots map[string][]byte
	summaries map[string]ports.SessionSummary
	failSaves int
	saveCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{snapshots: map[string][]byte{}, summaries: map[string]ports.SessionSummary{}}
}

func (r *fakeRepo) Save(ctx context.Context, id string, snapshot []byte, summary ports.SessionSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveCalls++
	if r.failSaves > 0 {
		r.failSaves--
		return schema.NewErrorf(schema.ErrCodePersistence, "simulated write failure")
	}
	r.snapshots[id] = append([]byte(nil), snapshot...)
	r.summaries[id] = summary
	return nil
}

func (r *fakeRepo) Load(ctx context.Context, id string) ([]byte, ports.SessionSummary, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	blob, ok := r.snapshots[id]
	return blob, r.summaries[id], ok, nil
}

func (r *fakeRepo) List(ctx context.Context, limit int) ([]ports.SessionSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ports.SessionSummary, 0, len(r.summaries))
	for _, s := range r.summaries {
		out = append(out, s)
	}
	return out, nil
}

func (r *fakeRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.snapshots, id)
	delete(r.summaries, id)
	return nil
}

type fakeAppender struct {
	mu     sync.Mutex
	events []*store.Event
}

func (a *fakeAppender) AppendEvent(ctx context.Context, event *store.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *fakeAppender) types() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.events))
	for i, e := range a.events {
		out[i] = e.Type
	}
	return out
}

type fakeClock struct{ ms int64 }

func (c *fakeClock) NowMs() int64 { c.ms++; return c.ms }

type fakeTelemetry struct {
	mu    sync.Mutex
	names []string
}

func (t *fakeTelemetry) Record(ctx context.Context, name string, attrs map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.names = append(t.names, name)
}

// testDomain builds a minimal domain whose agents all render via
// stubRenderer and never red-flag anything, for tests that only need
// the runner's own bookkeeping to exercise correctly.
func testDomain(granularity schema.StepGranularity) *schema.DomainConfig {
	return &schema.DomainConfig{
		Name: "test",
		Agents: map[schema.AgentKind]schema.AgentConfig{
			schema.AgentDecomposition:            {PromptTemplate: "decompose", Samples: 1},
			schema.AgentDecompositionDiscriminator: {K: 1},
			schema.AgentSolver:                   {PromptTemplate: "solve", Samples: 1},
			schema.AgentSolutionDiscriminator:    {K: 1},
		},
		Granularity: granularity,
		Verifier:    "exit 0",
		Applier:     schema.ApplierOverwriteFile,
	}
}

func newTestRunner(domain *schema.DomainConfig, client ports.LlmClient, repo *fakeRepo, appender *fakeAppender, opts Options) *Runner {
	return New(Deps{
		Domains:       &fakeDomains{domains: map[string]*schema.DomainConfig{"test": domain}},
		Client:        client,
		Renderer:      stubRenderer{},
		Repository:    repo,
		EventAppender: appender,
		FSFactory:     func(root string) ports.FileSystem { return fsys.NewLocalFS(root) },
		Verifier:      fsys.NewCommandVerifier(0, ""),
		Clock:         &fakeClock{},
		Telemetry:     &fakeTelemetry{},
		Options:       opts,
	})
}
