// Package e2e exercises the flow runner black-box, through the same
// Runner/Deps surface cmd/microfactory wires up, against a real
// SQLite-backed session store and a real workspace directory. Only
// exported types from internal/runner, internal/ports, internal/store,
// internal/fsys, internal/voting, and pkg/schema are touched; no package
// under test reaches into its
// own internals here the way its _test.go files do.
package e2e

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/microfactory-run/microfactory/internal/fsys"
	"github.com/microfactory-run/microfactory/internal/ports"
	"github.com/microfactory-run/microfactory/internal/runner"
	"github.com/microfactory-run/microfactory/internal/store"
	"github.com/microfactory-run/microfactory/pkg/schema"
)

// stubRenderer renders every template as its own name, the same
// no-op PromptRenderer the runner package's own tests use — no
// scenario here depends on the rendered prompt text, only on the
// scripted completion that answers it.
type stubRenderer struct{}

func (stubRenderer) Render(name string, data map[string]any) (string, error) { return name, nil }

// scriptedClient replays a fixed script of completions in call order,
// repeating the last one once exhausted. A sampler submitting through a
// size-1 WorkerPool (every scenario sets MaxConcurrentLLM: 1) calls Complete strictly
// sequentially, so the script order is also the submission order.
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

// counterClock is a deterministic ports.Clock: every call advances by
// one millisecond, enough for the runner's duration bookkeeping without
// pulling in wall-clock nondeterminism.
type counterClock struct {
	mu sync.Mutex
	ms int64
}

func (c *counterClock) NowMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms++
	return c.ms
}

// singleDomain resolves every name to the one domain it was built with —
// a scenario needs only ever run one domain at a time.
type singleDomain struct {
	cfg *schema.DomainConfig
}

func (d singleDomain) Resolve(name string) (*schema.DomainConfig, error) {
	return d.cfg, nil
}

// harness wires a Runner against a real on-disk session store and a real
// temp workspace, mirroring the production composition in
// cmd/microfactory/wiring.go's buildApp closely enough that a scenario
// run here exercises the same path a CLI invocation would.
type harness struct {
	t             *testing.T
	store         *store.LibSQLStore
	workspaceRoot string
	client        *scriptedClient
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "e2e.db")
	st, err := store.Open(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	workspaceRoot := filepath.Join(dir, "workspace")
	require.NoError(t, os.MkdirAll(workspaceRoot, 0o755))

	return &harness{t: t, store: st, workspaceRoot: workspaceRoot, client: &scriptedClient{}}
}

// buildRunner constructs a Runner over the harness's store and workspace,
// scripted with responses and configured with domain/opts. Scenarios that
// need a deterministic call order set opts.MaxConcurrentLLM to 1.
func (h *harness) buildRunner(domain *schema.DomainConfig, responses []string, opts runner.Options) *runner.Runner {
	h.client = &scriptedClient{responses: responses}
	return runner.New(runner.Deps{
		Domains:    singleDomain{cfg: domain},
		Client:     h.client,
		Renderer:   stubRenderer{},
		Repository: h.store,
		EventAppender: h.store,
		FSFactory: func(root string) ports.FileSystem {
			return fsys.NewLocalFS(root)
		},
		Verifier: fsys.NewCommandVerifier(0, ""),
		Clock:    &counterClock{},
		Options:  opts,
	})
}

// reopenRunner simulates a second process resuming a session: a fresh
// Runner built over the same backing store, with its own scripted client
// (never consulted by a resume that only re-dispatches a vote kernel over
// already-sampled candidates).
func (h *harness) reopenRunner(domain *schema.DomainConfig, responses []string, opts runner.Options) *runner.Runner {
	return h.buildRunner(domain, responses, opts)
}
