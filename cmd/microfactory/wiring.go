package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/microfactory-run/microfactory/internal/config"
	"github.com/microfactory-run/microfactory/internal/fsys"
	"github.com/microfactory-run/microfactory/internal/llmclient"
	"github.com/microfactory-run/microfactory/internal/logging"
	"github.com/microfactory-run/microfactory/internal/ports"
	"github.com/microfactory-run/microfactory/internal/runner"
	"github.com/microfactory-run/microfactory/internal/secrets"
	"github.com/microfactory-run/microfactory/internal/store"
	"github.com/microfactory-run/microfactory/internal/telemetry"
	tmpl "github.com/microfactory-run/microfactory/internal/template"
	"github.com/microfactory-run/microfactory/internal/validation"
	"github.com/microfactory-run/microfactory/pkg/schema"
)

// systemClock implements ports.Clock with wall-clock time, the only
// concrete Clock adapter the process needs (every other caller in the
// test suite supplies a fake).
type systemClock struct{}

func (systemClock) NowMs() int64 { return time.Now().UnixMilli() }

// app bundles everything every subcommand needs after flag parsing:
// the runner plus the raw store/telemetry handles Close/shutdown needs
// at the end of the command.
type app struct {
	runner   *runner.Runner
	store    *store.LibSQLStore
	shutdown func(context.Context) error
	logger   *slog.Logger
}

// openVault builds an AES-256-GCM vault over the session store when a
// vault key is available (--vault-key, or MICROFACTORY_VAULT_KEY), the
// same memory-only-passphrase convention an `install --vault-key` flag
// would use. Returns nil, nil when no key was supplied: the vault is then
// simply absent rather than an error, since most invocations never touch
// secrets at all.
func openVault(cmd *cobra.Command, st *store.LibSQLStore) (secrets.Vault, error) {
	key, _ := cmd.Flags().GetString("vault-key")
	if key == "" {
		key = os.Getenv("MICROFACTORY_VAULT_KEY")
	}
	if key == "" {
		return nil, nil
	}
	vault, err := secrets.NewAESVault(st, secrets.VaultConfig{
		Passphrase: key,
		Salt:       []byte("microfactory-secrets-vault"),
	})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeVault, "open secrets vault: %v", err).WithCause(err)
	}
	return vault, nil
}

// buildApp resolves the config file, environment, home directory, and
// every port adapter, then constructs a Runner — the single composition
// point every subcommand shares.
func buildApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()

	inspect, _ := cmd.Flags().GetString("inspect")
	if err := validateInspectMode(inspect); err != nil {
		return nil, err
	}

	logger := newLogger(cmd)

	home, err := resolveHome(cmd)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "resolve home directory: %v", err).WithCause(err)
	}
	if err := os.MkdirAll(filepath.Join(home, "logs"), 0o755); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "create home directory: %v", err).WithCause(err)
	}

	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = filepath.Join(home, "config.yaml")
	}

	validator, err := validation.NewDomainSchemaValidator()
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "build domain schema validator: %v", err).WithCause(err)
	}
	domains, err := config.Load(configPath, validator)
	if err != nil {
		return nil, err
	}

	env, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}

	storePath := config.SessionStorePath(home)
	st, err := store.Open(ctx, storePath)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodePersistence, "open session store %q: %v", storePath, err).WithCause(err)
	}

	vault, err := openVault(cmd, st)
	if err != nil {
		st.Close()
		return nil, err
	}

	provider, _ := cmd.Flags().GetString("llm-provider")
	apiKeyFlag, _ := cmd.Flags().GetString("api-key")
	apiKeys := map[string]string{}
	for _, p := range []string{"openai", "anthropic", "gemini", "grok"} {
		flag := ""
		if p == provider {
			flag = apiKeyFlag
		}
		if key, err := env.APIKeyWithVault(ctx, p, flag, vault); err == nil {
			apiKeys[p] = key
		}
	}

	exporter := "stdout"
	if logJSON, _ := cmd.Flags().GetBool("log-json"); logJSON {
		// A --log-json run keeps stdout reserved for NDJSON log lines;
		// tracing still runs, it just doesn't also print to stdout.
		exporter = "none"
	}
	sink, shutdown, err := telemetry.Init(ctx, telemetry.Config{ServiceName: "microfactory", Exporter: exporter})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	repoPath, _ := cmd.Flags().GetString("repo-path")
	maxConcurrent, _ := cmd.Flags().GetInt("max-concurrent-llm")
	adaptiveK, _ := cmd.Flags().GetBool("adaptive-k")
	stepByStep, _ := cmd.Flags().GetBool("step-by-step")
	lowMargin, _ := cmd.Flags().GetInt("human-low-margin-threshold")

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	samples, _ := cmd.Flags().GetInt("samples")
	k, _ := cmd.Flags().GetInt("k")

	opts := runner.DefaultOptions()
	opts.WorkspaceRoot = repoPath
	opts.AdaptiveK = adaptiveK
	opts.StepByStep = stepByStep
	opts.DryRun = dryRun
	opts.Inspect = inspect
	if maxConcurrent > 0 {
		opts.MaxConcurrentLLM = maxConcurrent
	}
	if cmd.Flags().Changed("human-low-margin-threshold") {
		opts.HumanLowMarginThreshold = lowMargin
	}

	var resolver runner.DomainResolver = domains
	if samples > 0 || k > 0 {
		resolver = &overrideResolver{inner: domains, samples: samples, k: k}
	}

	r := runner.New(runner.Deps{
		Domains:       resolver,
		Client:        llmclient.New(),
		Renderer:      tmpl.New(),
		Repository:    st,
		EventAppender: st,
		FSFactory: func(workspaceRoot string) ports.FileSystem {
			return fsys.NewLocalFS(workspaceRoot)
		},
		Verifier:  fsys.NewCommandVerifier(0, ""),
		Clock:     systemClock{},
		Telemetry: sink,
		Logger:    logger,
		Options:   opts,
		APIKeys:   apiKeys,
	})

	return &app{runner: r, store: st, shutdown: shutdown, logger: logger}, nil
}

func (a *app) Close(ctx context.Context) {
	if a.runner != nil {
		a.runner.Shutdown()
	}
	if a.shutdown != nil {
		_ = a.shutdown(ctx)
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// overrideResolver applies a CLI-wide --samples/--k override to every
// agent role of whatever domain the inner resolver returns, leaving the
// domain's own per-role values in place when the corresponding override
// is zero (unset).
type overrideResolver struct {
	inner   runner.DomainResolver
	samples int
	k       int
}

func (o *overrideResolver) Resolve(name string) (*schema.DomainConfig, error) {
	cfg, err := o.inner.Resolve(name)
	if err != nil {
		return nil, err
	}
	overridden := *cfg
	overridden.Agents = make(map[schema.AgentKind]schema.AgentConfig, len(cfg.Agents))
	for kind, agent := range cfg.Agents {
		if o.samples > 0 {
			agent.Samples = o.samples
		}
		if o.k > 0 {
			agent.K = o.k
		}
		overridden.Agents[kind] = agent
	}
	return &overridden, nil
}

// validateInspectMode rejects an --inspect value outside the
// documented enum; "" (the flag's default, meaning disabled) always
// passes.
func validateInspectMode(mode string) error {
	switch mode {
	case "", "ops", "payloads", "messages", "files":
		return nil
	default:
		return schema.NewErrorf(schema.ErrCodeConfig, "unknown --inspect mode %q: want ops, payloads, messages, or files", mode)
	}
}

func resolveHome(cmd *cobra.Command) (string, error) {
	if dir, _ := cmd.Flags().GetString("output-dir"); dir != "" {
		return dir, nil
	}
	return config.Home()
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	logJSON, _ := cmd.Flags().GetBool("log-json")
	pretty, _ := cmd.Flags().GetBool("pretty")
	inspect, _ := cmd.Flags().GetString("inspect")

	level := slog.LevelInfo
	if verbose || inspect != "" {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	hopts := &slog.HandlerOptions{Level: level}
	switch {
	case logJSON && pretty:
		handler = slog.NewJSONHandler(logging.NewIndentingWriter(os.Stdout), hopts)
	case logJSON:
		handler = slog.NewJSONHandler(os.Stdout, hopts)
	case pretty:
		handler = logging.NewPrettyHandler(os.Stderr, hopts)
	default:
		handler = slog.NewTextHandler(os.Stderr, hopts)
	}
	return slog.New(logging.NewCorrelationHandler(handler))
}

// exitCode maps a MicrofactoryError's code onto the CLI's exit-code
// contract: 0 success (including a clean pause, handled by the caller
// before this is ever consulted), 1 user/config error, 2 provider/auth
// error, 3 verification failure without other recovery.
func exitCode(err error) int {
	merr, ok := err.(*schema.MicrofactoryError)
	if !ok {
		return 1
	}
	switch merr.Code {
	case schema.ErrCodeAuth, schema.ErrCodeProvider:
		return 2
	case schema.ErrCodeVerification:
		return 3
	default:
		return 1
	}
}
