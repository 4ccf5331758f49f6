// Package config loads the YAML domain configuration surface
// and resolves API keys and the data-home directory from CLI flags,
// process environment, and a `~/.env` file, mirroring a flag > env > defaults
// layering, with YAML in place of a JSON settings file.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/microfactory-run/microfactory/internal/secrets"
	"github.com/microfactory-run/microfactory/internal/validation"
	"github.com/microfactory-run/microfactory/pkg/schema"
)

// File is the root shape of a config YAML document: a map of domain name
// to its DomainConfig.
type File struct {
	Domains map[string]schema.DomainConfig `yaml:"domains"`
}

// Resolver implements runner.DomainResolver by looking a name up in an
// already-loaded File, validating it against the domain JSON Schema on
// first access and caching the verdict.
type Resolver struct {
	file      File
	validator *validation.DomainSchemaValidator
	validated map[string]bool
}

// Load reads and parses the YAML config file at path. An unreadable file
// or malformed YAML is a Config-class error. Domains are not looked up or
// schema-validated here: Resolve reports an unknown domain name and runs
// schema validation on a domain's first access.
func Load(path string, validator *validation.DomainSchemaValidator) (*Resolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "read config %q: %v", path, err).WithCause(err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "parse config %q: %v", path, err).WithCause(err)
	}

	return &Resolver{file: f, validator: validator, validated: make(map[string]bool)}, nil
}

// Resolve implements runner.DomainResolver (internal/runner.DomainResolver).
func (r *Resolver) Resolve(name string) (*schema.DomainConfig, error) {
	cfg, ok := r.file.Domains[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "unknown domain %q", name)
	}
	cfg.Name = name

	if r.validator != nil && !r.validated[name] {
		if err := r.validator.ValidateDomain(&cfg); err != nil {
			return nil, err
		}
		r.validated[name] = true
	}
	return &cfg, nil
}

// Names returns every domain name the loaded file defines, for the CLI's
// `--domain` flag completion and error messages.
func (r *Resolver) Names() []string {
	names := make([]string, 0, len(r.file.Domains))
	for name := range r.file.Domains {
		names = append(names, name)
	}
	return names
}

// Env resolves API keys from, in order, CLI flags, process environment,
// and a `~/.env` file. The data-home directory is resolved by Home.
type Env struct {
	dotenv map[string]string
}

// apiKeyVars maps each provider name the CLI accepts to its recognized
// environment variable.
var apiKeyVars = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"grok":      "XAI_API_KEY",
}

// LoadEnv reads `~/.env` if present (missing file is not an error; every
// other read/parse failure is a Config-class error) and returns an Env
// ready to resolve API keys against it.
func LoadEnv() (*Env, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return &Env{dotenv: map[string]string{}}, nil
	}
	data, err := os.ReadFile(filepath.Join(home, ".env"))
	if err != nil {
		if os.IsNotExist(err) {
			return &Env{dotenv: map[string]string{}}, nil
		}
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "read ~/.env: %v", err).WithCause(err)
	}
	return &Env{dotenv: parseDotenv(string(data))}, nil
}

func parseDotenv(contents string) map[string]string {
	vars := make(map[string]string)
	for _, line := range strings.Split(contents, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		vars[key] = value
	}
	return vars
}

// APIKey resolves the API key for provider in precedence order: flagValue
// (the CLI's --api-key, empty if unset) → process env → ~/.env. Returns a
// Config-class error naming the missing variable if none of the three
// sources supplied a key.
func (e *Env) APIKey(provider, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	varName, ok := apiKeyVars[provider]
	if !ok {
		return "", schema.NewErrorf(schema.ErrCodeConfig, "unknown llm provider %q", provider)
	}
	if v := os.Getenv(varName); v != "" {
		return v, nil
	}
	if v, ok := e.dotenv[varName]; ok && v != "" {
		return v, nil
	}
	return "", schema.NewErrorf(schema.ErrCodeConfig, "no API key for provider %q: set --api-key, %s, or %s in ~/.env", provider, varName, varName)
}

// VaultKeyFor is the vault key under which an API key for provider is
// stored by the `secrets` command.
func VaultKeyFor(provider string) string {
	return "apikey:" + provider
}

// APIKeyWithVault extends APIKey with a last-resort lookup in an
// encrypted secrets vault, for deployments that ran
// `microfactory secrets set <provider> <key>` once instead of exporting
// an environment variable on every invocation. vault may be nil, in
// which case this behaves exactly like APIKey.
func (e *Env) APIKeyWithVault(ctx context.Context, provider, flagValue string, vault secrets.Vault) (string, error) {
	key, err := e.APIKey(provider, flagValue)
	if err == nil {
		return key, nil
	}
	if vault == nil {
		return "", err
	}
	raw, verr := vault.Resolve(ctx, VaultKeyFor(provider))
	if verr != nil {
		return "", err
	}
	return string(raw), nil
}

// Home resolves the data directory: MICROFACTORY_HOME if set, else
// ~/.microfactory.
func Home() (string, error) {
	if v := os.Getenv("MICROFACTORY_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".microfactory"), nil
}

// SessionStorePath returns "<home>/sessions.sqlite3".
func SessionStorePath(home string) string {
	return filepath.Join(home, "sessions.sqlite3")
}

// LogPath returns "<home>/logs/session-<id>.log".
func LogPath(home, sessionID string) string {
	return filepath.Join(home, "logs", fmt.Sprintf("session-%s.log", sessionID))
}
