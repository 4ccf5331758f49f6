package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/microfactory-run/microfactory/internal/config"
	"github.com/microfactory-run/microfactory/internal/secrets"
	"github.com/microfactory-run/microfactory/internal/store"
	"github.com/microfactory-run/microfactory/pkg/schema"
)

// secretsCmd groups the vault's CRUD verbs behind one namespace, mirroring
// how `run`/`status`/`resume` group under the runner rather than each
// living at the root.
var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage encrypted API keys in the local secrets vault",
}

var secretsSetCmd = &cobra.Command{
	Use:   "set <provider> <key>",
	Short: "Store an API key for a provider, encrypted with --vault-key",
	Args:  cobra.ExactArgs(2),
	RunE:  runSecretsSet,
}

var secretsGetCmd = &cobra.Command{
	Use:   "get <provider>",
	Short: "Print the decrypted API key for a provider",
	Args:  cobra.ExactArgs(1),
	RunE:  runSecretsGet,
}

var secretsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers with a stored API key",
	Args:  cobra.NoArgs,
	RunE:  runSecretsList,
}

var secretsDeleteCmd = &cobra.Command{
	Use:   "delete <provider>",
	Short: "Remove a provider's stored API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runSecretsDelete,
}

func init() {
	rootCmd.AddCommand(secretsCmd)
	secretsCmd.AddCommand(secretsSetCmd, secretsGetCmd, secretsListCmd, secretsDeleteCmd)
}

// openVaultStore opens the session store and vault without building the
// full runner — the secrets commands never touch a domain or an LLM
// client, so buildApp's wider wiring would be wasted work.
func openVaultStore(cmd *cobra.Command) (*store.LibSQLStore, secrets.Vault, error) {
	home, err := resolveHome(cmd)
	if err != nil {
		return nil, nil, schema.NewErrorf(schema.ErrCodeConfig, "resolve home directory: %v", err).WithCause(err)
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return nil, nil, schema.NewErrorf(schema.ErrCodeConfig, "create home directory: %v", err).WithCause(err)
	}
	st, err := store.Open(cmd.Context(), config.SessionStorePath(home))
	if err != nil {
		return nil, nil, schema.NewErrorf(schema.ErrCodePersistence, "open session store: %v", err).WithCause(err)
	}
	vault, err := openVault(cmd, st)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	if vault == nil {
		st.Close()
		return nil, nil, schema.NewError(schema.ErrCodeVault, "secrets commands require --vault-key (or MICROFACTORY_VAULT_KEY)")
	}
	return st, vault, nil
}

func runSecretsSet(cmd *cobra.Command, args []string) error {
	st, vault, err := openVaultStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	provider, key := args[0], args[1]
	if err := vault.Store(cmd.Context(), config.VaultKeyFor(provider), []byte(key)); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "stored API key for %s\n", provider)
	return nil
}

func runSecretsGet(cmd *cobra.Command, args []string) error {
	st, vault, err := openVaultStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	value, err := vault.Resolve(cmd.Context(), config.VaultKeyFor(args[0]))
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(value))
	return nil
}

func runSecretsList(cmd *cobra.Command, args []string) error {
	st, vault, err := openVaultStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	keys, err := vault.List(cmd.Context())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(keys)
}

func runSecretsDelete(cmd *cobra.Command, args []string) error {
	st, vault, err := openVaultStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := vault.Delete(cmd.Context(), config.VaultKeyFor(args[0])); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "deleted API key for %s\n", args[0])
	return nil
}
