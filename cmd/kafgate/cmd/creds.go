package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kafgate/kafgate/internal/config"
	"github.com/kafgate/kafgate/internal/secrets"
	"github.com/kafgate/kafgate/internal/store"
)

var credsCmd = &cobra.Command{
	Use:   "creds",
	Short: "Manage per-channel credentials in the encrypted local vault",
}

var credsSetCmd = &cobra.Command{
	Use:   "set <channel_id> <field=value>...",
	Short: "Encrypt and store one or more secret fields for a channel",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runCredsSet,
}

var credsListCmd = &cobra.Command{
	Use:   "list <channel_id>",
	Short: "List which of a channel's secret fields have stored values",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredsList,
}

var credsClearCmd = &cobra.Command{
	Use:   "clear <channel_id>",
	Short: "Remove every stored credential for a channel",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredsClear,
}

func init() {
	credsCmd.AddCommand(credsSetCmd, credsListCmd, credsClearCmd)
	rootCmd.AddCommand(credsCmd)
}

func openVault() (*store.Store, *secrets.Vault, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.EnsureDir(cfg.Paths.DataDir); err != nil {
		return nil, nil, fmt.Errorf("ensure data dir: %w", err)
	}
	st, err := store.Open(filepath.Join(cfg.Paths.DataDir, "kafgate.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return st, secrets.NewVault(st), nil
}

// runCredsSet validates every field=value pair against the channel's
// manifest before sealing anything — a field not declared Secret by the
// manifest is rejected rather than silently accepted into the vault.
func runCredsSet(cmd *cobra.Command, args []string) error {
	channelID := args[0]
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	manifest, ok := reg.GetManifest(channelID)
	if !ok {
		return fmt.Errorf("unknown channel %q", channelID)
	}
	secretFields := map[string]bool{}
	for _, f := range manifest.RequiredConfigFields {
		if f.Secret {
			secretFields[f.Name] = true
		}
	}

	updates := map[string]string{}
	for _, kv := range args[1:] {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("malformed field %q, expected field=value", kv)
		}
		if !secretFields[parts[0]] {
			return fmt.Errorf("%q is not a declared secret field for channel %q", parts[0], channelID)
		}
		updates[parts[0]] = parts[1]
	}

	st, vault, err := openVault()
	if err != nil {
		return err
	}
	defer st.Close()

	creds, err := vault.LoadCredentials(channelID)
	if err != nil {
		return fmt.Errorf("load existing credentials: %w", err)
	}
	for k, v := range updates {
		creds[k] = v
	}
	if err := vault.SaveCredentials(channelID, creds); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	fmt.Printf("Stored %d field(s) for %s in the encrypted vault.\n", len(updates), channelID)
	return nil
}

func runCredsList(cmd *cobra.Command, args []string) error {
	channelID := args[0]
	st, vault, err := openVault()
	if err != nil {
		return err
	}
	defer st.Close()

	creds, err := vault.LoadCredentials(channelID)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if len(creds) == 0 {
		fmt.Printf("No credentials stored for %s.\n", channelID)
		return nil
	}
	for field := range creds {
		fmt.Printf("  %s: stored\n", field)
	}
	return nil
}

func runCredsClear(cmd *cobra.Command, args []string) error {
	channelID := args[0]
	st, vault, err := openVault()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := vault.SaveCredentials(channelID, map[string]string{}); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	fmt.Printf("Cleared stored credentials for %s.\n", channelID)
	return nil
}
