package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kafgate/kafgate/internal/config"
	"github.com/kafgate/kafgate/internal/registry"
)

var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Inspect and validate channel manifests",
}

var channelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered channel manifests",
	RunE:  runChannelList,
}

var channelValidateCmd = &cobra.Command{
	Use:   "validate <channel_id> <key=value>...",
	Short: "Validate a set of config fields against a channel's manifest",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChannelValidate,
}

func init() {
	channelCmd.AddCommand(channelListCmd)
	channelCmd.AddCommand(channelValidateCmd)
	rootCmd.AddCommand(channelCmd)
}

func loadRegistry() (*registry.Registry, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	reg := registry.New(cfg.Paths.ManifestsDir)
	if err := reg.Load(); err != nil {
		return nil, fmt.Errorf("load manifests: %w", err)
	}
	return reg, nil
}

func runChannelList(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	for _, m := range reg.ListManifests() {
		fmt.Printf("%-16s %-24s scope=%-18s webhooks=%v\n", m.ID, m.Display, m.SessionScope, m.WebhookPaths)
	}
	return nil
}

func runChannelValidate(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}

	id := args[0]
	cfg := map[string]string{}
	for _, kv := range args[1:] {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("malformed field %q, expected key=value", kv)
		}
		cfg[parts[0]] = parts[1]
	}

	valid, err := reg.ValidateConfig(id, cfg)
	if err != nil {
		fmt.Printf("invalid: %v\n", err)
		return nil
	}
	fmt.Printf("valid=%v\n", valid)
	return nil
}
