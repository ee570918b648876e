package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kafgate/kafgate/internal/config"
	"github.com/kafgate/kafgate/internal/registry"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize configuration and scaffold the manifest directory",
	Run:   runOnboard,
}

var onboardForce bool

func init() {
	onboardCmd.Flags().BoolVarP(&onboardForce, "force", "f", false, "Overwrite existing config and manifest files")
	rootCmd.AddCommand(onboardCmd)
}

func runOnboard(cmd *cobra.Command, args []string) {
	printHeader("kafgate onboard")

	cfgPath, _ := config.ConfigPath()
	if _, err := os.Stat(cfgPath); err == nil && !onboardForce {
		fmt.Printf("Config already exists at: %s\n", cfgPath)
		fmt.Println("Use --force (-f) to overwrite.")
	} else {
		cfg := config.DefaultConfig()
		if err := config.Save(cfg); err != nil {
			fmt.Printf("Error saving config: %v\n", err)
		} else {
			fmt.Printf("Config created at: %s\n", cfgPath)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config warning: %v (using defaults)\n", err)
	}

	if err := config.EnsureDir(cfg.Paths.DataDir); err != nil {
		fmt.Printf("Error creating data dir: %v\n", err)
	}
	if err := config.EnsureDir(cfg.Paths.ManifestsDir); err != nil {
		fmt.Printf("Error creating manifests dir: %v\n", err)
		return
	}

	fmt.Printf("\nManifests: %s\n", cfg.Paths.ManifestsDir)
	for _, m := range defaultManifests() {
		path := filepath.Join(cfg.Paths.ManifestsDir, m.ID+"_manifest.json")
		if _, err := os.Stat(path); err == nil && !onboardForce {
			fmt.Printf("  ~ %s (exists, skipped)\n", m.ID)
			continue
		}
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			fmt.Printf("  ! %s: %v\n", m.ID, err)
			continue
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			fmt.Printf("  ! %s: %v\n", m.ID, err)
			continue
		}
		fmt.Printf("  + %s\n", m.ID)
	}

	fmt.Println("\nNext steps:")
	fmt.Println("1. Edit config.json to add your channel credentials.")
	fmt.Println("2. Adjust securityDefaults in the generated manifests if needed.")
	fmt.Println("3. Run 'kafgate serve' to start the gateway.")
}

// defaultManifests returns the out-of-the-box manifest for every channel
// kind this gateway ships an adapter for.
func defaultManifests() []registry.Manifest {
	return []registry.Manifest{
		{
			ID:           "whatsapp_twilio",
			Display:      "WhatsApp (Twilio)",
			SessionScope: registry.ScopeUser,
			Capabilities: []string{"text", "image", "audio", "location"},
			WebhookPaths: []string{"/webhook/whatsapp_twilio"},
			RequiredConfigFields: []registry.ConfigField{
				{Name: "accountSid"},
				{Name: "authToken", Secret: true},
				{Name: "fromNumber"},
				{Name: "webhookSecret", Secret: true},
			},
			SecurityDefaults: registry.SecurityDefaults{
				Mode:               "chat_only",
				RateLimitPerMinute: 20,
				RetentionDays:      30,
				RequireSignature:   true,
			},
		},
		{
			ID:           "telegram",
			Display:      "Telegram",
			SessionScope: registry.ScopeUser,
			Capabilities: []string{"text", "image", "file"},
			WebhookPaths: []string{"/webhook/telegram"},
			RequiredConfigFields: []registry.ConfigField{
				{Name: "botToken", Secret: true},
				{Name: "secretToken", Secret: true},
			},
			SecurityDefaults: registry.SecurityDefaults{
				Mode:               "chat_only",
				RateLimitPerMinute: 30,
				RetentionDays:      30,
				RequireSignature:   true,
			},
		},
		{
			ID:           "slack",
			Display:      "Slack",
			SessionScope: registry.ScopeUserConversation,
			Capabilities: []string{"text", "file"},
			WebhookPaths: []string{"/webhook/slack"},
			RequiredConfigFields: []registry.ConfigField{
				{Name: "botToken", Secret: true},
				{Name: "signingSecret", Secret: true},
			},
			SecurityDefaults: registry.SecurityDefaults{
				Mode:               "chat_exec_restricted",
				AllowExecute:       false,
				AllowedCommands:    []string{"/session", "/help"},
				RateLimitPerMinute: 30,
				RetentionDays:      60,
				RequireSignature:   true,
			},
		},
		{
			ID:           "discord",
			Display:      "Discord",
			SessionScope: registry.ScopeUserConversation,
			Capabilities: []string{"text"},
			WebhookPaths: []string{"/webhook/discord/interactions"},
			RequiredConfigFields: []registry.ConfigField{
				{Name: "botToken", Secret: true},
				{Name: "applicationId"},
				{Name: "publicKey"},
			},
			SecurityDefaults: registry.SecurityDefaults{
				Mode:               "chat_only",
				RateLimitPerMinute: 30,
				RetentionDays:      30,
				RequireSignature:   true,
			},
		},
		{
			ID:           "sms_twilio",
			Display:      "SMS (Twilio)",
			SessionScope: registry.ScopeUser,
			Capabilities: []string{"text"},
			WebhookPaths: []string{"/webhook/sms/twilio/{pathToken}"},
			RequiredConfigFields: []registry.ConfigField{
				{Name: "accountSid"},
				{Name: "authToken", Secret: true},
				{Name: "fromNumber"},
				{Name: "pathToken", Secret: true},
			},
			SecurityDefaults: registry.SecurityDefaults{
				Mode:               "chat_only",
				RateLimitPerMinute: 10,
				RetentionDays:      30,
				RequireSignature:   true,
			},
		},
		{
			ID:           "email",
			Display:      "Email",
			SessionScope: registry.ScopeUserConversation,
			Capabilities: []string{"text", "file"},
			RequiredConfigFields: []registry.ConfigField{
				{Name: "provider", Options: []string{"imap", "gmail_api"}},
				{Name: "username"},
			},
			SecurityDefaults: registry.SecurityDefaults{
				Mode:               "chat_only",
				RateLimitPerMinute: 15,
				RetentionDays:      90,
				RequireSignature:   false,
			},
		},
	}
}
