// Package config provides configuration types and loading for kafgate.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Paths, Channels, Gateway, Audit.
type Config struct {
	Paths    PathsConfig    `json:"paths"`
	Channels ChannelsConfig `json:"channels"`
	Gateway  GatewayConfig  `json:"gateway"`
	Audit    AuditConfig    `json:"audit"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	DataDir      string `json:"dataDir" envconfig:"DATA_DIR"`
	ManifestsDir string `json:"manifestsDir" envconfig:"MANIFESTS_DIR"`
}

// ---------------------------------------------------------------------------
// Channels – messaging integrations
// ---------------------------------------------------------------------------

// ChannelsConfig contains all channel configurations.
type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Telegram TelegramConfig `json:"telegram"`
	Slack    SlackConfig    `json:"slack"`
	Discord  DiscordConfig  `json:"discord"`
	Email    EmailConfig    `json:"email"`
	SMS      SMSConfig      `json:"sms"`
}

// WhatsAppConfig configures the Twilio-backed WhatsApp channel.
type WhatsAppConfig struct {
	Enabled       bool   `json:"enabled" envconfig:"WHATSAPP_ENABLED"`
	AccountSID    string `json:"accountSid" envconfig:"WHATSAPP_ACCOUNT_SID"`
	AuthToken     string `json:"authToken" envconfig:"WHATSAPP_AUTH_TOKEN"`
	FromNumber    string `json:"fromNumber" envconfig:"WHATSAPP_FROM_NUMBER"`
	WebhookSecret string `json:"webhookSecret" envconfig:"WHATSAPP_WEBHOOK_SECRET"`
}

// TelegramConfig configures the Telegram Bot API channel.
type TelegramConfig struct {
	Enabled     bool   `json:"enabled" envconfig:"TELEGRAM_ENABLED"`
	BotToken    string `json:"botToken" envconfig:"TELEGRAM_BOT_TOKEN"`
	SecretToken string `json:"secretToken" envconfig:"TELEGRAM_SECRET_TOKEN"`
}

// SlackConfig configures the Slack Events API channel. When BridgeEnabled
// is set, inbound delivery is handled by the standalone channelbridge
// process (Socket Mode) instead of this gateway's own HTTP webhook, and
// outbound replies are relayed through BridgeURL.
type SlackConfig struct {
	Enabled       bool   `json:"enabled" envconfig:"SLACK_ENABLED"`
	BotToken      string `json:"botToken" envconfig:"SLACK_BOT_TOKEN"`
	SigningSecret string `json:"signingSecret" envconfig:"SLACK_SIGNING_SECRET"`
	BridgeEnabled bool   `json:"bridgeEnabled" envconfig:"SLACK_BRIDGE_ENABLED"`
	BridgeURL     string `json:"bridgeUrl" envconfig:"SLACK_BRIDGE_URL"`
}

// DiscordConfig configures the Discord Interactions channel.
type DiscordConfig struct {
	Enabled       bool   `json:"enabled" envconfig:"DISCORD_ENABLED"`
	BotToken      string `json:"botToken" envconfig:"DISCORD_BOT_TOKEN"`
	ApplicationID string `json:"applicationId" envconfig:"DISCORD_APPLICATION_ID"`
	PublicKey     string `json:"publicKey" envconfig:"DISCORD_PUBLIC_KEY"`
}

// EmailConfig configures the email channel (IMAP polling or Gmail API).
type EmailConfig struct {
	Enabled      bool          `json:"enabled" envconfig:"EMAIL_ENABLED"`
	Provider     string        `json:"provider" envconfig:"EMAIL_PROVIDER"` // "imap" or "gmail_api"
	IMAPHost     string        `json:"imapHost" envconfig:"EMAIL_IMAP_HOST"`
	IMAPPort     int           `json:"imapPort" envconfig:"EMAIL_IMAP_PORT"`
	Username     string        `json:"username" envconfig:"EMAIL_USERNAME"`
	Password     string        `json:"password" envconfig:"EMAIL_PASSWORD"`
	PollInterval time.Duration `json:"pollInterval" envconfig:"EMAIL_POLL_INTERVAL"`
	GmailClientID     string `json:"gmailClientId,omitempty" envconfig:"EMAIL_GMAIL_CLIENT_ID"`
	GmailClientSecret string `json:"gmailClientSecret,omitempty" envconfig:"EMAIL_GMAIL_CLIENT_SECRET"`
	GmailRefreshToken string `json:"gmailRefreshToken,omitempty" envconfig:"EMAIL_GMAIL_REFRESH_TOKEN"`
}

// SMSConfig configures the Twilio-backed SMS channel.
type SMSConfig struct {
	Enabled       bool   `json:"enabled" envconfig:"SMS_ENABLED"`
	AccountSID    string `json:"accountSid" envconfig:"SMS_ACCOUNT_SID"`
	AuthToken     string `json:"authToken" envconfig:"SMS_AUTH_TOKEN"`
	FromNumber    string `json:"fromNumber" envconfig:"SMS_FROM_NUMBER"`
	PathToken     string `json:"pathToken" envconfig:"SMS_PATH_TOKEN"`
}

// ---------------------------------------------------------------------------
// Gateway – HTTP server networking
// ---------------------------------------------------------------------------

// GatewayConfig contains webhook HTTP server settings.
type GatewayConfig struct {
	Host          string `json:"host" envconfig:"HOST"`
	Port          int    `json:"port" envconfig:"PORT"`
	MetricsPort   int    `json:"metricsPort" envconfig:"METRICS_PORT"`
	AdminToken    string `json:"adminToken" envconfig:"ADMIN_TOKEN"`
	TLSCert       string `json:"tlsCert" envconfig:"TLS_CERT"`
	TLSKey        string `json:"tlsKey" envconfig:"TLS_KEY"`
}

// ---------------------------------------------------------------------------
// Audit – optional external audit sink
// ---------------------------------------------------------------------------

// AuditConfig configures the optional Kafka audit fan-out.
type AuditConfig struct {
	KafkaBrokers string `json:"kafkaBrokers" envconfig:"AUDIT_KAFKA_BROKERS"`
	KafkaTopic   string `json:"kafkaTopic" envconfig:"AUDIT_KAFKA_TOPIC"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir:      "~/.kafgate",
			ManifestsDir: "~/.kafgate/manifests",
		},
		Gateway: GatewayConfig{
			Host:        "127.0.0.1", // Secure default
			Port:        18890,
			MetricsPort: 18891,
		},
		Channels: ChannelsConfig{
			Email: EmailConfig{
				PollInterval: 30 * time.Second,
				IMAPPort:     993,
			},
		},
	}
}
