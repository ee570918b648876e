package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/kafgate/kafgate/internal/audit"
	"github.com/kafgate/kafgate/internal/bus"
	"github.com/kafgate/kafgate/internal/channels"
	"github.com/kafgate/kafgate/internal/channels/email"
	"github.com/kafgate/kafgate/internal/command"
	"github.com/kafgate/kafgate/internal/config"
	"github.com/kafgate/kafgate/internal/logging"
	"github.com/kafgate/kafgate/internal/message"
	"github.com/kafgate/kafgate/internal/middleware"
	"github.com/kafgate/kafgate/internal/policy"
	"github.com/kafgate/kafgate/internal/registry"
	"github.com/kafgate/kafgate/internal/store"
	"github.com/kafgate/kafgate/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook gateway",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	printHeader("kafgate serve")

	config.LoadEnvFileCandidates()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := config.EnsureDir(cfg.Paths.DataDir); err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}
	st, err := store.Open(filepath.Join(cfg.Paths.DataDir, "kafgate.db"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	reg := registry.New(cfg.Paths.ManifestsDir)
	if err := reg.Load(); err != nil {
		return fmt.Errorf("load manifests: %w", err)
	}

	enforcer := policy.NewEnforcer()
	for _, m := range reg.ListManifests() {
		enforcer.SetPolicy(m.ID, policyFromDefaults(m.SecurityDefaults))
	}

	var sink *audit.KafkaSink
	if cfg.Audit.KafkaBrokers != "" {
		sink = audit.NewKafkaSink(strings.Split(cfg.Audit.KafkaBrokers, ","), cfg.Audit.KafkaTopic)
		enforcer.SetSink(sink.Send)
		defer sink.Close()
	}

	b := bus.New()
	b.Use(&middleware.Dedupe{Store: st})
	b.Use(&middleware.RateLimit{Store: st, Policies: enforcer})
	b.Use(&middleware.PolicyEnforcer{Enforcer: enforcer})
	b.Use(&middleware.Audit{Store: st})

	proc := command.NewProcessor(st)
	server := webhook.NewServer(b, reg)
	server.BridgeToken = cfg.Gateway.AdminToken

	pollCtx, cancelPolls := context.WithCancel(context.Background())
	defer cancelPolls()

	wireSlashCommands(b, proc)
	wireChannels(b, server, cfg, st, pollCtx)

	addr := fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
	httpServer := &http.Server{Addr: addr, Handler: server}

	go func() {
		logging.Infof("kafgate: listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Errorf("kafgate: http server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logging.Infof("kafgate: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// policyFromDefaults translates a manifest's declarative security block
// into the enforcer's runtime Policy, always keeping "chat" allowed.
func policyFromDefaults(d registry.SecurityDefaults) policy.Policy {
	ops := map[string]bool{"chat": true}
	if d.AllowExecute {
		ops["execute"] = true
	}
	return policy.Policy{
		Mode:               policy.Mode(d.Mode),
		AllowExecute:       d.AllowExecute,
		AllowedCommands:    d.AllowedCommands,
		AllowedOperations:  ops,
		RateLimitPerMinute: d.RateLimitPerMinute,
		BlockOnViolation:   true,
	}
}

// wireSlashCommands installs the inbound handler that answers "/session"
// and "/help" without involving the external chat backend, replying
// through SendOutbound so the reply still flows back out the originating
// channel's adapter.
func wireSlashCommands(b *bus.Bus, proc *command.Processor) {
	b.AddInboundHandler(func(msg *message.Inbound) {
		if !command.IsCommand(msg.Text) {
			return
		}
		reply := proc.Process(msg.ChannelID, msg.UserKey, msg.ConversationKey, msg.Text)
		if pctx := b.SendOutbound(context.Background(), reply); pctx.Status == bus.StatusError {
			logging.Warnf("command: reply to %s: %v", msg.ChannelID, pctx.Err)
		}
	})
}

// wireChannels builds every configured channel adapter, registers it on
// the bus, and (for webhook-shaped channels) on the server's per-kind
// verification list. Email has no webhook; it runs its poll loop in the
// background for the life of the process.
func wireChannels(b *bus.Bus, server *webhook.Server, cfg *config.Config, st *store.Store, pollCtx context.Context) {
	if cfg.Channels.WhatsApp.Enabled {
		a := channels.NewWhatsAppTwilio("whatsapp_twilio", cfg.Channels.WhatsApp.AccountSID, cfg.Channels.WhatsApp.AuthToken, cfg.Channels.WhatsApp.FromNumber)
		a.Bus = b
		b.RegisterAdapter(a)
		server.WhatsApp = append(server.WhatsApp, a)
	}

	if cfg.Channels.Telegram.Enabled {
		a, err := channels.NewTelegram("telegram", cfg.Channels.Telegram.BotToken, cfg.Channels.Telegram.SecretToken)
		if err != nil {
			logging.Errorf("telegram: %v", err)
		} else {
			a.Bus = b
			b.RegisterAdapter(a)
			server.Telegram = append(server.Telegram, a)
		}
	}

	if cfg.Channels.Slack.Enabled && cfg.Channels.Slack.BridgeEnabled {
		a := channels.NewSlackBridge("slack", cfg.Channels.Slack.BridgeURL, cfg.Gateway.AdminToken)
		a.Bus = b
		b.RegisterAdapter(a)
	} else if cfg.Channels.Slack.Enabled {
		a := channels.NewSlack("slack", cfg.Channels.Slack.BotToken, cfg.Channels.Slack.SigningSecret, "", channels.TriggerMentionOrDM)
		a.Bus = b
		b.RegisterAdapter(a)
		server.Slack = append(server.Slack, a)
	}

	if cfg.Channels.Discord.Enabled {
		a := channels.NewDiscord("discord", cfg.Channels.Discord.ApplicationID, cfg.Channels.Discord.PublicKey)
		a.Bus = b
		b.RegisterAdapter(a)
		server.Discord = append(server.Discord, a)
	}

	if cfg.Channels.SMS.Enabled {
		a := channels.NewSMS("sms_twilio", cfg.Channels.SMS.AccountSID, cfg.Channels.SMS.AuthToken, cfg.Channels.SMS.FromNumber, cfg.Channels.SMS.PathToken)
		a.Bus = b
		b.RegisterAdapter(a)
		server.SMS[cfg.Channels.SMS.PathToken] = a
	}

	if cfg.Channels.Email.Enabled {
		provider, err := buildEmailProvider(cfg.Channels.Email)
		if err != nil {
			logging.Errorf("email: %v", err)
		} else {
			interval := int(cfg.Channels.Email.PollInterval / time.Second)
			a := channels.NewEmail("email", provider, "INBOX", interval, st)
			a.Bus = b
			b.RegisterAdapter(a)
			go a.Run(pollCtx)
		}
	}
}

func buildEmailProvider(cfg config.EmailConfig) (email.Provider, error) {
	switch cfg.Provider {
	case "gmail_api":
		oauthCfg := oauth2.Config{
			ClientID:     cfg.GmailClientID,
			ClientSecret: cfg.GmailClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: "https://oauth2.googleapis.com/token"},
		}
		ts := oauthCfg.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
		return email.NewGmailProvider(email.GmailConfig{TokenSource: ts, UserEmail: cfg.Username}), nil
	case "imap":
		return email.NewIMAPProvider(email.IMAPConfig{
			Host:     cfg.IMAPHost,
			Port:     cfg.IMAPPort,
			Username: cfg.Username,
			Password: cfg.Password,
			Folder:   "INBOX",
		}), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}
