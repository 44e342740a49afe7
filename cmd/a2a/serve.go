package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openclaw/a2a/pkg/collab"
	"github.com/openclaw/a2a/pkg/config"
	"github.com/openclaw/a2a/pkg/conversations"
	"github.com/openclaw/a2a/pkg/credentials"
	"github.com/openclaw/a2a/pkg/logger"
	"github.com/openclaw/a2a/pkg/logstore"
	"github.com/openclaw/a2a/pkg/notify"
	"github.com/openclaw/a2a/pkg/presenter"
	"github.com/openclaw/a2a/pkg/ratelimit"
	"github.com/openclaw/a2a/pkg/server"
	"github.com/openclaw/a2a/pkg/telemetry"
	"github.com/openclaw/a2a/pkg/types/a2a"
	"github.com/openclaw/a2a/pkg/version"
	"github.com/openclaw/a2a/pkg/watchdog"
)

var serveCmd = &cobra.Command{
	Use:   "serve [port]",
	Short: "Start the agent-to-agent call server",
	Long: `Start the HTTP server that answers peer calls: discovery, the call
lifecycle (/api/a2a/invoke, /api/a2a/end), and the owner-only
conversation and log views.

The listen port comes from the positional argument, then the PORT
environment variable, then the fallback list.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := serveOptionsFromFlags(cmd)
		if len(args) == 1 {
			port, err := strconv.Atoi(args[0])
			if err != nil || port < 1 || port > 65535 {
				return errors.Errorf("invalid port: %s", args[0])
			}
			opts.Port = port
		}
		return runServe(cmd.Context(), opts)
	},
}

func init() {
	serveCmd.Flags().String("host", "", "Host to bind to (empty binds all interfaces)")
	serveCmd.Flags().Int("port", 0, "Port to bind to (0 walks the fallback list)")
	serveCmd.Flags().String("reply-command", "", "Command producing the reply to an inbound message")
	serveCmd.Flags().String("notify-command", "", "Command receiving owner notification events")
	serveCmd.Flags().Bool("tracing", false, "Enable OpenTelemetry trace export")

	_ = viper.BindPFlag("reply_command", serveCmd.Flags().Lookup("reply-command"))
	_ = viper.BindPFlag("notify_command", serveCmd.Flags().Lookup("notify-command"))
	_ = viper.BindPFlag("tracing_enabled", serveCmd.Flags().Lookup("tracing"))
}

// ServeOptions are the CLI-level inputs of the serve command.
type ServeOptions struct {
	Host          string
	Port          int
	LogLevel      string
	ReplyCommand  string
	NotifyCommand string
	Tracing       bool
}

func serveOptionsFromFlags(cmd *cobra.Command) ServeOptions {
	opts := ServeOptions{
		ReplyCommand:  viper.GetString("reply_command"),
		NotifyCommand: viper.GetString("notify_command"),
		Tracing:       viper.GetBool("tracing_enabled"),
	}
	if host, err := cmd.Flags().GetString("host"); err == nil {
		opts.Host = host
	}
	if port, err := cmd.Flags().GetInt("port"); err == nil && port > 0 {
		opts.Port = port
	}
	if level, err := cmd.Flags().GetString("log-level"); err == nil {
		opts.LogLevel = level
	}
	return opts
}

func runServe(ctx context.Context, opts ServeOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.Port == 0 {
		opts.Port = cfg.Port
	}
	// The --log-level flag wins over A2A_LOG_LEVEL.
	if opts.LogLevel == "" && cfg.LogLevel != "" {
		if err := logger.SetLogLevel(cfg.LogLevel); err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.Config{
		Enabled:        opts.Tracing,
		ServiceName:    "openclaw-a2a",
		ServiceVersion: version.Get().Version,
	})
	if err != nil {
		return errors.Wrap(err, "failed to initialize tracing")
	}
	defer func() {
		_ = shutdownTracer(context.Background())
	}()

	tiers, err := credentials.LoadTierConfig(cfg.TierConfigPath())
	if err != nil {
		return err
	}
	if err := tiers.Watch(ctx); err != nil {
		logger.G(ctx).WithError(err).Warn("tier config watch unavailable, edits need a restart")
	}

	creds, err := credentials.NewStore(ctx, cfg.CredentialsPath(), tiers)
	if err != nil {
		return err
	}

	store, err := conversations.NewStore(ctx, cfg.DBPath())
	if err != nil {
		return err
	}
	defer store.Close()

	logs, err := logstore.New(ctx, store.DB())
	if err != nil {
		return err
	}
	hookLevel := logrus.InfoLevel
	if parsed, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		hookLevel = parsed
	}
	hook := logstore.NewHook(logs, hookLevel)
	logger.AddHook(hook)
	defer hook.Close()

	producer := newExecProducer(opts.ReplyCommand)
	dispatcher := notify.NewDispatcher(newExecNotifier(opts.NotifyCommand))

	engine := collab.New(store, collab.Options{
		Mode:        cfg.CollabMode,
		MaxSessions: cfg.CollabMaxSessions,
		TTL:         cfg.CollabStateTTL,
	})

	wd := watchdog.New(store, dispatcher, watchdog.Options{
		Interval:     cfg.SweepInterval,
		IdleTimeout:  cfg.IdleTimeout,
		MaxDuration:  cfg.MaxDuration,
		OwnerContext: tiers.Owner().Context,
	})
	wd.Start(ctx)
	defer wd.Stop()

	srv, err := server.New(server.Config{
		Host:         opts.Host,
		Port:         opts.Port,
		AdminToken:   cfg.AdminToken,
		OwnerContext: tiers.Owner().Context,
	}, server.Deps{
		Credentials:   creds,
		Conversations: store,
		Logs:          logs,
		Limiter: ratelimit.New(ratelimit.Limits{
			PerMinute: cfg.RateLimits.PerMinute,
			PerHour:   cfg.RateLimits.PerHour,
			PerDay:    cfg.RateLimits.PerDay,
		}),
		Collab:     engine,
		Watchdog:   wd,
		Producer:   producer,
		Dispatcher: dispatcher,
	})
	if err != nil {
		return err
	}

	presenter.Success("a2a server starting")
	presenter.Info("Press Ctrl+C to stop the server")

	if err := srv.Start(ctx); err != nil {
		logger.G(ctx).WithError(err).Error("server failed")
		return err
	}
	presenter.Info("Server stopped")
	return nil
}

// newExecProducer turns an inbound message into a reply by running the
// configured command with the call details as JSON on stdin. With no
// command configured every call fails as unavailable, which keeps the
// server honest rather than inventing replies.
func newExecProducer(command string) a2a.ReplyProducer {
	return a2a.ReplyProducerFunc(func(ctx context.Context, sessionID, message string, caller a2a.Caller, callContext any) (string, error) {
		if command == "" {
			return "", errors.New("no reply command configured")
		}
		payload, err := json.Marshal(map[string]any{
			"session_id": sessionID,
			"message":    message,
			"caller":     caller,
			"context":    callContext,
		})
		if err != nil {
			return "", errors.Wrap(err, "failed to encode reply command input")
		}

		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Stdin = bytes.NewReader(payload)
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return "", errors.Wrap(err, "reply command failed")
		}
		reply := strings.TrimSpace(out.String())
		if reply == "" {
			return "", errors.New("reply command produced no output")
		}
		return reply, nil
	})
}

// newExecNotifier delivers notification events by running the
// configured command with the event as JSON on stdin. Returns nil when
// no command is configured, which the dispatcher treats as a no-op.
func newExecNotifier(command string) a2a.OwnerNotifier {
	if command == "" {
		return nil
	}
	return a2a.OwnerNotifierFunc(func(ctx context.Context, event a2a.NotificationEvent) error {
		payload, err := json.Marshal(event)
		if err != nil {
			return errors.Wrap(err, "failed to encode notification")
		}
		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Stdin = bytes.NewReader(payload)
		if out, err := cmd.CombinedOutput(); err != nil {
			return errors.Wrapf(err, "notify command failed: %s", strings.TrimSpace(string(out)))
		}
		return nil
	})
}
