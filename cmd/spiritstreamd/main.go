// Command spiritstreamd runs the streaming engine: the profile store, the
// fan-out coordinator, and the loopback HTTP control surface the CLI talks
// to.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/ScopeCreep-zip/spiritstream/internal/audit"
	"github.com/ScopeCreep-zip/spiritstream/internal/collab/chatqueue"
	"github.com/ScopeCreep-zip/spiritstream/internal/collab/discordwebhook"
	"github.com/ScopeCreep-zip/spiritstream/internal/config"
	"github.com/ScopeCreep-zip/spiritstream/internal/controlserver"
	"github.com/ScopeCreep-zip/spiritstream/internal/corebus"
	"github.com/ScopeCreep-zip/spiritstream/internal/eventbus"
	"github.com/ScopeCreep-zip/spiritstream/internal/fanout"
	"github.com/ScopeCreep-zip/spiritstream/internal/observability/logging"
	"github.com/ScopeCreep-zip/spiritstream/internal/observability/metrics"
	"github.com/ScopeCreep-zip/spiritstream/internal/platform"
	"github.com/ScopeCreep-zip/spiritstream/internal/profilestore"
	"github.com/ScopeCreep-zip/spiritstream/internal/secretstore"
	"github.com/ScopeCreep-zip/spiritstream/internal/serverutil"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("spiritstreamd: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Writer: os.Stdout,
		Format: logging.LogFormat(cfg.LogFormat),
	})

	registry, err := platform.Load()
	if err != nil {
		logger.Error().Err(err).Msg("failed to load platform registry")
		os.Exit(1)
	}

	bus := eventbus.New()
	secrets := secretstore.New(cfg.DataDir)
	repo := profilestore.New(cfg.DataDir, secrets)
	coordinator := fanout.New(cfg.DataDir, bus, registry)
	metricsReg := metrics.New()

	var auditLogger *audit.Logger
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	if cfg.AuditDSN != "" {
		auditLogger, err = audit.Open(workerCtx, cfg.AuditDSN)
		if err != nil {
			logger.Error().Err(err).Msg("failed to open audit log, continuing without it")
		} else {
			defer auditLogger.Close()
			go auditLogger.Subscribe(workerCtx, bus, logger)
		}
	}

	var notifier *discordwebhook.Notifier
	if cfg.DiscordHook != "" {
		notifier, err = discordwebhook.New(cfg.DiscordHook, 0)
		if err != nil {
			logger.Warn().Err(err).Msg("discord webhook disabled: invalid configuration")
		} else {
			go forwardGroupStateChanges(workerCtx, bus, notifier)
		}
	}

	var chatConn *chatqueue.Connector
	if cfg.RedisAddr != "" {
		chatConn, err = chatqueue.New(chatqueue.Config{Addr: cfg.RedisAddr}, uuid.NewString())
		if err != nil {
			logger.Warn().Err(err).Msg("chat queue disabled: invalid configuration")
		} else if err := chatConn.Connect(workerCtx); err != nil {
			logger.Warn().Err(err).Msg("chat queue connect failed")
			chatConn = nil
		}
	}

	ctlServer, err := controlserver.New(controlserver.Config{
		Addr:     cfg.Addr(),
		APIToken: cfg.APIToken,
		RateLimit: controlserver.RateLimitConfig{
			RPS:       20,
			Burst:     40,
			RedisAddr: cfg.RedisAddr,
		},
		Repository: repo,
		Fanout:     coordinator,
		Metrics:    metricsReg,
		Logger:     logger,
		InputURL: func(name string) (string, error) {
			profile, err := repo.Load(name, "")
			if err != nil {
				return "", err
			}
			ingestURL, ok := profile.IngestURL()
			if !ok {
				return "", corebus.Newf("spiritstreamd.InputURL", corebus.KindInvalidArgument, "profile %q has no resolvable ingest URL", name)
			}
			return ingestURL, nil
		},
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to construct control server")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 2)
	go func() {
		err := serverutil.Run(ctx, serverutil.Config{Server: ctlServer.HTTPServer(), Logger: &logger})
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errs:
		logger.Error().Err(err).Msg("control server error")
	}

	coordinator.StopAll()
	workerCancel()
	if chatConn != nil {
		_ = chatConn.Close()
	}

	logger.Info().Msg("spiritstreamd stopped")
}

// forwardGroupStateChanges drains bus for group_state_changed events and
// relays them to observer until ctx is cancelled.
func forwardGroupStateChanges(ctx context.Context, bus *eventbus.Bus, observer *discordwebhook.Notifier) {
	sub := bus.Subscribe(eventbus.DefaultQueueCapacity)
	defer bus.Unsubscribe(sub)
	for {
		event, ok := sub.Next()
		if !ok {
			return
		}
		if event.Name != eventbus.GroupStateChanged {
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		_ = observer.SendEvent(ctx, string(event.Name), event.Payload)
	}
}
