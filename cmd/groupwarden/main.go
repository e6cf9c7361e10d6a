package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"groupwarden/internal/analytics"
	"groupwarden/internal/bot"
	"groupwarden/internal/config"
	"groupwarden/internal/counter"
	"groupwarden/internal/media"
	"groupwarden/internal/metacache"
	"groupwarden/internal/modules/antilink"
	"groupwarden/internal/modules/antipromote"
	"groupwarden/internal/modules/audit"
	"groupwarden/internal/modules/blacklist"
	"groupwarden/internal/platform"
	"groupwarden/internal/platform/natsbridge"
	"groupwarden/internal/ratelimit"
	"groupwarden/internal/storage"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	configStore, err := storage.NewConfigs(filepath.Join(cfg.DataDir, "groups"), logger)
	if err != nil {
		logger.Fatal("config store init failed", zap.Error(err))
	}
	identity, err := storage.NewIdentity(filepath.Join(cfg.DataDir, "owner.json"))
	if err != nil {
		logger.Fatal("owner record init failed", zap.Error(err))
	}
	snapshots, err := storage.NewAdminSnapshots(filepath.Join(cfg.DataDir, "admins.json"))
	if err != nil {
		logger.Fatal("admin snapshots init failed", zap.Error(err))
	}
	totals, err := storage.NewCounterTotals(filepath.Join(cfg.DataDir, "counters.json"))
	if err != nil {
		logger.Fatal("counter totals init failed", zap.Error(err))
	}

	session, err := natsbridge.Dial(cfg.NATSURL, cfg.GatewayPrefix, cfg.EventsSubject, logger)
	if err != nil {
		logger.Fatal("gateway connect failed", zap.Error(err))
	}
	defer session.Close()

	if err := identity.SetBot(session.SelfID()); err != nil {
		logger.Warn("bot identity persist failed", zap.Error(err))
	}

	converter, err := media.NewConverter(cfg.FFmpegPath, filepath.Join(cfg.DataDir, "media"), logger)
	if err != nil {
		logger.Fatal("media converter init failed", zap.Error(err))
	}

	auditLogger := audit.NewLogger(store, logger)
	// Critical moderation events are forwarded to the owner's direct chat.
	auditLogger.SetNotifier(func(ctx context.Context, entry storage.AuditLog) {
		if entry.Level != audit.LevelCrit {
			return
		}
		owner := identity.Record().Owner
		if owner == "" {
			return
		}
		_, _ = session.Send(ctx, owner, platform.Outgoing{
			Text: "Critical event in " + entry.GroupID + ": " + entry.Event + " (" + entry.Details + ")",
		})
	})
	metadata := metacache.New(session,
		time.Duration(cfg.Cache.FreshTTLMinutes)*time.Minute,
		time.Duration(cfg.Cache.PurgeTTLMinutes)*time.Minute,
		time.Duration(cfg.Cache.SweepIntervalMinutes)*time.Minute,
		time.Duration(cfg.Cache.InflightClearSeconds)*time.Second,
		logger)
	aggregator := counter.New(totals, time.Duration(cfg.Counters.FlushIntervalSeconds)*time.Second, logger)
	gate := ratelimit.NewGate(time.Duration(cfg.Moderation.UserCooldownMs) * time.Millisecond)
	configs := storage.NewConfigCache(configStore)

	botSvc := bot.New(bot.Deps{
		Config:    cfg,
		Logger:    logger,
		Session:   session,
		Configs:   configs,
		Identity:  identity,
		Totals:    totals,
		Metadata:  metadata,
		Counter:   aggregator,
		Gate:      gate,
		AntiLink:  antilink.New(session, auditLogger, cfg.Moderation.MaxWarnings, logger),
		Promote:   antipromote.New(session, snapshots, identity, metadata, auditLogger, time.Duration(cfg.Moderation.SettleSeconds)*time.Second, logger),
		Blacklist: blacklist.New(session, configs, auditLogger, logger),
		Audit:     auditLogger,
		Analytics: analytics.New(store),
		Media:     converter,
	})

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	metadata.StartSweeper(runCtx)
	go func() {
		if err := botSvc.Run(runCtx); err != nil && err != context.Canceled {
			logger.Error("dispatcher stopped", zap.Error(err))
		}
	}()
	logger.Info("bot started", zap.String("self", session.SelfID().String()))

	var server *http.Server
	if cfg.Health.Enabled {
		server = &http.Server{Addr: cfg.Health.Addr}
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		go func() {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server error", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown requested")
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server != nil {
		_ = server.Shutdown(ctx)
	}
	if err := aggregator.Close(ctx); err != nil {
		logger.Error("final counter flush failed", zap.Error(err))
	}
}
