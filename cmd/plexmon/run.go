package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/plexmon/plexmon/internal/api"
	"github.com/plexmon/plexmon/internal/bot"
	"github.com/plexmon/plexmon/internal/config"
	"github.com/plexmon/plexmon/internal/conversation"
	"github.com/plexmon/plexmon/internal/downloads"
	"github.com/plexmon/plexmon/internal/events"
	"github.com/plexmon/plexmon/internal/logging"
	"github.com/plexmon/plexmon/internal/metrics"
	"github.com/plexmon/plexmon/internal/monitor"
	"github.com/plexmon/plexmon/internal/plex"
	"github.com/plexmon/plexmon/internal/probe"
	"github.com/plexmon/plexmon/internal/qbittorrent"
	"github.com/plexmon/plexmon/internal/retry"
	"github.com/plexmon/plexmon/internal/telegram"
)

const shutdownTimeout = 10 * time.Second

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the monitor, the bot and the HTTP endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(cmd.Context())
		},
	}
}

func runService(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		return fmt.Errorf("configuration error: %w", err)
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		return fmt.Errorf("logging init error: %w", err)
	}
	defer logging.Sync()

	logging.Info("plexmon starting...",
		zap.String("version", api.Version),
		zap.String("target", cfg.ProbeAddr()),
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr))
	for _, w := range cfg.Warnings() {
		logging.Warn(w)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Download client
	gateway := qbittorrent.NewGateway(qbittorrent.Config{
		BaseURL:  cfg.QBittorrentBaseURL(),
		Username: cfg.QBittorrentUsername,
		Password: cfg.QBittorrentPassword,
	})
	queue := qbittorrent.NewClient(gateway)

	library := plex.New(plex.Config{
		BaseURL: cfg.PlexBaseURL(),
		Token:   cfg.PlexToken,
	})

	tg := telegram.New(telegram.Config{
		BaseURL: cfg.TelegramBaseURL,
		Token:   cfg.TelegramToken,
	})

	broadcaster := events.NewBroadcaster()

	deps := monitor.Deps{
		Checker:     probe.New(cfg.ProbeAddr(), probe.DefaultTimeout),
		Poller:      downloads.NewPoller(queue, downloads.NewReconciler()),
		Session:     gateway,
		Broadcaster: broadcaster,
	}
	if cfg.AlertsEnabled() {
		deps.Notifier = telegram.NewChatNotifier(tg, cfg.TelegramChatID)
	}
	svc := monitor.New(monitor.Config{
		Target:           cfg.ProbeAddr(),
		CheckInterval:    cfg.CheckInterval,
		DownloadInterval: cfg.DownloadCheckInterval,
	}, deps)

	router := bot.New(bot.Config{
		AuthorizedUsers: cfg.AuthorizedUsers,
		MoviesPath:      cfg.MoviesPath,
		SeriesPath:      cfg.SeriesPath,
		PlexAddr:        cfg.ProbeAddr(),
		QBittorrentAddr: net.JoinHostPort(cfg.QBittorrentHost, strconv.Itoa(cfg.QBittorrentPort)),
	}, bot.Deps{
		Messenger:    tg,
		Downloads:    queue,
		Library:      library,
		Monitor:      svc,
		Conversation: conversation.NewMachine(),
	})

	// Telegram intake: webhook when a public URL is configured, long
	// polling otherwise.
	var (
		webhook http.Handler
		poller  *telegram.Poller
	)
	if cfg.WebhookURL != "" {
		secret := uuid.NewString()
		url := cfg.WebhookURL + api.WebhookPath
		err := retry.Do(ctx, retry.DefaultConfig(), func() error {
			return retry.Retryable(tg.SetWebhook(ctx, url, secret))
		})
		if err != nil {
			logging.Error("set webhook failed, falling back to long polling", zap.String("url", url), zap.Error(err))
		} else {
			logging.Info("telegram webhook registered", zap.String("url", url))
			webhook = telegram.WebhookHandler(ctx, secret, router)
		}
	}
	if webhook == nil {
		if err := tg.DeleteWebhook(ctx); err != nil {
			logging.Warn("delete webhook failed", zap.Error(err))
		}
		poller = telegram.NewPoller(tg, router)
		logging.Info("telegram long polling enabled")
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewServer(svc, broadcaster, webhook).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts end with the process so open event streams
		// return on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	svc.Startup(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })
	if poller != nil {
		g.Go(func() error { return poller.Run(gctx) })
	}
	g.Go(func() error { return serve(httpServer, "http server") })
	g.Go(func() error { return serve(metricsServer, "metrics server") })
	g.Go(func() error {
		<-gctx.Done()
		logging.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, s := range []*http.Server{httpServer, metricsServer} {
			if err := s.Shutdown(shutdownCtx); err != nil {
				logging.Warn("server shutdown", zap.String("addr", s.Addr), zap.Error(err))
				s.Close()
			}
		}
		return nil
	})

	err = g.Wait()
	if err != nil {
		logging.Error("plexmon stopped with error", zap.Error(err))
		return err
	}
	logging.Info("plexmon stopped")
	return nil
}

func serve(s *http.Server, name string) error {
	logging.Info(name+" listening", zap.String("addr", s.Addr))
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
