package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"laundromat-backend/config"
	"laundromat-backend/internal/api"
	"laundromat-backend/internal/controller"
	"laundromat-backend/internal/db"
	"laundromat-backend/internal/eventbus"
	"laundromat-backend/internal/notification"
	"laundromat-backend/internal/obs"
	"laundromat-backend/internal/report"
	"laundromat-backend/internal/scheduler"
	"laundromat-backend/internal/sink"
	"laundromat-backend/internal/store"
	"laundromat-backend/internal/ws"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger(obs.LogConfig{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		App:    "laundromatd",
		Env:    cfg.Log.Env,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Info("configuration loaded", zap.String("path", configPath))

	// Cancelled on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize store", zap.Error(err))
	}
	defer appStore.Close()
	logger.Info("data store initialized", zap.String("driver", cfg.Database.Driver))

	bus := eventbus.New(logger)
	ctrl := controller.New(appStore, bus, logger)
	engine := scheduler.New(appStore, bus, logger,
		scheduler.WithInterval(cfg.Scheduler.Tick),
		scheduler.WithThreshold(cfg.Scheduler.AlmostDoneThresholdSeconds))

	var wg sync.WaitGroup
	spawn := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
			logger.Debug("background task stopped", zap.String("task", name))
		}()
	}

	spawn("scheduler", func() { _ = engine.Run(ctx) })

	// Notifications
	dispatcher := notification.NewDispatcher(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, appStore.Recipients(), logger)
	var lineClient *notification.LineClient
	if cfg.Line.ChannelAccessToken != "" {
		lineClient = notification.NewLineClient(cfg.Line.APIBase, cfg.Line.ChannelAccessToken,
			time.Duration(cfg.Line.TimeoutSeconds)*time.Second)
		dispatcher.Register(notification.NewLineSender(lineClient))
		logger.Info("LINE notifications enabled")
	} else {
		logger.Warn("LINE channel access token not configured; LINE notifications disabled")
	}

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		dispatcher.Register(notification.NewWebPushSender(webpushOptions))
		logger.Info("web push notifications enabled")
	}

	if cfg.Telegram.Token != "" {
		bot, err := notification.NewTelegramBot(cfg.Telegram.Token, time.Duration(cfg.Telegram.PollTimeoutSeconds)*time.Second)
		if err != nil {
			logger.Fatal("failed to create telegram bot", zap.Error(err))
		}
		dispatcher.Register(notification.NewTelegramSender(bot))
		listener := notification.NewTelegramListener(bot, appStore.Recipients(), cfg.Line.ReplyText, logger)
		spawn("telegram", func() { listener.Run(ctx) })
		logger.Info("telegram notifications enabled")
	}

	if cfg.Webhook.URL != "" {
		dispatcher.AddBroadcaster(notification.NewWebhookBroadcaster(cfg.Webhook.URL,
			time.Duration(cfg.Webhook.TimeoutSeconds)*time.Second))
		logger.Info("outbound webhook enabled", zap.String("url", cfg.Webhook.URL))
	}

	dispatcher.Start(ctx)
	notifications, unsubscribe := bus.Subscribe("notification", cfg.WorkerPool.QueueSize)
	defer unsubscribe()
	spawn("notification", func() { dispatcher.Consume(ctx, notifications) })

	// Event sinks
	if len(cfg.Kafka.Brokers) > 0 {
		producer := sink.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer producer.Close()
		events, unsubscribe := bus.Subscribe("kafka", 256)
		defer unsubscribe()
		spawn("kafka", func() { producer.Consume(ctx, events) })
		logger.Info("kafka event stream enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	hub := ws.NewHub(logger)
	spawn("ws-hub", func() { hub.Run(ctx) })
	dashboard, unsubscribeWS := bus.Subscribe("ws", 64)
	defer unsubscribeWS()
	spawn("ws-consume", func() { hub.Consume(ctx, dashboard) })

	reporter := report.New(appStore.History(), time.Duration(cfg.History.ReportWindowHours)*time.Hour, logger)
	spawn("history-report", func() {
		if err := reporter.Run(ctx, cfg.History.ReportSchedule); err != nil {
			logger.Error("history report job failed", zap.Error(err))
		}
	})

	// Initialize router
	handler := api.NewHandler(api.Deps{
		Store:        appStore,
		Controller:   ctrl,
		Notifier:     dispatcher,
		Line:         lineReplier(lineClient),
		LineSecret:   cfg.Line.ChannelSecret,
		ReplyText:    cfg.Line.ReplyText,
		WebPush:      webpushOptions,
		Hub:          hub,
		HistoryLimit: cfg.History.ListLimit,
		Log:          logger,
	})
	router := api.NewRouter(handler, api.RouterConfig{
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		RequestIPHeader: cfg.Server.RequestIPHeader,
		CacheTTL:        time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
		StaticDir:       cfg.Server.StaticDir,
		Log:             logger,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server ListenAndServe", zap.Error(err))
		}
	}()

	// Block until a signal is received.
	<-ctx.Done()
	logger.Info("shutdown signal received, stopping services")

	// Create a deadline to wait for.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server Shutdown", zap.Error(err))
	}
	wg.Wait()
	dispatcher.Wait()

	logger.Info("server gracefully stopped")
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.Database.Driver == config.DriverMemory {
		return store.NewMemoryStore(cfg.Machines)
	}
	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	return store.NewGormStore(ctx, gormDB, cfg.Machines)
}

// lineReplier keeps a nil client from becoming a non-nil interface.
func lineReplier(c *notification.LineClient) api.LineReplier {
	if c == nil {
		return nil
	}
	return c
}
