package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/suspectuso/xlm-tipbot/internal/config"
	"github.com/suspectuso/xlm-tipbot/internal/deposit"
	"github.com/suspectuso/xlm-tipbot/internal/events"
	"github.com/suspectuso/xlm-tipbot/internal/horizon"
	"github.com/suspectuso/xlm-tipbot/internal/notifier"
	"github.com/suspectuso/xlm-tipbot/internal/ops"
	"github.com/suspectuso/xlm-tipbot/internal/pgstore"
	"github.com/suspectuso/xlm-tipbot/internal/queue"
	"github.com/suspectuso/xlm-tipbot/internal/storage"
	"github.com/suspectuso/xlm-tipbot/internal/telegram"
	"github.com/suspectuso/xlm-tipbot/internal/tipping"
)

// ledgerStore is what the bot needs from either ledger engine
type ledgerStore interface {
	tipping.Ledger
	ops.Journal
	ops.Pinger
}

func main() {
	// Load .env file
	envErr := godotenv.Load()

	// Load config
	cfg := config.Load()

	// Setup logger
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(log)

	if envErr != nil {
		log.Debug("no .env file found")
	}

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}
	if !horizon.IsValidPublicKey(cfg.OperatingAddress) {
		log.Error("OPERATING_ADDRESS is not a valid public key")
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// SQLite holds the deferred queue and polling cursors, and the ledger unless postgres is selected
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("storage initialized", "path", cfg.DBPath)

	var ledger ledgerStore = store
	if cfg.LedgerDriver == "postgres" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("init postgres ledger", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		ledger = pg
		log.Info("postgres ledger initialized")
	}

	checks := map[string]ops.Pinger{"storage": store, "ledger": ledger}

	var queueStore queue.Store = store.Commands()
	if cfg.QueueDriver == "redis" {
		rs, err := queue.NewRedisStore(cfg.RedisURL, cfg.RedisQueueKey)
		if err != nil {
			log.Error("init redis queue", "error", err)
			os.Exit(1)
		}
		defer rs.Close()
		if err := rs.Ping(ctx); err != nil {
			log.Error("ping redis", "error", err)
			os.Exit(1)
		}
		queueStore = rs
		checks["queue"] = rs
		log.Info("redis queue initialized", "key", cfg.RedisQueueKey)
	}

	// Events
	bus := events.NewBus()
	bus.Subscribe(events.NewMetricsSink(prometheus.DefaultRegisterer).Handle)
	bus.Subscribe(events.NewLogSink(log).Handle)

	// Horizon
	hz := horizon.NewClient(cfg.HorizonURL, cfg.HorizonRPS)
	submitter := horizon.NewSubmitter(cfg.SubmitterURL, cfg.SubmitterToken)
	log.Info("horizon client initialized", "base_url", cfg.HorizonURL)

	if acct, err := hz.GetAccount(ctx, cfg.OperatingAddress); err != nil {
		log.Warn("load operating account", "address", horizon.ShortAddr(cfg.OperatingAddress, 4), "error", err)
	} else {
		log.Info("operating account", "address", horizon.ShortAddr(cfg.OperatingAddress, 4), "balance", acct.NativeBalance())
	}

	// Initialize telegram bot
	bot, err := telegram.New(telegram.Config{
		Token:        cfg.BotToken,
		DevelopersID: cfg.DevelopersID,
	}, log)
	if err != nil {
		log.Error("init telegram bot", "error", err)
		os.Exit(1)
	}
	log.Info("telegram bot initialized")

	notify := notifier.New(bot, cfg.DMPerSecond, log)

	svc := tipping.New(tipping.Config{
		OperatingAddress: cfg.OperatingAddress,
		SupportContact:   cfg.SupportContact,
		SubmitTimeout:    cfg.SubmitTimeout,
	}, ledger, submitter, notify, bus, log)

	deferred := queue.New(queueStore, notify, bus, log, cfg.FlushBatch)
	bot.Use(svc, deferred)

	// Start deferred queue flusher
	go func() {
		if err := queue.RunFlusher(ctx, deferred, svc.HandleCommand, cfg.FlushInterval, log); err != nil {
			log.Error("queue flusher", "error", err)
		}
	}()

	// Start deposit watcher
	watcher := deposit.NewWatcher(cfg.OperatingAddress, hz, ledger, store, svc, []string{telegram.Adapter}, log)
	go watcher.Start(ctx, cfg.DepositPollInterval)

	// Start ops server
	opsServer := ops.NewServer(ledger, checks, log)
	go func() {
		if err := opsServer.Start(ctx, cfg.OpsPort); err != nil && err != http.ErrServerClosed {
			log.Error("ops server", "error", err)
		}
	}()

	// Start bot polling
	log.Info("starting bot polling...")
	bot.Start(ctx)
	log.Info("shutting down...")
}
