package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"flatwatch-go/internal/config"
	"flatwatch-go/internal/server"
	"flatwatch-go/pkg/logger"
	"flatwatch-go/pkg/notify"
	"flatwatch-go/pkg/source"
	"flatwatch-go/pkg/store"
	"flatwatch-go/pkg/watch"
)

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Top-level recovery is the only process-fatal path: anything reachable
	// from the scan loop is recovered per platform inside the watcher.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "CRITICAL ERROR: unexpected panic: %v\n", r)
			os.Exit(1)
		}
	}()

	// .env is optional, deployments usually inject variables directly
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", getEnvOrDefault("FLATWATCH_CONFIG", "config/config.yaml"), "Path to configuration file (env: FLATWATCH_CONFIG)")
		runOnce    = flag.Bool("once", false, "Run exactly one scan cycle and exit")
		debug      = flag.Bool("debug", false, "Enable debug logging")
		help       = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help {
		printUsage()
		return
	}

	cfg, err := config.NewManager().Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to load configuration: %v\n\n", err)
		printUsage()
		os.Exit(1)
	}

	logCfg := cfg.Logger
	if *debug {
		logCfg.Level = "debug"
	}
	log := logger.New(logCfg)
	logger.SetLogger(log)
	logger.SetGlobalLogger(log)
	mainLog := log.WithComponent("main")

	mainLog.WithFields(map[string]interface{}{
		"instance":  cfg.Instance,
		"platforms": len(cfg.EnabledPlatforms()),
		"backend":   cfg.Store.Backend,
		"run_once":  *runOnce,
	}).Info("Starting flatwatch")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, err := store.Open(ctx, store.Config{
		Backend:     cfg.Store.Backend,
		DataDir:     cfg.DataDir,
		PostgresDSN: cfg.Store.PostgresDSN,
	})
	if err != nil {
		mainLog.WithError(err).Error("Failed to open storage backend")
		os.Exit(1)
	}
	if pg, ok := storage.(*store.PostgresStorage); ok {
		defer pg.Close()
	}

	audit, err := logger.NewAudit(cfg.DataDir, cfg.Instance)
	if err != nil {
		// A nil audit trail is safe everywhere, events are simply dropped
		mainLog.WithError(err).Warn("Audit trail unavailable, continuing without it")
	} else {
		defer audit.Close()
		mainLog.WithField("path", audit.Path()).Debug("Audit trail opened")
	}

	var notifier notify.Notifier
	if cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegramNotifier(notify.TelegramConfig{
			BotToken: cfg.Telegram.BotToken,
			ChatIDs:  cfg.Telegram.ChatIDs,
			BaseURL:  cfg.Telegram.APIBaseURL,
			Timeout:  time.Duration(cfg.Telegram.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			mainLog.WithError(err).Error("Failed to configure telegram notifier")
			os.Exit(1)
		}
		notifier = tg
		mainLog.WithFields(map[string]interface{}{
			"bot":   logger.MaskToken(cfg.Telegram.BotToken),
			"chats": len(cfg.Telegram.ChatIDs),
		}).Info("Telegram notifications enabled")
	} else {
		notifier = notify.NewNoopNotifier()
		mainLog.Warn("No bot token configured, notifications will be suppressed")
	}

	client := source.NewClient(time.Duration(cfg.Watch.FetchTimeoutSeconds) * time.Second)

	watcher := watch.New(watch.Config{
		MinInterval:       time.Duration(cfg.Watch.MinIntervalSeconds) * time.Second,
		MaxInterval:       time.Duration(cfg.Watch.MaxIntervalSeconds) * time.Second,
		MaxRetries:        cfg.Watch.MaxRetries,
		InitialRetryDelay: time.Duration(cfg.Watch.InitialRetryDelaySeconds) * time.Second,
		NotifyDelay:       time.Duration(cfg.Watch.NotifyDelaySeconds) * time.Second,
	}, notifier, client, audit)

	for _, platform := range cfg.EnabledPlatforms() {
		adapter, err := buildAdapter(client, platform)
		if err != nil {
			mainLog.WithError(err).Error("Failed to build platform adapter")
			os.Exit(1)
		}

		rs := store.NewRetentionStore(storage, store.Scope{
			Platform: platform.Name,
			Instance: cfg.Instance,
		}, store.Options{
			MaxSize:     cfg.Store.MaxSize,
			RemoveCount: cfg.Store.RemoveCount,
			Audit:       audit,
		})
		rs.Load(ctx)

		watcher.Register(adapter, rs)
		mainLog.WithFields(map[string]interface{}{
			"platform": platform.Name,
			"retained": rs.Len(),
		}).Info("Platform registered")
	}

	if cfg.Server.Enabled && !*runOnce {
		srv := server.New(server.Config{
			Host: cfg.Server.Host,
			Port: cfg.Server.Port,
		}, cfg.Instance, watcher)
		go func() {
			if err := srv.Start(ctx); err != nil {
				mainLog.WithError(err).Error("Status server stopped with error")
			}
		}()
	}

	if *runOnce {
		results := watcher.RunOnce(ctx)
		client.Close()

		failed := 0
		for _, result := range results {
			if !result.Success {
				failed++
			}
		}
		mainLog.WithFields(map[string]interface{}{
			"platforms": len(results),
			"failed":    failed,
		}).Info("Single cycle finished")
		if failed > 0 {
			os.Exit(1)
		}
		return
	}

	if err := watcher.Run(ctx); err != nil {
		mainLog.WithError(err).Error("Scan loop stopped with error")
		os.Exit(1)
	}
	mainLog.Info("Shutdown complete")
}

// buildAdapter maps a configured platform name to its site adapter.
func buildAdapter(client *source.Client, platform config.PlatformConfig) (source.Adapter, error) {
	switch platform.Name {
	case "kufar":
		return source.NewKufarAdapter(client, platform.FilterURL), nil
	case "realt":
		return source.NewRealtAdapter(client, platform.FilterURL, platform.MaxPages), nil
	default:
		return nil, fmt.Errorf("unknown platform: %s", platform.Name)
	}
}

func printUsage() {
	fmt.Println("flatwatch - apartment listing watcher")
	fmt.Println("")
	fmt.Println("Polls real-estate platforms for fresh listings and notifies Telegram chats.")
	fmt.Println("")
	fmt.Println("USAGE:")
	fmt.Println("    ./flatwatch [OPTIONS]")
	fmt.Println("")
	fmt.Println("OPTIONS:")
	fmt.Println("    -config string   Path to configuration file (default: config/config.yaml)")
	fmt.Println("    -once            Run exactly one scan cycle and exit")
	fmt.Println("    -debug           Enable debug logging")
	fmt.Println("    -help            Show this help message")
	fmt.Println("")
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("    FLATWATCH_CONFIG                 Configuration file path")
	fmt.Println("    FLATWATCH_INSTANCE               Instance name, scopes the seen-listing state")
	fmt.Println("    FLATWATCH_TELEGRAM_BOT_TOKEN     Telegram bot token")
	fmt.Println("    FLATWATCH_TELEGRAM_CHAT_IDS      Comma-separated chat IDs")
	fmt.Println("    FLATWATCH_STORE_POSTGRES_DSN     Postgres DSN when store.backend is postgres")
	fmt.Println("")
	fmt.Println("    Any configuration key can be overridden as FLATWATCH_<SECTION>_<KEY>.")
	fmt.Println("")
	fmt.Println("EXAMPLES:")
	fmt.Println("    ./flatwatch -config config/config.yaml")
	fmt.Println("    ./flatwatch -once -debug")
	fmt.Println("    FLATWATCH_TELEGRAM_BOT_TOKEN=123456:secret ./flatwatch")
}
