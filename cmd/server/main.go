package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"practice-sync-client/internal/api"
	"practice-sync-client/internal/config"
	"practice-sync-client/internal/crypto"
	"practice-sync-client/internal/logger"
	"practice-sync-client/internal/store"
	"practice-sync-client/internal/sync"
)

func main() {
	// Load Config
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Init Logger
	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("Starting practice sync client")

	// Init Encryption
	keyStore := crypto.NewFileKeyStore(cfg.Cache.KeyPath, cfg.Cache.KeyPassphrase)
	key, err := keyStore.LoadOrCreate()
	if err != nil {
		logger.Log.Fatal("Failed to load encryption key", zap.Error(err))
	}
	codec, err := crypto.NewAESCodec(key)
	if err != nil {
		logger.Log.Fatal("Failed to init encryption codec", zap.Error(err))
	}

	// Init Local Store
	localStore, err := store.Open(cfg.Cache.Path, codec)
	if err != nil {
		logger.Log.Fatal("Failed to open local store", zap.Error(err))
	}
	defer localStore.Close()

	// Init Sync Engine
	monitor := sync.NewNetworkMonitor(0)
	client := sync.NewRemoteClient(cfg.Remote.BaseURL, cfg.Remote.GetTimeout(), cfg.Remote.CorrelationHeader, monitor)
	probe := sync.NewHTTPProbe(cfg.Remote.BaseURL, cfg.Remote.GetTimeout())
	engine := sync.NewEngine(sync.Options{
		BatchSize:               cfg.Sync.BatchSize,
		MaxConcurrentOperations: cfg.Sync.MaxConcurrentOperations,
		MaxRetries:              cfg.Sync.MaxRetries,
		RetryBaseDelay:          cfg.Sync.GetRetryBaseDelay(),
		RetryMaxDelay:           cfg.Sync.GetRetryMaxDelay(),
		RetryMultiplier:         cfg.Sync.RetryMultiplier,
		ConflictStrategy:        sync.Strategy(cfg.Sync.ConflictStrategy),
	}, localStore, client, probe, monitor)

	// Init Scheduler
	scheduler := sync.NewScheduler(cfg.Scheduler, engine)
	scheduler.Start()

	// Init API
	handler := api.NewHandler(engine, localStore)
	router := handler.Routes()

	// Start Server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down...")
	scheduler.Stop()
	engine.Stop()
	server.Close()
}
