package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"leadflow/internal/app"
	"leadflow/internal/assistant"
	"leadflow/internal/attachments"
	"leadflow/internal/config"
	"leadflow/internal/email"
	"leadflow/internal/events"
	"leadflow/internal/logging"
	"leadflow/internal/pricing"
	"leadflow/internal/search"
	"leadflow/internal/store"
)

type storeBackend interface {
	app.DataStore
	search.DirectoryStore
}

func main() {
	if err := config.LoadDotenv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.Development())
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	tables, err := pricing.LoadTables(cfg.PricingFile)
	if err != nil {
		logger.Fatal("pricing tables", zap.Error(err))
	}

	var dataStore storeBackend
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store; records are lost on restart")
		dataStore = store.NewMemoryStore()
	default:
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("database connection failed", zap.Error(err))
		}
		defer db.Close()
		applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
		if err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}
		if len(applied) > 0 {
			logger.Info("migrations applied", zap.Strings("versions", applied))
		}
		dataStore = store.NewPostgresStore(db)
	}

	sinks := []events.Sink{events.NewLogSink(logger)}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisSink, err := events.NewRedisSink(cfg.RedisURL, cfg.EventStream)
		if err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		defer redisSink.Close()
		sinks = append(sinks, redisSink)
		logger.Info("publishing events to redis stream", zap.String("stream", cfg.EventStream))
	}
	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mailer.IsConfigured() && len(cfg.NotifyEmail) > 0 {
		sinks = append(sinks, email.NewNotifier(mailer, cfg.NotifyEmail...))
	}
	dispatcher := events.NewDispatcher(logger, sinks...)
	defer dispatcher.Wait()

	var index search.Index
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
		index = meiliClient
	}
	searchService := search.NewService(index, search.NewDirectory(dataStore), logger)
	go searchService.ReindexAll(ctx)

	opts := app.Options{
		Logger:    logger,
		Pricing:   &tables,
		Events:    dispatcher,
		Directory: searchService,
	}
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		uploads, err := attachments.NewMinio(ctx, attachments.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
			MaxBytes:  cfg.AttachmentMaxBytes,
		})
		if err != nil {
			logger.Fatal("attachment storage failed", zap.Error(err))
		}
		opts.Uploader = uploads
	}
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		model, err := assistant.NewGemini(ctx, cfg.GeminiAPIKey, cfg.IntakeModel)
		if err != nil {
			logger.Fatal("intake assistant failed", zap.Error(err))
		}
		logger.Info("conversational intake enabled", zap.String("assistant", model.Name()))
		opts.Assistant = model
	}

	service := app.New(dataStore, opts)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger).WithMaxUploadBytes(cfg.AttachmentMaxBytes)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("leadflow api listening", zap.String("addr", cfg.Addr), zap.String("store", cfg.Store))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
}
