// Command leadctl is the staff command line for the lead engine.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"leadflow/internal/app"
	"leadflow/internal/config"
	"leadflow/internal/events"
	"leadflow/internal/logging"
	"leadflow/internal/pricing"
	"leadflow/internal/store"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Load()
	logger, err := logging.New(cfg.LogLevel, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	tables, err := pricing.LoadTables(cfg.PricingFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pricing tables: %v\n", err)
		os.Exit(1)
	}

	c := &cli{
		out:     os.Stdout,
		tables:  tables,
		cfg:     cfg,
		connect: postgresService(cfg, tables, logger),
	}
	if err := newRootCmd(c).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// postgresService opens the configured database and wires event sinks so
// staff actions taken here reach the same stream as the API's.
func postgresService(cfg config.Config, tables pricing.Tables, logger *zap.Logger) serviceFactory {
	return func(ctx context.Context) (*app.Service, func(), error) {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		sinks := []events.Sink{events.NewLogSink(logger)}
		var closers []func()
		if strings.TrimSpace(cfg.RedisURL) != "" {
			redisSink, err := events.NewRedisSink(cfg.RedisURL, cfg.EventStream)
			if err != nil {
				_ = db.Close()
				return nil, nil, err
			}
			sinks = append(sinks, redisSink)
			closers = append(closers, func() { _ = redisSink.Close() })
		}
		dispatcher := events.NewDispatcher(logger, sinks...)
		service := app.New(store.NewPostgresStore(db), app.Options{
			Logger:  logger,
			Pricing: &tables,
			Events:  dispatcher,
		})
		closeAll := func() {
			dispatcher.Wait()
			for _, closeFn := range closers {
				closeFn()
			}
			_ = db.Close()
		}
		return service, closeAll, nil
	}
}
