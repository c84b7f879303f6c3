package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"forge/internal/app"
	"forge/internal/common"
	"forge/internal/observability"
	"forge/internal/queue"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func main() {
	config := common.InitConf()
	logger := common.InitLog(config.LogPath, config.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Service:     "forge-worker",
		Environment: config.AppEnv,
		Exporter:    config.OtelExporter,
		Endpoint:    config.OtelEndpoint,
	})
	if err != nil {
		logger.Fatal("fail to init tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	svc, err := app.New(ctx, config, logger, app.Options{})
	if err != nil {
		logger.Fatal("fail to init pipeline service", zap.Error(err))
	}
	defer svc.Close()

	srv := queue.NewServer(asynq.RedisClientOpt{Addr: config.RedisAddr}, config.QueueConcurrency, logger)
	worker := queue.NewWorker(svc.Orchestrator, logger)
	if err := srv.Start(worker.Mux()); err != nil {
		logger.Fatal("fail to start worker", zap.Error(err))
	}
	logger.Info("forge worker started", zap.Int("concurrency", config.QueueConcurrency))

	<-ctx.Done()
	logger.Info("shutting down worker")
	// in-flight tasks are cancelled and requeued; Run resumes them elsewhere
	srv.Shutdown()
}
