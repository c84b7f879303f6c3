package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"forge/internal/app"
	"forge/internal/common"
	"forge/internal/janitor"
	"forge/internal/notify"
	"forge/internal/observability"
	"forge/internal/pipeline"
	"forge/internal/queue"
	"forge/internal/server/handler"
	"forge/internal/server/middleware"

	"github.com/gin-gonic/gin"
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
		Service:     "forge-server",
		Environment: config.AppEnv,
		Exporter:    config.OtelExporter,
		Endpoint:    config.OtelEndpoint,
	})
	if err != nil {
		logger.Fatal("fail to init tracing", zap.Error(err))
	}

	// runs started in this process stop with it; the janitor fails what they leave behind
	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()
	opts := app.Options{RunContext: runCtx}

	var queueClient *asynq.Client
	if config.DispatchMode == "queue" {
		queueClient = asynq.NewClient(asynq.RedisClientOpt{Addr: config.RedisAddr})
		budget := app.RunBudget(mustPolicies(config, logger))
		opts.Dispatcher = queue.NewDispatcher(queueClient, 5, budget)
		logger.Info("dispatching pipelines to asynq", zap.String("redis", config.RedisAddr), zap.Duration("run_budget", budget))
	}

	svc, err := app.New(ctx, config, logger, opts)
	if err != nil {
		logger.Fatal("fail to init pipeline service", zap.Error(err))
	}

	if config.DispatchMode == "queue" && config.AMQPURL != "" {
		if err := notify.Relay(ctx, config.AMQPURL, config.AMQPExchange, svc.Hub, logger); err != nil {
			logger.Warn("live events from workers unavailable", zap.Error(err))
		}
	}

	j, err := janitor.New(svc.Orchestrator, config.JanitorSpec, config.StaleAfter, logger)
	if err != nil {
		logger.Fatal("fail to schedule janitor", zap.Error(err))
	}
	j.Start()

	if config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := handler.NewRouter(svc.Orchestrator, handler.RouterConfig{
		JWTSecret: config.JWTSecret,
		Events:    svc.Hub.ServeSSE(middleware.UserID, svc.Orchestrator.Status),
	}, logger)

	srv := &http.Server{
		Addr:    config.HTTPAddr,
		Handler: r,
	}
	go func() {
		logger.Info("forge server listening", zap.String("addr", config.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	j.Stop()
	cancelRuns()
	svc.Orchestrator.Wait()
	if queueClient != nil {
		_ = queueClient.Close()
	}
	svc.Close()
	_ = shutdownTracing(shutdownCtx)
}

func mustPolicies(config common.Config, logger *zap.Logger) map[string]pipeline.Policy {
	policies, err := pipeline.LoadPolicies(config.StagePolicyPath)
	if err != nil {
		logger.Fatal("fail to load stage policies", zap.Error(err))
	}
	return policies
}
