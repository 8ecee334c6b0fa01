// Package main запускает HTTP-сервер сервиса бронирования.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/yenabook/internal/config"
	"github.com/mmeshcher/yenabook/internal/handler"
	"github.com/mmeshcher/yenabook/internal/logger"
	"github.com/mmeshcher/yenabook/internal/metrics"
	"github.com/mmeshcher/yenabook/internal/middleware"
	"github.com/mmeshcher/yenabook/internal/notify"
	"github.com/mmeshcher/yenabook/internal/repository"
	"github.com/mmeshcher/yenabook/internal/service"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Production())
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	sugar := log.Sugar()

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, "yenabook")

	var senders []notify.Sender
	if cfg.NotifyWebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.NotifyWebhookURL))
	}
	if cfg.KafkaBrokers != "" {
		kafkaSender := notify.NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaSender.Close()
		senders = append(senders, kafkaSender)
	}
	queue := notify.NewQueue(cfg.NotifyQueueSize, log, m, senders...)

	svc := service.NewService(repo, queue, m, log,
		service.WithDefaultFee(cfg.DefaultFeePercentage),
		service.WithSettlementDedup(cfg.SettlementDedup),
	)
	defer svc.Close()

	var limiter middleware.Limiter = middleware.NewLocalLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		limiter = middleware.NewRedisLimiter(rdb, cfg.RateLimitRPS*60, time.Minute)
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, log, authMiddleware)

	if cfg.GatewaySecret == "" {
		log.Warn("gateway secret is not set, settlement endpoint rejects all requests")
	}

	r := h.SetupRouter(handler.RouterOptions{
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		RateLimit:     middleware.RateLimit(limiter, log, true),
		GatewaySecret: cfg.GatewaySecret,
	})

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Доставка уведомлений о новых записях
	g.Go(func() error {
		queue.Run(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting yenabook server", "addr", cfg.RunAddress, "notifiers", len(senders))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("application terminated with error", zap.Error(err))
	}
}
