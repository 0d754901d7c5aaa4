// Package main запускает HTTP-сервер сервиса оформления свадебных заказов.
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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/weddingcart/internal/booking"
	"github.com/mmeshcher/weddingcart/internal/cartstore"
	"github.com/mmeshcher/weddingcart/internal/config"
	"github.com/mmeshcher/weddingcart/internal/contract"
	"github.com/mmeshcher/weddingcart/internal/coupon"
	"github.com/mmeshcher/weddingcart/internal/fees"
	"github.com/mmeshcher/weddingcart/internal/gateway"
	"github.com/mmeshcher/weddingcart/internal/handler"
	"github.com/mmeshcher/weddingcart/internal/middleware"
	"github.com/mmeshcher/weddingcart/internal/payment"
	"github.com/mmeshcher/weddingcart/internal/repository"
	"github.com/mmeshcher/weddingcart/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
	defer rdb.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		sugar.Fatalw("redis connection error", "addr", cfg.RedisAddress, "error", err.Error())
	}
	cancelPing()

	if cfg.GatewayKey == "" {
		sugar.Warn("payment gateway key is empty, payments will be rejected by the gateway")
	}
	gw := gateway.NewClient(cfg.GatewayAddress, cfg.GatewayKey)

	svc := service.NewService(service.Deps{
		Repo:            repo,
		Carts:           cartstore.NewRedisStore(rdb, cartstore.DefaultTTL),
		Fees:            fees.NewResolver(repo, logger),
		Codes:           coupon.NewValidator(repo, time.Now),
		Templates:       contract.NewRenderer(repo, logger),
		Payments:        payment.NewOrchestrator(gw, repo, logger),
		Bookings:        booking.NewPoller(repo, cfg.BookingPollAttempts, cfg.BookingPollInterval, logger),
		ServiceFeeCents: cfg.ServiceFeeCents,
		Logger:          logger,
	})
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	if cfg.AuthSecret == "" {
		sugar.Warn("auth secret is empty, issued tokens will not survive a restart")
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	h := handler.NewHandler(svc, logger, authMiddleware, limiter, cfg.WebhookSecret)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Очистка неактивных клиентов ограничителя частоты
	if limiter != nil {
		g.Go(func() error {
			return limiter.Run(ctx)
		})
	}

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting weddingcart server", "addr", cfg.RunAddress)
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
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
