package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"kasirpos/backend/internal/cache"
	"kasirpos/backend/internal/config"
	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/httpapi"
	"kasirpos/backend/internal/jobs"
	"kasirpos/backend/internal/logger"
	"kasirpos/backend/internal/receipt"
	"kasirpos/backend/internal/service"
	"kasirpos/backend/internal/store"
	"kasirpos/backend/internal/store/memory"
	pgstore "kasirpos/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	defer func() { _ = log.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal("invalid security configuration", zap.Error(err))
	}
	calendar, err := receipt.LoadCalendar(cfg.StoreTimezone)
	if err != nil {
		log.Fatal("invalid STORE_TIMEZONE", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, log.Named("postgres"))
		if err != nil {
			log.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if cfg.MigrateOnStart {
			if err := pgstore.Migrate(pg.DB(), log.Named("migrate")); err != nil {
				log.Fatal("migrate database", zap.Error(err))
			}
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info("repository: in-memory")
	}

	idem := cache.SaleIdempotency(cache.NewMemorySaleIdempotency())
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSaleIdempotency(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("redis unavailable, using in-process idempotency keys", zap.Error(err))
		} else {
			idem = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("idempotency: redis")
		}
	} else {
		log.Info("idempotency: in-process")
	}

	opts, err := serviceOptions(cfg, calendar, idem, log.Named("service"))
	if err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	svc := service.New(repo, opts)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AuthIssuer, cfg.ManagerPIN)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log.Named("httpapi"))

	scheduler := jobs.New(repo, calendar, log.Named("jobs"), cfg.LowStockCron, cfg.CounterRetentionDays)
	if err := scheduler.Start(); err != nil {
		log.Fatal("start scheduler", zap.Error(err))
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("POS backend listening",
			zap.String("addr", cfg.Address()),
			zap.String("timezone", calendar.Location().String()),
			zap.String("oversell_policy", string(opts.Oversell)),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", zap.Error(err))
	}
	scheduler.Stop(shutdownCtx)

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Warn("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
}

func serviceOptions(cfg config.Config, calendar *receipt.Calendar, idem cache.SaleIdempotency, log *zap.Logger) (service.Options, error) {
	policy, ok := domain.ParseOversellPolicy(cfg.OversellPolicy)
	if !ok {
		return service.Options{}, fmt.Errorf("OVERSELL_POLICY must be clamp or reject, got %q", cfg.OversellPolicy)
	}
	return service.Options{
		Calendar: calendar,
		Oversell: policy,
		Profile: domain.StoreProfile{
			Name:    cfg.StoreName,
			Address: cfg.StoreAddress,
			Footer:  cfg.ReceiptFooter,
		},
		Idempotency:    idem,
		IdempotencyTTL: time.Duration(cfg.IdempotencyTTLSeconds) * time.Second,
		Logger:         log,
	}, nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "111111": true,
		"222222": true, "333333": true, "444444": true, "555555": true,
		"666666": true, "777777": true, "888888": true, "999999": true,
		"121212": true, "112233": true, "123123": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	for _, c := range pin {
		if c < '0' || c > '9' {
			return fmt.Errorf("PIN must contain digits only")
		}
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
