package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/pbl_scheduler/internal/clock"
	"github.com/Freeeeeet/pbl_scheduler/internal/config"
	"github.com/Freeeeeet/pbl_scheduler/internal/controller"
	"github.com/Freeeeeet/pbl_scheduler/internal/controller/handlers"
	"github.com/Freeeeeet/pbl_scheduler/internal/partner"
	"github.com/Freeeeeet/pbl_scheduler/internal/repository"
	"github.com/Freeeeeet/pbl_scheduler/internal/repository/memory"
	"github.com/Freeeeeet/pbl_scheduler/internal/repository/postgres"
	"github.com/Freeeeeet/pbl_scheduler/internal/service"
)

const shutdownTimeout = 10 * time.Second

// App связывает хранилище, сервисы, HTTP и фоновые задачи
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     repository.Store
	server    *http.Server
	scheduler *Scheduler
	closers   []func()
}

// New собирает приложение по конфигурации
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}
	clk := clock.Real()

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	aliases, err := partner.LoadAliases(cfg.PayloadAliasesFile)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load payload aliases: %w", err)
	}

	provider, err := a.newProvider(ctx, store, aliases, clk)
	if err != nil {
		a.Close()
		return nil, err
	}

	prune := service.DefaultPruneConfig()
	prune.Enabled = cfg.AssignmentPrune

	assignments := service.NewAssignmentService(store, aliases, prune, clk, logger)
	availability := service.NewAvailabilityService(store, provider, assignments, clk, cfg.Location, logger)
	slots := service.NewSlotService(store, clk, cfg.Location, logger)
	bookings := service.NewBookingService(store, availability, clk, cfg.Location, logger)
	tokens := service.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL, clk)
	users := service.NewUserService(store, provider, assignments, tokens, clk, logger)
	facultySync := service.NewFacultySyncService(store, provider, clk, logger)

	a.scheduler, err = NewScheduler(facultySync, cfg.FacultySyncCron, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	h := handlers.NewHandlers(users, slots, bookings, availability, clk, cfg.Location, logger)
	a.server = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           controller.NewHTTPController(h, cfg.CORSOrigins, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return a, nil
}

// openStore открывает хранилище и применяет миграции для postgres
func (a *App) openStore(ctx context.Context) (repository.Store, error) {
	if a.cfg.Storage == config.StorageMemory {
		a.logger.Warn("Using in-memory storage, data is lost on restart")
		return memory.NewStore(), nil
	}

	pool, err := postgres.Connect(ctx, a.cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pool.Close)

	if err := Migrate(ctx, pool, a.logger); err != nil {
		return nil, err
	}
	return postgres.NewStore(pool), nil
}

// newProvider выбирает партнёрский провайдер по SSO_MODE и оборачивает его кэшем
func (a *App) newProvider(ctx context.Context, store repository.Store, aliases *partner.FieldAliases, clk clock.Clock) (partner.ExternalProfileProvider, error) {
	var (
		base partner.ExternalProfileProvider
		ttl  time.Duration
	)
	switch a.cfg.SSOMode {
	case partner.ModeReal:
		base = partner.NewHTTPProvider(a.cfg.PBLAPIURL, a.cfg.PBLAPIKey, a.cfg.PBLRateLimit, aliases, a.logger)
		ttl = partner.ProfileTTLReal
	default:
		base = partner.NewMockProvider(store)
		ttl = partner.ProfileTTLMock
	}

	var cache partner.ProfileCache = partner.NewMemoryCache(clk)
	if a.cfg.RedisURL != "" {
		rc, err := partner.NewRedisCache(ctx, a.cfg.RedisURL, a.logger)
		if err != nil {
			// Кэш не критичен: продолжаем с кэшем в памяти
			a.logger.Warn("Redis unavailable, using in-process profile cache", zap.Error(err))
		} else {
			cache = rc
			a.closers = append(a.closers, func() { _ = rc.Close() })
		}
	}

	a.logger.Info("Partner provider selected", zap.String("mode", a.cfg.SSOMode), zap.Duration("profile_ttl", ttl))
	return partner.NewCachedProvider(base, cache, ttl), nil
}

// Run обслуживает HTTP до отмены ctx, затем корректно останавливается
func (a *App) Run(ctx context.Context) error {
	a.scheduler.Start(ctx)
	defer a.scheduler.Stop()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return nil
}

// Close освобождает ресурсы в обратном порядке
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
