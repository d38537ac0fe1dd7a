package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/example/movienight/internal/application"
	"github.com/example/movienight/internal/config"
	httptransport "github.com/example/movienight/internal/http"
	"github.com/example/movienight/internal/imagecache"
	"github.com/example/movienight/internal/integrations"
	"github.com/example/movienight/internal/metrics"
	"github.com/example/movienight/internal/persistence/sqlite"
	"github.com/example/movienight/internal/persistence/sqlite/migration"
	"github.com/example/movienight/internal/ratelimit"
	"github.com/example/movienight/internal/recurrence"
)

// PIN attempts allowed per invite and client address inside the window.
const (
	pinAttemptLimit  = 5
	pinAttemptWindow = time.Minute
)

// app is the fully wired server. close releases everything it opened, in
// reverse order.
type app struct {
	handler     http.Handler
	maintenance *application.MaintenanceService
	closers     []func() error
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// acquireLock takes the exclusive <db>.lock so a second process cannot open
// the same database.
func acquireLock(dbPath string) (*flock.Flock, error) {
	lock := flock.New(dbPath + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("database %s is in use by another process", dbPath)
	}
	return lock, nil
}

func sqliteConfig(cfg config.Config) migration.SQLiteConfig {
	dbCfg := migration.DefaultSQLiteConfig(cfg.Database.Path)
	if cfg.Database.MaxOpenConns > 0 {
		dbCfg.MaxOpenConns = cfg.Database.MaxOpenConns
		if dbCfg.MaxIdleConns > dbCfg.MaxOpenConns {
			dbCfg.MaxIdleConns = dbCfg.MaxOpenConns
		}
	}
	if cfg.Database.BusyTimeout > 0 {
		dbCfg.BusyTimeout = cfg.Database.BusyTimeout
	}
	return dbCfg
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	lock, err := acquireLock(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, lock.Unlock)

	pool, err := sqlite.Open(ctx, sqliteConfig(cfg), logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pool.Close)

	users := sqlite.NewUserRepository(pool)
	sessions := sqlite.NewSessionRepository(pool)
	groups := sqlite.NewGroupRepository(pool)
	schedules := sqlite.NewScheduleRepository(pool)
	nights := sqlite.NewMovieNightRepository(pool)
	nominations := sqlite.NewNominationRepository(pool)
	invites := sqlite.NewInviteRepository(pool)
	settings := sqlite.NewSettingsRepository(pool)

	now := time.Now
	idGenerator := uuid.NewString
	loc := cfg.Schedule.Location()

	hub := integrations.New(integrations.Options{
		BreakerCooldown:       cfg.Integrations.BreakerCooldown,
		RequestTimeout:        cfg.Integrations.RequestTimeout,
		TMDBTimeout:           cfg.Integrations.TMDBTimeout,
		TMDBRequestsPerSecond: cfg.Integrations.TMDBRequestsPerSecond,
		PlexClientID:          cfg.Integrations.PlexClientID,
		PlexProduct:           cfg.Integrations.PlexProduct,
		Logger:                logger,
		StateListener:         metrics.RecordBreakerState,
	})

	settingsService := application.NewSettingsServiceWithLogger(settings, hub, now, logger)
	if err := settingsService.LoadIntoIntegrations(ctx); err != nil {
		logger.WarnContext(ctx, "integration settings not loaded", "error", err)
	}

	images, err := imagecache.Open(imagecache.Options{
		Dir:      cfg.Cache.Dir,
		InMemory: cfg.Cache.InMemory,
		TTL:      cfg.Cache.TTL,
		Fetcher:  imagecache.NewHTTPFetcher(&http.Client{Timeout: cfg.Integrations.TMDBTimeout}),
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open image cache: %w", err)
	}
	a.closers = append(a.closers, images.Close)

	signer := application.NewGuestTokenSigner(settingsService, now)
	authService := application.NewAuthServiceWithLogger(users, sessions, hub, signer, idGenerator, application.NewToken, now, cfg.Session.TTL, logger)
	userService := application.NewUserServiceWithLogger(users, idGenerator, now, logger)
	groupService := application.NewGroupServiceWithLogger(groups, users, idGenerator, now, logger)
	scheduleService := application.NewScheduleServiceWithLogger(groups, schedules, nights, recurrence.NewEngine(loc), idGenerator, now, logger)
	nightService := application.NewMovieNightServiceWithLogger(groups, nights, nominations, users, loc, idGenerator, now, logger)
	nominationService := application.NewNominationServiceWithLogger(groups, nights, nominations, hub, hub, loc, idGenerator, now, logger)
	inviteService := application.NewInviteService(application.InviteServiceConfig{
		Groups:         groups,
		Nights:         nights,
		Nominations:    nominations,
		Invites:        invites,
		Guests:         userService,
		Sessions:       authService,
		PINAttempts:    ratelimit.NewLimiter(ratelimit.NewMemoryStore(), pinAttemptLimit, pinAttemptWindow, now),
		Location:       loc,
		GuestTTL:       cfg.Session.GuestTTL,
		IDGenerator:    idGenerator,
		TokenGenerator: application.NewToken,
		Now:            now,
		Logger:         logger,
	})
	searchService := application.NewSearchService(hub, logger)
	imageService := application.NewImageService(images, hub, logger)
	statusService := application.NewStatusService(hub, logger)

	a.maintenance = &application.MaintenanceService{
		Schedules: scheduleService,
		Sessions:  authService,
		Attempts:  inviteService,
		Images:    imageService,
		Prober:    hub,
		Logger:    logger,
	}

	secure := cfg.Server.SecureCookies
	a.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Auth:               httptransport.NewAuthHandler(authService, secure, logger),
		Users:              httptransport.NewUserHandler(userService, logger),
		Groups:             httptransport.NewGroupHandler(groupService, logger),
		Schedules:          httptransport.NewScheduleHandler(scheduleService, logger),
		MovieNights:        httptransport.NewMovieNightHandler(nightService, logger),
		Nominations:        httptransport.NewNominationHandler(nominationService, searchService, logger),
		Invites:            httptransport.NewInviteHandler(inviteService, secure, logger),
		Admin:              httptransport.NewAdminHandler(settingsService, statusService, imageService, logger),
		Sessions:           authService,
		AllowedOrigins:     cfg.Server.AllowedOrigins,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		SecureCookies:      secure,
		Logger:             logger,
		Health:             pool.Ping,
	})
	return a, nil
}
