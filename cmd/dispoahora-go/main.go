// Package main is the entrypoint for the dispoahora-go server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MahdiBaghbani/dispoahora-go/internal/components/api"
	"github.com/MahdiBaghbani/dispoahora-go/internal/components/identity"
	"github.com/MahdiBaghbani/dispoahora-go/internal/components/profiles"
	"github.com/MahdiBaghbani/dispoahora-go/internal/components/status"
	"github.com/MahdiBaghbani/dispoahora-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/cache"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/config"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/deps"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/http/realip"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/server"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/store"

	// Register cache drivers
	_ "github.com/MahdiBaghbani/dispoahora-go/internal/platform/cache/loader"
	// Register store drivers
	_ "github.com/MahdiBaghbani/dispoahora-go/internal/platform/store/json"
	_ "github.com/MahdiBaghbani/dispoahora-go/internal/platform/store/mirror"
	_ "github.com/MahdiBaghbani/dispoahora-go/internal/platform/store/sqlite"
	// Register HTTP services
	_ "github.com/MahdiBaghbani/dispoahora-go/internal/services/loader"
)

const sessionSweepInterval = 5 * time.Minute

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", "", "Operating mode: strict or dev (overrides config)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	loggingAllowSensitive := flag.String("logging-allow-sensitive", "", "Allow sensitive values in logs: true or false (overrides config)")
	storeDriver := flag.String("store-driver", "", "Store driver: sqlite, json or mirror (overrides config)")
	dataDir := flag.String("data-dir", "", "Data directory (overrides config)")
	cacheDriver := flag.String("cache-driver", "", "Cache driver: memory or valkey (overrides config)")
	repairStale := flag.String("repair-stale", "", "Write Busy back for expired Free rows: true or false (overrides config)")
	flag.Parse()

	// Bootstrap logger for config loading errors
	bootstrapLogger := logutil.New(os.Stdout, "info")

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:            listenAddr,
			LoggingLevel:          loggingLevel,
			LoggingAllowSensitive: loggingAllowSensitive,
			StoreDriver:           storeDriver,
			StoreDataDir:          dataDir,
			CacheDriver:           cacheDriver,
			RepairStale:           repairStale,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logutil.New(os.Stdout, cfg.Logging.Level)
	slog.SetDefault(logger)

	logger.Info("effective configuration", "config", cfg.Redacted())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver, profileStore, err := store.Open(ctx, &store.DriverConfig{
		Driver:  cfg.Store.Driver,
		DataDir: cfg.Store.DataDir,
		Mirror:  store.MirrorConfig{IncludeLocation: cfg.Store.Mirror.IncludeLocation},
	})
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	logger.Info("store opened", "driver", driver.Name(), "data_dir", cfg.Store.DataDir)

	cacheInstance, err := cache.NewFromConfig(cfg.Cache.Driver, cfg.CacheDriverConfig(), logger)
	if err != nil {
		logger.Error("failed to create cache", "driver", cfg.Cache.Driver, "error", err)
		driver.Close()
		os.Exit(1)
	}

	proxies, err := realip.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		logger.Error("invalid trusted proxies", "error", err)
		os.Exit(1)
	}

	profileRepo := profiles.NewRepo(profileStore, cacheInstance, cfg.ProfileCacheTTL(), logger)

	users := identity.NewMemoryUserRepo()
	var sessions identity.SessionRepo = identity.NewMemorySessionRepo()
	if cfg.Auth.SessionStore == "cache" {
		sessions = identity.NewCacheSessionRepo(cacheInstance)
	}
	userAuth := identity.NewUserAuth(0)

	provision := func(ctx context.Context, u *identity.User, s identity.SeededUser) error {
		_, err := profileRepo.EnsureProfile(ctx, profiles.Seed{
			ID:          u.ID,
			Username:    u.Username,
			DisplayName: s.DisplayName,
			AvatarURL:   s.AvatarURL,
			Latitude:    s.Latitude,
			Longitude:   s.Longitude,
		})
		return err
	}
	seeds := make([]identity.SeededUser, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		seeds = append(seeds, identity.SeededUser{
			Username:    u.Username,
			Password:    u.Password,
			DisplayName: u.DisplayName,
			AvatarURL:   u.AvatarURL,
			Latitude:    u.Latitude,
			Longitude:   u.Longitude,
		})
	}
	created, err := identity.NewBootstrap(users, userAuth, provision, logger).Run(ctx, seeds)
	if err != nil {
		logger.Error("failed to seed users", "error", err)
		os.Exit(1)
	}
	logger.Info("seeded users", "configured", len(seeds), "created", created)

	registry := status.NewRegistry(
		profiles.NewAdapter(profileRepo),
		status.Config{
			RepairStale:  cfg.Status.RepairStale,
			WriteTimeout: cfg.WriteTimeout(),
			TickInterval: cfg.TickInterval(),
			Clock:        time.Now,
		},
		status.Announcer(profileRepo.UpdateActivity, logger),
		logger,
	)

	checks := map[string]api.HealthCheck{
		"store": func(ctx context.Context) error {
			_, err := profileStore.ListProfiles(ctx)
			return err
		},
	}
	if p, ok := cacheInstance.(interface{ Ping(context.Context) error }); ok {
		checks["cache"] = p.Ping
	}

	d := &deps.Deps{
		Users:        users,
		Sessions:     sessions,
		UserAuth:     userAuth,
		Profiles:     profileRepo,
		Status:       registry,
		Cache:        cacheInstance,
		RealIP:       proxies,
		Clock:        time.Now,
		HealthChecks: checks,
		Config:       cfg,
	}

	services, err := service.Instantiate(d, cfg.ServiceConfig, logger)
	if err != nil {
		logger.Error("failed to create services", "error", err)
		os.Exit(1)
	}

	srv, err := server.New(cfg, d, logger, services)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	go identity.SweepExpired(ctx, sessions, sessionSweepInterval)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("server started, press Ctrl+C to stop", "addr", cfg.ListenAddr)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	exitCode := 0
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		exitCode = 1
	}

	// Let in-flight status writes land before the store goes away.
	registry.Wait()

	if err := cacheInstance.Close(); err != nil {
		logger.Warn("cache close failed", "error", err)
	}
	if err := driver.Close(); err != nil {
		logger.Warn("store close failed", "error", err)
	}

	logger.Info("server stopped")
	os.Exit(exitCode)
}
