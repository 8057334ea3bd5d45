package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/creditstudio/CreditStudio/internal/config"
	"github.com/creditstudio/CreditStudio/internal/db"
	"github.com/creditstudio/CreditStudio/internal/generation"
	"github.com/creditstudio/CreditStudio/internal/http/api/front"
	"github.com/creditstudio/CreditStudio/internal/ledger"
	"github.com/creditstudio/CreditStudio/internal/logging"
	"github.com/creditstudio/CreditStudio/internal/models"
	"github.com/creditstudio/CreditStudio/internal/pricing"
	"github.com/creditstudio/CreditStudio/internal/provider"
	"github.com/creditstudio/CreditStudio/internal/settings"
	"github.com/creditstudio/CreditStudio/internal/workflow"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Runtime holds the wired components of a running process.
type Runtime struct {
	Config      *config.Config
	DB          *gorm.DB
	Resolver    *pricing.Resolver
	Ledger      *ledger.Ledger
	Providers   *provider.Registry
	Engine      *workflow.Engine
	Generations *generation.Service

	redis     *redis.Client
	logCloser io.Closer
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	appCfg, errLoad := config.LoadConfig(config.ResolveConfigPath(cfg.ConfigPath))
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(appCfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn.WithContext(ctx))
}

// Bootstrap loads configuration and wires every service. Callers must Close the runtime.
func Bootstrap(ctx context.Context, cfg config.AppConfig) (*Runtime, error) {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	appCfg, errLoad := config.LoadConfig(configPath)
	if errLoad != nil {
		return nil, errLoad
	}
	return bootstrapWith(ctx, appCfg)
}

func bootstrapWith(ctx context.Context, appCfg *config.Config) (*Runtime, error) {
	logCloser, errLog := logging.Setup(appCfg.Logging)
	if errLog != nil {
		return nil, errLog
	}
	rt := &Runtime{Config: appCfg, logCloser: logCloser}

	conn, errOpen := db.Open(appCfg.Database.DSN)
	if errOpen != nil {
		_ = rt.Close()
		return nil, errOpen
	}
	rt.DB = conn
	if errMigrate := db.Migrate(conn.WithContext(ctx)); errMigrate != nil {
		_ = rt.Close()
		return nil, errMigrate
	}

	if errRefresh := settings.Refresh(ctx, conn); errRefresh != nil {
		log.WithError(errRefresh).Warn("settings refresh failed, using file configuration")
	}
	settings.ApplyPricingOverrides(&appCfg.Pricing)

	client := &http.Client{Timeout: appCfg.Workflow.ProviderTimeout}
	providers, errProviders := provider.BuildRegistry(appCfg.Providers, client)
	if errProviders != nil {
		_ = rt.Close()
		return nil, errProviders
	}
	if errSync := ensureProviders(ctx, conn, appCfg.Providers); errSync != nil {
		_ = rt.Close()
		return nil, errSync
	}
	rt.Providers = providers

	var locker workflow.Locker
	if appCfg.Redis.Enabled() {
		rt.redis = redis.NewClient(&redis.Options{
			Addr:     appCfg.Redis.Addr,
			Password: appCfg.Redis.Password,
			DB:       appCfg.Redis.DB,
		})
		if errPing := rt.redis.Ping(ctx).Err(); errPing != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("redis ping: %w", errPing)
		}
		locker = workflow.NewRedisLocker(rt.redis, appCfg.Workflow.LockExpiry)
		log.Infof("chat locks backed by redis at %s", appCfg.Redis.Addr)
	} else {
		locker = workflow.NewLocalLocker()
	}

	rt.Resolver = pricing.NewResolver(conn, appCfg.Pricing)
	rt.Ledger = ledger.New(conn)
	rt.Engine = workflow.NewEngine(conn, rt.Resolver, rt.Ledger, providers, locker, appCfg.Workflow)
	rt.Generations = generation.NewService(conn, rt.Resolver, rt.Ledger, providers, appCfg.Workflow.ProviderTimeout)
	return rt, nil
}

// ensureProviders creates a provider row for every configured adapter that has none.
// Existing rows keep their is_active flag.
func ensureProviders(ctx context.Context, conn *gorm.DB, cfgs []config.ProviderConfig) error {
	for _, cfg := range cfgs {
		name := strings.TrimSpace(cfg.Name)
		if name == "" {
			continue
		}
		row := models.Provider{Name: name, DisplayName: name, IsActive: true}
		if errSync := conn.WithContext(ctx).Where("name = ?", name).FirstOrCreate(&row).Error; errSync != nil {
			return fmt.Errorf("sync provider %s: %w", name, errSync)
		}
	}
	return nil
}

// Close releases the runtime's connections.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.redis != nil {
		errs = append(errs, rt.redis.Close())
	}
	if rt.DB != nil {
		if sqlDB, errDB := rt.DB.DB(); errDB == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	if rt.logCloser != nil {
		errs = append(errs, rt.logCloser.Close())
	}
	return errors.Join(errs...)
}

// NewRouter builds the gin engine serving the API, /healthz and /metrics.
func NewRouter(rt *Runtime) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), logging.RequestID(), logging.AccessLog())

	engine.GET("/healthz", func(c *gin.Context) {
		sqlDB, errDB := rt.DB.DB()
		if errDB == nil {
			errDB = sqlDB.PingContext(c.Request.Context())
		}
		if errDB != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": errDB.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	front.RegisterFrontRoutes(engine, front.Deps{
		JWT:         rt.Config.JWT,
		Quoter:      rt.Resolver,
		Ledger:      rt.Ledger,
		Engine:      rt.Engine,
		Generations: rt.Generations,
	})
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return engine
}

// RunServer boots the API server and blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	rt, errBoot := Bootstrap(ctx, cfg)
	if errBoot != nil {
		return errBoot
	}
	defer func() {
		if errClose := rt.Close(); errClose != nil {
			log.WithError(errClose).Warn("shutdown: close runtime")
		}
	}()

	gin.SetMode(rt.Config.Server.Mode)
	workflow.NewStaleMessageSweeper(rt.DB, rt.Config.Workflow).Start(ctx)

	srv := &http.Server{
		Addr:              rt.Config.Server.Addr,
		Handler:           NewRouter(rt),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errServe := make(chan error, 1)
	go func() {
		log.Infof("listening on %s (dialect=%s, providers=%v)", srv.Addr, db.DialectName(rt.DB), rt.Providers.Names())
		errServe <- srv.ListenAndServe()
	}()

	select {
	case errListen := <-errServe:
		if errors.Is(errListen, http.ErrServerClosed) {
			return nil
		}
		return errListen
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.Config.Workflow.ProviderTimeout)
	defer cancel()
	log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
