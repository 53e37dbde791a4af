package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/soldierhq/helpergate/internal/access"
	"github.com/soldierhq/helpergate/internal/config"
	"github.com/soldierhq/helpergate/internal/db"
	adminhttp "github.com/soldierhq/helpergate/internal/http/api/admin"
	"github.com/soldierhq/helpergate/internal/http/api/front"
	"github.com/soldierhq/helpergate/internal/logging"
	"github.com/soldierhq/helpergate/internal/ratelimit"
	"github.com/soldierhq/helpergate/internal/security"
	internalsettings "github.com/soldierhq/helpergate/internal/settings"
	"github.com/soldierhq/helpergate/internal/store"
	"gorm.io/gorm"
)

// settingsReloadInterval controls how often other replicas' setting changes are picked up.
const settingsReloadInterval = 30 * time.Second

// Migrate opens the database and runs migrations. With seedSettings, the
// configured rate limit values are copied into settings rows that are still
// missing, so administrators can edit them at runtime.
func Migrate(ctx context.Context, cfg config.AppConfig, seedSettings bool) error {
	serverCfg, errLoad := config.Load(config.ResolveConfigPath(cfg.ConfigPath))
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(serverCfg.DatabaseDSN)
	if errOpen != nil {
		return errOpen
	}
	conn = conn.WithContext(ctx)
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if !seedSettings {
		return nil
	}
	return db.SeedSettings(conn, settingsSeed(serverCfg.RateLimit))
}

// Components holds the wired services behind the HTTP engine.
type Components struct {
	DB            *gorm.DB
	Billing       *store.BillingStore
	Conversations *store.ConversationStore
	Access        *access.Service
	Limiter       *ratelimit.Manager
	Sessions      *security.SessionManager
}

// NewComponents builds stores and services on an open, migrated connection.
func NewComponents(conn *gorm.DB, serverCfg config.ServerConfig) *Components {
	billing := store.NewBillingStore(conn)
	defaults := rateLimitDefaults(serverCfg.RateLimit)
	return &Components{
		DB:            conn,
		Billing:       billing,
		Conversations: store.NewConversationStore(conn),
		Access:        access.NewService(billing, billing, nowUTC),
		Limiter: ratelimit.NewManager(func() ratelimit.SettingsConfig {
			return ratelimit.LoadSettingsConfig(defaults)
		}, nil, nil),
		Sessions: security.NewSessionManager(serverCfg.JWT.Secret, serverCfg.JWT.Expiry),
	}
}

// NewEngine registers every route on a fresh gin engine.
func NewEngine(c *Components, serverCfg config.ServerConfig) *gin.Engine {
	engine := gin.New()
	engine.Use(logging.GinLogger(), logging.GinRecovery())
	adminhttp.RegisterAdminRoutes(engine, c.DB, c.Billing, serverCfg.Admin)
	front.RegisterFrontRoutes(engine, front.Deps{
		Access:        c.Access,
		Conversations: c.Conversations,
		Limiter:       c.Limiter,
		Sessions:      c.Sessions,
	})
	return engine
}

// RunServer boots the HTTP server and blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	serverCfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}

	logCloser, errLog := logging.Setup(logging.Options{
		Debug:  serverCfg.Debug,
		ToFile: serverCfg.LoggingToFile,
		Dir:    serverCfg.LogDir,
	})
	if errLog != nil {
		return errLog
	}
	defer func() {
		if errClose := logCloser.Close(); errClose != nil {
			fmt.Printf("close log file: %v\n", errClose)
		}
	}()

	if info, errDescribe := describeDSN(serverCfg.DatabaseDSN); errDescribe == nil {
		log.Infof("database: %s", info)
	}
	if serverCfg.JWT.Secret == "" {
		log.Warn("jwt secret is empty; session routes will reject every request")
	}
	if serverCfg.Admin.TokenHash == "" {
		log.Warn("admin token hash is empty; admin routes are disabled")
	}

	conn, errOpen := db.Open(serverCfg.DatabaseDSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if _, errReload := internalsettings.Reload(ctx, conn); errReload != nil {
		return errReload
	}
	internalsettings.StartAutoReload(ctx, conn, settingsReloadInterval, func(err error) {
		log.WithError(err).Warn("settings: reload failed")
	})

	components := NewComponents(conn, serverCfg)
	defer func() {
		if errClose := components.Limiter.Close(); errClose != nil {
			log.WithError(errClose).Warn("ratelimit: close failed")
		}
	}()

	srv := &http.Server{
		Addr:              net.JoinHostPort(serverCfg.Host, strconv.Itoa(serverCfg.Port)),
		Handler:           NewEngine(components, serverCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var errServe error
		if serverCfg.TLS.Enable {
			log.Infof("starting https server on %s", srv.Addr)
			errServe = srv.ListenAndServeTLS(serverCfg.TLS.Cert, serverCfg.TLS.Key)
		} else {
			log.Infof("starting http server on %s", srv.Addr)
			errServe = srv.ListenAndServe()
		}
		if errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
		close(errCh)
	}()

	select {
	case errServe, ok := <-errCh:
		if ok {
			return errServe
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
		log.Errorf("server shutdown error: %v", errShutdown)
		return errShutdown
	}
	log.Info("server stopped")
	return nil
}

// rateLimitDefaults maps the YAML rate limit block onto limiter settings.
func rateLimitDefaults(cfg config.RateLimitConfig) ratelimit.SettingsConfig {
	return ratelimit.SettingsConfig{
		Limit:          cfg.Limit,
		PerHelperLimit: cfg.PerHelperLimit,
		RedisEnabled:   cfg.RedisEnabled,
		RedisAddr:      cfg.RedisAddr,
		RedisPassword:  cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		RedisPrefix:    cfg.RedisPrefix,
	}
}

// settingsSeed lists the values Migrate writes into missing settings rows.
func settingsSeed(cfg config.RateLimitConfig) map[string]any {
	prefix := cfg.RedisPrefix
	if prefix == "" {
		prefix = internalsettings.DefaultRateLimitRedisPrefix
	}
	return map[string]any{
		internalsettings.RateLimitKey:              cfg.Limit,
		internalsettings.RateLimitPerHelperKey:     cfg.PerHelperLimit,
		internalsettings.RateLimitRedisEnabledKey:  cfg.RedisEnabled,
		internalsettings.RateLimitRedisAddrKey:     cfg.RedisAddr,
		internalsettings.RateLimitRedisPasswordKey: cfg.RedisPassword,
		internalsettings.RateLimitRedisDBKey:       cfg.RedisDB,
		internalsettings.RateLimitRedisPrefixKey:   prefix,
	}
}

// nowUTC returns the current UTC time.
func nowUTC() time.Time { return time.Now().UTC() }
