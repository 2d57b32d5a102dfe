// Package container provides dependency injection using Uber FX
package container

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/sentinelsec/sentinel/internal/infrastructure/config"
	"github.com/sentinelsec/sentinel/internal/infrastructure/http/server"
	"github.com/sentinelsec/sentinel/internal/infrastructure/monitoring"
	"github.com/sentinelsec/sentinel/internal/infrastructure/persistence/memory"
	redisstore "github.com/sentinelsec/sentinel/internal/infrastructure/persistence/redis"
	"github.com/sentinelsec/sentinel/internal/infrastructure/security"
	"github.com/sentinelsec/sentinel/pkg/healthcheck"
	"github.com/sentinelsec/sentinel/pkg/logger"
)

// Module provides all dependency injection modules
var Module = fx.Options(
	ConfigModule,
	LoggerModule,
	MetricsModule,
	RedisModule,
	StoreModule,
	SecurityModule,
	MonitoringModule,
	HealthModule,
	HTTPModule,
	LifecycleModule,
)

// ConfigModule provides configuration
var ConfigModule = fx.Provide(
	func() (*config.Config, error) {
		return config.Load("")
	},
)

// LoggerModule provides logging
var LoggerModule = fx.Provide(
	func(cfg *config.Config) (*zap.Logger, error) {
		return logger.New(logger.Config{
			Level:  cfg.App.LogLevel,
			Format: cfg.App.LogFormat,
			// Debug encoding never ships to production.
			Development: cfg.App.Debug && !cfg.IsProduction(),
		})
	},
)

// MetricsModule provides a dedicated prometheus registry
var MetricsModule = fx.Provide(
	func() *prometheus.Registry {
		reg := prometheus.NewRegistry()
		return reg
	},
	func(reg *prometheus.Registry) prometheus.Registerer { return reg },
	func(reg *prometheus.Registry) prometheus.Gatherer { return reg },
)

// RedisModule provides the shared Redis client, nil when Redis is disabled.
var RedisModule = fx.Provide(
	func(cfg *config.Config, log *zap.Logger, lc fx.Lifecycle) *goredis.Client {
		if !cfg.Redis.Enabled {
			return nil
		}

		client := goredis.NewClient(&goredis.Options{
			Addr:         fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.Database,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			PoolSize:     cfg.Redis.PoolSize,
		})

		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					// The audit logger degrades to process logging, so a
					// missing Redis is a warning rather than a startup failure.
					log.Warn("Redis unreachable at startup, audit persistence degraded", zap.Error(err))
				}
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		})

		return client
	},
)

// StoreModule provides the audit store, Redis-backed when configured and
// in-memory otherwise.
var StoreModule = fx.Provide(
	func(cfg *config.Config, client *goredis.Client, log *zap.Logger) security.AuditStore {
		if client == nil {
			log.Info("Using in-memory audit store")
			return memory.NewAuditStore(0)
		}

		log.Info("Using Redis audit store",
			zap.String("host", cfg.Redis.Host),
			zap.Int("port", cfg.Redis.Port))
		return redisstore.NewAuditStore(client, log, cfg.Audit.Retention)
	},
)

// SecurityModule provides the authentication-defense core
var SecurityModule = fx.Provide(
	func(cfg *config.Config, store security.AuditStore, log *zap.Logger) *security.AuditLogger {
		return security.NewAuditLogger(log, store, cfg.Audit)
	},
	func(cfg *config.Config, audit *security.AuditLogger, log *zap.Logger) *security.BruteForceProtection {
		return security.NewBruteForceProtection(cfg.BruteForce, nil, audit, log)
	},
	func(audit *security.AuditLogger, log *zap.Logger) *security.IPManager {
		return security.NewIPManager(audit, log)
	},
	func(cfg *config.Config, audit *security.AuditLogger, bf *security.BruteForceProtection, ips *security.IPManager) *security.SecurityDashboard {
		return security.NewSecurityDashboard(cfg.Audit, audit, bf, ips)
	},
)

// MonitoringModule provides the security monitor
var MonitoringModule = fx.Provide(
	func(cfg *config.Config, audit *security.AuditLogger, bf *security.BruteForceProtection, ips *security.IPManager, log *zap.Logger, reg prometheus.Registerer) *monitoring.SecurityMonitor {
		return monitoring.NewSecurityMonitor(cfg.Monitoring, audit, bf, ips, log, reg)
	},
)

// HealthModule provides health and readiness checks over the live
// collaborators: Redis connectivity when enabled and an audit store probe.
var HealthModule = fx.Provide(
	func(cfg *config.Config, client *goredis.Client, store security.AuditStore, log *zap.Logger) *healthcheck.HealthCheck {
		hc := healthcheck.New(cfg.App.Version, log)
		if !cfg.IsProduction() {
			// Outside production every probe reflects live state.
			hc.SetCacheTTL(0)
		}

		if client != nil {
			hc.Register("redis", healthcheck.NewRedisChecker(client))
		}

		hc.Register("audit_store", healthcheck.CheckerFunc(func(ctx context.Context) healthcheck.Check {
			start := time.Now()
			check := healthcheck.Check{LastChecked: start}

			_, err := store.Query(ctx, security.AuditFilters{Limit: 1})
			check.Duration = time.Since(start)
			if err != nil {
				check.Status = healthcheck.StatusDegraded
				check.Message = err.Error()
				return check
			}
			check.Status = healthcheck.StatusHealthy
			return check
		}))

		return hc
	},
)

// HTTPModule provides the HTTP server
var HTTPModule = fx.Provide(
	func(
		cfg *config.Config,
		log *zap.Logger,
		bf *security.BruteForceProtection,
		ips *security.IPManager,
		audit *security.AuditLogger,
		dashboard *security.SecurityDashboard,
		monitor *monitoring.SecurityMonitor,
		health *healthcheck.HealthCheck,
		gatherer prometheus.Gatherer,
	) *server.Server {
		return server.New(cfg, log, bf, ips, audit, dashboard, monitor, health, gatherer)
	},
)

// LifecycleModule wires process start and stop: the HTTP listener and the
// periodic attempt-record sweep.
var LifecycleModule = fx.Invoke(
	func(lc fx.Lifecycle, srv *server.Server, bf *security.BruteForceProtection, log *zap.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				bf.Start()
				srv.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				bf.Stop()
				if err := srv.Stop(ctx); err != nil {
					log.Warn("HTTP server shutdown error", zap.Error(err))
				}
				return nil
			},
		})
	},
)
