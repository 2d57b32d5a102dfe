// Package server exposes the security core over HTTP: the read-only
// reporting surface plus administrative block/unblock/unlock operations.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sentinelsec/sentinel/internal/infrastructure/config"
	"github.com/sentinelsec/sentinel/internal/infrastructure/http/middleware"
	"github.com/sentinelsec/sentinel/internal/infrastructure/monitoring"
	"github.com/sentinelsec/sentinel/internal/infrastructure/security"
	"github.com/sentinelsec/sentinel/pkg/errors"
	"github.com/sentinelsec/sentinel/pkg/healthcheck"
)

// Server is the HTTP front for the security core.
type Server struct {
	cfg        *config.Config
	logger     *zap.Logger
	engine     *gin.Engine
	httpServer *http.Server

	bruteForce *security.BruteForceProtection
	ips        *security.IPManager
	audit      *security.AuditLogger
	dashboard  *security.SecurityDashboard
	monitor    *monitoring.SecurityMonitor
	health     *healthcheck.HealthCheck
}

// New creates the HTTP server and registers all routes.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	bruteForce *security.BruteForceProtection,
	ips *security.IPManager,
	audit *security.AuditLogger,
	dashboard *security.SecurityDashboard,
	monitor *monitoring.SecurityMonitor,
	health *healthcheck.HealthCheck,
	gatherer prometheus.Gatherer,
) *Server {
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if len(cfg.Server.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
			logger.Warn("Invalid trusted proxy configuration", zap.Error(err))
		}
	}
	engine.Use(gin.Recovery())
	engine.Use(middleware.ClientDefense(cfg.BruteForce, bruteForce, ips, audit, monitor, logger))

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		engine:     engine,
		bruteForce: bruteForce,
		ips:        ips,
		audit:      audit,
		dashboard:  dashboard,
		monitor:    monitor,
		health:     health,
	}

	engine.GET("/health", health.Handler())
	engine.GET("/health/live", health.LivenessHandler())
	engine.GET("/health/ready", health.ReadinessHandler())
	if gatherer != nil && cfg.Monitoring.EnableMetrics {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := engine.Group("/api/v1/security")
	{
		api.GET("/overview", s.handleOverview)
		api.GET("/metrics", s.handleSecurityMetrics)
		api.GET("/bruteforce/stats", s.handleBruteForceStats)
		api.GET("/audit", s.handleAuditLogs)

		api.GET("/ips/blocked", s.handleBlockedIPs)
		api.GET("/ips/whitelisted", s.handleWhitelistedIPs)
		api.POST("/ips/block", s.handleBlockIP)
		api.POST("/ips/unblock", s.handleUnblockIP)
		api.POST("/ips/whitelist", s.handleWhitelistIP)

		api.POST("/identifiers/unlock", s.handleUnlockIdentifier)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// Handler exposes the underlying handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server terminated", zap.Error(err))
		}
	}()
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleOverview(c *gin.Context) {
	c.JSON(http.StatusOK, s.dashboard.SecurityOverview(c.Request.Context()))
}

func (s *Server) handleSecurityMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.SecurityMetrics(c.Request.Context()))
}

func (s *Server) handleBruteForceStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.dashboard.BruteForceStats())
}

func (s *Server) handleAuditLogs(c *gin.Context) {
	filters := security.AuditFilters{
		EventType: security.EventType(c.Query("event_type")),
		UserID:    c.Query("user_id"),
		Risk:      security.RiskLevel(c.Query("risk")),
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil {
		filters.Limit = limit
	}
	if start, err := time.Parse(time.RFC3339, c.Query("start")); err == nil {
		filters.Start = start
	}
	if end, err := time.Parse(time.RFC3339, c.Query("end")); err == nil {
		filters.End = end
	}

	entries := s.audit.AuditLogs(c.Request.Context(), filters)
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (s *Server) handleBlockedIPs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ips": s.ips.BlockedIPs()})
}

func (s *Server) handleWhitelistedIPs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ips": s.ips.WhitelistedIPs()})
}

type blockRequest struct {
	IP       string `json:"ip" binding:"required"`
	Reason   string `json:"reason"`
	Duration string `json:"duration"`
}

func (s *Server) handleBlockIP(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var expiry time.Duration
	if req.Duration != "" {
		parsed, err := time.ParseDuration(req.Duration)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid duration"})
			return
		}
		expiry = parsed
	}

	if err := s.ips.BlockIP(c.Request.Context(), req.IP, req.Reason, expiry); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocked": req.IP})
}

func (s *Server) handleUnblockIP(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.ips.UnblockIP(c.Request.Context(), req.IP, req.Reason); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unblocked": req.IP})
}

func (s *Server) handleWhitelistIP(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.ips.WhitelistIP(c.Request.Context(), req.IP); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"whitelisted": req.IP})
}

type unlockRequest struct {
	Identifier string `json:"identifier" binding:"required"`
}

func (s *Server) handleUnlockIdentifier(c *gin.Context) {
	var req unlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.bruteForce.Unlock(c.Request.Context(), req.Identifier); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unlocked": req.Identifier})
}

func (s *Server) respondError(c *gin.Context, err error) {
	if appErr, ok := err.(*errors.AppError); ok {
		c.JSON(appErr.StatusCode(), gin.H{"error": appErr.Message, "code": appErr.Code})
		return
	}
	s.logger.Error("Unhandled request error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
