// Package middleware adapts the authentication-defense core to the HTTP
// request pipeline. The pipeline itself lives outside this module; these
// handlers are the boundary it consults.
package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sentinelsec/sentinel/internal/infrastructure/config"
	"github.com/sentinelsec/sentinel/internal/infrastructure/monitoring"
	"github.com/sentinelsec/sentinel/internal/infrastructure/security"
)

// ClientDefense gates requests on the caller's source address: whitelisted
// addresses bypass every check, blocked addresses are rejected outright, and
// addresses inside an active lockout are told to retry later. The decision
// order matters; whitelisting overrides a block at this call site. Every
// rejection is audited and fed into the alert-window counters.
func ClientDefense(cfg config.BruteForceConfig, bruteForce *security.BruteForceProtection, ips *security.IPManager, audit *security.AuditLogger, monitor *monitoring.SecurityMonitor, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		if ips.IsWhitelisted(ip) {
			c.Next()
			return
		}

		if ips.IsBlocked(ip) {
			details := map[string]interface{}{
				"path":       c.Request.URL.Path,
				"method":     c.Request.Method,
				"user_agent": c.Request.UserAgent(),
				"reason":     "ip_blocked",
			}
			audit.LogAuthEvent(c.Request.Context(), security.EventAccessDenied, "", ip, details)
			if monitor != nil {
				monitor.MonitorEvent(c.Request.Context(), security.EventAccessDenied, security.RiskMedium, details)
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Access denied",
			})
			return
		}

		if bruteForce.IsLocked(ip) {
			details := map[string]interface{}{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"reason": "identifier_locked",
			}
			audit.LogAuthEvent(c.Request.Context(), security.EventRateLimitExceeded, "", ip, details)
			if monitor != nil {
				monitor.MonitorEvent(c.Request.Context(), security.EventRateLimitExceeded, security.RiskMedium, details)
			}
			c.Header("Retry-After", strconv.Itoa(int(cfg.LockoutDuration.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Too many failed attempts",
				"message": "The source address is temporarily locked. Please try again later.",
			})
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			logger.Debug("Request completed with error status",
				zap.String("ip", ip),
				zap.String("path", c.Request.URL.Path),
				zap.Int("status", c.Writer.Status()),
			)
		}
	}
}
