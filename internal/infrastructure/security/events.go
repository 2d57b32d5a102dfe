// Package security implements the authentication-defense core: brute-force
// protection, IP block/allow lists, audit logging and the reporting facade.
package security

// EventType identifies a security-relevant occurrence. The string values form
// a fixed taxonomy consumed by downstream monitoring and must not change.
type EventType string

const (
	EventLoginSuccess       EventType = "LOGIN_SUCCESS"
	EventLoginFailure       EventType = "LOGIN_FAILURE"
	EventLogout             EventType = "LOGOUT"
	EventPasswordChange     EventType = "PASSWORD_CHANGE"
	EventAccountLocked      EventType = "ACCOUNT_LOCKED"
	EventAccountUnlocked    EventType = "ACCOUNT_UNLOCKED"
	EventAccessGranted      EventType = "ACCESS_GRANTED"
	EventAccessDenied       EventType = "ACCESS_DENIED"
	EventPermissionChange   EventType = "PERMISSION_CHANGE"
	EventRoleChange         EventType = "ROLE_CHANGE"
	EventBruteForce         EventType = "BRUTE_FORCE_DETECTED"
	EventSuspiciousActivity EventType = "SUSPICIOUS_ACTIVITY"
	EventRateLimitExceeded  EventType = "RATE_LIMIT_EXCEEDED"
	EventIPBlocked          EventType = "IP_BLOCKED"
	EventIPUnblocked        EventType = "IP_UNBLOCKED"
	EventDataCreated        EventType = "DATA_CREATED"
	EventDataUpdated        EventType = "DATA_UPDATED"
	EventDataDeleted        EventType = "DATA_DELETED"
	EventDataExported       EventType = "DATA_EXPORTED"
	EventSystemError        EventType = "SYSTEM_ERROR"
	EventConfigChange       EventType = "CONFIGURATION_CHANGE"
	EventSecurityScan       EventType = "SECURITY_SCAN"

	// EventSecurityAlert is emitted by the monitoring layer when an alert
	// threshold is reached within the active window.
	EventSecurityAlert EventType = "SECURITY_ALERT_TRIGGERED"
)

// RiskLevel classifies the severity of an audit event. Levels are ordered
// LOW < MEDIUM < HIGH < CRITICAL and select the alert threshold applied by
// the monitoring layer.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Severity returns the ordinal position of the risk level, with unknown
// levels treated as LOW.
func (r RiskLevel) Severity() int {
	switch r {
	case RiskCritical:
		return 3
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// Valid reports whether r is one of the defined risk levels.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// failureEvents are auth events that default to MEDIUM risk when logged
// through LogAuthEvent.
var failureEvents = map[EventType]bool{
	EventLoginFailure:       true,
	EventAccessDenied:       true,
	EventRateLimitExceeded:  true,
	EventBruteForce:         true,
	EventSuspiciousActivity: true,
}

// errorEvents are system events that default to HIGH risk when logged
// through LogSystemEvent.
var errorEvents = map[EventType]bool{
	EventSystemError:   true,
	EventSecurityAlert: true,
}
