package audit

import (
	"net/http"
	"strings"
)

// URL fragment groups driving event classification. Order matters: the first
// matching rule wins, mirroring how the console expects events to be bucketed.
var (
	authFragments     = []string{"/auth", "/login", "/register", "/password"}
	moneyFragments    = []string{"/wallet", "/trade", "/invest", "/transfer"}
	securityFragments = []string{"/security", "/audit"}
	criticalFragments = []string{"/security", "/fraud"}
)

// DeriveEventType classifies a request into a security event type from its
// URL and method.
func DeriveEventType(url, method string) EventType {
	lower := strings.ToLower(url)
	switch {
	case containsAny(lower, authFragments):
		return EventLoginAttempt
	case containsAny(lower, moneyFragments):
		return EventTransaction
	case containsAny(lower, securityFragments):
		return EventSecurityAlert
	case strings.EqualFold(method, http.MethodPut) || strings.EqualFold(method, http.MethodDelete):
		return EventConfigChange
	default:
		return EventDataAccess
	}
}

// DeriveSeverity grades a request. DELETE outranks money movement because
// destructive calls are rarer and reviewed first.
func DeriveSeverity(url, method string) Severity {
	lower := strings.ToLower(url)
	switch {
	case containsAny(lower, criticalFragments):
		return SeverityCritical
	case strings.EqualFold(method, http.MethodDelete):
		return SeverityError
	case containsAny(lower, moneyFragments):
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

func containsAny(s string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}
