package ratelimit

import (
	"fmt"
	"strings"
)

// KeyForDecision builds a limiter key for the resolved scope.
func KeyForDecision(userID string, decision Decision) string {
	userID = strings.TrimSpace(userID)
	if userID == "" || decision.Limit <= 0 {
		return ""
	}
	switch decision.Scope {
	case ScopeHelper:
		helperID := strings.TrimSpace(decision.HelperID)
		if helperID == "" {
			return ""
		}
		return fmt.Sprintf("u:%s:h:%s", userID, helperID)
	case ScopeUser:
		return fmt.Sprintf("u:%s", userID)
	default:
		return ""
	}
}
