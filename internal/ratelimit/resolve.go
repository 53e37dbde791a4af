package ratelimit

import "strings"

// ResolveLimit picks the effective limit for one request. A per-helper limit
// wins over the per-user limit when the request names a helper.
func ResolveLimit(cfg SettingsConfig, helperID string) Decision {
	helperID = strings.TrimSpace(helperID)
	if helperID != "" && cfg.PerHelperLimit > 0 {
		return Decision{Limit: cfg.PerHelperLimit, Scope: ScopeHelper, HelperID: helperID}
	}
	if cfg.Limit > 0 {
		return Decision{Limit: cfg.Limit, Scope: ScopeUser}
	}
	return Decision{}
}
