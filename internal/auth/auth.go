// Package auth carries the caller identity used for tenant scoping and
// ownership checks. Authentication itself happens upstream (gateway / reverse
// proxy); this service trusts the identity headers it receives.
package auth

import (
	"strings"

	"docvault/internal/apperr"
)

// ScopeAdmin grants access to every document in the caller's tenant.
const ScopeAdmin = "documents:admin"

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID   string
	TenantID string
	Scopes   []string
}

// FromHeaders builds a Principal from the upstream identity header values.
// scopes is a comma-separated list and may be empty.
func FromHeaders(userID, tenantID, scopes string) (Principal, error) {
	userID = strings.TrimSpace(userID)
	tenantID = strings.TrimSpace(tenantID)
	if userID == "" || tenantID == "" {
		return Principal{}, apperr.New(apperr.KindPermissionDenied, "missing caller identity")
	}

	p := Principal{UserID: userID, TenantID: tenantID}
	for _, s := range strings.Split(scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			p.Scopes = append(p.Scopes, s)
		}
	}
	return p, nil
}

// HasScope reports whether the principal carries the given scope.
func (p Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the principal may act on documents it does not own.
func (p Principal) IsAdmin() bool {
	return p.HasScope(ScopeAdmin)
}
