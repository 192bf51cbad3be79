package permission

import (
	gwerrors "github.com/jrsteele09/go-message-gateway/internal/errors"
)

// Wildcard is the tenant identity carried by the master secret. It is authorized for every tenant.
const Wildcard = "*"

// Identity is the caller attached to a request or a live connection once its secret has been validated.
type Identity struct {
	TenantID string `json:"clientId"`
	IsMaster bool   `json:"isMaster"`
}

// HasPermission reports whether caller may act on target.
func HasPermission(callerTenant, targetTenant string) bool {
	return callerTenant == Wildcard || callerTenant == targetTenant
}

// Can reports whether the identity may act on targetTenant.
func (id Identity) Can(targetTenant string) bool {
	return HasPermission(id.TenantID, targetTenant)
}

// Check returns ErrPermissionDenied when the identity may not act on targetTenant.
// The error never says whether targetTenant exists.
func (id Identity) Check(targetTenant string) error {
	if !id.Can(targetTenant) {
		return gwerrors.ErrPermissionDenied
	}
	return nil
}
