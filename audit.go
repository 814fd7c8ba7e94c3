package authgate

import (
	"context"
	"time"

	"github.com/google/uuid"
	internalaudit "github.com/tranvh/authgate/internal/audit"
)

// Action labels are part of the audit trail's contract with downstream
// reporting; keep them byte-stable.
const (
	auditActionLoginSuccess = "Login Success"
	auditActionLoginFailed  = "Login Failed - Attempt %d"
	auditActionMFATokenSent = "MFA Required - Token Sent"
	auditActionMFAEscalated = "MFA Required - Too many failed attempts"
	auditActionMFASuccess   = "Login with MFA Success"
	auditActionMFAInvalid   = "MFA Failed - Invalid Token"
	auditActionLogout       = "Logout"
)

// emitAudit records one state transition. Auditing is best-effort by
// contract: a nil dispatcher, a full buffer, or a failing sink never
// surfaces to the caller.
func (e *Engine) emitAudit(ctx context.Context, user *UserProfile, action string) {
	if e == nil || e.audit == nil {
		return
	}

	entry := internalaudit.Entry{
		ID:          uuid.NewString(),
		Action:      action,
		Origin:      originFromContext(ctx),
		RequestPath: requestPathFromContext(ctx),
		IP:          clientIPFromContext(ctx),
		Timestamp:   time.Now().UTC(),
	}
	if user != nil {
		entry.UserID = user.ID
		entry.UserName = user.DisplayName
	}

	e.audit.Emit(ctx, entry)
}
