package authgate

import (
	"context"
	"errors"

	internalaudit "github.com/tranvh/authgate/internal/audit"
	"go.uber.org/zap"
)

// User-facing copy. Every failure path shares msgInvalidCredentials so the
// response never reveals whether the account exists or which check failed.
const (
	msgInvalidCredentials = "Incorrect email or password."
	msgMFAReasonOptIn     = "To keep your account secure, please verify this sign-in."
	msgMFAReasonEscalated = "To protect your account, we require additional verification after several unsuccessful sign-in attempts."
	msgMFAInvalid         = "The verification code is invalid or has expired."
	msgSessionExpired     = "Your verification session has expired. Please sign in again."
)

// Engine drives a login attempt from credential check through optional MFA
// to final session establishment. It is safe for concurrent use: all
// mutable state lives in the shared stores, so multiple Engine instances
// can run behind the same redis and profile store.
type Engine struct {
	config   Config
	provider CredentialProvider
	notifier Notifier
	mfa      *mfaManager
	tokens   *mfaTokenStore
	pending  *pendingStore
	audit    *internalaudit.Dispatcher
	metrics  *Metrics
	log      *zap.Logger
}

// Close drains the audit dispatcher. Call it on shutdown so buffered
// entries reach the sink.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit entries discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Logout records the logout for the given identity and delegates session
// termination to the credential provider. An empty userID makes the audit
// step a no-op, matching an already-anonymous caller.
func (e *Engine) Logout(ctx context.Context, userID, session string) error {
	if e.provider == nil {
		return ErrEngineNotReady
	}

	if userID != "" {
		user, err := e.provider.FindByID(ctx, userID)
		switch {
		case err == nil:
			e.metricInc(MetricLogout)
			e.emitAudit(ctx, user, auditActionLogout)
		case errors.Is(err, ErrUserNotFound):
			// Session referenced a deleted account; nothing to record.
		default:
			e.log.Warn("logout profile lookup failed", zap.Error(err))
		}
	}

	return e.provider.DestroySession(ctx, session)
}
