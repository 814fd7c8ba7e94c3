package authgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CompleteMFA finishes a login that was escalated to MFA. challengeID is
// the value handed out by AttemptLogin; submitted is the code the user
// typed. An absent or expired pending session yields OutcomeSessionExpired;
// a wrong code yields OutcomeMFAInvalid and keeps the pending session alive
// so the user can retry until it ages out.
func (e *Engine) CompleteMFA(ctx context.Context, challengeID, submitted string) (*LoginOutcome, error) {
	if e == nil || e.provider == nil || e.mfa == nil {
		return nil, ErrEngineNotReady
	}
	if challengeID == "" {
		e.metricInc(MetricMFASessionExpired)
		return &LoginOutcome{
			Status:  OutcomeSessionExpired,
			Message: msgSessionExpired,
		}, nil
	}

	pending, err := e.pending.Get(ctx, challengeID)
	if err != nil {
		switch {
		case errors.Is(err, errPendingNotFound),
			errors.Is(err, errPendingExpired),
			errors.Is(err, errPendingCorrupted):
			e.metricInc(MetricMFASessionExpired)
			return &LoginOutcome{
				Status:  OutcomeSessionExpired,
				Message: msgSessionExpired,
			}, nil
		}
		return nil, err
	}

	user, err := e.provider.FindByID(ctx, pending.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// The account vanished mid-challenge. Drop the orphaned pending
			// session and send the user back to the start.
			_, _ = e.pending.Consume(ctx, challengeID)
			e.metricInc(MetricMFASessionExpired)
			return &LoginOutcome{
				Status:  OutcomeSessionExpired,
				Message: msgSessionExpired,
			}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrProfileStoreUnavailable, err)
	}

	ok, err := e.mfa.ValidateToken(ctx, user.ID, submitted)
	if err != nil {
		return nil, err
	}
	if !ok {
		return e.mfaRejected(ctx, user)
	}
	return e.mfaVerified(ctx, user, challengeID, pending)
}

func (e *Engine) mfaVerified(
	ctx context.Context,
	user *UserProfile,
	challengeID string,
	pending *pendingSession,
) (*LoginOutcome, error) {
	if _, err := e.pending.Consume(ctx, challengeID); err != nil {
		// The token is already spent, so the challenge cannot be replayed;
		// a leftover pending record just ages out with its TTL.
		e.log.Warn("pending mfa session cleanup failed",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	user = e.resetFailureState(ctx, user)

	session, err := e.provider.CreateSession(ctx, user, pending.RememberMe)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	e.metricInc(MetricMFASuccess)
	e.emitAudit(ctx, user, auditActionMFASuccess)

	if e.notifier != nil {
		e.notifier.SendSecurityAlert(ctx, user.Email, auditActionMFASuccess, user.DisplayName)
	}

	return &LoginOutcome{
		Status:     OutcomeAuthenticated,
		Session:    session,
		RedirectTo: safeReturnPath(pending.ReturnTo, e.config.Login.DefaultRedirect),
	}, nil
}

// mfaRejected records the failed code submission. The consecutive-failure
// counter is a password-path signal and stays untouched here; only the
// last-failure timestamp moves.
func (e *Engine) mfaRejected(ctx context.Context, user *UserProfile) (*LoginOutcome, error) {
	now := time.Now().UTC()
	next := *user
	next.LastFailedLoginAt = &now
	if err := e.provider.UpdateProfile(ctx, &next); err != nil {
		e.log.Warn("mfa failure timestamp update failed",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	e.metricInc(MetricMFAFailure)
	e.emitAudit(ctx, &next, auditActionMFAInvalid)

	return &LoginOutcome{
		Status:  OutcomeMFAInvalid,
		Message: msgMFAInvalid,
	}, nil
}
