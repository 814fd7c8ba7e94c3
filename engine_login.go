package authgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AttemptLogin runs one credential submission through the login state
// machine and returns the user-facing outcome. The returned error is
// reserved for internal faults that prevented any outcome (profile store
// down, session issuance failed); everything the user may see travels in
// the LoginOutcome.
func (e *Engine) AttemptLogin(ctx context.Context, req LoginRequest) (*LoginOutcome, error) {
	if e == nil || e.provider == nil || e.mfa == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.provider.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Unknown identity: same message as a wrong password, no audit
			// entry, no state mutation. Anything else would let an attacker
			// enumerate accounts.
			e.metricInc(MetricLoginUnknownIdentity)
			return &LoginOutcome{
				Status:  OutcomeInvalidCredentials,
				Message: msgInvalidCredentials,
			}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrProfileStoreUnavailable, err)
	}

	ok, err := e.provider.VerifyPassword(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	if ok {
		return e.loginPasswordVerified(ctx, user, req)
	}
	return e.loginPasswordRejected(ctx, user, req)
}

// loginPasswordVerified handles the correct-password branch: the failure
// counter resets first, then the MFA decision runs against the cleared
// snapshot, so a forced-MFA state earned through failures does not survive
// a correct password.
func (e *Engine) loginPasswordVerified(ctx context.Context, user *UserProfile, req LoginRequest) (*LoginOutcome, error) {
	user = e.resetFailureState(ctx, user)

	if e.mfa.RequiresMFA(user) {
		return e.beginMFAChallenge(ctx, user, req.RememberMe, req.ReturnTo, false)
	}

	session, err := e.provider.CreateSession(ctx, user, req.RememberMe)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, user, auditActionLoginSuccess)

	return &LoginOutcome{
		Status:     OutcomeAuthenticated,
		Session:    session,
		RedirectTo: safeReturnPath(req.ReturnTo, e.config.Login.DefaultRedirect),
	}, nil
}

// loginPasswordRejected handles the wrong-password branch: increment the
// counter, audit the attempt, then either escalate into MFA or answer with
// the generic rejection plus the calibrated remaining-attempts warning.
func (e *Engine) loginPasswordRejected(ctx context.Context, user *UserProfile, req LoginRequest) (*LoginOutcome, error) {
	now := time.Now().UTC()
	next := *user
	next.FailedLoginCount++
	next.LastFailedLoginAt = &now
	if err := e.provider.UpdateProfile(ctx, &next); err != nil {
		// The counter is an advisory signal, not a lock; a lost write must
		// not block the rejection response.
		e.log.Warn("failed-login counter update failed",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, &next, fmt.Sprintf(auditActionLoginFailed, next.FailedLoginCount))

	threshold := e.config.MFA.EscalationThreshold
	if e.mfa.RequiresMFA(&next) && next.FailedLoginCount >= threshold {
		return e.beginMFAChallenge(ctx, &next, req.RememberMe, req.ReturnTo, true)
	}

	outcome := &LoginOutcome{
		Status:  OutcomeInvalidCredentials,
		Message: msgInvalidCredentials,
	}
	remaining := threshold - next.FailedLoginCount
	if remaining > 0 && remaining <= e.config.MFA.WarnWithin {
		outcome.Warning = fmt.Sprintf(
			"You have %d attempt(s) left before additional verification is required.", remaining)
	}
	return outcome, nil
}

// beginMFAChallenge creates the pending session, issues the one-time token,
// and audits the escalation. escalated distinguishes too-many-failures from
// a profile-level MFA requirement, both in the audit trail and in the
// user-facing reason.
func (e *Engine) beginMFAChallenge(
	ctx context.Context,
	user *UserProfile,
	rememberMe bool,
	returnTo string,
	escalated bool,
) (*LoginOutcome, error) {
	challengeID := uuid.NewString()

	record := &pendingSession{
		UserID:     user.ID,
		ReturnTo:   returnTo,
		ExpiresAt:  time.Now().Add(e.config.Pending.TTL).Unix(),
		RememberMe: rememberMe,
	}
	if err := e.pending.Save(ctx, challengeID, record, e.config.Pending.TTL); err != nil {
		return nil, err
	}

	if err := e.mfa.IssueToken(ctx, user); err != nil {
		return nil, err
	}
	e.metricInc(MetricTokenIssued)

	e.metricInc(MetricMFARequired)
	action := auditActionMFATokenSent
	message := msgMFAReasonOptIn
	if escalated {
		e.metricInc(MetricMFAEscalated)
		action = auditActionMFAEscalated
		message = msgMFAReasonEscalated
	}
	e.emitAudit(ctx, user, action)

	return &LoginOutcome{
		Status:      OutcomeMFARequired,
		Message:     message,
		ChallengeID: challengeID,
	}, nil
}

// resetFailureState clears the consecutive-failure counter. The store is
// only touched when there is something to clear.
func (e *Engine) resetFailureState(ctx context.Context, user *UserProfile) *UserProfile {
	if user.FailedLoginCount == 0 && user.LastFailedLoginAt == nil {
		return user
	}

	next := *user
	next.FailedLoginCount = 0
	next.LastFailedLoginAt = nil
	if err := e.provider.UpdateProfile(ctx, &next); err != nil {
		e.log.Warn("failed-login counter reset failed",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}
	return &next
}
