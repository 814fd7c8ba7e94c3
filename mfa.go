package authgate

import (
	"context"
	"crypto/rand"
	"math/big"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// mfaManager owns the one-time token lifecycle. It is stateless apart from
// the shared store, so any number of gateway instances can run behind one
// redis.
type mfaManager struct {
	cfg      MFAConfig
	tokens   *mfaTokenStore
	notifier Notifier
	log      *zap.Logger
}

func newMFAManager(cfg MFAConfig, tokens *mfaTokenStore, notifier Notifier, log *zap.Logger) *mfaManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &mfaManager{
		cfg:      cfg,
		tokens:   tokens,
		notifier: notifier,
		log:      log,
	}
}

// RequiresMFA is a pure function of the profile snapshot: permanent opt-in,
// or escalation once the consecutive-failure count reaches the threshold.
func (m *mfaManager) RequiresMFA(profile *UserProfile) bool {
	if profile == nil {
		return false
	}
	if profile.RequireMFA {
		return true
	}
	return profile.ForceMFAAfterFailures && profile.FailedLoginCount >= m.cfg.EscalationThreshold
}

// IssueToken replaces any prior token for the user with a fresh 6-digit
// code and hands it to the notification sink. A collision with the code it
// replaces is possible and acceptable; codes are not deduplicated.
//
// Delivery is fire-and-forget: the token is persisted first, so a failed
// send leaves the login in the MFA-required state and the user can request
// a fresh code.
func (m *mfaManager) IssueToken(ctx context.Context, profile *UserProfile) error {
	code, err := randomTokenCode()
	if err != nil {
		return err
	}

	now := time.Now()
	record := &mfaToken{
		Code:      code,
		ExpiresAt: now.Add(m.cfg.TokenTTL).Unix(),
		CreatedAt: now.Unix(),
	}
	if err := m.tokens.Put(ctx, profile.ID, record, m.cfg.TokenTTL); err != nil {
		return err
	}

	if m.notifier != nil {
		m.notifier.SendToken(ctx, profile.Email, code, profile.DisplayName)
	}
	return nil
}

// ValidateToken reports whether submitted matches the user's unused,
// unexpired token, marking it used atomically with the check. Every
// rejection reason collapses to false for the caller; the distinction only
// feeds operational logging.
func (m *mfaManager) ValidateToken(ctx context.Context, userID, submitted string) (bool, error) {
	ok, err := m.tokens.Validate(ctx, userID, submitted, m.cfg.MaxValidateAttempts)
	if err != nil {
		switch err {
		case errTokenNotFound, errTokenExpired, errTokenUsed, errTokenAttempts:
			m.log.Debug("mfa token rejected",
				zap.String("user_id", userID),
				zap.String("reason", err.Error()),
			)
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// randomTokenCode draws a uniformly random 6-digit code (100000-999999)
// from crypto/rand.
func randomTokenCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}
