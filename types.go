package authgate

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/tranvh/authgate/internal/audit"
)

// UserProfile is the security-relevant subset of a user account. It is an
// immutable snapshot: Engine methods never mutate a profile in place, they
// build the next state and persist it through [CredentialProvider.UpdateProfile]
// in a single call per transition.
type UserProfile struct {
	ID                    string
	Email                 string
	DisplayName           string
	RequireMFA            bool
	ForceMFAAfterFailures bool
	FailedLoginCount      int
	LastFailedLoginAt     *time.Time
}

// CredentialProvider is the external identity system the gateway sits in
// front of. It owns password hashes, account lockout, and the final
// authenticated session; the Engine only consumes this contract.
type CredentialProvider interface {
	FindByEmail(ctx context.Context, email string) (*UserProfile, error)
	FindByID(ctx context.Context, userID string) (*UserProfile, error)
	VerifyPassword(ctx context.Context, email, password string) (bool, error)
	UpdateProfile(ctx context.Context, profile *UserProfile) error

	// CreateSession finalizes authentication and returns an opaque session
	// token. persistent corresponds to the user's remember-me choice.
	CreateSession(ctx context.Context, profile *UserProfile, persistent bool) (string, error)
	DestroySession(ctx context.Context, session string) error
}

// Notifier delivers one-time codes and security alerts to a user's
// registered contact address. Both methods are fire-and-forget: delivery
// failures are the sink's problem to log and never reach the Engine's
// control flow.
type Notifier interface {
	SendToken(ctx context.Context, address, code, displayName string)
	SendSecurityAlert(ctx context.Context, address, action, displayName string)
}

// Outcome classifies the user-facing result of a login or MFA submission.
type Outcome uint8

const (
	// OutcomeInvalidCredentials covers every password-path failure,
	// including unknown emails. The message is deliberately generic.
	OutcomeInvalidCredentials Outcome = iota
	// OutcomeMFARequired means the password checked out (or escalation
	// fired) and a one-time code is on its way.
	OutcomeMFARequired
	// OutcomeMFAInvalid means the submitted code did not match an unused,
	// unexpired token.
	OutcomeMFAInvalid
	// OutcomeSessionExpired means the pending MFA context is gone and the
	// user must start over from the password step.
	OutcomeSessionExpired
	// OutcomeAuthenticated is the terminal success state.
	OutcomeAuthenticated
)

// String returns a stable label for logging. Not a user-facing message.
func (o Outcome) String() string {
	switch o {
	case OutcomeInvalidCredentials:
		return "invalid_credentials"
	case OutcomeMFARequired:
		return "mfa_required"
	case OutcomeMFAInvalid:
		return "mfa_invalid"
	case OutcomeSessionExpired:
		return "session_expired"
	case OutcomeAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// LoginRequest carries one credential submission.
type LoginRequest struct {
	Email      string
	Password   string
	RememberMe bool
	// ReturnTo is the intended post-login destination. It is re-validated
	// as a local path before ever being surfaced back.
	ReturnTo string
}

// LoginOutcome is returned by [Engine.AttemptLogin] and [Engine.CompleteMFA].
type LoginOutcome struct {
	Status Outcome

	// Message is safe to render verbatim; it never discloses whether the
	// account exists or why verification failed.
	Message string

	// Warning, when non-empty, discloses the remaining attempts before MFA
	// escalation. Only populated close to the threshold.
	Warning string

	// Session is the credential provider's opaque session token, set only
	// when Status is OutcomeAuthenticated.
	Session string

	// RedirectTo is a validated local path to send the user to after
	// authentication.
	RedirectTo string

	// ChallengeID identifies the pending MFA session, set only when Status
	// is OutcomeMFARequired. The transport layer round-trips it (cookie,
	// header) to CompleteMFA.
	ChallengeID string
}

// AuditEntry is the immutable audit record emitted by the Engine.
type AuditEntry = internalaudit.Entry

// AuditSink receives [AuditEntry] values from the Engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all entries.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded entries to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
