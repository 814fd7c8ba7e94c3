package authgate

import "errors"

var (
	// ErrEngineNotReady indicates a required collaborator was never wired
	// through the Builder.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrUserNotFound is returned by CredentialProvider lookups for unknown
	// identities. It must never leak into a user-facing message.
	ErrUserNotFound = errors.New("user not found")
	// ErrProfileStoreUnavailable indicates the profile backend rejected a
	// read or write.
	ErrProfileStoreUnavailable = errors.New("profile store unavailable")
	// ErrTokenStoreUnavailable indicates the one-time token backend is down.
	ErrTokenStoreUnavailable = errors.New("mfa token store unavailable")
	// ErrPendingStoreUnavailable indicates the pending MFA session backend
	// is down.
	ErrPendingStoreUnavailable = errors.New("pending mfa session store unavailable")
	// ErrSessionCreationFailed indicates the credential provider could not
	// finalize the authenticated session.
	ErrSessionCreationFailed = errors.New("session creation failed")

	errTokenNotFound    = errors.New("mfa token not found")
	errTokenExpired     = errors.New("mfa token expired")
	errTokenUsed        = errors.New("mfa token already used")
	errTokenAttempts    = errors.New("mfa token attempts exceeded")
	errPendingNotFound  = errors.New("pending mfa session not found")
	errPendingExpired   = errors.New("pending mfa session expired")
	errPendingCorrupted = errors.New("pending mfa session record corrupted")
)
