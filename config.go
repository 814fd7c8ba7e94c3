package authgate

import (
	"errors"
	"time"
)

// Config groups every tunable of the gateway. Zero values are not usable;
// start from [DefaultConfig] and override.
type Config struct {
	MFA     MFAConfig
	Pending PendingConfig
	Login   LoginConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
MFA CONFIG
====================================
*/

// MFAConfig controls one-time token issuance and validation.
type MFAConfig struct {
	// TokenTTL bounds token validity. The reference deployment uses ten
	// minutes.
	TokenTTL time.Duration

	// EscalationThreshold is the consecutive-failure count at which a user
	// with ForceMFAAfterFailures set is pushed into the MFA branch.
	EscalationThreshold int

	// WarnWithin controls calibrated disclosure of remaining attempts: a
	// warning is attached only when 0 < remaining <= WarnWithin.
	WarnWithin int

	// MaxValidateAttempts caps wrong-code submissions per issued token.
	// Exceeding it discards the token. Zero disables the cap.
	MaxValidateAttempts int

	// RedisPrefix namespaces token keys.
	RedisPrefix string
}

/*
====================================
PENDING MFA SESSION CONFIG
====================================
*/

// PendingConfig controls the ephemeral record linking a half-finished login
// to its MFA completion.
type PendingConfig struct {
	// TTL matches the ambient browser-session timeout. An expired pending
	// session is treated as absent on next lookup, never swept.
	TTL time.Duration

	RedisPrefix string
}

/*
====================================
LOGIN CONFIG
====================================
*/

// LoginConfig controls orchestrator behavior outside the MFA branch.
type LoginConfig struct {
	// DefaultRedirect is the fallback destination when the requested
	// return path is absent or not local.
	DefaultRedirect string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the reference-deployment configuration: 6-digit
// tokens valid ten minutes, escalation after five consecutive failures,
// warnings for the last three attempts before the threshold.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		MFA: MFAConfig{
			TokenTTL:            10 * time.Minute,
			EscalationThreshold: 5,
			WarnWithin:          3,
			MaxValidateAttempts: 5,
			RedisPrefix:         "amt",
		},
		Pending: PendingConfig{
			TTL:         10 * time.Minute,
			RedisPrefix: "amp",
		},
		Login: LoginConfig{
			DefaultRedirect: "/",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate rejects configurations that would silently disable invariants.
func (c Config) Validate() error {
	if c.MFA.TokenTTL <= 0 {
		return errors.New("MFA.TokenTTL must be positive")
	}
	if c.MFA.EscalationThreshold <= 0 {
		return errors.New("MFA.EscalationThreshold must be positive")
	}
	if c.MFA.WarnWithin < 0 {
		return errors.New("MFA.WarnWithin must not be negative")
	}
	if c.MFA.WarnWithin >= c.MFA.EscalationThreshold {
		return errors.New("MFA.WarnWithin must be below the escalation threshold")
	}
	if c.MFA.MaxValidateAttempts < 0 {
		return errors.New("MFA.MaxValidateAttempts must not be negative")
	}
	if c.Pending.TTL <= 0 {
		return errors.New("Pending.TTL must be positive")
	}
	if c.Login.DefaultRedirect == "" {
		return errors.New("Login.DefaultRedirect must be set")
	}
	return nil
}

func cloneConfig(c Config) Config {
	// All fields are value types today; the copy exists so later additions
	// of reference fields keep Builder/Engine isolation.
	return c
}
