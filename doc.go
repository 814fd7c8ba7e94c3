// Package authgate layers adaptive, risk-triggered multi-factor
// authentication on top of credential login. The [Engine] is the login
// state machine: it tracks consecutive failed-password counts, escalates
// to a one-time emailed code once the threshold is crossed (or whenever a
// profile opts in), validates codes exactly once, and emits an append-only
// audit trail for every transition.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build], and any number of gateway instances may share one redis
// and one profile store.
//
// # Architecture boundaries
//
// authgate is the decision core. Persistent identity (password hashes,
// lockout, session issuance) belongs to the caller-supplied
// [CredentialProvider]; outbound delivery belongs to the [Notifier]; the
// audit trail is consumed through an [AuditSink]. Ephemeral MFA state —
// one-time tokens and pending half-logins — is the only storage this
// package owns, and it lives in redis under short TTLs.
//
// # What this package must NOT do
//
//   - Render pages, validate forms, or touch transport concerns beyond the
//     context carriers in context.go.
//   - Read audit entries back; the trail is write-only by contract.
//   - Reveal through any outcome message whether an account exists.
package authgate
