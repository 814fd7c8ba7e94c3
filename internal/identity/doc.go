// Package identity is the PostgreSQL-backed credential provider used by the
// authgate command. It owns the users table, argon2id password verification,
// and Redis-backed sessions wrapped in signed JWTs.
//
// # Architecture boundaries
//
// The package implements the authgate.CredentialProvider contract and nothing
// else. It does NOT decide when MFA is required, emit audit entries, or send
// mail; those responsibilities belong to the Engine and its collaborators.
package identity
