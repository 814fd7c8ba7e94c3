package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tranvh/authgate"
)

// NewPool opens a pgx connection pool against url and verifies connectivity.
func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

const userColumns = `id, email, display_name, password_hash, require_mfa,
		 force_mfa_after_failures, failed_login_count, last_failed_login_at`

// Provider implements authgate.CredentialProvider on top of a PostgreSQL
// users table, argon2id password hashes, and Redis-backed sessions.
type Provider struct {
	db       *pgxpool.Pool
	hasher   *Hasher
	sessions *Sessions
}

// NewProvider wires a Provider from its three dependencies.
func NewProvider(db *pgxpool.Pool, hasher *Hasher, sessions *Sessions) (*Provider, error) {
	if db == nil {
		return nil, errors.New("nil database pool")
	}
	if hasher == nil {
		return nil, errors.New("nil password hasher")
	}
	if sessions == nil {
		return nil, errors.New("nil session store")
	}
	return &Provider{db: db, hasher: hasher, sessions: sessions}, nil
}

type userRow struct {
	profile      authgate.UserProfile
	passwordHash string
}

func (p *Provider) queryUser(ctx context.Context, where string, arg any) (*userRow, error) {
	row := p.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg)

	var u userRow
	err := row.Scan(
		&u.profile.ID, &u.profile.Email, &u.profile.DisplayName, &u.passwordHash,
		&u.profile.RequireMFA, &u.profile.ForceMFAAfterFailures,
		&u.profile.FailedLoginCount, &u.profile.LastFailedLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authgate.ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// FindByEmail loads the profile registered under email.
func (p *Provider) FindByEmail(ctx context.Context, email string) (*authgate.UserProfile, error) {
	u, err := p.queryUser(ctx, "lower(email) = lower($1)", email)
	if err != nil {
		return nil, err
	}
	return &u.profile, nil
}

// FindByID loads the profile with the given user ID.
func (p *Provider) FindByID(ctx context.Context, userID string) (*authgate.UserProfile, error) {
	u, err := p.queryUser(ctx, "id = $1", userID)
	if err != nil {
		return nil, err
	}
	return &u.profile, nil
}

// VerifyPassword checks password against the stored argon2id hash. An
// unknown email reports authgate.ErrUserNotFound, never a plain mismatch.
func (p *Provider) VerifyPassword(ctx context.Context, email, password string) (bool, error) {
	u, err := p.queryUser(ctx, "lower(email) = lower($1)", email)
	if err != nil {
		return false, err
	}
	return p.hasher.Verify(password, u.passwordHash)
}

// UpdateProfile persists the mutable security state of profile: its failure
// counter and last-failure timestamp.
func (p *Provider) UpdateProfile(ctx context.Context, profile *authgate.UserProfile) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE users
		 SET failed_login_count = $2, last_failed_login_at = $3
		 WHERE id = $1`,
		profile.ID, profile.FailedLoginCount, profile.LastFailedLoginAt,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authgate.ErrUserNotFound
	}
	return nil
}

// CreateSession mints a session token for profile.
func (p *Provider) CreateSession(ctx context.Context, profile *authgate.UserProfile, persistent bool) (string, error) {
	return p.sessions.Create(ctx, profile.ID, persistent)
}

// DestroySession revokes a session token. Already invalid tokens are a no-op.
func (p *Provider) DestroySession(ctx context.Context, session string) error {
	return p.sessions.Destroy(ctx, session)
}

// ResolveSession verifies a session token and returns the owning user ID.
// Handlers use it to authenticate requests outside the login flow.
func (p *Provider) ResolveSession(ctx context.Context, session string) (string, error) {
	return p.sessions.Resolve(ctx, session)
}
