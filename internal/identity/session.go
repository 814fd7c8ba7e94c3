package identity

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionRecordVersion = 1

// ErrSessionInvalid is returned when a presented session token does not
// verify or no longer has a live server-side record.
var ErrSessionInvalid = errors.New("identity: session invalid")

// SessionConfig configures the Redis-backed session store.
type SessionConfig struct {
	// Secret signs the HS256 session tokens. Required.
	Secret []byte
	Issuer string
	// TTL is the lifetime of a non-persistent session.
	TTL time.Duration
	// PersistentTTL is the lifetime of a remember-me session.
	PersistentTTL time.Duration
	RedisPrefix   string
}

// DefaultSessionConfig returns the stock session lifetimes: half a day for
// a browser session, thirty days when the user asked to be remembered.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Issuer:        "authgate",
		TTL:           12 * time.Hour,
		PersistentTTL: 30 * 24 * time.Hour,
		RedisPrefix:   "ags",
	}
}

type sessionRecord struct {
	UserID     string
	CreatedAt  time.Time
	Persistent bool
}

type sessionClaims struct {
	UID string `json:"uid"`
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// Sessions issues and revokes sessions. A session is a Redis record keyed by
// a random session ID, handed to the client as a signed JWT carrying that ID.
// Revocation deletes the record, so a stolen token dies with the logout.
type Sessions struct {
	config SessionConfig
	redis  redis.UniversalClient
}

// NewSessions validates cfg and returns a Sessions store.
func NewSessions(cfg SessionConfig, rdb redis.UniversalClient) (*Sessions, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("session secret below 32 bytes")
	}
	if cfg.TTL <= 0 || cfg.PersistentTTL <= 0 {
		return nil, errors.New("invalid session TTL configuration")
	}
	if cfg.RedisPrefix == "" {
		return nil, errors.New("empty session redis prefix")
	}
	if rdb == nil {
		return nil, errors.New("nil redis client")
	}
	return &Sessions{config: cfg, redis: rdb}, nil
}

func (s *Sessions) key(sid string) string {
	return s.config.RedisPrefix + ":" + sid
}

// Create stores a new session record for userID and returns the signed token.
func (s *Sessions) Create(ctx context.Context, userID string, persistent bool) (string, error) {
	ttl := s.config.TTL
	if persistent {
		ttl = s.config.PersistentTTL
	}

	sid := uuid.NewString()
	now := time.Now().UTC()

	payload := encodeSessionRecord(&sessionRecord{
		UserID:     userID,
		CreatedAt:  now,
		Persistent: persistent,
	})
	if err := s.redis.Set(ctx, s.key(sid), payload, ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}

	claims := sessionClaims{
		UID: userID,
		SID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.Secret)
	if err != nil {
		// The orphaned record expires on its own; best effort cleanup.
		s.redis.Del(ctx, s.key(sid))
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

// Resolve verifies token and returns the owning user ID. A token whose
// server-side record is gone resolves to [ErrSessionInvalid].
func (s *Sessions) Resolve(ctx context.Context, token string) (string, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", err
	}

	raw, err := s.redis.Get(ctx, s.key(claims.SID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrSessionInvalid
		}
		return "", fmt.Errorf("load session: %w", err)
	}
	record, err := decodeSessionRecord(raw)
	if err != nil || record.UserID != claims.UID {
		return "", ErrSessionInvalid
	}
	return record.UserID, nil
}

// Destroy revokes the session behind token. Unparseable tokens and already
// revoked sessions are not errors; logout is idempotent.
func (s *Sessions) Destroy(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return nil
	}
	if err := s.redis.Del(ctx, s.key(claims.SID)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *Sessions) parse(token string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.config.Secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer(s.config.Issuer))
	if err != nil || !parsed.Valid || claims.SID == "" || claims.UID == "" {
		return nil, ErrSessionInvalid
	}
	return claims, nil
}

func encodeSessionRecord(r *sessionRecord) []byte {
	var buf bytes.Buffer
	buf.WriteByte(sessionRecordVersion)

	id := []byte(r.UserID)
	var idLen [2]byte
	binary.BigEndian.PutUint16(idLen[:], uint16(len(id)))
	buf.Write(idLen[:])
	buf.Write(id)

	var created [8]byte
	binary.BigEndian.PutUint64(created[:], uint64(r.CreatedAt.Unix()))
	buf.Write(created[:])

	if r.Persistent {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func decodeSessionRecord(data []byte) (*sessionRecord, error) {
	if len(data) < 3 || data[0] != sessionRecordVersion {
		return nil, errors.New("unknown session record version")
	}
	idLen := int(binary.BigEndian.Uint16(data[1:3]))
	rest := data[3:]
	if len(rest) != idLen+9 {
		return nil, errors.New("truncated session record")
	}
	return &sessionRecord{
		UserID:     string(rest[:idLen]),
		CreatedAt:  time.Unix(int64(binary.BigEndian.Uint64(rest[idLen:idLen+8])), 0).UTC(),
		Persistent: rest[idLen+8] == 1,
	}, nil
}
