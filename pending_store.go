package authgate

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingRecordVersion1 = 1

// pendingSession links a half-authenticated login attempt to its eventual
// MFA completion. It lives server-side, keyed by a generated challenge ID
// that the transport layer round-trips.
type pendingSession struct {
	UserID     string
	ReturnTo   string
	ExpiresAt  int64
	RememberMe bool
}

type pendingStore struct {
	redis  redis.UniversalClient
	prefix string
}

func newPendingStore(redisClient redis.UniversalClient, prefix string) *pendingStore {
	if prefix == "" {
		prefix = "amp"
	}
	return &pendingStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *pendingStore) key(challengeID string) string {
	return s.prefix + ":" + challengeID
}

func (s *pendingStore) Save(ctx context.Context, challengeID string, record *pendingSession, ttl time.Duration) error {
	encoded, err := encodePendingSession(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(challengeID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingStoreUnavailable, err)
	}
	return nil
}

// Get treats an expired record as absent; abandonment is not a distinct
// state.
func (s *pendingStore) Get(ctx context.Context, challengeID string) (*pendingSession, error) {
	data, err := s.redis.Get(ctx, s.key(challengeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errPendingNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPendingStoreUnavailable, err)
	}

	record, err := decodePendingSession(data)
	if err != nil {
		return nil, errPendingCorrupted
	}
	if time.Now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(challengeID)).Result()
		return nil, errPendingExpired
	}
	return record, nil
}

// Consume deletes the pending session on successful MFA completion. The
// bool reports whether this call was the one that removed it.
func (s *pendingStore) Consume(ctx context.Context, challengeID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(challengeID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPendingStoreUnavailable, err)
	}
	return n > 0, nil
}

func encodePendingSession(record *pendingSession) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(pendingRecordVersion1)

	var remember uint8
	if record.RememberMe {
		remember = 1
	}
	buf.WriteByte(remember)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.UserID) > 65535 || len(record.ReturnTo) > 65535 {
		return nil, errors.New("pending session field length exceeded")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.ReturnTo))); err != nil {
		return nil, err
	}
	buf.WriteString(record.ReturnTo)

	return buf.Bytes(), nil
}

func decodePendingSession(data []byte) (*pendingSession, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != pendingRecordVersion1 {
		return nil, errors.New("invalid pending session record version")
	}

	record := &pendingSession{}
	remember, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record.RememberMe = remember == 1

	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var userLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userLen); err != nil {
		return nil, err
	}
	user := make([]byte, userLen)
	if _, err := io.ReadFull(reader, user); err != nil {
		return nil, err
	}
	record.UserID = string(user)

	var returnLen uint16
	if err := binary.Read(reader, binary.BigEndian, &returnLen); err != nil {
		return nil, err
	}
	returnTo := make([]byte, returnLen)
	if _, err := io.ReadFull(reader, returnTo); err != nil {
		return nil, err
	}
	record.ReturnTo = string(returnTo)

	return record, nil
}
