package authgate

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const tokenRecordVersion1 = 1

// mfaToken is the persisted one-time token record. One key per user: a new
// issuance overwrites the previous record, which is what gives the
// at-most-one-unused-token invariant.
type mfaToken struct {
	Code      string
	ExpiresAt int64
	CreatedAt int64
	Used      bool
	Attempts  uint16
}

type mfaTokenStore struct {
	redis  redis.UniversalClient
	prefix string
}

func newMFATokenStore(redisClient redis.UniversalClient, prefix string) *mfaTokenStore {
	if prefix == "" {
		prefix = "amt"
	}
	return &mfaTokenStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *mfaTokenStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// Put persists a freshly issued token, replacing any prior token for the
// user regardless of its state.
func (s *mfaTokenStore) Put(ctx context.Context, userID string, record *mfaToken, ttl time.Duration) error {
	encoded, err := encodeMFAToken(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(userID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}
	return nil
}

// Invalidate removes the user's current token, if any.
func (s *mfaTokenStore) Invalidate(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}
	return nil
}

// Validate performs the atomic check-and-mark: it succeeds at most once per
// token, even under concurrent submissions of the same code. The WATCH loop
// retries when another request touched the key between read and write; the
// loser of the race observes Used=true and fails.
//
// Failure reasons come back as sentinel errors (not found, expired, used,
// attempts exceeded) so the caller can log them; all of them mean "reject".
func (s *mfaTokenStore) Validate(ctx context.Context, userID, code string, maxAttempts int) (bool, error) {
	const maxRetries = 4
	key := s.key(userID)

	for i := 0; i < maxRetries; i++ {
		var matched bool
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeMFAToken(data)
			if err != nil {
				return err
			}
			if time.Now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errTokenExpired
			}
			if record.Used {
				return errTokenUsed
			}

			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				return errTokenExpired
			}

			if subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) == 1 {
				matched = true
				record.Used = true
				updated, err := encodeMFAToken(record)
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				return err
			}

			record.Attempts++
			if maxAttempts > 0 && int(record.Attempts) >= maxAttempts {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errTokenAttempts
			}

			updated, err := encodeMFAToken(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, errTokenNotFound
			}
			if errors.Is(err, errTokenExpired) ||
				errors.Is(err, errTokenUsed) ||
				errors.Is(err, errTokenAttempts) ||
				errors.Is(err, errTokenNotFound) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
		}
		return matched, nil
	}

	return false, errTokenNotFound
}

func encodeMFAToken(record *mfaToken) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(tokenRecordVersion1)

	var used uint8
	if record.Used {
		used = 1
	}
	buf.WriteByte(used)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}

	if len(record.Code) > 255 {
		return nil, errors.New("mfa token code length exceeded")
	}
	buf.WriteByte(uint8(len(record.Code)))
	buf.WriteString(record.Code)

	return buf.Bytes(), nil
}

func decodeMFAToken(data []byte) (*mfaToken, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != tokenRecordVersion1 {
		return nil, errors.New("invalid mfa token record version")
	}

	record := &mfaToken{}
	used, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record.Used = used == 1

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}

	codeLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	code := make([]byte, codeLen)
	if _, err := io.ReadFull(reader, code); err != nil {
		return nil, err
	}
	record.Code = string(code)

	return record, nil
}
