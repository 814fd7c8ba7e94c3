package authgate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTokenStore(t *testing.T) (*mfaTokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return newMFATokenStore(rdb, "amt"), mr
}

func putToken(t *testing.T, store *mfaTokenStore, userID, code string, ttl time.Duration) {
	t.Helper()
	now := time.Now()
	err := store.Put(context.Background(), userID, &mfaToken{
		Code:      code,
		ExpiresAt: now.Add(ttl).Unix(),
		CreatedAt: now.Unix(),
	}, ttl)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
}

func TestTokenValidateMatch(t *testing.T) {
	store, _ := newTokenStore(t)
	putToken(t, store, "u1", "123456", time.Minute)

	ok, err := store.Validate(context.Background(), "u1", "123456", 5)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !ok {
		t.Fatal("expected match")
	}
}

func TestTokenValidateSingleUse(t *testing.T) {
	store, _ := newTokenStore(t)
	putToken(t, store, "u1", "123456", time.Minute)

	if ok, _ := store.Validate(context.Background(), "u1", "123456", 5); !ok {
		t.Fatal("expected first validation to match")
	}
	_, err := store.Validate(context.Background(), "u1", "123456", 5)
	if !errors.Is(err, errTokenUsed) {
		t.Fatalf("expected errTokenUsed, got %v", err)
	}
}

func TestTokenOverwriteInvalidatesPrior(t *testing.T) {
	store, _ := newTokenStore(t)
	putToken(t, store, "u1", "111111", time.Minute)
	putToken(t, store, "u1", "222222", time.Minute)

	ok, err := store.Validate(context.Background(), "u1", "111111", 5)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if ok {
		t.Fatal("replaced code must not validate")
	}

	ok, err = store.Validate(context.Background(), "u1", "222222", 5)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !ok {
		t.Fatal("expected fresh code to validate")
	}
}

func TestTokenValidateMissing(t *testing.T) {
	store, _ := newTokenStore(t)

	_, err := store.Validate(context.Background(), "u1", "123456", 5)
	if !errors.Is(err, errTokenNotFound) {
		t.Fatalf("expected errTokenNotFound, got %v", err)
	}
}

func TestTokenValidateExpired(t *testing.T) {
	store, mr := newTokenStore(t)
	putToken(t, store, "u1", "123456", time.Minute)

	mr.FastForward(2 * time.Minute)

	_, err := store.Validate(context.Background(), "u1", "123456", 5)
	if !errors.Is(err, errTokenNotFound) {
		t.Fatalf("expected errTokenNotFound after redis expiry, got %v", err)
	}
}

func TestTokenValidateStaleRecordDeleted(t *testing.T) {
	// Record whose embedded expiry passed while the redis TTL is still
	// running: Validate must treat it as expired and delete it.
	store, _ := newTokenStore(t)
	now := time.Now()
	err := store.Put(context.Background(), "u1", &mfaToken{
		Code:      "123456",
		ExpiresAt: now.Add(-time.Second).Unix(),
		CreatedAt: now.Add(-time.Minute).Unix(),
	}, time.Hour)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	_, err = store.Validate(context.Background(), "u1", "123456", 5)
	if !errors.Is(err, errTokenExpired) {
		t.Fatalf("expected errTokenExpired, got %v", err)
	}
	_, err = store.Validate(context.Background(), "u1", "123456", 5)
	if !errors.Is(err, errTokenNotFound) {
		t.Fatalf("expected record deleted, got %v", err)
	}
}

func TestTokenValidateAttemptsCap(t *testing.T) {
	store, _ := newTokenStore(t)
	putToken(t, store, "u1", "123456", time.Minute)

	for i := 0; i < 4; i++ {
		ok, err := store.Validate(context.Background(), "u1", "000000", 5)
		if err != nil || ok {
			t.Fatalf("attempt %d: expected plain mismatch, got ok=%v err=%v", i+1, ok, err)
		}
	}

	_, err := store.Validate(context.Background(), "u1", "000000", 5)
	if !errors.Is(err, errTokenAttempts) {
		t.Fatalf("expected errTokenAttempts on fifth mismatch, got %v", err)
	}

	// The cap burns the token; even the correct code is dead now.
	_, err = store.Validate(context.Background(), "u1", "123456", 5)
	if !errors.Is(err, errTokenNotFound) {
		t.Fatalf("expected token gone after cap, got %v", err)
	}
}

func TestTokenValidateConcurrentSingleWinner(t *testing.T) {
	store, _ := newTokenStore(t)
	putToken(t, store, "u1", "123456", time.Minute)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Validate(context.Background(), "u1", "123456", 0)
			if err != nil && !errors.Is(err, errTokenUsed) && !errors.Is(err, errTokenNotFound) {
				t.Errorf("unexpected error: %v", err)
			}
			results <- ok && err == nil
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for won := range results {
		if won {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestTokenInvalidate(t *testing.T) {
	store, _ := newTokenStore(t)
	putToken(t, store, "u1", "123456", time.Minute)

	if err := store.Invalidate(context.Background(), "u1"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	_, err := store.Validate(context.Background(), "u1", "123456", 5)
	if !errors.Is(err, errTokenNotFound) {
		t.Fatalf("expected errTokenNotFound, got %v", err)
	}
}
