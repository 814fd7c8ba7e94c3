package authgate

import (
	"context"
	"testing"
	"time"
)

// beginChallenge logs in an MFA opt-in user and returns the challenge ID
// plus the delivered code.
func beginChallenge(t *testing.T, te *testEngine, req LoginRequest) (string, string) {
	t.Helper()
	outcome := attempt(t, te, req)
	if outcome.Status != OutcomeMFARequired {
		t.Fatalf("expected MFA required, got %v", outcome.Status)
	}
	return outcome.ChallengeID, te.notifier.lastToken(t).Code
}

func complete(t *testing.T, te *testEngine, challengeID, code string) *LoginOutcome {
	t.Helper()
	outcome, err := te.engine.CompleteMFA(context.Background(), challengeID, code)
	if err != nil {
		t.Fatalf("CompleteMFA failed: %v", err)
	}
	return outcome
}

func TestCompleteMFASuccess(t *testing.T) {
	te := newTestEngine(t, nil)
	seedAlice(te, func(p *UserProfile) {
		p.RequireMFA = true
		p.FailedLoginCount = 2
	})

	challengeID, code := beginChallenge(t, te, LoginRequest{
		Email: "alice@example.com", Password: "correct-password-123",
		ReturnTo: "/account", RememberMe: true,
	})

	outcome := complete(t, te, challengeID, code)
	if outcome.Status != OutcomeAuthenticated {
		t.Fatalf("expected authenticated, got %v", outcome.Status)
	}
	if outcome.Session == "" {
		t.Fatal("expected a session token")
	}
	if outcome.RedirectTo != "/account" {
		t.Fatalf("expected /account redirect, got %q", outcome.RedirectTo)
	}
	if !te.provider.sessionPersistent(t, outcome.Session) {
		t.Fatal("remember-me choice must survive the MFA hop")
	}
	if te.redis.Exists("amp:" + challengeID) {
		t.Fatal("expected pending session to be consumed")
	}

	stored := te.provider.profile(t, "u1")
	if stored.FailedLoginCount != 0 || stored.LastFailedLoginAt != nil {
		t.Fatalf("expected failure state cleared, got %+v", stored)
	}
	if te.notifier.alertCount() != 1 {
		t.Fatalf("expected one security alert, got %d", te.notifier.alertCount())
	}
	if actions := te.auditActions(); !containsAction(actions, "Login with MFA Success") {
		t.Fatalf("expected MFA success audit entry, got %v", actions)
	}
}

func TestCompleteMFAWrongCodeKeepsChallengeAlive(t *testing.T) {
	te := newTestEngine(t, nil)
	seedAlice(te, func(p *UserProfile) { p.RequireMFA = true })

	challengeID, code := beginChallenge(t, te, LoginRequest{
		Email: "alice@example.com", Password: "correct-password-123",
	})

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	outcome := complete(t, te, challengeID, wrong)
	if outcome.Status != OutcomeMFAInvalid {
		t.Fatalf("expected MFA invalid, got %v", outcome.Status)
	}
	if !te.redis.Exists("amp:" + challengeID) {
		t.Fatal("pending session must survive a wrong code")
	}

	// Only the timestamp moves on an MFA failure; the consecutive-failure
	// counter is a password-path signal.
	stored := te.provider.profile(t, "u1")
	if stored.FailedLoginCount != 0 {
		t.Fatalf("expected counter untouched, got %d", stored.FailedLoginCount)
	}
	if stored.LastFailedLoginAt == nil {
		t.Fatal("expected last failure timestamp set")
	}

	retry := complete(t, te, challengeID, code)
	if retry.Status != OutcomeAuthenticated {
		t.Fatalf("expected retry with correct code to succeed, got %v", retry.Status)
	}

	actions := te.auditActions()
	if !containsAction(actions, "MFA Failed - Invalid Token") {
		t.Fatalf("expected MFA failure audit entry, got %v", actions)
	}
}

func TestCompleteMFAMissingChallenge(t *testing.T) {
	te := newTestEngine(t, nil)
	defer te.engine.Close()

	for _, challengeID := range []string{"", "never-issued"} {
		outcome := complete(t, te, challengeID, "123456")
		if outcome.Status != OutcomeSessionExpired {
			t.Fatalf("challenge %q: expected session expired, got %v", challengeID, outcome.Status)
		}
	}
}

func TestCompleteMFAExpiredChallenge(t *testing.T) {
	te := newTestEngine(t, nil)
	seedAlice(te, func(p *UserProfile) { p.RequireMFA = true })
	defer te.engine.Close()

	challengeID, code := beginChallenge(t, te, LoginRequest{
		Email: "alice@example.com", Password: "correct-password-123",
	})

	te.redis.FastForward(11 * time.Minute)

	outcome := complete(t, te, challengeID, code)
	if outcome.Status != OutcomeSessionExpired {
		t.Fatalf("expected session expired, got %v", outcome.Status)
	}
}

func TestCompleteMFAExpiredToken(t *testing.T) {
	// Token lifetime shorter than the pending session: the challenge is
	// still alive but the code has aged out, so the submission is just
	// invalid and the user can request a fresh code.
	te := newTestEngine(t, func(cfg *Config) {
		cfg.MFA.TokenTTL = time.Minute
	})
	seedAlice(te, func(p *UserProfile) { p.RequireMFA = true })
	defer te.engine.Close()

	challengeID, code := beginChallenge(t, te, LoginRequest{
		Email: "alice@example.com", Password: "correct-password-123",
	})

	te.redis.FastForward(2 * time.Minute)

	outcome := complete(t, te, challengeID, code)
	if outcome.Status != OutcomeMFAInvalid {
		t.Fatalf("expected MFA invalid, got %v", outcome.Status)
	}
}

func TestCompleteMFAReissueInvalidatesPriorToken(t *testing.T) {
	te := newTestEngine(t, nil)
	seedAlice(te, func(p *UserProfile) { p.RequireMFA = true })
	defer te.engine.Close()

	_, firstCode := beginChallenge(t, te, LoginRequest{
		Email: "alice@example.com", Password: "correct-password-123",
	})
	secondChallenge, secondCode := beginChallenge(t, te, LoginRequest{
		Email: "alice@example.com", Password: "correct-password-123",
	})

	if firstCode != secondCode {
		outcome := complete(t, te, secondChallenge, firstCode)
		if outcome.Status != OutcomeMFAInvalid {
			t.Fatalf("expected stale code to be rejected, got %v", outcome.Status)
		}
	}

	outcome := complete(t, te, secondChallenge, secondCode)
	if outcome.Status != OutcomeAuthenticated {
		t.Fatalf("expected fresh code to succeed, got %v", outcome.Status)
	}
}

func TestCompleteMFAChallengeSingleUse(t *testing.T) {
	te := newTestEngine(t, nil)
	seedAlice(te, func(p *UserProfile) { p.RequireMFA = true })
	defer te.engine.Close()

	challengeID, code := beginChallenge(t, te, LoginRequest{
		Email: "alice@example.com", Password: "correct-password-123",
	})

	first := complete(t, te, challengeID, code)
	if first.Status != OutcomeAuthenticated {
		t.Fatalf("expected authenticated, got %v", first.Status)
	}

	replay := complete(t, te, challengeID, code)
	if replay.Status != OutcomeSessionExpired {
		t.Fatalf("expected replay to hit an expired session, got %v", replay.Status)
	}
}

func TestCompleteMFAUserDeletedMidChallenge(t *testing.T) {
	te := newTestEngine(t, nil)
	seedAlice(te, func(p *UserProfile) { p.RequireMFA = true })
	defer te.engine.Close()

	challengeID, code := beginChallenge(t, te, LoginRequest{
		Email: "alice@example.com", Password: "correct-password-123",
	})

	te.provider.removeUser("u1")

	outcome := complete(t, te, challengeID, code)
	if outcome.Status != OutcomeSessionExpired {
		t.Fatalf("expected session expired, got %v", outcome.Status)
	}
	if te.redis.Exists("amp:" + challengeID) {
		t.Fatal("expected orphaned pending session to be dropped")
	}
}

func TestCompleteMFAEscalatedFlowEndToEnd(t *testing.T) {
	te := newTestEngine(t, nil)
	seedAlice(te, nil)
	defer te.engine.Close()

	var challengeID string
	for i := 0; i < 5; i++ {
		outcome := attempt(t, te, LoginRequest{Email: "alice@example.com", Password: "wrong"})
		if i < 4 {
			if outcome.Status != OutcomeInvalidCredentials {
				t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, outcome.Status)
			}
			continue
		}
		if outcome.Status != OutcomeMFARequired {
			t.Fatalf("fifth failure: expected MFA required, got %v", outcome.Status)
		}
		challengeID = outcome.ChallengeID
	}

	code := te.notifier.lastToken(t).Code
	outcome := complete(t, te, challengeID, code)
	if outcome.Status != OutcomeAuthenticated {
		t.Fatalf("expected authenticated, got %v", outcome.Status)
	}
	if got := te.provider.profile(t, "u1").FailedLoginCount; got != 0 {
		t.Fatalf("expected counter reset after MFA success, got %d", got)
	}
}

func TestMetricsTrackOutcomes(t *testing.T) {
	te := newTestEngine(t, nil)
	seedAlice(te, func(p *UserProfile) { p.RequireMFA = true })
	defer te.engine.Close()

	attempt(t, te, LoginRequest{Email: "nobody@example.com", Password: "x"})
	challengeID, code := beginChallenge(t, te, LoginRequest{
		Email: "alice@example.com", Password: "correct-password-123",
	})
	complete(t, te, challengeID, code)

	snap := te.engine.MetricsSnapshot()
	if snap.Counters[MetricLoginUnknownIdentity] != 1 {
		t.Fatalf("expected one unknown-identity hit, got %d", snap.Counters[MetricLoginUnknownIdentity])
	}
	if snap.Counters[MetricMFARequired] != 1 {
		t.Fatalf("expected one MFA challenge, got %d", snap.Counters[MetricMFARequired])
	}
	if snap.Counters[MetricMFASuccess] != 1 {
		t.Fatalf("expected one MFA success, got %d", snap.Counters[MetricMFASuccess])
	}
}
