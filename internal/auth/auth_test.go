package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"
	"time"

	"symbiote/internal/apperr"
	"symbiote/internal/database"

	"github.com/mr-tron/base58"
)

type fakeStore struct {
	nextID     int64
	challenges []database.Challenge
	sessions   map[string]database.Session
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]database.Session)}
}

func (s *fakeStore) CreateChallenge(walletAddress, nonce string, expiresAt time.Time) error {
	s.nextID++
	s.challenges = append(s.challenges, database.Challenge{
		ID:            s.nextID,
		WalletAddress: walletAddress,
		Nonce:         nonce,
		ExpiresAt:     expiresAt,
	})
	return nil
}

func (s *fakeStore) LatestValidChallenge(walletAddress string, now time.Time) (*database.Challenge, error) {
	var latest *database.Challenge
	for i := range s.challenges {
		c := s.challenges[i]
		if c.WalletAddress != walletAddress || !c.ExpiresAt.After(now) {
			continue
		}
		if latest == nil || c.ID > latest.ID {
			latest = &s.challenges[i]
		}
	}
	return latest, nil
}

func (s *fakeStore) DeleteChallenges(walletAddress string) error {
	kept := s.challenges[:0]
	for _, c := range s.challenges {
		if c.WalletAddress != walletAddress {
			kept = append(kept, c)
		}
	}
	s.challenges = kept
	return nil
}

func (s *fakeStore) CleanupExpiredChallenges() error {
	now := time.Now()
	kept := s.challenges[:0]
	for _, c := range s.challenges {
		if c.ExpiresAt.After(now) {
			kept = append(kept, c)
		}
	}
	s.challenges = kept
	return nil
}

func (s *fakeStore) CreateSession(token, walletAddress string, expiresAt time.Time) error {
	s.sessions[token] = database.Session{Token: token, WalletAddress: walletAddress, ExpiresAt: expiresAt}
	return nil
}

func (s *fakeStore) GetSession(token string) (*database.Session, error) {
	if session, ok := s.sessions[token]; ok {
		return &session, nil
	}
	return nil, nil
}

func (s *fakeStore) DeleteSession(token string) error {
	delete(s.sessions, token)
	return nil
}

func (s *fakeStore) CleanupExpiredSessions() error {
	now := time.Now()
	for token, session := range s.sessions {
		if !session.ExpiresAt.After(now) {
			delete(s.sessions, token)
		}
	}
	return nil
}

func newTestWallet(t *testing.T) (string, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return base58.Encode(pub), priv
}

func newTestService(store Store) *Service {
	return NewService(store, 5*time.Minute, 24*time.Hour)
}

func signChallenge(priv ed25519.PrivateKey, message string) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(message)))
}

func TestIssueChallenge(t *testing.T) {
	wallet, _ := newTestWallet(t)
	svc := newTestService(newFakeStore())

	challenge, err := svc.IssueChallenge(wallet)
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}

	if challenge.Nonce == "" {
		t.Error("nonce should not be empty")
	}
	wantMessage := fmt.Sprintf("Symbiote Authentication\nWallet: %s\nNonce: %s", wallet, challenge.Nonce)
	if challenge.Message != wantMessage {
		t.Errorf("message = %q, want %q", challenge.Message, wantMessage)
	}
	ttl := time.Until(challenge.ExpiresAt)
	if ttl < 4*time.Minute || ttl > 5*time.Minute {
		t.Errorf("challenge TTL = %v, want about 5 minutes", ttl)
	}
}

func TestIssueChallengeRejectsBadAddress(t *testing.T) {
	svc := newTestService(newFakeStore())

	if _, err := svc.IssueChallenge("not-a-wallet-0OIl"); !apperr.HasCode(err, apperr.CodeMalformedInput) {
		t.Errorf("expected malformed_input, got %v", err)
	}
}

func TestVerifyMintsSession(t *testing.T) {
	wallet, priv := newTestWallet(t)
	store := newFakeStore()
	svc := newTestService(store)

	challenge, err := svc.IssueChallenge(wallet)
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}

	session, err := svc.Verify(wallet, signChallenge(priv, challenge.Message))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if session.Token == "" {
		t.Error("token should not be empty")
	}
	if session.WalletAddress != wallet {
		t.Errorf("session wallet = %q, want %q", session.WalletAddress, wallet)
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl < 23*time.Hour || ttl > 24*time.Hour {
		t.Errorf("session TTL = %v, want about 24 hours", ttl)
	}
	if len(store.challenges) != 0 {
		t.Errorf("challenges left after verify = %d, want 0", len(store.challenges))
	}
}

func TestVerifyIsOneShot(t *testing.T) {
	wallet, priv := newTestWallet(t)
	svc := newTestService(newFakeStore())

	challenge, err := svc.IssueChallenge(wallet)
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	signature := signChallenge(priv, challenge.Message)

	if _, err := svc.Verify(wallet, signature); err != nil {
		t.Fatalf("first Verify: %v", err)
	}
	if _, err := svc.Verify(wallet, signature); !apperr.HasCode(err, apperr.CodeNoActiveChallenge) {
		t.Errorf("second Verify: expected no_active_challenge, got %v", err)
	}
}

func TestVerifyUsesLatestChallengeOnly(t *testing.T) {
	wallet, priv := newTestWallet(t)
	svc := newTestService(newFakeStore())

	older, err := svc.IssueChallenge(wallet)
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	newer, err := svc.IssueChallenge(wallet)
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}

	// A signature over the older, still-unexpired challenge no longer
	// verifies once a newer one exists.
	if _, err := svc.Verify(wallet, signChallenge(priv, older.Message)); !apperr.HasCode(err, apperr.CodeInvalidSignature) {
		t.Errorf("old challenge: expected invalid_signature, got %v", err)
	}
	if _, err := svc.Verify(wallet, signChallenge(priv, newer.Message)); err != nil {
		t.Errorf("new challenge: %v", err)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	wallet, _ := newTestWallet(t)
	_, otherPriv := newTestWallet(t)
	svc := newTestService(newFakeStore())

	challenge, err := svc.IssueChallenge(wallet)
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}

	if _, err := svc.Verify(wallet, signChallenge(otherPriv, challenge.Message)); !apperr.HasCode(err, apperr.CodeInvalidSignature) {
		t.Errorf("expected invalid_signature, got %v", err)
	}
}

func TestVerifyWithoutChallenge(t *testing.T) {
	wallet, priv := newTestWallet(t)
	svc := newTestService(newFakeStore())

	if _, err := svc.Verify(wallet, signChallenge(priv, "anything")); !apperr.HasCode(err, apperr.CodeNoActiveChallenge) {
		t.Errorf("expected no_active_challenge, got %v", err)
	}
}

func TestResolveSession(t *testing.T) {
	wallet, priv := newTestWallet(t)
	store := newFakeStore()
	svc := newTestService(store)

	challenge, err := svc.IssueChallenge(wallet)
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	session, err := svc.Verify(wallet, signChallenge(priv, challenge.Message))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	resolved, err := svc.ResolveSession("Bearer " + session.Token)
	if err != nil {
		t.Fatalf("ResolveSession: %v", err)
	}
	if resolved.WalletAddress != wallet {
		t.Errorf("resolved wallet = %q, want %q", resolved.WalletAddress, wallet)
	}
}

func TestResolveSessionErrors(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	tests := []struct {
		name     string
		header   string
		wantCode string
	}{
		{"missing header", "", apperr.CodeMissingToken},
		{"not bearer", "Basic abc", apperr.CodeMissingToken},
		{"empty token", "Bearer ", apperr.CodeMissingToken},
		{"unknown token", "Bearer nope", apperr.CodeInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ResolveSession(tt.header); !apperr.HasCode(err, tt.wantCode) {
				t.Errorf("expected %s, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestResolveSessionExpiryIsLazy(t *testing.T) {
	wallet, _ := newTestWallet(t)
	store := newFakeStore()
	svc := newTestService(store)

	store.CreateSession("stale-token", wallet, time.Now().Add(-time.Minute))

	if _, err := svc.ResolveSession("Bearer stale-token"); !apperr.HasCode(err, apperr.CodeSessionExpired) {
		t.Fatalf("expected session_expired, got %v", err)
	}
	if _, ok := store.sessions["stale-token"]; ok {
		t.Error("expired session row should be deleted on resolve")
	}

	// The row is gone, so the same token is now simply unknown.
	if _, err := svc.ResolveSession("Bearer stale-token"); !apperr.HasCode(err, apperr.CodeInvalidToken) {
		t.Errorf("expected invalid_token after deletion, got %v", err)
	}
}

func TestRequireWalletMatch(t *testing.T) {
	if err := RequireWalletMatch("W1", "W1"); err != nil {
		t.Errorf("matching wallets: %v", err)
	}
	if err := RequireWalletMatch("W1", "W2"); !apperr.HasCode(err, apperr.CodeWalletMismatch) {
		t.Errorf("expected wallet_mismatch, got %v", err)
	}
}

func TestSessionTokenShape(t *testing.T) {
	token, err := newToken()
	if err != nil {
		t.Fatalf("newToken: %v", err)
	}
	if parts := strings.Split(token, "-"); len(parts) < 6 {
		t.Errorf("token %q should be uuid plus random suffix", token)
	}
}
