// Package auth implements the wallet handshake and bearer sessions: a
// one-time nonce challenge the wallet signs with its ed25519 key, exchanged
// for an opaque time-bounded session token.
package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"symbiote/internal/apperr"
	"symbiote/internal/database"
	"symbiote/internal/solana"

	"github.com/google/uuid"
)

const nonceLength = 24

// Store is the persistence surface the auth service needs.
type Store interface {
	CreateChallenge(walletAddress, nonce string, expiresAt time.Time) error
	LatestValidChallenge(walletAddress string, now time.Time) (*database.Challenge, error)
	DeleteChallenges(walletAddress string) error
	CleanupExpiredChallenges() error
	CreateSession(token, walletAddress string, expiresAt time.Time) error
	GetSession(token string) (*database.Session, error)
	DeleteSession(token string) error
	CleanupExpiredSessions() error
}

type Service struct {
	store        Store
	challengeTTL time.Duration
	sessionTTL   time.Duration
}

func NewService(store Store, challengeTTL, sessionTTL time.Duration) *Service {
	return &Service{
		store:        store,
		challengeTTL: challengeTTL,
		sessionTTL:   sessionTTL,
	}
}

// IssuedChallenge is the response to a challenge request.
type IssuedChallenge struct {
	WalletAddress string    `json:"walletAddress"`
	Nonce         string    `json:"nonce"`
	Message       string    `json:"message"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// BuildMessage returns the canonical message a wallet must sign. It binds
// both the wallet address and the nonce, so a signature cannot be replayed
// for another wallet or another challenge.
func BuildMessage(walletAddress, nonce string) string {
	return fmt.Sprintf("Symbiote Authentication\nWallet: %s\nNonce: %s", walletAddress, nonce)
}

// IssueChallenge mints a fresh nonce challenge for the wallet. Expired
// challenge rows for every wallet are purged as a side effect.
func (s *Service) IssueChallenge(walletAddress string) (*IssuedChallenge, error) {
	pk, err := solana.PublicKeyFromBase58(walletAddress)
	if err != nil {
		return nil, apperr.Validationf(apperr.CodeMalformedInput, "invalid wallet address: %v", err)
	}
	canonical := pk.String()

	nonceBytes := make([]byte, nonceLength)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	nonce := base64.RawURLEncoding.EncodeToString(nonceBytes)
	expiresAt := time.Now().Add(s.challengeTTL)

	if err := s.store.CleanupExpiredChallenges(); err != nil {
		return nil, fmt.Errorf("failed to cleanup expired challenges: %w", err)
	}
	if err := s.store.CreateChallenge(canonical, nonce, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	return &IssuedChallenge{
		WalletAddress: canonical,
		Nonce:         nonce,
		Message:       BuildMessage(canonical, nonce),
		ExpiresAt:     expiresAt,
	}, nil
}

// Verify checks the signature over the most recent unexpired challenge and
// mints a session. All challenge rows for the wallet are deleted on success
// so no issued nonce can ever be replayed.
func (s *Service) Verify(walletAddress, signatureBase64 string) (*database.Session, error) {
	pk, err := solana.PublicKeyFromBase58(walletAddress)
	if err != nil {
		return nil, apperr.Validationf(apperr.CodeMalformedInput, "invalid wallet address: %v", err)
	}
	canonical := pk.String()

	signature, err := base64.StdEncoding.DecodeString(signatureBase64)
	if err != nil {
		return nil, apperr.Validationf(apperr.CodeMalformedInput, "invalid base64 signature: %v", err)
	}
	if len(signature) != ed25519.SignatureSize {
		return nil, apperr.Validationf(apperr.CodeMalformedInput, "signature must be %d bytes", ed25519.SignatureSize)
	}

	challenge, err := s.store.LatestValidChallenge(canonical, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to look up challenge: %w", err)
	}
	if challenge == nil {
		return nil, apperr.Authf(apperr.CodeNoActiveChallenge, "no active challenge, request a new one first")
	}

	message := BuildMessage(canonical, challenge.Nonce)
	if !ed25519.Verify(pk.Bytes(), []byte(message), signature) {
		return nil, apperr.Authf(apperr.CodeInvalidSignature, "invalid wallet signature")
	}

	if err := s.store.DeleteChallenges(canonical); err != nil {
		return nil, fmt.Errorf("failed to consume challenges: %w", err)
	}
	if err := s.store.CleanupExpiredSessions(); err != nil {
		return nil, fmt.Errorf("failed to cleanup expired sessions: %w", err)
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	session := &database.Session{
		Token:         token,
		WalletAddress: canonical,
		ExpiresAt:     time.Now().Add(s.sessionTTL),
	}
	if err := s.store.CreateSession(session.Token, session.WalletAddress, session.ExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return session, nil
}

func newToken() (string, error) {
	suffix := make([]byte, 12)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return uuid.NewString() + "-" + hex.EncodeToString(suffix), nil
}

// ResolveSession validates a bearer Authorization header and returns the
// bound session. An expired session row is deleted on detection.
func (s *Service) ResolveSession(authorizationHeader string) (*database.Session, error) {
	if !strings.HasPrefix(authorizationHeader, "Bearer ") {
		return nil, apperr.Authf(apperr.CodeMissingToken, "missing bearer token")
	}
	token := strings.TrimSpace(strings.TrimPrefix(authorizationHeader, "Bearer "))
	if token == "" {
		return nil, apperr.Authf(apperr.CodeMissingToken, "missing bearer token")
	}

	session, err := s.store.GetSession(token)
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if session == nil {
		return nil, apperr.Authf(apperr.CodeInvalidToken, "invalid session")
	}
	if !time.Now().Before(session.ExpiresAt) {
		if err := s.store.DeleteSession(token); err != nil {
			return nil, fmt.Errorf("failed to delete expired session: %w", err)
		}
		return nil, apperr.Authf(apperr.CodeSessionExpired, "session expired")
	}

	return session, nil
}

// RequireWalletMatch rejects requests whose payload names a wallet other
// than the one the session authenticated.
func RequireWalletMatch(sessionWallet, requestWallet string) error {
	if sessionWallet != requestWallet {
		return apperr.Validationf(apperr.CodeWalletMismatch, "authenticated wallet does not match request wallet")
	}
	return nil
}
