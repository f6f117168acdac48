package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/SendSign/SendSign-sub000/internal/models"
	"github.com/SendSign/SendSign-sub000/internal/store"
)

// DefaultTokenTTL is how long a freshly minted signing token stays valid.
const DefaultTokenTTL = 72 * time.Hour

// TokenManager mints, validates and revokes the single-use ceremony tokens
// that authenticate signers. A token is an opaque 256-bit random string bound
// 1:1 to a signer record.
type TokenManager struct {
	store store.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewTokenManager creates a TokenManager. A zero ttl selects DefaultTokenTTL.
func NewTokenManager(st store.Store, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{store: st, ttl: ttl, now: time.Now}
}

// Mint ensures the signer holds a live token, generating one only when the
// existing token is missing or expired. Links already delivered to the signer
// keep working across resends. Returns whether a new token was issued.
func (m *TokenManager) Mint(s *models.Signer) (bool, error) {
	if s.TokenLive(m.now()) {
		return false, nil
	}
	token, err := newToken()
	if err != nil {
		return false, fmt.Errorf("failed to mint signing token: %w", err)
	}
	s.SigningToken = token
	s.TokenExpiresAt = m.now().Add(m.ttl)
	return true, nil
}

// Revoke nulls the signer's token and expiry. Invoked on decline, on
// delegation of the original signer, on completion, and on envelope void.
func (m *TokenManager) Revoke(s *models.Signer) {
	s.SigningToken = ""
	s.TokenExpiresAt = time.Time{}
}

// Validate resolves a presented token to its signer and envelope. The tenant
// scope of the ceremony call is the returned envelope's OrgID.
func (m *TokenManager) Validate(ctx context.Context, token string) (*models.Signer, *models.Envelope, error) {
	if token == "" {
		return nil, nil, &InvalidToken{Reason: "not_found"}
	}
	signer, env, err := m.store.SignerByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, &InvalidToken{Reason: "not_found"}
		}
		return nil, nil, fmt.Errorf("failed to resolve token: %w", err)
	}
	if !m.now().Before(signer.TokenExpiresAt) {
		return nil, nil, &InvalidToken{Reason: "expired"}
	}
	if !signer.Actionable() {
		return nil, nil, &InvalidToken{Reason: "consumed"}
	}
	return signer, env, nil
}

// newToken returns 32 bytes of crypto/rand entropy as unpadded base64url.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
