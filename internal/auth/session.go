package auth

import (
	"crypto/hmac"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// DefaultSessionTTL is how long a minted session stays valid.
const DefaultSessionTTL = 2 * time.Hour

var (
	// ErrBadSession covers malformed tokens and MAC mismatches.
	ErrBadSession = errors.New("auth: invalid session token")
	// ErrSessionExpired is a structurally valid token past its expiry.
	ErrSessionExpired = errors.New("auth: session expired")
)

// SessionClaims is the signed token payload.
type SessionClaims struct {
	PlayerID  string `json:"playerId"`
	IssuedAt  int64  `json:"issuedAt"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Sessions mints and verifies session tokens under a fixed app secret.
type Sessions struct {
	secret []byte
	ttl    time.Duration
}

// NewSessions builds a session minter with the default TTL.
func NewSessions(appSecret string) *Sessions {
	return &Sessions{secret: []byte(appSecret), ttl: DefaultSessionTTL}
}

// Mint issues a token for playerID:
// base64url(payload) + "." + hex(HMAC-SHA256(appSecret, base64url(payload))).
func (s *Sessions) Mint(playerID string, now time.Time) string {
	claims := SessionClaims{
		PlayerID:  playerID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	}
	body, err := json.Marshal(claims)
	if err != nil {
		panic(err) // claims are plain scalars
	}
	payload := base64.RawURLEncoding.EncodeToString(body)
	mac := hex.EncodeToString(hmacSHA256(s.secret, []byte(payload)))
	return payload + "." + mac
}

// Verify recomputes the MAC with a constant-time compare and checks the
// expiry. The original claims come back unchanged on success.
func (s *Sessions) Verify(token string, now time.Time) (*SessionClaims, error) {
	payload, macHex, ok := strings.Cut(token, ".")
	if !ok || payload == "" {
		return nil, ErrBadSession
	}
	want := hex.EncodeToString(hmacSHA256(s.secret, []byte(payload)))
	if !hmac.Equal([]byte(want), []byte(macHex)) {
		return nil, ErrBadSession
	}
	body, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, ErrBadSession
	}
	var claims SessionClaims
	if err := json.Unmarshal(body, &claims); err != nil || claims.PlayerID == "" {
		return nil, ErrBadSession
	}
	if !now.Before(time.Unix(claims.ExpiresAt, 0)) {
		return nil, ErrSessionExpired
	}
	return &claims, nil
}
