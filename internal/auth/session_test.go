package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionMintVerifyRoundTrip(t *testing.T) {
	s := NewSessions("app-secret")
	now := time.Unix(1700000000, 0)

	token := s.Mint("player-1", now)
	claims, err := s.Verify(token, now.Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, "player-1", claims.PlayerID)
	assert.Equal(t, now.Unix(), claims.IssuedAt)
	assert.Equal(t, now.Add(DefaultSessionTTL).Unix(), claims.ExpiresAt)
}

func TestSessionExpired(t *testing.T) {
	s := NewSessions("app-secret")
	now := time.Unix(1700000000, 0)

	token := s.Mint("player-1", now)
	_, err := s.Verify(token, now.Add(DefaultSessionTTL))
	assert.ErrorIs(t, err, ErrSessionExpired)

	// One second before the boundary is still valid.
	_, err = s.Verify(token, now.Add(DefaultSessionTTL-time.Second))
	assert.NoError(t, err)
}

func TestSessionRejectsTamperedPayload(t *testing.T) {
	s := NewSessions("app-secret")
	token := s.Mint("player-1", time.Now())

	payload, mac, _ := strings.Cut(token, ".")
	flipped := "A" + payload[1:]
	if flipped == payload {
		flipped = "B" + payload[1:]
	}
	_, err := s.Verify(flipped+"."+mac, time.Now())
	assert.ErrorIs(t, err, ErrBadSession)
}

func TestSessionRejectsWrongSecret(t *testing.T) {
	minter := NewSessions("secret-a")
	verifier := NewSessions("secret-b")

	token := minter.Mint("player-1", time.Now())
	_, err := verifier.Verify(token, time.Now())
	assert.ErrorIs(t, err, ErrBadSession)
}

func TestSessionRejectsGarbage(t *testing.T) {
	s := NewSessions("app-secret")
	for _, tok := range []string{"", ".", "abc", "abc.", ".def", "not-base64!.00"} {
		_, err := s.Verify(tok, time.Now())
		assert.ErrorIs(t, err, ErrBadSession, "token %q", tok)
	}
}
