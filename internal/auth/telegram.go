// Package auth validates the Telegram Web App handshake and mints the
// short-lived HMAC session tokens presented on every connection.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strings"
)

// ErrBadInitData is returned for any handshake that fails structural or
// signature validation. Callers surface it as 401; no detail leaks which
// check failed.
var ErrBadInitData = errors.New("auth: invalid init data")

// TelegramUser is the verified identity embedded in initData.
type TelegramUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// ValidateInitData checks the Telegram Web App signature over initData
// using the bot token, per the documented scheme: the data-check string
// is the sorted key=value pairs (hash excluded) joined by newlines, the
// secret key is HMAC-SHA256("WebAppData", botToken), and the hash is the
// lowercase hex HMAC of the data-check string under that key.
func ValidateInitData(initData, botToken string) (*TelegramUser, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, ErrBadInitData
	}
	gotHash := values.Get("hash")
	if gotHash == "" {
		return nil, ErrBadInitData
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values.Get(k))
	}
	dataCheckString := strings.Join(pairs, "\n")

	secret := hmacSHA256([]byte("WebAppData"), []byte(botToken))
	expected := hex.EncodeToString(hmacSHA256(secret, []byte(dataCheckString)))
	if !hmac.Equal([]byte(expected), []byte(gotHash)) {
		return nil, ErrBadInitData
	}

	var user TelegramUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return nil, ErrBadInitData
	}
	return &user, nil
}

// SignInitData produces a valid initData string for the given pairs.
// Used by tests and local tooling; the production handshake arrives
// pre-signed from Telegram.
func SignInitData(pairs url.Values, botToken string) string {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	joined := make([]string, 0, len(keys))
	for _, k := range keys {
		joined = append(joined, k+"="+pairs.Get(k))
	}
	secret := hmacSHA256([]byte("WebAppData"), []byte(botToken))
	sum := hex.EncodeToString(hmacSHA256(secret, []byte(strings.Join(joined, "\n"))))

	out := url.Values{}
	for k := range pairs {
		out.Set(k, pairs.Get(k))
	}
	out.Set("hash", sum)
	return out.Encode()
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
