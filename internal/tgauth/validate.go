// Package tgauth verifies the initData string a Telegram WebApp receives
// from its host client and identifies the user it was issued to.
package tgauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FutureSkew is how far auth_date may lie ahead of the server clock.
const FutureSkew = 60 * time.Second

// User is the part of the Telegram user the backend needs.
type User struct {
	ID int64 `json:"id"`
}

var (
	ErrMissingHash     = errors.New("initData has no hash")
	ErrBadAuthDate     = errors.New("initData has an invalid auth_date")
	ErrFromFuture      = errors.New("initData auth_date is in the future")
	ErrExpired         = errors.New("initData has expired")
	ErrBadSignature    = errors.New("initData signature mismatch")
	ErrMissingUser     = errors.New("initData has no user")
	ErrMalformedUser   = errors.New("initData has an invalid user")
	ErrMissingInitData = errors.New("missing X-TG-INIT-DATA header")
)

// Validate checks the signature and freshness of initData issued for the
// bot identified by botToken. maxAge <= 0 disables the age check.
func Validate(initData, botToken string, maxAge time.Duration, now time.Time) (User, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return User{}, fmt.Errorf("parsing initData: %w", err)
	}

	received := strings.ToLower(strings.TrimSpace(last(values, "hash")))
	if received == "" {
		return User{}, ErrMissingHash
	}

	authDate, err := strconv.ParseInt(strings.TrimSpace(last(values, "auth_date")), 10, 64)
	if err != nil {
		return User{}, ErrBadAuthDate
	}
	issued := time.Unix(authDate, 0)
	if issued.After(now.Add(FutureSkew)) {
		return User{}, ErrFromFuture
	}
	if maxAge > 0 && now.Sub(issued) > maxAge {
		return User{}, ErrExpired
	}

	expected := signature(dataCheckString(values), botToken)
	if !hmac.Equal([]byte(expected), []byte(received)) {
		return User{}, ErrBadSignature
	}

	raw := last(values, "user")
	if raw == "" {
		return User{}, ErrMissingUser
	}
	var u struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return User{}, ErrMalformedUser
	}
	id, err := u.ID.Int64()
	if err != nil {
		return User{}, ErrMalformedUser
	}
	return User{ID: id}, nil
}

// Sign returns initData carrying values and a valid hash for botToken.
// Any hash already present in values is replaced.
func Sign(values url.Values, botToken string) string {
	out := url.Values{}
	for k, vs := range values {
		if k == "hash" || len(vs) == 0 {
			continue
		}
		out.Set(k, vs[len(vs)-1])
	}
	out.Set("hash", signature(dataCheckString(out), botToken))
	return out.Encode()
}

// SignUser is a convenience wrapper producing initData for userID issued
// at authDate.
func SignUser(userID int64, authDate time.Time, botToken string) string {
	user, _ := json.Marshal(map[string]any{"id": userID})
	return Sign(url.Values{
		"auth_date": {strconv.FormatInt(authDate.Unix(), 10)},
		"user":      {string(user)},
	}, botToken)
}

// dataCheckString joins every key=value pair except hash, sorted by key,
// with newlines. A repeated key counts with its last value.
func dataCheckString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+last(values, k))
	}
	return strings.Join(lines, "\n")
}

func signature(dcs, botToken string) string {
	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(dcs))
	return hex.EncodeToString(mac.Sum(nil))
}

func last(values url.Values, key string) string {
	vs := values[key]
	if len(vs) == 0 {
		return ""
	}
	return vs[len(vs)-1]
}
