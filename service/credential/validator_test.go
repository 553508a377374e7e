// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package credential

import (
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testKey  = "0123456789abcdef0123456789abcdef"
	otherKey = "fedcba9876543210fedcba9876543210"
)

func setupValidator(t *testing.T, now time.Time) (*Validator, *Issuer) {
	t.Helper()
	v, err := NewValidator(testKey, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	iss, err := NewIssuer(testKey)
	require.NoError(t, err)
	return v, iss
}

func issueAt(t *testing.T, key string, claims Claims) []byte {
	t.Helper()
	iss, err := NewIssuer(key)
	require.NoError(t, err)
	token, err := iss.Issue(claims)
	require.NoError(t, err)
	return []byte(token)
}

func requireReason(t *testing.T, err error, reason Reason) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidCredential)
	r, ok := ReasonOf(err)
	require.True(t, ok)
	require.Equal(t, reason, r)
}

func TestNewValidator(t *testing.T) {
	t.Run("short key", func(t *testing.T) {
		v, err := NewValidator("short")
		require.EqualError(t, err, "invalid key: should be at least 32 characters long")
		require.Nil(t, v)
	})

	t.Run("nil clock", func(t *testing.T) {
		v, err := NewValidator(testKey, WithClock(nil))
		require.EqualError(t, err, "invalid clock: should not be nil")
		require.Nil(t, v)
	})

	t.Run("negative leeway", func(t *testing.T) {
		v, err := NewValidator(testKey, WithLeeway(-time.Second))
		require.EqualError(t, err, "invalid leeway: should not be negative")
		require.Nil(t, v)
	})
}

func TestValidate(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	v, iss := setupValidator(t, now)

	t.Run("valid", func(t *testing.T) {
		claims := NewClaims("alice", "R1", time.Hour, PermissionPublishAudio, PermissionSubscribe)
		claims.Name = "Alice"
		claims.RoomCapacity = 2
		token, err := iss.Issue(claims)
		require.NoError(t, err)

		cred, err := v.Validate([]byte(token))
		require.NoError(t, err)
		require.Equal(t, "alice", cred.Identity)
		require.Equal(t, "Alice", cred.DisplayName)
		require.Equal(t, "R1", cred.RoomID)
		require.Equal(t, 2, cred.RoomCapacity)
		require.True(t, cred.Can(PermissionPublishAudio))
		require.True(t, cred.Can(PermissionSubscribe))
		require.False(t, cred.Can(PermissionPublishVideo))
		require.Equal(t, claims.ExpiresAt.Unix(), cred.ExpiresAt.Unix())
	})

	t.Run("display name defaults to identity", func(t *testing.T) {
		cred, err := v.Validate(issueAt(t, testKey, NewClaims("bob", "R1", time.Hour)))
		require.NoError(t, err)
		require.Equal(t, "bob", cred.DisplayName)
	})

	t.Run("malformed", func(t *testing.T) {
		for name, raw := range map[string]string{
			"empty":         "",
			"two segments":  "a.b",
			"four segments": "a.b.c.d",
			"bad base64":    "!!!.###.$$$",
			"not json":      base64.RawURLEncoding.EncodeToString([]byte("nope")) + ".e30.sig",
		} {
			t.Run(name, func(t *testing.T) {
				_, err := v.Validate([]byte(raw))
				requireReason(t, err, ReasonMalformed)
			})
		}
	})

	t.Run("missing claims", func(t *testing.T) {
		claims := NewClaims("alice", "R1", time.Hour)
		claims.Room = ""
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testKey))
		require.NoError(t, err)
		_, err = v.Validate([]byte(token))
		requireReason(t, err, ReasonMalformed)
		require.Contains(t, err.Error(), "missing room claim")
	})

	t.Run("unknown permission", func(t *testing.T) {
		claims := NewClaims("alice", "R1", time.Hour, Permission("admin"))
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testKey))
		require.NoError(t, err)
		_, err = v.Validate([]byte(token))
		requireReason(t, err, ReasonMalformed)
	})

	t.Run("unexpected algorithm", func(t *testing.T) {
		claims := NewClaims("alice", "R1", time.Hour)
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testKey))
		require.NoError(t, err)
		_, err = v.Validate([]byte(token))
		requireReason(t, err, ReasonMalformed)
	})

	t.Run("signature mismatch", func(t *testing.T) {
		_, err := v.Validate(issueAt(t, otherKey, NewClaims("alice", "R1", time.Hour)))
		requireReason(t, err, ReasonSignatureMismatch)
	})

	t.Run("tampered payload", func(t *testing.T) {
		token := string(issueAt(t, testKey, NewClaims("alice", "R1", time.Hour)))
		parts := strings.Split(token, ".")
		forged := issueAt(t, otherKey, NewClaims("mallory", "R1", time.Hour))
		parts[1] = strings.Split(string(forged), ".")[1]
		_, err := v.Validate([]byte(strings.Join(parts, ".")))
		requireReason(t, err, ReasonSignatureMismatch)
	})

	t.Run("not valid yet", func(t *testing.T) {
		claims := NewClaims("alice", "R1", time.Hour)
		claims.NotBefore = jwt.NewNumericDate(now.Add(time.Minute))
		_, err := v.Validate(issueAt(t, testKey, claims))
		requireReason(t, err, ReasonMalformed)
	})
}

func TestValidateExpiredTakesPrecedence(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	v, _ := setupValidator(t, now)

	for _, ago := range []time.Duration{0, time.Second, time.Minute, 24 * time.Hour} {
		claims := NewClaims("alice", "R1", time.Hour)
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(-ago))

		t.Run("valid signature "+ago.String(), func(t *testing.T) {
			_, err := v.Validate(issueAt(t, testKey, claims))
			requireReason(t, err, ReasonExpired)
		})

		t.Run("bad signature "+ago.String(), func(t *testing.T) {
			_, err := v.Validate(issueAt(t, otherKey, claims))
			requireReason(t, err, ReasonExpired)
		})
	}
}

func TestValidateLeeway(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	v, err := NewValidator(testKey,
		WithClock(func() time.Time { return now }),
		WithLeeway(30*time.Second))
	require.NoError(t, err)

	claims := NewClaims("alice", "R1", time.Hour)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(-10 * time.Second))
	_, err = v.Validate(issueAt(t, testKey, claims))
	require.NoError(t, err)

	claims.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
	_, err = v.Validate(issueAt(t, testKey, claims))
	requireReason(t, err, ReasonExpired)
}

func TestValidateConcurrent(t *testing.T) {
	v, iss := setupValidator(t, time.Now())

	token, err := iss.Issue(NewClaims("alice", "R1", time.Hour, PermissionSubscribe))
	require.NoError(t, err)

	var wg sync.WaitGroup
	n := 20
	errCh := make(chan error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := v.Validate([]byte(token))
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}
}

func TestRoomOf(t *testing.T) {
	t.Run("expired credential from another key", func(t *testing.T) {
		claims := NewClaims("alice", "R1", -time.Hour)
		room, err := RoomOf(string(issueAt(t, otherKey, claims)))
		require.NoError(t, err)
		require.Equal(t, "R1", room)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := RoomOf("not-a-token")
		requireReason(t, err, ReasonMalformed)
	})

	t.Run("missing room", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, NewClaims("alice", "", time.Hour)).SignedString([]byte(testKey))
		require.NoError(t, err)
		_, err = RoomOf(token)
		requireReason(t, err, ReasonMalformed)
	})
}
