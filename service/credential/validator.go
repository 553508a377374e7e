// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package credential

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const signingAlg = "HS256"

// Validator verifies raw credentials. It holds no mutable state and is
// safe for concurrent use.
type Validator struct {
	key    []byte
	leeway time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

type ValidatorOption func(v *Validator) error

// WithClock makes the validator use fn as its time source.
func WithClock(fn func() time.Time) ValidatorOption {
	return func(v *Validator) error {
		if fn == nil {
			return fmt.Errorf("invalid clock: should not be nil")
		}
		v.now = fn
		return nil
	}
}

func WithLeeway(d time.Duration) ValidatorOption {
	return func(v *Validator) error {
		if d < 0 {
			return fmt.Errorf("invalid leeway: should not be negative")
		}
		v.leeway = d
		return nil
	}
}

func NewValidator(key string, opts ...ValidatorOption) (*Validator, error) {
	if len(key) < MinSigningKeyLen {
		return nil, fmt.Errorf("invalid key: should be at least %d characters long", MinSigningKeyLen)
	}

	v := &Validator{
		key: []byte(key),
		now: time.Now,
		// Time based claims are checked by Validate itself so that expiry
		// takes precedence over signature verification.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{signingAlg}),
			jwt.WithoutClaimsValidation(),
		),
	}

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}

	return v, nil
}

// Validate checks raw in order: structure, expiry, signature. Any failure
// is returned as an *InvalidCredentialError.
func (v *Validator) Validate(raw []byte) (Credential, error) {
	token := strings.TrimSpace(string(raw))

	if strings.Count(token, ".") != 2 {
		return Credential{}, newInvalidCredentialError(ReasonMalformed, fmt.Errorf("token should have three segments"))
	}

	var claims Claims
	parsed, _, err := v.parser.ParseUnverified(token, &claims)
	if err != nil {
		return Credential{}, newInvalidCredentialError(ReasonMalformed, err)
	}
	if alg := parsed.Method.Alg(); alg != signingAlg {
		return Credential{}, newInvalidCredentialError(ReasonMalformed, fmt.Errorf("unexpected signing method %q", alg))
	}
	if err := claims.validate(); err != nil {
		return Credential{}, newInvalidCredentialError(ReasonMalformed, err)
	}

	now := v.now()
	if !now.Before(claims.ExpiresAt.Time.Add(v.leeway)) {
		return Credential{}, newInvalidCredentialError(ReasonExpired, jwt.ErrTokenExpired)
	}
	if claims.NotBefore != nil && now.Add(v.leeway).Before(claims.NotBefore.Time) {
		return Credential{}, newInvalidCredentialError(ReasonMalformed, jwt.ErrTokenNotValidYet)
	}

	if _, err := v.parser.ParseWithClaims(token, &Claims{}, v.keyFunc); err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return Credential{}, newInvalidCredentialError(ReasonSignatureMismatch, jwt.ErrTokenSignatureInvalid)
		}
		return Credential{}, newInvalidCredentialError(ReasonMalformed, err)
	}

	return claims.credential(), nil
}

func (v *Validator) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return v.key, nil
}

// RoomOf returns the room claim of raw without verifying its signature or
// expiry. It only tells which room a credential targets; admission still
// goes through Validate.
func RoomOf(raw string) (string, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(raw), &claims); err != nil {
		return "", newInvalidCredentialError(ReasonMalformed, err)
	}
	if claims.Room == "" {
		return "", newInvalidCredentialError(ReasonMalformed, fmt.Errorf("missing room claim"))
	}
	return claims.Room, nil
}
