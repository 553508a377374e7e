// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package credential

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

type Issuer struct {
	key []byte
}

func NewIssuer(key string) (*Issuer, error) {
	if len(key) < MinSigningKeyLen {
		return nil, fmt.Errorf("invalid key: should be at least %d characters long", MinSigningKeyLen)
	}
	return &Issuer{key: []byte(key)}, nil
}

// Issue returns the signed token for claims.
func (i *Issuer) Issue(claims Claims) (string, error) {
	if err := claims.validate(); err != nil {
		return "", fmt.Errorf("failed to issue credential: %w", err)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign credential: %w", err)
	}

	return signed, nil
}
