// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package credential validates and issues the signed credentials that
// participants present to join a room.
package credential

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Permission string

const (
	PermissionPublishAudio Permission = "publish_audio"
	PermissionPublishVideo Permission = "publish_video"
	PermissionSubscribe    Permission = "subscribe"
)

func (p Permission) IsValid() error {
	switch p {
	case PermissionPublishAudio, PermissionPublishVideo, PermissionSubscribe:
		return nil
	default:
		return fmt.Errorf("unknown permission %q", string(p))
	}
}

// Credential is the validated, immutable content of a participant token.
type Credential struct {
	Identity     string
	DisplayName  string
	RoomID       string
	Permissions  []Permission
	ExpiresAt    time.Time
	IssuedAt     time.Time
	RoomCapacity int
}

func (c Credential) Can(p Permission) bool {
	return slices.Contains(c.Permissions, p)
}

// Claims is the JWT payload of a credential.
type Claims struct {
	Room         string       `json:"room"`
	Permissions  []Permission `json:"perms"`
	Name         string       `json:"name,omitempty"`
	RoomCapacity int          `json:"room_capacity,omitempty"`
	jwt.RegisteredClaims
}

// NewClaims returns the claims for a credential granting access to roomID
// for the given ttl.
func NewClaims(identity, roomID string, ttl time.Duration, perms ...Permission) Claims {
	now := time.Now()
	return Claims{
		Room:        roomID,
		Permissions: perms,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func (c Claims) credential() Credential {
	cred := Credential{
		Identity:     c.Subject,
		DisplayName:  c.Name,
		RoomID:       c.Room,
		Permissions:  slices.Clone(c.Permissions),
		RoomCapacity: c.RoomCapacity,
	}
	if c.ExpiresAt != nil {
		cred.ExpiresAt = c.ExpiresAt.Time
	}
	if c.IssuedAt != nil {
		cred.IssuedAt = c.IssuedAt.Time
	}
	if cred.DisplayName == "" {
		cred.DisplayName = cred.Identity
	}
	return cred
}

// validate checks that all the required claims are present and well formed.
func (c Claims) validate() error {
	if c.Subject == "" {
		return fmt.Errorf("missing sub claim")
	}
	if c.Room == "" {
		return fmt.Errorf("missing room claim")
	}
	if c.ExpiresAt == nil {
		return fmt.Errorf("missing exp claim")
	}
	if c.RoomCapacity < 0 {
		return fmt.Errorf("invalid room_capacity claim: should not be negative")
	}
	for _, p := range c.Permissions {
		if err := p.IsValid(); err != nil {
			return fmt.Errorf("invalid perms claim: %w", err)
		}
	}
	return nil
}
