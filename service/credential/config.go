// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package credential

import (
	"fmt"
	"time"
)

const MinSigningKeyLen = 32

type Config struct {
	// SigningKey is the shared HS256 secret credentials are signed with.
	SigningKey string `toml:"signing_key"`
	// LeewaySeconds is the clock skew tolerated when checking expiry.
	LeewaySeconds int `toml:"leeway_seconds"`
	// DefaultTTLMinutes is the lifetime of credentials issued without an
	// explicit expiry.
	DefaultTTLMinutes int `toml:"default_ttl_minutes"`
}

func (c Config) IsValid() error {
	if len(c.SigningKey) < MinSigningKeyLen {
		return fmt.Errorf("invalid SigningKey value: should be at least %d characters long", MinSigningKeyLen)
	}

	if c.LeewaySeconds < 0 {
		return fmt.Errorf("invalid LeewaySeconds value: should not be negative")
	}

	if c.DefaultTTLMinutes <= 0 {
		return fmt.Errorf("invalid DefaultTTLMinutes value: should be a positive number")
	}

	return nil
}

func (c *Config) SetDefaults() {
	c.DefaultTTLMinutes = 60
}

func (c Config) Leeway() time.Duration {
	return time.Duration(c.LeewaySeconds) * time.Second
}

func (c Config) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLMinutes) * time.Minute
}
