// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package registry

import (
	"fmt"
	"time"
)

type Config struct {
	// DefaultMaxParticipants is the capacity of rooms created by a
	// credential that doesn't request one.
	DefaultMaxParticipants int `toml:"default_max_participants"`
	// MaxParticipantsLimit caps the capacity a credential can request.
	// Zero means no limit.
	MaxParticipantsLimit int `toml:"max_participants_limit"`
	// EmptyRoomGraceSeconds is how long an empty room is kept before being
	// destroyed.
	EmptyRoomGraceSeconds int `toml:"empty_room_grace_seconds"`
}

func (c Config) IsValid() error {
	if c.DefaultMaxParticipants <= 0 {
		return fmt.Errorf("invalid DefaultMaxParticipants value: should be a positive number")
	}

	if c.MaxParticipantsLimit < 0 {
		return fmt.Errorf("invalid MaxParticipantsLimit value: should not be negative")
	}

	if c.MaxParticipantsLimit > 0 && c.DefaultMaxParticipants > c.MaxParticipantsLimit {
		return fmt.Errorf("invalid DefaultMaxParticipants value: should not exceed MaxParticipantsLimit")
	}

	if c.EmptyRoomGraceSeconds < 0 {
		return fmt.Errorf("invalid EmptyRoomGraceSeconds value: should not be negative")
	}

	return nil
}

func (c *Config) SetDefaults() {
	c.DefaultMaxParticipants = 16
	c.MaxParticipantsLimit = 100
	c.EmptyRoomGraceSeconds = 300
}

func (c Config) gracePeriod() time.Duration {
	return time.Duration(c.EmptyRoomGraceSeconds) * time.Second
}

func (c Config) capacityFor(requested int) int {
	capacity := c.DefaultMaxParticipants
	if requested > 0 {
		capacity = requested
	}
	if c.MaxParticipantsLimit > 0 && capacity > c.MaxParticipantsLimit {
		capacity = c.MaxParticipantsLimit
	}
	return capacity
}
