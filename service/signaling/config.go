// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package signaling

import (
	"fmt"
	"time"
)

type Config struct {
	// NegotiationTimeoutMs bounds the Negotiating state and every single
	// reconnection attempt.
	NegotiationTimeoutMs int `toml:"negotiation_timeout_ms"`
	// InboxSize is the capacity of a participant's event queue.
	InboxSize int `toml:"inbox_size"`
	// EventsSize is the capacity of a participant's lifecycle events
	// channel.
	EventsSize int `toml:"events_size"`
}

func (c Config) IsValid() error {
	if c.NegotiationTimeoutMs <= 0 {
		return fmt.Errorf("invalid NegotiationTimeoutMs value: should be a positive number")
	}

	if c.InboxSize <= 0 {
		return fmt.Errorf("invalid InboxSize value: should be a positive number")
	}

	if c.EventsSize <= 0 {
		return fmt.Errorf("invalid EventsSize value: should be a positive number")
	}

	return nil
}

func (c *Config) SetDefaults() {
	c.NegotiationTimeoutMs = 10000
	c.InboxSize = 64
	c.EventsSize = 64
}

func (c Config) negotiationTimeout() time.Duration {
	return time.Duration(c.NegotiationTimeoutMs) * time.Millisecond
}
