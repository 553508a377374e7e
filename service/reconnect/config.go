// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package reconnect

import (
	"fmt"
	"time"
)

type Config struct {
	// BaseDelayMs is the delay before the first reconnection attempt.
	BaseDelayMs int `toml:"base_delay_ms"`
	// MaxDelayMs caps the delay between attempts.
	MaxDelayMs int     `toml:"max_delay_ms"`
	Multiplier float64 `toml:"multiplier"`
	// Jitter is the fraction (0 to 1) by which a delay can randomly deviate.
	Jitter float64 `toml:"jitter"`
	// MaxAttempts bounds the number of consecutive attempts. Zero means no bound.
	MaxAttempts int `toml:"max_attempts"`
	// MaxElapsedSeconds bounds the time spent reconnecting. Zero means no bound.
	MaxElapsedSeconds int `toml:"max_elapsed_seconds"`
}

func (c Config) IsValid() error {
	if c.BaseDelayMs <= 0 {
		return fmt.Errorf("invalid BaseDelayMs value: should be a positive number")
	}

	if c.MaxDelayMs < c.BaseDelayMs {
		return fmt.Errorf("invalid MaxDelayMs value: should not be lower than BaseDelayMs")
	}

	if c.Multiplier < 1 {
		return fmt.Errorf("invalid Multiplier value: should be at least 1")
	}

	if c.Jitter < 0 || c.Jitter > 1 {
		return fmt.Errorf("invalid Jitter value: should be in the range [0, 1]")
	}

	if c.MaxAttempts < 0 {
		return fmt.Errorf("invalid MaxAttempts value: should not be negative")
	}

	if c.MaxElapsedSeconds < 0 {
		return fmt.Errorf("invalid MaxElapsedSeconds value: should not be negative")
	}

	if c.MaxAttempts == 0 && c.MaxElapsedSeconds == 0 {
		return fmt.Errorf("invalid retry budget: either MaxAttempts or MaxElapsedSeconds should be set")
	}

	return nil
}

func (c *Config) SetDefaults() {
	c.BaseDelayMs = 1000
	c.MaxDelayMs = 30000
	c.Multiplier = 2
	c.Jitter = 0.2
	c.MaxAttempts = 5
	c.MaxElapsedSeconds = 120
}

func (c Config) baseDelay() time.Duration {
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}

func (c Config) maxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

func (c Config) maxElapsed() time.Duration {
	return time.Duration(c.MaxElapsedSeconds) * time.Second
}
