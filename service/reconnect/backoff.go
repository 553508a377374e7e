// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package reconnect

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes the delays of a sequence of consecutive reconnection
// attempts. Delays never decrease and never exceed the configured maximum.
// It is not safe for concurrent use.
type Backoff struct {
	cfg     Config
	rand    func() float64
	attempt int
	prev    time.Duration
}

func NewBackoff(cfg Config) *Backoff {
	return &Backoff{
		cfg:  cfg,
		rand: rand.Float64,
	}
}

// Next advances to the next attempt and returns its number (starting at 1)
// along with the delay to wait before performing it.
func (b *Backoff) Next() (int, time.Duration) {
	b.attempt++

	delay := b.cfg.baseDelay()
	if b.attempt > 1 {
		raw := float64(b.cfg.baseDelay()) * math.Pow(b.cfg.Multiplier, float64(b.attempt-1))
		if b.cfg.Jitter > 0 {
			raw *= 1 + b.cfg.Jitter*(2*b.rand()-1)
		}
		if raw > float64(b.cfg.maxDelay()) {
			raw = float64(b.cfg.maxDelay())
		}
		delay = time.Duration(raw)
	}

	if delay < b.prev {
		delay = b.prev
	}
	if delay > b.cfg.maxDelay() {
		delay = b.cfg.maxDelay()
	}
	b.prev = delay

	return b.attempt, delay
}

func (b *Backoff) Attempt() int {
	return b.attempt
}

func (b *Backoff) Reset() {
	b.attempt = 0
	b.prev = 0
}
