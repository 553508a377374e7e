// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package reconnect decides whether and when a participant that lost its
// transport should attempt to reconnect.
package reconnect

import (
	"errors"
	"fmt"
	"time"
)

var ErrRetryBudgetExhausted = errors.New("retry budget exhausted")

// Decision is the outcome of a transport loss.
type Decision struct {
	Attempt int
	Delay   time.Duration
	// Exhausted is set when no further attempt should be made.
	Exhausted bool
}

// Supervisor tracks one participant's reconnection episodes. An episode
// starts at the first loss following a stable connection and ends on
// recovery or budget exhaustion.
type Supervisor struct {
	cfg     Config
	backoff *Backoff
	now     func() time.Time
	started time.Time
	active  bool
}

type Option func(s *Supervisor) error

func WithClock(fn func() time.Time) Option {
	return func(s *Supervisor) error {
		if fn == nil {
			return fmt.Errorf("invalid clock: should not be nil")
		}
		s.now = fn
		return nil
	}
}

// WithRandSource sets the source of the values in [0, 1) used to jitter
// delays.
func WithRandSource(fn func() float64) Option {
	return func(s *Supervisor) error {
		if fn == nil {
			return fmt.Errorf("invalid rand source: should not be nil")
		}
		s.backoff.rand = fn
		return nil
	}
}

func NewSupervisor(cfg Config, opts ...Option) (*Supervisor, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	s := &Supervisor{
		cfg:     cfg,
		backoff: NewBackoff(cfg),
		now:     time.Now,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Lost records a transport loss, or a failed attempt within the current
// episode, and returns what to do next.
func (s *Supervisor) Lost() Decision {
	if !s.active {
		s.active = true
		s.started = s.now()
		s.backoff.Reset()
	}

	if s.cfg.MaxAttempts > 0 && s.backoff.Attempt() >= s.cfg.MaxAttempts {
		return s.exhaust()
	}

	attempt, delay := s.backoff.Next()

	if s.cfg.MaxElapsedSeconds > 0 && s.now().Add(delay).Sub(s.started) > s.cfg.maxElapsed() {
		return s.exhaust()
	}

	return Decision{
		Attempt: attempt,
		Delay:   delay,
	}
}

// Recovered ends the current episode once verify confirms the participant
// still owns its session. A verification failure is returned as is and
// leaves the episode to be terminated by the caller.
func (s *Supervisor) Recovered(verify func() error) error {
	if verify != nil {
		if err := verify(); err != nil {
			s.active = false
			return err
		}
	}
	s.active = false
	s.backoff.Reset()
	return nil
}

// Active reports whether an episode is in progress.
func (s *Supervisor) Active() bool {
	return s.active
}

func (s *Supervisor) exhaust() Decision {
	attempt := s.backoff.Attempt()
	s.active = false
	return Decision{
		Attempt:   attempt,
		Exhausted: true,
	}
}
