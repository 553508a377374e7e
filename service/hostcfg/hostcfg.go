// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package hostcfg receives the room configuration injected by the
// embedding host: the participant credential and the room to join.
package hostcfg

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Huk9uri/dawata-roomd/service/credential"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

var (
	ErrUnknownOrigin   = errors.New("injection origin is not allowed")
	ErrEmptyCredential = errors.New("injection credential is empty")
	ErrStaleInjection  = errors.New("injection sequence is not newer than the current one")
	ErrRoomMismatch    = errors.New("injection room does not match the credential room")
)

// Injection is a configuration pushed by the host. Seq must strictly
// increase across injections. RoomID is optional; when set it must match
// the room claim of Credential.
type Injection struct {
	Seq        uint64 `json:"seq" msgpack:"seq"`
	Origin     string `json:"origin" msgpack:"origin"`
	Credential string `json:"credential" msgpack:"credential"`
	RoomID     string `json:"roomID" msgpack:"roomID"`
}

type Config struct {
	// AllowedOrigins lists the origins injections are accepted from. An
	// empty list accepts any origin.
	AllowedOrigins []string `toml:"allowed_origins"`
}

func (c Config) IsValid() error {
	for _, origin := range c.AllowedOrigins {
		if origin == "" {
			return fmt.Errorf("invalid AllowedOrigins value: should not contain empty entries")
		}
	}
	return nil
}

// Channel holds the latest accepted injection.
type Channel struct {
	cfg Config
	log mlog.LoggerIFace

	mut     sync.RWMutex
	current Injection
	hasCfg  bool
	readyCh chan struct{}
	// updateCh is closed and replaced on every accepted injection.
	updateCh chan struct{}
}

func NewChannel(cfg Config, log mlog.LoggerIFace) (*Channel, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	if log == nil {
		return nil, fmt.Errorf("log should not be nil")
	}

	return &Channel{
		cfg:      cfg,
		log:      log,
		readyCh:  make(chan struct{}),
		updateCh: make(chan struct{}),
	}, nil
}

// Inject validates and stores inj, replacing the current configuration.
func (c *Channel) Inject(inj Injection) error {
	if len(c.cfg.AllowedOrigins) > 0 && !slices.Contains(c.cfg.AllowedOrigins, inj.Origin) {
		c.log.Warn("rejecting injection", mlog.String("origin", inj.Origin), mlog.Err(ErrUnknownOrigin))
		return ErrUnknownOrigin
	}
	if inj.Credential == "" {
		return ErrEmptyCredential
	}
	if inj.RoomID != "" {
		room, err := credential.RoomOf(inj.Credential)
		if err != nil {
			return fmt.Errorf("failed to read credential room: %w", err)
		}
		if room != inj.RoomID {
			c.log.Warn("rejecting injection",
				mlog.String("roomID", inj.RoomID),
				mlog.String("credentialRoomID", room),
				mlog.Err(ErrRoomMismatch),
			)
			return ErrRoomMismatch
		}
	}

	c.mut.Lock()
	defer c.mut.Unlock()

	if c.hasCfg && inj.Seq <= c.current.Seq {
		c.log.Warn("rejecting injection",
			mlog.Uint("seq", inj.Seq),
			mlog.Uint("currentSeq", c.current.Seq),
			mlog.Err(ErrStaleInjection),
		)
		return ErrStaleInjection
	}

	c.current = inj
	if !c.hasCfg {
		c.hasCfg = true
		close(c.readyCh)
	}
	close(c.updateCh)
	c.updateCh = make(chan struct{})

	c.log.Debug("injection accepted", mlog.Uint("seq", inj.Seq), mlog.String("roomID", inj.RoomID))

	return nil
}

// Current returns the latest accepted injection, if any.
func (c *Channel) Current() (Injection, bool) {
	c.mut.RLock()
	defer c.mut.RUnlock()
	return c.current, c.hasCfg
}

// Wait blocks until a configuration is available or ctx is done.
func (c *Channel) Wait(ctx context.Context) (Injection, error) {
	select {
	case <-c.readyCh:
		inj, _ := c.Current()
		return inj, nil
	case <-ctx.Done():
		return Injection{}, ctx.Err()
	}
}

// Updated returns a channel closed on the next accepted injection.
func (c *Channel) Updated() <-chan struct{} {
	c.mut.RLock()
	defer c.mut.RUnlock()
	return c.updateCh
}
