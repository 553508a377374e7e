// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package client

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Huk9uri/dawata-roomd/service/reconnect"
)

const wsAPIPath = "/ws"

type Config struct {
	// URL is the HTTP(S) URL of the roomd instance to connect to.
	URL string
	// Credential is the signed credential used to join a room. It can be
	// left empty when a host configuration channel is provided, in which
	// case the injected credential is used.
	Credential string
	// ClientID and AuthKey authenticate host requests to the HTTP API.
	ClientID string
	AuthKey  string
	// HandshakeTimeout bounds the WebSocket opening handshake.
	HandshakeTimeout time.Duration
	// Reconnect controls how the WebSocket connection is re-established
	// after being lost. Defaults are used when left empty.
	Reconnect reconnect.Config
	// ICEServers is an optional list of STUN/TURN URLs.
	ICEServers []string

	wsURL string
}

func (c *Config) Parse() error {
	if c.URL == "" {
		return fmt.Errorf("invalid URL value: should not be empty")
	}
	c.URL = strings.TrimRight(strings.TrimSpace(c.URL), "/")
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme %q", u.Scheme)
	}

	if u.Scheme == "http" {
		u.Scheme = "ws"
	} else {
		u.Scheme = "wss"
	}
	u.Path += wsAPIPath
	c.wsURL = u.String()

	if c.HandshakeTimeout < 0 {
		return fmt.Errorf("invalid HandshakeTimeout value: should not be negative")
	}

	if c.Reconnect == (reconnect.Config{}) {
		c.Reconnect.SetDefaults()
	}
	if err := c.Reconnect.IsValid(); err != nil {
		return fmt.Errorf("failed to validate reconnect config: %w", err)
	}

	for _, s := range c.ICEServers {
		if s == "" {
			return fmt.Errorf("invalid ICEServers value: should not contain empty entries")
		}
	}

	return nil
}
