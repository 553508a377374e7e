// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Huk9uri/dawata-roomd/service"
	"github.com/Huk9uri/dawata-roomd/service/registry"
)

const (
	httpRequestTimeout           = 10 * time.Second
	httpResponseBodyMaxSizeBytes = 1024 * 1024 // 1MB
)

type RoomStatus struct {
	Room         registry.RoomInfo          `json:"room"`
	Participants []registry.ParticipantInfo `json:"participants"`
}

type Stats struct {
	Rooms        int            `json:"rooms"`
	Participants int            `json:"participants"`
	States       map[string]int `json:"states"`
}

func (c *Client) doAPIRequest(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.URL+path, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.mut.RLock()
	token := c.apiToken
	c.mut.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.SetBasicAuth(c.cfg.ClientID, c.cfg.AuthKey)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	dec := json.NewDecoder(&io.LimitedReader{
		R: res.Body,
		N: httpResponseBodyMaxSizeBytes,
	})

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var resErr struct {
			Error string `json:"error"`
		}
		if err := dec.Decode(&resErr); err == nil && resErr.Error != "" {
			return fmt.Errorf("request failed with status %d: %s", res.StatusCode, resErr.Error)
		}
		return fmt.Errorf("unexpected response status code %d", res.StatusCode)
	}

	if out == nil {
		return nil
	}

	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// Login exchanges the configured client credentials for an API token used
// by subsequent requests.
func (c *Client) Login(ctx context.Context) error {
	c.mut.Lock()
	c.apiToken = ""
	c.mut.Unlock()

	var res struct {
		Token string `json:"token"`
	}
	if err := c.doAPIRequest(ctx, http.MethodPost, "/login", nil, &res); err != nil {
		return err
	}

	c.mut.Lock()
	c.apiToken = res.Token
	c.mut.Unlock()

	return nil
}

// Register creates a new host client. It requires admin credentials unless
// the server allows self registration.
func (c *Client) Register(ctx context.Context, clientID, authKey string) error {
	return c.doAPIRequest(ctx, http.MethodPost, "/register", map[string]string{
		"clientID": clientID,
		"authKey":  authKey,
	}, nil)
}

func (c *Client) Unregister(ctx context.Context, clientID string) error {
	return c.doAPIRequest(ctx, http.MethodPost, "/unregister", map[string]string{
		"clientID": clientID,
	}, nil)
}

func (c *Client) GetVersion(ctx context.Context) (service.VersionInfo, error) {
	var info service.VersionInfo
	err := c.doAPIRequest(ctx, http.MethodGet, "/version", nil, &info)
	return info, err
}

// CheckVersion fails if the server does not speak the signaling protocol
// this client was built for.
func (c *Client) CheckVersion(ctx context.Context) error {
	info, err := c.GetVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}
	if info.ProtocolVersion != service.ProtocolVersion {
		return fmt.Errorf("unsupported protocol version %d, expected %d", info.ProtocolVersion, service.ProtocolVersion)
	}
	return nil
}

func (c *Client) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := c.doAPIRequest(ctx, http.MethodGet, "/stats", nil, &stats)
	return stats, err
}

func (c *Client) GetRoom(ctx context.Context, roomID string) (RoomStatus, error) {
	var status RoomStatus
	err := c.doAPIRequest(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID), nil, &status)
	return status, err
}
