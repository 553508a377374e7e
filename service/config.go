// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"fmt"

	"github.com/Huk9uri/dawata-roomd/logger"
	"github.com/Huk9uri/dawata-roomd/service/api"
	"github.com/Huk9uri/dawata-roomd/service/auth"
	"github.com/Huk9uri/dawata-roomd/service/credential"
	"github.com/Huk9uri/dawata-roomd/service/reconnect"
	"github.com/Huk9uri/dawata-roomd/service/registry"
	"github.com/Huk9uri/dawata-roomd/service/rtc"
	"github.com/Huk9uri/dawata-roomd/service/signaling"
)

type SecurityConfig struct {
	// Whether or not to enable admin API access.
	EnableAdmin bool `toml:"enable_admin"`
	// The secret key used to authenticate admin requests.
	AdminSecretKey string `toml:"admin_secret_key"`
	// Whether or not to allow clients to self-register.
	AllowSelfRegistration bool                    `toml:"allow_self_registration"`
	SessionCache          auth.SessionCacheConfig `toml:"session_cache"`
	// WSConnRate is the number of WebSocket connections per second allowed
	// from a single remote address.
	WSConnRate float64 `toml:"ws_conn_rate"`
	// WSConnBurst is the number of WebSocket connections a single remote
	// address can open at once.
	WSConnBurst int `toml:"ws_conn_burst"`
}

func (c SecurityConfig) IsValid() error {
	if c.EnableAdmin && c.AdminSecretKey == "" {
		return fmt.Errorf("invalid AdminSecretKey value: should not be empty")
	}

	if err := c.SessionCache.IsValid(); err != nil {
		return fmt.Errorf("invalid SessionCache value: %w", err)
	}

	if c.WSConnRate <= 0 {
		return fmt.Errorf("invalid WSConnRate value: should be a positive number")
	}

	if c.WSConnBurst <= 0 {
		return fmt.Errorf("invalid WSConnBurst value: should be a positive number")
	}

	return nil
}

type APIConfig struct {
	HTTP     api.Config     `toml:"http"`
	Security SecurityConfig `toml:"security"`
}

func (c APIConfig) IsValid() error {
	if err := c.Security.IsValid(); err != nil {
		return fmt.Errorf("failed to validate security config: %w", err)
	}

	if err := c.HTTP.IsValid(); err != nil {
		return fmt.Errorf("failed to validate http config: %w", err)
	}

	return nil
}

type StoreConfig struct {
	DataSource string `toml:"data_source"`
}

func (c StoreConfig) IsValid() error {
	if c.DataSource == "" {
		return fmt.Errorf("invalid DataSource value: should not be empty")
	}
	return nil
}

type Config struct {
	API        APIConfig         `toml:"api"`
	Signaling  signaling.Config  `toml:"signaling"`
	Registry   registry.Config   `toml:"registry"`
	Reconnect  reconnect.Config  `toml:"reconnect"`
	Credential credential.Config `toml:"credential"`
	RTC        rtc.EngineConfig  `toml:"rtc"`
	Store      StoreConfig       `toml:"store"`
	Logger     logger.Config     `toml:"logger"`
}

func (c Config) IsValid() error {
	if err := c.API.IsValid(); err != nil {
		return err
	}

	if err := c.Signaling.IsValid(); err != nil {
		return fmt.Errorf("failed to validate signaling config: %w", err)
	}

	if err := c.Registry.IsValid(); err != nil {
		return fmt.Errorf("failed to validate registry config: %w", err)
	}

	if err := c.Reconnect.IsValid(); err != nil {
		return fmt.Errorf("failed to validate reconnect config: %w", err)
	}

	if err := c.Credential.IsValid(); err != nil {
		return fmt.Errorf("failed to validate credential config: %w", err)
	}

	if err := c.RTC.IsValid(); err != nil {
		return fmt.Errorf("failed to validate rtc config: %w", err)
	}

	if err := c.Store.IsValid(); err != nil {
		return fmt.Errorf("failed to validate store config: %w", err)
	}

	return c.Logger.IsValid()
}

func (c *Config) SetDefaults() {
	c.API.HTTP.SetDefaults()
	c.API.Security.SessionCache.ExpirationMinutes = 1440
	c.API.Security.WSConnRate = 1
	c.API.Security.WSConnBurst = 10
	c.Signaling.SetDefaults()
	c.Registry.SetDefaults()
	c.Reconnect.SetDefaults()
	c.Credential.SetDefaults()
	c.RTC.SetDefaults()
	c.Store.DataSource = "/tmp/roomd_db"
	c.Logger.SetDefaults()
}
