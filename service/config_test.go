// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSecurityConfigIsValid(t *testing.T) {
	makeCfg := func() SecurityConfig {
		var cfg SecurityConfig
		cfg.SessionCache.ExpirationMinutes = 10
		cfg.WSConnRate = 1
		cfg.WSConnBurst = 1
		return cfg
	}

	t.Run("empty struct", func(t *testing.T) {
		var cfg SecurityConfig
		require.Error(t, cfg.IsValid())
	})

	t.Run("empty key", func(t *testing.T) {
		cfg := makeCfg()
		cfg.EnableAdmin = true
		err := cfg.IsValid()
		require.Error(t, err)
		require.Equal(t, "invalid AdminSecretKey value: should not be empty", err.Error())
	})

	t.Run("invalid ws limits", func(t *testing.T) {
		cfg := makeCfg()
		cfg.WSConnRate = 0
		require.EqualError(t, cfg.IsValid(), "invalid WSConnRate value: should be a positive number")

		cfg = makeCfg()
		cfg.WSConnBurst = -1
		require.EqualError(t, cfg.IsValid(), "invalid WSConnBurst value: should be a positive number")
	})

	t.Run("valid", func(t *testing.T) {
		cfg := makeCfg()
		cfg.EnableAdmin = true
		cfg.AdminSecretKey = "secret_key"
		require.NoError(t, cfg.IsValid())
	})
}

func TestStoreConfigIsValid(t *testing.T) {
	t.Run("empty struct", func(t *testing.T) {
		var cfg StoreConfig
		err := cfg.IsValid()
		require.Error(t, err)
		require.Equal(t, "invalid DataSource value: should not be empty", err.Error())
	})

	t.Run("valid", func(t *testing.T) {
		var cfg StoreConfig
		cfg.DataSource = "/tmp/roomd_db"
		err := cfg.IsValid()
		require.NoError(t, err)
	})
}

func TestConfigIsValid(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		var cfg Config
		cfg.SetDefaults()
		// The signing key has no default.
		require.EqualError(t, cfg.IsValid(),
			"failed to validate credential config: invalid SigningKey value: should be at least 32 characters long")

		cfg.Credential.SigningKey = testSigningKey
		require.NoError(t, cfg.IsValid())
	})

	t.Run("invalid sections", func(t *testing.T) {
		cfg := MakeDefaultCfg(t)
		cfg.API.HTTP.ListenAddress = ""
		require.EqualError(t, cfg.IsValid(),
			"failed to validate http config: invalid ListenAddress value: should not be empty")

		cfg = MakeDefaultCfg(t)
		cfg.Signaling.InboxSize = 0
		require.EqualError(t, cfg.IsValid(),
			"failed to validate signaling config: invalid InboxSize value: should be a positive number")

		cfg = MakeDefaultCfg(t)
		cfg.Registry.DefaultMaxParticipants = 0
		require.EqualError(t, cfg.IsValid(),
			"failed to validate registry config: invalid DefaultMaxParticipants value: should be a positive number")

		cfg = MakeDefaultCfg(t)
		cfg.Reconnect.BaseDelayMs = 0
		require.EqualError(t, cfg.IsValid(),
			"failed to validate reconnect config: invalid BaseDelayMs value: should be a positive number")

		cfg = MakeDefaultCfg(t)
		cfg.Store.DataSource = ""
		require.EqualError(t, cfg.IsValid(),
			"failed to validate store config: invalid DataSource value: should not be empty")

		cfg = MakeDefaultCfg(t)
		cfg.Logger.EnableConsole = false
		require.EqualError(t, cfg.IsValid(), "should enable at least one logging target")
	})
}
