// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package api

import (
	"crypto/tls"
	"fmt"
	"time"
)

const defaultShutdownTimeout = 10 * time.Second

type TLSConfig struct {
	Enable   bool   `toml:"enable"`
	CertFile string `toml:"cert_file"`
	CertKey  string `toml:"cert_key"`
}

func (c TLSConfig) IsValid() error {
	if c.Enable {
		if c.CertFile == "" {
			return fmt.Errorf("invalid CertFile value: should not be empty")
		}

		if c.CertKey == "" {
			return fmt.Errorf("invalid CertKey value: should not be empty")
		}

		if _, err := tls.LoadX509KeyPair(c.CertFile, c.CertKey); err != nil {
			return fmt.Errorf("failed to load cert files: %w", err)
		}
	}
	return nil
}

type Config struct {
	ListenAddress string    `toml:"listen_address"`
	TLS           TLSConfig `toml:"tls"`
	// ShutdownTimeoutSeconds bounds how long Stop waits for in-flight
	// requests before closing their connections. Zero means 10 seconds.
	ShutdownTimeoutSeconds int `toml:"shutdown_timeout_seconds"`
}

func (c Config) IsValid() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("invalid ListenAddress value: should not be empty")
	}
	if err := c.TLS.IsValid(); err != nil {
		return fmt.Errorf("invalid TLS config: %w", err)
	}
	if c.ShutdownTimeoutSeconds < 0 {
		return fmt.Errorf("invalid ShutdownTimeoutSeconds value: should not be negative")
	}
	return nil
}

func (c *Config) SetDefaults() {
	c.ListenAddress = ":8045"
	c.ShutdownTimeoutSeconds = int(defaultShutdownTimeout / time.Second)
}

func (c Config) shutdownTimeout() time.Duration {
	if c.ShutdownTimeoutSeconds == 0 {
		return defaultShutdownTimeout
	}
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}
