// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package reconnect

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	var cfg Config
	cfg.SetDefaults()
	return cfg
}

func TestConfigIsValid(t *testing.T) {
	tcs := []struct {
		name   string
		modify func(c *Config)
		err    string
	}{
		{
			name:   "base delay",
			modify: func(c *Config) { c.BaseDelayMs = 0 },
			err:    "invalid BaseDelayMs value: should be a positive number",
		},
		{
			name:   "max delay",
			modify: func(c *Config) { c.MaxDelayMs = c.BaseDelayMs - 1 },
			err:    "invalid MaxDelayMs value: should not be lower than BaseDelayMs",
		},
		{
			name:   "multiplier",
			modify: func(c *Config) { c.Multiplier = 0.5 },
			err:    "invalid Multiplier value: should be at least 1",
		},
		{
			name:   "jitter",
			modify: func(c *Config) { c.Jitter = 1.5 },
			err:    "invalid Jitter value: should be in the range [0, 1]",
		},
		{
			name:   "attempts",
			modify: func(c *Config) { c.MaxAttempts = -1 },
			err:    "invalid MaxAttempts value: should not be negative",
		},
		{
			name:   "elapsed",
			modify: func(c *Config) { c.MaxElapsedSeconds = -1 },
			err:    "invalid MaxElapsedSeconds value: should not be negative",
		},
		{
			name: "no budget",
			modify: func(c *Config) {
				c.MaxAttempts = 0
				c.MaxElapsedSeconds = 0
			},
			err: "invalid retry budget: either MaxAttempts or MaxElapsedSeconds should be set",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.modify(&cfg)
			require.EqualError(t, cfg.IsValid(), tc.err)
		})
	}

	t.Run("defaults", func(t *testing.T) {
		require.NoError(t, testConfig().IsValid())
	})
}

func TestBackoffFirstAttemptIsBase(t *testing.T) {
	b := NewBackoff(testConfig())
	b.rand = func() float64 { return 0.999 }
	attempt, delay := b.Next()
	require.Equal(t, 1, attempt)
	require.Equal(t, time.Second, delay)
}

func TestBackoffWithoutJitter(t *testing.T) {
	cfg := testConfig()
	cfg.Jitter = 0
	cfg.MaxDelayMs = 10000
	b := NewBackoff(cfg)

	var delays []time.Duration
	for i := 0; i < 6; i++ {
		_, d := b.Next()
		delays = append(delays, d)
	}

	require.Equal(t, []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}, delays)

	b.Reset()
	attempt, d := b.Next()
	require.Equal(t, 1, attempt)
	require.Equal(t, time.Second, d)
}

func TestBackoffMonotonicAndBounded(t *testing.T) {
	sources := map[string]func() float64{
		"low":    func() float64 { return 0 },
		"high":   func() float64 { return 0.999999 },
		"random": rand.New(rand.NewPCG(1, 2)).Float64,
		"alternating": func() func() float64 {
			var n int
			return func() float64 {
				n++
				if n%2 == 0 {
					return 0
				}
				return 0.999
			}
		}(),
	}

	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Jitter = 1
			b := NewBackoff(cfg)
			b.rand = src

			var prev time.Duration
			for i := 0; i < 50; i++ {
				_, d := b.Next()
				require.GreaterOrEqual(t, d, prev)
				require.LessOrEqual(t, d, cfg.maxDelay())
				prev = d
			}
		})
	}
}
