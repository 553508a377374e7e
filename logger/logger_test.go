// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package logger

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
	"github.com/stretchr/testify/require"
)

func TestGetLevels(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		levels := getLevels("")
		require.Equal(t, levels, mlog.StdAll)
	})

	t.Run("invalid input", func(t *testing.T) {
		levels := getLevels("invalid")
		require.Equal(t, levels, mlog.StdAll)
	})

	t.Run("debug", func(t *testing.T) {
		levels := getLevels("DEBUG")
		require.Equal(t, []mlog.Level{
			mlog.LvlPanic,
			mlog.LvlFatal,
			mlog.LvlError,
			mlog.LvlWarn,
			mlog.LvlInfo,
			mlog.LvlDebug,
		}, levels)
	})

	t.Run("info", func(t *testing.T) {
		levels := getLevels("INFO")
		require.Equal(t, []mlog.Level{
			mlog.LvlPanic,
			mlog.LvlFatal,
			mlog.LvlError,
			mlog.LvlWarn,
			mlog.LvlInfo,
		}, levels)
	})

	t.Run("error", func(t *testing.T) {
		levels := getLevels("ERROR")
		require.Equal(t, []mlog.Level{
			mlog.LvlPanic,
			mlog.LvlFatal,
			mlog.LvlError,
		}, levels)
	})
}

func TestNewLogger(t *testing.T) {
	t.Run("empty cfg", func(t *testing.T) {
		var cfg Config
		logger, err := New(cfg)
		require.Nil(t, logger)
		require.Error(t, err)
	})

	t.Run("invalid cfg", func(t *testing.T) {
		var cfg Config
		cfg.EnableConsole = true
		cfg.ConsoleLevel = "INVALID"
		logger, err := New(cfg)
		require.Nil(t, logger)
		require.Error(t, err)
		require.Equal(t, `invalid ConsoleLevel value "INVALID"`, err.Error())
	})

	t.Run("valid cfg", func(t *testing.T) {
		var cfg Config
		cfg.EnableConsole = true
		cfg.ConsoleLevel = "INFO"
		logger, err := New(cfg)
		require.NoError(t, err)
		require.NotNil(t, logger)
		require.NoError(t, logger.Shutdown())
	})

	t.Run("file target", func(t *testing.T) {
		var cfg Config
		cfg.SetDefaults()
		cfg.EnableConsole = false
		cfg.EnableFile = true
		cfg.FileJSON = true
		cfg.FileLocation = filepath.Join(t.TempDir(), "roomd.log")
		logger, err := New(cfg)
		require.NoError(t, err)
		require.NotNil(t, logger)
		logger.Info("test message")
		require.NoError(t, logger.Shutdown())
		require.FileExists(t, cfg.FileLocation)
	})
}

func TestTargets(t *testing.T) {
	t.Run("console plain", func(t *testing.T) {
		cfg := Config{EnableConsole: true, ConsoleLevel: "WARN", EnableColor: true}
		target, err := consoleTarget(cfg)
		require.NoError(t, err)
		require.Equal(t, "console", target.Type)
		require.Equal(t, "plain", target.Format)
		require.Equal(t, getLevels("WARN"), target.Levels)

		var opts plainFormatOptions
		require.NoError(t, json.Unmarshal(target.FormatOptions, &opts))
		require.True(t, opts.EnableColor)
		require.Equal(t, " ", opts.Delim)
	})

	t.Run("console json", func(t *testing.T) {
		cfg := Config{EnableConsole: true, ConsoleLevel: "INFO", ConsoleJSON: true}
		target, err := consoleTarget(cfg)
		require.NoError(t, err)
		require.Equal(t, "json", target.Format)
		require.JSONEq(t, `{"enable_caller": true}`, string(target.FormatOptions))
	})

	t.Run("file", func(t *testing.T) {
		cfg := Config{
			EnableFile:     true,
			FileLevel:      "DEBUG",
			FileLocation:   `C:\logs\"roomd".log`,
			FileMaxSizeMB:  10,
			FileMaxBackups: 3,
		}
		target, err := fileTarget(cfg)
		require.NoError(t, err)
		require.Equal(t, "file", target.Type)

		var opts fileOptions
		require.NoError(t, json.Unmarshal(target.Options, &opts))
		require.Equal(t, fileOptions{
			Filename:   cfg.FileLocation,
			MaxSize:    10,
			MaxBackups: 3,
		}, opts)
	})
}
