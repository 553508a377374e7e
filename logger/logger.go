// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package logger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

const targetQueueSize = 1000

type plainFormatOptions struct {
	Delim        string `json:"delim"`
	MinLevelLen  int    `json:"min_level_len"`
	MinMsgLen    int    `json:"min_msg_len"`
	EnableColor  bool   `json:"enable_color"`
	EnableCaller bool   `json:"enable_caller"`
}

type jsonFormatOptions struct {
	EnableCaller bool `json:"enable_caller"`
}

type fileOptions struct {
	Filename   string `json:"filename"`
	MaxSize    int    `json:"max_size"`
	MaxAge     int    `json:"max_age"`
	MaxBackups int    `json:"max_backups"`
	Compress   bool   `json:"compress"`
}

func getLevels(level string) []mlog.Level {
	var levels []mlog.Level
	for _, l := range mlog.StdAll {
		levels = append(levels, l)
		if l.Name == strings.ToLower(level) {
			break
		}
	}
	return levels
}

func formatFor(asJSON, color bool) (string, json.RawMessage, error) {
	var opts any = plainFormatOptions{
		Delim:        " ",
		MinLevelLen:  5,
		MinMsgLen:    45,
		EnableColor:  color,
		EnableCaller: true,
	}
	format := "plain"
	if asJSON {
		format = "json"
		opts = jsonFormatOptions{EnableCaller: true}
	}

	data, err := json.Marshal(opts)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal format options: %w", err)
	}

	return format, data, nil
}

func consoleTarget(config Config) (mlog.TargetCfg, error) {
	format, formatOpts, err := formatFor(config.ConsoleJSON, config.EnableColor)
	if err != nil {
		return mlog.TargetCfg{}, err
	}

	return mlog.TargetCfg{
		Type:          "console",
		Levels:        getLevels(config.ConsoleLevel),
		Options:       json.RawMessage(`{"out": "stdout"}`),
		Format:        format,
		FormatOptions: formatOpts,
		MaxQueueSize:  targetQueueSize,
	}, nil
}

func fileTarget(config Config) (mlog.TargetCfg, error) {
	format, formatOpts, err := formatFor(config.FileJSON, false)
	if err != nil {
		return mlog.TargetCfg{}, err
	}

	opts, err := json.Marshal(fileOptions{
		Filename:   config.FileLocation,
		MaxSize:    config.FileMaxSizeMB,
		MaxBackups: config.FileMaxBackups,
		Compress:   config.FileCompress,
	})
	if err != nil {
		return mlog.TargetCfg{}, fmt.Errorf("failed to marshal file options: %w", err)
	}

	return mlog.TargetCfg{
		Type:          "file",
		Levels:        getLevels(config.FileLevel),
		Options:       opts,
		Format:        format,
		FormatOptions: formatOpts,
		MaxQueueSize:  targetQueueSize,
	}, nil
}

// New returns a newly created and initialized logger with the given cfg.
func New(config Config) (*mlog.Logger, error) {
	if err := config.IsValid(); err != nil {
		return nil, err
	}

	cfg := mlog.LoggerConfiguration{}
	if config.EnableConsole {
		target, err := consoleTarget(config)
		if err != nil {
			return nil, err
		}
		cfg["_defConsole"] = target
	}

	if config.EnableFile {
		target, err := fileTarget(config)
		if err != nil {
			return nil, err
		}
		cfg["_defFile"] = target
	}

	logger, err := mlog.NewLogger()
	if err != nil {
		return nil, err
	}

	if err := logger.ConfigureTargets(cfg, nil); err != nil {
		_ = logger.Shutdown()
		return nil, fmt.Errorf("failed to configure targets: %w", err)
	}

	return logger, nil
}
