// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"fmt"

	"github.com/Huk9uri/dawata-roomd/service/rtc"
	"github.com/Huk9uri/dawata-roomd/service/signaling"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

// MediaEngine is the media layer driven by the service. It's implemented
// by rtc.Engine.
type MediaEngine interface {
	signaling.MediaEngine
	Start() error
	Stop() error
	Send(msg rtc.Message) error
	ReceiveCh() <-chan rtc.Message
}

type Option func(s *Service) error

// WithMediaEngine makes the service use e instead of creating an
// rtc.Engine from the config.
func WithMediaEngine(e MediaEngine) Option {
	return func(s *Service) error {
		if e == nil {
			return fmt.Errorf("invalid media engine: should not be nil")
		}
		s.engine = e
		return nil
	}
}

// WithLogger makes the service log through log instead of creating a
// logger from the config. The caller keeps ownership of log.
func WithLogger(log mlog.LoggerIFace) Option {
	return func(s *Service) error {
		if log == nil {
			return fmt.Errorf("invalid logger: should not be nil")
		}
		s.log = log
		return nil
	}
}
