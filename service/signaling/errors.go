// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package signaling

import (
	"errors"

	"github.com/Huk9uri/dawata-roomd/service/credential"
	"github.com/Huk9uri/dawata-roomd/service/reconnect"
	"github.com/Huk9uri/dawata-roomd/service/registry"
)

var (
	ErrNegotiationTimeout = errors.New("negotiation timed out")
	ErrTransportLost      = errors.New("transport lost")
	ErrLeft               = errors.New("participant left")
	ErrSuperseded         = errors.New("session resumed from another connection")
	ErrServerStopped      = errors.New("server is stopped")
	ErrSessionNotFound    = errors.New("session not found")
)

// CloseReason is the stable code carried by a Closed event.
type CloseReason string

const (
	ReasonInvalidCredential    CloseReason = "invalid_credential"
	ReasonRoomFull             CloseReason = "room_full"
	ReasonDuplicateIdentity    CloseReason = "duplicate_identity"
	ReasonNegotiationTimeout   CloseReason = "negotiation_timeout"
	ReasonTransportLost        CloseReason = "transport_lost"
	ReasonRetryBudgetExhausted CloseReason = "retry_budget_exhausted"
	ReasonStaleResume          CloseReason = "stale_resume"
	ReasonLeft                 CloseReason = "left"
)

// ReasonFor maps an error to the close reason it causes.
func ReasonFor(err error) CloseReason {
	switch {
	case errors.Is(err, credential.ErrInvalidCredential):
		return ReasonInvalidCredential
	case errors.Is(err, registry.ErrRoomFull):
		return ReasonRoomFull
	case errors.Is(err, registry.ErrDuplicateIdentity):
		return ReasonDuplicateIdentity
	case errors.Is(err, ErrNegotiationTimeout):
		return ReasonNegotiationTimeout
	case errors.Is(err, reconnect.ErrRetryBudgetExhausted):
		return ReasonRetryBudgetExhausted
	case errors.Is(err, registry.ErrStaleResume), errors.Is(err, ErrSuperseded):
		return ReasonStaleResume
	case errors.Is(err, ErrLeft):
		return ReasonLeft
	default:
		return ReasonTransportLost
	}
}
