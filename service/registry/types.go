// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package registry

import (
	"errors"
	"time"

	"github.com/Huk9uri/dawata-roomd/service/credential"
)

var (
	ErrRoomFull          = errors.New("room is full")
	ErrDuplicateIdentity = errors.New("identity is already present in room")
	ErrStaleResume       = errors.New("stale resume attempt")
	ErrNotFound          = errors.New("participant not found")
)

// Handle identifies one admitted connection of a logical session. A
// resumed session gets a new handle, invalidating the previous one.
type Handle struct {
	RoomID         string
	Identity       string
	SessionID      string
	ReconnectToken string
	epoch          uint64
}

type ParticipantInfo struct {
	Identity    string                  `json:"identity"`
	DisplayName string                  `json:"display_name"`
	SessionID   string                  `json:"session_id"`
	State       string                  `json:"state"`
	Permissions []credential.Permission `json:"permissions"`
	JoinedAt    time.Time               `json:"joined_at"`
}

type RoomInfo struct {
	ID              string    `json:"id"`
	Participants    int       `json:"participants"`
	MaxParticipants int       `json:"max_participants"`
	CreatedAt       time.Time `json:"created_at"`
}

type EventType int

const (
	EventRoomCreated EventType = iota
	EventParticipantJoined
	EventParticipantResumed
	EventParticipantLeft
	EventRoomClosed
)

func (t EventType) String() string {
	switch t {
	case EventRoomCreated:
		return "RoomCreated"
	case EventParticipantJoined:
		return "ParticipantJoined"
	case EventParticipantResumed:
		return "ParticipantResumed"
	case EventParticipantLeft:
		return "ParticipantLeft"
	case EventRoomClosed:
		return "RoomClosed"
	default:
		return "Unknown"
	}
}

// Event describes a change applied to a room. Participant is only set for
// participant events.
type Event struct {
	Type        EventType
	RoomID      string
	Participant ParticipantInfo
}

// Listener receives registry events. It's called while the room is locked
// so it must not call back into the registry.
type Listener func(ev Event)
