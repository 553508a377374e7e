// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package signaling

import (
	"github.com/Huk9uri/dawata-roomd/service/tracks"
)

type EventType string

const (
	EventAdmitted         EventType = "admitted"
	EventNegotiating      EventType = "negotiating"
	EventConnected        EventType = "connected"
	EventReconnecting     EventType = "reconnecting"
	EventClosed           EventType = "closed"
	EventTrackViewChanged EventType = "track_view_changed"
)

// LifecycleEvent is the only observable output of a participant's state
// machine.
type LifecycleEvent struct {
	Type      EventType `msgpack:"type"`
	SessionID string    `msgpack:"session_id,omitempty"`
	RoomID    string    `msgpack:"room_id,omitempty"`
	Identity  string    `msgpack:"identity,omitempty"`

	// Set on Admitted only.
	ReconnectToken string `msgpack:"reconnect_token,omitempty"`
	Resumed        bool   `msgpack:"resumed,omitempty"`

	// Set on Reconnecting.
	Attempt int   `msgpack:"attempt,omitempty"`
	DelayMs int64 `msgpack:"delay_ms,omitempty"`

	// Set on Closed.
	Reason CloseReason `msgpack:"reason,omitempty"`
	Error  string      `msgpack:"error,omitempty"`

	// Set on TrackViewChanged.
	Tracks []tracks.Track `msgpack:"tracks,omitempty"`
}
