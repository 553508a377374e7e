// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package signaling

import (
	"github.com/Huk9uri/dawata-roomd/service/tracks"
)

type EngineEventType int

const (
	EngineConnected EngineEventType = iota + 1
	EngineTrackAdded
	EngineTrackRemoved
	EngineTransportLost
)

func (t EngineEventType) String() string {
	switch t {
	case EngineConnected:
		return "connected"
	case EngineTrackAdded:
		return "track-added"
	case EngineTrackRemoved:
		return "track-removed"
	case EngineTransportLost:
		return "transport-lost"
	default:
		return "unknown"
	}
}

// EngineEvent is reported by the media engine for the connection
// identified by ConnID. Track is set for track events; only its ID and
// Kind are required.
type EngineEvent struct {
	ConnID string
	Type   EngineEventType
	Track  tracks.Track
}

// Peer describes the connection the engine should set up.
type Peer struct {
	ConnID    string
	SessionID string
	RoomID    string
	Identity  string
}

// MediaEngine is the external component moving media. Track ids it
// reports must be unique across connections.
type MediaEngine interface {
	Connect(peer Peer) error
	// Reconnect attempts to restore the transport of an existing connection.
	Reconnect(connID string) error
	Disconnect(connID string) error
	// Publish accepts a track received from connID for forwarding.
	Publish(connID string, track tracks.Track) error
	// Unpublish stops receiving a track from connID.
	Unpublish(connID string, trackID string) error
	// Subscribe starts forwarding track to connID.
	Subscribe(connID string, track tracks.Track) error
	Unsubscribe(connID string, trackID string) error
	Events() <-chan EngineEvent
}
