// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package signaling

type Metrics interface {
	IncRooms()
	DecRooms()
	IncParticipants(state string)
	DecParticipants(state string)
	IncStateTransitions(from, to string)
	IncCloseReasons(reason string)
	IncReconnectAttempts()
	IncDiscardedEvents(eventType string)
}
