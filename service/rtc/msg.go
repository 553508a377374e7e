// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package rtc

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

type MessageType int

const (
	ICEMessage MessageType = iota + 1
	SDPMessage
)

// Message carries WebRTC signaling data between the engine and the
// client behind ConnID.
type Message struct {
	ConnID string      `msgpack:"conn_id"`
	Type   MessageType `msgpack:"type"`
	Data   []byte      `msgpack:"data,omitempty"`
}

func (m Message) IsValid() error {
	if m.ConnID == "" {
		return fmt.Errorf("invalid ConnID value: should not be empty")
	}
	if m.Type != ICEMessage && m.Type != SDPMessage {
		return fmt.Errorf("invalid Type value: %d", m.Type)
	}
	if len(m.Data) == 0 {
		return fmt.Errorf("invalid Data value: should not be empty")
	}
	return nil
}

func newSDPMessage(connID string, sdp *webrtc.SessionDescription) (Message, error) {
	data, err := json.Marshal(sdp)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal sdp: %w", err)
	}
	return Message{ConnID: connID, Type: SDPMessage, Data: data}, nil
}

func newICEMessage(connID string, c *webrtc.ICECandidate) (Message, error) {
	data, err := json.Marshal(c.ToJSON())
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal candidate: %w", err)
	}
	return Message{ConnID: connID, Type: ICEMessage, Data: data}, nil
}
