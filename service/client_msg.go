// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"fmt"

	"github.com/Huk9uri/dawata-roomd/service/rtc"
	"github.com/Huk9uri/dawata-roomd/service/signaling"

	"github.com/vmihailenco/msgpack/v5"
)

// ClientMessage is the frame exchanged with participants over the
// signaling WebSocket, encoded as a msgpack [type, data] pair.
type ClientMessage struct {
	Type string `msgpack:"type"`
	Data any    `msgpack:"data,omitempty"`
}

const (
	ClientMessageJoin     = "join"
	ClientMessageResume   = "resume"
	ClientMessageLeave    = "leave"
	ClientMessageRTC      = "rtc"
	ClientMessageAdmitted = "admitted"
	ClientMessageEvent    = "event"
	ClientMessageError    = "error"
)

type JoinMessage struct {
	Credential string `msgpack:"credential"`
}

type ResumeMessage struct {
	Credential     string `msgpack:"credential"`
	SessionID      string `msgpack:"session_id"`
	ReconnectToken string `msgpack:"reconnect_token"`
}

type AdmittedMessage struct {
	SessionID      string `msgpack:"session_id"`
	ReconnectToken string `msgpack:"reconnect_token"`
	RoomID         string `msgpack:"room_id"`
	Identity       string `msgpack:"identity"`
	Resumed        bool   `msgpack:"resumed,omitempty"`
}

type ErrorMessage struct {
	Error string `msgpack:"error"`
}

var _ msgpack.CustomEncoder = (*ClientMessage)(nil)

func (cm *ClientMessage) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeMulti(cm.Type, cm.Data)
}

var _ msgpack.CustomDecoder = (*ClientMessage)(nil)

func (cm *ClientMessage) DecodeMsgpack(dec *msgpack.Decoder) error {
	msgType, err := dec.DecodeString()
	if err != nil {
		return fmt.Errorf("failed to decode msg.Type: %w", err)
	}
	cm.Type = msgType

	switch cm.Type {
	case ClientMessageJoin:
		cm.Data, err = decodeData[JoinMessage](dec)
	case ClientMessageResume:
		cm.Data, err = decodeData[ResumeMessage](dec)
	case ClientMessageRTC:
		cm.Data, err = decodeData[rtc.Message](dec)
	case ClientMessageAdmitted:
		cm.Data, err = decodeData[AdmittedMessage](dec)
	case ClientMessageEvent:
		cm.Data, err = decodeData[signaling.LifecycleEvent](dec)
	case ClientMessageError:
		cm.Data, err = decodeData[ErrorMessage](dec)
	default:
		cm.Data, err = dec.DecodeInterface()
	}
	if err != nil {
		return fmt.Errorf("failed to decode msg.Data: %w", err)
	}

	return nil
}

func decodeData[T any](dec *msgpack.Decoder) (T, error) {
	var data T
	err := dec.Decode(&data)
	return data, err
}

func NewClientMessage(msgType string, data any) *ClientMessage {
	return &ClientMessage{
		Type: msgType,
		Data: data,
	}
}

func (cm *ClientMessage) Pack() ([]byte, error) {
	return msgpack.Marshal(cm)
}

func (cm *ClientMessage) Unpack(data []byte) error {
	return msgpack.Unmarshal(data, cm)
}
