// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"testing"

	"github.com/Huk9uri/dawata-roomd/service/rtc"
	"github.com/Huk9uri/dawata-roomd/service/signaling"

	"github.com/stretchr/testify/require"
)

func TestClientMessage(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		msg := NewClientMessage("", nil)
		data, err := msg.Pack()
		require.NoError(t, err)
		msg2 := &ClientMessage{}
		err = msg2.Unpack(data)
		require.NoError(t, err)
		require.Equal(t, msg, msg2)
	})

	t.Run("join", func(t *testing.T) {
		msg := NewClientMessage(ClientMessageJoin, JoinMessage{Credential: "token"})
		data, err := msg.Pack()
		require.NoError(t, err)
		msg2 := &ClientMessage{}
		err = msg2.Unpack(data)
		require.NoError(t, err)
		require.Equal(t, msg, msg2)
	})

	t.Run("resume", func(t *testing.T) {
		msg := NewClientMessage(ClientMessageResume, ResumeMessage{
			Credential:     "token",
			SessionID:      "sessionID",
			ReconnectToken: "reconnectToken",
		})
		data, err := msg.Pack()
		require.NoError(t, err)
		msg2 := &ClientMessage{}
		err = msg2.Unpack(data)
		require.NoError(t, err)
		require.Equal(t, msg, msg2)
	})

	t.Run("leave", func(t *testing.T) {
		msg := NewClientMessage(ClientMessageLeave, nil)
		data, err := msg.Pack()
		require.NoError(t, err)
		msg2 := &ClientMessage{}
		err = msg2.Unpack(data)
		require.NoError(t, err)
		require.Equal(t, ClientMessageLeave, msg2.Type)
		require.Nil(t, msg2.Data)
	})

	t.Run("rtc", func(t *testing.T) {
		rtcMsg := rtc.Message{
			ConnID: "connID",
			Type:   rtc.SDPMessage,
			Data:   []byte(`sdp data`),
		}
		msg := NewClientMessage(ClientMessageRTC, rtcMsg)
		data, err := msg.Pack()
		require.NoError(t, err)
		msg2 := &ClientMessage{}
		err = msg2.Unpack(data)
		require.NoError(t, err)
		require.Equal(t, msg, msg2)
		require.Equal(t, rtcMsg, msg2.Data)
	})

	t.Run("event", func(t *testing.T) {
		ev := signaling.LifecycleEvent{
			Type:      signaling.EventReconnecting,
			SessionID: "sessionID",
			RoomID:    "R1",
			Identity:  "alice",
			Attempt:   2,
			DelayMs:   2000,
		}
		msg := NewClientMessage(ClientMessageEvent, ev)
		data, err := msg.Pack()
		require.NoError(t, err)
		msg2 := &ClientMessage{}
		err = msg2.Unpack(data)
		require.NoError(t, err)
		require.Equal(t, ev, msg2.Data)
	})

	t.Run("unknown type", func(t *testing.T) {
		msg := NewClientMessage("custom", "data")
		data, err := msg.Pack()
		require.NoError(t, err)
		msg2 := &ClientMessage{}
		err = msg2.Unpack(data)
		require.NoError(t, err)
		require.Equal(t, msg, msg2)
	})

	t.Run("invalid data", func(t *testing.T) {
		msg := &ClientMessage{}
		require.Error(t, msg.Unpack([]byte{0xc1}))
	})
}
