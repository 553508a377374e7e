// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package rtc

import (
	"strings"
	"testing"

	"github.com/Huk9uri/dawata-roomd/service/tracks"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

func TestTrackKind(t *testing.T) {
	require.Equal(t, tracks.KindAudio, trackKind(webrtc.RTPCodecTypeAudio, "screen_abc"))
	require.Equal(t, tracks.KindCamera, trackKind(webrtc.RTPCodecTypeVideo, "stream_abc"))
	require.Equal(t, tracks.KindScreenShare, trackKind(webrtc.RTPCodecTypeVideo, "screen_abc"))
}

func TestGenTrackID(t *testing.T) {
	id1 := genTrackID(tracks.KindCamera, "conn1")
	id2 := genTrackID(tracks.KindCamera, "conn1")
	require.True(t, strings.HasPrefix(id1, "camera_conn1_"))
	require.Len(t, id1, len("camera_conn1_")+8)
	require.NotEqual(t, id1, id2)
}

func TestNATMappings(t *testing.T) {
	require.Nil(t, natMappings([]string{"10.0.0.1"}, ""))
	require.Nil(t, natMappings(nil, "1.1.1.1"))
	require.Equal(t, []string{"1.1.1.1/10.0.0.1"}, natMappings([]string{"10.0.0.1"}, "1.1.1.1"))
	require.Equal(t, []string{"127.0.0.1/127.0.0.1", "1.1.1.1/10.0.0.1"},
		natMappings([]string{"127.0.0.1", "10.0.0.1"}, "1.1.1.1"))
}

func TestInitMediaEngine(t *testing.T) {
	m, err := initMediaEngine()
	require.NoError(t, err)
	require.NotNil(t, m)

	i, err := initInterceptors(m)
	require.NoError(t, err)
	require.NotNil(t, i)
}

func TestIsKeyframeRequest(t *testing.T) {
	require.True(t, isKeyframeRequest(&rtcp.PictureLossIndication{MediaSSRC: 1}))
	require.True(t, isKeyframeRequest(&rtcp.FullIntraRequest{MediaSSRC: 1}))
	require.False(t, isKeyframeRequest(&rtcp.ReceiverReport{}))
}

func TestMessageIsValid(t *testing.T) {
	require.EqualError(t, Message{}.IsValid(), "invalid ConnID value: should not be empty")
	require.EqualError(t, Message{ConnID: "c"}.IsValid(), "invalid Type value: 0")
	require.EqualError(t, Message{ConnID: "c", Type: SDPMessage}.IsValid(), "invalid Data value: should not be empty")
	require.NoError(t, Message{ConnID: "c", Type: ICEMessage, Data: []byte("{}")}.IsValid())
}
