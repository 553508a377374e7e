// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package rtc

import (
	"fmt"
	"strings"

	"github.com/Huk9uri/dawata-roomd/service/random"
	"github.com/Huk9uri/dawata-roomd/service/tracks"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/webrtc/v4"
)

const (
	nackResponderBufferSize = 256
	// Clients tag screen-share streams with this stream id prefix.
	screenStreamPrefix = "screen"
)

var (
	videoRTCPFeedback = []webrtc.RTCPFeedback{
		{Type: "goog-remb", Parameter: ""},
		{Type: "ccm", Parameter: "fir"},
		{Type: "nack", Parameter: ""},
		{Type: "nack", Parameter: "pli"},
	}
	rtpAudioCodec = webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}
	rtpVideoCodecs = []webrtc.RTPCodecParameters{
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:     webrtc.MimeTypeVP8,
				ClockRate:    90000,
				RTCPFeedback: videoRTCPFeedback,
			},
			PayloadType: 96,
		},
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:     webrtc.MimeTypeH264,
				ClockRate:    90000,
				SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
				RTCPFeedback: videoRTCPFeedback,
			},
			PayloadType: 102,
		},
	}
)

func initMediaEngine() (*webrtc.MediaEngine, error) {
	var m webrtc.MediaEngine
	if err := m.RegisterCodec(rtpAudioCodec, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("failed to register audio codec: %w", err)
	}
	for _, params := range rtpVideoCodecs {
		if err := m.RegisterCodec(params, webrtc.RTPCodecTypeVideo); err != nil {
			return nil, fmt.Errorf("failed to register video codec: %w", err)
		}
	}
	return &m, nil
}

func initInterceptors(m *webrtc.MediaEngine) (*interceptor.Registry, error) {
	var i interceptor.Registry

	generator, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, err
	}
	responder, err := nack.NewResponderInterceptor(nack.ResponderSize(nackResponderBufferSize))
	if err != nil {
		return nil, err
	}
	m.RegisterFeedback(webrtc.RTCPFeedback{Type: "nack"}, webrtc.RTPCodecTypeVideo)
	m.RegisterFeedback(webrtc.RTCPFeedback{Type: "nack", Parameter: "pli"}, webrtc.RTPCodecTypeVideo)
	i.Add(responder)
	i.Add(generator)

	if err := webrtc.ConfigureRTCPReports(&i); err != nil {
		return nil, err
	}

	if err := webrtc.ConfigureTWCCSender(m, &i); err != nil {
		return nil, err
	}

	return &i, nil
}

// trackKind maps a received track to the kind of slot it fills.
func trackKind(codecType webrtc.RTPCodecType, streamID string) tracks.Kind {
	if codecType == webrtc.RTPCodecTypeAudio {
		return tracks.KindAudio
	}
	if strings.HasPrefix(streamID, screenStreamPrefix) {
		return tracks.KindScreenShare
	}
	return tracks.KindCamera
}

// genTrackID returns an id unique across connections.
func genTrackID(kind tracks.Kind, connID string) string {
	return string(kind) + "_" + connID + "_" + random.NewID()[0:8]
}

// natMappings returns the 1:1 NAT mappings advertising hostOverride in
// place of the local addresses. Loopback addresses are kept as is.
func natMappings(localIPs []string, hostOverride string) []string {
	if hostOverride == "" || len(localIPs) == 0 {
		return nil
	}

	if len(localIPs) == 1 {
		return []string{hostOverride + "/" + localIPs[0]}
	}

	pairs := make([]string, 0, len(localIPs))
	for _, ip := range localIPs {
		if ip == "127.0.0.1" || ip == "::1" {
			pairs = append(pairs, ip+"/"+ip)
			continue
		}
		pairs = append(pairs, hostOverride+"/"+ip)
	}
	return pairs
}
