// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/Huk9uri/dawata-roomd/service"
	"github.com/Huk9uri/dawata-roomd/service/rtc"
	"github.com/Huk9uri/dawata-roomd/service/ws"

	"github.com/pion/webrtc/v4"
)

const (
	iceChSize  = 20
	receiveMTU = 1460
)

func (c *Client) sendRTC(msgType rtc.MessageType, data []byte) error {
	sessionID := c.SessionID()
	if sessionID == "" {
		return ErrNotAdmitted
	}
	return c.sendMsg(service.NewClientMessage(service.ClientMessageRTC, rtc.Message{
		ConnID: sessionID,
		Type:   msgType,
		Data:   data,
	}))
}

// initRTCSession sets up a new peer connection, replacing any previous
// one, and sends the initial offer.
func (c *Client) initRTCSession() error {
	c.closeRTCSession()

	iceServers := make([]webrtc.ICEServer, 0, len(c.cfg.ICEServers))
	for _, u := range c.cfg.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{u}})
	}

	pc, err := c.rtcAPI.NewPeerConnection(webrtc.Configuration{
		ICEServers:   iceServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlan,
	})
	if err != nil {
		return fmt.Errorf("failed to create new peer connection: %w", err)
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			c.log.Debug("local ICE gathering completed")
			return
		}

		data, err := json.Marshal(candidate.ToJSON())
		if err != nil {
			c.log.Error("failed to marshal local candidate", slog.String("err", err.Error()))
			return
		}

		if err := c.sendRTC(rtc.ICEMessage, data); err != nil {
			c.log.Error("failed to send local candidate", slog.String("err", err.Error()))
		}
	})

	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		c.log.Debug("rtc connection state changed", slog.String("state", st.String()))
		switch st {
		case webrtc.PeerConnectionStateConnected:
			c.emit(RTCConnectEvent, nil)
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			if atomic.LoadInt32(&c.state) == clientStateInit {
				c.emit(RTCDisconnectEvent, nil)
			}
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.log.Debug("received remote track",
			slog.String("trackID", track.ID()), slog.String("kind", track.Kind().String()))

		// RTCP handler
		go func() {
			rtcpBuf := make([]byte, receiveMTU)
			for {
				if _, _, err := receiver.Read(rtcpBuf); err != nil {
					if !errors.Is(err, io.EOF) {
						c.log.Debug("failed to read RTCP packet", slog.String("err", err.Error()))
					}
					return
				}
			}
		}()

		c.emit(RTCTrackEvent, track)
	})

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = pc.Close()
			return fmt.Errorf("failed to add transceiver: %w", err)
		}
	}

	c.mut.Lock()
	defer c.mut.Unlock()
	c.pc = pc
	c.pendingOffer = true
	return c.offerLocked()
}

func (c *Client) closeRTCSession() {
	c.mut.Lock()
	pc := c.pc
	c.pc = nil
	c.pendingOffer = false
	c.mut.Unlock()

	for len(c.iceCh) > 0 {
		<-c.iceCh
	}

	if pc == nil {
		return
	}

	if err := pc.Close(); err != nil {
		c.log.Error("failed to close peer connection", slog.String("err", err.Error()))
	} else {
		c.log.Debug("pc closed successfully")
	}
}

// offerLocked sends a new offer, unless an exchange is in progress in
// which case it's sent once the answer is applied.
func (c *Client) offerLocked() error {
	if c.pc == nil || c.pc.SignalingState() != webrtc.SignalingStateStable {
		return nil
	}

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}
	c.pendingOffer = false

	data, err := json.Marshal(c.pc.LocalDescription())
	if err != nil {
		return fmt.Errorf("failed to marshal offer: %w", err)
	}

	return c.sendRTCLocked(rtc.SDPMessage, data)
}

func (c *Client) sendRTCLocked(msgType rtc.MessageType, data []byte) error {
	if c.sessionID == "" {
		return ErrNotAdmitted
	}
	msg := service.NewClientMessage(service.ClientMessageRTC, rtc.Message{
		ConnID: c.sessionID,
		Type:   msgType,
		Data:   data,
	})
	packed, err := msg.Pack()
	if err != nil {
		return fmt.Errorf("failed to pack message: %w", err)
	}
	if c.ws == nil {
		return fmt.Errorf("ws client is not initialized")
	}
	return c.ws.Send(ws.BinaryMessage, packed)
}

// Publish starts sending track to the room.
func (c *Client) Publish(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	if track == nil {
		return nil, fmt.Errorf("invalid nil track")
	}

	c.mut.Lock()
	defer c.mut.Unlock()

	if c.pc == nil {
		return nil, fmt.Errorf("rtc client is not initialized")
	}

	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	go func() {
		defer c.log.Debug("exiting RTCP handler")
		rtcpBuf := make([]byte, receiveMTU)
		for {
			if _, _, rtcpErr := sender.Read(rtcpBuf); rtcpErr != nil {
				return
			}
		}
	}()

	c.pendingOffer = true
	if err := c.offerLocked(); err != nil {
		return nil, err
	}

	return sender, nil
}

// Unpublish stops sending the track behind sender.
func (c *Client) Unpublish(sender *webrtc.RTPSender) error {
	c.mut.Lock()
	defer c.mut.Unlock()

	if c.pc == nil {
		return fmt.Errorf("rtc client is not initialized")
	}

	if err := c.pc.RemoveTrack(sender); err != nil {
		return fmt.Errorf("failed to remove track: %w", err)
	}

	c.pendingOffer = true
	return c.offerLocked()
}

func (c *Client) handleRTCMessage(msg rtc.Message) error {
	c.mut.Lock()
	defer c.mut.Unlock()

	if c.pc == nil {
		return fmt.Errorf("rtc client is not initialized")
	}

	switch msg.Type {
	case rtc.ICEMessage:
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(msg.Data, &candidate); err != nil {
			return fmt.Errorf("failed to unmarshal candidate: %w", err)
		}

		if c.pc.RemoteDescription() != nil {
			if err := c.pc.AddICECandidate(candidate); err != nil {
				return fmt.Errorf("failed to add remote candidate: %w", err)
			}
			return nil
		}

		// Candidates cannot be added until the remote description is set, so we
		// queue them until that happens.
		select {
		case c.iceCh <- candidate:
		default:
			return fmt.Errorf("failed to queue candidate")
		}
	case rtc.SDPMessage:
		var sdp webrtc.SessionDescription
		if err := json.Unmarshal(msg.Data, &sdp); err != nil {
			return fmt.Errorf("failed to unmarshal sdp: %w", err)
		}
		return c.handleSDPLocked(sdp)
	default:
		return fmt.Errorf("invalid rtc message type %d", msg.Type)
	}

	return nil
}

func (c *Client) handleSDPLocked(sdp webrtc.SessionDescription) error {
	switch sdp.Type {
	case webrtc.SDPTypeOffer:
		// On glare the server rolls back its own offer and answers ours.
		if c.pc.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
			c.log.Debug("ignoring remote offer while local offer is pending")
			return nil
		}

		if err := c.pc.SetRemoteDescription(sdp); err != nil {
			return fmt.Errorf("failed to set remote description: %w", err)
		}

		answer, err := c.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("failed to create answer: %w", err)
		}

		if err := c.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("failed to set local description: %w", err)
		}

		data, err := json.Marshal(c.pc.LocalDescription())
		if err != nil {
			return fmt.Errorf("failed to marshal answer: %w", err)
		}
		if err := c.sendRTCLocked(rtc.SDPMessage, data); err != nil {
			return err
		}
	case webrtc.SDPTypeAnswer:
		if err := c.pc.SetRemoteDescription(sdp); err != nil {
			return fmt.Errorf("failed to set remote description: %w", err)
		}
	default:
		return fmt.Errorf("invalid sdp type %q", sdp.Type.String())
	}

	for len(c.iceCh) > 0 {
		if err := c.pc.AddICECandidate(<-c.iceCh); err != nil {
			c.log.Warn("failed to add queued remote candidate", slog.String("err", err.Error()))
		}
	}

	if c.pendingOffer {
		return c.offerLocked()
	}

	return nil
}
