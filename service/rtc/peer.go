// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package rtc

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/Huk9uri/dawata-roomd/service/signaling"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
	"github.com/pion/webrtc/v4"
)

// peer is the WebRTC side of a participant connection.
type peer struct {
	connID    string
	sessionID string
	e         *Engine
	pc        *webrtc.PeerConnection
	closed    atomic.Bool

	mut sync.Mutex
	// ready is set once the first remote offer was answered. Offers from
	// our side are deferred until then.
	ready             bool
	pendingOffer      bool
	pendingRestart    bool
	pendingCandidates []webrtc.ICECandidateInit
	senders           map[string]*webrtc.RTPSender
}

func newPeer(e *Engine, sp signaling.Peer, pc *webrtc.PeerConnection) *peer {
	return &peer{
		connID:    sp.ConnID,
		sessionID: sp.SessionID,
		e:         e,
		pc:        pc,
		senders:   make(map[string]*webrtc.RTPSender),
	}
}

func (p *peer) isClosed() bool {
	return p.closed.Load()
}

func (p *peer) markClosed() {
	p.closed.Store(true)
}

func (p *peer) handleSDP(sdp webrtc.SessionDescription) error {
	p.mut.Lock()
	defer p.mut.Unlock()

	switch sdp.Type {
	case webrtc.SDPTypeOffer:
		// On glare our own offer is rolled back and sent again later.
		if p.pc.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
			if err := p.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
				return fmt.Errorf("failed to rollback local offer: %w", err)
			}
			p.pendingOffer = true
		}

		if err := p.pc.SetRemoteDescription(sdp); err != nil {
			return fmt.Errorf("failed to set remote description: %w", err)
		}
		answer, err := p.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("failed to create answer: %w", err)
		}
		if err := p.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("failed to set local description: %w", err)
		}
		msg, err := newSDPMessage(p.connID, p.pc.LocalDescription())
		if err != nil {
			return err
		}
		p.e.deliver(msg)
		p.ready = true
	case webrtc.SDPTypeAnswer:
		if err := p.pc.SetRemoteDescription(sdp); err != nil {
			return fmt.Errorf("failed to set remote description: %w", err)
		}
	default:
		return fmt.Errorf("unexpected sdp type %q", sdp.Type.String())
	}

	for _, c := range p.pendingCandidates {
		if err := p.pc.AddICECandidate(c); err != nil {
			p.e.log.Warn("failed to add queued ice candidate", mlog.String("connID", p.connID), mlog.Err(err))
		}
	}
	p.pendingCandidates = nil

	if p.pendingOffer || p.pendingRestart {
		return p.offerLocked()
	}

	return nil
}

func (p *peer) addCandidate(c webrtc.ICECandidateInit) error {
	if c.Candidate == "" {
		return nil
	}

	p.mut.Lock()
	defer p.mut.Unlock()

	if p.pc.RemoteDescription() == nil {
		p.pendingCandidates = append(p.pendingCandidates, c)
		return nil
	}

	return p.pc.AddICECandidate(c)
}

func (p *peer) restartICE() error {
	p.mut.Lock()
	defer p.mut.Unlock()
	p.pendingRestart = true
	return p.offerLocked()
}

func (p *peer) negotiate() error {
	p.mut.Lock()
	defer p.mut.Unlock()
	p.pendingOffer = true
	return p.offerLocked()
}

// offerLocked sends a new offer when the connection can take one,
// otherwise it stays pending until the current exchange completes.
func (p *peer) offerLocked() error {
	if p.isClosed() || !p.ready || p.pc.SignalingState() != webrtc.SignalingStateStable {
		return nil
	}

	offer, err := p.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: p.pendingRestart})
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}
	p.pendingOffer = false
	p.pendingRestart = false

	msg, err := newSDPMessage(p.connID, p.pc.LocalDescription())
	if err != nil {
		return err
	}
	p.e.deliver(msg)

	return nil
}

func (p *peer) addTrack(t *inTrack) error {
	p.mut.Lock()
	if _, ok := p.senders[t.id]; ok {
		p.mut.Unlock()
		return nil
	}
	sender, err := p.pc.AddTrack(t.local)
	if err != nil {
		p.mut.Unlock()
		return fmt.Errorf("failed to add track %s: %w", t.id, err)
	}
	p.senders[t.id] = sender
	p.mut.Unlock()

	go p.handleSenderRTCP(sender, t)

	return p.negotiate()
}

// removeTrack stops sending the given track, reporting whether it was
// being sent.
func (p *peer) removeTrack(trackID string) bool {
	p.mut.Lock()
	sender, ok := p.senders[trackID]
	if !ok {
		p.mut.Unlock()
		return false
	}
	delete(p.senders, trackID)
	if err := p.pc.RemoveTrack(sender); err != nil && !p.isClosed() {
		p.e.log.Warn("failed to remove track", mlog.String("connID", p.connID), mlog.String("trackID", trackID), mlog.Err(err))
	}
	p.mut.Unlock()

	if err := p.negotiate(); err != nil {
		p.e.log.Warn("failed to renegotiate", mlog.String("connID", p.connID), mlog.Err(err))
	}

	return true
}

// handleSenderRTCP forwards keyframe requests from this subscriber to the
// publisher of t.
func (p *peer) handleSenderRTCP(sender *webrtc.RTPSender, t *inTrack) {
	for {
		pkts, _, err := sender.ReadRTCP()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				p.e.log.Debug("failed to read RTCP packet", mlog.String("connID", p.connID), mlog.Err(err))
			}
			return
		}
		for _, pkt := range pkts {
			if isKeyframeRequest(pkt) {
				t.requestKeyframe(p.e.pliLimiter(t.remote.SSRC()))
			}
		}
	}
}
