// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package rtc

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/Huk9uri/dawata-roomd/service/signaling"
	"github.com/Huk9uri/dawata-roomd/service/tracks"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"golang.org/x/time/rate"
)

// inTrack is a track received from a publisher and the local track its
// packets are forwarded to.
type inTrack struct {
	id       string
	kind     tracks.Kind
	owner    *peer
	remote   *webrtc.TrackRemote
	receiver *webrtc.RTPReceiver
	local    *webrtc.TrackLocalStaticRTP

	// accepted is set once the track is allowed to be forwarded.
	accepted atomic.Bool
	// stopped is set when the track was removed on our side.
	stopped  atomic.Bool
	stopOnce sync.Once
}

func (e *Engine) handleTrack(p *peer, remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	kind := trackKind(remote.Kind(), remote.StreamID())
	id := genTrackID(kind, p.connID)

	e.log.Debug("rtc: new track received",
		mlog.String("connID", p.connID),
		mlog.String("trackID", id),
		mlog.String("kind", string(kind)),
		mlog.String("mimeType", remote.Codec().MimeType),
		mlog.Uint("ssrc", remote.SSRC()),
	)

	local, err := webrtc.NewTrackLocalStaticRTP(remote.Codec().RTPCodecCapability, id, p.sessionID)
	if err != nil {
		e.log.Error("failed to create local track", mlog.String("connID", p.connID), mlog.Err(err))
		e.metrics.IncRTCErrors("track")
		return
	}

	t := &inTrack{
		id:       id,
		kind:     kind,
		owner:    p,
		remote:   remote,
		receiver: receiver,
		local:    local,
	}

	e.mut.Lock()
	if _, ok := e.peers[p.connID]; !ok {
		e.mut.Unlock()
		return
	}
	e.tracks[id] = t
	e.mut.Unlock()

	e.sendEvent(signaling.EngineEvent{
		ConnID: p.connID,
		Type:   signaling.EngineTrackAdded,
		Track:  tracks.Track{ID: id, Kind: kind},
	})

	go drainReceiverRTCP(receiver)

	e.forward(t)

	if !t.stopped.Load() && !p.isClosed() {
		e.mut.Lock()
		delete(e.tracks, id)
		e.mut.Unlock()
		e.sendEvent(signaling.EngineEvent{
			ConnID: p.connID,
			Type:   signaling.EngineTrackRemoved,
			Track:  tracks.Track{ID: id, Kind: kind},
		})
	}
}

// forward copies the packets of t to its local track until the remote
// track ends.
func (e *Engine) forward(t *inTrack) {
	buf := make([]byte, receiveMTU)
	var pkt rtp.Packet
	for {
		n, _, err := t.remote.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) && !t.stopped.Load() {
				e.log.Error("failed to read RTP packet", mlog.String("trackID", t.id), mlog.Err(err))
				e.metrics.IncRTCErrors("rtp")
			}
			return
		}

		e.metrics.IncRTPPackets("in", string(t.kind))
		e.metrics.AddRTPPacketBytes("in", string(t.kind), n)

		if !t.accepted.Load() {
			continue
		}

		if err := pkt.Unmarshal(buf[:n]); err != nil {
			e.log.Warn("failed to unmarshal RTP packet", mlog.String("trackID", t.id), mlog.Err(err))
			continue
		}
		if err := t.local.WriteRTP(&pkt); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			e.log.Error("failed to write RTP packet", mlog.String("trackID", t.id), mlog.Err(err))
			e.metrics.IncRTCErrors("rtp")
			return
		}
	}
}

func (t *inTrack) stop() {
	t.stopOnce.Do(func() {
		t.stopped.Store(true)
		t.accepted.Store(false)
		if err := t.receiver.Stop(); err != nil {
			t.owner.e.log.Debug("failed to stop receiver", mlog.String("trackID", t.id), mlog.Err(err))
		}
	})
}

// requestKeyframe asks the publisher for a keyframe, at most as often as
// limiter allows.
func (t *inTrack) requestKeyframe(limiter *rate.Limiter) {
	if t.kind == tracks.KindAudio || !limiter.Allow() {
		return
	}
	if err := t.owner.pc.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: uint32(t.remote.SSRC())},
	}); err != nil {
		t.owner.e.log.Debug("failed to write RTCP packet", mlog.String("trackID", t.id), mlog.Err(err))
	}
}

func isKeyframeRequest(pkt rtcp.Packet) bool {
	switch pkt.(type) {
	case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
		return true
	default:
		return false
	}
}

func drainReceiverRTCP(receiver *webrtc.RTPReceiver) {
	buf := make([]byte, receiveMTU)
	for {
		if _, _, err := receiver.Read(buf); err != nil {
			return
		}
	}
}
