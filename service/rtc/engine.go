// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package rtc implements the media engine on top of pion/webrtc: one peer
// connection per participant connection, forwarding the RTP of published
// tracks to their subscribers.
package rtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/Huk9uri/dawata-roomd/service/signaling"
	"github.com/Huk9uri/dawata-roomd/service/tracks"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"
	"golang.org/x/time/rate"
)

const (
	msgChSize    = 256
	eventsChSize = 256
)

var (
	ErrPeerNotFound  = errors.New("peer not found")
	ErrPeerExists    = errors.New("peer already exists")
	ErrTrackNotFound = errors.New("track not found")
	ErrNotRunning    = errors.New("engine is not running")
)

var _ signaling.MediaEngine = (*Engine)(nil)

type Engine struct {
	cfg     EngineConfig
	log     mlog.LoggerIFace
	metrics Metrics

	udpConn net.PacketConn
	udpMux  ice.UDPMux
	api     *webrtc.API

	mut         sync.RWMutex
	running     bool
	peers       map[string]*peer
	tracks      map[string]*inTrack
	pliLimiters map[webrtc.SSRC]*rate.Limiter

	eventsCh  chan signaling.EngineEvent
	sendCh    chan Message
	receiveCh chan Message
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewEngine(cfg EngineConfig, log mlog.LoggerIFace, metrics Metrics) (*Engine, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	if log == nil {
		return nil, fmt.Errorf("log should not be nil")
	}
	if metrics == nil {
		return nil, fmt.Errorf("metrics should not be nil")
	}

	return &Engine{
		cfg:         cfg,
		log:         log,
		metrics:     metrics,
		peers:       make(map[string]*peer),
		tracks:      make(map[string]*inTrack),
		pliLimiters: make(map[webrtc.SSRC]*rate.Limiter),
		eventsCh:    make(chan signaling.EngineEvent, eventsChSize),
		sendCh:      make(chan Message, msgChSize),
		receiveCh:   make(chan Message, msgChSize),
		stopCh:      make(chan struct{}),
	}, nil
}

func (e *Engine) Start() error {
	e.mut.Lock()
	defer e.mut.Unlock()

	if e.running {
		return fmt.Errorf("engine is already running")
	}

	if stunURL := e.cfg.ICEServers.getSTUN(); e.cfg.ICEHostOverride == "" && stunURL != "" {
		addr, err := getPublicIP(e.cfg.ICEPortUDP, stunURL)
		if err != nil {
			e.log.Warn("rtc: failed to get public IP address", mlog.Err(err))
		} else {
			e.cfg.ICEHostOverride = addr
			e.log.Info("rtc: got public IP address", mlog.String("addr", addr))
		}
	}

	network := "udp4"
	if e.cfg.EnableIPv6 {
		network = "udp"
	}
	conns, err := createUDPConns(e.log, network, net.JoinHostPort(e.cfg.ICEAddressUDP, strconv.Itoa(e.cfg.ICEPortUDP)))
	if err != nil {
		return fmt.Errorf("failed to create UDP connections: %w", err)
	}
	mc, err := newMultiConn(conns)
	if err != nil {
		return fmt.Errorf("failed to create multiconn: %w", err)
	}
	e.udpConn = mc
	e.udpMux = webrtc.NewICEUDPMux(e.NewLogger("ice"), e.udpConn)

	e.api, err = e.newAPI()
	if err != nil {
		e.closeNet()
		return fmt.Errorf("failed to init webrtc api: %w", err)
	}

	e.running = true
	e.wg.Add(1)
	go e.msgReader()

	return nil
}

func (e *Engine) newAPI() (*webrtc.API, error) {
	sEngine := webrtc.SettingEngine{
		LoggerFactory: e,
	}
	sEngine.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	networkTypes := []webrtc.NetworkType{webrtc.NetworkTypeUDP4}
	if e.cfg.EnableIPv6 {
		networkTypes = append(networkTypes, webrtc.NetworkTypeUDP6)
	}
	sEngine.SetNetworkTypes(networkTypes)
	sEngine.SetICEUDPMux(e.udpMux)
	sEngine.SetIncludeLoopbackCandidate(true)

	if e.cfg.ICEHostOverride != "" {
		localIPs, err := getSystemIPs(e.log, e.cfg.EnableIPv6)
		if err != nil {
			return nil, err
		}
		if pairs := natMappings(localIPs, e.cfg.ICEHostOverride); len(pairs) > 0 {
			e.log.Debug("rtc: using NAT mappings", mlog.Any("pairs", pairs))
			sEngine.SetNAT1To1IPs(pairs, webrtc.ICECandidateTypeHost)
		}
	}

	mEngine, err := initMediaEngine()
	if err != nil {
		return nil, err
	}
	iRegistry, err := initInterceptors(mEngine)
	if err != nil {
		return nil, fmt.Errorf("failed to init interceptors: %w", err)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mEngine),
		webrtc.WithSettingEngine(sEngine),
		webrtc.WithInterceptorRegistry(iRegistry),
	), nil
}

func (e *Engine) Stop() error {
	e.mut.Lock()
	if !e.running {
		e.mut.Unlock()
		return fmt.Errorf("engine is not running")
	}
	e.running = false
	close(e.stopCh)
	peers := make([]*peer, 0, len(e.peers))
	for _, p := range e.peers {
		peers = append(peers, p)
	}
	e.mut.Unlock()

	for _, p := range peers {
		if err := e.Disconnect(p.connID); err != nil && !errors.Is(err, ErrPeerNotFound) {
			e.log.Warn("rtc: failed to disconnect peer", mlog.String("connID", p.connID), mlog.Err(err))
		}
	}

	e.wg.Wait()

	if err := e.closeNet(); err != nil {
		return err
	}

	e.log.Info("rtc: engine was shutdown")

	return nil
}

func (e *Engine) closeNet() error {
	if e.udpMux != nil {
		if err := e.udpMux.Close(); err != nil {
			return fmt.Errorf("failed to close udp mux: %w", err)
		}
	}
	if e.udpConn != nil {
		if err := e.udpConn.Close(); err != nil {
			return fmt.Errorf("failed to close udp conn: %w", err)
		}
	}
	return nil
}

// Send delivers a signaling message received from a client.
func (e *Engine) Send(msg Message) error {
	if err := msg.IsValid(); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}

	select {
	case <-e.stopCh:
		return ErrNotRunning
	default:
	}

	select {
	case e.sendCh <- msg:
	default:
		return fmt.Errorf("failed to send rtc message, channel is full")
	}
	return nil
}

// ReceiveCh returns the signaling messages to be delivered to clients.
func (e *Engine) ReceiveCh() <-chan Message {
	return e.receiveCh
}

func (e *Engine) Events() <-chan signaling.EngineEvent {
	return e.eventsCh
}

func (e *Engine) Connect(sp signaling.Peer) error {
	e.mut.Lock()
	defer e.mut.Unlock()

	if !e.running {
		return ErrNotRunning
	}
	if _, ok := e.peers[sp.ConnID]; ok {
		return ErrPeerExists
	}

	iceServers := make([]webrtc.ICEServer, 0, len(e.cfg.ICEServers))
	for _, iceCfg := range e.cfg.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       iceCfg.URLs,
			Username:   iceCfg.Username,
			Credential: iceCfg.Credential,
		})
	}

	pc, err := e.api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   iceServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlan,
	})
	if err != nil {
		e.metrics.IncRTCErrors("connect")
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	p := newPeer(e, sp, pc)
	e.peers[p.connID] = p
	e.metrics.IncRTCPeers()

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		msg, err := newICEMessage(p.connID, candidate)
		if err != nil {
			e.log.Error("failed to create ICE message", mlog.Err(err), mlog.String("connID", p.connID))
			return
		}
		e.deliver(msg)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		e.log.Debug("rtc: connection state changed", mlog.String("connID", p.connID), mlog.String("state", state.String()))
		switch state {
		case webrtc.PeerConnectionStateConnected:
			e.metrics.IncRTCConnState("connected")
			e.sendEvent(signaling.EngineEvent{ConnID: p.connID, Type: signaling.EngineConnected})
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
			e.metrics.IncRTCConnState(state.String())
			if !p.isClosed() {
				e.sendEvent(signaling.EngineEvent{ConnID: p.connID, Type: signaling.EngineTransportLost})
			}
		case webrtc.PeerConnectionStateClosed:
			e.metrics.IncRTCConnState("closed")
		}
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		e.handleTrack(p, remote, receiver)
	})

	return nil
}

// Reconnect restarts ICE on an existing connection.
func (e *Engine) Reconnect(connID string) error {
	p := e.getPeer(connID)
	if p == nil {
		return ErrPeerNotFound
	}
	return p.restartICE()
}

func (e *Engine) Disconnect(connID string) error {
	e.mut.Lock()
	p, ok := e.peers[connID]
	if !ok {
		e.mut.Unlock()
		return ErrPeerNotFound
	}
	delete(e.peers, connID)

	var owned []*inTrack
	for id, t := range e.tracks {
		if t.owner == p {
			owned = append(owned, t)
			delete(e.tracks, id)
			delete(e.pliLimiters, t.remote.SSRC())
		}
	}
	others := make([]*peer, 0, len(e.peers))
	for _, other := range e.peers {
		others = append(others, other)
	}
	e.mut.Unlock()

	p.markClosed()
	for _, t := range owned {
		t.stop()
		for _, other := range others {
			other.removeTrack(t.id)
		}
	}

	e.metrics.DecRTCPeers()

	if err := p.pc.Close(); err != nil {
		return fmt.Errorf("failed to close peer connection: %w", err)
	}

	return nil
}

// Publish starts forwarding a track received from connID.
func (e *Engine) Publish(connID string, track tracks.Track) error {
	t, err := e.getOwnedTrack(connID, track.ID)
	if err != nil {
		return err
	}
	t.accepted.Store(true)
	return nil
}

// Unpublish stops receiving a track from connID and removes it from its
// subscribers.
func (e *Engine) Unpublish(connID string, trackID string) error {
	t, err := e.getOwnedTrack(connID, trackID)
	if err != nil {
		return err
	}

	e.mut.Lock()
	delete(e.tracks, trackID)
	delete(e.pliLimiters, t.remote.SSRC())
	others := make([]*peer, 0, len(e.peers))
	for _, other := range e.peers {
		if other != t.owner {
			others = append(others, other)
		}
	}
	e.mut.Unlock()

	t.stop()
	for _, other := range others {
		other.removeTrack(trackID)
	}

	return nil
}

func (e *Engine) Subscribe(connID string, track tracks.Track) error {
	p := e.getPeer(connID)
	if p == nil {
		return ErrPeerNotFound
	}

	e.mut.RLock()
	t := e.tracks[track.ID]
	e.mut.RUnlock()
	if t == nil {
		return ErrTrackNotFound
	}

	return p.addTrack(t)
}

func (e *Engine) Unsubscribe(connID string, trackID string) error {
	p := e.getPeer(connID)
	if p == nil {
		return ErrPeerNotFound
	}
	if !p.removeTrack(trackID) {
		return ErrTrackNotFound
	}
	return nil
}

func (e *Engine) getPeer(connID string) *peer {
	e.mut.RLock()
	defer e.mut.RUnlock()
	return e.peers[connID]
}

func (e *Engine) getOwnedTrack(connID, trackID string) (*inTrack, error) {
	e.mut.RLock()
	defer e.mut.RUnlock()
	t := e.tracks[trackID]
	if t == nil || t.owner.connID != connID {
		return nil, ErrTrackNotFound
	}
	return t, nil
}

func (e *Engine) pliLimiter(ssrc webrtc.SSRC) *rate.Limiter {
	e.mut.Lock()
	defer e.mut.Unlock()
	limiter, ok := e.pliLimiters[ssrc]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(e.cfg.PLIRate), 1)
		e.pliLimiters[ssrc] = limiter
	}
	return limiter
}

func (e *Engine) sendEvent(ev signaling.EngineEvent) {
	select {
	case e.eventsCh <- ev:
	case <-e.stopCh:
	}
}

// deliver queues msg for the client.
func (e *Engine) deliver(msg Message) {
	select {
	case <-e.stopCh:
		return
	default:
	}

	select {
	case e.receiveCh <- msg:
	default:
		e.log.Error("failed to send rtc message: channel is full", mlog.String("connID", msg.ConnID))
	}
}

func (e *Engine) msgReader() {
	defer e.wg.Done()
	for {
		select {
		case msg := <-e.sendCh:
			e.handleMessage(msg)
		case <-e.stopCh:
			return
		}
	}
}

func (e *Engine) handleMessage(msg Message) {
	p := e.getPeer(msg.ConnID)
	if p == nil {
		e.log.Debug("rtc: peer not found", mlog.String("connID", msg.ConnID), mlog.Int("msgType", int(msg.Type)))
		return
	}

	switch msg.Type {
	case SDPMessage:
		var sdp webrtc.SessionDescription
		if err := json.Unmarshal(msg.Data, &sdp); err != nil {
			e.log.Error("failed to unmarshal sdp", mlog.Err(err), mlog.String("connID", msg.ConnID))
			return
		}
		if err := p.handleSDP(sdp); err != nil {
			e.metrics.IncRTCErrors("signaling")
			e.log.Error("failed to handle sdp", mlog.Err(err), mlog.String("connID", msg.ConnID))
		}
	case ICEMessage:
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(msg.Data, &candidate); err != nil {
			e.log.Error("failed to unmarshal ice candidate", mlog.Err(err), mlog.String("connID", msg.ConnID))
			return
		}
		if err := p.addCandidate(candidate); err != nil {
			e.metrics.IncRTCErrors("ice")
			e.log.Error("failed to add ice candidate", mlog.Err(err), mlog.String("connID", msg.ConnID))
		}
	}
}
