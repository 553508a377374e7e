// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/Huk9uri/dawata-roomd/service/hostcfg"
	"github.com/Huk9uri/dawata-roomd/service/reconnect"
	"github.com/Huk9uri/dawata-roomd/service/ws"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

type EventHandler func(ctx any) error

type EventType string

const (
	RTCConnectEvent    EventType = "RTCConnect"
	RTCDisconnectEvent EventType = "RTCDisconnect"
	RTCTrackEvent      EventType = "RTCTrack"

	CloseEvent EventType = "Close"
	ErrorEvent EventType = "Error"

	WSConnectEvent    EventType = "WSConnect"
	WSDisconnectEvent EventType = "WSDisconnect"

	// AdmittedEvent carries a service.AdmittedMessage.
	AdmittedEvent EventType = "Admitted"
	// StateEvent carries the signaling.LifecycleEvent of every state change.
	StateEvent EventType = "State"
	// TrackViewEvent carries the []tracks.Track grid of remote tracks.
	TrackViewEvent EventType = "TrackView"
)

func (e EventType) IsValid() bool {
	switch e {
	case RTCConnectEvent, RTCDisconnectEvent, RTCTrackEvent,
		CloseEvent,
		ErrorEvent,
		WSConnectEvent, WSDisconnectEvent,
		AdmittedEvent, StateEvent, TrackViewEvent:
		return true
	default:
		return false
	}
}

const (
	clientStateNew int32 = iota
	clientStateInit
	clientStateClosing
	clientStateClosed
)

var (
	ErrAlreadySubscribed = errors.New("already subscribed")
	ErrNotAdmitted       = errors.New("client is not admitted")
)

// Client is a room participant connected to roomd.
type Client struct {
	cfg     Config
	log     *slog.Logger
	hostCfg *hostcfg.Channel

	handlers map[EventType]EventHandler

	// HTTP API
	httpClient *http.Client
	apiToken   string

	// WebSocket
	ws         *ws.Client
	wsDoneCh   chan struct{}
	wsCloseCh  chan struct{}
	supervisor *reconnect.Supervisor

	// Session
	credential     string
	sessionID      string
	reconnectToken string
	roomID         string

	// WebRTC
	rtcAPI       *webrtc.API
	pc           *webrtc.PeerConnection
	iceCh        chan webrtc.ICECandidateInit
	pendingOffer bool

	state int32

	mut sync.RWMutex
}

type Option func(c *Client) error

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) error {
		if log == nil {
			return fmt.Errorf("invalid logger: should not be nil")
		}
		c.log = log
		return nil
	}
}

// WithHostConfig makes the client wait for the credential injected by the
// host when none is configured.
func WithHostConfig(ch *hostcfg.Channel) Option {
	return func(c *Client) error {
		if ch == nil {
			return fmt.Errorf("invalid host config channel: should not be nil")
		}
		c.hostCfg = ch
		return nil
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return fmt.Errorf("invalid http client: should not be nil")
		}
		c.httpClient = hc
		return nil
	}
}

// WithSettingEngine customizes the WebRTC stack of the client.
func WithSettingEngine(se webrtc.SettingEngine) Option {
	return func(c *Client) error {
		api, err := newRTCAPI(se)
		if err != nil {
			return err
		}
		c.rtcAPI = api
		return nil
	}
}

func newRTCAPI(se webrtc.SettingEngine) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}
	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}
	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
		webrtc.WithSettingEngine(se),
	), nil
}

// New initializes and returns a new room client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Parse(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	supervisor, err := reconnect.NewSupervisor(cfg.Reconnect)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconnect supervisor: %w", err)
	}

	c := &Client{
		cfg:        cfg,
		handlers:   make(map[EventType]EventHandler),
		httpClient: &http.Client{Timeout: httpRequestTimeout},
		wsDoneCh:   make(chan struct{}),
		wsCloseCh:  make(chan struct{}),
		supervisor: supervisor,
		iceCh:      make(chan webrtc.ICECandidateInit, iceChSize),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if c.log == nil {
		c.log = slog.Default()
	}

	if c.rtcAPI == nil {
		c.rtcAPI, err = newRTCAPI(webrtc.SettingEngine{})
		if err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Connect opens the signaling connection and joins the room. Without a
// configured credential it blocks until the host injects one or ctx is
// done.
func (c *Client) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.state, clientStateNew, clientStateInit) {
		return fmt.Errorf("client is already initialized")
	}

	if err := c.connect(ctx); err != nil {
		atomic.StoreInt32(&c.state, clientStateNew)
		return err
	}

	go c.wsReader()

	return nil
}

func (c *Client) connect(ctx context.Context) error {
	credential := c.cfg.Credential
	if credential == "" {
		if c.hostCfg == nil {
			return fmt.Errorf("invalid Credential value: should not be empty without a host config channel")
		}
		inj, err := c.hostCfg.Wait(ctx)
		if err != nil {
			return fmt.Errorf("failed to get host config: %w", err)
		}
		credential = inj.Credential
	}

	c.mut.Lock()
	c.credential = credential
	c.mut.Unlock()

	if err := c.wsOpen(); err != nil {
		return err
	}

	if err := c.sendSessionStart(); err != nil {
		c.mut.RLock()
		_ = c.ws.Close()
		c.mut.RUnlock()
		return err
	}

	return nil
}

// Leave asks the server to end the session. The client is closed once the
// server confirms.
func (c *Client) Leave() error {
	if atomic.LoadInt32(&c.state) != clientStateInit {
		return fmt.Errorf("client is not initialized")
	}
	return c.sendMsg(newLeaveMessage())
}

// Close permanently disconnects the client.
func (c *Client) Close() error {
	c.mut.RLock()
	if !atomic.CompareAndSwapInt32(&c.state, clientStateInit, clientStateClosing) {
		c.mut.RUnlock()
		return fmt.Errorf("client is not initialized")
	}
	c.mut.RUnlock()

	close(c.wsCloseCh)
	<-c.wsDoneCh

	c.mut.RLock()
	wsc := c.ws
	c.mut.RUnlock()
	if err := wsc.Close(); err != nil {
		c.log.Debug("failed to close ws", slog.String("err", err.Error()))
	}

	c.close()

	return nil
}

// SessionID returns the id of the admitted session, if any.
func (c *Client) SessionID() string {
	c.mut.RLock()
	defer c.mut.RUnlock()
	return c.sessionID
}

func (c *Client) RoomID() string {
	c.mut.RLock()
	defer c.mut.RUnlock()
	return c.roomID
}

// On is used to subscribe to any events fired by the client.
// Note: there can only be one subscriber per event type.
func (c *Client) On(eventType EventType, h EventHandler) error {
	if !eventType.IsValid() {
		return fmt.Errorf("invalid event type %q", eventType)
	}

	c.mut.Lock()
	defer c.mut.Unlock()

	if _, ok := c.handlers[eventType]; ok {
		return ErrAlreadySubscribed
	}

	c.handlers[eventType] = h

	return nil
}

func (c *Client) emit(eventType EventType, ctx any) {
	c.mut.RLock()
	handler := c.handlers[eventType]
	c.mut.RUnlock()
	if handler != nil {
		if err := handler(ctx); err != nil {
			c.log.Error("failed to handle event",
				slog.Any("type", eventType), slog.String("err", err.Error()))
		}
	}
}

func (c *Client) close() {
	atomic.StoreInt32(&c.state, clientStateClosed)

	c.closeRTCSession()

	c.emit(CloseEvent, nil)
}
