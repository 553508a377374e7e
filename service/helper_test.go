// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Huk9uri/dawata-roomd/logger"
	"github.com/Huk9uri/dawata-roomd/service/credential"
	"github.com/Huk9uri/dawata-roomd/service/rtc"
	"github.com/Huk9uri/dawata-roomd/service/signaling"
	"github.com/Huk9uri/dawata-roomd/service/tracks"
	"github.com/Huk9uri/dawata-roomd/service/ws"

	"github.com/stretchr/testify/require"
)

const (
	testSigningKey     = "roomd_test_signing_key_0123456789abcdef"
	testAdminSecretKey = "admin_secret_key"
	testClientKey      = "Ey4-H_BJA00_TVByPi8DozE12ekN3S7L"
)

type fakeEngine struct {
	mut       sync.Mutex
	running   bool
	peers     map[string]signaling.Peer
	sent      []rtc.Message
	connectCh chan signaling.Peer
	eventsCh  chan signaling.EngineEvent
	receiveCh chan rtc.Message
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		peers:     make(map[string]signaling.Peer),
		connectCh: make(chan signaling.Peer, 16),
		eventsCh:  make(chan signaling.EngineEvent, 64),
		receiveCh: make(chan rtc.Message, 64),
	}
}

func (e *fakeEngine) Start() error {
	e.mut.Lock()
	defer e.mut.Unlock()
	e.running = true
	return nil
}

func (e *fakeEngine) Stop() error {
	e.mut.Lock()
	defer e.mut.Unlock()
	e.running = false
	return nil
}

func (e *fakeEngine) Send(msg rtc.Message) error {
	if err := msg.IsValid(); err != nil {
		return err
	}
	e.mut.Lock()
	defer e.mut.Unlock()
	e.sent = append(e.sent, msg)
	return nil
}

func (e *fakeEngine) sentMessages() []rtc.Message {
	e.mut.Lock()
	defer e.mut.Unlock()
	return append([]rtc.Message(nil), e.sent...)
}

func (e *fakeEngine) ReceiveCh() <-chan rtc.Message {
	return e.receiveCh
}

func (e *fakeEngine) Connect(peer signaling.Peer) error {
	e.mut.Lock()
	e.peers[peer.ConnID] = peer
	e.mut.Unlock()
	e.connectCh <- peer
	return nil
}

func (e *fakeEngine) Reconnect(_ string) error {
	return nil
}

func (e *fakeEngine) Disconnect(connID string) error {
	e.mut.Lock()
	defer e.mut.Unlock()
	delete(e.peers, connID)
	return nil
}

func (e *fakeEngine) Publish(_ string, _ tracks.Track) error {
	return nil
}

func (e *fakeEngine) Unpublish(_ string, _ string) error {
	return nil
}

func (e *fakeEngine) Subscribe(_ string, _ tracks.Track) error {
	return nil
}

func (e *fakeEngine) Unsubscribe(_ string, _ string) error {
	return nil
}

func (e *fakeEngine) Events() <-chan signaling.EngineEvent {
	return e.eventsCh
}

func (e *fakeEngine) waitConnect(tb testing.TB) signaling.Peer {
	tb.Helper()
	select {
	case peer := <-e.connectCh:
		return peer
	case <-time.After(5 * time.Second):
		require.FailNow(tb, "timed out waiting for engine connect")
	}
	return signaling.Peer{}
}

type TestHelper struct {
	srvc   *Service
	engine *fakeEngine
	cfg    Config
	tb     testing.TB
	apiURL string
	wsURL  string
}

func MakeDefaultCfg(tb testing.TB) *Config {
	var cfg Config
	cfg.SetDefaults()
	cfg.API.HTTP.ListenAddress = "localhost:0"
	cfg.API.Security.EnableAdmin = true
	cfg.API.Security.AdminSecretKey = testAdminSecretKey
	cfg.Registry.EmptyRoomGraceSeconds = 0
	cfg.Credential.SigningKey = testSigningKey
	cfg.Store.DataSource = tb.TempDir()
	cfg.Logger = logger.Config{
		EnableConsole: true,
		ConsoleLevel:  "ERROR",
	}
	return &cfg
}

func SetupTestHelper(tb testing.TB, cfg *Config) *TestHelper {
	tb.Helper()

	if cfg == nil {
		cfg = MakeDefaultCfg(tb)
	}

	th := &TestHelper{
		engine: newFakeEngine(),
		cfg:    *cfg,
		tb:     tb,
	}

	var err error
	th.srvc, err = New(th.cfg, WithMediaEngine(th.engine))
	require.NoError(tb, err)
	require.NotNil(tb, th.srvc)

	err = th.srvc.Start()
	require.NoError(tb, err)

	_, port, err := net.SplitHostPort(th.srvc.apiServer.Addr())
	require.NoError(tb, err)
	th.apiURL = "http://localhost:" + port
	th.wsURL = "ws://localhost:" + port + "/ws"

	return th
}

func (th *TestHelper) boundConns() int {
	th.srvc.mut.RLock()
	defer th.srvc.mut.RUnlock()
	return len(th.srvc.connSessions)
}

func (th *TestHelper) Teardown() {
	err := th.srvc.Stop()
	require.NoError(th.tb, err)
}

func (th *TestHelper) issueCredential(identity, roomID string, perms ...credential.Permission) string {
	th.tb.Helper()
	issuer, err := credential.NewIssuer(testSigningKey)
	require.NoError(th.tb, err)
	token, err := issuer.Issue(credential.NewClaims(identity, roomID, time.Hour, perms...))
	require.NoError(th.tb, err)
	return token
}

func (th *TestHelper) newWSClient() *ws.Client {
	th.tb.Helper()
	c, err := ws.NewClient(ws.ClientConfig{URL: th.wsURL})
	require.NoError(th.tb, err)
	return c
}

func sendClientMessage(tb testing.TB, c *ws.Client, msg *ClientMessage) {
	tb.Helper()
	data, err := msg.Pack()
	require.NoError(tb, err)
	require.NoError(tb, c.Send(ws.BinaryMessage, data))
}

// readClientMessage returns the next message received by c. Track view
// updates are skipped since their timing depends on the room dispatcher.
func readClientMessage(tb testing.TB, c *ws.Client) ClientMessage {
	tb.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg, ok := <-c.ReceiveCh():
			require.True(tb, ok, "connection closed")
			var cm ClientMessage
			require.NoError(tb, cm.Unpack(msg.Data))
			if ev, ok := cm.Data.(signaling.LifecycleEvent); ok && ev.Type == signaling.EventTrackViewChanged {
				continue
			}
			return cm
		case <-timeout:
			require.FailNow(tb, "timed out waiting for message")
			return ClientMessage{}
		}
	}
}

func readEvent(tb testing.TB, c *ws.Client, evType signaling.EventType) signaling.LifecycleEvent {
	tb.Helper()
	cm := readClientMessage(tb, c)
	require.Equal(tb, ClientMessageEvent, cm.Type)
	ev, ok := cm.Data.(signaling.LifecycleEvent)
	require.True(tb, ok)
	require.Equal(tb, evType, ev.Type)
	return ev
}
