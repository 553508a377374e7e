// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package client

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Huk9uri/dawata-roomd/logger"
	"github.com/Huk9uri/dawata-roomd/service"
	"github.com/Huk9uri/dawata-roomd/service/credential"
	"github.com/Huk9uri/dawata-roomd/service/reconnect"
	"github.com/Huk9uri/dawata-roomd/service/rtc"
	"github.com/Huk9uri/dawata-roomd/service/signaling"
	"github.com/Huk9uri/dawata-roomd/service/tracks"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

const (
	testSigningKey     = "roomd_test_signing_key_0123456789abcdef"
	testAdminSecretKey = "admin_secret_key"
)

type fakeEngine struct {
	mut       sync.Mutex
	sent      []rtc.Message
	connectCh chan signaling.Peer
	eventsCh  chan signaling.EngineEvent
	receiveCh chan rtc.Message
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		connectCh: make(chan signaling.Peer, 16),
		eventsCh:  make(chan signaling.EngineEvent, 64),
		receiveCh: make(chan rtc.Message, 64),
	}
}

func (e *fakeEngine) Start() error { return nil }
func (e *fakeEngine) Stop() error { return nil }

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

func (e *fakeEngine) ReceiveCh() <-chan rtc.Message { return e.receiveCh }
func (e *fakeEngine) Events() <-chan signaling.EngineEvent { return e.eventsCh }
func (e *fakeEngine) Reconnect(_ string) error { return nil }
func (e *fakeEngine) Disconnect(_ string) error { return nil }
func (e *fakeEngine) Publish(_ string, _ tracks.Track) error { return nil }
func (e *fakeEngine) Unpublish(_ string, _ string) error { return nil }
func (e *fakeEngine) Subscribe(_ string, _ tracks.Track) error { return nil }
func (e *fakeEngine) Unsubscribe(_ string, _ string) error { return nil }
func (e *fakeEngine) Connect(peer signaling.Peer) error { e.connectCh <- peer; return nil }

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

// proxy forwards TCP connections to target so that tests can simulate
// network failures.
type proxy struct {
	ln     net.Listener
	target string

	mut   sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func newProxy(tb testing.TB, target string) *proxy {
	tb.Helper()
	ln, err := net.Listen("tcp", "localhost:0")
	require.NoError(tb, err)

	p := &proxy{
		ln:     ln,
		target: target,
		conns:  make(map[net.Conn]struct{}),
	}

	p.wg.Add(1)
	go p.accept()

	return p
}

func (p *proxy) addr() string {
	return p.ln.Addr().String()
}

func (p *proxy) accept() {
	defer p.wg.Done()
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		upstream, err := net.Dial("tcp", p.target)
		if err != nil {
			_ = conn.Close()
			continue
		}

		p.mut.Lock()
		p.conns[conn] = struct{}{}
		p.conns[upstream] = struct{}{}
		p.mut.Unlock()

		go pipe(conn, upstream)
		go pipe(upstream, conn)
	}
}

func pipe(dst, src net.Conn) {
	_, _ = io.Copy(dst, src)
	_ = dst.Close()
	_ = src.Close()
}

// dropConns closes all the connections currently forwarded.
func (p *proxy) dropConns() {
	p.mut.Lock()
	defer p.mut.Unlock()
	for c := range p.conns {
		_ = c.Close()
	}
	p.conns = make(map[net.Conn]struct{})
}

func (p *proxy) close() {
	_ = p.ln.Close()
	p.wg.Wait()
	p.dropConns()
}

type TestHelper struct {
	tb     testing.TB
	srvc   *service.Service
	engine *fakeEngine
	proxy  *proxy
	url    string
}

func setupTestHelper(tb testing.TB) *TestHelper {
	tb.Helper()

	var cfg service.Config
	cfg.SetDefaults()
	cfg.API.HTTP.ListenAddress = "localhost:0"
	cfg.API.Security.EnableAdmin = true
	cfg.API.Security.AdminSecretKey = testAdminSecretKey
	cfg.API.Security.WSConnRate = 100
	cfg.API.Security.WSConnBurst = 100
	cfg.Registry.EmptyRoomGraceSeconds = 0
	cfg.Credential.SigningKey = testSigningKey
	cfg.Store.DataSource = tb.TempDir()
	cfg.Logger = logger.Config{
		EnableConsole: true,
		ConsoleLevel:  "ERROR",
	}

	th := &TestHelper{
		tb:     tb,
		engine: newFakeEngine(),
	}

	var err error
	th.srvc, err = service.New(cfg, service.WithMediaEngine(th.engine))
	require.NoError(tb, err)
	require.NoError(tb, th.srvc.Start())

	th.proxy = newProxy(tb, th.srvc.APIAddr())
	th.url = "http://" + th.proxy.addr()

	return th
}

func (th *TestHelper) teardown() {
	th.proxy.close()
	require.NoError(th.tb, th.srvc.Stop())
}

func (th *TestHelper) issueCredential(identity, roomID string, perms ...credential.Permission) string {
	th.tb.Helper()
	issuer, err := credential.NewIssuer(testSigningKey)
	require.NoError(th.tb, err)
	token, err := issuer.Issue(credential.NewClaims(identity, roomID, time.Hour, perms...))
	require.NoError(th.tb, err)
	return token
}

func (th *TestHelper) newClient(cfg Config, opts ...Option) *Client {
	th.tb.Helper()
	if cfg.URL == "" {
		cfg.URL = th.url
	}
	if cfg.Reconnect == (reconnect.Config{}) {
		cfg.Reconnect = reconnect.Config{
			BaseDelayMs: 10,
			MaxDelayMs:  50,
			Multiplier:  2,
			MaxAttempts: 3,
		}
	}
	var se webrtc.SettingEngine
	se.SetIncludeLoopbackCandidate(true)
	c, err := New(cfg, append([]Option{WithSettingEngine(se)}, opts...)...)
	require.NoError(th.tb, err)
	return c
}

// eventRecorder collects the contexts of the events emitted by a client.
type eventRecorder map[EventType]chan any

func recordEvents(tb testing.TB, c *Client, types ...EventType) eventRecorder {
	tb.Helper()
	rec := eventRecorder{}
	for _, t := range types {
		ch := make(chan any, 64)
		rec[t] = ch
		require.NoError(tb, c.On(t, func(ctx any) error {
			ch <- ctx
			return nil
		}))
	}
	return rec
}

func (rec eventRecorder) wait(tb testing.TB, t EventType) any {
	tb.Helper()
	select {
	case ctx := <-rec[t]:
		return ctx
	case <-time.After(10 * time.Second):
		require.FailNow(tb, "timed out waiting for event", string(t))
	}
	return nil
}

// waitState returns the first lifecycle event of type evType, skipping
// any other state change.
func (rec eventRecorder) waitState(tb testing.TB, evType signaling.EventType) signaling.LifecycleEvent {
	tb.Helper()
	for {
		ev, ok := rec.wait(tb, StateEvent).(signaling.LifecycleEvent)
		require.True(tb, ok)
		if ev.Type == evType {
			return ev
		}
	}
}
