// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package signaling

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Huk9uri/dawata-roomd/service/credential"
	"github.com/Huk9uri/dawata-roomd/service/perf"
	"github.com/Huk9uri/dawata-roomd/service/reconnect"
	"github.com/Huk9uri/dawata-roomd/service/registry"
	"github.com/Huk9uri/dawata-roomd/service/tracks"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

type engineCall struct {
	method  string
	connID  string
	trackID string
}

type fakeEngine struct {
	mut          sync.Mutex
	calls        []engineCall
	connectErr   error
	reconnectErr error
	eventsCh     chan EngineEvent
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		eventsCh: make(chan EngineEvent, 64),
	}
}

func (e *fakeEngine) record(method, connID, trackID string) {
	e.mut.Lock()
	defer e.mut.Unlock()
	e.calls = append(e.calls, engineCall{method: method, connID: connID, trackID: trackID})
}

func (e *fakeEngine) count(method, connID string) int {
	e.mut.Lock()
	defer e.mut.Unlock()
	var n int
	for _, c := range e.calls {
		if c.method == method && c.connID == connID {
			n++
		}
	}
	return n
}

func (e *fakeEngine) hasCall(method, connID, trackID string) bool {
	e.mut.Lock()
	defer e.mut.Unlock()
	for _, c := range e.calls {
		if c.method == method && c.connID == connID && c.trackID == trackID {
			return true
		}
	}
	return false
}

func (e *fakeEngine) Connect(peer Peer) error {
	e.record("connect", peer.ConnID, "")
	e.mut.Lock()
	defer e.mut.Unlock()
	return e.connectErr
}

func (e *fakeEngine) Reconnect(connID string) error {
	e.record("reconnect", connID, "")
	e.mut.Lock()
	defer e.mut.Unlock()
	return e.reconnectErr
}

func (e *fakeEngine) Disconnect(connID string) error {
	e.record("disconnect", connID, "")
	return nil
}

func (e *fakeEngine) Publish(connID string, track tracks.Track) error {
	e.record("publish", connID, track.ID)
	return nil
}

func (e *fakeEngine) Unpublish(connID string, trackID string) error {
	e.record("unpublish", connID, trackID)
	return nil
}

func (e *fakeEngine) Subscribe(connID string, track tracks.Track) error {
	e.record("subscribe", connID, track.ID)
	return nil
}

func (e *fakeEngine) Unsubscribe(connID string, trackID string) error {
	e.record("unsubscribe", connID, trackID)
	return nil
}

func (e *fakeEngine) Events() <-chan EngineEvent {
	return e.eventsCh
}

func (e *fakeEngine) send(connID string, typ EngineEventType) {
	e.eventsCh <- EngineEvent{ConnID: connID, Type: typ}
}

func (e *fakeEngine) sendTrack(connID string, typ EngineEventType, id string, kind tracks.Kind) {
	e.eventsCh <- EngineEvent{ConnID: connID, Type: typ, Track: tracks.Track{ID: id, Kind: kind}}
}

type testHelper struct {
	t        *testing.T
	srv      *Server
	engine   *fakeEngine
	registry *registry.Registry
	tracks   *tracks.Manager
	metrics  *perf.Metrics
	issuer   *credential.Issuer
}

type testOptions struct {
	cfg          Config
	reconnectCfg reconnect.Config
}

func defaultTestOptions() testOptions {
	var o testOptions
	o.cfg.SetDefaults()
	o.cfg.NegotiationTimeoutMs = 200
	o.reconnectCfg.SetDefaults()
	o.reconnectCfg.BaseDelayMs = 20
	o.reconnectCfg.MaxDelayMs = 100
	o.reconnectCfg.Jitter = 0
	o.reconnectCfg.MaxAttempts = 3
	o.reconnectCfg.MaxElapsedSeconds = 0
	return o
}

func setupServer(t *testing.T, opts testOptions) (*testHelper, func()) {
	t.Helper()

	log, err := mlog.NewLogger()
	require.NoError(t, err)

	var registryCfg registry.Config
	registryCfg.SetDefaults()
	registryCfg.EmptyRoomGraceSeconds = 0
	reg, err := registry.New(registryCfg, log)
	require.NoError(t, err)

	validator, err := credential.NewValidator(testSigningKey)
	require.NoError(t, err)
	issuer, err := credential.NewIssuer(testSigningKey)
	require.NoError(t, err)

	th := &testHelper{
		t:        t,
		engine:   newFakeEngine(),
		registry: reg,
		tracks:   tracks.NewManager(),
		metrics:  perf.NewMetrics("roomd", nil),
		issuer:   issuer,
	}

	th.srv, err = NewServer(opts.cfg, opts.reconnectCfg, Components{
		Validator: validator,
		Registry:  reg,
		Tracks:    th.tracks,
		Engine:    th.engine,
	}, log, th.metrics)
	require.NoError(t, err)
	require.NoError(t, th.srv.Start())

	return th, func() {
		_ = th.srv.Stop()
		require.NoError(t, log.Shutdown())
	}
}

func (th *testHelper) token(identity, roomID string, capacity int, perms ...credential.Permission) []byte {
	th.t.Helper()
	claims := credential.NewClaims(identity, roomID, time.Hour, perms...)
	claims.RoomCapacity = capacity
	raw, err := th.issuer.Issue(claims)
	require.NoError(th.t, err)
	return []byte(raw)
}

func (th *testHelper) join(identity, roomID string, capacity int, perms ...credential.Permission) *Session {
	th.t.Helper()
	sess, err := th.srv.Join(th.token(identity, roomID, capacity, perms...))
	require.NoError(th.t, err)
	return sess
}

// connect joins a participant and drives it to Connected.
func (th *testHelper) connect(identity, roomID string, capacity int, perms ...credential.Permission) (*Session, LifecycleEvent) {
	th.t.Helper()
	sess := th.join(identity, roomID, capacity, perms...)
	admitted := th.expect(sess, EventAdmitted)
	th.expect(sess, EventNegotiating)
	th.engine.send(sess.ID(), EngineConnected)
	th.expect(sess, EventConnected)
	return sess, admitted
}

// next returns the next lifecycle event of sess, skipping track view
// changes.
func (th *testHelper) next(sess *Session) (LifecycleEvent, bool) {
	th.t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				return LifecycleEvent{}, false
			}
			if ev.Type == EventTrackViewChanged {
				continue
			}
			return ev, true
		case <-timeout:
			require.FailNow(th.t, fmt.Sprintf("timed out waiting for event on %s", sess.ID()))
		}
	}
}

func (th *testHelper) expect(sess *Session, typ EventType) LifecycleEvent {
	th.t.Helper()
	ev, ok := th.next(sess)
	require.True(th.t, ok, "events channel closed while waiting for %s", typ)
	require.Equal(th.t, typ, ev.Type, "unexpected event: %+v", ev)
	return ev
}

func (th *testHelper) expectClosed(sess *Session, reason CloseReason) LifecycleEvent {
	th.t.Helper()
	ev := th.expect(sess, EventClosed)
	require.Equal(th.t, reason, ev.Reason, ev.Error)
	_, ok := th.next(sess)
	require.False(th.t, ok, "no event should follow Closed")
	return ev
}

// expectView waits for a track view satisfying fn.
func (th *testHelper) expectView(sess *Session, fn func(view []tracks.Track) bool) []tracks.Track {
	th.t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-sess.Events():
			require.True(th.t, ok, "events channel closed while waiting for view")
			if ev.Type == EventTrackViewChanged && fn(ev.Tracks) {
				return ev.Tracks
			}
		case <-timeout:
			require.FailNow(th.t, "timed out waiting for track view")
		}
	}
}

func viewIDs(view []tracks.Track) []string {
	ids := make([]string, 0, len(view))
	for _, t := range view {
		ids = append(ids, t.ID)
	}
	return ids
}
