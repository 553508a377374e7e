// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package signaling

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Huk9uri/dawata-roomd/service/credential"
	"github.com/Huk9uri/dawata-roomd/service/reconnect"
	"github.com/Huk9uri/dawata-roomd/service/registry"
	"github.com/Huk9uri/dawata-roomd/service/tracks"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

type resumeRequest struct {
	sessionID      string
	reconnectToken string
}

type inputKind int

const (
	inputEngine inputKind = iota
	inputLeave
	inputSignalingLost
	inputTimer
	inputTracks
	inputRejectTrack
	inputSuperseded
	inputStop
)

type timerKind int

const (
	timerNegotiation timerKind = iota
	timerRetry
	timerAttempt
)

type input struct {
	kind inputKind

	engine EngineEvent

	timer    timerKind
	timerGen uint64

	subscribe   []tracks.Track
	unsubscribe []tracks.Track
	view        []tracks.Track
	hasView     bool

	trackID string
}

// Session is the state machine of a single participant connection. All
// its state is owned by the goroutine started by the server; other
// goroutines interact with it through its inbox.
type Session struct {
	id     string
	srv    *Server
	raw    []byte
	resume *resumeRequest

	inbox    chan input
	eventsCh chan LifecycleEvent
	doneCh   chan struct{}
	state    atomic.Int32

	mut      sync.RWMutex
	admitted bool
	handle   registry.Handle
	cred     credential.Credential

	sup        *reconnect.Supervisor
	timer      *time.Timer
	timerGen   uint64
	engineUp   bool
	superseded bool
	published  map[string]tracks.Track
	subscribed map[string]tracks.Track
	lastView   []tracks.Track
}

func newSession(id string, srv *Server, raw []byte, resume *resumeRequest) *Session {
	s := &Session{
		id:         id,
		srv:        srv,
		raw:        raw,
		resume:     resume,
		inbox:      make(chan input, srv.cfg.InboxSize),
		eventsCh:   make(chan LifecycleEvent, srv.cfg.EventsSize),
		doneCh:     make(chan struct{}),
		published:  make(map[string]tracks.Track),
		subscribed: make(map[string]tracks.Track),
	}
	s.state.Store(int32(registry.StateAdmitting))
	return s
}

// ID returns the connection id, unique to this state machine.
func (s *Session) ID() string {
	return s.id
}

// Events returns the lifecycle events of the session. The channel is
// closed after the Closed event.
func (s *Session) Events() <-chan LifecycleEvent {
	return s.eventsCh
}

// Done is closed once the session stops processing inputs.
func (s *Session) Done() <-chan struct{} {
	return s.doneCh
}

func (s *Session) State() registry.ConnectionState {
	return registry.ConnectionState(s.state.Load())
}

// Handle returns the registry handle, if the session was admitted.
func (s *Session) Handle() (registry.Handle, bool) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return s.handle, s.admitted
}

func (s *Session) Identity() string {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return s.cred.Identity
}

// enqueue blocks until in is queued or the session is done.
func (s *Session) enqueue(in input) bool {
	select {
	case <-s.doneCh:
		return false
	default:
	}

	select {
	case s.inbox <- in:
		return true
	case <-s.doneCh:
		return false
	}
}

func (s *Session) emit(ev LifecycleEvent) {
	s.mut.RLock()
	ev.SessionID = s.handle.SessionID
	ev.RoomID = s.handle.RoomID
	ev.Identity = s.handle.Identity
	s.mut.RUnlock()

	select {
	case s.eventsCh <- ev:
		return
	case <-s.srv.closingCh:
	}

	select {
	case s.eventsCh <- ev:
	default:
		s.srv.log.Warn("dropping lifecycle event: channel is full",
			mlog.String("connID", s.id), mlog.String("type", string(ev.Type)))
	}
}

func (s *Session) run() {
	defer s.srv.sessionDone(s)

	if err := s.admit(); err != nil {
		s.close(err)
		return
	}

	if err := s.negotiate(); err != nil {
		s.close(err)
		return
	}

	for in := range s.inbox {
		if err := s.handleInput(in); err != nil {
			s.close(err)
			return
		}
	}
}

func (s *Session) admit() error {
	cred, err := s.srv.comps.Validator.Validate(s.raw)
	if err != nil {
		return err
	}

	var h registry.Handle
	if s.resume != nil {
		h, err = s.srv.comps.Registry.Resume(cred, s.resume.sessionID, s.resume.reconnectToken)
	} else {
		h, err = s.srv.comps.Registry.Admit(cred)
	}
	if err != nil {
		return err
	}

	sup, err := reconnect.NewSupervisor(s.srv.reconnectCfg, s.srv.supOpts...)
	if err != nil {
		return fmt.Errorf("failed to create supervisor: %w", err)
	}
	s.sup = sup

	s.mut.Lock()
	s.admitted = true
	s.handle = h
	s.cred = cred
	s.mut.Unlock()

	if prev := s.srv.activate(s, s.key()); prev != nil {
		prev.enqueue(input{kind: inputSuperseded})
	}

	s.srv.log.Debug("participant admitted",
		mlog.String("connID", s.id),
		mlog.String("sessionID", h.SessionID),
		mlog.String("roomID", h.RoomID),
		mlog.String("identity", h.Identity),
		mlog.Bool("resumed", s.resume != nil),
	)

	s.emit(LifecycleEvent{
		Type:           EventAdmitted,
		ReconnectToken: h.ReconnectToken,
		Resumed:        s.resume != nil,
	})

	s.srv.queue.push(job{
		typ:      jobResync,
		roomID:   h.RoomID,
		identity: h.Identity,
		session:  s,
	})

	return nil
}

func (s *Session) negotiate() error {
	s.setState(registry.StateNegotiating)
	s.emit(LifecycleEvent{Type: EventNegotiating})

	if err := s.srv.comps.Engine.Connect(Peer{
		ConnID:    s.id,
		SessionID: s.handle.SessionID,
		RoomID:    s.handle.RoomID,
		Identity:  s.handle.Identity,
	}); err != nil {
		return fmt.Errorf("%w: failed to connect: %w", ErrTransportLost, err)
	}
	s.engineUp = true

	s.startTimer(timerNegotiation, s.srv.cfg.negotiationTimeout())

	return nil
}

func (s *Session) handleInput(in input) error {
	switch in.kind {
	case inputLeave:
		return ErrLeft
	case inputStop:
		return ErrServerStopped
	case inputSuperseded:
		s.superseded = true
		return ErrSuperseded
	case inputSignalingLost:
		return s.onTransportLost()
	case inputEngine:
		return s.onEngineEvent(in.engine)
	case inputTimer:
		if in.timerGen != s.timerGen {
			return nil
		}
		s.timer = nil
		return s.onTimer(in.timer)
	case inputTracks:
		s.applyTracks(in)
	case inputRejectTrack:
		if _, ok := s.published[in.trackID]; ok {
			delete(s.published, in.trackID)
			if err := s.srv.comps.Engine.Unpublish(s.id, in.trackID); err != nil {
				s.srv.log.Warn("failed to unpublish track", mlog.String("connID", s.id), mlog.String("trackID", in.trackID), mlog.Err(err))
			}
		}
	}
	return nil
}

func (s *Session) onEngineEvent(ev EngineEvent) error {
	switch ev.Type {
	case EngineConnected:
		return s.onConnected()
	case EngineTransportLost:
		return s.onTransportLost()
	case EngineTrackAdded:
		s.onTrackAdded(ev.Track)
	case EngineTrackRemoved:
		s.onTrackRemoved(ev.Track.ID)
	}
	return nil
}

func (s *Session) onConnected() error {
	switch s.State() {
	case registry.StateNegotiating:
		s.stopTimer()
	case registry.StateReconnecting:
		s.stopTimer()
		if err := s.sup.Recovered(func() error {
			return s.srv.comps.Registry.Verify(s.handle)
		}); err != nil {
			return err
		}
	default:
		return nil
	}

	s.setState(registry.StateConnected)
	s.emit(LifecycleEvent{Type: EventConnected})

	return nil
}

func (s *Session) onTransportLost() error {
	if s.State() != registry.StateConnected {
		// Negotiation is bounded by its own timeout and an ongoing
		// reconnection by the attempt timeout.
		return nil
	}

	s.setState(registry.StateReconnecting)

	return s.scheduleRetry(s.sup.Lost())
}

func (s *Session) onTimer(kind timerKind) error {
	switch kind {
	case timerNegotiation:
		return ErrNegotiationTimeout
	case timerRetry:
		if err := s.srv.comps.Engine.Reconnect(s.id); err != nil {
			s.srv.log.Warn("reconnection attempt failed", mlog.String("connID", s.id), mlog.Err(err))
			return s.scheduleRetry(s.sup.Lost())
		}
		s.startTimer(timerAttempt, s.srv.cfg.negotiationTimeout())
	case timerAttempt:
		return s.scheduleRetry(s.sup.Lost())
	}
	return nil
}

func (s *Session) scheduleRetry(d reconnect.Decision) error {
	if d.Exhausted {
		return fmt.Errorf("%w after %d attempts", reconnect.ErrRetryBudgetExhausted, d.Attempt)
	}

	s.srv.metrics.IncReconnectAttempts()
	s.emit(LifecycleEvent{
		Type:    EventReconnecting,
		Attempt: d.Attempt,
		DelayMs: d.Delay.Milliseconds(),
	})
	s.startTimer(timerRetry, d.Delay)

	return nil
}

func requiredPermission(kind tracks.Kind) (credential.Permission, bool) {
	switch kind {
	case tracks.KindAudio:
		return credential.PermissionPublishAudio, true
	case tracks.KindCamera, tracks.KindScreenShare:
		return credential.PermissionPublishVideo, true
	default:
		return "", false
	}
}

func (s *Session) onTrackAdded(track tracks.Track) {
	perm, ok := requiredPermission(track.Kind)
	if !ok || !s.cred.Can(perm) {
		s.srv.log.Warn("rejecting track: not allowed to publish",
			mlog.String("connID", s.id),
			mlog.String("trackID", track.ID),
			mlog.String("kind", string(track.Kind)),
		)
		if err := s.srv.comps.Engine.Unpublish(s.id, track.ID); err != nil {
			s.srv.log.Warn("failed to unpublish track", mlog.String("connID", s.id), mlog.String("trackID", track.ID), mlog.Err(err))
		}
		return
	}

	if _, ok := s.published[track.ID]; ok {
		return
	}

	track.RoomID = s.handle.RoomID
	track.Owner = s.handle.Identity
	if err := s.srv.comps.Engine.Publish(s.id, track); err != nil {
		s.srv.log.Error("failed to publish track", mlog.String("connID", s.id), mlog.String("trackID", track.ID), mlog.Err(err))
		return
	}
	s.published[track.ID] = track

	s.srv.queue.push(job{
		typ:     jobPublish,
		roomID:  track.RoomID,
		track:   track,
		session: s,
	})
}

func (s *Session) onTrackRemoved(trackID string) {
	track, ok := s.published[trackID]
	if !ok {
		return
	}
	delete(s.published, trackID)

	s.srv.queue.push(job{
		typ:    jobUnpublish,
		roomID: track.RoomID,
		track:  track,
	})
}

func (s *Session) applyTracks(in input) {
	engine := s.srv.comps.Engine

	for _, t := range in.unsubscribe {
		if _, ok := s.subscribed[t.ID]; !ok {
			continue
		}
		delete(s.subscribed, t.ID)
		if err := engine.Unsubscribe(s.id, t.ID); err != nil {
			s.srv.log.Warn("failed to unsubscribe", mlog.String("connID", s.id), mlog.String("trackID", t.ID), mlog.Err(err))
		}
	}

	if s.cred.Can(credential.PermissionSubscribe) {
		for _, t := range in.subscribe {
			if _, ok := s.subscribed[t.ID]; ok {
				continue
			}
			if err := engine.Subscribe(s.id, t); err != nil {
				s.srv.log.Warn("failed to subscribe", mlog.String("connID", s.id), mlog.String("trackID", t.ID), mlog.Err(err))
				continue
			}
			s.subscribed[t.ID] = t
		}
	}

	if in.hasView && (s.lastView == nil || !slices.Equal(s.lastView, in.view)) {
		s.lastView = slices.Clone(in.view)
		if s.lastView == nil {
			s.lastView = []tracks.Track{}
		}
		s.emit(LifecycleEvent{
			Type:   EventTrackViewChanged,
			Tracks: slices.Clone(s.lastView),
		})
	}
}

func (s *Session) close(err error) {
	s.stopTimer()

	reason := ReasonFor(err)
	if errors.Is(err, ErrServerStopped) {
		reason = ReasonTransportLost
	}

	s.setState(registry.StateClosed)
	close(s.doneCh)

	// Anything left in the inbox is stale now.
drain:
	for {
		select {
		case in := <-s.inbox:
			if in.kind == inputEngine {
				s.srv.metrics.IncDiscardedEvents(in.engine.Type.String())
			}
		default:
			break drain
		}
	}

	if s.engineUp {
		if err := s.srv.comps.Engine.Disconnect(s.id); err != nil {
			s.srv.log.Warn("failed to disconnect", mlog.String("connID", s.id), mlog.Err(err))
		}
	}

	h, admitted := s.Handle()
	if admitted {
		s.srv.deactivate(s, s.key())

		removed := false
		if !s.superseded {
			if err := s.srv.comps.Registry.Remove(h); err == nil {
				removed = true
			} else if !errors.Is(err, registry.ErrNotFound) {
				s.srv.log.Error("failed to remove participant", mlog.String("connID", s.id), mlog.Err(err))
			}
		}

		// The participant is still in the room through another connection:
		// only this connection's tracks go away.
		if !removed {
			for _, track := range s.published {
				s.srv.queue.push(job{
					typ:    jobUnpublish,
					roomID: track.RoomID,
					track:  track,
				})
			}
		}
	}

	s.srv.metrics.IncCloseReasons(string(reason))
	s.srv.log.Debug("session closed",
		mlog.String("connID", s.id),
		mlog.String("sessionID", h.SessionID),
		mlog.String("reason", string(reason)),
		mlog.Err(err),
	)

	s.emit(LifecycleEvent{
		Type:   EventClosed,
		Reason: reason,
		Error:  err.Error(),
	})
	close(s.eventsCh)
}

func (s *Session) setState(state registry.ConnectionState) {
	prev := registry.ConnectionState(s.state.Swap(int32(state)))
	if prev == state {
		return
	}

	s.srv.metrics.DecParticipants(prev.String())
	if state != registry.StateClosed {
		s.srv.metrics.IncParticipants(state.String())
	}
	s.srv.metrics.IncStateTransitions(prev.String(), state.String())

	if state == registry.StateClosed {
		return
	}

	if h, ok := s.Handle(); ok {
		if err := s.srv.comps.Registry.SetState(h, state); err != nil {
			s.srv.log.Debug("failed to set participant state", mlog.String("connID", s.id), mlog.Err(err))
		}
	}
}

func (s *Session) startTimer(kind timerKind, d time.Duration) {
	s.stopTimer()
	s.timerGen++
	gen := s.timerGen
	s.timer = time.AfterFunc(d, func() {
		s.enqueue(input{kind: inputTimer, timer: kind, timerGen: gen})
	})
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

func (s *Session) key() participantKey {
	return participantKey{roomID: s.handle.RoomID, identity: s.handle.Identity}
}
