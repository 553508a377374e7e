// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package signaling runs one state machine per participant connection,
// driving admission, media negotiation and reconnection.
package signaling

import (
	"fmt"
	"slices"
	"sync"

	"github.com/Huk9uri/dawata-roomd/service/credential"
	"github.com/Huk9uri/dawata-roomd/service/random"
	"github.com/Huk9uri/dawata-roomd/service/reconnect"
	"github.com/Huk9uri/dawata-roomd/service/registry"
	"github.com/Huk9uri/dawata-roomd/service/tracks"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

type CredentialValidator interface {
	Validate(raw []byte) (credential.Credential, error)
}

// Components are the collaborators a Server drives.
type Components struct {
	Validator CredentialValidator
	Registry  *registry.Registry
	Tracks    *tracks.Manager
	Engine    MediaEngine
}

func (c Components) IsValid() error {
	if c.Validator == nil {
		return fmt.Errorf("invalid Validator: should not be nil")
	}
	if c.Registry == nil {
		return fmt.Errorf("invalid Registry: should not be nil")
	}
	if c.Tracks == nil {
		return fmt.Errorf("invalid Tracks: should not be nil")
	}
	if c.Engine == nil {
		return fmt.Errorf("invalid Engine: should not be nil")
	}
	return nil
}

type participantKey struct {
	roomID   string
	identity string
}

type Server struct {
	cfg          Config
	reconnectCfg reconnect.Config
	supOpts      []reconnect.Option
	comps        Components
	log          mlog.LoggerIFace
	metrics      Metrics

	mut      sync.RWMutex
	running  bool
	sessions map[string]*Session
	active   map[participantKey]*Session

	queue     *jobQueue
	closingCh chan struct{}
	stopCh    chan struct{}
	sessWg    sync.WaitGroup
	wg        sync.WaitGroup
}

type Option func(s *Server) error

// WithSupervisorOptions customizes the reconnection supervisor of every
// session.
func WithSupervisorOptions(opts ...reconnect.Option) Option {
	return func(s *Server) error {
		s.supOpts = append(s.supOpts, opts...)
		return nil
	}
}

func NewServer(cfg Config, reconnectCfg reconnect.Config, comps Components, log mlog.LoggerIFace, metrics Metrics, opts ...Option) (*Server, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	if err := reconnectCfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate reconnect config: %w", err)
	}
	if err := comps.IsValid(); err != nil {
		return nil, err
	}
	if log == nil {
		return nil, fmt.Errorf("log should not be nil")
	}
	if metrics == nil {
		return nil, fmt.Errorf("metrics should not be nil")
	}

	s := &Server{
		cfg:          cfg,
		reconnectCfg: reconnectCfg,
		comps:        comps,
		log:          log,
		metrics:      metrics,
		sessions:     make(map[string]*Session),
		active:       make(map[participantKey]*Session),
		queue:        newJobQueue(),
		closingCh:    make(chan struct{}),
		stopCh:       make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	comps.Registry.AddListener(s.onRegistryEvent)

	return s, nil
}

func (s *Server) Start() error {
	s.mut.Lock()
	defer s.mut.Unlock()

	if s.running {
		return fmt.Errorf("server is already running")
	}
	select {
	case <-s.stopCh:
		return ErrServerStopped
	default:
	}
	s.running = true

	s.wg.Add(2)
	go s.engineEventsLoop()
	go s.dispatchLoop()

	return nil
}

// Stop closes every session and waits for them to terminate.
func (s *Server) Stop() error {
	s.mut.Lock()
	if !s.running {
		s.mut.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	close(s.closingCh)
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mut.Unlock()

	for _, sess := range sessions {
		sess.enqueue(input{kind: inputStop})
	}
	s.sessWg.Wait()

	close(s.stopCh)
	s.wg.Wait()

	return nil
}

// Join starts the state machine of a new participant connection
// presenting the raw credential. The outcome is reported through the
// session's events.
func (s *Server) Join(raw []byte) (*Session, error) {
	return s.newSession(raw, nil)
}

// Resume starts the state machine of a connection resuming the logical
// session identified by sessionID.
func (s *Server) Resume(raw []byte, sessionID, reconnectToken string) (*Session, error) {
	return s.newSession(raw, &resumeRequest{
		sessionID:      sessionID,
		reconnectToken: reconnectToken,
	})
}

func (s *Server) newSession(raw []byte, resume *resumeRequest) (*Session, error) {
	s.mut.Lock()
	defer s.mut.Unlock()

	if !s.running {
		return nil, ErrServerStopped
	}

	sess := newSession(random.NewID(), s, slices.Clone(raw), resume)
	s.sessions[sess.id] = sess
	s.sessWg.Add(1)
	s.metrics.IncParticipants(registry.StateAdmitting.String())

	go sess.run()

	return sess, nil
}

// Leave asks the participant behind connID to leave its room.
func (s *Server) Leave(connID string) error {
	return s.post(connID, input{kind: inputLeave})
}

// SignalingLost reports that the signaling channel of connID went away.
func (s *Server) SignalingLost(connID string) error {
	return s.post(connID, input{kind: inputSignalingLost})
}

func (s *Server) post(connID string, in input) error {
	sess := s.GetSession(connID)
	if sess == nil {
		return ErrSessionNotFound
	}
	if !sess.enqueue(in) {
		return ErrSessionNotFound
	}
	return nil
}

func (s *Server) GetSession(connID string) *Session {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return s.sessions[connID]
}

// activate makes sess the current connection of its participant,
// returning the one it replaces, if any.
func (s *Server) activate(sess *Session, key participantKey) *Session {
	s.mut.Lock()
	defer s.mut.Unlock()
	prev := s.active[key]
	s.active[key] = sess
	if prev == sess {
		return nil
	}
	return prev
}

func (s *Server) deactivate(sess *Session, key participantKey) {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.active[key] == sess {
		delete(s.active, key)
	}
}

func (s *Server) getActive(roomID, identity string) *Session {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return s.active[participantKey{roomID: roomID, identity: identity}]
}

func (s *Server) sessionDone(sess *Session) {
	s.mut.Lock()
	delete(s.sessions, sess.id)
	s.mut.Unlock()
	s.sessWg.Done()
}

func (s *Server) engineEventsLoop() {
	defer s.wg.Done()
	for {
		select {
		case ev, ok := <-s.comps.Engine.Events():
			if !ok {
				return
			}
			s.routeEngineEvent(ev)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Server) routeEngineEvent(ev EngineEvent) {
	sess := s.GetSession(ev.ConnID)
	if sess == nil || !sess.enqueue(input{kind: inputEngine, engine: ev}) {
		s.metrics.IncDiscardedEvents(ev.Type.String())
		s.log.Debug("discarding engine event for closed session",
			mlog.String("connID", ev.ConnID), mlog.String("type", ev.Type.String()))
	}
}

// onRegistryEvent runs under the room lock: it only queues work.
func (s *Server) onRegistryEvent(ev registry.Event) {
	switch ev.Type {
	case registry.EventRoomCreated:
		s.metrics.IncRooms()
	case registry.EventRoomClosed:
		s.metrics.DecRooms()
	case registry.EventParticipantJoined:
		s.queue.push(job{
			typ:          jobJoin,
			roomID:       ev.RoomID,
			identity:     ev.Participant.Identity,
			canSubscribe: slices.Contains(ev.Participant.Permissions, credential.PermissionSubscribe),
		})
	case registry.EventParticipantLeft:
		s.queue.push(job{
			typ:      jobLeave,
			roomID:   ev.RoomID,
			identity: ev.Participant.Identity,
		})
	}
}

func (s *Server) dispatchLoop() {
	defer s.wg.Done()
	for {
		j, ok := s.queue.pop(s.stopCh)
		if !ok {
			return
		}
		s.dispatch(j)
	}
}

func (s *Server) dispatch(j job) {
	trk := s.comps.Tracks

	switch j.typ {
	case jobJoin:
		upd, err := trk.Join(j.roomID, j.identity, j.canSubscribe)
		if err != nil {
			s.log.Error("failed to join tracks", mlog.String("roomID", j.roomID), mlog.String("identity", j.identity), mlog.Err(err))
			return
		}
		s.deliver(upd, nil)
	case jobLeave:
		s.deliver(trk.Leave(j.roomID, j.identity), nil)
	case jobPublish:
		upd, err := trk.OnTrackPublished(j.track)
		if err != nil {
			s.log.Warn("failed to publish track", mlog.String("trackID", j.track.ID), mlog.String("identity", j.track.Owner), mlog.Err(err))
			j.session.enqueue(input{kind: inputRejectTrack, trackID: j.track.ID})
			return
		}
		s.deliver(upd, nil)
	case jobUnpublish:
		upd, err := trk.OnTrackUnpublished(j.roomID, j.track.ID)
		if err != nil {
			s.log.Debug("failed to unpublish track", mlog.String("trackID", j.track.ID), mlog.Err(err))
			return
		}
		s.deliver(upd, nil)
	case jobResync:
		upd, err := trk.Resync(j.roomID, j.identity)
		if err != nil {
			s.log.Debug("failed to resync tracks", mlog.String("identity", j.identity), mlog.Err(err))
			return
		}
		s.deliver(upd, j.session)
	}
}

// deliver forwards the per participant effects of upd to their current
// sessions. If target is set only it receives them.
func (s *Server) deliver(upd tracks.Update, target *Session) {
	inputs := make(map[string]*input)
	get := func(identity string) *input {
		in, ok := inputs[identity]
		if !ok {
			in = &input{kind: inputTracks}
			inputs[identity] = in
		}
		return in
	}

	for _, sub := range upd.Subscribed {
		in := get(sub.Subscriber)
		in.subscribe = append(in.subscribe, sub.Track)
	}
	for _, sub := range upd.Unsubscribed {
		in := get(sub.Subscriber)
		in.unsubscribe = append(in.unsubscribe, sub.Track)
	}
	for identity, view := range upd.Views {
		in := get(identity)
		in.view = view
		in.hasView = true
	}

	for identity, in := range inputs {
		sess := target
		if sess == nil {
			sess = s.getActive(upd.RoomID, identity)
		}
		if sess == nil || sess.Identity() != identity {
			continue
		}
		sess.enqueue(*in)
	}
}
