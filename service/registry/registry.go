// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package registry keeps track of rooms and of the participants admitted
// into them.
package registry

import (
	"crypto/subtle"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Huk9uri/dawata-roomd/service/credential"
	"github.com/Huk9uri/dawata-roomd/service/random"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

type entry struct {
	identity       string
	displayName    string
	sessionID      string
	reconnectToken string
	epoch          uint64
	state          ConnectionState
	permissions    []credential.Permission
	joinedAt       time.Time
}

func (e *entry) info() ParticipantInfo {
	return ParticipantInfo{
		Identity:    e.identity,
		DisplayName: e.displayName,
		SessionID:   e.sessionID,
		State:       e.state.String(),
		Permissions: slices.Clone(e.permissions),
		JoinedAt:    e.joinedAt,
	}
}

type room struct {
	id              string
	maxParticipants int
	createdAt       time.Time

	mut          sync.Mutex
	participants map[string]*entry
	destroyed    bool
	graceTimer   *time.Timer
	// emptyGen invalidates grace timers that fired after the room was
	// joined again.
	emptyGen uint64
}

type Registry struct {
	cfg Config
	log mlog.LoggerIFace
	now func() time.Time

	mut   sync.RWMutex
	rooms map[string]*room

	listenersMut sync.RWMutex
	listeners    []Listener
}

func New(cfg Config, log mlog.LoggerIFace) (*Registry, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	if log == nil {
		return nil, fmt.Errorf("log should not be nil")
	}

	return &Registry{
		cfg:   cfg,
		log:   log,
		now:   time.Now,
		rooms: make(map[string]*room),
	}, nil
}

// AddListener registers fn to receive all future events.
func (r *Registry) AddListener(fn Listener) {
	r.listenersMut.Lock()
	r.listeners = append(r.listeners, fn)
	r.listenersMut.Unlock()
}

func (r *Registry) emit(ev Event) {
	r.listenersMut.RLock()
	defer r.listenersMut.RUnlock()
	for _, fn := range r.listeners {
		fn(ev)
	}
}

// lockRoom returns the room with the given id, locked, creating it if
// needed. A newly created room is published already locked so that its
// RoomCreated event precedes any other event for it.
func (r *Registry) lockRoom(roomID string, requestedCapacity int) *room {
	for {
		r.mut.Lock()
		rm := r.rooms[roomID]
		if rm == nil {
			rm = &room{
				id:              roomID,
				maxParticipants: r.cfg.capacityFor(requestedCapacity),
				createdAt:       r.now(),
				participants:    make(map[string]*entry),
			}
			rm.mut.Lock()
			r.rooms[roomID] = rm
			r.mut.Unlock()

			r.log.Debug("room created", mlog.String("roomID", roomID), mlog.Int("maxParticipants", rm.maxParticipants))
			r.emit(Event{Type: EventRoomCreated, RoomID: roomID})
			return rm
		}
		r.mut.Unlock()

		rm.mut.Lock()
		if !rm.destroyed {
			return rm
		}
		// Lost a race with destruction, start over.
		rm.mut.Unlock()
	}
}

func (r *Registry) getRoom(roomID string) *room {
	r.mut.RLock()
	defer r.mut.RUnlock()
	return r.rooms[roomID]
}

// Admit adds the participant described by cred to its room. An identity
// already present in the room is rejected whatever its state, including
// Reconnecting: taking over a session requires Resume.
func (r *Registry) Admit(cred credential.Credential) (Handle, error) {
	if cred.RoomID == "" || cred.Identity == "" {
		return Handle{}, fmt.Errorf("invalid credential: missing room or identity")
	}

	sessionID := random.NewID()
	token, err := random.NewToken()
	if err != nil {
		return Handle{}, fmt.Errorf("failed to generate reconnect token: %w", err)
	}

	rm := r.lockRoom(cred.RoomID, cred.RoomCapacity)
	defer rm.mut.Unlock()

	if _, ok := rm.participants[cred.Identity]; ok {
		return Handle{}, ErrDuplicateIdentity
	}

	if len(rm.participants) >= rm.maxParticipants {
		return Handle{}, ErrRoomFull
	}

	e := &entry{
		identity:       cred.Identity,
		displayName:    cred.DisplayName,
		sessionID:      sessionID,
		reconnectToken: token,
		epoch:          1,
		state:          StateAdmitting,
		permissions:    slices.Clone(cred.Permissions),
		joinedAt:       r.now(),
	}
	rm.participants[cred.Identity] = e
	rm.cancelDestroy()

	r.emit(Event{Type: EventParticipantJoined, RoomID: rm.id, Participant: e.info()})

	return e.handle(rm.id), nil
}

// Resume binds a new connection to the logical session identified by
// sessionID, replacing the stale one. The previous handle stops being
// valid.
func (r *Registry) Resume(cred credential.Credential, sessionID, reconnectToken string) (Handle, error) {
	rm := r.getRoom(cred.RoomID)
	if rm == nil {
		return Handle{}, ErrStaleResume
	}

	rm.mut.Lock()
	defer rm.mut.Unlock()

	e := rm.participants[cred.Identity]
	if rm.destroyed || e == nil || e.sessionID != sessionID {
		return Handle{}, ErrStaleResume
	}
	if subtle.ConstantTimeCompare([]byte(e.reconnectToken), []byte(reconnectToken)) != 1 {
		return Handle{}, ErrStaleResume
	}

	e.epoch++
	e.state = StateAdmitting
	e.displayName = cred.DisplayName
	e.permissions = slices.Clone(cred.Permissions)

	r.emit(Event{Type: EventParticipantResumed, RoomID: rm.id, Participant: e.info()})

	return e.handle(rm.id), nil
}

// Verify checks that h is still the current connection of its session.
func (r *Registry) Verify(h Handle) error {
	rm := r.getRoom(h.RoomID)
	if rm == nil {
		return ErrStaleResume
	}

	rm.mut.Lock()
	defer rm.mut.Unlock()

	if _, err := rm.lookup(h); err != nil {
		return ErrStaleResume
	}

	return nil
}

// SetState records the connection state of the participant behind h.
func (r *Registry) SetState(h Handle, state ConnectionState) error {
	rm := r.getRoom(h.RoomID)
	if rm == nil {
		return ErrNotFound
	}

	rm.mut.Lock()
	defer rm.mut.Unlock()

	e, err := rm.lookup(h)
	if err != nil {
		return err
	}
	e.state = state

	return nil
}

// Remove releases the slot held by h. Removing a superseded handle is a
// no-op returning ErrNotFound.
func (r *Registry) Remove(h Handle) error {
	rm := r.getRoom(h.RoomID)
	if rm == nil {
		return ErrNotFound
	}

	rm.mut.Lock()
	e, err := rm.lookup(h)
	if err != nil {
		rm.mut.Unlock()
		return err
	}
	delete(rm.participants, e.identity)
	e.state = StateClosed
	r.emit(Event{Type: EventParticipantLeft, RoomID: rm.id, Participant: e.info()})

	empty := len(rm.participants) == 0
	var gen uint64
	if empty {
		rm.emptyGen++
		gen = rm.emptyGen
		if grace := r.cfg.gracePeriod(); grace > 0 {
			rm.graceTimer = time.AfterFunc(grace, func() {
				r.destroy(rm, gen)
			})
		}
	}
	rm.mut.Unlock()

	if empty && r.cfg.gracePeriod() == 0 {
		r.destroy(rm, gen)
	}

	return nil
}

func (r *Registry) destroy(rm *room, gen uint64) {
	r.mut.Lock()
	defer r.mut.Unlock()
	rm.mut.Lock()
	defer rm.mut.Unlock()

	if rm.destroyed || rm.emptyGen != gen || len(rm.participants) > 0 {
		return
	}

	rm.destroyed = true
	delete(r.rooms, rm.id)

	r.log.Debug("room closed", mlog.String("roomID", rm.id))
	r.emit(Event{Type: EventRoomClosed, RoomID: rm.id})
}

// Lookup returns a snapshot of the participants of the given room, in
// joining order.
func (r *Registry) Lookup(roomID string) []ParticipantInfo {
	rm := r.getRoom(roomID)
	if rm == nil {
		return nil
	}

	rm.mut.Lock()
	infos := make([]ParticipantInfo, 0, len(rm.participants))
	for _, e := range rm.participants {
		infos = append(infos, e.info())
	}
	rm.mut.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].JoinedAt.Equal(infos[j].JoinedAt) {
			return infos[i].Identity < infos[j].Identity
		}
		return infos[i].JoinedAt.Before(infos[j].JoinedAt)
	})

	return infos
}

func (r *Registry) Room(roomID string) (RoomInfo, bool) {
	rm := r.getRoom(roomID)
	if rm == nil {
		return RoomInfo{}, false
	}
	return rm.info(), true
}

// Rooms returns a summary of every room, sorted by id.
func (r *Registry) Rooms() []RoomInfo {
	r.mut.RLock()
	rooms := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.mut.RUnlock()

	infos := make([]RoomInfo, 0, len(rooms))
	for _, rm := range rooms {
		infos = append(infos, rm.info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID < infos[j].ID
	})

	return infos
}

func (e *entry) handle(roomID string) Handle {
	return Handle{
		RoomID:         roomID,
		Identity:       e.identity,
		SessionID:      e.sessionID,
		ReconnectToken: e.reconnectToken,
		epoch:          e.epoch,
	}
}

// lookup returns the entry matching h. The room must be locked.
func (rm *room) lookup(h Handle) (*entry, error) {
	e := rm.participants[h.Identity]
	if e == nil || e.sessionID != h.SessionID || e.epoch != h.epoch {
		return nil, ErrNotFound
	}
	if subtle.ConstantTimeCompare([]byte(e.reconnectToken), []byte(h.ReconnectToken)) != 1 {
		return nil, ErrNotFound
	}
	return e, nil
}

func (rm *room) info() RoomInfo {
	rm.mut.Lock()
	defer rm.mut.Unlock()
	return RoomInfo{
		ID:              rm.id,
		Participants:    len(rm.participants),
		MaxParticipants: rm.maxParticipants,
		CreatedAt:       rm.createdAt,
	}
}

// cancelDestroy stops a pending grace timer. The room must be locked.
func (rm *room) cancelDestroy() {
	rm.emptyGen++
	if rm.graceTimer != nil {
		rm.graceTimer.Stop()
		rm.graceTimer = nil
	}
}
