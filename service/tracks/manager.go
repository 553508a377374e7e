// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package tracks maintains, per room, which tracks exist, who is
// subscribed to them and the ordered view every participant renders.
package tracks

import (
	"fmt"
	"slices"
	"sort"
	"sync"
)

type member struct {
	identity  string
	subscribe bool
	cameraSeq uint64
	view      []Track
}

type trackState struct {
	track        Track
	subscribedBy map[string]struct{}
}

type roomState struct {
	id      string
	mut     sync.Mutex
	removed bool
	nextSeq uint64
	members map[string]*member
	tracks  map[string]*trackState
}

type Manager struct {
	mut   sync.Mutex
	rooms map[string]*roomState
}

func NewManager() *Manager {
	return &Manager{
		rooms: make(map[string]*roomState),
	}
}

func (m *Manager) room(roomID string, create bool) *roomState {
	m.mut.Lock()
	defer m.mut.Unlock()
	rs := m.rooms[roomID]
	if rs == nil && create {
		rs = &roomState{
			id:      roomID,
			members: make(map[string]*member),
			tracks:  make(map[string]*trackState),
		}
		m.rooms[roomID] = rs
	}
	return rs
}

// Join gives identity a camera slot in the room and, if it can subscribe,
// subscribes it to every live remote track.
func (m *Manager) Join(roomID, identity string, canSubscribe bool) (Update, error) {
	rs := m.room(roomID, true)
	rs.mut.Lock()
	for rs.removed {
		rs.mut.Unlock()
		rs = m.room(roomID, true)
		rs.mut.Lock()
	}
	defer rs.mut.Unlock()

	if _, ok := rs.members[identity]; ok {
		return Update{}, ErrAlreadyJoined
	}

	rs.nextSeq++
	mb := &member{
		identity:  identity,
		subscribe: canSubscribe,
		cameraSeq: rs.nextSeq,
	}
	rs.members[identity] = mb

	upd := Update{RoomID: roomID}
	if canSubscribe {
		for _, ts := range rs.sortedTracks() {
			if ts.track.Owner == identity {
				continue
			}
			ts.subscribedBy[identity] = struct{}{}
			upd.Subscribed = append(upd.Subscribed, Subscription{Subscriber: identity, Track: ts.track})
		}
	}
	rs.refreshViews(&upd)

	return upd, nil
}

// Leave drops every slot and track owned by identity.
func (m *Manager) Leave(roomID, identity string) Update {
	upd := Update{RoomID: roomID}

	rs := m.room(roomID, false)
	if rs == nil {
		return upd
	}

	rs.mut.Lock()
	if _, ok := rs.members[identity]; !ok {
		rs.mut.Unlock()
		return upd
	}

	for id, ts := range rs.tracks {
		if ts.track.Owner == identity {
			for sub := range ts.subscribedBy {
				upd.Unsubscribed = append(upd.Unsubscribed, Subscription{Subscriber: sub, Track: ts.track})
			}
			delete(rs.tracks, id)
			continue
		}
		delete(ts.subscribedBy, identity)
	}
	delete(rs.members, identity)
	rs.refreshViews(&upd)
	empty := len(rs.members) == 0
	rs.mut.Unlock()

	if empty {
		m.mut.Lock()
		if m.rooms[roomID] == rs {
			rs.mut.Lock()
			if len(rs.members) == 0 {
				rs.removed = true
				delete(m.rooms, roomID)
			}
			rs.mut.Unlock()
		}
		m.mut.Unlock()
	}

	sortSubscriptions(upd.Unsubscribed)

	return upd
}

// OnTrackPublished registers a live track. A camera track takes over its
// owner's placeholder slot and keeps its position.
func (m *Manager) OnTrackPublished(track Track) (Update, error) {
	if err := track.Kind.IsValid(); err != nil {
		return Update{}, err
	}
	if track.ID == "" {
		return Update{}, fmt.Errorf("invalid track: empty id")
	}

	rs := m.room(track.RoomID, false)
	if rs == nil {
		return Update{}, ErrUnknownParticipant
	}

	rs.mut.Lock()
	defer rs.mut.Unlock()

	owner, ok := rs.members[track.Owner]
	if !ok {
		return Update{}, ErrUnknownParticipant
	}
	if _, ok := rs.tracks[track.ID]; ok {
		return Update{}, ErrTrackExists
	}

	track.Placeholder = false
	if track.Kind == KindCamera {
		if rs.liveCamera(owner.identity) != nil {
			return Update{}, ErrSlotTaken
		}
		track.Seq = owner.cameraSeq
	} else {
		rs.nextSeq++
		track.Seq = rs.nextSeq
	}

	ts := &trackState{
		track:        track,
		subscribedBy: make(map[string]struct{}),
	}
	rs.tracks[track.ID] = ts

	upd := Update{RoomID: track.RoomID}
	for _, mb := range rs.sortedMembers() {
		if mb.identity == track.Owner || !mb.subscribe {
			continue
		}
		ts.subscribedBy[mb.identity] = struct{}{}
		upd.Subscribed = append(upd.Subscribed, Subscription{Subscriber: mb.identity, Track: track})
	}
	rs.refreshViews(&upd)

	return upd, nil
}

// OnTrackUnpublished removes a live track. A camera slot falls back to
// its placeholder.
func (m *Manager) OnTrackUnpublished(roomID, trackID string) (Update, error) {
	rs := m.room(roomID, false)
	if rs == nil {
		return Update{}, ErrTrackNotFound
	}

	rs.mut.Lock()
	defer rs.mut.Unlock()

	ts, ok := rs.tracks[trackID]
	if !ok {
		return Update{}, ErrTrackNotFound
	}
	delete(rs.tracks, trackID)

	upd := Update{RoomID: roomID}
	for sub := range ts.subscribedBy {
		upd.Unsubscribed = append(upd.Unsubscribed, Subscription{Subscriber: sub, Track: ts.track})
	}
	sortSubscriptions(upd.Unsubscribed)
	rs.refreshViews(&upd)

	return upd, nil
}

// Resync returns the full state identity should have: one subscription
// per remote live track it's subscribed to and its current view.
func (m *Manager) Resync(roomID, identity string) (Update, error) {
	rs := m.room(roomID, false)
	if rs == nil {
		return Update{}, ErrUnknownParticipant
	}

	rs.mut.Lock()
	defer rs.mut.Unlock()

	mb, ok := rs.members[identity]
	if !ok {
		return Update{}, ErrUnknownParticipant
	}

	upd := Update{RoomID: roomID}
	for _, ts := range rs.sortedTracks() {
		if _, ok := ts.subscribedBy[identity]; ok {
			upd.Subscribed = append(upd.Subscribed, Subscription{Subscriber: identity, Track: ts.track})
		}
	}
	mb.view = rs.computeView(mb)
	upd.Views = map[string][]Track{identity: slices.Clone(mb.view)}

	return upd, nil
}

// ComputeSubscriptionView returns the ordered grid view of identity: one
// slot per remote camera (live or placeholder) and one per remote
// screen-share.
func (m *Manager) ComputeSubscriptionView(roomID, identity string) []Track {
	rs := m.room(roomID, false)
	if rs == nil {
		return nil
	}

	rs.mut.Lock()
	defer rs.mut.Unlock()

	mb, ok := rs.members[identity]
	if !ok {
		return nil
	}

	return rs.computeView(mb)
}

// Tracks returns every live track of the room ordered by slot.
func (m *Manager) Tracks(roomID string) []Track {
	rs := m.room(roomID, false)
	if rs == nil {
		return nil
	}

	rs.mut.Lock()
	defer rs.mut.Unlock()

	tracks := make([]Track, 0, len(rs.tracks))
	for _, ts := range rs.sortedTracks() {
		tracks = append(tracks, ts.track)
	}
	return tracks
}

// SubscribedBy returns the identities subscribed to the given track.
func (m *Manager) SubscribedBy(roomID, trackID string) []string {
	rs := m.room(roomID, false)
	if rs == nil {
		return nil
	}

	rs.mut.Lock()
	defer rs.mut.Unlock()

	ts, ok := rs.tracks[trackID]
	if !ok {
		return nil
	}

	subs := make([]string, 0, len(ts.subscribedBy))
	for sub := range ts.subscribedBy {
		subs = append(subs, sub)
	}
	sort.Strings(subs)
	return subs
}

// The functions below require the room to be locked.

func (rs *roomState) computeView(viewer *member) []Track {
	if !viewer.subscribe {
		return []Track{}
	}

	view := make([]Track, 0, len(rs.members)+len(rs.tracks))
	for _, mb := range rs.members {
		if mb.identity == viewer.identity {
			continue
		}
		if live := rs.liveCamera(mb.identity); live != nil {
			view = append(view, live.track)
		} else {
			view = append(view, Track{
				ID:          placeholderID(mb.identity),
				RoomID:      rs.id,
				Owner:       mb.identity,
				Kind:        KindCamera,
				Seq:         mb.cameraSeq,
				Placeholder: true,
			})
		}
	}
	for _, ts := range rs.tracks {
		if ts.track.Owner == viewer.identity || ts.track.Kind != KindScreenShare {
			continue
		}
		view = append(view, ts.track)
	}

	sort.Slice(view, func(i, j int) bool {
		return view[i].Seq < view[j].Seq
	})

	return view
}

func (rs *roomState) refreshViews(upd *Update) {
	for _, mb := range rs.members {
		view := rs.computeView(mb)
		if mb.view != nil && slices.Equal(mb.view, view) {
			continue
		}
		mb.view = view
		if upd.Views == nil {
			upd.Views = make(map[string][]Track)
		}
		upd.Views[mb.identity] = slices.Clone(view)
	}
}

func (rs *roomState) liveCamera(owner string) *trackState {
	for _, ts := range rs.tracks {
		if ts.track.Owner == owner && ts.track.Kind == KindCamera {
			return ts
		}
	}
	return nil
}

func (rs *roomState) sortedTracks() []*trackState {
	tracks := make([]*trackState, 0, len(rs.tracks))
	for _, ts := range rs.tracks {
		tracks = append(tracks, ts)
	}
	sort.Slice(tracks, func(i, j int) bool {
		if tracks[i].track.Seq == tracks[j].track.Seq {
			return tracks[i].track.ID < tracks[j].track.ID
		}
		return tracks[i].track.Seq < tracks[j].track.Seq
	})
	return tracks
}

func (rs *roomState) sortedMembers() []*member {
	members := make([]*member, 0, len(rs.members))
	for _, mb := range rs.members {
		members = append(members, mb)
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].cameraSeq < members[j].cameraSeq
	})
	return members
}

func sortSubscriptions(subs []Subscription) {
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].Track.Seq == subs[j].Track.Seq {
			return subs[i].Subscriber < subs[j].Subscriber
		}
		return subs[i].Track.Seq < subs[j].Track.Seq
	})
}
