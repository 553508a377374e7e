// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"net/http"
)

func (s *Service) getStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	data := newHTTPData()
	defer s.httpAudit("getStats", data, w, r)

	clientID, code, err := s.authHandler(w, r)
	if err != nil {
		data.err = err.Error()
		data.code = code
		return
	}
	data.reqData["clientID"] = clientID

	rooms := s.registry.Rooms()
	var participants int
	states := map[string]int{}
	for _, room := range rooms {
		for _, p := range s.registry.Lookup(room.ID) {
			participants++
			states[p.State]++
		}
	}

	data.resData["rooms"] = len(rooms)
	data.resData["participants"] = participants
	data.resData["states"] = states
	data.code = http.StatusOK
}

func (s *Service) getRoom(w http.ResponseWriter, r *http.Request) {
	data := newHTTPData()
	defer s.httpAudit("getRoom", data, w, r)

	clientID, code, err := s.authHandler(w, r)
	if err != nil {
		data.err = err.Error()
		data.code = code
		return
	}
	data.reqData["clientID"] = clientID

	roomID := r.PathValue("roomID")
	data.reqData["roomID"] = roomID

	room, ok := s.registry.Room(roomID)
	if !ok {
		data.err = "room not found"
		data.code = http.StatusNotFound
		return
	}

	data.resData["room"] = room
	data.resData["participants"] = s.registry.Lookup(roomID)
	data.code = http.StatusOK
}
