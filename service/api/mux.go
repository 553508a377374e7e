// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package api

import (
	"net/http"
)

type HandleFunc func(http.ResponseWriter, *http.Request)

// RegisterHandleFunc registers hf for the given pattern. Patterns follow
// http.ServeMux syntax, including method and wildcard segments
// (e.g. "GET /rooms/{roomID}").
func (s *Server) RegisterHandleFunc(pattern string, hf HandleFunc) {
	s.mux.HandleFunc(pattern, hf)
}

func (s *Server) RegisterHandler(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}
