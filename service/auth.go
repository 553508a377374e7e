// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

// authHandler authenticates the request either through a bearer token
// obtained from /login or through basic auth. An empty client id is
// returned for the admin.
func (s *Service) authHandler(_ http.ResponseWriter, r *http.Request) (string, int, error) {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		clientID, err := s.auth.ValidateToken(token)
		if err != nil {
			s.log.Debug("token validation failed", mlog.Err(err))
			return "", http.StatusUnauthorized, fmt.Errorf("authentication failed")
		}
		return clientID, http.StatusOK, nil
	}

	clientID, authKey, ok := r.BasicAuth()
	if !ok {
		return "", http.StatusUnauthorized, fmt.Errorf("authentication failed: invalid auth header")
	}

	sec := s.cfg.API.Security
	if clientID == "" && sec.EnableAdmin &&
		subtle.ConstantTimeCompare([]byte(authKey), []byte(sec.AdminSecretKey)) == 1 {
		return "", http.StatusOK, nil
	}

	if clientID == "" {
		return "", http.StatusUnauthorized, fmt.Errorf("authentication failed: unauthorized")
	}

	if err := s.auth.Authenticate(clientID, authKey); err != nil {
		s.log.Error("authentication failed", mlog.String("clientID", clientID), mlog.Err(err))
		return "", http.StatusUnauthorized, fmt.Errorf("authentication failed")
	}

	return clientID, http.StatusOK, nil
}

func (s *Service) registerClient(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.NotFound(w, req)
		return
	}

	data := newHTTPData()
	defer s.httpAudit("registerClient", data, w, req)

	sec := s.cfg.API.Security
	if !sec.EnableAdmin && !sec.AllowSelfRegistration {
		data.code = http.StatusForbidden
		data.err = "registration is disabled"
		return
	}

	if !sec.AllowSelfRegistration {
		callerID, code, err := s.authHandler(w, req)
		if err != nil {
			data.err = err.Error()
			data.code = code
			return
		}
		if callerID != "" {
			data.code = http.StatusForbidden
			data.err = "only the admin can register clients"
			return
		}
	}

	var request struct {
		ClientID string `json:"clientID"`
		AuthKey  string `json:"authKey"`
	}
	if err := json.NewDecoder(req.Body).Decode(&request); err != nil {
		data.err = err.Error()
		data.code = http.StatusBadRequest
		return
	}
	data.reqData["clientID"] = request.ClientID

	if err := s.auth.Register(request.ClientID, request.AuthKey); err != nil {
		data.err = err.Error()
		data.code = http.StatusBadRequest
		return
	}

	s.log.Debug("registered new client", mlog.String("clientID", request.ClientID))

	data.code = http.StatusCreated
	data.resData["clientID"] = request.ClientID
}

func (s *Service) unregisterClient(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.NotFound(w, req)
		return
	}

	data := newHTTPData()
	defer s.httpAudit("unregisterClient", data, w, req)

	sec := s.cfg.API.Security
	if !sec.EnableAdmin && !sec.AllowSelfRegistration {
		data.code = http.StatusForbidden
		data.err = "unregistration is disabled"
		return
	}

	callerID, code, err := s.authHandler(w, req)
	if err != nil {
		data.err = err.Error()
		data.code = code
		return
	}

	var request struct {
		ClientID string `json:"clientID"`
	}
	if err := json.NewDecoder(req.Body).Decode(&request); err != nil {
		data.err = err.Error()
		data.code = http.StatusBadRequest
		return
	}
	data.reqData["clientID"] = request.ClientID

	if request.ClientID == "" {
		data.err = "client id should not be empty"
		data.code = http.StatusBadRequest
		return
	}

	// Clients can only unregister themselves.
	if callerID != "" && callerID != request.ClientID {
		data.err = "forbidden"
		data.code = http.StatusForbidden
		return
	}

	if err := s.auth.Unregister(request.ClientID); err != nil {
		data.err = err.Error()
		data.code = http.StatusBadRequest
		return
	}

	s.log.Debug("unregistered client", mlog.String("clientID", request.ClientID))

	data.code = http.StatusOK
}

func (s *Service) loginClient(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.NotFound(w, req)
		return
	}

	data := newHTTPData()
	defer s.httpAudit("loginClient", data, w, req)

	clientID, authKey, ok := req.BasicAuth()
	if !ok {
		data.err = "authentication failed: invalid auth header"
		data.code = http.StatusUnauthorized
		return
	}
	data.reqData["clientID"] = clientID

	token, err := s.auth.Login(clientID, authKey)
	if err != nil {
		s.log.Debug("login failed", mlog.String("clientID", clientID), mlog.Err(err))
		data.err = "authentication failed"
		data.code = http.StatusUnauthorized
		return
	}

	data.code = http.StatusOK
	data.resData["clientID"] = clientID
	data.resData["token"] = token
}
