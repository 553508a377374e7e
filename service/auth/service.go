// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package auth manages the host clients (integrations issuing participant
// credentials) allowed to use the administrative API.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Huk9uri/dawata-roomd/service/random"
	"github.com/Huk9uri/dawata-roomd/service/store"
)

const (
	MinKeyLen = 32
	keyPrefix = "client:"
)

var ErrAuthFailed = errors.New("authentication failed")

type Service struct {
	store        store.Store
	sessionCache *SessionCache
}

func NewService(st store.Store, sessionCache *SessionCache) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("invalid store")
	}
	if sessionCache == nil {
		return nil, fmt.Errorf("invalid session cache")
	}
	return &Service{
		store:        st,
		sessionCache: sessionCache,
	}, nil
}

func clientKey(clientID string) string {
	return keyPrefix + clientID
}

func (s *Service) Authenticate(clientID, authKey string) error {
	if clientID == "" {
		return fmt.Errorf("%w: %w", ErrAuthFailed, store.ErrEmptyKey)
	}
	hash, err := s.store.Get(clientKey(clientID))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	if err := compareKeyHash(hash, authKey); err != nil {
		return ErrAuthFailed
	}
	return nil
}

// Login authenticates the client and returns a bearer token that can be
// used in place of the key until it expires.
func (s *Service) Login(clientID, authKey string) (string, error) {
	if err := s.Authenticate(clientID, authKey); err != nil {
		return "", err
	}

	token, err := random.NewToken()
	if err != nil {
		return "", fmt.Errorf("login failed: %w", err)
	}

	if err := s.sessionCache.Put(clientID, token); err != nil {
		return "", fmt.Errorf("login failed: %w", err)
	}

	return token, nil
}

// ValidateToken returns the id of the client owning the given bearer token.
func (s *Service) ValidateToken(token string) (string, error) {
	session, err := s.sessionCache.Get(token)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	return session.ClientID, nil
}

func (s *Service) Register(clientID, authKey string) error {
	if clientID == "" {
		return fmt.Errorf("registration failed: empty client id")
	}
	if len(authKey) < MinKeyLen {
		return fmt.Errorf("registration failed: key not long enough")
	}

	hash, err := hashKey(authKey)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	if err := s.store.Put(clientKey(clientID), hash); errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("registration failed: already registered")
	} else if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	return nil
}

func (s *Service) Unregister(clientID string) error {
	if clientID == "" {
		return fmt.Errorf("unregister failed: %w", store.ErrEmptyKey)
	}

	if _, err := s.store.Get(clientKey(clientID)); err != nil {
		return fmt.Errorf("unregister failed: %w", err)
	}

	if err := s.store.Delete(clientKey(clientID)); err != nil {
		return fmt.Errorf("unregister failed: %w", err)
	}

	s.sessionCache.Delete(clientID)

	return nil
}

// Clients returns the ids of all registered clients.
func (s *Service) Clients() ([]string, error) {
	keys, err := s.store.Keys(keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, keyPrefix))
	}
	return ids, nil
}
