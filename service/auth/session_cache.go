// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package auth

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrInvalidToken   = errors.New("token is invalid")
	ErrSessionExpired = errors.New("session is expired")
)

type CachedSession struct {
	ClientID       string
	ExpirationDate time.Time
}

type SessionCacheConfig struct {
	ExpirationMinutes int `toml:"expiration_minutes"`
}

func (c SessionCacheConfig) IsValid() error {
	if c.ExpirationMinutes <= 0 {
		return errors.New("invalid ExpirationMinutes value: should be a positive number")
	}
	return nil
}

// SessionCache keeps the bearer tokens issued to logged in host clients.
// A client holds at most one token at a time.
type SessionCache struct {
	cfg SessionCacheConfig
	now func() time.Time

	mut      sync.Mutex
	sessions map[string]CachedSession
	// byClient maps a client id to its current token.
	byClient map[string]string
}

func NewSessionCache(cfg SessionCacheConfig) (*SessionCache, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, err
	}
	return &SessionCache{
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]CachedSession),
		byClient: make(map[string]string),
	}, nil
}

func (c *SessionCache) Get(token string) (CachedSession, error) {
	c.mut.Lock()
	defer c.mut.Unlock()

	session, ok := c.sessions[token]
	if !ok {
		return CachedSession{}, ErrInvalidToken
	}
	if c.now().After(session.ExpirationDate) {
		c.delete(session.ClientID)
		return CachedSession{}, ErrSessionExpired
	}
	return session, nil
}

func (c *SessionCache) Put(clientID, token string) error {
	if clientID == "" {
		return errors.New("can not cache: invalid client id")
	}
	if token == "" {
		return errors.New("can not cache: invalid token")
	}

	c.mut.Lock()
	defer c.mut.Unlock()

	if _, ok := c.sessions[token]; ok {
		return errors.New("can not cache: token in use")
	}

	c.delete(clientID)
	c.sessions[token] = CachedSession{
		ClientID:       clientID,
		ExpirationDate: c.now().Add(time.Duration(c.cfg.ExpirationMinutes) * time.Minute),
	}
	c.byClient[clientID] = token

	return nil
}

func (c *SessionCache) Delete(clientID string) {
	c.mut.Lock()
	c.delete(clientID)
	c.mut.Unlock()
}

func (c *SessionCache) Len() int {
	c.mut.Lock()
	defer c.mut.Unlock()
	return len(c.sessions)
}

func (c *SessionCache) delete(clientID string) {
	if token, ok := c.byClient[clientID]; ok {
		delete(c.sessions, token)
		delete(c.byClient, clientID)
	}
}
