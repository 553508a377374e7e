// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Huk9uri/dawata-roomd/service/rtc"
	"github.com/Huk9uri/dawata-roomd/service/signaling"
	"github.com/Huk9uri/dawata-roomd/service/ws"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
	"golang.org/x/time/rate"
)

const limiterIdleTimeout = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// connLimiter rate limits WebSocket upgrades per remote host.
type connLimiter struct {
	rate  rate.Limit
	burst int

	mut      sync.Mutex
	limiters map[string]*limiterEntry
}

func newConnLimiter(r float64, burst int) *connLimiter {
	return &connLimiter{
		rate:     rate.Limit(r),
		burst:    burst,
		limiters: make(map[string]*limiterEntry),
	}
}

func (l *connLimiter) allow(host string) bool {
	l.mut.Lock()
	defer l.mut.Unlock()

	now := time.Now()
	for h, e := range l.limiters {
		if now.Sub(e.lastSeen) > limiterIdleTimeout {
			delete(l.limiters, h)
		}
	}

	e := l.limiters[host]
	if e == nil {
		e = &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[host] = e
	}
	e.lastSeen = now

	return e.limiter.AllowN(now, 1)
}

func (s *Service) wsAuthHandler(_ http.ResponseWriter, r *http.Request) (string, int, error) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	if !s.wsLimiter.allow(host) {
		s.log.Warn("ws connection rate limited", mlog.String("remoteAddr", r.RemoteAddr))
		return "", http.StatusTooManyRequests, fmt.Errorf("too many requests")
	}

	return "", http.StatusOK, nil
}

func (s *Service) sendClientMessage(connID string, msg *ClientMessage) error {
	data, err := msg.Pack()
	if err != nil {
		return fmt.Errorf("failed to pack message: %w", err)
	}

	if err := s.wsServer.Send(ws.Message{
		ConnID: connID,
		Type:   ws.BinaryMessage,
		Data:   data,
	}); err != nil {
		return err
	}

	s.metrics.IncWSMessages(msg.Type, "out")

	return nil
}

func (s *Service) sendError(connID string, err error) {
	msg := NewClientMessage(ClientMessageError, ErrorMessage{Error: err.Error()})
	if err := s.sendClientMessage(connID, msg); err != nil {
		s.log.Debug("failed to send error message", mlog.String("connID", connID), mlog.Err(err))
	}
}

func (s *Service) bindSession(connID string, sess *signaling.Session) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.connSessions[connID] = sess
	s.sessionConns[sess.ID()] = connID
}

// unbindSession drops the association of sess with connID, if still
// current.
func (s *Service) unbindSession(connID string, sess *signaling.Session) {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.connSessions[connID] == sess {
		delete(s.connSessions, connID)
	}
	if s.sessionConns[sess.ID()] == connID {
		delete(s.sessionConns, sess.ID())
	}
}

func (s *Service) getConnSession(connID string) *signaling.Session {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return s.connSessions[connID]
}

func (s *Service) getSessionConn(sessConnID string) (string, bool) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	connID, ok := s.sessionConns[sessConnID]
	return connID, ok
}

func (s *Service) wsReader() {
	defer s.wg.Done()

	for msg := range s.wsServer.ReceiveCh() {
		switch msg.Type {
		case ws.OpenMessage:
			s.log.Debug("ws connection opened", mlog.String("connID", msg.ConnID))
			s.metrics.IncWSConnections()
		case ws.CloseMessage:
			s.log.Debug("ws connection closed", mlog.String("connID", msg.ConnID))
			s.metrics.DecWSConnections()
			s.onConnClosed(msg.ConnID)
		case ws.BinaryMessage:
			var cm ClientMessage
			if err := cm.Unpack(msg.Data); err != nil {
				s.log.Error("failed to unpack client message", mlog.String("connID", msg.ConnID), mlog.Err(err))
				s.sendError(msg.ConnID, fmt.Errorf("invalid message"))
				continue
			}
			s.metrics.IncWSMessages(cm.Type, "in")
			if err := s.handleClientMessage(msg.ConnID, cm); err != nil {
				s.log.Debug("failed to handle client message",
					mlog.String("connID", msg.ConnID), mlog.String("type", cm.Type), mlog.Err(err))
				s.sendError(msg.ConnID, err)
			}
		default:
			s.log.Warn("unexpected ws message", mlog.String("connID", msg.ConnID), mlog.Any("type", msg.Type))
		}
	}
}

// onConnClosed reports the loss of the signaling channel to the session
// bound to connID. The session stays resumable from another connection.
func (s *Service) onConnClosed(connID string) {
	sess := s.getConnSession(connID)
	if sess == nil {
		return
	}
	s.unbindSession(connID, sess)

	if err := s.sigServer.SignalingLost(sess.ID()); err != nil && !errors.Is(err, signaling.ErrSessionNotFound) {
		s.log.Error("failed to report signaling loss", mlog.String("connID", connID), mlog.Err(err))
	}
}

func (s *Service) handleClientMessage(connID string, cm ClientMessage) error {
	switch cm.Type {
	case ClientMessageJoin:
		data, ok := cm.Data.(JoinMessage)
		if !ok {
			return fmt.Errorf("unexpected data type for join message")
		}
		return s.startSession(connID, func() (*signaling.Session, error) {
			return s.sigServer.Join([]byte(data.Credential))
		})
	case ClientMessageResume:
		data, ok := cm.Data.(ResumeMessage)
		if !ok {
			return fmt.Errorf("unexpected data type for resume message")
		}
		return s.startSession(connID, func() (*signaling.Session, error) {
			return s.sigServer.Resume([]byte(data.Credential), data.SessionID, data.ReconnectToken)
		})
	case ClientMessageLeave:
		sess := s.getConnSession(connID)
		if sess == nil {
			return signaling.ErrSessionNotFound
		}
		return s.sigServer.Leave(sess.ID())
	case ClientMessageRTC:
		data, ok := cm.Data.(rtc.Message)
		if !ok {
			return fmt.Errorf("unexpected data type for rtc message")
		}
		sess := s.getConnSession(connID)
		if sess == nil {
			return signaling.ErrSessionNotFound
		}
		data.ConnID = sess.ID()
		return s.engine.Send(data)
	default:
		return fmt.Errorf("unexpected client message type %q", cm.Type)
	}
}

func (s *Service) startSession(connID string, startFn func() (*signaling.Session, error)) error {
	if sess := s.getConnSession(connID); sess != nil {
		return fmt.Errorf("connection already has an active session")
	}

	sess, err := startFn()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	s.bindSession(connID, sess)

	s.wg.Add(1)
	go s.forwardEvents(connID, sess)

	return nil
}

// forwardEvents relays the lifecycle events of sess to the participant
// until the session is closed.
func (s *Service) forwardEvents(connID string, sess *signaling.Session) {
	defer s.wg.Done()
	defer s.unbindSession(connID, sess)

	for ev := range sess.Events() {
		var msg *ClientMessage
		if ev.Type == signaling.EventAdmitted {
			msg = NewClientMessage(ClientMessageAdmitted, AdmittedMessage{
				SessionID:      ev.SessionID,
				ReconnectToken: ev.ReconnectToken,
				RoomID:         ev.RoomID,
				Identity:       ev.Identity,
				Resumed:        ev.Resumed,
			})
		} else {
			msg = NewClientMessage(ClientMessageEvent, ev)
		}

		if _, ok := s.getSessionConn(sess.ID()); !ok {
			// Signaling was lost, the participant will learn the outcome
			// after resuming.
			continue
		}

		if err := s.sendClientMessage(connID, msg); err != nil {
			s.log.Debug("failed to send lifecycle event",
				mlog.String("connID", connID), mlog.String("type", string(ev.Type)), mlog.Err(err))
		}
	}
}

// engineReader relays the signaling data produced by the media engine to
// the participant owning the connection.
func (s *Service) engineReader() {
	defer s.wg.Done()

	for {
		select {
		case msg := <-s.engine.ReceiveCh():
			connID, ok := s.getSessionConn(msg.ConnID)
			if !ok {
				s.log.Debug("dropping rtc message: no signaling connection", mlog.String("sessConnID", msg.ConnID))
				continue
			}
			if err := s.sendClientMessage(connID, NewClientMessage(ClientMessageRTC, msg)); err != nil {
				s.log.Debug("failed to send rtc message", mlog.String("connID", connID), mlog.Err(err))
			}
		case <-s.stopCh:
			return
		}
	}
}
