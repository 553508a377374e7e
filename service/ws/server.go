// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package ws

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Huk9uri/dawata-roomd/service/random"

	"github.com/gorilla/websocket"
	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

const (
	receiveChSize = 256
	writeWaitTime = 10 * time.Second
)

var ErrConnNotFound = errors.New("connection not found")

// AuthCb authenticates an upgrade request. On failure the returned code is
// written back as the HTTP status.
type AuthCb func(w http.ResponseWriter, r *http.Request) (string, int, error)

type Server struct {
	cfg    ServerConfig
	log    mlog.LoggerIFace
	authCb AuthCb

	mut    sync.RWMutex
	conns  map[string]*conn
	closed bool

	receiveCh chan Message
	closeCh   chan struct{}
	wg        sync.WaitGroup
}

func NewServer(cfg ServerConfig, log mlog.LoggerIFace, opts ...ServerOption) (*Server, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	if log == nil {
		return nil, fmt.Errorf("log should not be nil")
	}

	s := &Server{
		cfg:       cfg,
		log:       log,
		conns:     make(map[string]*conn),
		receiveCh: make(chan Message, receiveChSize),
		closeCh:   make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	return s, nil
}

// ReceiveCh returns the messages read from all connections, including an
// OpenMessage and a CloseMessage marking the lifetime of each of them.
func (s *Server) ReceiveCh() <-chan Message {
	return s.receiveCh
}

// Send queues msg for delivery on the connection it's addressed to.
func (s *Server) Send(msg Message) error {
	s.mut.RLock()
	defer s.mut.RUnlock()

	if s.closed {
		return fmt.Errorf("server is closed")
	}

	c := s.conns[msg.ConnID]
	if c == nil {
		return ErrConnNotFound
	}

	select {
	case c.sendCh <- msg:
	case <-c.closeCh:
		return ErrConnNotFound
	default:
		return fmt.Errorf("failed to send message: channel is full")
	}

	return nil
}

// CloseConn sends a close frame to the given connection and drops it.
func (s *Server) CloseConn(connID string) error {
	c := s.getConn(connID)
	if c == nil {
		return ErrConnNotFound
	}

	data := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.ws.WriteControl(websocket.CloseMessage, data, time.Now().Add(writeWaitTime)); err != nil {
		s.log.Debug("failed to write close message", mlog.String("connID", connID), mlog.Err(err))
	}

	return c.close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var clientID string
	if s.authCb != nil {
		id, code, err := s.authCb(w, r)
		if err != nil {
			s.log.Debug("authCb failed", mlog.Err(err), mlog.String("remoteAddr", r.RemoteAddr))
			http.Error(w, err.Error(), code)
			return
		}
		clientID = id
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  s.cfg.ReadBufferSize,
		WriteBufferSize: s.cfg.WriteBufferSize,
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("failed to upgrade connection", mlog.Err(err))
		return
	}

	c := newConn(random.NewID(), clientID, ws)
	if !s.addConn(c) {
		s.log.Debug("server is closed, dropping connection")
		_ = c.close()
		return
	}

	s.sendMsg(newOpenMessage(c.id, c.clientID))

	go s.connWriter(c)
	go s.connPinger(c)
	s.connReader(c)

	if err := c.close(); err != nil {
		s.log.Debug("failed to close ws conn", mlog.String("connID", c.id), mlog.Err(err))
	}
	s.sendMsg(newCloseMessage(c.id, c.clientID))
	s.removeConn(c.id)
}

// Close drops all connections and closes the receiving channel once every
// connection handler has returned. It's safe to call multiple times.
func (s *Server) Close() {
	s.mut.Lock()
	if s.closed {
		s.mut.Unlock()
		return
	}
	s.closed = true
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mut.Unlock()

	close(s.closeCh)

	for _, c := range conns {
		if err := c.close(); err != nil {
			s.log.Debug("failed to close ws conn", mlog.String("connID", c.id), mlog.Err(err))
		}
	}

	s.wg.Wait()
	close(s.receiveCh)
}

func (s *Server) sendMsg(msg Message) {
	select {
	case s.receiveCh <- msg:
	case <-s.closeCh:
	}
}

func (s *Server) connReader(c *conn) {
	c.ws.SetReadLimit(connMaxReadBytes)

	extendDeadline := func() error {
		return c.ws.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))
	}
	if err := extendDeadline(); err != nil {
		s.log.Error("failed to set read deadline", mlog.String("connID", c.id), mlog.Err(err))
		return
	}
	c.ws.SetPongHandler(func(string) error {
		return extendDeadline()
	})

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("ws read failed", mlog.String("connID", c.id), mlog.Err(err))
			}
			return
		}

		if err := extendDeadline(); err != nil {
			s.log.Error("failed to set read deadline", mlog.String("connID", c.id), mlog.Err(err))
			return
		}

		var msgType MessageType
		switch mt {
		case websocket.TextMessage:
			msgType = TextMessage
		case websocket.BinaryMessage:
			msgType = BinaryMessage
		default:
			continue
		}

		s.sendMsg(Message{
			ConnID:   c.id,
			ClientID: c.clientID,
			Type:     msgType,
			Data:     data,
		})
	}
}

func (s *Server) connWriter(c *conn) {
	for {
		select {
		case msg := <-c.sendCh:
			msgType := websocket.BinaryMessage
			if msg.Type == TextMessage {
				msgType = websocket.TextMessage
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWaitTime)); err != nil {
				s.log.Error("failed to set write deadline", mlog.String("connID", c.id), mlog.Err(err))
			}
			if err := c.ws.WriteMessage(msgType, msg.Data); err != nil {
				s.log.Error("failed to write message", mlog.String("connID", c.id), mlog.Err(err))
				_ = c.close()
				return
			}
		case <-c.closeCh:
			return
		}
	}
}

func (s *Server) connPinger(c *conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWaitTime)); err != nil {
				s.log.Debug("failed to ping conn", mlog.String("connID", c.id), mlog.Err(err))
				return
			}
		case <-c.closeCh:
			return
		}
	}
}
