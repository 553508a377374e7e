// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package ws

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsConnClosed int32 = iota
	wsConnOpen
	wsConnClosing
)

const (
	clientSendChSize    = 256
	clientReceiveChSize = 256
)

type Client struct {
	cfg       ClientConfig
	ws        *websocket.Conn
	sendCh    chan Message
	receiveCh chan Message
	errorCh   chan error
	closeCh   chan struct{}
	doneCh    chan struct{}
	doneOnce  sync.Once
	wg        sync.WaitGroup
	connState atomic.Int32
}

// NewClient initializes and returns a new WebSocket client.
func NewClient(cfg ClientConfig, opts ...ClientOption) (*Client, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	header := http.Header{}
	if cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+cfg.AuthToken)
	}

	dialer := *websocket.DefaultDialer
	if cfg.HandshakeTimeout > 0 {
		dialer.HandshakeTimeout = cfg.HandshakeTimeout
	}

	ws, _, err := dialer.Dial(cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	c := &Client{
		cfg:       cfg,
		ws:        ws,
		sendCh:    make(chan Message, clientSendChSize),
		receiveCh: make(chan Message, clientReceiveChSize),
		errorCh:   make(chan error, 1),
		closeCh:   make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			_ = ws.Close()
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	c.setConnState(wsConnOpen)
	c.wg.Add(2)
	go c.connReader()
	go c.connWriter()

	return c, nil
}

func (c *Client) connReader() {
	defer func() {
		close(c.receiveCh)
		c.wg.Done()
		close(c.closeCh)
		c.wg.Wait()
		close(c.errorCh)
		c.setConnState(wsConnClosed)
	}()

	c.ws.SetReadLimit(connMaxReadBytes)

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			c.sendError(fmt.Errorf("failed to read message: %w", err))
			return
		}

		var msgType MessageType
		switch mt {
		case websocket.TextMessage:
			msgType = TextMessage
		case websocket.BinaryMessage:
			msgType = BinaryMessage
		default:
			c.sendError(fmt.Errorf("unexpected message type: %d", mt))
			continue
		}

		select {
		case c.receiveCh <- Message{Type: msgType, Data: data}:
		case <-c.doneCh:
			return
		}
	}
}

func (c *Client) connWriter() {
	defer c.wg.Done()

	for {
		select {
		case msg := <-c.sendCh:
			msgType := websocket.BinaryMessage
			if msg.Type == TextMessage {
				msgType = websocket.TextMessage
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWaitTime)); err != nil {
				c.sendError(fmt.Errorf("failed to set write deadline: %w", err))
			}
			if err := c.ws.WriteMessage(msgType, msg.Data); err != nil {
				c.sendError(fmt.Errorf("failed to write message: %w", err))
			}
		case <-c.closeCh:
			return
		}
	}
}

func (c *Client) sendError(err error) {
	if c.getConnState() != wsConnOpen {
		return
	}
	select {
	case c.errorCh <- err:
	default:
	}
}

// Send sends a WebSocket message with the specified type and data.
func (c *Client) Send(mt MessageType, data []byte) error {
	if c.getConnState() != wsConnOpen {
		return fmt.Errorf("failed to send message: connection is closed")
	}

	msg := Message{
		Type: mt,
		Data: data,
	}
	select {
	case c.sendCh <- msg:
	default:
		return fmt.Errorf("failed to send message: channel is full")
	}
	return nil
}

// ReceiveCh returns a channel that should be used to receive messages from the
// underlying ws connection. It's closed when the connection goes away.
func (c *Client) ReceiveCh() <-chan Message {
	return c.receiveCh
}

// ErrorCh returns a channel that is used to receive client errors
// asynchronously.
func (c *Client) ErrorCh() <-chan error {
	return c.errorCh
}

// Done returns a channel closed once the connection has gone away.
func (c *Client) Done() <-chan struct{} {
	return c.closeCh
}

// Close closes the underlying WebSocket connection.
func (c *Client) Close() error {
	c.setConnState(wsConnClosing)
	c.doneOnce.Do(func() {
		close(c.doneCh)
	})
	data := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, data, time.Now().Add(writeWaitTime))
	err := c.ws.Close()
	c.wg.Wait()
	return err
}

func (c *Client) setConnState(st int32) {
	c.connState.Store(st)
}

func (c *Client) getConnState() int32 {
	return c.connState.Load()
}
