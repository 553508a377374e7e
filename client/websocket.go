// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package client

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Huk9uri/dawata-roomd/service"
	"github.com/Huk9uri/dawata-roomd/service/reconnect"
	"github.com/Huk9uri/dawata-roomd/service/rtc"
	"github.com/Huk9uri/dawata-roomd/service/signaling"
	"github.com/Huk9uri/dawata-roomd/service/ws"
)

var errSessionClosed = errors.New("session closed")

func newLeaveMessage() *service.ClientMessage {
	return service.NewClientMessage(service.ClientMessageLeave, nil)
}

func (c *Client) wsOpen() error {
	wsc, err := ws.NewClient(ws.ClientConfig{
		URL:              c.cfg.wsURL,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create ws client: %w", err)
	}

	c.mut.Lock()
	c.ws = wsc
	c.mut.Unlock()

	c.emit(WSConnectEvent, nil)

	return nil
}

func (c *Client) sendMsg(msg *service.ClientMessage) error {
	data, err := msg.Pack()
	if err != nil {
		return fmt.Errorf("failed to pack message: %w", err)
	}

	c.mut.RLock()
	defer c.mut.RUnlock()

	if c.ws == nil {
		return fmt.Errorf("ws client is not initialized")
	}

	return c.ws.Send(ws.BinaryMessage, data)
}

// sendSessionStart joins the room, or resumes the current session if one
// was admitted already. The latest injected credential takes precedence;
// its room is the one the channel checked the injection against.
func (c *Client) sendSessionStart() error {
	if c.hostCfg != nil {
		if inj, ok := c.hostCfg.Current(); ok {
			c.mut.Lock()
			c.credential = inj.Credential
			c.mut.Unlock()
		}
	}

	c.mut.RLock()
	credential := c.credential
	sessionID := c.sessionID
	reconnectToken := c.reconnectToken
	c.mut.RUnlock()

	if sessionID != "" {
		c.log.Debug("resuming session", slog.String("sessionID", sessionID))
		return c.sendMsg(service.NewClientMessage(service.ClientMessageResume, service.ResumeMessage{
			Credential:     credential,
			SessionID:      sessionID,
			ReconnectToken: reconnectToken,
		}))
	}

	return c.sendMsg(service.NewClientMessage(service.ClientMessageJoin, service.JoinMessage{
		Credential: credential,
	}))
}

func (c *Client) handleWSMsg(msg ws.Message) error {
	if msg.Type != ws.BinaryMessage {
		return fmt.Errorf("invalid ws message type %d", msg.Type)
	}

	var cm service.ClientMessage
	if err := cm.Unpack(msg.Data); err != nil {
		return fmt.Errorf("failed to unpack message: %w", err)
	}

	switch cm.Type {
	case service.ClientMessageAdmitted:
		data, ok := cm.Data.(service.AdmittedMessage)
		if !ok {
			return fmt.Errorf("unexpected data type for admitted message")
		}
		c.mut.Lock()
		c.sessionID = data.SessionID
		c.reconnectToken = data.ReconnectToken
		c.roomID = data.RoomID
		c.mut.Unlock()
		c.emit(AdmittedEvent, data)
	case service.ClientMessageEvent:
		ev, ok := cm.Data.(signaling.LifecycleEvent)
		if !ok {
			return fmt.Errorf("unexpected data type for event message")
		}
		return c.handleLifecycleEvent(ev)
	case service.ClientMessageRTC:
		data, ok := cm.Data.(rtc.Message)
		if !ok {
			return fmt.Errorf("unexpected data type for rtc message")
		}
		return c.handleRTCMessage(data)
	case service.ClientMessageError:
		data, ok := cm.Data.(service.ErrorMessage)
		if !ok {
			return fmt.Errorf("unexpected data type for error message")
		}
		c.emit(ErrorEvent, fmt.Errorf("server error: %s", data.Error))
	default:
		return fmt.Errorf("unexpected message type %q", cm.Type)
	}

	return nil
}

func (c *Client) handleLifecycleEvent(ev signaling.LifecycleEvent) error {
	switch ev.Type {
	case signaling.EventTrackViewChanged:
		c.emit(TrackViewEvent, ev.Tracks)
		return nil
	case signaling.EventNegotiating:
		c.emit(StateEvent, ev)
		if err := c.initRTCSession(); err != nil {
			return fmt.Errorf("failed to init rtc session: %w", err)
		}
		return nil
	case signaling.EventClosed:
		c.log.Debug("session closed", slog.String("reason", string(ev.Reason)))
		c.mut.Lock()
		c.sessionID = ""
		c.reconnectToken = ""
		c.mut.Unlock()
		c.emit(StateEvent, ev)
		return errSessionClosed
	default:
		c.emit(StateEvent, ev)
		return nil
	}
}

func (c *Client) wsReader() {
	defer close(c.wsDoneCh)

	c.mut.RLock()
	wsc := c.ws
	c.mut.RUnlock()
	receiveCh, errorCh := wsc.ReceiveCh(), wsc.ErrorCh()

	for {
		select {
		case msg, ok := <-receiveCh:
			if !ok {
				c.emit(WSDisconnectEvent, nil)
				_ = wsc.Close()
				if !c.wsReconnect() {
					c.shutdown()
					return
				}
				c.mut.RLock()
				wsc = c.ws
				c.mut.RUnlock()
				receiveCh, errorCh = wsc.ReceiveCh(), wsc.ErrorCh()
				continue
			}
			if err := c.handleWSMsg(msg); errors.Is(err, errSessionClosed) {
				_ = wsc.Close()
				c.shutdown()
				return
			} else if err != nil {
				c.log.Error("failed to handle ws message", slog.String("err", err.Error()))
			}
		case err, ok := <-errorCh:
			if !ok {
				errorCh = nil
				continue
			}
			c.log.Debug("ws error", slog.String("err", err.Error()))
		case <-c.wsCloseCh:
			return
		}
	}
}

// wsReconnect re-establishes the signaling connection and resumes the
// session. It returns false if the client should stop.
func (c *Client) wsReconnect() bool {
	for {
		d := c.supervisor.Lost()
		if d.Exhausted {
			c.log.Error("giving up reconnecting", slog.Int("attempts", d.Attempt))
			c.emit(ErrorEvent, fmt.Errorf("failed to reconnect: %w", reconnect.ErrRetryBudgetExhausted))
			return false
		}

		c.log.Debug("reconnecting", slog.Int("attempt", d.Attempt), slog.Duration("delay", d.Delay))

		select {
		case <-time.After(d.Delay):
		case <-c.wsCloseCh:
			return false
		}

		if err := c.wsOpen(); err != nil {
			c.log.Debug("failed to reconnect", slog.String("err", err.Error()))
			continue
		}

		if err := c.sendSessionStart(); err != nil {
			c.log.Debug("failed to resume session", slog.String("err", err.Error()))
			c.mut.RLock()
			_ = c.ws.Close()
			c.mut.RUnlock()
			continue
		}

		_ = c.supervisor.Recovered(nil)

		return true
	}
}

// shutdown closes the client from the reader side, unless Close is
// already in progress.
func (c *Client) shutdown() {
	if !atomic.CompareAndSwapInt32(&c.state, clientStateInit, clientStateClosing) {
		return
	}
	c.close()
}
