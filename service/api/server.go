// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

// Server serves the roomd HTTP API, including the upgrade endpoint of the
// signaling WebSocket.
type Server struct {
	cfg      Config
	listener net.Listener
	srv      *http.Server
	mux      *http.ServeMux
	log      mlog.LoggerIFace
}

func NewServer(cfg Config, log mlog.LoggerIFace) (*Server, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, err
	}
	if log == nil {
		return nil, fmt.Errorf("log should not be nil")
	}

	mux := http.NewServeMux()
	s := &Server{
		srv: &http.Server{
			Addr:         cfg.ListenAddress,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  30 * time.Second,
			TLSConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
				CurvePreferences: []tls.CurveID{
					tls.X25519,
					tls.CurveP256,
				},
			},
			Handler: mux,
		},
		log: log,
		cfg: cfg,
		mux: mux,
	}
	return s, nil
}

func (s *Server) Start() error {
	if s.listener != nil {
		return fmt.Errorf("server is already running")
	}

	listener, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener

	s.log.Info("api: server is listening",
		mlog.String("addr", listener.Addr().String()),
		mlog.Bool("tls", s.cfg.TLS.Enable),
	)

	go func() {
		var err error
		if s.cfg.TLS.Enable {
			s.log.Debug("api: serving with tls")
			err = s.srv.ServeTLS(listener, s.cfg.TLS.CertFile, s.cfg.TLS.CertKey)
		} else {
			s.log.Debug("api: serving plaintext")
			err = s.srv.Serve(listener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Critical("error starting HTTP server", mlog.Err(err))
		}
	}()

	return nil
}

// Stop waits for in-flight requests up to the configured shutdown timeout,
// then closes any connection still open. Hijacked WebSocket connections are
// not tracked here and must be closed by their owner.
func (s *Server) Stop() error {
	addr := s.Addr()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.shutdownTimeout())
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Warn("api: graceful shutdown failed, closing connections",
			mlog.String("addr", addr), mlog.Err(err))
		if closeErr := s.srv.Close(); closeErr != nil {
			s.log.Error("api: failed to close server", mlog.String("addr", addr), mlog.Err(closeErr))
		}
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.log.Info("api: server was shutdown", mlog.String("addr", addr))
	return nil
}

func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
