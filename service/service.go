// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/Huk9uri/dawata-roomd/logger"
	"github.com/Huk9uri/dawata-roomd/service/api"
	"github.com/Huk9uri/dawata-roomd/service/auth"
	"github.com/Huk9uri/dawata-roomd/service/credential"
	"github.com/Huk9uri/dawata-roomd/service/perf"
	"github.com/Huk9uri/dawata-roomd/service/registry"
	"github.com/Huk9uri/dawata-roomd/service/rtc"
	"github.com/Huk9uri/dawata-roomd/service/signaling"
	"github.com/Huk9uri/dawata-roomd/service/store"
	"github.com/Huk9uri/dawata-roomd/service/tracks"
	"github.com/Huk9uri/dawata-roomd/service/ws"

	"github.com/grafana/pyroscope-go/godeltaprof"
	"github.com/mattermost/mattermost/server/public/shared/mlog"
	"github.com/prometheus/procfs"
)

type Service struct {
	cfg       Config
	log       mlog.LoggerIFace
	ownedLog  *mlog.Logger
	metrics   *perf.Metrics
	proc      procfs.FS
	heapProf  *godeltaprof.HeapProfiler
	store     store.Store
	auth      *auth.Service
	registry  *registry.Registry
	tracks    *tracks.Manager
	engine    MediaEngine
	sigServer *signaling.Server
	apiServer *api.Server
	wsServer  *ws.Server
	wsLimiter *connLimiter

	mut          sync.RWMutex
	connSessions map[string]*signaling.Session
	sessionConns map[string]string

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(cfg Config, opts ...Option) (*Service, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:          cfg,
		metrics:      perf.NewMetrics("roomd", nil),
		heapProf:     godeltaprof.NewHeapProfiler(),
		connSessions: make(map[string]*signaling.Session),
		sessionConns: make(map[string]string),
		stopCh:       make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	var err error
	if s.log == nil {
		s.ownedLog, err = logger.New(cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to init logger: %w", err)
		}
		s.log = s.ownedLog
	}

	s.log.Info("roomd: starting up", getVersionInfo().logFields()...)

	s.proc, err = procfs.NewDefaultFS()
	if err != nil {
		s.log.Warn("failed to open procfs, system info will not be available", mlog.Err(err))
	}

	s.store, err = store.New(cfg.Store.DataSource)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	s.log.Info("initiated data store", mlog.String("DataSource", cfg.Store.DataSource))

	sessionCache, err := auth.NewSessionCache(cfg.API.Security.SessionCache)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	s.auth, err = auth.NewService(s.store, sessionCache)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}

	validator, err := credential.NewValidator(cfg.Credential.SigningKey,
		credential.WithLeeway(cfg.Credential.Leeway()))
	if err != nil {
		return nil, fmt.Errorf("failed to create credential validator: %w", err)
	}

	s.registry, err = registry.New(cfg.Registry, s.log)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	s.tracks = tracks.NewManager()

	if s.engine == nil {
		s.engine, err = rtc.NewEngine(cfg.RTC, s.log, s.metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create rtc engine: %w", err)
		}
	}

	s.sigServer, err = signaling.NewServer(cfg.Signaling, cfg.Reconnect, signaling.Components{
		Validator: validator,
		Registry:  s.registry,
		Tracks:    s.tracks,
		Engine:    s.engine,
	}, s.log, s.metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create signaling server: %w", err)
	}

	s.apiServer, err = api.NewServer(cfg.API.HTTP, s.log)
	if err != nil {
		return nil, fmt.Errorf("failed to create api server: %w", err)
	}

	s.wsLimiter = newConnLimiter(cfg.API.Security.WSConnRate, cfg.API.Security.WSConnBurst)

	wsConfig := ws.ServerConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		PingInterval:    10 * time.Second,
	}
	s.wsServer, err = ws.NewServer(wsConfig, s.log, ws.WithAuthCb(s.wsAuthHandler))
	if err != nil {
		return nil, fmt.Errorf("failed to create ws server: %w", err)
	}

	s.apiServer.RegisterHandleFunc("/version", s.getVersion)
	s.apiServer.RegisterHandleFunc("/system", s.getSystemInfo)
	s.apiServer.RegisterHandleFunc("/stats", s.getStats)
	s.apiServer.RegisterHandleFunc("GET /rooms/{roomID}", s.getRoom)
	s.apiServer.RegisterHandleFunc("/register", s.registerClient)
	s.apiServer.RegisterHandleFunc("/unregister", s.unregisterClient)
	s.apiServer.RegisterHandleFunc("/login", s.loginClient)
	s.apiServer.RegisterHandleFunc("/debug/delta/heap", s.getHeapProfile)
	s.apiServer.RegisterHandler("/metrics", s.metrics.Handler())
	s.apiServer.RegisterHandler("/ws", s.wsServer)

	return s, nil
}

func (s *Service) Start() error {
	if err := s.engine.Start(); err != nil {
		return fmt.Errorf("failed to start media engine: %w", err)
	}

	if err := s.sigServer.Start(); err != nil {
		return fmt.Errorf("failed to start signaling server: %w", err)
	}

	s.wg.Add(2)
	go s.wsReader()
	go s.engineReader()

	if err := s.apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

// APIAddr returns the address the HTTP API is listening on.
func (s *Service) APIAddr() string {
	return s.apiServer.Addr()
}

func (s *Service) Stop() error {
	s.log.Info("roomd: shutting down")

	if err := s.apiServer.Stop(); err != nil {
		return fmt.Errorf("failed to stop API server: %w", err)
	}

	s.wsServer.Close()

	if err := s.sigServer.Stop(); err != nil {
		return fmt.Errorf("failed to stop signaling server: %w", err)
	}

	close(s.stopCh)
	s.wg.Wait()

	if err := s.engine.Stop(); err != nil {
		return fmt.Errorf("failed to stop media engine: %w", err)
	}

	if err := s.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}

	if s.ownedLog != nil {
		if err := s.ownedLog.Shutdown(); err != nil {
			return fmt.Errorf("failed to shutdown logger: %w", err)
		}
	}

	return nil
}
