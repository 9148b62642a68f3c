package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/pokerlobby/broadcast"
	"github.com/wfunc/pokerlobby/config"
	"github.com/wfunc/pokerlobby/holdem"
	"github.com/wfunc/pokerlobby/logger"
	"github.com/wfunc/pokerlobby/monitor"
	"github.com/wfunc/pokerlobby/network"
	"github.com/wfunc/pokerlobby/room"
	"github.com/wfunc/pokerlobby/rpc"
	"github.com/wfunc/pokerlobby/session"
)

type GameServer struct {
	cfg            *config.Config
	upgrader       websocket.Upgrader
	lobby          *room.Manager
	sessionManager *session.Manager
	broadcaster    *broadcast.SessionBroadcaster
	monitor        *monitor.Monitor

	mutex         sync.Mutex // guards the listeners below, set by Start
	httpServer    *http.Server
	metricsServer *http.Server
	rpcServer     *rpc.Server
	shutdownChan  chan struct{}
}

// RoomConfig turns the game settings into the per-room rules, with the bundled
// hold'em engine.
func RoomConfig(game config.GameConfig, mon *monitor.Monitor) room.Config {
	opts := holdem.Options{
		SmallBlind: game.SmallBlind,
		BigBlind:   game.BigBlind,
		MaxPlayers: game.MaxPlayers,
	}
	return room.Config{
		MinPlayers:        game.MinPlayers,
		MaxPlayers:        game.MaxPlayers,
		CountdownTicks:    game.CountdownTicks,
		CountdownInterval: game.CountdownInterval,
		DecisionTimeout:   game.DecisionTimeout,
		MinPromptDelay:    game.MinPromptDelay,
		MaxPromptDelay:    game.MaxPromptDelay,
		StartingChips:     game.StartingChips,
		Factory:           holdem.Factory(opts),
		Monitor:           mon,
	}
}

func NewGameServer(cfg *config.Config, mon *monitor.Monitor) *GameServer {
	s := &GameServer{
		cfg:            cfg,
		sessionManager: session.NewManager(),
		monitor:        mon,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	// 初始化广播器
	s.broadcaster = broadcast.NewSessionBroadcaster(s.sessionManager, mon)
	s.lobby = room.NewManager(RoomConfig(cfg.Game, mon), s.broadcaster)
	return s
}

// Lobby exposes the room directory.
func (s *GameServer) Lobby() *room.Manager {
	return s.lobby
}

func (s *GameServer) Sessions() *session.Manager {
	return s.sessionManager
}

// Handler serves the game websocket.
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Start runs the metrics and admin listeners in the background and serves
// websockets until Shutdown.
func (s *GameServer) Start() error {
	// 初始化RPC服务器
	admin := rpc.NewAdminService(s.lobby, s.sessionManager.Count)
	rpcServer, err := rpc.Listen(s.cfg.Server.RPCAddress, admin)
	if err != nil {
		return err
	}
	s.mutex.Lock()
	s.rpcServer = rpcServer
	s.mutex.Unlock()
	go func() {
		if err := rpcServer.Start(); err != nil {
			logger.Log.Errorf("RPC server stopped: %v", err)
		}
	}()

	if s.cfg.Server.MetricsAddress != "" && s.monitor != nil {
		metricsServer := &http.Server{Addr: s.cfg.Server.MetricsAddress, Handler: s.monitor.Handler()}
		s.mutex.Lock()
		s.metricsServer = metricsServer
		s.mutex.Unlock()
		go func() {
			logger.Log.Infof("Metrics listening on %s", s.cfg.Server.MetricsAddress)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Log.Errorf("Metrics server stopped: %v", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              s.cfg.Server.HTTPAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mutex.Lock()
	s.httpServer = httpServer
	s.mutex.Unlock()
	logger.Log.Infof("Game server listening on %s", s.cfg.Server.HTTPAddress)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *GameServer) Shutdown(ctx context.Context) error {
	close(s.shutdownChan)
	s.mutex.Lock()
	rpcServer, metricsServer, httpServer := s.rpcServer, s.metricsServer, s.httpServer
	s.mutex.Unlock()

	if rpcServer != nil {
		rpcServer.Stop()
	}
	if metricsServer != nil {
		metricsServer.Shutdown(ctx)
	}
	var err error
	if httpServer != nil {
		err = httpServer.Shutdown(ctx)
	}
	// hijacked websockets are not tracked by http.Server
	for _, sess := range s.sessionManager.All() {
		sess.Close()
	}
	return err
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	wsConn := network.NewWSConnection(conn, s.cfg.Server.SendQueue)
	wsConn.SetHeartbeat(s.cfg.Server.Heartbeat)
	s.handleConnection(wsConn)
}

// handleConnection owns one connection from accept to disconnect.
func (s *GameServer) handleConnection(conn network.Connection) {
	sess := session.NewSession(uuid.NewString(), conn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlineConnections()

	logger.Log.Infow("connection opened", "session", sess.GetID(), "remote", conn.RemoteAddr())

	defer func() {
		s.lobby.Disconnect(sess.GetID())
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlineConnections()
		conn.Close()
		logger.Log.Infow("connection closed", "session", sess.GetID(), "remote", conn.RemoteAddr())
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
		}

		raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleMessage(sess, raw)
	}
}

func (s *GameServer) handleMessage(sess *session.Session, raw string) {
	start := time.Now()
	sess.Touch()
	s.monitor.IncMessagesReceived()
	logger.Log.Debugw("message", "session", sess.GetID(), "raw", raw)

	s.lobby.HandleMessage(sess, raw)
	s.monitor.ObserveMessageLatency(time.Since(start))
}
