package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/lanremote/internal/config"
	"github.com/berfenger/lanremote/internal/core/service"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/gorilla/websocket"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
)

const (
	ACTOR_REQUEST_TIMEOUT = 10 * time.Second
	SYNC_REQUEST_TIMEOUT  = time.Minute
)

// Services are the shared core values the HTTP layer calls into directly.
type Services struct {
	Registry    *service.Registry
	Connection  *service.ServerConnection
	Gateway     *service.Gateway
	EventStream *eventstream.EventStream
}

type Server struct {
	port             uint
	httpLog          bool
	discoveryTimeout time.Duration
	rootContext      *actor.RootContext
	masterActor      *actor.PID
	registry         *service.Registry
	connection       *service.ServerConnection
	gateway          *service.Gateway
	eventStream      *eventstream.EventStream
	upgrader         websocket.Upgrader
	logger           *zap.Logger
}

func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, services Services, logger *zap.Logger) *http.Server {
	NewServer := newServer(cfg, rootContext, masterActor, services, logger)

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: discoveryBudget(cfg) + 10*time.Second,
	}

	return server
}

func newServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, services Services, logger *zap.Logger) *Server {
	return &Server{
		port:             cfg.Port,
		httpLog:          cfg.HttpLog,
		discoveryTimeout: discoveryBudget(cfg),
		rootContext:      rootContext,
		masterActor:      masterActor,
		registry:         services.Registry,
		connection:       services.Connection,
		gateway:          services.Gateway,
		eventStream:      services.EventStream,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the feed is read-only and meant for LAN dashboards
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// discoveryBudget bounds how long a client waits on POST /server/discover:
// every concurrent round timing out, plus pacing and the mDNS pre-step.
func discoveryBudget(cfg config.Config) time.Duration {
	hosts := cfg.Discovery.HostLast - cfg.Discovery.HostFirst + 1
	concurrency := max(cfg.Discovery.Concurrency, 1)
	rounds := (hosts + concurrency - 1) / concurrency
	budget := time.Duration(rounds)*cfg.Discovery.PerHostTimeout() + ACTOR_REQUEST_TIMEOUT
	if pps := cfg.Discovery.ProbesPerSecond; pps > 0 {
		budget += time.Duration(float64(hosts) / pps * float64(time.Second))
	}
	if cfg.Discovery.MDNSEnable {
		budget += cfg.Discovery.MDNSTimeout()
	}
	return budget
}
