package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-message-gateway/driver"
	"github.com/jrsteele09/go-message-gateway/hub"
	"github.com/jrsteele09/go-message-gateway/internal/config"
	"github.com/jrsteele09/go-message-gateway/sessions"
	"github.com/jrsteele09/go-message-gateway/token"
)

// Dependencies are the registries and services the HTTP layer fronts.
type Dependencies struct {
	Tokens   *token.Registry
	Sessions *sessions.Registry
	Hub      *hub.Hub
	Adapter  *driver.Adapter
	Gatherer prometheus.Gatherer
}

type Server struct {
	env       string // Environment (e.g., "DEV", "PROD")
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	startedAt time.Time

	tokens   *token.Registry
	sessions *sessions.Registry
	hub      *hub.Hub
	adapter  *driver.Adapter
	gatherer prometheus.Gatherer

	upgrader  websocket.Upgrader
	sendQueue int
}

func New(cfg config.Config, deps Dependencies) (*Server, error) {
	switch {
	case deps.Tokens == nil:
		return nil, fmt.Errorf("[Server New] token registry is required")
	case deps.Sessions == nil:
		return nil, fmt.Errorf("[Server New] session registry is required")
	case deps.Hub == nil:
		return nil, fmt.Errorf("[Server New] event hub is required")
	case deps.Adapter == nil:
		return nil, fmt.Errorf("[Server New] driver adapter is required")
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		env:       cfg.GetEnv(),
		mux:       http.NewServeMux(),
		config:    cfg,
		startedAt: time.Now(),
		tokens:    deps.Tokens,
		sessions:  deps.Sessions,
		hub:       deps.Hub,
		adapter:   deps.Adapter,
		gatherer:  deps.Gatherer,
		sendQueue: cfg.GetWebsocketSendQueue(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	log.Debug().Msgf("[%s] %s", color+paddedMethod+ResetColor, path)
}

// checkOrigin applies the CORS allow-list to WebSocket upgrades.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	allowed := s.config.GetAllowedOrigins()
	return allowed.IsAllowedOrigin("*") || allowed.IsAllowedOrigin(origin)
}
