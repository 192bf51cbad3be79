package server

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteIndex+"{$}", ChainMiddleware(s.IndexHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteHealthz, ChainMiddleware(s.HealthzHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// Tokens
	s.RegisterRouteHandler("POST "+RouteTokensGenerate, ChainMiddleware(s.GenerateTokenHandler(), s.APIMiddleware(s.RequireAuth(), s.RequireMaster())...))
	s.RegisterRouteHandler("POST "+RouteTokensValidate, ChainMiddleware(s.ValidateTokenHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("DELETE "+RouteTokensRevoke, ChainMiddleware(s.RevokeTokenHandler(), s.APIMiddleware(s.RequireAuth(), s.RequireMaster())...))
	s.RegisterRouteHandler("GET "+RouteTokensList, ChainMiddleware(s.ListTokensHandler(), s.APIMiddleware(s.RequireAuth(), s.RequireMaster())...))
	s.RegisterRouteHandler("GET "+RouteTokensInfo, ChainMiddleware(s.TokenInfoHandler(), s.APIMiddleware(s.RequireAuth())...))

	// Sessions
	s.RegisterRouteHandler("POST "+RouteClientCreate, ChainMiddleware(s.CreateSessionHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("GET "+RouteClientQR, ChainMiddleware(s.QRCodeHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("GET "+RouteClientStatus, ChainMiddleware(s.StatusHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("POST "+RouteClientSend, ChainMiddleware(s.SendMessageHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("DELETE "+RouteClient, ChainMiddleware(s.RemoveSessionHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("GET "+RouteClients, ChainMiddleware(s.ListSessionsHandler(), s.APIMiddleware(s.RequireAuth())...))

	// Messages
	s.RegisterRouteHandler("GET "+RouteMessages, ChainMiddleware(s.QueryMessagesHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("GET "+RouteMessagesLatest, ChainMiddleware(s.LatestMessagesHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("GET "+RouteMessagesSearch, ChainMiddleware(s.SearchMessagesHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("GET "+RouteMessagesStats, ChainMiddleware(s.MessageStatsHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("DELETE "+RouteMessages, ChainMiddleware(s.ClearMessagesHandler(), s.APIMiddleware(s.RequireAuth())...))

	// Live events. Authentication happens in-band after the upgrade.
	s.RegisterRouteHandler("GET "+RouteWebSocketStats, ChainMiddleware(s.WebSocketStatsHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteFunc("GET "+RouteWebSocket, s.WebSocketHandler())
}
