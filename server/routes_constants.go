package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteIndex   = "/"
	RouteHealthz = "/healthz"
	RouteMetrics = "/metrics"

	// Token Routes
	RouteTokensGenerate = "/api/tokens/generate"
	RouteTokensValidate = "/api/tokens/validate"
	RouteTokensRevoke   = "/api/tokens/revoke/{clientId}"
	RouteTokensList     = "/api/tokens/list"
	RouteTokensInfo     = "/api/tokens/info"

	// Session Routes
	RouteClientCreate = "/client/create"
	RouteClient       = "/client/{clientId}"
	RouteClientQR     = "/client/{clientId}/qr"
	RouteClientStatus = "/client/{clientId}/status"
	RouteClientSend   = "/client/{clientId}/send"
	RouteClients      = "/clients"

	// Message Routes
	RouteMessages       = "/client/{clientId}/messages"
	RouteMessagesLatest = "/client/{clientId}/messages/latest"
	RouteMessagesSearch = "/client/{clientId}/messages/search"
	RouteMessagesStats  = "/client/{clientId}/messages/stats"

	// Live event routes
	RouteWebSocket      = "/ws"
	RouteWebSocketStats = "/websocket/stats"
)
