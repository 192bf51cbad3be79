package hub

// Wire event names sent to live connections.
const (
	EventAuthenticated       = "authenticated"
	EventAuthenticationError = "authentication_error"
	EventSubscribed          = "subscribed"
	EventUnsubscribed        = "unsubscribed"
	EventSubscriptionError   = "subscription_error"
	EventClientsList         = "clients_list"
	EventClientsListError    = "clients_list_error"
	EventNewMessage          = "new_message"
	EventClientStatusChange  = "client_status_change"
	EventQRCode              = "qr_code"
	EventError               = "error"
)

// Commands accepted from live connections.
const (
	CommandAuthenticate = "authenticate"
	CommandSubscribe    = "subscribe"
	CommandUnsubscribe  = "unsubscribe"
	CommandListClients  = "list_clients"
)

// Event is one frame pushed to a connection.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// ErrorData is the payload of every *_error event. It never names the tenant that was refused.
type ErrorData struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
