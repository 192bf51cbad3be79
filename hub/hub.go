package hub

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	gwerrors "github.com/jrsteele09/go-message-gateway/internal/errors"
	"github.com/jrsteele09/go-message-gateway/internal/metrics"
	"github.com/jrsteele09/go-message-gateway/permission"
	"github.com/jrsteele09/go-message-gateway/sessions"
	"github.com/jrsteele09/go-message-gateway/token"
)

// Conn is a live transport connection. Send must not block: implementations queue the
// event or fail fast so one slow connection cannot hold up delivery to the others.
type Conn interface {
	ID() string
	Send(Event) error
}

// TokenValidator resolves connection secrets.
type TokenValidator interface {
	Validate(secret string) (*token.Validation, bool)
}

// SessionLister enumerates live sessions.
type SessionLister interface {
	List() []sessions.Snapshot
}

type client struct {
	conn          Conn
	identity      *permission.Identity
	subscriptions map[string]struct{}
	subscribedTo  []string // subscription order, for stable listings
}

func (c *client) subscribed(tenantID string) bool {
	_, ok := c.subscriptions[tenantID]
	return ok
}

// Hub fans session events out to authenticated, subscribed connections.
type Hub struct {
	tokens   TokenValidator
	sessions SessionLister
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	nowFunc  func() time.Time

	mu      sync.RWMutex
	clients map[string]*client
}

var _ sessions.Publisher = (*Hub)(nil)

type Option func(*Hub)

func WithLogger(logger zerolog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(h *Hub) {
		h.nowFunc = now
	}
}

func New(tokens TokenValidator, sessionLister SessionLister, options ...Option) (*Hub, error) {
	if tokens == nil {
		return nil, errors.New("[hub New] token validator is required")
	}
	if sessionLister == nil {
		return nil, errors.New("[hub New] session lister is required")
	}
	h := &Hub{
		tokens:   tokens,
		sessions: sessionLister,
		logger:   zerolog.Nop(),
		nowFunc:  time.Now,
		clients:  make(map[string]*client),
	}
	for _, opt := range options {
		opt(h)
	}
	return h, nil
}

// Connect registers an unauthenticated connection.
func (h *Hub) Connect(conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn.ID()]; ok {
		return
	}
	h.clients[conn.ID()] = &client{conn: conn, subscriptions: make(map[string]struct{})}
	h.metrics.ConnectionOpened()
	h.logger.Debug().Str("conn", conn.ID()).Msg("connection opened")
}

// Authenticate validates secret and binds the resulting identity to the connection.
// A failure leaves the connection unauthenticated and open.
func (h *Hub) Authenticate(connID, secret string) error {
	h.mu.Lock()
	c, ok := h.clients[connID]
	if !ok {
		h.mu.Unlock()
		return errors.Wrapf(gwerrors.ErrNotFound, "connection %s", connID)
	}
	if secret == "" {
		h.mu.Unlock()
		h.send(c.conn, Event{Name: EventAuthenticationError, Data: ErrorData{
			Error:   "token missing",
			Message: "provide a valid token to authenticate",
		}})
		return errors.Wrap(gwerrors.ErrInvalidInput, "[Authenticate] token is required")
	}

	validation, valid := h.tokens.Validate(secret)
	if !valid {
		h.mu.Unlock()
		h.send(c.conn, Event{Name: EventAuthenticationError, Data: ErrorData{
			Error:   "invalid or expired token",
			Message: "the token provided is not valid or has expired",
		}})
		return gwerrors.ErrUnauthenticated
	}

	if c.identity == nil {
		h.metrics.ConnectionAuthenticated()
	}
	c.identity = &permission.Identity{TenantID: validation.TenantID, IsMaster: validation.IsMaster}
	// A new identity starts with no subscriptions.
	c.subscriptions = make(map[string]struct{})
	c.subscribedTo = nil
	h.mu.Unlock()

	h.send(c.conn, Event{Name: EventAuthenticated, Data: map[string]any{
		"success":  true,
		"message":  "authenticated",
		"socketId": connID,
		"clientId": validation.TenantID,
		"isMaster": validation.IsMaster,
	}})
	h.logger.Info().Str("conn", connID).Str("tenant", validation.TenantID).Msg("connection authenticated")
	return nil
}

// Subscribe adds tenantID to the connection's subscriptions. Repeating it is a no-op success.
func (h *Hub) Subscribe(connID, tenantID string) error {
	h.mu.Lock()
	c, ok := h.clients[connID]
	if !ok {
		h.mu.Unlock()
		return errors.Wrapf(gwerrors.ErrNotFound, "connection %s", connID)
	}
	if c.identity == nil {
		h.mu.Unlock()
		h.send(c.conn, Event{Name: EventSubscriptionError, Data: ErrorData{
			Error:   "not authenticated",
			Message: "authenticate before subscribing",
		}})
		return gwerrors.ErrUnauthenticated
	}
	if tenantID == "" {
		h.mu.Unlock()
		h.send(c.conn, Event{Name: EventSubscriptionError, Data: ErrorData{
			Error:   "clientId required",
			Message: "provide the id of the session to subscribe to",
		}})
		return errors.Wrap(gwerrors.ErrInvalidInput, "[Subscribe] tenant id is required")
	}
	if err := c.identity.Check(tenantID); err != nil {
		h.mu.Unlock()
		h.send(c.conn, Event{Name: EventSubscriptionError, Data: ErrorData{
			Error:   "access denied",
			Message: "token is not allowed to access this session",
		}})
		return err
	}

	if !c.subscribed(tenantID) {
		c.subscriptions[tenantID] = struct{}{}
		c.subscribedTo = append(c.subscribedTo, tenantID)
	}
	h.mu.Unlock()

	h.send(c.conn, Event{Name: EventSubscribed, Data: map[string]any{
		"success":  true,
		"clientId": tenantID,
	}})
	h.logger.Debug().Str("conn", connID).Str("tenant", tenantID).Msg("subscribed")
	return nil
}

// Unsubscribe removes tenantID from the connection's subscriptions. Absent subscriptions are a no-op success.
func (h *Hub) Unsubscribe(connID, tenantID string) error {
	h.mu.Lock()
	c, ok := h.clients[connID]
	if !ok {
		h.mu.Unlock()
		return errors.Wrapf(gwerrors.ErrNotFound, "connection %s", connID)
	}
	if c.identity == nil {
		h.mu.Unlock()
		return gwerrors.ErrUnauthenticated
	}
	c.unsubscribe(tenantID)
	h.mu.Unlock()

	h.send(c.conn, Event{Name: EventUnsubscribed, Data: map[string]any{
		"success":  true,
		"clientId": tenantID,
	}})
	return nil
}

func (c *client) unsubscribe(tenantID string) {
	if !c.subscribed(tenantID) {
		return
	}
	delete(c.subscriptions, tenantID)
	for i, id := range c.subscribedTo {
		if id == tenantID {
			c.subscribedTo = append(c.subscribedTo[:i], c.subscribedTo[i+1:]...)
			break
		}
	}
}

// ClientsList is the payload of EventClientsList.
type ClientsList struct {
	Clients      []sessions.Snapshot `json:"clients"`
	SubscribedTo []string            `json:"subscribedTo"`
}

// ListVisibleSessions returns the sessions the connection may see plus its current subscriptions.
func (h *Hub) ListVisibleSessions(connID string) (*ClientsList, error) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	if !ok {
		h.mu.RUnlock()
		return nil, errors.Wrapf(gwerrors.ErrNotFound, "connection %s", connID)
	}
	if c.identity == nil {
		h.mu.RUnlock()
		h.send(c.conn, Event{Name: EventClientsListError, Data: ErrorData{Error: "not authenticated"}})
		return nil, gwerrors.ErrUnauthenticated
	}
	identity := *c.identity
	subscribedTo := append([]string(nil), c.subscribedTo...)
	h.mu.RUnlock()

	// The session registry is called without the hub lock held.
	visible := make([]sessions.Snapshot, 0)
	for _, snap := range h.sessions.List() {
		if identity.IsMaster || identity.Can(snap.TenantID) {
			visible = append(visible, snap)
		}
	}
	if subscribedTo == nil {
		subscribedTo = []string{}
	}
	list := &ClientsList{Clients: visible, SubscribedTo: subscribedTo}
	h.send(c.conn, Event{Name: EventClientsList, Data: list})
	return list, nil
}

// Close forgets the connection and all of its subscriptions. It is safe to call more than once.
func (h *Hub) Close(connID string) {
	h.mu.Lock()
	c, ok := h.clients[connID]
	if ok {
		delete(h.clients, connID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	h.metrics.ConnectionClosed(c.identity != nil)
	h.logger.Debug().Str("conn", connID).Msg("connection closed")
}

// Identity returns the identity bound to a connection, if authenticated.
func (h *Hub) Identity(connID string) (permission.Identity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connID]
	if !ok || c.identity == nil {
		return permission.Identity{}, false
	}
	return *c.identity, true
}

// Publish implements sessions.Publisher.
func (h *Hub) Publish(tenantID string, kind sessions.EventKind, payload any) {
	event, ok := h.wireEvent(tenantID, kind, payload)
	if !ok {
		h.logger.Warn().Str("tenant", tenantID).Str("kind", string(kind)).Msg("unsupported session event")
		return
	}
	h.Broadcast(tenantID, event)
}

// Broadcast delivers event to every authenticated connection subscribed to tenantID.
// A failing connection is logged and skipped.
func (h *Hub) Broadcast(tenantID string, event Event) int {
	h.mu.RLock()
	targets := make([]Conn, 0)
	for _, c := range h.clients {
		if c.identity != nil && c.subscribed(tenantID) && c.identity.Can(tenantID) {
			targets = append(targets, c.conn)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if h.send(conn, event) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) wireEvent(tenantID string, kind sessions.EventKind, payload any) (Event, bool) {
	now := h.nowFunc()
	switch kind {
	case sessions.EventNewMessage:
		return Event{Name: EventNewMessage, Data: map[string]any{
			"clientId":  tenantID,
			"message":   payload,
			"timestamp": now,
		}}, true
	case sessions.EventStatusChange:
		data := map[string]any{"clientId": tenantID, "timestamp": now}
		switch p := payload.(type) {
		case sessions.StatusChange:
			data["status"] = p.Status
			data["timestamp"] = p.Timestamp
		case sessions.Status:
			data["status"] = p
		default:
			return Event{}, false
		}
		return Event{Name: EventClientStatusChange, Data: data}, true
	case sessions.EventQRCode:
		qr, ok := payload.(sessions.QRCode)
		if !ok {
			return Event{}, false
		}
		return Event{Name: EventQRCode, Data: map[string]any{
			"clientId":  tenantID,
			"qrCode":    qr.Code,
			"timestamp": qr.Timestamp,
		}}, true
	}
	return Event{}, false
}

func (h *Hub) send(conn Conn, event Event) bool {
	if err := conn.Send(event); err != nil {
		h.metrics.EventDropped(event.Name)
		h.logger.Warn().Err(err).Str("conn", conn.ID()).Str("event", event.Name).Msg("event not delivered")
		return false
	}
	h.metrics.EventDelivered(event.Name)
	return true
}

// Stats summarises live connections and subscriptions per tenant.
type Stats struct {
	TotalConnections         int            `json:"totalConnections"`
	AuthenticatedConnections int            `json:"authenticatedConnections"`
	Subscriptions            map[string]int `json:"subscriptions"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := Stats{
		TotalConnections: len(h.clients),
		Subscriptions:    make(map[string]int),
	}
	for _, c := range h.clients {
		if c.identity != nil {
			stats.AuthenticatedConnections++
		}
		for tenantID := range c.subscriptions {
			stats.Subscriptions[tenantID]++
		}
	}
	return stats
}

// Subscribers returns the IDs of connections subscribed to tenantID, sorted.
func (h *Hub) Subscribers(tenantID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0)
	for id, c := range h.clients {
		if c.subscribed(tenantID) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
