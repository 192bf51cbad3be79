package driver

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	gwerrors "github.com/jrsteele09/go-message-gateway/internal/errors"
	"github.com/jrsteele09/go-message-gateway/internal/metrics"
	"github.com/jrsteele09/go-message-gateway/sessions"
)

const defaultEnrichTimeout = 10 * time.Second

// SessionStore is the part of the session registry the adapter drives.
type SessionStore interface {
	Create(tenantID string) (*sessions.Snapshot, error)
	RecordStatus(tenantID string, status sessions.Status) error
	RecordQR(tenantID, code string) error
	AppendMessage(tenantID string, msg *sessions.InboundMessage) error
	Remove(tenantID string) error
	RemoveAll() []string
}

var _ SessionStore = (*sessions.Registry)(nil)

// SendResult describes an accepted outbound message.
type SendResult struct {
	To        string    `json:"to"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type binding struct {
	driver Driver
	cancel context.CancelFunc
	done   chan struct{}
}

// Adapter binds one Driver per tenant to the session registry. Driver events are
// pumped in arrival order, one goroutine per tenant.
type Adapter struct {
	factory       Factory
	sessions      SessionStore
	notifier      MessageNotifier
	logger        zerolog.Logger
	metrics       *metrics.Metrics
	nowFunc       func() time.Time
	enrichTimeout time.Duration

	mu       sync.Mutex
	bindings map[string]*binding
	closed   bool
	creating sync.WaitGroup // in-flight Create calls, joined by Shutdown
}

type Option func(*Adapter)

func WithLogger(logger zerolog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Adapter) {
		a.metrics = m
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(a *Adapter) {
		a.nowFunc = now
	}
}

// WithNotifier registers the sink told about every stored message.
func WithNotifier(n MessageNotifier) Option {
	return func(a *Adapter) {
		if n != nil {
			a.notifier = n
		}
	}
}

// WithEnrichTimeout bounds each individual metadata lookup.
func WithEnrichTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.enrichTimeout = d
		}
	}
}

func NewAdapter(factory Factory, store SessionStore, options ...Option) (*Adapter, error) {
	if factory == nil {
		return nil, errors.New("[driver NewAdapter] factory is required")
	}
	if store == nil {
		return nil, errors.New("[driver NewAdapter] session store is required")
	}
	a := &Adapter{
		factory:       factory,
		sessions:      store,
		notifier:      nopNotifier{},
		logger:        zerolog.Nop(),
		nowFunc:       time.Now,
		enrichTimeout: defaultEnrichTimeout,
		bindings:      make(map[string]*binding),
	}
	for _, opt := range options {
		opt(a)
	}
	return a, nil
}

// Create registers the session, builds and initializes its driver. On any driver
// failure the session is removed again and ErrUpstreamFailure is returned.
func (a *Adapter) Create(ctx context.Context, tenantID string) (*sessions.Snapshot, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errors.Wrap(gwerrors.ErrInvalidInput, "clientId is required")
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, errors.Wrap(gwerrors.ErrUpstreamFailure, "gateway is shutting down")
	}
	a.creating.Add(1)
	a.mu.Unlock()
	defer a.creating.Done()

	// The registry entry reserves the tenant ID against concurrent creates.
	snapshot, err := a.sessions.Create(tenantID)
	if err != nil {
		return nil, err
	}

	drv, err := a.factory(tenantID)
	if err != nil {
		_ = a.sessions.Remove(tenantID)
		a.logger.Error().Err(err).Str("tenant", tenantID).Msg("driver construction failed")
		return nil, errors.Wrapf(gwerrors.ErrUpstreamFailure, "create driver for %s: %v", tenantID, err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	b := &binding{driver: drv, cancel: cancel, done: make(chan struct{})}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		cancel()
		if err := drv.Destroy(ctx); err != nil {
			a.metrics.TeardownFailed()
			a.logger.Error().Err(err).Str("tenant", tenantID).Msg("driver teardown failed")
		}
		_ = a.sessions.Remove(tenantID)
		return nil, errors.Wrap(gwerrors.ErrUpstreamFailure, "gateway is shutting down")
	}
	a.bindings[tenantID] = b
	a.mu.Unlock()

	go a.pump(pumpCtx, tenantID, b)

	if err := drv.Initialize(ctx); err != nil {
		a.logger.Error().Err(err).Str("tenant", tenantID).Msg("driver initialization failed")
		a.teardown(ctx, tenantID, b)
		return nil, errors.Wrapf(gwerrors.ErrUpstreamFailure, "initialize driver for %s: %v", tenantID, err)
	}

	a.mu.Lock()
	current := a.bindings[tenantID]
	a.mu.Unlock()
	if current != b {
		return nil, errors.Wrapf(gwerrors.ErrUpstreamFailure, "session %s was torn down during initialization", tenantID)
	}

	a.logger.Info().Str("tenant", tenantID).Msg("session created")
	return snapshot, nil
}

// SendMessage delivers body to recipient through the tenant's driver. A recipient
// without an '@' is treated as a phone number for an individual chat.
func (a *Adapter) SendMessage(ctx context.Context, tenantID, recipient, body string) (*SendResult, error) {
	if recipient == "" || body == "" {
		return nil, errors.Wrap(gwerrors.ErrInvalidInput, "number and message are required")
	}
	a.mu.Lock()
	b, ok := a.bindings[tenantID]
	a.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(gwerrors.ErrNotFound, "session %s", tenantID)
	}

	chatID := normalizeChatID(recipient)
	if err := b.driver.SendMessage(ctx, chatID, body); err != nil {
		a.logger.Error().Err(err).Str("tenant", tenantID).Str("to", chatID).Msg("send failed")
		return nil, errors.Wrapf(gwerrors.ErrUpstreamFailure, "send to %s: %v", chatID, err)
	}
	return &SendResult{To: chatID, Message: body, Timestamp: a.nowFunc()}, nil
}

// Remove destroys the tenant's driver and deletes its session. A failing driver
// teardown is logged; the session is removed regardless.
func (a *Adapter) Remove(ctx context.Context, tenantID string) error {
	if !a.teardown(ctx, tenantID, nil) {
		return errors.Wrapf(gwerrors.ErrNotFound, "session %s", tenantID)
	}
	a.logger.Info().Str("tenant", tenantID).Msg("session removed")
	return nil
}

// Shutdown tears down every live driver, waits for in-flight creates to finish
// their own teardown and clears the session registry. Later calls to Create fail.
func (a *Adapter) Shutdown(ctx context.Context) {
	a.mu.Lock()
	a.closed = true
	tenants := make([]string, 0, len(a.bindings))
	for tenantID := range a.bindings {
		tenants = append(tenants, tenantID)
	}
	a.mu.Unlock()

	for _, tenantID := range tenants {
		a.teardown(ctx, tenantID, nil)
	}

	created := make(chan struct{})
	go func() {
		a.creating.Wait()
		close(created)
	}()
	select {
	case <-created:
	case <-ctx.Done():
		a.logger.Warn().Msg("session creation still in flight at shutdown")
	}

	if removed := a.sessions.RemoveAll(); len(removed) > 0 {
		a.logger.Warn().Strs("tenants", removed).Msg("sessions without a driver removed at shutdown")
	}
	a.logger.Info().Int("sessions", len(tenants)).Msg("driver adapter shut down")
}

// Active reports whether the tenant has a live driver.
func (a *Adapter) Active(tenantID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.bindings[tenantID]
	return ok
}

// teardown detaches and destroys the tenant's binding. A non-nil want restricts it
// to that binding. It reports whether anything was torn down.
func (a *Adapter) teardown(ctx context.Context, tenantID string, want *binding) bool {
	a.mu.Lock()
	b, ok := a.bindings[tenantID]
	if ok && (want == nil || b == want) {
		delete(a.bindings, tenantID)
	} else {
		ok = false
	}
	a.mu.Unlock()
	if !ok {
		return false
	}

	if err := b.driver.Destroy(ctx); err != nil {
		a.metrics.TeardownFailed()
		a.logger.Error().Err(err).Str("tenant", tenantID).Msg("driver teardown failed")
	}
	b.cancel()
	select {
	case <-b.done:
	case <-ctx.Done():
		a.logger.Warn().Str("tenant", tenantID).Msg("event pump still draining")
	}
	if err := a.sessions.Remove(tenantID); err != nil && !gwerrors.Is(err, gwerrors.ErrNotFound) {
		a.logger.Error().Err(err).Str("tenant", tenantID).Msg("session removal failed")
	}
	return true
}

func (a *Adapter) pump(ctx context.Context, tenantID string, b *binding) {
	defer close(b.done)
	events := b.driver.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.handle(ctx, tenantID, b.driver, ev)
		}
	}
}

func (a *Adapter) handle(ctx context.Context, tenantID string, drv Driver, ev Event) {
	var err error
	switch ev.Kind {
	case EventQR:
		err = a.sessions.RecordQR(tenantID, ev.QR)
	case EventReady:
		err = a.sessions.RecordStatus(tenantID, sessions.StatusReady)
	case EventAuthenticated:
		err = a.sessions.RecordStatus(tenantID, sessions.StatusAuthenticated)
	case EventAuthFailure:
		a.logger.Warn().Str("tenant", tenantID).Str("reason", ev.Reason).Msg("driver authentication failed")
		err = a.sessions.RecordStatus(tenantID, sessions.StatusAuthFailure)
	case EventDisconnected:
		a.logger.Warn().Str("tenant", tenantID).Str("reason", ev.Reason).Msg("driver disconnected")
		err = a.sessions.RecordStatus(tenantID, sessions.StatusDisconnected)
	case EventMessage:
		if ev.Message == nil {
			return
		}
		msg := a.enrich(ctx, tenantID, drv, *ev.Message)
		msg.ReceivedAt = a.nowFunc()
		if err = a.sessions.AppendMessage(tenantID, msg); err == nil {
			a.metrics.MessageIngested(msg.Type)
			a.notifier.Notify(tenantID, msg)
		}
	default:
		a.logger.Debug().Str("tenant", tenantID).Str("kind", string(ev.Kind)).Msg("ignoring driver event")
		return
	}
	if err != nil {
		a.logger.Debug().Err(err).Str("tenant", tenantID).Str("kind", string(ev.Kind)).Msg("driver event not recorded")
	}
}
