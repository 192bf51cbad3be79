package driverfake

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-message-gateway/driver"
	"github.com/jrsteele09/go-message-gateway/sessions"
)

var ErrNotFound = errors.New("not found")

// Sent is a message accepted by SendMessage.
type Sent struct {
	ChatID string
	Body   string
}

type Option func(*Driver)

func WithInitError(err error) Option {
	return func(d *Driver) { d.initErr = err }
}

func WithSendError(err error) Option {
	return func(d *Driver) { d.sendErr = err }
}

func WithDestroyError(err error) Option {
	return func(d *Driver) { d.destroyErr = err }
}

func WithContact(c sessions.Contact) Option {
	return func(d *Driver) { d.contacts[c.ID] = c }
}

func WithProfilePic(contactID, url string) Option {
	return func(d *Driver) { d.pictures[contactID] = url }
}

func WithChat(c sessions.Chat) Option {
	return func(d *Driver) { d.chats[c.ID] = c }
}

func WithMedia(messageID string, m sessions.Media) Option {
	return func(d *Driver) { d.media[messageID] = m }
}

func WithQuoted(messageID string, q sessions.QuotedMessage) Option {
	return func(d *Driver) { d.quoted[messageID] = q }
}

// WithInitGate makes Initialize block until gate is closed or ctx is done.
func WithInitGate(gate <-chan struct{}) Option {
	return func(d *Driver) { d.initGate = gate }
}

// WithAutoPair makes Initialize show a QR code and, after delay, report the
// device as authenticated and ready.
func WithAutoPair(qr string, delay time.Duration) Option {
	return func(d *Driver) {
		d.autoPairQR = qr
		d.autoPairDelay = delay
	}
}

// Driver is an in-memory driver.Driver. Tests push protocol events with Emit.
type Driver struct {
	tenantID string
	events   chan driver.Event
	done     chan struct{}

	initErr       error
	sendErr       error
	destroyErr    error
	initGate      <-chan struct{}
	autoPairQR    string
	autoPairDelay time.Duration

	contacts map[string]sessions.Contact
	pictures map[string]string
	chats    map[string]sessions.Chat
	media    map[string]sessions.Media
	quoted   map[string]sessions.QuotedMessage

	mu          sync.Mutex
	sent        []Sent
	initialized bool
	destroyed   bool
}

var _ driver.Driver = (*Driver)(nil)

func New(tenantID string, options ...Option) *Driver {
	d := &Driver{
		tenantID: tenantID,
		events:   make(chan driver.Event, 16),
		done:     make(chan struct{}),
		contacts: make(map[string]sessions.Contact),
		pictures: make(map[string]string),
		chats:    make(map[string]sessions.Chat),
		media:    make(map[string]sessions.Media),
		quoted:   make(map[string]sessions.QuotedMessage),
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

func (d *Driver) TenantID() string {
	return d.tenantID
}

func (d *Driver) Initialize(ctx context.Context) error {
	if d.initGate != nil {
		select {
		case <-d.initGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if d.initErr != nil {
		return d.initErr
	}
	d.mu.Lock()
	d.initialized = true
	d.mu.Unlock()

	if d.autoPairQR != "" {
		go d.autoPair()
	}
	return nil
}

func (d *Driver) autoPair() {
	if !d.Emit(driver.Event{Kind: driver.EventQR, QR: d.autoPairQR}) {
		return
	}
	select {
	case <-time.After(d.autoPairDelay):
	case <-d.done:
		return
	}
	if d.Emit(driver.Event{Kind: driver.EventAuthenticated}) {
		d.Emit(driver.Event{Kind: driver.EventReady})
	}
}

func (d *Driver) SendMessage(ctx context.Context, chatID, body string) error {
	if d.sendErr != nil {
		return d.sendErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return errors.New("driver destroyed")
	}
	d.sent = append(d.sent, Sent{ChatID: chatID, Body: body})
	return nil
}

func (d *Driver) Destroy(ctx context.Context) error {
	d.mu.Lock()
	if !d.destroyed {
		d.destroyed = true
		close(d.done)
	}
	d.mu.Unlock()
	return d.destroyErr
}

func (d *Driver) Events() <-chan driver.Event {
	return d.events
}

// Emit queues ev for the adapter. It reports false once the driver is destroyed.
func (d *Driver) Emit(ev driver.Event) bool {
	select {
	case <-d.done:
		return false
	default:
	}
	select {
	case d.events <- ev:
		return true
	case <-d.done:
		return false
	}
}

// Deliver emits an inbound message, filling in an ID and timestamp when missing.
func (d *Driver) Deliver(raw driver.RawMessage) (driver.RawMessage, bool) {
	if raw.ID == "" {
		raw.ID = uuid.NewString()
	}
	if raw.Timestamp == 0 {
		raw.Timestamp = time.Now().Unix()
	}
	if raw.Type == "" {
		raw.Type = "chat"
	}
	return raw, d.Emit(driver.Event{Kind: driver.EventMessage, Message: &raw})
}

func (d *Driver) Sent() []Sent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Sent(nil), d.sent...)
}

func (d *Driver) Initialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialized
}

func (d *Driver) Destroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

func (d *Driver) Contact(ctx context.Context, msg driver.RawMessage) (sessions.Contact, error) {
	c, ok := d.contacts[msg.From]
	if !ok {
		return sessions.Contact{}, errors.Wrapf(ErrNotFound, "contact %s", msg.From)
	}
	return c, nil
}

func (d *Driver) ProfilePicURL(ctx context.Context, contactID string) (string, error) {
	url, ok := d.pictures[contactID]
	if !ok {
		return "", errors.Wrapf(ErrNotFound, "profile picture %s", contactID)
	}
	return url, nil
}

func (d *Driver) Chat(ctx context.Context, msg driver.RawMessage) (sessions.Chat, error) {
	c, ok := d.chats[msg.From]
	if !ok {
		return sessions.Chat{}, errors.Wrapf(ErrNotFound, "chat %s", msg.From)
	}
	return c, nil
}

func (d *Driver) DownloadMedia(ctx context.Context, msg driver.RawMessage) (sessions.Media, error) {
	m, ok := d.media[msg.ID]
	if !ok {
		return sessions.Media{}, errors.Wrapf(ErrNotFound, "media for %s", msg.ID)
	}
	return m, nil
}

func (d *Driver) QuotedMessage(ctx context.Context, msg driver.RawMessage) (sessions.QuotedMessage, error) {
	q, ok := d.quoted[msg.ID]
	if !ok {
		return sessions.QuotedMessage{}, errors.Wrapf(ErrNotFound, "quoted message for %s", msg.ID)
	}
	return q, nil
}

// Pool builds fake drivers and keeps them addressable by tenant.
type Pool struct {
	options []Option

	mu      sync.Mutex
	drivers map[string]*Driver
	fail    map[string]error
	tenant  map[string][]Option
}

func NewPool(options ...Option) *Pool {
	return &Pool{
		options: options,
		drivers: make(map[string]*Driver),
		fail:    make(map[string]error),
		tenant:  make(map[string][]Option),
	}
}

// FailNext makes the next construction for tenantID fail with err.
func (p *Pool) FailNext(tenantID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail[tenantID] = err
}

// Configure adds options applied to every driver later built for tenantID.
func (p *Pool) Configure(tenantID string, options ...Option) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tenant[tenantID] = append(p.tenant[tenantID], options...)
}

// Factory builds drivers with the pool options plus any per-call extras.
func (p *Pool) Factory(extra ...Option) driver.Factory {
	return func(tenantID string) (driver.Driver, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if err, ok := p.fail[tenantID]; ok {
			delete(p.fail, tenantID)
			return nil, err
		}
		opts := append(append([]Option(nil), p.options...), p.tenant[tenantID]...)
		d := New(tenantID, append(opts, extra...)...)
		p.drivers[tenantID] = d
		return d, nil
	}
}

// Get returns the most recent driver built for tenantID.
func (p *Pool) Get(tenantID string) (*Driver, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.drivers[tenantID]
	return d, ok
}
