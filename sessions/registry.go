package sessions

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	gwerrors "github.com/jrsteele09/go-message-gateway/internal/errors"
	"github.com/jrsteele09/go-message-gateway/internal/metrics"
)

const DefaultCapacity = 1000

type session struct {
	mu        sync.Mutex
	tenantID  string
	status    Status
	lastQR    *QRCode
	messages  *messageBuffer
	createdAt time.Time
	removed   bool
}

func (s *session) snapshotLocked() Snapshot {
	return Snapshot{
		TenantID:     s.tenantID,
		Status:       s.status,
		IsReady:      s.status == StatusReady,
		HasQR:        s.lastQR != nil,
		MessageCount: s.messages.count(),
		CreatedAt:    s.createdAt,
	}
}

// Registry tracks every live tenant session and its bounded inbound message history.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]*session
	publisher Publisher
	capacity  int
	nowFunc   func() time.Time
	metrics   *metrics.Metrics
}

type RegistryOption func(*Registry)

// WithCapacity sets the per-tenant message buffer size.
func WithCapacity(capacity int) RegistryOption {
	return func(r *Registry) {
		r.capacity = capacity
	}
}

func WithNowFunc(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.nowFunc = now
	}
}

func WithPublisher(p Publisher) RegistryOption {
	return func(r *Registry) {
		r.publisher = p
	}
}

func WithMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

func NewRegistry(options ...RegistryOption) *Registry {
	r := &Registry{
		sessions:  make(map[string]*session),
		publisher: nopPublisher{},
		capacity:  DefaultCapacity,
		nowFunc:   time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	if r.capacity <= 0 {
		r.capacity = DefaultCapacity
	}
	if r.publisher == nil {
		r.publisher = nopPublisher{}
	}
	return r
}

// SetPublisher wires the broadcaster after construction. It must be called before any session exists.
func (r *Registry) SetPublisher(p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p == nil {
		p = nopPublisher{}
	}
	r.publisher = p
}

func notFound(tenantID string) error {
	return errors.Wrapf(gwerrors.ErrNotFound, "session %s", tenantID)
}

// Create registers a new session in the initializing state.
func (r *Registry) Create(tenantID string) (*Snapshot, error) {
	if tenantID == "" {
		return nil, errors.Wrap(gwerrors.ErrInvalidInput, "[Create] tenant id is required")
	}

	r.mu.Lock()
	if _, ok := r.sessions[tenantID]; ok {
		r.mu.Unlock()
		return nil, errors.Wrapf(gwerrors.ErrAlreadyExists, "session %s", tenantID)
	}
	now := r.nowFunc()
	s := &session{
		tenantID:  tenantID,
		status:    StatusInitializing,
		messages:  newMessageBuffer(r.capacity),
		createdAt: now,
	}
	r.sessions[tenantID] = s
	publisher := r.publisher
	s.mu.Lock()
	r.mu.Unlock()
	defer s.mu.Unlock()

	r.metrics.SessionOpened()
	publisher.Publish(tenantID, EventStatusChange, StatusChange{Status: StatusInitializing, Timestamp: now})
	snap := s.snapshotLocked()
	return &snap, nil
}

// lock returns the live session with its mutex held. Callers must unlock it.
func (r *Registry) lock(tenantID string) (*session, Publisher, error) {
	r.mu.RLock()
	s, ok := r.sessions[tenantID]
	publisher := r.publisher
	r.mu.RUnlock()
	if !ok {
		return nil, nil, notFound(tenantID)
	}
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return nil, nil, notFound(tenantID)
	}
	return s, publisher, nil
}

// Get returns the current state of a session.
func (r *Registry) Get(tenantID string) (*Snapshot, error) {
	s, _, err := r.lock(tenantID)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	snap := s.snapshotLocked()
	return &snap, nil
}

// Exists reports whether tenantID has a live session.
func (r *Registry) Exists(tenantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[tenantID]
	return ok
}

// List returns every live session ordered by tenant ID.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	all := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	snapshots := make([]Snapshot, 0, len(all))
	for _, s := range all {
		s.mu.Lock()
		if !s.removed {
			snapshots = append(snapshots, s.snapshotLocked())
		}
		s.mu.Unlock()
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].TenantID < snapshots[j].TenantID
	})
	return snapshots
}

// RecordStatus applies a driver lifecycle transition. Reaching ready discards the pairing QR code.
func (r *Registry) RecordStatus(tenantID string, status Status) error {
	if !status.Valid() {
		return errors.Wrapf(gwerrors.ErrInvalidInput, "[RecordStatus] unknown status %q", status)
	}
	s, publisher, err := r.lock(tenantID)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	s.status = status
	if status == StatusReady {
		s.lastQR = nil
	}
	publisher.Publish(tenantID, EventStatusChange, StatusChange{Status: status, Timestamp: r.nowFunc()})
	return nil
}

// RecordQR stores a new pairing code and moves the session to qr_generated.
func (r *Registry) RecordQR(tenantID, code string) error {
	s, publisher, err := r.lock(tenantID)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	now := r.nowFunc()
	qr := &QRCode{Code: code, Timestamp: now}
	s.lastQR = qr
	s.status = StatusQRGenerated
	publisher.Publish(tenantID, EventQRCode, *qr)
	publisher.Publish(tenantID, EventStatusChange, StatusChange{Status: StatusQRGenerated, Timestamp: now})
	return nil
}

// QRCode returns the most recent pairing code.
func (r *Registry) QRCode(tenantID string) (*QRCode, error) {
	s, _, err := r.lock(tenantID)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	if s.lastQR == nil {
		return nil, errors.Wrapf(gwerrors.ErrNotFound, "qr code for session %s", tenantID)
	}
	qr := *s.lastQR
	return &qr, nil
}

// AppendMessage stores msg, evicting the oldest message once the buffer is full.
// ReceivedAt is stamped here when the driver left it empty.
func (r *Registry) AppendMessage(tenantID string, msg *InboundMessage) error {
	if msg == nil {
		return errors.Wrap(gwerrors.ErrInvalidInput, "[AppendMessage] message is required")
	}
	s, publisher, err := r.lock(tenantID)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = r.nowFunc()
	}
	s.messages.push(msg)
	publisher.Publish(tenantID, EventNewMessage, msg)
	return nil
}

// Query filters the tenant's buffer. See Filter for the matching rules.
func (r *Registry) Query(tenantID string, f Filter) (*QueryResult, error) {
	s, _, err := r.lock(tenantID)
	if err != nil {
		return nil, err
	}
	messages := s.messages.snapshot()
	s.mu.Unlock()

	return runQuery(messages, f, r.nowFunc()), nil
}

// Stats summarises the tenant's buffer.
func (r *Registry) Stats(tenantID string) (*Stats, error) {
	s, _, err := r.lock(tenantID)
	if err != nil {
		return nil, err
	}
	messages := s.messages.snapshot()
	s.mu.Unlock()

	return computeStats(messages, r.nowFunc()), nil
}

// Clear empties the tenant's buffer and returns how many messages it held.
func (r *Registry) Clear(tenantID string) (int, error) {
	s, _, err := r.lock(tenantID)
	if err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	return s.messages.reset(), nil
}

// Remove deletes the session and its buffer. Subscribers are not notified.
func (r *Registry) Remove(tenantID string) error {
	r.mu.Lock()
	s, ok := r.sessions[tenantID]
	if ok {
		delete(r.sessions, tenantID)
	}
	r.mu.Unlock()
	if !ok {
		return notFound(tenantID)
	}

	s.mu.Lock()
	s.removed = true
	s.messages.reset()
	s.lastQR = nil
	s.mu.Unlock()

	r.metrics.SessionClosed()
	return nil
}

// RemoveAll drops every session and returns the removed tenant IDs.
func (r *Registry) RemoveAll() []string {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*session)
	r.mu.Unlock()

	removed := make([]string, 0, len(all))
	for tenantID, s := range all {
		s.mu.Lock()
		s.removed = true
		s.messages.reset()
		s.lastQR = nil
		s.mu.Unlock()
		r.metrics.SessionClosed()
		removed = append(removed, tenantID)
	}
	sort.Strings(removed)
	return removed
}
