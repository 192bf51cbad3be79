package sessions

import "time"

// Status is the lifecycle state of a tenant session. Transitions are driven by driver events only.
type Status string

const (
	StatusInitializing  Status = "initializing"
	StatusQRGenerated   Status = "qr_generated"
	StatusAuthenticated Status = "authenticated"
	StatusReady         Status = "ready"
	StatusAuthFailure   Status = "auth_failure"
	StatusDisconnected  Status = "disconnected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusInitializing, StatusQRGenerated, StatusAuthenticated, StatusReady, StatusAuthFailure, StatusDisconnected:
		return true
	}
	return false
}

// EventKind names what changed in a session.
type EventKind string

const (
	EventNewMessage   EventKind = "new_message"
	EventStatusChange EventKind = "status_change"
	EventQRCode       EventKind = "qr_code"
)

// Publisher receives every session mutation right after it is applied.
// Publish must not block; it is called with the session lock held so that
// per-tenant events keep the order in which they were recorded.
type Publisher interface {
	Publish(tenantID string, kind EventKind, payload any)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(tenantID string, kind EventKind, payload any)

func (f PublisherFunc) Publish(tenantID string, kind EventKind, payload any) {
	f(tenantID, kind, payload)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, EventKind, any) {}

// QRCode is the pairing payload produced by the driver.
type QRCode struct {
	Code      string    `json:"qrCode"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusChange is the payload published for EventStatusChange.
type StatusChange struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	TenantID     string    `json:"clientId"`
	Status       Status    `json:"status"`
	IsReady      bool      `json:"isReady"`
	HasQR        bool      `json:"hasQrCode"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
}
