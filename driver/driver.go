package driver

import (
	"context"

	"github.com/jrsteele09/go-message-gateway/sessions"
)

// EventKind is the type of a driver notification.
type EventKind string

const (
	EventQR            EventKind = "qr"
	EventReady         EventKind = "ready"
	EventAuthenticated EventKind = "authenticated"
	EventAuthFailure   EventKind = "auth_failure"
	EventDisconnected  EventKind = "disconnected"
	EventMessage       EventKind = "message"
)

// Event is one notification from a driver's event feed.
type Event struct {
	Kind    EventKind
	QR      string      // set for EventQR
	Message *RawMessage // set for EventMessage
	Reason  string      // optional detail for auth_failure and disconnected
}

// RawMessage is an inbound message as the protocol delivers it, before enrichment.
type RawMessage struct {
	ID              string
	From            string
	To              string
	Body            string
	Type            string
	Timestamp       int64 // unix seconds
	NotifyName      string
	HasMedia        bool
	IsForwarded     bool
	ForwardingScore int
	IsStatus        bool
	IsStarred       bool
	Broadcast       bool
	FromMe          bool
	DeviceType      string
	Location        *sessions.Location
	HasQuotedMsg    bool
}

// Enricher resolves optional metadata for a message. Every lookup may fail independently.
type Enricher interface {
	Contact(ctx context.Context, msg RawMessage) (sessions.Contact, error)
	ProfilePicURL(ctx context.Context, contactID string) (string, error)
	Chat(ctx context.Context, msg RawMessage) (sessions.Chat, error)
	DownloadMedia(ctx context.Context, msg RawMessage) (sessions.Media, error)
	QuotedMessage(ctx context.Context, msg RawMessage) (sessions.QuotedMessage, error)
}

// Driver speaks the external messaging protocol for one tenant.
// Events delivers nothing once Destroy has been called.
type Driver interface {
	Enricher
	Initialize(ctx context.Context) error
	SendMessage(ctx context.Context, chatID, body string) error
	Destroy(ctx context.Context) error
	Events() <-chan Event
}

// Factory builds the driver for a tenant.
type Factory func(tenantID string) (Driver, error)

// MessageNotifier is told about every stored message. Notify must return immediately.
type MessageNotifier interface {
	Notify(tenantID string, msg *sessions.InboundMessage)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, *sessions.InboundMessage) {}
