package sessions

import "time"

// InboundMessage is an immutable record of a message received by a tenant.
type InboundMessage struct {
	ID              string         `json:"id"`
	From            string         `json:"from"`
	To              string         `json:"to"`
	Body            string         `json:"body"`
	Type            string         `json:"type"`
	Timestamp       time.Time      `json:"timestamp"`
	ReceivedAt      time.Time      `json:"receivedAt"`
	IsGroup         bool           `json:"isGroup"`
	HasMedia        bool           `json:"hasMedia"`
	Contact         *Contact       `json:"contact"`
	Chat            *Chat          `json:"chat"`
	IsForwarded     bool           `json:"isForwarded"`
	ForwardingScore int            `json:"forwardingScore"`
	IsStatus        bool           `json:"isStatus"`
	IsStarred       bool           `json:"isStarred"`
	Broadcast       bool           `json:"broadcast"`
	FromMe          bool           `json:"fromMe"`
	DeviceType      string         `json:"deviceType,omitempty"`
	Location        *Location      `json:"location"`
	HasQuotedMsg    bool           `json:"hasQuotedMsg"`
	QuotedMsg       *QuotedMessage `json:"quotedMsg"`
	Media           *Media         `json:"media,omitempty"`
	MediaError      string         `json:"mediaError,omitempty"`
}

// Contact describes the sender. Only ID, Name and Number are guaranteed when the lookup failed.
type Contact struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	PushName      string  `json:"pushname,omitempty"`
	ShortName     string  `json:"shortName,omitempty"`
	Number        string  `json:"number"`
	IsMyContact   bool    `json:"isMyContact"`
	IsUser        bool    `json:"isUser"`
	IsGroup       bool    `json:"isGroup"`
	IsWAContact   bool    `json:"isWAContact"`
	ProfilePicURL *string `json:"profilePicUrl"`
}

// Chat describes a group conversation.
type Chat struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	IsGroup           bool       `json:"isGroup"`
	ParticipantsCount int        `json:"participantsCount"`
	Description       *string    `json:"description"`
	CreatedAt         *time.Time `json:"createdAt"`
}

type Location struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Description *string `json:"description"`
}

type QuotedMessage struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	From      string    `json:"from"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Media holds downloaded attachment data, base64 encoded as received from the driver.
type Media struct {
	MimeType string `json:"mimetype"`
	Filename string `json:"filename,omitempty"`
	Data     string `json:"data"`
	Size     int    `json:"size"`
}

// SenderName is the display name used by the From filter.
func (m *InboundMessage) SenderName() string {
	if m.Contact == nil {
		return ""
	}
	return m.Contact.Name
}
