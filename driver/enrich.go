package driver

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/jrsteele09/go-message-gateway/internal/utils"
	"github.com/jrsteele09/go-message-gateway/sessions"
)

const (
	individualSuffix = "@c.us"
	groupSuffix      = "@g.us"
	unnamedContact   = "unknown"
)

// lookup is the outcome of one enrichment step: resolved, or unavailable with the reason.
type lookup[T any] struct {
	value T
	err   error
}

func (l lookup[T]) resolved() bool {
	return l.err == nil
}

func resolve[T any](ctx context.Context, a *Adapter, tenantID, step string, fn func(context.Context) (T, error)) lookup[T] {
	stepCtx, cancel := context.WithTimeout(ctx, a.enrichTimeout)
	defer cancel()
	v, err := fn(stepCtx)
	if err != nil {
		a.metrics.EnrichmentFailed(step)
		a.logger.Warn().Err(err).Str("tenant", tenantID).Str("step", step).Msg("message enrichment unavailable")
	}
	return lookup[T]{value: v, err: err}
}

func isGroupID(id string) bool {
	return strings.HasSuffix(id, groupSuffix)
}

func stripSuffix(id string) string {
	return strings.TrimSuffix(strings.TrimSuffix(id, individualSuffix), groupSuffix)
}

// normalizeChatID turns a bare phone number into an individual chat ID.
func normalizeChatID(recipient string) string {
	if strings.Contains(recipient, "@") {
		return recipient
	}
	return recipient + individualSuffix
}

func fallbackContact(raw RawMessage) *sessions.Contact {
	name := raw.NotifyName
	if name == "" {
		name = raw.From
	}
	return &sessions.Contact{
		ID:      raw.From,
		Name:    name,
		Number:  stripSuffix(raw.From),
		IsGroup: isGroupID(raw.From),
	}
}

// enrich builds the stored record for raw. A failed lookup never aborts ingestion;
// the affected fields fall back to what the raw message carries.
func (a *Adapter) enrich(ctx context.Context, tenantID string, drv Enricher, raw RawMessage) *sessions.InboundMessage {
	group := isGroupID(raw.From)
	msg := &sessions.InboundMessage{
		ID:              raw.ID,
		From:            raw.From,
		To:              raw.To,
		Body:            raw.Body,
		Type:            raw.Type,
		Timestamp:       time.Unix(raw.Timestamp, 0).UTC(),
		IsGroup:         group,
		HasMedia:        raw.HasMedia,
		IsForwarded:     raw.IsForwarded,
		ForwardingScore: raw.ForwardingScore,
		IsStatus:        raw.IsStatus,
		IsStarred:       raw.IsStarred,
		Broadcast:       raw.Broadcast,
		FromMe:          raw.FromMe,
		DeviceType:      raw.DeviceType,
		HasQuotedMsg:    raw.HasQuotedMsg,
	}

	contact := resolve(ctx, a, tenantID, "contact", func(ctx context.Context) (sessions.Contact, error) {
		return drv.Contact(ctx, raw)
	})
	if contact.resolved() {
		c := contact.value
		if c.Name == "" {
			c.Name = c.PushName
		}
		if c.Name == "" {
			c.Name = unnamedContact
		}
		pic := resolve(ctx, a, tenantID, "profile_pic", func(ctx context.Context) (string, error) {
			return drv.ProfilePicURL(ctx, c.ID)
		})
		if pic.resolved() {
			c.ProfilePicURL = utils.Ptr(pic.value)
		}
		msg.Contact = &c
	} else {
		msg.Contact = fallbackContact(raw)
	}

	if group {
		chat := resolve(ctx, a, tenantID, "chat", func(ctx context.Context) (sessions.Chat, error) {
			return drv.Chat(ctx, raw)
		})
		if chat.resolved() {
			msg.Chat = utils.Ptr(chat.value)
		}
	}

	if raw.HasMedia {
		media := resolve(ctx, a, tenantID, "media", func(ctx context.Context) (sessions.Media, error) {
			return drv.DownloadMedia(ctx, raw)
		})
		if media.resolved() {
			m := media.value
			if m.Size == 0 && m.Data != "" {
				if decoded, err := base64.StdEncoding.DecodeString(m.Data); err == nil {
					m.Size = len(decoded)
				}
			}
			msg.Media = &m
		} else {
			msg.MediaError = media.err.Error()
		}
	}

	if raw.Type == "location" && raw.Location != nil {
		msg.Location = utils.Ptr(*raw.Location)
	}

	if raw.HasQuotedMsg {
		quoted := resolve(ctx, a, tenantID, "quoted_message", func(ctx context.Context) (sessions.QuotedMessage, error) {
			return drv.QuotedMessage(ctx, raw)
		})
		if quoted.resolved() {
			msg.QuotedMsg = utils.Ptr(quoted.value)
		}
	}

	return msg
}
