package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-message-gateway/internal/metrics"
	"github.com/jrsteele09/go-message-gateway/sessions"
)

const defaultTimeout = 10 * time.Second

// Payload is the body POSTed for every stored message.
type Payload struct {
	Event     string    `json:"event"`
	Data      Data      `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

type Data struct {
	TenantID string         `json:"tenantId"`
	Message  MessageSummary `json:"message"`
}

type MessageSummary struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink forwards message notifications to an external URL. Deliveries are fire and
// forget: failures are logged and counted, never retried.
type Sink struct {
	url     string
	timeout time.Duration
	client  *http.Client
	logger  zerolog.Logger
	metrics *metrics.Metrics
	nowFunc func() time.Time

	wg sync.WaitGroup
}

type Option func(*Sink)

func WithTimeout(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *Sink) {
		s.client = c
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sink) {
		s.metrics = m
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Sink) {
		s.nowFunc = now
	}
}

// New returns a sink posting to url. An empty url yields a disabled sink whose
// Notify does nothing.
func New(url string, options ...Option) *Sink {
	s := &Sink{
		url:     url,
		timeout: defaultTimeout,
		client:  http.DefaultClient,
		logger:  zerolog.Nop(),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Sink) Enabled() bool {
	return s != nil && s.url != ""
}

// Notify posts msg in the background and returns immediately.
func (s *Sink) Notify(tenantID string, msg *sessions.InboundMessage) {
	if !s.Enabled() || msg == nil {
		return
	}
	payload := Payload{
		Event: "message",
		Data: Data{
			TenantID: tenantID,
			Message: MessageSummary{
				ID:        msg.ID,
				From:      msg.From,
				Body:      msg.Body,
				Timestamp: msg.Timestamp,
			},
		},
		Timestamp: s.nowFunc(),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.deliver(payload); err != nil {
			s.metrics.WebhookDelivered("failure")
			s.logger.Error().Err(err).Str("tenant", tenantID).Str("message", msg.ID).Msg("webhook delivery failed")
			return
		}
		s.metrics.WebhookDelivered("success")
		s.logger.Debug().Str("tenant", tenantID).Str("message", msg.ID).Msg("webhook delivered")
	}()
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (s *Sink) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Sink) deliver(payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "[webhook] marshal payload")
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "[webhook] build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "[webhook] post")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("[webhook] unexpected status %d", resp.StatusCode)
	}
	return nil
}
