package webhook_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-message-gateway/internal/metrics"
	"github.com/jrsteele09/go-message-gateway/sessions"
	"github.com/jrsteele09/go-message-gateway/webhook"
)

type receiver struct {
	mu       sync.Mutex
	payloads []webhook.Payload
	status   int
}

func (r *receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var p webhook.Payload
	if err := json.NewDecoder(req.Body).Decode(&p); err == nil {
		r.mu.Lock()
		r.payloads = append(r.payloads, p)
		r.mu.Unlock()
	}
	w.WriteHeader(r.status)
}

func (r *receiver) received() []webhook.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]webhook.Payload(nil), r.payloads...)
}

func TestNotify_PostsPayload(t *testing.T) {
	rcv := &receiver{status: http.StatusOK}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	m := metrics.New(prometheus.NewRegistry())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sink := webhook.New(srv.URL, webhook.WithMetrics(m), webhook.WithNowFunc(func() time.Time { return now }))
	require.True(t, sink.Enabled())

	sent := time.Date(2025, 6, 1, 11, 59, 0, 0, time.UTC)
	sink.Notify("acme", &sessions.InboundMessage{ID: "m1", From: "5511999@c.us", Body: "hi", Timestamp: sent})
	sink.Wait(context.Background())

	got := rcv.received()
	require.Len(t, got, 1)
	require.Equal(t, "message", got[0].Event)
	require.Equal(t, "acme", got[0].Data.TenantID)
	require.Equal(t, "m1", got[0].Data.Message.ID)
	require.Equal(t, "hi", got[0].Data.Message.Body)
	require.True(t, sent.Equal(got[0].Data.Message.Timestamp))
	require.True(t, now.Equal(got[0].Timestamp))
	require.Equal(t, 1.0, testutil.ToFloat64(m.WebhookDeliveries.WithLabelValues("success")))
}

func TestNotify_FailureIsCounted(t *testing.T) {
	rcv := &receiver{status: http.StatusInternalServerError}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	m := metrics.New(prometheus.NewRegistry())
	sink := webhook.New(srv.URL, webhook.WithMetrics(m))
	sink.Notify("acme", &sessions.InboundMessage{ID: "m1"})
	sink.Wait(context.Background())

	require.Equal(t, 1.0, testutil.ToFloat64(m.WebhookDeliveries.WithLabelValues("failure")))
}

func TestNotify_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	m := metrics.New(prometheus.NewRegistry())
	sink := webhook.New(srv.URL, webhook.WithMetrics(m), webhook.WithTimeout(20*time.Millisecond))
	sink.Notify("acme", &sessions.InboundMessage{ID: "m1"})
	sink.Wait(context.Background())

	require.Equal(t, 1.0, testutil.ToFloat64(m.WebhookDeliveries.WithLabelValues("failure")))
}

func TestNotify_Disabled(t *testing.T) {
	sink := webhook.New("")
	require.False(t, sink.Enabled())
	sink.Notify("acme", &sessions.InboundMessage{ID: "m1"})
	sink.Wait(context.Background())
}
