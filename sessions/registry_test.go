package sessions_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	gwerrors "github.com/jrsteele09/go-message-gateway/internal/errors"
	"github.com/jrsteele09/go-message-gateway/internal/utils"
	"github.com/jrsteele09/go-message-gateway/sessions"
)

type published struct {
	tenantID string
	kind     sessions.EventKind
	payload  any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(tenantID string, kind sessions.EventKind, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{tenantID: tenantID, kind: kind, payload: payload})
}

func (p *recordingPublisher) kinds() []sessions.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]sessions.EventKind, 0, len(p.events))
	for _, e := range p.events {
		kinds = append(kinds, e.kind)
	}
	return kinds
}

type testFixture struct {
	now       time.Time
	publisher *recordingPublisher
	registry  *sessions.Registry
}

func setupTestFixture(t *testing.T, options ...sessions.RegistryOption) *testFixture {
	t.Helper()

	f := &testFixture{
		now:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		publisher: &recordingPublisher{},
	}
	options = append([]sessions.RegistryOption{
		sessions.WithPublisher(f.publisher),
		sessions.WithNowFunc(func() time.Time { return f.now }),
	}, options...)
	f.registry = sessions.NewRegistry(options...)
	return f
}

func (f *testFixture) message(id, msgType string, age time.Duration) *sessions.InboundMessage {
	return &sessions.InboundMessage{
		ID:         id,
		From:       "5511999999999@c.us",
		Body:       "body " + id,
		Type:       msgType,
		Timestamp:  f.now.Add(-age),
		ReceivedAt: f.now.Add(-age),
		Contact:    &sessions.Contact{ID: "5511999999999@c.us", Name: "Alice Example"},
	}
}

func TestCreate(t *testing.T) {
	f := setupTestFixture(t)

	snap, err := f.registry.Create("acme")
	require.NoError(t, err)
	require.Equal(t, "acme", snap.TenantID)
	require.Equal(t, sessions.StatusInitializing, snap.Status)
	require.Zero(t, snap.MessageCount)

	_, err = f.registry.Create("acme")
	require.ErrorIs(t, err, gwerrors.ErrAlreadyExists)

	_, err = f.registry.Create("")
	require.ErrorIs(t, err, gwerrors.ErrInvalidInput)

	require.Equal(t, []sessions.EventKind{sessions.EventStatusChange}, f.publisher.kinds())
}

func TestUnknownTenantIsNotFound(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.registry.Get("ghost")
	require.ErrorIs(t, err, gwerrors.ErrNotFound)
	require.ErrorIs(t, f.registry.RecordStatus("ghost", sessions.StatusReady), gwerrors.ErrNotFound)
	require.ErrorIs(t, f.registry.RecordQR("ghost", "qr"), gwerrors.ErrNotFound)
	require.ErrorIs(t, f.registry.AppendMessage("ghost", f.message("1", "chat", 0)), gwerrors.ErrNotFound)
	_, err = f.registry.Query("ghost", sessions.Filter{})
	require.ErrorIs(t, err, gwerrors.ErrNotFound)
	_, err = f.registry.Stats("ghost")
	require.ErrorIs(t, err, gwerrors.ErrNotFound)
	_, err = f.registry.Clear("ghost")
	require.ErrorIs(t, err, gwerrors.ErrNotFound)
	_, err = f.registry.QRCode("ghost")
	require.ErrorIs(t, err, gwerrors.ErrNotFound)
	require.ErrorIs(t, f.registry.Remove("ghost"), gwerrors.ErrNotFound)
	require.Empty(t, f.publisher.kinds())
}

func TestStatusAndQRLifecycle(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.registry.Create("acme")
	require.NoError(t, err)

	_, err = f.registry.QRCode("acme")
	require.ErrorIs(t, err, gwerrors.ErrNotFound)

	require.NoError(t, f.registry.RecordQR("acme", "2@abc"))
	qr, err := f.registry.QRCode("acme")
	require.NoError(t, err)
	require.Equal(t, "2@abc", qr.Code)

	snap, err := f.registry.Get("acme")
	require.NoError(t, err)
	require.Equal(t, sessions.StatusQRGenerated, snap.Status)
	require.True(t, snap.HasQR)

	require.NoError(t, f.registry.RecordStatus("acme", sessions.StatusAuthenticated))
	require.NoError(t, f.registry.RecordStatus("acme", sessions.StatusReady))

	snap, err = f.registry.Get("acme")
	require.NoError(t, err)
	require.True(t, snap.IsReady)
	require.False(t, snap.HasQR)

	require.ErrorIs(t, f.registry.RecordStatus("acme", sessions.Status("bogus")), gwerrors.ErrInvalidInput)

	require.Equal(t, []sessions.EventKind{
		sessions.EventStatusChange, // initializing
		sessions.EventQRCode,
		sessions.EventStatusChange, // qr_generated
		sessions.EventStatusChange, // authenticated
		sessions.EventStatusChange, // ready
	}, f.publisher.kinds())
}

func TestAppendMessage_EvictsOldestFirst(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.registry.Create("acme")
	require.NoError(t, err)

	for i := 0; i < 1001; i++ {
		msg := f.message(fmt.Sprintf("m%04d", i), "chat", 0)
		msg.ReceivedAt = f.now.Add(time.Duration(i) * time.Millisecond)
		require.NoError(t, f.registry.AppendMessage("acme", msg))
	}

	res, err := f.registry.Query("acme", sessions.Filter{})
	require.NoError(t, err)
	require.Equal(t, 1000, res.Total)
	require.Len(t, res.Messages, 1000)
	require.Equal(t, "m1000", res.Messages[0].ID)
	require.Equal(t, "m0001", res.Messages[len(res.Messages)-1].ID)
	for _, m := range res.Messages {
		require.NotEqual(t, "m0000", m.ID)
	}
}

func TestAppendMessage_SmallCapacity(t *testing.T) {
	f := setupTestFixture(t, sessions.WithCapacity(3))
	_, err := f.registry.Create("acme")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		msg := f.message(fmt.Sprint(i), "chat", time.Duration(10-i)*time.Minute)
		require.NoError(t, f.registry.AppendMessage("acme", msg))
	}

	res, err := f.registry.Query("acme", sessions.Filter{})
	require.NoError(t, err)
	ids := []string{}
	for _, m := range res.Messages {
		ids = append(ids, m.ID)
	}
	require.Equal(t, []string{"4", "3", "2"}, ids)
}

func TestAppendMessage_StampsReceivedAt(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.registry.Create("acme")
	require.NoError(t, err)

	msg := &sessions.InboundMessage{ID: "x", Type: "chat"}
	require.NoError(t, f.registry.AppendMessage("acme", msg))
	require.Equal(t, f.now, msg.ReceivedAt)
	require.ErrorIs(t, f.registry.AppendMessage("acme", nil), gwerrors.ErrInvalidInput)
}

func TestQueryScenario(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.registry.Create("acme")
	require.NoError(t, err)

	res, err := f.registry.Query("acme", sessions.Filter{})
	require.NoError(t, err)
	require.Empty(t, res.Messages)
	require.Zero(t, res.Total)

	require.NoError(t, f.registry.AppendMessage("acme", f.message("1", "chat", 0)))

	res, err = f.registry.Query("acme", sessions.Filter{Type: "image"})
	require.NoError(t, err)
	require.Empty(t, res.Messages)
	require.Zero(t, res.Total)

	res, err = f.registry.Query("acme", sessions.Filter{Type: "chat"})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	require.Equal(t, 1, res.Total)
	require.Equal(t, "1", res.Messages[0].ID)
}

func TestQueryFilters(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.registry.Create("acme")
	require.NoError(t, err)

	recent := f.message("recent", "chat", 10*time.Minute)
	boundary := f.message("boundary", "chat", time.Hour)
	old := f.message("old", "image", 3*time.Hour)
	old.HasMedia = true
	group := f.message("group", "chat", 30*time.Minute)
	group.IsGroup = true
	group.Contact = &sessions.Contact{Name: "Bob Builder"}
	anonymous := f.message("anon", "chat", 5*time.Minute)
	anonymous.Contact = nil

	for _, m := range []*sessions.InboundMessage{old, boundary, group, recent, anonymous} {
		require.NoError(t, f.registry.AppendMessage("acme", m))
	}

	ids := func(res *sessions.QueryResult) []string {
		out := []string{}
		for _, m := range res.Messages {
			out = append(out, m.ID)
		}
		return out
	}

	t.Run("newest first", func(t *testing.T) {
		res, err := f.registry.Query("acme", sessions.Filter{})
		require.NoError(t, err)
		require.Equal(t, []string{"anon", "recent", "group", "boundary", "old"}, ids(res))
	})

	t.Run("lastHours is an inclusive lower bound", func(t *testing.T) {
		res, err := f.registry.Query("acme", sessions.Filter{LastHours: 1})
		require.NoError(t, err)
		require.Equal(t, []string{"anon", "recent", "group", "boundary"}, ids(res))
		for _, m := range res.Messages {
			require.False(t, m.ReceivedAt.Before(f.now.Add(-time.Hour)))
		}
	})

	t.Run("fractional hours", func(t *testing.T) {
		res, err := f.registry.Query("acme", sessions.Filter{LastHours: 0.25})
		require.NoError(t, err)
		require.Equal(t, []string{"anon", "recent"}, ids(res))
	})

	t.Run("from is case-insensitive substring on contact name", func(t *testing.T) {
		res, err := f.registry.Query("acme", sessions.Filter{From: "aLiCe"})
		require.NoError(t, err)
		require.Equal(t, []string{"recent", "boundary", "old"}, ids(res))

		res, err = f.registry.Query("acme", sessions.Filter{From: "builder"})
		require.NoError(t, err)
		require.Equal(t, []string{"group"}, ids(res))
	})

	t.Run("text searches the body", func(t *testing.T) {
		res, err := f.registry.Query("acme", sessions.Filter{Text: "BODY RE"})
		require.NoError(t, err)
		require.Equal(t, []string{"recent"}, ids(res))
	})

	t.Run("onlyGroups tri-state", func(t *testing.T) {
		res, err := f.registry.Query("acme", sessions.Filter{OnlyGroups: utils.Ptr(true)})
		require.NoError(t, err)
		require.Equal(t, []string{"group"}, ids(res))

		res, err = f.registry.Query("acme", sessions.Filter{OnlyGroups: utils.Ptr(false)})
		require.NoError(t, err)
		require.Equal(t, []string{"anon", "recent", "boundary", "old"}, ids(res))
	})

	t.Run("filters compose with AND", func(t *testing.T) {
		res, err := f.registry.Query("acme", sessions.Filter{From: "alice", Type: "chat", LastHours: 2})
		require.NoError(t, err)
		require.Equal(t, []string{"recent", "boundary"}, ids(res))
	})

	t.Run("limit applies after filtering, total does not", func(t *testing.T) {
		res, err := f.registry.Query("acme", sessions.Filter{Type: "chat", Limit: 2})
		require.NoError(t, err)
		require.Equal(t, []string{"anon", "recent"}, ids(res))
		require.Equal(t, 4, res.Total)
	})
}

func TestQuery_LastHoursNeverReturnsOlderMessages(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.registry.Create("acme")
	require.NoError(t, err)

	for i := 0; i < 240; i++ {
		m := f.message(fmt.Sprint(i), "chat", time.Duration(i)*time.Minute)
		require.NoError(t, f.registry.AppendMessage("acme", m))
	}
	res, err := f.registry.Query("acme", sessions.Filter{LastHours: 1})
	require.NoError(t, err)
	require.Equal(t, 61, res.Total)
	cutoff := f.now.Add(-time.Hour)
	for _, m := range res.Messages {
		require.False(t, m.ReceivedAt.Before(cutoff))
	}
}

func TestStats(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.registry.Create("acme")
	require.NoError(t, err)

	a := f.message("a", "chat", 10*time.Minute)
	b := f.message("b", "image", 2*time.Hour)
	b.HasMedia = true
	c := f.message("c", "chat", 48*time.Hour)
	c.IsGroup = true
	d := f.message("d", "ptt", 10*24*time.Hour)
	d.HasMedia = true
	for _, m := range []*sessions.InboundMessage{d, c, b, a} {
		require.NoError(t, f.registry.AppendMessage("acme", m))
	}

	stats, err := f.registry.Stats("acme")
	require.NoError(t, err)
	require.Equal(t, 4, stats.Total)
	require.Equal(t, 1, stats.LastHour)
	require.Equal(t, 2, stats.Last24h)
	require.Equal(t, 3, stats.LastWeek)
	require.Equal(t, 1, stats.Groups)
	require.Equal(t, 3, stats.Individual)
	require.Equal(t, 2, stats.WithMedia)
	require.Equal(t, map[string]int{"chat": 2, "image": 1, "ptt": 1}, stats.ByType)
}

func TestClear(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.registry.Create("acme")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.registry.AppendMessage("acme", f.message(fmt.Sprint(i), "chat", 0)))
	}

	n, err := f.registry.Clear("acme")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	n, err = f.registry.Clear("acme")
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, f.registry.AppendMessage("acme", f.message("after", "chat", 0)))
	res, err := f.registry.Query("acme", sessions.Filter{})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
}

func TestRemoveThenRecreate(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.registry.Create("acme")
	require.NoError(t, err)
	require.NoError(t, f.registry.AppendMessage("acme", f.message("1", "chat", 0)))

	require.NoError(t, f.registry.Remove("acme"))
	_, err = f.registry.Query("acme", sessions.Filter{})
	require.ErrorIs(t, err, gwerrors.ErrNotFound)
	require.False(t, f.registry.Exists("acme"))

	_, err = f.registry.Create("acme")
	require.NoError(t, err)
	res, err := f.registry.Query("acme", sessions.Filter{})
	require.NoError(t, err)
	require.Zero(t, res.Total)
}

func TestListAndRemoveAll(t *testing.T) {
	f := setupTestFixture(t)
	for _, id := range []string{"gamma", "acme", "beta"} {
		_, err := f.registry.Create(id)
		require.NoError(t, err)
	}

	list := f.registry.List()
	require.Len(t, list, 3)
	require.Equal(t, "acme", list[0].TenantID)
	require.Equal(t, "gamma", list[2].TenantID)

	require.Equal(t, []string{"acme", "beta", "gamma"}, f.registry.RemoveAll())
	require.Empty(t, f.registry.List())
}

func TestPublishOrderPerTenant(t *testing.T) {
	f := setupTestFixture(t)
	for _, id := range []string{"acme", "beta"} {
		_, err := f.registry.Create(id)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for _, tenant := range []string{"acme", "beta"} {
		wg.Add(1)
		go func(tenant string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				msg := &sessions.InboundMessage{ID: fmt.Sprintf("%s-%03d", tenant, i), Type: "chat"}
				require.NoError(t, f.registry.AppendMessage(tenant, msg))
			}
		}(tenant)
	}
	wg.Wait()

	next := map[string]int{}
	f.publisher.mu.Lock()
	defer f.publisher.mu.Unlock()
	for _, e := range f.publisher.events {
		if e.kind != sessions.EventNewMessage {
			continue
		}
		msg := e.payload.(*sessions.InboundMessage)
		require.Equal(t, fmt.Sprintf("%s-%03d", e.tenantID, next[e.tenantID]), msg.ID)
		next[e.tenantID]++
	}
	require.Equal(t, 200, next["acme"])
	require.Equal(t, 200, next["beta"])
}
