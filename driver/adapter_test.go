package driver_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-message-gateway/driver"
	"github.com/jrsteele09/go-message-gateway/driver/driverfake"
	gwerrors "github.com/jrsteele09/go-message-gateway/internal/errors"
	"github.com/jrsteele09/go-message-gateway/sessions"
)

const waitFor = 2 * time.Second

type recordingNotifier struct {
	mu       sync.Mutex
	messages []*sessions.InboundMessage
}

func (n *recordingNotifier) Notify(tenantID string, msg *sessions.InboundMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

type testFixture struct {
	pool     *driverfake.Pool
	registry *sessions.Registry
	notifier *recordingNotifier
	adapter  *driver.Adapter
}

func setupTestFixture(t *testing.T, options ...driverfake.Option) *testFixture {
	t.Helper()
	f := &testFixture{
		pool:     driverfake.NewPool(options...),
		registry: sessions.NewRegistry(),
		notifier: &recordingNotifier{},
	}
	var err error
	f.adapter, err = driver.NewAdapter(f.pool.Factory(), f.registry,
		driver.WithNotifier(f.notifier),
		driver.WithEnrichTimeout(time.Second),
	)
	require.NoError(t, err)
	t.Cleanup(func() { f.adapter.Shutdown(context.Background()) })
	return f
}

func (f *testFixture) create(t *testing.T, tenantID string) *driverfake.Driver {
	t.Helper()
	_, err := f.adapter.Create(context.Background(), tenantID)
	require.NoError(t, err)
	drv, ok := f.pool.Get(tenantID)
	require.True(t, ok)
	return drv
}

func (f *testFixture) messages(t *testing.T, tenantID string) []*sessions.InboundMessage {
	t.Helper()
	res, err := f.registry.Query(tenantID, sessions.Filter{})
	require.NoError(t, err)
	return res.Messages
}

func TestNewAdapter_RequiresDependencies(t *testing.T) {
	_, err := driver.NewAdapter(nil, sessions.NewRegistry())
	require.Error(t, err)
	_, err = driver.NewAdapter(driverfake.NewPool().Factory(), nil)
	require.Error(t, err)
}

func TestCreate(t *testing.T) {
	f := setupTestFixture(t)

	snap, err := f.adapter.Create(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, "acme", snap.TenantID)
	require.Equal(t, sessions.StatusInitializing, snap.Status)

	drv, ok := f.pool.Get("acme")
	require.True(t, ok)
	require.True(t, drv.Initialized())
	require.True(t, f.adapter.Active("acme"))

	_, err = f.adapter.Create(context.Background(), "acme")
	require.True(t, gwerrors.Is(err, gwerrors.ErrAlreadyExists))

	_, err = f.adapter.Create(context.Background(), " ")
	require.True(t, gwerrors.Is(err, gwerrors.ErrInvalidInput))
}

func TestCreate_FactoryFailureRemovesSession(t *testing.T) {
	f := setupTestFixture(t)
	f.pool.FailNext("acme", errors.New("no browser"))

	_, err := f.adapter.Create(context.Background(), "acme")
	require.True(t, gwerrors.Is(err, gwerrors.ErrUpstreamFailure))
	require.False(t, f.registry.Exists("acme"))
	require.False(t, f.adapter.Active("acme"))

	// The tenant can retry once the driver is available.
	f.create(t, "acme")
}

func TestCreate_InitializeFailureTearsDown(t *testing.T) {
	f := setupTestFixture(t, driverfake.WithInitError(errors.New("pairing service down")))

	_, err := f.adapter.Create(context.Background(), "acme")
	require.True(t, gwerrors.Is(err, gwerrors.ErrUpstreamFailure))
	require.False(t, f.registry.Exists("acme"))

	drv, ok := f.pool.Get("acme")
	require.True(t, ok)
	require.True(t, drv.Destroyed())
}

func TestCreate_TornDownDuringInitialize(t *testing.T) {
	tests := []struct {
		name     string
		teardown func(t *testing.T, f *testFixture) <-chan struct{}
	}{
		{
			name: "remove",
			teardown: func(t *testing.T, f *testFixture) <-chan struct{} {
				require.NoError(t, f.adapter.Remove(context.Background(), "acme"))
				done := make(chan struct{})
				close(done)
				return done
			},
		},
		{
			name: "shutdown",
			teardown: func(t *testing.T, f *testFixture) <-chan struct{} {
				done := make(chan struct{})
				go func() {
					f.adapter.Shutdown(context.Background())
					close(done)
				}()
				return done
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			gate := make(chan struct{})
			f.pool.Configure("acme", driverfake.WithInitGate(gate))

			created := make(chan error, 1)
			go func() {
				_, err := f.adapter.Create(context.Background(), "acme")
				created <- err
			}()
			require.Eventually(t, func() bool { return f.adapter.Active("acme") }, waitFor, 5*time.Millisecond)
			drv, ok := f.pool.Get("acme")
			require.True(t, ok)

			done := tt.teardown(t, f)
			require.Eventually(t, drv.Destroyed, waitFor, 5*time.Millisecond)
			close(gate)

			select {
			case err := <-created:
				require.True(t, gwerrors.Is(err, gwerrors.ErrUpstreamFailure))
			case <-time.After(waitFor):
				t.Fatal("create did not return")
			}
			select {
			case <-done:
			case <-time.After(waitFor):
				t.Fatal("teardown did not finish")
			}
			require.False(t, f.registry.Exists("acme"))
			require.False(t, f.adapter.Active("acme"))
		})
	}
}

func TestLifecycleEvents(t *testing.T) {
	f := setupTestFixture(t)
	drv := f.create(t, "acme")

	require.True(t, drv.Emit(driver.Event{Kind: driver.EventQR, QR: "pair-me"}))
	require.Eventually(t, func() bool {
		snap, err := f.registry.Get("acme")
		return err == nil && snap.Status == sessions.StatusQRGenerated && snap.HasQR
	}, waitFor, 10*time.Millisecond)

	qr, err := f.registry.QRCode("acme")
	require.NoError(t, err)
	require.Equal(t, "pair-me", qr.Code)

	require.True(t, drv.Emit(driver.Event{Kind: driver.EventAuthenticated}))
	require.True(t, drv.Emit(driver.Event{Kind: driver.EventReady}))
	require.Eventually(t, func() bool {
		snap, err := f.registry.Get("acme")
		return err == nil && snap.IsReady && !snap.HasQR
	}, waitFor, 10*time.Millisecond)

	require.True(t, drv.Emit(driver.Event{Kind: driver.EventDisconnected, Reason: "logout"}))
	require.Eventually(t, func() bool {
		snap, err := f.registry.Get("acme")
		return err == nil && snap.Status == sessions.StatusDisconnected
	}, waitFor, 10*time.Millisecond)
}

func TestAutoPair(t *testing.T) {
	f := setupTestFixture(t, driverfake.WithAutoPair("scan-me", 10*time.Millisecond))
	f.create(t, "acme")

	require.Eventually(t, func() bool {
		snap, err := f.registry.Get("acme")
		return err == nil && snap.Status == sessions.StatusReady
	}, waitFor, 10*time.Millisecond)
}

func TestMessageIngestion_PreservesArrivalOrder(t *testing.T) {
	f := setupTestFixture(t)
	drv := f.create(t, "acme")

	for _, body := range []string{"one", "two", "three"} {
		_, ok := drv.Deliver(driver.RawMessage{From: "5511999@c.us", Body: body, Timestamp: 1700000000})
		require.True(t, ok)
	}

	require.Eventually(t, func() bool { return f.notifier.count() == 3 }, waitFor, 10*time.Millisecond)
	msgs := f.messages(t, "acme")
	require.Len(t, msgs, 3)
	// Newest first.
	require.Equal(t, "three", msgs[0].Body)
	require.Equal(t, "one", msgs[2].Body)
	for _, m := range msgs {
		require.False(t, m.ReceivedAt.IsZero())
	}
}

func TestEnrichment_Resolved(t *testing.T) {
	f := setupTestFixture(t,
		driverfake.WithContact(sessions.Contact{ID: "group1@g.us", PushName: "Ops", Number: "group1"}),
		driverfake.WithProfilePic("group1@g.us", "https://pics/ops.png"),
		driverfake.WithChat(sessions.Chat{ID: "group1@g.us", Name: "Ops", IsGroup: true, ParticipantsCount: 4}),
		driverfake.WithMedia("m1", sessions.Media{MimeType: "image/png", Data: "aGVsbG8="}),
		driverfake.WithQuoted("m1", sessions.QuotedMessage{ID: "q1", Body: "earlier"}),
	)
	drv := f.create(t, "acme")

	_, ok := drv.Deliver(driver.RawMessage{
		ID: "m1", From: "group1@g.us", Body: "look", Type: "image",
		HasMedia: true, HasQuotedMsg: true,
	})
	require.True(t, ok)
	require.Eventually(t, func() bool { return f.notifier.count() == 1 }, waitFor, 10*time.Millisecond)

	msg := f.messages(t, "acme")[0]
	require.True(t, msg.IsGroup)
	require.Equal(t, "Ops", msg.Contact.Name)
	require.NotNil(t, msg.Contact.ProfilePicURL)
	require.Equal(t, "https://pics/ops.png", *msg.Contact.ProfilePicURL)
	require.NotNil(t, msg.Chat)
	require.Equal(t, 4, msg.Chat.ParticipantsCount)
	require.NotNil(t, msg.Media)
	require.Equal(t, 5, msg.Media.Size)
	require.Empty(t, msg.MediaError)
	require.NotNil(t, msg.QuotedMsg)
	require.Equal(t, "earlier", msg.QuotedMsg.Body)
}

func TestEnrichment_FallbacksNeverDropMessage(t *testing.T) {
	f := setupTestFixture(t)
	drv := f.create(t, "acme")

	_, ok := drv.Deliver(driver.RawMessage{
		ID: "m2", From: "5511999@c.us", NotifyName: "Ana", Body: "hi",
		HasMedia: true, HasQuotedMsg: true,
	})
	require.True(t, ok)
	_, ok = drv.Deliver(driver.RawMessage{ID: "m3", From: "team@g.us", Body: "group hi"})
	require.True(t, ok)
	require.Eventually(t, func() bool { return f.notifier.count() == 2 }, waitFor, 10*time.Millisecond)

	res, err := f.registry.Query("acme", sessions.Filter{From: "ana"})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	msg := res.Messages[0]
	require.Equal(t, "5511999", msg.Contact.Number)
	require.Nil(t, msg.Contact.ProfilePicURL)
	require.Nil(t, msg.Media)
	require.NotEmpty(t, msg.MediaError)
	require.Nil(t, msg.QuotedMsg)

	res, err = f.registry.Query("acme", sessions.Filter{From: "team@g.us"})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	require.True(t, res.Messages[0].IsGroup)
	require.True(t, res.Messages[0].Contact.IsGroup)
	require.Nil(t, res.Messages[0].Chat)
}

func TestEnrichment_Location(t *testing.T) {
	f := setupTestFixture(t)
	drv := f.create(t, "acme")

	_, ok := drv.Deliver(driver.RawMessage{
		From: "5511999@c.us", Type: "location",
		Location: &sessions.Location{Latitude: -23.5, Longitude: -46.6},
	})
	require.True(t, ok)
	require.Eventually(t, func() bool { return f.notifier.count() == 1 }, waitFor, 10*time.Millisecond)

	msg := f.messages(t, "acme")[0]
	require.NotNil(t, msg.Location)
	require.Equal(t, -23.5, msg.Location.Latitude)
}

func TestSendMessage(t *testing.T) {
	f := setupTestFixture(t)
	drv := f.create(t, "acme")

	res, err := f.adapter.SendMessage(context.Background(), "acme", "5511999", "hello")
	require.NoError(t, err)
	require.Equal(t, "5511999@c.us", res.To)

	_, err = f.adapter.SendMessage(context.Background(), "acme", "team@g.us", "hi all")
	require.NoError(t, err)

	sent := drv.Sent()
	require.Len(t, sent, 2)
	require.Equal(t, "5511999@c.us", sent[0].ChatID)
	require.Equal(t, "team@g.us", sent[1].ChatID)

	_, err = f.adapter.SendMessage(context.Background(), "acme", "", "hello")
	require.True(t, gwerrors.Is(err, gwerrors.ErrInvalidInput))
	_, err = f.adapter.SendMessage(context.Background(), "ghost", "5511999", "hello")
	require.True(t, gwerrors.Is(err, gwerrors.ErrNotFound))
}

func TestSendMessage_DriverFailure(t *testing.T) {
	f := setupTestFixture(t, driverfake.WithSendError(errors.New("socket closed")))
	f.create(t, "acme")

	_, err := f.adapter.SendMessage(context.Background(), "acme", "5511999", "hello")
	require.True(t, gwerrors.Is(err, gwerrors.ErrUpstreamFailure))
}

func TestRemove(t *testing.T) {
	f := setupTestFixture(t, driverfake.WithDestroyError(errors.New("already gone")))
	drv := f.create(t, "acme")

	require.NoError(t, f.adapter.Remove(context.Background(), "acme"))
	require.True(t, drv.Destroyed())
	require.False(t, f.registry.Exists("acme"))
	require.False(t, drv.Emit(driver.Event{Kind: driver.EventReady}))

	err := f.adapter.Remove(context.Background(), "acme")
	require.True(t, gwerrors.Is(err, gwerrors.ErrNotFound))
}

func TestShutdown(t *testing.T) {
	f := setupTestFixture(t)
	a := f.create(t, "acme")
	b := f.create(t, "beta")

	f.adapter.Shutdown(context.Background())

	require.True(t, a.Destroyed())
	require.True(t, b.Destroyed())
	require.Empty(t, f.registry.List())

	_, err := f.adapter.Create(context.Background(), "gamma")
	require.True(t, gwerrors.Is(err, gwerrors.ErrUpstreamFailure))
}

func TestShutdown_ToleratesTeardownFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.pool.Configure("beta", driverfake.WithDestroyError(errors.New("browser hung")))
	a := f.create(t, "acme")
	b := f.create(t, "beta")
	c := f.create(t, "gamma")

	f.adapter.Shutdown(context.Background())

	require.True(t, a.Destroyed())
	require.True(t, b.Destroyed())
	require.True(t, c.Destroyed())
	require.Empty(t, f.registry.List())
}

func TestShutdown_WaitsForInFlightCreate(t *testing.T) {
	pool := driverfake.NewPool()
	build := pool.Factory()
	entered := make(chan struct{})
	release := make(chan struct{})
	factory := func(tenantID string) (driver.Driver, error) {
		if tenantID == "acme" {
			close(entered)
			<-release
		}
		return build(tenantID)
	}
	registry := sessions.NewRegistry()
	adapter, err := driver.NewAdapter(factory, registry)
	require.NoError(t, err)

	_, err = adapter.Create(context.Background(), "beta")
	require.NoError(t, err)
	beta, ok := pool.Get("beta")
	require.True(t, ok)

	created := make(chan error, 1)
	go func() {
		_, err := adapter.Create(context.Background(), "acme")
		created <- err
	}()
	select {
	case <-entered:
	case <-time.After(waitFor):
		t.Fatal("factory was not called")
	}

	shutdown := make(chan struct{})
	go func() {
		adapter.Shutdown(context.Background())
		close(shutdown)
	}()

	// Live drivers go first; the pending create keeps its session until it unwinds.
	require.Eventually(t, beta.Destroyed, waitFor, 5*time.Millisecond)
	require.Never(t, func() bool {
		select {
		case <-shutdown:
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, 5*time.Millisecond)
	require.True(t, registry.Exists("acme"))

	close(release)
	select {
	case err := <-created:
		require.True(t, gwerrors.Is(err, gwerrors.ErrUpstreamFailure))
	case <-time.After(waitFor):
		t.Fatal("create did not return")
	}
	select {
	case <-shutdown:
	case <-time.After(waitFor):
		t.Fatal("shutdown did not return")
	}

	acme, ok := pool.Get("acme")
	require.True(t, ok)
	require.True(t, acme.Destroyed())
	require.Empty(t, registry.List())
}
