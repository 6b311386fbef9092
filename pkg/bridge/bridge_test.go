package bridge

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpAdapter "github.com/plantpulse/mes-backend/internal/adapters/primary/http"
	"github.com/plantpulse/mes-backend/internal/adapters/primary/websocket"
	"github.com/plantpulse/mes-backend/internal/auth"
	"github.com/plantpulse/mes-backend/internal/config"
	"github.com/plantpulse/mes-backend/internal/core/domain"
	"github.com/plantpulse/mes-backend/internal/core/services"
)

// trackingListener records accepted connections so tests can sever live
// websocket transports. httptest's CloseClientConnections forgets hijacked
// connections, so it cannot drop an established websocket.
type trackingListener struct {
	net.Listener

	mu    sync.Mutex
	conns []net.Conn
}

func (l *trackingListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err == nil {
		l.mu.Lock()
		l.conns = append(l.conns, conn)
		l.mu.Unlock()
	}
	return conn, err
}

func (l *trackingListener) closeConns() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, conn := range l.conns {
		_ = conn.Close()
	}
	l.conns = nil
}

type testBackend struct {
	server     *httptest.Server
	listener   *trackingListener
	dispatcher *services.Dispatcher
	hub        *websocket.Hub
	token      string
}

func (b *testBackend) wsURL() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http") + "/api/v1/ws"
}

// dropConnections severs every live transport at the TCP level, as a network
// failure would.
func (b *testBackend) dropConnections() {
	b.listener.closeConns()
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		WebSocket: config.WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		App: config.AppConfig{Environment: "development"},
	}

	tm := auth.NewTokenManager("test-secret", time.Hour)
	token, err := tm.GenerateToken("user-1")
	require.NoError(t, err)

	hub := websocket.NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	dispatcher := services.NewDispatcher(hub, nil, nil, logger)
	wsHandler := httpAdapter.NewWebSocketHandler(hub, dispatcher, tm, cfg, logger)

	server := httptest.NewUnstartedServer(wsHandler)
	listener := &trackingListener{Listener: server.Listener}
	server.Listener = listener
	server.Start()
	t.Cleanup(func() {
		server.Close()
		cancel()
	})

	return &testBackend{server: server, listener: listener, dispatcher: dispatcher, hub: hub, token: token}
}

func newTestBridge(t *testing.T, backend *testBackend) *Bridge {
	t.Helper()

	b := New(Config{
		URL:                backend.wsURL(),
		Token:              backend.token,
		ReconnectBaseDelay: 10 * time.Millisecond,
		Logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(b.Disconnect)
	return b
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func TestBridge_ConnectJoinsUserRoomAndReceivesWelcome(t *testing.T) {
	backend := newTestBackend(t)
	b := newTestBridge(t, backend)

	notifs := make(chan domain.Notification, 8)
	b.OnNotification(func(n domain.Notification) { notifs <- n })

	require.NoError(t, b.Connect(context.Background(), "user-1"))
	assert.Equal(t, StatusConnected, b.Status())

	welcome := waitFor(t, notifs, "welcome notification")
	assert.Equal(t, "Connected", welcome.Title)
	assert.Equal(t, domain.NotificationInfo, welcome.Type)

	require.Eventually(t, func() bool {
		return backend.hub.IsUserConnected("user-1")
	}, 2*time.Second, 10*time.Millisecond)

	// Connect is idempotent while connected.
	require.NoError(t, b.Connect(context.Background(), "user-1"))
}

func TestBridge_ConnectFailsAgainstDeadServer(t *testing.T) {
	b := New(Config{
		URL:    "ws://127.0.0.1:1/api/v1/ws",
		Token:  "irrelevant",
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	err := b.Connect(context.Background(), "user-1")
	require.Error(t, err)
	assert.Equal(t, StatusDisconnected, b.Status())
}

func TestBridge_StartWorkOrderRoundTrip(t *testing.T) {
	backend := newTestBackend(t)
	b := newTestBridge(t, backend)

	updates := make(chan WorkOrderUpdate, 8)
	b.OnWorkOrderUpdate(func(u WorkOrderUpdate) { updates <- u })

	require.NoError(t, b.Connect(context.Background(), "user-1"))

	b.StartWorkOrder(domain.StartWorkOrderAction{WorkOrderID: "WO-1", OperatorID: "op-1"})

	update := waitFor(t, updates, "work order update")
	assert.Equal(t, domain.EventWorkOrderStarted, update.Event)
	assert.Equal(t, "WO-1", update.WorkOrderID)
	assert.Equal(t, domain.StatusInProgress, update.Status)

	require.Eventually(t, func() bool {
		_, ok := backend.dispatcher.ActiveWorkOrder("WO-1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBridge_ProgressIsRoomScoped(t *testing.T) {
	backend := newTestBackend(t)

	member := newTestBridge(t, backend)
	outsider := newTestBridge(t, backend)

	memberUpdates := make(chan WorkOrderUpdate, 8)
	outsiderUpdates := make(chan WorkOrderUpdate, 8)
	member.OnWorkOrderUpdate(func(u WorkOrderUpdate) {
		if u.Event == domain.EventWorkOrderUpdated {
			memberUpdates <- u
		}
	})
	outsider.OnWorkOrderUpdate(func(u WorkOrderUpdate) {
		if u.Event == domain.EventWorkOrderUpdated {
			outsiderUpdates <- u
		}
	})

	require.NoError(t, member.Connect(context.Background(), "user-1"))
	require.NoError(t, outsider.Connect(context.Background(), "user-2"))

	member.JoinWorkOrderRoom("WO-1")
	require.Eventually(t, func() bool {
		return backend.hub.RoomSize(domain.WorkOrderRoom("WO-1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	backend.dispatcher.StartWorkOrder(context.Background(), domain.StartWorkOrderAction{WorkOrderID: "WO-1", OperatorID: "op-1"})
	backend.dispatcher.UpdateWorkOrderProgress(context.Background(), domain.UpdateProgressAction{WorkOrderID: "WO-1", Progress: 40})

	update := waitFor(t, memberUpdates, "room-scoped progress")
	assert.Equal(t, 40, update.Progress)

	select {
	case u := <-outsiderUpdates:
		t.Fatalf("outsider received room-scoped update for %s", u.WorkOrderID)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBridge_MilestoneNotificationIsBroadcast(t *testing.T) {
	backend := newTestBackend(t)
	b := newTestBridge(t, backend)

	notifs := make(chan domain.Notification, 8)
	b.OnNotification(func(n domain.Notification) {
		if n.Title == "Progress Update" {
			notifs <- n
		}
	})

	require.NoError(t, b.Connect(context.Background(), "user-1"))

	// The bridge is not in the work order room; the milestone notification
	// still arrives because notifications are always broadcast.
	backend.dispatcher.StartWorkOrder(context.Background(), domain.StartWorkOrderAction{WorkOrderID: "WO-1", OperatorID: "op-1"})
	backend.dispatcher.UpdateWorkOrderProgress(context.Background(), domain.UpdateProgressAction{WorkOrderID: "WO-1", Progress: 50})

	milestone := waitFor(t, notifs, "milestone notification")
	assert.Contains(t, milestone.Message, "50%")
}

func TestBridge_StockLowSynthesizesLocalNotification(t *testing.T) {
	backend := newTestBackend(t)
	b := newTestBridge(t, backend)

	stock := make(chan domain.StockUpdate, 8)
	notifs := make(chan domain.Notification, 8)
	b.OnStockUpdate(func(s domain.StockUpdate) { stock <- s })
	b.OnNotification(func(n domain.Notification) {
		if n.Title == "Low Stock Alert" {
			notifs <- n
		}
	})

	require.NoError(t, b.Connect(context.Background(), "user-1"))

	b.UpdateStock(domain.UpdateStockAction{
		MaterialID: "MAT-001",
		Quantity:   5,
		Operation:  domain.StockSubtract,
		Reason:     "Production draw",
	})

	// stock-updated then stock-low, both through the stock callback.
	first := waitFor(t, stock, "stock-updated")
	assert.Equal(t, "Production draw", first.Reason)
	second := waitFor(t, stock, "stock-low")
	assert.Equal(t, "Low stock detected", second.Reason)

	local := waitFor(t, notifs, "local low stock notification")
	assert.Equal(t, domain.NotificationWarning, local.Type)
	assert.Equal(t, "Stock Ledger", local.Module)
	assert.Contains(t, local.Message, "5 remaining")
}

func TestBridge_QualityAlertDelivery(t *testing.T) {
	backend := newTestBackend(t)
	b := newTestBridge(t, backend)

	alerts := make(chan domain.QualityAlert, 8)
	b.OnQualityAlert(func(q domain.QualityAlert) { alerts <- q })

	require.NoError(t, b.Connect(context.Background(), "user-1"))

	b.ReportQualityIssue(domain.QualityIssueAction{
		WorkOrderID: "WO-1",
		Type:        "dimensional",
		Severity:    domain.SeverityCritical,
		Description: "Bore out of tolerance",
		Inspector:   "qa-1",
	})

	alert := waitFor(t, alerts, "quality alert")
	assert.Equal(t, domain.SeverityCritical, alert.Severity)
	assert.Equal(t, "WO-1", alert.WorkOrderID)
}

func TestBridge_UnsubscribeStopsCallbacks(t *testing.T) {
	backend := newTestBackend(t)
	b := newTestBridge(t, backend)

	var order []string
	seen := make(chan struct{}, 8)

	unsubFirst := b.OnManufacturingOrderUpdate(func(domain.ManufacturingOrderUpdated) {
		order = append(order, "first")
		seen <- struct{}{}
	})
	b.OnManufacturingOrderUpdate(func(domain.ManufacturingOrderUpdated) {
		order = append(order, "second")
		seen <- struct{}{}
	})

	require.NoError(t, b.Connect(context.Background(), "user-1"))

	b.UpdateManufacturingOrder(domain.UpdateManufacturingOrderAction{ManufacturingOrderID: "MO-1"})
	waitFor(t, seen, "first callback")
	waitFor(t, seen, "second callback")

	// Callbacks fire in registration order on the read loop goroutine.
	assert.Equal(t, []string{"first", "second"}, order)

	unsubFirst()
	b.UpdateManufacturingOrder(domain.UpdateManufacturingOrderAction{ManufacturingOrderID: "MO-2"})
	waitFor(t, seen, "second callback after unsubscribe")

	select {
	case <-seen:
		t.Fatal("unsubscribed callback still fired")
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, []string{"first", "second", "second"}, order)
}

func TestBridge_EmitWhileDisconnectedIsDropped(t *testing.T) {
	backend := newTestBackend(t)
	b := newTestBridge(t, backend)

	// Never connected; must not panic or block.
	b.StartWorkOrder(domain.StartWorkOrderAction{WorkOrderID: "WO-1", OperatorID: "op-1"})
	assert.Equal(t, StatusDisconnected, b.Status())
	assert.Zero(t, backend.dispatcher.ActiveWorkOrderCount())
}

func TestBridge_ReconnectExhaustionParksDisconnected(t *testing.T) {
	backend := newTestBackend(t)
	b := newTestBridge(t, backend)

	require.NoError(t, b.Connect(context.Background(), "user-1"))
	require.Equal(t, StatusConnected, b.Status())

	// Stop the server and sever the live transport; every redial fails.
	backend.server.Close()
	backend.dropConnections()

	require.Eventually(t, func() bool {
		return b.Status() == StatusDisconnected
	}, 2*time.Second, time.Millisecond)

	// Wait out the whole backoff window (10+20+40+80+160ms), then confirm
	// the bridge is parked rather than between attempts.
	time.Sleep(600 * time.Millisecond)
	assert.Equal(t, StatusDisconnected, b.Status())

	// Parked means no further activity without an explicit Connect.
	b.StartWorkOrder(domain.StartWorkOrderAction{WorkOrderID: "WO-1", OperatorID: "op-1"})
	assert.Equal(t, StatusDisconnected, b.Status())
}

func TestBridge_ReconnectWalksStatusAndRejoinsUserRoom(t *testing.T) {
	backend := newTestBackend(t)
	b := newTestBridge(t, backend)

	require.NoError(t, b.Connect(context.Background(), "user-1"))
	require.Eventually(t, func() bool {
		return backend.hub.IsUserConnected("user-1")
	}, 2*time.Second, 10*time.Millisecond)

	// Record every observed status so the transitions themselves can be
	// asserted, not just the end state.
	var walkMu sync.Mutex
	walk := []Status{b.Status()}
	pollCtx, stopPolling := context.WithCancel(context.Background())
	defer stopPolling()
	go func() {
		for {
			select {
			case <-pollCtx.Done():
				return
			case <-time.After(time.Millisecond):
				s := b.Status()
				walkMu.Lock()
				if walk[len(walk)-1] != s {
					walk = append(walk, s)
				}
				walkMu.Unlock()
			}
		}
	}()

	// Sever the transport without stopping the server; the bridge redials
	// and re-joins the user room on its own.
	backend.dropConnections()

	require.Eventually(t, func() bool {
		return b.Status() == StatusConnected && backend.hub.IsUserConnected("user-1")
	}, 5*time.Second, time.Millisecond)
	stopPolling()

	walkMu.Lock()
	defer walkMu.Unlock()
	assert.Equal(t, StatusConnected, walk[0])
	assert.Contains(t, walk, StatusDisconnected)
	assert.Equal(t, StatusConnected, walk[len(walk)-1])
	assert.Greater(t, len(walk), 2, "expected intermediate statuses between drops: %v", walk)
}
