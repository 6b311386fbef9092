// Package bridge is the Go client for the realtime event layer. It keeps a
// single websocket session to the backend, republishes typed events to
// registered callbacks and reconnects with exponential backoff when the
// transport drops.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/plantpulse/mes-backend/internal/core/domain"
)

// Status is the bridge's connection state, polled via Status().
type Status string

const (
	StatusConnected    Status = "connected"
	StatusConnecting   Status = "connecting"
	StatusDisconnected Status = "disconnected"
)

const (
	defaultMaxReconnectAttempts = 5
	defaultReconnectBaseDelay   = time.Second
	defaultDialTimeout          = 10 * time.Second
)

// WorkOrderUpdate is the unified payload handed to work order callbacks.
// Started, progress and completion events all funnel through it; Event says
// which one arrived. Fields absent from a given event are zero.
type WorkOrderUpdate struct {
	Event       domain.EventName
	WorkOrderID string    `json:"workOrderId"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	Operator    string    `json:"operator"`
	TimeSpent   int       `json:"timeSpent"`
	Timestamp   time.Time `json:"timestamp"`
}

// Config holds bridge connection settings.
type Config struct {
	// URL is the websocket endpoint, e.g. "ws://localhost:8080/api/v1/ws".
	URL string

	// Token is the JWT presented at the handshake.
	Token string

	// MaxReconnectAttempts bounds automatic reconnects after a transport
	// error. Zero means the default of 5.
	MaxReconnectAttempts int

	// ReconnectBaseDelay is the first backoff step; it doubles per attempt.
	// Zero means the default of one second.
	ReconnectBaseDelay time.Duration

	Logger *slog.Logger
}

type callback[T any] struct {
	id int
	fn func(T)
}

// Bridge maintains the websocket session. All exported methods are safe for
// concurrent use.
type Bridge struct {
	cfg Config
	log *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	status Status
	userID string

	// gen invalidates stale read loops and reconnect loops after an
	// explicit Connect or Disconnect.
	gen int

	// writeMu serializes frame writes; gorilla allows one writer at a time.
	writeMu sync.Mutex

	cbMu             sync.Mutex
	nextCallbackID   int
	notificationCbs  []callback[domain.Notification]
	workOrderCbs     []callback[WorkOrderUpdate]
	manufacturingCbs []callback[domain.ManufacturingOrderUpdated]
	stockCbs         []callback[domain.StockUpdate]
	qualityCbs       []callback[domain.QualityAlert]
}

// New creates a disconnected bridge.
func New(cfg Config) *Bridge {
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = defaultReconnectBaseDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bridge{
		cfg:    cfg,
		log:    cfg.Logger.With("component", "bridge"),
		status: StatusDisconnected,
	}
}

// Connect dials the backend and joins the user's room. Calling Connect on an
// already connected or connecting bridge is a no-op.
func (b *Bridge) Connect(ctx context.Context, userID string) error {
	b.mu.Lock()
	if b.status != StatusDisconnected {
		b.mu.Unlock()
		return nil
	}
	b.status = StatusConnecting
	b.userID = userID
	b.gen++
	gen := b.gen
	b.mu.Unlock()

	conn, err := b.dial(ctx)
	if err != nil {
		b.mu.Lock()
		if b.gen == gen {
			b.status = StatusDisconnected
		}
		b.mu.Unlock()
		return fmt.Errorf("dial backend: %w", err)
	}

	b.adopt(conn, gen)
	return nil
}

// Disconnect tears down the session. Registered callbacks persist and start
// receiving again after the next Connect.
func (b *Bridge) Disconnect() {
	b.mu.Lock()
	b.gen++
	b.status = StatusDisconnected
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// Status returns the current connection state.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Bridge) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(b.cfg.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", b.cfg.Token)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: defaultDialTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	return conn, err
}

// adopt installs a freshly dialed connection, joins the user room and starts
// the read loop.
func (b *Bridge) adopt(conn *websocket.Conn, gen int) {
	b.mu.Lock()
	if b.gen != gen {
		// Disconnect raced the dial.
		b.mu.Unlock()
		_ = conn.Close()
		return
	}
	b.conn = conn
	b.status = StatusConnected
	userID := b.userID
	b.mu.Unlock()

	b.log.Info("connected", "user_id", userID)

	b.Emit(domain.EventJoinUserRoom, domain.JoinUserRoomAction{UserID: userID})

	go b.readLoop(conn, gen)
}

func (b *Bridge) readLoop(conn *websocket.Conn, gen int) {
	for {
		var env domain.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			b.mu.Lock()
			stale := b.gen != gen
			if !stale {
				b.status = StatusDisconnected
				b.conn = nil
			}
			b.mu.Unlock()

			_ = conn.Close()

			if stale {
				return
			}

			b.log.Warn("connection lost, reconnecting", "error", err)
			go b.reconnect(gen)
			return
		}

		b.dispatch(env)
	}
}

// reconnect retries with exponential backoff. The bridge reports connecting
// only while a dial is in flight and disconnected between attempts, so the
// status walk disconnected -> connecting -> connected is observable through
// Status(). After exhaustion the bridge parks in disconnected until an
// explicit Connect.
func (b *Bridge) reconnect(gen int) {
	delay := b.cfg.ReconnectBaseDelay

	for attempt := 1; attempt <= b.cfg.MaxReconnectAttempts; attempt++ {
		time.Sleep(delay)
		delay *= 2

		b.mu.Lock()
		if b.gen != gen {
			b.mu.Unlock()
			return
		}
		b.status = StatusConnecting
		b.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), defaultDialTimeout)
		conn, err := b.dial(ctx)
		cancel()

		if err != nil {
			b.mu.Lock()
			if b.gen == gen {
				b.status = StatusDisconnected
			}
			b.mu.Unlock()

			b.log.Warn("reconnect attempt failed",
				"attempt", attempt,
				"max_attempts", b.cfg.MaxReconnectAttempts,
				"error", err,
			)
			continue
		}

		b.adopt(conn, gen)
		return
	}

	b.log.Error("reconnect attempts exhausted")
}

// Emit sends one fire-and-forget action frame. Silently dropped when the
// bridge is not connected.
func (b *Bridge) Emit(name domain.EventName, data any) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	if conn == nil {
		b.log.Debug("emit dropped, not connected", "event", name)
		return
	}

	payload, err := json.Marshal(data)
	if err != nil {
		b.log.Warn("failed to marshal action", "event", name, "error", err)
		return
	}

	b.writeMu.Lock()
	err = conn.WriteJSON(domain.Envelope{Event: name, Data: payload})
	b.writeMu.Unlock()

	if err != nil {
		b.log.Warn("failed to write action", "event", name, "error", err)
	}
}

// Typed emits.

func (b *Bridge) JoinWorkOrderRoom(workOrderID string) {
	b.Emit(domain.EventJoinWorkOrderRoom, domain.WorkOrderRoomAction{WorkOrderID: workOrderID})
}

func (b *Bridge) LeaveWorkOrderRoom(workOrderID string) {
	b.Emit(domain.EventLeaveWorkOrderRoom, domain.WorkOrderRoomAction{WorkOrderID: workOrderID})
}

func (b *Bridge) StartWorkOrder(action domain.StartWorkOrderAction) {
	b.Emit(domain.EventStartWorkOrder, action)
}

func (b *Bridge) UpdateWorkOrderProgress(action domain.UpdateProgressAction) {
	b.Emit(domain.EventUpdateWorkOrderProgress, action)
}

func (b *Bridge) CompleteWorkOrder(action domain.CompleteWorkOrderAction) {
	b.Emit(domain.EventCompleteWorkOrder, action)
}

func (b *Bridge) ReportQualityIssue(action domain.QualityIssueAction) {
	b.Emit(domain.EventQualityIssue, action)
}

func (b *Bridge) UpdateStock(action domain.UpdateStockAction) {
	b.Emit(domain.EventUpdateStock, action)
}

func (b *Bridge) UpdateManufacturingOrder(action domain.UpdateManufacturingOrderAction) {
	b.Emit(domain.EventUpdateManufacturingOrder, action)
}

// Subscriptions. Each On* registers a callback and returns its unsubscribe
// func. Callbacks run on the read loop goroutine in registration order.

func subscribe[T any](b *Bridge, list *[]callback[T], fn func(T)) func() {
	b.cbMu.Lock()
	b.nextCallbackID++
	id := b.nextCallbackID
	*list = append(*list, callback[T]{id: id, fn: fn})
	b.cbMu.Unlock()

	return func() {
		b.cbMu.Lock()
		defer b.cbMu.Unlock()
		for i, cb := range *list {
			if cb.id == id {
				*list = append((*list)[:i], (*list)[i+1:]...)
				return
			}
		}
	}
}

func (b *Bridge) OnNotification(fn func(domain.Notification)) func() {
	return subscribe(b, &b.notificationCbs, fn)
}

func (b *Bridge) OnWorkOrderUpdate(fn func(WorkOrderUpdate)) func() {
	return subscribe(b, &b.workOrderCbs, fn)
}

func (b *Bridge) OnManufacturingOrderUpdate(fn func(domain.ManufacturingOrderUpdated)) func() {
	return subscribe(b, &b.manufacturingCbs, fn)
}

func (b *Bridge) OnStockUpdate(fn func(domain.StockUpdate)) func() {
	return subscribe(b, &b.stockCbs, fn)
}

func (b *Bridge) OnQualityAlert(fn func(domain.QualityAlert)) func() {
	return subscribe(b, &b.qualityCbs, fn)
}

func snapshot[T any](b *Bridge, list *[]callback[T]) []callback[T] {
	b.cbMu.Lock()
	defer b.cbMu.Unlock()
	out := make([]callback[T], len(*list))
	copy(out, *list)
	return out
}

func (b *Bridge) dispatch(env domain.Envelope) {
	switch env.Event {
	case domain.EventNotification:
		var n domain.Notification
		if !b.decode(env, &n) {
			return
		}
		for _, cb := range snapshot(b, &b.notificationCbs) {
			cb.fn(n)
		}

	case domain.EventWorkOrderStarted, domain.EventWorkOrderUpdated, domain.EventWorkOrderCompleted:
		var u WorkOrderUpdate
		if !b.decode(env, &u) {
			return
		}
		u.Event = env.Event
		for _, cb := range snapshot(b, &b.workOrderCbs) {
			cb.fn(u)
		}

	case domain.EventManufacturingOrderUpdated:
		var m domain.ManufacturingOrderUpdated
		if !b.decode(env, &m) {
			return
		}
		for _, cb := range snapshot(b, &b.manufacturingCbs) {
			cb.fn(m)
		}

	case domain.EventStockUpdated:
		var s domain.StockUpdate
		if !b.decode(env, &s) {
			return
		}
		for _, cb := range snapshot(b, &b.stockCbs) {
			cb.fn(s)
		}

	case domain.EventStockLow:
		var s domain.StockUpdate
		if !b.decode(env, &s) {
			return
		}
		for _, cb := range snapshot(b, &b.stockCbs) {
			cb.fn(s)
		}
		// The server derives no notification for stock-low; surface one
		// locally so inventory alerts reach the notification feed.
		local := domain.Notification{
			ID:        uuid.NewString(),
			Type:      domain.NotificationWarning,
			Title:     "Low Stock Alert",
			Message:   fmt.Sprintf("%s is running low (%d remaining)", s.MaterialName, s.Quantity),
			Module:    "Stock Ledger",
			Timestamp: time.Now(),
		}
		for _, cb := range snapshot(b, &b.notificationCbs) {
			cb.fn(local)
		}

	case domain.EventQualityAlert:
		var q domain.QualityAlert
		if !b.decode(env, &q) {
			return
		}
		for _, cb := range snapshot(b, &b.qualityCbs) {
			cb.fn(q)
		}

	default:
		b.log.Debug("ignoring unknown event", "event", env.Event)
	}
}

func (b *Bridge) decode(env domain.Envelope, v any) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		b.log.Warn("failed to decode event payload", "event", env.Event, "error", err)
		return false
	}
	return true
}
