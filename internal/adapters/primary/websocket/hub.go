package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/plantpulse/mes-backend/internal/core/domain"
	"github.com/plantpulse/mes-backend/internal/core/ports"
	"github.com/plantpulse/mes-backend/internal/infrastructure/metrics"
)

// Hub owns the lifecycle and room membership of every live session and fans
// outbound events out to them. It is the only component that mutates the
// session and room maps, and its run loop is the only writer into any
// session's send channel, which preserves per-session FIFO delivery.
type Hub struct {
	// sessions maps session ids to their connections.
	sessions map[uuid.UUID]*Client

	// rooms maps room keys ("user:<id>", "work-order:<id>") to members.
	rooms map[string]map[*Client]bool

	// broadcast carries outbound events; routing rides on the event itself.
	broadcast chan domain.Event

	// direct carries events addressed to a single session. Queuing them on
	// the hub loop keeps it the only writer into any Send channel, so a
	// directed send can never race the channel being closed by teardown.
	direct chan directedEvent

	// Register requests from new sessions.
	Register chan *Client

	// Unregister requests from closing sessions.
	Unregister chan *Client

	// mu protects the sessions and rooms maps.
	mu sync.RWMutex

	logger *slog.Logger
}

// directedEvent pairs an event with the one session it is for.
type directedEvent struct {
	client *Client
	event  domain.Event
}

// Ensure Hub implements the EventSink interface.
var _ ports.EventSink = (*Hub)(nil)

// NewHub creates a new session hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		sessions:   make(map[uuid.UUID]*Client),
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan domain.Event, 256),
		direct:     make(chan directedEvent, 64),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		logger:     logger.With("component", "websocket_hub"),
	}
}

// Broadcast queues an event for fan-out. Best-effort: a full hub queue drops
// the event with a warning rather than blocking the caller.
// This method implements the ports.EventSink interface.
func (h *Hub) Broadcast(event domain.Event) error {
	select {
	case h.broadcast <- event:
		return nil
	default:
		h.logger.Warn("broadcast channel full, dropping event",
			"event", event.Name,
			"room", event.Room,
		)
		metrics.DeliveriesDropped.Inc()
		return nil
	}
}

// Run starts the hub's event loop. This MUST be run as a goroutine; it
// returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.deliver(event)

		case d := <-h.direct:
			h.deliverDirect(d)
		}
	}
}

// registerClient adds a session to the hub. No user identity yet; that
// arrives with join-user-room.
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.sessions[client.ID] = client
	total := len(h.sessions)
	h.mu.Unlock()

	metrics.ConnectedSessions.Set(float64(total))

	h.logger.Info("session registered",
		"session_id", client.ID,
		"total_sessions", total,
	)
}

// unregisterClient removes a session and all of its room memberships in one
// critical section. Unregistering an unknown session is a no-op: disconnects
// legitimately race with in-flight room operations.
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()

	if _, ok := h.sessions[client.ID]; !ok {
		h.mu.Unlock()
		client.CloseSend()
		return
	}
	delete(h.sessions, client.ID)

	for _, roomKey := range client.Rooms() {
		if room, ok := h.rooms[roomKey]; ok {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, roomKey)
			}
		}
	}

	total := len(h.sessions)
	roomCount := len(h.rooms)
	h.mu.Unlock()

	client.CloseSend()

	metrics.ConnectedSessions.Set(float64(total))
	metrics.ActiveRooms.Set(float64(roomCount))

	// No presence broadcast: other sessions never learn a user went
	// offline. Intentional scope limitation.
	h.logger.Info("session unregistered",
		"session_id", client.ID,
		"user_id", client.GetUserID(),
	)
}

// deliver fans an event out to its target: every session for a broadcast, or
// the members of the event's room. At-most-once per session; a session that
// disconnects mid-fanout simply misses the event, with no retry or queuing.
func (h *Hub) deliver(event domain.Event) {
	h.mu.RLock()
	var targets []*Client
	if event.Room == "" {
		targets = make([]*Client, 0, len(h.sessions))
		for _, client := range h.sessions {
			targets = append(targets, client)
		}
	} else {
		room, ok := h.rooms[event.Room]
		if !ok {
			h.mu.RUnlock()
			return
		}
		targets = make([]*Client, 0, len(room))
		for client := range room {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	h.logger.Debug("delivering event",
		"event", event.Name,
		"room", event.Room,
		"session_count", len(targets),
	)

	for _, client := range targets {
		h.send(client, event)
	}
}

// deliverDirect sends an event to one session if it is still registered. A
// session torn down between queuing and processing simply misses the event.
func (h *Hub) deliverDirect(d directedEvent) {
	h.mu.RLock()
	_, ok := h.sessions[d.client.ID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	h.send(d.client, d.event)
}

// send queues an event on one session's buffer without blocking. A full
// buffer means the session cannot keep up; it gets unregistered inline
// because send only runs on the hub loop, which is also the Unregister
// receiver.
func (h *Hub) send(client *Client, event domain.Event) {
	select {
	case client.Send <- event:
	default:
		h.logger.Warn("session send buffer full, unregistering",
			"session_id", client.ID,
		)
		metrics.DeliveriesDropped.Inc()
		h.unregisterClient(client)
	}
}

// JoinUserRoom records the session's user identity, adds it to the user's
// room, and sends a welcome notification to that one session only.
// An unknown session id is a silent no-op.
func (h *Hub) JoinUserRoom(client *Client, userID string) {
	h.mu.Lock()
	if _, ok := h.sessions[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	client.SetUserID(userID)
	h.joinLocked(client, domain.UserRoom(userID))
	h.mu.Unlock()

	h.logger.Info("user joined their room",
		"session_id", client.ID,
		"user_id", userID,
	)

	// At-most-once and informational; a full queue just drops it. The
	// welcome goes through the hub loop rather than straight into
	// client.Send: this method runs on the session's read goroutine, and
	// only the hub loop may write a channel it also closes.
	welcome := directedEvent{
		client: client,
		event: domain.Broadcast(domain.EventNotification, domain.Notification{
			ID:        uuid.NewString(),
			Type:      domain.NotificationInfo,
			Title:     "Connected",
			Message:   "Real-time updates are now active",
			Module:    "System",
			Timestamp: time.Now(),
		}),
	}
	select {
	case h.direct <- welcome:
	default:
		h.logger.Warn("direct queue full, dropping welcome",
			"session_id", client.ID,
		)
		metrics.DeliveriesDropped.Inc()
	}
}

// JoinWorkOrderRoom subscribes a session to a work order's progress events.
// Joining twice is a no-op, never an error.
func (h *Hub) JoinWorkOrderRoom(client *Client, workOrderID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[client.ID]; !ok {
		return
	}
	h.joinLocked(client, domain.WorkOrderRoom(workOrderID))

	h.logger.Debug("session joined work order room",
		"session_id", client.ID,
		"work_order_id", workOrderID,
	)
}

// LeaveWorkOrderRoom unsubscribes a session from a work order's progress
// events. Leaving a room the session is not in is a no-op.
func (h *Hub) LeaveWorkOrderRoom(client *Client, workOrderID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	roomKey := domain.WorkOrderRoom(workOrderID)
	if room, ok := h.rooms[roomKey]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, roomKey)
		}
	}
	client.RemoveRoom(roomKey)
	metrics.ActiveRooms.Set(float64(len(h.rooms)))

	h.logger.Debug("session left work order room",
		"session_id", client.ID,
		"work_order_id", workOrderID,
	)
}

// joinLocked adds a session to a room, creating the room lazily. Callers
// must hold h.mu.
func (h *Hub) joinLocked(client *Client, roomKey string) {
	if h.rooms[roomKey] == nil {
		h.rooms[roomKey] = make(map[*Client]bool)
	}
	h.rooms[roomKey][client] = true
	client.AddRoom(roomKey)
	metrics.ActiveRooms.Set(float64(len(h.rooms)))
}

// SessionCount returns the total number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// RoomCount returns the number of rooms with at least one member.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// RoomSize returns the number of sessions in the given room.
func (h *Hub) RoomSize(roomKey string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if room, ok := h.rooms[roomKey]; ok {
		return len(room)
	}
	return 0
}

// IsUserConnected reports whether any session has joined the user's room.
func (h *Hub) IsUserConnected(userID string) bool {
	return h.RoomSize(domain.UserRoom(userID)) > 0
}
