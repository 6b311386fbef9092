package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/plantpulse/mes-backend/internal/core/domain"
	"github.com/plantpulse/mes-backend/internal/core/ports"
	"github.com/plantpulse/mes-backend/internal/infrastructure/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Client is a middleman between one websocket connection and the hub. It is
// created at upgrade time with a fresh session id and destroyed when the
// transport closes or the read deadline lapses.
type Client struct {
	// ID is the opaque session identifier.
	ID uuid.UUID

	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound events.
	Send chan domain.Event

	// Dispatcher receives validated inbound actions.
	Dispatcher ports.EventDispatcher

	// ConnectedAt is set once at handshake time.
	ConnectedAt time.Time

	// userID is empty until the session joins its user room.
	userID string

	// rooms is this session's membership set.
	rooms map[string]bool

	// lastSeen is updated on every inbound frame.
	lastSeen time.Time

	// closeOnce ensures the Send channel is only closed once.
	closeOnce sync.Once

	// mu protects userID, rooms and lastSeen.
	mu sync.RWMutex

	logger *slog.Logger
}

// NewClient creates a session for an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, dispatcher ports.EventDispatcher, logger *slog.Logger) *Client {
	id := uuid.New()
	now := time.Now()
	return &Client{
		ID:          id,
		Hub:         hub,
		Conn:        conn,
		Send:        make(chan domain.Event, 256),
		Dispatcher:  dispatcher,
		ConnectedAt: now,
		rooms:       make(map[string]bool),
		lastSeen:    now,
		logger:      logger.With("session_id", id.String()),
	}
}

// CloseSend safely closes the Send channel exactly once.
func (c *Client) CloseSend() {
	c.closeOnce.Do(func() {
		close(c.Send)
	})
}

// SetUserID records the session's user identity.
func (c *Client) SetUserID(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
}

// GetUserID returns the session's user identity, empty until joined.
func (c *Client) GetUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// LastSeen returns the time of the most recent inbound frame.
func (c *Client) LastSeen() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeen
}

// AddRoom records a room membership on the session.
func (c *Client) AddRoom(roomKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[roomKey] = true
}

// RemoveRoom drops a room membership from the session.
func (c *Client) RemoveRoom(roomKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, roomKey)
}

// Rooms returns a copy of the session's memberships.
func (c *Client) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.rooms))
	for roomKey := range c.rooms {
		keys = append(keys, roomKey)
	}
	return keys
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// ReadPump pumps messages from the websocket connection to the hub and
// dispatcher. This method runs in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		c.touch()
		c.handleIncomingMessage(message)
	}
}

// WritePump pumps events from the hub to the websocket connection.
// This method runs in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}

			if !ok {
				// The hub closed the channel. Send close message.
				if err := c.Conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug("failed to send close message", "error", err)
				}
				return
			}

			if err := c.writeJSON(event); err != nil {
				c.logger.Error("failed to write event", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}

			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

// writeJSON writes one event frame to the websocket connection.
func (c *Client) writeJSON(event domain.Event) error {
	w, err := c.Conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}

	if err := json.NewEncoder(w).Encode(event); err != nil {
		_ = w.Close()
		return err
	}

	return w.Close()
}

// handleIncomingMessage decodes and routes one inbound frame. Malformed
// payloads and missing correlation ids are dropped here, before the
// dispatcher: fail-silent, matching the fire-and-forget publish contract.
func (c *Client) handleIncomingMessage(message []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.logger.Warn("failed to unmarshal client message", "error", err)
		return
	}

	ctx := context.Background()

	switch env.Event {
	case domain.EventJoinUserRoom:
		var a domain.JoinUserRoomAction
		if !c.decode(env, &a) || a.UserID == "" {
			return
		}
		c.Hub.JoinUserRoom(c, a.UserID)

	case domain.EventJoinWorkOrderRoom:
		var a domain.WorkOrderRoomAction
		if !c.decode(env, &a) || a.WorkOrderID == "" {
			return
		}
		c.Hub.JoinWorkOrderRoom(c, a.WorkOrderID)

	case domain.EventLeaveWorkOrderRoom:
		var a domain.WorkOrderRoomAction
		if !c.decode(env, &a) || a.WorkOrderID == "" {
			return
		}
		c.Hub.LeaveWorkOrderRoom(c, a.WorkOrderID)

	case domain.EventStartWorkOrder:
		var a domain.StartWorkOrderAction
		if !c.decode(env, &a) || a.WorkOrderID == "" {
			return
		}
		c.Dispatcher.StartWorkOrder(ctx, a)

	case domain.EventUpdateWorkOrderProgress:
		var a domain.UpdateProgressAction
		if !c.decode(env, &a) || a.WorkOrderID == "" {
			return
		}
		c.Dispatcher.UpdateWorkOrderProgress(ctx, a)

	case domain.EventCompleteWorkOrder:
		var a domain.CompleteWorkOrderAction
		if !c.decode(env, &a) || a.WorkOrderID == "" {
			return
		}
		c.Dispatcher.CompleteWorkOrder(ctx, a)

	case domain.EventQualityIssue:
		var a domain.QualityIssueAction
		if !c.decode(env, &a) || a.WorkOrderID == "" {
			return
		}
		c.Dispatcher.ReportQualityIssue(ctx, a)

	case domain.EventUpdateStock:
		var a domain.UpdateStockAction
		if !c.decode(env, &a) || a.MaterialID == "" {
			return
		}
		c.Dispatcher.UpdateStock(ctx, a)

	case domain.EventUpdateManufacturingOrder:
		var a domain.UpdateManufacturingOrderAction
		if !c.decode(env, &a) || a.ManufacturingOrderID == "" {
			return
		}
		c.Dispatcher.UpdateManufacturingOrder(ctx, a)

	default:
		c.logger.Debug("received unknown event", "event", env.Event)
		return
	}

	metrics.ActionsReceived.WithLabelValues(string(env.Event)).Inc()
}

// decode unmarshals an envelope payload, logging and dropping on failure.
func (c *Client) decode(env domain.Envelope, v any) bool {
	if len(env.Data) == 0 {
		c.logger.Warn("client message missing data", "event", env.Event)
		return false
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		c.logger.Warn("failed to unmarshal action payload",
			"event", env.Event,
			"error", err,
		)
		return false
	}
	return true
}
