package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	mw "github.com/plantpulse/mes-backend/internal/adapters/primary/http/middleware"
	wsAdapter "github.com/plantpulse/mes-backend/internal/adapters/primary/websocket"
	"github.com/plantpulse/mes-backend/internal/core/domain"
	apperrors "github.com/plantpulse/mes-backend/internal/core/errors"
	"github.com/plantpulse/mes-backend/internal/core/ports"
)

// StatusHandler exposes a snapshot of the realtime layer and a manual
// notification trigger for operators and smoke tests.
type StatusHandler struct {
	hub        *wsAdapter.Hub
	dispatcher ports.EventDispatcher
	errors     *ErrorHandler
	logger     *slog.Logger
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(hub *wsAdapter.Hub, dispatcher ports.EventDispatcher, errorHandler *ErrorHandler, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		hub:        hub,
		dispatcher: dispatcher,
		errors:     errorHandler,
		logger:     logger,
	}
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	ConnectedUsers   int    `json:"connectedUsers"`
	ActiveWorkOrders int    `json:"activeWorkOrders"`
	ServerHealth     string `json:"serverHealth"`
}

// GetStatus handles GET /api/v1/status.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, StatusResponse{
		ConnectedUsers:   h.hub.SessionCount(),
		ActiveWorkOrders: h.dispatcher.ActiveWorkOrderCount(),
		ServerHealth:     "good",
	})
}

// TriggerNotificationRequest is the body of POST /api/v1/trigger-notification.
// Every field is optional; missing fields get placeholder defaults.
type TriggerNotificationRequest struct {
	Type    domain.NotificationType `json:"type"`
	Title   string                  `json:"title"`
	Message string                  `json:"message"`
	Module  string                  `json:"module"`
}

// TriggerNotificationResponse is the body of a successful trigger.
type TriggerNotificationResponse struct {
	Success      bool                `json:"success"`
	Notification domain.Notification `json:"notification"`
}

// TriggerNotification handles POST /api/v1/trigger-notification. It builds a
// notification from the request body and broadcasts it to every session.
func (h *StatusHandler) TriggerNotification(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	var req TriggerNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errors.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid request body"))
		return
	}

	if req.Type == "" {
		req.Type = domain.NotificationInfo
	}
	if req.Title == "" {
		req.Title = "Manual Notification"
	}
	if req.Message == "" {
		req.Message = "This is a test notification"
	}
	if req.Module == "" {
		req.Module = "System"
	}

	notification := domain.Notification{
		ID:        uuid.NewString(),
		Type:      req.Type,
		Title:     req.Title,
		Message:   req.Message,
		Module:    req.Module,
		Timestamp: time.Now(),
	}

	if err := h.hub.Broadcast(domain.Broadcast(domain.EventNotification, notification)); err != nil {
		h.logger.Error("failed to broadcast manual notification",
			"request_id", requestID,
			"error", err,
		)
		WriteJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "Delivery channel unavailable"})
		return
	}

	triggeredBy := "unknown"
	if claims, ok := mw.ClaimsFromContext(r.Context()); ok {
		triggeredBy = claims.UserID
	}

	h.logger.Info("manual notification broadcast",
		"request_id", requestID,
		"notification_id", notification.ID,
		"type", notification.Type,
		"triggered_by", triggeredBy,
	)

	WriteJSON(w, http.StatusOK, TriggerNotificationResponse{
		Success:      true,
		Notification: notification,
	})
}
