package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/plantpulse/mes-backend/internal/core/domain"
	"github.com/plantpulse/mes-backend/internal/core/ports"
	"github.com/plantpulse/mes-backend/internal/infrastructure/metrics"
)

const (
	// lowStockThreshold triggers a stock-low event on decrements below it.
	// Fixed by design; there is no configuration surface for it.
	lowStockThreshold = 20
)

// progressMilestones are the exact progress values that produce an additional
// broadcast notification. Equality check per update, no latch: a correction
// landing on a milestone again re-notifies.
var progressMilestones = map[int]bool{25: true, 50: true, 75: true}

// Dispatcher turns inbound actions into derived-state transitions and
// outbound events. It owns the active work order cache exclusively; all
// mutation is serialized through its mutex because actions arrive from
// concurrent session read loops.
type Dispatcher struct {
	sink    ports.EventSink
	catalog ports.MaterialCatalog
	mirror  ports.EventMirror
	logger  *slog.Logger

	mu     sync.Mutex
	active map[string]*domain.ActiveWorkOrder

	// Injectable for tests.
	now   func() time.Time
	newID func() string
}

var _ ports.EventDispatcher = (*Dispatcher)(nil)

// NewDispatcher creates an event dispatcher. mirror may be nil.
func NewDispatcher(
	sink ports.EventSink,
	catalog ports.MaterialCatalog,
	mirror ports.EventMirror,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		sink:    sink,
		catalog: catalog,
		mirror:  mirror,
		logger:  logger.With("component", "dispatcher"),
		active:  make(map[string]*domain.ActiveWorkOrder),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// StartWorkOrder unconditionally (re)creates the active record with progress
// zero. Starting an already completed or unknown work order simply re-enters
// "In Progress" with a fresh record.
func (d *Dispatcher) StartWorkOrder(ctx context.Context, action domain.StartWorkOrderAction) {
	now := d.now()

	d.mu.Lock()
	d.active[action.WorkOrderID] = &domain.ActiveWorkOrder{
		WorkOrderID: action.WorkOrderID,
		Status:      domain.StatusInProgress,
		Progress:    0,
		OperatorID:  action.OperatorID,
		StartedAt:   now,
	}
	metrics.ActiveWorkOrders.Set(float64(len(d.active)))
	d.mu.Unlock()

	d.emit(ctx, domain.Broadcast(domain.EventWorkOrderStarted, domain.WorkOrderStarted{
		WorkOrderID: action.WorkOrderID,
		Status:      domain.StatusInProgress,
		Progress:    0,
		Operator:    action.OperatorID,
		Timestamp:   now,
	}))

	d.emit(ctx, domain.Broadcast(domain.EventNotification, domain.Notification{
		ID:          d.newID(),
		Type:        domain.NotificationInfo,
		Title:       "Work Order Started",
		Message:     fmt.Sprintf("Work Order %s has been started by operator %s", action.WorkOrderID, action.OperatorID),
		Module:      "Work Orders",
		Timestamp:   now,
		WorkOrderID: action.WorkOrderID,
	}))
}

// UpdateWorkOrderProgress applies a progress report to an active work order.
// No active record means the whole action is a silent no-op. The submitted
// value is clamped to [0,100] and then floored at the stored progress, so
// delivered progress never decreases within one activation.
func (d *Dispatcher) UpdateWorkOrderProgress(ctx context.Context, action domain.UpdateProgressAction) {
	now := d.now()

	status := action.Status
	if status == "" {
		status = domain.StatusInProgress
	}

	d.mu.Lock()
	rec, ok := d.active[action.WorkOrderID]
	if !ok {
		d.mu.Unlock()
		d.logger.Debug("progress update for inactive work order dropped",
			"work_order_id", action.WorkOrderID,
		)
		return
	}

	progress := clampProgress(action.Progress)
	if progress < rec.Progress {
		progress = rec.Progress
	}
	rec.Progress = progress
	rec.Status = status
	d.mu.Unlock()

	d.emit(ctx, domain.ToRoom(
		domain.WorkOrderRoom(action.WorkOrderID),
		domain.EventWorkOrderUpdated,
		domain.WorkOrderUpdated{
			WorkOrderID: action.WorkOrderID,
			Progress:    progress,
			Status:      status,
			Timestamp:   now,
		},
	))

	if progressMilestones[progress] {
		d.emit(ctx, domain.Broadcast(domain.EventNotification, domain.Notification{
			ID:          d.newID(),
			Type:        domain.NotificationInfo,
			Title:       "Progress Update",
			Message:     fmt.Sprintf("Work Order %s is %d%% complete", action.WorkOrderID, progress),
			Module:      "Work Orders",
			Timestamp:   now,
			WorkOrderID: action.WorkOrderID,
		}))
	}
}

// CompleteWorkOrder removes the active record and announces completion.
// Progress is forced to 100 regardless of the last reported value, and the
// completion is emitted even if no active record exists.
func (d *Dispatcher) CompleteWorkOrder(ctx context.Context, action domain.CompleteWorkOrderAction) {
	now := d.now()

	d.mu.Lock()
	delete(d.active, action.WorkOrderID)
	metrics.ActiveWorkOrders.Set(float64(len(d.active)))
	d.mu.Unlock()

	d.emit(ctx, domain.Broadcast(domain.EventWorkOrderCompleted, domain.WorkOrderCompleted{
		WorkOrderID: action.WorkOrderID,
		Status:      domain.StatusCompleted,
		Progress:    100,
		Operator:    action.OperatorID,
		Timestamp:   now,
		TimeSpent:   action.TimeSpent,
	}))

	d.emit(ctx, domain.Broadcast(domain.EventNotification, domain.Notification{
		ID:          d.newID(),
		Type:        domain.NotificationSuccess,
		Title:       "Work Order Completed",
		Message:     fmt.Sprintf("Work Order %s has been completed by %s", action.WorkOrderID, action.OperatorID),
		Module:      "Work Orders",
		Timestamp:   now,
		WorkOrderID: action.WorkOrderID,
	}))
}

// ReportQualityIssue is stateless: it always produces a quality-alert plus a
// derived notification whose severity and actionRequired flag depend only on
// whether the reported severity is critical.
func (d *Dispatcher) ReportQualityIssue(ctx context.Context, action domain.QualityIssueAction) {
	now := d.now()
	alertID := d.newID()

	d.emit(ctx, domain.Broadcast(domain.EventQualityAlert, domain.QualityAlert{
		ID:          alertID,
		WorkOrderID: action.WorkOrderID,
		Type:        action.Type,
		Severity:    action.Severity,
		Description: action.Description,
		Inspector:   action.Inspector,
		Timestamp:   now,
	}))

	critical := action.Severity == domain.SeverityCritical
	notifType := domain.NotificationWarning
	if critical {
		notifType = domain.NotificationError
	}

	d.emit(ctx, domain.Broadcast(domain.EventNotification, domain.Notification{
		ID:             alertID,
		Type:           notifType,
		Title:          "Quality Alert",
		Message:        action.Description,
		Module:         "Quality Control",
		Timestamp:      now,
		WorkOrderID:    action.WorkOrderID,
		ActionRequired: critical,
	}))
}

// UpdateStock is a stateless pass-through. The low-stock check is a guard on
// the reported quantity, not a lookup of any authoritative stock level.
func (d *Dispatcher) UpdateStock(ctx context.Context, action domain.UpdateStockAction) {
	now := d.now()
	name := d.materialName(ctx, action.MaterialID)

	d.emit(ctx, domain.Broadcast(domain.EventStockUpdated, domain.StockUpdate{
		MaterialID:   action.MaterialID,
		MaterialName: name,
		Quantity:     action.Quantity,
		Operation:    action.Operation,
		Reason:       action.Reason,
		Timestamp:    now,
	}))

	if action.Operation == domain.StockSubtract && action.Quantity < lowStockThreshold {
		d.emit(ctx, domain.Broadcast(domain.EventStockLow, domain.StockUpdate{
			MaterialID:   action.MaterialID,
			MaterialName: name,
			Quantity:     action.Quantity,
			Operation:    action.Operation,
			Reason:       "Low stock detected",
			Timestamp:    now,
		}))
	}
}

// UpdateManufacturingOrder is a stateless pass-through.
func (d *Dispatcher) UpdateManufacturingOrder(ctx context.Context, action domain.UpdateManufacturingOrderAction) {
	d.emit(ctx, domain.Broadcast(domain.EventManufacturingOrderUpdated, domain.ManufacturingOrderUpdated{
		ManufacturingOrderID: action.ManufacturingOrderID,
		Status:               action.Status,
		CompletedQuantity:    action.CompletedQuantity,
		Timestamp:            d.now(),
	}))
}

// ActiveWorkOrder returns a copy of the derived record for the given id.
func (d *Dispatcher) ActiveWorkOrder(workOrderID string) (domain.ActiveWorkOrder, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.active[workOrderID]
	if !ok {
		return domain.ActiveWorkOrder{}, false
	}
	return *rec, true
}

// ActiveWorkOrders returns a snapshot of all derived records.
func (d *Dispatcher) ActiveWorkOrders() []domain.ActiveWorkOrder {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.ActiveWorkOrder, 0, len(d.active))
	for _, rec := range d.active {
		out = append(out, *rec)
	}
	return out
}

// ActiveWorkOrderCount returns the number of work orders in the cache.
func (d *Dispatcher) ActiveWorkOrderCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}

// emit delivers one canonical event to the sink and, when configured, to the
// mirror. Both paths are best-effort: failures are logged and swallowed.
func (d *Dispatcher) emit(ctx context.Context, event domain.Event) {
	metrics.EventsDispatched.WithLabelValues(string(event.Name)).Inc()

	if err := d.sink.Broadcast(event); err != nil {
		d.logger.Warn("failed to queue event for delivery",
			"event", event.Name,
			"error", err,
		)
	}

	if d.mirror != nil {
		if err := d.mirror.Mirror(ctx, event); err != nil {
			d.logger.Warn("failed to mirror event",
				"event", event.Name,
				"error", err,
			)
		}
	}
}

// materialName resolves the display name for a material, falling back to the
// generated placeholder when the catalog cannot answer.
func (d *Dispatcher) materialName(ctx context.Context, materialID string) string {
	if d.catalog != nil {
		if name, err := d.catalog.MaterialName(ctx, materialID); err == nil && name != "" {
			return name
		} else if err != nil {
			d.logger.Debug("material name lookup failed",
				"material_id", materialID,
				"error", err,
			)
		}
	}
	return fmt.Sprintf("Material %s", materialID)
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
