package ports

import (
	"context"

	"github.com/plantpulse/mes-backend/internal/core/domain"
)

// EventSink delivers canonical events to connected sessions. Routing is
// carried by the event itself (empty Room = broadcast). Delivery is
// best-effort at-most-once per session; a returned error means the event
// could not even be queued, never that a particular peer missed it.
type EventSink interface {
	Broadcast(event domain.Event) error
}

// EventDispatcher validates nothing: it assumes well-typed input (the
// transport boundary rejects malformed payloads) and turns inbound actions
// into derived-state transitions plus outbound events.
type EventDispatcher interface {
	StartWorkOrder(ctx context.Context, action domain.StartWorkOrderAction)
	UpdateWorkOrderProgress(ctx context.Context, action domain.UpdateProgressAction)
	CompleteWorkOrder(ctx context.Context, action domain.CompleteWorkOrderAction)
	ReportQualityIssue(ctx context.Context, action domain.QualityIssueAction)
	UpdateStock(ctx context.Context, action domain.UpdateStockAction)
	UpdateManufacturingOrder(ctx context.Context, action domain.UpdateManufacturingOrderAction)

	// Read-only views of the derived work order cache.
	ActiveWorkOrder(workOrderID string) (domain.ActiveWorkOrder, bool)
	ActiveWorkOrders() []domain.ActiveWorkOrder
	ActiveWorkOrderCount() int
}

// MaterialCatalog resolves material display names for stock events. It holds
// no stock levels; the low-stock guard works purely off the reported
// quantity.
type MaterialCatalog interface {
	MaterialName(ctx context.Context, materialID string) (string, error)
}

// EventMirror republishes canonical events to an external channel (e.g. an
// MQTT broker for shop-floor consumers). Mirrors are optional and
// best-effort: failures are logged by the caller, never propagated.
type EventMirror interface {
	Mirror(ctx context.Context, event domain.Event) error
	Close()
}
