package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/plantpulse/mes-backend/internal/core/domain"
	"github.com/plantpulse/mes-backend/internal/core/mocks"
)

var testTime = time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)

func newTestDispatcher(sink *mocks.RecordingSink) *Dispatcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := NewDispatcher(sink, nil, nil, logger)
	d.now = func() time.Time { return testTime }

	seq := 0
	d.newID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return d
}

func TestStartWorkOrder_CreatesRecordAndEmits(t *testing.T) {
	sink := mocks.NewRecordingSink()
	d := newTestDispatcher(sink)
	ctx := context.Background()

	d.StartWorkOrder(ctx, domain.StartWorkOrderAction{WorkOrderID: "WO-1", OperatorID: "op-1"})

	rec, ok := d.ActiveWorkOrder("WO-1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusInProgress, rec.Status)
	assert.Equal(t, 0, rec.Progress)
	assert.Equal(t, "op-1", rec.OperatorID)

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventWorkOrderStarted, events[0].Name)
	assert.Empty(t, events[0].Room)

	started, ok := events[0].Data.(domain.WorkOrderStarted)
	require.True(t, ok)
	assert.Equal(t, "WO-1", started.WorkOrderID)
	assert.Equal(t, domain.StatusInProgress, started.Status)

	notif, ok := events[1].Data.(domain.Notification)
	require.True(t, ok)
	assert.Equal(t, domain.NotificationInfo, notif.Type)
	assert.Equal(t, "Work Order Started", notif.Title)
	assert.Contains(t, notif.Message, "WO-1")
	assert.Contains(t, notif.Message, "op-1")
}

func TestStartWorkOrder_RestartResetsProgress(t *testing.T) {
	sink := mocks.NewRecordingSink()
	d := newTestDispatcher(sink)
	ctx := context.Background()

	d.StartWorkOrder(ctx, domain.StartWorkOrderAction{WorkOrderID: "WO-1", OperatorID: "op-1"})
	d.UpdateWorkOrderProgress(ctx, domain.UpdateProgressAction{WorkOrderID: "WO-1", Progress: 60})

	// A second start recreates the record from scratch.
	d.StartWorkOrder(ctx, domain.StartWorkOrderAction{WorkOrderID: "WO-1", OperatorID: "op-2"})

	rec, ok := d.ActiveWorkOrder("WO-1")
	require.True(t, ok)
	assert.Equal(t, 0, rec.Progress)
	assert.Equal(t, "op-2", rec.OperatorID)
}

func TestUpdateProgress_InactiveWorkOrderIsNoOp(t *testing.T) {
	sink := mocks.NewRecordingSink()
	d := newTestDispatcher(sink)

	d.UpdateWorkOrderProgress(context.Background(), domain.UpdateProgressAction{WorkOrderID: "WO-missing", Progress: 50})

	assert.Empty(t, sink.Events())
	assert.Zero(t, d.ActiveWorkOrderCount())
}

func TestUpdateProgress_ClampsAndNeverDecreases(t *testing.T) {
	sink := mocks.NewRecordingSink()
	d := newTestDispatcher(sink)
	ctx := context.Background()

	d.StartWorkOrder(ctx, domain.StartWorkOrderAction{WorkOrderID: "WO-1", OperatorID: "op-1"})
	sink.Reset()

	d.UpdateWorkOrderProgress(ctx, domain.UpdateProgressAction{WorkOrderID: "WO-1", Progress: 140})
	rec, _ := d.ActiveWorkOrder("WO-1")
	assert.Equal(t, 100, rec.Progress)

	// A lower report floors at the stored value.
	d.UpdateWorkOrderProgress(ctx, domain.UpdateProgressAction{WorkOrderID: "WO-1", Progress: 30})
	rec, _ = d.ActiveWorkOrder("WO-1")
	assert.Equal(t, 100, rec.Progress)

	updates := sink.Named(domain.EventWorkOrderUpdated)
	require.Len(t, updates, 2)
	assert.Equal(t, 100, updates[1].Data.(domain.WorkOrderUpdated).Progress)

	// Negative reports clamp to zero (floored at stored progress here).
	d.StartWorkOrder(ctx, domain.StartWorkOrderAction{WorkOrderID: "WO-2", OperatorID: "op-1"})
	d.UpdateWorkOrderProgress(ctx, domain.UpdateProgressAction{WorkOrderID: "WO-2", Progress: -5})
	rec, _ = d.ActiveWorkOrder("WO-2")
	assert.Equal(t, 0, rec.Progress)
}

func TestUpdateProgress_EventsAreRoomScoped(t *testing.T) {
	sink := mocks.NewRecordingSink()
	d := newTestDispatcher(sink)
	ctx := context.Background()

	d.StartWorkOrder(ctx, domain.StartWorkOrderAction{WorkOrderID: "WO-1", OperatorID: "op-1"})
	d.UpdateWorkOrderProgress(ctx, domain.UpdateProgressAction{WorkOrderID: "WO-1", Progress: 10})

	updates := sink.Named(domain.EventWorkOrderUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, domain.WorkOrderRoom("WO-1"), updates[0].Room)
}

func TestUpdateProgress_DefaultsStatusToInProgress(t *testing.T) {
	sink := mocks.NewRecordingSink()
	d := newTestDispatcher(sink)
	ctx := context.Background()

	d.StartWorkOrder(ctx, domain.StartWorkOrderAction{WorkOrderID: "WO-1", OperatorID: "op-1"})
	d.UpdateWorkOrderProgress(ctx, domain.UpdateProgressAction{WorkOrderID: "WO-1", Progress: 10})
	d.UpdateWorkOrderProgress(ctx, domain.UpdateProgressAction{WorkOrderID: "WO-1", Progress: 20, Status: domain.StatusPaused})

	updates := sink.Named(domain.EventWorkOrderUpdated)
	require.Len(t, updates, 2)
	assert.Equal(t, domain.StatusInProgress, updates[0].Data.(domain.WorkOrderUpdated).Status)
	assert.Equal(t, domain.StatusPaused, updates[1].Data.(domain.WorkOrderUpdated).Status)

	rec, _ := d.ActiveWorkOrder("WO-1")
	assert.Equal(t, domain.StatusPaused, rec.Status)
}

func TestUpdateProgress_MilestoneNotifications(t *testing.T) {
	sink := mocks.NewRecordingSink()
	d := newTestDispatcher(sink)
	ctx := context.Background()

	d.StartWorkOrder(ctx, domain.StartWorkOrderAction{WorkOrderID: "WO-1", OperatorID: "op-1"})
	sink.Reset()

	d.UpdateWorkOrderProgress(ctx, domain.UpdateProgressAction{WorkOrderID: "WO-1", Progress: 25})
	d.UpdateWorkOrderProgress(ctx, domain.UpdateProgressAction{WorkOrderID: "WO-1", Progress: 40})
	d.UpdateWorkOrderProgress(ctx, domain.UpdateProgressAction{WorkOrderID: "WO-1", Progress: 50})

	notifs := sink.Named(domain.EventNotification)
	require.Len(t, notifs, 2)
	assert.Contains(t, notifs[0].Data.(domain.Notification).Message, "25%")
	assert.Contains(t, notifs[1].Data.(domain.Notification).Message, "50%")
}

func TestUpdateProgress_MilestoneRepeatsOnEqualReport(t *testing.T) {
	sink := mocks.NewRecordingSink()
	d := newTestDispatcher(sink)
	ctx := context.Background()

	d.StartWorkOrder(ctx, domain.StartWorkOrderAction{WorkOrderID: "WO-1", OperatorID: "op-1"})
	sink.Reset()

	// Equality check per update, no latch. A second report landing on the
	// same milestone (here via the monotonic floor) notifies again.
	d.UpdateWorkOrderProgress(ctx, domain.UpdateProgressAction{WorkOrderID: "WO-1", Progress: 75})
	d.UpdateWorkOrderProgress(ctx, domain.UpdateProgressAction{WorkOrderID: "WO-1", Progress: 10})

	notifs := sink.Named(domain.EventNotification)
	assert.Len(t, notifs, 2)
}

func TestCompleteWorkOrder_ForcesProgressAndRemovesRecord(t *testing.T) {
	sink := mocks.NewRecordingSink()
	d := newTestDispatcher(sink)
	ctx := context.Background()

	d.StartWorkOrder(ctx, domain.StartWorkOrderAction{WorkOrderID: "WO-1", OperatorID: "op-1"})
	d.UpdateWorkOrderProgress(ctx, domain.UpdateProgressAction{WorkOrderID: "WO-1", Progress: 40})
	sink.Reset()

	d.CompleteWorkOrder(ctx, domain.CompleteWorkOrderAction{WorkOrderID: "WO-1", OperatorID: "op-1", TimeSpent: 90})

	_, ok := d.ActiveWorkOrder("WO-1")
	assert.False(t, ok)

	completed := sink.Named(domain.EventWorkOrderCompleted)
	require.Len(t, completed, 1)
	payload := completed[0].Data.(domain.WorkOrderCompleted)
	assert.Equal(t, 100, payload.Progress)
	assert.Equal(t, domain.StatusCompleted, payload.Status)
	assert.Equal(t, 90, payload.TimeSpent)

	notifs := sink.Named(domain.EventNotification)
	require.Len(t, notifs, 1)
	assert.Equal(t, domain.NotificationSuccess, notifs[0].Data.(domain.Notification).Type)
}

func TestCompleteWorkOrder_EmitsWithoutActiveRecord(t *testing.T) {
	sink := mocks.NewRecordingSink()
	d := newTestDispatcher(sink)

	d.CompleteWorkOrder(context.Background(), domain.CompleteWorkOrderAction{WorkOrderID: "WO-unknown", OperatorID: "op-1"})

	completed := sink.Named(domain.EventWorkOrderCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, 100, completed[0].Data.(domain.WorkOrderCompleted).Progress)
}

func TestReportQualityIssue_CriticalSeverity(t *testing.T) {
	sink := mocks.NewRecordingSink()
	d := newTestDispatcher(sink)

	d.ReportQualityIssue(context.Background(), domain.QualityIssueAction{
		WorkOrderID: "WO-1",
		Type:        "dimensional",
		Severity:    domain.SeverityCritical,
		Description: "Bore out of tolerance",
		Inspector:   "qa-1",
	})

	alerts := sink.Named(domain.EventQualityAlert)
	require.Len(t, alerts, 1)
	alert := alerts[0].Data.(domain.QualityAlert)
	assert.Equal(t, domain.SeverityCritical, alert.Severity)
	assert.Equal(t, "qa-1", alert.Inspector)

	notifs := sink.Named(domain.EventNotification)
	require.Len(t, notifs, 1)
	notif := notifs[0].Data.(domain.Notification)
	assert.Equal(t, domain.NotificationError, notif.Type)
	assert.True(t, notif.ActionRequired)
	assert.Equal(t, alert.ID, notif.ID)
}

func TestReportQualityIssue_NonCriticalSeverity(t *testing.T) {
	sink := mocks.NewRecordingSink()
	d := newTestDispatcher(sink)

	for _, severity := range []domain.QualitySeverity{domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh} {
		sink.Reset()
		d.ReportQualityIssue(context.Background(), domain.QualityIssueAction{
			WorkOrderID: "WO-1",
			Severity:    severity,
			Description: "Surface finish below spec",
		})

		notifs := sink.Named(domain.EventNotification)
		require.Len(t, notifs, 1)
		notif := notifs[0].Data.(domain.Notification)
		assert.Equal(t, domain.NotificationWarning, notif.Type, "severity %s", severity)
		assert.False(t, notif.ActionRequired, "severity %s", severity)
	}
}

func TestUpdateStock_EmitsStockUpdated(t *testing.T) {
	sink := mocks.NewRecordingSink()
	d := newTestDispatcher(sink)

	d.UpdateStock(context.Background(), domain.UpdateStockAction{
		MaterialID: "MAT-001",
		Quantity:   50,
		Operation:  domain.StockAdd,
		Reason:     "Goods receipt",
	})

	events := sink.Events()
	require.Len(t, events, 1)
	update := events[0].Data.(domain.StockUpdate)
	assert.Equal(t, "Material MAT-001", update.MaterialName)
	assert.Equal(t, "Goods receipt", update.Reason)
}

func TestUpdateStock_LowStockGuard(t *testing.T) {
	sink := mocks.NewRecordingSink()
	d := newTestDispatcher(sink)
	ctx := context.Background()

	cases := []struct {
		name      string
		operation domain.StockOperation
		quantity  int
		wantLow   bool
	}{
		{"subtract below threshold", domain.StockSubtract, 19, true},
		{"subtract at threshold", domain.StockSubtract, 20, false},
		{"add below threshold", domain.StockAdd, 5, false},
		{"adjust below threshold", domain.StockAdjust, 5, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sink.Reset()
			d.UpdateStock(ctx, domain.UpdateStockAction{
				MaterialID: "MAT-001",
				Quantity:   tc.quantity,
				Operation:  tc.operation,
				Reason:     "Production draw",
			})

			low := sink.Named(domain.EventStockLow)
			if !tc.wantLow {
				assert.Empty(t, low)
				return
			}

			require.Len(t, low, 1)
			payload := low[0].Data.(domain.StockUpdate)
			assert.Equal(t, "Low stock detected", payload.Reason)
			assert.Equal(t, tc.quantity, payload.Quantity)
		})
	}
}

func TestUpdateStock_UsesCatalogName(t *testing.T) {
	sink := mocks.NewRecordingSink()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cat := mocks.NewMockMaterialCatalog()
	cat.On("MaterialName", mock.Anything, "MAT-001").Return("Steel Pipe", nil)
	cat.On("MaterialName", mock.Anything, "MAT-404").Return("", errors.New("not found"))

	d := NewDispatcher(sink, cat, nil, logger)
	ctx := context.Background()

	d.UpdateStock(ctx, domain.UpdateStockAction{MaterialID: "MAT-001", Quantity: 50, Operation: domain.StockAdd})
	d.UpdateStock(ctx, domain.UpdateStockAction{MaterialID: "MAT-404", Quantity: 50, Operation: domain.StockAdd})

	updates := sink.Named(domain.EventStockUpdated)
	require.Len(t, updates, 2)
	assert.Equal(t, "Steel Pipe", updates[0].Data.(domain.StockUpdate).MaterialName)
	assert.Equal(t, "Material MAT-404", updates[1].Data.(domain.StockUpdate).MaterialName)
	cat.AssertExpectations(t)
}

func TestUpdateManufacturingOrder_PassThrough(t *testing.T) {
	sink := mocks.NewRecordingSink()
	d := newTestDispatcher(sink)

	d.UpdateManufacturingOrder(context.Background(), domain.UpdateManufacturingOrderAction{
		ManufacturingOrderID: "MO-1",
		Status:               "Released",
		CompletedQuantity:    12,
	})

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventManufacturingOrderUpdated, events[0].Name)
	payload := events[0].Data.(domain.ManufacturingOrderUpdated)
	assert.Equal(t, "MO-1", payload.ManufacturingOrderID)
	assert.Equal(t, 12, payload.CompletedQuantity)
}

func TestEmit_MirrorFailureIsSwallowed(t *testing.T) {
	sink := mocks.NewRecordingSink()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mirror := mocks.NewMockEventMirror()
	mirror.On("Mirror", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	d := NewDispatcher(sink, nil, mirror, logger)

	d.UpdateManufacturingOrder(context.Background(), domain.UpdateManufacturingOrderAction{
		ManufacturingOrderID: "MO-1",
	})

	// Delivery to the sink proceeds despite the mirror failing.
	assert.Len(t, sink.Events(), 1)
	mirror.AssertExpectations(t)
}

func TestActiveWorkOrders_Snapshot(t *testing.T) {
	sink := mocks.NewRecordingSink()
	d := newTestDispatcher(sink)
	ctx := context.Background()

	d.StartWorkOrder(ctx, domain.StartWorkOrderAction{WorkOrderID: "WO-1", OperatorID: "op-1"})
	d.StartWorkOrder(ctx, domain.StartWorkOrderAction{WorkOrderID: "WO-2", OperatorID: "op-2"})

	snapshot := d.ActiveWorkOrders()
	assert.Len(t, snapshot, 2)
	assert.Equal(t, 2, d.ActiveWorkOrderCount())

	// Mutating the snapshot does not touch dispatcher state.
	snapshot[0].Progress = 99
	for _, id := range []string{"WO-1", "WO-2"} {
		rec, ok := d.ActiveWorkOrder(id)
		require.True(t, ok)
		assert.Equal(t, 0, rec.Progress)
	}
}
