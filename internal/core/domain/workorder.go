package domain

import "time"

// Work order status values as they appear on the wire.
const (
	StatusInProgress = "In Progress"
	StatusPaused     = "Paused"
	StatusCompleted  = "Completed"
)

// ActiveWorkOrder is the derived cache entry for a running work order. It is
// created on start, updated on progress reports, and removed on completion;
// a new start for the same id recreates the record from scratch rather than
// reopening the terminal state. Progress never decreases within one
// activation. The dispatcher owns all mutation; everyone else reads copies.
type ActiveWorkOrder struct {
	WorkOrderID string
	Status      string
	Progress    int
	OperatorID  string
	StartedAt   time.Time
}
