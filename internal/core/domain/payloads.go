package domain

import "time"

// NotificationType classifies a notification's severity.
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

// StockOperation is the kind of stock ledger movement.
type StockOperation string

const (
	StockAdd      StockOperation = "add"
	StockSubtract StockOperation = "subtract"
	StockAdjust   StockOperation = "adjust"
)

// QualitySeverity grades a reported quality issue.
type QualitySeverity string

const (
	SeverityLow      QualitySeverity = "low"
	SeverityMedium   QualitySeverity = "medium"
	SeverityHigh     QualitySeverity = "high"
	SeverityCritical QualitySeverity = "critical"
)

// Notification is the payload of a "notification" event. IDs are globally
// unique and assigned at creation; clients use them for read tracking.
type Notification struct {
	ID                   string           `json:"id"`
	Type                 NotificationType `json:"type"`
	Title                string           `json:"title"`
	Message              string           `json:"message"`
	Module               string           `json:"module"`
	Timestamp            time.Time        `json:"timestamp"`
	WorkOrderID          string           `json:"workOrderId,omitempty"`
	ManufacturingOrderID string           `json:"manufacturingOrderId,omitempty"`
	ActionRequired       bool             `json:"actionRequired,omitempty"`
}

// WorkOrderStarted is the payload of "work-order-started".
type WorkOrderStarted struct {
	WorkOrderID string    `json:"workOrderId"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	Operator    string    `json:"operator"`
	Timestamp   time.Time `json:"timestamp"`
}

// WorkOrderUpdated is the payload of "work-order-updated".
type WorkOrderUpdated struct {
	WorkOrderID string    `json:"workOrderId"`
	Progress    int       `json:"progress"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}

// WorkOrderCompleted is the payload of "work-order-completed". Progress is
// always 100 regardless of the last reported value.
type WorkOrderCompleted struct {
	WorkOrderID string    `json:"workOrderId"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	Operator    string    `json:"operator"`
	Timestamp   time.Time `json:"timestamp"`
	TimeSpent   int       `json:"timeSpent"`
}

// ManufacturingOrderUpdated is the payload of "manufacturing-order-updated".
type ManufacturingOrderUpdated struct {
	ManufacturingOrderID string    `json:"manufacturingOrderId"`
	Status               string    `json:"status"`
	CompletedQuantity    int       `json:"completedQuantity"`
	Timestamp            time.Time `json:"timestamp"`
}

// StockUpdate is the payload of both "stock-updated" and "stock-low".
type StockUpdate struct {
	MaterialID   string         `json:"materialId"`
	MaterialName string         `json:"materialName"`
	Quantity     int            `json:"quantity"`
	Operation    StockOperation `json:"operation"`
	Reason       string         `json:"reason"`
	Timestamp    time.Time      `json:"timestamp"`
}

// QualityAlert is the payload of "quality-alert".
type QualityAlert struct {
	ID          string          `json:"id"`
	WorkOrderID string          `json:"workOrderId"`
	Type        string          `json:"type"`
	Severity    QualitySeverity `json:"severity"`
	Description string          `json:"description"`
	Inspector   string          `json:"inspector"`
	Timestamp   time.Time       `json:"timestamp"`
}
