package domain

// Inbound action payloads. The transport boundary validates the correlation
// id before any of these reach the dispatcher; the dispatcher assumes
// well-typed input.

// JoinUserRoomAction is the payload of "join-user-room".
type JoinUserRoomAction struct {
	UserID string `json:"userId"`
}

// WorkOrderRoomAction is the payload of "join-work-order-room" and
// "leave-work-order-room".
type WorkOrderRoomAction struct {
	WorkOrderID string `json:"workOrderId"`
}

// StartWorkOrderAction is the payload of "start-work-order".
type StartWorkOrderAction struct {
	WorkOrderID string `json:"workOrderId"`
	OperatorID  string `json:"operatorId"`
}

// UpdateProgressAction is the payload of "update-work-order-progress".
// Status is optional and defaults to "In Progress".
type UpdateProgressAction struct {
	WorkOrderID string `json:"workOrderId"`
	Progress    int    `json:"progress"`
	Status      string `json:"status,omitempty"`
}

// CompleteWorkOrderAction is the payload of "complete-work-order".
// TimeSpent is in minutes.
type CompleteWorkOrderAction struct {
	WorkOrderID string `json:"workOrderId"`
	OperatorID  string `json:"operatorId"`
	TimeSpent   int    `json:"timeSpent"`
}

// QualityIssueAction is the payload of "quality-issue".
type QualityIssueAction struct {
	WorkOrderID string          `json:"workOrderId"`
	Type        string          `json:"type"`
	Severity    QualitySeverity `json:"severity"`
	Description string          `json:"description"`
	Inspector   string          `json:"inspector"`
}

// UpdateStockAction is the payload of "update-stock".
type UpdateStockAction struct {
	MaterialID string         `json:"materialId"`
	Quantity   int            `json:"quantity"`
	Operation  StockOperation `json:"operation"`
	Reason     string         `json:"reason"`
}

// UpdateManufacturingOrderAction is the payload of
// "update-manufacturing-order".
type UpdateManufacturingOrderAction struct {
	ManufacturingOrderID string `json:"manufacturingOrderId"`
	Status               string `json:"status"`
	CompletedQuantity    int    `json:"completedQuantity"`
}
