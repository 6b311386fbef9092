package domain

// Room key construction. Rooms are created lazily on first join and are
// purely derived state; the key format is part of the delivery contract.

// UserRoom returns the room key for a user's private channel.
func UserRoom(userID string) string {
	return "user:" + userID
}

// WorkOrderRoom returns the room key for a work order's progress channel.
func WorkOrderRoom(workOrderID string) string {
	return "work-order:" + workOrderID
}
