package domain

import "encoding/json"

// EventName identifies a message on the realtime channel. Inbound actions and
// outbound events share one namespace; every frame on the wire is tagged with
// exactly one of these.
type EventName string

// Client → server actions.
const (
	EventJoinUserRoom             EventName = "join-user-room"
	EventJoinWorkOrderRoom        EventName = "join-work-order-room"
	EventLeaveWorkOrderRoom       EventName = "leave-work-order-room"
	EventStartWorkOrder           EventName = "start-work-order"
	EventUpdateWorkOrderProgress  EventName = "update-work-order-progress"
	EventCompleteWorkOrder        EventName = "complete-work-order"
	EventQualityIssue             EventName = "quality-issue"
	EventUpdateStock              EventName = "update-stock"
	EventUpdateManufacturingOrder EventName = "update-manufacturing-order"
)

// Server → client events.
const (
	EventNotification              EventName = "notification"
	EventWorkOrderStarted          EventName = "work-order-started"
	EventWorkOrderUpdated          EventName = "work-order-updated"
	EventWorkOrderCompleted        EventName = "work-order-completed"
	EventManufacturingOrderUpdated EventName = "manufacturing-order-updated"
	EventStockUpdated              EventName = "stock-updated"
	EventStockLow                  EventName = "stock-low"
	EventQualityAlert              EventName = "quality-alert"
)

// Envelope is the wire frame for inbound client messages: an event tag plus a
// raw payload decoded by the handler registered for that event.
type Envelope struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Event is an outbound message together with its delivery target. An empty
// Room means global broadcast; otherwise delivery is scoped to the room's
// current members. Events are values: constructed once, never mutated.
type Event struct {
	Name EventName `json:"event"`
	Data any       `json:"data"`

	// Room is delivery routing only, never serialized to clients.
	Room string `json:"-"`
}

// Broadcast wraps a payload as a globally delivered event.
func Broadcast(name EventName, data any) Event {
	return Event{Name: name, Data: data}
}

// ToRoom wraps a payload as an event scoped to a single room.
func ToRoom(room string, name EventName, data any) Event {
	return Event{Name: name, Data: data, Room: room}
}
