package bridge

import (
	"sync"
	"time"

	"github.com/plantpulse/mes-backend/internal/core/domain"
)

const (
	// maxNotifications caps the retained list; older entries are evicted.
	maxNotifications = 50

	// autoDismissAfter is the alert lifetime for non-sticky notifications.
	autoDismissAfter = 6 * time.Second
)

// Alert is a transient on-screen surface for one notification. Sticky alerts
// carry a zero Dismiss and stay until the user acts on them.
type Alert struct {
	Notification domain.Notification

	// Sticky alerts never auto-dismiss.
	Sticky bool

	// Dismiss is how long to show a non-sticky alert.
	Dismiss time.Duration
}

// AlertFunc receives each newly added notification's alert classification.
type AlertFunc func(Alert)

// NotificationCenter retains the most recent notifications with per-item
// read state. It holds no rendering; a UI subscribes through AlertFunc and
// the accessors.
type NotificationCenter struct {
	mu    sync.Mutex
	items []domain.Notification
	read  map[string]bool
	alert AlertFunc
}

// NewNotificationCenter creates an empty center. alert may be nil.
func NewNotificationCenter(alert AlertFunc) *NotificationCenter {
	return &NotificationCenter{
		read:  make(map[string]bool),
		alert: alert,
	}
}

// Add inserts a notification at the front, evicting beyond the cap, and
// raises its alert. Error and action-required notifications are sticky;
// everything else auto-dismisses.
func (c *NotificationCenter) Add(n domain.Notification) {
	c.mu.Lock()
	c.items = append([]domain.Notification{n}, c.items...)
	if len(c.items) > maxNotifications {
		evicted := c.items[maxNotifications:]
		c.items = c.items[:maxNotifications]
		for _, old := range evicted {
			delete(c.read, old.ID)
		}
	}
	alert := c.alert
	c.mu.Unlock()

	if alert == nil {
		return
	}

	sticky := n.Type == domain.NotificationError || n.ActionRequired
	a := Alert{Notification: n, Sticky: sticky}
	if !sticky {
		a.Dismiss = autoDismissAfter
	}
	alert(a)
}

// Notifications returns the retained list, most recent first.
func (c *NotificationCenter) Notifications() []domain.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.Notification, len(c.items))
	copy(out, c.items)
	return out
}

// UnreadCount returns the number of retained notifications not yet read.
func (c *NotificationCenter) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, n := range c.items {
		if !c.read[n.ID] {
			count++
		}
	}
	return count
}

// MarkRead marks one notification as read. Unknown ids are ignored.
func (c *NotificationCenter) MarkRead(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.items {
		if n.ID == id {
			c.read[id] = true
			return
		}
	}
}

// MarkAllRead marks every retained notification as read.
func (c *NotificationCenter) MarkAllRead() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.items {
		c.read[n.ID] = true
	}
}

// Delete removes one notification and its read state.
func (c *NotificationCenter) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, n := range c.items {
		if n.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			delete(c.read, id)
			return
		}
	}
}
