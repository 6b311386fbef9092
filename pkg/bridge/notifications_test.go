package bridge

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantpulse/mes-backend/internal/core/domain"
)

func makeNotification(id string, typ domain.NotificationType) domain.Notification {
	return domain.Notification{
		ID:        id,
		Type:      typ,
		Title:     "Title " + id,
		Message:   "Message " + id,
		Module:    "System",
		Timestamp: time.Now(),
	}
}

func TestNotificationCenter_MostRecentFirst(t *testing.T) {
	c := NewNotificationCenter(nil)

	c.Add(makeNotification("n-1", domain.NotificationInfo))
	c.Add(makeNotification("n-2", domain.NotificationInfo))
	c.Add(makeNotification("n-3", domain.NotificationInfo))

	items := c.Notifications()
	require.Len(t, items, 3)
	assert.Equal(t, "n-3", items[0].ID)
	assert.Equal(t, "n-2", items[1].ID)
	assert.Equal(t, "n-1", items[2].ID)
}

func TestNotificationCenter_CapEvictsOldest(t *testing.T) {
	c := NewNotificationCenter(nil)

	for i := 1; i <= maxNotifications+5; i++ {
		c.Add(makeNotification(fmt.Sprintf("n-%d", i), domain.NotificationInfo))
	}

	items := c.Notifications()
	require.Len(t, items, maxNotifications)
	assert.Equal(t, fmt.Sprintf("n-%d", maxNotifications+5), items[0].ID)
	assert.Equal(t, "n-6", items[len(items)-1].ID)
}

func TestNotificationCenter_EvictionDropsReadState(t *testing.T) {
	c := NewNotificationCenter(nil)

	c.Add(makeNotification("n-old", domain.NotificationInfo))
	c.MarkRead("n-old")

	for i := 1; i <= maxNotifications; i++ {
		c.Add(makeNotification(fmt.Sprintf("n-%d", i), domain.NotificationInfo))
	}

	// n-old is gone; re-adding it must come back unread.
	assert.Equal(t, maxNotifications, c.UnreadCount())

	c.Add(makeNotification("n-old", domain.NotificationInfo))
	assert.Equal(t, maxNotifications, c.UnreadCount())
	assert.Equal(t, "n-old", c.Notifications()[0].ID)
}

func TestNotificationCenter_ReadTracking(t *testing.T) {
	c := NewNotificationCenter(nil)

	c.Add(makeNotification("n-1", domain.NotificationInfo))
	c.Add(makeNotification("n-2", domain.NotificationWarning))
	c.Add(makeNotification("n-3", domain.NotificationError))
	assert.Equal(t, 3, c.UnreadCount())

	c.MarkRead("n-2")
	assert.Equal(t, 2, c.UnreadCount())

	// Unknown ids are ignored and must not pollute read state.
	c.MarkRead("n-missing")
	assert.Equal(t, 2, c.UnreadCount())

	c.MarkAllRead()
	assert.Zero(t, c.UnreadCount())
}

func TestNotificationCenter_Delete(t *testing.T) {
	c := NewNotificationCenter(nil)

	c.Add(makeNotification("n-1", domain.NotificationInfo))
	c.Add(makeNotification("n-2", domain.NotificationInfo))
	c.MarkRead("n-2")

	c.Delete("n-2")
	items := c.Notifications()
	require.Len(t, items, 1)
	assert.Equal(t, "n-1", items[0].ID)
	assert.Equal(t, 1, c.UnreadCount())

	// Re-adding a deleted id starts over as unread.
	c.Add(makeNotification("n-2", domain.NotificationInfo))
	assert.Equal(t, 2, c.UnreadCount())

	c.Delete("n-missing")
	assert.Len(t, c.Notifications(), 2)
}

func TestNotificationCenter_AlertClassification(t *testing.T) {
	tests := []struct {
		name         string
		notification domain.Notification
		wantSticky   bool
	}{
		{
			name:         "info auto dismisses",
			notification: makeNotification("n-1", domain.NotificationInfo),
			wantSticky:   false,
		},
		{
			name:         "warning auto dismisses",
			notification: makeNotification("n-2", domain.NotificationWarning),
			wantSticky:   false,
		},
		{
			name:         "error is sticky",
			notification: makeNotification("n-3", domain.NotificationError),
			wantSticky:   true,
		},
		{
			name: "action required is sticky regardless of type",
			notification: domain.Notification{
				ID:             "n-4",
				Type:           domain.NotificationWarning,
				Title:          "Quality Alert",
				ActionRequired: true,
			},
			wantSticky: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Alert
			c := NewNotificationCenter(func(a Alert) { got = a })

			c.Add(tt.notification)

			assert.Equal(t, tt.notification.ID, got.Notification.ID)
			assert.Equal(t, tt.wantSticky, got.Sticky)
			if tt.wantSticky {
				assert.Zero(t, got.Dismiss)
			} else {
				assert.Equal(t, autoDismissAfter, got.Dismiss)
			}
		})
	}
}
