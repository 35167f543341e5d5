package sidebar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meszmate/roster-core/internal/domain"
	"github.com/meszmate/roster-core/internal/event"
)

const (
	alice = domain.RoomID("alice@example.com")
	room  = domain.RoomID("room@conf.example.com")
	other = domain.RoomID("other@conf.example.com")
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestBookmarks(t *testing.T) {
	m := NewManager()
	b := domain.Bookmark{RoomID: room, Name: "Room", Autojoin: true}

	added := event.AddedOrUpdated[domain.RoomID](domain.UserID("me@example.com"), []domain.Bookmark{b})
	assert.True(t, m.ApplyBookmarks(added))
	assert.False(t, m.ApplyBookmarks(added), "redelivery changes nothing")

	got, ok := m.Bookmark(room)
	require.True(t, ok)
	assert.Equal(t, "Room", got.Name)

	deleted := event.Deleted[domain.RoomID, domain.Bookmark](domain.UserID("me@example.com"), []domain.RoomID{room})
	assert.True(t, m.ApplyBookmarks(deleted))
	assert.False(t, m.ApplyBookmarks(deleted))

	m.ApplyBookmarks(added)
	purged := event.Purged[domain.RoomID, domain.Bookmark](domain.UserID("me@example.com"))
	assert.True(t, m.ApplyBookmarks(purged))
	assert.False(t, m.ApplyBookmarks(purged))
	assert.Empty(t, m.Items())
}

func TestUnreadCounters(t *testing.T) {
	m := NewManager()

	assert.True(t, m.HandleReceivedMessage(alice, t0, false, false))
	assert.True(t, m.HandleReceivedMessage(alice, t0.Add(time.Second), false, false))
	c, ok := m.Conversation(alice)
	require.True(t, ok)
	assert.Equal(t, 2, c.Unread)
	assert.Equal(t, t0.Add(time.Second), c.LastActivity)

	assert.True(t, m.HandleReceivedMessage(alice, t0.Add(2*time.Second), false, true), "own message reads the chat")
	c, _ = m.Conversation(alice)
	assert.Zero(t, c.Unread)

	m.HandleReceivedMessage(room, t0, true, false)
	assert.Equal(t, 1, m.UnreadCount())
	assert.True(t, m.MarkRead(room))
	assert.False(t, m.MarkRead(room))
	assert.False(t, m.MarkRead(other), "unknown conversation")

	assert.True(t, m.Remove(room))
	assert.Zero(t, m.UnreadCount())
}

func TestItemsOrder(t *testing.T) {
	m := NewManager()
	m.ApplyBookmarks(event.AddedOrUpdated[domain.RoomID](domain.UserID("me@example.com"), []domain.Bookmark{
		{RoomID: other, Name: "Other"},
		{RoomID: room, Name: "Room"},
	}))
	m.HandleReceivedMessage(alice, t0, false, false)
	m.HandleReceivedMessage(room, t0.Add(time.Minute), true, false)

	items := m.Items()
	require.Len(t, items, 3)
	assert.Equal(t, room, items[0].ID)
	require.NotNil(t, items[0].Bookmark)
	assert.Equal(t, "Room", items[0].Bookmark.Name)
	assert.Equal(t, alice, items[1].ID)
	assert.Nil(t, items[1].Bookmark)
	assert.Equal(t, other, items[2].ID)
	assert.True(t, items[2].Groupchat)
}
