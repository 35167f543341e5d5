// Package sidebar keeps the list of conversations a client shows: bookmarked
// rooms and every chat that saw activity, with unread counters.
package sidebar

import (
	"sort"
	"time"

	"github.com/meszmate/roster-core/internal/domain"
	"github.com/meszmate/roster-core/internal/event"
	"github.com/meszmate/roster-core/internal/repo"
)

// Conversation is the activity state of one sidebar entry.
type Conversation struct {
	ID           domain.RoomID
	Groupchat    bool
	Unread       int
	LastActivity time.Time
}

// Item is one row of the sidebar.
type Item struct {
	ID           domain.RoomID
	Bookmark     *domain.Bookmark
	Groupchat    bool
	Unread       int
	LastActivity time.Time
}

// Manager tracks bookmarks and conversation activity.
type Manager struct {
	bookmarks     *repo.Store[domain.RoomID, domain.Bookmark]
	conversations *repo.Store[domain.RoomID, Conversation]
}

// NewManager creates an empty sidebar.
func NewManager() *Manager {
	return &Manager{
		bookmarks:     repo.NewStore[domain.RoomID](func(a, b domain.Bookmark) bool { return a == b }),
		conversations: repo.NewStore[domain.RoomID](func(a, b Conversation) bool { return a == b }),
	}
}

// ApplyBookmarks folds a change of the bookmark node into the sidebar.
func (m *Manager) ApplyBookmarks(ev event.PubSubEvent[domain.RoomID, domain.Bookmark]) bool {
	changed := false
	switch ev.Kind {
	case event.ItemsAddedOrUpdated:
		for _, b := range ev.Items {
			if m.bookmarks.Set(b.RoomID, b) {
				changed = true
			}
		}
	case event.ItemsDeleted:
		for _, id := range ev.IDs {
			if m.bookmarks.Delete(id) {
				changed = true
			}
		}
	case event.NodePurged:
		changed = m.bookmarks.Len() > 0
		m.bookmarks.Clear()
	}
	return changed
}

// Bookmark returns the bookmark of a room.
func (m *Manager) Bookmark(id domain.RoomID) (domain.Bookmark, bool) {
	return m.bookmarks.Get(id)
}

// HandleReceivedMessage records activity in conv. Messages we sent
// ourselves, from this or another resource, mark the conversation as read.
func (m *Manager) HandleReceivedMessage(conv domain.RoomID, at time.Time, groupchat, sent bool) bool {
	return m.conversations.Update(conv, func(c *Conversation) bool {
		before := *c
		c.ID = conv
		c.Groupchat = c.Groupchat || groupchat
		if at.After(c.LastActivity) {
			c.LastActivity = at
		}
		if sent {
			c.Unread = 0
		} else {
			c.Unread++
		}
		return *c != before
	})
}

// MarkRead resets the unread counter of conv.
func (m *Manager) MarkRead(conv domain.RoomID) bool {
	return m.conversations.UpdateExisting(conv, func(c *Conversation) bool {
		if c.Unread == 0 {
			return false
		}
		c.Unread = 0
		return true
	})
}

// Remove drops conv from the sidebar. Its bookmark, if any, stays.
func (m *Manager) Remove(conv domain.RoomID) bool {
	return m.conversations.Delete(conv)
}

// Conversation returns the activity state of conv.
func (m *Manager) Conversation(conv domain.RoomID) (Conversation, bool) {
	return m.conversations.Get(conv)
}

// UnreadCount is the sum of all unread counters.
func (m *Manager) UnreadCount() int {
	n := 0
	for _, c := range m.conversations.All() {
		n += c.Unread
	}
	return n
}

// Items returns the sidebar, most recent activity first. Bookmarked rooms
// without activity come last, sorted by id.
func (m *Manager) Items() []Item {
	items := make(map[domain.RoomID]*Item)
	for id, c := range m.conversations.All() {
		items[id] = &Item{ID: id, Groupchat: c.Groupchat, Unread: c.Unread, LastActivity: c.LastActivity}
	}
	for id, b := range m.bookmarks.All() {
		it, ok := items[id]
		if !ok {
			it = &Item{ID: id}
			items[id] = it
		}
		it.Bookmark = &b
		it.Groupchat = true
	}

	out := make([]Item, 0, len(items))
	for _, it := range items {
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
