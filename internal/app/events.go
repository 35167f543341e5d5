package app

import (
	"sync"

	"github.com/meszmate/roster-core/internal/domain"
	"github.com/meszmate/roster-core/internal/reconcile"
)

// ClientEvent is a change the application layer should react to.
type ClientEvent interface {
	clientEvent()
}

type (
	// ConnectionStatusChanged reports that the account connected or
	// disconnected. Err is the reason for an unexpected disconnect.
	ConnectionStatusChanged struct {
		Connected bool
		Err       error
	}

	// ContactChanged reports new presence, capabilities or published info of
	// a user.
	ContactChanged struct {
		ID domain.UserID
	}

	// AvatarChanged reports that a user published or removed an avatar.
	AvatarChanged struct {
		ID       domain.UserID
		Metadata *domain.AvatarMetadata
	}

	// ComposingUsersChanged lists who is typing in a conversation.
	ComposingUsersChanged struct {
		Conversation domain.RoomID
		Users        []domain.EndpointID
	}

	// SidebarChanged reports new bookmarks or conversation activity.
	SidebarChanged struct{}

	// RoomChanged reports that topic, configuration, occupants or the
	// existence of a room changed.
	RoomChanged struct {
		ID domain.RoomID
	}

	// InvitationReceived reports a new invitation to a room.
	InvitationReceived struct {
		Room   domain.RoomID
		Sender domain.UserID
	}

	MessagesAppended struct {
		Conversation domain.RoomID
		Entries      []reconcile.Entry
	}

	MessagesUpdated struct {
		Conversation domain.RoomID
		Entries      []reconcile.Entry
	}

	MessagesDeleted struct {
		Conversation domain.RoomID
		IDs          []domain.MessageLikeID
	}
)

func (ConnectionStatusChanged) clientEvent() {}
func (ContactChanged) clientEvent()          {}
func (AvatarChanged) clientEvent()           {}
func (ComposingUsersChanged) clientEvent()   {}
func (SidebarChanged) clientEvent()          {}
func (RoomChanged) clientEvent()             {}
func (InvitationReceived) clientEvent()      {}
func (MessagesAppended) clientEvent()        {}
func (MessagesUpdated) clientEvent()         {}
func (MessagesDeleted) clientEvent()         {}

// EventHandler is a function that handles events
type EventHandler func(event ClientEvent)

// EventBus delivers client events to every subscriber, in subscription
// order, on the caller's goroutine. Subscribers must not block.
type EventBus struct {
	mu       sync.RWMutex
	handlers []EventHandler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe adds a handler.
func (b *EventBus) Subscribe(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Dispatch hands event to all subscribers.
func (b *EventBus) Dispatch(event ClientEvent) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = nil
}

// dispatchDelta turns a reconciliation delta into the minimal set of message
// events.
func dispatchDelta(events ClientEventDispatcher, conv domain.RoomID, delta reconcile.Delta) {
	if len(delta.Appended) > 0 {
		events.Dispatch(MessagesAppended{Conversation: conv, Entries: delta.Appended})
	}
	if len(delta.Updated) > 0 {
		events.Dispatch(MessagesUpdated{Conversation: conv, Entries: delta.Updated})
	}
	if len(delta.Removed) > 0 {
		events.Dispatch(MessagesDeleted{Conversation: conv, IDs: delta.Removed})
	}
}
