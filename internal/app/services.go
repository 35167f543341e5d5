package app

import (
	"context"
	"time"

	"github.com/meszmate/roster-core/internal/domain"
	"github.com/meszmate/roster-core/internal/event"
	"github.com/meszmate/roster-core/internal/reconcile"
	"github.com/meszmate/roster-core/internal/xmpp/muc"
)

// The handlers only talk to the rest of the client through these interfaces.
// Every mutator reports whether it changed anything, so a redelivered event
// produces no client events.

// UserInfoService stores what users publish about themselves.
type UserInfoService interface {
	SetAvatar(id domain.UserID, avatar *domain.AvatarMetadata) bool
	SetProfile(id domain.UserID, profile *domain.Profile) bool
	SetStatus(id domain.UserID, status *domain.UserStatus) bool
	SetNickname(id domain.UserID, nickname string) bool
}

// PresenceService stores presence, chat states and capabilities.
type PresenceService interface {
	SetPresence(id domain.EndpointID, p domain.Presence) bool
	SetComposeState(id domain.EndpointID, state domain.ComposeState) bool
	ComposingUsers(conv domain.RoomID) []domain.EndpointID
	SetCapabilities(id domain.UserResourceID, caps domain.CapabilitiesID) bool
	Clear()
}

// RoomsService stores the rooms we are in.
type RoomsService interface {
	SetOccupant(o muc.Occupant) bool
	RemoveOccupant(id domain.OccupantID, self bool) bool
	OwnNickname(id domain.RoomID) (string, bool)
	Destroy(id, replacement domain.RoomID, reason string) bool
	SetTopic(id domain.RoomID, topic string) bool
	ConfigChanged(id domain.RoomID, codes []int) bool
	AddInvitation(inv muc.Invitation) bool
	Clear()
}

// SidebarService stores bookmarks and conversation activity.
type SidebarService interface {
	ApplyBookmarks(ev event.PubSubEvent[domain.RoomID, domain.Bookmark]) bool
	HandleReceivedMessage(conv domain.RoomID, at time.Time, groupchat, sent bool) bool
}

// RequestResponder answers requests that expect a reply.
type RequestResponder interface {
	Respond(ctx context.Context, to domain.SenderID, id domain.RequestID, req event.RequestEventType) error
}

// RequestRejecter answers get and set requests that could not be served.
// An empty to addresses our own server.
type RequestRejecter interface {
	Reject(ctx context.Context, to domain.SenderID, id domain.RequestID, cause error) error
}

// MessagesRepository folds message log records into conversations.
type MessagesRepository interface {
	Append(ctx context.Context, conv domain.RoomID, msgs []domain.MessageLike) (reconcile.Delta, error)
}

// ClientEventDispatcher receives the changes handlers report.
type ClientEventDispatcher interface {
	Dispatch(ev ClientEvent)
}
