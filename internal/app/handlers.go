package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/meszmate/roster-core/internal/domain"
	"github.com/meszmate/roster-core/internal/event"
	"github.com/meszmate/roster-core/internal/messaging"
	"github.com/meszmate/roster-core/internal/metrics"
	"github.com/meszmate/roster-core/internal/xmpp/muc"
)

type connectionHandler struct {
	presence PresenceService
	rooms    RoomsService
	events   ClientEventDispatcher
}

func (h *connectionHandler) Name() string { return "connection" }

func (h *connectionHandler) HandleEvent(_ context.Context, ev event.ServerEvent) (event.ServerEvent, error) {
	e, ok := ev.(event.ConnectionEvent)
	if !ok {
		return ev, nil
	}
	switch t := e.Type.(type) {
	case event.Connected:
		h.events.Dispatch(ConnectionStatusChanged{Connected: true})
	case event.Disconnected:
		// Presence and occupancy are only valid for the session that sent them.
		h.presence.Clear()
		h.rooms.Clear()
		h.events.Dispatch(ConnectionStatusChanged{Err: t.Err})
	}
	return nil, nil
}

type requestHandler struct {
	responder RequestResponder
}

func (h *requestHandler) Name() string { return "requests" }

func (h *requestHandler) HandleEvent(ctx context.Context, ev event.ServerEvent) (event.ServerEvent, error) {
	e, ok := ev.(event.RequestEvent)
	if !ok {
		return ev, nil
	}
	if err := h.responder.Respond(ctx, e.SenderID, e.RequestID, e.Type); err != nil {
		return nil, fmt.Errorf("failed to answer request %s from %s: %w", e.RequestID, e.SenderID, err)
	}
	return nil, nil
}

type userInfoHandler struct {
	users  UserInfoService
	events ClientEventDispatcher
}

func (h *userInfoHandler) Name() string { return "user-info" }

func (h *userInfoHandler) HandleEvent(_ context.Context, ev event.ServerEvent) (event.ServerEvent, error) {
	e, ok := ev.(event.UserInfoEvent)
	if !ok {
		return ev, nil
	}
	switch t := e.Type.(type) {
	case event.AvatarChanged:
		if h.users.SetAvatar(e.UserID, t.Metadata) {
			h.events.Dispatch(AvatarChanged{ID: e.UserID, Metadata: t.Metadata})
		}
	case event.ProfileChanged:
		if h.users.SetProfile(e.UserID, t.Profile) {
			h.events.Dispatch(ContactChanged{ID: e.UserID})
		}
	case event.StatusChanged:
		if h.users.SetStatus(e.UserID, t.Status) {
			h.events.Dispatch(ContactChanged{ID: e.UserID})
		}
	case event.NicknameChanged:
		if h.users.SetNickname(e.UserID, t.Nickname) {
			h.events.Dispatch(ContactChanged{ID: e.UserID})
		}
	}
	return nil, nil
}

type userStateHandler struct {
	presence PresenceService
	events   ClientEventDispatcher
}

func (h *userStateHandler) Name() string { return "user-state" }

func (h *userStateHandler) HandleEvent(_ context.Context, ev event.ServerEvent) (event.ServerEvent, error) {
	switch e := ev.(type) {
	case event.UserStatusEvent:
		switch t := e.Type.(type) {
		case event.AvailabilityChanged:
			if h.presence.SetPresence(e.UserID, t.Presence) {
				h.endpointChanged(e.UserID)
			}
		case event.ComposeStateChanged:
			if h.presence.SetComposeState(e.UserID, t.State) {
				conv := e.UserID.RoomID()
				h.events.Dispatch(ComposingUsersChanged{Conversation: conv, Users: h.presence.ComposingUsers(conv)})
			}
		}
		return nil, nil
	case event.UserResourceEvent:
		if t, ok := e.Type.(event.CapabilitiesChanged); ok {
			if h.presence.SetCapabilities(e.UserID, t.ID) {
				h.events.Dispatch(ContactChanged{ID: e.UserID.UserID()})
			}
		}
		return nil, nil
	default:
		return ev, nil
	}
}

func (h *userStateHandler) endpointChanged(id domain.EndpointID) {
	if user, ok := id.ToUserID(); ok {
		h.events.Dispatch(ContactChanged{ID: user})
		return
	}
	h.events.Dispatch(RoomChanged{ID: id.RoomID()})
}

type roomsHandler struct {
	rooms  RoomsService
	events ClientEventDispatcher
}

func (h *roomsHandler) Name() string { return "rooms" }

func (h *roomsHandler) HandleEvent(_ context.Context, ev event.ServerEvent) (event.ServerEvent, error) {
	switch e := ev.(type) {
	case event.RoomEvent:
		h.handleRoom(e)
		return nil, nil
	case event.OccupantEvent:
		h.handleOccupant(e)
		return nil, nil
	default:
		return ev, nil
	}
}

func (h *roomsHandler) handleRoom(e event.RoomEvent) {
	var changed bool
	switch t := e.Type.(type) {
	case event.Destroyed:
		changed = h.rooms.Destroy(e.RoomID, t.Replacement, t.Reason)
	case event.RoomConfigChanged:
		changed = h.rooms.ConfigChanged(e.RoomID, t.StatusCodes)
	case event.RoomTopicChanged:
		changed = h.rooms.SetTopic(e.RoomID, t.NewTopic)
	case event.ReceivedInvitation:
		inv := muc.Invitation{Room: e.RoomID, Sender: t.Sender, Password: t.Password, Reason: t.Reason}
		if h.rooms.AddInvitation(inv) {
			h.events.Dispatch(InvitationReceived{Room: e.RoomID, Sender: t.Sender})
		}
		return
	}
	if changed {
		h.events.Dispatch(RoomChanged{ID: e.RoomID})
	}
}

func (h *roomsHandler) handleOccupant(e event.OccupantEvent) {
	var changed bool
	switch t := e.Type.(type) {
	case event.AffiliationChanged:
		changed = h.rooms.SetOccupant(muc.Occupant{
			ID:          e.OccupantID,
			AnonID:      e.AnonOccupantID,
			RealID:      e.RealID,
			Affiliation: t.Affiliation,
			Role:        t.Role,
			IsSelf:      e.IsSelf,
		})
	case event.DisconnectedByServer, event.PermanentlyRemoved:
		changed = h.rooms.RemoveOccupant(e.OccupantID, e.IsSelf)
	}
	if changed {
		h.events.Dispatch(RoomChanged{ID: e.OccupantID.RoomID()})
	}
}

type sidebarHandler struct {
	sidebar SidebarService
	events  ClientEventDispatcher
}

func (h *sidebarHandler) Name() string { return "sidebar" }

func (h *sidebarHandler) HandleEvent(_ context.Context, ev event.ServerEvent) (event.ServerEvent, error) {
	e, ok := ev.(event.SidebarBookmarkEvent)
	if !ok {
		return ev, nil
	}
	if h.sidebar.ApplyBookmarks(e.PubSubEvent) {
		h.events.Dispatch(SidebarChanged{})
	}
	return nil, nil
}

type messagesHandler struct {
	parser   *messaging.Parser
	rooms    RoomsService
	sidebar  SidebarService
	messages MessagesRepository
	events   ClientEventDispatcher
	metrics  *metrics.Metrics
}

func (h *messagesHandler) Name() string { return "messages" }

func (h *messagesHandler) HandleEvent(ctx context.Context, ev event.ServerEvent) (event.ServerEvent, error) {
	e, ok := ev.(event.MessageEvent)
	if !ok {
		return ev, nil
	}

	parsed, err := h.parser.ParseMessage(e.Message)
	if errors.Is(err, messaging.ErrNoPayload) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if h.isOwnEcho(parsed) {
		parsed.Sent = true
	}

	delta, err := h.messages.Append(ctx, parsed.Conversation, []domain.MessageLike{parsed.Message})
	if err != nil {
		return nil, err
	}
	h.metrics.Reconciled(len(delta.Warnings), len(delta.Invalid))

	// Only a new original is activity. A redelivered message appends nothing
	// and must not count as unread twice.
	if len(delta.Appended) > 0 {
		if h.sidebar.HandleReceivedMessage(parsed.Conversation, parsed.Message.Timestamp, parsed.Groupchat, parsed.Sent) {
			h.events.Dispatch(SidebarChanged{})
		}
	}
	dispatchDelta(h.events, parsed.Conversation, delta)
	return nil, nil
}

// isOwnEcho reports whether a groupchat message came from our own occupant.
func (h *messagesHandler) isOwnEcho(p messaging.Parsed) bool {
	if !p.Groupchat || p.Sent || !p.Message.From.IsOccupant() {
		return false
	}
	nick, ok := h.rooms.OwnNickname(p.Conversation)
	return ok && nick == p.Message.From.Occupant.Nickname()
}
