// Package event defines the closed set of events the classifier produces from
// server stanzas.
package event

import (
	"github.com/meszmate/roster-core/internal/domain"
	"github.com/meszmate/roster-core/internal/xmpp/element"
)

// ServerEvent is implemented only by the types in this package.
type ServerEvent interface {
	serverEvent()
}

type (
	// ConnectionEvent reports a change of the account's connection.
	ConnectionEvent struct {
		Type ConnectionEventType
	}

	// UserStatusEvent reports presence or compose state of an endpoint.
	UserStatusEvent struct {
		UserID domain.EndpointID
		Type   UserStatusEventType
	}

	// UserInfoEvent reports PEP published information about a user.
	UserInfoEvent struct {
		UserID domain.UserID
		Type   UserInfoEventType
	}

	// UserResourceEvent reports a change on one connected resource.
	UserResourceEvent struct {
		UserID domain.UserResourceID
		Type   UserResourceEventType
	}

	// RoomEvent reports something that happened to a room as a whole.
	RoomEvent struct {
		RoomID domain.RoomID
		Type   RoomEventType
	}

	// OccupantEvent reports a change in a room occupant's membership.
	OccupantEvent struct {
		OccupantID     domain.OccupantID
		AnonOccupantID domain.AnonOccupantID
		RealID         domain.UserID
		IsSelf         bool
		Type           OccupantEventType
	}

	// RequestEvent is an IQ that expects a reply from us.
	RequestEvent struct {
		SenderID  domain.SenderID
		RequestID domain.RequestID
		Type      RequestEventType
	}

	// MessageEvent carries a message stanza for the message handler.
	MessageEvent struct {
		Type    MessageEventType
		Message *element.Element
	}

	// SidebarBookmarkEvent is a change in the bookmark PEP node.
	SidebarBookmarkEvent struct {
		PubSubEvent[domain.RoomID, domain.Bookmark]
	}
)

func (ConnectionEvent) serverEvent()      {}
func (UserStatusEvent) serverEvent()      {}
func (UserInfoEvent) serverEvent()        {}
func (UserResourceEvent) serverEvent()    {}
func (RoomEvent) serverEvent()            {}
func (OccupantEvent) serverEvent()        {}
func (RequestEvent) serverEvent()         {}
func (MessageEvent) serverEvent()         {}
func (SidebarBookmarkEvent) serverEvent() {}

// ConnectionEventType is Connected or Disconnected.
type ConnectionEventType interface{ connectionEventType() }

type (
	Connected    struct{}
	Disconnected struct {
		Err error
	}
)

func (Connected) connectionEventType()    {}
func (Disconnected) connectionEventType() {}

// UserStatusEventType is AvailabilityChanged or ComposeStateChanged.
type UserStatusEventType interface{ userStatusEventType() }

type (
	AvailabilityChanged struct {
		Presence domain.Presence
	}
	ComposeStateChanged struct {
		State domain.ComposeState
	}
)

func (AvailabilityChanged) userStatusEventType() {}
func (ComposeStateChanged) userStatusEventType() {}

// UserInfoEventType is one of the user info changes. A nil pointer means the
// information was removed.
type UserInfoEventType interface{ userInfoEventType() }

type (
	AvatarChanged struct {
		Metadata *domain.AvatarMetadata
	}
	ProfileChanged struct {
		Profile *domain.Profile
	}
	StatusChanged struct {
		Status *domain.UserStatus
	}
	NicknameChanged struct {
		Nickname string
	}
)

func (AvatarChanged) userInfoEventType()   {}
func (ProfileChanged) userInfoEventType()  {}
func (StatusChanged) userInfoEventType()   {}
func (NicknameChanged) userInfoEventType() {}

// UserResourceEventType is CapabilitiesChanged.
type UserResourceEventType interface{ userResourceEventType() }

type CapabilitiesChanged struct {
	ID domain.CapabilitiesID
}

func (CapabilitiesChanged) userResourceEventType() {}

// RoomEventType is one of the room level changes.
type RoomEventType interface{ roomEventType() }

type (
	Destroyed struct {
		Replacement domain.RoomID
		Reason      string
	}
	RoomConfigChanged struct {
		StatusCodes []int
	}
	RoomTopicChanged struct {
		NewTopic string
	}
	ReceivedInvitation struct {
		Sender   domain.UserID
		Password string
		Reason   string
	}
)

func (Destroyed) roomEventType()          {}
func (RoomConfigChanged) roomEventType()  {}
func (RoomTopicChanged) roomEventType()   {}
func (ReceivedInvitation) roomEventType() {}

// OccupantEventType is one of the occupant membership changes.
type OccupantEventType interface{ occupantEventType() }

type (
	AffiliationChanged struct {
		Affiliation domain.Affiliation
		Role        domain.Role
	}
	DisconnectedByServer struct{}
	PermanentlyRemoved   struct{}
)

func (AffiliationChanged) occupantEventType()   {}
func (DisconnectedByServer) occupantEventType() {}
func (PermanentlyRemoved) occupantEventType()   {}

// RequestEventType is one of the requests we answer.
type RequestEventType interface{ requestEventType() }

type (
	Ping         struct{}
	LocalTime    struct{}
	LastActivity struct{}
	Capabilities struct {
		// ID is the disco#info node that was queried.
		ID domain.CapabilitiesID
	}
	SoftwareVersion struct{}
)

func (Ping) requestEventType()            {}
func (LocalTime) requestEventType()       {}
func (LastActivity) requestEventType()    {}
func (Capabilities) requestEventType()    {}
func (SoftwareVersion) requestEventType() {}

// MessageEventType is Received or Sync.
type MessageEventType interface{ messageEventType() }

// Direction tells whether a carbon copy was sent or received by another
// resource of ours.
type Direction int

const (
	DirectionReceived Direction = iota
	DirectionSent
)

func (d Direction) String() string {
	if d == DirectionSent {
		return "sent"
	}
	return "received"
}

type (
	Received struct{}
	Sync     struct {
		Direction Direction
	}
)

func (Received) messageEventType() {}
func (Sync) messageEventType()     {}
