// Package domain holds the identifiers and value types shared by the
// classifier, the handler pipeline and the message log.
package domain

import (
	"fmt"
	"strings"

	"mellium.im/xmpp/jid"
)

// UserID is a bare JID identifying a contact or our own account.
type UserID string

// UserResourceID is a full JID identifying one connected resource of a user.
type UserResourceID string

// RoomID is the bare JID of a conversation: a MUC room or a 1:1 peer.
type RoomID string

// OccupantID is the room JID with the occupant's nickname as resource.
type OccupantID string

// AnonOccupantID is the stable XEP-0421 id a room assigns to an occupant.
type AnonOccupantID string

// SenderID is the full address a request came from.
type SenderID string

// RequestID is the id attribute of an incoming IQ.
type RequestID string

// CapabilitiesID is the XEP-0115 "node#ver" pair advertised by a resource.
type CapabilitiesID string

// NewUserID returns the bare form of j.
func NewUserID(j jid.JID) UserID {
	return UserID(j.Bare().String())
}

// ParseUserID parses s and strips any resource.
func ParseUserID(s string) (UserID, error) {
	j, err := jid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid user id %q: %w", s, err)
	}
	return NewUserID(j), nil
}

// JID parses the id back into a JID.
func (u UserID) JID() (jid.JID, error) {
	return jid.Parse(string(u))
}

// RoomID returns the conversation id of a 1:1 chat with u.
func (u UserID) RoomID() RoomID {
	return RoomID(u)
}

func (u UserID) String() string { return string(u) }

// NewUserResourceID requires j to carry a resource.
func NewUserResourceID(j jid.JID) (UserResourceID, error) {
	if j.Resourcepart() == "" {
		return "", fmt.Errorf("%s is not a full JID", j)
	}
	return UserResourceID(j.String()), nil
}

// UserID returns the bare part of r.
func (r UserResourceID) UserID() UserID {
	bare, _, _ := strings.Cut(string(r), "/")
	return UserID(bare)
}

// Resource returns the resource part of r.
func (r UserResourceID) Resource() string {
	_, res, _ := strings.Cut(string(r), "/")
	return res
}

func (r UserResourceID) String() string { return string(r) }

// NewRoomID returns the bare form of j.
func NewRoomID(j jid.JID) RoomID {
	return RoomID(j.Bare().String())
}

// OccupantID returns the id of the occupant using nick in r.
func (r RoomID) OccupantID(nick string) OccupantID {
	return OccupantID(string(r) + "/" + nick)
}

// UserID returns r as a user id. Used for 1:1 conversations.
func (r RoomID) UserID() UserID {
	return UserID(r)
}

func (r RoomID) String() string { return string(r) }

// NewOccupantID requires j to carry a nickname.
func NewOccupantID(j jid.JID) (OccupantID, error) {
	if j.Resourcepart() == "" {
		return "", fmt.Errorf("%s has no occupant nickname", j)
	}
	return OccupantID(j.String()), nil
}

// RoomID returns the room o is in.
func (o OccupantID) RoomID() RoomID {
	room, _, _ := strings.Cut(string(o), "/")
	return RoomID(room)
}

// Nickname returns the nickname part of o.
func (o OccupantID) Nickname() string {
	_, nick, _ := strings.Cut(string(o), "/")
	return nick
}

func (o OccupantID) String() string { return string(o) }

// EndpointKind tells which field of an EndpointID is set.
type EndpointKind int

const (
	EndpointUser EndpointKind = iota
	EndpointUserResource
	EndpointOccupant
)

// EndpointID is exactly one of a user, a user resource or a room occupant.
// It keys presence and compose state.
type EndpointID struct {
	Kind     EndpointKind
	User     UserID
	Resource UserResourceID
	Occupant OccupantID
}

// UserEndpoint returns an endpoint for a bare user.
func UserEndpoint(id UserID) EndpointID {
	return EndpointID{Kind: EndpointUser, User: id}
}

// ResourceEndpoint returns an endpoint for a connected resource.
func ResourceEndpoint(id UserResourceID) EndpointID {
	return EndpointID{Kind: EndpointUserResource, Resource: id}
}

// OccupantEndpoint returns an endpoint for a room occupant.
func OccupantEndpoint(id OccupantID) EndpointID {
	return EndpointID{Kind: EndpointOccupant, Occupant: id}
}

// ToUserID returns the bare user behind e. Occupants have none.
func (e EndpointID) ToUserID() (UserID, bool) {
	switch e.Kind {
	case EndpointUser:
		return e.User, true
	case EndpointUserResource:
		return e.Resource.UserID(), true
	default:
		return "", false
	}
}

func (e EndpointID) String() string {
	switch e.Kind {
	case EndpointUserResource:
		return string(e.Resource)
	case EndpointOccupant:
		return string(e.Occupant)
	default:
		return string(e.User)
	}
}

// ParticipantID identifies the author of a message or reaction: either a
// user or a room occupant.
type ParticipantID struct {
	User     UserID     `json:"user,omitempty"`
	Occupant OccupantID `json:"occupant,omitempty"`
}

// UserParticipant returns a participant for a bare user.
func UserParticipant(id UserID) ParticipantID {
	return ParticipantID{User: id}
}

// OccupantParticipant returns a participant for a room occupant.
func OccupantParticipant(id OccupantID) ParticipantID {
	return ParticipantID{Occupant: id}
}

// IsOccupant reports whether p is a room occupant.
func (p ParticipantID) IsOccupant() bool {
	return p.Occupant != ""
}

// IsZero reports whether neither field is set.
func (p ParticipantID) IsZero() bool {
	return p.User == "" && p.Occupant == ""
}

func (p ParticipantID) String() string {
	if p.Occupant != "" {
		return string(p.Occupant)
	}
	return string(p.User)
}

// RoomID returns the conversation e takes part in.
func (e EndpointID) RoomID() RoomID {
	switch e.Kind {
	case EndpointUserResource:
		return e.Resource.UserID().RoomID()
	case EndpointOccupant:
		return e.Occupant.RoomID()
	default:
		return e.User.RoomID()
	}
}
