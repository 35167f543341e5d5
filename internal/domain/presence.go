package domain

// Availability is the presence state of an endpoint.
type Availability string

const (
	AvailabilityAvailable    Availability = "available"
	AvailabilityChat         Availability = "chat"
	AvailabilityAway         Availability = "away"
	AvailabilityExtendedAway Availability = "xa"
	AvailabilityDND          Availability = "dnd"
	AvailabilityUnavailable  Availability = "unavailable"
)

// AvailabilityFromShow maps a <show/> value. An empty show is available.
func AvailabilityFromShow(show string) Availability {
	switch show {
	case "":
		return AvailabilityAvailable
	case "chat":
		return AvailabilityChat
	case "away":
		return AvailabilityAway
	case "xa":
		return AvailabilityExtendedAway
	case "dnd":
		return AvailabilityDND
	default:
		return AvailabilityAvailable
	}
}

// IsOnline reports whether a is anything but unavailable.
func (a Availability) IsOnline() bool {
	return a != AvailabilityUnavailable && a != ""
}

// Presence is what we know about one endpoint's presence stanza.
type Presence struct {
	Availability Availability
	Status       string
	Priority     int
}

// ComposeState is the XEP-0085 chat state of a participant.
type ComposeState string

const (
	ComposeStateActive    ComposeState = "active"
	ComposeStateComposing ComposeState = "composing"
	ComposeStatePaused    ComposeState = "paused"
	ComposeStateInactive  ComposeState = "inactive"
	ComposeStateGone      ComposeState = "gone"
)

// ParseComposeState maps a chat state element name.
func ParseComposeState(name string) (ComposeState, bool) {
	switch s := ComposeState(name); s {
	case ComposeStateActive, ComposeStateComposing, ComposeStatePaused, ComposeStateInactive, ComposeStateGone:
		return s, true
	default:
		return "", false
	}
}

// Affiliation is a MUC occupant's long lived membership.
type Affiliation string

const (
	AffiliationOwner   Affiliation = "owner"
	AffiliationAdmin   Affiliation = "admin"
	AffiliationMember  Affiliation = "member"
	AffiliationOutcast Affiliation = "outcast"
	AffiliationNone    Affiliation = "none"
)

// ParseAffiliation maps an item@affiliation value. Unknown values are none.
func ParseAffiliation(s string) Affiliation {
	switch a := Affiliation(s); a {
	case AffiliationOwner, AffiliationAdmin, AffiliationMember, AffiliationOutcast:
		return a
	default:
		return AffiliationNone
	}
}

// Role is a MUC occupant's per-visit role.
type Role string

const (
	RoleModerator   Role = "moderator"
	RoleParticipant Role = "participant"
	RoleVisitor     Role = "visitor"
	RoleNone        Role = "none"
)

// ParseRole maps an item@role value. Unknown values are none.
func ParseRole(s string) Role {
	switch r := Role(s); r {
	case RoleModerator, RoleParticipant, RoleVisitor:
		return r
	default:
		return RoleNone
	}
}
