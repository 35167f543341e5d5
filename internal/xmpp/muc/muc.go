package muc

import (
	"maps"
	"slices"
	"sort"

	"github.com/meszmate/roster-core/internal/domain"
	"github.com/meszmate/roster-core/internal/repo"
)

// Occupant is one participant of a room.
type Occupant struct {
	ID          domain.OccupantID
	AnonID      domain.AnonOccupantID
	RealID      domain.UserID // empty in semi-anonymous rooms
	Affiliation domain.Affiliation
	Role        domain.Role
	IsSelf      bool
}

// Invitation is a pending invite to a room.
type Invitation struct {
	Room     domain.RoomID
	Sender   domain.UserID
	Password string
	Reason   string
}

// Room is what we know about a room we are in.
type Room struct {
	ID        domain.RoomID
	Nick      string
	Topic     string
	Occupants map[domain.OccupantID]Occupant
	// ConfigChanges holds the status codes of the last configuration
	// change notice, until the configuration is reloaded.
	ConfigChanges []int
}

// Destruction records why a room went away.
type Destruction struct {
	Replacement domain.RoomID
	Reason      string
}

// Manager tracks joined rooms, their occupants and pending invitations.
type Manager struct {
	rooms       *repo.Store[domain.RoomID, Room]
	destroyed   *repo.Store[domain.RoomID, Destruction]
	invitations *repo.Store[domain.RoomID, Invitation]
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		rooms:       repo.NewStore[domain.RoomID, Room](nil),
		destroyed:   repo.NewStore[domain.RoomID](func(a, b Destruction) bool { return a == b }),
		invitations: repo.NewStore[domain.RoomID](func(a, b Invitation) bool { return a == b }),
	}
}

// JoinRoom registers a room we are entering with nick.
func (m *Manager) JoinRoom(id domain.RoomID, nick string) bool {
	m.destroyed.Delete(id)
	m.invitations.Delete(id)
	return m.rooms.Update(id, func(r *Room) bool {
		if r.ID == id && r.Nick == nick {
			return false
		}
		r.ID, r.Nick = id, nick
		return true
	})
}

// LeaveRoom forgets a room.
func (m *Manager) LeaveRoom(id domain.RoomID) bool {
	return m.rooms.Delete(id)
}

// Get returns a snapshot of a room.
func (m *Manager) Get(id domain.RoomID) (Room, bool) {
	r, ok := m.rooms.Get(id)
	if ok {
		r.Occupants = maps.Clone(r.Occupants)
		r.ConfigChanges = append([]int(nil), r.ConfigChanges...)
	}
	return r, ok
}

// Rooms returns the ids of all known rooms, sorted.
func (m *Manager) Rooms() []domain.RoomID {
	all := m.rooms.All()
	out := make([]domain.RoomID, 0, len(all))
	for id := range all {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// OwnNickname returns the nickname we use in room.
func (m *Manager) OwnNickname(id domain.RoomID) (string, bool) {
	r, ok := m.rooms.Get(id)
	if !ok || r.Nick == "" {
		return "", false
	}
	return r.Nick, true
}

// SetOccupant adds or updates an occupant. Our own occupant also fixes the
// nickname we use in the room.
func (m *Manager) SetOccupant(o Occupant) bool {
	id := o.ID.RoomID()
	return m.rooms.Update(id, func(r *Room) bool {
		if old, ok := r.Occupants[o.ID]; ok {
			// Keep what earlier presences told us if this one is silent.
			if o.AnonID == "" {
				o.AnonID = old.AnonID
			}
			if o.RealID == "" {
				o.RealID = old.RealID
			}
			if old == o && (!o.IsSelf || r.Nick == o.ID.Nickname()) {
				return false
			}
		}
		occupants := maps.Clone(r.Occupants)
		if occupants == nil {
			occupants = make(map[domain.OccupantID]Occupant)
		}
		occupants[o.ID] = o
		r.ID = id
		r.Occupants = occupants
		if o.IsSelf {
			r.Nick = o.ID.Nickname()
		}
		return true
	})
}

// RemoveOccupant drops an occupant. Removing ourselves leaves the room.
func (m *Manager) RemoveOccupant(id domain.OccupantID, self bool) bool {
	room := id.RoomID()
	if self {
		return m.rooms.Delete(room)
	}
	return m.rooms.UpdateExisting(room, func(r *Room) bool {
		if _, ok := r.Occupants[id]; !ok {
			return false
		}
		occupants := maps.Clone(r.Occupants)
		delete(occupants, id)
		r.Occupants = occupants
		return true
	})
}

// Occupant returns one occupant.
func (m *Manager) Occupant(id domain.OccupantID) (Occupant, bool) {
	r, ok := m.rooms.Get(id.RoomID())
	if !ok {
		return Occupant{}, false
	}
	o, ok := r.Occupants[id]
	return o, ok
}

// Destroy forgets a destroyed room and remembers where it went.
func (m *Manager) Destroy(id domain.RoomID, replacement domain.RoomID, reason string) bool {
	left := m.rooms.Delete(id)
	recorded := m.destroyed.Set(id, Destruction{Replacement: replacement, Reason: reason})
	return left || recorded
}

// Destruction returns why a room was destroyed.
func (m *Manager) Destruction(id domain.RoomID) (Destruction, bool) {
	return m.destroyed.Get(id)
}

// SetTopic updates the subject of a room.
func (m *Manager) SetTopic(id domain.RoomID, topic string) bool {
	return m.rooms.Update(id, func(r *Room) bool {
		if r.ID == id && r.Topic == topic {
			return false
		}
		r.ID, r.Topic = id, topic
		return true
	})
}

// ConfigChanged records a configuration change notice for a known room.
func (m *Manager) ConfigChanged(id domain.RoomID, codes []int) bool {
	return m.rooms.UpdateExisting(id, func(r *Room) bool {
		if slices.Equal(r.ConfigChanges, codes) {
			return false
		}
		r.ConfigChanges = append([]int(nil), codes...)
		return true
	})
}

// ConfigReloaded clears a pending configuration change notice.
func (m *Manager) ConfigReloaded(id domain.RoomID) bool {
	return m.rooms.UpdateExisting(id, func(r *Room) bool {
		if len(r.ConfigChanges) == 0 {
			return false
		}
		r.ConfigChanges = nil
		return true
	})
}

// AddInvitation records an invite. Invites to rooms we are in are ignored.
func (m *Manager) AddInvitation(inv Invitation) bool {
	if _, ok := m.rooms.Get(inv.Room); ok {
		return false
	}
	return m.invitations.Set(inv.Room, inv)
}

// Invitations returns the pending invitations, sorted by room.
func (m *Manager) Invitations() []Invitation {
	all := m.invitations.All()
	out := make([]Invitation, 0, len(all))
	for _, inv := range all {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })
	return out
}

// DeclineInvitation drops a pending invitation.
func (m *Manager) DeclineInvitation(id domain.RoomID) bool {
	return m.invitations.Delete(id)
}

// Clear forgets the rooms we were in. Invitations survive a reconnect.
func (m *Manager) Clear() {
	m.rooms.Clear()
}
