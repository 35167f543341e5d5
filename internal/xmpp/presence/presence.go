package presence

import (
	"sort"
	"time"

	"github.com/meszmate/roster-core/internal/domain"
	"github.com/meszmate/roster-core/internal/repo"
)

// DefaultComposeTimeout is how long a composing state counts without being
// refreshed.
const DefaultComposeTimeout = 30 * time.Second

type composeEntry struct {
	State domain.ComposeState
	At    time.Time
}

// Manager tracks presence, chat states and advertised capabilities per
// endpoint.
type Manager struct {
	presences *repo.Store[domain.EndpointID, domain.Presence]
	compose   *repo.Store[domain.EndpointID, composeEntry]
	caps      *repo.Store[domain.UserResourceID, domain.CapabilitiesID]

	composeTimeout time.Duration
	now            func() time.Time
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		presences:      repo.NewStore[domain.EndpointID](func(a, b domain.Presence) bool { return a == b }),
		compose:        repo.NewStore[domain.EndpointID](func(a, b composeEntry) bool { return a.State == b.State }),
		caps:           repo.NewStore[domain.UserResourceID](func(a, b domain.CapabilitiesID) bool { return a == b }),
		composeTimeout: DefaultComposeTimeout,
		now:            time.Now,
	}
}

// SetPresence records the presence of id and reports whether it changed. An
// unavailable endpoint is forgotten along with its chat state and
// capabilities.
func (m *Manager) SetPresence(id domain.EndpointID, p domain.Presence) bool {
	if !p.Availability.IsOnline() {
		changed := m.presences.Delete(id)
		m.compose.Delete(id)
		if id.Kind == domain.EndpointUserResource {
			m.caps.Delete(id.Resource)
		}
		return changed
	}
	return m.presences.Set(id, p)
}

// Get returns the presence of user. With several resources online the one
// with the highest priority wins.
func (m *Manager) Get(user domain.UserID) (domain.Presence, bool) {
	var (
		best  domain.Presence
		found bool
	)
	for id, p := range m.presences.All() {
		owner, ok := id.ToUserID()
		if !ok || owner != user {
			continue
		}
		if !found || p.Priority > best.Priority {
			best, found = p, true
		}
	}
	return best, found
}

// GetEndpoint returns the presence of one endpoint.
func (m *Manager) GetEndpoint(id domain.EndpointID) (domain.Presence, bool) {
	return m.presences.Get(id)
}

// Resources returns the online resources of user, sorted.
func (m *Manager) Resources(user domain.UserID) []domain.UserResourceID {
	var out []domain.UserResourceID
	for id := range m.presences.All() {
		if id.Kind == domain.EndpointUserResource && id.Resource.UserID() == user {
			out = append(out, id.Resource)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsOnline reports whether user has any online endpoint.
func (m *Manager) IsOnline(user domain.UserID) bool {
	_, ok := m.Get(user)
	return ok
}

// SetComposeState records the chat state of id. Only composing is kept,
// everything else clears it.
func (m *Manager) SetComposeState(id domain.EndpointID, state domain.ComposeState) bool {
	if state != domain.ComposeStateComposing {
		return m.compose.Delete(id)
	}
	now := m.now()
	var changed bool
	m.compose.Update(id, func(e *composeEntry) bool {
		// Refreshing an ongoing composing state is not a change.
		changed = e.State != state || now.Sub(e.At) > m.composeTimeout
		e.State, e.At = state, now
		return true
	})
	return changed
}

// ComposingUsers returns who is typing in conv, sorted.
func (m *Manager) ComposingUsers(conv domain.RoomID) []domain.EndpointID {
	now := m.now()
	var out []domain.EndpointID
	for id, e := range m.compose.All() {
		if id.RoomID() == conv && now.Sub(e.At) <= m.composeTimeout {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// SetCapabilities records the capabilities a resource advertises.
func (m *Manager) SetCapabilities(id domain.UserResourceID, caps domain.CapabilitiesID) bool {
	return m.caps.Set(id, caps)
}

// Capabilities returns what a resource advertised.
func (m *Manager) Capabilities(id domain.UserResourceID) (domain.CapabilitiesID, bool) {
	return m.caps.Get(id)
}

// Clear forgets everything, for example after a disconnect.
func (m *Manager) Clear() {
	m.presences.Clear()
	m.compose.Clear()
	m.caps.Clear()
}
