package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/meszmate/roster-core/internal/domain"
)

var (
	laptop = domain.ResourceEndpoint("alice@example.com/laptop")
	phone  = domain.ResourceEndpoint("alice@example.com/phone")
)

func TestHighestPriorityWins(t *testing.T) {
	m := NewManager()

	assert.True(t, m.SetPresence(laptop, domain.Presence{Availability: domain.AvailabilityAway, Priority: 1}))
	assert.True(t, m.SetPresence(phone, domain.Presence{Availability: domain.AvailabilityDND, Priority: 5}))
	assert.False(t, m.SetPresence(phone, domain.Presence{Availability: domain.AvailabilityDND, Priority: 5}), "same presence twice")

	p, ok := m.Get("alice@example.com")
	assert.True(t, ok)
	assert.Equal(t, domain.AvailabilityDND, p.Availability)
	assert.Equal(t, []domain.UserResourceID{"alice@example.com/laptop", "alice@example.com/phone"}, m.Resources("alice@example.com"))

	assert.True(t, m.SetPresence(phone, domain.Presence{Availability: domain.AvailabilityUnavailable}))
	assert.False(t, m.SetPresence(phone, domain.Presence{Availability: domain.AvailabilityUnavailable}))
	p, _ = m.Get("alice@example.com")
	assert.Equal(t, domain.AvailabilityAway, p.Availability)

	m.SetPresence(laptop, domain.Presence{Availability: domain.AvailabilityUnavailable})
	assert.False(t, m.IsOnline("alice@example.com"))
}

func TestComposeState(t *testing.T) {
	m := NewManager()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	occupant := domain.OccupantEndpoint("room@conf.example.com/bob")
	assert.True(t, m.SetComposeState(occupant, domain.ComposeStateComposing))
	assert.False(t, m.SetComposeState(occupant, domain.ComposeStateComposing), "refresh is not a change")
	assert.Equal(t, []domain.EndpointID{occupant}, m.ComposingUsers("room@conf.example.com"))
	assert.Empty(t, m.ComposingUsers("alice@example.com"))

	now = now.Add(time.Minute)
	assert.Empty(t, m.ComposingUsers("room@conf.example.com"), "stale state expires")
	assert.True(t, m.SetComposeState(occupant, domain.ComposeStateComposing), "expired state starts again")

	assert.True(t, m.SetComposeState(occupant, domain.ComposeStatePaused))
	assert.False(t, m.SetComposeState(occupant, domain.ComposeStateActive))
	assert.Empty(t, m.ComposingUsers("room@conf.example.com"))
}

func TestCapabilitiesFollowPresence(t *testing.T) {
	m := NewManager()

	m.SetPresence(laptop, domain.Presence{Availability: domain.AvailabilityAvailable})
	assert.True(t, m.SetCapabilities("alice@example.com/laptop", "https://example.com#abc"))
	assert.False(t, m.SetCapabilities("alice@example.com/laptop", "https://example.com#abc"))

	caps, ok := m.Capabilities("alice@example.com/laptop")
	assert.True(t, ok)
	assert.Equal(t, domain.CapabilitiesID("https://example.com#abc"), caps)

	m.SetPresence(laptop, domain.Presence{Availability: domain.AvailabilityUnavailable})
	_, ok = m.Capabilities("alice@example.com/laptop")
	assert.False(t, ok)

	m.SetPresence(phone, domain.Presence{Availability: domain.AvailabilityAvailable})
	m.Clear()
	assert.False(t, m.IsOnline("alice@example.com"))
}
