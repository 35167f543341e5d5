package roster

import (
	"reflect"
	"sort"
	"strings"

	"github.com/meszmate/roster-core/internal/domain"
	"github.com/meszmate/roster-core/internal/repo"
)

// UserInfo is what contacts publish about themselves over PEP.
type UserInfo struct {
	Avatar   *domain.AvatarMetadata
	Profile  *domain.Profile
	Status   *domain.UserStatus
	Nickname string
}

// IsEmpty reports whether nothing is known.
func (u UserInfo) IsEmpty() bool {
	return u.Avatar == nil && u.Profile == nil && u.Status == nil && u.Nickname == ""
}

// Manager keeps the published info of every user we heard from.
type Manager struct {
	users *repo.Store[domain.UserID, UserInfo]
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{users: repo.NewStore[domain.UserID, UserInfo](nil)}
}

func (m *Manager) update(id domain.UserID, mutate func(u *UserInfo)) bool {
	changed := m.users.Update(id, func(u *UserInfo) bool {
		before := *u
		mutate(u)
		return !reflect.DeepEqual(before, *u)
	})
	if u, ok := m.users.Get(id); ok && u.IsEmpty() {
		m.users.Delete(id)
	}
	return changed
}

// SetAvatar records the avatar of id. nil means the avatar was removed.
func (m *Manager) SetAvatar(id domain.UserID, avatar *domain.AvatarMetadata) bool {
	return m.update(id, func(u *UserInfo) { u.Avatar = clone(avatar) })
}

// SetProfile records the vCard of id.
func (m *Manager) SetProfile(id domain.UserID, profile *domain.Profile) bool {
	return m.update(id, func(u *UserInfo) { u.Profile = clone(profile) })
}

// SetStatus records the user activity of id.
func (m *Manager) SetStatus(id domain.UserID, status *domain.UserStatus) bool {
	return m.update(id, func(u *UserInfo) { u.Status = clone(status) })
}

// SetNickname records the published nickname of id.
func (m *Manager) SetNickname(id domain.UserID, nickname string) bool {
	return m.update(id, func(u *UserInfo) { u.Nickname = nickname })
}

// Get returns what is known about id.
func (m *Manager) Get(id domain.UserID) (UserInfo, bool) {
	u, ok := m.users.Get(id)
	if !ok {
		return UserInfo{}, false
	}
	u.Avatar, u.Profile, u.Status = clone(u.Avatar), clone(u.Profile), clone(u.Status)
	return u, true
}

// DisplayName picks the best name for id: the published nickname, then the
// vCard names, then the local part of the address.
func (m *Manager) DisplayName(id domain.UserID) string {
	u, _ := m.users.Get(id)
	switch {
	case u.Nickname != "":
		return u.Nickname
	case u.Profile != nil && u.Profile.Nickname != "":
		return u.Profile.Nickname
	case u.Profile != nil && u.Profile.FullName != "":
		return u.Profile.FullName
	}
	local, _, found := strings.Cut(string(id), "@")
	if !found {
		return string(id)
	}
	return local
}

// Users returns everybody something is known about, sorted.
func (m *Manager) Users() []domain.UserID {
	all := m.users.All()
	out := make([]domain.UserID, 0, len(all))
	for id := range all {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Count returns the number of known users.
func (m *Manager) Count() int {
	return m.users.Len()
}

func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
