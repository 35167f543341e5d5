// Package disco holds our own service discovery identity and the
// capabilities other resources advertise (XEP-0030, XEP-0115).
package disco

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/meszmate/roster-core/internal/domain"
	"github.com/meszmate/roster-core/internal/repo"
	"github.com/meszmate/roster-core/internal/xmpp/ns"
)

// ErrVerificationMismatch is returned when disco#info results do not hash to
// the advertised verification string.
var ErrVerificationMismatch = errors.New("capabilities verification string mismatch")

// Identity represents a disco identity
type Identity struct {
	Category string
	Type     string
	Name     string
	Lang     string
}

// Info represents disco info response
type Info struct {
	Identities []Identity
	Features   []string
}

// HasFeature reports whether info lists feature.
func (i Info) HasFeature(feature string) bool {
	return slices.Contains(i.Features, feature)
}

// Clone returns a copy that shares no slices with i.
func (i Info) Clone() Info {
	return Info{Identities: slices.Clone(i.Identities), Features: slices.Clone(i.Features)}
}

// DefaultFeatures are the features a client built on this module handles.
var DefaultFeatures = []string{
	ns.DiscoInfo,
	ns.Caps,
	ns.Ping,
	ns.Time,
	ns.LastActivity,
	ns.Version,
	ns.MUCUser,
	ns.Conference,
	ns.ChatStates,
	ns.Receipts,
	ns.Markers,
	ns.Reactions,
	ns.Retract1,
	ns.Correct,
	ns.OOB,
	ns.Carbons,
	ns.MAM,
	ns.Notify(ns.Bookmarks),
	ns.Notify(ns.AvatarMeta),
	ns.Notify(ns.Nick),
	ns.Notify(ns.UserActivity),
	ns.Notify(ns.VCard4),
}

// Verification computes the XEP-0115 verification string of info.
func Verification(info Info) string {
	ids := slices.Clone(info.Identities)
	sort.Slice(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Lang != b.Lang {
			return a.Lang < b.Lang
		}
		return a.Name < b.Name
	})
	features := slices.Clone(info.Features)
	sort.Strings(features)
	features = slices.Compact(features)

	var s strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&s, "%s/%s/%s/%s<", id.Category, id.Type, id.Lang, id.Name)
	}
	for _, f := range features {
		s.WriteString(f)
		s.WriteByte('<')
	}
	sum := sha1.Sum([]byte(s.String()))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// SplitCapabilities splits "node#ver" into its parts.
func SplitCapabilities(id domain.CapabilitiesID) (node, ver string, ok bool) {
	i := strings.LastIndexByte(string(id), '#')
	if i < 0 {
		return "", "", false
	}
	return string(id[:i]), string(id[i+1:]), true
}

// Own describes this client to others.
type Own struct {
	Node string
	Info Info
}

// NewOwn builds our identity as a "client/pc" entity with the default
// features plus extra ones.
func NewOwn(node, name string, extra ...string) *Own {
	features := append(slices.Clone(DefaultFeatures), extra...)
	sort.Strings(features)
	return &Own{
		Node: node,
		Info: Info{
			Identities: []Identity{{Category: "client", Type: "pc", Name: name}},
			Features:   slices.Compact(features),
		},
	}
}

// CapabilitiesID is what we put in our presence.
func (o *Own) CapabilitiesID() domain.CapabilitiesID {
	return domain.CapabilitiesID(o.Node + "#" + Verification(o.Info))
}

// Answers reports whether a disco#info query for node is about us.
func (o *Own) Answers(node domain.CapabilitiesID) bool {
	return node == o.CapabilitiesID()
}

// Cache maps verification strings to the disco#info they stand for. Entries
// are shared by every resource advertising the same capabilities.
type Cache struct {
	info *repo.Store[domain.CapabilitiesID, Info]
}

// NewCache creates a new disco cache
func NewCache() *Cache {
	return &Cache{info: repo.NewStore[domain.CapabilitiesID, Info](nil)}
}

// Set stores info under id after checking that it hashes to id's
// verification string.
func (c *Cache) Set(id domain.CapabilitiesID, info Info) (bool, error) {
	_, ver, ok := SplitCapabilities(id)
	if !ok {
		return false, fmt.Errorf("failed to cache capabilities %q: missing verification string", id)
	}
	if got := Verification(info); got != ver {
		return false, fmt.Errorf("failed to cache capabilities %q (computed %s): %w", id, got, ErrVerificationMismatch)
	}
	return c.info.Set(id, info.Clone()), nil
}

// Get returns the info behind id.
func (c *Cache) Get(id domain.CapabilitiesID) (Info, bool) {
	info, ok := c.info.Get(id)
	if !ok {
		return Info{}, false
	}
	return info.Clone(), true
}

// HasFeature reports whether the capabilities id are known to include
// feature.
func (c *Cache) HasFeature(id domain.CapabilitiesID, feature string) bool {
	info, ok := c.info.Get(id)
	return ok && info.HasFeature(feature)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.info.Len()
}
