package parser

import (
	"mellium.im/xmpp/jid"

	"github.com/meszmate/roster-core/internal/domain"
	"github.com/meszmate/roster-core/internal/event"
	"github.com/meszmate/roster-core/internal/logging"
	"github.com/meszmate/roster-core/internal/xmpp/element"
	"github.com/meszmate/roster-core/internal/xmpp/ns"
)

// Strategy turns the sub-events published on one PubSub node into server
// events.
type Strategy interface {
	Handle(owner domain.UserID, subEvents []*element.Element, log *logging.Logger) []event.ServerEvent
}

// GenericStrategy implements Strategy for any node given how to parse its
// item ids and payloads and how to wrap the result.
type GenericStrategy[Id comparable, Item any] struct {
	ParseID func(id string) (Id, error)
	// ParseItem receives the <item/> element and returns its payload.
	ParseItem func(item *element.Element) (Item, error)
	Emit      func(ev event.PubSubEvent[Id, Item]) []event.ServerEvent
}

// Handle implements Strategy. Items that fail to parse are logged and
// skipped.
func (s GenericStrategy[Id, Item]) Handle(owner domain.UserID, subEvents []*element.Element, log *logging.Logger) []event.ServerEvent {
	var out []event.ServerEvent
	for _, sub := range subEvents {
		switch {
		case sub.Is("items", ns.PubSubEvent):
			var items []Item
			for _, it := range sub.ChildrenNamed("item", ns.PubSubEvent) {
				item, err := s.ParseItem(it)
				if err != nil {
					log.Warn("skipping item %q on node %s from %s: %v", it.AttrValue("id"), sub.AttrValue("node"), owner, err)
					continue
				}
				items = append(items, item)
			}
			if len(items) > 0 {
				out = append(out, s.Emit(event.AddedOrUpdated[Id](owner, items))...)
			}

			var ids []Id
			for _, r := range sub.ChildrenNamed("retract", ns.PubSubEvent) {
				id, err := s.ParseID(r.AttrValue("id"))
				if err != nil {
					log.Warn("skipping retraction %q on node %s from %s: %v", r.AttrValue("id"), sub.AttrValue("node"), owner, err)
					continue
				}
				ids = append(ids, id)
			}
			if len(ids) > 0 {
				out = append(out, s.Emit(event.Deleted[Id, Item](owner, ids))...)
			}
		case sub.Is("purge", ns.PubSubEvent), sub.Is("delete", ns.PubSubEvent):
			out = append(out, s.Emit(event.Purged[Id, Item](owner))...)
		}
	}
	return out
}

// classifyPubSub partitions the sub-events by node and hands each group to
// the node's strategy, keeping the order nodes first appeared in.
func (p *Parser) classifyPubSub(ev *element.Element, from jid.JID) []event.ServerEvent {
	owner := domain.NewUserID(from)

	var order []string
	groups := make(map[string][]*element.Element)
	for _, sub := range ev.ChildrenIn(ns.PubSubEvent) {
		node := sub.AttrValue("node")
		if _, seen := groups[node]; !seen {
			order = append(order, node)
		}
		groups[node] = append(groups[node], sub)
	}

	var events []event.ServerEvent
	for _, node := range order {
		strategy, ok := p.strategies[node]
		if !ok {
			p.log.Debug("ignoring pubsub event for unknown node %q from %s", node, owner)
			continue
		}
		events = append(events, strategy.Handle(owner, groups[node], p.log)...)
	}
	return events
}

// DefaultStrategies returns the strategies for every node we subscribe to.
func DefaultStrategies() map[string]Strategy {
	return map[string]Strategy{
		ns.Bookmarks: GenericStrategy[domain.RoomID, domain.Bookmark]{
			ParseID:   parseRoomID,
			ParseItem: parseBookmark,
			Emit: func(ev event.PubSubEvent[domain.RoomID, domain.Bookmark]) []event.ServerEvent {
				return []event.ServerEvent{event.SidebarBookmarkEvent{PubSubEvent: ev}}
			},
		},
		ns.AvatarMeta: GenericStrategy[string, *domain.AvatarMetadata]{
			ParseID:   parseString,
			ParseItem: parseAvatarMetadata,
			Emit: func(ev event.PubSubEvent[string, *domain.AvatarMetadata]) []event.ServerEvent {
				var meta *domain.AvatarMetadata
				if ev.Kind == event.ItemsAddedOrUpdated {
					meta = ev.Items[len(ev.Items)-1]
				}
				return userInfo(ev.UserID, event.AvatarChanged{Metadata: meta})
			},
		},
		ns.Nick: GenericStrategy[string, string]{
			ParseID:   parseString,
			ParseItem: parseNick,
			Emit: func(ev event.PubSubEvent[string, string]) []event.ServerEvent {
				var nick string
				if ev.Kind == event.ItemsAddedOrUpdated {
					nick = ev.Items[len(ev.Items)-1]
				}
				return userInfo(ev.UserID, event.NicknameChanged{Nickname: nick})
			},
		},
		ns.UserActivity: GenericStrategy[string, *domain.UserStatus]{
			ParseID:   parseString,
			ParseItem: parseUserActivity,
			Emit: func(ev event.PubSubEvent[string, *domain.UserStatus]) []event.ServerEvent {
				var status *domain.UserStatus
				if ev.Kind == event.ItemsAddedOrUpdated {
					status = ev.Items[len(ev.Items)-1]
				}
				return userInfo(ev.UserID, event.StatusChanged{Status: status})
			},
		},
		ns.VCard4: GenericStrategy[string, *domain.Profile]{
			ParseID:   parseString,
			ParseItem: parseVCard4,
			Emit: func(ev event.PubSubEvent[string, *domain.Profile]) []event.ServerEvent {
				var profile *domain.Profile
				if ev.Kind == event.ItemsAddedOrUpdated {
					profile = ev.Items[len(ev.Items)-1]
				}
				return userInfo(ev.UserID, event.ProfileChanged{Profile: profile})
			},
		},
	}
}

func userInfo(user domain.UserID, typ event.UserInfoEventType) []event.ServerEvent {
	return []event.ServerEvent{event.UserInfoEvent{UserID: user, Type: typ}}
}
