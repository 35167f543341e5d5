package parser

import (
	"strconv"

	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"

	"github.com/meszmate/roster-core/internal/domain"
	"github.com/meszmate/roster-core/internal/event"
	"github.com/meszmate/roster-core/internal/xmpp/element"
	"github.com/meszmate/roster-core/internal/xmpp/ns"
)

// MUC status codes, XEP-0045 §15.6.
const (
	statusSelfPresence     = 110
	statusBanned           = 301
	statusKicked           = 307
	statusAffiliationLost  = 321
	statusMembersOnly      = 322
	statusSystemShutdown   = 332
	statusServiceErrorKick = 333
)

func (p *Parser) classifyPresence(el *element.Element) ([]event.ServerEvent, error) {
	typ := stanza.PresenceType(el.AttrValue("type"))
	switch typ {
	case stanza.AvailablePresence, stanza.UnavailablePresence:
	default:
		// Subscription management, probes and errors are not status changes.
		return nil, nil
	}

	fromAttr := el.AttrValue("from")
	if fromAttr == "" {
		return nil, missingAttr("presence", "from")
	}
	from, err := jid.Parse(fromAttr)
	if err != nil {
		return nil, invalidAttr("presence", "from", err)
	}

	if x := el.Child("x", ns.MUCUser); x != nil {
		return p.classifyMUCPresence(el, x, from, typ)
	}

	presence := parsePresence(el, typ)

	if from.Resourcepart() == "" {
		return []event.ServerEvent{event.UserStatusEvent{
			UserID: domain.UserEndpoint(domain.NewUserID(from)),
			Type:   event.AvailabilityChanged{Presence: presence},
		}}, nil
	}

	resource, err := domain.NewUserResourceID(from)
	if err != nil {
		return nil, invalidAttr("presence", "from", err)
	}
	events := []event.ServerEvent{event.UserStatusEvent{
		UserID: domain.ResourceEndpoint(resource),
		Type:   event.AvailabilityChanged{Presence: presence},
	}}
	if caps, ok := parseCaps(el); ok && typ != stanza.UnavailablePresence {
		events = append(events, event.UserResourceEvent{
			UserID: resource,
			Type:   event.CapabilitiesChanged{ID: caps},
		})
	}
	return events, nil
}

// classifyMUCPresence runs the occupant state machine: destroy wins, then the
// availability change, then at most one membership event.
func (p *Parser) classifyMUCPresence(el, x *element.Element, from jid.JID, typ stanza.PresenceType) ([]event.ServerEvent, error) {
	occupant, err := domain.NewOccupantID(from)
	if err != nil {
		return nil, invalidAttr("presence", "from", err)
	}

	item := x.Child("item", ns.MUCUser)
	if item == nil {
		return nil, missingChild("presence", "item")
	}

	if destroy := x.Child("destroy", ns.MUCUser); destroy != nil {
		destroyed := event.Destroyed{}
		if alt := destroy.AttrValue("jid"); alt != "" {
			altJID, err := jid.Parse(alt)
			if err != nil {
				return nil, invalidAttr("destroy", "jid", err)
			}
			destroyed.Replacement = domain.NewRoomID(altJID)
		}
		destroyed.Reason, _ = destroy.ChildText("reason", ns.MUCUser)
		return []event.ServerEvent{event.RoomEvent{
			RoomID: occupant.RoomID(),
			Type:   destroyed,
		}}, nil
	}

	codes := statusCodes(x)

	base := event.OccupantEvent{
		OccupantID: occupant,
		IsSelf:     codes[statusSelfPresence],
	}
	if oid := el.Child("occupant-id", ns.OccupantID); oid != nil {
		base.AnonOccupantID = domain.AnonOccupantID(oid.AttrValue("id"))
	}
	if realAttr := item.AttrValue("jid"); realAttr != "" {
		realJID, err := jid.Parse(realAttr)
		if err != nil {
			return nil, invalidAttr("item", "jid", err)
		}
		base.RealID = domain.NewUserID(realJID)
	}

	events := []event.ServerEvent{event.UserStatusEvent{
		UserID: domain.OccupantEndpoint(occupant),
		Type:   event.AvailabilityChanged{Presence: parsePresence(el, typ)},
	}}

	if typ == stanza.UnavailablePresence {
		switch {
		case codes[statusBanned] || codes[statusKicked] || codes[statusAffiliationLost] || codes[statusMembersOnly]:
			base.Type = event.PermanentlyRemoved{}
		case codes[statusSystemShutdown] || codes[statusServiceErrorKick]:
			base.Type = event.DisconnectedByServer{}
		default:
			return events, nil
		}
		return append(events, base), nil
	}

	base.Type = event.AffiliationChanged{
		Affiliation: domain.ParseAffiliation(item.AttrValue("affiliation")),
		Role:        domain.ParseRole(item.AttrValue("role")),
	}
	return append(events, base), nil
}

func parsePresence(el *element.Element, typ stanza.PresenceType) domain.Presence {
	var presence domain.Presence
	if typ == stanza.UnavailablePresence {
		presence.Availability = domain.AvailabilityUnavailable
	} else {
		show, _ := el.ChildText("show", ns.Client)
		presence.Availability = domain.AvailabilityFromShow(show)
	}
	presence.Status, _ = el.ChildText("status", ns.Client)
	if prio, ok := el.ChildText("priority", ns.Client); ok {
		if n, err := strconv.Atoi(prio); err == nil {
			presence.Priority = n
		}
	}
	return presence
}

func parseCaps(el *element.Element) (domain.CapabilitiesID, bool) {
	c := el.Child("c", ns.Caps)
	if c == nil {
		return "", false
	}
	node, ver := c.AttrValue("node"), c.AttrValue("ver")
	if node == "" || ver == "" {
		return "", false
	}
	return domain.CapabilitiesID(node + "#" + ver), true
}

func statusCodes(x *element.Element) map[int]bool {
	codes := make(map[int]bool)
	for _, s := range x.ChildrenNamed("status", ns.MUCUser) {
		if code, err := strconv.Atoi(s.AttrValue("code")); err == nil {
			codes[code] = true
		}
	}
	return codes
}
