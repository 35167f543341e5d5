package parser

import (
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"

	"github.com/meszmate/roster-core/internal/domain"
	"github.com/meszmate/roster-core/internal/event"
	"github.com/meszmate/roster-core/internal/xmpp/element"
	"github.com/meszmate/roster-core/internal/xmpp/ns"
)

// roomConfigCodes are the muc#user status codes a room sends in a groupchat
// message when its configuration changed.
var roomConfigCodes = []int{102, 103, 104, 170, 171, 172, 173, 174}

func (p *Parser) classifyMessage(el *element.Element) ([]event.ServerEvent, error) {
	from, err := p.from(el)
	if err != nil {
		return nil, err
	}

	if ev := el.Child("event", ns.PubSubEvent); ev != nil {
		return p.classifyPubSub(ev, from), nil
	}

	if isInvitation(el) {
		return nil, nil
	}
	if el.Child("result", ns.MAM) != nil {
		// Archive results are folded in by the archive loader.
		return nil, nil
	}

	if carbon, dir, ok := carbonCopy(el); ok {
		if !p.isAccount(from) {
			return nil, nil
		}
		if carbon.Child("forwarded", ns.Forward).Child("message", ns.Client) == nil {
			return nil, missingChild("message", "forwarded")
		}
		return []event.ServerEvent{event.MessageEvent{
			Type:    event.Sync{Direction: dir},
			Message: el,
		}}, nil
	}

	if hasChatState(el) && !hasMessagePayload(el) {
		return nil, nil
	}

	typ := stanza.MessageType(el.AttrValue("type"))
	switch typ {
	case stanza.GroupChatMessage:
		// Only a room sends groupchat messages, never our own account.
		if el.AttrValue("from") == "" {
			return nil, missingAttr("message", "from")
		}
		return p.classifyGroupchat(el, from), nil
	case stanza.ChatMessage, stanza.NormalMessage, "":
		return []event.ServerEvent{received(el)}, nil
	default:
		// Headlines and errors are not part of a conversation.
		return nil, nil
	}
}

func (p *Parser) classifyGroupchat(el *element.Element, from jid.JID) []event.ServerEvent {
	room := domain.NewRoomID(from)

	if x := el.Child("x", ns.MUCUser); x != nil {
		codes := statusCodes(x)
		var changed []int
		for _, c := range roomConfigCodes {
			if codes[c] {
				changed = append(changed, c)
			}
		}
		if len(changed) > 0 {
			return []event.ServerEvent{event.RoomEvent{
				RoomID: room,
				Type:   event.RoomConfigChanged{StatusCodes: changed},
			}}
		}
	}

	if subject, ok := el.ChildText("subject", ns.Client); ok {
		_, hasBody := el.ChildText("body", ns.Client)
		// An empty subject without a body clears the topic. With a body it is
		// an ordinary message that happens to carry an empty subject.
		if subject != "" || !hasBody {
			return []event.ServerEvent{event.RoomEvent{
				RoomID: room,
				Type:   event.RoomTopicChanged{NewTopic: subject},
			}}
		}
	}

	return []event.ServerEvent{received(el)}
}

func received(el *element.Element) event.ServerEvent {
	return event.MessageEvent{Type: event.Received{}, Message: el}
}

func carbonCopy(el *element.Element) (*element.Element, event.Direction, bool) {
	if c := el.Child("received", ns.Carbons); c != nil {
		return c, event.DirectionReceived, true
	}
	if c := el.Child("sent", ns.Carbons); c != nil {
		return c, event.DirectionSent, true
	}
	return nil, 0, false
}

func isInvitation(el *element.Element) bool {
	if el.Child("x", ns.Conference) != nil {
		return true
	}
	return el.Child("x", ns.MUCUser).Child("invite", ns.MUCUser) != nil
}

func hasChatState(el *element.Element) bool {
	for _, c := range el.ChildrenIn(ns.ChatStates) {
		if _, ok := domain.ParseComposeState(c.Name.Local); ok {
			return true
		}
	}
	return false
}

// hasMessagePayload reports whether el carries anything the message log
// records.
func hasMessagePayload(el *element.Element) bool {
	switch {
	case el.Child("body", ns.Client) != nil,
		el.Child("reactions", ns.Reactions) != nil,
		el.Child("apply-to", ns.Fasten) != nil,
		el.Child("retract", ns.Retract1) != nil,
		el.Child("replace", ns.Correct) != nil,
		el.Child("received", ns.Receipts) != nil,
		el.Child("received", ns.Markers) != nil,
		el.Child("displayed", ns.Markers) != nil:
		return true
	}
	return false
}

func parseInvitation(el *element.Element, from jid.JID) (event.ServerEvent, bool) {
	if x := el.Child("x", ns.Conference); x != nil {
		roomAttr := x.AttrValue("jid")
		room, err := jid.Parse(roomAttr)
		if roomAttr == "" || err != nil {
			return nil, false
		}
		return event.RoomEvent{
			RoomID: domain.NewRoomID(room),
			Type: event.ReceivedInvitation{
				Sender:   domain.NewUserID(from),
				Password: x.AttrValue("password"),
				Reason:   x.AttrValue("reason"),
			},
		}, true
	}

	x := el.Child("x", ns.MUCUser)
	invite := x.Child("invite", ns.MUCUser)
	if invite == nil {
		return nil, false
	}
	inv := event.ReceivedInvitation{}
	if sender, err := jid.Parse(invite.AttrValue("from")); err == nil && invite.AttrValue("from") != "" {
		inv.Sender = domain.NewUserID(sender)
	}
	inv.Password, _ = x.ChildText("password", ns.MUCUser)
	inv.Reason, _ = invite.ChildText("reason", ns.MUCUser)
	return event.RoomEvent{
		// Mediated invitations come from the room itself.
		RoomID: domain.NewRoomID(from),
		Type:   inv,
	}, true
}

func parseComposeState(el *element.Element, from jid.JID) (event.ServerEvent, bool) {
	var state domain.ComposeState
	found := false
	for _, c := range el.ChildrenIn(ns.ChatStates) {
		if s, ok := domain.ParseComposeState(c.Name.Local); ok {
			state, found = s, true
			break
		}
	}
	if !found {
		return nil, false
	}

	var endpoint domain.EndpointID
	if stanza.MessageType(el.AttrValue("type")) == stanza.GroupChatMessage {
		occupant, err := domain.NewOccupantID(from)
		if err != nil {
			return nil, false
		}
		endpoint = domain.OccupantEndpoint(occupant)
	} else {
		endpoint = domain.UserEndpoint(domain.NewUserID(from))
	}

	return event.UserStatusEvent{
		UserID: endpoint,
		Type:   event.ComposeStateChanged{State: state},
	}, true
}
