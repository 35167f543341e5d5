// Package messaging turns message stanzas into message log records and keeps
// the reconciled timeline of every conversation.
package messaging

import (
	"errors"
	"fmt"
	"time"

	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"

	"github.com/meszmate/roster-core/internal/domain"
	"github.com/meszmate/roster-core/internal/xmpp/element"
	"github.com/meszmate/roster-core/internal/xmpp/ns"
	"github.com/meszmate/roster-core/internal/xmpp/parser"
)

// ErrNoPayload is returned for messages that carry nothing the log records,
// for example a bare chat state.
var ErrNoPayload = errors.New("message has no payload")

// Parsed is a message log record and the conversation it belongs to.
type Parsed struct {
	Conversation domain.RoomID
	Message      domain.MessageLike
	Groupchat    bool
	// Sent is set for messages that our own account wrote.
	Sent bool
}

// Parser reads message stanzas on behalf of one account.
type Parser struct {
	account jid.JID
	gen     domain.IDGenerator
	now     func() time.Time
}

// NewParser creates a parser. gen hands out ids for messages without one and
// now stamps messages without a delay.
func NewParser(account jid.JID, gen domain.IDGenerator, now func() time.Time) *Parser {
	if gen == nil {
		gen = domain.UUIDGenerator{}
	}
	if now == nil {
		now = time.Now
	}
	return &Parser{account: account.Bare(), gen: gen, now: now}
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", parser.ErrMalformedStanza, fmt.Sprintf(format, args...))
}

// ParseMessage parses a message received on the live stream. Carbons are
// unwrapped.
func (p *Parser) ParseMessage(el *element.Element) (Parsed, error) {
	if !el.Is("message", ns.Client) {
		return Parsed{}, malformed("expected message, got %s", el.Name.Local)
	}
	for _, dir := range []string{"received", "sent"} {
		if c := el.Child(dir, ns.Carbons); c != nil {
			fwd := c.Child("forwarded", ns.Forward)
			if fwd == nil {
				return Parsed{}, malformed("carbon without forwarded")
			}
			return p.ParseForwarded(fwd)
		}
	}
	return p.parse(el, nil)
}

// ParseForwarded parses the message wrapped in a forwarded element. The
// forwarded delay, if any, is the timestamp.
func (p *Parser) ParseForwarded(fwd *element.Element) (Parsed, error) {
	msg := fwd.Child("message", ns.Client)
	if msg == nil {
		return Parsed{}, malformed("forwarded without message")
	}
	var ts *time.Time
	if delay := fwd.Child("delay", ns.Delay); delay != nil {
		t, err := parseStamp(delay)
		if err != nil {
			return Parsed{}, err
		}
		ts = &t
	}
	return p.parse(msg, ts)
}

// ParseArchived parses a message archive result. The result id is the
// stanza id the archive assigned.
func (p *Parser) ParseArchived(result *element.Element) (Parsed, error) {
	if !result.Is("result", ns.MAM) {
		if r := result.Child("result", ns.MAM); r != nil {
			result = r
		} else {
			return Parsed{}, malformed("expected archive result")
		}
	}
	id := result.AttrValue("id")
	if id == "" {
		return Parsed{}, malformed("archive result without id")
	}
	parsed, err := p.ParseForwarded(result.Child("forwarded", ns.Forward))
	if err != nil {
		return Parsed{}, err
	}
	parsed.Message.StanzaID = domain.StanzaID(id)
	return parsed, nil
}

func (p *Parser) parse(el *element.Element, stamp *time.Time) (Parsed, error) {
	from := p.account
	if v := el.AttrValue("from"); v != "" {
		j, err := jid.Parse(v)
		if err != nil {
			return Parsed{}, malformed("invalid from %q: %v", v, err)
		}
		from = j
	}
	var to *jid.JID
	if v := el.AttrValue("to"); v != "" {
		j, err := jid.Parse(v)
		if err != nil {
			return Parsed{}, malformed("invalid to %q: %v", v, err)
		}
		to = &j
	}

	out := Parsed{Groupchat: stanza.MessageType(el.AttrValue("type")) == stanza.GroupChatMessage}

	if out.Groupchat {
		occupant, err := domain.NewOccupantID(from)
		if err != nil {
			return Parsed{}, malformed("groupchat message from %s", from)
		}
		out.Conversation = domain.NewRoomID(from)
		out.Message.From = domain.OccupantParticipant(occupant)
		if realJID := el.Child("x", ns.MUCUser).Child("item", ns.MUCUser).AttrValue("jid"); realJID != "" {
			if j, err := jid.Parse(realJID); err == nil {
				out.Message.From = domain.UserParticipant(domain.NewUserID(j))
				out.Sent = j.Bare().Equal(p.account)
			}
		}
	} else {
		out.Message.From = domain.UserParticipant(domain.NewUserID(from))
		out.Sent = from.Bare().Equal(p.account)
		out.Conversation = domain.NewRoomID(from)
		if out.Sent && to != nil {
			out.Conversation = domain.NewRoomID(*to)
		}
	}

	if to != nil {
		out.Message.To = to.Bare().String()
	}
	out.Message.ID = domain.IDOrPlaceholder(el.AttrValue("id"), p.gen)
	out.Message.StanzaID = p.stanzaID(el, out.Conversation, out.Groupchat)

	switch {
	case stamp != nil:
		out.Message.Timestamp = *stamp
	case el.Child("delay", ns.Delay) != nil:
		t, err := parseStamp(el.Child("delay", ns.Delay))
		if err != nil {
			return Parsed{}, err
		}
		out.Message.Timestamp = t
	default:
		out.Message.Timestamp = p.now().UTC()
	}

	target, payload, err := parsePayload(el, out.Groupchat)
	if err != nil {
		return Parsed{}, err
	}
	out.Message.Target = target
	out.Message.Payload = payload
	return out, nil
}

// stanzaID returns the XEP-0359 id assigned by the party we trust for the
// conversation: the room in a groupchat and our own server otherwise.
func (p *Parser) stanzaID(el *element.Element, conv domain.RoomID, groupchat bool) domain.StanzaID {
	trusted := p.account.String()
	if groupchat {
		trusted = string(conv)
	}
	for _, sid := range el.ChildrenNamed("stanza-id", ns.StanzaID) {
		by, err := jid.Parse(sid.AttrValue("by"))
		if err != nil {
			continue
		}
		if by.Bare().String() == trusted && sid.AttrValue("id") != "" {
			return domain.StanzaID(sid.AttrValue("id"))
		}
	}
	return ""
}

// parsePayload picks the one thing a message does. Modifiers win over a body
// since most of them carry a fallback body for older clients.
func parsePayload(el *element.Element, groupchat bool) (*domain.MessageTargetID, domain.Payload, error) {
	target := func(id string) *domain.MessageTargetID {
		t := domain.TargetByMessageID(domain.MessageID(id))
		if groupchat {
			t = domain.TargetByStanzaID(domain.StanzaID(id))
		}
		return &t
	}
	required := func(child *element.Element) (string, error) {
		id := child.AttrValue("id")
		if id == "" {
			return "", malformed("%s without id", child.Name.Local)
		}
		return id, nil
	}

	if r := el.Child("reactions", ns.Reactions); r != nil {
		id, err := required(r)
		if err != nil {
			return nil, nil, err
		}
		var emojis []domain.Emoji
		for _, reaction := range r.ChildrenNamed("reaction", ns.Reactions) {
			emojis = append(emojis, domain.Emoji(reaction.Text))
		}
		return target(id), domain.ReactionPayload{Emojis: emojis}, nil
	}

	if f := el.Child("apply-to", ns.Fasten); f != nil && f.Child("retract", ns.Retract0) != nil {
		id, err := required(f)
		if err != nil {
			return nil, nil, err
		}
		t := domain.TargetByMessageID(domain.MessageID(id))
		return &t, domain.RetractionPayload{}, nil
	}

	if r := el.Child("retract", ns.Retract1); r != nil {
		id, err := required(r)
		if err != nil {
			return nil, nil, err
		}
		return target(id), domain.RetractionPayload{}, nil
	}

	for _, space := range []string{ns.Receipts, ns.Markers} {
		if r := el.Child("received", space); r != nil {
			id, err := required(r)
			if err != nil {
				return nil, nil, err
			}
			return target(id), domain.DeliveryReceiptPayload{}, nil
		}
	}

	if d := el.Child("displayed", ns.Markers); d != nil {
		id, err := required(d)
		if err != nil {
			return nil, nil, err
		}
		return target(id), domain.ReadReceiptPayload{}, nil
	}

	body, hasBody := el.ChildText("body", ns.Client)
	attachments := parseAttachments(el)
	if !hasBody && len(attachments) == 0 {
		return nil, nil, ErrNoPayload
	}

	if r := el.Child("replace", ns.Correct); r != nil {
		id, err := required(r)
		if err != nil {
			return nil, nil, err
		}
		t := domain.TargetByMessageID(domain.MessageID(id))
		return &t, domain.CorrectionPayload{Body: body, Attachments: attachments}, nil
	}

	return nil, domain.MessagePayload{Body: body, Attachments: attachments}, nil
}

func parseAttachments(el *element.Element) []domain.Attachment {
	var out []domain.Attachment
	for _, x := range el.ChildrenNamed("x", ns.OOB) {
		url, _ := x.ChildText("url", ns.OOB)
		if url == "" {
			continue
		}
		desc, _ := x.ChildText("desc", ns.OOB)
		out = append(out, domain.Attachment{URL: url, Description: desc})
	}
	return out
}

func parseStamp(delay *element.Element) (time.Time, error) {
	v := delay.AttrValue("stamp")
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, malformed("invalid delay stamp %q", v)
	}
	return t.UTC(), nil
}
