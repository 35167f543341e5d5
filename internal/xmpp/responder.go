package xmpp

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"time"

	"mellium.im/xmlstream"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"

	"github.com/meszmate/roster-core/internal/domain"
	"github.com/meszmate/roster-core/internal/event"
	"github.com/meszmate/roster-core/internal/xmpp/disco"
	"github.com/meszmate/roster-core/internal/xmpp/element"
	"github.com/meszmate/roster-core/internal/xmpp/ns"
	"github.com/meszmate/roster-core/internal/xmpp/parser"
)

const xmlNS = "http://www.w3.org/XML/1998/namespace"

// Sender transmits stanzas. *Session implements it.
type Sender interface {
	Send(ctx context.Context, r xml.TokenReader) error
}

// Software is what we tell a software version request.
type Software struct {
	Name    string
	Version string
	OS      string
}

// Responder answers ping, time, last activity, disco#info and version
// requests.
type Responder struct {
	sender   Sender
	own      *disco.Own
	software Software
	now      func() time.Time
}

// NewResponder creates a responder that replies through sender.
func NewResponder(sender Sender, own *disco.Own, software Software) *Responder {
	return &Responder{sender: sender, own: own, software: software, now: time.Now}
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

// Respond sends the reply to one request.
func (r *Responder) Respond(ctx context.Context, to domain.SenderID, id domain.RequestID, req event.RequestEventType) error {
	addr, err := jid.Parse(string(to))
	if err != nil {
		return fmt.Errorf("invalid requester %q: %w", to, err)
	}

	var payload *element.Element
	switch t := req.(type) {
	case event.Ping:
	case event.LocalTime:
		now := r.now()
		payload = element.New("time", ns.Time).Append(
			element.New("tzo", ns.Time).WithText(now.Format("-07:00")),
			element.New("utc", ns.Time).WithText(now.UTC().Format("2006-01-02T15:04:05Z")),
		)
	case event.LastActivity:
		// A client that answers is active right now.
		payload = element.New("query", ns.LastActivity, attr("seconds", "0"))
	case event.SoftwareVersion:
		payload = element.New("query", ns.Version).Append(
			element.New("name", ns.Version).WithText(r.software.Name),
			element.New("version", ns.Version).WithText(r.software.Version),
		)
		if r.software.OS != "" {
			payload.Append(element.New("os", ns.Version).WithText(r.software.OS))
		}
	case event.Capabilities:
		if !r.own.Answers(t.ID) {
			return r.sendError(ctx, addr, id, stanza.Error{Type: stanza.Cancel, Condition: stanza.ItemNotFound})
		}
		payload = discoInfo(string(t.ID), r.own.Info)
	default:
		return fmt.Errorf("unsupported request %T", req)
	}

	inner := xmlstream.MultiReader()
	if payload != nil {
		inner = payload.TokenReader()
	}
	iq := stanza.IQ{ID: string(id), To: addr, Type: stanza.ResultIQ}
	if err := r.sender.Send(ctx, iq.Wrap(inner)); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

// Reject replies with an error to a request that was not classified.
// Unsupported requests get service-unavailable, anything else bad-request.
func (r *Responder) Reject(ctx context.Context, to domain.SenderID, id domain.RequestID, cause error) error {
	var addr jid.JID
	if to != "" {
		var err error
		addr, err = jid.Parse(string(to))
		if err != nil {
			return fmt.Errorf("invalid requester %q: %w", to, err)
		}
	}
	se := stanza.Error{Type: stanza.Modify, Condition: stanza.BadRequest}
	if errors.Is(cause, parser.ErrUnsupportedRequest) {
		se = stanza.Error{Type: stanza.Cancel, Condition: stanza.ServiceUnavailable}
	}
	return r.sendError(ctx, addr, id, se)
}

func (r *Responder) sendError(ctx context.Context, to jid.JID, id domain.RequestID, se stanza.Error) error {
	iq := stanza.IQ{ID: string(id), To: to, Type: stanza.ErrorIQ}
	if err := r.sender.Send(ctx, iq.Wrap(se.TokenReader())); err != nil {
		return fmt.Errorf("failed to send error reply: %w", err)
	}
	return nil
}

func discoInfo(node string, info disco.Info) *element.Element {
	q := element.New("query", ns.DiscoInfo, attr("node", node))
	for _, id := range info.Identities {
		attrs := []xml.Attr{attr("category", id.Category), attr("type", id.Type)}
		if id.Name != "" {
			attrs = append(attrs, attr("name", id.Name))
		}
		if id.Lang != "" {
			attrs = append(attrs, xml.Attr{Name: xml.Name{Space: xmlNS, Local: "lang"}, Value: id.Lang})
		}
		q.Append(element.New("identity", ns.DiscoInfo, attrs...))
	}
	for _, f := range info.Features {
		q.Append(element.New("feature", ns.DiscoInfo, attr("var", f)))
	}
	return q
}
