package parser

import (
	"mellium.im/xmpp/stanza"

	"github.com/meszmate/roster-core/internal/domain"
	"github.com/meszmate/roster-core/internal/event"
	"github.com/meszmate/roster-core/internal/xmpp/element"
	"github.com/meszmate/roster-core/internal/xmpp/ns"
)

func (p *Parser) classifyIQ(el *element.Element) ([]event.ServerEvent, error) {
	typ := stanza.IQType(el.AttrValue("type"))
	switch typ {
	case stanza.GetIQ, stanza.SetIQ:
	case stanza.ResultIQ, stanza.ErrorIQ:
		// Responses belong to whoever sent the request.
		return nil, nil
	case "":
		return nil, missingAttr("iq", "type")
	default:
		return nil, invalidAttr("iq", "type", nil)
	}

	id := el.AttrValue("id")
	if id == "" {
		return nil, missingAttr("iq", "id")
	}
	from, err := p.from(el)
	if err != nil {
		return nil, err
	}

	payload := el.FirstChild()
	if payload == nil {
		return nil, missingChild("iq", "payload")
	}

	unsupported := &ClassifyError{Kind: UnsupportedRequest, Stanza: "iq", Name: payload.Name.Space}
	if typ != stanza.GetIQ {
		return nil, unsupported
	}

	var req event.RequestEventType
	switch {
	case payload.Is("ping", ns.Ping):
		req = event.Ping{}
	case payload.Is("time", ns.Time):
		req = event.LocalTime{}
	case payload.Is("query", ns.LastActivity):
		req = event.LastActivity{}
	case payload.Is("query", ns.Version):
		req = event.SoftwareVersion{}
	case payload.Is("query", ns.DiscoInfo):
		node := payload.AttrValue("node")
		if node == "" {
			return nil, missingAttr("query", "node")
		}
		req = event.Capabilities{ID: domain.CapabilitiesID(node)}
	default:
		return nil, unsupported
	}

	return []event.ServerEvent{event.RequestEvent{
		SenderID:  domain.SenderID(from.String()),
		RequestID: domain.RequestID(id),
		Type:      req,
	}}, nil
}
