// Package parser classifies incoming stanzas into server events.
package parser

import (
	"errors"
	"fmt"

	"mellium.im/xmpp/jid"

	"github.com/meszmate/roster-core/internal/event"
	"github.com/meszmate/roster-core/internal/logging"
	"github.com/meszmate/roster-core/internal/xmpp/element"
	"github.com/meszmate/roster-core/internal/xmpp/ns"
)

var (
	// ErrMalformedStanza is returned for stanzas that miss a required
	// attribute or child.
	ErrMalformedStanza = errors.New("malformed stanza")

	// ErrUnsupportedRequest is returned for get/set IQs we do not serve.
	ErrUnsupportedRequest = errors.New("unsupported request")
)

// ErrorKind describes what was wrong with a stanza.
type ErrorKind string

const (
	MissingAttribute   ErrorKind = "missing_attribute"
	InvalidAttribute   ErrorKind = "invalid_attribute"
	MissingChild       ErrorKind = "missing_child"
	UnsupportedRequest ErrorKind = "unsupported_request"
)

// ClassifyError reports a stanza the classifier refused.
type ClassifyError struct {
	Kind ErrorKind
	// Stanza is the local name of the offending stanza.
	Stanza string
	// Name is the attribute, child or namespace the error is about.
	Name string
	Err  error
}

func (e *ClassifyError) Error() string {
	msg := fmt.Sprintf("%s: %s %q in <%s/>", e.Unwrap(), e.Kind, e.Name, e.Stanza)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ClassifyError) Unwrap() error {
	if e.Kind == UnsupportedRequest {
		return ErrUnsupportedRequest
	}
	return ErrMalformedStanza
}

func missingAttr(stanza, name string) error {
	return &ClassifyError{Kind: MissingAttribute, Stanza: stanza, Name: name}
}

func invalidAttr(stanza, name string, err error) error {
	return &ClassifyError{Kind: InvalidAttribute, Stanza: stanza, Name: name, Err: err}
}

func missingChild(stanza, name string) error {
	return &ClassifyError{Kind: MissingChild, Stanza: stanza, Name: name}
}

// Parser turns stanzas into events for one account. It keeps no state
// between calls.
type Parser struct {
	account    jid.JID
	log        *logging.Logger
	strategies map[string]Strategy
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger used for skipped PubSub items.
func WithLogger(l *logging.Logger) Option {
	return func(p *Parser) {
		p.log = l
	}
}

// WithStrategy registers a PubSub strategy for node, replacing any default.
func WithStrategy(node string, s Strategy) Option {
	return func(p *Parser) {
		p.strategies[node] = s
	}
}

// New creates a parser for stanzas received by account.
func New(account jid.JID, opts ...Option) *Parser {
	p := &Parser{
		account:    account.Bare(),
		log:        logging.Nop(),
		strategies: DefaultStrategies(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Classify maps a stanza to the events it represents. Stanzas that are valid
// but carry nothing for this layer yield no events and no error.
func (p *Parser) Classify(el *element.Element) ([]event.ServerEvent, error) {
	switch {
	case el.Is("presence", ns.Client):
		return p.classifyPresence(el)
	case el.Is("message", ns.Client):
		return p.classifyMessage(el)
	case el.Is("iq", ns.Client):
		return p.classifyIQ(el)
	default:
		return nil, nil
	}
}

// ClassifyEphemeral handles the parts of a message Classify leaves alone:
// room invitations and chat states.
func (p *Parser) ClassifyEphemeral(el *element.Element) ([]event.ServerEvent, error) {
	if !el.Is("message", ns.Client) {
		return nil, nil
	}
	from, err := p.from(el)
	if err != nil {
		return nil, err
	}

	var events []event.ServerEvent
	if ev, ok := parseInvitation(el, from); ok {
		events = append(events, ev)
	}
	if ev, ok := parseComposeState(el, from); ok {
		events = append(events, ev)
	}
	return events, nil
}

// from parses the from attribute. A missing attribute means the stanza came
// from our own account.
func (p *Parser) from(el *element.Element) (jid.JID, error) {
	v, ok := el.LookupAttr("from")
	if !ok || v == "" {
		return p.account, nil
	}
	j, err := jid.Parse(v)
	if err != nil {
		return jid.JID{}, invalidAttr(el.Name.Local, "from", err)
	}
	return j, nil
}

func (p *Parser) isAccount(j jid.JID) bool {
	return j.Bare().Equal(p.account)
}

