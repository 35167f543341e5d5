package xmpp

import (
	"context"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mellium.im/xmlstream"

	"github.com/meszmate/roster-core/internal/event"
	"github.com/meszmate/roster-core/internal/xmpp/disco"
	"github.com/meszmate/roster-core/internal/xmpp/element"
	"github.com/meszmate/roster-core/internal/xmpp/ns"
	"github.com/meszmate/roster-core/internal/xmpp/parser"
)

type captureSender struct {
	sent []*element.Element
}

func (c *captureSender) Send(_ context.Context, r xml.TokenReader) error {
	var b strings.Builder
	enc := xml.NewEncoder(&b)
	if _, err := xmlstream.Copy(enc, r); err != nil {
		return err
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	el, err := element.Parse(b.String())
	if err != nil {
		return err
	}
	c.sent = append(c.sent, el)
	return nil
}

func newTestResponder() (*Responder, *captureSender, *disco.Own) {
	sender := &captureSender{}
	own := disco.NewOwn("https://example.com/roster", "roster")
	r := NewResponder(sender, own, Software{Name: "roster", Version: "1.0"})
	r.now = func() time.Time {
		return time.Date(2024, 5, 1, 14, 30, 0, 0, time.FixedZone("CEST", 2*60*60))
	}
	return r, sender, own
}

func respond(t *testing.T, r *Responder, sender *captureSender, req event.RequestEventType) *element.Element {
	t.Helper()
	require.NoError(t, r.Respond(context.Background(), "alice@example.com/phone", "q1", req))
	require.NotEmpty(t, sender.sent)
	iq := sender.sent[len(sender.sent)-1]
	require.True(t, iq.Is("iq", ns.Client))
	assert.Equal(t, "q1", iq.AttrValue("id"))
	assert.Equal(t, "alice@example.com/phone", iq.AttrValue("to"))
	return iq
}

func TestRespondPing(t *testing.T) {
	r, sender, _ := newTestResponder()
	iq := respond(t, r, sender, event.Ping{})
	assert.Equal(t, "result", iq.AttrValue("type"))
	assert.Empty(t, iq.Children)
}

func TestRespondTime(t *testing.T) {
	r, sender, _ := newTestResponder()
	iq := respond(t, r, sender, event.LocalTime{})

	tm := iq.Child("time", ns.Time)
	require.NotNil(t, tm)
	tzo, _ := tm.ChildText("tzo", ns.Time)
	utc, _ := tm.ChildText("utc", ns.Time)
	assert.Equal(t, "+02:00", tzo)
	assert.Equal(t, "2024-05-01T12:30:00Z", utc)
}

func TestRespondLastActivityAndVersion(t *testing.T) {
	r, sender, _ := newTestResponder()

	iq := respond(t, r, sender, event.LastActivity{})
	assert.Equal(t, "0", iq.Child("query", ns.LastActivity).AttrValue("seconds"))

	iq = respond(t, r, sender, event.SoftwareVersion{})
	q := iq.Child("query", ns.Version)
	require.NotNil(t, q)
	name, _ := q.ChildText("name", ns.Version)
	version, _ := q.ChildText("version", ns.Version)
	assert.Equal(t, "roster", name)
	assert.Equal(t, "1.0", version)
	assert.Nil(t, q.Child("os", ns.Version))
}

func TestRespondCapabilities(t *testing.T) {
	r, sender, own := newTestResponder()

	iq := respond(t, r, sender, event.Capabilities{ID: own.CapabilitiesID()})
	assert.Equal(t, "result", iq.AttrValue("type"))
	q := iq.Child("query", ns.DiscoInfo)
	require.NotNil(t, q)
	assert.Equal(t, string(own.CapabilitiesID()), q.AttrValue("node"))

	info := disco.Info{}
	for _, id := range q.ChildrenNamed("identity", ns.DiscoInfo) {
		info.Identities = append(info.Identities, disco.Identity{
			Category: id.AttrValue("category"),
			Type:     id.AttrValue("type"),
			Name:     id.AttrValue("name"),
		})
	}
	for _, f := range q.ChildrenNamed("feature", ns.DiscoInfo) {
		info.Features = append(info.Features, f.AttrValue("var"))
	}
	assert.Equal(t, own.Info, info)
	_, ver, _ := disco.SplitCapabilities(own.CapabilitiesID())
	assert.Equal(t, ver, disco.Verification(info), "the reply hashes to what we advertise")
}

func TestRespondUnknownNode(t *testing.T) {
	r, sender, _ := newTestResponder()

	iq := respond(t, r, sender, event.Capabilities{ID: "https://example.com/roster#stale"})
	assert.Equal(t, "error", iq.AttrValue("type"))
	e := iq.Child("error", ns.Client)
	require.NotNil(t, e)
	assert.Equal(t, "cancel", e.AttrValue("type"))
	assert.NotNil(t, e.Child("item-not-found", ns.Stanzas))
}

func TestRespondInvalidRequester(t *testing.T) {
	r, _, _ := newTestResponder()
	err := r.Respond(context.Background(), "", "q1", event.Ping{})
	assert.Error(t, err)
}

func TestReject(t *testing.T) {
	r, sender, _ := newTestResponder()
	ctx := context.Background()

	require.NoError(t, r.Reject(ctx, "alice@example.com/phone", "r1", parser.ErrUnsupportedRequest))
	require.NoError(t, r.Reject(ctx, "", "r2", parser.ErrMalformedStanza))
	require.Len(t, sender.sent, 2)

	unsupported := sender.sent[0]
	assert.Equal(t, "error", unsupported.AttrValue("type"))
	assert.Equal(t, "r1", unsupported.AttrValue("id"))
	assert.Equal(t, "alice@example.com/phone", unsupported.AttrValue("to"))
	e := unsupported.Child("error", ns.Client)
	require.NotNil(t, e)
	assert.Equal(t, "cancel", e.AttrValue("type"))
	assert.NotNil(t, e.Child("service-unavailable", ns.Stanzas))

	malformed := sender.sent[1]
	assert.Equal(t, "r2", malformed.AttrValue("id"))
	assert.Empty(t, malformed.AttrValue("to"), "requests from our server are answered without a to")
	e = malformed.Child("error", ns.Client)
	require.NotNil(t, e)
	assert.Equal(t, "modify", e.AttrValue("type"))
	assert.NotNil(t, e.Child("bad-request", ns.Stanzas))

	assert.Error(t, r.Reject(ctx, "@@", "r3", parser.ErrMalformedStanza))
}
