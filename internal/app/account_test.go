package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meszmate/roster-core/internal/domain"
	"github.com/meszmate/roster-core/internal/logging"
	"github.com/meszmate/roster-core/internal/messaging"
	"github.com/meszmate/roster-core/internal/reconcile"
	"github.com/meszmate/roster-core/internal/storage/sqlite"
	"github.com/meszmate/roster-core/internal/xmpp/element"
	"github.com/meszmate/roster-core/internal/xmpp/parser"
)

func newTestAccount(t *testing.T, env *testEnv, cfg AccountConfig) *Account {
	t.Helper()
	cfg.JID = account
	cfg.Pipeline = env.pipeline
	cfg.Messages = env.messages
	cfg.Parser = env.parser
	cfg.Events = env.events
	cfg.Log = logging.Nop()
	return NewAccount(cfg)
}

// run starts a in the background and returns a function that waits for it
// to stop.
func run(t *testing.T, a *Account) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

// flush waits until everything pushed so far has been processed.
func flush(t *testing.T, a *Account) {
	t.Helper()
	done := make(chan struct{})
	require.NoError(t, a.enqueue(context.Background(), job{fn: func(context.Context) { close(done) }}))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("inbox not drained")
	}
}

func push(t *testing.T, a *Account, xml string) {
	t.Helper()
	require.NoError(t, a.Push(context.Background(), element.MustParse(xml)))
}

func TestAccountProcessesStanzasInOrder(t *testing.T) {
	env := newTestEnv(t)
	a := newTestAccount(t, env, AccountConfig{})
	run(t, a)

	require.NoError(t, a.Connected(context.Background()))
	push(t, a, `<presence xmlns='jabber:client' from='alice@example.com/phone'/>`)
	push(t, a, `<message xmlns='jabber:client' type='chat' id='m1' from='alice@example.com/phone'><body>one</body></message>`)
	push(t, a, `<message xmlns='jabber:client' type='chat' id='m2' from='alice@example.com/phone'><body>two</body></message>`)
	push(t, a, `<message xmlns='jabber:client' type='chat' from='alice@example.com/phone'>
<composing xmlns='http://jabber.org/protocol/chatstates'/></message>`)
	flush(t, a)

	assert.True(t, env.presence.IsOnline(alice))
	msgs, err := env.messages.Messages(context.Background(), alice.RoomID())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Body)
	assert.Equal(t, "two", msgs[1].Body)
	assert.Len(t, env.presence.ComposingUsers(alice.RoomID()), 1)

	events := env.events.take()
	require.NotEmpty(t, events)
	assert.Equal(t, ConnectionStatusChanged{Connected: true}, events[0])
}

func TestAccountKeepsGoingAfterBadStanza(t *testing.T) {
	env := newTestEnv(t)
	var dropped []error
	a := newTestAccount(t, env, AccountConfig{
		OnClassifyError: func(_ *element.Element, err error) error {
			dropped = append(dropped, err)
			return nil
		},
	})
	run(t, a)

	push(t, a, `<iq xmlns='jabber:client' type='get' from='alice@example.com/phone'><ping xmlns='urn:xmpp:ping'/></iq>`)
	push(t, a, `<iq xmlns='jabber:client' type='get' id='p1' from='alice@example.com/phone'><ping xmlns='urn:xmpp:ping'/></iq>`)
	flush(t, a)

	require.Len(t, dropped, 1)
	assert.ErrorIs(t, dropped[0], parser.ErrMalformedStanza)
	require.Len(t, env.responder.requests, 1)
	assert.Equal(t, domain.RequestID("p1"), env.responder.requests[0].id)
}

func TestAccountRejectsUnservedRequests(t *testing.T) {
	env := newTestEnv(t)
	rejecter := &fakeRejecter{}
	a := newTestAccount(t, env, AccountConfig{Rejecter: rejecter})
	run(t, a)

	push(t, a, `<iq xmlns='jabber:client' type='get' id='d1' from='example.com'><query xmlns='http://jabber.org/protocol/disco#info'/></iq>`)
	push(t, a, `<iq xmlns='jabber:client' type='set' id='push1'><query xmlns='jabber:iq:roster'><item jid='bob@example.com'/></query></iq>`)
	// Neither of these can be answered.
	push(t, a, `<iq xmlns='jabber:client' type='get' from='alice@example.com/phone'><ping xmlns='urn:xmpp:ping'/></iq>`)
	push(t, a, `<iq xmlns='jabber:client' type='result' id='r1' from='alice@example.com/phone'/>`)
	flush(t, a)

	require.Len(t, rejecter.rejected, 2)
	assert.Equal(t, domain.SenderID("example.com"), rejecter.rejected[0].to)
	assert.Equal(t, domain.RequestID("d1"), rejecter.rejected[0].id)
	assert.ErrorIs(t, rejecter.rejected[0].cause, parser.ErrMalformedStanza)

	assert.Empty(t, rejecter.rejected[1].to, "a push from our own server")
	assert.Equal(t, domain.RequestID("push1"), rejecter.rejected[1].id)
	assert.ErrorIs(t, rejecter.rejected[1].cause, parser.ErrUnsupportedRequest)
	assert.Empty(t, env.responder.requests)
}

func TestAccountStopsWhenAskedTo(t *testing.T) {
	env := newTestEnv(t)
	a := newTestAccount(t, env, AccountConfig{
		OnClassifyError: func(_ *element.Element, err error) error { return err },
	})
	_, done := run(t, a)

	push(t, a, `<iq xmlns='jabber:client' type='set' id='s1' from='alice@example.com/phone'><query xmlns='urn:example:unknown'/></iq>`)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, parser.ErrUnsupportedRequest)
	case <-time.After(5 * time.Second):
		t.Fatal("account did not stop")
	}
}

func TestAccountRunReturnsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	a := newTestAccount(t, env, AccountConfig{})
	cancel, done := run(t, a)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("account did not stop")
	}
}

func archived(id, stamp, body string) *element.Element {
	return element.MustParse(`<message xmlns='jabber:client' to='me@example.com/laptop'>
<result xmlns='urn:xmpp:mam:2' queryid='q1' id='` + id + `'>
<forwarded xmlns='urn:xmpp:forward:0'>
<delay xmlns='urn:xmpp:delay' stamp='` + stamp + `'/>
<message xmlns='jabber:client' type='chat' id='` + body + `-id' from='alice@example.com/phone' to='me@example.com/laptop'><body>` + body + `</body></message>
</forwarded></result></message>`)
}

func TestAccountLoadArchive(t *testing.T) {
	db, err := sqlite.New(filepath.Join(t.TempDir(), "roster.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := newTestEnv(t)
	env.messages = messaging.NewRepository(domain.NewUserID(account), db, reconcile.NewEngine(reconcile.Config{}), logging.Nop())
	a := newTestAccount(t, env, AccountConfig{Archive: db})
	run(t, a)

	ctx := context.Background()
	pos, err := a.ArchivePosition(ctx, alice.RoomID())
	require.NoError(t, err)
	assert.Nil(t, pos)

	// Pages arrive newest last, but order inside a page does not matter.
	page := []*element.Element{
		archived("s2", "2024-04-30T10:00:00Z", "second"),
		archived("s1", "2024-04-30T09:00:00Z", "first"),
	}
	delta, err := a.LoadArchive(ctx, alice.RoomID(), page)
	require.NoError(t, err)
	require.Len(t, delta.Appended, 2)
	assert.Equal(t, "first", delta.Appended[0].Body)
	assert.Equal(t, domain.StanzaID("s1"), delta.Appended[0].StanzaID)

	pos, err = a.ArchivePosition(ctx, alice.RoomID())
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, domain.StanzaID("s2"), pos.LastStanzaID)

	delta, err = a.LoadArchive(ctx, alice.RoomID(), page)
	require.NoError(t, err)
	assert.True(t, delta.IsEmpty(), "loading a page twice changes nothing")

	exists, err := db.MessageExists(ctx, domain.NewUserID(account), alice.RoomID(), "s1")
	require.NoError(t, err)
	assert.True(t, exists)
}
