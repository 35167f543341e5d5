// Package xmpp connects accounts to their server and answers the requests
// other entities send us.
package xmpp

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"mellium.im/sasl"
	"mellium.im/xmpp"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"

	"github.com/meszmate/roster-core/internal/logging"
	"github.com/meszmate/roster-core/internal/xmpp/element"
	"github.com/meszmate/roster-core/internal/xmpp/ns"
)

// Config contains configuration for the XMPP client
type Config struct {
	JID      string
	Password string
	Server   string
	Port     int
	Resource string
	Priority int
}

// Session is a negotiated stream to the server of one account.
type Session struct {
	session  *xmpp.Session
	conn     net.Conn
	jid      jid.JID
	priority int
	log      *logging.Logger

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the server of cfg.JID and negotiates TLS, SASL and
// resource binding.
func Dial(ctx context.Context, cfg Config, log *logging.Logger) (*Session, error) {
	if log == nil {
		log = logging.Nop()
	}
	j, err := jid.Parse(cfg.JID)
	if err != nil {
		return nil, fmt.Errorf("invalid JID: %w", err)
	}
	if cfg.Resource != "" {
		j, err = j.WithResource(cfg.Resource)
		if err != nil {
			return nil, fmt.Errorf("invalid resource: %w", err)
		}
	}
	if cfg.Port == 0 {
		cfg.Port = 5222
	}

	server := cfg.Server
	if server == "" {
		server = j.Domain().String()
	}
	addr := net.JoinHostPort(server, strconv.Itoa(cfg.Port))

	dialer := net.Dialer{Timeout: 30 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial server: %w", err)
	}

	tlsConfig := &tls.Config{
		ServerName: j.Domain().String(),
		MinVersion: tls.VersionTLS12,
	}
	negotiator := xmpp.NewNegotiator(func(_ *xmpp.Session, _ *xmpp.StreamConfig) xmpp.StreamConfig {
		return xmpp.StreamConfig{
			Features: []xmpp.StreamFeature{
				xmpp.StartTLS(tlsConfig),
				xmpp.SASL("", cfg.Password, sasl.ScramSha256Plus, sasl.ScramSha256, sasl.ScramSha1Plus, sasl.ScramSha1, sasl.Plain),
				xmpp.BindResource(),
			},
		}
	})

	session, err := xmpp.NewSession(ctx, j.Domain(), j, conn, 0, negotiator)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to negotiate session: %w", err)
	}

	s := &Session{
		session:  session,
		conn:     conn,
		jid:      session.LocalAddr(),
		priority: cfg.Priority,
	}
	s.log = log.With("jid", s.jid.String())
	s.log.Info("Connected to %s", addr)
	return s, nil
}

// JID returns the bound address of the session.
func (s *Session) JID() jid.JID {
	return s.jid
}

// Send transmits one stanza.
func (s *Session) Send(ctx context.Context, r xml.TokenReader) error {
	return s.session.Send(ctx, r)
}

// SendPresence announces us as available, advertising caps.
func (s *Session) SendPresence(ctx context.Context, node, ver string) error {
	p := element.New("presence", ns.Client).Append(
		element.New("priority", ns.Client).WithText(strconv.Itoa(s.priority)),
		element.New("c", ns.Caps,
			xml.Attr{Name: xml.Name{Local: "hash"}, Value: "sha-1"},
			xml.Attr{Name: xml.Name{Local: "node"}, Value: node},
			xml.Attr{Name: xml.Name{Local: "ver"}, Value: ver},
		),
	)
	return s.Send(ctx, p.TokenReader())
}

// Serve reads stanzas until the stream ends and hands each one to push. A
// push error stops reading.
func (s *Session) Serve(ctx context.Context, push func(context.Context, *element.Element) error) error {
	r := s.session.TokenReader()
	defer r.Close()

	for {
		tok, err := r.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read stanza: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		el, err := element.Decode(r, &start)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", start.Name.Local, err)
		}
		if err := push(ctx, el); err != nil {
			return err
		}
	}
}

// Close says goodbye and closes the stream. It also unblocks Serve. Only the
// first call does anything.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		_ = s.session.Encode(ctx, stanza.Presence{Type: stanza.UnavailablePresence})
		err := s.session.Close()
		if cerr := s.conn.Close(); err == nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
		s.closeErr = err
		s.log.Info("Disconnected")
	})
	return s.closeErr
}
