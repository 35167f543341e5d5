package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mellium.im/xmpp/jid"

	"github.com/meszmate/roster-core/internal/domain"
	"github.com/meszmate/roster-core/internal/event"
	"github.com/meszmate/roster-core/internal/logging"
	"github.com/meszmate/roster-core/internal/messaging"
	"github.com/meszmate/roster-core/internal/metrics"
	"github.com/meszmate/roster-core/internal/reconcile"
	"github.com/meszmate/roster-core/internal/storage/sqlite"
	"github.com/meszmate/roster-core/internal/xmpp/element"
	"github.com/meszmate/roster-core/internal/xmpp/parser"
)

// DefaultInboxSize is used when AccountConfig.InboxSize is zero.
const DefaultInboxSize = 256

// ArchiveStore remembers how far the message archive of each conversation
// was loaded.
type ArchiveStore interface {
	GetMAMSync(ctx context.Context, account domain.UserID, conversation domain.RoomID) (*sqlite.MAMSync, error)
	SaveMAMSync(ctx context.Context, sync sqlite.MAMSync) error
}

// ClassifyErrorFunc decides what a stanza that failed classification means
// for the connection. Returning an error stops the account.
type ClassifyErrorFunc func(el *element.Element, err error) error

// AccountConfig contains everything one account needs.
type AccountConfig struct {
	JID      jid.JID
	Pipeline *Pipeline
	Messages *messaging.Repository
	Parser   *messaging.Parser
	Events   ClientEventDispatcher
	// Archive is optional.
	Archive ArchiveStore
	// Rejecter replies to get and set IQs that failed classification. Nil
	// leaves them unanswered.
	Rejecter RequestRejecter

	InboxSize int
	// SweepInterval is how often expired pending modifiers are dropped. Zero
	// disables sweeping.
	SweepInterval time.Duration
	// OnClassifyError defaults to logging the error and carrying on.
	OnClassifyError ClassifyErrorFunc

	Log     *logging.Logger
	Metrics *metrics.Metrics
}

type job struct {
	el *element.Element
	ev event.ServerEvent
	fn func(ctx context.Context)
}

// Account processes the stanzas of one connection strictly in arrival
// order. The transport pushes into the inbox and Run drains it on a single
// goroutine, so handlers never run concurrently for the same account.
type Account struct {
	id         domain.UserID
	classifier *parser.Parser
	pipeline   *Pipeline
	messages   *messaging.Repository
	parser     *messaging.Parser
	events     ClientEventDispatcher
	archive    ArchiveStore
	rejecter   RequestRejecter

	inbox           chan job
	sweepInterval   time.Duration
	onClassifyError ClassifyErrorFunc

	log     *logging.Logger
	metrics *metrics.Metrics
}

// NewAccount creates an account. Call Run to start processing.
func NewAccount(cfg AccountConfig) *Account {
	log := cfg.Log
	if log == nil {
		log = logging.Nop()
	}
	size := cfg.InboxSize
	if size <= 0 {
		size = DefaultInboxSize
	}
	a := &Account{
		id:              domain.NewUserID(cfg.JID),
		classifier:      parser.New(cfg.JID, parser.WithLogger(log)),
		pipeline:        cfg.Pipeline,
		messages:        cfg.Messages,
		parser:          cfg.Parser,
		events:          cfg.Events,
		archive:         cfg.Archive,
		rejecter:        cfg.Rejecter,
		inbox:           make(chan job, size),
		sweepInterval:   cfg.SweepInterval,
		onClassifyError: cfg.OnClassifyError,
		log:             log,
		metrics:         cfg.Metrics,
	}
	if a.onClassifyError == nil {
		a.onClassifyError = func(el *element.Element, err error) error {
			log.Warn("Dropping %s stanza: %v", el.Name.Local, err)
			return nil
		}
	}
	return a
}

// ID returns the bare address of the account.
func (a *Account) ID() domain.UserID {
	return a.id
}

func (a *Account) enqueue(ctx context.Context, j job) error {
	select {
	case a.inbox <- j:
		a.metrics.InboxDepth(string(a.id), len(a.inbox))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Push queues a stanza. It blocks while the inbox is full.
func (a *Account) Push(ctx context.Context, el *element.Element) error {
	return a.enqueue(ctx, job{el: el})
}

// Connected queues the connected notification behind the stanzas already
// received.
func (a *Account) Connected(ctx context.Context) error {
	return a.enqueue(ctx, job{ev: event.ConnectionEvent{Type: event.Connected{}}})
}

// Disconnected queues the disconnected notification.
func (a *Account) Disconnected(ctx context.Context, cause error) error {
	return a.enqueue(ctx, job{ev: event.ConnectionEvent{Type: event.Disconnected{Err: cause}}})
}

// Run processes the inbox until ctx is cancelled or OnClassifyError asks to
// stop. The job in progress when ctx is cancelled is finished first.
func (a *Account) Run(ctx context.Context) error {
	var sweep <-chan time.Time
	if a.sweepInterval > 0 && a.messages != nil {
		t := time.NewTicker(a.sweepInterval)
		defer t.Stop()
		sweep = t.C
	}

	work := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-a.inbox:
			a.metrics.InboxDepth(string(a.id), len(a.inbox))
			if err := a.process(work, j); err != nil {
				return err
			}
		case <-sweep:
			for _, refs := range a.messages.Sweep() {
				a.metrics.Reconciled(len(refs), 0)
			}
		}
	}
}

func (a *Account) process(ctx context.Context, j job) error {
	switch {
	case j.fn != nil:
		j.fn(ctx)
	case j.ev != nil:
		_ = a.pipeline.Dispatch(ctx, j.ev)
	case j.el != nil:
		return a.handleStanza(ctx, j.el)
	}
	return nil
}

func (a *Account) handleStanza(ctx context.Context, el *element.Element) error {
	kind := el.Name.Local

	events, err := a.classifier.Classify(el)
	switch {
	case err != nil:
		a.metrics.Stanza(kind, metrics.ResultError)
		a.reject(ctx, el, err)
		if stop := a.onClassifyError(el, err); stop != nil {
			return stop
		}
	case len(events) == 0:
		a.metrics.Stanza(kind, metrics.ResultIgnored)
	default:
		a.metrics.Stanza(kind, metrics.ResultEvents)
	}

	ephemeral, eerr := a.classifier.ClassifyEphemeral(el)
	if eerr != nil && err == nil {
		if stop := a.onClassifyError(el, eerr); stop != nil {
			return stop
		}
	}

	for _, ev := range append(events, ephemeral...) {
		// Failures are logged by the pipeline and only cost this event.
		_ = a.pipeline.Dispatch(ctx, ev)
	}
	return nil
}

// reject answers a get or set IQ that failed classification with an error,
// since every request is owed a reply.
func (a *Account) reject(ctx context.Context, el *element.Element, err error) {
	if a.rejecter == nil || el.Name.Local != "iq" {
		return
	}
	var cerr *parser.ClassifyError
	if !errors.As(err, &cerr) {
		return
	}
	id := el.AttrValue("id")
	if typ := el.AttrValue("type"); id == "" || (typ != "get" && typ != "set") {
		return
	}
	from := domain.SenderID(el.AttrValue("from"))
	if rerr := a.rejecter.Reject(ctx, from, domain.RequestID(id), err); rerr != nil {
		a.log.Warn("Failed to reject request %s from %s: %v", id, from, rerr)
	}
}

type archiveResult struct {
	delta reconcile.Delta
	err   error
}

// LoadArchive folds a page of message archive results for conv into its
// timeline. It runs on the account goroutine like every other write, so Run
// must be running.
func (a *Account) LoadArchive(ctx context.Context, conv domain.RoomID, results []*element.Element) (reconcile.Delta, error) {
	done := make(chan archiveResult, 1)
	err := a.enqueue(ctx, job{fn: func(ctx context.Context) {
		delta, err := a.loadArchive(ctx, conv, results)
		done <- archiveResult{delta: delta, err: err}
	}})
	if err != nil {
		return reconcile.Delta{}, err
	}
	select {
	case r := <-done:
		return r.delta, r.err
	case <-ctx.Done():
		return reconcile.Delta{}, ctx.Err()
	}
}

func (a *Account) loadArchive(ctx context.Context, conv domain.RoomID, results []*element.Element) (reconcile.Delta, error) {
	var (
		msgs []domain.MessageLike
		last domain.MessageLike
	)
	for _, r := range results {
		p, err := a.parser.ParseArchived(r)
		if errors.Is(err, messaging.ErrNoPayload) {
			continue
		}
		if err != nil {
			a.log.Warn("Skipping archive result in %s: %v", conv, err)
			continue
		}
		if p.Conversation != conv {
			a.log.Debug("Skipping archive result of %s while loading %s", p.Conversation, conv)
			continue
		}
		msgs = append(msgs, p.Message)
		if !p.Message.Timestamp.Before(last.Timestamp) {
			last = p.Message
		}
	}
	if len(msgs) == 0 {
		return reconcile.Delta{}, nil
	}

	delta, err := a.messages.Append(ctx, conv, msgs)
	if err != nil {
		return reconcile.Delta{}, fmt.Errorf("failed to load archive of %s: %w", conv, err)
	}
	a.metrics.Reconciled(len(delta.Warnings), len(delta.Invalid))
	dispatchDelta(a.events, conv, delta)

	if a.archive != nil {
		err := a.archive.SaveMAMSync(ctx, sqlite.MAMSync{
			Account:       a.id,
			Conversation:  conv,
			LastStanzaID:  last.StanzaID,
			LastTimestamp: last.Timestamp,
		})
		if err != nil {
			return delta, fmt.Errorf("failed to save archive position of %s: %w", conv, err)
		}
	}
	return delta, nil
}

// ArchivePosition returns the newest archive result loaded for conv, or nil
// if its archive was never loaded.
func (a *Account) ArchivePosition(ctx context.Context, conv domain.RoomID) (*sqlite.MAMSync, error) {
	if a.archive == nil {
		return nil, nil
	}
	return a.archive.GetMAMSync(ctx, a.id, conv)
}
