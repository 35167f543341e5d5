package reconcile

import (
	"slices"
	"sort"
	"time"

	"github.com/meszmate/roster-core/internal/domain"
)

// UnresolvableReference is a modifier that was dropped because its target
// never showed up.
type UnresolvableReference struct {
	Target   domain.MessageTargetID
	Modifier domain.MessageLikeID
	Kind     domain.PayloadKind
	From     domain.ParticipantID
}

// InvalidMessage is an incoming record that failed validation.
type InvalidMessage struct {
	ID  domain.MessageLikeID
	Err error
}

// Delta is what one Reconcile call changed.
type Delta struct {
	// Appended holds new visible entries in timeline order.
	Appended []Entry
	// Updated holds visible entries that changed in place.
	Updated []Entry
	// Removed holds entries that were retracted.
	Removed  []domain.MessageLikeID
	Warnings []UnresolvableReference
	Invalid  []InvalidMessage
}

// IsEmpty reports whether nothing visible changed.
func (d Delta) IsEmpty() bool {
	return len(d.Appended) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

// Config bounds the modifiers a timeline buffers for unknown targets.
type Config struct {
	// PendingTTL is how long a modifier waits for its target. Zero keeps it
	// until MaxPending pushes it out.
	PendingTTL time.Duration
	// MaxPending caps buffered modifiers per timeline. Zero means no cap.
	MaxPending int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Engine applies MessageLikes to timelines. It holds no per-conversation
// state and can be shared.
type Engine struct {
	ttl        time.Duration
	maxPending int
	now        func() time.Time
}

// NewEngine creates an engine.
func NewEngine(cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		ttl:        cfg.PendingTTL,
		maxPending: cfg.MaxPending,
		now:        now,
	}
}

type pass struct {
	created map[*entry]bool
	touched map[*entry]bool
	order   []*entry
}

func (p *pass) mark(e *entry, created bool) {
	if !p.created[e] && !p.touched[e] {
		p.order = append(p.order, e)
	}
	if created {
		p.created[e] = true
	} else if !p.created[e] {
		p.touched[e] = true
	}
}

// Reconcile folds incoming into tl and returns the changes. incoming is
// applied in timestamp order, ties keeping their order in the slice.
func (e *Engine) Reconcile(tl *Timeline, incoming []domain.MessageLike) Delta {
	now := e.now()
	var delta Delta

	delta.Warnings = append(delta.Warnings, e.sweep(tl, now)...)

	sorted := slices.Clone(incoming)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	p := &pass{
		created: make(map[*entry]bool),
		touched: make(map[*entry]bool),
	}

	for _, msg := range sorted {
		if err := msg.Validate(); err != nil {
			delta.Invalid = append(delta.Invalid, InvalidMessage{ID: msg.ID, Err: err})
			continue
		}

		if original, ok := msg.Payload.(domain.MessagePayload); ok {
			e.applyOriginal(tl, p, msg, original)
			continue
		}

		target := tl.resolve(*msg.Target)
		if target == nil {
			tl.buffer(*msg.Target, msg, now)
			continue
		}
		if applyModifier(target, msg) {
			p.mark(target, false)
		}
	}

	if e.maxPending > 0 && tl.pendingCount > e.maxPending {
		delta.Warnings = append(delta.Warnings, tl.evict(func(pendingModifier) bool { return false }, e.maxPending)...)
	}

	sort.SliceStable(p.order, func(i, j int) bool {
		return tl.index(p.order[i]) < tl.index(p.order[j])
	})
	for _, ent := range p.order {
		switch {
		case ent.IsRetracted:
			delta.Removed = append(delta.Removed, ent.ID)
		case p.created[ent]:
			delta.Appended = append(delta.Appended, ent.snapshot())
		default:
			delta.Updated = append(delta.Updated, ent.snapshot())
		}
	}
	return delta
}

// Sweep drops expired pending modifiers without applying anything.
func (e *Engine) Sweep(tl *Timeline) []UnresolvableReference {
	return e.sweep(tl, e.now())
}

func (e *Engine) sweep(tl *Timeline, now time.Time) []UnresolvableReference {
	if e.ttl <= 0 || tl.pendingCount == 0 {
		return nil
	}
	return tl.evict(func(p pendingModifier) bool {
		return now.Sub(p.bufferedAt) > e.ttl
	}, e.maxPending)
}

func (e *Engine) applyOriginal(tl *Timeline, p *pass, msg domain.MessageLike, payload domain.MessagePayload) {
	if existing := tl.byID[msg.ID]; existing != nil {
		adoptStanzaID(tl, p, existing, msg.StanzaID)
		return
	}
	if msg.StanzaID != "" && tl.byStanzaID[msg.StanzaID] != nil {
		return
	}

	ent := &entry{
		Entry: Entry{
			ID:          msg.ID,
			StanzaID:    msg.StanzaID,
			From:        msg.From,
			To:          msg.To,
			Timestamp:   msg.Timestamp,
			Body:        payload.Body,
			Attachments: slices.Clone(payload.Attachments),
		},
	}
	tl.insert(ent)
	p.mark(ent, true)

	var targets []domain.MessageTargetID
	if id, ok := msg.ID.OriginalID(); ok {
		targets = append(targets, domain.TargetByMessageID(id))
	}
	if msg.StanzaID != "" {
		targets = append(targets, domain.TargetByStanzaID(msg.StanzaID))
	}
	e.drain(tl, p, ent, targets)
}

// adoptStanzaID records a stanza id learned from a redelivery, for example
// when the archive copy of a live message arrives.
func adoptStanzaID(tl *Timeline, p *pass, ent *entry, sid domain.StanzaID) {
	if sid == "" || ent.StanzaID != "" || tl.byStanzaID[sid] != nil {
		return
	}
	ent.StanzaID = sid
	tl.byStanzaID[sid] = ent
	drainInto(tl, p, ent, []domain.MessageTargetID{domain.TargetByStanzaID(sid), domain.TargetByMessageID(domain.MessageID(sid))})
}

func (e *Engine) drain(tl *Timeline, p *pass, ent *entry, targets []domain.MessageTargetID) {
	all := slices.Clone(targets)
	for _, t := range targets {
		all = append(all, t.Swapped())
	}
	drainInto(tl, p, ent, all)
}

func drainInto(tl *Timeline, p *pass, ent *entry, targets []domain.MessageTargetID) {
	for _, mod := range tl.take(targets...) {
		if applyModifier(ent, mod.msg) {
			p.mark(ent, false)
		}
	}
}

// applyModifier applies msg to e and reports whether e changed. Retracted
// entries are frozen.
func applyModifier(e *entry, msg domain.MessageLike) bool {
	if e.IsRetracted {
		return false
	}

	switch payload := msg.Payload.(type) {
	case domain.CorrectionPayload:
		// Among corrections with the same timestamp the one applied last wins.
		if e.corrections[msg.ID] || msg.Timestamp.Before(e.correctedAt) {
			return false
		}
		if e.corrections == nil {
			e.corrections = make(map[domain.MessageLikeID]bool)
		}
		e.corrections[msg.ID] = true
		e.correctedAt = msg.Timestamp
		if e.IsEdited && e.Body == payload.Body && slices.Equal(e.Attachments, payload.Attachments) {
			return false
		}
		e.Body = payload.Body
		e.Attachments = slices.Clone(payload.Attachments)
		e.IsEdited = true
		return true

	case domain.ReactionPayload:
		return applyReaction(e, msg.From, payload.Emojis, msg.Timestamp)

	case domain.RetractionPayload:
		e.IsRetracted = true
		return true

	case domain.DeliveryReceiptPayload:
		if e.Delivered {
			return false
		}
		e.Delivered = true
		return true

	case domain.ReadReceiptPayload:
		if e.Read {
			return false
		}
		e.Read = true
		e.Delivered = true
		return true
	}
	return false
}

// applyReaction replaces the reactions from with emojis. Sets older than
// the one already applied for from are ignored.
func applyReaction(e *entry, from domain.ParticipantID, emojis []domain.Emoji, at time.Time) bool {
	set := dedupe(emojis)

	prev, had := e.reactions[from]
	if had && at.Before(prev.at) {
		return false
	}
	if had && slices.Equal(prev.emojis, set) {
		prev.at = at
		e.reactions[from] = prev
		return false
	}
	if !had && len(set) == 0 {
		return false
	}

	if e.reactions == nil {
		e.reactions = make(map[domain.ParticipantID]participantReaction)
	}
	if len(set) == 0 {
		delete(e.reactions, from)
	} else {
		e.reactions[from] = participantReaction{emojis: set, at: at}
	}
	e.aggregate()
	return true
}

func dedupe(emojis []domain.Emoji) []domain.Emoji {
	out := make([]domain.Emoji, 0, len(emojis))
	seen := make(map[domain.Emoji]bool, len(emojis))
	for _, e := range emojis {
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

func (t *Timeline) index(e *entry) int {
	i := sort.Search(len(t.entries), func(i int) bool {
		return !t.entries[i].Timestamp.Before(e.Timestamp)
	})
	for ; i < len(t.entries); i++ {
		if t.entries[i] == e {
			return i
		}
	}
	return len(t.entries)
}
