// Package reconcile folds message shaped records into a per-conversation
// timeline and reports what changed.
package reconcile

import (
	"slices"
	"sort"
	"time"

	"github.com/meszmate/roster-core/internal/domain"
)

// Reaction is one emoji and everybody who reacted with it.
type Reaction struct {
	Emoji domain.Emoji
	From  []domain.ParticipantID
}

// Entry is a message as the user sees it, with every modifier applied.
type Entry struct {
	ID          domain.MessageLikeID
	StanzaID    domain.StanzaID
	From        domain.ParticipantID
	To          string
	Timestamp   time.Time
	Body        string
	Attachments []domain.Attachment
	Reactions   []Reaction
	IsRetracted bool
	IsEdited    bool
	Delivered   bool
	Read        bool
}

type participantReaction struct {
	emojis []domain.Emoji
	at     time.Time
}

type entry struct {
	Entry
	correctedAt time.Time
	// corrections holds the ids of the corrections applied so far.
	corrections map[domain.MessageLikeID]bool
	reactions   map[domain.ParticipantID]participantReaction
}

func (e *entry) snapshot() Entry {
	out := e.Entry
	out.Attachments = slices.Clone(e.Attachments)
	out.Reactions = make([]Reaction, len(e.Reactions))
	for i, r := range e.Reactions {
		out.Reactions[i] = Reaction{Emoji: r.Emoji, From: slices.Clone(r.From)}
	}
	if len(out.Reactions) == 0 {
		out.Reactions = nil
	}
	return out
}

// aggregate rebuilds Entry.Reactions from the per participant sets. Emojis
// are ordered by when they were first used, participants by id.
func (e *entry) aggregate() {
	type agg struct {
		first time.Time
		from  []domain.ParticipantID
	}
	byEmoji := make(map[domain.Emoji]*agg)
	for from, r := range e.reactions {
		for _, emoji := range r.emojis {
			a, ok := byEmoji[emoji]
			if !ok {
				a = &agg{first: r.at}
				byEmoji[emoji] = a
			}
			if r.at.Before(a.first) {
				a.first = r.at
			}
			a.from = append(a.from, from)
		}
	}

	reactions := make([]Reaction, 0, len(byEmoji))
	for emoji, a := range byEmoji {
		sort.Slice(a.from, func(i, j int) bool { return a.from[i].String() < a.from[j].String() })
		reactions = append(reactions, Reaction{Emoji: emoji, From: a.from})
	}
	sort.Slice(reactions, func(i, j int) bool {
		fi, fj := byEmoji[reactions[i].Emoji].first, byEmoji[reactions[j].Emoji].first
		if !fi.Equal(fj) {
			return fi.Before(fj)
		}
		return reactions[i].Emoji < reactions[j].Emoji
	})
	e.Reactions = reactions
}

type pendingModifier struct {
	msg        domain.MessageLike
	bufferedAt time.Time
	seq        uint64
}

// Timeline is the materialized state of one conversation. It is not safe
// for concurrent use; the owning repository serializes access.
type Timeline struct {
	entries    []*entry
	byID       map[domain.MessageLikeID]*entry
	byStanzaID map[domain.StanzaID]*entry

	pending      map[domain.MessageTargetID][]pendingModifier
	pendingCount int
	seq          uint64
}

// NewTimeline returns an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{
		byID:       make(map[domain.MessageLikeID]*entry),
		byStanzaID: make(map[domain.StanzaID]*entry),
		pending:    make(map[domain.MessageTargetID][]pendingModifier),
	}
}

// Len returns the number of entries, retracted ones included.
func (t *Timeline) Len() int {
	return len(t.entries)
}

// Entries returns every entry in timeline order, retracted ones included.
func (t *Timeline) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.snapshot()
	}
	return out
}

// Visible returns the entries that are not retracted.
func (t *Timeline) Visible() []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		if !e.IsRetracted {
			out = append(out, e.snapshot())
		}
	}
	return out
}

// Get returns the entry with the given id.
func (t *Timeline) Get(id domain.MessageLikeID) (Entry, bool) {
	e, ok := t.byID[id]
	if !ok {
		return Entry{}, false
	}
	return e.snapshot(), true
}

// Resolve returns the entry target refers to.
func (t *Timeline) Resolve(target domain.MessageTargetID) (Entry, bool) {
	e := t.resolve(target)
	if e == nil {
		return Entry{}, false
	}
	return e.snapshot(), true
}

// PendingCount returns how many modifiers wait for their target.
func (t *Timeline) PendingCount() int {
	return t.pendingCount
}

// resolve looks target up in its own id space first, then in the other one,
// since senders do not always know which id they hold.
func (t *Timeline) resolve(target domain.MessageTargetID) *entry {
	if e := t.lookup(target); e != nil {
		return e
	}
	return t.lookup(target.Swapped())
}

func (t *Timeline) lookup(target domain.MessageTargetID) *entry {
	switch target.Kind {
	case domain.TargetMessageID:
		id := domain.NewMessageLikeID(domain.MessageID(target.ID))
		if id.IsPlaceholder() {
			return nil
		}
		return t.byID[id]
	case domain.TargetStanzaID:
		return t.byStanzaID[domain.StanzaID(target.ID)]
	}
	return nil
}

// insert places e after every entry with the same or an earlier timestamp.
func (t *Timeline) insert(e *entry) {
	i := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].Timestamp.After(e.Timestamp)
	})
	t.entries = slices.Insert(t.entries, i, e)
	t.byID[e.ID] = e
	if e.StanzaID != "" {
		t.byStanzaID[e.StanzaID] = e
	}
}

func (t *Timeline) buffer(target domain.MessageTargetID, msg domain.MessageLike, now time.Time) bool {
	for _, p := range t.pending[target] {
		if p.msg.ID == msg.ID && p.msg.Payload.Kind() == msg.Payload.Kind() && p.msg.From == msg.From {
			return false
		}
	}
	t.seq++
	t.pending[target] = append(t.pending[target], pendingModifier{msg: msg, bufferedAt: now, seq: t.seq})
	t.pendingCount++
	return true
}

// take removes and returns the modifiers buffered under any of targets.
func (t *Timeline) take(targets ...domain.MessageTargetID) []pendingModifier {
	var out []pendingModifier
	for _, target := range targets {
		mods, ok := t.pending[target]
		if !ok {
			continue
		}
		delete(t.pending, target)
		t.pendingCount -= len(mods)
		out = append(out, mods...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].msg.Timestamp.Equal(out[j].msg.Timestamp) {
			return out[i].msg.Timestamp.Before(out[j].msg.Timestamp)
		}
		return out[i].seq < out[j].seq
	})
	return out
}

type evicted struct {
	target domain.MessageTargetID
	pendingModifier
}

// evict removes pending modifiers matching expired, plus the oldest ones
// while more than limit are buffered. limit <= 0 means unbounded.
func (t *Timeline) evict(expired func(p pendingModifier) bool, limit int) []UnresolvableReference {
	var out []evicted
	for target, mods := range t.pending {
		kept := mods[:0]
		for _, p := range mods {
			if expired(p) {
				out = append(out, evicted{target, p})
				continue
			}
			kept = append(kept, p)
		}
		t.pendingCount -= len(mods) - len(kept)
		if len(kept) == 0 {
			delete(t.pending, target)
		} else {
			t.pending[target] = kept
		}
	}

	for limit > 0 && t.pendingCount > limit {
		oldest := evicted{}
		oldestIdx := -1
		for target, mods := range t.pending {
			for i, p := range mods {
				if oldestIdx < 0 || p.seq < oldest.seq {
					oldest, oldestIdx = evicted{target, p}, i
				}
			}
		}
		mods := slices.Delete(t.pending[oldest.target], oldestIdx, oldestIdx+1)
		if len(mods) == 0 {
			delete(t.pending, oldest.target)
		} else {
			t.pending[oldest.target] = mods
		}
		t.pendingCount--
		out = append(out, oldest)
	}

	if len(out) == 0 {
		return nil
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	refs := make([]UnresolvableReference, len(out))
	for i, e := range out {
		refs[i] = UnresolvableReference{
			Target:   e.target,
			Modifier: e.msg.ID,
			Kind:     e.msg.Payload.Kind(),
			From:     e.msg.From,
		}
	}
	return refs
}
