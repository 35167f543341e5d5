package messaging

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/meszmate/roster-core/internal/domain"
	"github.com/meszmate/roster-core/internal/logging"
	"github.com/meszmate/roster-core/internal/reconcile"
)

// Store is the durable message log.
type Store interface {
	SaveMessages(ctx context.Context, account domain.UserID, conversation domain.RoomID, msgs []domain.MessageLike) error
	LoadMessages(ctx context.Context, account domain.UserID, conversation domain.RoomID) ([]domain.MessageLike, error)
}

// Repository keeps one reconciled timeline per conversation of an account.
// Timelines are rebuilt from the store the first time a conversation is
// touched. A nil store keeps everything in memory.
type Repository struct {
	account domain.UserID
	store   Store
	engine  *reconcile.Engine
	log     *logging.Logger

	mu        sync.RWMutex
	timelines map[domain.RoomID]*reconcile.Timeline
}

// NewRepository creates a repository for account.
func NewRepository(account domain.UserID, store Store, engine *reconcile.Engine, log *logging.Logger) *Repository {
	if log == nil {
		log = logging.Nop()
	}
	return &Repository{
		account:   account,
		store:     store,
		engine:    engine,
		log:       log,
		timelines: make(map[domain.RoomID]*reconcile.Timeline),
	}
}

// timeline returns the cached timeline of conv, loading it if needed. The
// store is read without holding the lock.
func (r *Repository) timeline(ctx context.Context, conv domain.RoomID) (*reconcile.Timeline, error) {
	r.mu.RLock()
	tl, ok := r.timelines[conv]
	r.mu.RUnlock()
	if ok {
		return tl, nil
	}

	fresh := reconcile.NewTimeline()
	if r.store != nil {
		msgs, err := r.store.LoadMessages(ctx, r.account, conv)
		if err != nil {
			return nil, fmt.Errorf("failed to load messages of %s: %w", conv, err)
		}
		delta := r.engine.Reconcile(fresh, msgs)
		r.logDelta(conv, delta)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if tl, ok := r.timelines[conv]; ok {
		return tl, nil
	}
	r.timelines[conv] = fresh
	return fresh, nil
}

// Append records msgs in the log of conv and folds them into its timeline.
// Records are persisted before they become visible.
func (r *Repository) Append(ctx context.Context, conv domain.RoomID, msgs []domain.MessageLike) (reconcile.Delta, error) {
	tl, err := r.timeline(ctx, conv)
	if err != nil {
		return reconcile.Delta{}, err
	}

	if r.store != nil {
		if err := r.store.SaveMessages(ctx, r.account, conv, msgs); err != nil {
			return reconcile.Delta{}, fmt.Errorf("failed to save messages of %s: %w", conv, err)
		}
	}

	r.mu.Lock()
	delta := r.engine.Reconcile(tl, msgs)
	r.mu.Unlock()

	r.logDelta(conv, delta)
	return delta, nil
}

// Messages returns the visible entries of conv in timeline order.
func (r *Repository) Messages(ctx context.Context, conv domain.RoomID) ([]reconcile.Entry, error) {
	tl, err := r.timeline(ctx, conv)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return tl.Visible(), nil
}

// Get returns the entry of conv with the given id.
func (r *Repository) Get(ctx context.Context, conv domain.RoomID, id domain.MessageLikeID) (reconcile.Entry, bool, error) {
	tl, err := r.timeline(ctx, conv)
	if err != nil {
		return reconcile.Entry{}, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := tl.Get(id)
	return e, ok, nil
}

// Resolve returns the entry of conv target refers to.
func (r *Repository) Resolve(ctx context.Context, conv domain.RoomID, target domain.MessageTargetID) (reconcile.Entry, bool, error) {
	tl, err := r.timeline(ctx, conv)
	if err != nil {
		return reconcile.Entry{}, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := tl.Resolve(target)
	return e, ok, nil
}

// Sweep drops expired pending modifiers from every cached timeline.
func (r *Repository) Sweep() map[domain.RoomID][]reconcile.UnresolvableReference {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[domain.RoomID][]reconcile.UnresolvableReference)
	for conv, tl := range r.timelines {
		if refs := r.engine.Sweep(tl); len(refs) > 0 {
			out[conv] = refs
			for _, ref := range refs {
				r.log.Warn("dropping %s %s in %s: target %s never arrived", ref.Kind, ref.Modifier, conv, ref.Target)
			}
		}
	}
	return out
}

// Conversations returns the ids of the cached conversations, sorted.
func (r *Repository) Conversations() []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.RoomID, 0, len(r.timelines))
	for conv := range r.timelines {
		out = append(out, conv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Forget drops the cached timeline of conv. The log stays in the store.
func (r *Repository) Forget(conv domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.timelines, conv)
}

func (r *Repository) logDelta(conv domain.RoomID, delta reconcile.Delta) {
	for _, ref := range delta.Warnings {
		r.log.Warn("dropping %s %s in %s: target %s never arrived", ref.Kind, ref.Modifier, conv, ref.Target)
	}
	for _, inv := range delta.Invalid {
		r.log.Warn("skipping invalid message %s in %s: %v", inv.ID, conv, inv.Err)
	}
}
