package messaging

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meszmate/roster-core/internal/domain"
	"github.com/meszmate/roster-core/internal/reconcile"
	"github.com/meszmate/roster-core/internal/storage/sqlite"
)

const (
	testAccount = domain.UserID("me@example.com")
	testConv    = domain.RoomID("alice@example.com")
)

type memoryStore struct {
	mu      sync.Mutex
	logs    map[domain.RoomID][]domain.MessageLike
	saveErr error
	loads   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{logs: make(map[domain.RoomID][]domain.MessageLike)}
}

func (s *memoryStore) SaveMessages(_ context.Context, _ domain.UserID, conv domain.RoomID, msgs []domain.MessageLike) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.logs[conv] = append(s.logs[conv], msgs...)
	return nil
}

func (s *memoryStore) LoadMessages(_ context.Context, _ domain.UserID, conv domain.RoomID) ([]domain.MessageLike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	return append([]domain.MessageLike(nil), s.logs[conv]...), nil
}

func original(id string, at time.Time, body string) domain.MessageLike {
	return domain.MessageLike{
		ID:        domain.MessageLikeID(id),
		From:      domain.UserParticipant("alice@example.com"),
		Timestamp: at,
		Payload:   domain.MessagePayload{Body: body},
	}
}

func correction(id, target string, at time.Time, body string) domain.MessageLike {
	t := domain.TargetByMessageID(domain.MessageID(target))
	return domain.MessageLike{
		ID:        domain.MessageLikeID(id),
		Target:    &t,
		From:      domain.UserParticipant("alice@example.com"),
		Timestamp: at,
		Payload:   domain.CorrectionPayload{Body: body},
	}
}

func newTestRepository(store Store) *Repository {
	return NewRepository(testAccount, store, reconcile.NewEngine(reconcile.Config{}), nil)
}

func TestRepositoryAppend(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	repo := newTestRepository(store)

	delta, err := repo.Append(ctx, testConv, []domain.MessageLike{original("m1", testNow, "hello")})
	require.NoError(t, err)
	require.Len(t, delta.Appended, 1)
	assert.Equal(t, "hello", delta.Appended[0].Body)

	delta, err = repo.Append(ctx, testConv, []domain.MessageLike{correction("c1", "m1", testNow.Add(time.Second), "hello!")})
	require.NoError(t, err)
	require.Len(t, delta.Updated, 1)
	assert.True(t, delta.Updated[0].IsEdited)

	msgs, err := repo.Messages(ctx, testConv)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello!", msgs[0].Body)

	assert.Len(t, store.logs[testConv], 2, "every record is persisted")
	assert.Equal(t, []domain.RoomID{testConv}, repo.Conversations())
}

func TestRepositoryRebuildsFromStore(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	store.logs[testConv] = []domain.MessageLike{
		correction("c1", "m1", testNow.Add(time.Second), "edited"),
		original("m1", testNow, "draft"),
	}
	repo := newTestRepository(store)

	entry, ok, err := repo.Get(ctx, testConv, "m1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "edited", entry.Body)

	entry, ok, err = repo.Resolve(ctx, testConv, domain.TargetByMessageID("m1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.MessageLikeID("m1"), entry.ID)

	_, err = repo.Messages(ctx, testConv)
	require.NoError(t, err)
	assert.Equal(t, 1, store.loads, "timeline is loaded once")

	repo.Forget(testConv)
	_, err = repo.Messages(ctx, testConv)
	require.NoError(t, err)
	assert.Equal(t, 2, store.loads)
}

func TestRepositoryDoesNotApplyUnsavedMessages(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	repo := newTestRepository(store)

	store.saveErr = errors.New("disk full")
	_, err := repo.Append(ctx, testConv, []domain.MessageLike{original("m1", testNow, "hello")})
	require.ErrorIs(t, err, store.saveErr)

	msgs, err := repo.Messages(ctx, testConv)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRepositoryWithoutStore(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(nil)

	_, err := repo.Append(ctx, testConv, []domain.MessageLike{original("m1", testNow, "hello")})
	require.NoError(t, err)

	msgs, err := repo.Messages(ctx, testConv)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestRepositorySweep(t *testing.T) {
	ctx := context.Background()
	now := testNow
	engine := reconcile.NewEngine(reconcile.Config{
		PendingTTL: time.Minute,
		Now:        func() time.Time { return now },
	})
	repo := NewRepository(testAccount, nil, engine, nil)

	_, err := repo.Append(ctx, testConv, []domain.MessageLike{correction("c1", "missing", testNow, "x")})
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	dropped := repo.Sweep()
	require.Len(t, dropped[testConv], 1)
	assert.Equal(t, domain.MessageLikeID("c1"), dropped[testConv][0].Modifier)
}

func TestRepositoryOnSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "roster.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	first := newTestRepository(db)
	_, err = first.Append(ctx, testConv, []domain.MessageLike{
		original("m1", testNow, "hello"),
		correction("c1", "m1", testNow.Add(time.Second), "hello again"),
	})
	require.NoError(t, err)

	// Redelivery after a restart changes nothing.
	second := newTestRepository(db)
	delta, err := second.Append(ctx, testConv, []domain.MessageLike{original("m1", testNow, "hello")})
	require.NoError(t, err)
	assert.True(t, delta.IsEmpty())

	msgs, err := second.Messages(ctx, testConv)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello again", msgs[0].Body)
	assert.True(t, msgs[0].IsEdited)
}
