package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meszmate/roster-core/internal/domain"
)

const (
	account = domain.UserID("me@example.com")
	conv    = domain.RoomID("alice@example.com")
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "data", "roster.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testMessages() []domain.MessageLike {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	target := domain.TargetByMessageID("m1")
	return []domain.MessageLike{
		{
			ID:        "m2",
			Target:    &target,
			From:      domain.UserParticipant("alice@example.com"),
			Timestamp: base.Add(time.Minute),
			Payload:   domain.ReactionPayload{Emojis: []domain.Emoji{"👍"}},
		},
		{
			ID:        "m1",
			StanzaID:  "s1",
			From:      domain.UserParticipant("alice@example.com"),
			To:        "me@example.com",
			Timestamp: base,
			Payload: domain.MessagePayload{
				Body:        "hello",
				Attachments: []domain.Attachment{{URL: "https://example.com/a.png"}},
			},
		},
	}
}

func TestSaveAndLoadMessages(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveMessages(ctx, account, conv, testMessages()))

	loaded, err := db.LoadMessages(ctx, account, conv)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	assert.Equal(t, domain.MessageLikeID("m1"), loaded[0].ID)
	assert.Equal(t, domain.StanzaID("s1"), loaded[0].StanzaID)
	assert.Nil(t, loaded[0].Target)
	assert.Equal(t, "me@example.com", loaded[0].To)
	assert.Equal(t, domain.MessagePayload{
		Body:        "hello",
		Attachments: []domain.Attachment{{URL: "https://example.com/a.png"}},
	}, loaded[0].Payload)
	assert.True(t, loaded[0].Timestamp.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))

	assert.Equal(t, domain.MessageLikeID("m2"), loaded[1].ID)
	require.NotNil(t, loaded[1].Target)
	assert.Equal(t, domain.TargetByMessageID("m1"), *loaded[1].Target)
	assert.Equal(t, domain.ReactionPayload{Emojis: []domain.Emoji{"👍"}}, loaded[1].Payload)
}

func TestSaveMessagesIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveMessages(ctx, account, conv, testMessages()))
	require.NoError(t, db.SaveMessages(ctx, account, conv, testMessages()))

	count, err := db.GetMessageCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestPlaceholderIDsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id := domain.UUIDGenerator{}.NewPlaceholder()
	require.NoError(t, db.SaveMessages(ctx, account, conv, []domain.MessageLike{{
		ID:        id,
		From:      domain.UserParticipant("alice@example.com"),
		Timestamp: time.Now(),
		Payload:   domain.MessagePayload{Body: "no id"},
	}}))

	loaded, err := db.LoadMessages(ctx, account, conv)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, id, loaded[0].ID)
	assert.True(t, loaded[0].ID.IsPlaceholder())
}

func TestConversationsAreSeparate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveMessages(ctx, account, conv, testMessages()))

	other, err := db.LoadMessages(ctx, account, "bob@example.com")
	require.NoError(t, err)
	assert.Empty(t, other)

	exists, err := db.MessageExists(ctx, account, conv, "s1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = db.MessageExists(ctx, account, "bob@example.com", "s1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, db.DeleteMessages(ctx, account, conv))
	loaded, err := db.LoadMessages(ctx, account, conv)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestMAMSync(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	sync, err := db.GetMAMSync(ctx, account, conv)
	require.NoError(t, err)
	assert.Nil(t, sync)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.SaveMAMSync(ctx, MAMSync{
		Account:       account,
		Conversation:  conv,
		LastStanzaID:  "s9",
		LastTimestamp: ts,
	}))

	sync, err = db.GetMAMSync(ctx, account, conv)
	require.NoError(t, err)
	require.NotNil(t, sync)
	assert.Equal(t, domain.StanzaID("s9"), sync.LastStanzaID)
	assert.True(t, sync.LastTimestamp.Equal(ts))
	assert.False(t, sync.LastSynced.IsZero())
}
