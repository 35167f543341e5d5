package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mellium.im/xmpp/jid"
)

func TestPlaceholderIDs(t *testing.T) {
	gen := UUIDGenerator{}

	a := IDOrPlaceholder("", gen)
	b := IDOrPlaceholder("", gen)

	assert.NotEqual(t, a, b)
	assert.True(t, a.IsPlaceholder())

	_, ok := a.OriginalID()
	assert.False(t, ok)
	_, ok = b.OriginalID()
	assert.False(t, ok)

	orig := IDOrPlaceholder("msg-1", gen)
	id, ok := orig.OriginalID()
	require.True(t, ok)
	assert.Equal(t, MessageID("msg-1"), id)
}

func TestIdentifiers(t *testing.T) {
	full := jid.MustParse("alice@example.com/phone")

	assert.Equal(t, UserID("alice@example.com"), NewUserID(full))

	res, err := NewUserResourceID(full)
	require.NoError(t, err)
	assert.Equal(t, UserID("alice@example.com"), res.UserID())
	assert.Equal(t, "phone", res.Resource())

	_, err = NewUserResourceID(full.Bare())
	assert.Error(t, err)

	occ, err := NewOccupantID(jid.MustParse("room@conference.example.com/nick/with/slash"))
	require.NoError(t, err)
	assert.Equal(t, RoomID("room@conference.example.com"), occ.RoomID())
	assert.Equal(t, "nick/with/slash", occ.Nickname())

	user, ok := ResourceEndpoint(res).ToUserID()
	assert.True(t, ok)
	assert.Equal(t, UserID("alice@example.com"), user)

	_, ok = OccupantEndpoint(occ).ToUserID()
	assert.False(t, ok)
}

func TestMessageTargetSwapped(t *testing.T) {
	target := TargetByMessageID("abc")
	assert.Equal(t, TargetByStanzaID("abc"), target.Swapped())
	assert.Equal(t, target, target.Swapped().Swapped())
}

func TestMessageLikeValidate(t *testing.T) {
	from := UserParticipant("bob@example.com")
	target := TargetByMessageID("m1")

	tests := []struct {
		name string
		msg  MessageLike
		err  error
	}{
		{"original", MessageLike{From: from, Payload: MessagePayload{Body: "hi"}}, nil},
		{"original with target", MessageLike{From: from, Target: &target, Payload: MessagePayload{}}, ErrUnexpectedTarget},
		{"reaction", MessageLike{From: from, Target: &target, Payload: ReactionPayload{}}, nil},
		{"retraction without target", MessageLike{From: from, Payload: RetractionPayload{}}, ErrMissingTarget},
		{"no payload", MessageLike{From: from}, ErrMissingPayload},
		{"no sender", MessageLike{Payload: MessagePayload{}}, ErrMissingSender},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestDecodePayload(t *testing.T) {
	data, err := json.Marshal(ReactionPayload{Emojis: []Emoji{"👍", "🎉"}})
	require.NoError(t, err)

	p, err := DecodePayload(KindReaction, data)
	require.NoError(t, err)
	assert.Equal(t, ReactionPayload{Emojis: []Emoji{"👍", "🎉"}}, p)

	p, err = DecodePayload(KindRetraction, []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, RetractionPayload{}, p)

	_, err = DecodePayload("bogus", nil)
	assert.Error(t, err)
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, AvailabilityAvailable, AvailabilityFromShow(""))
	assert.Equal(t, AvailabilityDND, AvailabilityFromShow("dnd"))
	assert.Equal(t, AffiliationNone, ParseAffiliation("bogus"))
	assert.Equal(t, AffiliationMember, ParseAffiliation("member"))

	state, ok := ParseComposeState("composing")
	assert.True(t, ok)
	assert.Equal(t, ComposeStateComposing, state)
	_, ok = ParseComposeState("typing")
	assert.False(t, ok)
}
