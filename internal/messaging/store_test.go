package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/servicehub/internal/apperr"
	"github.com/sudo-init-do/servicehub/internal/clock"
)

func newTestStore() (*Store, *clock.Manual) {
	c := clock.NewManual(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	return NewStore(c), c
}

func TestOpenOrGetIsIdempotent(t *testing.T) {
	s, _ := newTestStore()

	first, created, err := s.OpenOrGet("alice", "bob", "listing-1")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := s.OpenOrGet("bob", "alice", "listing-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID, "pair is unordered")

	other, created, err := s.OpenOrGet("alice", "bob", "listing-2")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)

	_, _, err = s.OpenOrGet("alice", "alice", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestPostRequiresParticipant(t *testing.T) {
	s, c := newTestStore()
	conv, _, err := s.OpenOrGet("alice", "bob", "")
	require.NoError(t, err)

	c.Advance(time.Minute)
	msg, updated, err := s.Post(conv.ID, "alice", "hello")
	require.NoError(t, err)
	assert.Equal(t, KindText, msg.Kind)
	assert.False(t, msg.Read)
	assert.True(t, updated.UpdatedAt.After(conv.UpdatedAt))

	_, _, err = s.Post(conv.ID, "mallory", "hi")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, _, err = s.Post("missing", "alice", "hi")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, _, err = s.Post(conv.ID, "alice", "   ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = s.Messages(conv.ID, "mallory")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	s, _ := newTestStore()
	conv, _, _ := s.OpenOrGet("alice", "bob", "")
	for _, body := range []string{"one", "two", "three"} {
		_, _, err := s.Post(conv.ID, "alice", body)
		require.NoError(t, err)
	}
	_, _, err := s.Post(conv.ID, "bob", "reply")
	require.NoError(t, err)

	assert.Equal(t, 3, s.Unread(conv.ID, "bob"))
	assert.Equal(t, 1, s.Unread(conv.ID, "alice"))

	n, err := s.MarkRead(conv.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, s.Unread(conv.ID, "bob"))

	n, err = s.MarkRead(conv.ID, "bob")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 0, s.Unread(conv.ID, "bob"))
	assert.Equal(t, 1, s.Unread(conv.ID, "alice"), "own messages are not touched")

	msgs, err := s.Messages(conv.ID, "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.True(t, msgs[0].Read)
	assert.NotNil(t, msgs[0].ReadAt)
	assert.False(t, msgs[3].Read)
}

func TestListForUserMostRecentFirst(t *testing.T) {
	s, c := newTestStore()
	older, _, _ := s.OpenOrGet("alice", "bob", "")
	newer, _, _ := s.OpenOrGet("alice", "carol", "")
	_, _, _ = s.OpenOrGet("bob", "carol", "")

	threads := s.ListForUser("alice")
	require.Len(t, threads, 2)
	assert.Equal(t, newer.ID, threads[0].Conversation.ID)
	assert.Nil(t, threads[0].LastMessage)

	c.Advance(time.Second)
	_, _, err := s.Post(older.ID, "bob", "ping")
	require.NoError(t, err)

	threads = s.ListForUser("alice")
	assert.Equal(t, older.ID, threads[0].Conversation.ID)
	require.NotNil(t, threads[0].LastMessage)
	assert.Equal(t, "ping", threads[0].LastMessage.Content)
	assert.Equal(t, 1, threads[0].Unread)
	assert.Equal(t, 1, s.TotalUnread("alice"))
	assert.Zero(t, s.TotalUnread("bob"))
}
