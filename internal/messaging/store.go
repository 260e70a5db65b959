package messaging

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/sudo-init-do/servicehub/internal/apperr"
	"github.com/sudo-init-do/servicehub/internal/clock"
)

type pairKey struct {
	a, b      string
	listingID string
}

func keyFor(userA, userB, listingID string) pairKey {
	if userB < userA {
		userA, userB = userB, userA
	}
	return pairKey{a: userA, b: userB, listingID: listingID}
}

// Store owns conversations and their messages.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	byPair        map[pairKey]string
	byUser        map[string][]string
	messages      map[string][]*Message
	touch         uint64

	clock clock.Clock
}

func NewStore(c clock.Clock) *Store {
	return &Store{
		conversations: make(map[string]*Conversation),
		byPair:        make(map[pairKey]string),
		byUser:        make(map[string][]string),
		messages:      make(map[string][]*Message),
		clock:         c,
	}
}

// OpenOrGet returns the conversation between the two users about listingID,
// creating it on first contact. created reports whether it is new.
func (s *Store) OpenOrGet(userA, userB, listingID string) (conv Conversation, created bool, err error) {
	if userA == "" || userB == "" {
		return Conversation{}, false, apperr.Validation("both participants are required")
	}
	if userA == userB {
		return Conversation{}, false, apperr.Validation("cannot open a conversation with yourself")
	}

	k := keyFor(userA, userB, listingID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byPair[k]; ok {
		return *s.conversations[id], false, nil
	}

	now := s.clock.Now()
	s.touch++
	c := &Conversation{
		ID:           uuid.New().String(),
		Participants: [2]string{userA, userB},
		ListingID:    listingID,
		CreatedAt:    now,
		UpdatedAt:    now,
		touched:      s.touch,
	}
	s.conversations[c.ID] = c
	s.byPair[k] = c.ID
	s.byUser[userA] = append(s.byUser[userA], c.ID)
	s.byUser[userB] = append(s.byUser[userB], c.ID)
	return *c, true, nil
}

// lookup returns the conversation if userID takes part in it. Caller holds mu.
func (s *Store) lookup(conversationID, userID string) (*Conversation, error) {
	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, apperr.NotFound("conversation")
	}
	if !c.has(userID) {
		return nil, apperr.Forbidden("not a participant in this conversation")
	}
	return c, nil
}

func (s *Store) Get(conversationID, userID string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, err := s.lookup(conversationID, userID)
	if err != nil {
		return Conversation{}, err
	}
	return *c, nil
}

func (s *Store) IsParticipant(conversationID, userID string) bool {
	_, err := s.Get(conversationID, userID)
	return err == nil
}

// Post appends a message from senderID and bumps the conversation.
func (s *Store) Post(conversationID, senderID, body string) (Message, Conversation, error) {
	if strings.TrimSpace(body) == "" {
		return Message{}, Conversation{}, apperr.Validation("message content is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.lookup(conversationID, senderID)
	if err != nil {
		return Message{}, Conversation{}, err
	}

	now := s.clock.Now()
	m := &Message{
		ID:             uuid.New().String(),
		ConversationID: c.ID,
		SenderID:       senderID,
		Content:        body,
		Kind:           KindText,
		CreatedAt:      now,
	}
	s.messages[c.ID] = append(s.messages[c.ID], m)
	s.touch++
	c.UpdatedAt = now
	c.touched = s.touch
	return m.clone(), *c, nil
}

// Messages returns the history oldest first.
func (s *Store) Messages(conversationID, readerID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := s.lookup(conversationID, readerID); err != nil {
		return nil, err
	}
	msgs := s.messages[conversationID]
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.clone())
	}
	return out, nil
}

// MarkRead flags every unread message not written by readerID and returns
// how many changed. A second call changes nothing.
func (s *Store) MarkRead(conversationID, readerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(conversationID, readerID); err != nil {
		return 0, err
	}
	now := s.clock.Now()
	n := 0
	for _, m := range s.messages[conversationID] {
		if m.SenderID == readerID || m.Read {
			continue
		}
		m.Read = true
		at := now
		m.ReadAt = &at
		n++
	}
	return n, nil
}

// unread counts messages waiting for userID. Caller holds mu.
func (s *Store) unread(conversationID, userID string) int {
	n := 0
	for _, m := range s.messages[conversationID] {
		if m.SenderID != userID && !m.Read {
			n++
		}
	}
	return n
}

func (s *Store) Unread(conversationID, userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread(conversationID, userID)
}

func (s *Store) TotalUnread(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, id := range s.byUser[userID] {
		n += s.unread(id, userID)
	}
	return n
}

// ListForUser returns the user's conversations, most recent activity first.
func (s *Store) ListForUser(userID string) []Thread {
	s.mu.RLock()
	ids := s.byUser[userID]
	out := make([]Thread, 0, len(ids))
	for _, id := range ids {
		c := s.conversations[id]
		t := Thread{Conversation: *c, Unread: s.unread(id, userID)}
		if msgs := s.messages[id]; len(msgs) > 0 {
			last := msgs[len(msgs)-1].clone()
			t.LastMessage = &last
		}
		out = append(out, t)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Conversation.touched > out[j].Conversation.touched
	})
	return out
}
