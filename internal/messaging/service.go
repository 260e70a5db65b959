package messaging

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sudo-init-do/servicehub/internal/apperr"
	"github.com/sudo-init-do/servicehub/internal/marketplace"
	"github.com/sudo-init-do/servicehub/internal/realtime"
	"github.com/sudo-init-do/servicehub/internal/user"
)

type Profiles interface {
	Get(id string) (user.User, error)
}

type ListingLookup interface {
	Get(id string) (marketplace.Listing, error)
}

// Service puts the conversation store behind the HTTP and websocket
// surfaces and emits the matching realtime events.
type Service struct {
	store    *Store
	users    Profiles
	listings ListingLookup
	pub      realtime.Publisher
	log      zerolog.Logger
}

func NewService(store *Store, users Profiles, listings ListingLookup, pub realtime.Publisher, log zerolog.Logger) *Service {
	return &Service{store: store, users: users, listings: listings, pub: pub, log: log}
}

// Open starts or resumes a conversation with otherID, optionally about a
// listing, and posts initialMessage when given.
func (s *Service) Open(ctx context.Context, userID, otherID, listingID, initialMessage string) (Conversation, error) {
	if initialMessage != "" && strings.TrimSpace(initialMessage) == "" {
		return Conversation{}, apperr.Validation("initial message is blank")
	}
	if _, err := s.users.Get(otherID); err != nil {
		return Conversation{}, err
	}
	if listingID != "" {
		if _, err := s.listings.Get(listingID); err != nil {
			return Conversation{}, err
		}
	}
	conv, created, err := s.store.OpenOrGet(userID, otherID, listingID)
	if err != nil {
		return Conversation{}, err
	}
	if created {
		s.log.Debug().Str("conversation_id", conv.ID).Str("listing_id", listingID).Msg("conversation opened")
	}
	if initialMessage != "" {
		if _, err := s.Send(ctx, userID, conv.ID, initialMessage); err != nil {
			return Conversation{}, err
		}
		return s.store.Get(conv.ID, userID)
	}
	return conv, nil
}

// Send posts a message and notifies the conversation channel and the other
// participant.
func (s *Service) Send(_ context.Context, senderID, conversationID, body string) (Message, error) {
	msg, conv, err := s.store.Post(conversationID, senderID, body)
	if err != nil {
		return Message{}, err
	}
	other := conv.other(senderID)

	s.pub.Publish(realtime.Event{Type: realtime.EventNewMessage, Data: msg},
		realtime.ConversationChannel(conv.ID), realtime.UserChannel(other))
	s.pub.Publish(realtime.Event{Type: realtime.EventConversationUpdate, Data: echo.Map{
		"conversationId": conv.ID,
		"lastMessage":    msg,
		"unreadCount":    s.store.Unread(conv.ID, other),
	}}, realtime.UserChannel(other))
	return msg, nil
}

// History returns the messages of a conversation and marks the ones sent to
// readerID as read.
func (s *Service) History(ctx context.Context, readerID, conversationID string) ([]Message, error) {
	if _, err := s.MarkRead(ctx, readerID, conversationID); err != nil {
		return nil, err
	}
	return s.store.Messages(conversationID, readerID)
}

func (s *Service) MarkRead(_ context.Context, readerID, conversationID string) (int, error) {
	n, err := s.store.MarkRead(conversationID, readerID)
	if err != nil || n == 0 {
		return n, err
	}
	conv, err := s.store.Get(conversationID, readerID)
	if err != nil {
		return n, err
	}
	s.pub.Publish(realtime.Event{Type: realtime.EventMessagesRead, Data: echo.Map{
		"conversationId": conversationID,
		"readBy":         readerID,
		"count":          n,
	}}, realtime.UserChannel(conv.other(readerID)), realtime.ConversationChannel(conversationID))
	return n, nil
}

// List builds the conversation summaries shown in the inbox.
func (s *Service) List(userID string) []Summary {
	threads := s.store.ListForUser(userID)
	out := make([]Summary, 0, len(threads))
	for _, t := range threads {
		sum := Summary{
			ID:          t.Conversation.ID,
			LastMessage: t.LastMessage,
			UnreadCount: t.Unread,
			CreatedAt:   t.Conversation.CreatedAt,
			UpdatedAt:   t.Conversation.UpdatedAt,
		}
		if u, err := s.users.Get(t.Conversation.other(userID)); err == nil {
			p := u.Public()
			sum.OtherUser = &p
		}
		if id := t.Conversation.ListingID; id != "" {
			if l, err := s.listings.Get(id); err == nil {
				sum.Service = &l
			}
		}
		out = append(out, sum)
	}
	return out
}

func (s *Service) TotalUnread(userID string) int {
	return s.store.TotalUnread(userID)
}

func (s *Service) IsParticipant(conversationID, userID string) bool {
	return s.store.IsParticipant(conversationID, userID)
}

// SendMessage and MarkMessagesRead serve websocket commands.
func (s *Service) SendMessage(ctx context.Context, senderID, conversationID, content string) error {
	_, err := s.Send(ctx, senderID, conversationID, content)
	return err
}

func (s *Service) MarkMessagesRead(ctx context.Context, readerID, conversationID string) error {
	_, err := s.MarkRead(ctx, readerID, conversationID)
	return err
}
