package messaging

import (
	"time"

	"github.com/sudo-init-do/servicehub/internal/marketplace"
	"github.com/sudo-init-do/servicehub/internal/user"
)

const KindText = "text"

type Conversation struct {
	ID           string    `json:"id"`
	Participants [2]string `json:"participants"`
	ListingID    string    `json:"serviceId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	touched uint64
}

func (c *Conversation) has(userID string) bool {
	return userID != "" && (c.Participants[0] == userID || c.Participants[1] == userID)
}

// other returns the participant that is not userID.
func (c *Conversation) other(userID string) string {
	if c.Participants[0] == userID {
		return c.Participants[1]
	}
	return c.Participants[0]
}

type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	Content        string     `json:"content"`
	Kind           string     `json:"messageType"`
	Read           bool       `json:"read"`
	ReadAt         *time.Time `json:"readAt"`
	CreatedAt      time.Time  `json:"createdAt"`
}

func (m *Message) clone() Message {
	c := *m
	if m.ReadAt != nil {
		t := *m.ReadAt
		c.ReadAt = &t
	}
	return c
}

// Thread is a conversation as seen by one participant.
type Thread struct {
	Conversation Conversation
	LastMessage  *Message
	Unread       int
}

// Summary is the conversation list entry returned to clients.
type Summary struct {
	ID          string               `json:"id"`
	OtherUser   *user.PublicProfile  `json:"otherUser"`
	Service     *marketplace.Listing `json:"service"`
	LastMessage *Message             `json:"lastMessage"`
	UnreadCount int                  `json:"unreadCount"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}
