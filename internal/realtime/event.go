package realtime

import "strings"

type EventType string

// server -> client
const (
	EventNewMessage           EventType = "newMessage"
	EventConversationUpdate   EventType = "conversationUpdate"
	EventMessagesRead         EventType = "messagesRead"
	EventPaymentCompleted     EventType = "paymentCompleted"
	EventPaymentFailed        EventType = "paymentFailed"
	EventNewServiceAssignment EventType = "newServiceAssignment"
	EventServiceCompleted     EventType = "serviceCompleted"
	EventWithdrawalCompleted  EventType = "withdrawalCompleted"
	EventWithdrawalFailed     EventType = "withdrawalFailed"
	EventUserStatus           EventType = "userStatus"
	EventJoined               EventType = "joined"
	EventError                EventType = "error"
)

// client -> server
const (
	CmdJoinUserChannel  = "joinUserChannel"
	CmdJoinConversation = "joinConversation"
	CmdSendMessage      = "sendMessage"
	CmdMarkMessagesRead = "markMessagesRead"
)

// Event is the frame written to a session.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Publisher delivers an event to every session subscribed to any of the
// channels, at most once per session.
type Publisher interface {
	Publish(ev Event, channels ...string)
}

const (
	userPrefix         = "user:"
	conversationPrefix = "conversation:"
)

func UserChannel(userID string) string { return userPrefix + userID }

func ConversationChannel(conversationID string) string {
	return conversationPrefix + conversationID
}

// UserOf reports the user id of a user channel.
func UserOf(channel string) (string, bool) {
	if !strings.HasPrefix(channel, userPrefix) {
		return "", false
	}
	return strings.TrimPrefix(channel, userPrefix), true
}
