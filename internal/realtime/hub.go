package realtime

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sudo-init-do/servicehub/internal/apperr"
)

const DefaultSessionBuffer = 64

// Presence receives online/offline transitions.
type Presence interface {
	SetOnline(userID string, online bool) error
}

// Relay carries frames to other instances. Forward must not block. Frames
// arriving from a relay are handed to Hub.Deliver, never back to Publish.
type Relay interface {
	Forward(frame []byte, channels []string)
}

// Session is one connected client. Frames queued for it are read from Frames.
type Session struct {
	ID     string
	UserID string

	frames     chan []byte
	channels   map[string]struct{}
	joinedUser bool
	closed     bool
}

func (s *Session) Frames() <-chan []byte { return s.frames }

// Hub routes events to sessions by channel and tracks presence as a count of
// sessions that joined each user channel.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	channels map[string]map[*Session]struct{}
	online   map[string]int

	presence Presence
	relay    Relay
	buffer   int
	dropped  atomic.Int64
	log      zerolog.Logger
}

func NewHub(presence Presence, buffer int, log zerolog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultSessionBuffer
	}
	return &Hub{
		sessions: make(map[string]*Session),
		channels: make(map[string]map[*Session]struct{}),
		online:   make(map[string]int),
		presence: presence,
		buffer:   buffer,
		log:      log,
	}
}

// SetRelay must be called before the hub is used.
func (h *Hub) SetRelay(r Relay) { h.relay = r }

// Register opens a session for an authenticated user. It joins no channel.
func (h *Hub) Register(userID string) *Session {
	s := &Session{
		ID:       uuid.New().String(),
		UserID:   userID,
		frames:   make(chan []byte, h.buffer),
		channels: make(map[string]struct{}),
	}
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
	return s
}

// join subscribes s to channel. Caller holds mu.
func (h *Hub) join(s *Session, channel string) {
	if _, ok := s.channels[channel]; ok {
		return
	}
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[*Session]struct{})
		h.channels[channel] = subs
	}
	subs[s] = struct{}{}
	s.channels[channel] = struct{}{}
}

// JoinUser subscribes s to its own user channel. The first such session of a
// user brings the user online.
func (h *Hub) JoinUser(s *Session, userID string) error {
	if userID != s.UserID {
		return apperr.Forbidden("sessions may only join their own user channel")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return apperr.Conflict("session closed")
	}
	if s.joinedUser {
		return nil
	}
	s.joinedUser = true
	h.join(s, UserChannel(userID))
	h.online[userID]++
	if h.online[userID] == 1 {
		h.setOnline(userID, true)
	}
	return nil
}

// Join subscribes s to a non-user channel. Access checks belong to the caller.
func (h *Hub) Join(s *Session, channel string) error {
	if _, isUser := UserOf(channel); isUser {
		return apperr.Forbidden("use JoinUser for user channels")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return apperr.Conflict("session closed")
	}
	h.join(s, channel)
	return nil
}

// Leave drops s from every channel and closes its frame queue. The last
// session of a user takes the user offline.
func (h *Hub) Leave(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for ch := range s.channels {
		subs := h.channels[ch]
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.channels, ch)
		}
	}
	s.channels = nil
	delete(h.sessions, s.ID)
	if s.joinedUser {
		h.online[s.UserID]--
		if h.online[s.UserID] <= 0 {
			delete(h.online, s.UserID)
			h.setOnline(s.UserID, false)
		}
	}
	close(s.frames)
}

// setOnline reports a presence flip. Caller holds mu so flips for one user
// reach the presence store in order.
func (h *Hub) setOnline(userID string, online bool) {
	if h.presence == nil {
		return
	}
	if err := h.presence.SetOnline(userID, online); err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Bool("online", online).Msg("presence update failed")
	}
}

func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.online[userID] > 0
}

func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Dropped is the number of frames discarded because a session was too slow.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Publish delivers ev locally and forwards it through the relay, if any.
func (h *Hub) Publish(ev Event, channels ...string) {
	frame, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("event", string(ev.Type)).Msg("encode event")
		return
	}
	h.Deliver(frame, channels)
	if h.relay != nil {
		h.relay.Forward(frame, channels)
	}
}

// Deliver queues an encoded frame on every session subscribed to any of the
// channels, once per session. A full queue drops the frame.
func (h *Hub) Deliver(frame []byte, channels []string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[*Session]struct{})
	for _, ch := range channels {
		for s := range h.channels[ch] {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			select {
			case s.frames <- frame:
			default:
				h.dropped.Add(1)
				h.log.Debug().Str("session_id", s.ID).Str("channel", ch).Msg("session queue full, frame dropped")
			}
		}
	}
}

// Send queues ev for a single session, typically a command reply.
func (h *Hub) Send(s *Session, ev Event) {
	frame, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.frames <- frame:
	default:
		h.dropped.Add(1)
	}
}
