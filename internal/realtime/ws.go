package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sudo-init-do/servicehub/internal/apperr"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
)

// Commands are the conversation operations reachable from a socket.
type Commands interface {
	IsParticipant(conversationID, userID string) bool
	SendMessage(ctx context.Context, senderID, conversationID, content string) error
	MarkMessagesRead(ctx context.Context, readerID, conversationID string) error
}

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type commandData struct {
	UserID         string `json:"userId"`
	SenderID       string `json:"senderId"`
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

// Gateway upgrades authenticated requests to websocket sessions on the hub.
type Gateway struct {
	hub      *Hub
	cmds     Commands
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewGateway(hub *Hub, cmds Commands, allowedOrigin string, log zerolog.Logger) *Gateway {
	return &Gateway{
		hub:  hub,
		cmds: cmds,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				o := r.Header.Get("Origin")
				return allowedOrigin == "" || allowedOrigin == "*" || o == "" || o == allowedOrigin
			},
		},
		log: log,
	}
}

// ServeWS - realtime channel for the authenticated user
func (g *Gateway) ServeWS(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ws, err := g.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	s := g.hub.Register(userID)
	log := g.log.With().Str("session_id", s.ID).Str("user_id", userID).Logger()
	log.Debug().Msg("session connected")

	done := make(chan struct{})
	go g.writeLoop(ws, s, done)
	g.readLoop(c.Request().Context(), ws, s, log)

	g.hub.Leave(s)
	<-done
	_ = ws.Close()
	log.Debug().Msg("session closed")
	return nil
}

func (g *Gateway) readLoop(ctx context.Context, ws *websocket.Conn, s *Session, log zerolog.Logger) {
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in inbound
		if err := ws.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("read failed")
			}
			return
		}
		if err := g.dispatch(ctx, s, in); err != nil {
			g.hub.Send(s, Event{Type: EventError, Data: echo.Map{
				"command": in.Type,
				"error":   err.Error(),
				"code":    apperr.CodeOf(err),
			}})
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, s *Session, in inbound) error {
	var d commandData
	if len(in.Data) > 0 {
		// joinUserChannel may send the bare user id
		if err := json.Unmarshal(in.Data, &d); err != nil {
			var id string
			if json.Unmarshal(in.Data, &id) != nil {
				return apperr.Validation("malformed command data")
			}
			d.UserID, d.ConversationID = id, id
		}
	}

	switch in.Type {
	case CmdJoinUserChannel:
		if d.UserID == "" {
			d.UserID = s.UserID
		}
		if err := g.hub.JoinUser(s, d.UserID); err != nil {
			return err
		}
		g.hub.Send(s, Event{Type: EventJoined, Data: echo.Map{"channel": UserChannel(d.UserID)}})
		return nil
	case CmdJoinConversation:
		if !g.cmds.IsParticipant(d.ConversationID, s.UserID) {
			return apperr.Forbidden("not a participant in this conversation")
		}
		if err := g.hub.Join(s, ConversationChannel(d.ConversationID)); err != nil {
			return err
		}
		g.hub.Send(s, Event{Type: EventJoined, Data: echo.Map{"channel": ConversationChannel(d.ConversationID)}})
		return nil
	case CmdSendMessage:
		if d.SenderID != "" && d.SenderID != s.UserID {
			return apperr.Forbidden("cannot send as another user")
		}
		return g.cmds.SendMessage(ctx, s.UserID, d.ConversationID, d.Content)
	case CmdMarkMessagesRead:
		if d.UserID != "" && d.UserID != s.UserID {
			return apperr.Forbidden("cannot mark messages read for another user")
		}
		return g.cmds.MarkMessagesRead(ctx, s.UserID, d.ConversationID)
	default:
		return apperr.Validation("unknown command " + in.Type)
	}
}

func (g *Gateway) writeLoop(ws *websocket.Conn, s *Session, done chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	for {
		select {
		case frame, ok := <-s.Frames():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				// unblock the reader so the session is torn down
				_ = ws.Close()
				drain(s)
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = ws.Close()
				drain(s)
				return
			}
		}
	}
}

// drain discards frames until the hub closes the queue.
func drain(s *Session) {
	for range s.Frames() {
	}
}
